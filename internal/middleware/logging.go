// internal/middleware/logging.go
package middleware

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/coopcredito/solicitudes-backend/internal/models"
)

// Request bodies with these keys are stored with the value masked.
var sensitiveFields = []string{"password", "refresh_token"}

// AuditLogMiddleware records every mutating request in audit_logs. The row is
// written asynchronously and a failure is only logged.
func AuditLogMiddleware(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method == http.MethodGet || c.Request.Method == http.MethodOptions || c.Request.URL.Path == "/health" {
			c.Next()
			return
		}

		// Read request body
		var requestBody []byte
		if c.Request.Body != nil {
			requestBody, _ = io.ReadAll(c.Request.Body)
			c.Request.Body = io.NopCloser(bytes.NewBuffer(requestBody))
		}

		c.Next()

		var username *string
		if value, ok := c.Get("username"); ok {
			if name, ok := value.(string); ok && name != "" {
				username = &name
			}
		}

		var requestData map[string]interface{}
		if len(requestBody) > 0 {
			if err := json.Unmarshal(requestBody, &requestData); err == nil {
				maskSensitive(requestData)
			}
		}

		auditLog := &models.AuditLog{
			Username:     username,
			Action:       c.Request.Method + " " + c.FullPath(),
			ResourceType: extractResourceType(c.Request.URL.Path),
			NewValues:    models.JSONB(requestData),
			StatusCode:   c.Writer.Status(),
			IPAddress:    c.ClientIP(),
			UserAgent:    c.Request.UserAgent(),
		}

		// Extract resource ID from URL if present
		if resourceID := extractResourceID(c.Request.URL.Path); resourceID != "" {
			if parsed, err := uuid.Parse(resourceID); err == nil {
				auditLog.ResourceID = &parsed
			}
		}

		go func() {
			if err := db.Create(auditLog).Error; err != nil {
				logrus.WithError(err).Error("Failed to create audit log")
			}
		}()
	}
}

// RequestLogger writes one structured line per request.
func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		username, _ := c.Get("username")
		entry := logrus.WithFields(logrus.Fields{
			"method":     c.Request.Method,
			"path":       c.Request.URL.Path,
			"status":     c.Writer.Status(),
			"duration":   time.Since(start).Milliseconds(),
			"ip":         c.ClientIP(),
			"user_agent": c.Request.UserAgent(),
			"username":   username,
		})

		switch {
		case c.Writer.Status() >= http.StatusInternalServerError:
			entry.Error("Request processed")
		case c.Writer.Status() >= http.StatusBadRequest:
			entry.Warn("Request processed")
		default:
			entry.Info("Request processed")
		}
	}
}

func maskSensitive(data map[string]interface{}) {
	for _, field := range sensitiveFields {
		if _, ok := data[field]; ok {
			data[field] = "***"
		}
	}
}

func extractResourceType(path string) string {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) >= 2 && parts[0] == "v1" {
		if parts[1] == "admin" && len(parts) >= 3 {
			return parts[2]
		}
		return parts[1]
	}
	if len(parts) >= 1 && parts[0] != "" {
		return parts[0]
	}
	return "unknown"
}

func extractResourceID(path string) string {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	for _, part := range parts {
		if _, err := uuid.Parse(part); err == nil {
			return part
		}
	}
	return ""
}
