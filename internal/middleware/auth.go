// internal/middleware/auth.go
package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/coopcredito/solicitudes-backend/internal/i18n"
	"github.com/coopcredito/solicitudes-backend/internal/models"
	"github.com/coopcredito/solicitudes-backend/internal/utils"
)

func AuthRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		lang := utils.GetLangFromContext(c)

		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			utils.UnauthorizedResponse(c, i18n.T(lang, i18n.KeyAuthRequired))
			c.Abort()
			return
		}

		// Extract token from "Bearer <token>"
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			utils.UnauthorizedResponse(c, i18n.T(lang, i18n.KeyAuthInvalidToken))
			c.Abort()
			return
		}

		claims, err := utils.ValidateJWT(parts[1])
		if err != nil {
			utils.UnauthorizedResponse(c, i18n.T(lang, i18n.KeyAuthInvalidToken))
			c.Abort()
			return
		}

		// Set user info in context
		c.Set("user_id", claims.UserID)
		c.Set("username", claims.Username)
		c.Set("roles", claims.Roles)
		c.Next()
	}
}

// RoleRequired lets the request through when the caller holds any of roles.
// It must run after AuthRequired.
func RoleRequired(roles ...models.UserRole) gin.HandlerFunc {
	return func(c *gin.Context) {
		held, err := models.ParseRoles(utils.GetRolesFromContext(c))
		if err != nil || !held.HasAny(roles...) {
			utils.ForbiddenResponse(c, "")
			c.Abort()
			return
		}
		c.Next()
	}
}

// IsStaff reports whether the caller may act on applications it does not own.
func IsStaff(c *gin.Context) bool {
	held, err := models.ParseRoles(utils.GetRolesFromContext(c))
	if err != nil {
		return false
	}
	return held.HasAny(models.RoleAnalista, models.RoleAdministrador)
}
