// internal/handlers/notification.go
package handlers

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/coopcredito/solicitudes-backend/internal/i18n"
	"github.com/coopcredito/solicitudes-backend/internal/services"
	"github.com/coopcredito/solicitudes-backend/internal/utils"
)

type NotificationHandler struct {
	notificationService *services.NotificationService
}

func NewNotificationHandler(notificationService *services.NotificationService) *NotificationHandler {
	return &NotificationHandler{
		notificationService: notificationService,
	}
}

// GET /v1/notifications
func (h *NotificationHandler) List(c *gin.Context) {
	username, ok := utils.GetUsernameFromContext(c)
	if !ok {
		utils.UnauthorizedResponse(c, "")
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	notifications, err := h.notificationService.ListForUser(c.Request.Context(), username, c.Query("unread") == "true", limit)
	if err != nil {
		respondError(c, err)
		return
	}

	utils.SuccessResponse(c, notifications)
}

// PUT /v1/notifications/:id/read
func (h *NotificationHandler) MarkRead(c *gin.Context) {
	id, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}

	username, _ := utils.GetUsernameFromContext(c)
	if err := h.notificationService.MarkRead(c.Request.Context(), username, id); err != nil {
		respondError(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{
		"message": i18n.T(utils.GetLangFromContext(c), i18n.KeyNotificationMarkedRead),
	})
}
