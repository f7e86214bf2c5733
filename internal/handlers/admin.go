// internal/handlers/admin.go
package handlers

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/coopcredito/solicitudes-backend/internal/i18n"
	"github.com/coopcredito/solicitudes-backend/internal/models"
	"github.com/coopcredito/solicitudes-backend/internal/services"
	"github.com/coopcredito/solicitudes-backend/internal/utils"
)

type AdminHandler struct {
	adminService *services.AdminService
}

func NewAdminHandler(adminService *services.AdminService) *AdminHandler {
	return &AdminHandler{
		adminService: adminService,
	}
}

// GET /v1/admin/dashboard/stats
func (h *AdminHandler) GetDashboardStats(c *gin.Context) {
	stats, err := h.adminService.GetDashboardStats(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{
		"stats": stats,
	})
}

// GET /v1/admin/users
func (h *AdminHandler) GetUsers(c *gin.Context) {
	params := utils.GetPaginationParams(c)

	filter := services.AdminUserFilter{
		PaginationParams: params,
	}

	if role := c.Query("role"); role != "" {
		r := models.UserRole(role)
		filter.Role = &r
	}

	if status := c.Query("status"); status != "" {
		s := models.UserStatus(status)
		filter.Status = &s
	}

	if createdAfter := c.Query("created_after"); createdAfter != "" {
		if t, err := time.Parse("2006-01-02", createdAfter); err == nil {
			filter.CreatedAfter = &t
		}
	}

	if createdBefore := c.Query("created_before"); createdBefore != "" {
		if t, err := time.Parse("2006-01-02", createdBefore); err == nil {
			filter.CreatedBefore = &t
		}
	}

	users, total, err := h.adminService.GetUsers(c.Request.Context(), filter)
	if err != nil {
		respondError(c, err)
		return
	}

	result := utils.CreatePaginationResult(users, total, params)
	utils.PaginatedResponse(c, result)
}

// PUT /v1/admin/users/:username/status
func (h *AdminHandler) UpdateUserStatus(c *gin.Context) {
	lang := utils.GetLangFromContext(c)

	var req services.UpdateUserStatusRequest
	if !bindJSON(c, &req) {
		return
	}

	admin, _ := utils.GetUsernameFromContext(c)
	user, err := h.adminService.UpdateUserStatus(c.Request.Context(), c.Param("username"), &req, admin)
	if err != nil {
		respondError(c, err)
		return
	}

	message := i18n.T(lang, i18n.KeyAdminUserUnsuspended)
	if user.Status == models.UserStatusSuspended {
		message = i18n.T(lang, i18n.KeyAdminUserSuspended)
	}

	utils.SuccessResponse(c, gin.H{
		"message": message,
		"user":    user,
	})
}
