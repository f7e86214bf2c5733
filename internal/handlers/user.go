// internal/handlers/user.go
package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/coopcredito/solicitudes-backend/internal/i18n"
	"github.com/coopcredito/solicitudes-backend/internal/services"
	"github.com/coopcredito/solicitudes-backend/internal/utils"
)

type UserHandler struct {
	userService *services.UserService
}

func NewUserHandler(userService *services.UserService) *UserHandler {
	return &UserHandler{
		userService: userService,
	}
}

// PUT /v1/users/profile
func (h *UserHandler) UpdateProfile(c *gin.Context) {
	username, ok := utils.GetUsernameFromContext(c)
	if !ok {
		utils.UnauthorizedResponse(c, "")
		return
	}

	var req services.UpdateUserProfileRequest
	if !bindJSON(c, &req) {
		return
	}

	user, err := h.userService.UpdateProfile(c.Request.Context(), username, &req)
	if err != nil {
		respondError(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{
		"message": i18n.T(utils.GetLangFromContext(c), i18n.KeyUserProfileUpdated),
		"user":    user,
	})
}

// PUT /v1/users/password
func (h *UserHandler) ChangePassword(c *gin.Context) {
	username, ok := utils.GetUsernameFromContext(c)
	if !ok {
		utils.UnauthorizedResponse(c, "")
		return
	}

	var req services.ChangePasswordRequest
	if !bindJSON(c, &req) {
		return
	}

	if err := h.userService.ChangePassword(c.Request.Context(), username, &req); err != nil {
		respondError(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{
		"message": i18n.T(utils.GetLangFromContext(c), i18n.KeyUserPasswordChanged),
	})
}
