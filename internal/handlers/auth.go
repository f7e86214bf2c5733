// internal/handlers/auth.go
package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/coopcredito/solicitudes-backend/internal/services"
	"github.com/coopcredito/solicitudes-backend/internal/utils"
)

type AuthHandler struct {
	authService *services.AuthService
}

type refreshTokenRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

func NewAuthHandler(authService *services.AuthService) *AuthHandler {
	return &AuthHandler{
		authService: authService,
	}
}

// POST /v1/auth/register
func (h *AuthHandler) Register(c *gin.Context) {
	var req services.RegisterRequest
	if !bindJSON(c, &req) {
		return
	}

	authResponse, err := h.authService.Register(c.Request.Context(), &req)
	if err != nil {
		respondError(c, err)
		return
	}

	utils.CreatedResponse(c, authResponse)
}

// POST /v1/auth/login
func (h *AuthHandler) Login(c *gin.Context) {
	var req services.LoginRequest
	if !bindJSON(c, &req) {
		return
	}

	authResponse, err := h.authService.Login(c.Request.Context(), &req)
	if err != nil {
		respondError(c, err)
		return
	}

	utils.SuccessResponse(c, authResponse)
}

// POST /v1/auth/refresh
func (h *AuthHandler) RefreshToken(c *gin.Context) {
	var req refreshTokenRequest
	if !bindJSON(c, &req) {
		return
	}

	authResponse, err := h.authService.RefreshToken(c.Request.Context(), req.RefreshToken)
	if err != nil {
		respondError(c, err)
		return
	}

	utils.SuccessResponse(c, authResponse)
}

// GET /v1/auth/me
func (h *AuthHandler) Me(c *gin.Context) {
	username, ok := utils.GetUsernameFromContext(c)
	if !ok {
		utils.UnauthorizedResponse(c, "")
		return
	}

	user, err := h.authService.GetUserByUsername(c.Request.Context(), username)
	if err != nil {
		respondError(c, err)
		return
	}

	utils.SuccessResponse(c, user)
}

// PUT /v1/admin/users/:username/roles
func (h *AuthHandler) AssignRoles(c *gin.Context) {
	var req services.AssignRolesRequest
	if !bindJSON(c, &req) {
		return
	}

	user, err := h.authService.AssignRoles(c.Request.Context(), c.Param("username"), &req)
	if err != nil {
		respondError(c, err)
		return
	}

	utils.SuccessResponse(c, user)
}
