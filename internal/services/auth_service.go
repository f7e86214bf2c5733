// internal/services/auth_service.go
package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/coopcredito/solicitudes-backend/internal/config"
	"github.com/coopcredito/solicitudes-backend/internal/models"
	"github.com/coopcredito/solicitudes-backend/internal/utils"
)

var (
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrAccountSuspended   = errors.New("account is suspended")
	ErrInvalidToken       = errors.New("invalid or expired token")
)

type AuthService struct {
	db                  *gorm.DB
	cfg                 *config.Config
	notificationService *NotificationService
}

type LoginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type RegisterRequest struct {
	Username string `json:"username" validate:"required,username"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,strong_password"`
	FullName string `json:"full_name" validate:"required,max=150"`
}

type AssignRolesRequest struct {
	Roles []string `json:"roles" validate:"required,min=1"`
}

type AuthResponse struct {
	User         *models.User `json:"user"`
	AccessToken  string       `json:"access_token"`
	RefreshToken string       `json:"refresh_token"`
	TokenType    string       `json:"token_type"`
	ExpiresIn    int          `json:"expires_in"` // in seconds
}

func NewAuthService(db *gorm.DB, cfg *config.Config, notificationService *NotificationService) *AuthService {
	return &AuthService{
		db:                  db,
		cfg:                 cfg,
		notificationService: notificationService,
	}
}

// Register creates an applicant account. Staff roles are granted afterwards by
// an administrator.
func (s *AuthService) Register(ctx context.Context, req *RegisterRequest) (*AuthResponse, error) {
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if err := utils.ValidateStruct(req); err != nil {
		return nil, &InvalidInputError{Reason: err.Error()}
	}

	var existing models.User
	err := s.db.WithContext(ctx).Where("email = ? OR username = ?", req.Email, req.Username).First(&existing).Error
	if err == nil {
		if existing.Email == req.Email {
			return nil, &InvalidInputError{Field: "email", Reason: "already registered"}
		}
		return nil, &InvalidInputError{Field: "username", Reason: "already taken"}
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("database error: %w", err)
	}

	user := &models.User{
		Username: req.Username,
		Email:    req.Email,
		FullName: req.FullName,
		Roles:    models.Roles{models.RoleSolicitante},
		Status:   models.UserStatusActive,
	}
	if err := user.SetPassword(req.Password); err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	if err := s.db.WithContext(ctx).Create(user).Error; err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	if s.notificationService != nil {
		go func() {
			if err := s.notificationService.SendWelcomeEmail(user); err != nil {
				logrus.WithError(err).WithField("username", user.Username).Warn("Failed to send welcome email")
			}
		}()
	}

	return s.issueTokens(user)
}

func (s *AuthService) Login(ctx context.Context, req *LoginRequest) (*AuthResponse, error) {
	if err := utils.ValidateStruct(req); err != nil {
		return nil, &InvalidInputError{Reason: err.Error()}
	}

	var user models.User
	if err := s.db.WithContext(ctx).Where("username = ?", req.Username).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("database error: %w", err)
	}

	if err := user.CheckPassword(req.Password); err != nil {
		return nil, ErrInvalidCredentials
	}
	if user.Status != models.UserStatusActive {
		return nil, ErrAccountSuspended
	}

	now := time.Now()
	if err := s.db.WithContext(ctx).Model(&user).Update("last_login_at", now).Error; err != nil {
		logrus.WithError(err).WithField("username", user.Username).Warn("Failed to record last login")
	}

	return s.issueTokens(&user)
}

func (s *AuthService) RefreshToken(ctx context.Context, refreshToken string) (*AuthResponse, error) {
	userIDStr, err := utils.ValidateRefreshToken(refreshToken)
	if err != nil {
		return nil, ErrInvalidToken
	}

	userID, err := uuid.Parse(userIDStr)
	if err != nil {
		return nil, ErrInvalidToken
	}

	var user models.User
	if err := s.db.WithContext(ctx).First(&user, "id = ?", userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInvalidToken
		}
		return nil, fmt.Errorf("database error: %w", err)
	}
	if user.Status != models.UserStatusActive {
		return nil, ErrAccountSuspended
	}

	return s.issueTokens(&user)
}

func (s *AuthService) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	var user models.User
	if err := s.db.WithContext(ctx).Where("username = ?", username).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &NotFoundError{Resource: "user", ID: username}
		}
		return nil, fmt.Errorf("database error: %w", err)
	}
	return &user, nil
}

// AssignRoles replaces the role set of a user.
func (s *AuthService) AssignRoles(ctx context.Context, username string, req *AssignRolesRequest) (*models.User, error) {
	if err := utils.ValidateStruct(req); err != nil {
		return nil, &InvalidInputError{Reason: err.Error()}
	}
	roles, err := models.ParseRoles(req.Roles)
	if err != nil {
		return nil, &InvalidInputError{Field: "roles", Reason: err.Error()}
	}

	user, err := s.GetUserByUsername(ctx, username)
	if err != nil {
		return nil, err
	}

	if err := s.db.WithContext(ctx).Model(user).Update("roles", roles).Error; err != nil {
		return nil, fmt.Errorf("failed to update roles: %w", err)
	}
	user.Roles = roles

	return user, nil
}

func (s *AuthService) issueTokens(user *models.User) (*AuthResponse, error) {
	accessToken, err := utils.GenerateJWT(user.ID, user.Username, user.Roles.Strings(), s.cfg.JWT.AccessTokenTTL)
	if err != nil {
		return nil, fmt.Errorf("failed to generate access token: %w", err)
	}

	refreshToken, err := utils.GenerateRefreshToken(user.ID, s.cfg.JWT.RefreshTokenTTL)
	if err != nil {
		return nil, fmt.Errorf("failed to generate refresh token: %w", err)
	}

	return &AuthResponse{
		User:         user,
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		TokenType:    "Bearer",
		ExpiresIn:    s.cfg.JWT.AccessTokenTTL * 3600, // Convert hours to seconds
	}, nil
}
