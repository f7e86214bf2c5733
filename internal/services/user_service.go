// internal/services/user_service.go
package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/coopcredito/solicitudes-backend/internal/models"
	"github.com/coopcredito/solicitudes-backend/internal/utils"
)

type UserService struct {
	db *gorm.DB
}

type UpdateUserProfileRequest struct {
	FullName string `json:"full_name,omitempty" validate:"omitempty,max=150"`
	Email    string `json:"email,omitempty" validate:"omitempty,email"`
}

type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password" validate:"required"`
	NewPassword     string `json:"new_password" validate:"required,strong_password"`
}

func NewUserService(db *gorm.DB) *UserService {
	return &UserService{
		db: db,
	}
}

func (s *UserService) GetProfile(ctx context.Context, username string) (*models.User, error) {
	var user models.User
	if err := s.db.WithContext(ctx).Where("username = ?", username).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &NotFoundError{Resource: "user", ID: username}
		}
		return nil, fmt.Errorf("database error: %w", err)
	}
	return &user, nil
}

func (s *UserService) UpdateProfile(ctx context.Context, username string, req *UpdateUserProfileRequest) (*models.User, error) {
	req.FullName = strings.TrimSpace(req.FullName)
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if err := utils.ValidateStruct(req); err != nil {
		return nil, &InvalidInputError{Reason: err.Error()}
	}

	user, err := s.GetProfile(ctx, username)
	if err != nil {
		return nil, err
	}

	updates := map[string]interface{}{}
	if req.FullName != "" {
		updates["full_name"] = req.FullName
	}
	if req.Email != "" {
		email := req.Email
		if email != user.Email {
			var taken int64
			if err := s.db.WithContext(ctx).Model(&models.User{}).
				Where("email = ? AND id <> ?", email, user.ID).
				Count(&taken).Error; err != nil {
				return nil, fmt.Errorf("database error: %w", err)
			}
			if taken > 0 {
				return nil, &InvalidInputError{Field: "email", Reason: "already registered"}
			}
			updates["email"] = email
		}
	}
	if len(updates) == 0 {
		return user, nil
	}

	if err := s.db.WithContext(ctx).Model(user).Updates(updates).Error; err != nil {
		return nil, fmt.Errorf("failed to update profile: %w", err)
	}

	return s.GetProfile(ctx, username)
}

func (s *UserService) ChangePassword(ctx context.Context, username string, req *ChangePasswordRequest) error {
	if err := utils.ValidateStruct(req); err != nil {
		return &InvalidInputError{Reason: err.Error()}
	}

	user, err := s.GetProfile(ctx, username)
	if err != nil {
		return err
	}

	if err := user.CheckPassword(req.CurrentPassword); err != nil {
		return ErrInvalidCredentials
	}

	if err := user.SetPassword(req.NewPassword); err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	if err := s.db.WithContext(ctx).Model(user).Update("password_hash", user.PasswordHash).Error; err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}
	return nil
}
