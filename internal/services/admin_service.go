// internal/services/admin_service.go
package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/coopcredito/solicitudes-backend/internal/models"
	"github.com/coopcredito/solicitudes-backend/internal/utils"
)

type AdminService struct {
	db                  *gorm.DB
	clock               Clock
	notificationService *NotificationService
}

type AdminDashboardStats struct {
	TotalSolicitudes        int64                         `json:"total_solicitudes"`
	ArchivedSolicitudes     int64                         `json:"archived_solicitudes"`
	NewSolicitudesThisMonth int64                         `json:"new_solicitudes_this_month"`
	SolicitudesByEstado     map[models.EstadoCodigo]int64 `json:"solicitudes_by_estado"`
	DocumentsPendingReview  int64                         `json:"documents_pending_review"`
	PendingSignatures       int64                         `json:"pending_signatures"`
	TotalUsers              int64                         `json:"total_users"`
	SuspendedUsers          int64                         `json:"suspended_users"`
	SolicitudGrowth         float64                       `json:"solicitud_growth"`
}

type AdminUserFilter struct {
	utils.PaginationParams
	Role          *models.UserRole   `json:"role,omitempty"`
	Status        *models.UserStatus `json:"status,omitempty"`
	CreatedAfter  *time.Time         `json:"created_after,omitempty"`
	CreatedBefore *time.Time         `json:"created_before,omitempty"`
}

type UpdateUserStatusRequest struct {
	Status models.UserStatus `json:"status" validate:"required,oneof=active suspended"`
	Reason string            `json:"reason,omitempty" validate:"max=500"`
}

func NewAdminService(db *gorm.DB, clock Clock, notificationService *NotificationService) *AdminService {
	return &AdminService{
		db:                  db,
		clock:               clock,
		notificationService: notificationService,
	}
}

// GetDashboardStats summarizes the workload of the credit committee.
func (s *AdminService) GetDashboardStats(ctx context.Context) (*AdminDashboardStats, error) {
	db := s.db.WithContext(ctx)
	stats := &AdminDashboardStats{SolicitudesByEstado: make(map[models.EstadoCodigo]int64)}
	now := s.clock.Now()
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
	lastMonthStart := monthStart.AddDate(0, -1, 0)

	active := db.Model(&models.SolicitudCredito{}).Scopes(notArchived)
	if err := active.Count(&stats.TotalSolicitudes).Error; err != nil {
		return nil, fmt.Errorf("failed to count solicitudes: %w", err)
	}

	var rows []struct {
		EstadoCodigo models.EstadoCodigo
		Total        int64
	}
	if err := db.Model(&models.SolicitudCredito{}).Scopes(notArchived).
		Select("estado_codigo, COUNT(*) AS total").
		Group("estado_codigo").
		Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to group solicitudes by estado: %w", err)
	}
	for _, row := range rows {
		stats.SolicitudesByEstado[row.EstadoCodigo] = row.Total
	}

	db.Model(&models.SolicitudCredito{}).Where("archived_at IS NOT NULL").Count(&stats.ArchivedSolicitudes)
	db.Model(&models.SolicitudCredito{}).Where("created_at >= ?", monthStart).Count(&stats.NewSolicitudesThisMonth)

	db.Model(&models.SubmittedDocument{}).
		Where("active = ? AND state = ?", true, models.DocumentStatePending).
		Count(&stats.DocumentsPendingReview)
	db.Model(&models.SignatureTransaction{}).
		Where("state = ?", models.SignatureStatePending).
		Count(&stats.PendingSignatures)

	db.Model(&models.User{}).Count(&stats.TotalUsers)
	db.Model(&models.User{}).Where("status = ?", models.UserStatusSuspended).Count(&stats.SuspendedUsers)

	var lastMonth int64
	db.Model(&models.SolicitudCredito{}).
		Where("created_at >= ? AND created_at < ?", lastMonthStart, monthStart).
		Count(&lastMonth)
	if lastMonth > 0 {
		stats.SolicitudGrowth = float64(stats.NewSolicitudesThisMonth-lastMonth) / float64(lastMonth) * 100
	}

	return stats, nil
}

// User Management
func (s *AdminService) GetUsers(ctx context.Context, filter AdminUserFilter) ([]models.User, int64, error) {
	query := s.db.WithContext(ctx).Model(&models.User{})

	if filter.Status != nil {
		query = query.Where("status = ?", *filter.Status)
	}
	if filter.Search != "" {
		searchTerm := "%" + filter.Search + "%"
		query = query.Where("username LIKE ? OR email LIKE ? OR full_name LIKE ?", searchTerm, searchTerm, searchTerm)
	}
	if filter.CreatedAfter != nil {
		query = query.Where("created_at >= ?", *filter.CreatedAfter)
	}
	if filter.CreatedBefore != nil {
		query = query.Where("created_at <= ?", *filter.CreatedBefore)
	}

	// Roles are stored as an array column, so the role filter runs in memory
	if filter.Role != nil {
		var all []models.User
		if err := utils.ApplySort(query, filter.PaginationParams, userSortFields).Find(&all).Error; err != nil {
			return nil, 0, fmt.Errorf("failed to fetch users: %w", err)
		}
		matching := make([]models.User, 0, len(all))
		for _, user := range all {
			if user.Roles.Has(*filter.Role) {
				matching = append(matching, user)
			}
		}
		params := filter.PaginationParams.Normalize()
		start := min((params.Page-1)*params.Limit, len(matching))
		end := min(start+params.Limit, len(matching))
		return matching[start:end], int64(len(matching)), nil
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count users: %w", err)
	}

	query = utils.ApplySort(query, filter.PaginationParams, userSortFields)
	query = utils.ApplyPagination(query, filter.PaginationParams)

	var users []models.User
	if err := query.Find(&users).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to fetch users: %w", err)
	}

	return users, total, nil
}

var userSortFields = []string{"created_at", "updated_at", "username", "email", "status"}

// UpdateUserStatus suspends or reactivates an account. Administrators cannot
// change their own status.
func (s *AdminService) UpdateUserStatus(ctx context.Context, username string, req *UpdateUserStatusRequest, admin string) (*models.User, error) {
	if err := utils.ValidateStruct(req); err != nil {
		return nil, &InvalidInputError{Reason: err.Error()}
	}
	if username == admin {
		return nil, &InvalidInputError{Field: "username", Reason: "administrators cannot change their own status"}
	}

	var user models.User
	if err := s.db.WithContext(ctx).Where("username = ?", username).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &NotFoundError{Resource: "user", ID: username}
		}
		return nil, fmt.Errorf("database error: %w", err)
	}

	oldStatus := user.Status
	if oldStatus == req.Status {
		return &user, nil
	}

	if err := s.db.WithContext(ctx).Model(&user).Update("status", req.Status).Error; err != nil {
		return nil, fmt.Errorf("failed to update user status: %w", err)
	}
	user.Status = req.Status

	s.createAuditLog(ctx, admin, "UPDATE_USER_STATUS", "user", &user.ID, map[string]interface{}{
		"old_status": oldStatus,
		"status":     req.Status,
		"reason":     req.Reason,
	})

	if s.notificationService != nil {
		go func() {
			if err := s.notificationService.SendUserStatusChange(&user, oldStatus, req.Reason); err != nil {
				logrus.WithError(err).WithField("username", user.Username).Warn("Failed to send status change email")
			}
		}()
	}

	return &user, nil
}

// Helper methods
func (s *AdminService) createAuditLog(ctx context.Context, username, action, resourceType string, resourceID *uuid.UUID, newValues map[string]interface{}) {
	auditLog := &models.AuditLog{
		Username:     &username,
		Action:       action,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		NewValues:    models.JSONB(newValues),
	}

	if err := s.db.WithContext(ctx).Create(auditLog).Error; err != nil {
		logrus.WithError(err).WithField("action", action).Warn("Failed to write audit log")
	}
}
