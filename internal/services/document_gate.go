// internal/services/document_gate.go
package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/coopcredito/solicitudes-backend/internal/database"
	"github.com/coopcredito/solicitudes-backend/internal/models"
	"github.com/coopcredito/solicitudes-backend/internal/utils"
)

type DocumentGate struct {
	db    *gorm.DB
	clock Clock
}

type RegisterRequirementRequest struct {
	Type        models.DocumentType `json:"type" validate:"required,max=60,doc_type"`
	Mandatory   bool                `json:"mandatory"`
	DueDate     *time.Time          `json:"due_date,omitempty"`
	Description string              `json:"description" validate:"max=1000"`
}

type SubmitDocumentRequest struct {
	Type       models.DocumentType    `json:"type" validate:"required,max=60,doc_type"`
	FileName   string                 `json:"file_name" validate:"max=255"`
	StorageKey string                 `json:"storage_key" validate:"max=512"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
}

func NewDocumentGate(db *gorm.DB, clock Clock) *DocumentGate {
	return &DocumentGate{
		db:    db,
		clock: clock,
	}
}

// WithTx returns a gate bound to an open transaction.
func (g *DocumentGate) WithTx(tx *gorm.DB) *DocumentGate {
	return &DocumentGate{db: tx, clock: g.clock}
}

// RegisterRequirement creates or replaces the requirement for a document type.
func (g *DocumentGate) RegisterRequirement(ctx context.Context, req *RegisterRequirementRequest) (*models.DocumentRequirement, error) {
	req.Type = models.DocumentType(strings.TrimSpace(string(req.Type)))
	if req.Type == "" {
		return nil, &InvalidInputError{Field: "type", Reason: "document type is required"}
	}
	if err := utils.ValidateStruct(req); err != nil {
		return nil, &InvalidInputError{Reason: err.Error()}
	}

	requirement := &models.DocumentRequirement{
		Type:        req.Type,
		Mandatory:   req.Mandatory,
		DueDate:     req.DueDate,
		Description: req.Description,
	}

	err := g.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "type"}},
		DoUpdates: clause.AssignmentColumns([]string{"mandatory", "due_date", "description", "updated_at"}),
	}).Create(requirement).Error
	if err != nil {
		return nil, fmt.Errorf("failed to register document requirement: %w", err)
	}

	// The upsert keeps the original id on conflict
	var stored models.DocumentRequirement
	if err := g.db.WithContext(ctx).Where("type = ?", req.Type).First(&stored).Error; err != nil {
		return nil, fmt.Errorf("failed to reload document requirement: %w", err)
	}

	return &stored, nil
}

func (g *DocumentGate) Requirements(ctx context.Context) ([]models.DocumentRequirement, error) {
	var requirements []models.DocumentRequirement
	if err := g.db.WithContext(ctx).Order("type ASC").Find(&requirements).Error; err != nil {
		return nil, fmt.Errorf("failed to fetch document requirements: %w", err)
	}
	return requirements, nil
}

// Submit records a new pending submission. A previous active submission of the
// same type is deactivated but kept.
func (g *DocumentGate) Submit(ctx context.Context, solicitudID uuid.UUID, req *SubmitDocumentRequest) (*models.SubmittedDocument, error) {
	req.Type = models.DocumentType(strings.TrimSpace(string(req.Type)))
	if req.Type == "" {
		return nil, &InvalidInputError{Field: "type", Reason: "document type is required"}
	}
	if err := utils.ValidateStruct(req); err != nil {
		return nil, &InvalidInputError{Reason: err.Error()}
	}

	var document *models.SubmittedDocument
	err := database.WithTransaction(g.db.WithContext(ctx), func(tx *gorm.DB) error {
		if err := ensureSolicitudActive(tx, solicitudID); err != nil {
			return err
		}

		if err := tx.Model(&models.SubmittedDocument{}).
			Where("solicitud_id = ? AND type = ? AND active = ?", solicitudID, req.Type, true).
			Update("active", false).Error; err != nil {
			return fmt.Errorf("failed to deactivate previous submission: %w", err)
		}

		document = &models.SubmittedDocument{
			SolicitudID: solicitudID,
			Type:        req.Type,
			State:       models.DocumentStatePending,
			SubmittedAt: g.clock.Now(),
			Active:      true,
			FileName:    req.FileName,
			StorageKey:  req.StorageKey,
			Metadata:    req.Metadata,
		}
		if err := tx.Create(document).Error; err != nil {
			return fmt.Errorf("failed to create submitted document: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return document, nil
}

// SetState reviews a pending active submission.
func (g *DocumentGate) SetState(ctx context.Context, documentID uuid.UUID, newState models.DocumentState, reviewer *string) (*models.SubmittedDocument, error) {
	if newState != models.DocumentStateApproved && newState != models.DocumentStateRejected {
		return nil, &InvalidInputError{Field: "state", Reason: "must be approved or rejected"}
	}

	var document models.SubmittedDocument
	err := database.WithTransaction(g.db.WithContext(ctx), func(tx *gorm.DB) error {
		if err := tx.First(&document, "id = ?", documentID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return &NotFoundError{Resource: "document", ID: documentID.String()}
			}
			return fmt.Errorf("failed to fetch document: %w", err)
		}

		if !document.Active {
			return &InvalidStateError{Resource: "document", ID: documentID.String(), State: string(document.State), Reason: "submission was superseded"}
		}
		if document.State != models.DocumentStatePending {
			return &InvalidStateError{Resource: "document", ID: documentID.String(), State: string(document.State), Reason: "document was already reviewed"}
		}

		now := g.clock.Now()
		updates := map[string]interface{}{
			"state":       newState,
			"reviewed_at": now,
			"reviewed_by": reviewer,
		}
		// A rejected submission no longer counts; the applicant must resubmit
		if newState == models.DocumentStateRejected {
			updates["active"] = false
		}

		if err := tx.Model(&document).Updates(updates).Error; err != nil {
			return fmt.Errorf("failed to update document state: %w", err)
		}
		return tx.First(&document, "id = ?", documentID).Error
	})
	if err != nil {
		return nil, err
	}

	return &document, nil
}

func (g *DocumentGate) Get(ctx context.Context, documentID uuid.UUID) (*models.SubmittedDocument, error) {
	var document models.SubmittedDocument
	if err := g.db.WithContext(ctx).First(&document, "id = ?", documentID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &NotFoundError{Resource: "document", ID: documentID.String()}
		}
		return nil, fmt.Errorf("failed to fetch document: %w", err)
	}
	return &document, nil
}

// Documents lists every submission of the application, newest first.
func (g *DocumentGate) Documents(ctx context.Context, solicitudID uuid.UUID, activeOnly bool) ([]models.SubmittedDocument, error) {
	query := g.db.WithContext(ctx).Where("solicitud_id = ?", solicitudID)
	if activeOnly {
		query = query.Where("active = ?", true)
	}

	var documents []models.SubmittedDocument
	if err := query.Order("submitted_at DESC").Find(&documents).Error; err != nil {
		return nil, fmt.Errorf("failed to fetch documents: %w", err)
	}
	return documents, nil
}

// MissingRequirements returns the mandatory types without an active approved
// submission, sorted.
func (g *DocumentGate) MissingRequirements(ctx context.Context, solicitudID uuid.UUID) ([]models.DocumentType, error) {
	db := g.db.WithContext(ctx)

	var mandatory []models.DocumentType
	if err := db.Model(&models.DocumentRequirement{}).
		Where("mandatory = ?", true).
		Pluck("type", &mandatory).Error; err != nil {
		return nil, fmt.Errorf("failed to fetch mandatory requirements: %w", err)
	}
	if len(mandatory) == 0 {
		return nil, nil
	}

	var approved []models.DocumentType
	if err := db.Model(&models.SubmittedDocument{}).
		Where("solicitud_id = ? AND active = ? AND state = ?", solicitudID, true, models.DocumentStateApproved).
		Pluck("type", &approved).Error; err != nil {
		return nil, fmt.Errorf("failed to fetch approved documents: %w", err)
	}

	have := make(map[models.DocumentType]struct{}, len(approved))
	for _, t := range approved {
		have[t] = struct{}{}
	}

	var missing []models.DocumentType
	for _, t := range mandatory {
		if _, ok := have[t]; !ok {
			missing = append(missing, t)
		}
	}
	sort.Slice(missing, func(i, j int) bool { return missing[i] < missing[j] })

	return missing, nil
}

func (g *DocumentGate) IsSatisfied(ctx context.Context, solicitudID uuid.UUID) (bool, error) {
	missing, err := g.MissingRequirements(ctx, solicitudID)
	if err != nil {
		return false, err
	}
	return len(missing) == 0, nil
}

func ensureSolicitudActive(db *gorm.DB, solicitudID uuid.UUID) error {
	var count int64
	if err := db.Model(&models.SolicitudCredito{}).
		Scopes(notArchived).
		Where("id = ?", solicitudID).
		Count(&count).Error; err != nil {
		return fmt.Errorf("failed to look up solicitud: %w", err)
	}
	if count == 0 {
		return &NotFoundError{Resource: "solicitud", ID: solicitudID.String()}
	}
	return nil
}

func notArchived(db *gorm.DB) *gorm.DB {
	return db.Where("archived_at IS NULL")
}
