// internal/services/signature_process.go
package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/coopcredito/solicitudes-backend/internal/database"
	"github.com/coopcredito/solicitudes-backend/internal/models"
	"github.com/coopcredito/solicitudes-backend/internal/utils"
)

// SignatureProcess tracks the multi-party signing of an approved application.
// Signatory events arrive from an external provider and may be duplicated.
type SignatureProcess struct {
	db     *gorm.DB
	ledger *TimelineLedger
	clock  Clock
	ttl    time.Duration
	locks  *SolicitudLocks
}

type SignatoryInput struct {
	SignerID string `json:"signer_id" validate:"required,max=100"`
	Role     string `json:"role" validate:"required,max=50"`
}

type InitiateSignatureRequest struct {
	Signatories []SignatoryInput `json:"signatories"`
}

type SignatoryEventRequest struct {
	SignerID string                `json:"signer_id" validate:"required,max=100"`
	State    models.SignatoryState `json:"state" validate:"required,oneof=SIGNED REJECTED"`
}

func NewSignatureProcess(db *gorm.DB, ledger *TimelineLedger, clock Clock, ttl time.Duration, locks *SolicitudLocks) *SignatureProcess {
	return &SignatureProcess{
		db:     db,
		ledger: ledger,
		clock:  clock,
		ttl:    ttl,
		locks:  locks,
	}
}

// Initiate opens a PENDING transaction for an application in a
// signature-eligible state. At most one PENDING transaction exists per
// application.
func (p *SignatureProcess) Initiate(ctx context.Context, solicitudID uuid.UUID, signatories []SignatoryInput) (*models.SignatureTransaction, error) {
	if len(signatories) == 0 {
		return nil, &InvalidInputError{Field: "signatories", Reason: "at least one signatory is required"}
	}

	seen := make(map[string]struct{}, len(signatories))
	for i := range signatories {
		if err := utils.ValidateStruct(&signatories[i]); err != nil {
			return nil, &InvalidInputError{Field: fmt.Sprintf("signatories[%d]", i), Reason: err.Error()}
		}
		if _, dup := seen[signatories[i].SignerID]; dup {
			return nil, &InvalidInputError{Field: "signatories", Reason: "duplicate signer " + signatories[i].SignerID}
		}
		seen[signatories[i].SignerID] = struct{}{}
	}

	unlock := p.locks.Lock(solicitudID)
	defer unlock()

	var transaction *models.SignatureTransaction
	err := database.WithTransaction(p.db.WithContext(ctx), func(tx *gorm.DB) error {
		var solicitud models.SolicitudCredito
		if err := tx.Scopes(notArchived).First(&solicitud, "id = ?", solicitudID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return &NotFoundError{Resource: "solicitud", ID: solicitudID.String()}
			}
			return fmt.Errorf("failed to fetch solicitud: %w", err)
		}

		if !solicitud.EstadoCodigo.IsSignatureEligible() {
			return &InvalidStateError{
				Resource: "solicitud",
				ID:       solicitudID.String(),
				State:    string(solicitud.EstadoCodigo),
				Reason:   "signing requires an approved application",
			}
		}

		var pending int64
		if err := tx.Model(&models.SignatureTransaction{}).
			Where("solicitud_id = ? AND state = ?", solicitudID, models.SignatureStatePending).
			Count(&pending).Error; err != nil {
			return fmt.Errorf("failed to check pending signatures: %w", err)
		}
		if pending > 0 {
			return &InvalidStateError{
				Resource: "solicitud",
				ID:       solicitudID.String(),
				State:    string(solicitud.EstadoCodigo),
				Reason:   "a signature transaction is already pending",
			}
		}

		now := p.clock.Now()
		transaction = &models.SignatureTransaction{
			SolicitudID: solicitudID,
			State:       models.SignatureStatePending,
			Deadline:    now.Add(p.ttl),
		}
		for i, s := range signatories {
			transaction.Signatories = append(transaction.Signatories, models.Signatory{
				SignerID: s.SignerID,
				Position: i + 1,
				Role:     s.Role,
				State:    models.SignatoryStatePending,
			})
		}

		if err := tx.Create(transaction).Error; err != nil {
			return fmt.Errorf("failed to create signature transaction: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"solicitud_id":   solicitudID,
		"transaction_id": transaction.ID,
		"signatories":    len(transaction.Signatories),
	}).Info("Signature transaction initiated")

	return transaction, nil
}

// RecordSignatoryEvent applies one provider callback. Repeating an event the
// signatory already reflects is a no-op, even after the transaction ended.
func (p *SignatureProcess) RecordSignatoryEvent(ctx context.Context, transactionID uuid.UUID, signerID string, newState models.SignatoryState) (*models.SignatureTransaction, error) {
	if newState != models.SignatoryStateSigned && newState != models.SignatoryStateRejected {
		return nil, &InvalidInputError{Field: "state", Reason: "must be SIGNED or REJECTED"}
	}

	return p.mutate(ctx, transactionID, nil, func(tx *gorm.DB, t *models.SignatureTransaction, now time.Time) (string, error) {
		idx := -1
		for i := range t.Signatories {
			if t.Signatories[i].SignerID == signerID {
				idx = i
				break
			}
		}
		if idx < 0 {
			return "", &NotFoundError{Resource: "signatory", ID: signerID}
		}

		signatory := &t.Signatories[idx]
		if signatory.State == newState {
			return "", nil
		}
		if t.State.IsTerminal() {
			return "", &InvalidStateError{Resource: "signature transaction", ID: t.ID.String(), State: string(t.State), Reason: "transaction already finished"}
		}
		if signatory.State != models.SignatoryStatePending {
			return "", &InvalidStateError{Resource: "signatory", ID: signerID, State: string(signatory.State), Reason: "signatory already responded"}
		}

		updates := map[string]interface{}{"state": newState}
		if newState == models.SignatoryStateSigned {
			updates["signed_at"] = now
		}
		if err := tx.Model(signatory).Updates(updates).Error; err != nil {
			return "", fmt.Errorf("failed to update signatory: %w", err)
		}
		signatory.State = newState
		if newState == models.SignatoryStateSigned {
			signatory.SignedAt = &now
		}

		aggregate := t.Aggregate()
		if aggregate == t.State {
			return "", nil
		}
		if err := p.finish(tx, t, aggregate, now); err != nil {
			return "", err
		}

		if aggregate == models.SignatureStateSigned {
			return "Firma digital completada por todos los firmantes", nil
		}
		return fmt.Sprintf("Firma digital rechazada por %s", signerID), nil
	})
}

// CheckExpiry moves a PENDING transaction past its deadline to EXPIRED.
// Otherwise the transaction is returned unchanged.
func (p *SignatureProcess) CheckExpiry(ctx context.Context, transactionID uuid.UUID, now time.Time) (*models.SignatureTransaction, error) {
	return p.mutate(ctx, transactionID, nil, func(tx *gorm.DB, t *models.SignatureTransaction, _ time.Time) (string, error) {
		if t.State != models.SignatureStatePending || !now.After(t.Deadline) {
			return "", nil
		}
		if err := p.finish(tx, t, models.SignatureStateExpired, now); err != nil {
			return "", err
		}
		return "Proceso de firma expirado sin completarse", nil
	})
}

// Cancel aborts a PENDING transaction.
func (p *SignatureProcess) Cancel(ctx context.Context, transactionID uuid.UUID, actor *string) (*models.SignatureTransaction, error) {
	return p.mutate(ctx, transactionID, actor, func(tx *gorm.DB, t *models.SignatureTransaction, now time.Time) (string, error) {
		if t.State != models.SignatureStatePending {
			return "", &InvalidStateError{Resource: "signature transaction", ID: t.ID.String(), State: string(t.State), Reason: "only pending transactions can be cancelled"}
		}
		if err := p.finish(tx, t, models.SignatureStateCancelled, now); err != nil {
			return "", err
		}
		return "Proceso de firma cancelado", nil
	})
}

func (p *SignatureProcess) Get(ctx context.Context, transactionID uuid.UUID) (*models.SignatureTransaction, error) {
	return loadSignatureTransaction(p.db.WithContext(ctx), transactionID)
}

// ForSolicitud lists the application's transactions, newest first.
func (p *SignatureProcess) ForSolicitud(ctx context.Context, solicitudID uuid.UUID) ([]models.SignatureTransaction, error) {
	var transactions []models.SignatureTransaction
	if err := p.db.WithContext(ctx).
		Preload("Signatories", orderSignatories).
		Where("solicitud_id = ?", solicitudID).
		Order("created_at DESC").
		Find(&transactions).Error; err != nil {
		return nil, fmt.Errorf("failed to fetch signature transactions: %w", err)
	}
	return transactions, nil
}

// PendingIDs returns the transactions still waiting on signatories.
func (p *SignatureProcess) PendingIDs(ctx context.Context) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	if err := p.db.WithContext(ctx).Model(&models.SignatureTransaction{}).
		Where("state = ?", models.SignatureStatePending).
		Order("deadline ASC").
		Pluck("id", &ids).Error; err != nil {
		return nil, fmt.Errorf("failed to fetch pending signature transactions: %w", err)
	}
	return ids, nil
}

// mutate runs fn under the owning application's lock inside one database
// transaction. A non-empty annotation returned by fn is appended to the
// application's ledger in that same transaction.
func (p *SignatureProcess) mutate(ctx context.Context, transactionID uuid.UUID, actor *string, fn func(tx *gorm.DB, t *models.SignatureTransaction, now time.Time) (string, error)) (*models.SignatureTransaction, error) {
	existing, err := loadSignatureTransaction(p.db.WithContext(ctx), transactionID)
	if err != nil {
		return nil, err
	}

	unlock := p.locks.Lock(existing.SolicitudID)
	defer unlock()

	var transaction *models.SignatureTransaction
	err = database.WithTransaction(p.db.WithContext(ctx), func(tx *gorm.DB) error {
		t, err := loadSignatureTransaction(tx, transactionID)
		if err != nil {
			return err
		}

		annotation, err := fn(tx, t, p.clock.Now())
		if err != nil {
			return err
		}

		if annotation != "" {
			var solicitud models.SolicitudCredito
			if err := tx.Select("id", "estado_codigo").First(&solicitud, "id = ?", t.SolicitudID).Error; err != nil {
				return fmt.Errorf("failed to fetch solicitud for signature annotation: %w", err)
			}
			if _, err := p.ledger.WithTx(tx).Append(ctx, t.SolicitudID, solicitud.EstadoCodigo, annotation, actor, actor == nil); err != nil {
				return err
			}
		}

		transaction = t
		return nil
	})
	if err != nil {
		return nil, err
	}

	return transaction, nil
}

func (p *SignatureProcess) finish(tx *gorm.DB, t *models.SignatureTransaction, state models.SignatureState, now time.Time) error {
	result := tx.Model(&models.SignatureTransaction{}).
		Where("id = ? AND state = ?", t.ID, models.SignatureStatePending).
		Updates(map[string]interface{}{"state": state, "completed_at": now})
	if result.Error != nil {
		return fmt.Errorf("failed to update signature transaction: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return &ConcurrencyConflictError{SolicitudID: t.SolicitudID.String()}
	}

	t.State = state
	t.CompletedAt = &now

	logrus.WithFields(logrus.Fields{
		"solicitud_id":   t.SolicitudID,
		"transaction_id": t.ID,
		"state":          state,
	}).Info("Signature transaction finished")

	return nil
}

func loadSignatureTransaction(db *gorm.DB, transactionID uuid.UUID) (*models.SignatureTransaction, error) {
	var transaction models.SignatureTransaction
	if err := db.Preload("Signatories", orderSignatories).First(&transaction, "id = ?", transactionID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &NotFoundError{Resource: "signature transaction", ID: transactionID.String()}
		}
		return nil, fmt.Errorf("failed to fetch signature transaction: %w", err)
	}
	return &transaction, nil
}

func orderSignatories(db *gorm.DB) *gorm.DB {
	return db.Order("position ASC")
}
