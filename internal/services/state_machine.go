// internal/services/state_machine.go
package services

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/coopcredito/solicitudes-backend/internal/database"
	"github.com/coopcredito/solicitudes-backend/internal/models"
	"github.com/coopcredito/solicitudes-backend/internal/utils"
)

// DocumentPolicy decides what happens when an approval-class transition is
// requested while mandatory documents are missing.
type DocumentPolicy string

const (
	DocumentPolicyEnforce DocumentPolicy = "enforce"
	DocumentPolicyWarn    DocumentPolicy = "warn"
)

var errNumberTaken = errors.New("application number already taken")

// Notifier is told about committed state changes. It runs detached from the
// transition and its failures are only logged.
type Notifier interface {
	NotifyStateChange(ctx context.Context, solicitud *models.SolicitudCredito, from, to models.EstadoCodigo, description string) error
}

// StateMachine is the only writer of SolicitudCredito.EstadoCodigo. Every
// change is validated against the registry and recorded in the ledger within
// the same database transaction.
type StateMachine struct {
	db       *gorm.DB
	registry *EstadoRegistry
	ledger   *TimelineLedger
	gate     *DocumentGate
	numbers  *NumberGenerator
	locks    *SolicitudLocks
	clock    Clock
	policy   DocumentPolicy
	notifier Notifier
}

type CreateSolicitudRequest struct {
	MontoSolicitado decimal.Decimal `json:"monto_solicitado"`
	PlazoMeses      int             `json:"plazo_meses" validate:"required,min=1,max=360"`
	TasaInteres     decimal.Decimal `json:"tasa_interes"`
	DestinoCredito  string          `json:"destino_credito" validate:"required,max=255"`
}

type TransitionRequest struct {
	Target        models.EstadoCodigo `json:"target" validate:"required"`
	Description   string              `json:"description" validate:"max=2000"`
	MontoAprobado *decimal.Decimal    `json:"monto_aprobado,omitempty"`
}

type SolicitudFilter struct {
	utils.PaginationParams
	OwnerUsername   *string
	EstadoCodigo    *models.EstadoCodigo
	IncludeArchived bool
}

type transitionOptions struct {
	montoAprobado *decimal.Decimal
}

type TransitionOption func(*transitionOptions)

// WithMontoAprobado records the approved amount on arrival at a state that
// bears one.
func WithMontoAprobado(monto decimal.Decimal) TransitionOption {
	return func(o *transitionOptions) {
		o.montoAprobado = &monto
	}
}

func NewStateMachine(db *gorm.DB, registry *EstadoRegistry, ledger *TimelineLedger, gate *DocumentGate, numbers *NumberGenerator, locks *SolicitudLocks, clock Clock, policy DocumentPolicy) *StateMachine {
	if policy == "" {
		policy = DocumentPolicyEnforce
	}
	return &StateMachine{
		db:       db,
		registry: registry,
		ledger:   ledger,
		gate:     gate,
		numbers:  numbers,
		locks:    locks,
		clock:    clock,
		policy:   policy,
	}
}

func (m *StateMachine) SetNotifier(notifier Notifier) {
	m.notifier = notifier
}

func (m *StateMachine) Registry() *EstadoRegistry {
	return m.registry
}

// Create assigns a number and the initial state, and records the creation in
// the ledger.
func (m *StateMachine) Create(ctx context.Context, req *CreateSolicitudRequest, owner string) (*models.SolicitudCredito, error) {
	if strings.TrimSpace(owner) == "" {
		return nil, &InvalidInputError{Field: "owner_username", Reason: "owner is required"}
	}
	if err := utils.ValidateStruct(req); err != nil {
		return nil, &InvalidInputError{Reason: err.Error()}
	}
	if !req.MontoSolicitado.IsPositive() {
		return nil, &InvalidInputError{Field: "monto_solicitado", Reason: "must be greater than zero"}
	}
	if req.TasaInteres.IsNegative() {
		return nil, &InvalidInputError{Field: "tasa_interes", Reason: "must not be negative"}
	}

	initial := m.registry.Initial()

	var solicitud *models.SolicitudCredito
	insert := func(tx *gorm.DB) error {
		numero, err := m.numbers.generateWith(ctx, NewGormNumberStore(tx))
		if err != nil {
			return err
		}

		solicitud = &models.SolicitudCredito{
			NumeroSolicitud: numero,
			OwnerUsername:   owner,
			EstadoCodigo:    initial.Code,
			MontoSolicitado: req.MontoSolicitado,
			MontoAprobado:   decimal.Zero,
			PlazoMeses:      req.PlazoMeses,
			TasaInteres:     req.TasaInteres,
			DestinoCredito:  req.DestinoCredito,
			Version:         1,
		}
		if err := tx.Create(solicitud).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return errNumberTaken
			}
			return fmt.Errorf("failed to create solicitud: %w", err)
		}

		actor := owner
		if _, err := m.ledger.WithTx(tx).Append(ctx, solicitud.ID, initial.Code, "Solicitud registrada", &actor, true); err != nil {
			return err
		}
		return nil
	}

	// Another writer can store the same number between the existence check
	// and the insert; the whole transaction is retried with a fresh number.
	var err error
	attempts := 0
	for attempts < m.numbers.maxAttempts {
		attempts++
		err = database.WithTransaction(m.db.WithContext(ctx), insert)
		if !errors.Is(err, errNumberTaken) {
			break
		}
		logrus.WithField("numero", solicitud.NumeroSolicitud).Warn("Application number taken by another writer, regenerating")
	}
	if errors.Is(err, errNumberTaken) {
		return nil, &GenerationExhaustedError{Year: m.clock.Now().Year(), Attempts: attempts}
	}
	if err != nil {
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"solicitud_id": solicitud.ID,
		"numero":       solicitud.NumeroSolicitud,
		"owner":        owner,
	}).Info("Solicitud created")

	m.notify(ctx, solicitud, "", initial.Code, "Solicitud registrada")

	return solicitud, nil
}

// Transition moves the application to target. Validation, the state change
// and the ledger entry share one database transaction, under the
// application's lock and an optimistic version check.
func (m *StateMachine) Transition(ctx context.Context, id uuid.UUID, target models.EstadoCodigo, description string, actor *string, opts ...TransitionOption) (*models.SolicitudCredito, error) {
	var options transitionOptions
	for _, opt := range opts {
		opt(&options)
	}

	targetState, err := m.registry.Get(target)
	if err != nil {
		return nil, err
	}
	if options.montoAprobado != nil {
		if !target.BearsApprovedAmount() {
			return nil, &InvalidInputError{Field: "monto_aprobado", Reason: fmt.Sprintf("cannot be set on %s", target)}
		}
		if options.montoAprobado.IsNegative() {
			return nil, &InvalidInputError{Field: "monto_aprobado", Reason: "must not be negative"}
		}
	}
	if strings.TrimSpace(description) == "" {
		description = "Cambio de estado a " + targetState.Name
	}

	unlock := m.locks.Lock(id)
	defer unlock()

	var (
		solicitud models.SolicitudCredito
		from      models.EstadoCodigo
	)
	err = database.WithTransaction(m.db.WithContext(ctx), func(tx *gorm.DB) error {
		if err := loadActiveSolicitud(tx, id, &solicitud); err != nil {
			return err
		}
		from = solicitud.EstadoCodigo

		if !m.registry.IsValidTransition(from, target) {
			return &InvalidTransitionError{From: from, To: target}
		}

		if target.IsApprovalClass() {
			missing, err := m.gate.WithTx(tx).MissingRequirements(ctx, id)
			if err != nil {
				return err
			}
			if len(missing) > 0 {
				if m.policy == DocumentPolicyEnforce {
					return &DocumentsIncompleteError{SolicitudID: id.String(), Missing: missing}
				}
				logrus.WithFields(logrus.Fields{
					"solicitud_id": id,
					"target":       target,
					"missing":      missing,
				}).Warn("Approving solicitud with incomplete documents")
			}
		}

		updates := map[string]interface{}{
			"estado_codigo": target,
			"version":       solicitud.Version + 1,
			"updated_at":    m.clock.Now(),
		}
		if options.montoAprobado != nil {
			updates["monto_aprobado"] = *options.montoAprobado
		}

		result := tx.Model(&models.SolicitudCredito{}).
			Where("id = ? AND version = ?", id, solicitud.Version).
			Updates(updates)
		if result.Error != nil {
			return fmt.Errorf("failed to update solicitud state: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			return &ConcurrencyConflictError{SolicitudID: id.String()}
		}

		if _, err := m.ledger.WithTx(tx).Append(ctx, id, target, description, actor, actor == nil); err != nil {
			return err
		}

		return tx.First(&solicitud, "id = ?", id).Error
	})
	if err != nil {
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"solicitud_id": id,
		"from":         from,
		"to":           target,
		"automatic":    actor == nil,
	}).Info("Solicitud transitioned")

	m.notify(ctx, &solicitud, from, target, description)

	return &solicitud, nil
}

// AddNote appends a human annotation for the current state without changing it.
func (m *StateMachine) AddNote(ctx context.Context, id uuid.UUID, description string, actor string) (*models.TimelineEntry, error) {
	if strings.TrimSpace(description) == "" {
		return nil, &InvalidInputError{Field: "description", Reason: "note text is required"}
	}

	unlock := m.locks.Lock(id)
	defer unlock()

	var entry *models.TimelineEntry
	err := database.WithTransaction(m.db.WithContext(ctx), func(tx *gorm.DB) error {
		var solicitud models.SolicitudCredito
		if err := loadActiveSolicitud(tx, id, &solicitud); err != nil {
			return err
		}

		var err error
		entry, err = m.ledger.WithTx(tx).Append(ctx, id, solicitud.EstadoCodigo, description, &actor, false)
		return err
	})
	if err != nil {
		return nil, err
	}

	return entry, nil
}

// Archive places a tombstone on the application. Archived applications keep
// their number and history but are invisible to every other operation.
func (m *StateMachine) Archive(ctx context.Context, id uuid.UUID, actor string) error {
	unlock := m.locks.Lock(id)
	defer unlock()

	return database.WithTransaction(m.db.WithContext(ctx), func(tx *gorm.DB) error {
		var solicitud models.SolicitudCredito
		if err := loadActiveSolicitud(tx, id, &solicitud); err != nil {
			return err
		}

		now := m.clock.Now()
		if err := m.bumpVersion(tx, &solicitud, map[string]interface{}{
			"archived_at": now,
			"archived_by": actor,
		}); err != nil {
			return err
		}

		_, err := m.ledger.WithTx(tx).Append(ctx, id, solicitud.EstadoCodigo, "Solicitud archivada", &actor, false)
		return err
	})
}

// Restore removes the tombstone.
func (m *StateMachine) Restore(ctx context.Context, id uuid.UUID, actor string) (*models.SolicitudCredito, error) {
	unlock := m.locks.Lock(id)
	defer unlock()

	var solicitud, restored models.SolicitudCredito
	err := database.WithTransaction(m.db.WithContext(ctx), func(tx *gorm.DB) error {
		if err := tx.First(&solicitud, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return &NotFoundError{Resource: "solicitud", ID: id.String()}
			}
			return fmt.Errorf("failed to fetch solicitud: %w", err)
		}
		if !solicitud.IsArchived() {
			return &InvalidStateError{Resource: "solicitud", ID: id.String(), State: string(solicitud.EstadoCodigo), Reason: "solicitud is not archived"}
		}

		if err := m.bumpVersion(tx, &solicitud, map[string]interface{}{
			"archived_at": nil,
			"archived_by": nil,
		}); err != nil {
			return err
		}

		if _, err := m.ledger.WithTx(tx).Append(ctx, id, solicitud.EstadoCodigo, "Solicitud restaurada", &actor, false); err != nil {
			return err
		}
		// gorm leaves pointer fields alone when the column is NULL
		return tx.First(&restored, "id = ?", id).Error
	})
	if err != nil {
		return nil, err
	}

	return &restored, nil
}

func (m *StateMachine) Get(ctx context.Context, id uuid.UUID) (*models.SolicitudCredito, error) {
	var solicitud models.SolicitudCredito
	if err := loadActiveSolicitud(m.db.WithContext(ctx), id, &solicitud); err != nil {
		return nil, err
	}
	return &solicitud, nil
}

func (m *StateMachine) List(ctx context.Context, filter SolicitudFilter) ([]models.SolicitudCredito, int64, error) {
	query := m.db.WithContext(ctx).Model(&models.SolicitudCredito{})
	if !filter.IncludeArchived {
		query = query.Scopes(notArchived)
	}
	if filter.OwnerUsername != nil {
		query = query.Where("owner_username = ?", *filter.OwnerUsername)
	}
	if filter.EstadoCodigo != nil {
		query = query.Where("estado_codigo = ?", *filter.EstadoCodigo)
	}
	if filter.Search != "" {
		query = query.Where("numero_solicitud LIKE ?", "%"+filter.Search+"%")
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count solicitudes: %w", err)
	}

	allowedSortFields := []string{"created_at", "updated_at", "numero_solicitud", "estado_codigo", "monto_solicitado"}
	query = utils.ApplySort(query, filter.PaginationParams, allowedSortFields)
	query = utils.ApplyPagination(query, filter.PaginationParams)

	var solicitudes []models.SolicitudCredito
	if err := query.Find(&solicitudes).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to fetch solicitudes: %w", err)
	}

	return solicitudes, total, nil
}

// History returns the full ledger of an active application.
func (m *StateMachine) History(ctx context.Context, id uuid.UUID, order HistoryOrder) ([]models.TimelineEntry, error) {
	if err := ensureSolicitudActive(m.db.WithContext(ctx), id); err != nil {
		return nil, err
	}
	return m.ledger.History(ctx, id, order)
}

// HistorySeq is the lazy form of History.
func (m *StateMachine) HistorySeq(ctx context.Context, id uuid.UUID, order HistoryOrder, pageSize int) (iter.Seq2[models.TimelineEntry, error], error) {
	if err := ensureSolicitudActive(m.db.WithContext(ctx), id); err != nil {
		return nil, err
	}
	return m.ledger.HistorySeq(ctx, id, order, pageSize), nil
}

func (m *StateMachine) bumpVersion(tx *gorm.DB, solicitud *models.SolicitudCredito, updates map[string]interface{}) error {
	updates["version"] = solicitud.Version + 1
	updates["updated_at"] = m.clock.Now()

	result := tx.Model(&models.SolicitudCredito{}).
		Where("id = ? AND version = ?", solicitud.ID, solicitud.Version).
		Updates(updates)
	if result.Error != nil {
		return fmt.Errorf("failed to update solicitud: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return &ConcurrencyConflictError{SolicitudID: solicitud.ID.String()}
	}
	return nil
}

func (m *StateMachine) notify(ctx context.Context, solicitud *models.SolicitudCredito, from, to models.EstadoCodigo, description string) {
	if m.notifier == nil {
		return
	}

	snapshot := *solicitud
	detached := context.WithoutCancel(ctx)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				logrus.WithField("panic", r).Error("State change notifier panicked")
			}
		}()

		if err := m.notifier.NotifyStateChange(detached, &snapshot, from, to, description); err != nil {
			logrus.WithError(err).WithFields(logrus.Fields{
				"solicitud_id": snapshot.ID,
				"to":           to,
			}).Warn("Failed to notify state change")
		}
	}()
}

func loadActiveSolicitud(db *gorm.DB, id uuid.UUID, dest *models.SolicitudCredito) error {
	if err := db.Scopes(notArchived).First(dest, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return &NotFoundError{Resource: "solicitud", ID: id.String()}
		}
		return fmt.Errorf("failed to fetch solicitud: %w", err)
	}
	return nil
}
