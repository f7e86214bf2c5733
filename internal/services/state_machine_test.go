package services

import (
	"context"
	"errors"
	"regexp"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"
	"gorm.io/gorm"

	"github.com/coopcredito/solicitudes-backend/internal/models"
)

type StateMachineTestSuite struct {
	suite.Suite
	w   *workflow
	ctx context.Context
}

func (s *StateMachineTestSuite) SetupTest() {
	s.w = newWorkflow(s.T(), DocumentPolicyEnforce)
	s.ctx = context.Background()
}

func TestStateMachineTestSuite(t *testing.T) {
	suite.Run(t, new(StateMachineTestSuite))
}

func (s *StateMachineTestSuite) estadoOf(id uuid.UUID) (models.EstadoCodigo, int) {
	var row models.SolicitudCredito
	s.Require().NoError(s.w.db.Select("estado_codigo", "version").First(&row, "id = ?", id).Error)
	return row.EstadoCodigo, row.Version
}

func (s *StateMachineTestSuite) TestCreate() {
	solicitud := s.w.create(s.T(), "ana.gomez")

	s.Equal(models.EstadoPostulado, solicitud.EstadoCodigo)
	s.Equal("SOL-2026-000001", solicitud.NumeroSolicitud)
	s.Equal(1, solicitud.Version)
	s.True(solicitud.MontoAprobado.IsZero())

	history, err := s.w.machine.History(s.ctx, solicitud.ID, HistoryAsc)
	s.Require().NoError(err)
	s.Require().Len(history, 1)
	s.Equal(models.EstadoPostulado, history[0].EstadoCodigo)
	s.Equal("Solicitud registrada", history[0].Description)
	s.Equal(1, history[0].Seq)

	second := s.w.create(s.T(), "luis.perez")
	s.Regexp(regexp.MustCompile(`^SOL-2026-\d{6}$`), second.NumeroSolicitud)
	s.NotEqual(solicitud.NumeroSolicitud, second.NumeroSolicitud)
}

// takeNumberBeforeInsert stores a competing row with the number Create is
// about to insert, the way a second server instance would.
func (s *StateMachineTestSuite) takeNumberBeforeInsert(name string, times int32) *atomic.Int32 {
	var fired atomic.Int32
	s.Require().NoError(s.w.db.Callback().Create().Before("gorm:create").Register(name, func(d *gorm.DB) {
		solicitud, ok := d.Statement.Dest.(*models.SolicitudCredito)
		if !ok || fired.Load() >= times {
			return
		}
		fired.Add(1)
		if _, err := d.Statement.ConnPool.ExecContext(d.Statement.Context,
			`INSERT INTO solicitudes_credito (id, numero_solicitud, owner_username, estado_codigo, monto_solicitado, monto_aprobado, plazo_meses, tasa_interes, version)
			 VALUES (?, ?, 'otro.servidor', 'POSTULADO', 1, 0, 12, 0, 1)`,
			uuid.New().String(), solicitud.NumeroSolicitud); err != nil {
			d.AddError(err)
		}
	}))
	return &fired
}

func (s *StateMachineTestSuite) TestCreateRegeneratesNumberTakenByAnotherWriter() {
	fired := s.takeNumberBeforeInsert("test:number_taken_once", 1)

	solicitud := s.w.create(s.T(), "ana.gomez")
	s.EqualValues(1, fired.Load())
	s.Equal("SOL-2026-000002", solicitud.NumeroSolicitud)
	s.EqualValues(1, s.w.historyLen(s.T(), solicitud.ID))

	var rows int64
	s.Require().NoError(s.w.db.Model(&models.SolicitudCredito{}).Count(&rows).Error)
	s.EqualValues(1, rows)
}

func (s *StateMachineTestSuite) TestCreateGivesUpWhenEveryNumberIsTaken() {
	fired := s.takeNumberBeforeInsert("test:number_always_taken", 1000)

	_, err := s.w.machine.Create(s.ctx, &CreateSolicitudRequest{
		MontoSolicitado: decimal.NewFromInt(5000000),
		PlazoMeses:      24,
		TasaInteres:     decimal.RequireFromString("1.20"),
	}, "ana.gomez")

	var exhausted *GenerationExhaustedError
	s.Require().ErrorAs(err, &exhausted)
	s.Equal(2026, exhausted.Year)
	s.Equal(s.w.numbers.maxAttempts, exhausted.Attempts)
	s.EqualValues(s.w.numbers.maxAttempts, fired.Load())

	var rows int64
	s.Require().NoError(s.w.db.Model(&models.SolicitudCredito{}).Count(&rows).Error)
	s.Zero(rows)
}

func (s *StateMachineTestSuite) TestCreateValidation() {
	valid := func() *CreateSolicitudRequest {
		return &CreateSolicitudRequest{
			MontoSolicitado: decimal.NewFromInt(5000000),
			PlazoMeses:      24,
			TasaInteres:     decimal.RequireFromString("1.2"),
			DestinoCredito:  "Libre inversión",
		}
	}

	tests := []struct {
		name   string
		owner  string
		mutate func(*CreateSolicitudRequest)
	}{
		{"missing owner", "  ", func(*CreateSolicitudRequest) {}},
		{"zero amount", "ana.gomez", func(r *CreateSolicitudRequest) { r.MontoSolicitado = decimal.Zero }},
		{"negative amount", "ana.gomez", func(r *CreateSolicitudRequest) { r.MontoSolicitado = decimal.NewFromInt(-1) }},
		{"zero term", "ana.gomez", func(r *CreateSolicitudRequest) { r.PlazoMeses = 0 }},
		{"term too long", "ana.gomez", func(r *CreateSolicitudRequest) { r.PlazoMeses = 361 }},
		{"negative rate", "ana.gomez", func(r *CreateSolicitudRequest) { r.TasaInteres = decimal.RequireFromString("-0.5") }},
		{"missing purpose", "ana.gomez", func(r *CreateSolicitudRequest) { r.DestinoCredito = "" }},
	}

	for _, tt := range tests {
		s.Run(tt.name, func() {
			req := valid()
			tt.mutate(req)
			_, err := s.w.machine.Create(s.ctx, req, tt.owner)
			s.Equal(ErrCodeInvalidInput, CodeOf(err))
		})
	}

	var count int64
	s.Require().NoError(s.w.db.Model(&models.SolicitudCredito{}).Count(&count).Error)
	s.Zero(count)
}

func (s *StateMachineTestSuite) TestHappyPath() {
	solicitud := s.w.approve(s.T(), "ana.gomez")
	s.Equal(models.EstadoAprobado, solicitud.EstadoCodigo)
	s.Equal(4, solicitud.Version)

	history, err := s.w.machine.History(s.ctx, solicitud.ID, HistoryAsc)
	s.Require().NoError(err)
	s.Require().Len(history, 4)

	want := []models.EstadoCodigo{models.EstadoPostulado, models.EstadoEnRevision, models.EstadoPreAprobado, models.EstadoAprobado}
	for i, entry := range history {
		s.Equal(want[i], entry.EstadoCodigo)
		s.Equal(i+1, entry.Seq)
		if i > 0 {
			s.True(entry.Timestamp.After(history[i-1].Timestamp))
		}
	}
	s.Equal(history[3].EstadoCodigo, solicitud.EstadoCodigo, "last entry matches the current state")
}

func (s *StateMachineTestSuite) TestIllegalSkipIsRejected() {
	solicitud := s.w.create(s.T(), "ana.gomez")

	_, err := s.w.machine.Transition(s.ctx, solicitud.ID, models.EstadoAprobado, "", strPtr("analista1"))
	var invalid *InvalidTransitionError
	s.Require().ErrorAs(err, &invalid)
	s.Equal(models.EstadoPostulado, invalid.From)
	s.Equal(models.EstadoAprobado, invalid.To)

	estado, version := s.estadoOf(solicitud.ID)
	s.Equal(models.EstadoPostulado, estado)
	s.Equal(1, version)
	s.EqualValues(1, s.w.historyLen(s.T(), solicitud.ID))
}

func (s *StateMachineTestSuite) TestTransitionClosure() {
	registry := s.w.machine.Registry()
	for _, from := range registry.States() {
		for _, to := range registry.States() {
			solicitud := s.w.createAt(s.T(), from.Code)
			before := s.w.historyLen(s.T(), solicitud.ID)

			_, err := s.w.machine.Transition(s.ctx, solicitud.ID, to.Code, "", strPtr("analista1"))
			estado, _ := s.estadoOf(solicitud.ID)

			if registry.IsValidTransition(from.Code, to.Code) {
				s.NoError(err, "%s -> %s", from.Code, to.Code)
				s.Equal(to.Code, estado)
				s.Equal(before+1, s.w.historyLen(s.T(), solicitud.ID))
			} else {
				s.Equal(ErrCodeInvalidTransition, CodeOf(err), "%s -> %s", from.Code, to.Code)
				s.Equal(from.Code, estado)
				s.Equal(before, s.w.historyLen(s.T(), solicitud.ID))
			}
		}
	}
}

func (s *StateMachineTestSuite) TestTerminalStatesAreFinal() {
	registry := s.w.machine.Registry()
	for _, terminal := range registry.TerminalStates() {
		solicitud := s.w.createAt(s.T(), terminal.Code)
		for _, target := range registry.States() {
			_, err := s.w.machine.Transition(s.ctx, solicitud.ID, target.Code, "", nil)
			s.Equal(ErrCodeInvalidTransition, CodeOf(err), "%s -> %s", terminal.Code, target.Code)
		}
	}
}

func (s *StateMachineTestSuite) TestUnknownTargetAndMissingSolicitud() {
	solicitud := s.w.create(s.T(), "ana.gomez")

	_, err := s.w.machine.Transition(s.ctx, solicitud.ID, "INEXISTENTE", "", nil)
	s.Equal(ErrCodeUnknownState, CodeOf(err))

	_, err = s.w.machine.Transition(s.ctx, uuid.New(), models.EstadoEnRevision, "", nil)
	s.Equal(ErrCodeNotFound, CodeOf(err))

	s.EqualValues(1, s.w.historyLen(s.T(), solicitud.ID))
}

func (s *StateMachineTestSuite) TestDescriptionAndActor() {
	solicitud := s.w.create(s.T(), "ana.gomez")

	_, err := s.w.machine.Transition(s.ctx, solicitud.ID, models.EstadoEnRevision, "  ", nil)
	s.Require().NoError(err)
	_, err = s.w.machine.Transition(s.ctx, solicitud.ID, models.EstadoEnEstudio, "Análisis de capacidad de pago", strPtr("analista1"))
	s.Require().NoError(err)

	history, err := s.w.machine.History(s.ctx, solicitud.ID, HistoryAsc)
	s.Require().NoError(err)
	s.Require().Len(history, 3)

	s.Equal("Cambio de estado a En revisión", history[1].Description)
	s.True(history[1].IsAutomatic)
	s.Nil(history[1].ActorUsername)

	s.Equal("Análisis de capacidad de pago", history[2].Description)
	s.False(history[2].IsAutomatic)
	s.Require().NotNil(history[2].ActorUsername)
	s.Equal("analista1", *history[2].ActorUsername)
}

func (s *StateMachineTestSuite) TestMontoAprobado() {
	solicitud := s.w.create(s.T(), "ana.gomez")
	analyst := strPtr("analista1")

	_, err := s.w.machine.Transition(s.ctx, solicitud.ID, models.EstadoEnRevision, "", analyst, WithMontoAprobado(decimal.NewFromInt(1)))
	s.Equal(ErrCodeInvalidInput, CodeOf(err), "EN_REVISION carries no approved amount")

	_, err = s.w.machine.Transition(s.ctx, solicitud.ID, models.EstadoEnRevision, "", analyst)
	s.Require().NoError(err)

	_, err = s.w.machine.Transition(s.ctx, solicitud.ID, models.EstadoPreAprobado, "", analyst, WithMontoAprobado(decimal.NewFromInt(-5)))
	s.Equal(ErrCodeInvalidInput, CodeOf(err))

	updated, err := s.w.machine.Transition(s.ctx, solicitud.ID, models.EstadoPreAprobado, "", analyst, WithMontoAprobado(decimal.NewFromInt(8000000)))
	s.Require().NoError(err)
	s.True(updated.MontoAprobado.Equal(decimal.NewFromInt(8000000)), "got %s", updated.MontoAprobado)

	reloaded, err := s.w.machine.Get(s.ctx, solicitud.ID)
	s.Require().NoError(err)
	s.True(reloaded.MontoAprobado.Equal(decimal.NewFromInt(8000000)))
}

func (s *StateMachineTestSuite) TestLedgerFailureRollsBackState() {
	solicitud := s.w.create(s.T(), "ana.gomez")

	s.Require().NoError(s.w.db.Callback().Create().Before("gorm:create").Register("test:fail_timeline", func(d *gorm.DB) {
		if d.Statement.Table == "timeline_entries" {
			d.AddError(errors.New("ledger unavailable"))
		}
	}))

	_, err := s.w.machine.Transition(s.ctx, solicitud.ID, models.EstadoEnRevision, "", strPtr("analista1"))
	s.Require().Error(err)
	s.Contains(err.Error(), "ledger unavailable")

	estado, version := s.estadoOf(solicitud.ID)
	s.Equal(models.EstadoPostulado, estado)
	s.Equal(1, version)
	s.EqualValues(1, s.w.historyLen(s.T(), solicitud.ID))
}

func (s *StateMachineTestSuite) TestStateUpdateFailureLeavesLedgerUntouched() {
	solicitud := s.w.create(s.T(), "ana.gomez")

	s.Require().NoError(s.w.db.Callback().Update().Before("gorm:update").Register("test:fail_solicitud", func(d *gorm.DB) {
		if d.Statement.Table == "solicitudes_credito" {
			d.AddError(errors.New("write refused"))
		}
	}))

	_, err := s.w.machine.Transition(s.ctx, solicitud.ID, models.EstadoEnRevision, "", strPtr("analista1"))
	s.Require().Error(err)

	estado, version := s.estadoOf(solicitud.ID)
	s.Equal(models.EstadoPostulado, estado)
	s.Equal(1, version)
	s.EqualValues(1, s.w.historyLen(s.T(), solicitud.ID))
}

func (s *StateMachineTestSuite) TestVersionConflict() {
	solicitud := s.w.create(s.T(), "ana.gomez")

	var fired atomic.Bool
	s.Require().NoError(s.w.db.Callback().Update().Before("gorm:update").Register("test:concurrent_writer", func(d *gorm.DB) {
		if d.Statement.Table != "solicitudes_credito" || !fired.CompareAndSwap(false, true) {
			return
		}
		if _, err := d.Statement.ConnPool.ExecContext(d.Statement.Context,
			"UPDATE solicitudes_credito SET version = version + 1 WHERE id = ?", solicitud.ID.String()); err != nil {
			d.AddError(err)
		}
	}))

	_, err := s.w.machine.Transition(s.ctx, solicitud.ID, models.EstadoEnRevision, "", strPtr("analista1"))
	s.Equal(ErrCodeConcurrencyConflict, CodeOf(err))
	s.True(fired.Load())

	estado, version := s.estadoOf(solicitud.ID)
	s.Equal(models.EstadoPostulado, estado)
	s.Equal(1, version)
	s.EqualValues(1, s.w.historyLen(s.T(), solicitud.ID))

	// A retry after reloading goes through
	_, err = s.w.machine.Transition(s.ctx, solicitud.ID, models.EstadoEnRevision, "", strPtr("analista1"))
	s.NoError(err)
}

func (s *StateMachineTestSuite) TestConcurrentTransitionsSerialize() {
	solicitud := s.w.create(s.T(), "ana.gomez")

	const callers = 10
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		rejected  int
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.w.machine.Transition(s.ctx, solicitud.ID, models.EstadoEnRevision, "", strPtr("analista1"))

			mu.Lock()
			defer mu.Unlock()
			switch CodeOf(err) {
			case ErrCodeNone:
				succeeded++
			case ErrCodeInvalidTransition:
				rejected++
			}
		}()
	}
	wg.Wait()

	s.Equal(1, succeeded)
	s.Equal(callers-1, rejected)
	s.EqualValues(2, s.w.historyLen(s.T(), solicitud.ID))

	estado, version := s.estadoOf(solicitud.ID)
	s.Equal(models.EstadoEnRevision, estado)
	s.Equal(2, version)
}

func (s *StateMachineTestSuite) TestApprovalRequiresDocuments() {
	registerRequirement(s.T(), s.w.gate, "CEDULA", true)
	registerRequirement(s.T(), s.w.gate, "EXTRACTOS", false)

	solicitud := s.w.create(s.T(), "ana.gomez")
	analyst := strPtr("analista1")
	for _, target := range []models.EstadoCodigo{models.EstadoEnRevision, models.EstadoPreAprobado} {
		_, err := s.w.machine.Transition(s.ctx, solicitud.ID, target, "", analyst)
		s.Require().NoError(err, "only approval is gated")
	}

	_, err := s.w.machine.Transition(s.ctx, solicitud.ID, models.EstadoAprobado, "", analyst)
	var incomplete *DocumentsIncompleteError
	s.Require().ErrorAs(err, &incomplete)
	s.Equal([]models.DocumentType{"CEDULA"}, incomplete.Missing)

	estado, _ := s.estadoOf(solicitud.ID)
	s.Equal(models.EstadoPreAprobado, estado)
	s.EqualValues(3, s.w.historyLen(s.T(), solicitud.ID))

	document := submit(s.T(), s.w.gate, solicitud.ID, "CEDULA")
	_, err = s.w.machine.Transition(s.ctx, solicitud.ID, models.EstadoAprobado, "", analyst)
	s.Equal(ErrCodeDocumentsIncomplete, CodeOf(err), "pending review does not count")

	_, err = s.w.gate.SetState(s.ctx, document.ID, models.DocumentStateApproved, analyst)
	s.Require().NoError(err)

	approved, err := s.w.machine.Transition(s.ctx, solicitud.ID, models.EstadoAprobado, "", analyst)
	s.Require().NoError(err)
	s.Equal(models.EstadoAprobado, approved.EstadoCodigo)
}

func (s *StateMachineTestSuite) TestWarnPolicyAllowsIncompleteApproval() {
	w := newWorkflow(s.T(), DocumentPolicyWarn)
	registerRequirement(s.T(), w.gate, "CEDULA", true)

	solicitud := w.approve(s.T(), "ana.gomez")
	s.Equal(models.EstadoAprobado, solicitud.EstadoCodigo)
}

func (s *StateMachineTestSuite) TestAddNote() {
	solicitud := s.w.create(s.T(), "ana.gomez")

	entry, err := s.w.machine.AddNote(s.ctx, solicitud.ID, "Cliente llamó para confirmar datos", "analista1")
	s.Require().NoError(err)
	s.Equal(models.EstadoPostulado, entry.EstadoCodigo)
	s.Equal(2, entry.Seq)
	s.False(entry.IsAutomatic)

	estado, version := s.estadoOf(solicitud.ID)
	s.Equal(models.EstadoPostulado, estado)
	s.Equal(1, version)

	_, err = s.w.machine.AddNote(s.ctx, solicitud.ID, " ", "analista1")
	s.Equal(ErrCodeInvalidInput, CodeOf(err))

	_, err = s.w.machine.AddNote(s.ctx, uuid.New(), "nota", "analista1")
	s.Equal(ErrCodeNotFound, CodeOf(err))
}

func (s *StateMachineTestSuite) TestArchiveAndRestore() {
	solicitud := s.w.create(s.T(), "ana.gomez")

	s.Require().NoError(s.w.machine.Archive(s.ctx, solicitud.ID, "admin"))

	_, err := s.w.machine.Get(s.ctx, solicitud.ID)
	s.Equal(ErrCodeNotFound, CodeOf(err))
	_, err = s.w.machine.History(s.ctx, solicitud.ID, HistoryAsc)
	s.Equal(ErrCodeNotFound, CodeOf(err))
	_, err = s.w.machine.Transition(s.ctx, solicitud.ID, models.EstadoEnRevision, "", nil)
	s.Equal(ErrCodeNotFound, CodeOf(err))
	s.Equal(ErrCodeNotFound, CodeOf(s.w.machine.Archive(s.ctx, solicitud.ID, "admin")))

	restored, err := s.w.machine.Restore(s.ctx, solicitud.ID, "admin")
	s.Require().NoError(err)
	s.False(restored.IsArchived())
	s.Nil(restored.ArchivedBy)
	s.Equal(solicitud.NumeroSolicitud, restored.NumeroSolicitud)

	var stored models.SolicitudCredito
	s.Require().NoError(s.w.db.First(&stored, "id = ?", solicitud.ID).Error)
	s.Nil(stored.ArchivedAt)
	s.Equal(stored.Version, restored.Version)

	history, err := s.w.machine.History(s.ctx, solicitud.ID, HistoryAsc)
	s.Require().NoError(err)
	s.Require().Len(history, 3)
	s.Equal("Solicitud archivada", history[1].Description)
	s.Equal("Solicitud restaurada", history[2].Description)

	_, err = s.w.machine.Restore(s.ctx, solicitud.ID, "admin")
	s.Equal(ErrCodeInvalidState, CodeOf(err))

	_, err = s.w.machine.Restore(s.ctx, uuid.New(), "admin")
	s.Equal(ErrCodeNotFound, CodeOf(err))
}

func (s *StateMachineTestSuite) TestList() {
	first := s.w.create(s.T(), "ana.gomez")
	s.w.create(s.T(), "ana.gomez")
	other := s.w.create(s.T(), "luis.perez")
	_, err := s.w.machine.Transition(s.ctx, other.ID, models.EstadoEnRevision, "", nil)
	s.Require().NoError(err)
	s.Require().NoError(s.w.machine.Archive(s.ctx, first.ID, "admin"))

	_, total, err := s.w.machine.List(s.ctx, SolicitudFilter{})
	s.Require().NoError(err)
	s.EqualValues(2, total)

	_, total, err = s.w.machine.List(s.ctx, SolicitudFilter{IncludeArchived: true})
	s.Require().NoError(err)
	s.EqualValues(3, total)

	owner := "ana.gomez"
	owned, total, err := s.w.machine.List(s.ctx, SolicitudFilter{OwnerUsername: &owner})
	s.Require().NoError(err)
	s.EqualValues(1, total)
	s.Require().Len(owned, 1)
	s.NotEqual(first.ID, owned[0].ID)

	estado := models.EstadoEnRevision
	inReview, total, err := s.w.machine.List(s.ctx, SolicitudFilter{EstadoCodigo: &estado})
	s.Require().NoError(err)
	s.EqualValues(1, total)
	s.Require().Len(inReview, 1)
	s.Equal(other.ID, inReview[0].ID)

	filter := SolicitudFilter{IncludeArchived: true}
	filter.Search = other.NumeroSolicitud
	found, _, err := s.w.machine.List(s.ctx, filter)
	s.Require().NoError(err)
	s.Require().Len(found, 1)
	s.Equal(other.ID, found[0].ID)
}

func (s *StateMachineTestSuite) TestHistorySeq() {
	solicitud := s.w.approve(s.T(), "ana.gomez")

	seq, err := s.w.machine.HistorySeq(s.ctx, solicitud.ID, HistoryDesc, 3)
	s.Require().NoError(err)

	var estados []models.EstadoCodigo
	for entry, err := range seq {
		s.Require().NoError(err)
		estados = append(estados, entry.EstadoCodigo)
	}
	s.Equal([]models.EstadoCodigo{models.EstadoAprobado, models.EstadoPreAprobado, models.EstadoEnRevision, models.EstadoPostulado}, estados)

	_, err = s.w.machine.HistorySeq(s.ctx, uuid.New(), HistoryAsc, 3)
	s.Equal(ErrCodeNotFound, CodeOf(err))
}

type stateChange struct {
	from models.EstadoCodigo
	to   models.EstadoCodigo
}

type recordingNotifier struct {
	changes chan stateChange
	err     error
	panics  bool
}

func (n *recordingNotifier) NotifyStateChange(_ context.Context, _ *models.SolicitudCredito, from, to models.EstadoCodigo, _ string) error {
	n.changes <- stateChange{from: from, to: to}
	if n.panics {
		panic("notifier exploded")
	}
	return n.err
}

func (s *StateMachineTestSuite) awaitChange(changes <-chan stateChange) stateChange {
	select {
	case change := <-changes:
		return change
	case <-time.After(2 * time.Second):
		s.FailNow("notifier was not called")
		return stateChange{}
	}
}

func (s *StateMachineTestSuite) TestNotifierReceivesCommittedChanges() {
	notifier := &recordingNotifier{changes: make(chan stateChange, 4)}
	s.w.machine.SetNotifier(notifier)

	solicitud := s.w.create(s.T(), "ana.gomez")
	s.Equal(stateChange{from: "", to: models.EstadoPostulado}, s.awaitChange(notifier.changes))

	_, err := s.w.machine.Transition(s.ctx, solicitud.ID, models.EstadoEnRevision, "", nil)
	s.Require().NoError(err)
	s.Equal(stateChange{from: models.EstadoPostulado, to: models.EstadoEnRevision}, s.awaitChange(notifier.changes))

	_, err = s.w.machine.Transition(s.ctx, solicitud.ID, models.EstadoFinalizado, "", nil)
	s.Require().Error(err)
	select {
	case change := <-notifier.changes:
		s.Failf("unexpected notification", "%+v", change)
	case <-time.After(100 * time.Millisecond):
	}
}

func (s *StateMachineTestSuite) TestNotifierFailuresDoNotAffectTransitions() {
	for _, notifier := range []*recordingNotifier{
		{changes: make(chan stateChange, 4), err: errors.New("smtp down")},
		{changes: make(chan stateChange, 4), panics: true},
	} {
		s.w.machine.SetNotifier(notifier)

		solicitud := s.w.create(s.T(), "ana.gomez")
		s.awaitChange(notifier.changes)

		updated, err := s.w.machine.Transition(s.ctx, solicitud.ID, models.EstadoEnRevision, "", nil)
		s.Require().NoError(err)
		s.Equal(models.EstadoEnRevision, updated.EstadoCodigo)
		s.awaitChange(notifier.changes)
	}
}
