package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/coopcredito/solicitudes-backend/internal/config"
	"github.com/coopcredito/solicitudes-backend/internal/database"
	"github.com/coopcredito/solicitudes-backend/internal/models"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, time.March, 10, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := database.Initialize(config.DatabaseConfig{
		Driver:     "sqlite",
		SQLitePath: ":memory:",
		LogLevel:   "silent",
	})
	require.NoError(t, err)
	require.NoError(t, database.RunMigrations(db))

	t.Cleanup(func() { database.Close(db) })
	return db
}

// workflow wires the core services against one in-memory database.
type workflow struct {
	db         *gorm.DB
	clock      *fakeClock
	registry   *EstadoRegistry
	ledger     *TimelineLedger
	gate       *DocumentGate
	numbers    *NumberGenerator
	machine    *StateMachine
	signatures *SignatureProcess
}

func newWorkflow(t *testing.T, policy DocumentPolicy) *workflow {
	t.Helper()

	db := newTestDB(t)
	clock := newFakeClock()
	registry := DefaultRegistry()
	locks := NewSolicitudLocks()
	ledger := NewTimelineLedger(db, registry, clock)
	gate := NewDocumentGate(db, clock)
	numbers := NewNumberGenerator(NewGormNumberStore(db), clock, "SOL", 20)

	return &workflow{
		db:         db,
		clock:      clock,
		registry:   registry,
		ledger:     ledger,
		gate:       gate,
		numbers:    numbers,
		machine:    NewStateMachine(db, registry, ledger, gate, numbers, locks, clock, policy),
		signatures: NewSignatureProcess(db, ledger, clock, 72*time.Hour, locks),
	}
}

func (w *workflow) create(t *testing.T, owner string) *models.SolicitudCredito {
	t.Helper()

	solicitud, err := w.machine.Create(context.Background(), &CreateSolicitudRequest{
		MontoSolicitado: decimal.NewFromInt(10000000),
		PlazoMeses:      36,
		TasaInteres:     decimal.RequireFromString("1.45"),
		DestinoCredito:  "Vivienda",
	}, owner)
	require.NoError(t, err)
	return solicitud
}

// createAt places a fresh application directly in estado, bypassing the
// adjacency map. Only the catalog closure tests need states no legal path
// reaches.
func (w *workflow) createAt(t *testing.T, estado models.EstadoCodigo) *models.SolicitudCredito {
	t.Helper()

	solicitud := w.create(t, "ana.gomez")
	require.NoError(t, w.db.Model(&models.SolicitudCredito{}).
		Where("id = ?", solicitud.ID).
		Update("estado_codigo", estado).Error)
	solicitud.EstadoCodigo = estado
	return solicitud
}

// approve walks an application along the shortest legal path to APROBADO.
func (w *workflow) approve(t *testing.T, owner string) *models.SolicitudCredito {
	t.Helper()

	solicitud := w.create(t, owner)
	analyst := "analista1"
	for _, target := range []models.EstadoCodigo{models.EstadoEnRevision, models.EstadoPreAprobado, models.EstadoAprobado} {
		var err error
		solicitud, err = w.machine.Transition(context.Background(), solicitud.ID, target, "", &analyst)
		require.NoError(t, err)
	}
	return solicitud
}

func (w *workflow) historyLen(t *testing.T, id uuid.UUID) int64 {
	t.Helper()

	count, err := w.ledger.Count(context.Background(), id)
	require.NoError(t, err)
	return count
}

func strPtr(s string) *string {
	return &s
}
