package services

import (
	"context"
	"testing"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coopcredito/solicitudes-backend/internal/database"
	"github.com/coopcredito/solicitudes-backend/internal/models"
)

func TestDefaultRegistryAdjacency(t *testing.T) {
	registry := DefaultRegistry()

	expected := map[models.EstadoCodigo][]models.EstadoCodigo{
		models.EstadoPostulado:          {models.EstadoEnRevision, models.EstadoRechazado},
		models.EstadoEnRevision:         {models.EstadoEnEstudio, models.EstadoPreAprobado, models.EstadoRechazado},
		models.EstadoEnEstudio:          {models.EstadoPreAprobado, models.EstadoAprobado, models.EstadoRechazado},
		models.EstadoPreAprobado:        {models.EstadoAprobado, models.EstadoRechazado},
		models.EstadoAprobado:           {models.EstadoFinalizado, models.EstadoEnMora},
		models.EstadoRechazado:          {},
		models.EstadoCancelado:          {},
		models.EstadoDesiste:            {},
		models.EstadoFinalizado:         {models.EstadoEnMora},
		models.EstadoEnMora:             {models.EstadoCastigado, models.EstadoFinalizado},
		models.EstadoCastigado:          {},
		models.EstadoRequiereDocumentos: {},
		models.EstadoEnVerificacion:     {},
	}

	require.Len(t, registry.States(), len(expected))
	for code, next := range expected {
		allowed, err := registry.AllowedNext(code)
		require.NoError(t, err, code)
		assert.ElementsMatch(t, next, allowed, "allowed next of %s", code)
	}
}

func TestRegistryIsValidTransition(t *testing.T) {
	registry := DefaultRegistry()

	assert.True(t, registry.IsValidTransition(models.EstadoPostulado, models.EstadoEnRevision))
	assert.True(t, registry.IsValidTransition(models.EstadoEnMora, models.EstadoFinalizado))
	assert.False(t, registry.IsValidTransition(models.EstadoPostulado, models.EstadoAprobado))
	assert.False(t, registry.IsValidTransition(models.EstadoPostulado, models.EstadoPostulado), "self-transitions are never implied")
	assert.False(t, registry.IsValidTransition(models.EstadoRechazado, models.EstadoPostulado))
	assert.False(t, registry.IsValidTransition("NO_EXISTE", models.EstadoPostulado))
	assert.False(t, registry.IsValidTransition(models.EstadoPostulado, "NO_EXISTE"))
}

func TestRegistryGet(t *testing.T) {
	registry := DefaultRegistry()

	state, err := registry.Get(models.EstadoPreAprobado)
	require.NoError(t, err)
	assert.Equal(t, "Pre-aprobado", state.Name)
	assert.Equal(t, 6, state.Order)

	_, err = registry.Get("NO_EXISTE")
	var unknown *UnknownStateError
	require.ErrorAs(t, err, &unknown)
	assert.Equal(t, models.EstadoCodigo("NO_EXISTE"), unknown.Code)
	assert.Equal(t, ErrCodeUnknownState, CodeOf(err))
}

func TestRegistryInitialAndTerminalStates(t *testing.T) {
	registry := DefaultRegistry()

	assert.Equal(t, models.EstadoPostulado, registry.Initial().Code)
	require.Len(t, registry.InitialStates(), 1)

	var terminal []models.EstadoCodigo
	for _, state := range registry.TerminalStates() {
		terminal = append(terminal, state.Code)
	}
	assert.Equal(t, []models.EstadoCodigo{
		models.EstadoRechazado,
		models.EstadoCancelado,
		models.EstadoDesiste,
		models.EstadoCastigado,
	}, terminal)
}

func TestRegistryStatesAreOrdered(t *testing.T) {
	states := DefaultRegistry().States()
	for i := 1; i < len(states); i++ {
		assert.Less(t, states[i-1].Order, states[i].Order)
	}
}

func TestNewRegistryRejectsInvalidCatalogs(t *testing.T) {
	tests := []struct {
		name   string
		states []models.EstadoSolicitud
	}{
		{
			name: "unknown next code",
			states: []models.EstadoSolicitud{
				{Code: "A", IsInitial: true, AllowedNextCodes: pq.StringArray{"B"}},
			},
		},
		{
			name: "duplicate code",
			states: []models.EstadoSolicitud{
				{Code: "A", IsInitial: true},
				{Code: "A"},
			},
		},
		{
			name: "no initial state",
			states: []models.EstadoSolicitud{
				{Code: "A"},
			},
		},
		{
			name: "two initial states",
			states: []models.EstadoSolicitud{
				{Code: "A", IsInitial: true},
				{Code: "B", IsInitial: true},
			},
		},
		{
			name: "empty code",
			states: []models.EstadoSolicitud{
				{Code: "", IsInitial: true},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewRegistry(tt.states)
			assert.Error(t, err)
		})
	}
}

func TestNewRegistryCopiesAdjacency(t *testing.T) {
	states := []models.EstadoSolicitud{
		{Code: "A", IsInitial: true, AllowedNextCodes: pq.StringArray{"B"}},
		{Code: "B"},
	}
	registry, err := NewRegistry(states)
	require.NoError(t, err)

	states[0].AllowedNextCodes[0] = "A"

	assert.True(t, registry.IsValidTransition("A", "B"))
	assert.False(t, registry.IsValidTransition("A", "A"))
}

func TestLoadRegistry(t *testing.T) {
	db := newTestDB(t)

	_, err := LoadRegistry(context.Background(), db)
	assert.ErrorIs(t, err, ErrEmptyCatalog, "an unseeded catalog cannot back a registry")

	require.NoError(t, database.SeedInitialData(db, "Admin12345"))

	registry, err := LoadRegistry(context.Background(), db)
	require.NoError(t, err)

	defaults := DefaultRegistry()
	require.Len(t, registry.States(), len(defaults.States()))
	for _, state := range defaults.States() {
		loaded, err := registry.Get(state.Code)
		require.NoError(t, err)
		assert.Equal(t, state.IsTerminal, loaded.IsTerminal, state.Code)
		assert.ElementsMatch(t, []string(state.AllowedNextCodes), []string(loaded.AllowedNextCodes), state.Code)
	}
}

func TestLoadRegistryOrDefault(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)

	registry, fallback, err := LoadRegistryOrDefault(ctx, db)
	require.NoError(t, err)
	assert.True(t, fallback)
	assert.Len(t, registry.States(), len(DefaultRegistry().States()))

	require.NoError(t, database.SeedInitialData(db, "Admin12345"))
	_, fallback, err = LoadRegistryOrDefault(ctx, db)
	require.NoError(t, err)
	assert.False(t, fallback)

	// A stored edge to a code the catalog does not define
	require.NoError(t, db.Model(&models.EstadoSolicitud{}).
		Where("code = ?", models.EstadoPostulado).
		Update("allowed_next_codes", pq.StringArray{"EN_REVISION", "INEXISTENTE"}).Error)

	registry, fallback, err = LoadRegistryOrDefault(ctx, db)
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrEmptyCatalog)
	assert.False(t, fallback)
	assert.Nil(t, registry)
}
