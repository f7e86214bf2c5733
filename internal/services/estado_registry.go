// internal/services/estado_registry.go
package services

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"gorm.io/gorm"

	"github.com/coopcredito/solicitudes-backend/internal/models"
)

var ErrEmptyCatalog = errors.New("estado catalog is empty; run the seeder first")

// EstadoRegistry is the read-only catalog of application states and the
// allowed transitions between them. A transition is valid only when the
// target is listed in the source's AllowedNextCodes; self-transitions are not
// implied.
type EstadoRegistry struct {
	states  map[models.EstadoCodigo]models.EstadoSolicitud
	ordered []models.EstadoSolicitud
	initial models.EstadoSolicitud
}

// NewRegistry validates the catalog: unique codes, every referenced next code
// present, and exactly one initial state.
func NewRegistry(states []models.EstadoSolicitud) (*EstadoRegistry, error) {
	r := &EstadoRegistry{
		states: make(map[models.EstadoCodigo]models.EstadoSolicitud, len(states)),
	}

	initialCount := 0
	for _, state := range states {
		if state.Code == "" {
			return nil, fmt.Errorf("estado catalog contains an empty code")
		}
		if _, exists := r.states[state.Code]; exists {
			return nil, fmt.Errorf("estado %s declared twice", state.Code)
		}
		next := make([]string, len(state.AllowedNextCodes))
		copy(next, state.AllowedNextCodes)
		state.AllowedNextCodes = next

		r.states[state.Code] = state
		if state.IsInitial {
			initialCount++
			r.initial = state
		}
	}

	if initialCount != 1 {
		return nil, fmt.Errorf("estado catalog must have exactly one initial state, found %d", initialCount)
	}

	for _, state := range r.states {
		for _, code := range state.AllowedNextCodes {
			if _, ok := r.states[models.EstadoCodigo(code)]; !ok {
				return nil, fmt.Errorf("estado %s allows unknown next state %s", state.Code, code)
			}
		}
		r.ordered = append(r.ordered, state)
	}

	sort.Slice(r.ordered, func(i, j int) bool {
		return r.ordered[i].Order < r.ordered[j].Order
	})

	return r, nil
}

// DefaultRegistry builds the registry from the canonical catalog.
func DefaultRegistry() *EstadoRegistry {
	r, err := NewRegistry(models.DefaultEstadoCatalog())
	if err != nil {
		panic(fmt.Sprintf("default estado catalog is invalid: %v", err))
	}
	return r
}

// LoadRegistry reads the persisted catalog.
func LoadRegistry(ctx context.Context, db *gorm.DB) (*EstadoRegistry, error) {
	var states []models.EstadoSolicitud
	if err := db.WithContext(ctx).Order("sort_order ASC").Find(&states).Error; err != nil {
		return nil, fmt.Errorf("failed to load estado catalog: %w", err)
	}
	if len(states) == 0 {
		return nil, ErrEmptyCatalog
	}
	return NewRegistry(states)
}

// LoadRegistryOrDefault falls back to the built-in catalog only when nothing
// has been persisted. A stored catalog that fails validation is an error.
func LoadRegistryOrDefault(ctx context.Context, db *gorm.DB) (*EstadoRegistry, bool, error) {
	registry, err := LoadRegistry(ctx, db)
	if errors.Is(err, ErrEmptyCatalog) {
		return DefaultRegistry(), true, nil
	}
	if err != nil {
		return nil, false, err
	}
	return registry, false, nil
}

func (r *EstadoRegistry) Get(code models.EstadoCodigo) (models.EstadoSolicitud, error) {
	state, ok := r.states[code]
	if !ok {
		return models.EstadoSolicitud{}, &UnknownStateError{Code: code}
	}
	return state, nil
}

func (r *EstadoRegistry) Contains(code models.EstadoCodigo) bool {
	_, ok := r.states[code]
	return ok
}

func (r *EstadoRegistry) IsValidTransition(from, to models.EstadoCodigo) bool {
	state, ok := r.states[from]
	if !ok {
		return false
	}
	return state.Allows(to)
}

// AllowedNext lists the states directly reachable from code.
func (r *EstadoRegistry) AllowedNext(code models.EstadoCodigo) ([]models.EstadoCodigo, error) {
	state, err := r.Get(code)
	if err != nil {
		return nil, err
	}
	out := make([]models.EstadoCodigo, len(state.AllowedNextCodes))
	for i, next := range state.AllowedNextCodes {
		out[i] = models.EstadoCodigo(next)
	}
	return out, nil
}

func (r *EstadoRegistry) Initial() models.EstadoSolicitud {
	return r.initial
}

func (r *EstadoRegistry) InitialStates() []models.EstadoSolicitud {
	return r.filter(func(s models.EstadoSolicitud) bool { return s.IsInitial })
}

func (r *EstadoRegistry) TerminalStates() []models.EstadoSolicitud {
	return r.filter(func(s models.EstadoSolicitud) bool { return s.IsTerminal })
}

// States returns the catalog in display order.
func (r *EstadoRegistry) States() []models.EstadoSolicitud {
	return r.filter(func(models.EstadoSolicitud) bool { return true })
}

func (r *EstadoRegistry) filter(keep func(models.EstadoSolicitud) bool) []models.EstadoSolicitud {
	var out []models.EstadoSolicitud
	for _, state := range r.ordered {
		if keep(state) {
			out = append(out, state)
		}
	}
	return out
}
