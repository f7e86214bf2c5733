// internal/services/number_generator.go
package services

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"gorm.io/gorm"

	"github.com/coopcredito/solicitudes-backend/internal/models"
)

const maxNumberSequence = 999999

// NumberStore answers the questions the generator asks about issued numbers.
type NumberStore interface {
	// LastSequence returns the highest sequence issued for prefix and year, or 0.
	LastSequence(ctx context.Context, prefix string, year int) (int, error)
	Exists(ctx context.Context, numero string) (bool, error)
}

type gormNumberStore struct {
	db *gorm.DB
}

// NewGormNumberStore reads issued numbers from solicitudes_credito, archived
// rows included, so a number is never reused.
func NewGormNumberStore(db *gorm.DB) NumberStore {
	return &gormNumberStore{db: db}
}

func (s *gormNumberStore) LastSequence(ctx context.Context, prefix string, year int) (int, error) {
	pattern := fmt.Sprintf("%s-%d-%%", prefix, year)

	var numeros []string
	err := s.db.WithContext(ctx).Model(&models.SolicitudCredito{}).
		Where("numero_solicitud LIKE ?", pattern).
		Order("numero_solicitud DESC").
		Limit(1).
		Pluck("numero_solicitud", &numeros).Error
	if err != nil {
		return 0, fmt.Errorf("failed to read last application number: %w", err)
	}
	if len(numeros) == 0 {
		return 0, nil
	}

	seq, err := parseSequence(numeros[0])
	if err != nil {
		return 0, err
	}
	return seq, nil
}

func (s *gormNumberStore) Exists(ctx context.Context, numero string) (bool, error) {
	var count int64
	if err := s.db.WithContext(ctx).Model(&models.SolicitudCredito{}).
		Where("numero_solicitud = ?", numero).
		Count(&count).Error; err != nil {
		return false, fmt.Errorf("failed to check application number: %w", err)
	}
	return count > 0, nil
}

// NumberGenerator issues human-readable numbers of the form PREFIX-YYYY-NNNNNN.
// Numbers already handed out by this process are remembered so concurrent
// callers never receive the same value even before either has been stored.
type NumberGenerator struct {
	store       NumberStore
	clock       Clock
	prefix      string
	maxAttempts int

	mu   sync.Mutex
	next map[int]int
}

func NewNumberGenerator(store NumberStore, clock Clock, prefix string, maxAttempts int) *NumberGenerator {
	if maxAttempts <= 0 {
		maxAttempts = 1
	}
	return &NumberGenerator{
		store:       store,
		clock:       clock,
		prefix:      prefix,
		maxAttempts: maxAttempts,
		next:        make(map[int]int),
	}
}

// Generate is the standalone form that reads through the generator's own
// store. StateMachine.Create draws numbers inside its transaction instead.
func (g *NumberGenerator) Generate(ctx context.Context) (string, error) {
	return g.generateWith(ctx, g.store)
}

// generateWith lets a caller run the lookups inside its own transaction.
func (g *NumberGenerator) generateWith(ctx context.Context, store NumberStore) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	year := g.clock.Now().Year()

	last, err := store.LastSequence(ctx, g.prefix, year)
	if err != nil {
		return "", err
	}
	seq := last
	if issued := g.next[year]; issued > seq {
		seq = issued
	}

	attempts := 0
	for attempts < g.maxAttempts {
		seq++
		if seq > maxNumberSequence {
			break
		}
		attempts++

		numero := FormatNumero(g.prefix, year, seq)
		exists, err := store.Exists(ctx, numero)
		if err != nil {
			return "", err
		}
		if !exists {
			g.next[year] = seq
			return numero, nil
		}
	}

	return "", &GenerationExhaustedError{Year: year, Attempts: attempts}
}

func FormatNumero(prefix string, year, seq int) string {
	return fmt.Sprintf("%s-%d-%06d", prefix, year, seq)
}

func parseSequence(numero string) (int, error) {
	idx := strings.LastIndex(numero, "-")
	if idx < 0 || idx == len(numero)-1 {
		return 0, errors.New("malformed application number " + numero)
	}
	seq, err := strconv.Atoi(numero[idx+1:])
	if err != nil {
		return 0, fmt.Errorf("malformed application number %s: %w", numero, err)
	}
	return seq, nil
}
