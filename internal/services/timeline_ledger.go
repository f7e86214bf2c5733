// internal/services/timeline_ledger.go
package services

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/coopcredito/solicitudes-backend/internal/models"
)

type HistoryOrder string

const (
	HistoryAsc  HistoryOrder = "asc"
	HistoryDesc HistoryOrder = "desc"
)

const defaultHistoryPageSize = 100

// TimelineLedger is the append-only history of one application's states and
// annotations. There is intentionally no update or delete operation.
type TimelineLedger struct {
	db       *gorm.DB
	registry *EstadoRegistry
	clock    Clock
}

func NewTimelineLedger(db *gorm.DB, registry *EstadoRegistry, clock Clock) *TimelineLedger {
	return &TimelineLedger{
		db:       db,
		registry: registry,
		clock:    clock,
	}
}

// WithTx returns a ledger bound to an open transaction.
func (l *TimelineLedger) WithTx(tx *gorm.DB) *TimelineLedger {
	return &TimelineLedger{db: tx, registry: l.registry, clock: l.clock}
}

// Append records arrival at estado. Timestamps are strictly increasing per
// application: when the clock does not advance past the previous entry, the
// entry is placed one microsecond after it.
func (l *TimelineLedger) Append(ctx context.Context, solicitudID uuid.UUID, estado models.EstadoCodigo, description string, actor *string, isAutomatic bool) (*models.TimelineEntry, error) {
	if _, err := l.registry.Get(estado); err != nil {
		return nil, err
	}

	db := l.db.WithContext(ctx)

	var last models.TimelineEntry
	hasLast := true
	if err := db.Where("solicitud_id = ?", solicitudID).Order("seq DESC").First(&last).Error; err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("failed to read timeline tail: %w", err)
		}
		hasLast = false
	}

	ts := l.clock.Now().UTC().Truncate(time.Microsecond)
	seq := 1
	if hasLast {
		seq = last.Seq + 1
		if prev := last.Timestamp.UTC(); !ts.After(prev) {
			ts = prev.Add(time.Microsecond)
		}
	}

	entry := &models.TimelineEntry{
		SolicitudID:   solicitudID,
		Seq:           seq,
		EstadoCodigo:  estado,
		Timestamp:     ts,
		Description:   description,
		ActorUsername: actor,
		IsAutomatic:   isAutomatic,
	}

	if err := db.Create(entry).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, &ConcurrencyConflictError{SolicitudID: solicitudID.String()}
		}
		return nil, fmt.Errorf("failed to append timeline entry: %w", err)
	}

	return entry, nil
}

// History returns every entry of the application in the requested order.
func (l *TimelineLedger) History(ctx context.Context, solicitudID uuid.UUID, order HistoryOrder) ([]models.TimelineEntry, error) {
	var entries []models.TimelineEntry
	for entry, err := range l.HistorySeq(ctx, solicitudID, order, defaultHistoryPageSize) {
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// HistorySeq lazily pages through the ledger by sequence number. Each range
// over the returned sequence starts a fresh read, so it can be consumed again.
func (l *TimelineLedger) HistorySeq(ctx context.Context, solicitudID uuid.UUID, order HistoryOrder, pageSize int) iter.Seq2[models.TimelineEntry, error] {
	if pageSize <= 0 {
		pageSize = defaultHistoryPageSize
	}

	return func(yield func(models.TimelineEntry, error) bool) {
		cursor := 0
		first := true
		for {
			query := l.db.WithContext(ctx).Where("solicitud_id = ?", solicitudID).Limit(pageSize)
			if order == HistoryDesc {
				if !first {
					query = query.Where("seq < ?", cursor)
				}
				query = query.Order("seq DESC")
			} else {
				query = query.Where("seq > ?", cursor).Order("seq ASC")
			}

			var page []models.TimelineEntry
			if err := query.Find(&page).Error; err != nil {
				yield(models.TimelineEntry{}, fmt.Errorf("failed to read timeline: %w", err))
				return
			}

			for _, entry := range page {
				if !yield(entry, nil) {
					return
				}
			}

			if len(page) < pageSize {
				return
			}
			cursor = page[len(page)-1].Seq
			first = false
		}
	}
}

func (l *TimelineLedger) Count(ctx context.Context, solicitudID uuid.UUID) (int64, error) {
	var count int64
	if err := l.db.WithContext(ctx).Model(&models.TimelineEntry{}).
		Where("solicitud_id = ?", solicitudID).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("failed to count timeline entries: %w", err)
	}
	return count, nil
}
