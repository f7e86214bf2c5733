// internal/models/timeline.go
package models

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

var ErrTimelineImmutable = errors.New("timeline entries are append-only")

// TimelineEntry is one row of an application's state history. Seq orders the
// entries of one application and is unique per application.
type TimelineEntry struct {
	ID            uint         `json:"id" gorm:"primaryKey;autoIncrement"`
	SolicitudID   uuid.UUID    `json:"solicitud_id" gorm:"type:uuid;not null;uniqueIndex:idx_timeline_solicitud_seq,priority:1"`
	Seq           int          `json:"seq" gorm:"not null;uniqueIndex:idx_timeline_solicitud_seq,priority:2"`
	EstadoCodigo  EstadoCodigo `json:"estado_codigo" gorm:"size:40;not null"`
	Timestamp     time.Time    `json:"timestamp" gorm:"not null;index"`
	Description   string       `json:"description" gorm:"type:text"`
	ActorUsername *string      `json:"actor_username" gorm:"size:50"`
	IsAutomatic   bool         `json:"is_automatic" gorm:"not null"`
}

func (TimelineEntry) TableName() string {
	return "timeline_entries"
}

func (e *TimelineEntry) BeforeUpdate(tx *gorm.DB) error {
	return ErrTimelineImmutable
}

func (e *TimelineEntry) BeforeDelete(tx *gorm.DB) error {
	return ErrTimelineImmutable
}
