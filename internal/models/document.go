// internal/models/document.go
package models

import (
	"time"

	"github.com/google/uuid"
)

type DocumentType string

type DocumentRequirement struct {
	BaseModel
	Type        DocumentType `json:"type" gorm:"size:60;uniqueIndex;not null"`
	Mandatory   bool         `json:"mandatory" gorm:"not null"`
	DueDate     *time.Time   `json:"due_date,omitempty"`
	Description string       `json:"description" gorm:"type:text"`
}

// SubmittedDocument keeps every submission for audit. Only an active one can
// satisfy a requirement.
type SubmittedDocument struct {
	BaseModel
	SolicitudID uuid.UUID     `json:"solicitud_id" gorm:"type:uuid;not null;index"`
	Type        DocumentType  `json:"type" gorm:"size:60;not null;index"`
	State       DocumentState `json:"state" gorm:"type:varchar(20);not null;index"`
	SubmittedAt time.Time     `json:"submitted_at" gorm:"not null"`
	Active      bool          `json:"active" gorm:"not null;index"`
	FileName    string        `json:"file_name" gorm:"size:255"`
	StorageKey  string        `json:"storage_key" gorm:"size:512"`
	Metadata    JSONB         `json:"metadata" gorm:"type:jsonb"`
	ReviewedAt  *time.Time    `json:"reviewed_at,omitempty"`
	ReviewedBy  *string       `json:"reviewed_by,omitempty" gorm:"size:50"`
}
