// internal/models/common.go
package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Base model with common fields. Logical removal is modelled explicitly on the
// entities that support it, so there is no implicit soft-delete scope here.
type BaseModel struct {
	ID        uuid.UUID `json:"id" gorm:"type:uuid;primaryKey"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (b *BaseModel) BeforeCreate(tx *gorm.DB) error {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	return nil
}

// JSONB type for PostgreSQL
type JSONB map[string]interface{}

func (j JSONB) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	return json.Marshal(j)
}

func (j *JSONB) Scan(value interface{}) error {
	if value == nil {
		*j = nil
		return nil
	}

	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		return fmt.Errorf("unsupported JSONB source type %T", value)
	}

	return json.Unmarshal(bytes, j)
}

// Enums
type UserStatus string

const (
	UserStatusActive    UserStatus = "active"
	UserStatusSuspended UserStatus = "suspended"
)

type DocumentState string

const (
	DocumentStatePending  DocumentState = "pending"
	DocumentStateApproved DocumentState = "approved"
	DocumentStateRejected DocumentState = "rejected"
)

func (s DocumentState) IsValid() bool {
	switch s {
	case DocumentStatePending, DocumentStateApproved, DocumentStateRejected:
		return true
	}
	return false
}

type SignatureState string

const (
	SignatureStatePending   SignatureState = "PENDING"
	SignatureStateSigned    SignatureState = "SIGNED"
	SignatureStateRejected  SignatureState = "REJECTED"
	SignatureStateExpired   SignatureState = "EXPIRED"
	SignatureStateCancelled SignatureState = "CANCELLED"
)

// IsTerminal reports whether no further signatory event can change the transaction.
func (s SignatureState) IsTerminal() bool {
	return s != SignatureStatePending
}

type SignatoryState string

const (
	SignatoryStatePending  SignatoryState = "PENDING"
	SignatoryStateSigned   SignatoryState = "SIGNED"
	SignatoryStateRejected SignatoryState = "REJECTED"
)

type NotificationStatus string

const (
	NotificationStatusUnread NotificationStatus = "unread"
	NotificationStatusRead   NotificationStatus = "read"
)
