// internal/models/signature.go
package models

import (
	"time"

	"github.com/google/uuid"
)

type SignatureTransaction struct {
	BaseModel
	SolicitudID uuid.UUID      `json:"solicitud_id" gorm:"type:uuid;not null;index"`
	State       SignatureState `json:"state" gorm:"type:varchar(20);not null;index"`
	Deadline    time.Time      `json:"deadline" gorm:"not null"`
	CompletedAt *time.Time     `json:"completed_at,omitempty"`

	// Relationships
	Signatories []Signatory `json:"signatories" gorm:"foreignKey:TransactionID"`
}

type Signatory struct {
	BaseModel
	TransactionID uuid.UUID      `json:"transaction_id" gorm:"type:uuid;not null;uniqueIndex:idx_signatory_tx_signer,priority:1"`
	SignerID      string         `json:"signer_id" gorm:"size:100;not null;uniqueIndex:idx_signatory_tx_signer,priority:2"`
	Position      int            `json:"position" gorm:"not null"`
	Role          string         `json:"role" gorm:"size:50;not null"`
	State         SignatoryState `json:"state" gorm:"type:varchar(20);not null"`
	SignedAt      *time.Time     `json:"signed_at,omitempty"`
}

// Aggregate derives the transaction state from its signatories: any rejection
// wins, otherwise all must have signed.
func (t *SignatureTransaction) Aggregate() SignatureState {
	if len(t.Signatories) == 0 {
		return SignatureStatePending
	}
	allSigned := true
	for _, s := range t.Signatories {
		switch s.State {
		case SignatoryStateRejected:
			return SignatureStateRejected
		case SignatoryStateSigned:
		default:
			allSigned = false
		}
	}
	if allSigned {
		return SignatureStateSigned
	}
	return SignatureStatePending
}
