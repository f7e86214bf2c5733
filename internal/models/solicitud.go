// internal/models/solicitud.go
package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type SolicitudCredito struct {
	BaseModel
	NumeroSolicitud string          `json:"numero_solicitud" gorm:"size:32;uniqueIndex;not null"`
	OwnerUsername   string          `json:"owner_username" gorm:"size:50;not null;index"`
	EstadoCodigo    EstadoCodigo    `json:"estado_codigo" gorm:"size:40;not null;index"`
	MontoSolicitado decimal.Decimal `json:"monto_solicitado" gorm:"type:decimal(15,2);not null"`
	MontoAprobado   decimal.Decimal `json:"monto_aprobado" gorm:"type:decimal(15,2);not null"`
	PlazoMeses      int             `json:"plazo_meses" gorm:"not null"`
	TasaInteres     decimal.Decimal `json:"tasa_interes" gorm:"type:decimal(7,4);not null"`
	DestinoCredito  string          `json:"destino_credito" gorm:"size:255"`
	Version         int             `json:"version" gorm:"not null"`
	ArchivedAt      *time.Time      `json:"archived_at,omitempty" gorm:"index"`
	ArchivedBy      *string         `json:"archived_by,omitempty" gorm:"size:50"`

	// Relationships
	Timeline []TimelineEntry `json:"timeline,omitempty" gorm:"foreignKey:SolicitudID"`
}

func (SolicitudCredito) TableName() string {
	return "solicitudes_credito"
}

func (s *SolicitudCredito) IsArchived() bool {
	return s.ArchivedAt != nil
}
