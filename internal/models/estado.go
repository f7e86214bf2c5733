// internal/models/estado.go
package models

import "github.com/lib/pq"

type EstadoCodigo string

const (
	EstadoPostulado          EstadoCodigo = "POSTULADO"
	EstadoEnRevision         EstadoCodigo = "EN_REVISION"
	EstadoRequiereDocumentos EstadoCodigo = "REQUIERE_DOCUMENTOS"
	EstadoEnVerificacion     EstadoCodigo = "EN_VERIFICACION"
	EstadoEnEstudio          EstadoCodigo = "EN_ESTUDIO"
	EstadoPreAprobado        EstadoCodigo = "PRE_APROBADO"
	EstadoAprobado           EstadoCodigo = "APROBADO"
	EstadoRechazado          EstadoCodigo = "RECHAZADO"
	EstadoCancelado          EstadoCodigo = "CANCELADO"
	EstadoDesiste            EstadoCodigo = "DESISTE"
	EstadoFinalizado         EstadoCodigo = "FINALIZADO"
	EstadoEnMora             EstadoCodigo = "EN_MORA"
	EstadoCastigado          EstadoCodigo = "CASTIGADO"
)

// IsApprovalClass reports whether reaching the state approves the credit.
func (c EstadoCodigo) IsApprovalClass() bool {
	return c == EstadoAprobado
}

// BearsApprovedAmount reports whether an approved amount may be set on arrival.
func (c EstadoCodigo) BearsApprovedAmount() bool {
	return c == EstadoPreAprobado || c == EstadoAprobado
}

// IsSignatureEligible reports whether a signing workflow may start in the state.
func (c EstadoCodigo) IsSignatureEligible() bool {
	return c == EstadoAprobado
}

// EstadoSolicitud is a catalog entry. Rows are reference data seeded once.
type EstadoSolicitud struct {
	Code             EstadoCodigo   `json:"code" gorm:"primaryKey;size:40"`
	Name             string         `json:"name" gorm:"size:100;not null"`
	Order            int            `json:"order" gorm:"column:sort_order;not null"`
	Color            string         `json:"color" gorm:"size:20"`
	IsInitial        bool           `json:"is_initial" gorm:"not null"`
	IsTerminal       bool           `json:"is_terminal" gorm:"not null"`
	AllowedNextCodes pq.StringArray `json:"allowed_next_codes" gorm:"type:text[]"`
}

func (EstadoSolicitud) TableName() string {
	return "estados_solicitud"
}

// Allows reports whether next is directly reachable from this state.
func (e EstadoSolicitud) Allows(next EstadoCodigo) bool {
	for _, code := range e.AllowedNextCodes {
		if EstadoCodigo(code) == next {
			return true
		}
	}
	return false
}

func next(codes ...EstadoCodigo) pq.StringArray {
	out := make(pq.StringArray, len(codes))
	for i, code := range codes {
		out[i] = string(code)
	}
	return out
}

// DefaultEstadoCatalog returns the canonical state catalog and adjacency.
// REQUIERE_DOCUMENTOS and EN_VERIFICACION are listed without edges until their
// adjacency is confirmed.
func DefaultEstadoCatalog() []EstadoSolicitud {
	return []EstadoSolicitud{
		{Code: EstadoPostulado, Name: "Postulado", Order: 1, Color: "#6B7280", IsInitial: true,
			AllowedNextCodes: next(EstadoEnRevision, EstadoRechazado)},
		{Code: EstadoEnRevision, Name: "En revisión", Order: 2, Color: "#3B82F6",
			AllowedNextCodes: next(EstadoEnEstudio, EstadoPreAprobado, EstadoRechazado)},
		{Code: EstadoRequiereDocumentos, Name: "Requiere documentos", Order: 3, Color: "#F59E0B",
			AllowedNextCodes: next()},
		{Code: EstadoEnVerificacion, Name: "En verificación", Order: 4, Color: "#8B5CF6",
			AllowedNextCodes: next()},
		{Code: EstadoEnEstudio, Name: "En estudio", Order: 5, Color: "#6366F1",
			AllowedNextCodes: next(EstadoPreAprobado, EstadoAprobado, EstadoRechazado)},
		{Code: EstadoPreAprobado, Name: "Pre-aprobado", Order: 6, Color: "#14B8A6",
			AllowedNextCodes: next(EstadoAprobado, EstadoRechazado)},
		{Code: EstadoAprobado, Name: "Aprobado", Order: 7, Color: "#10B981",
			AllowedNextCodes: next(EstadoFinalizado, EstadoEnMora)},
		{Code: EstadoRechazado, Name: "Rechazado", Order: 8, Color: "#EF4444", IsTerminal: true,
			AllowedNextCodes: next()},
		{Code: EstadoCancelado, Name: "Cancelado", Order: 9, Color: "#9CA3AF", IsTerminal: true,
			AllowedNextCodes: next()},
		{Code: EstadoDesiste, Name: "Desiste", Order: 10, Color: "#9CA3AF", IsTerminal: true,
			AllowedNextCodes: next()},
		{Code: EstadoFinalizado, Name: "Finalizado", Order: 11, Color: "#059669",
			AllowedNextCodes: next(EstadoEnMora)},
		{Code: EstadoEnMora, Name: "En mora", Order: 12, Color: "#DC2626",
			AllowedNextCodes: next(EstadoCastigado, EstadoFinalizado)},
		{Code: EstadoCastigado, Name: "Castigado", Order: 13, Color: "#7F1D1D", IsTerminal: true,
			AllowedNextCodes: next()},
	}
}
