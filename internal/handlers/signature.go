// internal/handlers/signature.go
package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/coopcredito/solicitudes-backend/internal/services"
	"github.com/coopcredito/solicitudes-backend/internal/utils"
)

type SignatureHandler struct {
	signatureProcess *services.SignatureProcess
	stateMachine     *services.StateMachine
	clock            services.Clock
}

func NewSignatureHandler(signatureProcess *services.SignatureProcess, stateMachine *services.StateMachine, clock services.Clock) *SignatureHandler {
	return &SignatureHandler{
		signatureProcess: signatureProcess,
		stateMachine:     stateMachine,
		clock:            clock,
	}
}

// POST /v1/solicitudes/:id/signatures
func (h *SignatureHandler) Initiate(c *gin.Context) {
	id, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}

	var req services.InitiateSignatureRequest
	if !bindJSON(c, &req) {
		return
	}

	transaction, err := h.signatureProcess.Initiate(c.Request.Context(), id, req.Signatories)
	if err != nil {
		respondError(c, err)
		return
	}

	utils.CreatedResponse(c, transaction)
}

// GET /v1/solicitudes/:id/signatures
func (h *SignatureHandler) ListForSolicitud(c *gin.Context) {
	id, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}
	if _, ok := loadVisibleSolicitud(c, h.stateMachine, id); !ok {
		return
	}

	transactions, err := h.signatureProcess.ForSolicitud(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}

	utils.SuccessResponse(c, transactions)
}

// GET /v1/signatures/:txId
func (h *SignatureHandler) Get(c *gin.Context) {
	txID, ok := parseUUIDParam(c, "txId")
	if !ok {
		return
	}

	transaction, err := h.signatureProcess.Get(c.Request.Context(), txID)
	if err != nil {
		respondError(c, err)
		return
	}
	if _, ok := loadVisibleSolicitud(c, h.stateMachine, transaction.SolicitudID); !ok {
		return
	}

	utils.SuccessResponse(c, transaction)
}

// POST /v1/signatures/:txId/events
func (h *SignatureHandler) RecordEvent(c *gin.Context) {
	txID, ok := parseUUIDParam(c, "txId")
	if !ok {
		return
	}

	var req services.SignatoryEventRequest
	if !bindJSON(c, &req) {
		return
	}

	transaction, err := h.signatureProcess.RecordSignatoryEvent(c.Request.Context(), txID, req.SignerID, req.State)
	if err != nil {
		respondError(c, err)
		return
	}

	utils.SuccessResponse(c, transaction)
}

// POST /v1/signatures/:txId/cancel
func (h *SignatureHandler) Cancel(c *gin.Context) {
	txID, ok := parseUUIDParam(c, "txId")
	if !ok {
		return
	}

	transaction, err := h.signatureProcess.Cancel(c.Request.Context(), txID, actorFromContext(c))
	if err != nil {
		respondError(c, err)
		return
	}

	utils.SuccessResponse(c, transaction)
}

// POST /v1/signatures/:txId/check-expiry
func (h *SignatureHandler) CheckExpiry(c *gin.Context) {
	txID, ok := parseUUIDParam(c, "txId")
	if !ok {
		return
	}

	transaction, err := h.signatureProcess.CheckExpiry(c.Request.Context(), txID, h.clock.Now())
	if err != nil {
		respondError(c, err)
		return
	}

	utils.SuccessResponse(c, transaction)
}
