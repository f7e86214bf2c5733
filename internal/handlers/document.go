// internal/handlers/document.go
package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/coopcredito/solicitudes-backend/internal/models"
	"github.com/coopcredito/solicitudes-backend/internal/services"
	"github.com/coopcredito/solicitudes-backend/internal/utils"
)

type DocumentHandler struct {
	gate           *services.DocumentGate
	stateMachine   *services.StateMachine
	storageService *services.StorageService
}

type setDocumentStateRequest struct {
	State models.DocumentState `json:"state" validate:"required,oneof=approved rejected"`
}

func NewDocumentHandler(gate *services.DocumentGate, stateMachine *services.StateMachine, storageService *services.StorageService) *DocumentHandler {
	return &DocumentHandler{
		gate:           gate,
		stateMachine:   stateMachine,
		storageService: storageService,
	}
}

// POST /v1/solicitudes/:id/documents
func (h *DocumentHandler) Submit(c *gin.Context) {
	id, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}
	if _, ok := loadVisibleSolicitud(c, h.stateMachine, id); !ok {
		return
	}

	var req services.SubmitDocumentRequest
	if !bindJSON(c, &req) {
		return
	}

	// Storage keys are only ever assigned by the presigner
	req.StorageKey = ""

	var ticket *services.UploadTicket
	if req.FileName != "" {
		var err error
		ticket, err = h.storageService.PresignUpload(id, req.Type, req.FileName)
		if err != nil {
			respondError(c, err)
			return
		}
		req.StorageKey = ticket.Key
	}

	document, err := h.gate.Submit(c.Request.Context(), id, &req)
	if err != nil {
		respondError(c, err)
		return
	}

	utils.CreatedResponse(c, gin.H{
		"document": document,
		"upload":   ticket,
	})
}

// GET /v1/solicitudes/:id/documents/status
func (h *DocumentHandler) Status(c *gin.Context) {
	id, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}
	if _, ok := loadVisibleSolicitud(c, h.stateMachine, id); !ok {
		return
	}

	ctx := c.Request.Context()
	missing, err := h.gate.MissingRequirements(ctx, id)
	if err != nil {
		respondError(c, err)
		return
	}

	documents, err := h.gate.Documents(ctx, id, c.Query("all") != "true")
	if err != nil {
		respondError(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{
		"satisfied": len(missing) == 0,
		"missing":   missing,
		"documents": documents,
	})
}

// PUT /v1/documents/:docId/state
func (h *DocumentHandler) SetState(c *gin.Context) {
	docID, ok := parseUUIDParam(c, "docId")
	if !ok {
		return
	}

	var req setDocumentStateRequest
	if !bindJSON(c, &req) {
		return
	}

	document, err := h.gate.SetState(c.Request.Context(), docID, req.State, actorFromContext(c))
	if err != nil {
		respondError(c, err)
		return
	}

	utils.SuccessResponse(c, document)
}

// GET /v1/documents/:docId/download
func (h *DocumentHandler) Download(c *gin.Context) {
	docID, ok := parseUUIDParam(c, "docId")
	if !ok {
		return
	}

	document, err := h.gate.Get(c.Request.Context(), docID)
	if err != nil {
		respondError(c, err)
		return
	}
	if _, ok := loadVisibleSolicitud(c, h.stateMachine, document.SolicitudID); !ok {
		return
	}

	url, err := h.storageService.PresignDownload(document.StorageKey)
	if err != nil {
		respondError(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{"url": url})
}

// GET /v1/document-requirements
func (h *DocumentHandler) Requirements(c *gin.Context) {
	requirements, err := h.gate.Requirements(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}

	utils.SuccessResponse(c, requirements)
}

// POST /v1/admin/document-requirements
func (h *DocumentHandler) RegisterRequirement(c *gin.Context) {
	var req services.RegisterRequirementRequest
	if !bindJSON(c, &req) {
		return
	}

	requirement, err := h.gate.RegisterRequirement(c.Request.Context(), &req)
	if err != nil {
		respondError(c, err)
		return
	}

	utils.CreatedResponse(c, requirement)
}
