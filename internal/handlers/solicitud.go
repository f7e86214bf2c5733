// internal/handlers/solicitud.go
package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/coopcredito/solicitudes-backend/internal/i18n"
	"github.com/coopcredito/solicitudes-backend/internal/middleware"
	"github.com/coopcredito/solicitudes-backend/internal/models"
	"github.com/coopcredito/solicitudes-backend/internal/services"
	"github.com/coopcredito/solicitudes-backend/internal/utils"
)

type SolicitudHandler struct {
	stateMachine *services.StateMachine
}

type noteRequest struct {
	Description string `json:"description" validate:"required,max=2000"`
}

func NewSolicitudHandler(stateMachine *services.StateMachine) *SolicitudHandler {
	return &SolicitudHandler{
		stateMachine: stateMachine,
	}
}

// POST /v1/solicitudes
func (h *SolicitudHandler) Create(c *gin.Context) {
	username, ok := utils.GetUsernameFromContext(c)
	if !ok {
		utils.UnauthorizedResponse(c, "")
		return
	}

	var req services.CreateSolicitudRequest
	if !bindJSON(c, &req) {
		return
	}

	solicitud, err := h.stateMachine.Create(c.Request.Context(), &req, username)
	if err != nil {
		respondError(c, err)
		return
	}

	utils.CreatedResponse(c, solicitud)
}

// GET /v1/solicitudes
func (h *SolicitudHandler) List(c *gin.Context) {
	username, ok := utils.GetUsernameFromContext(c)
	if !ok {
		utils.UnauthorizedResponse(c, "")
		return
	}

	params := utils.GetPaginationParams(c)
	filter := services.SolicitudFilter{PaginationParams: params}

	if middleware.IsStaff(c) {
		if owner := c.Query("owner"); owner != "" {
			filter.OwnerUsername = &owner
		}
		filter.IncludeArchived = c.Query("archived") == "true"
	} else {
		filter.OwnerUsername = &username
	}

	if estado := c.Query("estado"); estado != "" {
		code := models.EstadoCodigo(estado)
		filter.EstadoCodigo = &code
	}

	solicitudes, total, err := h.stateMachine.List(c.Request.Context(), filter)
	if err != nil {
		respondError(c, err)
		return
	}

	utils.PaginatedResponse(c, utils.CreatePaginationResult(solicitudes, total, params))
}

// GET /v1/solicitudes/:id
func (h *SolicitudHandler) Get(c *gin.Context) {
	solicitud, ok := h.loadVisible(c)
	if !ok {
		return
	}

	allowed, _ := h.stateMachine.Registry().AllowedNext(solicitud.EstadoCodigo)
	utils.SuccessResponse(c, gin.H{
		"solicitud":    solicitud,
		"allowed_next": allowed,
	})
}

// POST /v1/solicitudes/:id/transitions
func (h *SolicitudHandler) Transition(c *gin.Context) {
	id, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}

	var req services.TransitionRequest
	if !bindJSON(c, &req) {
		return
	}

	var opts []services.TransitionOption
	if req.MontoAprobado != nil {
		opts = append(opts, services.WithMontoAprobado(*req.MontoAprobado))
	}

	actor := actorFromContext(c)
	solicitud, err := h.stateMachine.Transition(c.Request.Context(), id, req.Target, req.Description, actor, opts...)
	if err != nil {
		respondError(c, err)
		return
	}

	utils.SuccessResponse(c, solicitud)
}

// GET /v1/solicitudes/:id/timeline?order=asc|desc
func (h *SolicitudHandler) Timeline(c *gin.Context) {
	solicitud, ok := h.loadVisible(c)
	if !ok {
		return
	}

	order := services.HistoryAsc
	if c.Query("order") == string(services.HistoryDesc) {
		order = services.HistoryDesc
	}

	entries, err := h.stateMachine.History(c.Request.Context(), solicitud.ID, order)
	if err != nil {
		respondError(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{
		"numero_solicitud": solicitud.NumeroSolicitud,
		"estado_actual":    solicitud.EstadoCodigo,
		"timeline":         entries,
	})
}

// POST /v1/solicitudes/:id/notes
func (h *SolicitudHandler) AddNote(c *gin.Context) {
	id, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}

	var req noteRequest
	if !bindJSON(c, &req) {
		return
	}

	username, _ := utils.GetUsernameFromContext(c)
	entry, err := h.stateMachine.AddNote(c.Request.Context(), id, req.Description, username)
	if err != nil {
		respondError(c, err)
		return
	}

	utils.CreatedResponse(c, entry)
}

// DELETE /v1/solicitudes/:id
func (h *SolicitudHandler) Archive(c *gin.Context) {
	id, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}

	username, _ := utils.GetUsernameFromContext(c)
	if err := h.stateMachine.Archive(c.Request.Context(), id, username); err != nil {
		respondError(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{
		"message": i18n.T(utils.GetLangFromContext(c), i18n.KeySolicitudArchived),
	})
}

// POST /v1/solicitudes/:id/restore
func (h *SolicitudHandler) Restore(c *gin.Context) {
	id, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}

	username, _ := utils.GetUsernameFromContext(c)
	solicitud, err := h.stateMachine.Restore(c.Request.Context(), id, username)
	if err != nil {
		respondError(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{
		"message":   i18n.T(utils.GetLangFromContext(c), i18n.KeySolicitudRestored),
		"solicitud": solicitud,
	})
}

// loadVisible fetches the application named by :id when the caller owns it
// or is staff. Other callers get the same 404 as for a missing application.
func (h *SolicitudHandler) loadVisible(c *gin.Context) (*models.SolicitudCredito, bool) {
	id, ok := parseUUIDParam(c, "id")
	if !ok {
		return nil, false
	}

	return loadVisibleSolicitud(c, h.stateMachine, id)
}

func loadVisibleSolicitud(c *gin.Context, stateMachine *services.StateMachine, id uuid.UUID) (*models.SolicitudCredito, bool) {
	solicitud, err := stateMachine.Get(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return nil, false
	}

	username, _ := utils.GetUsernameFromContext(c)
	if solicitud.OwnerUsername != username && !middleware.IsStaff(c) {
		respondError(c, &services.NotFoundError{Resource: "solicitud", ID: id.String()})
		return nil, false
	}

	return solicitud, true
}

// actorFromContext returns the authenticated username, or nil for requests
// made by the system itself.
func actorFromContext(c *gin.Context) *string {
	if username, ok := utils.GetUsernameFromContext(c); ok {
		return &username
	}
	return nil
}
