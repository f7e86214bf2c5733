// internal/handlers/estado.go
package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/coopcredito/solicitudes-backend/internal/services"
	"github.com/coopcredito/solicitudes-backend/internal/utils"
)

type EstadoHandler struct {
	registry *services.EstadoRegistry
}

func NewEstadoHandler(registry *services.EstadoRegistry) *EstadoHandler {
	return &EstadoHandler{
		registry: registry,
	}
}

// GET /v1/estados
func (h *EstadoHandler) List(c *gin.Context) {
	utils.SuccessResponse(c, gin.H{
		"estados":  h.registry.States(),
		"initial":  h.registry.Initial().Code,
		"terminal": h.registry.TerminalStates(),
	})
}
