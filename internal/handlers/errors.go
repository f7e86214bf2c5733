// internal/handlers/errors.go
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/coopcredito/solicitudes-backend/internal/i18n"
	"github.com/coopcredito/solicitudes-backend/internal/services"
	"github.com/coopcredito/solicitudes-backend/internal/utils"
)

var notFoundKeys = map[string]string{
	"solicitud":             i18n.KeySolicitudNotFound,
	"document":              i18n.KeyDocumentNotFound,
	"signature transaction": i18n.KeySignatureNotFound,
	"signatory":             i18n.KeySignatoryNotFound,
	"user":                  i18n.KeyUserNotFound,
	"notification":          i18n.KeyNotificationNotFound,
}

// respondError maps a service error to its HTTP response.
func respondError(c *gin.Context, err error) {
	lang := utils.GetLangFromContext(c)

	switch services.CodeOf(err) {
	case services.ErrCodeNotFound:
		var e *services.NotFoundError
		errors.As(err, &e)
		key, ok := notFoundKeys[e.Resource]
		if !ok {
			key = e.Resource + ".not_found"
		}
		utils.NotFoundResponse(c, key, gin.H{"resource": e.Resource, "id": e.ID})

	case services.ErrCodeUnknownState:
		var e *services.UnknownStateError
		errors.As(err, &e)
		utils.ErrorResponse(c, http.StatusBadRequest, "UNKNOWN_STATE", i18n.T(lang, i18n.KeyUnknownState, e.Code), gin.H{"code": e.Code})

	case services.ErrCodeInvalidTransition:
		var e *services.InvalidTransitionError
		errors.As(err, &e)
		utils.UnprocessableResponse(c, "INVALID_TRANSITION", i18n.T(lang, i18n.KeyTransitionNotAllowed, e.From, e.To), gin.H{"from": e.From, "to": e.To})

	case services.ErrCodeInvalidInput:
		var e *services.InvalidInputError
		errors.As(err, &e)
		utils.ErrorResponse(c, http.StatusBadRequest, "INVALID_INPUT", err.Error(), gin.H{"field": e.Field})

	case services.ErrCodeInvalidState:
		var e *services.InvalidStateError
		errors.As(err, &e)
		utils.ConflictResponse(c, "INVALID_STATE", i18n.T(lang, i18n.KeyInvalidResourceState), gin.H{
			"resource": e.Resource,
			"id":       e.ID,
			"state":    e.State,
			"reason":   e.Reason,
		})

	case services.ErrCodeConcurrencyConflict:
		utils.ConflictResponse(c, "CONCURRENCY_CONFLICT", i18n.T(lang, i18n.KeyConcurrencyConflict), nil)

	case services.ErrCodeDocumentsIncomplete:
		var e *services.DocumentsIncompleteError
		errors.As(err, &e)
		utils.UnprocessableResponse(c, "DOCUMENTS_INCOMPLETE", i18n.T(lang, i18n.KeyDocumentsIncomplete), gin.H{"missing": e.Missing})

	case services.ErrCodeGenerationExhausted:
		logrus.WithError(err).Error("Application number generation exhausted")
		utils.ErrorResponse(c, http.StatusInternalServerError, "NUMBER_EXHAUSTED", i18n.T(lang, i18n.KeyNumberExhausted), nil)

	default:
		switch {
		case errors.Is(err, services.ErrInvalidCredentials):
			utils.UnauthorizedResponse(c, i18n.T(lang, i18n.KeyAuthInvalidCredentials))
		case errors.Is(err, services.ErrInvalidToken):
			utils.UnauthorizedResponse(c, i18n.T(lang, i18n.KeyAuthInvalidToken))
		case errors.Is(err, services.ErrAccountSuspended):
			utils.ForbiddenResponse(c, i18n.T(lang, i18n.KeyAuthSuspended))
		default:
			logrus.WithError(err).WithField("path", c.Request.URL.Path).Error("Unhandled service error")
			utils.InternalErrorResponse(c, "")
		}
	}
}

func parseUUIDParam(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		lang := utils.GetLangFromContext(c)
		utils.BadRequestResponse(c, i18n.T(lang, i18n.KeyValidationID, name), nil)
		return uuid.Nil, false
	}
	return id, true
}

// bindJSON binds and validates the request body, writing the error response
// itself when either step fails.
func bindJSON(c *gin.Context, req interface{}) bool {
	lang := utils.GetLangFromContext(c)

	if err := c.ShouldBindJSON(req); err != nil {
		utils.BadRequestResponse(c, i18n.T(lang, i18n.KeyValidationInvalid, "input"), err.Error())
		return false
	}

	if validationErrors := utils.GetValidationErrors(utils.ValidateStruct(req)); len(validationErrors) > 0 {
		utils.ValidationErrorResponse(c, validationErrors)
		return false
	}

	return true
}
