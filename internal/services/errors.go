// internal/services/errors.go
package services

import (
	"errors"
	"fmt"
	"strings"

	"github.com/coopcredito/solicitudes-backend/internal/models"
)

// ErrorCode classifies the failures the workflow core reports to its callers
type ErrorCode int

const (
	ErrCodeNone ErrorCode = iota
	// Referenced application, document or transaction does not exist
	ErrCodeNotFound
	// State code not present in the catalog
	ErrCodeUnknownState
	// Transition not present in the adjacency map
	ErrCodeInvalidTransition
	// Malformed request
	ErrCodeInvalidInput
	// Operation not allowed in the resource's current state
	ErrCodeInvalidState
	// Concurrent modification detected
	ErrCodeConcurrencyConflict
	// Number generator ran out of attempts
	ErrCodeGenerationExhausted
	// Mandatory documents missing for an approval-class transition
	ErrCodeDocumentsIncomplete
)

type codedError interface {
	error
	ErrorCode() ErrorCode
}

// CodeOf returns the ErrorCode carried by err or any error it wraps.
func CodeOf(err error) ErrorCode {
	var coded codedError
	if errors.As(err, &coded) {
		return coded.ErrorCode()
	}
	return ErrCodeNone
}

type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Resource, e.ID)
}

func (e *NotFoundError) ErrorCode() ErrorCode { return ErrCodeNotFound }

type UnknownStateError struct {
	Code models.EstadoCodigo
}

func (e *UnknownStateError) Error() string {
	return fmt.Sprintf("unknown state %q", e.Code)
}

func (e *UnknownStateError) ErrorCode() ErrorCode { return ErrCodeUnknownState }

type InvalidTransitionError struct {
	From models.EstadoCodigo
	To   models.EstadoCodigo
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("transition %s -> %s is not allowed", e.From, e.To)
}

func (e *InvalidTransitionError) ErrorCode() ErrorCode { return ErrCodeInvalidTransition }

type InvalidInputError struct {
	Field  string
	Reason string
}

func (e *InvalidInputError) Error() string {
	if e.Field == "" {
		return "invalid input: " + e.Reason
	}
	return fmt.Sprintf("invalid input for %s: %s", e.Field, e.Reason)
}

func (e *InvalidInputError) ErrorCode() ErrorCode { return ErrCodeInvalidInput }

// InvalidStateError reports an operation on a document or signature
// transaction that its current state forbids.
type InvalidStateError struct {
	Resource string
	ID       string
	State    string
	Reason   string
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("%s %s in state %s: %s", e.Resource, e.ID, e.State, e.Reason)
}

func (e *InvalidStateError) ErrorCode() ErrorCode { return ErrCodeInvalidState }

type ConcurrencyConflictError struct {
	SolicitudID string
}

func (e *ConcurrencyConflictError) Error() string {
	return fmt.Sprintf("solicitud %s was modified concurrently; reload and retry", e.SolicitudID)
}

func (e *ConcurrencyConflictError) ErrorCode() ErrorCode { return ErrCodeConcurrencyConflict }

type GenerationExhaustedError struct {
	Year     int
	Attempts int
}

func (e *GenerationExhaustedError) Error() string {
	return fmt.Sprintf("no free application number for %d after %d attempts", e.Year, e.Attempts)
}

func (e *GenerationExhaustedError) ErrorCode() ErrorCode { return ErrCodeGenerationExhausted }

type DocumentsIncompleteError struct {
	SolicitudID string
	Missing     []models.DocumentType
}

func (e *DocumentsIncompleteError) Error() string {
	missing := make([]string, len(e.Missing))
	for i, t := range e.Missing {
		missing[i] = string(t)
	}
	return fmt.Sprintf("solicitud %s is missing required documents: %s", e.SolicitudID, strings.Join(missing, ", "))
}

func (e *DocumentsIncompleteError) ErrorCode() ErrorCode { return ErrCodeDocumentsIncomplete }
