// internal/i18n/keys.go
package i18n

// Translation keys constants
const (
	// Authentication
	KeyAuthRequired           = "auth.required"
	KeyAuthInvalidToken       = "auth.invalid_token"
	KeyAuthInvalidCredentials = "auth.invalid_credentials"
	KeyAuthSuspended          = "auth.suspended"
	KeyAuthForbidden          = "auth.forbidden"

	// Validation
	KeyValidationInvalid = "validation.invalid"
	KeyValidationID      = "validation.invalid_id"

	// Solicitudes
	KeySolicitudNotFound      = "solicitud.not_found"
	KeySolicitudArchived      = "solicitud.archived"
	KeySolicitudRestored      = "solicitud.restored"
	KeyTransitionNotAllowed   = "solicitud.transition_not_allowed"
	KeyUnknownState           = "solicitud.unknown_state"
	KeyConcurrencyConflict    = "solicitud.concurrency_conflict"
	KeyDocumentsIncomplete    = "solicitud.documents_incomplete"
	KeyNumberExhausted        = "solicitud.number_exhausted"
	KeyInvalidResourceState   = "common.invalid_state"
	KeyDocumentNotFound       = "document.not_found"
	KeySignatureNotFound      = "signature.not_found"
	KeySignatoryNotFound      = "signatory.not_found"
	KeyUserNotFound           = "user.not_found"
	KeyNotificationNotFound   = "notification.not_found"
	KeyNotificationMarkedRead = "notification.marked_read"

	// Users
	KeyUserProfileUpdated   = "user.profile_updated"
	KeyUserPasswordChanged  = "user.password_changed"
	KeyAdminUserSuspended   = "admin.user_suspended"
	KeyAdminUserUnsuspended = "admin.user_unsuspended"

	// System
	KeyRateLimitExceeded = "system.rate_limit_exceeded"
	KeyInternalError     = "system.internal_error"
)
