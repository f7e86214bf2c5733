// internal/utils/validator.go
package utils

import (
	"errors"
	"regexp"
	"strings"
	"unicode"

	"github.com/go-playground/validator/v10"
)

var (
	validate        *validator.Validate
	usernamePattern = regexp.MustCompile("^[a-zA-Z0-9_.]+$")
	docTypePattern  = regexp.MustCompile("^[A-Z][A-Z0-9_]*$")
)

func init() {
	validate = validator.New()
	validate.RegisterValidation("strong_password", validateStrongPassword)
	validate.RegisterValidation("username", validateUsername)
	validate.RegisterValidation("doc_type", validateDocType)
}

func ValidateStruct(s interface{}) error {
	return validate.Struct(s)
}

func validateStrongPassword(fl validator.FieldLevel) bool {
	password := fl.Field().String()

	if len(password) < 8 {
		return false
	}

	var hasUpper, hasLower, hasNumber bool

	for _, char := range password {
		switch {
		case unicode.IsUpper(char):
			hasUpper = true
		case unicode.IsLower(char):
			hasLower = true
		case unicode.IsNumber(char):
			hasNumber = true
		}
	}

	return hasUpper && hasLower && hasNumber
}

func validateUsername(fl validator.FieldLevel) bool {
	username := fl.Field().String()

	// Letters, numbers, dots and underscores, 3-50 characters
	if len(username) < 3 || len(username) > 50 {
		return false
	}

	return usernamePattern.MatchString(username)
}

// Document types are catalog keys such as CEDULA or CERTIFICADO_LABORAL.
func validateDocType(fl validator.FieldLevel) bool {
	return docTypePattern.MatchString(fl.Field().String())
}

type ValidationError struct {
	Field   string `json:"field"`
	Tag     string `json:"tag"`
	Message string `json:"message"`
}

func GetValidationErrors(err error) []ValidationError {
	var validationErrors []ValidationError

	var validationErrs validator.ValidationErrors
	if errors.As(err, &validationErrs) {
		for _, e := range validationErrs {
			validationErrors = append(validationErrors, ValidationError{
				Field:   strings.ToLower(e.Field()),
				Tag:     e.Tag(),
				Message: getValidationMessage(e),
			})
		}
	}

	return validationErrors
}

func getValidationMessage(e validator.FieldError) string {
	switch e.Tag() {
	case "required":
		return e.Field() + " is required"
	case "email":
		return "Invalid email format"
	case "min":
		return e.Field() + " must be at least " + e.Param()
	case "max":
		return e.Field() + " must be at most " + e.Param()
	case "oneof":
		return e.Field() + " must be one of " + e.Param()
	case "strong_password":
		return "Password must contain at least 8 characters with uppercase, lowercase and a number"
	case "username":
		return "Username must be 3-50 characters and contain only letters, numbers, dots and underscores"
	case "doc_type":
		return e.Field() + " must be an uppercase document type code"
	default:
		return e.Field() + " is invalid"
	}
}
