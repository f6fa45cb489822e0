package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/phrazzld/contacts-ledger/internal/api/shared"
	"github.com/phrazzld/contacts-ledger/internal/domain"
	"github.com/phrazzld/contacts-ledger/internal/service/ledger"
	"github.com/phrazzld/contacts-ledger/internal/store"
)

// Stable, machine-readable error kinds carried in error responses.
const (
	KindNotFound          = "NotFound"
	KindEmailTaken        = "EmailTaken"
	KindInvalidAmount     = "InvalidAmount"
	KindInvalidKind       = "InvalidKind"
	KindInsufficientFunds = "InsufficientFunds"
	KindInvalidDateRange  = "InvalidDateRange"
	KindValidationFailed  = "ValidationFailed"
	KindStoreUnavailable  = "StoreUnavailable"
	KindInternal          = "Internal"
)

// MapErrorToStatusCode maps internal errors to appropriate HTTP status codes
// based on the error type. This prevents leaking internal error types or
// messages to clients.
func MapErrorToStatusCode(err error) int {
	switch ErrorKind(err) {
	case KindNotFound:
		return http.StatusNotFound
	case KindEmailTaken,
		KindInvalidAmount,
		KindInvalidKind,
		KindInsufficientFunds,
		KindInvalidDateRange,
		KindValidationFailed:
		return http.StatusBadRequest
	case KindStoreUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// ErrorKind classifies err into one of the Kind constants.
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return KindInternal

	case errors.Is(err, ledger.ErrContactNotFound),
		errors.Is(err, store.ErrNotFound),
		errors.Is(err, domain.ErrInvalidID):
		return KindNotFound

	case errors.Is(err, ledger.ErrEmailTaken),
		errors.Is(err, store.ErrEmailExists):
		return KindEmailTaken

	case errors.Is(err, domain.ErrInvalidAmount):
		return KindInvalidAmount
	case errors.Is(err, domain.ErrInvalidKind):
		return KindInvalidKind
	case errors.Is(err, domain.ErrInsufficientFunds):
		return KindInsufficientFunds
	case errors.Is(err, domain.ErrInvalidDateRange):
		return KindInvalidDateRange

	case errors.Is(err, domain.ErrValidation),
		errors.Is(err, errBadRequest):
		return KindValidationFailed

	case errors.Is(err, ledger.ErrStoreUnavailable):
		return KindStoreUnavailable

	default:
		return KindInternal
	}
}

// GetSafeErrorMessage returns a sanitized, user-friendly error message
// based on the error type. This prevents leaking sensitive internal details.
func GetSafeErrorMessage(err error) string {
	if err == nil {
		return "An unexpected error occurred"
	}

	switch ErrorKind(err) {
	case KindNotFound:
		return "Contact not found"
	case KindEmailTaken:
		return "Email already registered"
	case KindInvalidAmount:
		return "Amount must be a number greater than zero"
	case KindInvalidKind:
		return `Operation type must be "credit" or "debit"`
	case KindInsufficientFunds:
		return "Insufficient funds"
	case KindInvalidDateRange:
		return "Invalid date range"
	case KindStoreUnavailable:
		return "The ledger is temporarily unavailable, please retry"
	}

	var vErr *domain.ValidationError
	switch {
	case errors.As(err, &vErr):
		return fmt.Sprintf("Invalid %s: %s", vErr.Field, vErr.Message)
	case errors.Is(err, domain.ErrEmptyContactName):
		return "Name is required"
	case errors.Is(err, domain.ErrEmptyEmail):
		return "Email is required"
	case errors.Is(err, domain.ErrInvalidEmail):
		return "Invalid email format"
	case errors.Is(err, domain.ErrValidation):
		return "Validation error"
	case errors.Is(err, errBadRequest):
		return "Invalid request format"
	}
	return "An unexpected error occurred"
}

// SanitizeValidationError removes sensitive details from validation errors
// and returns a user-friendly message.
func SanitizeValidationError(err error) string {
	errMsg := err.Error()

	// Example format: "Key: 'CreateContactRequest.Email' Error:Field validation for 'Email' failed on the 'email' tag"
	if strings.Contains(errMsg, "Field validation") {
		parts := strings.Split(errMsg, "Error:")
		if len(parts) >= 2 {
			fieldParts := strings.Split(parts[1], "'")
			if len(fieldParts) >= 3 {
				field := fieldParts[1]
				var tag string
				if len(fieldParts) >= 5 {
					tag = fieldParts[3]
				}
				if tag != "" {
					return fmt.Sprintf("Invalid %s: %s", field, getValidationTagMessage(tag))
				}
				return fmt.Sprintf("Invalid %s", field)
			}
		}
	}

	return "Validation error"
}

func getValidationTagMessage(tag string) string {
	switch tag {
	case "required":
		return "required field"
	case "email":
		return "invalid email format"
	case "min":
		return "too short"
	case "max":
		return "too long"
	case "oneof":
		return "invalid value"
	default:
		return "validation failed"
	}
}

// errBadRequest marks malformed request bodies.
var errBadRequest = errors.New("bad request")

// HandleAPIError writes the error response for err. A non-empty message
// overrides the safe message derived from the error.
func HandleAPIError(w http.ResponseWriter, r *http.Request, err error, message string) {
	if message == "" {
		message = GetSafeErrorMessage(err)
	}
	status := MapErrorToStatusCode(err)
	shared.RespondWithErrorAndLog(w, r, status, message, err, shared.WithErrorKind(ErrorKind(err)))
}
