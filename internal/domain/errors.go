package domain

import (
	"errors"
	"fmt"
)

// Common domain errors used across the application.
var (
	// ErrValidation is returned when a domain entity fails validation.
	// This is often wrapped with a more specific error message.
	ErrValidation = errors.New("validation failed")

	// ErrInvalidID is returned when an ID is malformed or invalid.
	ErrInvalidID = errors.New("invalid ID")

	// ErrInvalidAmount is returned when an operation amount is not a number
	// strictly greater than zero.
	ErrInvalidAmount = errors.New("amount must be a number greater than zero")

	// ErrInvalidKind is returned when an operation type is neither credit nor debit.
	ErrInvalidKind = errors.New(`operation type must be "credit" or "debit"`)

	// ErrInsufficientFunds is returned when a debit would leave a negative balance.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrInvalidDateRange is returned when a date filter cannot be parsed or
	// when the start bound falls after the end bound.
	ErrInvalidDateRange = errors.New("invalid date range")

	// ErrLedgerInconsistent is returned when replaying a contact's operations
	// does not reproduce the stored balances.
	ErrLedgerInconsistent = errors.New("ledger is inconsistent")
)

// Contact validation errors. All of them wrap ErrValidation.
var (
	ErrEmptyContactID   = fmt.Errorf("%w: contact ID cannot be empty", ErrValidation)
	ErrEmptyContactName = fmt.Errorf("%w: contact name cannot be empty", ErrValidation)
	ErrEmptyEmail       = fmt.Errorf("%w: email cannot be empty", ErrValidation)
	ErrInvalidEmail     = fmt.Errorf("%w: invalid email format", ErrValidation)
	ErrNegativeBalance  = fmt.Errorf("%w: balance cannot be negative", ErrValidation)
)

// ValidationError describes a single invalid field.
type ValidationError struct {
	Field   string
	Message string
	Err     error
}

// Error implements the error interface for ValidationError.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s %s", e.Field, e.Message)
}

// Unwrap returns the wrapped error to support errors.Is/errors.As.
func (e *ValidationError) Unwrap() error {
	return e.Err
}

// NewValidationError creates a ValidationError for the given field.
func NewValidationError(field, message string, err error) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: message,
		Err:     err,
	}
}
