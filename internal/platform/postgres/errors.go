package postgres

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/phrazzld/contacts-ledger/internal/store"
)

// PostgreSQL error codes
const (
	uniqueViolationCode     = "23505"
	foreignKeyViolationCode = "23503"
	checkViolationCode      = "23514"
	notNullViolationCode    = "23502"
	restrictViolationCode   = "23001"

	serializationFailureCode = "40001"
	deadlockDetectedCode     = "40P01"
	lockNotAvailableCode     = "55P03"
)

// Constraint names from the migrations that map to specific store errors.
const (
	contactsEmailKey             = "contacts_email_key"
	operationsContactSequenceKey = "operations_contact_sequence_key"
)

// MapError maps a database error to an appropriate store error.
// It wraps the original error to preserve context for debugging.
func MapError(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %v", store.ErrNotFound, err)
	}

	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}

	switch {
	case IsUniqueViolation(err):
		switch pgErr.ConstraintName {
		case contactsEmailKey:
			return fmt.Errorf("%w: %v", store.ErrEmailExists, err)
		case operationsContactSequenceKey:
			// Another transaction appended the same sequence first.
			return fmt.Errorf("%w: %v", store.ErrConflict, err)
		}
		return fmt.Errorf("%w: %v", store.ErrDuplicate, err)
	case IsConflict(err):
		return fmt.Errorf("%w: %v", store.ErrConflict, err)
	}

	switch pgErr.Code {
	case foreignKeyViolationCode, checkViolationCode, notNullViolationCode, restrictViolationCode:
		return fmt.Errorf(
			"%w: constraint violation (%s): %v",
			store.ErrInvalidEntity,
			pgErr.ConstraintName,
			err,
		)
	}

	return err
}

// IsUniqueViolation checks if the given error is a PostgreSQL unique constraint violation.
func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolationCode
}

// IsConflict reports whether PostgreSQL aborted the transaction because of a
// concurrent writer.
func IsConflict(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	switch pgErr.Code {
	case serializationFailureCode, deadlockDetectedCode, lockNotAvailableCode:
		return true
	}
	return false
}

// CheckRowsAffected examines the number of rows affected by a database operation.
// If no rows were affected, it returns notFound.
func CheckRowsAffected(result sql.Result, notFound error) error {
	if result == nil {
		return fmt.Errorf("nil result provided to CheckRowsAffected")
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return notFound
	}
	return nil
}
