package mongo

import (
	"errors"
	"fmt"
	"strings"

	"github.com/phrazzld/contacts-ledger/internal/store"
	"go.mongodb.org/mongo-driver/v2/mongo"
)

// Index names referenced when classifying duplicate key errors.
const (
	emailIndexName    = "contacts_email_key"
	sequenceIndexName = "operations_contact_sequence_key"
)

// writeConflictCode is the server error code for a transaction write conflict.
const writeConflictCode = 112

// MapError maps a driver error to an appropriate store error, keeping the
// driver message.
func MapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, mongo.ErrNoDocuments) {
		return fmt.Errorf("%w: %v", store.ErrNotFound, err)
	}

	if mongo.IsDuplicateKeyError(err) {
		message := err.Error()
		switch {
		case strings.Contains(message, emailIndexName):
			return fmt.Errorf("%w: %v", store.ErrEmailExists, err)
		case strings.Contains(message, sequenceIndexName):
			return fmt.Errorf("%w: %v", store.ErrConflict, err)
		}
		return fmt.Errorf("%w: %v", store.ErrDuplicate, err)
	}

	if IsConflict(err) {
		return fmt.Errorf("%w: %v", store.ErrConflict, err)
	}
	return err
}

// IsConflict reports whether err is a transaction write conflict or carries
// the TransientTransactionError label.
func IsConflict(err error) bool {
	var labeled mongo.LabeledError
	if errors.As(err, &labeled) && labeled.HasErrorLabel("TransientTransactionError") {
		return true
	}
	var serverErr mongo.ServerError
	return errors.As(err, &serverErr) && serverErr.HasErrorCode(writeConflictCode)
}
