package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/contacts-ledger/internal/domain"
)

// ApplyFunc decides the next ledger entry for a contact. It receives the
// contact as read inside the apply transaction, must move its balance, and
// returns the operation to append. Returning an error aborts the transaction
// and leaves the stored state untouched.
type ApplyFunc func(contact *domain.Contact) (*domain.Operation, error)

// ContactStore defines persistence for contacts.
type ContactStore interface {
	// CreateContact saves a new contact.
	// Returns ErrEmailExists if the email is already taken.
	CreateContact(ctx context.Context, contact *domain.Contact) error

	// GetContact retrieves a contact by ID.
	// Returns ErrContactNotFound if the contact does not exist.
	GetContact(ctx context.Context, id uuid.UUID) (*domain.Contact, error)

	// ListContacts returns all contacts, newest first.
	ListContacts(ctx context.Context) ([]*domain.Contact, error)

	// RenameContact replaces the contact's name and bumps UpdatedAt.
	// Balance and email are never written on this path.
	// Returns ErrContactNotFound if the contact does not exist.
	RenameContact(ctx context.Context, id uuid.UUID, name string, updatedAt time.Time) (*domain.Contact, error)
}

// OperationStore defines persistence for the append-only operation log.
type OperationStore interface {
	// ApplyOperation locks the contact, calls apply with it, then inserts the
	// returned operation and writes the contact's Balance, LastSequence and
	// UpdatedAt, all in one transaction.
	//
	// Returns ErrContactNotFound if the contact does not exist, the error from
	// apply unchanged if it fails, and ErrConflict when the backend aborted
	// the transaction because of a concurrent writer; in every error case
	// nothing was written and the call may be repeated.
	ApplyOperation(ctx context.Context, contactID uuid.UUID, apply ApplyFunc) (*domain.Operation, error)

	// ListOperations returns the contact's operations whose CreatedAt falls
	// within r, newest first, ties broken by descending Sequence.
	// An unknown contact yields an empty slice.
	ListOperations(ctx context.Context, contactID uuid.UUID, r domain.TimeRange) ([]*domain.Operation, error)
}

// LedgerStore is the full persistence contract used by the ledger service.
type LedgerStore interface {
	ContactStore
	OperationStore

	// Ping reports whether the backend is reachable.
	Ping(ctx context.Context) error

	// Close releases the backend's resources.
	Close() error
}
