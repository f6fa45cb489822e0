package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/contacts-ledger/internal/config"
	"github.com/phrazzld/contacts-ledger/internal/domain"
	"github.com/phrazzld/contacts-ledger/internal/store"
	"github.com/shopspring/decimal"
)

// DefaultTimeLayout renders export timestamps as day/month/year, 24h clock.
const DefaultTimeLayout = "2/1/2006, 15:04:05"

// Service provides the ledger operations exposed by the HTTP API.
type Service interface {
	// CreateContact registers a contact with a zero balance.
	// Returns ErrEmailTaken when the normalized email is already registered
	// and a domain validation error for an empty name or malformed email.
	CreateContact(ctx context.Context, name, email string) (*domain.Contact, error)

	// GetContact returns the contact or ErrContactNotFound.
	GetContact(ctx context.Context, id uuid.UUID) (*domain.Contact, error)

	// ListContacts returns every contact, newest first.
	ListContacts(ctx context.Context) ([]*domain.Contact, error)

	// RenameContact changes the display name only.
	RenameContact(ctx context.Context, id uuid.UUID, name string) (*domain.Contact, error)

	// ApplyOperation credits or debits a contact.
	//
	// The amount is checked before the kind. The change runs in a single
	// store transaction that reads the balance, appends the operation and
	// writes the new balance; conflicts are retried a bounded number of times
	// with backoff before ErrStoreUnavailable is returned. The apply is
	// detached from the caller's cancellation so a disconnecting client never
	// interrupts a commit in flight.
	//
	// Returns:
	//   - domain.ErrInvalidAmount, domain.ErrInvalidKind for bad input
	//   - domain.ErrInsufficientFunds when a debit exceeds the balance
	//   - ErrContactNotFound when the contact does not exist
	//   - ErrStoreUnavailable when the store could not complete the apply
	ApplyOperation(
		ctx context.Context,
		contactID uuid.UUID,
		kind domain.OperationKind,
		amount decimal.Decimal,
	) (*domain.Operation, error)

	// ListOperations returns a contact's history, newest first, optionally
	// restricted to the inclusive range [start, end]. Empty or "undefined"
	// bounds are open. The contact is checked before the bounds are parsed.
	ListOperations(ctx context.Context, contactID uuid.UUID, start, end string) ([]*domain.Operation, error)

	// ExportOperations renders the same rows as ListOperations as a CSV
	// document. The body is built completely before it is returned.
	ExportOperations(ctx context.Context, contactID uuid.UUID, start, end string) (*Export, error)

	// VerifyLedger replays a contact's history and compares it with the
	// stored balances.
	VerifyLedger(ctx context.Context, contactID uuid.UUID) (*LedgerReport, error)
}

// Common error types for the ledger service.
var (
	// ErrContactNotFound indicates that the contact does not exist.
	ErrContactNotFound = errors.New("contact not found")

	// ErrEmailTaken indicates that another contact already uses the email.
	ErrEmailTaken = errors.New("email already registered")

	// ErrStoreUnavailable indicates that the store failed or kept reporting
	// conflicts. Nothing was applied, so the request may be retried.
	ErrStoreUnavailable = errors.New("store unavailable")
)

// ServiceError wraps errors from the ledger service with additional context.
type ServiceError struct {
	// Operation is the operation that failed (e.g., "apply_operation", "export_operations")
	Operation string
	// Message is a human-readable description of the error
	Message string
	// Err is the underlying error that caused the failure
	Err error
}

// Error implements the error interface for ServiceError.
func (e *ServiceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s operation failed: %s: %v", e.Operation, e.Message, e.Err)
	}
	return fmt.Sprintf("%s operation failed: %s", e.Operation, e.Message)
}

// Unwrap returns the wrapped error to support errors.Is/errors.As.
func (e *ServiceError) Unwrap() error {
	return e.Err
}

// NewServiceError translates err for callers of the service.
// Store and domain sentinels come back as the service or domain sentinel
// they correspond to; anything else is a store failure and is wrapped in a
// ServiceError carrying ErrStoreUnavailable.
func NewServiceError(operation, message string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrContactNotFound), errors.Is(err, store.ErrContactNotFound):
		return ErrContactNotFound
	case errors.Is(err, ErrEmailTaken), errors.Is(err, store.ErrEmailExists):
		return ErrEmailTaken
	case errors.Is(err, domain.ErrValidation),
		errors.Is(err, domain.ErrInvalidAmount),
		errors.Is(err, domain.ErrInvalidKind),
		errors.Is(err, domain.ErrInsufficientFunds),
		errors.Is(err, domain.ErrInvalidDateRange):
		return err
	case errors.Is(err, ErrStoreUnavailable):
		return &ServiceError{Operation: operation, Message: message, Err: err}
	}
	return &ServiceError{
		Operation: operation,
		Message:   message,
		Err:       fmt.Errorf("%w: %w", ErrStoreUnavailable, err),
	}
}

// Config tunes a Service. Zero fields take the defaults noted on each.
type Config struct {
	// MaxApplyAttempts bounds apply attempts on conflict (default 3).
	MaxApplyAttempts int
	// RetryBaseDelay is the first backoff delay, doubled per retry (default 25ms).
	RetryBaseDelay time.Duration
	// ApplyTimeout bounds one ApplyOperation call including retries (default 10s).
	ApplyTimeout time.Duration
	// Location is the zone export timestamps and calendar-date bounds use (default UTC).
	Location *time.Location
	// TimeLayout formats export timestamps (default DefaultTimeLayout).
	TimeLayout string
	// Now supplies operation timestamps (default time.Now).
	Now func() time.Time
}

// ConfigFrom builds a Config from the application configuration.
func ConfigFrom(ledger config.LedgerConfig, export config.ExportConfig) Config {
	return Config{
		MaxApplyAttempts: ledger.MaxApplyAttempts,
		RetryBaseDelay:   ledger.RetryBaseDelay,
		ApplyTimeout:     ledger.ApplyTimeout,
		Location:         export.Location(),
		TimeLayout:       export.TimeLayout,
	}
}

func (c Config) withDefaults() Config {
	if c.MaxApplyAttempts < 1 {
		c.MaxApplyAttempts = 3
	}
	if c.RetryBaseDelay <= 0 {
		c.RetryBaseDelay = 25 * time.Millisecond
	}
	if c.ApplyTimeout <= 0 {
		c.ApplyTimeout = 10 * time.Second
	}
	if c.Location == nil {
		c.Location = time.UTC
	}
	if c.TimeLayout == "" {
		c.TimeLayout = DefaultTimeLayout
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	return c
}

// Export is a rendered CSV download.
type Export struct {
	// Filename is operaciones_<name>_<start|inicio>_<end|actual>.csv.
	Filename string
	// ContentType is the media type of Body.
	ContentType string
	// Body is the complete CSV document, header row included.
	Body []byte
	// Rows is the number of operations in Body.
	Rows int
}

// LedgerReport is the outcome of VerifyLedger.
type LedgerReport struct {
	ContactID uuid.UUID
	// Consistent is false when replaying the history does not reproduce the
	// stored balanceAfter values or the contact balance.
	Consistent bool
	// Balance is the stored contact balance.
	Balance decimal.Decimal
	// ReplayedBalance is the balance obtained by folding the history from zero.
	ReplayedBalance decimal.Decimal
	// Operations is the number of operations replayed.
	Operations int
	// Problem describes the first inconsistency found.
	Problem string
}
