package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/phrazzld/contacts-ledger/internal/domain"
	"github.com/phrazzld/contacts-ledger/internal/events"
	"github.com/phrazzld/contacts-ledger/internal/platform/logger"
	"github.com/phrazzld/contacts-ledger/internal/redact"
	"github.com/phrazzld/contacts-ledger/internal/store"
	"github.com/sethvargo/go-retry"
	"github.com/shopspring/decimal"
)

// retryJitterPercent spreads concurrent retries on the same contact apart.
const retryJitterPercent = 20

// serviceImpl implements the Service interface.
type serviceImpl struct {
	store        store.LedgerStore
	eventEmitter events.EventEmitter
	cfg          Config
	logger       *slog.Logger
}

var _ Service = (*serviceImpl)(nil)

// NewService creates a new ledger Service.
// It returns an error if any of the required dependencies are nil.
func NewService(
	ledgerStore store.LedgerStore,
	eventEmitter events.EventEmitter,
	cfg Config,
	log *slog.Logger,
) (Service, error) {
	if ledgerStore == nil {
		return nil, domain.NewValidationError("ledgerStore", "cannot be nil", domain.ErrValidation)
	}
	if eventEmitter == nil {
		return nil, domain.NewValidationError("eventEmitter", "cannot be nil", domain.ErrValidation)
	}
	if log == nil {
		log = slog.Default()
	}

	return &serviceImpl{
		store:        ledgerStore,
		eventEmitter: eventEmitter,
		cfg:          cfg.withDefaults(),
		logger:       log.With(slog.String("component", "ledger_service")),
	}, nil
}

// CreateContact implements Service.
func (s *serviceImpl) CreateContact(ctx context.Context, name, email string) (*domain.Contact, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	contact, err := domain.NewContact(name, email)
	if err != nil {
		log.Debug("invalid contact", slog.String("error", redact.Error(err)))
		return nil, err
	}
	contact.CreatedAt = s.cfg.Now().UTC()
	contact.UpdatedAt = contact.CreatedAt

	if err := s.store.CreateContact(ctx, contact); err != nil {
		if errors.Is(err, store.ErrEmailExists) {
			log.Debug("email already registered")
			return nil, ErrEmailTaken
		}
		log.Error("failed to create contact", slog.String("error", redact.Error(err)))
		return nil, NewServiceError("create_contact", "failed to save contact", err)
	}

	s.emit(ctx, events.TypeContactCreated, events.ContactCreatedPayload{
		ContactID: contact.ID,
		Name:      contact.Name,
	})
	return contact, nil
}

// GetContact implements Service.
func (s *serviceImpl) GetContact(ctx context.Context, id uuid.UUID) (*domain.Contact, error) {
	contact, err := s.store.GetContact(ctx, id)
	if err != nil {
		if !errors.Is(err, store.ErrContactNotFound) {
			logger.FromContextOrDefault(ctx, s.logger).Error("failed to get contact",
				slog.String("error", redact.Error(err)),
				slog.String("contact_id", id.String()))
		}
		return nil, NewServiceError("get_contact", "failed to load contact", err)
	}
	return contact, nil
}

// ListContacts implements Service.
func (s *serviceImpl) ListContacts(ctx context.Context) ([]*domain.Contact, error) {
	contacts, err := s.store.ListContacts(ctx)
	if err != nil {
		logger.FromContextOrDefault(ctx, s.logger).Error("failed to list contacts",
			slog.String("error", redact.Error(err)))
		return nil, NewServiceError("list_contacts", "failed to list contacts", err)
	}
	return contacts, nil
}

// RenameContact implements Service.
func (s *serviceImpl) RenameContact(ctx context.Context, id uuid.UUID, name string) (*domain.Contact, error) {
	contact, err := s.store.RenameContact(ctx, id, name, s.cfg.Now())
	if err != nil {
		if !errors.Is(err, store.ErrContactNotFound) && !errors.Is(err, domain.ErrValidation) {
			logger.FromContextOrDefault(ctx, s.logger).Error("failed to rename contact",
				slog.String("error", redact.Error(err)),
				slog.String("contact_id", id.String()))
		}
		return nil, NewServiceError("rename_contact", "failed to rename contact", err)
	}
	return contact, nil
}

// ApplyOperation implements Service.
func (s *serviceImpl) ApplyOperation(
	ctx context.Context,
	contactID uuid.UUID,
	kind domain.OperationKind,
	amount decimal.Decimal,
) (*domain.Operation, error) {
	log := logger.FromContextOrDefault(ctx, s.logger).With(
		slog.String("contact_id", contactID.String()))

	if err := domain.ValidateAmount(amount); err != nil {
		return nil, err
	}
	if !kind.Valid() {
		return nil, fmt.Errorf("%w: got %q", domain.ErrInvalidKind, string(kind))
	}

	// The caller going away must not abort a transaction that may be committing.
	applyCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.ApplyTimeout)
	defer cancel()

	backoff := retry.NewExponential(s.cfg.RetryBaseDelay)
	backoff = retry.WithJitterPercent(retryJitterPercent, backoff)
	backoff = retry.WithMaxRetries(uint64(s.cfg.MaxApplyAttempts-1), backoff)

	var (
		applied  *domain.Operation
		attempts int
	)
	err := retry.Do(applyCtx, backoff, func(ctx context.Context) error {
		attempts++
		op, err := s.store.ApplyOperation(ctx, contactID, func(c *domain.Contact) (*domain.Operation, error) {
			return c.Apply(kind, amount, s.cfg.Now())
		})
		if err != nil {
			if store.IsConflictError(err) {
				log.Warn("apply conflicted, retrying",
					slog.Int("attempt", attempts),
					slog.String("error", redact.Error(err)))
				return retry.RetryableError(err)
			}
			return err
		}
		applied = op
		return nil
	})
	if err != nil {
		if errors.Is(err, domain.ErrInsufficientFunds) {
			log.Debug("debit rejected", slog.String("error", redact.Error(err)))
		} else if !errors.Is(err, store.ErrContactNotFound) {
			log.Error("apply failed",
				slog.Int("attempts", attempts),
				slog.String("error", redact.Error(err)))
		}
		return nil, NewServiceError("apply_operation",
			fmt.Sprintf("operation not applied after %d attempt(s)", attempts), err)
	}

	s.emit(ctx, events.TypeOperationApplied, events.OperationAppliedPayload{
		OperationID:  applied.ID,
		ContactID:    applied.ContactID,
		Kind:         string(applied.Kind),
		Amount:       applied.Amount.String(),
		BalanceAfter: applied.BalanceAfter.String(),
		Sequence:     applied.Sequence,
	})
	return applied, nil
}

// ListOperations implements Service.
func (s *serviceImpl) ListOperations(
	ctx context.Context,
	contactID uuid.UUID,
	start, end string,
) ([]*domain.Operation, error) {
	_, ops, err := s.history(ctx, "list_operations", contactID, start, end)
	return ops, err
}

// history loads the contact, then parses the bounds, then lists the
// contact's operations in that range.
func (s *serviceImpl) history(
	ctx context.Context,
	operation string,
	contactID uuid.UUID,
	start, end string,
) (*domain.Contact, []*domain.Operation, error) {
	contact, err := s.GetContact(ctx, contactID)
	if err != nil {
		return nil, nil, err
	}

	r, err := domain.ParseDateRange(start, end, s.cfg.Location)
	if err != nil {
		return nil, nil, err
	}

	ops, err := s.store.ListOperations(ctx, contactID, r)
	if err != nil {
		logger.FromContextOrDefault(ctx, s.logger).Error("failed to list operations",
			slog.String("error", redact.Error(err)),
			slog.String("contact_id", contactID.String()))
		return nil, nil, NewServiceError(operation, "failed to list operations", err)
	}
	return contact, ops, nil
}

// VerifyLedger implements Service.
func (s *serviceImpl) VerifyLedger(ctx context.Context, contactID uuid.UUID) (*LedgerReport, error) {
	contact, ops, err := s.history(ctx, "verify_ledger", contactID, "", "")
	if err != nil {
		return nil, err
	}

	report := &LedgerReport{
		ContactID:  contact.ID,
		Consistent: true,
		Balance:    contact.Balance,
		Operations: len(ops),
	}
	report.ReplayedBalance, _ = domain.ReplayOperations(ops)

	if err := domain.VerifyLedger(contact, ops); err != nil {
		if !errors.Is(err, domain.ErrLedgerInconsistent) {
			return nil, NewServiceError("verify_ledger", "failed to replay ledger", err)
		}
		report.Consistent = false
		report.Problem = err.Error()
		logger.FromContextOrDefault(ctx, s.logger).Error("ledger inconsistent",
			slog.String("contact_id", contactID.String()),
			slog.String("problem", report.Problem))
	}
	return report, nil
}

// emit publishes an event for a committed change. Failures are logged and
// never reach the caller.
func (s *serviceImpl) emit(ctx context.Context, eventType string, payload any) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	event, err := events.NewEvent(eventType, payload)
	if err != nil {
		log.Error("failed to build event", slog.String("event_type", eventType), slog.String("error", redact.Error(err)))
		return
	}
	if err := s.eventEmitter.EmitEvent(context.WithoutCancel(ctx), event); err != nil {
		log.Warn("event delivery failed",
			slog.String("event_type", eventType),
			slog.String("event_id", event.ID.String()),
			slog.String("error", redact.Error(err)))
	}
}
