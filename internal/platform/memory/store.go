// Package memory provides an in-process store.LedgerStore. Each contact has
// its own mutex, which is the serialization point for ApplyOperation.
// State is lost when the process exits.
package memory

import (
	"context"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/contacts-ledger/internal/domain"
	"github.com/phrazzld/contacts-ledger/internal/platform/logger"
	"github.com/phrazzld/contacts-ledger/internal/store"
)

type ledgerEntry struct {
	mu      sync.Mutex
	contact domain.Contact
	ops     []domain.Operation
}

// Store implements store.LedgerStore in memory.
type Store struct {
	mu       sync.RWMutex
	contacts map[uuid.UUID]*ledgerEntry
	emails   map[string]uuid.UUID
	logger   *slog.Logger
}

var _ store.LedgerStore = (*Store)(nil)

// NewStore creates an empty Store. A nil logger uses slog.Default().
func NewStore(log *slog.Logger) *Store {
	if log == nil {
		log = slog.Default()
	}
	return &Store{
		contacts: make(map[uuid.UUID]*ledgerEntry),
		emails:   make(map[string]uuid.UUID),
		logger:   log.With(slog.String("component", "memory_store")),
	}
}

// CreateContact implements store.ContactStore.
func (s *Store) CreateContact(ctx context.Context, contact *domain.Contact) error {
	if err := contact.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, taken := s.emails[contact.Email]; taken {
		return store.ErrEmailExists
	}
	if _, exists := s.contacts[contact.ID]; exists {
		return store.ErrDuplicate
	}

	s.contacts[contact.ID] = &ledgerEntry{contact: *contact}
	s.emails[contact.Email] = contact.ID

	logger.FromContextOrDefault(ctx, s.logger).Debug("contact created",
		slog.String("contact_id", contact.ID.String()))
	return nil
}

// GetContact implements store.ContactStore.
func (s *Store) GetContact(_ context.Context, id uuid.UUID) (*domain.Contact, error) {
	entry, ok := s.entry(id)
	if !ok {
		return nil, store.ErrContactNotFound
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	contact := entry.contact
	return &contact, nil
}

// ListContacts implements store.ContactStore.
func (s *Store) ListContacts(_ context.Context) ([]*domain.Contact, error) {
	s.mu.RLock()
	entries := make([]*ledgerEntry, 0, len(s.contacts))
	for _, entry := range s.contacts {
		entries = append(entries, entry)
	}
	s.mu.RUnlock()

	contacts := make([]*domain.Contact, 0, len(entries))
	for _, entry := range entries {
		entry.mu.Lock()
		contact := entry.contact
		entry.mu.Unlock()
		contacts = append(contacts, &contact)
	}

	slices.SortFunc(contacts, func(a, b *domain.Contact) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return slices.Compare(b.ID[:], a.ID[:])
	})
	return contacts, nil
}

// RenameContact implements store.ContactStore.
func (s *Store) RenameContact(_ context.Context, id uuid.UUID, name string, updatedAt time.Time) (*domain.Contact, error) {
	entry, ok := s.entry(id)
	if !ok {
		return nil, store.ErrContactNotFound
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()

	if err := entry.contact.Rename(name, updatedAt); err != nil {
		return nil, err
	}
	contact := entry.contact
	return &contact, nil
}

// ApplyOperation implements store.OperationStore. The contact's mutex is held
// from the read through the append, so concurrent applies on one contact run
// one after another while other contacts proceed in parallel.
func (s *Store) ApplyOperation(
	ctx context.Context,
	contactID uuid.UUID,
	apply store.ApplyFunc,
) (*domain.Operation, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	entry, ok := s.entry(contactID)
	if !ok {
		return nil, store.ErrContactNotFound
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	working := entry.contact
	op, err := apply(&working)
	if err != nil {
		return nil, err
	}
	if err := checkApplied(&entry.contact, &working, op); err != nil {
		log.Error("apply produced an invalid ledger entry",
			slog.String("contact_id", contactID.String()),
			slog.String("error", err.Error()))
		return nil, err
	}

	entry.ops = append(entry.ops, *op)
	entry.contact = working

	result := *op
	return &result, nil
}

// ListOperations implements store.OperationStore.
func (s *Store) ListOperations(
	_ context.Context,
	contactID uuid.UUID,
	r domain.TimeRange,
) ([]*domain.Operation, error) {
	entry, ok := s.entry(contactID)
	if !ok {
		return []*domain.Operation{}, nil
	}

	entry.mu.Lock()
	ops := make([]*domain.Operation, 0, len(entry.ops))
	for i := range entry.ops {
		if r.Contains(entry.ops[i].CreatedAt) {
			op := entry.ops[i]
			ops = append(ops, &op)
		}
	}
	entry.mu.Unlock()

	slices.SortFunc(ops, func(a, b *domain.Operation) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return int(b.Sequence - a.Sequence)
	})
	return ops, nil
}

// Ping implements store.LedgerStore.
func (s *Store) Ping(context.Context) error { return nil }

// Close implements store.LedgerStore.
func (s *Store) Close() error { return nil }

func (s *Store) entry(id uuid.UUID) (*ledgerEntry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.contacts[id]
	return entry, ok
}

// checkApplied enforces the invariants the SQL backends get from constraints.
func checkApplied(before, after *domain.Contact, op *domain.Operation) error {
	if op == nil {
		return store.NewStoreError("operation", "apply", "apply returned no operation", store.ErrInvalidEntity)
	}
	if err := op.Validate(); err != nil {
		return store.NewStoreError("operation", "apply", "invalid operation", err)
	}
	if op.ContactID != before.ID || op.Sequence != before.LastSequence+1 {
		return store.NewStoreError("operation", "apply", "operation does not follow the contact's ledger", store.ErrInvalidEntity)
	}
	if !after.Balance.Equal(op.BalanceAfter) || after.LastSequence != op.Sequence {
		return store.NewStoreError("operation", "apply", "contact does not match operation", store.ErrInvalidEntity)
	}
	return nil
}
