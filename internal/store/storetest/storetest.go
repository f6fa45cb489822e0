// Package storetest holds a conformance suite that every store.LedgerStore
// implementation runs from its own tests.
package storetest

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/contacts-ledger/internal/domain"
	"github.com/phrazzld/contacts-ledger/internal/store"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

// Factory returns an empty store. Cleanup is the factory's responsibility.
type Factory func(t *testing.T) store.LedgerStore

// timeTolerance absorbs backends that store timestamps at coarser precision
// than time.Time (microseconds in PostgreSQL, milliseconds in MongoDB).
const timeTolerance = time.Millisecond

// Run executes the full suite against stores produced by newStore.
func Run(t *testing.T, newStore Factory) {
	t.Helper()

	t.Run("CreateAndGetContact", func(t *testing.T) { testCreateAndGet(t, newStore(t)) })
	t.Run("DuplicateEmail", func(t *testing.T) { testDuplicateEmail(t, newStore(t)) })
	t.Run("GetMissingContact", func(t *testing.T) { testGetMissing(t, newStore(t)) })
	t.Run("ListContactsNewestFirst", func(t *testing.T) { testListContacts(t, newStore(t)) })
	t.Run("RenameContact", func(t *testing.T) { testRename(t, newStore(t)) })
	t.Run("ApplyOperations", func(t *testing.T) { testApply(t, newStore(t)) })
	t.Run("ApplyRejectedLeavesStateUntouched", func(t *testing.T) { testApplyRejected(t, newStore(t)) })
	t.Run("ApplyMissingContact", func(t *testing.T) { testApplyMissing(t, newStore(t)) })
	t.Run("ListOperationsRange", func(t *testing.T) { testListOperationsRange(t, newStore(t)) })
	t.Run("ConcurrentDebits", func(t *testing.T) { testConcurrentDebits(t, newStore(t)) })
	t.Run("IndependentContacts", func(t *testing.T) { testIndependentContacts(t, newStore(t)) })
	t.Run("Ping", func(t *testing.T) { require.NoError(t, newStore(t).Ping(context.Background())) })
}

// NewContact builds a valid contact with a unique email.
func NewContact(t *testing.T, name string) *domain.Contact {
	t.Helper()
	contact, err := domain.NewContact(name, fmt.Sprintf("%s-%s@example.com", name, uuid.NewString()[:8]))
	require.NoError(t, err)
	contact.CreatedAt = contact.CreatedAt.Truncate(timeTolerance)
	contact.UpdatedAt = contact.CreatedAt
	return contact
}

// Apply returns an ApplyFunc for a fixed request, stamped with the time of the call.
func Apply(kind domain.OperationKind, amount string) store.ApplyFunc {
	return ApplyAt(kind, amount, time.Time{})
}

// ApplyAt is Apply with an explicit operation timestamp; a zero at means now.
func ApplyAt(kind domain.OperationKind, amount string, at time.Time) store.ApplyFunc {
	value := decimal.RequireFromString(amount)
	return func(c *domain.Contact) (*domain.Operation, error) {
		now := at
		if now.IsZero() {
			now = time.Now()
		}
		return c.Apply(kind, value, now.Truncate(timeTolerance))
	}
}

// ApplyWithRetry repeats ApplyOperation while the backend reports a conflict.
func ApplyWithRetry(ctx context.Context, s store.LedgerStore, id uuid.UUID, fn store.ApplyFunc) (*domain.Operation, error) {
	for {
		op, err := s.ApplyOperation(ctx, id, fn)
		if errors.Is(err, store.ErrConflict) {
			time.Sleep(time.Millisecond)
			continue
		}
		return op, err
	}
}

func mustCreate(t *testing.T, s store.LedgerStore, name string) *domain.Contact {
	t.Helper()
	contact := NewContact(t, name)
	require.NoError(t, s.CreateContact(context.Background(), contact))
	return contact
}

func assertDecimal(t *testing.T, want string, got decimal.Decimal, msgAndArgs ...any) {
	t.Helper()
	assert.True(t, decimal.RequireFromString(want).Equal(got),
		append([]any{"want %s, got %s", want, got.String()}, msgAndArgs...)...)
}

func testCreateAndGet(t *testing.T, s store.LedgerStore) {
	ctx := context.Background()
	contact := mustCreate(t, s, "ana")

	got, err := s.GetContact(ctx, contact.ID)
	require.NoError(t, err)
	assert.Equal(t, contact.ID, got.ID)
	assert.Equal(t, contact.Name, got.Name)
	assert.Equal(t, contact.Email, got.Email)
	assertDecimal(t, "0", got.Balance)
	assert.Zero(t, got.LastSequence)
	assert.WithinDuration(t, contact.CreatedAt, got.CreatedAt, timeTolerance)
}

func testDuplicateEmail(t *testing.T, s store.LedgerStore) {
	ctx := context.Background()
	first := mustCreate(t, s, "ana")

	second, err := domain.NewContact("Other Ana", first.Email)
	require.NoError(t, err)
	err = s.CreateContact(ctx, second)
	assert.ErrorIs(t, err, store.ErrEmailExists)

	contacts, err := s.ListContacts(ctx)
	require.NoError(t, err)
	assert.Len(t, contacts, 1, "only one contact exists after the duplicate is rejected")
}

func testGetMissing(t *testing.T, s store.LedgerStore) {
	_, err := s.GetContact(context.Background(), uuid.New())
	assert.ErrorIs(t, err, store.ErrContactNotFound)
}

func testListContacts(t *testing.T, s store.LedgerStore) {
	ctx := context.Background()
	base := time.Now().UTC().Truncate(time.Second).Add(-time.Hour)

	var ids []uuid.UUID
	for i, name := range []string{"old", "mid", "new"} {
		contact := NewContact(t, name)
		contact.CreatedAt = base.Add(time.Duration(i) * time.Minute)
		contact.UpdatedAt = contact.CreatedAt
		require.NoError(t, s.CreateContact(ctx, contact))
		ids = append(ids, contact.ID)
	}

	contacts, err := s.ListContacts(ctx)
	require.NoError(t, err)
	require.Len(t, contacts, 3)
	assert.Equal(t, []uuid.UUID{ids[2], ids[1], ids[0]},
		[]uuid.UUID{contacts[0].ID, contacts[1].ID, contacts[2].ID})

	again, err := s.ListContacts(ctx)
	require.NoError(t, err)
	assert.Equal(t, contacts, again, "listing is a pure query")
}

func testRename(t *testing.T, s store.LedgerStore) {
	ctx := context.Background()
	contact := mustCreate(t, s, "ana")
	_, err := s.ApplyOperation(ctx, contact.ID, Apply(domain.OperationCredit, "40"))
	require.NoError(t, err)

	at := time.Now().UTC().Truncate(timeTolerance)
	renamed, err := s.RenameContact(ctx, contact.ID, "Ana María", at)
	require.NoError(t, err)
	assert.Equal(t, "Ana María", renamed.Name)
	assert.Equal(t, contact.Email, renamed.Email)
	assertDecimal(t, "40", renamed.Balance, "rename must not touch the balance")
	assert.WithinDuration(t, at, renamed.UpdatedAt, timeTolerance)

	got, err := s.GetContact(ctx, contact.ID)
	require.NoError(t, err)
	assert.Equal(t, "Ana María", got.Name)

	_, err = s.RenameContact(ctx, uuid.New(), "Nobody", at)
	assert.ErrorIs(t, err, store.ErrContactNotFound)
}

func testApply(t *testing.T, s store.LedgerStore) {
	ctx := context.Background()
	contact := mustCreate(t, s, "ana")

	steps := []struct {
		kind          domain.OperationKind
		amount, after string
	}{
		{domain.OperationCredit, "50", "50"},
		{domain.OperationDebit, "20", "30"},
		{domain.OperationCredit, "5", "35"},
	}
	for i, step := range steps {
		op, err := s.ApplyOperation(ctx, contact.ID, Apply(step.kind, step.amount))
		require.NoError(t, err)
		assert.Equal(t, contact.ID, op.ContactID)
		assert.Equal(t, step.kind, op.Kind)
		assertDecimal(t, step.amount, op.Amount)
		assertDecimal(t, step.after, op.BalanceAfter)
		assert.Equal(t, int64(i+1), op.Sequence)
	}

	got, err := s.GetContact(ctx, contact.ID)
	require.NoError(t, err)
	assertDecimal(t, "35", got.Balance)
	assert.Equal(t, int64(3), got.LastSequence)

	ops, err := s.ListOperations(ctx, contact.ID, domain.TimeRange{})
	require.NoError(t, err)
	require.Len(t, ops, 3)
	assert.Equal(t, []int64{3, 2, 1}, []int64{ops[0].Sequence, ops[1].Sequence, ops[2].Sequence},
		"operations are listed newest first")
	assertDecimal(t, "35", ops[0].BalanceAfter)
	assert.NoError(t, domain.VerifyLedger(got, ops))

	again, err := s.ListOperations(ctx, contact.ID, domain.TimeRange{})
	require.NoError(t, err)
	assert.Equal(t, ops, again, "listing is a pure query")
}

func testApplyRejected(t *testing.T, s store.LedgerStore) {
	ctx := context.Background()
	contact := mustCreate(t, s, "ana")
	_, err := s.ApplyOperation(ctx, contact.ID, Apply(domain.OperationCredit, "100"))
	require.NoError(t, err)

	_, err = s.ApplyOperation(ctx, contact.ID, Apply(domain.OperationDebit, "150"))
	assert.ErrorIs(t, err, domain.ErrInsufficientFunds)

	sentinel := errors.New("callback failed")
	_, err = s.ApplyOperation(ctx, contact.ID, func(c *domain.Contact) (*domain.Operation, error) {
		c.Balance = decimal.NewFromInt(999)
		return nil, sentinel
	})
	assert.ErrorIs(t, err, sentinel)

	got, err := s.GetContact(ctx, contact.ID)
	require.NoError(t, err)
	assertDecimal(t, "100", got.Balance)
	assert.Equal(t, int64(1), got.LastSequence)

	ops, err := s.ListOperations(ctx, contact.ID, domain.TimeRange{})
	require.NoError(t, err)
	assert.Len(t, ops, 1)
}

func testApplyMissing(t *testing.T, s store.LedgerStore) {
	called := false
	_, err := s.ApplyOperation(context.Background(), uuid.New(), func(c *domain.Contact) (*domain.Operation, error) {
		called = true
		return nil, nil
	})
	assert.ErrorIs(t, err, store.ErrContactNotFound)
	assert.False(t, called)
}

func testListOperationsRange(t *testing.T, s store.LedgerStore) {
	ctx := context.Background()
	contact := mustCreate(t, s, "ana")

	day := func(d int) time.Time { return time.Date(2024, 1, d, 12, 0, 0, 0, time.UTC) }
	for _, d := range []int{10, 15, 20} {
		_, err := s.ApplyOperation(ctx, contact.ID, ApplyAt(domain.OperationCredit, "10", day(d)))
		require.NoError(t, err)
	}

	inclusive, err := domain.ParseDateRange("2024-01-15", "2024-01-20", time.UTC)
	require.NoError(t, err)
	ops, err := s.ListOperations(ctx, contact.ID, inclusive)
	require.NoError(t, err)
	require.Len(t, ops, 2)
	assert.WithinDuration(t, day(20), ops[0].CreatedAt, timeTolerance)
	assert.WithinDuration(t, day(15), ops[1].CreatedAt, timeTolerance)

	after, err := domain.ParseDateRange("2024-02-01", "", time.UTC)
	require.NoError(t, err)
	ops, err = s.ListOperations(ctx, contact.ID, after)
	require.NoError(t, err)
	assert.Empty(t, ops)

	exact := day(10)
	ops, err = s.ListOperations(ctx, contact.ID, domain.TimeRange{Since: &exact, Until: &exact})
	require.NoError(t, err)
	require.Len(t, ops, 1, "both bounds are inclusive")

	ops, err = s.ListOperations(ctx, uuid.New(), domain.TimeRange{})
	require.NoError(t, err)
	assert.Empty(t, ops)

	// Dates far outside the current era still filter correctly.
	farBounds := []struct {
		start, end string
		want       int
	}{
		{start: "2300-01-01", want: 0},
		{start: "2999-01-01", want: 0},
		{end: "1600-01-01", want: 0},
		{start: "1600-01-01", want: 3},
		{end: "2999-12-31", want: 3},
		{start: "1000-01-01", end: "9999-12-31", want: 3},
	}
	for _, tc := range farBounds {
		r, err := domain.ParseDateRange(tc.start, tc.end, time.UTC)
		require.NoError(t, err)
		ops, err := s.ListOperations(ctx, contact.ID, r)
		require.NoError(t, err)
		assert.Len(t, ops, tc.want, "start=%q end=%q", tc.start, tc.end)
	}
}

// testConcurrentDebits fires n debits of B/k against balance B; exactly k succeed.
func testConcurrentDebits(t *testing.T, s store.LedgerStore) {
	const (
		n = 12
		k = 4
	)
	ctx := context.Background()
	contact := mustCreate(t, s, "ana")
	_, err := s.ApplyOperation(ctx, contact.ID, Apply(domain.OperationCredit, "100"))
	require.NoError(t, err)

	var succeeded, insufficient atomic.Int32
	var g errgroup.Group
	for range n {
		g.Go(func() error {
			_, err := ApplyWithRetry(ctx, s, contact.ID, Apply(domain.OperationDebit, "25"))
			switch {
			case err == nil:
				succeeded.Add(1)
			case errors.Is(err, domain.ErrInsufficientFunds):
				insufficient.Add(1)
			default:
				return err
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())

	assert.Equal(t, int32(k), succeeded.Load())
	assert.Equal(t, int32(n-k), insufficient.Load())

	got, err := s.GetContact(ctx, contact.ID)
	require.NoError(t, err)
	assertDecimal(t, "0", got.Balance)

	ops, err := s.ListOperations(ctx, contact.ID, domain.TimeRange{})
	require.NoError(t, err)
	assert.Len(t, ops, k+1)
	assert.NoError(t, domain.VerifyLedger(got, ops))
}

func testIndependentContacts(t *testing.T, s store.LedgerStore) {
	ctx := context.Background()
	contacts := []*domain.Contact{mustCreate(t, s, "ana"), mustCreate(t, s, "bea"), mustCreate(t, s, "cai")}

	const perContact = 5
	var g errgroup.Group
	for _, contact := range contacts {
		for range perContact {
			g.Go(func() error {
				_, err := ApplyWithRetry(ctx, s, contact.ID, Apply(domain.OperationCredit, "1.10"))
				return err
			})
		}
	}
	require.NoError(t, g.Wait())

	for _, contact := range contacts {
		got, err := s.GetContact(ctx, contact.ID)
		require.NoError(t, err)
		assertDecimal(t, "5.50", got.Balance)

		ops, err := s.ListOperations(ctx, contact.ID, domain.TimeRange{})
		require.NoError(t, err)
		assert.Len(t, ops, perContact)
		assert.NoError(t, domain.VerifyLedger(got, ops))
	}
}
