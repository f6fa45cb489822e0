package ledger

import (
	"context"
	"encoding/csv"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/contacts-ledger/internal/domain"
	"github.com/phrazzld/contacts-ledger/internal/events"
	"github.com/phrazzld/contacts-ledger/internal/platform/logger"
	"github.com/phrazzld/contacts-ledger/internal/platform/memory"
	"github.com/phrazzld/contacts-ledger/internal/store"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

// stepClock returns a strictly increasing time on every call.
type stepClock struct {
	mu   sync.Mutex
	next time.Time
}

func newStepClock() *stepClock {
	return &stepClock{next: time.Date(2024, 3, 10, 14, 0, 0, 0, time.UTC)}
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.next
	c.next = c.next.Add(time.Minute)
	return now
}

type eventRecorder struct {
	mu     sync.Mutex
	events []*events.Event
}

func (r *eventRecorder) HandleEvent(_ context.Context, e *events.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *eventRecorder) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Type)
	}
	return out
}

type fixture struct {
	svc      Service
	store    store.LedgerStore
	recorder *eventRecorder
	logs     *logger.TestLogBuffer
}

func newFixture(t *testing.T, s store.LedgerStore, cfg Config) *fixture {
	t.Helper()
	logs, log := logger.NewTestLogger(t)

	recorder := &eventRecorder{}
	emitter := events.NewInMemoryEventEmitter(log)
	emitter.RegisterHandler(recorder)

	if cfg.Now == nil {
		cfg.Now = newStepClock().Now
	}
	if cfg.RetryBaseDelay == 0 {
		cfg.RetryBaseDelay = time.Millisecond
	}

	svc, err := NewService(s, emitter, cfg, log)
	require.NoError(t, err)
	return &fixture{svc: svc, store: s, recorder: recorder, logs: logs}
}

func newMemoryFixture(t *testing.T) *fixture {
	t.Helper()
	return newFixture(t, memory.NewStore(nil), Config{})
}

func amount(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestNewService_RequiresDependencies(t *testing.T) {
	t.Parallel()

	_, err := NewService(nil, events.NewInMemoryEventEmitter(nil), Config{}, nil)
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = NewService(memory.NewStore(nil), nil, Config{}, nil)
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestCreateContact(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newMemoryFixture(t)

	contact, err := f.svc.CreateContact(ctx, "  Ana ", " Ana@X.com ")
	require.NoError(t, err)
	assert.Equal(t, "Ana", contact.Name)
	assert.Equal(t, "ana@x.com", contact.Email)
	assert.True(t, contact.Balance.IsZero())
	assert.Equal(t, []string{events.TypeContactCreated}, f.recorder.types())

	t.Run("invalid input", func(t *testing.T) {
		_, err := f.svc.CreateContact(ctx, "", "bea@x.com")
		assert.ErrorIs(t, err, domain.ErrValidation)
		_, err = f.svc.CreateContact(ctx, "Bea", "not-an-email")
		assert.ErrorIs(t, err, domain.ErrInvalidEmail)
	})
}

// Scenario B
func TestCreateContact_EmailTaken(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newMemoryFixture(t)

	_, err := f.svc.CreateContact(ctx, "Ana", "ana@x.com")
	require.NoError(t, err)

	_, err = f.svc.CreateContact(ctx, "Other Ana", "ANA@x.com")
	assert.ErrorIs(t, err, ErrEmailTaken)

	contacts, err := f.svc.ListContacts(ctx)
	require.NoError(t, err)
	assert.Len(t, contacts, 1)
	assert.Len(t, f.recorder.types(), 1, "no event for the rejected contact")
}

func TestGetAndRenameContact(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newMemoryFixture(t)

	contact, err := f.svc.CreateContact(ctx, "Ana", "ana@x.com")
	require.NoError(t, err)
	_, err = f.svc.ApplyOperation(ctx, contact.ID, domain.OperationCredit, amount("10"))
	require.NoError(t, err)

	renamed, err := f.svc.RenameContact(ctx, contact.ID, "Ana María")
	require.NoError(t, err)
	assert.Equal(t, "Ana María", renamed.Name)
	assert.Equal(t, "ana@x.com", renamed.Email)
	assert.Equal(t, "10", renamed.Balance.String())

	got, err := f.svc.GetContact(ctx, contact.ID)
	require.NoError(t, err)
	assert.Equal(t, "Ana María", got.Name)

	_, err = f.svc.GetContact(ctx, uuid.New())
	assert.ErrorIs(t, err, ErrContactNotFound)
	_, err = f.svc.RenameContact(ctx, uuid.New(), "x")
	assert.ErrorIs(t, err, ErrContactNotFound)
	_, err = f.svc.RenameContact(ctx, contact.ID, "  ")
	assert.ErrorIs(t, err, domain.ErrValidation)
}

// Scenario A
func TestApplyOperation_CreditThenOverdraw(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newMemoryFixture(t)

	contact, err := f.svc.CreateContact(ctx, "Ana", "ana@x.com")
	require.NoError(t, err)
	assert.True(t, contact.Balance.IsZero())

	op, err := f.svc.ApplyOperation(ctx, contact.ID, domain.OperationCredit, amount("100"))
	require.NoError(t, err)
	assert.Equal(t, "100", op.BalanceAfter.String())
	assert.Equal(t, int64(1), op.Sequence)

	_, err = f.svc.ApplyOperation(ctx, contact.ID, domain.OperationDebit, amount("150"))
	assert.ErrorIs(t, err, domain.ErrInsufficientFunds)

	got, err := f.svc.GetContact(ctx, contact.ID)
	require.NoError(t, err)
	assert.Equal(t, "100", got.Balance.String())

	ops, err := f.svc.ListOperations(ctx, contact.ID, "", "")
	require.NoError(t, err)
	assert.Len(t, ops, 1)
	assert.Equal(t,
		[]string{events.TypeContactCreated, events.TypeOperationApplied},
		f.recorder.types())
}

func TestApplyOperation_Validation(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newMemoryFixture(t)

	contact, err := f.svc.CreateContact(ctx, "Ana", "ana@x.com")
	require.NoError(t, err)

	tests := []struct {
		name   string
		kind   domain.OperationKind
		amount decimal.Decimal
		want   error
	}{
		{"zero amount", domain.OperationCredit, decimal.Zero, domain.ErrInvalidAmount},
		{"negative amount", domain.OperationCredit, amount("-5"), domain.ErrInvalidAmount},
		{"amount beyond integer digit limit", domain.OperationCredit, decimal.New(1, 30000000), domain.ErrInvalidAmount},
		{"amount beyond scale limit", domain.OperationDebit, decimal.New(1, -30000000), domain.ErrInvalidAmount},
		{"bad kind", domain.OperationKind("refund"), amount("5"), domain.ErrInvalidKind},
		{"amount checked before kind", domain.OperationKind("refund"), decimal.Zero, domain.ErrInvalidAmount},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.svc.ApplyOperation(ctx, contact.ID, tc.kind, tc.amount)
			assert.ErrorIs(t, err, tc.want)
		})
	}

	_, err = f.svc.ApplyOperation(ctx, uuid.New(), domain.OperationCredit, amount("1"))
	assert.ErrorIs(t, err, ErrContactNotFound)

	ops, err := f.svc.ListOperations(ctx, contact.ID, "", "")
	require.NoError(t, err)
	assert.Empty(t, ops)
}

func TestApplyOperation_DebitBoundary(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newMemoryFixture(t)

	contact, err := f.svc.CreateContact(ctx, "Ana", "ana@x.com")
	require.NoError(t, err)
	_, err = f.svc.ApplyOperation(ctx, contact.ID, domain.OperationCredit, amount("40.25"))
	require.NoError(t, err)

	_, err = f.svc.ApplyOperation(ctx, contact.ID, domain.OperationDebit, amount("40.26"))
	assert.ErrorIs(t, err, domain.ErrInsufficientFunds)

	op, err := f.svc.ApplyOperation(ctx, contact.ID, domain.OperationDebit, amount("40.25"))
	require.NoError(t, err)
	assert.True(t, op.BalanceAfter.IsZero())
}

func TestApplyOperation_ConcurrentDebits(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newMemoryFixture(t)

	contact, err := f.svc.CreateContact(ctx, "Ana", "ana@x.com")
	require.NoError(t, err)
	_, err = f.svc.ApplyOperation(ctx, contact.ID, domain.OperationCredit, amount("100"))
	require.NoError(t, err)

	const n, k = 20, 4
	var succeeded, rejected atomic.Int32
	var g errgroup.Group
	for range n {
		g.Go(func() error {
			_, err := f.svc.ApplyOperation(ctx, contact.ID, domain.OperationDebit, amount("25"))
			switch {
			case err == nil:
				succeeded.Add(1)
			case errors.Is(err, domain.ErrInsufficientFunds):
				rejected.Add(1)
			default:
				return err
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())

	assert.Equal(t, int32(k), succeeded.Load())
	assert.Equal(t, int32(n-k), rejected.Load())

	report, err := f.svc.VerifyLedger(ctx, contact.ID)
	require.NoError(t, err)
	assert.True(t, report.Consistent, report.Problem)
	assert.True(t, report.Balance.IsZero())
	assert.Equal(t, k+1, report.Operations)
}

func TestApplyOperation_CallerCancellationDoesNotAbort(t *testing.T) {
	t.Parallel()
	f := newMemoryFixture(t)

	contact, err := f.svc.CreateContact(context.Background(), "Ana", "ana@x.com")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	op, err := f.svc.ApplyOperation(ctx, contact.ID, domain.OperationCredit, amount("5"))
	require.NoError(t, err)
	assert.Equal(t, "5", op.BalanceAfter.String())
}

// flakyStore reports a conflict for the first failures applies.
type flakyStore struct {
	store.LedgerStore
	failures int32
	calls    atomic.Int32
}

func (s *flakyStore) ApplyOperation(
	ctx context.Context,
	contactID uuid.UUID,
	apply store.ApplyFunc,
) (*domain.Operation, error) {
	if s.calls.Add(1) <= s.failures {
		return nil, store.NewStoreError("operation", "apply", "transaction conflict", store.ErrConflict)
	}
	return s.LedgerStore.ApplyOperation(ctx, contactID, apply)
}

func TestApplyOperation_RetriesConflicts(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	flaky := &flakyStore{LedgerStore: memory.NewStore(nil), failures: 2}
	f := newFixture(t, flaky, Config{MaxApplyAttempts: 3})

	contact, err := f.svc.CreateContact(ctx, "Ana", "ana@x.com")
	require.NoError(t, err)

	op, err := f.svc.ApplyOperation(ctx, contact.ID, domain.OperationCredit, amount("7"))
	require.NoError(t, err)
	assert.Equal(t, int32(3), flaky.calls.Load())
	assert.Equal(t, int64(1), op.Sequence)
	logger.AssertLogContains(t, f.logs, "apply conflicted, retrying")
}

func TestApplyOperation_GivesUpAfterMaxAttempts(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	flaky := &flakyStore{LedgerStore: memory.NewStore(nil), failures: 100}
	f := newFixture(t, flaky, Config{MaxApplyAttempts: 3})

	contact, err := f.svc.CreateContact(ctx, "Ana", "ana@x.com")
	require.NoError(t, err)

	_, err = f.svc.ApplyOperation(ctx, contact.ID, domain.OperationCredit, amount("7"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrStoreUnavailable)
	assert.ErrorIs(t, err, store.ErrConflict)
	assert.Equal(t, int32(3), flaky.calls.Load())

	var serviceErr *ServiceError
	require.ErrorAs(t, err, &serviceErr)
	assert.Equal(t, "apply_operation", serviceErr.Operation)

	got, err := f.svc.GetContact(ctx, contact.ID)
	require.NoError(t, err)
	assert.True(t, got.Balance.IsZero())
	assert.Equal(t, []string{events.TypeContactCreated}, f.recorder.types())
}

// brokenStore fails every operation with a non-conflict error.
type brokenStore struct {
	store.LedgerStore
}

func (brokenStore) ListContacts(context.Context) ([]*domain.Contact, error) {
	return nil, errors.New("connection refused")
}

func TestStoreFailuresSurfaceAsUnavailable(t *testing.T) {
	t.Parallel()
	f := newFixture(t, brokenStore{LedgerStore: memory.NewStore(nil)}, Config{})

	_, err := f.svc.ListContacts(context.Background())
	assert.ErrorIs(t, err, ErrStoreUnavailable)
	assert.NotErrorIs(t, err, ErrContactNotFound)
}

func TestListOperations_Range(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newMemoryFixture(t)

	contact, err := f.svc.CreateContact(ctx, "Ana", "ana@x.com")
	require.NoError(t, err)
	// The step clock puts these at 14:01, 14:02 and 14:03 on 2024-03-10.
	for _, a := range []string{"1", "2", "3"} {
		_, err := f.svc.ApplyOperation(ctx, contact.ID, domain.OperationCredit, amount(a))
		require.NoError(t, err)
	}

	ops, err := f.svc.ListOperations(ctx, contact.ID, "2024-03-10T14:02:00Z", "undefined")
	require.NoError(t, err)
	require.Len(t, ops, 2)
	assert.Equal(t, "3", ops[0].Amount.String())
	assert.Equal(t, "2", ops[1].Amount.String())

	ops, err = f.svc.ListOperations(ctx, contact.ID, "", "2024-03-10")
	require.NoError(t, err)
	assert.Len(t, ops, 3, "a calendar end date covers the whole day")

	_, err = f.svc.ListOperations(ctx, contact.ID, "yesterday", "")
	assert.ErrorIs(t, err, domain.ErrInvalidDateRange)

	_, err = f.svc.ListOperations(ctx, uuid.New(), "yesterday", "")
	assert.ErrorIs(t, err, ErrContactNotFound, "the contact is checked before the bounds")
}

func readCSV(t *testing.T, body []byte) [][]string {
	t.Helper()
	rows, err := csv.NewReader(strings.NewReader(string(body))).ReadAll()
	require.NoError(t, err)
	return rows
}

// Scenario C
func TestExportOperations(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newMemoryFixture(t)

	contact, err := f.svc.CreateContact(ctx, "Ana", "ana@x.com")
	require.NoError(t, err)
	steps := []struct {
		kind   domain.OperationKind
		amount string
	}{
		{domain.OperationCredit, "50"},
		{domain.OperationDebit, "20"},
		{domain.OperationCredit, "5"},
	}
	for _, step := range steps {
		_, err := f.svc.ApplyOperation(ctx, contact.ID, step.kind, amount(step.amount))
		require.NoError(t, err)
	}

	got, err := f.svc.GetContact(ctx, contact.ID)
	require.NoError(t, err)
	assert.Equal(t, "35", got.Balance.String())

	export, err := f.svc.ExportOperations(ctx, contact.ID, "", "")
	require.NoError(t, err)
	assert.Equal(t, "operaciones_Ana_inicio_actual.csv", export.Filename)
	assert.Equal(t, CSVContentType, export.ContentType)
	assert.Equal(t, 3, export.Rows)

	rows := readCSV(t, export.Body)
	require.Len(t, rows, 4)
	assert.Equal(t, []string{"Fecha y Hora", "Tipo", "Monto", "Balance Posterior"}, rows[0])
	assert.Equal(t, []string{"10/3/2024, 14:03:00", "Ingreso", "+$5.00", "$35.00"}, rows[1])
	assert.Equal(t, []string{"10/3/2024, 14:02:00", "Retiro", "-$20.00", "$30.00"}, rows[2])
	assert.Equal(t, []string{"10/3/2024, 14:01:00", "Ingreso", "+$50.00", "$50.00"}, rows[3])
}

// Scenario D
func TestExportOperations_EmptyRange(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newMemoryFixture(t)

	contact, err := f.svc.CreateContact(ctx, "Ana", "ana@x.com")
	require.NoError(t, err)
	_, err = f.svc.ApplyOperation(ctx, contact.ID, domain.OperationCredit, amount("50"))
	require.NoError(t, err)

	export, err := f.svc.ExportOperations(ctx, contact.ID, "2030-01-01", "")
	require.NoError(t, err)
	assert.Equal(t, 0, export.Rows)
	assert.Equal(t, "operaciones_Ana_2030-01-01_actual.csv", export.Filename)

	rows := readCSV(t, export.Body)
	require.Len(t, rows, 1)
	assert.Equal(t, csvHeader, rows[0])
}

func TestExportOperations_Errors(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newMemoryFixture(t)

	_, err := f.svc.ExportOperations(ctx, uuid.New(), "", "")
	assert.ErrorIs(t, err, ErrContactNotFound)

	contact, err := f.svc.CreateContact(ctx, "Ana", "ana@x.com")
	require.NoError(t, err)
	_, err = f.svc.ExportOperations(ctx, contact.ID, "2024-02-01", "2024-01-01")
	assert.ErrorIs(t, err, domain.ErrInvalidDateRange)
}

func TestExportOperations_Location(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t, memory.NewStore(nil), Config{
		Location:   time.FixedZone("ART", -3*60*60),
		TimeLayout: "2006-01-02 15:04",
	})

	contact, err := f.svc.CreateContact(ctx, "Ana", "ana@x.com")
	require.NoError(t, err)
	_, err = f.svc.ApplyOperation(ctx, contact.ID, domain.OperationCredit, amount("1"))
	require.NoError(t, err)

	export, err := f.svc.ExportOperations(ctx, contact.ID, "", "")
	require.NoError(t, err)
	rows := readCSV(t, export.Body)
	require.Len(t, rows, 2)
	assert.Equal(t, "2024-03-10 11:01", rows[1][0])
}

func TestExportFilename(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name, contact, start, end, want string
	}{
		{"open bounds", "Ana", "", "", "operaciones_Ana_inicio_actual.csv"},
		{"undefined", "Ana", "undefined", "undefined", "operaciones_Ana_inicio_actual.csv"},
		{"both bounds", "Ana", "2024-01-01", "2024-01-31", "operaciones_Ana_2024-01-01_2024-01-31.csv"},
		{"separators", "a/b\\c", "", "", "operaciones_a_b_c_inicio_actual.csv"},
		{"timestamp bounds keep the date", "Ana", "2024-01-01T10:30:00Z", "2024-01-31T23:59:59-03:00", "operaciones_Ana_2024-01-01_2024-01-31.csv"},
		{"colons never reach the name", "a:b", "12:00", "", "operaciones_a_b_12_00_actual.csv"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, ExportFilename(tc.contact, tc.start, tc.end))
		})
	}
}

func TestContentDisposition(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "attachment; filename=operaciones_Ana_inicio_actual.csv",
		ContentDisposition("operaciones_Ana_inicio_actual.csv"))
	assert.Contains(t, ContentDisposition("operaciones_José_inicio_actual.csv"), "filename*=utf-8''")
}

func TestVerifyLedger(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newMemoryFixture(t)

	contact, err := f.svc.CreateContact(ctx, "Ana", "ana@x.com")
	require.NoError(t, err)
	_, err = f.svc.ApplyOperation(ctx, contact.ID, domain.OperationCredit, amount("12.5"))
	require.NoError(t, err)
	_, err = f.svc.ApplyOperation(ctx, contact.ID, domain.OperationDebit, amount("2.5"))
	require.NoError(t, err)

	report, err := f.svc.VerifyLedger(ctx, contact.ID)
	require.NoError(t, err)
	assert.True(t, report.Consistent)
	assert.Empty(t, report.Problem)
	assert.Equal(t, 2, report.Operations)
	assert.True(t, report.Balance.Equal(amount("10")))
	assert.True(t, report.ReplayedBalance.Equal(report.Balance))

	_, err = f.svc.VerifyLedger(ctx, uuid.New())
	assert.ErrorIs(t, err, ErrContactNotFound)
}

func TestNewServiceError(t *testing.T) {
	t.Parallel()

	assert.NoError(t, NewServiceError("op", "msg", nil))
	assert.Equal(t, ErrContactNotFound, NewServiceError("op", "msg", store.ErrContactNotFound))
	assert.Equal(t, ErrEmailTaken, NewServiceError("op", "msg", store.ErrEmailExists))
	assert.Equal(t, domain.ErrInsufficientFunds, NewServiceError("op", "msg", domain.ErrInsufficientFunds))

	err := NewServiceError("list_contacts", "failed", errors.New("boom"))
	assert.ErrorIs(t, err, ErrStoreUnavailable)
	assert.Contains(t, err.Error(), "list_contacts operation failed")
}
