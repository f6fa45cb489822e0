package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/contacts-ledger/internal/config"
	"github.com/phrazzld/contacts-ledger/internal/domain"
	"github.com/phrazzld/contacts-ledger/internal/platform/logger"
	"github.com/phrazzld/contacts-ledger/internal/redact"
	"github.com/phrazzld/contacts-ledger/internal/store"
	_ "modernc.org/sqlite" // sqlite driver
)

const contactColumns = `id, name, email, balance, last_sequence, created_at, updated_at`

const operationColumns = `id, contact_id, kind, amount, balance_after, sequence, created_at`

// dsnParams are appended to every DSN unless the caller already set them.
var dsnParams = []string{
	"_txlock=immediate",
	"_pragma=busy_timeout(5000)",
	"_pragma=foreign_keys(1)",
	"_pragma=journal_mode(WAL)",
}

// Store implements store.LedgerStore on SQLite.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

var _ store.LedgerStore = (*Store)(nil)

// BuildDSN turns a file path or file: URI into a DSN carrying the locking and
// pragma parameters the store relies on.
func BuildDSN(raw string) string {
	dsn := strings.TrimSpace(raw)
	for _, param := range dsnParams {
		key := param[:strings.IndexAny(param, "=(")]
		if strings.Contains(dsn, param) || (key == "_txlock" && strings.Contains(dsn, "_txlock=")) {
			continue
		}
		if strings.Contains(dsn, "?") {
			dsn += "&" + param
		} else {
			dsn += "?" + param
		}
	}
	return dsn
}

// Open opens the SQLite database named by cfg.URL and verifies it.
func Open(ctx context.Context, cfg config.DatabaseConfig) (*sql.DB, error) {
	if strings.TrimSpace(cfg.URL) == "" {
		return nil, fmt.Errorf("sqlite database path is required")
	}

	db, err := sql.Open("sqlite", BuildDSN(cfg.URL))
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	return db, nil
}

// NewStore creates a Store over an open database. The store owns db from then
// on. If log is nil, slog.Default() is used.
func NewStore(db *sql.DB, log *slog.Logger) *Store {
	if db == nil {
		// ALLOW-PANIC: constructor misuse
		panic("db cannot be nil")
	}
	if log == nil {
		log = slog.Default()
	}
	return &Store{
		db:     db,
		logger: log.With(slog.String("component", "sqlite_store")),
	}
}

// DB exposes the underlying handle for migrations and tests.
func (s *Store) DB() *sql.DB { return s.db }

// CreateContact implements store.ContactStore.
func (s *Store) CreateContact(ctx context.Context, contact *domain.Contact) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if err := contact.Validate(); err != nil {
		return err
	}
	contact.CreatedAt = contact.CreatedAt.UTC()
	contact.UpdatedAt = contact.UpdatedAt.UTC()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO contacts (`+contactColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		contact.ID.String(),
		contact.Name,
		contact.Email,
		contact.Balance.String(),
		contact.LastSequence,
		toNanos(contact.CreatedAt),
		toNanos(contact.UpdatedAt),
	)
	if err != nil {
		mapped := MapError(err)
		if errors.Is(mapped, store.ErrEmailExists) {
			return store.ErrEmailExists
		}
		log.Error("failed to create contact",
			slog.String("error", redact.Error(err)),
			slog.String("contact_id", contact.ID.String()))
		return store.NewStoreError("contact", "create", "insert failed", mapped)
	}

	log.Info("contact created", slog.String("contact_id", contact.ID.String()))
	return nil
}

// GetContact implements store.ContactStore.
func (s *Store) GetContact(ctx context.Context, id uuid.UUID) (*domain.Contact, error) {
	return getContact(ctx, s.db, id)
}

// ListContacts implements store.ContactStore.
func (s *Store) ListContacts(ctx context.Context) ([]*domain.Contact, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+contactColumns+` FROM contacts ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, store.NewStoreError("contact", "list", "query failed", MapError(err))
	}
	defer func() { _ = rows.Close() }()

	contacts := []*domain.Contact{}
	for rows.Next() {
		contact, err := scanContact(rows)
		if err != nil {
			return nil, store.NewStoreError("contact", "list", "scan failed", err)
		}
		contacts = append(contacts, contact)
	}
	if err := rows.Err(); err != nil {
		return nil, store.NewStoreError("contact", "list", "iteration failed", err)
	}
	return contacts, nil
}

// RenameContact implements store.ContactStore. Only name and updated_at are written.
func (s *Store) RenameContact(
	ctx context.Context,
	id uuid.UUID,
	name string,
	updatedAt time.Time,
) (*domain.Contact, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, domain.ErrEmptyContactName
	}

	contact, err := scanContact(s.db.QueryRowContext(ctx,
		`UPDATE contacts SET name = ?, updated_at = ? WHERE id = ? RETURNING `+contactColumns,
		name, toNanos(updatedAt), id.String()))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrContactNotFound
		}
		logger.FromContextOrDefault(ctx, s.logger).Error("failed to rename contact",
			slog.String("error", redact.Error(err)),
			slog.String("contact_id", id.String()))
		return nil, store.NewStoreError("contact", "rename", "update failed", MapError(err))
	}
	return contact, nil
}

// ApplyOperation implements store.OperationStore. The transaction begins with
// BEGIN IMMEDIATE, so the contact read below already happens under the
// database write lock.
func (s *Store) ApplyOperation(
	ctx context.Context,
	contactID uuid.UUID,
	apply store.ApplyFunc,
) (*domain.Operation, error) {
	log := logger.FromContextOrDefault(ctx, s.logger).With(
		slog.String("contact_id", contactID.String()))

	var applied *domain.Operation
	err := store.RunInTransaction(ctx, s.db, nil, func(ctx context.Context, tx *sql.Tx) error {
		contact, err := getContact(ctx, tx, contactID)
		if err != nil {
			return err
		}
		previous := contact.LastSequence

		op, err := apply(contact)
		if err != nil {
			return err
		}
		if op == nil {
			return store.NewStoreError("operation", "apply", "apply returned no operation", store.ErrInvalidEntity)
		}
		if err := op.Validate(); err != nil {
			return store.NewStoreError("operation", "apply", "invalid operation",
				fmt.Errorf("%w: %w", store.ErrInvalidEntity, err))
		}
		if contact.Balance.IsNegative() {
			return store.NewStoreError("contact", "apply", "negative balance", store.ErrInvalidEntity)
		}
		op.CreatedAt = op.CreatedAt.UTC()

		if _, err := tx.ExecContext(ctx,
			`INSERT INTO operations (`+operationColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)`,
			op.ID.String(),
			op.ContactID.String(),
			string(op.Kind),
			op.Amount.String(),
			op.BalanceAfter.String(),
			op.Sequence,
			toNanos(op.CreatedAt),
		); err != nil {
			return MapError(err)
		}

		result, err := tx.ExecContext(ctx,
			`UPDATE contacts SET balance = ?, last_sequence = ?, updated_at = ? WHERE id = ? AND last_sequence = ?`,
			contact.Balance.String(),
			contact.LastSequence,
			toNanos(contact.UpdatedAt),
			contactID.String(),
			previous,
		)
		if err != nil {
			return MapError(err)
		}
		if n, err := result.RowsAffected(); err != nil {
			return err
		} else if n == 0 {
			return store.ErrConflict
		}

		applied = op
		return nil
	})
	if err != nil {
		return nil, applyError(log, err)
	}

	log.Info("operation applied",
		slog.String("operation_id", applied.ID.String()),
		slog.String("kind", string(applied.Kind)),
		slog.Int64("sequence", applied.Sequence))
	return applied, nil
}

func applyError(log *slog.Logger, err error) error {
	mapped := MapError(err)
	switch {
	case errors.Is(mapped, store.ErrContactNotFound):
		return store.ErrContactNotFound
	case errors.Is(mapped, store.ErrConflict):
		log.Warn("apply could not acquire the write lock", slog.String("error", redact.Error(err)))
		return store.NewStoreError("operation", "apply", "transaction conflict", mapped)
	case errors.Is(mapped, domain.ErrValidation),
		errors.Is(mapped, domain.ErrInvalidAmount),
		errors.Is(mapped, domain.ErrInvalidKind),
		errors.Is(mapped, domain.ErrInsufficientFunds):
		return err
	case errors.Is(mapped, store.ErrInvalidEntity):
		log.Error("apply violated a ledger constraint", slog.String("error", redact.Error(err)))
		return mapped
	default:
		var se *store.StoreError
		if errors.As(err, &se) {
			return err
		}
		log.Error("apply transaction failed", slog.String("error", redact.Error(err)))
		return store.NewStoreError("operation", "apply", "transaction failed",
			fmt.Errorf("%w: %w", store.ErrTransactionFailed, mapped))
	}
}

// ListOperations implements store.OperationStore.
func (s *Store) ListOperations(
	ctx context.Context,
	contactID uuid.UUID,
	r domain.TimeRange,
) ([]*domain.Operation, error) {
	// Bounds outside the int64 nanosecond range cannot be compared directly.
	if (r.Since != nil && r.Since.After(maxNanoTime)) || (r.Until != nil && r.Until.Before(minNanoTime)) {
		return []*domain.Operation{}, nil
	}

	var query strings.Builder
	args := []any{contactID.String()}

	query.WriteString(`SELECT ` + operationColumns + ` FROM operations WHERE contact_id = ?`)
	if r.Since != nil && r.Since.After(minNanoTime) {
		query.WriteString(` AND created_at >= ?`)
		args = append(args, toNanos(*r.Since))
	}
	if r.Until != nil && r.Until.Before(maxNanoTime) {
		query.WriteString(` AND created_at <= ?`)
		args = append(args, toNanos(*r.Until))
	}
	query.WriteString(` ORDER BY created_at DESC, sequence DESC`)

	rows, err := s.db.QueryContext(ctx, query.String(), args...)
	if err != nil {
		return nil, store.NewStoreError("operation", "list", "query failed", MapError(err))
	}
	defer func() { _ = rows.Close() }()

	ops := []*domain.Operation{}
	for rows.Next() {
		op, err := scanOperation(rows)
		if err != nil {
			return nil, store.NewStoreError("operation", "list", "scan failed", err)
		}
		ops = append(ops, op)
	}
	if err := rows.Err(); err != nil {
		return nil, store.NewStoreError("operation", "list", "iteration failed", err)
	}
	return ops, nil
}

// Ping implements store.LedgerStore.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close implements store.LedgerStore.
func (s *Store) Close() error {
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func getContact(ctx context.Context, q store.DBTX, id uuid.UUID) (*domain.Contact, error) {
	contact, err := scanContact(q.QueryRowContext(ctx,
		`SELECT `+contactColumns+` FROM contacts WHERE id = ?`, id.String()))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrContactNotFound
		}
		return nil, MapError(err)
	}
	return contact, nil
}

func scanContact(row rowScanner) (*domain.Contact, error) {
	var (
		contact              domain.Contact
		createdAt, updatedAt int64
	)
	if err := row.Scan(
		&contact.ID,
		&contact.Name,
		&contact.Email,
		&contact.Balance,
		&contact.LastSequence,
		&createdAt,
		&updatedAt,
	); err != nil {
		return nil, err
	}
	contact.CreatedAt = fromNanos(createdAt)
	contact.UpdatedAt = fromNanos(updatedAt)
	return &contact, nil
}

func scanOperation(row rowScanner) (*domain.Operation, error) {
	var (
		op        domain.Operation
		kind      string
		createdAt int64
	)
	if err := row.Scan(
		&op.ID,
		&op.ContactID,
		&kind,
		&op.Amount,
		&op.BalanceAfter,
		&op.Sequence,
		&createdAt,
	); err != nil {
		return nil, err
	}
	op.Kind = domain.OperationKind(kind)
	op.CreatedAt = fromNanos(createdAt)
	if !op.Kind.Valid() {
		return nil, fmt.Errorf("%w: operation %s has kind %q", store.ErrInvalidEntity, op.ID, kind)
	}
	return &op, nil
}

// Timestamps are stored as Unix nanoseconds, which covers 1677-09-21 to 2262-04-11.
var (
	minNanoTime = time.Unix(0, math.MinInt64).UTC()
	maxNanoTime = time.Unix(0, math.MaxInt64).UTC()
)

func toNanos(t time.Time) int64 {
	return t.UTC().UnixNano()
}

func fromNanos(n int64) time.Time {
	return time.Unix(0, n).UTC()
}
