package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib" // pgx driver
	"github.com/phrazzld/contacts-ledger/internal/config"
	"github.com/phrazzld/contacts-ledger/internal/domain"
	"github.com/phrazzld/contacts-ledger/internal/platform/logger"
	"github.com/phrazzld/contacts-ledger/internal/redact"
	"github.com/phrazzld/contacts-ledger/internal/store"
)

// timestampPrecision is the resolution of TIMESTAMPTZ.
const timestampPrecision = time.Microsecond

const contactColumns = `id, name, email, balance, last_sequence, created_at, updated_at`

const operationColumns = `id, contact_id, kind, amount, balance_after, sequence, created_at`

// Store implements store.LedgerStore on PostgreSQL.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

var _ store.LedgerStore = (*Store)(nil)

// Open connects to PostgreSQL with the pgx driver, configures the pool and
// verifies the connection.
func Open(ctx context.Context, cfg config.DatabaseConfig) (*sql.DB, error) {
	db, err := sql.Open("pgx", cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return db, nil
}

// NewStore creates a Store over an open connection pool. The store owns db
// from then on and closes it in Close. If log is nil, slog.Default() is used.
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
		logger: log.With(slog.String("component", "postgres_store")),
	}
}

// DB exposes the underlying pool for migrations and tests.
func (s *Store) DB() *sql.DB { return s.db }

// CreateContact implements store.ContactStore.
// CreatedAt and UpdatedAt are truncated to the column precision in place.
func (s *Store) CreateContact(ctx context.Context, contact *domain.Contact) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if err := contact.Validate(); err != nil {
		log.Warn("contact validation failed during create",
			slog.String("error", redact.Error(err)),
			slog.String("contact_id", contact.ID.String()))
		return err
	}
	contact.CreatedAt = contact.CreatedAt.UTC().Truncate(timestampPrecision)
	contact.UpdatedAt = contact.UpdatedAt.UTC().Truncate(timestampPrecision)

	query := `
		INSERT INTO contacts (` + contactColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := s.db.ExecContext(ctx, query,
		contact.ID,
		contact.Name,
		contact.Email,
		contact.Balance,
		contact.LastSequence,
		contact.CreatedAt,
		contact.UpdatedAt,
	)
	if err != nil {
		mapped := MapError(err)
		if errors.Is(mapped, store.ErrEmailExists) {
			log.Debug("email already registered", slog.String("contact_id", contact.ID.String()))
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
	contact, err := getContact(ctx, s.db, id, false)
	if err != nil && !errors.Is(err, store.ErrContactNotFound) {
		logger.FromContextOrDefault(ctx, s.logger).Error("failed to get contact",
			slog.String("error", redact.Error(err)),
			slog.String("contact_id", id.String()))
	}
	return contact, err
}

// ListContacts implements store.ContactStore.
func (s *Store) ListContacts(ctx context.Context) ([]*domain.Contact, error) {
	query := `SELECT ` + contactColumns + ` FROM contacts ORDER BY created_at DESC, id DESC`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		logger.FromContextOrDefault(ctx, s.logger).Error("failed to list contacts",
			slog.String("error", redact.Error(err)))
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
	log := logger.FromContextOrDefault(ctx, s.logger)

	name = strings.TrimSpace(name)
	if name == "" {
		return nil, domain.ErrEmptyContactName
	}

	query := `
		UPDATE contacts
		SET name = $1, updated_at = $2
		WHERE id = $3
		RETURNING ` + contactColumns

	contact, err := scanContact(s.db.QueryRowContext(ctx, query,
		name, updatedAt.UTC().Truncate(timestampPrecision), id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrContactNotFound
		}
		log.Error("failed to rename contact",
			slog.String("error", redact.Error(err)),
			slog.String("contact_id", id.String()))
		return nil, store.NewStoreError("contact", "rename", "update failed", MapError(err))
	}

	log.Info("contact renamed", slog.String("contact_id", id.String()))
	return contact, nil
}

// ApplyOperation implements store.OperationStore.
//
// The contact row is locked with SELECT ... FOR UPDATE before apply runs, so
// a concurrent apply on the same contact waits for this transaction to commit
// or roll back and then reads the new balance. The UPDATE is additionally
// guarded on last_sequence.
func (s *Store) ApplyOperation(
	ctx context.Context,
	contactID uuid.UUID,
	apply store.ApplyFunc,
) (*domain.Operation, error) {
	log := logger.FromContextOrDefault(ctx, s.logger).With(
		slog.String("contact_id", contactID.String()))

	var applied *domain.Operation
	err := store.RunInTransaction(ctx, s.db, &sql.TxOptions{Isolation: sql.LevelReadCommitted},
		func(ctx context.Context, tx *sql.Tx) error {
			contact, err := getContact(ctx, tx, contactID, true)
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
			op.CreatedAt = op.CreatedAt.UTC().Truncate(timestampPrecision)

			insert := `
				INSERT INTO operations (` + operationColumns + `)
				VALUES ($1, $2, $3, $4, $5, $6, $7)
			`
			if _, err := tx.ExecContext(ctx, insert,
				op.ID,
				op.ContactID,
				string(op.Kind),
				op.Amount,
				op.BalanceAfter,
				op.Sequence,
				op.CreatedAt,
			); err != nil {
				return MapError(err)
			}

			update := `
				UPDATE contacts
				SET balance = $1, last_sequence = $2, updated_at = $3
				WHERE id = $4 AND last_sequence = $5
			`
			result, err := tx.ExecContext(ctx, update,
				contact.Balance,
				contact.LastSequence,
				contact.UpdatedAt.UTC().Truncate(timestampPrecision),
				contactID,
				previous,
			)
			if err != nil {
				return MapError(err)
			}
			if err := CheckRowsAffected(result, store.ErrConflict); err != nil {
				return err
			}

			applied = op
			return nil
		})
	if err != nil {
		return nil, s.applyError(log, err)
	}

	log.Info("operation applied",
		slog.String("operation_id", applied.ID.String()),
		slog.String("kind", string(applied.Kind)),
		slog.Int64("sequence", applied.Sequence))
	return applied, nil
}

// applyError normalizes errors leaving the apply transaction. Domain and
// store sentinels pass through; driver errors are mapped.
func (s *Store) applyError(log *slog.Logger, err error) error {
	mapped := MapError(err)
	switch {
	case errors.Is(mapped, store.ErrContactNotFound):
		return store.ErrContactNotFound
	case errors.Is(mapped, store.ErrConflict):
		log.Warn("apply aborted by concurrent transaction", slog.String("error", redact.Error(err)))
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
	query := `
		SELECT ` + operationColumns + `
		FROM operations
		WHERE contact_id = $1
		  AND ($2::timestamptz IS NULL OR created_at >= $2)
		  AND ($3::timestamptz IS NULL OR created_at <= $3)
		ORDER BY created_at DESC, sequence DESC
	`
	rows, err := s.db.QueryContext(ctx, query, contactID, r.Since, r.Until)
	if err != nil {
		logger.FromContextOrDefault(ctx, s.logger).Error("failed to list operations",
			slog.String("error", redact.Error(err)),
			slog.String("contact_id", contactID.String()))
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

func getContact(ctx context.Context, q store.DBTX, id uuid.UUID, forUpdate bool) (*domain.Contact, error) {
	query := `SELECT ` + contactColumns + ` FROM contacts WHERE id = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}

	contact, err := scanContact(q.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrContactNotFound
		}
		return nil, MapError(err)
	}
	return contact, nil
}

func scanContact(row rowScanner) (*domain.Contact, error) {
	var contact domain.Contact
	if err := row.Scan(
		&contact.ID,
		&contact.Name,
		&contact.Email,
		&contact.Balance,
		&contact.LastSequence,
		&contact.CreatedAt,
		&contact.UpdatedAt,
	); err != nil {
		return nil, err
	}
	contact.CreatedAt = contact.CreatedAt.UTC()
	contact.UpdatedAt = contact.UpdatedAt.UTC()
	return &contact, nil
}

func scanOperation(row rowScanner) (*domain.Operation, error) {
	var (
		op   domain.Operation
		kind string
	)
	if err := row.Scan(
		&op.ID,
		&op.ContactID,
		&kind,
		&op.Amount,
		&op.BalanceAfter,
		&op.Sequence,
		&op.CreatedAt,
	); err != nil {
		return nil, err
	}
	op.Kind = domain.OperationKind(kind)
	op.CreatedAt = op.CreatedAt.UTC()
	if !op.Kind.Valid() {
		return nil, fmt.Errorf("%w: operation %s has kind %q", store.ErrInvalidEntity, op.ID, kind)
	}
	return &op, nil
}
