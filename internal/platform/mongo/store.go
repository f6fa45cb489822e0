package mongo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/contacts-ledger/internal/config"
	"github.com/phrazzld/contacts-ledger/internal/domain"
	"github.com/phrazzld/contacts-ledger/internal/platform/logger"
	"github.com/phrazzld/contacts-ledger/internal/redact"
	"github.com/phrazzld/contacts-ledger/internal/store"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readconcern"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"
	"go.mongodb.org/mongo-driver/v2/mongo/writeconcern"
)

// Collection name constants.
const (
	colContacts   = "contacts"
	colOperations = "operations"
)

// timestampPrecision is the resolution of a BSON datetime.
const timestampPrecision = time.Millisecond

// Store implements store.LedgerStore on MongoDB.
type Store struct {
	client     *mongo.Client
	contacts   *mongo.Collection
	operations *mongo.Collection
	logger     *slog.Logger
}

var _ store.LedgerStore = (*Store)(nil)

// Open connects to the deployment at cfg.URL and verifies it with a ping
// against the primary.
func Open(ctx context.Context, cfg config.DatabaseConfig) (*mongo.Client, error) {
	opts := options.Client().ApplyURI(cfg.URL)
	if cfg.MaxOpenConns > 0 {
		opts.SetMaxPoolSize(uint64(cfg.MaxOpenConns))
	}
	if cfg.ConnMaxLifetime > 0 {
		opts.SetMaxConnIdleTime(cfg.ConnMaxLifetime)
	}

	client, err := mongo.Connect(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongodb: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping mongodb: %w", err)
	}
	return client, nil
}

// NewStore creates a Store over the named database. The store owns client
// from then on and disconnects it in Close. If log is nil, slog.Default() is used.
func NewStore(client *mongo.Client, database string, log *slog.Logger) *Store {
	if client == nil {
		// ALLOW-PANIC: constructor misuse
		panic("client cannot be nil")
	}
	if log == nil {
		log = slog.Default()
	}
	db := client.Database(database)
	return &Store{
		client:     client,
		contacts:   db.Collection(colContacts),
		operations: db.Collection(colOperations),
		logger:     log.With(slog.String("component", "mongo_store")),
	}
}

// Migrate creates the indexes both collections rely on. It is idempotent.
func (s *Store) Migrate(ctx context.Context) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	for col, models := range migrationIndexes() {
		names, err := s.collection(col).Indexes().CreateMany(ctx, models)
		if err != nil {
			return fmt.Errorf("migrate %s indexes: %w", col, err)
		}
		log.Info("indexes ensured", slog.String("collection", col), slog.Any("indexes", names))
	}
	return nil
}

// DatabaseName returns the name of the database holding both collections.
func (s *Store) DatabaseName() string { return s.contacts.Database().Name() }

func (s *Store) collection(name string) *mongo.Collection {
	if name == colOperations {
		return s.operations
	}
	return s.contacts
}

// CreateContact implements store.ContactStore.
// CreatedAt and UpdatedAt are truncated to the BSON datetime precision in place.
func (s *Store) CreateContact(ctx context.Context, contact *domain.Contact) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if err := contact.Validate(); err != nil {
		return err
	}
	contact.CreatedAt = contact.CreatedAt.UTC().Truncate(timestampPrecision)
	contact.UpdatedAt = contact.UpdatedAt.UTC().Truncate(timestampPrecision)

	m, err := toContactModel(contact)
	if err != nil {
		return store.NewStoreError("contact", "create", "encode failed", err)
	}
	if _, err := s.contacts.InsertOne(ctx, m); err != nil {
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
	return s.findContact(ctx, id)
}

func (s *Store) findContact(ctx context.Context, id uuid.UUID) (*domain.Contact, error) {
	var m contactModel
	if err := s.contacts.FindOne(ctx, bson.M{"_id": id.String()}).Decode(&m); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, store.ErrContactNotFound
		}
		return nil, MapError(err)
	}
	return fromContactModel(&m)
}

// ListContacts implements store.ContactStore.
func (s *Store) ListContacts(ctx context.Context) ([]*domain.Contact, error) {
	cursor, err := s.contacts.Find(ctx, bson.M{},
		options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}}))
	if err != nil {
		return nil, store.NewStoreError("contact", "list", "query failed", MapError(err))
	}

	var models []contactModel
	if err := cursor.All(ctx, &models); err != nil {
		return nil, store.NewStoreError("contact", "list", "decode failed", err)
	}

	contacts := make([]*domain.Contact, 0, len(models))
	for i := range models {
		contact, err := fromContactModel(&models[i])
		if err != nil {
			return nil, store.NewStoreError("contact", "list", "decode failed", err)
		}
		contacts = append(contacts, contact)
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

	var m contactModel
	err := s.contacts.FindOneAndUpdate(ctx,
		bson.M{"_id": id.String()},
		bson.M{"$set": bson.M{
			"name":       name,
			"updated_at": updatedAt.UTC().Truncate(timestampPrecision),
		}},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&m)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, store.ErrContactNotFound
		}
		logger.FromContextOrDefault(ctx, s.logger).Error("failed to rename contact",
			slog.String("error", redact.Error(err)),
			slog.String("contact_id", id.String()))
		return nil, store.NewStoreError("contact", "rename", "update failed", MapError(err))
	}
	return fromContactModel(&m)
}

// ApplyOperation implements store.OperationStore.
//
// The read of the contact, the operation insert and the guarded balance
// update share one transaction. A concurrent apply on the same contact makes
// one of the two transactions fail with a write conflict; the driver retries
// the loser from the start, so apply sees the committed balance.
func (s *Store) ApplyOperation(
	ctx context.Context,
	contactID uuid.UUID,
	apply store.ApplyFunc,
) (*domain.Operation, error) {
	log := logger.FromContextOrDefault(ctx, s.logger).With(
		slog.String("contact_id", contactID.String()))

	session, err := s.client.StartSession()
	if err != nil {
		return nil, store.NewStoreError("operation", "apply", "start session failed", err)
	}
	defer session.EndSession(context.WithoutCancel(ctx))

	txnOpts := options.Transaction().
		SetReadConcern(readconcern.Snapshot()).
		SetWriteConcern(writeconcern.Majority())

	result, err := session.WithTransaction(ctx, func(ctx context.Context) (any, error) {
		contact, err := s.findContact(ctx, contactID)
		if err != nil {
			return nil, err
		}
		previous := contact.LastSequence

		op, err := apply(contact)
		if err != nil {
			return nil, err
		}
		if op == nil {
			return nil, store.NewStoreError("operation", "apply", "apply returned no operation", store.ErrInvalidEntity)
		}
		if err := op.Validate(); err != nil {
			return nil, fmt.Errorf("%w: %w", store.ErrInvalidEntity, err)
		}
		if op.ContactID != contactID || contact.Balance.IsNegative() {
			return nil, fmt.Errorf("%w: operation does not match contact %s", store.ErrInvalidEntity, contactID)
		}
		op.CreatedAt = op.CreatedAt.UTC().Truncate(timestampPrecision)

		opModel, err := toOperationModel(op)
		if err != nil {
			return nil, err
		}
		if _, err := s.operations.InsertOne(ctx, opModel); err != nil {
			return nil, err
		}

		balance, err := toDecimal128(contact.Balance)
		if err != nil {
			return nil, err
		}
		res, err := s.contacts.UpdateOne(ctx,
			bson.M{"_id": contactID.String(), "last_sequence": previous},
			bson.M{"$set": bson.M{
				"balance":       balance,
				"last_sequence": contact.LastSequence,
				"updated_at":    contact.UpdatedAt.UTC().Truncate(timestampPrecision),
			}},
		)
		if err != nil {
			return nil, err
		}
		if res.MatchedCount == 0 {
			return nil, store.ErrConflict
		}
		return op, nil
	}, txnOpts)
	if err != nil {
		return nil, s.applyError(log, err)
	}

	applied := result.(*domain.Operation)
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
	case errors.Is(mapped, store.ErrInvalidEntity):
		log.Error("apply violated a ledger constraint", slog.String("error", redact.Error(err)))
		return mapped
	case errors.Is(mapped, domain.ErrValidation),
		errors.Is(mapped, domain.ErrInvalidAmount),
		errors.Is(mapped, domain.ErrInvalidKind),
		errors.Is(mapped, domain.ErrInsufficientFunds):
		return err
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
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
	filter := bson.M{"contact_id": contactID.String()}
	if r.Since != nil || r.Until != nil {
		createdAt := bson.M{}
		if r.Since != nil {
			createdAt["$gte"] = r.Since.UTC()
		}
		if r.Until != nil {
			createdAt["$lte"] = r.Until.UTC()
		}
		filter["created_at"] = createdAt
	}

	cursor, err := s.operations.Find(ctx, filter,
		options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "sequence", Value: -1}}))
	if err != nil {
		return nil, store.NewStoreError("operation", "list", "query failed", MapError(err))
	}

	var models []operationModel
	if err := cursor.All(ctx, &models); err != nil {
		return nil, store.NewStoreError("operation", "list", "decode failed", err)
	}

	ops := make([]*domain.Operation, 0, len(models))
	for i := range models {
		op, err := fromOperationModel(&models[i])
		if err != nil {
			return nil, store.NewStoreError("operation", "list", "decode failed", err)
		}
		ops = append(ops, op)
	}
	return ops, nil
}

// Ping implements store.LedgerStore.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, readpref.Primary())
}

// Close implements store.LedgerStore.
func (s *Store) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

// migrationIndexes returns the index definitions for both collections.
func migrationIndexes() map[string][]mongo.IndexModel {
	return map[string][]mongo.IndexModel{
		colContacts: {
			{
				Keys:    bson.D{{Key: "email", Value: 1}},
				Options: options.Index().SetUnique(true).SetName(emailIndexName),
			},
			{Keys: bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}}},
		},
		colOperations: {
			{
				Keys:    bson.D{{Key: "contact_id", Value: 1}, {Key: "sequence", Value: 1}},
				Options: options.Index().SetUnique(true).SetName(sequenceIndexName),
			},
			{Keys: bson.D{{Key: "contact_id", Value: 1}, {Key: "created_at", Value: -1}, {Key: "sequence", Value: -1}}},
		},
	}
}
