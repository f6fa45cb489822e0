//go:build integration

package mongo_test

import (
	"context"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/phrazzld/contacts-ledger/internal/config"
	"github.com/phrazzld/contacts-ledger/internal/domain"
	"github.com/phrazzld/contacts-ledger/internal/platform/logger"
	"github.com/phrazzld/contacts-ledger/internal/platform/mongo"
	"github.com/phrazzld/contacts-ledger/internal/store"
	"github.com/phrazzld/contacts-ledger/internal/store/storetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testMongoURLEnv names a replica set connection string; tests skip without it.
const testMongoURLEnv = "LEDGER_TEST_MONGO_URL"

func newTestStore(t *testing.T) *mongo.Store {
	t.Helper()

	url := os.Getenv(testMongoURLEnv)
	if url == "" {
		t.Skipf("%s not set", testMongoURLEnv)
	}

	ctx := context.Background()
	client, err := mongo.Open(ctx, config.DatabaseConfig{Driver: config.DriverMongo, URL: url, MaxOpenConns: 20})
	require.NoError(t, err)

	_, log := logger.NewTestLogger(t)
	s := mongo.NewStore(client, "ledger_test_"+uuid.NewString()[:8], log)
	require.NoError(t, s.Migrate(ctx))
	t.Cleanup(func() {
		_ = client.Database(s.DatabaseName()).Drop(context.Background())
		_ = s.Close()
	})
	return s
}

func TestStoreConformance(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.LedgerStore {
		return newTestStore(t)
	})
}

func TestMigrateIsIdempotent(t *testing.T) {
	s := newTestStore(t)
	assert.NoError(t, s.Migrate(context.Background()))
}

func TestApplyOperation_RejectsForeignContactID(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	contact := storetest.NewContact(t, "ana")
	require.NoError(t, s.CreateContact(ctx, contact))

	_, err := s.ApplyOperation(ctx, contact.ID, func(c *domain.Contact) (*domain.Operation, error) {
		op, err := storetest.Apply(domain.OperationCredit, "10")(c)
		if err != nil {
			return nil, err
		}
		op.ContactID = uuid.New()
		return op, nil
	})
	assert.ErrorIs(t, err, store.ErrInvalidEntity)

	ops, err := s.ListOperations(ctx, contact.ID, domain.TimeRange{})
	require.NoError(t, err)
	assert.Empty(t, ops)
}
