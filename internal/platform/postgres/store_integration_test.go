//go:build integration

package postgres_test

import (
	"context"
	"testing"
	"time"

	"github.com/phrazzld/contacts-ledger/internal/domain"
	"github.com/phrazzld/contacts-ledger/internal/platform/postgres"
	"github.com/phrazzld/contacts-ledger/internal/store"
	"github.com/phrazzld/contacts-ledger/internal/store/storetest"
	"github.com/phrazzld/contacts-ledger/internal/testdb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *postgres.Store {
	t.Helper()
	db := testdb.GetTestDBWithT(t)
	testdb.SetupTestDatabaseSchema(t, db)
	testdb.ResetTables(t, db)
	return postgres.NewStore(db, nil)
}

func TestStoreConformance(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.LedgerStore {
		return newTestStore(t)
	})
}

func TestOperationsAreAppendOnly(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	contact := storetest.NewContact(t, "ana")
	require.NoError(t, s.CreateContact(ctx, contact))
	op, err := s.ApplyOperation(ctx, contact.ID, storetest.Apply(domain.OperationCredit, "10"))
	require.NoError(t, err)

	_, err = s.DB().ExecContext(ctx, `UPDATE operations SET amount = 1 WHERE id = $1`, op.ID)
	require.Error(t, err)
	assert.ErrorIs(t, postgres.MapError(err), store.ErrInvalidEntity)

	_, err = s.DB().ExecContext(ctx, `DELETE FROM operations WHERE id = $1`, op.ID)
	require.Error(t, err)
}

func TestBalanceCheckConstraint(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	contact := storetest.NewContact(t, "ana")
	require.NoError(t, s.CreateContact(ctx, contact))

	_, err := s.DB().ExecContext(ctx, `UPDATE contacts SET balance = -1 WHERE id = $1`, contact.ID)
	require.Error(t, err)
	assert.ErrorIs(t, postgres.MapError(err), store.ErrInvalidEntity)
}

func TestApplyWaitsForLockedContact(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	contact := storetest.NewContact(t, "ana")
	require.NoError(t, s.CreateContact(ctx, contact))
	_, err := s.ApplyOperation(ctx, contact.ID, storetest.Apply(domain.OperationCredit, "100"))
	require.NoError(t, err)

	// Hold the row lock from a separate transaction.
	tx, err := s.DB().BeginTx(ctx, nil)
	require.NoError(t, err)
	_, err = tx.ExecContext(ctx, `SELECT id FROM contacts WHERE id = $1 FOR UPDATE`, contact.ID)
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		_, err := s.ApplyOperation(ctx, contact.ID, storetest.Apply(domain.OperationDebit, "100"))
		done <- err
	}()

	select {
	case err := <-done:
		t.Fatalf("apply finished while the contact was locked: %v", err)
	case <-time.After(200 * time.Millisecond):
	}

	require.NoError(t, tx.Rollback())
	require.NoError(t, <-done)

	got, err := s.GetContact(ctx, contact.ID)
	require.NoError(t, err)
	assert.True(t, got.Balance.IsZero())
}
