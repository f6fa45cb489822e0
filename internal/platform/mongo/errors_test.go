package mongo

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/phrazzld/contacts-ledger/internal/store"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/v2/mongo"
)

func duplicateKey(index string) error {
	return mongo.WriteException{
		WriteErrors: []mongo.WriteError{{
			Code:    11000,
			Message: fmt.Sprintf("E11000 duplicate key error collection: ledger.x index: %s dup key", index),
		}},
	}
}

func TestMapError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want error
	}{
		{"no documents", mongo.ErrNoDocuments, store.ErrNotFound},
		{"email index", duplicateKey(emailIndexName), store.ErrEmailExists},
		{"sequence index", duplicateKey(sequenceIndexName), store.ErrConflict},
		{"primary key", duplicateKey("_id_"), store.ErrDuplicate},
		{
			"transient transaction",
			mongo.CommandError{Code: 251, Labels: []string{"TransientTransactionError"}},
			store.ErrConflict,
		},
		{"write conflict", mongo.CommandError{Code: writeConflictCode, Name: "WriteConflict"}, store.ErrConflict},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.ErrorIs(t, MapError(tc.err), tc.want)
		})
	}
}

func TestMapError_Passthrough(t *testing.T) {
	t.Parallel()

	assert.NoError(t, MapError(nil))
	assert.Equal(t, context.DeadlineExceeded, MapError(context.DeadlineExceeded))

	other := errors.New("socket closed")
	assert.Same(t, other, MapError(other))
	assert.False(t, IsConflict(other))
}

func TestDecimal128RoundTrip(t *testing.T) {
	t.Parallel()

	for _, raw := range []string{"0", "0.01", "35", "1234567.89", "3.333"} {
		d := decimal.RequireFromString(raw)
		encoded, err := toDecimal128(d)
		require.NoError(t, err)
		decoded, err := fromDecimal128(encoded)
		require.NoError(t, err)
		assert.True(t, d.Equal(decoded), "%s decoded as %s", raw, decoded)
	}
}
