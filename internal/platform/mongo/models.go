package mongo

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/contacts-ledger/internal/domain"
	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/v2/bson"
)

type contactModel struct {
	ID           string          `bson:"_id"`
	Name         string          `bson:"name"`
	Email        string          `bson:"email"`
	Balance      bson.Decimal128 `bson:"balance"`
	LastSequence int64           `bson:"last_sequence"`
	CreatedAt    time.Time       `bson:"created_at"`
	UpdatedAt    time.Time       `bson:"updated_at"`
}

type operationModel struct {
	ID           string          `bson:"_id"`
	ContactID    string          `bson:"contact_id"`
	Kind         string          `bson:"kind"`
	Amount       bson.Decimal128 `bson:"amount"`
	BalanceAfter bson.Decimal128 `bson:"balance_after"`
	Sequence     int64           `bson:"sequence"`
	CreatedAt    time.Time       `bson:"created_at"`
}

func toDecimal128(d decimal.Decimal) (bson.Decimal128, error) {
	out, err := bson.ParseDecimal128(d.String())
	if err != nil {
		return bson.Decimal128{}, fmt.Errorf("convert %s to decimal128: %w", d.String(), err)
	}
	return out, nil
}

func fromDecimal128(d bson.Decimal128) (decimal.Decimal, error) {
	return decimal.NewFromString(d.String())
}

func toContactModel(c *domain.Contact) (*contactModel, error) {
	balance, err := toDecimal128(c.Balance)
	if err != nil {
		return nil, err
	}
	return &contactModel{
		ID:           c.ID.String(),
		Name:         c.Name,
		Email:        c.Email,
		Balance:      balance,
		LastSequence: c.LastSequence,
		CreatedAt:    c.CreatedAt,
		UpdatedAt:    c.UpdatedAt,
	}, nil
}

func fromContactModel(m *contactModel) (*domain.Contact, error) {
	id, err := uuid.Parse(m.ID)
	if err != nil {
		return nil, fmt.Errorf("contact id %q: %w", m.ID, err)
	}
	balance, err := fromDecimal128(m.Balance)
	if err != nil {
		return nil, fmt.Errorf("contact %s balance: %w", m.ID, err)
	}
	return &domain.Contact{
		ID:           id,
		Name:         m.Name,
		Email:        m.Email,
		Balance:      balance,
		LastSequence: m.LastSequence,
		CreatedAt:    m.CreatedAt.UTC(),
		UpdatedAt:    m.UpdatedAt.UTC(),
	}, nil
}

func toOperationModel(o *domain.Operation) (*operationModel, error) {
	amount, err := toDecimal128(o.Amount)
	if err != nil {
		return nil, err
	}
	after, err := toDecimal128(o.BalanceAfter)
	if err != nil {
		return nil, err
	}
	return &operationModel{
		ID:           o.ID.String(),
		ContactID:    o.ContactID.String(),
		Kind:         string(o.Kind),
		Amount:       amount,
		BalanceAfter: after,
		Sequence:     o.Sequence,
		CreatedAt:    o.CreatedAt,
	}, nil
}

func fromOperationModel(m *operationModel) (*domain.Operation, error) {
	id, err := uuid.Parse(m.ID)
	if err != nil {
		return nil, fmt.Errorf("operation id %q: %w", m.ID, err)
	}
	contactID, err := uuid.Parse(m.ContactID)
	if err != nil {
		return nil, fmt.Errorf("operation %s contact id: %w", m.ID, err)
	}
	amount, err := fromDecimal128(m.Amount)
	if err != nil {
		return nil, fmt.Errorf("operation %s amount: %w", m.ID, err)
	}
	after, err := fromDecimal128(m.BalanceAfter)
	if err != nil {
		return nil, fmt.Errorf("operation %s balance_after: %w", m.ID, err)
	}
	return &domain.Operation{
		ID:           id,
		ContactID:    contactID,
		Kind:         domain.OperationKind(m.Kind),
		Amount:       amount,
		BalanceAfter: after,
		Sequence:     m.Sequence,
		CreatedAt:    m.CreatedAt.UTC(),
	}, nil
}
