package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// OperationKind is the direction of a ledger entry.
type OperationKind string

// Supported operation kinds.
const (
	OperationCredit OperationKind = "credit"
	OperationDebit  OperationKind = "debit"
)

// ParseOperationKind converts client input into an OperationKind.
// Returns ErrInvalidKind for anything other than "credit" or "debit".
func ParseOperationKind(s string) (OperationKind, error) {
	kind := OperationKind(strings.ToLower(strings.TrimSpace(s)))
	if !kind.Valid() {
		return "", fmt.Errorf("%w: got %q", ErrInvalidKind, s)
	}
	return kind, nil
}

// Valid reports whether k is a supported kind.
func (k OperationKind) Valid() bool {
	return k == OperationCredit || k == OperationDebit
}

// Delta returns the signed change an operation of this kind applies to a balance.
func (k OperationKind) Delta(amount decimal.Decimal) decimal.Decimal {
	if k == OperationDebit {
		return amount.Neg()
	}
	return amount
}

// Label is the human-facing name used in exports.
func (k OperationKind) Label() string {
	switch k {
	case OperationCredit:
		return "Ingreso"
	case OperationDebit:
		return "Retiro"
	default:
		return string(k)
	}
}

// Operation is one append-only entry in a contact's ledger. Amount is always the
// positive magnitude; the direction comes from Kind. BalanceAfter is the
// contact's balance immediately after this operation was applied.
type Operation struct {
	ID           uuid.UUID
	ContactID    uuid.UUID
	Kind         OperationKind
	Amount       decimal.Decimal
	BalanceAfter decimal.Decimal
	// Sequence is 1 for a contact's first operation and increments by one.
	Sequence  int64
	CreatedAt time.Time
}

// SignedAmount returns the amount with the sign implied by the kind.
func (o *Operation) SignedAmount() decimal.Decimal {
	return o.Kind.Delta(o.Amount)
}

// Validate checks if the Operation has valid data.
func (o *Operation) Validate() error {
	if o.ID == uuid.Nil {
		return NewValidationError("id", "cannot be empty", ErrValidation)
	}
	if o.ContactID == uuid.Nil {
		return NewValidationError("contact_id", "cannot be empty", ErrValidation)
	}
	if !o.Kind.Valid() {
		return ErrInvalidKind
	}
	if err := ValidateAmount(o.Amount); err != nil {
		return err
	}
	if o.BalanceAfter.IsNegative() {
		return ErrNegativeBalance
	}
	if o.Sequence < 1 {
		return NewValidationError("sequence", "must be positive", ErrValidation)
	}
	return nil
}
