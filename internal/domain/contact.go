package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var emailValidator = validator.New()

// Contact is an entity holding a monetary balance. The balance is a projection
// of the contact's operation log and is only changed through Apply.
type Contact struct {
	ID      uuid.UUID
	Name    string
	Email   string
	Balance decimal.Decimal
	// LastSequence is the Sequence of the most recent operation, 0 when none.
	LastSequence int64
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// NewContact creates a new Contact with a zero balance.
// The email is normalized (trimmed, lower-cased) before validation.
func NewContact(name, email string) (*Contact, error) {
	now := time.Now().UTC()
	contact := &Contact{
		ID:        uuid.New(),
		Name:      strings.TrimSpace(name),
		Email:     NormalizeEmail(email),
		Balance:   decimal.Zero,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := contact.Validate(); err != nil {
		return nil, err
	}
	return contact, nil
}

// NormalizeEmail returns the canonical form used for uniqueness checks.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Validate checks if the Contact has valid data.
func (c *Contact) Validate() error {
	if c.ID == uuid.Nil {
		return ErrEmptyContactID
	}
	if strings.TrimSpace(c.Name) == "" {
		return ErrEmptyContactName
	}
	if c.Email == "" {
		return ErrEmptyEmail
	}
	if err := emailValidator.Var(c.Email, "email"); err != nil {
		return ErrInvalidEmail
	}
	if c.Balance.IsNegative() {
		return ErrNegativeBalance
	}
	return nil
}

// Rename changes the display name. Email and balance are untouched.
func (c *Contact) Rename(name string, now time.Time) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return ErrEmptyContactName
	}
	c.Name = name
	c.UpdatedAt = now.UTC()
	return nil
}

// Apply turns a requested credit or debit into the next ledger entry and moves
// the balance accordingly. The contact is left untouched when an error is returned.
//
// Debits that would make the balance negative fail with ErrInsufficientFunds;
// a debit equal to the balance succeeds and leaves it at zero.
func (c *Contact) Apply(kind OperationKind, amount decimal.Decimal, now time.Time) (*Operation, error) {
	if err := ValidateAmount(amount); err != nil {
		return nil, err
	}
	if !kind.Valid() {
		return nil, ErrInvalidKind
	}

	newBalance := c.Balance.Add(kind.Delta(amount))
	if newBalance.IsNegative() {
		return nil, fmt.Errorf("%w: balance %s cannot cover debit of %s",
			ErrInsufficientFunds, c.Balance.StringFixed(2), amount.StringFixed(2))
	}

	now = now.UTC()
	op := &Operation{
		ID:           uuid.New(),
		ContactID:    c.ID,
		Kind:         kind,
		Amount:       amount,
		BalanceAfter: newBalance,
		Sequence:     c.LastSequence + 1,
		CreatedAt:    now,
	}

	c.Balance = newBalance
	c.LastSequence = op.Sequence
	c.UpdatedAt = now
	return op, nil
}
