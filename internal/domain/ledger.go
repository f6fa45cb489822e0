package domain

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"
)

// ReplayOperations folds a contact's operations oldest-first starting from a
// zero balance and returns the resulting balance. The input may be in any
// order; it is not modified.
//
// Returns ErrLedgerInconsistent when a stored BalanceAfter differs from the
// folded value, when the fold goes negative, or when sequences have gaps.
func ReplayOperations(ops []*Operation) (decimal.Decimal, error) {
	ordered := make([]*Operation, len(ops))
	copy(ordered, ops)
	sort.Slice(ordered, func(i, j int) bool {
		return ordered[i].Sequence < ordered[j].Sequence
	})

	balance := decimal.Zero
	for i, op := range ordered {
		if op.Sequence != int64(i+1) {
			return balance, fmt.Errorf("%w: expected sequence %d, found %d",
				ErrLedgerInconsistent, i+1, op.Sequence)
		}
		balance = balance.Add(op.SignedAmount())
		if balance.IsNegative() {
			return balance, fmt.Errorf("%w: balance negative after operation %s",
				ErrLedgerInconsistent, op.ID)
		}
		if !balance.Equal(op.BalanceAfter) {
			return balance, fmt.Errorf("%w: operation %s records %s, replay gives %s",
				ErrLedgerInconsistent, op.ID, op.BalanceAfter.String(), balance.String())
		}
	}
	return balance, nil
}

// VerifyLedger checks that the contact's balance and last sequence match the
// replay of its operations.
func VerifyLedger(contact *Contact, ops []*Operation) error {
	replayed, err := ReplayOperations(ops)
	if err != nil {
		return err
	}
	if !replayed.Equal(contact.Balance) {
		return fmt.Errorf("%w: contact balance %s, replay gives %s",
			ErrLedgerInconsistent, contact.Balance.String(), replayed.String())
	}
	if contact.LastSequence != int64(len(ops)) {
		return fmt.Errorf("%w: contact last sequence %d, found %d operations",
			ErrLedgerInconsistent, contact.LastSequence, len(ops))
	}
	return nil
}
