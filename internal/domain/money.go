package domain

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Amount limits. Anything larger or finer than this is rejected before any
// arithmetic or formatting touches the value.
const (
	MaxAmountIntegerDigits = 15
	MaxAmountScale         = 8

	maxAmountDigits = 64
)

// ParseAmount parses a client-supplied operation amount. It accepts the raw
// text of a JSON number or of a quoted numeric string.
// Returns ErrInvalidAmount unless the value is a number strictly greater than
// zero that passes ValidateAmount.
func ParseAmount(raw string) (decimal.Decimal, error) {
	s := strings.TrimSpace(raw)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = strings.TrimSpace(s[1 : len(s)-1])
	}
	if s == "" || s == "null" {
		return decimal.Zero, ErrInvalidAmount
	}

	amount, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %q is not a number", ErrInvalidAmount, s)
	}
	if err := ValidateAmount(amount); err != nil {
		return decimal.Zero, err
	}
	return amount, nil
}

// ValidateAmount checks that amount is positive, has at most
// MaxAmountIntegerDigits digits before the decimal point and no significant
// digits beyond MaxAmountScale places after it. Trailing zeros are allowed.
func ValidateAmount(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return fmt.Errorf("%w: must be greater than zero", ErrInvalidAmount)
	}

	digits := len(amount.Coefficient().String())
	if digits > maxAmountDigits {
		return fmt.Errorf("%w: more than %d digits", ErrInvalidAmount, maxAmountDigits)
	}

	// The most significant digit sits at 10^(exp+digits-1).
	exp := int64(amount.Exponent())
	if exp+int64(digits) > MaxAmountIntegerDigits {
		return fmt.Errorf("%w: more than %d integer digits", ErrInvalidAmount, MaxAmountIntegerDigits)
	}
	if exp+int64(digits) <= -MaxAmountScale {
		return fmt.Errorf("%w: more than %d decimal places", ErrInvalidAmount, MaxAmountScale)
	}
	if exp < -MaxAmountScale && !amount.Truncate(MaxAmountScale).Equal(amount) {
		return fmt.Errorf("%w: more than %d decimal places", ErrInvalidAmount, MaxAmountScale)
	}
	return nil
}

// FormatMoney renders an amount as "$X.XX".
func FormatMoney(amount decimal.Decimal) string {
	if amount.IsNegative() {
		return "-$" + amount.Abs().StringFixed(2)
	}
	return "$" + amount.StringFixed(2)
}

// FormatSignedMoney renders the magnitude of amount with the sign implied by
// kind: "+$X.XX" for credits, "-$X.XX" for debits.
func FormatSignedMoney(kind OperationKind, amount decimal.Decimal) string {
	sign := "+"
	if kind == OperationDebit {
		sign = "-"
	}
	return sign + "$" + amount.Abs().StringFixed(2)
}
