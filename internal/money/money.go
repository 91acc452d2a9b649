// Package money holds the decimal rounding rules shared by invoicing and checkout.
package money

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var (
	ErrNegativeAmount    = errors.New("amount must not be negative")
	ErrInvalidFeePercent = errors.New("platform fee percent must be between 0 and 100")

	hundred = decimal.NewFromInt(100)
)

// Round2 rounds to cents, half away from zero.
func Round2(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// ToCents converts a major-unit amount to integer minor units.
func ToCents(d decimal.Decimal) int64 {
	return d.Round(2).Shift(2).IntPart()
}

// FromCents converts integer minor units to a major-unit amount.
func FromCents(cents int64) decimal.Decimal {
	return decimal.New(cents, -2)
}

// PlatformFee returns round(cents × percent / 100) in minor units.
func PlatformFee(cents int64, percent decimal.Decimal) int64 {
	return decimal.NewFromInt(cents).Mul(percent).Div(hundred).Round(0).IntPart()
}

// ValidateFeePercent rejects percentages outside 0–100.
func ValidateFeePercent(percent decimal.Decimal) error {
	if percent.IsNegative() || percent.GreaterThan(hundred) {
		return fmt.Errorf("%w: got %s", ErrInvalidFeePercent, percent)
	}
	return nil
}

// Parse reads a non-negative decimal amount such as "19.99".
func Parse(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	if d.IsNegative() {
		return decimal.Zero, ErrNegativeAmount
	}
	return d, nil
}
