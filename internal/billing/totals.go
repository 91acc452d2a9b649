package billing

import (
	"errors"

	"github.com/shopspring/decimal"

	"github.com/wolfeidau/studioos/internal/models"
	"github.com/wolfeidau/studioos/internal/money"
)

var (
	ErrNoItems           = errors.New("invoice must have at least one line item")
	ErrInvalidQuantity   = errors.New("line item quantity must be greater than zero")
	ErrInvalidUnitPrice  = errors.New("line item unit price must not be negative")
	ErrInvalidTaxRate    = errors.New("tax rate must be between 0 and 1")
	ErrDiscountTooLarge  = errors.New("discount must not exceed the subtotal")
	ErrNegativeDiscount  = errors.New("discount must not be negative")
	ErrDescriptionNeeded = errors.New("line item description is required")
)

// Totals are the derived amounts of an invoice.
type Totals struct {
	Subtotal decimal.Decimal
	Tax      decimal.Decimal
	Total    decimal.Decimal
}

// Calculate derives subtotal, tax and total:
//
//	subtotal = Σ qty × unit
//	tax      = round2((subtotal − discount) × rate)
//	total    = subtotal − discount + tax
func Calculate(items []models.LineItem, taxRate, discount decimal.Decimal) (Totals, error) {
	if len(items) == 0 {
		return Totals{}, ErrNoItems
	}
	if taxRate.IsNegative() || taxRate.GreaterThan(decimal.NewFromInt(1)) {
		return Totals{}, ErrInvalidTaxRate
	}
	if discount.IsNegative() {
		return Totals{}, ErrNegativeDiscount
	}

	subtotal := decimal.Zero
	for _, item := range items {
		if item.Description == "" {
			return Totals{}, ErrDescriptionNeeded
		}
		if !item.Quantity.IsPositive() {
			return Totals{}, ErrInvalidQuantity
		}
		if item.UnitPrice.IsNegative() {
			return Totals{}, ErrInvalidUnitPrice
		}
		subtotal = subtotal.Add(item.Amount())
	}
	subtotal = money.Round2(subtotal)
	discount = money.Round2(discount)

	if discount.GreaterThan(subtotal) {
		return Totals{}, ErrDiscountTooLarge
	}

	taxable := subtotal.Sub(discount)
	tax := money.Round2(taxable.Mul(taxRate))

	return Totals{
		Subtotal: subtotal,
		Tax:      tax,
		Total:    taxable.Add(tax),
	}, nil
}
