package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Invoice statuses
const (
	InvoiceStatusDraft         = "draft"
	InvoiceStatusSent          = "sent"
	InvoiceStatusPartiallyPaid = "partially_paid"
	InvoiceStatusPaid          = "paid"
	InvoiceStatusOverdue       = "overdue"
	InvoiceStatusVoid          = "void"
)

// LineItem is one billable line on an invoice.
type LineItem struct {
	Description string          `json:"description"`
	Quantity    decimal.Decimal `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
}

// Amount returns quantity × unit price.
func (l LineItem) Amount() decimal.Decimal {
	return l.Quantity.Mul(l.UnitPrice)
}

// Invoice bills a client. Totals are derived from the line items by the billing service.
type Invoice struct {
	InvoiceID uuid.UUID  `json:"invoice_id"`
	OrgID     uuid.UUID  `json:"org_id"`
	ClientID  uuid.UUID  `json:"client_id"`
	GalleryID *uuid.UUID `json:"gallery_id,omitempty"`
	Number    string     `json:"number"` // INV-<year>-<seq>
	Status    string     `json:"status"`
	Currency  string     `json:"currency"`

	Items    []LineItem      `json:"items"`
	TaxRate  decimal.Decimal `json:"tax_rate"` // fraction, e.g. 0.0825
	Discount decimal.Decimal `json:"discount"`

	Subtotal   decimal.Decimal `json:"subtotal"`
	Tax        decimal.Decimal `json:"tax"`
	Total      decimal.Decimal `json:"total"`
	AmountPaid decimal.Decimal `json:"amount_paid"`

	DueDate  time.Time  `json:"due_date"`
	IssuedAt *time.Time `json:"issued_at,omitempty"`
	PaidAt   *time.Time `json:"paid_at,omitempty"`
	Notes    string     `json:"notes"`

	QuickBooksInvoiceID string `json:"quickbooks_invoice_id"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Balance returns the amount still owed.
func (i *Invoice) Balance() decimal.Decimal {
	return i.Total.Sub(i.AmountPaid)
}

// IsOpen returns true if the invoice can receive payments.
func (i *Invoice) IsOpen() bool {
	switch i.Status {
	case InvoiceStatusSent, InvoiceStatusPartiallyPaid, InvoiceStatusOverdue:
		return true
	}
	return false
}

// Payment providers
const (
	PaymentProviderStripe = "stripe"
	PaymentProviderManual = "manual"
)

// Payment statuses
const (
	PaymentStatusPending   = "pending"
	PaymentStatusSucceeded = "succeeded"
	PaymentStatusFailed    = "failed"
	PaymentStatusRefunded  = "refunded"
)

// Payment records money received against an invoice.
// (Provider, ProviderRef) is unique: a Stripe checkout session is recorded once.
type Payment struct {
	PaymentID   uuid.UUID       `json:"payment_id"`
	OrgID       uuid.UUID       `json:"org_id"`
	InvoiceID   uuid.UUID       `json:"invoice_id"`
	Provider    string          `json:"provider"`
	ProviderRef string          `json:"provider_ref"` // Stripe checkout session ID, or a manual reference
	Amount      decimal.Decimal `json:"amount"`
	PlatformFee decimal.Decimal `json:"platform_fee"`
	Currency    string          `json:"currency"`
	Status      string          `json:"status"`
	CreatedAt   time.Time       `json:"created_at"`
}
