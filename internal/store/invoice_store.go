package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/wolfeidau/studioos/internal/models"
)

var (
	ErrInvoiceNotFound      = errors.New("invoice not found")
	ErrInvoiceAlreadyExists = errors.New("invoice number already exists")
	ErrPaymentNotFound      = errors.New("payment not found")
	ErrPaymentAlreadyExists = errors.New("payment already recorded")
	ErrInvoiceStatusChanged = errors.New("invoice status changed concurrently")
)

// InvoiceStore persists invoices, their payments and the per-organization number sequence.
type InvoiceStore interface {
	Create(ctx context.Context, invoice *models.Invoice) error
	Get(ctx context.Context, orgID, invoiceID uuid.UUID) (*models.Invoice, error)

	// Update rewrites a draft invoice. It returns ErrInvoiceStatusChanged once
	// the invoice has left draft.
	Update(ctx context.Context, invoice *models.Invoice) error
	List(ctx context.Context, orgID uuid.UUID, opts ListInvoicesOptions) ([]*models.Invoice, error)

	// ListPastDue returns sent or partially paid invoices due before now, across tenants.
	ListPastDue(ctx context.Context, now time.Time) ([]*models.Invoice, error)

	// NextNumber allocates the next invoice sequence number for an organization and year.
	// Sequences start at 1 and never repeat.
	NextNumber(ctx context.Context, orgID uuid.UUID, year int) (int, error)

	// Transition moves an invoice to t.To only while its status is one of t.From,
	// leaving every other column alone. It returns ErrInvoiceStatusChanged when
	// the invoice is in some other status.
	Transition(ctx context.Context, orgID, invoiceID uuid.UUID, t InvoiceTransition) (*models.Invoice, error)

	SetQuickBooksInvoiceID(ctx context.Context, orgID, invoiceID uuid.UUID, quickBooksInvoiceID string) error

	// ApplyPayment inserts payment and saves its effect on the invoice as one
	// unit. apply runs against the locked invoice and may change both it and
	// payment; an error from apply aborts without writing anything. Returns
	// ErrPaymentAlreadyExists if (provider, provider_ref) was already recorded.
	ApplyPayment(ctx context.Context, payment *models.Payment, apply func(invoice *models.Invoice) error) (*models.Invoice, error)

	GetPaymentByRef(ctx context.Context, provider, providerRef string) (*models.Payment, error)
	ListPayments(ctx context.Context, orgID, invoiceID uuid.UUID) ([]*models.Payment, error)
}

// InvoiceTransition is a guarded status change.
type InvoiceTransition struct {
	From     []string
	To       string
	IssuedAt *time.Time // set when non-nil
}

// ListInvoicesOptions specifies filters for listing invoices
type ListInvoicesOptions struct {
	ClientID *uuid.UUID
	Status   string
}
