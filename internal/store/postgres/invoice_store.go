package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/studioos/internal/models"
	"github.com/wolfeidau/studioos/internal/store"
)

// InvoiceStore implements store.InvoiceStore using PostgreSQL.
// Line items are stored as JSONB on the invoice row.
type InvoiceStore struct {
	db
}

const invoiceColumns = `invoice_id, org_id, client_id, gallery_id, number, status, currency, items,
	tax_rate, discount, subtotal, tax, total, amount_paid, due_date, issued_at, paid_at, notes,
	quickbooks_invoice_id, created_at, updated_at`

const paymentColumns = `payment_id, org_id, invoice_id, provider, provider_ref, amount, platform_fee,
	currency, status, created_at`

func (s *InvoiceStore) Create(ctx context.Context, inv *models.Invoice) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	items, err := json.Marshal(inv.Items)
	if err != nil {
		return fmt.Errorf("failed to marshal line items: %w", err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO invoices (`+invoiceColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21)
	`,
		inv.InvoiceID,
		inv.OrgID,
		inv.ClientID,
		inv.GalleryID,
		inv.Number,
		inv.Status,
		inv.Currency,
		items,
		numeric(inv.TaxRate),
		numeric(inv.Discount),
		numeric(inv.Subtotal),
		numeric(inv.Tax),
		numeric(inv.Total),
		numeric(inv.AmountPaid),
		inv.DueDate,
		inv.IssuedAt,
		inv.PaidAt,
		inv.Notes,
		inv.QuickBooksInvoiceID,
		inv.CreatedAt,
		inv.UpdatedAt,
	)
	return mapPostgresError(err, store.ErrClientNotFound)
}

func (s *InvoiceStore) Get(ctx context.Context, orgID, invoiceID uuid.UUID) (*models.Invoice, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	row := s.pool.QueryRow(ctx, `SELECT `+invoiceColumns+` FROM invoices WHERE org_id = $1 AND invoice_id = $2`, orgID, invoiceID)
	inv, err := scanInvoice(row)
	if err != nil {
		return nil, mapPostgresError(err, store.ErrInvoiceNotFound)
	}
	return inv, nil
}

func (s *InvoiceStore) Update(ctx context.Context, inv *models.Invoice) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	items, err := json.Marshal(inv.Items)
	if err != nil {
		return fmt.Errorf("failed to marshal line items: %w", err)
	}

	inv.UpdatedAt = time.Now()

	result, err := s.pool.Exec(ctx, `
		UPDATE invoices SET
			client_id = $3,
			gallery_id = $4,
			currency = $5,
			items = $6,
			tax_rate = $7,
			discount = $8,
			subtotal = $9,
			tax = $10,
			total = $11,
			due_date = $12,
			notes = $13,
			updated_at = $14
		WHERE org_id = $1 AND invoice_id = $2 AND status = 'draft'
	`,
		inv.OrgID,
		inv.InvoiceID,
		inv.ClientID,
		inv.GalleryID,
		inv.Currency,
		items,
		numeric(inv.TaxRate),
		numeric(inv.Discount),
		numeric(inv.Subtotal),
		numeric(inv.Tax),
		numeric(inv.Total),
		inv.DueDate,
		inv.Notes,
		inv.UpdatedAt,
	)
	if err != nil {
		return mapPostgresError(err, store.ErrClientNotFound)
	}
	if result.RowsAffected() == 0 {
		return s.missOrChanged(ctx, inv.OrgID, inv.InvoiceID)
	}
	return nil
}

func (s *InvoiceStore) Transition(ctx context.Context, orgID, invoiceID uuid.UUID, t store.InvoiceTransition) (*models.Invoice, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	row := s.pool.QueryRow(ctx, `
		UPDATE invoices SET
			status = $3,
			issued_at = COALESCE($4, issued_at),
			updated_at = $5
		WHERE org_id = $1 AND invoice_id = $2 AND status = ANY($6)
		RETURNING `+invoiceColumns,
		orgID, invoiceID, t.To, t.IssuedAt, time.Now(), t.From,
	)
	inv, err := scanInvoice(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, s.missOrChanged(ctx, orgID, invoiceID)
	}
	if err != nil {
		return nil, mapPostgresError(err, store.ErrInvoiceNotFound)
	}
	return inv, nil
}

func (s *InvoiceStore) SetQuickBooksInvoiceID(ctx context.Context, orgID, invoiceID uuid.UUID, quickBooksInvoiceID string) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	result, err := s.pool.Exec(ctx, `
		UPDATE invoices SET quickbooks_invoice_id = $3, updated_at = $4
		WHERE org_id = $1 AND invoice_id = $2
	`, orgID, invoiceID, quickBooksInvoiceID, time.Now())
	if err != nil {
		return mapPostgresError(err, nil)
	}
	if result.RowsAffected() == 0 {
		return store.ErrInvoiceNotFound
	}
	return nil
}

// ApplyPayment locks the invoice row for the length of the transaction, so
// concurrent payments against one invoice apply in turn.
func (s *InvoiceStore) ApplyPayment(ctx context.Context, p *models.Payment, apply func(*models.Invoice) error) (*models.Invoice, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback is safe to call after commit

	row := tx.QueryRow(ctx, `SELECT `+invoiceColumns+` FROM invoices WHERE org_id = $1 AND invoice_id = $2 FOR UPDATE`, p.OrgID, p.InvoiceID)
	inv, err := scanInvoice(row)
	if err != nil {
		return nil, mapPostgresError(err, store.ErrInvoiceNotFound)
	}

	var recorded bool
	err = tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM payments WHERE provider = $1 AND provider_ref = $2)`, p.Provider, p.ProviderRef).Scan(&recorded)
	if err != nil {
		return nil, mapPostgresError(err, nil)
	}
	if recorded {
		return nil, store.ErrPaymentAlreadyExists
	}

	if err := apply(inv); err != nil {
		return nil, err
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO payments (`+paymentColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`,
		p.PaymentID,
		p.OrgID,
		p.InvoiceID,
		p.Provider,
		p.ProviderRef,
		numeric(p.Amount),
		numeric(p.PlatformFee),
		p.Currency,
		p.Status,
		p.CreatedAt,
	)
	if isUniqueViolation(err) {
		log.Debug().Str("provider", p.Provider).Str("provider_ref", p.ProviderRef).Msg("Payment already recorded")
	}
	if err != nil {
		return nil, mapPostgresError(err, store.ErrInvoiceNotFound)
	}

	inv.UpdatedAt = time.Now()
	_, err = tx.Exec(ctx, `
		UPDATE invoices SET status = $3, amount_paid = $4, paid_at = $5, updated_at = $6
		WHERE org_id = $1 AND invoice_id = $2
	`, inv.OrgID, inv.InvoiceID, inv.Status, numeric(inv.AmountPaid), inv.PaidAt, inv.UpdatedAt)
	if err != nil {
		return nil, mapPostgresError(err, nil)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit payment: %w", err)
	}
	return inv, nil
}

// missOrChanged explains why a guarded update touched no rows.
func (s *InvoiceStore) missOrChanged(ctx context.Context, orgID, invoiceID uuid.UUID) error {
	var exists bool
	err := s.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM invoices WHERE org_id = $1 AND invoice_id = $2)`, orgID, invoiceID).Scan(&exists)
	if err != nil {
		return mapPostgresError(err, nil)
	}
	if !exists {
		return store.ErrInvoiceNotFound
	}
	return store.ErrInvoiceStatusChanged
}

func (s *InvoiceStore) List(ctx context.Context, orgID uuid.UUID, opts store.ListInvoicesOptions) ([]*models.Invoice, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	rows, err := s.pool.Query(ctx, `
		SELECT `+invoiceColumns+`
		FROM invoices
		WHERE org_id = $1
		  AND ($2::uuid IS NULL OR client_id = $2)
		  AND ($3 = '' OR status = $3)
		ORDER BY created_at DESC
	`, orgID, opts.ClientID, opts.Status)
	if err != nil {
		return nil, fmt.Errorf("failed to list invoices: %w", err)
	}
	return collectInvoices(rows)
}

func (s *InvoiceStore) ListPastDue(ctx context.Context, now time.Time) ([]*models.Invoice, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	rows, err := s.pool.Query(ctx, `
		SELECT `+invoiceColumns+`
		FROM invoices
		WHERE status IN ('sent', 'partially_paid') AND due_date < $1
	`, now)
	if err != nil {
		return nil, fmt.Errorf("failed to list past due invoices: %w", err)
	}
	return collectInvoices(rows)
}

// NextNumber allocates from invoice_counters with an upsert, so concurrent callers never share a number.
func (s *InvoiceStore) NextNumber(ctx context.Context, orgID uuid.UUID, year int) (int, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var seq int
	err := s.pool.QueryRow(ctx, `
		INSERT INTO invoice_counters (org_id, year, last_seq)
		VALUES ($1, $2, 1)
		ON CONFLICT (org_id, year) DO UPDATE SET last_seq = invoice_counters.last_seq + 1
		RETURNING last_seq
	`, orgID, year).Scan(&seq)
	if err != nil {
		return 0, mapPostgresError(err, store.ErrOrganizationNotFound)
	}
	return seq, nil
}

func (s *InvoiceStore) GetPaymentByRef(ctx context.Context, provider, providerRef string) (*models.Payment, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	row := s.pool.QueryRow(ctx, `SELECT `+paymentColumns+` FROM payments WHERE provider = $1 AND provider_ref = $2`, provider, providerRef)
	p, err := scanPayment(row)
	if err != nil {
		return nil, mapPostgresError(err, store.ErrPaymentNotFound)
	}
	return p, nil
}

func (s *InvoiceStore) ListPayments(ctx context.Context, orgID, invoiceID uuid.UUID) ([]*models.Payment, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	rows, err := s.pool.Query(ctx, `
		SELECT `+paymentColumns+`
		FROM payments
		WHERE org_id = $1 AND invoice_id = $2
		ORDER BY created_at
	`, orgID, invoiceID)
	if err != nil {
		return nil, fmt.Errorf("failed to list payments: %w", err)
	}

	payments, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*models.Payment, error) {
		return scanPayment(row)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan payments: %w", err)
	}
	return payments, nil
}

func collectInvoices(rows pgx.Rows) ([]*models.Invoice, error) {
	invoices, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*models.Invoice, error) {
		return scanInvoice(row)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan invoices: %w", err)
	}
	return invoices, nil
}

func scanInvoice(row pgx.Row) (*models.Invoice, error) {
	var (
		inv                                            models.Invoice
		items                                          []byte
		taxRate, discount, subtotal, tax, total, paid pgtype.Numeric
	)
	err := row.Scan(
		&inv.InvoiceID,
		&inv.OrgID,
		&inv.ClientID,
		&inv.GalleryID,
		&inv.Number,
		&inv.Status,
		&inv.Currency,
		&items,
		&taxRate,
		&discount,
		&subtotal,
		&tax,
		&total,
		&paid,
		&inv.DueDate,
		&inv.IssuedAt,
		&inv.PaidAt,
		&inv.Notes,
		&inv.QuickBooksInvoiceID,
		&inv.CreatedAt,
		&inv.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(items, &inv.Items); err != nil {
		return nil, errors.Join(fmt.Errorf("invoice %s has malformed items", inv.InvoiceID), err)
	}

	inv.TaxRate = decimalFrom(taxRate)
	inv.Discount = decimalFrom(discount)
	inv.Subtotal = decimalFrom(subtotal)
	inv.Tax = decimalFrom(tax)
	inv.Total = decimalFrom(total)
	inv.AmountPaid = decimalFrom(paid)
	return &inv, nil
}

func scanPayment(row pgx.Row) (*models.Payment, error) {
	var (
		p           models.Payment
		amount, fee pgtype.Numeric
	)
	err := row.Scan(
		&p.PaymentID,
		&p.OrgID,
		&p.InvoiceID,
		&p.Provider,
		&p.ProviderRef,
		&amount,
		&fee,
		&p.Currency,
		&p.Status,
		&p.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	p.Amount = decimalFrom(amount)
	p.PlatformFee = decimalFrom(fee)
	return &p, nil
}
