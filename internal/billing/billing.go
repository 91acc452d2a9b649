// Package billing issues invoices and records payments against them.
package billing

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/wolfeidau/studioos/internal/events"
	"github.com/wolfeidau/studioos/internal/links"
	"github.com/wolfeidau/studioos/internal/models"
	"github.com/wolfeidau/studioos/internal/money"
	"github.com/wolfeidau/studioos/internal/store"
	"github.com/wolfeidau/studioos/internal/telemetry"
)

var (
	ErrInvalidTransition = errors.New("invalid invoice status transition")
	ErrNotDraft          = errors.New("only draft invoices can be edited")
	ErrInvoiceNotPayable = errors.New("invoice is not open for payment")
	ErrInvalidPayment    = errors.New("payment amount must be greater than zero")
	ErrUnknownProvider   = errors.New("unknown payment provider")
	ErrReferenceRequired = errors.New("payment reference is required")
	ErrCurrencyMismatch  = errors.New("payment currency does not match invoice")
	ErrDueDateRequired   = errors.New("invoice due date is required")
)

// DefaultLinkTTL is how long a payment link stays valid.
const DefaultLinkTTL = 60 * 24 * time.Hour

// Config holds service options.
type Config struct {
	BaseURL string
	LinkTTL time.Duration
}

type Service struct {
	invoices store.InvoiceStore
	clients  store.ClientStore
	orgs     store.OrganizationStore
	signer   *links.Signer
	events   events.Publisher
	cfg      Config
	now      func() time.Time
}

func NewService(invoices store.InvoiceStore, clients store.ClientStore, orgs store.OrganizationStore, signer *links.Signer, publisher events.Publisher, cfg Config) *Service {
	if cfg.LinkTTL == 0 {
		cfg.LinkTTL = DefaultLinkTTL
	}
	return &Service{
		invoices: invoices,
		clients:  clients,
		orgs:     orgs,
		signer:   signer,
		events:   publisher,
		cfg:      cfg,
		now:      time.Now,
	}
}

// Input holds the editable invoice fields.
type Input struct {
	ClientID  uuid.UUID
	GalleryID *uuid.UUID
	Items     []models.LineItem
	TaxRate   decimal.Decimal
	Discount  decimal.Decimal
	DueDate   time.Time
	Notes     string
}

// Create allocates the next invoice number and saves a draft.
func (s *Service) Create(ctx context.Context, orgID uuid.UUID, in Input) (*models.Invoice, error) {
	org, err := s.orgs.Get(ctx, orgID)
	if err != nil {
		return nil, err
	}
	if _, err := s.clients.Get(ctx, orgID, in.ClientID); err != nil {
		return nil, err
	}

	inv := &models.Invoice{
		InvoiceID: uuid.Must(uuid.NewV7()),
		OrgID:     orgID,
		Status:    models.InvoiceStatusDraft,
		Currency:  org.Currency,
	}
	if err := apply(inv, in); err != nil {
		return nil, err
	}

	year := s.now().In(orgLocation(org)).Year()
	seq, err := s.invoices.NextNumber(ctx, orgID, year)
	if err != nil {
		return nil, fmt.Errorf("failed to allocate invoice number: %w", err)
	}
	inv.Number = FormatNumber(year, seq)

	now := s.now()
	inv.CreatedAt = now
	inv.UpdatedAt = now
	if err := s.invoices.Create(ctx, inv); err != nil {
		return nil, fmt.Errorf("failed to create invoice: %w", err)
	}
	return inv, nil
}

// Update replaces the contents of a draft invoice.
func (s *Service) Update(ctx context.Context, orgID, invoiceID uuid.UUID, in Input) (*models.Invoice, error) {
	inv, err := s.invoices.Get(ctx, orgID, invoiceID)
	if err != nil {
		return nil, err
	}
	if inv.Status != models.InvoiceStatusDraft {
		return nil, ErrNotDraft
	}
	if in.ClientID != inv.ClientID {
		if _, err := s.clients.Get(ctx, orgID, in.ClientID); err != nil {
			return nil, err
		}
	}
	if err := apply(inv, in); err != nil {
		return nil, err
	}
	if err := s.invoices.Update(ctx, inv); err != nil {
		return nil, fmt.Errorf("failed to update invoice: %w", err)
	}
	return inv, nil
}

func (s *Service) Get(ctx context.Context, orgID, invoiceID uuid.UUID) (*models.Invoice, error) {
	return s.invoices.Get(ctx, orgID, invoiceID)
}

func (s *Service) List(ctx context.Context, orgID uuid.UUID, opts store.ListInvoicesOptions) ([]*models.Invoice, error) {
	return s.invoices.List(ctx, orgID, opts)
}

func (s *Service) ListPayments(ctx context.Context, orgID, invoiceID uuid.UUID) ([]*models.Payment, error) {
	if _, err := s.invoices.Get(ctx, orgID, invoiceID); err != nil {
		return nil, err
	}
	return s.invoices.ListPayments(ctx, orgID, invoiceID)
}

// Send issues a draft invoice and returns the client's payment link.
func (s *Service) Send(ctx context.Context, orgID, invoiceID uuid.UUID) (*models.Invoice, string, error) {
	inv, err := s.invoices.Get(ctx, orgID, invoiceID)
	if err != nil {
		return nil, "", err
	}
	if inv.Status != models.InvoiceStatusDraft {
		return nil, "", fmt.Errorf("%w: %s → %s", ErrInvalidTransition, inv.Status, models.InvoiceStatusSent)
	}

	link, err := s.PaymentLink(inv)
	if err != nil {
		return nil, "", err
	}

	now := s.now()
	inv, err = s.invoices.Transition(ctx, orgID, invoiceID, store.InvoiceTransition{
		From:     []string{models.InvoiceStatusDraft},
		To:       models.InvoiceStatusSent,
		IssuedAt: &now,
	})
	if err != nil {
		return nil, "", fmt.Errorf("failed to send invoice: %w", err)
	}

	s.publish(ctx, events.InvoiceSent, inv, map[string]any{"link": link})
	return inv, link, nil
}

// Void cancels an invoice that has not been paid in full.
func (s *Service) Void(ctx context.Context, orgID, invoiceID uuid.UUID) (*models.Invoice, error) {
	inv, err := s.invoices.Transition(ctx, orgID, invoiceID, store.InvoiceTransition{
		From: voidable,
		To:   models.InvoiceStatusVoid,
	})
	if errors.Is(err, store.ErrInvoiceStatusChanged) {
		current, getErr := s.invoices.Get(ctx, orgID, invoiceID)
		if getErr != nil {
			return nil, getErr
		}
		return nil, fmt.Errorf("%w: %s → %s", ErrInvalidTransition, current.Status, models.InvoiceStatusVoid)
	}
	if err != nil {
		return nil, err
	}
	return inv, nil
}

var voidable = []string{
	models.InvoiceStatusDraft,
	models.InvoiceStatusSent,
	models.InvoiceStatusPartiallyPaid,
	models.InvoiceStatusOverdue,
}

// MarkOverdue moves sent and partially paid invoices past their due date to
// overdue. An invoice paid or voided since it was listed is skipped.
func (s *Service) MarkOverdue(ctx context.Context, now time.Time) (int, error) {
	pastDue, err := s.invoices.ListPastDue(ctx, now)
	if err != nil {
		return 0, fmt.Errorf("failed to list past due invoices: %w", err)
	}

	marked := 0
	for _, listed := range pastDue {
		inv, err := s.invoices.Transition(ctx, listed.OrgID, listed.InvoiceID, store.InvoiceTransition{
			From: []string{models.InvoiceStatusSent, models.InvoiceStatusPartiallyPaid},
			To:   models.InvoiceStatusOverdue,
		})
		if errors.Is(err, store.ErrInvoiceStatusChanged) {
			continue
		}
		if err != nil {
			zerolog.Ctx(ctx).Error().Err(err).Str("invoice_id", listed.InvoiceID.String()).Msg("Failed to mark invoice overdue")
			continue
		}
		marked++

		extra := map[string]any{}
		if link, err := s.PaymentLink(inv); err == nil {
			extra["link"] = link
		}
		s.publish(ctx, events.InvoiceOverdue, inv, extra)
	}
	return marked, nil
}

// PaymentInput describes money received against an invoice.
type PaymentInput struct {
	InvoiceID   uuid.UUID
	Provider    string
	ProviderRef string
	Amount      decimal.Decimal
	PlatformFee decimal.Decimal
	Currency    string // defaults to the invoice currency
	Status      string // defaults to succeeded
}

// RecordPayment saves a payment once per (provider, provider ref). A repeat
// returns the existing payment and created=false without touching the invoice.
func (s *Service) RecordPayment(ctx context.Context, orgID uuid.UUID, in PaymentInput) (payment *models.Payment, created bool, err error) {
	if in.Provider != models.PaymentProviderStripe && in.Provider != models.PaymentProviderManual {
		return nil, false, fmt.Errorf("%w: %q", ErrUnknownProvider, in.Provider)
	}
	if strings.TrimSpace(in.ProviderRef) == "" {
		return nil, false, ErrReferenceRequired
	}
	if !in.Amount.IsPositive() {
		return nil, false, ErrInvalidPayment
	}
	if in.Status == "" {
		in.Status = models.PaymentStatusSucceeded
	}

	payment = &models.Payment{
		PaymentID:   uuid.Must(uuid.NewV7()),
		OrgID:       orgID,
		InvoiceID:   in.InvoiceID,
		Provider:    in.Provider,
		ProviderRef: in.ProviderRef,
		Amount:      money.Round2(in.Amount),
		PlatformFee: money.Round2(in.PlatformFee),
		Currency:    strings.ToLower(in.Currency),
		Status:      in.Status,
		CreatedAt:   s.now(),
	}

	var paid bool
	inv, err := s.invoices.ApplyPayment(ctx, payment, func(inv *models.Invoice) error {
		if !inv.IsOpen() {
			return fmt.Errorf("%w: invoice is %s", ErrInvoiceNotPayable, inv.Status)
		}
		if payment.Currency == "" {
			payment.Currency = inv.Currency
		}
		if payment.Currency != inv.Currency {
			return fmt.Errorf("%w: %s != %s", ErrCurrencyMismatch, payment.Currency, inv.Currency)
		}
		if payment.Status != models.PaymentStatusSucceeded {
			return nil
		}

		inv.AmountPaid = inv.AmountPaid.Add(payment.Amount)
		paid = !inv.AmountPaid.LessThan(inv.Total)
		if paid {
			paidAt := s.now()
			inv.Status = models.InvoiceStatusPaid
			inv.PaidAt = &paidAt
		} else {
			inv.Status = models.InvoiceStatusPartiallyPaid
		}
		return nil
	})
	if errors.Is(err, store.ErrPaymentAlreadyExists) {
		existing, getErr := s.invoices.GetPaymentByRef(ctx, in.Provider, in.ProviderRef)
		if getErr != nil {
			return nil, false, getErr
		}
		return existing, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to record payment: %w", err)
	}

	if payment.Status != models.PaymentStatusSucceeded {
		return payment, true, nil
	}

	metrics := telemetry.GetMetrics()
	metrics.PaymentsRecordedTotal.Add(ctx, 1)
	metrics.PaymentAmount.Record(ctx, payment.Amount.InexactFloat64())

	zerolog.Ctx(ctx).Info().
		Str("invoice_id", inv.InvoiceID.String()).
		Str("provider", payment.Provider).
		Str("amount", payment.Amount.StringFixed(2)).
		Str("status", inv.Status).
		Msg("Payment recorded")

	if paid {
		s.publish(ctx, events.InvoicePaid, inv, map[string]any{"payment_amount": payment.Amount.InexactFloat64()})
	}
	return payment, true, nil
}

// PaymentLink returns the signed client URL of an invoice's pay page.
func (s *Service) PaymentLink(inv *models.Invoice) (string, error) {
	token, err := s.signer.Sign(links.KindInvoice, inv.OrgID, inv.InvoiceID, s.cfg.LinkTTL)
	if err != nil {
		return "", fmt.Errorf("failed to sign payment link: %w", err)
	}
	return strings.TrimRight(s.cfg.BaseURL, "/") + "/p/invoices/" + token, nil
}

// PublicInvoice is what a client sees on the pay page.
type PublicInvoice struct {
	Invoice      *models.Invoice
	Client       *models.Client
	Organization *models.Organization
}

// OpenPublic resolves a payment link token. Draft invoices are hidden.
func (s *Service) OpenPublic(ctx context.Context, token string) (*PublicInvoice, error) {
	claims, err := s.signer.Verify(token, links.KindInvoice)
	if err != nil {
		return nil, err
	}
	inv, err := s.invoices.Get(ctx, claims.OrgID, claims.ID)
	if err != nil {
		return nil, err
	}
	if inv.Status == models.InvoiceStatusDraft {
		return nil, store.ErrInvoiceNotFound
	}
	org, err := s.orgs.Get(ctx, inv.OrgID)
	if err != nil {
		return nil, err
	}
	client, err := s.clients.Get(ctx, inv.OrgID, inv.ClientID)
	if err != nil {
		return nil, err
	}
	return &PublicInvoice{Invoice: inv, Client: client, Organization: org}, nil
}

func (s *Service) publish(ctx context.Context, eventType string, inv *models.Invoice, extra map[string]any) {
	payload := map[string]any{
		"invoice": events.InvoicePayload(inv),
		"total":   inv.Total.InexactFloat64(),
		"balance": inv.Balance().InexactFloat64(),
	}
	if client, err := s.clients.Get(ctx, inv.OrgID, inv.ClientID); err == nil {
		payload["client"] = events.ClientPayload(client)
	}
	if org, err := s.orgs.Get(ctx, inv.OrgID); err == nil {
		payload["org"] = events.OrgPayload(org)
	}
	for k, v := range extra {
		payload[k] = v
	}
	s.events.Publish(ctx, events.New(eventType, inv.OrgID, payload))
}

// FormatNumber renders INV-<year>-<seq>, zero padded to four digits.
func FormatNumber(year, seq int) string {
	return fmt.Sprintf("INV-%d-%04d", year, seq)
}

func apply(inv *models.Invoice, in Input) error {
	if in.DueDate.IsZero() {
		return ErrDueDateRequired
	}
	items := make([]models.LineItem, len(in.Items))
	for i, item := range in.Items {
		item.Description = strings.TrimSpace(item.Description)
		item.UnitPrice = money.Round2(item.UnitPrice)
		items[i] = item
	}

	totals, err := Calculate(items, in.TaxRate, in.Discount)
	if err != nil {
		return err
	}

	inv.ClientID = in.ClientID
	inv.GalleryID = in.GalleryID
	inv.Items = items
	inv.TaxRate = in.TaxRate
	inv.Discount = money.Round2(in.Discount)
	inv.Subtotal = totals.Subtotal
	inv.Tax = totals.Tax
	inv.Total = totals.Total
	inv.DueDate = in.DueDate
	inv.Notes = strings.TrimSpace(in.Notes)
	return nil
}

func orgLocation(org *models.Organization) *time.Location {
	if org.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(org.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
