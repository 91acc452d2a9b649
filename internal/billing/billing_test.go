package billing

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/wolfeidau/studioos/internal/events"
	"github.com/wolfeidau/studioos/internal/links"
	"github.com/wolfeidau/studioos/internal/models"
	"github.com/wolfeidau/studioos/internal/store"
	"github.com/wolfeidau/studioos/internal/store/memory"
)

type recorder struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *recorder) Publish(ctx context.Context, evt events.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, evt)
}

func (r *recorder) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, e := range r.events {
		out = append(out, e.Type)
	}
	return out
}

type fixture struct {
	svc    *Service
	stores *store.Stores
	signer *links.Signer
	events *recorder
	org    *models.Organization
	client *models.Client
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	stores := memory.NewStores()

	org := &models.Organization{
		OrgID:    uuid.Must(uuid.NewV7()),
		Name:     "Golden Hour",
		Slug:     "golden-hour",
		Currency: "usd",
		Timezone: "America/New_York",
	}
	require.NoError(t, stores.Organizations.Create(ctx, org))

	client := &models.Client{
		ClientID: uuid.Must(uuid.NewV7()),
		OrgID:    org.OrgID,
		Name:     "Ada",
		Email:    "ada@example.com",
	}
	require.NoError(t, stores.Clients.Create(ctx, client))

	signer, err := links.NewSigner([]byte(strings.Repeat("k", 32)))
	require.NoError(t, err)

	rec := &recorder{}
	svc := NewService(stores.Invoices, stores.Clients, stores.Organizations, signer, rec, Config{BaseURL: "https://studio.example.com"})
	svc.now = func() time.Time { return time.Date(2026, 1, 1, 3, 0, 0, 0, time.UTC) }

	return &fixture{svc: svc, stores: stores, signer: signer, events: rec, org: org, client: client}
}

func (f *fixture) input() Input {
	return Input{
		ClientID: f.client.ClientID,
		Items:    []models.LineItem{item("1", "500"), item("2", "50")},
		TaxRate:  d("0.1"),
		DueDate:  time.Date(2026, 1, 31, 0, 0, 0, 0, time.UTC),
	}
}

func TestCreate_Numbering(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.svc.Create(ctx, f.org.OrgID, f.input())
	require.NoError(t, err)
	// 03:00 UTC on Jan 1 is still Dec 31 in New York.
	require.Equal(t, "INV-2025-0001", first.Number)
	require.Equal(t, models.InvoiceStatusDraft, first.Status)
	require.Equal(t, "usd", first.Currency)
	require.True(t, first.Total.Equal(d("660")))

	second, err := f.svc.Create(ctx, f.org.OrgID, f.input())
	require.NoError(t, err)
	require.Equal(t, "INV-2025-0002", second.Number)

	t.Run("unknown client", func(t *testing.T) {
		in := f.input()
		in.ClientID = uuid.Must(uuid.NewV7())
		_, err := f.svc.Create(ctx, f.org.OrgID, in)
		require.ErrorIs(t, err, store.ErrClientNotFound)
	})

	t.Run("due date required", func(t *testing.T) {
		in := f.input()
		in.DueDate = time.Time{}
		_, err := f.svc.Create(ctx, f.org.OrgID, in)
		require.ErrorIs(t, err, ErrDueDateRequired)
	})
}

func TestSendAndOpenPublic(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	inv, err := f.svc.Create(ctx, f.org.OrgID, f.input())
	require.NoError(t, err)

	link, err := f.svc.PaymentLink(inv)
	require.NoError(t, err)
	token := strings.TrimPrefix(link, "https://studio.example.com/p/invoices/")
	_, err = f.svc.OpenPublic(ctx, token)
	require.ErrorIs(t, err, store.ErrInvoiceNotFound, "drafts are not public")

	sent, link, err := f.svc.Send(ctx, f.org.OrgID, inv.InvoiceID)
	require.NoError(t, err)
	require.Equal(t, models.InvoiceStatusSent, sent.Status)
	require.NotNil(t, sent.IssuedAt)
	require.True(t, strings.HasPrefix(link, "https://studio.example.com/p/invoices/"))

	require.Equal(t, []string{events.InvoiceSent}, f.events.types())
	payload := f.events.events[0].Payload
	require.Equal(t, 660.0, payload["total"])
	require.Equal(t, link, payload["link"])
	require.Equal(t, "ada@example.com", payload["client"].(map[string]any)["email"])

	pub, err := f.svc.OpenPublic(ctx, strings.TrimPrefix(link, "https://studio.example.com/p/invoices/"))
	require.NoError(t, err)
	require.Equal(t, inv.InvoiceID, pub.Invoice.InvoiceID)
	require.Equal(t, "Golden Hour", pub.Organization.Name)

	_, _, err = f.svc.Send(ctx, f.org.OrgID, inv.InvoiceID)
	require.ErrorIs(t, err, ErrInvalidTransition)

	_, err = f.svc.Update(ctx, f.org.OrgID, inv.InvoiceID, f.input())
	require.ErrorIs(t, err, ErrNotDraft)

	_, err = f.svc.OpenPublic(ctx, "garbage")
	require.ErrorIs(t, err, links.ErrInvalidLink)
}

func TestRecordPayment(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	inv, err := f.svc.Create(ctx, f.org.OrgID, f.input())
	require.NoError(t, err)

	_, _, err = f.svc.RecordPayment(ctx, f.org.OrgID, PaymentInput{
		InvoiceID: inv.InvoiceID, Provider: models.PaymentProviderManual, ProviderRef: "cash-1", Amount: d("10"),
	})
	require.ErrorIs(t, err, ErrInvoiceNotPayable, "draft invoices cannot be paid")

	_, _, err = f.svc.Send(ctx, f.org.OrgID, inv.InvoiceID)
	require.NoError(t, err)

	partial, created, err := f.svc.RecordPayment(ctx, f.org.OrgID, PaymentInput{
		InvoiceID: inv.InvoiceID, Provider: models.PaymentProviderManual, ProviderRef: "cash-1", Amount: d("160"),
	})
	require.NoError(t, err)
	require.True(t, created)

	got, err := f.svc.Get(ctx, f.org.OrgID, inv.InvoiceID)
	require.NoError(t, err)
	require.Equal(t, models.InvoiceStatusPartiallyPaid, got.Status)
	require.True(t, got.Balance().Equal(d("500")))

	t.Run("repeat reference is idempotent", func(t *testing.T) {
		again, created, err := f.svc.RecordPayment(ctx, f.org.OrgID, PaymentInput{
			InvoiceID: inv.InvoiceID, Provider: models.PaymentProviderManual, ProviderRef: "cash-1", Amount: d("160"),
		})
		require.NoError(t, err)
		require.False(t, created)
		require.Equal(t, partial.PaymentID, again.PaymentID)

		got, err := f.svc.Get(ctx, f.org.OrgID, inv.InvoiceID)
		require.NoError(t, err)
		require.True(t, got.AmountPaid.Equal(d("160")))
	})

	t.Run("validation", func(t *testing.T) {
		tests := []struct {
			name    string
			in      PaymentInput
			wantErr error
		}{
			{"zero", PaymentInput{InvoiceID: inv.InvoiceID, Provider: "manual", ProviderRef: "x", Amount: decimal.Zero}, ErrInvalidPayment},
			{"provider", PaymentInput{InvoiceID: inv.InvoiceID, Provider: "paypal", ProviderRef: "x", Amount: d("1")}, ErrUnknownProvider},
			{"reference", PaymentInput{InvoiceID: inv.InvoiceID, Provider: "manual", Amount: d("1")}, ErrReferenceRequired},
			{"currency", PaymentInput{InvoiceID: inv.InvoiceID, Provider: "manual", ProviderRef: "eur-1", Amount: d("1"), Currency: "EUR"}, ErrCurrencyMismatch},
			{"other tenant", PaymentInput{InvoiceID: uuid.Must(uuid.NewV7()), Provider: "manual", ProviderRef: "y", Amount: d("1")}, store.ErrInvoiceNotFound},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				_, _, err := f.svc.RecordPayment(ctx, f.org.OrgID, tt.in)
				require.ErrorIs(t, err, tt.wantErr)
			})
		}
	})

	t.Run("pending payment does not change the balance", func(t *testing.T) {
		_, created, err := f.svc.RecordPayment(ctx, f.org.OrgID, PaymentInput{
			InvoiceID: inv.InvoiceID, Provider: models.PaymentProviderStripe, ProviderRef: "cs_pending", Amount: d("500"),
			Status: models.PaymentStatusPending,
		})
		require.NoError(t, err)
		require.True(t, created)

		got, err := f.svc.Get(ctx, f.org.OrgID, inv.InvoiceID)
		require.NoError(t, err)
		require.Equal(t, models.InvoiceStatusPartiallyPaid, got.Status)
	})

	t.Run("full payment marks paid", func(t *testing.T) {
		_, _, err := f.svc.RecordPayment(ctx, f.org.OrgID, PaymentInput{
			InvoiceID: inv.InvoiceID, Provider: models.PaymentProviderStripe, ProviderRef: "cs_123", Amount: d("500"),
			PlatformFee: d("12.5"),
		})
		require.NoError(t, err)

		got, err := f.svc.Get(ctx, f.org.OrgID, inv.InvoiceID)
		require.NoError(t, err)
		require.Equal(t, models.InvoiceStatusPaid, got.Status)
		require.NotNil(t, got.PaidAt)
		require.True(t, got.Balance().IsZero())
		require.Equal(t, []string{events.InvoiceSent, events.InvoicePaid}, f.events.types())

		payments, err := f.svc.ListPayments(ctx, f.org.OrgID, inv.InvoiceID)
		require.NoError(t, err)
		require.Len(t, payments, 3)

		_, err = f.svc.Void(ctx, f.org.OrgID, inv.InvoiceID)
		require.ErrorIs(t, err, ErrInvalidTransition)
	})
}

func TestRecordPayment_Concurrent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	inv, err := f.svc.Create(ctx, f.org.OrgID, f.input())
	require.NoError(t, err)
	_, _, err = f.svc.Send(ctx, f.org.OrgID, inv.InvoiceID)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, err := f.svc.RecordPayment(ctx, f.org.OrgID, PaymentInput{
				InvoiceID: inv.InvoiceID, Provider: models.PaymentProviderStripe, ProviderRef: "cs_same", Amount: d("660"),
			})
			require.NoError(t, err)
		}()
	}
	wg.Wait()

	got, err := f.svc.Get(ctx, f.org.OrgID, inv.InvoiceID)
	require.NoError(t, err)
	require.True(t, got.AmountPaid.Equal(d("660")))
	require.Equal(t, []string{events.InvoiceSent, events.InvoicePaid}, f.events.types())
}

func TestVoidAndOverdue(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	a, err := f.svc.Create(ctx, f.org.OrgID, f.input())
	require.NoError(t, err)
	b, err := f.svc.Create(ctx, f.org.OrgID, f.input())
	require.NoError(t, err)

	_, _, err = f.svc.Send(ctx, f.org.OrgID, a.InvoiceID)
	require.NoError(t, err)

	voided, err := f.svc.Void(ctx, f.org.OrgID, b.InvoiceID)
	require.NoError(t, err)
	require.Equal(t, models.InvoiceStatusVoid, voided.Status)
	_, err = f.svc.Void(ctx, f.org.OrgID, b.InvoiceID)
	require.ErrorIs(t, err, ErrInvalidTransition)

	marked, err := f.svc.MarkOverdue(ctx, time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Equal(t, 0, marked, "not yet due")

	marked, err = f.svc.MarkOverdue(ctx, time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Equal(t, 1, marked)

	got, err := f.svc.Get(ctx, f.org.OrgID, a.InvoiceID)
	require.NoError(t, err)
	require.Equal(t, models.InvoiceStatusOverdue, got.Status)
	require.Equal(t, []string{events.InvoiceSent, events.InvoiceOverdue}, f.events.types())

	_, _, err = f.svc.RecordPayment(ctx, f.org.OrgID, PaymentInput{
		InvoiceID: a.InvoiceID, Provider: models.PaymentProviderManual, ProviderRef: "late", Amount: d("660"),
	})
	require.NoError(t, err, "overdue invoices still accept payment")
}

// flakyInvoices wraps a store to fail payment application or to run code
// between the overdue sweep's listing and its writes.
type flakyInvoices struct {
	store.InvoiceStore
	failApply int
	afterList func()
}

func (s *flakyInvoices) ApplyPayment(ctx context.Context, p *models.Payment, apply func(*models.Invoice) error) (*models.Invoice, error) {
	return s.InvoiceStore.ApplyPayment(ctx, p, func(inv *models.Invoice) error {
		if err := apply(inv); err != nil {
			return err
		}
		if s.failApply > 0 {
			s.failApply--
			return errors.New("connection reset")
		}
		return nil
	})
}

func (s *flakyInvoices) ListPastDue(ctx context.Context, now time.Time) ([]*models.Invoice, error) {
	invoices, err := s.InvoiceStore.ListPastDue(ctx, now)
	if s.afterList != nil {
		s.afterList()
	}
	return invoices, err
}

func (f *fixture) withInvoices(invoices store.InvoiceStore) *Service {
	svc := NewService(invoices, f.stores.Clients, f.stores.Organizations, f.signer, f.events, Config{BaseURL: "https://studio.example.com"})
	svc.now = f.svc.now
	return svc
}

func TestRecordPayment_RetryAfterFailedWrite(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	flaky := &flakyInvoices{InvoiceStore: f.stores.Invoices, failApply: 1}
	svc := f.withInvoices(flaky)

	inv, err := svc.Create(ctx, f.org.OrgID, f.input())
	require.NoError(t, err)
	_, _, err = svc.Send(ctx, f.org.OrgID, inv.InvoiceID)
	require.NoError(t, err)

	in := PaymentInput{InvoiceID: inv.InvoiceID, Provider: models.PaymentProviderStripe, ProviderRef: "cs_1", Amount: d("660")}

	_, _, err = svc.RecordPayment(ctx, f.org.OrgID, in)
	require.EqualError(t, err, "failed to record payment: connection reset")

	_, err = f.stores.Invoices.GetPaymentByRef(ctx, models.PaymentProviderStripe, "cs_1")
	require.ErrorIs(t, err, store.ErrPaymentNotFound, "a failed write leaves no payment behind")

	_, created, err := svc.RecordPayment(ctx, f.org.OrgID, in)
	require.NoError(t, err)
	require.True(t, created)

	got, err := svc.Get(ctx, f.org.OrgID, inv.InvoiceID)
	require.NoError(t, err)
	require.Equal(t, models.InvoiceStatusPaid, got.Status)
	require.True(t, got.AmountPaid.Equal(d("660")))
}

func TestMarkOverdue_PaymentDuringSweep(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	flaky := &flakyInvoices{InvoiceStore: f.stores.Invoices}
	svc := f.withInvoices(flaky)

	paidInFull, err := svc.Create(ctx, f.org.OrgID, f.input())
	require.NoError(t, err)
	partlyPaid, err := svc.Create(ctx, f.org.OrgID, f.input())
	require.NoError(t, err)
	for _, inv := range []*models.Invoice{paidInFull, partlyPaid} {
		_, _, err = svc.Send(ctx, f.org.OrgID, inv.InvoiceID)
		require.NoError(t, err)
	}

	flaky.afterList = func() {
		_, _, err := svc.RecordPayment(ctx, f.org.OrgID, PaymentInput{
			InvoiceID: paidInFull.InvoiceID, Provider: models.PaymentProviderStripe, ProviderRef: "cs_full", Amount: d("660"),
		})
		require.NoError(t, err)
		_, _, err = svc.RecordPayment(ctx, f.org.OrgID, PaymentInput{
			InvoiceID: partlyPaid.InvoiceID, Provider: models.PaymentProviderStripe, ProviderRef: "cs_part", Amount: d("100"),
		})
		require.NoError(t, err)
	}

	marked, err := svc.MarkOverdue(ctx, time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Equal(t, 1, marked)

	got, err := svc.Get(ctx, f.org.OrgID, paidInFull.InvoiceID)
	require.NoError(t, err)
	require.Equal(t, models.InvoiceStatusPaid, got.Status)
	require.True(t, got.AmountPaid.Equal(d("660")))

	got, err = svc.Get(ctx, f.org.OrgID, partlyPaid.InvoiceID)
	require.NoError(t, err)
	require.Equal(t, models.InvoiceStatusOverdue, got.Status)
	require.True(t, got.AmountPaid.Equal(d("100")))
}
