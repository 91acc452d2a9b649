package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"github.com/wolfeidau/studioos/internal/models"
	"github.com/wolfeidau/studioos/internal/store"
)

func newTestInvoice(orgID uuid.UUID, number, status string, due time.Time) *models.Invoice {
	return &models.Invoice{
		InvoiceID: uuid.Must(uuid.NewV7()),
		OrgID:     orgID,
		ClientID:  uuid.Must(uuid.NewV7()),
		Number:    number,
		Status:    status,
		Currency:  "usd",
		Items: []models.LineItem{
			{Description: "Session", Quantity: decimal.NewFromInt(1), UnitPrice: decimal.NewFromInt(500)},
		},
		Total:     decimal.NewFromInt(500),
		DueDate:   due,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
}

func TestInvoiceStore_NextNumber(t *testing.T) {
	ctx := context.Background()
	st := NewInvoiceStore()
	orgID := uuid.Must(uuid.NewV7())

	var wg sync.WaitGroup
	seen := make(chan int, 50)
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			n, err := st.NextNumber(ctx, orgID, 2026)
			require.NoError(t, err)
			seen <- n
		}()
	}
	wg.Wait()
	close(seen)

	unique := make(map[int]bool)
	for n := range seen {
		unique[n] = true
	}
	require.Len(t, unique, 50)

	n, err := st.NextNumber(ctx, orgID, 2027)
	require.NoError(t, err)
	require.Equal(t, 1, n)
}

func TestInvoiceStore_ItemsAreCopied(t *testing.T) {
	ctx := context.Background()
	st := NewInvoiceStore()
	orgID := uuid.Must(uuid.NewV7())

	inv := newTestInvoice(orgID, "INV-2026-0001", models.InvoiceStatusDraft, time.Now())
	require.NoError(t, st.Create(ctx, inv))

	inv.Items[0].Description = "mutated"

	got, err := st.Get(ctx, orgID, inv.InvoiceID)
	require.NoError(t, err)
	require.Equal(t, "Session", got.Items[0].Description)

	dup := newTestInvoice(orgID, "INV-2026-0001", models.InvoiceStatusDraft, time.Now())
	require.ErrorIs(t, st.Create(ctx, dup), store.ErrInvoiceAlreadyExists)
}

func TestInvoiceStore_ListPastDue(t *testing.T) {
	ctx := context.Background()
	st := NewInvoiceStore()
	orgID := uuid.Must(uuid.NewV7())
	now := time.Now()

	overdue := newTestInvoice(orgID, "INV-1", models.InvoiceStatusSent, now.Add(-24*time.Hour))
	partial := newTestInvoice(orgID, "INV-2", models.InvoiceStatusPartiallyPaid, now.Add(-24*time.Hour))
	paid := newTestInvoice(orgID, "INV-3", models.InvoiceStatusPaid, now.Add(-24*time.Hour))
	notDue := newTestInvoice(orgID, "INV-4", models.InvoiceStatusSent, now.Add(24*time.Hour))

	for _, inv := range []*models.Invoice{overdue, partial, paid, notDue} {
		require.NoError(t, st.Create(ctx, inv))
	}

	got, err := st.ListPastDue(ctx, now)
	require.NoError(t, err)
	require.Len(t, got, 2)
}

func TestInvoiceStore_ApplyPayment(t *testing.T) {
	ctx := context.Background()
	st := NewInvoiceStore()
	orgID := uuid.Must(uuid.NewV7())

	inv := newTestInvoice(orgID, "INV-1", models.InvoiceStatusSent, time.Now())
	require.NoError(t, st.Create(ctx, inv))

	payment := &models.Payment{
		PaymentID:   uuid.Must(uuid.NewV7()),
		OrgID:       orgID,
		InvoiceID:   inv.InvoiceID,
		Provider:    models.PaymentProviderStripe,
		ProviderRef: "cs_test_123",
		Amount:      decimal.NewFromInt(100),
		Status:      models.PaymentStatusSucceeded,
		CreatedAt:   time.Now(),
	}
	addAmount := func(inv *models.Invoice) error {
		inv.AmountPaid = inv.AmountPaid.Add(payment.Amount)
		inv.Status = models.InvoiceStatusPartiallyPaid
		return nil
	}

	_, err := st.ApplyPayment(ctx, payment, func(*models.Invoice) error { return errors.New("rejected") })
	require.EqualError(t, err, "rejected")
	_, err = st.GetPaymentByRef(ctx, models.PaymentProviderStripe, "cs_test_123")
	require.ErrorIs(t, err, store.ErrPaymentNotFound)

	got, err := st.ApplyPayment(ctx, payment, addAmount)
	require.NoError(t, err)
	require.True(t, got.AmountPaid.Equal(decimal.NewFromInt(100)))

	replay := *payment
	replay.PaymentID = uuid.Must(uuid.NewV7())
	_, err = st.ApplyPayment(ctx, &replay, addAmount)
	require.ErrorIs(t, err, store.ErrPaymentAlreadyExists)

	stored, err := st.Get(ctx, orgID, inv.InvoiceID)
	require.NoError(t, err)
	require.True(t, stored.AmountPaid.Equal(decimal.NewFromInt(100)))
	require.Equal(t, models.InvoiceStatusPartiallyPaid, stored.Status)

	recorded, err := st.GetPaymentByRef(ctx, models.PaymentProviderStripe, "cs_test_123")
	require.NoError(t, err)
	require.Equal(t, payment.PaymentID, recorded.PaymentID)

	payments, err := st.ListPayments(ctx, orgID, inv.InvoiceID)
	require.NoError(t, err)
	require.Len(t, payments, 1)

	other := *payment
	other.PaymentID = uuid.Must(uuid.NewV7())
	other.ProviderRef = "cs_other"
	other.OrgID = uuid.Must(uuid.NewV7())
	_, err = st.ApplyPayment(ctx, &other, addAmount)
	require.ErrorIs(t, err, store.ErrInvoiceNotFound)
}

func TestInvoiceStore_Transition(t *testing.T) {
	ctx := context.Background()
	st := NewInvoiceStore()
	orgID := uuid.Must(uuid.NewV7())

	inv := newTestInvoice(orgID, "INV-1", models.InvoiceStatusPartiallyPaid, time.Now())
	inv.AmountPaid = decimal.NewFromInt(100)
	require.NoError(t, st.Create(ctx, inv))

	overdue := store.InvoiceTransition{
		From: []string{models.InvoiceStatusSent, models.InvoiceStatusPartiallyPaid},
		To:   models.InvoiceStatusOverdue,
	}
	got, err := st.Transition(ctx, orgID, inv.InvoiceID, overdue)
	require.NoError(t, err)
	require.Equal(t, models.InvoiceStatusOverdue, got.Status)
	require.True(t, got.AmountPaid.Equal(decimal.NewFromInt(100)))

	_, err = st.Transition(ctx, orgID, inv.InvoiceID, overdue)
	require.ErrorIs(t, err, store.ErrInvoiceStatusChanged)

	_, err = st.Transition(ctx, uuid.Must(uuid.NewV7()), inv.InvoiceID, overdue)
	require.ErrorIs(t, err, store.ErrInvoiceNotFound)

	require.ErrorIs(t, st.Update(ctx, got), store.ErrInvoiceStatusChanged)

	require.NoError(t, st.SetQuickBooksInvoiceID(ctx, orgID, inv.InvoiceID, "130"))
	stored, err := st.Get(ctx, orgID, inv.InvoiceID)
	require.NoError(t, err)
	require.Equal(t, "130", stored.QuickBooksInvoiceID)
	require.Equal(t, models.InvoiceStatusOverdue, stored.Status)
}
