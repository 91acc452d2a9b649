package memory

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/wolfeidau/studioos/internal/models"
	"github.com/wolfeidau/studioos/internal/store"
)

// InvoiceStore implements store.InvoiceStore using in-memory storage.
type InvoiceStore struct {
	mu sync.RWMutex

	invoices  map[uuid.UUID]*models.Invoice
	payments  map[uuid.UUID]*models.Payment
	paymentBy map[string]uuid.UUID // provider/provider_ref -> payment_id
	sequences map[string]int       // org_id/year -> last number
}

// NewInvoiceStore creates a new in-memory invoice store.
func NewInvoiceStore() *InvoiceStore {
	return &InvoiceStore{
		invoices:  make(map[uuid.UUID]*models.Invoice),
		payments:  make(map[uuid.UUID]*models.Payment),
		paymentBy: make(map[string]uuid.UUID),
		sequences: make(map[string]int),
	}
}

func (s *InvoiceStore) Create(ctx context.Context, invoice *models.Invoice) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, inv := range s.invoices {
		if inv.OrgID == invoice.OrgID && inv.Number == invoice.Number {
			return store.ErrInvoiceAlreadyExists
		}
	}

	s.invoices[invoice.InvoiceID] = cloneInvoice(invoice)

	return nil
}

func (s *InvoiceStore) Get(ctx context.Context, orgID, invoiceID uuid.UUID) (*models.Invoice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	inv, exists := s.invoices[invoiceID]
	if !exists || inv.OrgID != orgID {
		return nil, store.ErrInvoiceNotFound
	}

	return cloneInvoice(inv), nil
}

func (s *InvoiceStore) Update(ctx context.Context, invoice *models.Invoice) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, exists := s.invoices[invoice.InvoiceID]
	if !exists || existing.OrgID != invoice.OrgID {
		return store.ErrInvoiceNotFound
	}
	if existing.Status != models.InvoiceStatusDraft {
		return store.ErrInvoiceStatusChanged
	}

	invoice.UpdatedAt = time.Now()
	s.invoices[invoice.InvoiceID] = cloneInvoice(invoice)

	return nil
}

func (s *InvoiceStore) List(ctx context.Context, orgID uuid.UUID, opts store.ListInvoicesOptions) ([]*models.Invoice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*models.Invoice
	for _, inv := range s.invoices {
		if inv.OrgID != orgID {
			continue
		}
		if opts.ClientID != nil && inv.ClientID != *opts.ClientID {
			continue
		}
		if opts.Status != "" && inv.Status != opts.Status {
			continue
		}
		result = append(result, cloneInvoice(inv))
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})

	return result, nil
}

func (s *InvoiceStore) ListPastDue(ctx context.Context, now time.Time) ([]*models.Invoice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*models.Invoice
	for _, inv := range s.invoices {
		if inv.Status != models.InvoiceStatusSent && inv.Status != models.InvoiceStatusPartiallyPaid {
			continue
		}
		if inv.DueDate.Before(now) {
			result = append(result, cloneInvoice(inv))
		}
	}

	return result, nil
}

func (s *InvoiceStore) NextNumber(ctx context.Context, orgID uuid.UUID, year int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := fmt.Sprintf("%s/%d", orgID, year)
	s.sequences[key]++

	return s.sequences[key], nil
}

func (s *InvoiceStore) Transition(ctx context.Context, orgID, invoiceID uuid.UUID, t store.InvoiceTransition) (*models.Invoice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	inv, exists := s.invoices[invoiceID]
	if !exists || inv.OrgID != orgID {
		return nil, store.ErrInvoiceNotFound
	}
	if !slices.Contains(t.From, inv.Status) {
		return nil, store.ErrInvoiceStatusChanged
	}

	inv.Status = t.To
	if t.IssuedAt != nil {
		issued := *t.IssuedAt
		inv.IssuedAt = &issued
	}
	inv.UpdatedAt = time.Now()

	return cloneInvoice(inv), nil
}

func (s *InvoiceStore) SetQuickBooksInvoiceID(ctx context.Context, orgID, invoiceID uuid.UUID, quickBooksInvoiceID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	inv, exists := s.invoices[invoiceID]
	if !exists || inv.OrgID != orgID {
		return store.ErrInvoiceNotFound
	}

	inv.QuickBooksInvoiceID = quickBooksInvoiceID
	inv.UpdatedAt = time.Now()

	return nil
}

// ApplyPayment holds the store lock across apply so the payment and the
// invoice change land together.
func (s *InvoiceStore) ApplyPayment(ctx context.Context, payment *models.Payment, apply func(*models.Invoice) error) (*models.Invoice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, exists := s.invoices[payment.InvoiceID]
	if !exists || existing.OrgID != payment.OrgID {
		return nil, store.ErrInvoiceNotFound
	}

	key := payment.Provider + "/" + payment.ProviderRef
	if _, exists := s.paymentBy[key]; exists {
		return nil, store.ErrPaymentAlreadyExists
	}

	inv := cloneInvoice(existing)
	if err := apply(inv); err != nil {
		return nil, err
	}
	inv.UpdatedAt = time.Now()

	clone := *payment
	s.payments[payment.PaymentID] = &clone
	s.paymentBy[key] = payment.PaymentID
	s.invoices[inv.InvoiceID] = cloneInvoice(inv)

	return inv, nil
}

func (s *InvoiceStore) GetPaymentByRef(ctx context.Context, provider, providerRef string) (*models.Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, exists := s.paymentBy[provider+"/"+providerRef]
	if !exists {
		return nil, store.ErrPaymentNotFound
	}

	clone := *s.payments[id]
	return &clone, nil
}

func (s *InvoiceStore) ListPayments(ctx context.Context, orgID, invoiceID uuid.UUID) ([]*models.Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*models.Payment
	for _, p := range s.payments {
		if p.OrgID == orgID && p.InvoiceID == invoiceID {
			clone := *p
			result = append(result, &clone)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})

	return result, nil
}

func cloneInvoice(inv *models.Invoice) *models.Invoice {
	clone := *inv
	clone.Items = append([]models.LineItem(nil), inv.Items...)
	if inv.GalleryID != nil {
		id := *inv.GalleryID
		clone.GalleryID = &id
	}
	if inv.IssuedAt != nil {
		t := *inv.IssuedAt
		clone.IssuedAt = &t
	}
	if inv.PaidAt != nil {
		t := *inv.PaidAt
		clone.PaidAt = &t
	}
	return &clone
}
