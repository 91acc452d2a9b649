package api

import (
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/wolfeidau/studioos/internal/auth"
	"github.com/wolfeidau/studioos/internal/billing"
	"github.com/wolfeidau/studioos/internal/models"
	"github.com/wolfeidau/studioos/internal/store"
)

func (s *Server) registerInvoices(mux *http.ServeMux) {
	s.staff(mux, "GET /api/v1/invoices", auth.PermRead, s.listInvoices)
	s.staff(mux, "POST /api/v1/invoices", auth.PermBillingWrite, s.createInvoice)
	s.staff(mux, "GET /api/v1/invoices/{invoiceID}", auth.PermRead, s.getInvoice)
	s.staff(mux, "PUT /api/v1/invoices/{invoiceID}", auth.PermBillingWrite, s.updateInvoice)
	s.staff(mux, "POST /api/v1/invoices/{invoiceID}/send", auth.PermBillingWrite, s.sendInvoice)
	s.staff(mux, "POST /api/v1/invoices/{invoiceID}/void", auth.PermBillingWrite, s.voidInvoice)
	s.staff(mux, "GET /api/v1/invoices/{invoiceID}/payments", auth.PermRead, s.listPayments)
	s.staff(mux, "POST /api/v1/invoices/{invoiceID}/payments", auth.PermBillingWrite, s.recordPayment)
	s.staff(mux, "POST /api/v1/invoices/{invoiceID}/quickbooks-sync", auth.PermBillingWrite, s.syncInvoice)
}

// invoiceView adds the derived balance to an invoice.
type invoiceView struct {
	*models.Invoice
	Balance decimal.Decimal `json:"balance"`
}

func newInvoiceView(inv *models.Invoice) invoiceView {
	return invoiceView{Invoice: inv, Balance: inv.Balance()}
}

type invoiceRequest struct {
	ClientID  string            `json:"client_id"`
	GalleryID *string           `json:"gallery_id"`
	Items     []models.LineItem `json:"items"`
	TaxRate   decimal.Decimal   `json:"tax_rate"`
	Discount  decimal.Decimal   `json:"discount"`
	DueDate   time.Time         `json:"due_date"`
	Notes     string            `json:"notes"`
}

func (i invoiceRequest) input() (billing.Input, error) {
	clientID, err := parseID(i.ClientID, "client_id")
	if err != nil {
		return billing.Input{}, err
	}
	in := billing.Input{
		ClientID: clientID,
		Items:    i.Items,
		TaxRate:  i.TaxRate,
		Discount: i.Discount,
		DueDate:  i.DueDate,
		Notes:    i.Notes,
	}
	if i.GalleryID != nil && *i.GalleryID != "" {
		galleryID, err := parseID(*i.GalleryID, "gallery_id")
		if err != nil {
			return billing.Input{}, err
		}
		in.GalleryID = &galleryID
	}
	return in, nil
}

func (s *Server) listInvoices(w http.ResponseWriter, r *http.Request) {
	clientID, err := queryID(r, "client_id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	list, err := s.svc.Billing.List(r.Context(), principal(r).OrgID, store.ListInvoicesOptions{
		ClientID: clientID,
		Status:   r.URL.Query().Get("status"),
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	views := make([]invoiceView, 0, len(list))
	for _, inv := range list {
		views = append(views, newInvoiceView(inv))
	}
	writeJSON(w, r, http.StatusOK, views)
}

func (s *Server) createInvoice(w http.ResponseWriter, r *http.Request) {
	var req invoiceRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	in, err := req.input()
	if err != nil {
		writeError(w, r, err)
		return
	}
	inv, err := s.svc.Billing.Create(r.Context(), principal(r).OrgID, in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusCreated, newInvoiceView(inv))
}

func (s *Server) getInvoice(w http.ResponseWriter, r *http.Request) {
	invoiceID, err := pathID(r, "invoiceID")
	if err != nil {
		writeError(w, r, err)
		return
	}
	inv, err := s.svc.Billing.Get(r.Context(), principal(r).OrgID, invoiceID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, newInvoiceView(inv))
}

func (s *Server) updateInvoice(w http.ResponseWriter, r *http.Request) {
	invoiceID, err := pathID(r, "invoiceID")
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req invoiceRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	in, err := req.input()
	if err != nil {
		writeError(w, r, err)
		return
	}
	inv, err := s.svc.Billing.Update(r.Context(), principal(r).OrgID, invoiceID, in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, newInvoiceView(inv))
}

type sentInvoice struct {
	Invoice invoiceView `json:"invoice"`
	Link    string      `json:"link"`
}

func (s *Server) sendInvoice(w http.ResponseWriter, r *http.Request) {
	invoiceID, err := pathID(r, "invoiceID")
	if err != nil {
		writeError(w, r, err)
		return
	}
	inv, link, err := s.svc.Billing.Send(r.Context(), principal(r).OrgID, invoiceID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, sentInvoice{Invoice: newInvoiceView(inv), Link: link})
}

func (s *Server) voidInvoice(w http.ResponseWriter, r *http.Request) {
	invoiceID, err := pathID(r, "invoiceID")
	if err != nil {
		writeError(w, r, err)
		return
	}
	inv, err := s.svc.Billing.Void(r.Context(), principal(r).OrgID, invoiceID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, newInvoiceView(inv))
}

func (s *Server) listPayments(w http.ResponseWriter, r *http.Request) {
	invoiceID, err := pathID(r, "invoiceID")
	if err != nil {
		writeError(w, r, err)
		return
	}
	payments, err := s.svc.Billing.ListPayments(r.Context(), principal(r).OrgID, invoiceID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, payments)
}

// paymentRequest records money received outside Stripe, such as cash or a bank transfer.
type paymentRequest struct {
	Reference string          `json:"reference"`
	Amount    decimal.Decimal `json:"amount"`
	Currency  string          `json:"currency"`
}

func (s *Server) recordPayment(w http.ResponseWriter, r *http.Request) {
	invoiceID, err := pathID(r, "invoiceID")
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req paymentRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	payment, created, err := s.svc.Billing.RecordPayment(r.Context(), principal(r).OrgID, billing.PaymentInput{
		InvoiceID:   invoiceID,
		Provider:    models.PaymentProviderManual,
		ProviderRef: req.Reference,
		Amount:      req.Amount,
		Currency:    req.Currency,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	writeJSON(w, r, status, payment)
}

func (s *Server) syncInvoice(w http.ResponseWriter, r *http.Request) {
	if s.svc.QuickBooks == nil {
		writeError(w, r, errIntegrationDisabled)
		return
	}
	invoiceID, err := pathID(r, "invoiceID")
	if err != nil {
		writeError(w, r, err)
		return
	}
	orgID := principal(r).OrgID
	if err := s.svc.QuickBooks.SyncInvoice(r.Context(), orgID, invoiceID); err != nil {
		writeError(w, r, err)
		return
	}

	inv, err := s.svc.Billing.Get(r.Context(), orgID, invoiceID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, newInvoiceView(inv))
}
