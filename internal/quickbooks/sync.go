package quickbooks

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/wolfeidau/studioos/internal/integrations"
	"github.com/wolfeidau/studioos/internal/models"
	"github.com/wolfeidau/studioos/internal/store"
)

type ref struct {
	Value string `json:"value"`
}

type emailAddr struct {
	Address string `json:"Address"`
}

type phone struct {
	FreeFormNumber string `json:"FreeFormNumber"`
}

type customer struct {
	ID               string     `json:"Id,omitempty"`
	DisplayName      string     `json:"DisplayName"`
	PrimaryEmailAddr *emailAddr `json:"PrimaryEmailAddr,omitempty"`
	PrimaryPhone     *phone     `json:"PrimaryPhone,omitempty"`
}

type salesItemDetail struct {
	ItemRef   ref         `json:"ItemRef"`
	Qty       json.Number `json:"Qty"`
	UnitPrice json.Number `json:"UnitPrice"`
}

type discountDetail struct {
	PercentBased bool `json:"PercentBased"`
}

type line struct {
	Amount              json.Number      `json:"Amount"`
	Description         string           `json:"Description,omitempty"`
	DetailType          string           `json:"DetailType"`
	SalesItemLineDetail *salesItemDetail `json:"SalesItemLineDetail,omitempty"`
	DiscountLineDetail  *discountDetail  `json:"DiscountLineDetail,omitempty"`
}

type taxDetail struct {
	TotalTax json.Number `json:"TotalTax"`
}

type invoice struct {
	ID           string     `json:"Id,omitempty"`
	DocNumber    string     `json:"DocNumber"`
	TxnDate      string     `json:"TxnDate,omitempty"`
	DueDate      string     `json:"DueDate"`
	CustomerRef  ref        `json:"CustomerRef"`
	BillEmail    *emailAddr `json:"BillEmail,omitempty"`
	Line         []line     `json:"Line"`
	TxnTaxDetail *taxDetail `json:"TxnTaxDetail,omitempty"`
	PrivateNote  string     `json:"PrivateNote,omitempty"`
}

func number(d decimal.Decimal) json.Number {
	return json.Number(d.StringFixed(2))
}

func reader(b []byte) io.Reader {
	if b == nil {
		return nil
	}
	return bytes.NewReader(b)
}

// SyncInvoice creates the invoice in QuickBooks, creating the client as a
// customer first if needed. Invoices already synced are left alone.
func (s *Service) SyncInvoice(ctx context.Context, orgID, invoiceID uuid.UUID) error {
	s.syncing.Lock()
	defer s.syncing.Unlock()

	integration, err := s.integrations.GetQuickBooks(ctx, orgID)
	if errors.Is(err, store.ErrIntegrationNotFound) {
		return integrations.ErrNotConnected
	}
	if err != nil {
		return fmt.Errorf("failed to load quickbooks integration: %w", err)
	}

	inv, err := s.invoices.Get(ctx, orgID, invoiceID)
	if err != nil {
		return err
	}
	if inv.QuickBooksInvoiceID != "" {
		return nil
	}
	if inv.Status == models.InvoiceStatusDraft || inv.Status == models.InvoiceStatusVoid {
		return ErrInvoiceNotSyncable
	}

	client, err := s.clients.Get(ctx, orgID, inv.ClientID)
	if err != nil {
		return err
	}

	hc, err := s.authorizedClient(ctx, integration)
	if err != nil {
		return err
	}

	if client.QuickBooksCustomerID == "" {
		id, err := s.createCustomer(ctx, hc, integration.RealmID, client)
		if err != nil {
			return fmt.Errorf("failed to create quickbooks customer: %w", err)
		}
		client.QuickBooksCustomerID = id
		client.UpdatedAt = s.now()
		if err := s.clients.Update(ctx, client); err != nil {
			return fmt.Errorf("failed to save quickbooks customer id: %w", err)
		}
	}

	var out struct {
		Invoice invoice `json:"Invoice"`
	}
	path := fmt.Sprintf("/v3/company/%s/invoice", integration.RealmID)
	if err := s.call(ctx, hc, http.MethodPost, path, "invoice-"+inv.InvoiceID.String(), s.buildInvoice(inv, client), &out); err != nil {
		return fmt.Errorf("failed to create quickbooks invoice: %w", err)
	}

	inv.QuickBooksInvoiceID = out.Invoice.ID
	if err := s.invoices.SetQuickBooksInvoiceID(ctx, orgID, inv.InvoiceID, inv.QuickBooksInvoiceID); err != nil {
		return fmt.Errorf("failed to save quickbooks invoice id: %w", err)
	}

	zerolog.Ctx(ctx).Info().
		Str("org_id", orgID.String()).
		Str("invoice", inv.Number).
		Str("quickbooks_id", inv.QuickBooksInvoiceID).
		Msg("Invoice synced to QuickBooks")
	return nil
}

func (s *Service) createCustomer(ctx context.Context, hc *http.Client, realmID string, client *models.Client) (string, error) {
	c := customer{DisplayName: client.Name}
	if client.Email != "" {
		c.PrimaryEmailAddr = &emailAddr{Address: client.Email}
	}
	if client.Phone != "" {
		c.PrimaryPhone = &phone{FreeFormNumber: client.Phone}
	}

	var out struct {
		Customer customer `json:"Customer"`
	}
	if err := s.call(ctx, hc, http.MethodPost, fmt.Sprintf("/v3/company/%s/customer", realmID), "customer-"+client.ClientID.String(), c, &out); err != nil {
		return "", err
	}
	if out.Customer.ID == "" {
		return "", fmt.Errorf("quickbooks returned a customer without an id")
	}
	return out.Customer.ID, nil
}

func (s *Service) buildInvoice(inv *models.Invoice, client *models.Client) invoice {
	out := invoice{
		DocNumber:   inv.Number,
		DueDate:     inv.DueDate.Format("2006-01-02"),
		CustomerRef: ref{Value: client.QuickBooksCustomerID},
		PrivateNote: inv.Notes,
	}
	if inv.IssuedAt != nil {
		out.TxnDate = inv.IssuedAt.Format("2006-01-02")
	}
	if client.Email != "" {
		out.BillEmail = &emailAddr{Address: client.Email}
	}

	for _, item := range inv.Items {
		out.Line = append(out.Line, line{
			Amount:      number(item.Amount()),
			Description: item.Description,
			DetailType:  "SalesItemLineDetail",
			SalesItemLineDetail: &salesItemDetail{
				ItemRef:   ref{Value: s.itemID},
				Qty:       json.Number(item.Quantity.String()),
				UnitPrice: number(item.UnitPrice),
			},
		})
	}
	if inv.Discount.IsPositive() {
		out.Line = append(out.Line, line{
			Amount:             number(inv.Discount),
			DetailType:         "DiscountLineDetail",
			DiscountLineDetail: &discountDetail{PercentBased: false},
		})
	}
	if inv.Tax.IsPositive() {
		out.TxnTaxDetail = &taxDetail{TotalTax: number(inv.Tax)}
	}
	return out
}
