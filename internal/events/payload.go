package events

import (
	"github.com/wolfeidau/studioos/internal/models"
)

// Payload builders flatten models into the maps rule conditions and templates read.
// Money is exposed as float64 so conditions can compare it with number literals.

func OrgPayload(org *models.Organization) map[string]any {
	if org == nil {
		return map[string]any{}
	}
	return map[string]any{
		"id":       org.OrgID.String(),
		"name":     org.Name,
		"slug":     org.Slug,
		"currency": org.Currency,
	}
}

func ClientPayload(c *models.Client) map[string]any {
	if c == nil {
		return map[string]any{}
	}
	return map[string]any{
		"id":    c.ClientID.String(),
		"name":  c.Name,
		"email": c.Email,
		"phone": c.Phone,
	}
}

func InvoicePayload(inv *models.Invoice) map[string]any {
	return map[string]any{
		"id":       inv.InvoiceID.String(),
		"number":   inv.Number,
		"status":   inv.Status,
		"currency": inv.Currency,
		"total":    inv.Total.InexactFloat64(),
		"paid":     inv.AmountPaid.InexactFloat64(),
		"balance":  inv.Balance().InexactFloat64(),
		"due_date": inv.DueDate.Format("2006-01-02"),
	}
}

func ContractPayload(c *models.Contract) map[string]any {
	return map[string]any{
		"id":     c.ContractID.String(),
		"title":  c.Title,
		"status": c.Status,
		"signer": c.SignerName,
	}
}

func BookingPayload(b *models.Booking) map[string]any {
	return map[string]any{
		"id":        b.BookingID.String(),
		"title":     b.Title,
		"location":  b.Location,
		"status":    b.Status,
		"starts_at": b.StartsAt,
		"ends_at":   b.EndsAt,
	}
}

func GalleryPayload(g *models.Gallery) map[string]any {
	return map[string]any{
		"id":     g.GalleryID.String(),
		"title":  g.Title,
		"slug":   g.Slug,
		"status": g.Status,
	}
}
