package models

import (
	"time"

	"github.com/google/uuid"
)

// Client is a customer of a studio. Clients have no login; they reach
// contracts, invoices and galleries through signed links.
type Client struct {
	ClientID uuid.UUID `json:"client_id"` // UUIDv7
	OrgID    uuid.UUID `json:"org_id"`
	Name     string    `json:"name"`
	Email    string    `json:"email"` // lowercased, unique per organization
	Phone    string    `json:"phone"`
	Notes    string    `json:"notes"`

	QuickBooksCustomerID string `json:"quickbooks_customer_id"` // set after the first invoice sync

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
