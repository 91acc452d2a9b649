package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Organization represents a photography studio (tenant) in the system.
// Every tenant-scoped record carries the OrgID of the studio that owns it.
type Organization struct {
	OrgID       uuid.UUID `json:"org_id"` // UUIDv7
	Name        string    `json:"name"`
	Slug        string    `json:"slug"`          // URL-safe, unique across tenants
	OwnerUserID string    `json:"owner_user_id"` // Clerk user ID of the studio owner
	Currency    string    `json:"currency"`      // ISO 4217, lowercase (e.g. "usd")
	Timezone    string    `json:"timezone"`      // IANA zone used for due dates and schedules

	// Stripe Connect
	StripeAccountID    string          `json:"stripe_account_id"`    // acct_... (empty until connected)
	PlatformFeePercent decimal.Decimal `json:"platform_fee_percent"` // percent of each checkout kept by the platform

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// HasStripe returns true once a Stripe Connect account has been linked.
func (o *Organization) HasStripe() bool {
	return o.StripeAccountID != ""
}

// Member roles
const (
	RoleOwner = "owner"
	RoleAdmin = "admin"
	RoleStaff = "staff"
)

// Member links a Clerk user to an organization with a role.
type Member struct {
	MemberID    uuid.UUID `json:"member_id"` // UUIDv7
	OrgID       uuid.UUID `json:"org_id"`    // FK to organizations
	ClerkUserID string    `json:"clerk_user_id"`
	Email       string    `json:"email"`
	Name        string    `json:"name"`
	Role        string    `json:"role"` // "owner", "admin", "staff"
	CreatedAt   time.Time `json:"created_at"`
}
