package models

import (
	"time"

	"github.com/google/uuid"
)

// Contract statuses
const (
	ContractStatusDraft  = "draft"
	ContractStatusSent   = "sent"
	ContractStatusViewed = "viewed"
	ContractStatusSigned = "signed"
	ContractStatusVoid   = "void"
)

// Contract is an agreement sent to a client for electronic signature.
type Contract struct {
	ContractID uuid.UUID  `json:"contract_id"`
	OrgID      uuid.UUID  `json:"org_id"`
	ClientID   uuid.UUID  `json:"client_id"`
	BookingID  *uuid.UUID `json:"booking_id,omitempty"`
	Title      string     `json:"title"`
	Body       string     `json:"body"`
	Status     string     `json:"status"`

	SentAt   *time.Time `json:"sent_at,omitempty"`
	ViewedAt *time.Time `json:"viewed_at,omitempty"`
	SignedAt *time.Time `json:"signed_at,omitempty"`

	// Signature audit trail
	SignerName        string `json:"signer_name"`
	SignerIP          string `json:"signer_ip"`
	SignerUserAgent   string `json:"signer_user_agent"`
	SignatureKey      string `json:"signature_key"` // object storage key of the PNG
	SignatureChecksum string `json:"signature_checksum"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IsSignable returns true while the client can still sign.
func (c *Contract) IsSignable() bool {
	return c.Status == ContractStatusSent || c.Status == ContractStatusViewed
}
