package models

import (
	"time"

	"github.com/google/uuid"
)

// QuickBooksIntegration holds the OAuth tokens for a studio's QuickBooks Online company.
// The realm ID is QuickBooks' tenant identifier.
type QuickBooksIntegration struct {
	OrgID          uuid.UUID // one integration per organization
	RealmID        string
	CompanyName    string
	AccessToken    string
	RefreshToken   string
	TokenExpiresAt time.Time
	ConnectedAt    time.Time
	UpdatedAt      time.Time
}

// DropboxConfig holds the OAuth tokens for a studio's Dropbox account.
type DropboxConfig struct {
	OrgID          uuid.UUID
	AccountID      string
	AccessToken    string
	RefreshToken   string
	TokenExpiresAt time.Time
	RootFolder     string
	ConnectedAt    time.Time
	UpdatedAt      time.Time
}
