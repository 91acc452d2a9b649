package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Gallery statuses
const (
	GalleryStatusDraft     = "draft"
	GalleryStatusPublished = "published"
	GalleryStatusDelivered = "delivered"
	GalleryStatusArchived  = "archived"
)

// Download resolutions
const (
	ResolutionOriginal = "original"
	ResolutionWeb      = "web"
)

// Gallery is a client-facing collection of photos with pricing and delivery settings.
type Gallery struct {
	GalleryID uuid.UUID `json:"gallery_id"` // UUIDv7
	OrgID     uuid.UUID `json:"org_id"`
	ClientID  uuid.UUID `json:"client_id"`
	Title     string    `json:"title"`
	Slug      string    `json:"slug"` // base58 share code, unique across tenants
	Status    string    `json:"status"`

	PasswordHash string `json:"-"` // bcrypt, empty when the gallery is open

	// Pricing
	PricePerPhoto decimal.Decimal `json:"price_per_photo"`
	PackagePrice  decimal.Decimal `json:"package_price"`

	// Delivery
	AllowDownloads     bool       `json:"allow_downloads"`
	DownloadResolution string     `json:"download_resolution"`
	WatermarkEnabled   bool       `json:"watermark_enabled"`
	ExpiresAt          *time.Time `json:"expires_at,omitempty"`

	DropboxFolder string `json:"dropbox_folder"` // last folder imported from Dropbox

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IsExpired returns true if the gallery has an expiry in the past.
func (g *Gallery) IsExpired(now time.Time) bool {
	return g.ExpiresAt != nil && now.After(*g.ExpiresAt)
}

// HasPassword returns true if the gallery is password protected.
func (g *Gallery) HasPassword() bool {
	return g.PasswordHash != ""
}

// Photo is a single image in a gallery.
type Photo struct {
	PhotoID   uuid.UUID `json:"photo_id"`
	GalleryID uuid.UUID `json:"gallery_id"`
	OrgID     uuid.UUID `json:"org_id"`
	Filename  string    `json:"filename"`
	ObjectKey string    `json:"object_key"` // object storage key, or "dropbox:<path>" for imported files
	SizeBytes int64     `json:"size_bytes"`
	Checksum  string    `json:"checksum"`
	Width     int       `json:"width"`
	Height    int       `json:"height"`
	Favorite  bool      `json:"favorite"`
	CreatedAt time.Time `json:"created_at"`
}
