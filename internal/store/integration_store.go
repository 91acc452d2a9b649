package store

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/wolfeidau/studioos/internal/models"
)

var ErrIntegrationNotFound = errors.New("integration not found")

// IntegrationStore persists third-party connections. Each organization has at most
// one QuickBooks company and one Dropbox account; saves are upserts.
type IntegrationStore interface {
	UpsertQuickBooks(ctx context.Context, integration *models.QuickBooksIntegration) error
	GetQuickBooks(ctx context.Context, orgID uuid.UUID) (*models.QuickBooksIntegration, error)
	DeleteQuickBooks(ctx context.Context, orgID uuid.UUID) error

	UpsertDropbox(ctx context.Context, cfg *models.DropboxConfig) error
	GetDropbox(ctx context.Context, orgID uuid.UUID) (*models.DropboxConfig, error)
	DeleteDropbox(ctx context.Context, orgID uuid.UUID) error
}
