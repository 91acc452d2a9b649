package store

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/wolfeidau/studioos/internal/models"
)

var (
	ErrClientNotFound      = errors.New("client not found")
	ErrClientAlreadyExists = errors.New("client with this email already exists")
)

// ClientStore persists studio clients. All reads are scoped to an organization.
type ClientStore interface {
	// Create returns ErrClientAlreadyExists when the email is already used in the organization.
	Create(ctx context.Context, client *models.Client) error
	Get(ctx context.Context, orgID, clientID uuid.UUID) (*models.Client, error)
	Update(ctx context.Context, client *models.Client) error
	Delete(ctx context.Context, orgID, clientID uuid.UUID) error

	// List returns clients ordered by name. Search matches name or email, case-insensitively.
	List(ctx context.Context, orgID uuid.UUID, search string) ([]*models.Client, error)
}
