package store

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/wolfeidau/studioos/internal/models"
)

// Sentinel errors for organization store operations
var (
	ErrOrganizationNotFound      = errors.New("organization not found")
	ErrOrganizationAlreadyExists = errors.New("organization already exists")
	ErrSlugTaken                 = errors.New("organization slug already taken")
)

// OrganizationStore defines the interface for organization storage operations.
// Organizations are the studios (tenants) that own every other record.
type OrganizationStore interface {
	// Create creates a new organization in the store.
	// Returns ErrOrganizationAlreadyExists if the ID exists and ErrSlugTaken if the slug is in use.
	Create(ctx context.Context, org *models.Organization) error

	// Get retrieves an organization by ID.
	// Returns ErrOrganizationNotFound if the organization doesn't exist.
	Get(ctx context.Context, orgID uuid.UUID) (*models.Organization, error)

	// GetBySlug retrieves an organization by its slug.
	GetBySlug(ctx context.Context, slug string) (*models.Organization, error)

	// Update updates an existing organization.
	// Returns ErrOrganizationNotFound if the organization doesn't exist.
	Update(ctx context.Context, org *models.Organization) error

	// Delete deletes an organization by ID.
	// This will cascade-delete all tenant data (via FK constraint).
	Delete(ctx context.Context, orgID uuid.UUID) error

	// ListByOwner returns all organizations owned by a Clerk user.
	ListByOwner(ctx context.Context, ownerUserID string) ([]*models.Organization, error)
}

// Sentinel errors for member store operations
var (
	ErrMemberNotFound      = errors.New("member not found")
	ErrMemberAlreadyExists = errors.New("member already exists")
)

// MemberStore manages the Clerk users that belong to an organization.
type MemberStore interface {
	Create(ctx context.Context, member *models.Member) error

	// GetByClerkUser returns the membership for a Clerk user ID.
	// A Clerk user belongs to at most one studio.
	GetByClerkUser(ctx context.Context, clerkUserID string) (*models.Member, error)

	ListByOrg(ctx context.Context, orgID uuid.UUID) ([]*models.Member, error)

	Delete(ctx context.Context, orgID, memberID uuid.UUID) error
}
