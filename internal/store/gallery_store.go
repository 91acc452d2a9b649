package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/wolfeidau/studioos/internal/models"
)

var (
	ErrGalleryNotFound      = errors.New("gallery not found")
	ErrGalleryAlreadyExists = errors.New("gallery slug already exists")
	ErrPhotoNotFound        = errors.New("photo not found")
)

// GalleryStore persists galleries and their photos.
type GalleryStore interface {
	Create(ctx context.Context, gallery *models.Gallery) error
	Get(ctx context.Context, orgID, galleryID uuid.UUID) (*models.Gallery, error)

	// GetBySlug is used by the public gallery page and is not tenant scoped.
	GetBySlug(ctx context.Context, slug string) (*models.Gallery, error)

	Update(ctx context.Context, gallery *models.Gallery) error
	Delete(ctx context.Context, orgID, galleryID uuid.UUID) error
	List(ctx context.Context, orgID uuid.UUID, opts ListGalleriesOptions) ([]*models.Gallery, error)

	// ListExpired returns published or delivered galleries whose expiry is before now, across tenants.
	ListExpired(ctx context.Context, now time.Time) ([]*models.Gallery, error)

	AddPhotos(ctx context.Context, photos []*models.Photo) error
	ListPhotos(ctx context.Context, orgID, galleryID uuid.UUID) ([]*models.Photo, error)
	DeletePhoto(ctx context.Context, orgID, photoID uuid.UUID) error
	SetFavorite(ctx context.Context, galleryID, photoID uuid.UUID, favorite bool) error
}

// ListGalleriesOptions specifies filters for listing galleries
type ListGalleriesOptions struct {
	ClientID *uuid.UUID // Filter by client (nil = all)
	Status   string     // Filter by status (empty = all)
}
