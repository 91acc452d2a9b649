package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/wolfeidau/studioos/internal/models"
	"github.com/wolfeidau/studioos/internal/store"
)

// GalleryStore implements store.GalleryStore using in-memory storage.
type GalleryStore struct {
	mu sync.RWMutex

	galleries map[uuid.UUID]*models.Gallery // gallery_id -> Gallery
	slugs     map[string]uuid.UUID          // slug -> gallery_id
	photos    map[uuid.UUID]*models.Photo   // photo_id -> Photo
}

// NewGalleryStore creates a new in-memory gallery store.
func NewGalleryStore() *GalleryStore {
	return &GalleryStore{
		galleries: make(map[uuid.UUID]*models.Gallery),
		slugs:     make(map[string]uuid.UUID),
		photos:    make(map[uuid.UUID]*models.Photo),
	}
}

func (s *GalleryStore) Create(ctx context.Context, gallery *models.Gallery) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, taken := s.slugs[gallery.Slug]; taken {
		return store.ErrGalleryAlreadyExists
	}
	if _, exists := s.galleries[gallery.GalleryID]; exists {
		return store.ErrGalleryAlreadyExists
	}

	clone := cloneGallery(gallery)
	s.galleries[gallery.GalleryID] = clone
	s.slugs[gallery.Slug] = gallery.GalleryID

	return nil
}

func (s *GalleryStore) Get(ctx context.Context, orgID, galleryID uuid.UUID) (*models.Gallery, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	g, exists := s.galleries[galleryID]
	if !exists || g.OrgID != orgID {
		return nil, store.ErrGalleryNotFound
	}

	return cloneGallery(g), nil
}

func (s *GalleryStore) GetBySlug(ctx context.Context, slug string) (*models.Gallery, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, exists := s.slugs[slug]
	if !exists {
		return nil, store.ErrGalleryNotFound
	}

	return cloneGallery(s.galleries[id]), nil
}

func (s *GalleryStore) Update(ctx context.Context, gallery *models.Gallery) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, exists := s.galleries[gallery.GalleryID]
	if !exists || existing.OrgID != gallery.OrgID {
		return store.ErrGalleryNotFound
	}

	gallery.UpdatedAt = time.Now()
	s.galleries[gallery.GalleryID] = cloneGallery(gallery)

	return nil
}

func (s *GalleryStore) Delete(ctx context.Context, orgID, galleryID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	g, exists := s.galleries[galleryID]
	if !exists || g.OrgID != orgID {
		return store.ErrGalleryNotFound
	}

	for id, p := range s.photos {
		if p.GalleryID == galleryID {
			delete(s.photos, id)
		}
	}
	delete(s.slugs, g.Slug)
	delete(s.galleries, galleryID)

	return nil
}

func (s *GalleryStore) List(ctx context.Context, orgID uuid.UUID, opts store.ListGalleriesOptions) ([]*models.Gallery, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*models.Gallery
	for _, g := range s.galleries {
		if g.OrgID != orgID {
			continue
		}
		if opts.ClientID != nil && g.ClientID != *opts.ClientID {
			continue
		}
		if opts.Status != "" && g.Status != opts.Status {
			continue
		}
		result = append(result, cloneGallery(g))
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})

	return result, nil
}

func (s *GalleryStore) ListExpired(ctx context.Context, now time.Time) ([]*models.Gallery, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*models.Gallery
	for _, g := range s.galleries {
		if g.Status != models.GalleryStatusPublished && g.Status != models.GalleryStatusDelivered {
			continue
		}
		if g.IsExpired(now) {
			result = append(result, cloneGallery(g))
		}
	}

	return result, nil
}

func (s *GalleryStore) AddPhotos(ctx context.Context, photos []*models.Photo) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, p := range photos {
		g, exists := s.galleries[p.GalleryID]
		if !exists || g.OrgID != p.OrgID {
			return store.ErrGalleryNotFound
		}
	}

	for _, p := range photos {
		clone := *p
		s.photos[p.PhotoID] = &clone
	}

	return nil
}

func (s *GalleryStore) ListPhotos(ctx context.Context, orgID, galleryID uuid.UUID) ([]*models.Photo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*models.Photo
	for _, p := range s.photos {
		if p.GalleryID == galleryID && p.OrgID == orgID {
			clone := *p
			result = append(result, &clone)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].Filename < result[j].Filename
		}
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})

	return result, nil
}

func (s *GalleryStore) DeletePhoto(ctx context.Context, orgID, photoID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, exists := s.photos[photoID]
	if !exists || p.OrgID != orgID {
		return store.ErrPhotoNotFound
	}

	delete(s.photos, photoID)

	return nil
}

func (s *GalleryStore) SetFavorite(ctx context.Context, galleryID, photoID uuid.UUID, favorite bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, exists := s.photos[photoID]
	if !exists || p.GalleryID != galleryID {
		return store.ErrPhotoNotFound
	}

	p.Favorite = favorite

	return nil
}

func cloneGallery(g *models.Gallery) *models.Gallery {
	clone := *g
	if g.ExpiresAt != nil {
		t := *g.ExpiresAt
		clone.ExpiresAt = &t
	}
	return &clone
}
