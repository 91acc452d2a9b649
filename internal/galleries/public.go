package galleries

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/wolfeidau/studioos/internal/models"
	"github.com/wolfeidau/studioos/internal/objectstore"
	"github.com/wolfeidau/studioos/internal/store"
)

// webSuffix names the downsized rendition stored next to an original.
const webSuffix = ".web.jpg"

// webKey is where a photo's web rendition lives. Remote originals have no
// local key, so theirs is derived from the photo id.
func webKey(p *models.Photo) string {
	if strings.HasPrefix(p.ObjectKey, RemotePrefix) {
		return fmt.Sprintf("photos/%s/%s/%s%s", p.OrgID, p.GalleryID, p.PhotoID, webSuffix)
	}
	return p.ObjectKey + webSuffix
}

// PublicGallery is what a client sees.
type PublicGallery struct {
	Gallery *models.Gallery
	Photos  []*models.Photo
}

// CanDownload returns true if the client may download originals.
func (p *PublicGallery) CanDownload() bool {
	return p.Gallery.AllowDownloads && p.Gallery.Status == models.GalleryStatusDelivered
}

// OpenPublic returns a published or delivered gallery to a client.
// Drafts and archived galleries look like they do not exist.
func (s *Service) OpenPublic(ctx context.Context, slug, password string) (*PublicGallery, error) {
	g, err := s.galleries.GetBySlug(ctx, slug)
	if err != nil {
		return nil, err
	}
	if g.Status != models.GalleryStatusPublished && g.Status != models.GalleryStatusDelivered {
		return nil, store.ErrGalleryNotFound
	}
	if g.IsExpired(s.now()) {
		return nil, ErrGalleryExpired
	}
	if g.HasPassword() {
		if password == "" {
			return nil, ErrPasswordRequired
		}
		if err := bcrypt.CompareHashAndPassword([]byte(g.PasswordHash), []byte(password)); err != nil {
			return nil, ErrInvalidPassword
		}
	}

	photos, err := s.galleries.ListPhotos(ctx, g.OrgID, g.GalleryID)
	if err != nil {
		return nil, fmt.Errorf("failed to list photos: %w", err)
	}
	return &PublicGallery{Gallery: g, Photos: photos}, nil
}

// SetFavorite lets a client mark photos they like.
func (s *Service) SetFavorite(ctx context.Context, slug, password string, photoID uuid.UUID, favorite bool) error {
	pg, err := s.OpenPublic(ctx, slug, password)
	if err != nil {
		return err
	}
	return s.galleries.SetFavorite(ctx, pg.Gallery.GalleryID, photoID, favorite)
}

// Download returns the bytes a client receives for a photo. Web resolution
// galleries only ever serve the downsized rendition.
func (s *Service) Download(ctx context.Context, slug, password string, photoID uuid.UUID) (*models.Photo, []byte, error) {
	pg, err := s.OpenPublic(ctx, slug, password)
	if err != nil {
		return nil, nil, err
	}
	if !pg.CanDownload() {
		return nil, nil, ErrDownloadsDisabled
	}

	var photo *models.Photo
	for _, p := range pg.Photos {
		if p.PhotoID == photoID {
			photo = p
			break
		}
	}
	if photo == nil {
		return nil, nil, store.ErrPhotoNotFound
	}

	if pg.Gallery.DownloadResolution == models.ResolutionWeb {
		data, _, err := s.objects.Get(ctx, webKey(photo))
		if errors.Is(err, objectstore.ErrObjectNotFound) {
			return nil, nil, ErrNoWebRendition
		}
		if err != nil {
			return nil, nil, err
		}
		return photo, data, nil
	}

	if remotePath, ok := strings.CutPrefix(photo.ObjectKey, RemotePrefix); ok {
		if s.remote == nil {
			return nil, nil, ErrRemotePhotoMissing
		}
		data, err := s.remote.Fetch(ctx, pg.Gallery.OrgID, remotePath)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to fetch remote photo: %w", err)
		}
		return photo, data, nil
	}

	data, _, err := s.objects.Get(ctx, photo.ObjectKey)
	if err != nil {
		return nil, nil, err
	}
	return photo, data, nil
}

// IsAccessError returns true for errors that should prompt the client for a password.
func IsAccessError(err error) bool {
	return errors.Is(err, ErrPasswordRequired) || errors.Is(err, ErrInvalidPassword)
}
