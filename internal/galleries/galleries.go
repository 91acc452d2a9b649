// Package galleries manages client photo galleries: settings, photos,
// the publish/deliver lifecycle and public access by share slug.
package galleries

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mr-tron/base58"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"

	"github.com/wolfeidau/studioos/internal/events"
	"github.com/wolfeidau/studioos/internal/models"
	"github.com/wolfeidau/studioos/internal/objectstore"
	"github.com/wolfeidau/studioos/internal/store"
)

var (
	ErrInvalidTransition  = errors.New("invalid gallery status transition")
	ErrGalleryExpired     = errors.New("gallery has expired")
	ErrPasswordRequired   = errors.New("gallery password required")
	ErrInvalidPassword    = errors.New("incorrect gallery password")
	ErrDownloadsDisabled  = errors.New("downloads are not available for this gallery")
	ErrGalleryArchived    = errors.New("gallery is archived")
	ErrTitleRequired      = errors.New("gallery title is required")
	ErrInvalidResolution  = errors.New("download resolution must be original or web")
	ErrInvalidPrice       = errors.New("prices must not be negative")
	ErrRemotePhotoMissing = errors.New("photo is stored remotely and no fetcher is configured")
	ErrUnsupportedPhoto   = errors.New("unsupported photo file")
	ErrPhotoIncomplete    = errors.New("photo filename and object key are required")
	ErrNoWebRendition     = errors.New("no web resolution copy of this photo has been uploaded")
)

const (
	slugBytes    = 8
	slugAttempts = 3

	// RemotePrefix marks photos that live in the studio's Dropbox.
	RemotePrefix = "dropbox:"
)

// RemoteFetcher downloads photos that are not in object storage.
type RemoteFetcher interface {
	Fetch(ctx context.Context, orgID uuid.UUID, remotePath string) ([]byte, error)
}

// Config holds service options.
type Config struct {
	BaseURL    string // public site URL used in delivery emails
	BcryptCost int
}

type Service struct {
	galleries store.GalleryStore
	clients   store.ClientStore
	objects   objectstore.Store
	events    events.Publisher
	remote    RemoteFetcher
	cfg       Config
	now       func() time.Time
}

func NewService(galleries store.GalleryStore, clients store.ClientStore, objects objectstore.Store, publisher events.Publisher, cfg Config) *Service {
	if cfg.BcryptCost == 0 {
		cfg.BcryptCost = bcrypt.DefaultCost
	}
	return &Service{
		galleries: galleries,
		clients:   clients,
		objects:   objects,
		events:    publisher,
		cfg:       cfg,
		now:       time.Now,
	}
}

// SetRemoteFetcher configures where "dropbox:" photos are downloaded from.
func (s *Service) SetRemoteFetcher(f RemoteFetcher) {
	s.remote = f
}

// Settings holds the editable gallery fields. Nil fields are left unchanged on update.
type Settings struct {
	Title              *string
	PricePerPhoto      *decimal.Decimal
	PackagePrice       *decimal.Decimal
	AllowDownloads     *bool
	DownloadResolution *string
	WatermarkEnabled   *bool
	ExpiresAt          *time.Time
	ClearExpiry        bool
	DropboxFolder      *string
}

func (s *Service) Create(ctx context.Context, orgID, clientID uuid.UUID, settings Settings) (*models.Gallery, error) {
	if _, err := s.clients.Get(ctx, orgID, clientID); err != nil {
		return nil, err
	}

	now := s.now()
	g := &models.Gallery{
		GalleryID:          uuid.Must(uuid.NewV7()),
		OrgID:              orgID,
		ClientID:           clientID,
		Status:             models.GalleryStatusDraft,
		DownloadResolution: models.ResolutionOriginal,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if err := applySettings(g, settings); err != nil {
		return nil, err
	}
	if g.Title == "" {
		return nil, ErrTitleRequired
	}

	for attempt := 0; ; attempt++ {
		g.Slug = newSlug()
		err := s.galleries.Create(ctx, g)
		if err == nil {
			return g, nil
		}
		if !errors.Is(err, store.ErrGalleryAlreadyExists) || attempt+1 >= slugAttempts {
			return nil, fmt.Errorf("failed to create gallery: %w", err)
		}
	}
}

func (s *Service) Update(ctx context.Context, orgID, galleryID uuid.UUID, settings Settings) (*models.Gallery, error) {
	g, err := s.galleries.Get(ctx, orgID, galleryID)
	if err != nil {
		return nil, err
	}
	if g.Status == models.GalleryStatusArchived {
		return nil, ErrGalleryArchived
	}
	if err := applySettings(g, settings); err != nil {
		return nil, err
	}
	if err := s.galleries.Update(ctx, g); err != nil {
		return nil, fmt.Errorf("failed to update gallery: %w", err)
	}
	return g, nil
}

func (s *Service) Get(ctx context.Context, orgID, galleryID uuid.UUID) (*models.Gallery, error) {
	return s.galleries.Get(ctx, orgID, galleryID)
}

func (s *Service) List(ctx context.Context, orgID uuid.UUID, opts store.ListGalleriesOptions) ([]*models.Gallery, error) {
	return s.galleries.List(ctx, orgID, opts)
}

// SetPassword protects the gallery. An empty password removes protection.
func (s *Service) SetPassword(ctx context.Context, orgID, galleryID uuid.UUID, password string) error {
	g, err := s.galleries.Get(ctx, orgID, galleryID)
	if err != nil {
		return err
	}

	if password == "" {
		g.PasswordHash = ""
	} else {
		hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cfg.BcryptCost)
		if err != nil {
			return fmt.Errorf("failed to hash gallery password: %w", err)
		}
		g.PasswordHash = string(hash)
	}

	return s.galleries.Update(ctx, g)
}

func (s *Service) Publish(ctx context.Context, orgID, galleryID uuid.UUID) (*models.Gallery, error) {
	return s.transition(ctx, orgID, galleryID, models.GalleryStatusPublished)
}

// Deliver marks the gallery delivered and publishes gallery.delivered.
func (s *Service) Deliver(ctx context.Context, orgID, galleryID uuid.UUID) (*models.Gallery, error) {
	g, err := s.transition(ctx, orgID, galleryID, models.GalleryStatusDelivered)
	if err != nil {
		return nil, err
	}

	payload := map[string]any{
		"gallery": events.GalleryPayload(g),
		"url":     s.PublicURL(g),
	}
	if client, err := s.clients.Get(ctx, orgID, g.ClientID); err == nil {
		payload["client"] = events.ClientPayload(client)
	} else {
		zerolog.Ctx(ctx).Warn().Err(err).Str("gallery_id", g.GalleryID.String()).Msg("Delivered gallery has no client")
	}
	s.events.Publish(ctx, events.New(events.GalleryDelivered, orgID, payload))

	return g, nil
}

func (s *Service) Archive(ctx context.Context, orgID, galleryID uuid.UUID) (*models.Gallery, error) {
	return s.transition(ctx, orgID, galleryID, models.GalleryStatusArchived)
}

// ArchiveExpired archives every published or delivered gallery past its expiry.
func (s *Service) ArchiveExpired(ctx context.Context) (int, error) {
	expired, err := s.galleries.ListExpired(ctx, s.now())
	if err != nil {
		return 0, fmt.Errorf("failed to list expired galleries: %w", err)
	}

	archived := 0
	for _, g := range expired {
		g.Status = models.GalleryStatusArchived
		if err := s.galleries.Update(ctx, g); err != nil {
			zerolog.Ctx(ctx).Error().Err(err).Str("gallery_id", g.GalleryID.String()).Msg("Failed to archive expired gallery")
			continue
		}
		archived++
	}
	return archived, nil
}

func (s *Service) transition(ctx context.Context, orgID, galleryID uuid.UUID, to string) (*models.Gallery, error) {
	g, err := s.galleries.Get(ctx, orgID, galleryID)
	if err != nil {
		return nil, err
	}
	if !CanTransition(g.Status, to) {
		return nil, fmt.Errorf("%w: %s → %s", ErrInvalidTransition, g.Status, to)
	}
	g.Status = to
	if err := s.galleries.Update(ctx, g); err != nil {
		return nil, fmt.Errorf("failed to update gallery: %w", err)
	}
	return g, nil
}

// CanTransition reports whether a gallery may move from one status to another.
func CanTransition(from, to string) bool {
	switch to {
	case models.GalleryStatusPublished:
		return from == models.GalleryStatusDraft
	case models.GalleryStatusDelivered:
		return from == models.GalleryStatusPublished
	case models.GalleryStatusArchived:
		return from != models.GalleryStatusArchived
	}
	return false
}

// PhotoInput describes a photo that is already stored.
type PhotoInput struct {
	Filename  string
	ObjectKey string
	SizeBytes int64
	Checksum  string
	Width     int
	Height    int
}

func (s *Service) AddPhotos(ctx context.Context, orgID, galleryID uuid.UUID, inputs []PhotoInput) ([]*models.Photo, error) {
	g, err := s.galleries.Get(ctx, orgID, galleryID)
	if err != nil {
		return nil, err
	}
	if g.Status == models.GalleryStatusArchived {
		return nil, ErrGalleryArchived
	}

	now := s.now()
	photos := make([]*models.Photo, 0, len(inputs))
	for _, in := range inputs {
		if strings.TrimSpace(in.Filename) == "" || in.ObjectKey == "" {
			return nil, ErrPhotoIncomplete
		}
		photos = append(photos, &models.Photo{
			PhotoID:   uuid.Must(uuid.NewV7()),
			GalleryID: galleryID,
			OrgID:     orgID,
			Filename:  in.Filename,
			ObjectKey: in.ObjectKey,
			SizeBytes: in.SizeBytes,
			Checksum:  in.Checksum,
			Width:     in.Width,
			Height:    in.Height,
			CreatedAt: now,
		})
	}
	if len(photos) == 0 {
		return photos, nil
	}

	if err := s.galleries.AddPhotos(ctx, photos); err != nil {
		return nil, fmt.Errorf("failed to add photos: %w", err)
	}
	return photos, nil
}

// Upload stores an image in object storage and adds it to the gallery.
func (s *Service) Upload(ctx context.Context, orgID, galleryID uuid.UUID, filename, contentType string, data []byte) (*models.Photo, error) {
	filename = path.Base(strings.TrimSpace(filename))
	if filename == "." || filename == "/" || filename == "" {
		return nil, fmt.Errorf("%w: filename is required", ErrUnsupportedPhoto)
	}
	if !IsImageFile(filename) {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedPhoto, path.Ext(filename))
	}

	key := fmt.Sprintf("photos/%s/%s/%s%s", orgID, galleryID, uuid.Must(uuid.NewV7()), strings.ToLower(path.Ext(filename)))
	obj, err := s.objects.Put(ctx, key, contentType, data)
	if err != nil {
		return nil, err
	}

	photos, err := s.AddPhotos(ctx, orgID, galleryID, []PhotoInput{{
		Filename:  filename,
		ObjectKey: obj.Key,
		SizeBytes: obj.Size,
		Checksum:  obj.Checksum,
	}})
	if err != nil {
		if delErr := s.objects.Delete(ctx, key); delErr != nil {
			zerolog.Ctx(ctx).Warn().Err(delErr).Str("key", key).Msg("Failed to remove orphaned upload")
		}
		return nil, err
	}
	return photos[0], nil
}

// UploadWebRendition stores the downsized copy that web resolution galleries
// serve in place of the original.
func (s *Service) UploadWebRendition(ctx context.Context, orgID, galleryID, photoID uuid.UUID, data []byte) (*models.Photo, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty rendition", ErrUnsupportedPhoto)
	}
	photos, err := s.ListPhotos(ctx, orgID, galleryID)
	if err != nil {
		return nil, err
	}
	for _, p := range photos {
		if p.PhotoID != photoID {
			continue
		}
		if _, err := s.objects.Put(ctx, webKey(p), "image/jpeg", data); err != nil {
			return nil, err
		}
		return p, nil
	}
	return nil, store.ErrPhotoNotFound
}

func (s *Service) ListPhotos(ctx context.Context, orgID, galleryID uuid.UUID) ([]*models.Photo, error) {
	if _, err := s.galleries.Get(ctx, orgID, galleryID); err != nil {
		return nil, err
	}
	return s.galleries.ListPhotos(ctx, orgID, galleryID)
}

// RemovePhoto deletes the photo record and, for uploaded photos, the stored object.
func (s *Service) RemovePhoto(ctx context.Context, orgID, galleryID, photoID uuid.UUID) error {
	photos, err := s.galleries.ListPhotos(ctx, orgID, galleryID)
	if err != nil {
		return err
	}

	for _, p := range photos {
		if p.PhotoID != photoID {
			continue
		}
		if err := s.galleries.DeletePhoto(ctx, orgID, photoID); err != nil {
			return err
		}
		keys := []string{webKey(p)}
		if !strings.HasPrefix(p.ObjectKey, RemotePrefix) {
			keys = append(keys, p.ObjectKey)
		}
		for _, key := range keys {
			if err := s.objects.Delete(ctx, key); err != nil && !errors.Is(err, objectstore.ErrObjectNotFound) {
				zerolog.Ctx(ctx).Warn().Err(err).Str("key", key).Msg("Failed to delete photo object")
			}
		}
		return nil
	}
	return store.ErrPhotoNotFound
}

// PublicURL is the client-facing address of a gallery.
func (s *Service) PublicURL(g *models.Gallery) string {
	return strings.TrimRight(s.cfg.BaseURL, "/") + "/p/galleries/" + g.Slug
}

var imageExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".heic": true,
	".tif":  true,
	".tiff": true,
	".webp": true,
}

// IsImageFile returns true for the photo formats galleries accept.
func IsImageFile(name string) bool {
	return imageExtensions[strings.ToLower(path.Ext(name))]
}

func applySettings(g *models.Gallery, in Settings) error {
	if in.Title != nil {
		title := strings.TrimSpace(*in.Title)
		if title == "" {
			return ErrTitleRequired
		}
		g.Title = title
	}
	if in.PricePerPhoto != nil {
		if in.PricePerPhoto.IsNegative() {
			return ErrInvalidPrice
		}
		g.PricePerPhoto = in.PricePerPhoto.Round(2)
	}
	if in.PackagePrice != nil {
		if in.PackagePrice.IsNegative() {
			return ErrInvalidPrice
		}
		g.PackagePrice = in.PackagePrice.Round(2)
	}
	if in.AllowDownloads != nil {
		g.AllowDownloads = *in.AllowDownloads
	}
	if in.DownloadResolution != nil {
		switch *in.DownloadResolution {
		case models.ResolutionOriginal, models.ResolutionWeb:
			g.DownloadResolution = *in.DownloadResolution
		default:
			return ErrInvalidResolution
		}
	}
	if in.WatermarkEnabled != nil {
		g.WatermarkEnabled = *in.WatermarkEnabled
	}
	if in.DropboxFolder != nil {
		g.DropboxFolder = strings.TrimSpace(*in.DropboxFolder)
	}
	if in.ClearExpiry {
		g.ExpiresAt = nil
	} else if in.ExpiresAt != nil {
		t := *in.ExpiresAt
		g.ExpiresAt = &t
	}
	return nil
}

func newSlug() string {
	b := make([]byte, slugBytes)
	_, _ = rand.Read(b)
	return base58.Encode(b)
}
