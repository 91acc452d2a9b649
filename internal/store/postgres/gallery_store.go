package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/wolfeidau/studioos/internal/models"
	"github.com/wolfeidau/studioos/internal/store"
)

// GalleryStore implements store.GalleryStore using PostgreSQL.
type GalleryStore struct {
	db
}

const galleryColumns = `gallery_id, org_id, client_id, title, slug, status, password_hash,
	price_per_photo, package_price, allow_downloads, download_resolution, watermark_enabled,
	expires_at, dropbox_folder, created_at, updated_at`

const photoColumns = `photo_id, gallery_id, org_id, filename, object_key, size_bytes, checksum,
	width, height, favorite, created_at`

func (s *GalleryStore) Create(ctx context.Context, g *models.Gallery) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	_, err := s.pool.Exec(ctx, `
		INSERT INTO galleries (`+galleryColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
	`,
		g.GalleryID,
		g.OrgID,
		g.ClientID,
		g.Title,
		g.Slug,
		g.Status,
		g.PasswordHash,
		numeric(g.PricePerPhoto),
		numeric(g.PackagePrice),
		g.AllowDownloads,
		g.DownloadResolution,
		g.WatermarkEnabled,
		g.ExpiresAt,
		g.DropboxFolder,
		g.CreatedAt,
		g.UpdatedAt,
	)
	return mapPostgresError(err, store.ErrClientNotFound)
}

func (s *GalleryStore) Get(ctx context.Context, orgID, galleryID uuid.UUID) (*models.Gallery, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	row := s.pool.QueryRow(ctx, `SELECT `+galleryColumns+` FROM galleries WHERE org_id = $1 AND gallery_id = $2`, orgID, galleryID)
	g, err := scanGallery(row)
	if err != nil {
		return nil, mapPostgresError(err, store.ErrGalleryNotFound)
	}
	return g, nil
}

func (s *GalleryStore) GetBySlug(ctx context.Context, slug string) (*models.Gallery, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	row := s.pool.QueryRow(ctx, `SELECT `+galleryColumns+` FROM galleries WHERE slug = $1`, slug)
	g, err := scanGallery(row)
	if err != nil {
		return nil, mapPostgresError(err, store.ErrGalleryNotFound)
	}
	return g, nil
}

func (s *GalleryStore) Update(ctx context.Context, g *models.Gallery) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	g.UpdatedAt = time.Now()

	result, err := s.pool.Exec(ctx, `
		UPDATE galleries SET
			client_id = $3,
			title = $4,
			slug = $5,
			status = $6,
			password_hash = $7,
			price_per_photo = $8,
			package_price = $9,
			allow_downloads = $10,
			download_resolution = $11,
			watermark_enabled = $12,
			expires_at = $13,
			dropbox_folder = $14,
			updated_at = $15
		WHERE org_id = $1 AND gallery_id = $2
	`,
		g.OrgID,
		g.GalleryID,
		g.ClientID,
		g.Title,
		g.Slug,
		g.Status,
		g.PasswordHash,
		numeric(g.PricePerPhoto),
		numeric(g.PackagePrice),
		g.AllowDownloads,
		g.DownloadResolution,
		g.WatermarkEnabled,
		g.ExpiresAt,
		g.DropboxFolder,
		g.UpdatedAt,
	)
	if err != nil {
		return mapPostgresError(err, nil)
	}
	if result.RowsAffected() == 0 {
		return store.ErrGalleryNotFound
	}
	return nil
}

func (s *GalleryStore) Delete(ctx context.Context, orgID, galleryID uuid.UUID) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	result, err := s.pool.Exec(ctx, `DELETE FROM galleries WHERE org_id = $1 AND gallery_id = $2`, orgID, galleryID)
	if err != nil {
		return fmt.Errorf("failed to delete gallery: %w", err)
	}
	if result.RowsAffected() == 0 {
		return store.ErrGalleryNotFound
	}
	return nil
}

func (s *GalleryStore) List(ctx context.Context, orgID uuid.UUID, opts store.ListGalleriesOptions) ([]*models.Gallery, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	rows, err := s.pool.Query(ctx, `
		SELECT `+galleryColumns+`
		FROM galleries
		WHERE org_id = $1
		  AND ($2::uuid IS NULL OR client_id = $2)
		  AND ($3 = '' OR status = $3)
		ORDER BY created_at DESC
	`, orgID, opts.ClientID, opts.Status)
	if err != nil {
		return nil, fmt.Errorf("failed to list galleries: %w", err)
	}
	return collectGalleries(rows)
}

func (s *GalleryStore) ListExpired(ctx context.Context, now time.Time) ([]*models.Gallery, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	rows, err := s.pool.Query(ctx, `
		SELECT `+galleryColumns+`
		FROM galleries
		WHERE status IN ('published', 'delivered')
		  AND expires_at IS NOT NULL
		  AND expires_at < $1
	`, now)
	if err != nil {
		return nil, fmt.Errorf("failed to list expired galleries: %w", err)
	}
	return collectGalleries(rows)
}

func (s *GalleryStore) AddPhotos(ctx context.Context, photos []*models.Photo) error {
	if len(photos) == 0 {
		return nil
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	batch := &pgx.Batch{}
	for _, p := range photos {
		batch.Queue(`
			INSERT INTO photos (`+photoColumns+`)
			SELECT $1::uuid, g.gallery_id, g.org_id, $4::text, $5::text, $6::bigint, $7::text,
				$8::integer, $9::integer, $10::boolean, $11::timestamptz
			FROM galleries g
			WHERE g.gallery_id = $2::uuid AND g.org_id = $3::uuid
		`,
			p.PhotoID,
			p.GalleryID,
			p.OrgID,
			p.Filename,
			p.ObjectKey,
			p.SizeBytes,
			p.Checksum,
			p.Width,
			p.Height,
			p.Favorite,
			p.CreatedAt,
		)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback is safe to call after commit

	results := tx.SendBatch(ctx, batch)
	for range photos {
		tag, err := results.Exec()
		if err != nil {
			_ = results.Close()
			return mapPostgresError(err, store.ErrGalleryNotFound)
		}
		if tag.RowsAffected() == 0 {
			_ = results.Close()
			return store.ErrGalleryNotFound
		}
	}
	if err := results.Close(); err != nil {
		return fmt.Errorf("failed to close batch: %w", err)
	}

	return tx.Commit(ctx)
}

func (s *GalleryStore) ListPhotos(ctx context.Context, orgID, galleryID uuid.UUID) ([]*models.Photo, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	rows, err := s.pool.Query(ctx, `
		SELECT `+photoColumns+`
		FROM photos
		WHERE org_id = $1 AND gallery_id = $2
		ORDER BY created_at, filename
	`, orgID, galleryID)
	if err != nil {
		return nil, fmt.Errorf("failed to list photos: %w", err)
	}

	photos, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*models.Photo, error) {
		var p models.Photo
		err := row.Scan(
			&p.PhotoID,
			&p.GalleryID,
			&p.OrgID,
			&p.Filename,
			&p.ObjectKey,
			&p.SizeBytes,
			&p.Checksum,
			&p.Width,
			&p.Height,
			&p.Favorite,
			&p.CreatedAt,
		)
		return &p, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan photos: %w", err)
	}
	return photos, nil
}

func (s *GalleryStore) DeletePhoto(ctx context.Context, orgID, photoID uuid.UUID) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	result, err := s.pool.Exec(ctx, `DELETE FROM photos WHERE org_id = $1 AND photo_id = $2`, orgID, photoID)
	if err != nil {
		return fmt.Errorf("failed to delete photo: %w", err)
	}
	if result.RowsAffected() == 0 {
		return store.ErrPhotoNotFound
	}
	return nil
}

func (s *GalleryStore) SetFavorite(ctx context.Context, galleryID, photoID uuid.UUID, favorite bool) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	result, err := s.pool.Exec(ctx, `UPDATE photos SET favorite = $3 WHERE gallery_id = $1 AND photo_id = $2`, galleryID, photoID, favorite)
	if err != nil {
		return fmt.Errorf("failed to set favorite: %w", err)
	}
	if result.RowsAffected() == 0 {
		return store.ErrPhotoNotFound
	}
	return nil
}

func collectGalleries(rows pgx.Rows) ([]*models.Gallery, error) {
	galleries, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*models.Gallery, error) {
		return scanGallery(row)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan galleries: %w", err)
	}
	return galleries, nil
}

func scanGallery(row pgx.Row) (*models.Gallery, error) {
	var (
		g                   models.Gallery
		perPhoto, packaging pgtype.Numeric
	)
	err := row.Scan(
		&g.GalleryID,
		&g.OrgID,
		&g.ClientID,
		&g.Title,
		&g.Slug,
		&g.Status,
		&g.PasswordHash,
		&perPhoto,
		&packaging,
		&g.AllowDownloads,
		&g.DownloadResolution,
		&g.WatermarkEnabled,
		&g.ExpiresAt,
		&g.DropboxFolder,
		&g.CreatedAt,
		&g.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	g.PricePerPhoto = decimalFrom(perPhoto)
	g.PackagePrice = decimalFrom(packaging)
	return &g, nil
}
