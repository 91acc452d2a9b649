package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/wolfeidau/studioos/internal/models"
	"github.com/wolfeidau/studioos/internal/store"
)

// BookingStore implements store.BookingStore using PostgreSQL.
type BookingStore struct {
	db
}

const bookingColumns = `booking_id, org_id, client_id, title, location, starts_at, ends_at, status, notes, created_at, updated_at`

func (s *BookingStore) Create(ctx context.Context, b *models.Booking) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	_, err := s.pool.Exec(ctx, `
		INSERT INTO bookings (`+bookingColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`,
		b.BookingID,
		b.OrgID,
		b.ClientID,
		b.Title,
		b.Location,
		b.StartsAt,
		b.EndsAt,
		b.Status,
		b.Notes,
		b.CreatedAt,
		b.UpdatedAt,
	)
	return mapPostgresError(err, store.ErrClientNotFound)
}

func (s *BookingStore) Get(ctx context.Context, orgID, bookingID uuid.UUID) (*models.Booking, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	row := s.pool.QueryRow(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE org_id = $1 AND booking_id = $2`, orgID, bookingID)
	b, err := scanBooking(row)
	if err != nil {
		return nil, mapPostgresError(err, store.ErrBookingNotFound)
	}
	return b, nil
}

func (s *BookingStore) Update(ctx context.Context, b *models.Booking) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	b.UpdatedAt = time.Now()

	result, err := s.pool.Exec(ctx, `
		UPDATE bookings SET
			client_id = $3,
			title = $4,
			location = $5,
			starts_at = $6,
			ends_at = $7,
			status = $8,
			notes = $9,
			updated_at = $10
		WHERE org_id = $1 AND booking_id = $2
	`,
		b.OrgID,
		b.BookingID,
		b.ClientID,
		b.Title,
		b.Location,
		b.StartsAt,
		b.EndsAt,
		b.Status,
		b.Notes,
		b.UpdatedAt,
	)
	if err != nil {
		return mapPostgresError(err, nil)
	}
	if result.RowsAffected() == 0 {
		return store.ErrBookingNotFound
	}
	return nil
}

func (s *BookingStore) ListBetween(ctx context.Context, orgID uuid.UUID, from, to time.Time) ([]*models.Booking, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	rows, err := s.pool.Query(ctx, `
		SELECT `+bookingColumns+`
		FROM bookings
		WHERE org_id = $1 AND starts_at < $3 AND ends_at > $2
		ORDER BY starts_at
	`, orgID, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to list bookings: %w", err)
	}

	bookings, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*models.Booking, error) {
		return scanBooking(row)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan bookings: %w", err)
	}
	return bookings, nil
}

func scanBooking(row pgx.Row) (*models.Booking, error) {
	var b models.Booking
	err := row.Scan(
		&b.BookingID,
		&b.OrgID,
		&b.ClientID,
		&b.Title,
		&b.Location,
		&b.StartsAt,
		&b.EndsAt,
		&b.Status,
		&b.Notes,
		&b.CreatedAt,
		&b.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &b, nil
}
