package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/wolfeidau/studioos/internal/models"
)

var ErrBookingNotFound = errors.New("booking not found")

// BookingStore persists bookings.
type BookingStore interface {
	Create(ctx context.Context, booking *models.Booking) error
	Get(ctx context.Context, orgID, bookingID uuid.UUID) (*models.Booking, error)
	Update(ctx context.Context, booking *models.Booking) error

	// ListBetween returns bookings that overlap [from, to), ordered by start time.
	ListBetween(ctx context.Context, orgID uuid.UUID, from, to time.Time) ([]*models.Booking, error)
}
