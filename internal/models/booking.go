package models

import (
	"time"

	"github.com/google/uuid"
)

// Booking statuses
const (
	BookingStatusPending   = "pending"
	BookingStatusConfirmed = "confirmed"
	BookingStatusCancelled = "cancelled"
	BookingStatusCompleted = "completed"
)

// Booking is a scheduled shoot with a client.
type Booking struct {
	BookingID uuid.UUID `json:"booking_id"`
	OrgID     uuid.UUID `json:"org_id"`
	ClientID  uuid.UUID `json:"client_id"`
	Title     string    `json:"title"`
	Location  string    `json:"location"`
	StartsAt  time.Time `json:"starts_at"`
	EndsAt    time.Time `json:"ends_at"`
	Status    string    `json:"status"`
	Notes     string    `json:"notes"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Overlaps reports whether two bookings share any instant. Touching ends do not overlap.
func (b *Booking) Overlaps(start, end time.Time) bool {
	return b.StartsAt.Before(end) && start.Before(b.EndsAt)
}

// Blocks returns true if the booking occupies the calendar.
func (b *Booking) Blocks() bool {
	return b.Status != BookingStatusCancelled
}
