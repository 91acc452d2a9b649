// Package bookings schedules shoots and keeps a studio's calendar free of overlaps.
package bookings

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/wolfeidau/studioos/internal/events"
	"github.com/wolfeidau/studioos/internal/models"
	"github.com/wolfeidau/studioos/internal/store"
)

var (
	ErrInvalidTimeRange  = errors.New("booking must end after it starts")
	ErrBookingConflict   = errors.New("booking overlaps an existing booking")
	ErrInvalidTransition = errors.New("invalid booking status transition")
	ErrTitleRequired     = errors.New("booking title is required")
)

// Input holds the editable booking fields.
type Input struct {
	ClientID uuid.UUID
	Title    string
	Location string
	StartsAt time.Time
	EndsAt   time.Time
	Notes    string
}

type Service struct {
	bookings store.BookingStore
	clients  store.ClientStore
	events   events.Publisher

	// calendar serializes the overlap check with the write that follows it.
	calendar sync.Mutex
}

func NewService(bookings store.BookingStore, clients store.ClientStore, publisher events.Publisher) *Service {
	return &Service{bookings: bookings, clients: clients, events: publisher}
}

func (s *Service) Create(ctx context.Context, orgID uuid.UUID, in Input) (*models.Booking, error) {
	if err := validate(&in); err != nil {
		return nil, err
	}
	client, err := s.clients.Get(ctx, orgID, in.ClientID)
	if err != nil {
		return nil, err
	}

	s.calendar.Lock()
	defer s.calendar.Unlock()

	if err := s.checkConflict(ctx, orgID, uuid.Nil, in.StartsAt, in.EndsAt); err != nil {
		return nil, err
	}

	now := time.Now()
	b := &models.Booking{
		BookingID: uuid.Must(uuid.NewV7()),
		OrgID:     orgID,
		ClientID:  in.ClientID,
		Title:     in.Title,
		Location:  in.Location,
		StartsAt:  in.StartsAt,
		EndsAt:    in.EndsAt,
		Status:    models.BookingStatusPending,
		Notes:     in.Notes,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.bookings.Create(ctx, b); err != nil {
		return nil, fmt.Errorf("failed to create booking: %w", err)
	}

	s.publish(ctx, events.BookingCreated, b, client)
	return b, nil
}

// Reschedule changes the details of a pending or confirmed booking.
func (s *Service) Reschedule(ctx context.Context, orgID, bookingID uuid.UUID, in Input) (*models.Booking, error) {
	if err := validate(&in); err != nil {
		return nil, err
	}

	s.calendar.Lock()
	defer s.calendar.Unlock()

	b, err := s.bookings.Get(ctx, orgID, bookingID)
	if err != nil {
		return nil, err
	}
	if b.Status != models.BookingStatusPending && b.Status != models.BookingStatusConfirmed {
		return nil, fmt.Errorf("%w: %s bookings cannot be changed", ErrInvalidTransition, b.Status)
	}
	if in.ClientID != b.ClientID {
		if _, err := s.clients.Get(ctx, orgID, in.ClientID); err != nil {
			return nil, err
		}
	}
	if err := s.checkConflict(ctx, orgID, b.BookingID, in.StartsAt, in.EndsAt); err != nil {
		return nil, err
	}

	b.ClientID = in.ClientID
	b.Title = in.Title
	b.Location = in.Location
	b.StartsAt = in.StartsAt
	b.EndsAt = in.EndsAt
	b.Notes = in.Notes
	if err := s.bookings.Update(ctx, b); err != nil {
		return nil, fmt.Errorf("failed to update booking: %w", err)
	}
	return b, nil
}

func (s *Service) Get(ctx context.Context, orgID, bookingID uuid.UUID) (*models.Booking, error) {
	return s.bookings.Get(ctx, orgID, bookingID)
}

// List returns bookings overlapping [from, to).
func (s *Service) List(ctx context.Context, orgID uuid.UUID, from, to time.Time) ([]*models.Booking, error) {
	if !to.After(from) {
		return nil, ErrInvalidTimeRange
	}
	return s.bookings.ListBetween(ctx, orgID, from, to)
}

func (s *Service) Confirm(ctx context.Context, orgID, bookingID uuid.UUID) (*models.Booking, error) {
	b, err := s.transition(ctx, orgID, bookingID, models.BookingStatusConfirmed)
	if err != nil {
		return nil, err
	}
	client, _ := s.clients.Get(ctx, orgID, b.ClientID)
	s.publish(ctx, events.BookingConfirmed, b, client)
	return b, nil
}

func (s *Service) Cancel(ctx context.Context, orgID, bookingID uuid.UUID) (*models.Booking, error) {
	return s.transition(ctx, orgID, bookingID, models.BookingStatusCancelled)
}

func (s *Service) Complete(ctx context.Context, orgID, bookingID uuid.UUID) (*models.Booking, error) {
	return s.transition(ctx, orgID, bookingID, models.BookingStatusCompleted)
}

// CanTransition reports whether a booking may move between two statuses.
func CanTransition(from, to string) bool {
	switch to {
	case models.BookingStatusConfirmed:
		return from == models.BookingStatusPending
	case models.BookingStatusCompleted:
		return from == models.BookingStatusConfirmed
	case models.BookingStatusCancelled:
		return from == models.BookingStatusPending || from == models.BookingStatusConfirmed
	}
	return false
}

func (s *Service) transition(ctx context.Context, orgID, bookingID uuid.UUID, to string) (*models.Booking, error) {
	b, err := s.bookings.Get(ctx, orgID, bookingID)
	if err != nil {
		return nil, err
	}
	if !CanTransition(b.Status, to) {
		return nil, fmt.Errorf("%w: %s → %s", ErrInvalidTransition, b.Status, to)
	}
	b.Status = to
	if err := s.bookings.Update(ctx, b); err != nil {
		return nil, fmt.Errorf("failed to update booking: %w", err)
	}
	return b, nil
}

// checkConflict must be called with the calendar lock held.
func (s *Service) checkConflict(ctx context.Context, orgID, self uuid.UUID, start, end time.Time) error {
	existing, err := s.bookings.ListBetween(ctx, orgID, start, end)
	if err != nil {
		return fmt.Errorf("failed to check calendar: %w", err)
	}
	for _, b := range existing {
		if b.BookingID == self || !b.Blocks() {
			continue
		}
		if b.Overlaps(start, end) {
			return fmt.Errorf("%w: %q from %s", ErrBookingConflict, b.Title, b.StartsAt.Format(time.RFC3339))
		}
	}
	return nil
}

func (s *Service) publish(ctx context.Context, eventType string, b *models.Booking, client *models.Client) {
	payload := map[string]any{
		"booking": events.BookingPayload(b),
		"client":  events.ClientPayload(client),
	}
	s.events.Publish(ctx, events.New(eventType, b.OrgID, payload))
}

func validate(in *Input) error {
	in.Title = strings.TrimSpace(in.Title)
	in.Location = strings.TrimSpace(in.Location)
	if in.Title == "" {
		return ErrTitleRequired
	}
	if !in.EndsAt.After(in.StartsAt) {
		return ErrInvalidTimeRange
	}
	return nil
}
