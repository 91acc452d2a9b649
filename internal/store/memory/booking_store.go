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

// BookingStore implements store.BookingStore using in-memory storage.
type BookingStore struct {
	mu sync.RWMutex

	bookings map[uuid.UUID]*models.Booking
}

// NewBookingStore creates a new in-memory booking store.
func NewBookingStore() *BookingStore {
	return &BookingStore{
		bookings: make(map[uuid.UUID]*models.Booking),
	}
}

func (s *BookingStore) Create(ctx context.Context, booking *models.Booking) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	clone := *booking
	s.bookings[booking.BookingID] = &clone

	return nil
}

func (s *BookingStore) Get(ctx context.Context, orgID, bookingID uuid.UUID) (*models.Booking, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	b, exists := s.bookings[bookingID]
	if !exists || b.OrgID != orgID {
		return nil, store.ErrBookingNotFound
	}

	clone := *b
	return &clone, nil
}

func (s *BookingStore) Update(ctx context.Context, booking *models.Booking) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, exists := s.bookings[booking.BookingID]
	if !exists || existing.OrgID != booking.OrgID {
		return store.ErrBookingNotFound
	}

	booking.UpdatedAt = time.Now()

	clone := *booking
	s.bookings[booking.BookingID] = &clone

	return nil
}

func (s *BookingStore) ListBetween(ctx context.Context, orgID uuid.UUID, from, to time.Time) ([]*models.Booking, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*models.Booking
	for _, b := range s.bookings {
		if b.OrgID == orgID && b.Overlaps(from, to) {
			clone := *b
			result = append(result, &clone)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].StartsAt.Before(result[j].StartsAt)
	})

	return result, nil
}
