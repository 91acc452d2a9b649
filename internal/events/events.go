// Package events carries domain events from the service that made a change
// to the subscribers that react to it.
package events

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Event types
const (
	InvoiceSent      = "invoice.sent"
	InvoicePaid      = "invoice.paid"
	InvoiceOverdue   = "invoice.overdue"
	ContractSent     = "contract.sent"
	ContractSigned   = "contract.signed"
	BookingCreated   = "booking.created"
	BookingConfirmed = "booking.confirmed"
	GalleryDelivered = "gallery.delivered"
)

// Types lists every event a rule can trigger on.
var Types = []string{
	InvoiceSent,
	InvoicePaid,
	InvoiceOverdue,
	ContractSent,
	ContractSigned,
	BookingCreated,
	BookingConfirmed,
	GalleryDelivered,
}

// Known returns true if t is a published event type.
func Known(t string) bool {
	for _, known := range Types {
		if known == t {
			return true
		}
	}
	return false
}

// Event is something that happened in an organization.
// Payload is the environment for rule conditions and email templates.
type Event struct {
	ID         uuid.UUID
	Type       string
	OrgID      uuid.UUID
	Payload    map[string]any
	OccurredAt time.Time
}

// New builds an event with a fresh ID.
func New(eventType string, orgID uuid.UUID, payload map[string]any) Event {
	return Event{
		ID:         uuid.Must(uuid.NewV7()),
		Type:       eventType,
		OrgID:      orgID,
		Payload:    payload,
		OccurredAt: time.Now(),
	}
}

// Publisher is implemented by Bus; services depend on this.
type Publisher interface {
	Publish(ctx context.Context, evt Event)
}

// Handler reacts to an event. Errors are logged by the bus.
type Handler func(ctx context.Context, evt Event) error

// Bus delivers events to subscribers synchronously, in subscription order.
type Bus struct {
	mu       sync.RWMutex
	handlers []Handler
}

func NewBus() *Bus {
	return &Bus{}
}

func (b *Bus) Subscribe(h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers = append(b.handlers, h)
}

// Publish never fails the caller: handler errors and panics are logged.
func (b *Bus) Publish(ctx context.Context, evt Event) {
	b.mu.RLock()
	handlers := append([]Handler(nil), b.handlers...)
	b.mu.RUnlock()

	logger := loggerFrom(ctx).With().
		Str("event_id", evt.ID.String()).
		Str("event_type", evt.Type).
		Str("org_id", evt.OrgID.String()).
		Logger()

	for _, h := range handlers {
		func() {
			defer func() {
				if r := recover(); r != nil {
					logger.Error().Interface("panic", r).Msg("Event handler panicked")
				}
			}()
			if err := h(ctx, evt); err != nil {
				logger.Error().Err(err).Msg("Event handler failed")
			}
		}()
	}
}

// Discard drops every event.
type Discard struct{}

func (Discard) Publish(context.Context, Event) {}

func loggerFrom(ctx context.Context) *zerolog.Logger {
	if l := zerolog.Ctx(ctx); l.GetLevel() != zerolog.Disabled {
		return l
	}
	return &log.Logger
}
