package checkout

import (
	"context"
	"errors"
)

var ErrInvalidSignature = errors.New("invalid webhook signature")

// Checkout session payment statuses
const (
	PaymentStatusPaid   = "paid"
	PaymentStatusUnpaid = "unpaid"
)

// Webhook event types handled
const (
	EventSessionCompleted             = "checkout.session.completed"
	EventSessionAsyncPaymentSucceeded = "checkout.session.async_payment_succeeded"
	EventSessionExpired               = "checkout.session.expired"
)

// SessionRequest describes a single-line-item payment session on a connected account.
type SessionRequest struct {
	Currency           string
	AmountCents        int64
	ProductName        string
	CustomerEmail      string
	ApplicationFee     int64
	DestinationAccount string
	ClientReferenceID  string
	Metadata           map[string]string
	SuccessURL         string
	CancelURL          string
	IdempotencyKey     string
}

// Session is the provider-neutral view of a checkout session.
type Session struct {
	ID                string
	URL               string
	PaymentStatus     string
	AmountTotal       int64
	Currency          string
	ClientReferenceID string
	Metadata          map[string]string
}

// WebhookEvent is a verified provider event.
type WebhookEvent struct {
	ID      string
	Type    string
	Session *Session // set for checkout.session.* events
}

// Gateway creates and inspects hosted checkout sessions.
type Gateway interface {
	CreateSession(ctx context.Context, req SessionRequest) (*Session, error)
	GetSession(ctx context.Context, sessionID string) (*Session, error)

	// ParseWebhook verifies the signature header and decodes the event.
	ParseWebhook(payload []byte, signature string) (*WebhookEvent, error)
}
