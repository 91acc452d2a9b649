// Package checkout takes invoice payments through Stripe Checkout on the
// studio's connected account, keeping a platform fee.
package checkout

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/wolfeidau/studioos/internal/billing"
	"github.com/wolfeidau/studioos/internal/dedupe"
	"github.com/wolfeidau/studioos/internal/models"
	"github.com/wolfeidau/studioos/internal/money"
	"github.com/wolfeidau/studioos/internal/telemetry"
)

var (
	ErrNothingDue          = errors.New("invoice has no balance due")
	ErrStripeNotConnected  = errors.New("studio has not connected a Stripe account")
	ErrPaymentNotCompleted = errors.New("checkout session is not paid")
	ErrSessionMetadata     = errors.New("checkout session is missing invoice metadata")
)

// Metadata keys written on every session.
const (
	MetaOrgID       = "org_id"
	MetaInvoiceID   = "invoice_id"
	MetaPlatformFee = "platform_fee"
)

// Config holds checkout options.
type Config struct {
	BaseURL string
}

type Service struct {
	gateway Gateway
	billing *billing.Service
	dedupe  dedupe.Store
	cfg     Config
}

func NewService(gateway Gateway, billingSvc *billing.Service, markers dedupe.Store, cfg Config) *Service {
	return &Service{gateway: gateway, billing: billingSvc, dedupe: markers, cfg: cfg}
}

// CreateSession starts a hosted checkout for the balance of the invoice behind token
// and returns the URL to send the client to.
func (s *Service) CreateSession(ctx context.Context, token string) (string, error) {
	metrics := telemetry.GetMetrics()

	pub, err := s.billing.OpenPublic(ctx, token)
	if err != nil {
		return "", err
	}
	inv, org := pub.Invoice, pub.Organization

	if !inv.IsOpen() || !inv.Balance().IsPositive() {
		return "", ErrNothingDue
	}
	if !org.HasStripe() {
		return "", ErrStripeNotConnected
	}

	balanceCents := money.ToCents(inv.Balance())
	fee := money.PlatformFee(balanceCents, org.PlatformFeePercent)
	base := strings.TrimRight(s.cfg.BaseURL, "/")

	sess, err := s.gateway.CreateSession(ctx, SessionRequest{
		Currency:           inv.Currency,
		AmountCents:        balanceCents,
		ProductName:        fmt.Sprintf("%s invoice %s", org.Name, inv.Number),
		CustomerEmail:      pub.Client.Email,
		ApplicationFee:     fee,
		DestinationAccount: org.StripeAccountID,
		ClientReferenceID:  inv.InvoiceID.String(),
		Metadata: map[string]string{
			MetaOrgID:       org.OrgID.String(),
			MetaInvoiceID:   inv.InvoiceID.String(),
			MetaPlatformFee: strconv.FormatInt(fee, 10),
		},
		// Stripe substitutes {CHECKOUT_SESSION_ID}; it must not be escaped.
		SuccessURL:     base + "/pay/return?session_id={CHECKOUT_SESSION_ID}&token=" + url.QueryEscape(token),
		CancelURL:      base + "/p/invoices/" + token,
		// One session per invoice balance; a double click reuses it.
		IdempotencyKey: fmt.Sprintf("checkout-%s-%d", inv.InvoiceID, balanceCents),
	})
	if err != nil {
		metrics.CheckoutErrorsTotal.Add(ctx, 1)
		return "", err
	}

	metrics.CheckoutSessionsTotal.Add(ctx, 1)
	zerolog.Ctx(ctx).Info().
		Str("session_id", sess.ID).
		Str("invoice_id", inv.InvoiceID.String()).
		Int64("amount_cents", balanceCents).
		Int64("platform_fee", fee).
		Msg("Checkout session created")

	return sess.URL, nil
}

// CompleteReturn handles the browser coming back from Stripe. It records the
// payment if the webhook has not already.
func (s *Service) CompleteReturn(ctx context.Context, sessionID string) (*models.Payment, error) {
	if sessionID == "" {
		return nil, ErrPaymentNotCompleted
	}
	sess, err := s.gateway.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if sess.PaymentStatus != PaymentStatusPaid {
		return nil, ErrPaymentNotCompleted
	}
	payment, _, err := s.recordSession(ctx, sess)
	return payment, err
}

// HandleWebhook verifies and applies a Stripe event. Redelivered events are skipped.
func (s *Service) HandleWebhook(ctx context.Context, payload []byte, signature string) error {
	metrics := telemetry.GetMetrics()
	logger := zerolog.Ctx(ctx)

	evt, err := s.gateway.ParseWebhook(payload, signature)
	if err != nil {
		return err
	}

	first, err := s.dedupe.MarkProcessed(ctx, evt.ID)
	if err != nil {
		return err
	}
	if !first {
		metrics.WebhookDuplicatesTotal.Add(ctx, 1)
		logger.Info().Str("event_id", evt.ID).Str("event_type", evt.Type).Msg("Duplicate webhook skipped")
		return nil
	}
	metrics.WebhookEventsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("type", evt.Type)))

	switch evt.Type {
	case EventSessionCompleted, EventSessionAsyncPaymentSucceeded:
		if evt.Session == nil || evt.Session.PaymentStatus != PaymentStatusPaid {
			logger.Info().Str("event_id", evt.ID).Msg("Checkout completed without payment, waiting for async payment")
			return nil
		}
		if _, _, err := s.recordSession(ctx, evt.Session); err != nil {
			// Let Stripe redeliver.
			if forgetErr := s.dedupe.Forget(ctx, evt.ID); forgetErr != nil {
				logger.Error().Err(forgetErr).Str("event_id", evt.ID).Msg("Failed to clear webhook marker")
			}
			return err
		}
	case EventSessionExpired:
		if evt.Session != nil {
			logger.Info().
				Str("session_id", evt.Session.ID).
				Str("invoice_id", evt.Session.Metadata[MetaInvoiceID]).
				Msg("Checkout session expired")
		}
	default:
		logger.Debug().Str("event_type", evt.Type).Msg("Ignoring webhook event")
	}
	return nil
}

func (s *Service) recordSession(ctx context.Context, sess *Session) (*models.Payment, bool, error) {
	orgID, err := uuid.Parse(sess.Metadata[MetaOrgID])
	if err != nil {
		return nil, false, fmt.Errorf("%w: org_id", ErrSessionMetadata)
	}
	invoiceID, err := uuid.Parse(sess.Metadata[MetaInvoiceID])
	if err != nil {
		invoiceID, err = uuid.Parse(sess.ClientReferenceID)
		if err != nil {
			return nil, false, fmt.Errorf("%w: invoice_id", ErrSessionMetadata)
		}
	}
	fee, _ := strconv.ParseInt(sess.Metadata[MetaPlatformFee], 10, 64)

	return s.billing.RecordPayment(ctx, orgID, billing.PaymentInput{
		InvoiceID:   invoiceID,
		Provider:    models.PaymentProviderStripe,
		ProviderRef: sess.ID,
		Amount:      money.FromCents(sess.AmountTotal),
		PlatformFee: money.FromCents(fee),
		Currency:    sess.Currency,
		Status:      models.PaymentStatusSucceeded,
	})
}
