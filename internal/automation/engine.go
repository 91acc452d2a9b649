// Package automation runs studio-defined rules in response to domain events
// and schedules the periodic sweeps that emit time-based events.
package automation

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/wolfeidau/studioos/internal/events"
	"github.com/wolfeidau/studioos/internal/models"
	"github.com/wolfeidau/studioos/internal/notify"
	"github.com/wolfeidau/studioos/internal/store"
	"github.com/wolfeidau/studioos/internal/telemetry"
)

var (
	ErrNoEmailRecipient = errors.New("event has no client email")
	ErrNoInvoice        = errors.New("event has no invoice")
	ErrSyncUnavailable  = errors.New("quickbooks sync is not configured")
)

// InvoiceSyncer pushes an invoice to the studio's accounting system.
type InvoiceSyncer interface {
	SyncInvoice(ctx context.Context, orgID, invoiceID uuid.UUID) error
}

// Engine evaluates rules for each published event.
type Engine struct {
	rules      store.AutomationStore
	sender     notify.Sender
	syncer     InvoiceSyncer
	conditions *Conditions
}

func NewEngine(rules store.AutomationStore, sender notify.Sender, conditions *Conditions) *Engine {
	return &Engine{
		rules:      rules,
		sender:     sender,
		conditions: conditions,
	}
}

// SetInvoiceSyncer enables the sync_quickbooks action.
func (e *Engine) SetInvoiceSyncer(syncer InvoiceSyncer) {
	e.syncer = syncer
}

// Handle runs every enabled rule matching the event. Rule failures are logged
// and counted; only a failure to load the rules is returned.
func (e *Engine) Handle(ctx context.Context, evt events.Event) error {
	rules, err := e.rules.ListEnabled(ctx, evt.OrgID, evt.Type)
	if err != nil {
		return fmt.Errorf("failed to list rules: %w", err)
	}

	logger := zerolog.Ctx(ctx)
	if logger.GetLevel() == zerolog.Disabled {
		logger = &log.Logger
	}

	metrics := telemetry.GetMetrics()
	for _, rule := range rules {
		attrs := metric.WithAttributes(
			attribute.String("trigger", evt.Type),
			attribute.String("action", rule.Action.Type),
		)

		matched, err := e.conditions.Evaluate(rule.Condition, evt.Payload)
		if err != nil {
			metrics.AutomationFailuresTotal.Add(ctx, 1, attrs)
			logger.Error().Err(err).
				Str("rule_id", rule.RuleID.String()).
				Str("event_type", evt.Type).
				Msg("Rule condition failed")
			continue
		}
		if !matched {
			continue
		}

		if err := e.run(ctx, rule, evt); err != nil {
			metrics.AutomationFailuresTotal.Add(ctx, 1, attrs)
			logger.Error().Err(err).
				Str("rule_id", rule.RuleID.String()).
				Str("rule", rule.Name).
				Str("event_type", evt.Type).
				Msg("Rule action failed")
			continue
		}

		metrics.AutomationsExecutedTotal.Add(ctx, 1, attrs)
		logger.Info().
			Str("rule_id", rule.RuleID.String()).
			Str("rule", rule.Name).
			Str("event_type", evt.Type).
			Msg("Rule executed")
	}
	return nil
}

func (e *Engine) run(ctx context.Context, rule *models.AutomationRule, evt events.Event) error {
	switch rule.Action.Type {
	case models.ActionSendEmail:
		return e.sendEmail(ctx, rule, evt)
	case models.ActionSyncQuickBooks:
		return e.syncInvoice(ctx, evt)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownAction, rule.Action.Type)
	}
}

func (e *Engine) sendEmail(ctx context.Context, rule *models.AutomationRule, evt events.Event) error {
	client, _ := evt.Payload["client"].(map[string]any)
	to, _ := client["email"].(string)
	if to == "" {
		return ErrNoEmailRecipient
	}
	name, _ := client["name"].(string)

	subject, body, err := Render(rule.Action.Template, evt.Payload)
	if err != nil {
		return err
	}

	return e.sender.Send(ctx, notify.Message{
		To:      to,
		ToName:  name,
		Subject: subject,
		Text:    body,
	})
}

func (e *Engine) syncInvoice(ctx context.Context, evt events.Event) error {
	if e.syncer == nil {
		return ErrSyncUnavailable
	}
	invoice, _ := evt.Payload["invoice"].(map[string]any)
	rawID, _ := invoice["id"].(string)
	invoiceID, err := uuid.Parse(rawID)
	if err != nil {
		return ErrNoInvoice
	}
	return e.syncer.SyncInvoice(ctx, evt.OrgID, invoiceID)
}
