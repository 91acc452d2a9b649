package telemetry

import (
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const (
	meterName = "github.com/wolfeidau/studioos"
)

// Metrics holds all the OpenTelemetry metric instruments
type Metrics struct {
	// Payment metrics
	CheckoutSessionsTotal metric.Int64Counter
	CheckoutErrorsTotal   metric.Int64Counter
	PaymentsRecordedTotal metric.Int64Counter
	PaymentAmount         metric.Float64Histogram

	// Stripe webhook metrics
	WebhookEventsTotal     metric.Int64Counter
	WebhookDuplicatesTotal metric.Int64Counter

	// Contract metrics
	ContractsSignedTotal metric.Int64Counter

	// Automation metrics
	AutomationsExecutedTotal metric.Int64Counter
	AutomationFailuresTotal  metric.Int64Counter

	// Integration metrics
	IntegrationCallbacksTotal metric.Int64Counter
	VendorRequestDuration     metric.Float64Histogram
	VendorRetriesTotal        metric.Int64Counter
}

var (
	once    sync.Once
	metrics *Metrics
)

// GetMetrics returns the singleton Metrics instance, initializing it if necessary
func GetMetrics() *Metrics {
	once.Do(func() {
		metrics = initMetrics()
	})
	return metrics
}

// initMetrics creates and registers all metric instruments
func initMetrics() *Metrics {
	meter := otel.GetMeterProvider().Meter(meterName)

	m := &Metrics{}

	m.CheckoutSessionsTotal, _ = meter.Int64Counter(
		"studioos.checkout.sessions.total",
		metric.WithDescription("Total number of Stripe checkout sessions created"),
		metric.WithUnit("{session}"),
	)

	m.CheckoutErrorsTotal, _ = meter.Int64Counter(
		"studioos.checkout.errors.total",
		metric.WithDescription("Total number of failed checkout session creations"),
		metric.WithUnit("{error}"),
	)

	m.PaymentsRecordedTotal, _ = meter.Int64Counter(
		"studioos.payments.recorded.total",
		metric.WithDescription("Total number of payments recorded against invoices"),
		metric.WithUnit("{payment}"),
	)

	m.PaymentAmount, _ = meter.Float64Histogram(
		"studioos.payments.amount",
		metric.WithDescription("Amount of recorded payments in major currency units"),
		metric.WithUnit("{currency}"),
	)

	m.WebhookEventsTotal, _ = meter.Int64Counter(
		"studioos.webhooks.events.total",
		metric.WithDescription("Total number of Stripe webhook events processed"),
		metric.WithUnit("{event}"),
	)

	m.WebhookDuplicatesTotal, _ = meter.Int64Counter(
		"studioos.webhooks.duplicates.total",
		metric.WithDescription("Total number of redelivered webhook events skipped"),
		metric.WithUnit("{event}"),
	)

	m.ContractsSignedTotal, _ = meter.Int64Counter(
		"studioos.contracts.signed.total",
		metric.WithDescription("Total number of contracts signed"),
		metric.WithUnit("{contract}"),
	)

	m.AutomationsExecutedTotal, _ = meter.Int64Counter(
		"studioos.automations.executed.total",
		metric.WithDescription("Total number of automation rule actions executed"),
		metric.WithUnit("{action}"),
	)

	m.AutomationFailuresTotal, _ = meter.Int64Counter(
		"studioos.automations.failures.total",
		metric.WithDescription("Total number of automation rule failures"),
		metric.WithUnit("{error}"),
	)

	m.IntegrationCallbacksTotal, _ = meter.Int64Counter(
		"studioos.integrations.callbacks.total",
		metric.WithDescription("Total number of OAuth integration callbacks handled"),
		metric.WithUnit("{callback}"),
	)

	m.VendorRequestDuration, _ = meter.Float64Histogram(
		"studioos.vendor.request.duration",
		metric.WithDescription("Duration of QuickBooks and Dropbox API requests"),
		metric.WithUnit("ms"),
	)

	m.VendorRetriesTotal, _ = meter.Int64Counter(
		"studioos.vendor.retries.total",
		metric.WithDescription("Total number of retried vendor API requests"),
		metric.WithUnit("{retry}"),
	)

	return m
}
