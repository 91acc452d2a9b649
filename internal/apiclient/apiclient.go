// Package apiclient paces and retries requests to third-party REST APIs.
package apiclient

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/time/rate"

	"github.com/wolfeidau/studioos/internal/telemetry"
)

// DefaultMaxBodyBytes bounds a buffered response body unless Config overrides it.
const DefaultMaxBodyBytes = 32 << 20

// ErrBodyTooLarge is returned when a response exceeds the configured size
// rather than handing back a truncated body.
var ErrBodyTooLarge = errors.New("response body exceeds size limit")

// StatusError is returned for non-2xx responses.
type StatusError struct {
	StatusCode int
	Body       []byte
}

func (e *StatusError) Error() string {
	body := e.Body
	if len(body) > 256 {
		body = body[:256]
	}
	return fmt.Sprintf("unexpected status %d: %s", e.StatusCode, body)
}

// IsStatus reports whether err is a StatusError with the given code.
func IsStatus(err error, code int) bool {
	var se *StatusError
	return errors.As(err, &se) && se.StatusCode == code
}

type Config struct {
	Vendor          string
	RatePerSecond   float64
	Burst           int
	MaxTries        uint
	MaxElapsed      time.Duration
	InitialInterval time.Duration
	MaxBodyBytes    int64
}

// Response is a fully read response.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Client shares one token bucket across every request to a vendor.
type Client struct {
	vendor          string
	limiter         *rate.Limiter
	maxTries        uint
	maxElapsed      time.Duration
	initialInterval time.Duration
	maxBodyBytes    int64
}

func New(cfg Config) *Client {
	if cfg.RatePerSecond <= 0 {
		cfg.RatePerSecond = 5
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 10
	}
	if cfg.MaxTries == 0 {
		cfg.MaxTries = 5
	}
	if cfg.MaxElapsed <= 0 {
		cfg.MaxElapsed = 30 * time.Second
	}
	if cfg.InitialInterval <= 0 {
		cfg.InitialInterval = 500 * time.Millisecond
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = DefaultMaxBodyBytes
	}
	return &Client{
		vendor:          cfg.Vendor,
		limiter:         rate.NewLimiter(rate.Limit(cfg.RatePerSecond), cfg.Burst),
		maxTries:        cfg.MaxTries,
		maxElapsed:      cfg.MaxElapsed,
		initialInterval: cfg.InitialInterval,
		maxBodyBytes:    cfg.MaxBodyBytes,
	}
}

// Do sends the request built by newRequest, retrying 429 and 5xx responses
// and transport errors with exponential backoff. newRequest is called once per
// attempt so request bodies can be replayed.
func (c *Client) Do(ctx context.Context, hc *http.Client, newRequest func(ctx context.Context) (*http.Request, error)) (*Response, error) {
	metrics := telemetry.GetMetrics()
	attrs := metric.WithAttributes(attribute.String("vendor", c.vendor))

	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = c.initialInterval

	operation := func() (*Response, error) {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, backoff.Permanent(err)
		}

		req, err := newRequest(ctx)
		if err != nil {
			return nil, backoff.Permanent(err)
		}

		start := time.Now()
		resp, err := hc.Do(req)
		metrics.VendorRequestDuration.Record(ctx, float64(time.Since(start).Milliseconds()), attrs)
		if err != nil {
			if ctx.Err() != nil {
				return nil, backoff.Permanent(ctx.Err())
			}
			return nil, fmt.Errorf("%s request failed: %w", c.vendor, err)
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBodyBytes+1))
		if err != nil {
			return nil, fmt.Errorf("failed to read %s response: %w", c.vendor, err)
		}
		if int64(len(body)) > c.maxBodyBytes {
			return nil, backoff.Permanent(fmt.Errorf("%w: %s response over %d bytes", ErrBodyTooLarge, c.vendor, c.maxBodyBytes))
		}

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return &Response{StatusCode: resp.StatusCode, Header: resp.Header, Body: body}, nil
		}

		statusErr := &StatusError{StatusCode: resp.StatusCode, Body: body}
		switch {
		case resp.StatusCode == http.StatusTooManyRequests:
			if secs, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil && secs > 0 {
				return nil, backoff.RetryAfter(secs)
			}
			return nil, statusErr
		case resp.StatusCode >= 500:
			return nil, statusErr
		default:
			return nil, backoff.Permanent(statusErr)
		}
	}

	return backoff.Retry(ctx, operation,
		backoff.WithBackOff(eb),
		backoff.WithMaxTries(c.maxTries),
		backoff.WithMaxElapsedTime(c.maxElapsed),
		backoff.WithNotify(func(err error, next time.Duration) {
			metrics.VendorRetriesTotal.Add(ctx, 1, attrs)
			log.Warn().Err(err).
				Str("vendor", c.vendor).
				Dur("retry_in", next).
				Msg("Retrying vendor request")
		}),
	)
}
