// Package integrations holds the pieces shared by the QuickBooks and Dropbox
// OAuth flows: state tokens, callback redirects and connection status.
package integrations

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/wolfeidau/studioos/internal/links"
	"github.com/wolfeidau/studioos/internal/store"
	"github.com/wolfeidau/studioos/internal/telemetry"
)

// Redirect codes understood by the dashboard.
const (
	ErrorMissingParams       = "missing_params"
	ErrorInvalidState        = "invalid_state"
	ErrorTokenExchangeFailed = "token_exchange_failed"
	ErrorCompanyInfoFailed   = "company_info_failed"
	ErrorAccountInfoFailed   = "account_info_failed"
	ErrorSaveFailed          = "save_failed"
	ErrorAccessDenied        = "access_denied"

	SuccessQuickBooksConnected = "quickbooks_connected"
	SuccessDropboxConnected    = "dropbox_connected"
)

// SettingsPath is where callbacks land in the dashboard.
const SettingsPath = "/settings/integrations"

// DefaultStateTTL bounds how long a user has to complete a vendor consent screen.
const DefaultStateTTL = 10 * time.Minute

var ErrNotConnected = errors.New("integration not connected")

// Callback redirects OAuth callbacks back to the dashboard.
type Callback struct {
	Provider string
	AppURL   string
}

// Fail redirects with ?error=<code> and counts the failure.
func (c Callback) Fail(w http.ResponseWriter, r *http.Request, code string, err error) {
	logger := zerolog.Ctx(r.Context())
	ev := logger.Warn().Str("provider", c.Provider).Str("code", code)
	if err != nil {
		ev = ev.Err(err)
	}
	ev.Msg("Integration callback failed")

	c.count(r.Context(), code)
	c.redirect(w, r, "error", code)
}

// Succeed redirects with ?success=<code>.
func (c Callback) Succeed(w http.ResponseWriter, r *http.Request, code string) {
	c.count(r.Context(), "ok")
	c.redirect(w, r, "success", code)
}

func (c Callback) redirect(w http.ResponseWriter, r *http.Request, key, code string) {
	q := url.Values{}
	q.Set(key, code)
	target := strings.TrimRight(c.AppURL, "/") + SettingsPath + "?" + q.Encode()
	http.Redirect(w, r, target, http.StatusFound)
}

func (c Callback) count(ctx context.Context, result string) {
	telemetry.GetMetrics().IntegrationCallbacksTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("provider", c.Provider),
		attribute.String("result", result),
	))
}

// VerifyState returns the organization a state token was issued for.
func VerifyState(signer *links.Signer, state string) (uuid.UUID, error) {
	claims, err := signer.Verify(state, links.KindOAuthState)
	if err != nil {
		return uuid.Nil, err
	}
	return claims.OrgID, nil
}

// Connection summarises one integration for the dashboard.
type Connection struct {
	Connected   bool       `json:"connected"`
	Name        string     `json:"name,omitempty"`
	ConnectedAt *time.Time `json:"connected_at,omitempty"`
}

// Status is the connection state of every integration for an organization.
type Status struct {
	QuickBooks Connection `json:"quickbooks"`
	Dropbox    Connection `json:"dropbox"`
	Stripe     Connection `json:"stripe"`
}

// GetStatus reads the connection state from the stores.
func GetStatus(ctx context.Context, stores *store.Stores, orgID uuid.UUID) (*Status, error) {
	status := &Status{}

	org, err := stores.Organizations.Get(ctx, orgID)
	if err != nil {
		return nil, err
	}
	if org.StripeAccountID != "" {
		status.Stripe = Connection{Connected: true, Name: org.StripeAccountID}
	}

	qb, err := stores.Integrations.GetQuickBooks(ctx, orgID)
	switch {
	case err == nil:
		status.QuickBooks = Connection{Connected: true, Name: qb.CompanyName, ConnectedAt: &qb.ConnectedAt}
	case !errors.Is(err, store.ErrIntegrationNotFound):
		return nil, err
	}

	dbx, err := stores.Integrations.GetDropbox(ctx, orgID)
	switch {
	case err == nil:
		status.Dropbox = Connection{Connected: true, Name: dbx.AccountID, ConnectedAt: &dbx.ConnectedAt}
	case !errors.Is(err, store.ErrIntegrationNotFound):
		return nil, err
	}

	return status, nil
}
