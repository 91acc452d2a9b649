// Package api serves the studio JSON API, the client-facing pages reached
// through signed links, and the vendor callbacks and webhooks.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/wolfeidau/studioos/internal/auth"
	"github.com/wolfeidau/studioos/internal/automation"
	"github.com/wolfeidau/studioos/internal/billing"
	"github.com/wolfeidau/studioos/internal/bookings"
	"github.com/wolfeidau/studioos/internal/checkout"
	"github.com/wolfeidau/studioos/internal/clients"
	"github.com/wolfeidau/studioos/internal/contracts"
	"github.com/wolfeidau/studioos/internal/dropbox"
	"github.com/wolfeidau/studioos/internal/galleries"
	"github.com/wolfeidau/studioos/internal/quickbooks"
	"github.com/wolfeidau/studioos/internal/store"
	"github.com/wolfeidau/studioos/internal/tenancy"
)

const (
	maxBodyBytes   = 1 << 20  // 1MiB JSON bodies
	maxUploadBytes = 64 << 20 // 64MiB photo uploads
)

// Services are the domain services behind the routes. QuickBooks, Dropbox
// and Checkout are nil when the integration is not configured.
type Services struct {
	Stores     *store.Stores
	Tenancy    *tenancy.Service
	Clients    *clients.Service
	Galleries  *galleries.Service
	Bookings   *bookings.Service
	Billing    *billing.Service
	Checkout   *checkout.Service
	Contracts  *contracts.Service
	Rules      *automation.Rules
	QuickBooks *quickbooks.Service
	Dropbox    *dropbox.Service
}

type Config struct {
	// AppURL is the dashboard origin browser flows are redirected back to.
	AppURL string
	// ClientIP resolves the caller address recorded on signatures.
	ClientIP func(*http.Request) string
}

type Server struct {
	svc          Services
	authenticate func(http.Handler) http.Handler
	cfg          Config
}

// NewServer builds the API. authenticate is the staff authentication
// middleware, auth.Authenticator.Middleware or auth.NoAuth in development.
func NewServer(svc Services, authenticate func(http.Handler) http.Handler, cfg Config) *Server {
	if cfg.ClientIP == nil {
		cfg.ClientIP = func(r *http.Request) string { return r.RemoteAddr }
	}
	cfg.AppURL = strings.TrimRight(cfg.AppURL, "/")
	return &Server{svc: svc, authenticate: authenticate, cfg: cfg}
}

// Handler returns the router for every route the service exposes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, r, http.StatusOK, map[string]string{"status": "ok"})
	})

	s.registerOrganization(mux)
	s.registerClients(mux)
	s.registerGalleries(mux)
	s.registerBookings(mux)
	s.registerInvoices(mux)
	s.registerContracts(mux)
	s.registerAutomations(mux)
	s.registerIntegrations(mux)
	s.registerPublic(mux)

	return mux
}

// staff registers a route that requires a member holding perm.
func (s *Server) staff(mux *http.ServeMux, pattern string, perm auth.Permission, h http.HandlerFunc) {
	mux.Handle(pattern, s.authenticate(auth.Require(perm)(h)))
}

// errBadRequest marks malformed input rejected before reaching a service.
var (
	errBadRequest          = errors.New("bad request")
	errIntegrationDisabled = errors.New("integration is not configured")
)

func badRequest(format string, args ...any) error {
	return fmt.Errorf("%w: %s", errBadRequest, fmt.Sprintf(format, args...))
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return badRequest("request body is required")
		}
		return badRequest("invalid JSON: %v", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zerolog.Ctx(r.Context()).Warn().Err(err).Msg("Failed to write response")
	}
}

func pathID(r *http.Request, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(r.PathValue(name))
	if err != nil {
		return uuid.Nil, badRequest("invalid %s", name)
	}
	return id, nil
}

func parseID(raw, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, badRequest("invalid %s", name)
	}
	return id, nil
}

func queryID(r *http.Request, name string) (*uuid.UUID, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return nil, nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return nil, badRequest("invalid %s", name)
	}
	return &id, nil
}

// principal is only called behind auth.Require, which guarantees it is set.
func principal(r *http.Request) *auth.Principal {
	return auth.PrincipalFromContext(r.Context())
}
