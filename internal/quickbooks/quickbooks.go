// Package quickbooks connects a studio to QuickBooks Online and mirrors its
// invoices there.
package quickbooks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/oauth2"

	"github.com/wolfeidau/studioos/internal/apiclient"
	"github.com/wolfeidau/studioos/internal/events"
	"github.com/wolfeidau/studioos/internal/integrations"
	"github.com/wolfeidau/studioos/internal/links"
	"github.com/wolfeidau/studioos/internal/models"
	"github.com/wolfeidau/studioos/internal/store"
)

const (
	Scope = "com.intuit.quickbooks.accounting"

	AuthURL  = "https://appcenter.intuit.com/connect/oauth2"
	TokenURL = "https://oauth.platform.intuit.com/oauth2/v1/tokens/bearer"

	SandboxAPIURL    = "https://sandbox-quickbooks.api.intuit.com"
	ProductionAPIURL = "https://quickbooks.api.intuit.com"

	minorVersion = "75"
)

var ErrInvoiceNotSyncable = errors.New("draft and void invoices are not synced")

type Config struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	APIURL       string
	AuthURL      string
	TokenURL     string
	AppURL       string // dashboard base URL for callback redirects
	ItemID       string // QuickBooks service item used for invoice lines
	StateTTL     time.Duration
	HTTPClient   *http.Client
	API          apiclient.Config
}

type Service struct {
	oauth        *oauth2.Config
	apiURL       string
	itemID       string
	stateTTL     time.Duration
	callback     integrations.Callback
	httpClient   *http.Client
	api          *apiclient.Client
	integrations store.IntegrationStore
	invoices     store.InvoiceStore
	clients      store.ClientStore
	signer       *links.Signer
	syncing      sync.Mutex
	now          func() time.Time
}

func NewService(stores *store.Stores, signer *links.Signer, cfg Config) (*Service, error) {
	if cfg.ClientID == "" || cfg.ClientSecret == "" || cfg.RedirectURL == "" {
		return nil, fmt.Errorf("quickbooks client ID, client secret, and redirect URL are required")
	}
	if cfg.APIURL == "" {
		cfg.APIURL = ProductionAPIURL
	}
	if cfg.AuthURL == "" {
		cfg.AuthURL = AuthURL
	}
	if cfg.TokenURL == "" {
		cfg.TokenURL = TokenURL
	}
	if cfg.ItemID == "" {
		cfg.ItemID = "1"
	}
	if cfg.StateTTL <= 0 {
		cfg.StateTTL = integrations.DefaultStateTTL
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	cfg.API.Vendor = "quickbooks"

	return &Service{
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       []string{Scope},
			Endpoint: oauth2.Endpoint{
				AuthURL:   cfg.AuthURL,
				TokenURL:  cfg.TokenURL,
				AuthStyle: oauth2.AuthStyleInHeader,
			},
		},
		apiURL:       strings.TrimRight(cfg.APIURL, "/"),
		itemID:       cfg.ItemID,
		stateTTL:     cfg.StateTTL,
		callback:     integrations.Callback{Provider: "quickbooks", AppURL: cfg.AppURL},
		httpClient:   cfg.HTTPClient,
		api:          apiclient.New(cfg.API),
		integrations: stores.Integrations,
		invoices:     stores.Invoices,
		clients:      stores.Clients,
		signer:       signer,
		now:          time.Now,
	}, nil
}

// ConnectURL returns the Intuit consent URL for an organization.
func (s *Service) ConnectURL(orgID uuid.UUID) (string, error) {
	state, err := s.signer.SignState(orgID, s.stateTTL)
	if err != nil {
		return "", err
	}
	return s.oauth.AuthCodeURL(state), nil
}

// CallbackHandler completes the OAuth flow and redirects to the dashboard.
func (s *Service) CallbackHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if errParam := r.FormValue("error"); errParam != "" {
		s.callback.Fail(w, r, integrations.ErrorAccessDenied, fmt.Errorf("consent denied: %s", errParam))
		return
	}

	code := r.FormValue("code")
	state := r.FormValue("state")
	realmID := r.FormValue("realmId")
	if code == "" || state == "" || realmID == "" {
		s.callback.Fail(w, r, integrations.ErrorMissingParams, nil)
		return
	}

	orgID, err := integrations.VerifyState(s.signer, state)
	if err != nil {
		s.callback.Fail(w, r, integrations.ErrorInvalidState, err)
		return
	}

	token, err := s.oauth.Exchange(s.oauthContext(ctx), code)
	if err != nil {
		s.callback.Fail(w, r, integrations.ErrorTokenExchangeFailed, err)
		return
	}

	companyName, err := s.companyName(ctx, realmID, token)
	if err != nil {
		s.callback.Fail(w, r, integrations.ErrorCompanyInfoFailed, err)
		return
	}

	now := s.now()
	integration := &models.QuickBooksIntegration{
		OrgID:          orgID,
		RealmID:        realmID,
		CompanyName:    companyName,
		AccessToken:    token.AccessToken,
		RefreshToken:   token.RefreshToken,
		TokenExpiresAt: token.Expiry,
		ConnectedAt:    now,
		UpdatedAt:      now,
	}
	if err := s.integrations.UpsertQuickBooks(ctx, integration); err != nil {
		s.callback.Fail(w, r, integrations.ErrorSaveFailed, err)
		return
	}

	zerolog.Ctx(ctx).Info().
		Str("org_id", orgID.String()).
		Str("realm_id", realmID).
		Str("company", companyName).
		Msg("QuickBooks connected")

	s.callback.Succeed(w, r, integrations.SuccessQuickBooksConnected)
}

// Get returns the organization's connection.
func (s *Service) Get(ctx context.Context, orgID uuid.UUID) (*models.QuickBooksIntegration, error) {
	integration, err := s.integrations.GetQuickBooks(ctx, orgID)
	if errors.Is(err, store.ErrIntegrationNotFound) {
		return nil, integrations.ErrNotConnected
	}
	return integration, err
}

// Disconnect removes the stored tokens.
func (s *Service) Disconnect(ctx context.Context, orgID uuid.UUID) error {
	err := s.integrations.DeleteQuickBooks(ctx, orgID)
	if errors.Is(err, store.ErrIntegrationNotFound) {
		return integrations.ErrNotConnected
	}
	return err
}

// HandleEvent syncs sent invoices for connected organizations.
func (s *Service) HandleEvent(ctx context.Context, evt events.Event) error {
	if evt.Type != events.InvoiceSent {
		return nil
	}
	invoice, _ := evt.Payload["invoice"].(map[string]any)
	rawID, _ := invoice["id"].(string)
	invoiceID, err := uuid.Parse(rawID)
	if err != nil {
		return fmt.Errorf("invoice.sent without invoice id: %w", err)
	}

	err = s.SyncInvoice(ctx, evt.OrgID, invoiceID)
	if errors.Is(err, integrations.ErrNotConnected) {
		return nil
	}
	return err
}

func (s *Service) companyName(ctx context.Context, realmID string, token *oauth2.Token) (string, error) {
	var out struct {
		CompanyInfo struct {
			CompanyName string `json:"CompanyName"`
			LegalName   string `json:"LegalName"`
		} `json:"CompanyInfo"`
	}
	path := fmt.Sprintf("/v3/company/%s/companyinfo/%s", realmID, realmID)
	if err := s.call(ctx, s.oauth.Client(s.oauthContext(ctx), token), http.MethodGet, path, "", nil, &out); err != nil {
		return "", err
	}
	if out.CompanyInfo.CompanyName != "" {
		return out.CompanyInfo.CompanyName, nil
	}
	return out.CompanyInfo.LegalName, nil
}

// oauthContext makes the oauth2 package use the configured HTTP client.
func (s *Service) oauthContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, s.httpClient)
}

// authorizedClient refreshes the access token when needed and persists rotated tokens.
func (s *Service) authorizedClient(ctx context.Context, integration *models.QuickBooksIntegration) (*http.Client, error) {
	current := &oauth2.Token{
		AccessToken:  integration.AccessToken,
		RefreshToken: integration.RefreshToken,
		TokenType:    "Bearer",
		Expiry:       integration.TokenExpiresAt,
	}

	return integrations.TokenClient(s.oauthContext(ctx), s.oauth, current, func(fresh *oauth2.Token) error {
		integration.AccessToken = fresh.AccessToken
		integration.RefreshToken = fresh.RefreshToken
		integration.TokenExpiresAt = fresh.Expiry
		integration.UpdatedAt = s.now()
		zerolog.Ctx(ctx).Debug().Str("org_id", integration.OrgID.String()).Msg("QuickBooks token refreshed")
		return s.integrations.UpsertQuickBooks(ctx, integration)
	})
}

// call sends one API request. A non-empty requestID is passed as Intuit's
// requestid so a retried create returns the original entity instead of
// making another.
func (s *Service) call(ctx context.Context, hc *http.Client, method, path, requestID string, body, out any) error {
	var payload []byte
	if body != nil {
		var err error
		if payload, err = json.Marshal(body); err != nil {
			return fmt.Errorf("failed to encode quickbooks request: %w", err)
		}
	}

	query := url.Values{"minorversion": {minorVersion}}
	if requestID != "" {
		query.Set("requestid", requestID)
	}

	resp, err := s.api.Do(ctx, hc, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, method, s.apiURL+path+"?"+query.Encode(), reader(payload))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "application/json")
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		return req, nil
	})
	if err != nil {
		return err
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(resp.Body, out); err != nil {
		return fmt.Errorf("failed to decode quickbooks response: %w", err)
	}
	return nil
}
