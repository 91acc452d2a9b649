// Package dropbox connects a studio's Dropbox account and imports photo
// folders into galleries.
package dropbox

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/oauth2"

	"github.com/wolfeidau/studioos/internal/apiclient"
	"github.com/wolfeidau/studioos/internal/integrations"
	"github.com/wolfeidau/studioos/internal/links"
	"github.com/wolfeidau/studioos/internal/models"
	"github.com/wolfeidau/studioos/internal/store"
)

const (
	AuthURL    = "https://www.dropbox.com/oauth2/authorize"
	TokenURL   = "https://api.dropboxapi.com/oauth2/token"
	APIURL     = "https://api.dropboxapi.com"
	ContentURL = "https://content.dropboxapi.com"
)

// MaxDownloadBytes is the largest original Fetch will buffer.
const MaxDownloadBytes = 256 << 20

type Config struct {
	AppKey      string
	AppSecret   string
	RedirectURL string
	AuthURL     string
	TokenURL    string
	APIURL      string
	ContentURL  string
	AppURL      string
	StateTTL    time.Duration
	HTTPClient  *http.Client
	API         apiclient.Config
}

type Service struct {
	oauth        *oauth2.Config
	apiURL       string
	contentURL   string
	stateTTL     time.Duration
	callback     integrations.Callback
	httpClient   *http.Client
	api          *apiclient.Client
	integrations store.IntegrationStore
	galleries    PhotoImporter
	signer       *links.Signer
	now          func() time.Time
}

func NewService(integrationStore store.IntegrationStore, galleries PhotoImporter, signer *links.Signer, cfg Config) (*Service, error) {
	if cfg.AppKey == "" || cfg.AppSecret == "" || cfg.RedirectURL == "" {
		return nil, fmt.Errorf("dropbox app key, app secret, and redirect URL are required")
	}
	if cfg.AuthURL == "" {
		cfg.AuthURL = AuthURL
	}
	if cfg.TokenURL == "" {
		cfg.TokenURL = TokenURL
	}
	if cfg.APIURL == "" {
		cfg.APIURL = APIURL
	}
	if cfg.ContentURL == "" {
		cfg.ContentURL = ContentURL
	}
	if cfg.StateTTL <= 0 {
		cfg.StateTTL = integrations.DefaultStateTTL
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 2 * time.Minute}
	}
	cfg.API.Vendor = "dropbox"
	if cfg.API.MaxBodyBytes <= 0 {
		cfg.API.MaxBodyBytes = MaxDownloadBytes
	}

	return &Service{
		oauth: &oauth2.Config{
			ClientID:     cfg.AppKey,
			ClientSecret: cfg.AppSecret,
			RedirectURL:  cfg.RedirectURL,
			Endpoint: oauth2.Endpoint{
				AuthURL:  cfg.AuthURL,
				TokenURL: cfg.TokenURL,
			},
		},
		apiURL:       strings.TrimRight(cfg.APIURL, "/"),
		contentURL:   strings.TrimRight(cfg.ContentURL, "/"),
		stateTTL:     cfg.StateTTL,
		callback:     integrations.Callback{Provider: "dropbox", AppURL: cfg.AppURL},
		httpClient:   cfg.HTTPClient,
		api:          apiclient.New(cfg.API),
		integrations: integrationStore,
		galleries:    galleries,
		signer:       signer,
		now:          time.Now,
	}, nil
}

// ConnectURL returns the Dropbox consent URL. Offline access yields a refresh token.
func (s *Service) ConnectURL(orgID uuid.UUID) (string, error) {
	state, err := s.signer.SignState(orgID, s.stateTTL)
	if err != nil {
		return "", err
	}
	return s.oauth.AuthCodeURL(state, oauth2.SetAuthURLParam("token_access_type", "offline")), nil
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
	if code == "" || state == "" {
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

	accountID, err := s.currentAccount(ctx, s.oauth.Client(s.oauthContext(ctx), token))
	if err != nil {
		s.callback.Fail(w, r, integrations.ErrorAccountInfoFailed, err)
		return
	}

	now := s.now()
	cfg := &models.DropboxConfig{
		OrgID:          orgID,
		AccountID:      accountID,
		AccessToken:    token.AccessToken,
		RefreshToken:   token.RefreshToken,
		TokenExpiresAt: token.Expiry,
		ConnectedAt:    now,
		UpdatedAt:      now,
	}
	if err := s.integrations.UpsertDropbox(ctx, cfg); err != nil {
		s.callback.Fail(w, r, integrations.ErrorSaveFailed, err)
		return
	}

	zerolog.Ctx(ctx).Info().
		Str("org_id", orgID.String()).
		Str("account_id", accountID).
		Msg("Dropbox connected")

	s.callback.Succeed(w, r, integrations.SuccessDropboxConnected)
}

func (s *Service) Get(ctx context.Context, orgID uuid.UUID) (*models.DropboxConfig, error) {
	cfg, err := s.integrations.GetDropbox(ctx, orgID)
	if errors.Is(err, store.ErrIntegrationNotFound) {
		return nil, integrations.ErrNotConnected
	}
	return cfg, err
}

func (s *Service) Disconnect(ctx context.Context, orgID uuid.UUID) error {
	err := s.integrations.DeleteDropbox(ctx, orgID)
	if errors.Is(err, store.ErrIntegrationNotFound) {
		return integrations.ErrNotConnected
	}
	return err
}

func (s *Service) currentAccount(ctx context.Context, hc *http.Client) (string, error) {
	var out struct {
		AccountID string `json:"account_id"`
	}
	if err := s.rpc(ctx, hc, "/2/users/get_current_account", nil, &out); err != nil {
		return "", err
	}
	if out.AccountID == "" {
		return "", fmt.Errorf("dropbox returned an account without an id")
	}
	return out.AccountID, nil
}

func (s *Service) oauthContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, s.httpClient)
}

func (s *Service) authorizedClient(ctx context.Context, orgID uuid.UUID) (*http.Client, error) {
	cfg, err := s.Get(ctx, orgID)
	if err != nil {
		return nil, err
	}

	current := &oauth2.Token{
		AccessToken:  cfg.AccessToken,
		RefreshToken: cfg.RefreshToken,
		TokenType:    "Bearer",
		Expiry:       cfg.TokenExpiresAt,
	}
	return integrations.TokenClient(s.oauthContext(ctx), s.oauth, current, func(fresh *oauth2.Token) error {
		cfg.AccessToken = fresh.AccessToken
		cfg.RefreshToken = fresh.RefreshToken
		cfg.TokenExpiresAt = fresh.Expiry
		cfg.UpdatedAt = s.now()
		return s.integrations.UpsertDropbox(ctx, cfg)
	})
}

// rpc calls a Dropbox RPC endpoint. A nil arg sends no body.
func (s *Service) rpc(ctx context.Context, hc *http.Client, path string, arg, out any) error {
	var payload []byte
	if arg != nil {
		var err error
		if payload, err = json.Marshal(arg); err != nil {
			return fmt.Errorf("failed to encode dropbox request: %w", err)
		}
	}

	resp, err := s.api.Do(ctx, hc, func(ctx context.Context) (*http.Request, error) {
		var body io.Reader
		if payload != nil {
			body = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.apiURL+path, body)
		if err != nil {
			return nil, err
		}
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		return req, nil
	})
	if err != nil {
		return err
	}
	if err := json.Unmarshal(resp.Body, out); err != nil {
		return fmt.Errorf("failed to decode dropbox response: %w", err)
	}
	return nil
}
