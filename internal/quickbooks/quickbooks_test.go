package quickbooks

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/wolfeidau/studioos/internal/apiclient"
	"github.com/wolfeidau/studioos/internal/events"
	"github.com/wolfeidau/studioos/internal/integrations"
	"github.com/wolfeidau/studioos/internal/links"
	"github.com/wolfeidau/studioos/internal/models"
	"github.com/wolfeidau/studioos/internal/store"
	"github.com/wolfeidau/studioos/internal/store/memory"
)

type fakeIntuit struct {
	mu             sync.Mutex
	tokenStatus    int
	companyStatus  int
	grants         []string
	customerBodies []map[string]any
	invoiceBodies  []map[string]any
	authorizations []string

	// failAfterCreate answers the next create with 503 after recording it.
	failAfterCreate bool
	requestIDs      []string
	created         map[string]bool // requestid -> entity recorded
}

// create records a create once per requestid, the way Intuit replays a
// repeated request instead of creating the entity again.
func (f *fakeIntuit) create(r *http.Request) (fresh, fail bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := r.URL.Query().Get("requestid")
	f.requestIDs = append(f.requestIDs, id)
	if f.created == nil {
		f.created = map[string]bool{}
	}
	fresh = id == "" || !f.created[id]
	f.created[id] = true
	fail = f.failAfterCreate
	f.failAfterCreate = false
	return fresh, fail
}

func (f *fakeIntuit) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /token", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		f.mu.Lock()
		f.grants = append(f.grants, r.PostForm.Get("grant_type"))
		f.mu.Unlock()
		if f.tokenStatus != 0 {
			w.WriteHeader(f.tokenStatus)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"access-2","refresh_token":"refresh-2","token_type":"bearer","expires_in":3600}`))
	})
	mux.HandleFunc("GET /v3/company/{realm}/companyinfo/{id}", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, r.PathValue("realm"), r.PathValue("id"))
		if f.companyStatus != 0 {
			w.WriteHeader(f.companyStatus)
			return
		}
		_, _ = w.Write([]byte(`{"CompanyInfo":{"CompanyName":"Golden Hour LLC"}}`))
	})
	mux.HandleFunc("POST /v3/company/{realm}/customer", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		fresh, fail := f.create(r)
		f.mu.Lock()
		if fresh {
			f.customerBodies = append(f.customerBodies, body)
		}
		f.authorizations = append(f.authorizations, r.Header.Get("Authorization"))
		f.mu.Unlock()
		if fail {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"Customer":{"Id":"58","DisplayName":"Ada"}}`))
	})
	mux.HandleFunc("POST /v3/company/{realm}/invoice", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		fresh, fail := f.create(r)
		if fresh {
			f.mu.Lock()
			f.invoiceBodies = append(f.invoiceBodies, body)
			f.mu.Unlock()
		}
		if fail {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"Invoice":{"Id":"130","DocNumber":"INV-2026-0001"}}`))
	})
	return mux
}

type fixture struct {
	svc    *Service
	stores *store.Stores
	signer *links.Signer
	intuit *fakeIntuit
	orgID  uuid.UUID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	intuit := &fakeIntuit{}
	srv := httptest.NewServer(intuit.handler(t))
	t.Cleanup(srv.Close)

	signer, err := links.NewSigner([]byte(strings.Repeat("q", 32)))
	require.NoError(t, err)

	stores := memory.NewStores()
	svc, err := NewService(stores, signer, Config{
		ClientID:     "client-id",
		ClientSecret: "client-secret",
		RedirectURL:  "https://studio.example.com/integrations/quickbooks/callback",
		APIURL:       srv.URL,
		AuthURL:      srv.URL + "/authorize",
		TokenURL:     srv.URL + "/token",
		AppURL:       "https://app.example.com",
		HTTPClient:   srv.Client(),
		API:          apiclient.Config{MaxTries: 1, RatePerSecond: 1000, Burst: 100},
	})
	require.NoError(t, err)

	return &fixture{svc: svc, stores: stores, signer: signer, intuit: intuit, orgID: uuid.Must(uuid.NewV7())}
}

func (f *fixture) callback(t *testing.T, query url.Values) *url.URL {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/integrations/quickbooks/callback?"+query.Encode(), nil)
	rec := httptest.NewRecorder()
	f.svc.CallbackHandler(rec, req)
	require.Equal(t, http.StatusFound, rec.Code)

	loc, err := url.Parse(rec.Header().Get("Location"))
	require.NoError(t, err)
	require.Equal(t, "app.example.com", loc.Host)
	require.Equal(t, integrations.SettingsPath, loc.Path)
	return loc
}

func TestService_ConnectURL(t *testing.T) {
	f := newFixture(t)

	raw, err := f.svc.ConnectURL(f.orgID)
	require.NoError(t, err)

	u, err := url.Parse(raw)
	require.NoError(t, err)
	require.Equal(t, Scope, u.Query().Get("scope"))
	require.Equal(t, "client-id", u.Query().Get("client_id"))

	orgID, err := integrations.VerifyState(f.signer, u.Query().Get("state"))
	require.NoError(t, err)
	require.Equal(t, f.orgID, orgID)
}

func TestService_Callback(t *testing.T) {
	validState := func(f *fixture) string {
		state, err := f.signer.SignState(f.orgID, time.Minute)
		require.NoError(t, err)
		return state
	}

	tests := []struct {
		name      string
		setup     func(f *fixture)
		query     func(f *fixture) url.Values
		wantKey   string
		wantCode  string
		wantSaved bool
	}{
		{
			name: "missing realm",
			query: func(f *fixture) url.Values {
				return url.Values{"code": {"abc"}, "state": {validState(f)}}
			},
			wantKey:  "error",
			wantCode: integrations.ErrorMissingParams,
		},
		{
			name: "forged state",
			query: func(f *fixture) url.Values {
				return url.Values{"code": {"abc"}, "state": {"bm90IHNpZ25lZA.c2ln"}, "realmId": {"9130"}}
			},
			wantKey:  "error",
			wantCode: integrations.ErrorInvalidState,
		},
		{
			name:  "token exchange fails",
			setup: func(f *fixture) { f.intuit.tokenStatus = http.StatusBadRequest },
			query: func(f *fixture) url.Values {
				return url.Values{"code": {"abc"}, "state": {validState(f)}, "realmId": {"9130"}}
			},
			wantKey:  "error",
			wantCode: integrations.ErrorTokenExchangeFailed,
		},
		{
			name:  "company info fails",
			setup: func(f *fixture) { f.intuit.companyStatus = http.StatusUnauthorized },
			query: func(f *fixture) url.Values {
				return url.Values{"code": {"abc"}, "state": {validState(f)}, "realmId": {"9130"}}
			},
			wantKey:  "error",
			wantCode: integrations.ErrorCompanyInfoFailed,
		},
		{
			name: "consent denied",
			query: func(f *fixture) url.Values {
				return url.Values{"error": {"access_denied"}}
			},
			wantKey:  "error",
			wantCode: integrations.ErrorAccessDenied,
		},
		{
			name: "connected",
			query: func(f *fixture) url.Values {
				return url.Values{"code": {"abc"}, "state": {validState(f)}, "realmId": {"9130"}}
			},
			wantKey:   "success",
			wantCode:  integrations.SuccessQuickBooksConnected,
			wantSaved: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			if tt.setup != nil {
				tt.setup(f)
			}

			loc := f.callback(t, tt.query(f))
			require.Equal(t, tt.wantCode, loc.Query().Get(tt.wantKey))

			saved, err := f.stores.Integrations.GetQuickBooks(context.Background(), f.orgID)
			if !tt.wantSaved {
				require.ErrorIs(t, err, store.ErrIntegrationNotFound)
				return
			}
			require.NoError(t, err)
			require.Equal(t, "9130", saved.RealmID)
			require.Equal(t, "Golden Hour LLC", saved.CompanyName)
			require.Equal(t, "access-2", saved.AccessToken)
			require.Equal(t, "refresh-2", saved.RefreshToken)
		})
	}
}

func (f *fixture) seedInvoice(t *testing.T, expiry time.Time) (*models.Client, *models.Invoice) {
	t.Helper()
	ctx := context.Background()

	require.NoError(t, f.stores.Integrations.UpsertQuickBooks(ctx, &models.QuickBooksIntegration{
		OrgID:          f.orgID,
		RealmID:        "9130",
		CompanyName:    "Golden Hour LLC",
		AccessToken:    "access-1",
		RefreshToken:   "refresh-1",
		TokenExpiresAt: expiry,
	}))

	client := &models.Client{ClientID: uuid.Must(uuid.NewV7()), OrgID: f.orgID, Name: "Ada", Email: "ada@example.com"}
	require.NoError(t, f.stores.Clients.Create(ctx, client))

	issued := time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)
	inv := &models.Invoice{
		InvoiceID: uuid.Must(uuid.NewV7()),
		OrgID:     f.orgID,
		ClientID:  client.ClientID,
		Number:    "INV-2026-0001",
		Status:    models.InvoiceStatusSent,
		Currency:  "usd",
		Items: []models.LineItem{
			{Description: "Session", Quantity: decimal.NewFromInt(1), UnitPrice: decimal.RequireFromString("400")},
			{Description: "Prints", Quantity: decimal.NewFromInt(4), UnitPrice: decimal.RequireFromString("25")},
		},
		Discount: decimal.RequireFromString("50"),
		Subtotal: decimal.RequireFromString("500"),
		Tax:      decimal.RequireFromString("36"),
		Total:    decimal.RequireFromString("486"),
		DueDate:  time.Date(2026, 10, 31, 0, 0, 0, 0, time.UTC),
		IssuedAt: &issued,
	}
	require.NoError(t, f.stores.Invoices.Create(ctx, inv))
	return client, inv
}

func TestService_SyncInvoice(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	client, inv := f.seedInvoice(t, time.Now().Add(-time.Minute))

	require.NoError(t, f.svc.SyncInvoice(ctx, f.orgID, inv.InvoiceID))

	require.Equal(t, []string{"refresh_token"}, f.intuit.grants)
	require.Equal(t, []string{"Bearer access-2"}, f.intuit.authorizations)

	saved, err := f.stores.Integrations.GetQuickBooks(ctx, f.orgID)
	require.NoError(t, err)
	require.Equal(t, "access-2", saved.AccessToken)
	require.Equal(t, "refresh-2", saved.RefreshToken)

	gotClient, err := f.stores.Clients.Get(ctx, f.orgID, client.ClientID)
	require.NoError(t, err)
	require.Equal(t, "58", gotClient.QuickBooksCustomerID)

	gotInv, err := f.stores.Invoices.Get(ctx, f.orgID, inv.InvoiceID)
	require.NoError(t, err)
	require.Equal(t, "130", gotInv.QuickBooksInvoiceID)

	require.Len(t, f.intuit.invoiceBodies, 1)
	body := f.intuit.invoiceBodies[0]
	require.Equal(t, "INV-2026-0001", body["DocNumber"])
	require.Equal(t, "2026-10-31", body["DueDate"])
	require.Equal(t, map[string]any{"value": "58"}, body["CustomerRef"])
	require.Len(t, body["Line"], 3)

	// already synced
	require.NoError(t, f.svc.SyncInvoice(ctx, f.orgID, inv.InvoiceID))
	require.Len(t, f.intuit.invoiceBodies, 1)
	require.Len(t, f.intuit.customerBodies, 1)
}

func TestService_SyncInvoiceRetriesCreateOnce(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.svc.api = apiclient.New(apiclient.Config{
		Vendor:          "quickbooks",
		MaxTries:        3,
		RatePerSecond:   1000,
		Burst:           100,
		InitialInterval: time.Millisecond,
	})
	client, inv := f.seedInvoice(t, time.Now().Add(time.Hour))

	f.intuit.failAfterCreate = true
	require.NoError(t, f.svc.SyncInvoice(ctx, f.orgID, inv.InvoiceID))

	customerID := "customer-" + client.ClientID.String()
	invoiceID := "invoice-" + inv.InvoiceID.String()
	require.Equal(t, []string{customerID, customerID, invoiceID}, f.intuit.requestIDs)
	require.Len(t, f.intuit.customerBodies, 1)
	require.Len(t, f.intuit.invoiceBodies, 1)

	gotInv, err := f.stores.Invoices.Get(ctx, f.orgID, inv.InvoiceID)
	require.NoError(t, err)
	require.Equal(t, "130", gotInv.QuickBooksInvoiceID)
}

func TestService_HandleEvent(t *testing.T) {
	ctx := context.Background()

	t.Run("not connected is ignored", func(t *testing.T) {
		f := newFixture(t)
		evt := events.New(events.InvoiceSent, f.orgID, map[string]any{
			"invoice": map[string]any{"id": uuid.NewString()},
		})
		require.NoError(t, f.svc.HandleEvent(ctx, evt))
	})

	t.Run("other events are ignored", func(t *testing.T) {
		f := newFixture(t)
		require.NoError(t, f.svc.HandleEvent(ctx, events.New(events.BookingCreated, f.orgID, nil)))
	})

	t.Run("sent invoice is synced", func(t *testing.T) {
		f := newFixture(t)
		_, inv := f.seedInvoice(t, time.Now().Add(time.Hour))
		evt := events.New(events.InvoiceSent, f.orgID, map[string]any{
			"invoice": events.InvoicePayload(inv),
		})
		require.NoError(t, f.svc.HandleEvent(ctx, evt))
		require.Empty(t, f.intuit.grants, "a valid token is not refreshed")
		require.Len(t, f.intuit.invoiceBodies, 1)
	})
}

func TestService_Disconnect(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	require.ErrorIs(t, f.svc.Disconnect(ctx, f.orgID), integrations.ErrNotConnected)

	f.seedInvoice(t, time.Now().Add(time.Hour))
	_, err := f.svc.Get(ctx, f.orgID)
	require.NoError(t, err)

	require.NoError(t, f.svc.Disconnect(ctx, f.orgID))
	_, err = f.svc.Get(ctx, f.orgID)
	require.ErrorIs(t, err, integrations.ErrNotConnected)
}
