package dropbox

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/wolfeidau/studioos/internal/apiclient"
	"github.com/wolfeidau/studioos/internal/events"
	"github.com/wolfeidau/studioos/internal/galleries"
	"github.com/wolfeidau/studioos/internal/integrations"
	"github.com/wolfeidau/studioos/internal/links"
	"github.com/wolfeidau/studioos/internal/models"
	"github.com/wolfeidau/studioos/internal/objectstore"
	"github.com/wolfeidau/studioos/internal/store"
	"github.com/wolfeidau/studioos/internal/store/memory"
)

type fakeDropbox struct {
	listCalls     atomic.Int32
	continueCalls atomic.Int32
	throttleOnce  atomic.Bool
	downloadArg   atomic.Value
}

func (f *fakeDropbox) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /oauth2/token", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"sl.new","token_type":"bearer","expires_in":14400,"refresh_token":"rt","account_id":"dbid:abc"}`))
	})
	mux.HandleFunc("POST /2/users/get_current_account", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "Bearer sl.new", r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`{"account_id":"dbid:abc","email":"studio@example.com"}`))
	})
	mux.HandleFunc("POST /2/files/list_folder", func(w http.ResponseWriter, r *http.Request) {
		f.listCalls.Add(1)
		if f.throttleOnce.CompareAndSwap(true, false) {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		var arg map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&arg))
		require.Equal(t, "/clients/smith", arg["path"])
		_, _ = w.Write([]byte(`{
			"entries": [
				{".tag": "file", "id": "id:1", "name": "IMG_0001.JPG", "size": 1024},
				{".tag": "folder", "id": "id:2", "name": "raw"},
				{".tag": "file", "id": "id:3", "name": "notes.txt", "size": 12}
			],
			"cursor": "c1",
			"has_more": true
		}`))
	})
	mux.HandleFunc("POST /2/files/list_folder/continue", func(w http.ResponseWriter, r *http.Request) {
		f.continueCalls.Add(1)
		var arg map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&arg))
		require.Equal(t, "c1", arg["cursor"])
		_, _ = w.Write([]byte(`{
			"entries": [
				{".tag": "file", "id": "id:4", "name": "IMG_0002.heic", "size": 2048},
				{".tag": "file", "id": "id:5", "name": "img_0001.jpg", "size": 1024}
			],
			"cursor": "c2",
			"has_more": false
		}`))
	})
	mux.HandleFunc("POST /2/files/download", func(w http.ResponseWriter, r *http.Request) {
		f.downloadArg.Store(r.Header.Get("Dropbox-API-Arg"))
		_, _ = w.Write([]byte("jpeg-bytes"))
	})
	return mux
}

type fixture struct {
	svc       *Service
	galleries *galleries.Service
	stores    *store.Stores
	signer    *links.Signer
	fake      *fakeDropbox
	orgID     uuid.UUID
	clientID  uuid.UUID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	fake := &fakeDropbox{}
	srv := httptest.NewServer(fake.handler(t))
	t.Cleanup(srv.Close)

	signer, err := links.NewSigner([]byte(strings.Repeat("d", 32)))
	require.NoError(t, err)

	stores := memory.NewStores()
	gallerySvc := galleries.NewService(stores.Galleries, stores.Clients, objectstore.NewMemoryStore(), events.Discard{}, galleries.Config{
		BaseURL:    "https://studio.example.com",
		BcryptCost: bcrypt.MinCost,
	})

	svc, err := NewService(stores.Integrations, gallerySvc, signer, Config{
		AppKey:      "app-key",
		AppSecret:   "app-secret",
		RedirectURL: "https://studio.example.com/integrations/dropbox/callback",
		AuthURL:     srv.URL + "/oauth2/authorize",
		TokenURL:    srv.URL + "/oauth2/token",
		APIURL:      srv.URL,
		ContentURL:  srv.URL,
		AppURL:      "https://app.example.com",
		HTTPClient:  srv.Client(),
		API:         apiclient.Config{MaxTries: 3, RatePerSecond: 1000, Burst: 100, InitialInterval: time.Millisecond},
	})
	require.NoError(t, err)
	gallerySvc.SetRemoteFetcher(svc)

	orgID := uuid.Must(uuid.NewV7())
	client := &models.Client{ClientID: uuid.Must(uuid.NewV7()), OrgID: orgID, Name: "Ada", Email: "ada@example.com"}
	require.NoError(t, stores.Clients.Create(context.Background(), client))

	return &fixture{
		svc:       svc,
		galleries: gallerySvc,
		stores:    stores,
		signer:    signer,
		fake:      fake,
		orgID:     orgID,
		clientID:  client.ClientID,
	}
}

func (f *fixture) connect(t *testing.T) {
	t.Helper()
	require.NoError(t, f.stores.Integrations.UpsertDropbox(context.Background(), &models.DropboxConfig{
		OrgID:          f.orgID,
		AccountID:      "dbid:abc",
		AccessToken:    "sl.old",
		RefreshToken:   "rt",
		TokenExpiresAt: time.Now().Add(-time.Minute),
	}))
}

func TestService_ConnectURL(t *testing.T) {
	f := newFixture(t)

	raw, err := f.svc.ConnectURL(f.orgID)
	require.NoError(t, err)
	u, err := url.Parse(raw)
	require.NoError(t, err)
	require.Equal(t, "offline", u.Query().Get("token_access_type"))
	require.Equal(t, "app-key", u.Query().Get("client_id"))
}

func TestService_Callback(t *testing.T) {
	f := newFixture(t)
	state, err := f.signer.SignState(f.orgID, time.Minute)
	require.NoError(t, err)

	tests := []struct {
		name    string
		query   url.Values
		wantKey string
		want    string
	}{
		{name: "missing code", query: url.Values{"state": {state}}, wantKey: "error", want: integrations.ErrorMissingParams},
		{name: "bad state", query: url.Values{"code": {"c"}, "state": {"x.y"}}, wantKey: "error", want: integrations.ErrorInvalidState},
		{name: "connected", query: url.Values{"code": {"c"}, "state": {state}}, wantKey: "success", want: integrations.SuccessDropboxConnected},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/integrations/dropbox/callback?"+tt.query.Encode(), nil)
			rec := httptest.NewRecorder()
			f.svc.CallbackHandler(rec, req)

			require.Equal(t, http.StatusFound, rec.Code)
			loc, err := url.Parse(rec.Header().Get("Location"))
			require.NoError(t, err)
			require.Equal(t, tt.want, loc.Query().Get(tt.wantKey))
		})
	}

	cfg, err := f.svc.Get(context.Background(), f.orgID)
	require.NoError(t, err)
	require.Equal(t, "dbid:abc", cfg.AccountID)
	require.Equal(t, "sl.new", cfg.AccessToken)
	require.Equal(t, "rt", cfg.RefreshToken)
}

func TestService_ImportFolder(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.connect(t)
	f.fake.throttleOnce.Store(true)

	title := "Smith Wedding"
	g, err := f.galleries.Create(ctx, f.orgID, f.clientID, galleries.Settings{Title: &title})
	require.NoError(t, err)

	result, err := f.svc.ImportFolder(ctx, f.orgID, g.GalleryID, "clients/smith/")
	require.NoError(t, err)
	require.Len(t, result.Added, 2)
	require.Equal(t, 1, result.Skipped, "same filename in a different case is a duplicate")
	require.Equal(t, int32(2), f.fake.listCalls.Load(), "throttled request is retried")
	require.Equal(t, int32(1), f.fake.continueCalls.Load())

	require.Equal(t, "IMG_0001.JPG", result.Added[0].Filename)
	require.Equal(t, galleries.RemotePrefix+"id:1", result.Added[0].ObjectKey)

	saved, err := f.stores.Integrations.GetDropbox(ctx, f.orgID)
	require.NoError(t, err)
	require.Equal(t, "sl.new", saved.AccessToken, "expired token refreshed and saved")

	updated, err := f.galleries.Get(ctx, f.orgID, g.GalleryID)
	require.NoError(t, err)
	require.Equal(t, "/clients/smith", updated.DropboxFolder)

	// re-import from the remembered folder adds nothing
	again, err := f.svc.ImportFolder(ctx, f.orgID, g.GalleryID, "")
	require.NoError(t, err)
	require.Empty(t, again.Added)
	require.Equal(t, 3, again.Skipped)
}

func TestService_ImportFolderErrors(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	title := "Portraits"
	g, err := f.galleries.Create(ctx, f.orgID, f.clientID, galleries.Settings{Title: &title})
	require.NoError(t, err)

	_, err = f.svc.ImportFolder(ctx, f.orgID, g.GalleryID, "")
	require.ErrorIs(t, err, ErrFolderRequired)

	_, err = f.svc.ImportFolder(ctx, f.orgID, g.GalleryID, "/shoot")
	require.ErrorIs(t, err, integrations.ErrNotConnected)
}

func TestService_FetchThroughGalleryDownload(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.connect(t)

	title := "Smith Wedding"
	allow := true
	g, err := f.galleries.Create(ctx, f.orgID, f.clientID, galleries.Settings{Title: &title, AllowDownloads: &allow})
	require.NoError(t, err)

	result, err := f.svc.ImportFolder(ctx, f.orgID, g.GalleryID, "/clients/smith")
	require.NoError(t, err)

	_, err = f.galleries.Publish(ctx, f.orgID, g.GalleryID)
	require.NoError(t, err)
	_, err = f.galleries.Deliver(ctx, f.orgID, g.GalleryID)
	require.NoError(t, err)

	photo, data, err := f.galleries.Download(ctx, g.Slug, "", result.Added[0].PhotoID)
	require.NoError(t, err)
	require.Equal(t, "IMG_0001.JPG", photo.Filename)
	require.Equal(t, "jpeg-bytes", string(data))
	require.JSONEq(t, `{"path":"id:1"}`, f.fake.downloadArg.Load().(string))
}

func TestAPIArg(t *testing.T) {
	arg, err := apiArg(map[string]string{"path": "/Fotos/Café ☕.jpg"})
	require.NoError(t, err)
	require.Equal(t, `{"path":"/Fotos/Caf\u00e9 \u2615.jpg"}`, arg)
}

func TestNormalizeFolder(t *testing.T) {
	tests := map[string]string{
		"":               "",
		"/":              "",
		" clients/a/ ":   "/clients/a",
		"/clients//b":    "/clients/b",
		"id:a4ayc_80_OE": "id:a4ayc_80_OE",
	}
	for in, want := range tests {
		require.Equal(t, want, normalizeFolder(in), in)
	}
}
