package auth

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/wolfeidau/studioos/internal/models"
	"github.com/wolfeidau/studioos/internal/store"
	"github.com/wolfeidau/studioos/internal/store/memory"
)

type jwksServer struct {
	*httptest.Server
	key      *rsa.PrivateKey
	kid      string
	requests atomic.Int32
}

func newJWKSServer(t *testing.T) *jwksServer {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	s := &jwksServer{key: key, kid: "ins_test_1"}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.requests.Add(1)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"keys": []map[string]any{
				{
					"kty": "RSA",
					"kid": s.kid,
					"use": "sig",
					"alg": "RS256",
					"n":   base64.RawURLEncoding.EncodeToString(key.N.Bytes()),
					"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(key.E)).Bytes()),
				},
				{"kty": "EC", "kid": "ignored", "crv": "P-256"},
			},
		})
	}))
	t.Cleanup(s.Close)
	return s
}

func (s *jwksServer) sign(t *testing.T, claims SessionClaims, mutate ...func(*jwt.Token)) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = s.kid
	for _, m := range mutate {
		m(token)
	}
	signed, err := token.SignedString(s.key)
	require.NoError(t, err)
	return signed
}

func validClaims(issuer string) SessionClaims {
	now := time.Now()
	return SessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   "user_2abc",
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now.Add(-time.Minute)),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Minute)),
		},
		AuthorizedParty: "https://app.example.com",
		SessionID:       "sess_1",
	}
}

func TestNewVerifier(t *testing.T) {
	_, err := NewVerifier(ClerkConfig{}, NewKeyCache(nil))
	require.Error(t, err)

	v, err := NewVerifier(ClerkConfig{Issuer: "https://clerk.example.com/"}, NewKeyCache(nil))
	require.NoError(t, err)
	require.Equal(t, "https://clerk.example.com/.well-known/jwks.json", v.cfg.JWKSURL)
}

func TestVerifier_Verify(t *testing.T) {
	jwks := newJWKSServer(t)
	issuer := jwks.URL

	v, err := NewVerifier(ClerkConfig{
		Issuer:            issuer,
		AuthorizedParties: []string{"https://app.example.com"},
	}, NewKeyCache(jwks.Client()))
	require.NoError(t, err)

	otherKey, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	tests := []struct {
		name    string
		token   func() string
		wantErr bool
	}{
		{
			name:  "valid",
			token: func() string { return jwks.sign(t, validClaims(issuer)) },
		},
		{
			name:    "empty",
			token:   func() string { return "" },
			wantErr: true,
		},
		{
			name: "expired",
			token: func() string {
				c := validClaims(issuer)
				c.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Hour))
				return jwks.sign(t, c)
			},
			wantErr: true,
		},
		{
			name: "not yet valid",
			token: func() string {
				c := validClaims(issuer)
				c.NotBefore = jwt.NewNumericDate(time.Now().Add(time.Hour))
				return jwks.sign(t, c)
			},
			wantErr: true,
		},
		{
			name: "missing expiry",
			token: func() string {
				c := validClaims(issuer)
				c.ExpiresAt = nil
				return jwks.sign(t, c)
			},
			wantErr: true,
		},
		{
			name: "wrong issuer",
			token: func() string {
				c := validClaims(issuer)
				c.Issuer = "https://evil.example.com"
				return jwks.sign(t, c)
			},
			wantErr: true,
		},
		{
			name: "unknown origin",
			token: func() string {
				c := validClaims(issuer)
				c.AuthorizedParty = "https://evil.example.com"
				return jwks.sign(t, c)
			},
			wantErr: true,
		},
		{
			name: "unknown kid",
			token: func() string {
				return jwks.sign(t, validClaims(issuer), func(tok *jwt.Token) { tok.Header["kid"] = "nope" })
			},
			wantErr: true,
		},
		{
			name: "wrong key",
			token: func() string {
				token := jwt.NewWithClaims(jwt.SigningMethodRS256, validClaims(issuer))
				token.Header["kid"] = jwks.kid
				s, err := token.SignedString(otherKey)
				require.NoError(t, err)
				return s
			},
			wantErr: true,
		},
		{
			name: "hmac algorithm rejected",
			token: func() string {
				token := jwt.NewWithClaims(jwt.SigningMethodHS256, validClaims(issuer))
				token.Header["kid"] = jwks.kid
				s, err := token.SignedString([]byte("secret"))
				require.NoError(t, err)
				return s
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			claims, err := v.Verify(context.Background(), tt.token())
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, "user_2abc", claims.Subject)
			require.Equal(t, "sess_1", claims.SessionID)
		})
	}
}

func TestKeyCache_CachesKeySet(t *testing.T) {
	jwks := newJWKSServer(t)
	cache := NewKeyCache(jwks.Client())
	ctx := context.Background()

	for range 3 {
		key, err := cache.GetKey(ctx, jwks.URL, jwks.kid)
		require.NoError(t, err)
		require.Equal(t, jwks.key.PublicKey.N, key.N)
	}
	require.Equal(t, int32(1), jwks.requests.Load())

	cache.now = func() time.Time { return time.Now().Add(2 * DefaultKeyTTL) }
	_, err := cache.GetKey(ctx, jwks.URL, jwks.kid)
	require.NoError(t, err)
	require.Equal(t, int32(2), jwks.requests.Load())
}

func TestKeyCache_UnknownKidRefetchLimit(t *testing.T) {
	jwks := newJWKSServer(t)
	cache := NewKeyCache(jwks.Client())
	ctx := context.Background()

	start := time.Now()
	cache.now = func() time.Time { return start }

	_, err := cache.GetKey(ctx, jwks.URL, jwks.kid)
	require.NoError(t, err)

	for _, kid := range []string{"ins_unknown_1", "ins_unknown_2", "ins_unknown_3"} {
		_, err := cache.GetKey(ctx, jwks.URL, kid)
		require.ErrorContains(t, err, "kid not found")
	}
	require.Equal(t, int32(1), jwks.requests.Load())

	cache.now = func() time.Time { return start.Add(DefaultRefetchInterval) }
	_, err = cache.GetKey(ctx, jwks.URL, "ins_unknown_1")
	require.ErrorContains(t, err, "kid not found")
	require.Equal(t, int32(2), jwks.requests.Load())

	key, err := cache.GetKey(ctx, jwks.URL, jwks.kid)
	require.NoError(t, err)
	require.Equal(t, jwks.key.PublicKey.N, key.N)

	_, err = cache.GetKey(ctx, jwks.URL, "ins_unknown_4")
	require.ErrorContains(t, err, "kid not found")
	require.Equal(t, int32(2), jwks.requests.Load())
}

func TestParseJWK(t *testing.T) {
	_, err := parseJWK(map[string]any{"kty": "EC"})
	require.Error(t, err)

	_, err = parseJWK(map[string]any{"kty": "RSA", "n": "AQAB"})
	require.Error(t, err)

	key, err := parseJWK(map[string]any{"kty": "RSA", "n": "AQAB", "e": "AQAB"})
	require.NoError(t, err)
	require.Equal(t, 65537, key.E)
}

func TestAuthenticator_Middleware(t *testing.T) {
	ctx := context.Background()
	jwks := newJWKSServer(t)
	v, err := NewVerifier(ClerkConfig{Issuer: jwks.URL}, NewKeyCache(jwks.Client()))
	require.NoError(t, err)

	stores := memory.NewStores()
	member := &models.Member{
		MemberID:    uuid.Must(uuid.NewV7()),
		OrgID:       uuid.Must(uuid.NewV7()),
		ClerkUserID: "user_2abc",
		Role:        models.RoleStaff,
	}
	require.NoError(t, stores.Members.Create(ctx, member))

	var gotIdentity *Identity
	var gotPrincipal *Principal
	handler := NewAuthenticator(v, stores.Members).Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotIdentity = IdentityFromContext(r.Context())
		gotPrincipal = PrincipalFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	t.Run("missing token", func(t *testing.T) {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/clients", nil))
		require.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("member", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/clients", nil)
		req.Header.Set("Authorization", "Bearer "+jwks.sign(t, validClaims(jwks.URL)))
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		require.Equal(t, http.StatusNoContent, rec.Code)
		require.Equal(t, "user_2abc", gotIdentity.ClerkUserID)
		require.NotNil(t, gotPrincipal)
		require.Equal(t, member.OrgID, gotPrincipal.OrgID)
		require.Equal(t, models.RoleStaff, gotPrincipal.Role)
	})

	t.Run("signed in without organization", func(t *testing.T) {
		c := validClaims(jwks.URL)
		c.Subject = "user_new"
		req := httptest.NewRequest(http.MethodGet, "/api/v1/org", nil)
		req.Header.Set("Authorization", "Bearer "+jwks.sign(t, c))
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		require.Equal(t, http.StatusNoContent, rec.Code)
		require.Equal(t, "user_new", gotIdentity.ClerkUserID)
		require.Nil(t, gotPrincipal)
	})
}

func TestNoAuth(t *testing.T) {
	stores := memory.NewStores()
	var got *Identity
	handler := NoAuth(stores.Members)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = IdentityFromContext(r.Context())
		require.Nil(t, PrincipalFromContext(r.Context()))
	}))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, DevUserID, got.ClerkUserID)

	_, err := stores.Members.GetByClerkUser(context.Background(), DevUserID)
	require.ErrorIs(t, err, store.ErrMemberNotFound)
}
