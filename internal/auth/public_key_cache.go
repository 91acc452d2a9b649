package auth

import (
	"context"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"sync"
	"time"

	"github.com/gregjones/httpcache"
	"github.com/gregjones/httpcache/diskcache"
	"github.com/rs/zerolog/log"
)

// DefaultKeyTTL is how long a fetched key set is trusted before it is fetched again.
const DefaultKeyTTL = time.Hour

// DefaultRefetchInterval is the minimum gap between fetches of one JWKS URL
// triggered by an unknown kid.
const DefaultRefetchInterval = time.Minute

// NewJWKSClient returns an HTTP client that honours the JWKS endpoint's
// Cache-Control headers. An empty cacheDir keeps the cache in memory.
func NewJWKSClient(cacheDir string) *http.Client {
	if cacheDir == "" {
		return &http.Client{
			Timeout:   10 * time.Second,
			Transport: httpcache.NewTransport(httpcache.NewMemoryCache()),
		}
	}

	return &http.Client{
		Timeout:   10 * time.Second,
		Transport: httpcache.NewTransport(diskcache.New(cacheDir)),
	}
}

// KeyCache fetches RSA signing keys from JWKS endpoints and caches them by kid.
type KeyCache struct {
	httpClient      *http.Client
	ttl             time.Duration
	refetchInterval time.Duration
	now             func() time.Time

	mu    sync.RWMutex
	cache map[string]*cachedJWKS
}

type cachedJWKS struct {
	keys      map[string]*rsa.PublicKey // kid → public key
	fetchedAt time.Time
	expiresAt time.Time
}

func NewKeyCache(httpClient *http.Client) *KeyCache {
	if httpClient == nil {
		httpClient = NewJWKSClient("")
	}
	return &KeyCache{
		httpClient:      httpClient,
		ttl:             DefaultKeyTTL,
		refetchInterval: DefaultRefetchInterval,
		now:             time.Now,
		cache:           make(map[string]*cachedJWKS),
	}
}

// GetKey returns the key for kid, fetching the key set when it is missing or stale.
func (c *KeyCache) GetKey(ctx context.Context, jwksURL, kid string) (*rsa.PublicKey, error) {
	c.mu.RLock()
	cached, ok := c.cache[jwksURL]
	c.mu.RUnlock()

	if ok && c.now().Before(cached.expiresAt) {
		if key, ok := cached.keys[kid]; ok {
			return key, nil
		}
		// unknown kids must not turn every request into a fetch
		if c.now().Before(cached.fetchedAt.Add(c.refetchInterval)) {
			return nil, fmt.Errorf("kid not found in JWKS: %s", kid)
		}
	}

	log.Debug().Str("jwks_url", jwksURL).Str("kid", kid).Msg("Fetching JWKS")

	keys, err := c.fetch(ctx, jwksURL)
	if err != nil {
		return nil, err
	}

	now := c.now()
	c.mu.Lock()
	c.cache[jwksURL] = &cachedJWKS{
		keys:      keys,
		fetchedAt: now,
		expiresAt: now.Add(c.ttl),
	}
	c.mu.Unlock()

	key, ok := keys[kid]
	if !ok {
		return nil, fmt.Errorf("kid not found in JWKS: %s", kid)
	}

	log.Info().Str("kid", kid).Int("total_keys", len(keys)).Msg("Cached JWKS")
	return key, nil
}

func (c *KeyCache) fetch(ctx context.Context, jwksURL string) (map[string]*rsa.PublicKey, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, jwksURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create JWKS request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch JWKS: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("JWKS request failed: %s", resp.Status)
	}

	var jwks struct {
		Keys []map[string]any `json:"keys"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&jwks); err != nil {
		return nil, fmt.Errorf("failed to decode JWKS: %w", err)
	}

	keys := make(map[string]*rsa.PublicKey)
	for _, jwk := range jwks.Keys {
		kid, ok := jwk["kid"].(string)
		if !ok {
			log.Warn().Msg("JWK missing kid")
			continue
		}

		key, err := parseJWK(jwk)
		if err != nil {
			log.Warn().Err(err).Str("kid", kid).Msg("Failed to parse JWK")
			continue
		}
		keys[kid] = key
	}
	return keys, nil
}

// parseJWK parses an RSA JSON Web Key.
func parseJWK(jwk map[string]any) (*rsa.PublicKey, error) {
	kty, ok := jwk["kty"].(string)
	if !ok || kty != "RSA" {
		return nil, fmt.Errorf("unsupported key type: %v", jwk["kty"])
	}

	nStr, ok := jwk["n"].(string)
	if !ok {
		return nil, fmt.Errorf("missing modulus")
	}
	eStr, ok := jwk["e"].(string)
	if !ok {
		return nil, fmt.Errorf("missing exponent")
	}

	nBytes, err := base64.RawURLEncoding.DecodeString(nStr)
	if err != nil {
		return nil, fmt.Errorf("failed to decode modulus: %w", err)
	}
	eBytes, err := base64.RawURLEncoding.DecodeString(eStr)
	if err != nil {
		return nil, fmt.Errorf("failed to decode exponent: %w", err)
	}

	e := new(big.Int).SetBytes(eBytes)
	if !e.IsInt64() || e.Int64() < 3 {
		return nil, fmt.Errorf("invalid exponent")
	}

	return &rsa.PublicKey{
		N: new(big.Int).SetBytes(nBytes),
		E: int(e.Int64()),
	}, nil
}
