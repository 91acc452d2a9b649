package auth

import (
	"context"
	"crypto/rsa"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrMissingToken      = errors.New("missing bearer token")
	ErrUnauthorizedParty = errors.New("token issued for an unknown origin")
)

// KeySource resolves signing keys by kid.
type KeySource interface {
	GetKey(ctx context.Context, jwksURL, kid string) (*rsa.PublicKey, error)
}

type ClerkConfig struct {
	Issuer            string   // Clerk frontend API URL, e.g. https://clerk.example.com
	JWKSURL           string   // defaults to <issuer>/.well-known/jwks.json
	AuthorizedParties []string // allowed azp origins; empty disables the check
	Leeway            time.Duration
}

// SessionClaims are the claims of a Clerk session token.
type SessionClaims struct {
	jwt.RegisteredClaims
	AuthorizedParty string `json:"azp,omitempty"`
	SessionID       string `json:"sid,omitempty"`
}

// Verifier checks Clerk session tokens.
type Verifier struct {
	cfg  ClerkConfig
	keys KeySource
}

func NewVerifier(cfg ClerkConfig, keys KeySource) (*Verifier, error) {
	if cfg.Issuer == "" {
		return nil, errors.New("clerk issuer is required")
	}
	cfg.Issuer = strings.TrimRight(cfg.Issuer, "/")
	if cfg.JWKSURL == "" {
		cfg.JWKSURL = cfg.Issuer + "/.well-known/jwks.json"
	}
	if cfg.Leeway == 0 {
		cfg.Leeway = 5 * time.Second
	}
	return &Verifier{cfg: cfg, keys: keys}, nil
}

// Verify checks the signature, issuer, expiry and authorized party of a token.
func (v *Verifier) Verify(ctx context.Context, tokenString string) (*SessionClaims, error) {
	if tokenString == "" {
		return nil, ErrMissingToken
	}

	claims := &SessionClaims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		kid, ok := t.Header["kid"].(string)
		if !ok || kid == "" {
			return nil, errors.New("missing kid")
		}
		return v.keys.GetKey(ctx, v.cfg.JWKSURL, kid)
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithIssuer(v.cfg.Issuer),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(v.cfg.Leeway),
	)
	if err != nil {
		return nil, fmt.Errorf("invalid token: %w", err)
	}

	if claims.Subject == "" {
		return nil, errors.New("invalid token: missing subject")
	}

	if len(v.cfg.AuthorizedParties) > 0 && !slices.Contains(v.cfg.AuthorizedParties, claims.AuthorizedParty) {
		return nil, fmt.Errorf("%w: %q", ErrUnauthorizedParty, claims.AuthorizedParty)
	}

	return claims, nil
}
