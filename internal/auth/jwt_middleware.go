package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/wolfeidau/studioos/internal/models"
	"github.com/wolfeidau/studioos/internal/store"
)

// DevUserID is the Clerk user ID injected when authentication is disabled.
const DevUserID = "user_dev"

// Identity is the verified Clerk user behind a request.
type Identity struct {
	ClerkUserID string
	SessionID   string
}

// Principal is the organization member acting in a request.
type Principal struct {
	MemberID    uuid.UUID
	OrgID       uuid.UUID
	ClerkUserID string
	Role        string
}

// Can reports whether the principal's role grants perm.
func (p *Principal) Can(perm Permission) bool {
	return HasPermission(p.Role, perm)
}

type contextKey int

const (
	identityContextKey contextKey = iota
	principalContextKey
)

// IdentityFromContext returns nil for unauthenticated requests.
func IdentityFromContext(ctx context.Context) *Identity {
	identity, _ := ctx.Value(identityContextKey).(*Identity)
	return identity
}

// PrincipalFromContext returns nil when the user is not a member of any organization.
func PrincipalFromContext(ctx context.Context) *Principal {
	principal, _ := ctx.Value(principalContextKey).(*Principal)
	return principal
}

func WithIdentity(ctx context.Context, identity *Identity) context.Context {
	return context.WithValue(ctx, identityContextKey, identity)
}

func WithPrincipal(ctx context.Context, principal *Principal) context.Context {
	return context.WithValue(ctx, principalContextKey, principal)
}

// PrincipalFromMember builds the principal for a membership.
func PrincipalFromMember(m *models.Member) *Principal {
	return &Principal{
		MemberID:    m.MemberID,
		OrgID:       m.OrgID,
		ClerkUserID: m.ClerkUserID,
		Role:        m.Role,
	}
}

// MemberResolver finds a Clerk user's organization membership.
type MemberResolver interface {
	GetByClerkUser(ctx context.Context, clerkUserID string) (*models.Member, error)
}

// Authenticator verifies bearer tokens and resolves the caller's membership.
type Authenticator struct {
	verifier *Verifier
	members  MemberResolver
}

func NewAuthenticator(verifier *Verifier, members MemberResolver) *Authenticator {
	return &Authenticator{verifier: verifier, members: members}
}

// Middleware rejects requests without a valid Clerk session token.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		claims, err := a.verifier.Verify(ctx, extractBearerToken(r))
		if err != nil {
			zerolog.Ctx(ctx).Warn().Err(err).Msg("Failed to verify session token")
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		ctx, err = withMembership(ctx, a.members, &Identity{ClerkUserID: claims.Subject, SessionID: claims.SessionID})
		if err != nil {
			zerolog.Ctx(ctx).Error().Err(err).Msg("Failed to resolve membership")
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// NoAuth authenticates every request as DevUserID. For local development only.
func NoAuth(members MemberResolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, err := withMembership(r.Context(), members, &Identity{ClerkUserID: DevUserID})
			if err != nil {
				http.Error(w, "internal error", http.StatusInternalServerError)
				return
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func withMembership(ctx context.Context, members MemberResolver, identity *Identity) (context.Context, error) {
	ctx = WithIdentity(ctx, identity)

	member, err := members.GetByClerkUser(ctx, identity.ClerkUserID)
	if errors.Is(err, store.ErrMemberNotFound) {
		return ctx, nil
	}
	if err != nil {
		return ctx, err
	}

	principal := PrincipalFromMember(member)
	zerolog.Ctx(ctx).UpdateContext(func(c zerolog.Context) zerolog.Context {
		return c.Str("org_id", principal.OrgID.String()).Str("member_id", principal.MemberID.String())
	})
	return WithPrincipal(ctx, principal), nil
}

// extractBearerToken extracts the JWT from the Authorization header.
func extractBearerToken(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return ""
	}

	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
		return ""
	}

	return parts[1]
}
