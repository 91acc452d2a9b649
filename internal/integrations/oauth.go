package integrations

import (
	"context"
	"fmt"
	"net/http"

	"golang.org/x/oauth2"
)

// TokenClient returns an HTTP client authorized with current, refreshing the
// token first when it has expired. save receives the new token whenever the
// vendor issued one.
func TokenClient(ctx context.Context, cfg *oauth2.Config, current *oauth2.Token, save func(*oauth2.Token) error) (*http.Client, error) {
	fresh, err := cfg.TokenSource(ctx, current).Token()
	if err != nil {
		return nil, fmt.Errorf("failed to refresh token: %w", err)
	}

	if fresh.AccessToken != current.AccessToken {
		if fresh.RefreshToken == "" {
			fresh.RefreshToken = current.RefreshToken
		}
		if err := save(fresh); err != nil {
			return nil, fmt.Errorf("failed to save refreshed token: %w", err)
		}
	}

	return oauth2.NewClient(ctx, oauth2.StaticTokenSource(fresh)), nil
}
