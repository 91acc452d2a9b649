package apiclient

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestClient() *Client {
	return New(Config{
		Vendor:          "test",
		RatePerSecond:   1000,
		Burst:           100,
		MaxTries:        3,
		InitialInterval: time.Millisecond,
	})
}

func get(url string) func(ctx context.Context) (*http.Request, error) {
	return func(ctx context.Context) (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	}
}

func TestClient_Do(t *testing.T) {
	tests := []struct {
		name      string
		statuses  []int
		wantCalls int32
		wantErr   bool
		wantCode  int
	}{
		{name: "success", statuses: []int{200}, wantCalls: 1},
		{name: "retries server errors", statuses: []int{503, 502, 200}, wantCalls: 3},
		{name: "retries rate limit", statuses: []int{429, 200}, wantCalls: 2},
		{name: "client error is permanent", statuses: []int{400, 200}, wantCalls: 1, wantErr: true, wantCode: 400},
		{name: "gives up after max tries", statuses: []int{500, 500, 500, 500}, wantCalls: 3, wantErr: true, wantCode: 500},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls atomic.Int32
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				n := calls.Add(1)
				w.WriteHeader(tt.statuses[n-1])
				_, _ = w.Write([]byte(`{"ok":true}`))
			}))
			defer srv.Close()

			resp, err := newTestClient().Do(context.Background(), srv.Client(), get(srv.URL))
			require.Equal(t, tt.wantCalls, calls.Load())
			if tt.wantErr {
				require.Error(t, err)
				require.True(t, IsStatus(err, tt.wantCode), "got %v", err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, http.StatusOK, resp.StatusCode)
			require.JSONEq(t, `{"ok":true}`, string(resp.Body))
		})
	}
}

func TestClient_DoCancelled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newTestClient().Do(ctx, srv.Client(), get(srv.URL))
	require.Error(t, err)
}

func TestClient_DoBodyLimit(t *testing.T) {
	tests := []struct {
		name    string
		size    int
		wantErr bool
	}{
		{name: "at the limit", size: 1024},
		{name: "over the limit", size: 1025, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls atomic.Int32
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				calls.Add(1)
				_, _ = w.Write([]byte(strings.Repeat("x", tt.size)))
			}))
			defer srv.Close()

			c := New(Config{Vendor: "test", RatePerSecond: 1000, Burst: 100, MaxTries: 3, InitialInterval: time.Millisecond, MaxBodyBytes: 1024})
			resp, err := c.Do(context.Background(), srv.Client(), get(srv.URL))
			if tt.wantErr {
				require.ErrorIs(t, err, ErrBodyTooLarge)
				require.Nil(t, resp)
				require.Equal(t, int32(1), calls.Load())
				return
			}
			require.NoError(t, err)
			require.Len(t, resp.Body, tt.size)
		})
	}
}
