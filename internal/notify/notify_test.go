package notify

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSendGridSender(t *testing.T) {
	var gotAuth string
	var gotBody map[string]any
	status := http.StatusAccepted

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v3/mail/send", r.URL.Path)
		gotAuth = r.Header.Get("Authorization")
		data, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(data, &gotBody))
		w.WriteHeader(status)
	}))
	defer srv.Close()

	sender, err := NewSendGridSender(SendGridConfig{
		APIKey:    "SG.test",
		FromEmail: "studio@example.com",
		FromName:  "Studio",
		Host:      srv.URL,
	})
	require.NoError(t, err)

	msg := Message{To: "client@example.com", ToName: "Client", Subject: "Invoice INV-2026-0001", Text: "Hello"}

	t.Run("accepted", func(t *testing.T) {
		require.NoError(t, sender.Send(context.Background(), msg))
		require.Equal(t, "Bearer SG.test", gotAuth)
		require.Equal(t, "Invoice INV-2026-0001", gotBody["subject"])
	})

	t.Run("rejected", func(t *testing.T) {
		status = http.StatusBadRequest
		require.ErrorContains(t, sender.Send(context.Background(), msg), "status 400")
	})

	t.Run("no recipient", func(t *testing.T) {
		require.ErrorIs(t, sender.Send(context.Background(), Message{Subject: "x"}), ErrNoRecipient)
	})
}

func TestNewSendGridSender_Validation(t *testing.T) {
	_, err := NewSendGridSender(SendGridConfig{FromEmail: "a@example.com"})
	require.Error(t, err)
	_, err = NewSendGridSender(SendGridConfig{APIKey: "k"})
	require.Error(t, err)
}

func TestLogSender(t *testing.T) {
	require.NoError(t, LogSender{}.Send(context.Background(), Message{To: "a@example.com"}))
	require.ErrorIs(t, LogSender{}.Send(context.Background(), Message{}), ErrNoRecipient)
}
