package links

import (
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

var testSecret = []byte("test-secret-key-min-32-bytes-long!!")

func TestNewSigner(t *testing.T) {
	_, err := NewSigner([]byte("short"))
	require.Error(t, err)

	s, err := NewSigner(testSecret)
	require.NoError(t, err)
	require.NotNil(t, s)
}

func TestSigner_SignVerify(t *testing.T) {
	s, err := NewSigner(testSecret)
	require.NoError(t, err)

	orgID := uuid.Must(uuid.NewV7())
	id := uuid.Must(uuid.NewV7())

	token, err := s.Sign(KindInvoice, orgID, id, time.Hour)
	require.NoError(t, err)

	t.Run("valid", func(t *testing.T) {
		claims, err := s.Verify(token, KindInvoice)
		require.NoError(t, err)
		require.Equal(t, orgID, claims.OrgID)
		require.Equal(t, id, claims.ID)
	})

	t.Run("wrong kind", func(t *testing.T) {
		_, err := s.Verify(token, KindContract)
		require.ErrorIs(t, err, ErrInvalidLink)
	})

	t.Run("tampered payload", func(t *testing.T) {
		other, err := s.Sign(KindInvoice, orgID, uuid.Must(uuid.NewV7()), time.Hour)
		require.NoError(t, err)

		payload, _, _ := strings.Cut(other, ".")
		_, sig, _ := strings.Cut(token, ".")
		_, err = s.Verify(payload+"."+sig, KindInvoice)
		require.ErrorIs(t, err, ErrInvalidLink)
	})

	t.Run("different secret", func(t *testing.T) {
		other, err := NewSigner([]byte("another-secret-key-min-32-bytes-long"))
		require.NoError(t, err)
		_, err = other.Verify(token, KindInvoice)
		require.ErrorIs(t, err, ErrInvalidLink)
	})

	t.Run("malformed", func(t *testing.T) {
		for _, bad := range []string{"", "abc", "abc.", ".abc", "!!.!!"} {
			_, err := s.Verify(bad, KindInvoice)
			require.ErrorIs(t, err, ErrInvalidLink, bad)
		}
	})

	t.Run("expired", func(t *testing.T) {
		s.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
		defer func() { s.now = time.Now }()

		_, err := s.Verify(token, KindInvoice)
		require.ErrorIs(t, err, ErrExpiredLink)
	})
}

func TestSigner_SignState(t *testing.T) {
	s, err := NewSigner(testSecret)
	require.NoError(t, err)

	orgID := uuid.Must(uuid.NewV7())

	a, err := s.SignState(orgID, 10*time.Minute)
	require.NoError(t, err)
	b, err := s.SignState(orgID, 10*time.Minute)
	require.NoError(t, err)
	require.NotEqual(t, a, b)

	claims, err := s.Verify(a, KindOAuthState)
	require.NoError(t, err)
	require.Equal(t, orgID, claims.OrgID)
	require.NotEmpty(t, claims.Nonce)
}
