package memory

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/wolfeidau/studioos/internal/models"
	"github.com/wolfeidau/studioos/internal/store"
)

func newTestClient(orgID uuid.UUID, name, email string) *models.Client {
	return &models.Client{
		ClientID:  uuid.Must(uuid.NewV7()),
		OrgID:     orgID,
		Name:      name,
		Email:     email,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
}

func TestClientStore(t *testing.T) {
	ctx := context.Background()
	orgA := uuid.Must(uuid.NewV7())
	orgB := uuid.Must(uuid.NewV7())

	t.Run("email unique per organization", func(t *testing.T) {
		st := NewClientStore()
		require.NoError(t, st.Create(ctx, newTestClient(orgA, "Ada", "ada@example.com")))
		require.ErrorIs(t, st.Create(ctx, newTestClient(orgA, "Ada 2", "ada@example.com")), store.ErrClientAlreadyExists)
		require.NoError(t, st.Create(ctx, newTestClient(orgB, "Ada", "ada@example.com")))
	})

	t.Run("tenant isolation", func(t *testing.T) {
		st := NewClientStore()
		c := newTestClient(orgA, "Ada", "ada@example.com")
		require.NoError(t, st.Create(ctx, c))

		_, err := st.Get(ctx, orgB, c.ClientID)
		require.ErrorIs(t, err, store.ErrClientNotFound)

		require.ErrorIs(t, st.Delete(ctx, orgB, c.ClientID), store.ErrClientNotFound)

		c.OrgID = orgB
		require.ErrorIs(t, st.Update(ctx, c), store.ErrClientNotFound)
	})

	t.Run("list with search", func(t *testing.T) {
		st := NewClientStore()
		require.NoError(t, st.Create(ctx, newTestClient(orgA, "zoe", "zoe@example.com")))
		require.NoError(t, st.Create(ctx, newTestClient(orgA, "Ada", "ada@lovelace.dev")))
		require.NoError(t, st.Create(ctx, newTestClient(orgB, "Bob", "bob@example.com")))

		all, err := st.List(ctx, orgA, "")
		require.NoError(t, err)
		require.Len(t, all, 2)
		require.Equal(t, "Ada", all[0].Name)

		found, err := st.List(ctx, orgA, " LOVELACE ")
		require.NoError(t, err)
		require.Len(t, found, 1)
		require.Equal(t, "Ada", found[0].Name)
	})
}
