package memory

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"github.com/wolfeidau/studioos/internal/models"
	"github.com/wolfeidau/studioos/internal/store"
)

func newTestOrg(slug string) *models.Organization {
	return &models.Organization{
		OrgID:              uuid.Must(uuid.NewV7()),
		Name:               "Studio " + slug,
		Slug:               slug,
		OwnerUserID:        "user_owner",
		Currency:           "usd",
		Timezone:           "UTC",
		PlatformFeePercent: decimal.RequireFromString("2.5"),
		CreatedAt:          time.Now(),
		UpdatedAt:          time.Now(),
	}
}

func TestOrganizationStore_Create(t *testing.T) {
	ctx := context.Background()

	t.Run("create and get", func(t *testing.T) {
		st := NewOrganizationStore()
		org := newTestOrg("north-light")

		require.NoError(t, st.Create(ctx, org))

		got, err := st.Get(ctx, org.OrgID)
		require.NoError(t, err)
		require.Equal(t, org.Name, got.Name)
		require.True(t, org.PlatformFeePercent.Equal(got.PlatformFeePercent))

		got, err = st.GetBySlug(ctx, "north-light")
		require.NoError(t, err)
		require.Equal(t, org.OrgID, got.OrgID)
	})

	t.Run("duplicate slug", func(t *testing.T) {
		st := NewOrganizationStore()
		require.NoError(t, st.Create(ctx, newTestOrg("dup")))

		err := st.Create(ctx, newTestOrg("dup"))
		require.ErrorIs(t, err, store.ErrSlugTaken)
	})

	t.Run("returned value is a copy", func(t *testing.T) {
		st := NewOrganizationStore()
		org := newTestOrg("copy")
		require.NoError(t, st.Create(ctx, org))

		got, err := st.Get(ctx, org.OrgID)
		require.NoError(t, err)
		got.Name = "changed"

		again, err := st.Get(ctx, org.OrgID)
		require.NoError(t, err)
		require.Equal(t, org.Name, again.Name)
	})
}

func TestOrganizationStore_Update(t *testing.T) {
	ctx := context.Background()
	st := NewOrganizationStore()

	a := newTestOrg("a")
	b := newTestOrg("b")
	require.NoError(t, st.Create(ctx, a))
	require.NoError(t, st.Create(ctx, b))

	a.Slug = "b"
	require.ErrorIs(t, st.Update(ctx, a), store.ErrSlugTaken)

	a.Slug = "a2"
	require.NoError(t, st.Update(ctx, a))

	_, err := st.GetBySlug(ctx, "a")
	require.ErrorIs(t, err, store.ErrOrganizationNotFound)

	got, err := st.GetBySlug(ctx, "a2")
	require.NoError(t, err)
	require.Equal(t, a.OrgID, got.OrgID)

	missing := newTestOrg("missing")
	require.ErrorIs(t, st.Update(ctx, missing), store.ErrOrganizationNotFound)
}

func TestOrganizationStore_ListByOwner(t *testing.T) {
	ctx := context.Background()
	st := NewOrganizationStore()

	a := newTestOrg("a")
	b := newTestOrg("b")
	b.OwnerUserID = "user_other"
	require.NoError(t, st.Create(ctx, a))
	require.NoError(t, st.Create(ctx, b))

	orgs, err := st.ListByOwner(ctx, "user_owner")
	require.NoError(t, err)
	require.Len(t, orgs, 1)
	require.Equal(t, a.OrgID, orgs[0].OrgID)

	require.NoError(t, st.Delete(ctx, a.OrgID))
	require.ErrorIs(t, st.Delete(ctx, a.OrgID), store.ErrOrganizationNotFound)
}

func TestMemberStore(t *testing.T) {
	ctx := context.Background()
	st := NewMemberStore()
	orgID := uuid.Must(uuid.NewV7())

	member := &models.Member{
		MemberID:    uuid.Must(uuid.NewV7()),
		OrgID:       orgID,
		ClerkUserID: "user_1",
		Email:       "owner@example.com",
		Role:        models.RoleOwner,
		CreatedAt:   time.Now(),
	}
	require.NoError(t, st.Create(ctx, member))

	dup := *member
	dup.MemberID = uuid.Must(uuid.NewV7())
	require.ErrorIs(t, st.Create(ctx, &dup), store.ErrMemberAlreadyExists)

	got, err := st.GetByClerkUser(ctx, "user_1")
	require.NoError(t, err)
	require.Equal(t, models.RoleOwner, got.Role)

	members, err := st.ListByOrg(ctx, orgID)
	require.NoError(t, err)
	require.Len(t, members, 1)

	require.ErrorIs(t, st.Delete(ctx, uuid.Must(uuid.NewV7()), member.MemberID), store.ErrMemberNotFound)
	require.NoError(t, st.Delete(ctx, orgID, member.MemberID))

	_, err = st.GetByClerkUser(ctx, "user_1")
	require.ErrorIs(t, err, store.ErrMemberNotFound)
}
