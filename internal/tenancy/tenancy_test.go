package tenancy

import (
	"context"
	"strings"
	"testing"
	_ "time/tzdata"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"github.com/wolfeidau/studioos/internal/models"
	"github.com/wolfeidau/studioos/internal/money"
	"github.com/wolfeidau/studioos/internal/store"
	"github.com/wolfeidau/studioos/internal/store/memory"
)

func newService() *Service {
	return NewService(memory.NewOrganizationStore(), memory.NewMemberStore(), Config{
		DefaultFeePercent: decimal.RequireFromString("2.5"),
	})
}

func TestSlugify(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"simple", "Golden Hour Photo", "golden-hour-photo"},
		{"punctuation", "  Jane's  Studio!! ", "jane-s-studio"},
		{"unicode only", "ßß", "studio"},
		{"empty", "", "studio"},
		{"digits", "Studio 54", "studio-54"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, Slugify(tt.in))
		})
	}
	require.LessOrEqual(t, len(Slugify(strings.Repeat("a ", 100))), 48)
}

func TestProvision(t *testing.T) {
	ctx := context.Background()
	s := newService()

	org, member, err := s.Provision(ctx, ProvisionInput{
		ClerkUserID: "user_1",
		Email:       " Owner@Example.com ",
		Name:        "Owner",
		OrgName:     "Golden Hour",
	})
	require.NoError(t, err)
	require.Equal(t, "golden-hour", org.Slug)
	require.Equal(t, "usd", org.Currency)
	require.Equal(t, "UTC", org.Timezone)
	require.True(t, org.PlatformFeePercent.Equal(decimal.RequireFromString("2.5")))
	require.Equal(t, models.RoleOwner, member.Role)
	require.Equal(t, "owner@example.com", member.Email)
	require.Equal(t, org.OrgID, member.OrgID)

	t.Run("slug conflict gets a suffix", func(t *testing.T) {
		org2, _, err := s.Provision(ctx, ProvisionInput{ClerkUserID: "user_2", OrgName: "Golden Hour"})
		require.NoError(t, err)
		require.True(t, strings.HasPrefix(org2.Slug, "golden-hour-"))
		require.NotEqual(t, org.Slug, org2.Slug)
		require.Equal(t, strings.ToLower(org2.Slug), org2.Slug)
	})

	t.Run("user already a member", func(t *testing.T) {
		_, _, err := s.Provision(ctx, ProvisionInput{ClerkUserID: "user_1", OrgName: "Another"})
		require.ErrorIs(t, err, store.ErrMemberAlreadyExists)
	})

	t.Run("name required", func(t *testing.T) {
		_, _, err := s.Provision(ctx, ProvisionInput{ClerkUserID: "user_3", OrgName: "  "})
		require.ErrorIs(t, err, ErrNameRequired)
	})
}

func TestConnectStripe(t *testing.T) {
	ctx := context.Background()
	s := newService()
	org, _, err := s.Provision(ctx, ProvisionInput{ClerkUserID: "user_1", OrgName: "Studio"})
	require.NoError(t, err)

	for _, bad := range []string{"", "acct_", "cus_123", "ACCT_123"} {
		_, err := s.ConnectStripe(ctx, org.OrgID, bad)
		require.ErrorIs(t, err, ErrInvalidStripeAccount, bad)
	}

	updated, err := s.ConnectStripe(ctx, org.OrgID, "acct_1Abc")
	require.NoError(t, err)
	require.True(t, updated.HasStripe())

	_, err = s.ConnectStripe(ctx, uuid.Must(uuid.NewV7()), "acct_1Abc")
	require.ErrorIs(t, err, store.ErrOrganizationNotFound)
}

func TestUpdateSettings(t *testing.T) {
	ctx := context.Background()
	s := newService()
	org, _, err := s.Provision(ctx, ProvisionInput{ClerkUserID: "user_1", OrgName: "Studio"})
	require.NoError(t, err)

	str := func(v string) *string { return &v }
	dec := func(v string) *decimal.Decimal { d := decimal.RequireFromString(v); return &d }

	tests := []struct {
		name    string
		upd     SettingsUpdate
		wantErr error
	}{
		{"currency", SettingsUpdate{Currency: str("EUR")}, nil},
		{"bad currency", SettingsUpdate{Currency: str("euro")}, ErrInvalidCurrency},
		{"timezone", SettingsUpdate{Timezone: str("Australia/Melbourne")}, nil},
		{"bad timezone", SettingsUpdate{Timezone: str("Mars/Base")}, ErrInvalidTimezone},
		{"fee", SettingsUpdate{PlatformFeePercent: dec("5")}, nil},
		{"fee too high", SettingsUpdate{PlatformFeePercent: dec("100.01")}, money.ErrInvalidFeePercent},
		{"blank name", SettingsUpdate{Name: str(" ")}, ErrNameRequired},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.UpdateSettings(ctx, org.OrgID, tt.upd)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
		})
	}

	got, err := s.Get(ctx, org.OrgID)
	require.NoError(t, err)
	require.Equal(t, "eur", got.Currency)
	require.Equal(t, "Australia/Melbourne", got.Timezone)
	require.True(t, got.PlatformFeePercent.Equal(decimal.NewFromInt(5)))
}

func TestMembers(t *testing.T) {
	ctx := context.Background()
	s := newService()
	org, owner, err := s.Provision(ctx, ProvisionInput{ClerkUserID: "user_1", OrgName: "Studio"})
	require.NoError(t, err)

	_, err = s.AddMember(ctx, org.OrgID, "user_2", "a@example.com", "A", models.RoleOwner)
	require.ErrorIs(t, err, ErrInvalidRole)

	staff, err := s.AddMember(ctx, org.OrgID, "user_2", "a@example.com", "A", models.RoleStaff)
	require.NoError(t, err)

	require.ErrorIs(t, s.RemoveMember(ctx, org.OrgID, owner.MemberID), ErrCannotRemoveOwner)
	require.NoError(t, s.RemoveMember(ctx, org.OrgID, staff.MemberID))
	require.ErrorIs(t, s.RemoveMember(ctx, org.OrgID, staff.MemberID), store.ErrMemberNotFound)

	members, err := s.ListMembers(ctx, org.OrgID)
	require.NoError(t, err)
	require.Len(t, members, 1)
}
