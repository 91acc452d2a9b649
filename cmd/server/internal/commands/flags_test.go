package commands

import (
	"strings"
	"testing"
	"time"

	"github.com/alecthomas/kong"
	"github.com/stretchr/testify/require"
)

func TestValidateSecret(t *testing.T) {
	tests := []struct {
		name    string
		secret  string
		wantErr string
	}{
		{name: "empty", secret: "", wantErr: "is required"},
		{name: "short", secret: "too-short", wantErr: "at least 32 bytes"},
		{name: "ok", secret: strings.Repeat("x", 32)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateSecret("signing secret", tt.secret)
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestAppFlags_Validate(t *testing.T) {
	valid := func() AppFlags {
		return AppFlags{
			SigningSecret: strings.Repeat("s", 32),
			StoreFlags:    StoreFlags{StoreType: "memory"},
			Stripe:        StripeFlags{PlatformFeePercent: "2.5"},
		}
	}

	tests := []struct {
		name    string
		mutate  func(*AppFlags)
		wantErr string
	}{
		{name: "memory store", mutate: func(*AppFlags) {}},
		{name: "postgres without conn string", mutate: func(f *AppFlags) { f.StoreType = "postgres" }, wantErr: "connection string is required"},
		{name: "stripe without webhook secret", mutate: func(f *AppFlags) { f.Stripe.SecretKey = "sk_test_1" }, wantErr: "webhook secret"},
		{name: "quickbooks without secret", mutate: func(f *AppFlags) { f.QuickBooks.ClientID = "qb" }, wantErr: "quickbooks client secret"},
		{name: "dropbox without secret", mutate: func(f *AppFlags) { f.Dropbox.AppKey = "dbx" }, wantErr: "dropbox app secret"},
		{name: "fee over 100", mutate: func(f *AppFlags) { f.Stripe.PlatformFeePercent = "101" }, wantErr: "between 0 and 100"},
		{name: "fee not a number", mutate: func(f *AppFlags) { f.Stripe.PlatformFeePercent = "lots" }, wantErr: "invalid platform fee percent"},
		{name: "short signing secret", mutate: func(f *AppFlags) { f.SigningSecret = "short" }, wantErr: "at least 32 bytes"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := valid()
			tt.mutate(&f)
			err := f.validate()
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestScheduleFlags_Config(t *testing.T) {
	cfg, err := (&ScheduleFlags{Overdue: "0 7 * * *", Timezone: "Australia/Melbourne"}).config()
	require.NoError(t, err)
	require.Equal(t, "0 7 * * *", cfg.Overdue)
	require.Equal(t, "Australia/Melbourne", cfg.Location.String())

	cfg, err = (&ScheduleFlags{}).config()
	require.NoError(t, err)
	require.Nil(t, cfg.Location)

	_, err = (&ScheduleFlags{Timezone: "Mars/Olympus"}).config()
	require.Error(t, err)
}

func TestServeCmd_Parse(t *testing.T) {
	t.Setenv("STUDIOOS_STRIPE_SECRET_KEY", "sk_test_env")

	var cli struct {
		Serve ServeCmd `cmd:""`
	}
	parser, err := kong.New(&cli)
	require.NoError(t, err)

	_, err = parser.Parse([]string{
		"serve",
		"--no-auth",
		"--store-type", "postgres",
		"--postgres-conn-string", "postgres://localhost/studioos",
		"--redis-addr", "localhost:6379",
		"--schedule-overdue", "0 5 * * *",
		"--link-ttl", "24h",
	})
	require.NoError(t, err)

	cmd := cli.Serve
	require.True(t, cmd.NoAuth)
	require.Equal(t, "postgres", cmd.StoreType)
	require.Equal(t, "postgres://localhost/studioos", cmd.Postgres.ConnString)
	require.Equal(t, "localhost:6379", cmd.Redis.Addr)
	require.Equal(t, 72*time.Hour, cmd.Redis.MarkerTTL)
	require.Equal(t, "0 5 * * *", cmd.Schedule.Overdue)
	require.Equal(t, 24*time.Hour, cmd.LinkTTL)
	require.Equal(t, "sk_test_env", cmd.Stripe.SecretKey)
	require.Equal(t, []string{"http://localhost:3000"}, cmd.CORSOrigins)
}
