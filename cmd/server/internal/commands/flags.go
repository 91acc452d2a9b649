package commands

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/wolfeidau/studioos/internal/automation"
	"github.com/wolfeidau/studioos/internal/money"
)

// minSecretBytes is the shortest accepted HMAC signing secret (256 bits).
const minSecretBytes = 32

type StoreFlags struct {
	StoreType string        `help:"store type (memory or postgres)" default:"memory" env:"STUDIOOS_STORE_TYPE" enum:"memory,postgres"`
	Postgres  PostgresFlags `embed:"" prefix:"postgres-"`
}

type PostgresFlags struct {
	// Connection Configuration
	ConnString string `help:"PostgreSQL connection string" env:"STUDIOOS_POSTGRES_CONN_STRING"`

	// Connection Pool Configuration
	MaxConns        int32 `help:"maximum number of connections in pool" default:"20" env:"STUDIOOS_POSTGRES_MAX_CONNS"`
	MinConns        int32 `help:"minimum number of connections in pool" default:"5" env:"STUDIOOS_POSTGRES_MIN_CONNS"`
	MaxConnLifetime int32 `help:"maximum connection lifetime in seconds" default:"3600"`
	MaxConnIdleTime int32 `help:"maximum connection idle time in seconds" default:"1800"`
	QueryTimeout    int32 `help:"per query timeout in seconds" default:"10" env:"STUDIOOS_POSTGRES_QUERY_TIMEOUT"`

	// Migration Configuration
	AutoMigrate bool `help:"run database migrations on startup" default:"false" env:"STUDIOOS_POSTGRES_AUTO_MIGRATE"`
}

func (s *PostgresFlags) Validate() error {
	if s.ConnString == "" {
		return errors.New("PostgreSQL connection string is required (--postgres-conn-string or STUDIOOS_POSTGRES_CONN_STRING)")
	}
	return nil
}

type StripeFlags struct {
	SecretKey          string `help:"Stripe secret API key" env:"STUDIOOS_STRIPE_SECRET_KEY"`
	WebhookSecret      string `help:"Stripe webhook signing secret" env:"STUDIOOS_STRIPE_WEBHOOK_SECRET"`
	PlatformFeePercent string `help:"platform fee percent for new organizations" default:"2.5" env:"STUDIOOS_STRIPE_PLATFORM_FEE_PERCENT"`
}

func (s *StripeFlags) Enabled() bool { return s.SecretKey != "" }

func (s *StripeFlags) Validate() error {
	if s.SecretKey != "" && s.WebhookSecret == "" {
		return errors.New("stripe webhook secret is required when a secret key is set (--stripe-webhook-secret or STUDIOOS_STRIPE_WEBHOOK_SECRET)")
	}
	_, err := s.feePercent()
	return err
}

func (s *StripeFlags) feePercent() (decimal.Decimal, error) {
	fee, err := decimal.NewFromString(s.PlatformFeePercent)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid platform fee percent %q: %w", s.PlatformFeePercent, err)
	}
	if err := money.ValidateFeePercent(fee); err != nil {
		return decimal.Zero, fmt.Errorf("platform fee percent: %w", err)
	}
	return fee, nil
}

type QuickBooksFlags struct {
	ClientID     string `help:"QuickBooks OAuth client ID" env:"STUDIOOS_QUICKBOOKS_CLIENT_ID"`
	ClientSecret string `help:"QuickBooks OAuth client secret" env:"STUDIOOS_QUICKBOOKS_CLIENT_SECRET"`
	Sandbox      bool   `help:"use the QuickBooks sandbox API" default:"false" env:"STUDIOOS_QUICKBOOKS_SANDBOX"`
	ItemID       string `help:"QuickBooks service item used for invoice lines" default:"1" env:"STUDIOOS_QUICKBOOKS_ITEM_ID"`
}

func (s *QuickBooksFlags) Enabled() bool { return s.ClientID != "" }

func (s *QuickBooksFlags) Validate() error {
	if s.ClientID != "" && s.ClientSecret == "" {
		return errors.New("quickbooks client secret is required (--quickbooks-client-secret or STUDIOOS_QUICKBOOKS_CLIENT_SECRET)")
	}
	return nil
}

type DropboxFlags struct {
	AppKey    string `help:"Dropbox app key" env:"STUDIOOS_DROPBOX_APP_KEY"`
	AppSecret string `help:"Dropbox app secret" env:"STUDIOOS_DROPBOX_APP_SECRET"`
}

func (s *DropboxFlags) Enabled() bool { return s.AppKey != "" }

func (s *DropboxFlags) Validate() error {
	if s.AppKey != "" && s.AppSecret == "" {
		return errors.New("dropbox app secret is required (--dropbox-app-secret or STUDIOOS_DROPBOX_APP_SECRET)")
	}
	return nil
}

type RedisFlags struct {
	Addr      string        `help:"Redis address for webhook de-duplication; empty keeps markers in memory" env:"STUDIOOS_REDIS_ADDR"`
	Password  string        `help:"Redis password" env:"STUDIOOS_REDIS_PASSWORD"`
	DB        int           `help:"Redis database number" default:"0" env:"STUDIOOS_REDIS_DB"`
	Prefix    string        `help:"key prefix for webhook markers" default:"studioos:webhook:" env:"STUDIOOS_REDIS_PREFIX"`
	MarkerTTL time.Duration `help:"how long processed webhook ids are remembered" default:"72h" env:"STUDIOOS_REDIS_MARKER_TTL"`
}

type S3Flags struct {
	Bucket      string `help:"S3 bucket for signatures and photos; empty keeps objects in memory" env:"STUDIOOS_S3_BUCKET"`
	Prefix      string `help:"key prefix inside the bucket" default:"" env:"STUDIOOS_S3_PREFIX"`
	EndpointURL string `help:"S3 endpoint URL override (for MinIO or LocalStack)" default:"" env:"STUDIOOS_S3_ENDPOINT_URL"`
}

type SendGridFlags struct {
	APIKey    string `help:"SendGrid API key; empty logs email instead of sending" env:"STUDIOOS_SENDGRID_API_KEY"`
	FromEmail string `help:"sender address" default:"studio@localhost" env:"STUDIOOS_SENDGRID_FROM_EMAIL"`
	FromName  string `help:"sender display name" default:"studioos" env:"STUDIOOS_SENDGRID_FROM_NAME"`
}

func (s *SendGridFlags) Validate() error {
	if s.APIKey != "" && s.FromEmail == "" {
		return errors.New("sendgrid from address is required (--sendgrid-from-email or STUDIOOS_SENDGRID_FROM_EMAIL)")
	}
	return nil
}

type ClerkFlags struct {
	Issuer            string        `help:"Clerk frontend API URL used as the token issuer" env:"STUDIOOS_CLERK_ISSUER"`
	JWKSURL           string        `help:"JWKS URL override" default:"" env:"STUDIOOS_CLERK_JWKS_URL"`
	AuthorizedParties []string      `help:"allowed azp origins" env:"STUDIOOS_CLERK_AUTHORIZED_PARTIES"`
	Leeway            time.Duration `help:"clock skew allowed on token times" default:"5s" env:"STUDIOOS_CLERK_LEEWAY"`
	CacheDir          string        `help:"directory for the JWKS HTTP cache; empty caches in memory" default:"" env:"STUDIOOS_CLERK_CACHE_DIR"`
}

func (s *ClerkFlags) Validate() error {
	if s.Issuer == "" {
		return errors.New("clerk issuer is required unless --no-auth is set (--clerk-issuer or STUDIOOS_CLERK_ISSUER)")
	}
	return nil
}

func validateSecret(name, secret string) error {
	if secret == "" {
		return fmt.Errorf("%s is required", name)
	}
	if len(secret) < minSecretBytes {
		return fmt.Errorf("%s must be at least %d bytes (256 bits) for HMAC-SHA256", name, minSecretBytes)
	}
	return nil
}

// ScheduleFlags are cron expressions for the periodic sweeps. The location
// defaults to --default-timezone.
type ScheduleFlags struct {
	Overdue  string `help:"cron schedule for marking invoices overdue" default:"0 6 * * *" env:"STUDIOOS_SCHEDULE_OVERDUE"`
	Expiry   string `help:"cron schedule for archiving expired galleries" default:"30 6 * * *" env:"STUDIOOS_SCHEDULE_EXPIRY"`
	Cleanup  string `help:"cron schedule for dropping expired webhook markers" default:"@hourly" env:"STUDIOOS_SCHEDULE_CLEANUP"`
	Timezone string `help:"IANA timezone the schedules run in" default:"" env:"STUDIOOS_SCHEDULE_TIMEZONE"`
}

func (s *ScheduleFlags) config() (automation.ScheduleConfig, error) {
	cfg := automation.ScheduleConfig{Overdue: s.Overdue, Expiry: s.Expiry, Cleanup: s.Cleanup}
	if s.Timezone != "" {
		loc, err := time.LoadLocation(s.Timezone)
		if err != nil {
			return cfg, fmt.Errorf("invalid schedule timezone %q: %w", s.Timezone, err)
		}
		cfg.Location = loc
	}
	return cfg, nil
}
