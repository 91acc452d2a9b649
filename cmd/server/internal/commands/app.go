package commands

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/wolfeidau/studioos/internal/api"
	"github.com/wolfeidau/studioos/internal/automation"
	"github.com/wolfeidau/studioos/internal/billing"
	"github.com/wolfeidau/studioos/internal/bookings"
	"github.com/wolfeidau/studioos/internal/checkout"
	"github.com/wolfeidau/studioos/internal/clients"
	"github.com/wolfeidau/studioos/internal/contracts"
	"github.com/wolfeidau/studioos/internal/dedupe"
	"github.com/wolfeidau/studioos/internal/dropbox"
	"github.com/wolfeidau/studioos/internal/events"
	"github.com/wolfeidau/studioos/internal/galleries"
	"github.com/wolfeidau/studioos/internal/links"
	"github.com/wolfeidau/studioos/internal/notify"
	"github.com/wolfeidau/studioos/internal/objectstore"
	"github.com/wolfeidau/studioos/internal/quickbooks"
	"github.com/wolfeidau/studioos/internal/secrets"
	"github.com/wolfeidau/studioos/internal/store"
	memorystore "github.com/wolfeidau/studioos/internal/store/memory"
	postgresstore "github.com/wolfeidau/studioos/internal/store/postgres"
	"github.com/wolfeidau/studioos/internal/tenancy"
)

// AppFlags configure the services shared by the serve and sweep commands.
type AppFlags struct {
	// Public URLs
	BaseURL string `help:"public base URL used in client links and vendor callbacks" default:"http://localhost:8080" env:"STUDIOOS_BASE_URL"`
	AppURL  string `help:"dashboard URL browser flows are redirected back to" default:"http://localhost:3000" env:"STUDIOOS_APP_URL"`

	// Signed links
	SigningSecret string        `help:"secret key for HMAC signing of client links and OAuth state" env:"STUDIOOS_SIGNING_SECRET"`
	LinkTTL       time.Duration `help:"lifetime of invoice and contract links" default:"1440h" env:"STUDIOOS_LINK_TTL"`

	// New organization defaults
	DefaultCurrency string `help:"currency for new organizations" default:"usd" env:"STUDIOOS_DEFAULT_CURRENCY"`
	DefaultTimezone string `help:"timezone for new organizations" default:"UTC" env:"STUDIOOS_DEFAULT_TIMEZONE"`

	SecretsSSMPrefix string `help:"SSM parameter path secrets are loaded from when their flags are empty" default:"" env:"STUDIOOS_SECRETS_SSM_PREFIX"`

	StoreFlags `embed:""`
	Stripe     StripeFlags     `embed:"" prefix:"stripe-"`
	QuickBooks QuickBooksFlags `embed:"" prefix:"quickbooks-"`
	Dropbox    DropboxFlags    `embed:"" prefix:"dropbox-"`
	Redis      RedisFlags      `embed:"" prefix:"redis-"`
	S3         S3Flags         `embed:"" prefix:"s3-"`
	SendGrid   SendGridFlags   `embed:"" prefix:"sendgrid-"`
}

// loadSecrets fills empty secret flags from SSM when a prefix is configured.
func (f *AppFlags) loadSecrets(ctx context.Context) error {
	if f.SecretsSSMPrefix == "" {
		return nil
	}
	loader, err := secrets.NewLoader(ctx, f.SecretsSSMPrefix)
	if err != nil {
		return err
	}
	return loader.Apply(ctx, map[string]*string{
		"signing-secret":           &f.SigningSecret,
		"postgres-conn-string":     &f.Postgres.ConnString,
		"stripe-secret-key":        &f.Stripe.SecretKey,
		"stripe-webhook-secret":    &f.Stripe.WebhookSecret,
		"quickbooks-client-secret": &f.QuickBooks.ClientSecret,
		"dropbox-app-secret":       &f.Dropbox.AppSecret,
		"redis-password":           &f.Redis.Password,
		"sendgrid-api-key":         &f.SendGrid.APIKey,
	})
}

// validate is called after secrets are loaded, so it is not named Validate
// and kong does not run it during parsing.
func (f *AppFlags) validate() error {
	if err := validateSecret("signing secret (--signing-secret or STUDIOOS_SIGNING_SECRET)", f.SigningSecret); err != nil {
		return err
	}
	if f.StoreType == "postgres" {
		if err := f.Postgres.Validate(); err != nil {
			return err
		}
	}
	return errors.Join(
		f.Stripe.Validate(),
		f.QuickBooks.Validate(),
		f.Dropbox.Validate(),
		f.SendGrid.Validate(),
	)
}

// App holds the wired services.
type App struct {
	Services  api.Services
	Bus       *events.Bus
	Engine    *automation.Engine
	Scheduler *automation.Scheduler

	closers []func()
}

// Close releases connections in reverse order of creation.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

func buildApp(ctx context.Context, f *AppFlags, schedule automation.ScheduleConfig) (_ *App, err error) {
	log := zerolog.Ctx(ctx)
	app := &App{Bus: events.NewBus()}
	defer func() {
		if err != nil {
			app.Close()
		}
	}()

	feePercent, err := f.Stripe.feePercent()
	if err != nil {
		return nil, err
	}

	signer, err := links.NewSigner([]byte(f.SigningSecret))
	if err != nil {
		return nil, err
	}

	stores, err := app.openStores(ctx, f.StoreFlags)
	if err != nil {
		return nil, err
	}

	markers, cleaner, err := app.openDedupe(ctx, f.Redis)
	if err != nil {
		return nil, err
	}

	objects, err := openObjects(ctx, f.S3)
	if err != nil {
		return nil, err
	}

	var sender notify.Sender = notify.LogSender{}
	if f.SendGrid.APIKey != "" {
		sender, err = notify.NewSendGridSender(notify.SendGridConfig{
			APIKey:    f.SendGrid.APIKey,
			FromEmail: f.SendGrid.FromEmail,
			FromName:  f.SendGrid.FromName,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to configure sendgrid: %w", err)
		}
		log.Info().Str("from", f.SendGrid.FromEmail).Msg("Sending email with SendGrid")
	} else {
		log.Warn().Msg("No SendGrid API key, email will be logged and not sent")
	}

	baseURL := strings.TrimRight(f.BaseURL, "/")
	billingSvc := billing.NewService(stores.Invoices, stores.Clients, stores.Organizations, signer, app.Bus, billing.Config{BaseURL: baseURL, LinkTTL: f.LinkTTL})
	gallerySvc := galleries.NewService(stores.Galleries, stores.Clients, objects, app.Bus, galleries.Config{BaseURL: baseURL})
	conditions := automation.NewConditions()

	app.Services = api.Services{
		Stores: stores,
		Tenancy: tenancy.NewService(stores.Organizations, stores.Members, tenancy.Config{
			DefaultCurrency:   f.DefaultCurrency,
			DefaultTimezone:   f.DefaultTimezone,
			DefaultFeePercent: feePercent,
		}),
		Clients:   clients.NewService(stores.Clients),
		Galleries: gallerySvc,
		Bookings:  bookings.NewService(stores.Bookings, stores.Clients, app.Bus),
		Billing:   billingSvc,
		Contracts: contracts.NewService(stores, objects, signer, sender, app.Bus, contracts.Config{BaseURL: baseURL, LinkTTL: f.LinkTTL}),
		Rules:     automation.NewRules(stores.Automations, conditions),
	}

	if f.Stripe.Enabled() {
		gateway := checkout.NewStripeGateway(f.Stripe.SecretKey, f.Stripe.WebhookSecret, nil)
		app.Services.Checkout = checkout.NewService(gateway, billingSvc, markers, checkout.Config{BaseURL: baseURL})
		log.Info().Msg("Stripe checkout enabled")
	}

	app.Engine = automation.NewEngine(stores.Automations, sender, conditions)
	app.Bus.Subscribe(app.Engine.Handle)

	if f.QuickBooks.Enabled() {
		qbCfg := quickbooks.Config{
			ClientID:     f.QuickBooks.ClientID,
			ClientSecret: f.QuickBooks.ClientSecret,
			RedirectURL:  baseURL + "/integrations/quickbooks/callback",
			AppURL:       f.AppURL,
			ItemID:       f.QuickBooks.ItemID,
		}
		if f.QuickBooks.Sandbox {
			qbCfg.APIURL = quickbooks.SandboxAPIURL
		}
		qb, err := quickbooks.NewService(stores, signer, qbCfg)
		if err != nil {
			return nil, err
		}
		app.Services.QuickBooks = qb
		app.Engine.SetInvoiceSyncer(qb)
		app.Bus.Subscribe(qb.HandleEvent)
		log.Info().Bool("sandbox", f.QuickBooks.Sandbox).Msg("QuickBooks integration enabled")
	}

	if f.Dropbox.Enabled() {
		dbx, err := dropbox.NewService(stores.Integrations, gallerySvc, signer, dropbox.Config{
			AppKey:      f.Dropbox.AppKey,
			AppSecret:   f.Dropbox.AppSecret,
			RedirectURL: baseURL + "/integrations/dropbox/callback",
			AppURL:      f.AppURL,
		})
		if err != nil {
			return nil, err
		}
		app.Services.Dropbox = dbx
		gallerySvc.SetRemoteFetcher(dbx)
		log.Info().Msg("Dropbox integration enabled")
	}

	if schedule.Location == nil {
		schedule.Location, err = time.LoadLocation(f.DefaultTimezone)
		if err != nil {
			return nil, fmt.Errorf("invalid default timezone %q: %w", f.DefaultTimezone, err)
		}
	}
	app.Scheduler = automation.NewScheduler(billingSvc, gallerySvc, cleaner, schedule)

	return app, nil
}

func (a *App) openStores(ctx context.Context, f StoreFlags) (*store.Stores, error) {
	log := zerolog.Ctx(ctx)

	if f.StoreType != "postgres" {
		log.Info().Msg("Using in-memory stores")
		return memorystore.NewStores(), nil
	}

	poolCfg := &postgresstore.PoolConfig{
		ConnString:      f.Postgres.ConnString,
		MaxConns:        f.Postgres.MaxConns,
		MinConns:        f.Postgres.MinConns,
		MaxConnLifetime: f.Postgres.MaxConnLifetime,
		MaxConnIdleTime: f.Postgres.MaxConnIdleTime,
		QueryTimeout:    f.Postgres.QueryTimeout,
	}
	pool, err := postgresstore.NewPool(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create postgres pool: %w", err)
	}
	a.closers = append(a.closers, pool.Close)

	if f.Postgres.AutoMigrate {
		if err := postgresstore.Migrate(ctx, pool); err != nil {
			return nil, err
		}
	}

	log.Info().Msg("Using PostgreSQL stores")
	return postgresstore.NewStores(pool, poolCfg), nil
}

// openDedupe returns the webhook marker store, and a cleaner when the markers
// live in process memory.
func (a *App) openDedupe(ctx context.Context, f RedisFlags) (dedupe.Store, automation.MarkerCleaner, error) {
	if f.Addr == "" {
		markers := dedupe.NewMemoryStore(f.MarkerTTL)
		return markers, markers, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     f.Addr,
		Password: f.Password,
		DB:       f.DB,
	})
	a.closers = append(a.closers, func() { _ = client.Close() })

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, nil, fmt.Errorf("failed to connect to redis at %s: %w", f.Addr, err)
	}
	zerolog.Ctx(ctx).Info().Str("addr", f.Addr).Msg("Using Redis webhook markers")
	return dedupe.NewRedisStore(client, f.Prefix, f.MarkerTTL), nil, nil
}

func openObjects(ctx context.Context, f S3Flags) (objectstore.Store, error) {
	if f.Bucket == "" {
		zerolog.Ctx(ctx).Warn().Msg("No S3 bucket, objects are kept in memory")
		return objectstore.NewMemoryStore(), nil
	}

	awsConfig, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	opts := []func(*s3.Options){}
	if f.EndpointURL != "" {
		opts = append(opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(f.EndpointURL)
			o.UsePathStyle = true
		})
	}

	zerolog.Ctx(ctx).Info().Str("bucket", f.Bucket).Msg("Using S3 object store")
	return objectstore.NewS3Store(s3.NewFromConfig(awsConfig, opts...), f.Bucket, f.Prefix), nil
}
