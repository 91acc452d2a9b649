package commands

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/wolfeidau/studioos/internal/api"
	"github.com/wolfeidau/studioos/internal/auth"
	httpmiddleware "github.com/wolfeidau/studioos/internal/http"
	"github.com/wolfeidau/studioos/internal/logger"
	"github.com/wolfeidau/studioos/internal/telemetry"
)

type ServeCmd struct {
	// Server configuration
	Listen string `help:"HTTP server listen address" default:"0.0.0.0:8080" env:"STUDIOOS_LISTEN"`
	Cert   string `help:"path to TLS cert file; empty serves plain HTTP" default:"" env:"STUDIOOS_TLS_CERT"`
	Key    string `help:"path to TLS key file" default:"" env:"STUDIOOS_TLS_KEY"`

	// Browser access
	CORSOrigins    []string `help:"allowed CORS origins for API requests" default:"http://localhost:3000" env:"STUDIOOS_CORS_ORIGINS"`
	TrustedOrigins []string `help:"origins allowed to submit cross-origin browser requests" env:"STUDIOOS_TRUSTED_ORIGINS"`
	TrustProxy     bool     `help:"trust X-Forwarded-For and X-Real-IP from a load balancer" default:"false" env:"STUDIOOS_TRUST_PROXY"`

	// Development and operational modes
	NoAuth           bool    `help:"disable authentication for API endpoints (development only)" default:"false" env:"STUDIOOS_NO_AUTH"`
	Tracing          bool    `help:"enable tracing" default:"false" env:"STUDIOOS_TRACING"`
	TraceSampleRatio float64 `help:"fraction of traces sampled" default:"1" env:"STUDIOOS_TRACE_SAMPLE_RATIO"`
	NoScheduler      bool    `help:"do not run scheduled automations in this process" default:"false" env:"STUDIOOS_NO_SCHEDULER"`

	Schedule ScheduleFlags `embed:"" prefix:"schedule-"`
	Clerk    ClerkFlags    `embed:"" prefix:"clerk-"`
	AppFlags `embed:""`
}

func (c *ServeCmd) Run(globals *Globals) error {
	log.Logger = logger.Setup(globals.Dev)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = log.Logger.WithContext(ctx)

	log.Info().Str("version", globals.Version).Bool("dev", globals.Dev).Msg("Starting server")

	if err := c.loadSecrets(ctx); err != nil {
		return fmt.Errorf("failed to load secrets: %w", err)
	}
	if err := c.validate(); err != nil {
		return fmt.Errorf("failed to validate flags: %w", err)
	}
	if !c.NoAuth {
		if err := c.Clerk.Validate(); err != nil {
			return fmt.Errorf("failed to validate clerk flags: %w", err)
		}
	}

	if c.Tracing {
		log.Info().Msg("Tracing is enabled")
		shutdown, err := telemetry.InitTelemetry(ctx, "studioos-server", globals.Version, c.TraceSampleRatio)
		if err != nil {
			log.Warn().Err(err).Msg("Failed to initialize telemetry, continuing without metrics")
			shutdown = func(ctx context.Context) error { return nil }
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdown(shutdownCtx); err != nil {
				log.Error().Err(err).Msg("Failed to shutdown telemetry")
			}
		}()
	}

	schedule, err := c.Schedule.config()
	if err != nil {
		return err
	}
	app, err := buildApp(ctx, &c.AppFlags, schedule)
	if err != nil {
		return err
	}
	defer app.Close()

	if !c.NoScheduler {
		if err := app.Scheduler.Start(ctx); err != nil {
			return fmt.Errorf("failed to start scheduler: %w", err)
		}
		defer app.Scheduler.Stop()
	}

	var authenticate func(http.Handler) http.Handler
	if c.NoAuth {
		log.Warn().Msg("Authentication is disabled (--no-auth). This should only be used in development!")
		authenticate = auth.NoAuth(app.Services.Stores.Members)
	} else {
		verifier, err := auth.NewVerifier(auth.ClerkConfig{
			Issuer:            c.Clerk.Issuer,
			JWKSURL:           c.Clerk.JWKSURL,
			AuthorizedParties: c.Clerk.AuthorizedParties,
			Leeway:            c.Clerk.Leeway,
		}, auth.NewKeyCache(auth.NewJWKSClient(c.Clerk.CacheDir)))
		if err != nil {
			return fmt.Errorf("failed to create token verifier: %w", err)
		}
		authenticate = auth.NewAuthenticator(verifier, app.Services.Stores.Members).Middleware
	}

	apiServer := api.NewServer(app.Services, authenticate, api.Config{
		AppURL:   c.AppURL,
		ClientIP: httpmiddleware.ClientIP,
	})

	surface, err := httpmiddleware.Surface(httpmiddleware.SurfaceConfig{
		APIPrefixes:    []string{"/api/", "/p/"},
		BypassPrefixes: []string{"/webhooks/", "/healthz"},
		CORSOrigins:    c.CORSOrigins,
		TrustedOrigins: c.TrustedOrigins,
	}, apiServer.Handler())
	if err != nil {
		return fmt.Errorf("failed to configure http surface: %w", err)
	}

	middleware := []func(http.Handler) http.Handler{
		httpmiddleware.ClientIPMiddleware(c.TrustProxy),
		logger.Requests(log.Logger, httpmiddleware.ClientIP),
	}
	if c.Tracing {
		middleware = append([]func(http.Handler) http.Handler{otelMiddleware}, middleware...)
	}
	handler := httpmiddleware.Chain(surface, middleware...)

	srv := configureHTTPServer(c.Listen, handler)
	srv.BaseContext = func(net.Listener) context.Context { return ctx }

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", c.Listen).Bool("auth", !c.NoAuth).Bool("tls", c.Cert != "").Msg("Starting HTTP server")
		if c.Cert != "" {
			errCh <- srv.ListenAndServeTLS(c.Cert, c.Key)
			return
		}
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	log.Info().Msg("Shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func otelMiddleware(next http.Handler) http.Handler {
	return otelhttp.NewHandler(next, "studioos")
}
