package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

// PoolConfig configures the shared connection pool. Durations are in seconds
// so they map directly onto command line flags; zero values take the defaults
// noted on each field.
type PoolConfig struct {
	// ConnString is a postgres:// URL or key=value DSN.
	ConnString string

	MaxConns        int32 // default 20
	MinConns        int32 // default 5
	MaxConnLifetime int32 // default 3600
	MaxConnIdleTime int32 // default 1800

	HealthCheckPeriod int32 // default 60
	ConnectTimeout    int32 // default 10

	// QueryTimeout bounds each store call. Default 10.
	QueryTimeout int32
}

func (c *PoolConfig) Validate() error {
	if c.ConnString == "" {
		return fmt.Errorf("connection string is required")
	}
	if c.MinConns > c.MaxConns {
		return fmt.Errorf("min conns (%d) cannot exceed max conns (%d)", c.MinConns, c.MaxConns)
	}
	return nil
}

func (c *PoolConfig) ApplyDefaults() {
	setDefault(&c.MaxConns, 20)
	setDefault(&c.MinConns, 5)
	setDefault(&c.MaxConnLifetime, 3600)
	setDefault(&c.MaxConnIdleTime, 1800)
	setDefault(&c.HealthCheckPeriod, 60)
	setDefault(&c.ConnectTimeout, 10)
	setDefault(&c.QueryTimeout, 10)
}

func setDefault(v *int32, def int32) {
	if *v == 0 {
		*v = def
	}
}

func seconds(n int32) time.Duration {
	return time.Duration(n) * time.Second
}

// NewPool opens the pool and pings the database before returning it.
func NewPool(ctx context.Context, cfg *PoolConfig) (*pgxpool.Pool, error) {
	if cfg == nil {
		return nil, fmt.Errorf("pool config is required")
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid pool config: %w", err)
	}

	poolConfig, err := pgxpool.ParseConfig(cfg.ConnString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}
	poolConfig.MaxConns = cfg.MaxConns
	poolConfig.MinConns = cfg.MinConns
	poolConfig.MaxConnLifetime = seconds(cfg.MaxConnLifetime)
	poolConfig.MaxConnIdleTime = seconds(cfg.MaxConnIdleTime)
	poolConfig.HealthCheckPeriod = seconds(cfg.HealthCheckPeriod)
	poolConfig.ConnConfig.ConnectTimeout = seconds(cfg.ConnectTimeout)

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	log.Info().
		Str("host", poolConfig.ConnConfig.Host).
		Str("database", poolConfig.ConnConfig.Database).
		Int32("max_conns", cfg.MaxConns).
		Msg("Connected to PostgreSQL")
	return pool, nil
}
