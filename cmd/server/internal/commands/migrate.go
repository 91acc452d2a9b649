package commands

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/wolfeidau/studioos/internal/logger"
	postgresstore "github.com/wolfeidau/studioos/internal/store/postgres"
)

// MigrateCmd applies pending SQL migrations and exits.
type MigrateCmd struct {
	Postgres PostgresFlags `embed:"" prefix:"postgres-"`
}

func (c *MigrateCmd) Run(globals *Globals) error {
	log.Logger = logger.Setup(globals.Dev)
	ctx := log.Logger.WithContext(context.Background())

	if err := c.Postgres.Validate(); err != nil {
		return fmt.Errorf("failed to validate postgres flags: %w", err)
	}

	pool, err := postgresstore.NewPool(ctx, &postgresstore.PoolConfig{
		ConnString: c.Postgres.ConnString,
		MaxConns:   2,
		MinConns:   1,
	})
	if err != nil {
		return fmt.Errorf("failed to create postgres pool: %w", err)
	}
	defer pool.Close()

	if err := postgresstore.Migrate(ctx, pool); err != nil {
		return err
	}
	log.Info().Msg("Migrations complete")
	return nil
}
