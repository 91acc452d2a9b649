package commands

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/wolfeidau/studioos/internal/automation"
	"github.com/wolfeidau/studioos/internal/logger"
)

// SweepCmd runs the scheduled automations once and exits, for deployments
// that trigger them from an external scheduler.
type SweepCmd struct {
	AppFlags `embed:""`
}

func (c *SweepCmd) Run(globals *Globals) error {
	log.Logger = logger.Setup(globals.Dev)
	ctx := log.Logger.WithContext(context.Background())

	if err := c.loadSecrets(ctx); err != nil {
		return fmt.Errorf("failed to load secrets: %w", err)
	}
	if err := c.validate(); err != nil {
		return fmt.Errorf("failed to validate flags: %w", err)
	}

	app, err := buildApp(ctx, &c.AppFlags, automation.ScheduleConfig{})
	if err != nil {
		return err
	}
	defer app.Close()

	if err := app.Scheduler.RunOnce(ctx); err != nil {
		return err
	}
	log.Info().Msg("Sweep complete")
	return nil
}
