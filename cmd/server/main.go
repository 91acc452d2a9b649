package main

import (
	"context"
	"os"

	"github.com/alecthomas/kong"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/wolfeidau/studioos/cmd/server/internal/commands"
)

var (
	version = "dev"
	cli     struct {
		Dev     bool `help:"Enable development mode (debug logging, console output)." env:"STUDIOOS_DEV"`
		Version kong.VersionFlag
		Serve   commands.ServeCmd   `cmd:"" default:"withargs" help:"Start the API server and scheduler"`
		Migrate commands.MigrateCmd `cmd:"" help:"Apply database migrations and exit"`
		Sweep   commands.SweepCmd   `cmd:"" help:"Run the scheduled automations once and exit"`
	}
)

func main() {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Warn().Err(err).Msg("Failed to load .env file")
	}

	ctx := context.Background()
	cmd := kong.Parse(&cli,
		kong.Name("studioos"),
		kong.Description("Back office for photography studios."),
		kong.Vars{
			"version": version,
		},
		kong.BindTo(ctx, (*context.Context)(nil)))
	err := cmd.Run(&commands.Globals{Dev: cli.Dev, Version: version})
	cmd.FatalIfErrorf(err)
}
