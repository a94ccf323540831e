package main

import (
	"context"
	"errors"
	"io/fs"

	"github.com/alecthomas/kong"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/unirating/cmd/server/internal/commands"
)

var (
	version = "dev"
	cli     struct {
		Debug   bool             `help:"Enable debug mode."`
		Version kong.VersionFlag `help:"Print version and exit."`
		Config  kong.ConfigFlag  `help:"Load flag values from a YAML file."`

		Serve   commands.ServeCmd   `cmd:"" default:"withargs" help:"Start the auth API server"`
		Migrate commands.MigrateCmd `cmd:"" help:"Apply or roll back database migrations"`
	}
)

func main() {
	// .env is optional, real environment variables take precedence
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Warn().Err(err).Msg("Failed to load .env file")
	}

	ctx := context.Background()
	cmd := kong.Parse(&cli,
		kong.Name("unirating-server"),
		kong.Description("Session cookie authentication API."),
		kong.Vars{
			"version": version,
		},
		kong.Configuration(commands.YAMLLoader),
		kong.BindTo(ctx, (*context.Context)(nil)))
	err := cmd.Run(&commands.Globals{Debug: cli.Debug, Version: version})
	cmd.FatalIfErrorf(err)
}
