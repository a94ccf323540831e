package commands

import (
	"fmt"

	"github.com/wolfeidau/unirating/internal/logger"
	postgresstore "github.com/wolfeidau/unirating/internal/store/postgres"
)

// migrator is the part of postgresstore.Migrator the command drives.
type migrator interface {
	Up() error
	Down() error
	Version() (uint, bool, error)
	Close() error
}

var newMigrator = func(connString string) (migrator, error) {
	return postgresstore.NewMigrator(connString)
}

type MigrateCmd struct {
	Direction  string `arg:"" help:"up, down or version" default:"up" enum:"up,down,version"`
	ConnString string `help:"PostgreSQL connection string" required:"" env:"DATABASE_URL"`
}

func (c *MigrateCmd) Run(globals *Globals) error {
	log := logger.Setup(globals.Debug)

	m, err := newMigrator(c.ConnString)
	if err != nil {
		return err
	}
	defer func() {
		if err := m.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to close migrator")
		}
	}()

	switch c.Direction {
	case "down":
		if err := m.Down(); err != nil {
			return err
		}
		log.Info().Msg("Migrations rolled back")
	case "version":
		version, dirty, err := m.Version()
		if err != nil {
			return err
		}
		log.Info().Uint("version", version).Bool("dirty", dirty).Msg("Migration version")
	case "up":
		if err := m.Up(); err != nil {
			return err
		}
	default:
		return fmt.Errorf("unknown migration direction %q", c.Direction)
	}

	return nil
}
