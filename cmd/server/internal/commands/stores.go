package commands

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/unirating/internal/readiness"
	"github.com/wolfeidau/unirating/internal/store"
	memorystore "github.com/wolfeidau/unirating/internal/store/memory"
	postgresstore "github.com/wolfeidau/unirating/internal/store/postgres"
	redisstore "github.com/wolfeidau/unirating/internal/store/redis"
)

type PostgresFlags struct {
	// Connection Configuration
	ConnString string `help:"PostgreSQL connection string" env:"DATABASE_URL"`

	// Connection Pool Configuration
	MaxConns        int32         `help:"maximum number of connections in pool" default:"20"`
	MinConns        int32         `help:"minimum number of connections in pool" default:"0"`
	MaxConnLifetime time.Duration `help:"maximum connection lifetime" default:"1h"`
	MaxConnIdleTime time.Duration `help:"maximum connection idle time" default:"30m"`

	// Migration Configuration
	AutoMigrate bool `help:"run database migrations once the database is ready" default:"false" env:"AUTO_MIGRATE"`
}

func (f *PostgresFlags) validate() error {
	if f.ConnString == "" {
		return errors.New("PostgreSQL connection string is required (--postgres-conn-string or DATABASE_URL)")
	}
	return nil
}

func (f *PostgresFlags) poolConfig() *postgresstore.PoolConfig {
	return &postgresstore.PoolConfig{
		ConnString:      f.ConnString,
		MaxConns:        f.MaxConns,
		MinConns:        f.MinConns,
		MaxConnLifetime: f.MaxConnLifetime,
		MaxConnIdleTime: f.MaxConnIdleTime,
	}
}

type RedisFlags struct {
	URL string `help:"Redis URL for the redis session store" default:"redis://localhost:6379/0" env:"REDIS_URL"`
}

// backends holds the opened stores plus what the readiness gate needs to check them.
type backends struct {
	users    store.UserStore
	sessions store.SessionStore
	probes   []readiness.Probe
	hooks    []readiness.Hook

	// prune is false for stores that expire sessions themselves
	prune bool

	closers []func()
}

func (b *backends) Close() {
	for i := len(b.closers) - 1; i >= 0; i-- {
		b.closers[i]()
	}
}

func (c *ServeCmd) sessionStoreType() string {
	if c.SessionStore == "auto" || c.SessionStore == "" {
		return c.StoreType
	}
	return c.SessionStore
}

func (c *ServeCmd) usesPostgres() bool {
	return c.StoreType == "postgres" || c.sessionStoreType() == "postgres"
}

// openBackends creates clients for the configured stores without contacting them.
func (c *ServeCmd) openBackends(ctx context.Context) (*backends, error) {
	b := &backends{prune: true}

	var pool *pgxpool.Pool
	if c.usesPostgres() {
		var err error
		pool, err = postgresstore.NewPool(ctx, c.Postgres.poolConfig())
		if err != nil {
			return nil, fmt.Errorf("failed to create postgres pool: %w", err)
		}
		b.closers = append(b.closers, pool.Close)
		b.probes = append(b.probes, readiness.Probe{
			Name: "postgres",
			Check: func(ctx context.Context) error {
				return postgresstore.Probe(ctx, pool)
			},
		})
	}

	switch c.StoreType {
	case "postgres":
		b.users = postgresstore.NewUserStore(pool)
		if c.Postgres.AutoMigrate {
			connString := c.Postgres.ConnString
			b.hooks = append(b.hooks, readiness.Hook{
				Name: "migrate",
				Run: func(ctx context.Context) error {
					return migrateUp(connString)
				},
			})
		}
		log.Info().Msg("Using PostgreSQL user store")
	default:
		b.users = memorystore.NewUserStore()
		log.Info().Msg("Using in-memory user store")
	}

	switch c.sessionStoreType() {
	case "postgres":
		b.sessions = postgresstore.NewSessionStore(pool)
		b.hooks = append(b.hooks, readiness.Hook{
			Name: "session-schema",
			Run: func(ctx context.Context) error {
				return postgresstore.EnsureSessionSchema(ctx, pool)
			},
		})
		log.Info().Msg("Using PostgreSQL session store")
	case "redis":
		client, err := redisstore.NewClient(c.Redis.URL)
		if err != nil {
			b.Close()
			return nil, err
		}
		b.closers = append(b.closers, func() {
			if err := client.Close(); err != nil {
				log.Warn().Err(err).Msg("Failed to close redis client")
			}
		})
		b.probes = append(b.probes, readiness.Probe{
			Name: "redis",
			Check: func(ctx context.Context) error {
				return redisstore.Probe(ctx, client)
			},
		})
		b.sessions = redisstore.NewSessionStore(client)
		b.prune = false
		log.Info().Msg("Using Redis session store")
	default:
		b.sessions = memorystore.NewSessionStore()
		log.Info().Msg("Using in-memory session store")
	}

	return b, nil
}

func migrateUp(connString string) error {
	migrator, err := postgresstore.NewMigrator(connString)
	if err != nil {
		return err
	}
	defer func() {
		if err := migrator.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to close migrator")
		}
	}()

	return migrator.Up()
}
