//go:build integration

package postgres

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/wolfeidau/unirating/internal/models"
	"github.com/wolfeidau/unirating/internal/store"
)

func setupPostgresContainer(t *testing.T, ctx context.Context) (*pgxpool.Pool, func()) {
	req := testcontainers.ContainerRequest{
		Image:        "postgres:18-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "test",
			"POSTGRES_PASSWORD": "test",
			"POSTGRES_DB":       "testdb",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").WithOccurrence(2),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)

	host, err := container.Host(ctx)
	require.NoError(t, err)

	port, err := container.MappedPort(ctx, "5432")
	require.NoError(t, err)

	connString := fmt.Sprintf("postgres://test:test@%s:%s/testdb?sslmode=disable", host, port.Port())

	migrator, err := NewMigrator(connString)
	require.NoError(t, err)
	require.NoError(t, migrator.Up())
	require.NoError(t, migrator.Close())

	pool, err := NewPool(ctx, &PoolConfig{ConnString: connString})
	require.NoError(t, err)
	require.NoError(t, Probe(ctx, pool))
	require.NoError(t, EnsureSessionSchema(ctx, pool))

	cleanup := func() {
		pool.Close()
		_ = container.Terminate(ctx)
	}

	return pool, cleanup
}

func TestIntegration_UserAndSessionLifecycle(t *testing.T) {
	ctx := context.Background()
	pool, cleanup := setupPostgresContainer(t, ctx)
	defer cleanup()

	users := NewUserStore(pool)
	sessions := NewSessionStore(pool)

	now := time.Now()
	user := &models.User{
		ID:           uuid.Must(uuid.NewV7()),
		Name:         "Ada",
		Email:        "ada@example.com",
		PasswordHash: "$2a$10$hash",
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	t.Run("create user", func(t *testing.T) {
		require.NoError(t, users.Create(ctx, user))

		got, err := users.GetByEmail(ctx, "ada@example.com")
		require.NoError(t, err)
		require.Equal(t, user.ID, got.ID)
	})

	t.Run("duplicate email rejected", func(t *testing.T) {
		dup := *user
		dup.ID = uuid.Must(uuid.NewV7())
		require.ErrorIs(t, users.Create(ctx, &dup), store.ErrEmailTaken)
	})

	t.Run("update password", func(t *testing.T) {
		require.NoError(t, users.UpdatePassword(ctx, user.ID, "$2a$10$new", time.Now()))

		got, err := users.Get(ctx, user.ID)
		require.NoError(t, err)
		require.Equal(t, "$2a$10$new", got.PasswordHash)
	})

	t.Run("session regenerate", func(t *testing.T) {
		old := &models.Session{
			ID:        "old-session",
			Data:      models.SessionData{UserID: user.ID, CreatedAt: time.Now()},
			ExpiresAt: time.Now().Add(models.SessionTTL),
		}
		require.NoError(t, sessions.Create(ctx, old))

		next := &models.Session{
			ID:        "new-session",
			Data:      models.SessionData{UserID: user.ID, CreatedAt: time.Now()},
			ExpiresAt: time.Now().Add(models.SessionTTL),
		}
		require.NoError(t, sessions.Regenerate(ctx, "old-session", next))

		_, err := sessions.Get(ctx, "old-session")
		require.ErrorIs(t, err, store.ErrSessionNotFound)

		got, err := sessions.Get(ctx, "new-session")
		require.NoError(t, err)
		require.Equal(t, user.ID, got.Data.UserID)

		// a second regenerate from the consumed id must not write anything
		err = sessions.Regenerate(ctx, "old-session", &models.Session{ID: "third", ExpiresAt: time.Now().Add(time.Hour)})
		require.ErrorIs(t, err, store.ErrSessionNotFound)
		_, err = sessions.Get(ctx, "third")
		require.ErrorIs(t, err, store.ErrSessionNotFound)
	})

	t.Run("expired sessions pruned", func(t *testing.T) {
		expired := &models.Session{
			ID:        "expired-session",
			Data:      models.SessionData{UserID: user.ID, CreatedAt: time.Now()},
			ExpiresAt: time.Now().Add(-time.Minute),
		}
		require.NoError(t, sessions.Create(ctx, expired))

		_, err := sessions.Get(ctx, "expired-session")
		require.ErrorIs(t, err, store.ErrSessionExpired)

		count, err := sessions.DeleteExpired(ctx)
		require.NoError(t, err)
		require.Equal(t, 1, count)
	})

	t.Run("schema bootstrap is idempotent", func(t *testing.T) {
		require.NoError(t, EnsureSessionSchema(ctx, pool))
	})
}
