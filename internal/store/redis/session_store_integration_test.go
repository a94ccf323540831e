//go:build integration

package redis

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/wolfeidau/unirating/internal/models"
	"github.com/wolfeidau/unirating/internal/store"
)

func setupRedisContainer(t *testing.T, ctx context.Context) (*SessionStore, func()) {
	req := testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForLog("Ready to accept connections"),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)

	host, err := container.Host(ctx)
	require.NoError(t, err)

	port, err := container.MappedPort(ctx, "6379")
	require.NoError(t, err)

	client, err := NewClient(fmt.Sprintf("redis://%s:%s/0", host, port.Port()))
	require.NoError(t, err)
	require.NoError(t, Probe(ctx, client))

	cleanup := func() {
		_ = client.Close()
		_ = container.Terminate(ctx)
	}

	return NewSessionStore(client), cleanup
}

func TestIntegration_RedisSessionLifecycle(t *testing.T) {
	ctx := context.Background()
	sessions, cleanup := setupRedisContainer(t, ctx)
	defer cleanup()

	userID := uuid.Must(uuid.NewV7())
	newSession := func(id string) *models.Session {
		return &models.Session{
			ID:        id,
			Data:      models.SessionData{UserID: userID, CreatedAt: time.Now()},
			ExpiresAt: time.Now().Add(models.SessionTTL),
		}
	}

	t.Run("create and get", func(t *testing.T) {
		require.NoError(t, sessions.Create(ctx, newSession("a")))

		got, err := sessions.Get(ctx, "a")
		require.NoError(t, err)
		require.Equal(t, userID, got.Data.UserID)
	})

	t.Run("regenerate", func(t *testing.T) {
		require.NoError(t, sessions.Regenerate(ctx, "a", newSession("b")))

		_, err := sessions.Get(ctx, "a")
		require.ErrorIs(t, err, store.ErrSessionNotFound)

		_, err = sessions.Get(ctx, "b")
		require.NoError(t, err)

		err = sessions.Regenerate(ctx, "a", newSession("c"))
		require.ErrorIs(t, err, store.ErrSessionNotFound)
		_, err = sessions.Get(ctx, "c")
		require.ErrorIs(t, err, store.ErrSessionNotFound)
	})

	t.Run("delete", func(t *testing.T) {
		require.NoError(t, sessions.Delete(ctx, "b"))
		require.ErrorIs(t, sessions.Delete(ctx, "b"), store.ErrSessionNotFound)
	})

	t.Run("expired sessions are not stored", func(t *testing.T) {
		expired := newSession("old")
		expired.ExpiresAt = time.Now().Add(-time.Second)
		require.NoError(t, sessions.Create(ctx, expired))

		_, err := sessions.Get(ctx, "old")
		require.ErrorIs(t, err, store.ErrSessionNotFound)
	})
}
