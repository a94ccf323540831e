package auth_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/mr-tron/base58"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wolfeidau/unirating/internal/auth"
	"github.com/wolfeidau/unirating/internal/models"
	"github.com/wolfeidau/unirating/internal/store"
	"github.com/wolfeidau/unirating/internal/store/memory"
)

func TestNewSessionID(t *testing.T) {
	seen := make(map[string]struct{})
	for range 100 {
		id, err := auth.NewSessionID()
		require.NoError(t, err)

		raw, err := base58.Decode(id)
		require.NoError(t, err)
		assert.Len(t, raw, 32)

		_, dup := seen[id]
		require.False(t, dup)
		seen[id] = struct{}{}
	}
}

func TestSessionManager_CreateLookup(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	user, err := f.credentials.Register(ctx, "Ada", "ada@example.com", "secret1")
	require.NoError(t, err)

	id, err := f.manager.Create(ctx, user.ID, auth.SessionMeta{UserAgent: "test", IPAddress: "10.0.0.1"})
	require.NoError(t, err)

	t.Run("resolves to user", func(t *testing.T) {
		userID, ok, err := f.manager.Lookup(ctx, id)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, user.ID, userID)
	})

	t.Run("expires seven days out", func(t *testing.T) {
		sess, err := f.sessions.Get(ctx, id)
		require.NoError(t, err)
		assert.WithinDuration(t, time.Now().Add(7*24*time.Hour), sess.ExpiresAt, time.Minute)
		assert.Equal(t, "10.0.0.1", sess.Data.IPAddress)
	})

	t.Run("absent session", func(t *testing.T) {
		_, ok, err := f.manager.Lookup(ctx, "does-not-exist")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("empty id", func(t *testing.T) {
		_, ok, err := f.manager.Lookup(ctx, "")
		require.NoError(t, err)
		assert.False(t, ok)
	})
}

func TestSessionManager_ExpiredSession(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	require.NoError(t, f.sessions.Create(ctx, &models.Session{
		ID:        "expired",
		Data:      models.SessionData{UserID: uuid.New()},
		ExpiresAt: time.Now().Add(-time.Second),
	}))

	_, ok, err := f.manager.Lookup(ctx, "expired")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSessionManager_OrphanedSession(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	user, err := f.credentials.Register(ctx, "Ada", "ada@example.com", "secret1")
	require.NoError(t, err)

	id, err := f.manager.Create(ctx, user.ID, auth.SessionMeta{})
	require.NoError(t, err)

	f.users.Remove(user.ID)

	_, ok, err := f.manager.Lookup(ctx, id)
	require.NoError(t, err)
	assert.False(t, ok)

	// orphan cleaned up
	_, err = f.sessions.Get(ctx, id)
	require.ErrorIs(t, err, store.ErrSessionNotFound)
}

func TestSessionManager_Destroy(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	id, err := f.manager.Create(ctx, uuid.New(), auth.SessionMeta{})
	require.NoError(t, err)

	require.NoError(t, f.manager.Destroy(ctx, id))
	require.NoError(t, f.manager.Destroy(ctx, id))
	require.NoError(t, f.manager.Destroy(ctx, ""))
}

func TestSessionManager_Regenerate(t *testing.T) {
	ctx := context.Background()

	t.Run("old id invalid, new id bound to same user", func(t *testing.T) {
		f := newFixture(t)
		user, err := f.credentials.Register(ctx, "Ada", "ada@example.com", "secret1")
		require.NoError(t, err)

		oldID, err := f.manager.Create(ctx, user.ID, auth.SessionMeta{})
		require.NoError(t, err)

		newID, err := f.manager.Regenerate(ctx, oldID, user.ID, auth.SessionMeta{})
		require.NoError(t, err)
		require.NotEqual(t, oldID, newID)

		_, ok, err := f.manager.Lookup(ctx, oldID)
		require.NoError(t, err)
		assert.False(t, ok)

		userID, ok, err := f.manager.Lookup(ctx, newID)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, user.ID, userID)
	})

	t.Run("old session gone", func(t *testing.T) {
		f := newFixture(t)

		_, err := f.manager.Regenerate(ctx, "missing", uuid.New(), auth.SessionMeta{})
		require.ErrorIs(t, err, auth.ErrUnauthenticated)
	})
}

// failingSessionStore fails every call, standing in for an unreachable datastore.
type failingSessionStore struct {
	*memory.SessionStore
}

var errStoreDown = errors.New("connection refused")

func (failingSessionStore) Get(context.Context, string) (*models.Session, error) {
	return nil, errStoreDown
}

func (failingSessionStore) Delete(context.Context, string) error {
	return errStoreDown
}

func TestSessionManager_StoreFailure(t *testing.T) {
	ctx := context.Background()
	manager := auth.NewSessionManager(failingSessionStore{memory.NewSessionStore()}, memory.NewUserStore())

	_, ok, err := manager.Lookup(ctx, "abc")
	require.ErrorIs(t, err, errStoreDown)
	assert.False(t, ok)

	require.ErrorIs(t, manager.Destroy(ctx, "abc"), errStoreDown)
}
