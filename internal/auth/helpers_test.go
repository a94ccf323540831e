package auth_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/wolfeidau/unirating/internal/auth"
	"github.com/wolfeidau/unirating/internal/store/memory"
	"golang.org/x/crypto/bcrypt"
)

type fixture struct {
	users       *memory.UserStore
	sessions    *memory.SessionStore
	credentials *auth.CredentialStore
	manager     *auth.SessionManager
	service     *auth.Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	hasher := auth.NewBcryptHasher(bcrypt.MinCost, 2)
	t.Cleanup(hasher.Close)

	users := memory.NewUserStore()
	sessions := memory.NewSessionStore()

	credentials, err := auth.NewCredentialStore(context.Background(), users, hasher)
	require.NoError(t, err)

	manager := auth.NewSessionManager(sessions, users)

	return &fixture{
		users:       users,
		sessions:    sessions,
		credentials: credentials,
		manager:     manager,
		service:     auth.NewService(credentials, manager),
	}
}
