package auth

import (
	"context"
	"crypto/rand"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/mr-tron/base58"
	"github.com/rs/zerolog/log"
	"github.com/samber/oops"
	"github.com/wolfeidau/unirating/internal/models"
	"github.com/wolfeidau/unirating/internal/store"
	"github.com/wolfeidau/unirating/internal/telemetry"
)

const sessionIDBytes = 32

// SessionMeta is audit metadata recorded with a new session.
type SessionMeta struct {
	UserAgent string
	IPAddress string
}

// NewSessionID returns 32 random bytes, base58 encoded.
func NewSessionID() (string, error) {
	b := make([]byte, sessionIDBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base58.Encode(b), nil
}

// SessionManager creates, resolves, destroys and regenerates sessions.
// Sessions refer to users by id only; a session whose user is gone is unauthenticated.
type SessionManager struct {
	sessions store.SessionStore
	users    store.UserStore
	ttl      time.Duration
}

// NewSessionManager creates a SessionManager issuing sessions that live for models.SessionTTL.
func NewSessionManager(sessions store.SessionStore, users store.UserStore) *SessionManager {
	return &SessionManager{
		sessions: sessions,
		users:    users,
		ttl:      models.SessionTTL,
	}
}

func (m *SessionManager) newSession(userID uuid.UUID, meta SessionMeta) (*models.Session, error) {
	id, err := NewSessionID()
	if err != nil {
		return nil, oops.Code("AUTH_SESSION_ID_FAILED").Wrap(err)
	}

	now := time.Now()
	return &models.Session{
		ID: id,
		Data: models.SessionData{
			UserID:    userID,
			CreatedAt: now,
			UserAgent: meta.UserAgent,
			IPAddress: meta.IPAddress,
		},
		ExpiresAt: now.Add(m.ttl),
	}, nil
}

// Create issues a new session for userID and returns its id.
func (m *SessionManager) Create(ctx context.Context, userID uuid.UUID, meta SessionMeta) (string, error) {
	session, err := m.newSession(userID, meta)
	if err != nil {
		return "", err
	}

	if err := m.sessions.Create(ctx, session); err != nil {
		return "", oops.Code("AUTH_SESSION_CREATE_FAILED").With("user_id", userID.String()).Wrap(err)
	}

	telemetry.GetMetrics().SessionsCreatedTotal.Add(ctx, 1)

	return session.ID, nil
}

// Resolve returns the user bound to sessionID. Absent, expired and orphaned
// sessions return ErrUnauthenticated; orphaned sessions are removed.
func (m *SessionManager) Resolve(ctx context.Context, sessionID string) (*models.User, error) {
	if sessionID == "" {
		return nil, ErrUnauthenticated
	}

	session, err := m.sessions.Get(ctx, sessionID)
	if err != nil {
		if errors.Is(err, store.ErrSessionNotFound) || errors.Is(err, store.ErrSessionExpired) {
			return nil, ErrUnauthenticated
		}
		return nil, oops.Code("AUTH_SESSION_LOOKUP_FAILED").Wrap(err)
	}

	user, err := m.users.Get(ctx, session.Data.UserID)
	if err != nil {
		if errors.Is(err, store.ErrUserNotFound) {
			log.Info().Str("user_id", session.Data.UserID.String()).Msg("Removing orphaned session")
			if err := m.Destroy(ctx, sessionID); err != nil {
				log.Warn().Err(err).Msg("Failed to remove orphaned session")
			}
			return nil, ErrUnauthenticated
		}
		return nil, oops.Code("AUTH_SESSION_LOOKUP_FAILED").With("user_id", session.Data.UserID.String()).Wrap(err)
	}

	return user, nil
}

// Lookup returns the user id bound to sessionID, or false when the session does not resolve.
// Only datastore failures are returned as errors.
func (m *SessionManager) Lookup(ctx context.Context, sessionID string) (uuid.UUID, bool, error) {
	user, err := m.Resolve(ctx, sessionID)
	if err != nil {
		if errors.Is(err, ErrUnauthenticated) {
			return uuid.Nil, false, nil
		}
		return uuid.Nil, false, err
	}
	return user.ID, true, nil
}

// Destroy removes a session. Removing an absent session is not an error.
func (m *SessionManager) Destroy(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return nil
	}

	err := m.sessions.Delete(ctx, sessionID)
	switch {
	case err == nil:
		telemetry.GetMetrics().SessionsDestroyedTotal.Add(ctx, 1)
	case !errors.Is(err, store.ErrSessionNotFound):
		return oops.Code("AUTH_SESSION_DESTROY_FAILED").Wrap(err)
	}

	return nil
}

// Regenerate replaces oldID with a new session for the same user in one store call.
// Once it returns, oldID no longer resolves.
func (m *SessionManager) Regenerate(ctx context.Context, oldID string, userID uuid.UUID, meta SessionMeta) (string, error) {
	next, err := m.newSession(userID, meta)
	if err != nil {
		return "", err
	}

	if err := m.sessions.Regenerate(ctx, oldID, next); err != nil {
		if errors.Is(err, store.ErrSessionNotFound) {
			return "", ErrUnauthenticated
		}
		return "", oops.Code("AUTH_SESSION_REGENERATE_FAILED").With("user_id", userID.String()).Wrap(err)
	}

	telemetry.GetMetrics().SessionsRegeneratedTotal.Add(ctx, 1)

	return next.ID, nil
}
