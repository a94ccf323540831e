package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/unirating/internal/models"
	"github.com/wolfeidau/unirating/internal/store"
)

const (
	keyPrefix = "sess:"

	// attempts for an optimistic regenerate when the watched key changes underneath it
	regenerateAttempts = 3
)

// record is the JSON document stored under each session key.
type record struct {
	Sess   models.SessionData `json:"sess"`
	Expire time.Time          `json:"expire"`
}

// SessionStore implements store.SessionStore on Redis. Keys carry a TTL matching
// the session expiry so Redis evicts expired sessions itself.
type SessionStore struct {
	client redis.UniversalClient
}

// NewSessionStore creates a new Redis-backed session store.
func NewSessionStore(client redis.UniversalClient) *SessionStore {
	return &SessionStore{
		client: client,
	}
}

// NewClient parses a redis:// URL and returns a client. It does not connect.
func NewClient(url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}
	return redis.NewClient(opts), nil
}

// Probe sends a PING, used as a readiness check.
func Probe(ctx context.Context, client redis.UniversalClient) error {
	return client.Ping(ctx).Err()
}

func key(sessionID string) string {
	return keyPrefix + sessionID
}

func encode(session *models.Session) ([]byte, time.Duration, error) {
	data, err := json.Marshal(record{Sess: session.Data, Expire: session.ExpiresAt.UTC()})
	if err != nil {
		return nil, 0, fmt.Errorf("failed to marshal session: %w", err)
	}
	return data, time.Until(session.ExpiresAt), nil
}

// Create stores a session with a TTL. Sessions that are already expired are not written.
func (s *SessionStore) Create(ctx context.Context, session *models.Session) error {
	data, ttl, err := encode(session)
	if err != nil {
		return err
	}
	if ttl <= 0 {
		return nil
	}

	if err := s.client.Set(ctx, key(session.ID), data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}

	log.Debug().
		Str("user_id", session.Data.UserID.String()).
		Msg("Created session")

	return nil
}

// Get retrieves a session by ID.
func (s *SessionStore) Get(ctx context.Context, sessionID string) (*models.Session, error) {
	data, err := s.client.Get(ctx, key(sessionID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, store.ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	var rec record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}

	session := &models.Session{
		ID:        sessionID,
		Data:      rec.Sess,
		ExpiresAt: rec.Expire,
	}
	if session.IsExpired() {
		return nil, store.ErrSessionExpired
	}

	return session, nil
}

// Delete deletes a session by ID (logout).
func (s *SessionStore) Delete(ctx context.Context, sessionID string) error {
	n, err := s.client.Del(ctx, key(sessionID)).Result()
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}

	if n == 0 {
		return store.ErrSessionNotFound
	}

	return nil
}

// Regenerate watches the old key and swaps it for next inside MULTI/EXEC.
func (s *SessionStore) Regenerate(ctx context.Context, oldID string, next *models.Session) error {
	data, ttl, err := encode(next)
	if err != nil {
		return err
	}
	if ttl <= 0 {
		return fmt.Errorf("refusing to regenerate into an expired session")
	}

	oldKey := key(oldID)

	swap := func(tx *redis.Tx) error {
		n, err := tx.Exists(ctx, oldKey).Result()
		if err != nil {
			return err
		}
		if n == 0 {
			return store.ErrSessionNotFound
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, oldKey)
			pipe.Set(ctx, key(next.ID), data, ttl)
			return nil
		})
		return err
	}

	for range regenerateAttempts {
		err = s.client.Watch(ctx, swap, oldKey)
		if !errors.Is(err, redis.TxFailedErr) {
			break
		}
		log.Debug().Msg("Session changed during regenerate, retrying")
	}

	switch {
	case err == nil:
	case errors.Is(err, store.ErrSessionNotFound):
		return store.ErrSessionNotFound
	default:
		return fmt.Errorf("failed to regenerate session: %w", err)
	}

	log.Debug().
		Str("user_id", next.Data.UserID.String()).
		Msg("Regenerated session")

	return nil
}

// DeleteExpired is a no-op, keys expire through their TTL.
func (s *SessionStore) DeleteExpired(ctx context.Context) (int, error) {
	return 0, nil
}
