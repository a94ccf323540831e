package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/unirating/internal/models"
	"github.com/wolfeidau/unirating/internal/store"
)

const (
	insertSessionSQL = `INSERT INTO "session" (sid, sess, expire) VALUES ($1, $2, $3)`
	deleteSessionSQL = `DELETE FROM "session" WHERE sid = $1`
)

// SessionStore implements store.SessionStore using PostgreSQL.
// Expiry timestamps are stored in UTC because the expire column has no time zone.
type SessionStore struct {
	db DB
}

// NewSessionStore creates a new PostgreSQL-backed session store.
func NewSessionStore(db DB) *SessionStore {
	return &SessionStore{
		db: db,
	}
}

// Create creates a new session in the database.
func (s *SessionStore) Create(ctx context.Context, session *models.Session) error {
	sess, err := json.Marshal(session.Data)
	if err != nil {
		return fmt.Errorf("failed to marshal session data: %w", err)
	}

	if _, err := s.db.Exec(ctx, insertSessionSQL, session.ID, sess, session.ExpiresAt.UTC()); err != nil {
		return fmt.Errorf("failed to create session: %w", mapPostgresError(err))
	}

	log.Debug().
		Str("user_id", session.Data.UserID.String()).
		Msg("Created session")

	return nil
}

// Get retrieves a session by ID.
func (s *SessionStore) Get(ctx context.Context, sessionID string) (*models.Session, error) {
	query := `SELECT sess, expire FROM "session" WHERE sid = $1`

	var (
		sess   []byte
		expire time.Time
	)
	err := s.db.QueryRow(ctx, query, sessionID).Scan(&sess, &expire)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to get session: %w", mapPostgresError(err))
	}

	// expire has no time zone; its wall clock is UTC
	session := &models.Session{
		ID:        sessionID,
		ExpiresAt: time.Date(expire.Year(), expire.Month(), expire.Day(), expire.Hour(), expire.Minute(), expire.Second(), expire.Nanosecond(), time.UTC),
	}
	if err := json.Unmarshal(sess, &session.Data); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session data: %w", err)
	}

	if session.IsExpired() {
		return nil, store.ErrSessionExpired
	}

	return session, nil
}

// Delete deletes a session by ID (logout).
func (s *SessionStore) Delete(ctx context.Context, sessionID string) error {
	result, err := s.db.Exec(ctx, deleteSessionSQL, sessionID)
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", mapPostgresError(err))
	}

	if result.RowsAffected() == 0 {
		return store.ErrSessionNotFound
	}

	log.Debug().Msg("Deleted session")

	return nil
}

// Regenerate deletes oldID and inserts next in one transaction.
// Nothing is written if oldID is already gone.
func (s *SessionStore) Regenerate(ctx context.Context, oldID string, next *models.Session) error {
	sess, err := json.Marshal(next.Data)
	if err != nil {
		return fmt.Errorf("failed to marshal session data: %w", err)
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", mapPostgresError(err))
	}

	if err := regenerateTx(ctx, tx, oldID, next, sess); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil {
			log.Warn().Err(rbErr).Msg("Failed to roll back session regenerate")
		}
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit session regenerate: %w", mapPostgresError(err))
	}

	log.Debug().
		Str("user_id", next.Data.UserID.String()).
		Msg("Regenerated session")

	return nil
}

func regenerateTx(ctx context.Context, tx pgx.Tx, oldID string, next *models.Session, sess []byte) error {
	result, err := tx.Exec(ctx, deleteSessionSQL, oldID)
	if err != nil {
		return fmt.Errorf("failed to delete old session: %w", mapPostgresError(err))
	}

	if result.RowsAffected() == 0 {
		return store.ErrSessionNotFound
	}

	if _, err := tx.Exec(ctx, insertSessionSQL, next.ID, sess, next.ExpiresAt.UTC()); err != nil {
		return fmt.Errorf("failed to create session: %w", mapPostgresError(err))
	}

	return nil
}

// DeleteExpired deletes all expired sessions (cleanup job).
func (s *SessionStore) DeleteExpired(ctx context.Context) (int, error) {
	query := `DELETE FROM "session" WHERE expire < $1`

	result, err := s.db.Exec(ctx, query, time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired sessions: %w", mapPostgresError(err))
	}

	count := int(result.RowsAffected())

	if count > 0 {
		log.Info().
			Int("count", count).
			Msg("Deleted expired sessions")
	}

	return count, nil
}
