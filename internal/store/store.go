package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/wolfeidau/unirating/internal/models"
)

// Sentinel errors for common error conditions
var (
	ErrUserNotFound    = errors.New("user not found")
	ErrEmailTaken      = errors.New("email already registered")
	ErrSessionNotFound = errors.New("session not found")
	ErrSessionExpired  = errors.New("session expired")
)

// UserStore persists credential records.
// Implementations must enforce email uniqueness and return ErrEmailTaken on conflict.
type UserStore interface {
	Create(ctx context.Context, user *models.User) error
	Get(ctx context.Context, id uuid.UUID) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	UpdatePassword(ctx context.Context, id uuid.UUID, passwordHash string, updatedAt time.Time) error
}

// SessionStore persists session records with an expiry.
type SessionStore interface {
	Create(ctx context.Context, session *models.Session) error

	// Get returns ErrSessionNotFound for unknown ids and ErrSessionExpired once
	// the expiry has passed.
	Get(ctx context.Context, sessionID string) (*models.Session, error)

	// Delete returns ErrSessionNotFound when nothing was removed.
	Delete(ctx context.Context, sessionID string) error

	// Regenerate removes oldID and stores next as a single atomic unit.
	// If oldID no longer exists nothing is written and ErrSessionNotFound is returned.
	Regenerate(ctx context.Context, oldID string, next *models.Session) error

	// DeleteExpired removes expired sessions and returns how many were removed.
	DeleteExpired(ctx context.Context) (int, error)
}
