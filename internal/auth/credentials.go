package auth

import (
	"context"
	"crypto/rand"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/samber/oops"
	"github.com/wolfeidau/unirating/internal/models"
	"github.com/wolfeidau/unirating/internal/store"
)

// CredentialStore owns user records and their password hashes.
type CredentialStore struct {
	users  store.UserStore
	hasher PasswordHasher

	// dummyHash is verified against when an email is unknown so both
	// login failure paths cost one bcrypt comparison.
	dummyHash string
}

// NewCredentialStore creates a CredentialStore. It hashes one random password
// up front to produce the dummy hash at the configured cost.
func NewCredentialStore(ctx context.Context, users store.UserStore, hasher PasswordHasher) (*CredentialStore, error) {
	dummyHash, err := hasher.Hash(ctx, rand.Text())
	if err != nil {
		return nil, oops.Code("AUTH_INIT_FAILED").With("operation", "hash dummy password").Wrap(err)
	}

	return &CredentialStore{
		users:     users,
		hasher:    hasher,
		dummyHash: dummyHash,
	}, nil
}

// Register creates a user. The email must not belong to another user.
func (c *CredentialStore) Register(ctx context.Context, name, email, password string) (*models.User, error) {
	_, err := c.users.GetByEmail(ctx, email)
	switch {
	case err == nil:
		return nil, ErrDuplicateEmail
	case !errors.Is(err, store.ErrUserNotFound):
		return nil, oops.Code("AUTH_REGISTER_FAILED").With("operation", "get user by email").Wrap(err)
	}

	hash, err := c.hasher.Hash(ctx, password)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	user := &models.User{
		ID:           uuid.Must(uuid.NewV7()),
		Name:         name,
		Email:        email,
		PasswordHash: hash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := c.users.Create(ctx, user); err != nil {
		// lost a race with a concurrent registration
		if errors.Is(err, store.ErrEmailTaken) {
			return nil, ErrDuplicateEmail
		}
		return nil, oops.Code("AUTH_REGISTER_FAILED").With("operation", "create user").Wrap(err)
	}

	log.Info().Str("user_id", user.ID.String()).Msg("User registered")

	return user, nil
}

// Authenticate returns the user for a matching email and password.
// Unknown email and wrong password both return ErrInvalidCredentials.
func (c *CredentialStore) Authenticate(ctx context.Context, email, password string) (*models.User, error) {
	user, err := c.users.GetByEmail(ctx, email)

	targetHash := c.dummyHash
	switch {
	case err == nil:
		targetHash = user.PasswordHash
	case !errors.Is(err, store.ErrUserNotFound):
		return nil, oops.Code("AUTH_LOGIN_FAILED").With("operation", "get user by email").Wrap(err)
	}

	valid, err := c.hasher.Verify(ctx, password, targetHash)
	if err != nil {
		return nil, oops.Code("AUTH_LOGIN_FAILED").With("operation", "verify password").Wrap(err)
	}

	if user == nil || !valid {
		return nil, ErrInvalidCredentials
	}

	return user, nil
}

// Get resolves a user id. A missing user is ErrUnauthenticated.
func (c *CredentialStore) Get(ctx context.Context, userID uuid.UUID) (*models.User, error) {
	user, err := c.users.Get(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrUserNotFound) {
			return nil, ErrUnauthenticated
		}
		return nil, oops.Code("AUTH_USER_LOOKUP_FAILED").With("user_id", userID.String()).Wrap(err)
	}
	return user, nil
}

// ChangePassword replaces the user's hash after verifying the old password.
func (c *CredentialStore) ChangePassword(ctx context.Context, userID uuid.UUID, oldPassword, newPassword string) error {
	user, err := c.Get(ctx, userID)
	if err != nil {
		return err
	}

	valid, err := c.hasher.Verify(ctx, oldPassword, user.PasswordHash)
	if err != nil {
		return oops.Code("AUTH_CHANGE_PASSWORD_FAILED").With("operation", "verify password").Wrap(err)
	}
	if !valid {
		return ErrInvalidCurrentPassword
	}

	hash, err := c.hasher.Hash(ctx, newPassword)
	if err != nil {
		return err
	}

	if err := c.users.UpdatePassword(ctx, userID, hash, time.Now()); err != nil {
		if errors.Is(err, store.ErrUserNotFound) {
			return ErrUnauthenticated
		}
		return oops.Code("AUTH_CHANGE_PASSWORD_FAILED").With("operation", "update password").Wrap(err)
	}

	log.Info().Str("user_id", userID.String()).Msg("Password changed")

	return nil
}
