package auth

import (
	"context"
	"errors"

	"github.com/rs/zerolog/log"
	"github.com/samber/oops"
	"github.com/wolfeidau/unirating/internal/models"
	"github.com/wolfeidau/unirating/internal/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Service implements the register, login, logout, current user and
// change-password flows on top of the credential store and session manager.
type Service struct {
	credentials *CredentialStore
	sessions    *SessionManager
}

// NewService creates a new Service.
func NewService(credentials *CredentialStore, sessions *SessionManager) *Service {
	return &Service{
		credentials: credentials,
		sessions:    sessions,
	}
}

// Register validates the input, creates the user and issues a session.
func (s *Service) Register(ctx context.Context, in RegisterInput, meta SessionMeta) (user *models.User, sessionID string, err error) {
	defer func() { s.record(ctx, "register", err) }()

	if err = validateInput(in); err != nil {
		return nil, "", err
	}

	user, err = s.credentials.Register(ctx, in.Name, in.Email, in.Password)
	if err != nil {
		return nil, "", err
	}

	sessionID, err = s.sessions.Create(ctx, user.ID, meta)
	if err != nil {
		return nil, "", err
	}

	return user, sessionID, nil
}

// Login authenticates the caller and issues a fresh session. A session the
// caller already presented is destroyed so its id is never reused for this login.
func (s *Service) Login(ctx context.Context, in LoginInput, previousSessionID string, meta SessionMeta) (user *models.User, sessionID string, err error) {
	defer func() { s.record(ctx, "login", err) }()

	if err = validateInput(in); err != nil {
		return nil, "", err
	}

	user, err = s.credentials.Authenticate(ctx, in.Email, in.Password)
	if err != nil {
		return nil, "", err
	}

	if err := s.sessions.Destroy(ctx, previousSessionID); err != nil {
		log.Warn().Err(err).Msg("Failed to destroy previous session on login")
	}

	sessionID, err = s.sessions.Create(ctx, user.ID, meta)
	if err != nil {
		return nil, "", err
	}

	return user, sessionID, nil
}

// Logout destroys the session. It succeeds when there is no session.
func (s *Service) Logout(ctx context.Context, sessionID string) (err error) {
	defer func() { s.record(ctx, "logout", err) }()

	return s.sessions.Destroy(ctx, sessionID)
}

// CurrentUser returns the user bound to the session or ErrUnauthenticated.
func (s *Service) CurrentUser(ctx context.Context, sessionID string) (user *models.User, err error) {
	defer func() { s.record(ctx, "me", err) }()

	return s.sessions.Resolve(ctx, sessionID)
}

// ChangePassword verifies the old password, stores the new one and rotates the
// session. The returned id replaces sessionID, which no longer resolves.
func (s *Service) ChangePassword(ctx context.Context, sessionID string, in ChangePasswordInput, meta SessionMeta) (newSessionID string, err error) {
	defer func() { s.record(ctx, "change_password", err) }()

	if err = validateInput(in); err != nil {
		return "", err
	}

	user, err := s.sessions.Resolve(ctx, sessionID)
	if err != nil {
		return "", err
	}

	if err = s.credentials.ChangePassword(ctx, user.ID, in.OldPassword, in.NewPassword); err != nil {
		return "", err
	}

	newSessionID, err = s.sessions.Regenerate(ctx, sessionID, user.ID, meta)
	if err != nil {
		return "", oops.Code("AUTH_SESSION_UPDATE_FAILED").With("user_id", user.ID.String()).Wrapf(errors.Join(ErrSessionUpdate, err), "rotate session")
	}

	return newSessionID, nil
}

func (s *Service) record(ctx context.Context, operation string, err error) {
	telemetry.GetMetrics().AuthOperationsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("operation", operation),
		attribute.String("outcome", Outcome(err)),
	))
}

// Outcome classifies an error returned by Service into a short label for metrics and logs.
func Outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrValidation):
		return "invalid_input"
	case errors.Is(err, ErrDuplicateEmail):
		return "duplicate_email"
	case errors.Is(err, ErrInvalidCurrentPassword):
		return "invalid_current_password"
	case errors.Is(err, ErrInvalidCredentials):
		return "invalid_credentials"
	case errors.Is(err, ErrSessionUpdate):
		return "session_update_failed"
	case errors.Is(err, ErrUnauthenticated):
		return "unauthenticated"
	default:
		return "error"
	}
}
