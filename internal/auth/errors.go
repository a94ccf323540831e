package auth

import (
	"errors"
	"fmt"
)

// User-facing failures. Anything else returned by this package is an
// internal error wrapped with an oops code.
var (
	ErrValidation         = errors.New("validation failed")
	ErrDuplicateEmail     = errors.New("email already in use")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUnauthenticated    = errors.New("not authenticated")

	// ErrInvalidCurrentPassword is only returned to an already authenticated caller.
	// It also matches ErrInvalidCredentials.
	ErrInvalidCurrentPassword = fmt.Errorf("invalid current password: %w", ErrInvalidCredentials)

	// ErrSessionUpdate is returned when the session could not be rotated after a password change.
	ErrSessionUpdate = errors.New("could not update session")

	ErrHasherClosed = errors.New("password hasher closed")
)

// ValidationError describes the first invalid field of a request.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}
