package models

import (
	"time"

	"github.com/google/uuid"
)

// SessionTTL is the fixed lifetime of a session. Sessions do not slide.
const SessionTTL = 7 * 24 * time.Hour

// SessionData is the payload persisted with a session record.
type SessionData struct {
	UserID    uuid.UUID `json:"userId"`
	CreatedAt time.Time `json:"createdAt"`

	// Optional audit metadata
	UserAgent string `json:"userAgent,omitempty"`
	IPAddress string `json:"ip,omitempty"`
}

// Session represents an authenticated browser session.
// The session ID is the only value carried in the cookie, everything else lives server-side.
type Session struct {
	ID        string // base58, 32 random bytes
	Data      SessionData
	ExpiresAt time.Time
}

// IsExpired returns true if the session has expired.
func (s *Session) IsExpired() bool {
	return time.Now().After(s.ExpiresAt)
}
