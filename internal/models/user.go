package models

import (
	"time"

	"github.com/google/uuid"
)

// User is a credential record. Email is unique and matched exactly.
type User struct {
	ID           uuid.UUID // UUIDv7
	Name         string
	Email        string
	PasswordHash string // bcrypt

	CreatedAt time.Time
	UpdatedAt time.Time
}
