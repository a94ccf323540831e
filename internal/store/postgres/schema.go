package postgres

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
)

// The session table layout is shared with connect-pg-simple so existing
// deployments keep working: sid, a json payload, and a UTC expiry.
const (
	createSessionTableSQL = `CREATE TABLE IF NOT EXISTS "session" (
	"sid" varchar NOT NULL COLLATE "default",
	"sess" json NOT NULL,
	"expire" timestamp(6) NOT NULL,
	CONSTRAINT "session_pkey" PRIMARY KEY ("sid")
)`
	createSessionExpireIndexSQL = `CREATE INDEX IF NOT EXISTS "IDX_session_expire" ON "session" ("expire")`
)

// EnsureSessionSchema creates the session table and its expiry index if they do not exist.
func EnsureSessionSchema(ctx context.Context, db DB) error {
	if _, err := db.Exec(ctx, createSessionTableSQL); err != nil {
		return fmt.Errorf("failed to create session table: %w", mapPostgresError(err))
	}

	if _, err := db.Exec(ctx, createSessionExpireIndexSQL); err != nil {
		return fmt.Errorf("failed to create session expire index: %w", mapPostgresError(err))
	}

	log.Debug().Msg("Session table ensured")

	return nil
}
