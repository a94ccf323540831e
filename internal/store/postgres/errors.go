package postgres

import (
	"errors"
	"fmt"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/wolfeidau/unirating/internal/store"
)

const usersEmailConstraint = "users_email_key"

// mapPostgresError maps the duplicate email violation to store.ErrEmailTaken and
// annotates the other server errors the stores can hit. Non-PostgreSQL errors are returned unchanged.
func mapPostgresError(err error) error {
	if err == nil {
		return nil
	}

	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}

	switch pgErr.Code {
	case pgerrcode.UniqueViolation:
		if pgErr.ConstraintName == usersEmailConstraint {
			return fmt.Errorf("%w: %s", store.ErrEmailTaken, pgErr.Detail)
		}
		return fmt.Errorf("unique constraint violation: %s: %w", pgErr.ConstraintName, err)

	case pgerrcode.UndefinedTable:
		return fmt.Errorf("schema missing, run migrations or enable auto-migrate: %w", err)

	// returned while the server is still starting, the readiness probe retries these
	case pgerrcode.CannotConnectNow, pgerrcode.TooManyConnections:
		return fmt.Errorf("database not accepting connections: %w", err)

	default:
		return fmt.Errorf("postgres error [%s]: %s: %w", pgErr.Code, pgErr.Message, err)
	}
}
