package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wolfeidau/unirating/internal/models"
	"github.com/wolfeidau/unirating/internal/store"
)

var userRowColumns = []string{"id", "name", "email", "password_hash", "created_at", "updated_at"}

func TestUserStore_Create(t *testing.T) {
	now := time.Now()
	user := &models.User{
		ID:           uuid.Must(uuid.NewV7()),
		Name:         "Ada",
		Email:        "ada@example.com",
		PasswordHash: "$2a$10$hash",
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	tests := []struct {
		name      string
		setupMock func(mock pgxmock.PgxPoolIface)
		wantErr   error
	}{
		{
			name: "inserts user",
			setupMock: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectExec(`INSERT INTO users`).
					WithArgs(user.ID, "Ada", "ada@example.com", "$2a$10$hash", pgxmock.AnyArg(), pgxmock.AnyArg()).
					WillReturnResult(pgxmock.NewResult("INSERT", 1))
			},
		},
		{
			name: "duplicate email maps to sentinel",
			setupMock: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectExec(`INSERT INTO users`).
					WithArgs(user.ID, "Ada", "ada@example.com", "$2a$10$hash", pgxmock.AnyArg(), pgxmock.AnyArg()).
					WillReturnError(&pgconn.PgError{Code: pgerrcode.UniqueViolation, ConstraintName: usersEmailConstraint})
			},
			wantErr: store.ErrEmailTaken,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock, err := pgxmock.NewPool()
			require.NoError(t, err)
			defer mock.Close()

			tt.setupMock(mock)

			err = NewUserStore(mock).Create(context.Background(), user)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
			} else {
				require.NoError(t, err)
			}
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestUserStore_GetByEmail(t *testing.T) {
	id := uuid.Must(uuid.NewV7())
	now := time.Now().UTC()

	t.Run("found", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		mock.ExpectQuery(`SELECT id, name, email, password_hash, created_at, updated_at FROM users WHERE email = \$1`).
			WithArgs("ada@example.com").
			WillReturnRows(pgxmock.NewRows(userRowColumns).
				AddRow(id.String(), "Ada", "ada@example.com", "$2a$10$hash", now, now))

		user, err := NewUserStore(mock).GetByEmail(context.Background(), "ada@example.com")
		require.NoError(t, err)
		assert.Equal(t, id, user.ID)
		assert.Equal(t, "Ada", user.Name)
		assert.Equal(t, "$2a$10$hash", user.PasswordHash)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("not found", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		mock.ExpectQuery(`FROM users WHERE email = \$1`).
			WithArgs("missing@example.com").
			WillReturnRows(pgxmock.NewRows(userRowColumns))

		_, err = NewUserStore(mock).GetByEmail(context.Background(), "missing@example.com")
		require.ErrorIs(t, err, store.ErrUserNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("database error", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		mock.ExpectQuery(`FROM users WHERE email = \$1`).
			WithArgs("ada@example.com").
			WillReturnError(errors.New("connection refused"))

		_, err = NewUserStore(mock).GetByEmail(context.Background(), "ada@example.com")
		require.Error(t, err)
		require.NotErrorIs(t, err, store.ErrUserNotFound)
		assert.Contains(t, err.Error(), "connection refused")
	})
}

func TestUserStore_Get(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	id := uuid.Must(uuid.NewV7())
	now := time.Now().UTC()

	mock.ExpectQuery(`FROM users WHERE id = \$1`).
		WithArgs(id).
		WillReturnRows(pgxmock.NewRows(userRowColumns).
			AddRow(id.String(), "Ada", "ada@example.com", "$2a$10$hash", now, now))

	user, err := NewUserStore(mock).Get(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "ada@example.com", user.Email)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserStore_UpdatePassword(t *testing.T) {
	id := uuid.Must(uuid.NewV7())

	tests := []struct {
		name     string
		affected int64
		wantErr  error
	}{
		{name: "updates hash", affected: 1},
		{name: "unknown user", affected: 0, wantErr: store.ErrUserNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock, err := pgxmock.NewPool()
			require.NoError(t, err)
			defer mock.Close()

			mock.ExpectExec(`UPDATE users`).
				WithArgs(id, "$2a$10$new", pgxmock.AnyArg()).
				WillReturnResult(pgxmock.NewResult("UPDATE", tt.affected))

			err = NewUserStore(mock).UpdatePassword(context.Background(), id, "$2a$10$new", time.Now())
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
			} else {
				require.NoError(t, err)
			}
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}
