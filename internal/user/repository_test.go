package user

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock, *Repository) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db, mock, NewRepository(db)
}

func TestRepositoryCreateUserDuplicate(t *testing.T) {
	_, mock, repo := setupMockDB(t)

	mock.ExpectExec("INSERT INTO users").
		WillReturnError(&pgconn.PgError{Code: "23505"})

	err := repo.CreateUser(context.Background(), &User{ID: "u1", Username: "alice"})
	assert.ErrorIs(t, err, ErrTaken)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepositoryGetUserByID(t *testing.T) {
	_, mock, repo := setupMockDB(t)
	now := time.Now()

	cols := []string{"id", "username", "email", "password_hash", "display_name", "avatar_url", "created_at"}
	mock.ExpectQuery("SELECT (.+) FROM users WHERE id = \\$1").
		WithArgs("u1").
		WillReturnRows(sqlmock.NewRows(cols).AddRow("u1", "alice", "", "hash", "Alice", "a.png", now))
	mock.ExpectQuery("SELECT (.+) FROM users WHERE id = \\$1").
		WithArgs("u2").
		WillReturnRows(sqlmock.NewRows(cols))

	u, err := repo.GetUserByID(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, "Alice", u.DisplayName)

	_, err = repo.GetUserByID(context.Background(), "u2")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepositoryGetUsersByIDs(t *testing.T) {
	_, mock, repo := setupMockDB(t)

	users, err := repo.GetUsersByIDs(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, users)

	cols := []string{"id", "username", "email", "password_hash", "display_name", "avatar_url", "created_at"}
	mock.ExpectQuery("FROM users WHERE id IN \\(\\$1, \\$2\\)").
		WithArgs("u1", "u2").
		WillReturnRows(sqlmock.NewRows(cols).
			AddRow("u1", "alice", "", "h", "Alice", "", time.Now()).
			AddRow("u2", "bob", "", "h", "Bob", "", time.Now()))

	users, err = repo.GetUsersByIDs(context.Background(), []string{"u1", "u2"})
	require.NoError(t, err)
	assert.Len(t, users, 2)
	assert.NoError(t, mock.ExpectationsWereMet())
}
