package postgres

import (
	"context"
	"database/sql"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockStateStore(t *testing.T) (*StateStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	return NewStateStore(sqlx.NewDb(db, "postgres")), mock
}

func TestStateStore_Get_Found(t *testing.T) {
	s, mock := newMockStateStore(t)

	mock.ExpectQuery(`SELECT value FROM kv_state WHERE key = \$1`).
		WithArgs("provider_cursor").
		WillReturnRows(sqlmock.NewRows([]string{"value"}).AddRow("3"))

	value, ok, err := s.Get(context.Background(), "provider_cursor")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "3", value)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStateStore_Get_Missing(t *testing.T) {
	s, mock := newMockStateStore(t)

	mock.ExpectQuery(`SELECT value FROM kv_state WHERE key = \$1`).
		WithArgs("unset").
		WillReturnError(sql.ErrNoRows)

	_, ok, err := s.Get(context.Background(), "unset")
	require.NoError(t, err)
	assert.False(t, ok)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStateStore_Set(t *testing.T) {
	s, mock := newMockStateStore(t)

	mock.ExpectExec(`INSERT INTO kv_state`).
		WithArgs("provider_cursor", "4").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := s.Set(context.Background(), "provider_cursor", "4")
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}
