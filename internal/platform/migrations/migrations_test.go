package migrations

import (
	"database/sql"
	"os"
	"testing"

	_ "github.com/lib/pq"
	"github.com/stretchr/testify/require"
)

// These exercise the real golang-migrate/Postgres driver end to end, which
// issues its own advisory-lock and schema_migrations bookkeeping queries
// that a sqlmock expectation list cannot enumerate cleanly; a live database
// is the only honest way to verify Apply/CurrentStatus/Pending.
func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	dsn := os.Getenv("TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("TEST_POSTGRES_DSN not set; skipping postgres migrations integration test")
	}

	db, err := sql.Open("postgres", dsn)
	require.NoError(t, err)
	t.Cleanup(func() {
		_, _ = db.Exec(`DROP TABLE IF EXISTS jobs, beacons, payment_failures, kv_state, schema_migrations CASCADE`)
		_ = db.Close()
	})

	_, err = db.Exec(`DROP TABLE IF EXISTS jobs, beacons, payment_failures, kv_state, schema_migrations CASCADE`)
	require.NoError(t, err)
	return db
}

func TestApply_RunsAllMigrationsIdempotently(t *testing.T) {
	db := openTestDB(t)

	require.NoError(t, Apply(db))
	// A second Apply against an already-migrated schema must be a no-op,
	// not an error (migrate.ErrNoChange is swallowed by Apply).
	require.NoError(t, Apply(db))

	for _, table := range []string{"jobs", "beacons", "payment_failures", "kv_state"} {
		var exists bool
		err := db.QueryRow(
			`SELECT EXISTS (SELECT 1 FROM information_schema.tables WHERE table_name = $1)`, table,
		).Scan(&exists)
		require.NoError(t, err)
		require.Truef(t, exists, "expected table %q to exist after Apply", table)
	}
}

func TestCurrentStatus_ReflectsAppliedVersion(t *testing.T) {
	db := openTestDB(t)

	status, err := CurrentStatus(db)
	require.NoError(t, err)
	require.True(t, status.NoneApplied)

	require.NoError(t, Apply(db))

	status, err = CurrentStatus(db)
	require.NoError(t, err)
	require.False(t, status.NoneApplied)
	require.False(t, status.Dirty)
	require.Equal(t, uint(4), status.Version)
}

func TestPending_EmptyAfterApply(t *testing.T) {
	db := openTestDB(t)

	before, err := Pending(db)
	require.NoError(t, err)
	require.Len(t, before, 4)

	require.NoError(t, Apply(db))

	after, err := Pending(db)
	require.NoError(t, err)
	require.Empty(t, after)
}
