// Package migrations drives the jobs/beacons/payment_failures/kv_state
// schema through golang-migrate/migrate, embedding the .sql files so the
// binary never depends on a migrations directory existing on disk at
// runtime.
package migrations

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed sql/*.sql
var files embed.FS

// New builds a *migrate.Migrate bound to db's embedded source and an
// already-open *sql.DB, so callers control connection lifecycle.
func New(db *sql.DB) (*migrate.Migrate, error) {
	sourceDriver, err := iofs.New(files, "sql")
	if err != nil {
		return nil, fmt.Errorf("migrations: open embedded source: %w", err)
	}

	dbDriver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return nil, fmt.Errorf("migrations: open postgres driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "postgres", dbDriver)
	if err != nil {
		return nil, fmt.Errorf("migrations: build migrate instance: %w", err)
	}
	return m, nil
}

// Apply runs every pending up migration. A no-change result is not an
// error.
func Apply(db *sql.DB) error {
	m, err := New(db)
	if err != nil {
		return err
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migrations: apply: %w", err)
	}
	return nil
}

// Status reports the currently applied migration version and whether the
// schema is in a dirty (partially-applied) state, for cmd/migrate --status.
type Status struct {
	Version uint
	Dirty   bool
	NoneApplied bool
}

func CurrentStatus(db *sql.DB) (Status, error) {
	m, err := New(db)
	if err != nil {
		return Status{}, err
	}
	version, dirty, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return Status{NoneApplied: true}, nil
	}
	if err != nil {
		return Status{}, fmt.Errorf("migrations: status: %w", err)
	}
	return Status{Version: version, Dirty: dirty}, nil
}

// Pending reports the up migrations that would run without running them,
// for cmd/migrate --dry-run. golang-migrate has no native dry-run, so this
// walks the embedded source itself and compares against CurrentStatus.
func Pending(db *sql.DB) ([]string, error) {
	status, err := CurrentStatus(db)
	if err != nil {
		return nil, err
	}

	sourceDriver, err := iofs.New(files, "sql")
	if err != nil {
		return nil, fmt.Errorf("migrations: open embedded source: %w", err)
	}

	var pending []string
	version, err := sourceDriver.First()
	for ; err == nil; version, err = sourceDriver.Next(version) {
		if status.NoneApplied || version > status.Version {
			_, identifier, rerr := sourceDriver.ReadUp(version)
			if rerr == nil {
				pending = append(pending, identifier)
			} else {
				pending = append(pending, fmt.Sprintf("%d", version))
			}
		}
	}
	return pending, nil
}
