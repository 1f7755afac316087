package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/wopr-systems/beacon-orchestrator/internal/store"
)

// StateStore is the Postgres-backed store.StateStore implementation: a
// generic key-value table (§6.7) used for the provider round-robin cursor
// and any other small piece of durable orchestrator state.
type StateStore struct {
	BaseStore
}

func NewStateStore(db *sqlx.DB) *StateStore {
	return &StateStore{BaseStore{DB: db}}
}

var _ store.StateStore = (*StateStore)(nil)

func (s *StateStore) Get(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := sqlx.GetContext(ctx, s.Ext(ctx), &value, `SELECT value FROM kv_state WHERE key = $1`, key)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("postgres: get state %q: %w", key, err)
	}
	return value, true, nil
}

func (s *StateStore) Set(ctx context.Context, key, value string) error {
	_, err := s.Ext(ctx).ExecContext(ctx, `
INSERT INTO kv_state (key, value) VALUES ($1, $2)
ON CONFLICT (key) DO UPDATE SET value = $2`, key, value)
	if err != nil {
		return fmt.Errorf("postgres: set state %q: %w", key, err)
	}
	return nil
}
