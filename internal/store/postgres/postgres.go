// Package postgres implements internal/store's interfaces on top of
// PostgreSQL via jmoiron/sqlx, grounded on the teacher's BaseStore
// tx-context propagation pattern.
package postgres

import (
	"context"

	"github.com/jmoiron/sqlx"
)

type txKey struct{}

// WithTx returns a context carrying tx, so nested store calls reuse it
// instead of opening a second connection.
func WithTx(ctx context.Context, tx *sqlx.Tx) context.Context {
	return context.WithValue(ctx, txKey{}, tx)
}

// TxFromContext returns the transaction stashed by WithTx, if any.
func TxFromContext(ctx context.Context) (*sqlx.Tx, bool) {
	tx, ok := ctx.Value(txKey{}).(*sqlx.Tx)
	return tx, ok
}

// execer is satisfied by both *sqlx.DB and *sqlx.Tx, letting every store
// method run against whichever is active in ctx without branching.
type execer interface {
	sqlx.ExtContext
}

// BaseStore centralizes the ctx-aware execer lookup every concrete store
// embeds.
type BaseStore struct {
	DB *sqlx.DB
}

// Ext returns the sqlx.Tx in ctx if present, else the pooled DB handle.
func (s *BaseStore) Ext(ctx context.Context) execer {
	if tx, ok := TxFromContext(ctx); ok {
		return tx
	}
	return s.DB
}

// RunInTx runs fn with a transaction attached to ctx, committing on
// success and rolling back on error or panic.
func (s *BaseStore) RunInTx(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	tx, err := s.DB.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
			return
		}
		err = tx.Commit()
	}()

	return fn(WithTx(ctx, tx))
}
