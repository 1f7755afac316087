package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/wopr-systems/beacon-orchestrator/internal/job"
	"github.com/wopr-systems/beacon-orchestrator/internal/store"
)

// PaymentFailureStore is the Postgres-backed store.PaymentFailureStore
// implementation: the dunning ledger, one row per subscription.
type PaymentFailureStore struct {
	BaseStore
}

func NewPaymentFailureStore(db *sqlx.DB) *PaymentFailureStore {
	return &PaymentFailureStore{BaseStore{DB: db}}
}

var _ store.PaymentFailureStore = (*PaymentFailureStore)(nil)

type paymentFailureRow struct {
	SubscriptionID string    `db:"subscription_id"`
	FailureCount   int       `db:"failure_count"`
	FirstFailedAt  time.Time `db:"first_failed_at"`
	LastFailedAt   time.Time `db:"last_failed_at"`
}

func (r paymentFailureRow) toDomain() *job.PaymentFailure {
	return &job.PaymentFailure{
		SubscriptionID: r.SubscriptionID,
		FailureCount:   r.FailureCount,
		FirstFailedAt:  r.FirstFailedAt,
		LastFailedAt:   r.LastFailedAt,
	}
}

func (s *PaymentFailureStore) Get(ctx context.Context, subscriptionID string) (*job.PaymentFailure, error) {
	var row paymentFailureRow
	err := sqlx.GetContext(ctx, s.Ext(ctx), &row,
		`SELECT * FROM payment_failures WHERE subscription_id = $1`, subscriptionID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: get payment failure %s: %w", subscriptionID, err)
	}
	return row.toDomain(), nil
}

// Increment records a new payment failure, creating the ledger row if
// this is the subscription's first, and returns the updated record.
func (s *PaymentFailureStore) Increment(ctx context.Context, subscriptionID string, at time.Time) (*job.PaymentFailure, error) {
	const upsertSQL = `
INSERT INTO payment_failures (subscription_id, failure_count, first_failed_at, last_failed_at)
VALUES ($1, 1, $2, $2)
ON CONFLICT (subscription_id) DO UPDATE SET
	failure_count = payment_failures.failure_count + 1,
	last_failed_at = $2
RETURNING subscription_id, failure_count, first_failed_at, last_failed_at`

	var row paymentFailureRow
	err := sqlx.GetContext(ctx, s.Ext(ctx), &row, upsertSQL, subscriptionID, at)
	if err != nil {
		return nil, fmt.Errorf("postgres: increment payment failure %s: %w", subscriptionID, err)
	}
	return row.toDomain(), nil
}

func (s *PaymentFailureStore) Reset(ctx context.Context, subscriptionID string) error {
	_, err := s.Ext(ctx).ExecContext(ctx,
		`DELETE FROM payment_failures WHERE subscription_id = $1`, subscriptionID)
	if err != nil {
		return fmt.Errorf("postgres: reset payment failure %s: %w", subscriptionID, err)
	}
	return nil
}
