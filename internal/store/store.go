// Package store defines the persistence interfaces the orchestrator,
// webhook ingress, and dunning engine depend on. Two backends implement
// them: internal/store/postgres (preferred) and internal/store/jsonstore
// (fallback when no DSN is configured), so callers depend only on these
// interfaces and never on a concrete backend.
package store

import (
	"context"
	"time"

	"github.com/wopr-systems/beacon-orchestrator/internal/job"
)

// JobStore persists provisioning jobs.
type JobStore interface {
	Create(ctx context.Context, j *job.Job) error
	Get(ctx context.Context, id string) (*job.Job, error)
	GetBySessionID(ctx context.Context, sessionID string) (*job.Job, error)
	Update(ctx context.Context, j *job.Job) error
	SetPhase(ctx context.Context, id string, phase job.Phase) error
	ListByPhase(ctx context.Context, phase job.Phase) ([]*job.Job, error)
	ListRecent(ctx context.Context, limit int) ([]*job.Job, error)
}

// BeaconStore persists deployed beacon records.
type BeaconStore interface {
	Get(ctx context.Context, id string) (*job.Beacon, error)
	GetBySubscription(ctx context.Context, subscriptionID string) (*job.Beacon, error)
	Create(ctx context.Context, b *job.Beacon) error
	UpdateStatus(ctx context.Context, id string, status job.BeaconStatus, at time.Time) error
	UpdateDNSRecords(ctx context.Context, id string, recordIDs map[string]string) error
	UpdateBundleTier(ctx context.Context, id string, bundle string, tier int) error
}

// PaymentFailureStore persists the dunning ledger.
type PaymentFailureStore interface {
	Get(ctx context.Context, subscriptionID string) (*job.PaymentFailure, error)
	Increment(ctx context.Context, subscriptionID string, at time.Time) (*job.PaymentFailure, error)
	Reset(ctx context.Context, subscriptionID string) error
}

// StateStore is the generic key-value table backing the provider
// round-robin cursor and any other small piece of durable orchestrator
// state that doesn't warrant its own table.
type StateStore interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
}

// Stores bundles every persistence interface the application wires at
// startup, mirroring the teacher's Stores aggregate.
type Stores struct {
	Jobs            JobStore
	Beacons         BeaconStore
	PaymentFailures PaymentFailureStore
	State           StateStore
}
