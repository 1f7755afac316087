package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/wopr-systems/beacon-orchestrator/internal/job"
	"github.com/wopr-systems/beacon-orchestrator/internal/store"
)

// BeaconStore is the Postgres-backed store.BeaconStore implementation.
type BeaconStore struct {
	BaseStore
}

func NewBeaconStore(db *sqlx.DB) *BeaconStore {
	return &BeaconStore{BaseStore{DB: db}}
}

var _ store.BeaconStore = (*BeaconStore)(nil)

type beaconRow struct {
	ID                   string         `db:"id"`
	JobID                string         `db:"job_id"`
	CustomerID           string         `db:"customer_id"`
	StripeSubscriptionID sql.NullString `db:"stripe_subscription_id"`
	Subdomain            string         `db:"subdomain"`
	ProviderID           string         `db:"provider_id"`
	InstanceID           string         `db:"instance_id"`
	InstanceIP           string         `db:"instance_ip"`
	DNSRecordIDs         []byte         `db:"dns_record_ids"`
	StorageTier          int            `db:"storage_tier"`
	Bundle               string         `db:"bundle"`
	Status               string         `db:"status"`
	CreatedAt            time.Time      `db:"created_at"`
	UpdatedAt            time.Time      `db:"updated_at"`
	SuspendedAt          sql.NullTime   `db:"suspended_at"`
}

func (r beaconRow) toBeacon() (*job.Beacon, error) {
	records := map[string]string{}
	if len(r.DNSRecordIDs) > 0 {
		if err := json.Unmarshal(r.DNSRecordIDs, &records); err != nil {
			return nil, fmt.Errorf("decode dns_record_ids: %w", err)
		}
	}
	b := &job.Beacon{
		ID:                   r.ID,
		JobID:                r.JobID,
		CustomerID:           r.CustomerID,
		StripeSubscriptionID: r.StripeSubscriptionID.String,
		Subdomain:            r.Subdomain,
		ProviderID:           r.ProviderID,
		InstanceID:           r.InstanceID,
		InstanceIP:           r.InstanceIP,
		DNSRecordIDs:         records,
		StorageTier:          r.StorageTier,
		Bundle:               r.Bundle,
		Status:               job.BeaconStatus(r.Status),
		CreatedAt:            r.CreatedAt,
		UpdatedAt:            r.UpdatedAt,
	}
	if r.SuspendedAt.Valid {
		b.SuspendedAt = &r.SuspendedAt.Time
	}
	return b, nil
}

const insertBeaconSQL = `
INSERT INTO beacons (
	id, job_id, customer_id, stripe_subscription_id, subdomain, provider_id,
	instance_id, instance_ip, dns_record_ids, storage_tier, bundle, status, created_at, updated_at
) VALUES (
	:id, :job_id, :customer_id, :stripe_subscription_id, :subdomain, :provider_id,
	:instance_id, :instance_ip, :dns_record_ids, :storage_tier, :bundle, :status, :created_at, :updated_at
)`

func (s *BeaconStore) Create(ctx context.Context, b *job.Beacon) error {
	dnsJSON, err := json.Marshal(b.DNSRecordIDs)
	if err != nil {
		return fmt.Errorf("encode dns_record_ids: %w", err)
	}
	row := beaconRow{
		ID: b.ID, JobID: b.JobID, CustomerID: b.CustomerID,
		StripeSubscriptionID: nullString(b.StripeSubscriptionID),
		Subdomain:            b.Subdomain, ProviderID: b.ProviderID,
		InstanceID: b.InstanceID, InstanceIP: b.InstanceIP,
		DNSRecordIDs: dnsJSON, StorageTier: b.StorageTier, Bundle: b.Bundle,
		Status:    string(b.Status),
		CreatedAt: b.CreatedAt, UpdatedAt: b.UpdatedAt,
	}
	if _, err := sqlx.NamedExecContext(ctx, s.Ext(ctx), insertBeaconSQL, row); err != nil {
		return fmt.Errorf("postgres: create beacon %s: %w", b.ID, err)
	}
	return nil
}

func (s *BeaconStore) Get(ctx context.Context, id string) (*job.Beacon, error) {
	var row beaconRow
	err := sqlx.GetContext(ctx, s.Ext(ctx), &row, `SELECT * FROM beacons WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: get beacon %s: %w", id, err)
	}
	return row.toBeacon()
}

func (s *BeaconStore) GetBySubscription(ctx context.Context, subscriptionID string) (*job.Beacon, error) {
	var row beaconRow
	err := sqlx.GetContext(ctx, s.Ext(ctx), &row,
		`SELECT * FROM beacons WHERE stripe_subscription_id = $1`, subscriptionID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: get beacon by subscription %s: %w", subscriptionID, err)
	}
	return row.toBeacon()
}

func (s *BeaconStore) UpdateStatus(ctx context.Context, id string, status job.BeaconStatus, at time.Time) error {
	var suspendedAt any
	if status == job.BeaconStatusSuspended {
		suspendedAt = at
	}
	res, err := s.Ext(ctx).ExecContext(ctx,
		`UPDATE beacons SET status = $1, updated_at = $2, suspended_at = $3 WHERE id = $4`,
		string(status), at, suspendedAt, id)
	if err != nil {
		return fmt.Errorf("postgres: update beacon status %s: %w", id, err)
	}
	return checkRowsAffected(res, id)
}

func (s *BeaconStore) UpdateDNSRecords(ctx context.Context, id string, recordIDs map[string]string) error {
	data, err := json.Marshal(recordIDs)
	if err != nil {
		return fmt.Errorf("encode dns_record_ids: %w", err)
	}
	res, err := s.Ext(ctx).ExecContext(ctx,
		`UPDATE beacons SET dns_record_ids = $1, updated_at = $2 WHERE id = $3`, data, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("postgres: update beacon dns records %s: %w", id, err)
	}
	return checkRowsAffected(res, id)
}

func (s *BeaconStore) UpdateBundleTier(ctx context.Context, id string, bundle string, tier int) error {
	res, err := s.Ext(ctx).ExecContext(ctx,
		`UPDATE beacons SET bundle = $1, storage_tier = $2, updated_at = $3 WHERE id = $4`,
		bundle, tier, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("postgres: update beacon bundle/tier %s: %w", id, err)
	}
	return checkRowsAffected(res, id)
}
