package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/wopr-systems/beacon-orchestrator/internal/core/service"
	"github.com/wopr-systems/beacon-orchestrator/internal/job"
	"github.com/wopr-systems/beacon-orchestrator/internal/store"
)

// JobStore is the Postgres-backed store.JobStore implementation.
type JobStore struct {
	BaseStore
}

// NewJobStore wraps db as a store.JobStore.
func NewJobStore(db *sqlx.DB) *JobStore {
	return &JobStore{BaseStore{DB: db}}
}

var _ store.JobStore = (*JobStore)(nil)

// jobRow mirrors the jobs table; DNSRecordIDs is stored as jsonb.
type jobRow struct {
	ID                   string         `db:"id"`
	CustomerID           string         `db:"customer_id"`
	CustomerEmail        string         `db:"customer_email"`
	CustomerName         sql.NullString `db:"customer_name"`
	Bundle               string         `db:"bundle"`
	ProviderID           string         `db:"provider_id"`
	Region               string         `db:"region"`
	DatacenterID         string         `db:"datacenter_id"`
	StorageTier          int            `db:"storage_tier"`
	CustomDomain         sql.NullString `db:"custom_domain"`
	Phase                string         `db:"phase"`
	CreatedAt            time.Time      `db:"created_at"`
	UpdatedAt            time.Time      `db:"updated_at"`
	InstanceID           sql.NullString `db:"instance_id"`
	InstanceIP           sql.NullString `db:"instance_ip"`
	WOPRSubdomain        sql.NullString `db:"wopr_subdomain"`
	RootPassword         sql.NullString `db:"root_password"`
	DNSRecordIDs         []byte         `db:"dns_record_ids"`
	ErrorMessage         sql.NullString `db:"error_message"`
	RetryCount           int            `db:"retry_count"`
	StripeCustomerID     sql.NullString `db:"stripe_customer_id"`
	StripeSubscriptionID sql.NullString `db:"stripe_subscription_id"`
	StripeSessionID      sql.NullString `db:"stripe_session_id"`
	BeaconID             sql.NullString `db:"beacon_id"`
}

func (r jobRow) toJob() (*job.Job, error) {
	dnsRecords := map[string]string{}
	if len(r.DNSRecordIDs) > 0 {
		if err := json.Unmarshal(r.DNSRecordIDs, &dnsRecords); err != nil {
			return nil, fmt.Errorf("decode dns_record_ids: %w", err)
		}
	}
	return &job.Job{
		ID:                   r.ID,
		CustomerID:           r.CustomerID,
		CustomerEmail:        r.CustomerEmail,
		CustomerName:         r.CustomerName.String,
		Bundle:               r.Bundle,
		ProviderID:           r.ProviderID,
		Region:               r.Region,
		DatacenterID:         r.DatacenterID,
		StorageTier:          r.StorageTier,
		CustomDomain:         r.CustomDomain.String,
		Phase:                job.Phase(r.Phase),
		CreatedAt:            r.CreatedAt,
		UpdatedAt:            r.UpdatedAt,
		InstanceID:           r.InstanceID.String,
		InstanceIP:           r.InstanceIP.String,
		WOPRSubdomain:        r.WOPRSubdomain.String,
		RootPassword:         r.RootPassword.String,
		DNSRecordIDs:         dnsRecords,
		ErrorMessage:         r.ErrorMessage.String,
		RetryCount:           r.RetryCount,
		StripeCustomerID:     r.StripeCustomerID.String,
		StripeSubscriptionID: r.StripeSubscriptionID.String,
		StripeSessionID:      r.StripeSessionID.String,
		BeaconID:             r.BeaconID.String,
	}, nil
}

func fromJob(j *job.Job) (*jobRow, error) {
	dnsJSON, err := json.Marshal(j.DNSRecordIDs)
	if err != nil {
		return nil, fmt.Errorf("encode dns_record_ids: %w", err)
	}
	return &jobRow{
		ID:                   j.ID,
		CustomerID:           j.CustomerID,
		CustomerEmail:        j.CustomerEmail,
		CustomerName:         nullString(j.CustomerName),
		Bundle:               j.Bundle,
		ProviderID:           j.ProviderID,
		Region:               j.Region,
		DatacenterID:         j.DatacenterID,
		StorageTier:          j.StorageTier,
		CustomDomain:         nullString(j.CustomDomain),
		Phase:                string(j.Phase),
		CreatedAt:            j.CreatedAt,
		UpdatedAt:            j.UpdatedAt,
		InstanceID:           nullString(j.InstanceID),
		InstanceIP:           nullString(j.InstanceIP),
		WOPRSubdomain:        nullString(j.WOPRSubdomain),
		RootPassword:         nullString(j.RootPassword),
		DNSRecordIDs:         dnsJSON,
		ErrorMessage:         nullString(j.ErrorMessage),
		RetryCount:           j.RetryCount,
		StripeCustomerID:     nullString(j.StripeCustomerID),
		StripeSubscriptionID: nullString(j.StripeSubscriptionID),
		StripeSessionID:      nullString(j.StripeSessionID),
		BeaconID:             nullString(j.BeaconID),
	}, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

const insertJobSQL = `
INSERT INTO jobs (
	id, customer_id, customer_email, customer_name, bundle, provider_id, region,
	datacenter_id, storage_tier, custom_domain, phase, created_at, updated_at,
	instance_id, instance_ip, wopr_subdomain, root_password, dns_record_ids,
	error_message, retry_count, stripe_customer_id, stripe_subscription_id,
	stripe_session_id, beacon_id
) VALUES (
	:id, :customer_id, :customer_email, :customer_name, :bundle, :provider_id, :region,
	:datacenter_id, :storage_tier, :custom_domain, :phase, :created_at, :updated_at,
	:instance_id, :instance_ip, :wopr_subdomain, :root_password, :dns_record_ids,
	:error_message, :retry_count, :stripe_customer_id, :stripe_subscription_id,
	:stripe_session_id, :beacon_id
)`

func (s *JobStore) Create(ctx context.Context, j *job.Job) error {
	row, err := fromJob(j)
	if err != nil {
		return err
	}
	_, err = sqlx.NamedExecContext(ctx, s.Ext(ctx), insertJobSQL, row)
	if err != nil {
		return fmt.Errorf("postgres: create job %s: %w", j.ID, err)
	}
	return nil
}

func (s *JobStore) Get(ctx context.Context, id string) (*job.Job, error) {
	var row jobRow
	err := sqlx.GetContext(ctx, s.Ext(ctx), &row, `SELECT * FROM jobs WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: get job %s: %w", id, err)
	}
	return row.toJob()
}

func (s *JobStore) GetBySessionID(ctx context.Context, sessionID string) (*job.Job, error) {
	var row jobRow
	err := sqlx.GetContext(ctx, s.Ext(ctx), &row, `SELECT * FROM jobs WHERE stripe_session_id = $1`, sessionID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: get job by session %s: %w", sessionID, err)
	}
	return row.toJob()
}

const updateJobSQL = `
UPDATE jobs SET
	customer_name = :customer_name, custom_domain = :custom_domain, phase = :phase,
	updated_at = :updated_at, instance_id = :instance_id, instance_ip = :instance_ip,
	wopr_subdomain = :wopr_subdomain, root_password = :root_password,
	dns_record_ids = :dns_record_ids, error_message = :error_message,
	retry_count = :retry_count, stripe_customer_id = :stripe_customer_id,
	stripe_subscription_id = :stripe_subscription_id, beacon_id = :beacon_id
WHERE id = :id`

func (s *JobStore) Update(ctx context.Context, j *job.Job) error {
	if err := j.Validate(); err != nil {
		return err
	}
	j.UpdatedAt = time.Now().UTC()
	row, err := fromJob(j)
	if err != nil {
		return err
	}
	res, err := sqlx.NamedExecContext(ctx, s.Ext(ctx), updateJobSQL, row)
	if err != nil {
		return fmt.Errorf("postgres: update job %s: %w", j.ID, err)
	}
	return checkRowsAffected(res, j.ID)
}

func (s *JobStore) SetPhase(ctx context.Context, id string, phase job.Phase) error {
	res, err := s.Ext(ctx).ExecContext(ctx,
		`UPDATE jobs SET phase = $1, updated_at = $2 WHERE id = $3`, string(phase), time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("postgres: set phase for job %s: %w", id, err)
	}
	return checkRowsAffected(res, id)
}

func checkRowsAffected(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("postgres: rows affected for %s: %w", id, err)
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *JobStore) ListByPhase(ctx context.Context, phase job.Phase) ([]*job.Job, error) {
	var rows []jobRow
	err := sqlx.SelectContext(ctx, s.Ext(ctx), &rows,
		`SELECT * FROM jobs WHERE phase = $1 ORDER BY created_at ASC`, string(phase))
	if err != nil {
		return nil, fmt.Errorf("postgres: list jobs by phase %s: %w", phase, err)
	}
	return rowsToJobs(rows)
}

func (s *JobStore) ListRecent(ctx context.Context, limit int) ([]*job.Job, error) {
	limit = service.ClampLimit(limit, service.DefaultListLimit, service.MaxListLimit)
	var rows []jobRow
	err := sqlx.SelectContext(ctx, s.Ext(ctx), &rows,
		`SELECT * FROM jobs ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list recent jobs: %w", err)
	}
	return rowsToJobs(rows)
}

func rowsToJobs(rows []jobRow) ([]*job.Job, error) {
	out := make([]*job.Job, 0, len(rows))
	for _, r := range rows {
		j, err := r.toJob()
		if err != nil {
			return nil, err
		}
		out = append(out, j)
	}
	return out, nil
}
