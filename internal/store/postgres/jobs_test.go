package postgres

import (
	"context"
	"database/sql"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wopr-systems/beacon-orchestrator/internal/job"
	"github.com/wopr-systems/beacon-orchestrator/internal/store"
)

func newMockJobStore(t *testing.T) (*JobStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	sqlxDB := sqlx.NewDb(db, "postgres")
	return NewJobStore(sqlxDB), mock
}

func jobColumns() []string {
	return []string{
		"id", "customer_id", "customer_email", "customer_name", "bundle", "provider_id", "region",
		"datacenter_id", "storage_tier", "custom_domain", "phase", "created_at", "updated_at",
		"instance_id", "instance_ip", "wopr_subdomain", "root_password", "dns_record_ids",
		"error_message", "retry_count", "stripe_customer_id", "stripe_subscription_id",
		"stripe_session_id", "beacon_id",
	}
}

func jobRowValues(id string, phase job.Phase, now time.Time) []interface{} {
	return []interface{}{
		id, "cust-1", "cust@example.com", nil, "standard", "digitalocean", "nyc1",
		"dc-1", 1, nil, string(phase), now, now,
		nil, nil, nil, nil, []byte("{}"),
		nil, 0, nil, nil,
		nil, nil,
	}
}

func TestJobStore_Get(t *testing.T) {
	s, mock := newMockJobStore(t)
	now := time.Now().UTC()

	rows := sqlmock.NewRows(jobColumns()).AddRow(jobRowValues("job-1", job.PhasePending, now)...)
	mock.ExpectQuery(`SELECT \* FROM jobs WHERE id = \$1`).
		WithArgs("job-1").
		WillReturnRows(rows)

	got, err := s.Get(context.Background(), "job-1")
	require.NoError(t, err)
	assert.Equal(t, "job-1", got.ID)
	assert.Equal(t, job.PhasePending, got.Phase)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestJobStore_Get_NotFound(t *testing.T) {
	s, mock := newMockJobStore(t)

	mock.ExpectQuery(`SELECT \* FROM jobs WHERE id = \$1`).
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	_, err := s.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, store.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestJobStore_Create(t *testing.T) {
	s, mock := newMockJobStore(t)

	mock.ExpectExec(`INSERT INTO jobs`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := s.Create(context.Background(), &job.Job{
		ID:            "job-2",
		CustomerID:    "cust-1",
		CustomerEmail: "cust@example.com",
		Bundle:        "standard",
		ProviderID:    "digitalocean",
		Region:        "nyc1",
		DatacenterID:  "dc-1",
		Phase:         job.PhasePending,
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestJobStore_SetPhase(t *testing.T) {
	s, mock := newMockJobStore(t)

	mock.ExpectExec(`UPDATE jobs SET phase = \$1, updated_at = \$2 WHERE id = \$3`).
		WithArgs(string(job.PhaseProvisioningVPS), sqlmock.AnyArg(), "job-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := s.SetPhase(context.Background(), "job-1", job.PhaseProvisioningVPS)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestJobStore_SetPhase_NotFound(t *testing.T) {
	s, mock := newMockJobStore(t)

	mock.ExpectExec(`UPDATE jobs SET phase = \$1, updated_at = \$2 WHERE id = \$3`).
		WithArgs(string(job.PhaseFailed), sqlmock.AnyArg(), "missing").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := s.SetPhase(context.Background(), "missing", job.PhaseFailed)
	assert.ErrorIs(t, err, store.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestJobStore_ListRecent_ClampsLimit(t *testing.T) {
	s, mock := newMockJobStore(t)
	now := time.Now().UTC()

	rows := sqlmock.NewRows(jobColumns()).
		AddRow(jobRowValues("job-1", job.PhaseCompleted, now)...).
		AddRow(jobRowValues("job-2", job.PhasePending, now)...)

	// limit=0 must clamp to service.DefaultListLimit before it reaches the query.
	mock.ExpectQuery(`SELECT \* FROM jobs ORDER BY created_at DESC LIMIT \$1`).
		WithArgs(25).
		WillReturnRows(rows)

	got, err := s.ListRecent(context.Background(), 0)
	require.NoError(t, err)
	assert.Len(t, got, 2)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestJobStore_ListByPhase(t *testing.T) {
	s, mock := newMockJobStore(t)
	now := time.Now().UTC()

	rows := sqlmock.NewRows(jobColumns()).AddRow(jobRowValues("job-3", job.PhaseDeployingWOPR, now)...)
	mock.ExpectQuery(`SELECT \* FROM jobs WHERE phase = \$1 ORDER BY created_at ASC`).
		WithArgs(string(job.PhaseDeployingWOPR)).
		WillReturnRows(rows)

	got, err := s.ListByPhase(context.Background(), job.PhaseDeployingWOPR)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "job-3", got[0].ID)
	require.NoError(t, mock.ExpectationsWereMet())
}
