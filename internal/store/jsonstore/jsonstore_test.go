package jsonstore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/wopr-systems/beacon-orchestrator/internal/job"
	"github.com/wopr-systems/beacon-orchestrator/internal/store"
)

func TestJobStore_CreateGetUpdate(t *testing.T) {
	dir := t.TempDir()
	s, err := NewJobStore(dir)
	require.NoError(t, err)

	ctx := context.Background()
	j := &job.Job{ID: "job-1", CustomerEmail: "a@example.com", Phase: job.PhasePending, CreatedAt: time.Now().UTC()}
	require.NoError(t, s.Create(ctx, j))

	got, err := s.Get(ctx, "job-1")
	require.NoError(t, err)
	require.Equal(t, "a@example.com", got.CustomerEmail)

	got.Phase = job.PhasePaymentReceived
	require.NoError(t, s.Update(ctx, got))

	reloaded, err := s.Get(ctx, "job-1")
	require.NoError(t, err)
	require.Equal(t, job.PhasePaymentReceived, reloaded.Phase)
}

func TestJobStore_GetMissingReturnsNotFound(t *testing.T) {
	dir := t.TempDir()
	s, err := NewJobStore(dir)
	require.NoError(t, err)

	_, err = s.Get(context.Background(), "missing")
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestJobStore_GetBySessionID(t *testing.T) {
	dir := t.TempDir()
	s, err := NewJobStore(dir)
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, s.Create(ctx, &job.Job{ID: "job-1", StripeSessionID: "sess_abc", CreatedAt: time.Now()}))

	got, err := s.GetBySessionID(ctx, "sess_abc")
	require.NoError(t, err)
	require.Equal(t, "job-1", got.ID)

	_, err = s.GetBySessionID(ctx, "sess_unknown")
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestJobStore_ListByPhaseAndListRecent(t *testing.T) {
	dir := t.TempDir()
	s, err := NewJobStore(dir)
	require.NoError(t, err)
	ctx := context.Background()

	now := time.Now().UTC()
	require.NoError(t, s.Create(ctx, &job.Job{ID: "job-1", Phase: job.PhasePending, CreatedAt: now}))
	require.NoError(t, s.Create(ctx, &job.Job{ID: "job-2", Phase: job.PhaseCompleted, InstanceID: "i", InstanceIP: "1.1.1.1", WOPRSubdomain: "x", CreatedAt: now.Add(time.Minute)}))

	pending, err := s.ListByPhase(ctx, job.PhasePending)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	require.Equal(t, "job-1", pending[0].ID)

	recent, err := s.ListRecent(ctx, 1)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	require.Equal(t, "job-2", recent[0].ID)
}

func TestRRCounter_IncrementPersists(t *testing.T) {
	dir := t.TempDir()
	state, err := NewStateStore(dir)
	require.NoError(t, err)

	counter := store.NewRRCounter(state)
	ctx := context.Background()

	n1, err := counter.Increment(ctx, "cursor")
	require.NoError(t, err)
	require.Equal(t, int64(1), n1)

	n2, err := counter.Increment(ctx, "cursor")
	require.NoError(t, err)
	require.Equal(t, int64(2), n2)

	fresh := store.NewRRCounter(state)
	got, err := fresh.Get(ctx, "cursor")
	require.NoError(t, err)
	require.Equal(t, int64(2), got)
}

func TestPaymentFailureStore_IncrementAndReset(t *testing.T) {
	dir := t.TempDir()
	s, err := NewPaymentFailureStore(dir)
	require.NoError(t, err)
	ctx := context.Background()

	now := time.Now().UTC()
	pf, err := s.Increment(ctx, "sub_1", now)
	require.NoError(t, err)
	require.Equal(t, 1, pf.FailureCount)

	pf, err = s.Increment(ctx, "sub_1", now.Add(time.Hour))
	require.NoError(t, err)
	require.Equal(t, 2, pf.FailureCount)

	require.NoError(t, s.Reset(ctx, "sub_1"))
	_, err = s.Get(ctx, "sub_1")
	require.ErrorIs(t, err, store.ErrNotFound)
}
