package progress

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wopr-systems/beacon-orchestrator/internal/job"
)

func TestEventFor_PendingIsZeroZero(t *testing.T) {
	j := &job.Job{ID: "j1", Phase: job.PhasePending}
	evt := EventFor(j, "wopr.example.com")
	assert.Equal(t, 0, evt.Step)
	assert.Equal(t, 0, evt.Percent)
	assert.False(t, evt.Final)
}

func TestEventFor_CompletedIncludesBeaconURL(t *testing.T) {
	j := &job.Job{ID: "j1", Phase: job.PhaseCompleted, WOPRSubdomain: "sovereign-starter-a1b2c3d4"}
	evt := EventFor(j, "wopr.example.com")
	assert.Equal(t, 100, evt.Percent)
	assert.True(t, evt.Final)
	assert.Equal(t, "complete", evt.Status)
	assert.Equal(t, "https://sovereign-starter-a1b2c3d4.wopr.example.com", evt.BeaconURL)
}

func TestEventFor_FailedCarriesErrorMessage(t *testing.T) {
	j := &job.Job{ID: "j1", Phase: job.PhaseFailed, ErrorMessage: "provider quota exceeded"}
	evt := EventFor(j, "wopr.example.com")
	assert.True(t, evt.Final)
	assert.Equal(t, "error", evt.Status)
	assert.Equal(t, "provider quota exceeded", evt.Error)
	assert.Equal(t, "provider quota exceeded", evt.Message)
}

type fakeJobGetter struct {
	jobs map[string]*job.Job
}

func (f *fakeJobGetter) Get(ctx context.Context, id string) (*job.Job, error) {
	j, ok := f.jobs[id]
	if !ok {
		return nil, context.Canceled
	}
	return j, nil
}

func TestStream_StopsOnFinalEvent(t *testing.T) {
	getter := &fakeJobGetter{jobs: map[string]*job.Job{
		"j1": {ID: "j1", Phase: job.PhaseCompleted, WOPRSubdomain: "x"},
	}}

	var events []Event
	err := Stream(context.Background(), getter, nil, "j1", "wopr.example.com", func(e Event) error {
		events = append(events, e)
		return nil
	})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.True(t, events[0].Final)
}

func TestStream_ContextCancelStopsLoop(t *testing.T) {
	getter := &fakeJobGetter{jobs: map[string]*job.Job{
		"j1": {ID: "j1", Phase: job.PhaseProvisioningVPS},
	}}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	err := Stream(ctx, getter, nil, "j1", "", func(e Event) error {
		return nil
	})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
