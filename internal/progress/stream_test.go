package progress

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wopr-systems/beacon-orchestrator/internal/job"
)

// mutableJobGetter lets a test flip the job's phase mid-stream to exercise
// the poll loop's change-detection.
type mutableJobGetter struct {
	mu sync.Mutex
	j  *job.Job
}

func (g *mutableJobGetter) Get(ctx context.Context, id string) (*job.Job, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	cp := *g.j
	return &cp, nil
}

func (g *mutableJobGetter) setPhase(p job.Phase) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.j.Phase = p
}

func TestStream_SkipsDuplicateEventsAcrossPollTicks(t *testing.T) {
	getter := &mutableJobGetter{j: &job.Job{ID: "j1", Phase: job.PhaseProvisioningVPS}}

	ctx, cancel := context.WithCancel(context.Background())
	var mu sync.Mutex
	var events []Event

	go func() {
		time.Sleep(PollInterval*2 + PollInterval/2)
		getter.setPhase(job.PhaseCompleted)
	}()

	err := Stream(ctx, getter, nil, "j1", "", func(e Event) error {
		mu.Lock()
		events = append(events, e)
		mu.Unlock()
		return nil
	})
	cancel()
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	// Unchanged phase across the first several poll ticks must collapse to
	// a single emission; only the transition to Completed adds a second.
	require.Len(t, events, 2)
	assert.Equal(t, job.PhaseProvisioningVPS, events[0].Phase)
	assert.Equal(t, job.PhaseCompleted, events[1].Phase)
	assert.True(t, events[1].Final)
}
