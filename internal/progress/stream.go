package progress

import (
	"context"
	"time"

	"github.com/wopr-systems/beacon-orchestrator/internal/job"
)

// JobGetter is the minimal store dependency Stream needs, satisfied by
// store.JobStore.
type JobGetter interface {
	Get(ctx context.Context, id string) (*job.Job, error)
}

// Stream pushes Events for jobID to emit until the job reaches a terminal
// phase or ctx is cancelled. It prefers notifier-driven wakeups when
// notifier is non-nil, falling back to polling every PollInterval
// otherwise.
func Stream(ctx context.Context, jobs JobGetter, notifier Notifier, jobID, baseDomain string, emit func(Event) error) error {
	var wake <-chan struct{}
	var unsubscribe func()
	if notifier != nil {
		var err error
		wake, unsubscribe, err = notifier.Subscribe(ctx, jobID)
		if err == nil && unsubscribe != nil {
			defer unsubscribe()
		}
	}

	// A poll tick always runs alongside any notifier wakeup: it is both the
	// sole mechanism when no notifier is configured, and a safety net
	// against a missed or dropped notification when one is.
	ticker := time.NewTicker(PollInterval)
	defer ticker.Stop()

	var lastPhase job.Phase
	var havePrev bool

	for {
		j, err := jobs.Get(ctx, jobID)
		if err != nil {
			return err
		}

		evt := EventFor(j, baseDomain)
		if !havePrev || j.Phase != lastPhase {
			if err := emit(evt); err != nil {
				return err
			}
			lastPhase = j.Phase
			havePrev = true
		}
		if evt.Final {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-wake:
		case <-ticker.C:
		}
	}
}
