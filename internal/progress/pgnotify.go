package progress

import (
	"context"

	"github.com/wopr-systems/beacon-orchestrator/pkg/pgnotify"
)

const pgChannelPrefix = "beacon_jobs_"

// PGNotifier adapts a pgnotify.Bus (Postgres LISTEN/NOTIFY) into Notifier.
// cmd/appserver does not construct one; its only notifier is the Redis one.
type PGNotifier struct {
	bus *pgnotify.Bus
}

func NewPGNotifier(bus *pgnotify.Bus) *PGNotifier {
	return &PGNotifier{bus: bus}
}

var _ Notifier = (*PGNotifier)(nil)

func (n *PGNotifier) Publish(ctx context.Context, jobID string) error {
	return n.bus.Publish(ctx, pgChannelPrefix+jobID, "1")
}

func (n *PGNotifier) Subscribe(ctx context.Context, jobID string) (<-chan struct{}, func(), error) {
	channel := pgChannelPrefix + jobID
	ch := make(chan struct{}, 1)

	err := n.bus.Subscribe(channel, func(ctx context.Context, evt pgnotify.Event) error {
		select {
		case ch <- struct{}{}:
		default:
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	unsubscribe := func() { _ = n.bus.Unsubscribe(channel) }
	return ch, unsubscribe, nil
}
