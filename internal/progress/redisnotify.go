package progress

import (
	"context"

	"github.com/go-redis/redis/v8"
)

const redisChannelPrefix = "beacon.jobs."

// RedisNotifier publishes/subscribes job phase-change wakeups over Redis
// Pub/Sub. cmd/appserver uses it when REDIS_ADDR is set alongside
// Postgres storage.
type RedisNotifier struct {
	client *redis.Client
}

func NewRedisNotifier(client *redis.Client) *RedisNotifier {
	return &RedisNotifier{client: client}
}

var _ Notifier = (*RedisNotifier)(nil)

func (n *RedisNotifier) Publish(ctx context.Context, jobID string) error {
	return n.client.Publish(ctx, redisChannelPrefix+jobID, "1").Err()
}

func (n *RedisNotifier) Subscribe(ctx context.Context, jobID string) (<-chan struct{}, func(), error) {
	sub := n.client.Subscribe(ctx, redisChannelPrefix+jobID)
	ch := make(chan struct{}, 1)

	go func() {
		for range sub.Channel() {
			select {
			case ch <- struct{}{}:
			default:
			}
		}
	}()

	return ch, func() { _ = sub.Close() }, nil
}
