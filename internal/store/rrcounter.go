package store

import (
	"context"
	"fmt"
	"strconv"
	"sync"
)

// RRCounter adapts a StateStore into the registry.Counter interface the
// provider registry uses for its persisted round-robin cursor, so the
// cursor survives process restarts without the registry package needing
// to know anything about how state is stored.
type RRCounter struct {
	state StateStore
	mu    sync.Mutex
}

// NewRRCounter wraps state as a round-robin Counter.
func NewRRCounter(state StateStore) *RRCounter {
	return &RRCounter{state: state}
}

// Get returns the current counter value without advancing it.
func (c *RRCounter) Get(ctx context.Context, key string) (int64, error) {
	raw, ok, err := c.state.Get(ctx, key)
	if err != nil {
		return 0, fmt.Errorf("rrcounter: get %q: %w", key, err)
	}
	if !ok {
		return 0, nil
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("rrcounter: parse %q: %w", key, err)
	}
	return n, nil
}

// Increment advances and persists the counter, returning the new value.
// The mutex serializes read-modify-write against the backing store; a
// future multi-process deployment would need this to be a single atomic
// UPDATE ... RETURNING instead.
func (c *RRCounter) Increment(ctx context.Context, key string) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	current, err := c.Get(ctx, key)
	if err != nil {
		return 0, err
	}
	next := current + 1
	if err := c.state.Set(ctx, key, strconv.FormatInt(next, 10)); err != nil {
		return 0, fmt.Errorf("rrcounter: set %q: %w", key, err)
	}
	return next, nil
}
