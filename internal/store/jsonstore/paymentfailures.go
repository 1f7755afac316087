package jsonstore

import (
	"context"
	"time"

	"github.com/wopr-systems/beacon-orchestrator/internal/job"
	"github.com/wopr-systems/beacon-orchestrator/internal/store"
)

// PaymentFailureStore is the JSON-file store.PaymentFailureStore
// implementation, backed by a single payment_failures.json map keyed by
// subscription ID.
type PaymentFailureStore struct {
	*fileStore
}

func NewPaymentFailureStore(dir string) (*PaymentFailureStore, error) {
	fs, err := newFileStore(dir)
	if err != nil {
		return nil, err
	}
	return &PaymentFailureStore{fs}, nil
}

var _ store.PaymentFailureStore = (*PaymentFailureStore)(nil)

const paymentFailuresFile = "payment_failures.json"

func (s *PaymentFailureStore) load() (map[string]*job.PaymentFailure, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m := map[string]*job.PaymentFailure{}
	if _, err := s.readJSON(s.path(paymentFailuresFile), &m); err != nil {
		return nil, err
	}
	return m, nil
}

func (s *PaymentFailureStore) save(m map[string]*job.PaymentFailure) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writeJSON(s.path(paymentFailuresFile), m)
}

func (s *PaymentFailureStore) Get(ctx context.Context, subscriptionID string) (*job.PaymentFailure, error) {
	m, err := s.load()
	if err != nil {
		return nil, err
	}
	pf, ok := m[subscriptionID]
	if !ok {
		return nil, store.ErrNotFound
	}
	return pf, nil
}

func (s *PaymentFailureStore) Increment(ctx context.Context, subscriptionID string, at time.Time) (*job.PaymentFailure, error) {
	m, err := s.load()
	if err != nil {
		return nil, err
	}
	pf, ok := m[subscriptionID]
	if !ok {
		pf = &job.PaymentFailure{SubscriptionID: subscriptionID, FirstFailedAt: at}
		m[subscriptionID] = pf
	}
	pf.FailureCount++
	pf.LastFailedAt = at
	if err := s.save(m); err != nil {
		return nil, err
	}
	return pf, nil
}

func (s *PaymentFailureStore) Reset(ctx context.Context, subscriptionID string) error {
	m, err := s.load()
	if err != nil {
		return err
	}
	delete(m, subscriptionID)
	return s.save(m)
}
