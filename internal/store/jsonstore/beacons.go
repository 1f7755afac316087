package jsonstore

import (
	"context"
	"time"

	"github.com/wopr-systems/beacon-orchestrator/internal/job"
	"github.com/wopr-systems/beacon-orchestrator/internal/store"
)

// BeaconStore is the JSON-file store.BeaconStore implementation, backed by
// a single beacons.json map keyed by beacon ID.
type BeaconStore struct {
	*fileStore
}

func NewBeaconStore(dir string) (*BeaconStore, error) {
	fs, err := newFileStore(dir)
	if err != nil {
		return nil, err
	}
	return &BeaconStore{fs}, nil
}

var _ store.BeaconStore = (*BeaconStore)(nil)

const beaconsFile = "beacons.json"

func (s *BeaconStore) load() (map[string]*job.Beacon, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m := map[string]*job.Beacon{}
	if _, err := s.readJSON(s.path(beaconsFile), &m); err != nil {
		return nil, err
	}
	return m, nil
}

func (s *BeaconStore) save(m map[string]*job.Beacon) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writeJSON(s.path(beaconsFile), m)
}

func (s *BeaconStore) Get(ctx context.Context, id string) (*job.Beacon, error) {
	m, err := s.load()
	if err != nil {
		return nil, err
	}
	b, ok := m[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return b, nil
}

func (s *BeaconStore) GetBySubscription(ctx context.Context, subscriptionID string) (*job.Beacon, error) {
	m, err := s.load()
	if err != nil {
		return nil, err
	}
	for _, b := range m {
		if b.StripeSubscriptionID == subscriptionID {
			return b, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *BeaconStore) Create(ctx context.Context, b *job.Beacon) error {
	m, err := s.load()
	if err != nil {
		return err
	}
	m[b.ID] = b
	return s.save(m)
}

func (s *BeaconStore) UpdateStatus(ctx context.Context, id string, status job.BeaconStatus, at time.Time) error {
	m, err := s.load()
	if err != nil {
		return err
	}
	b, ok := m[id]
	if !ok {
		return store.ErrNotFound
	}
	b.Status = status
	b.UpdatedAt = at
	if status == job.BeaconStatusSuspended {
		t := at
		b.SuspendedAt = &t
	}
	return s.save(m)
}

func (s *BeaconStore) UpdateDNSRecords(ctx context.Context, id string, recordIDs map[string]string) error {
	m, err := s.load()
	if err != nil {
		return err
	}
	b, ok := m[id]
	if !ok {
		return store.ErrNotFound
	}
	b.DNSRecordIDs = recordIDs
	b.UpdatedAt = time.Now().UTC()
	return s.save(m)
}

func (s *BeaconStore) UpdateBundleTier(ctx context.Context, id string, bundle string, tier int) error {
	m, err := s.load()
	if err != nil {
		return err
	}
	b, ok := m[id]
	if !ok {
		return store.ErrNotFound
	}
	b.Bundle = bundle
	b.StorageTier = tier
	b.UpdatedAt = time.Now().UTC()
	return s.save(m)
}
