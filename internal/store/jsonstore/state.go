package jsonstore

import (
	"context"

	"github.com/wopr-systems/beacon-orchestrator/internal/store"
)

// StateStore is the JSON-file store.StateStore implementation, backed by
// a single state.json map.
type StateStore struct {
	*fileStore
}

func NewStateStore(dir string) (*StateStore, error) {
	fs, err := newFileStore(dir)
	if err != nil {
		return nil, err
	}
	return &StateStore{fs}, nil
}

var _ store.StateStore = (*StateStore)(nil)

const stateFile = "state.json"

func (s *StateStore) Get(ctx context.Context, key string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m := map[string]string{}
	if _, err := s.readJSON(s.path(stateFile), &m); err != nil {
		return "", false, err
	}
	v, ok := m[key]
	return v, ok, nil
}

func (s *StateStore) Set(ctx context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m := map[string]string{}
	if _, err := s.readJSON(s.path(stateFile), &m); err != nil {
		return err
	}
	m[key] = value
	return s.writeJSON(s.path(stateFile), m)
}
