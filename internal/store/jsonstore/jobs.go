package jsonstore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/wopr-systems/beacon-orchestrator/internal/core/service"
	"github.com/wopr-systems/beacon-orchestrator/internal/job"
	"github.com/wopr-systems/beacon-orchestrator/internal/store"
)

// JobStore is the JSON-file store.JobStore implementation: one file per
// job under root/jobs/<id>.json, lazily read on each call rather than
// cached, so a restarted process always sees the latest on-disk state.
type JobStore struct {
	*fileStore
}

// NewJobStore creates a JobStore rooted at dir (e.g. "./data").
func NewJobStore(dir string) (*JobStore, error) {
	fs, err := newFileStore(filepath.Join(dir, "jobs"))
	if err != nil {
		return nil, err
	}
	return &JobStore{fs}, nil
}

var _ store.JobStore = (*JobStore)(nil)

func (s *JobStore) jobPath(id string) string {
	return s.path(id + ".json")
}

func (s *JobStore) Create(ctx context.Context, j *job.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := os.Stat(s.jobPath(j.ID)); err == nil {
		return fmt.Errorf("jsonstore: job %s already exists", j.ID)
	}
	return s.writeJSON(s.jobPath(j.ID), j)
}

func (s *JobStore) Get(ctx context.Context, id string) (*job.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var j job.Job
	found, err := s.readJSON(s.jobPath(id), &j)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, store.ErrNotFound
	}
	return &j, nil
}

func (s *JobStore) GetBySessionID(ctx context.Context, sessionID string) (*job.Job, error) {
	all, err := s.all()
	if err != nil {
		return nil, err
	}
	for _, j := range all {
		if j.StripeSessionID == sessionID {
			return j, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *JobStore) Update(ctx context.Context, j *job.Job) error {
	if err := j.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := os.Stat(s.jobPath(j.ID)); os.IsNotExist(err) {
		return store.ErrNotFound
	}
	j.UpdatedAt = time.Now().UTC()
	return s.writeJSON(s.jobPath(j.ID), j)
}

func (s *JobStore) SetPhase(ctx context.Context, id string, phase job.Phase) error {
	j, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	j.Phase = phase
	return s.Update(ctx, j)
}

func (s *JobStore) ListByPhase(ctx context.Context, phase job.Phase) ([]*job.Job, error) {
	all, err := s.all()
	if err != nil {
		return nil, err
	}
	var out []*job.Job
	for _, j := range all {
		if j.Phase == phase {
			out = append(out, j)
		}
	}
	sort.Slice(out, func(i, k int) bool { return out[i].CreatedAt.Before(out[k].CreatedAt) })
	return out, nil
}

func (s *JobStore) ListRecent(ctx context.Context, limit int) ([]*job.Job, error) {
	all, err := s.all()
	if err != nil {
		return nil, err
	}
	sort.Slice(all, func(i, k int) bool { return all[i].CreatedAt.After(all[k].CreatedAt) })
	limit = service.ClampLimit(limit, service.DefaultListLimit, service.MaxListLimit)
	if limit < len(all) {
		all = all[:limit]
	}
	return all, nil
}

func (s *JobStore) all() ([]*job.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, fmt.Errorf("jsonstore: list %s: %w", s.root, err)
	}
	var out []*job.Job
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".json" {
			continue
		}
		var j job.Job
		found, err := s.readJSON(s.path(e.Name()), &j)
		if err != nil {
			return nil, err
		}
		if found {
			out = append(out, &j)
		}
	}
	return out, nil
}
