package memory

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/JakeFAU/kidssmart/internal/crawler"
	"github.com/JakeFAU/kidssmart/internal/store"
)

// RunStore provides an in-memory implementation for development/testing.
type RunStore struct {
	mu   sync.RWMutex
	runs map[string]crawler.Run
}

// NewRunStore constructs a RunStore.
func NewRunStore() *RunStore {
	return &RunStore{runs: make(map[string]crawler.Run)}
}

// StartRun stores a new run.
func (s *RunStore) StartRun(_ context.Context, run crawler.Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.runs[run.ID]; exists {
		return errors.New("run already exists")
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now().UTC()
	}
	s.runs[run.ID] = run
	return nil
}

// FinishRun updates the status, counters and error text of a run.
func (s *RunStore) FinishRun(_ context.Context, run crawler.Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.runs[run.ID]
	if !ok {
		return store.ErrNotFound
	}
	existing.Status = run.Status
	existing.ErrorText = run.ErrorText
	existing.Counters = run.Counters
	if isTerminal(run.Status) {
		finished := time.Now().UTC()
		if run.FinishedAt != nil {
			finished = *run.FinishedAt
		}
		existing.FinishedAt = pointerTime(finished)
	}
	s.runs[run.ID] = existing
	return nil
}

func (s *RunStore) sorted(keep func(crawler.Run) bool) []crawler.Run {
	var out []crawler.Run
	for _, run := range s.runs {
		if keep(run) {
			out = append(out, run)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	return out
}

// RecentRuns returns the newest runs first.
func (s *RunStore) RecentRuns(_ context.Context, limit int) ([]crawler.Run, error) {
	if limit <= 0 {
		limit = 20
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := s.sorted(func(crawler.Run) bool { return true })
	return out[:min(limit, len(out))], nil
}

// FailedSince returns failed runs started at or after since.
func (s *RunStore) FailedSince(_ context.Context, since time.Time) ([]crawler.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sorted(func(r crawler.Run) bool {
		return r.Status == crawler.RunStatusFailed && !r.StartedAt.Before(since)
	}), nil
}

// PruneRuns deletes finished runs started before olderThan.
func (s *RunStore) PruneRuns(_ context.Context, olderThan time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for id, run := range s.runs {
		if run.FinishedAt != nil && run.StartedAt.Before(olderThan) {
			delete(s.runs, id)
			n++
		}
	}
	return n, nil
}

// GetRun returns a run by id.
func (s *RunStore) GetRun(_ context.Context, id string) (crawler.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	run, ok := s.runs[id]
	if !ok {
		return crawler.Run{}, store.ErrNotFound
	}
	return run, nil
}

func pointerTime(t time.Time) *time.Time {
	ts := t
	return &ts
}

func isTerminal(status crawler.RunStatus) bool {
	switch status {
	case crawler.RunStatusSucceeded, crawler.RunStatusFailed, crawler.RunStatusCanceled:
		return true
	default:
		return false
	}
}

var (
	_ store.ActivityStore  = (*ActivityStore)(nil)
	_ store.UserStore      = (*UserStore)(nil)
	_ store.FavouriteStore = (*FavouriteStore)(nil)
	_ store.RunStore       = (*RunStore)(nil)
)
