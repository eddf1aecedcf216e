package sinks

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/JakeFAU/kidssmart/internal/clock/system"
	"github.com/JakeFAU/kidssmart/internal/crawler"
	"github.com/JakeFAU/kidssmart/internal/progress"
)

// LiveRun is the in-flight view of one run.
type LiveRun struct {
	RunID     string              `json:"run_id"`
	Spider    string              `json:"spider"`
	StartedAt time.Time           `json:"started_at"`
	UpdatedAt time.Time           `json:"updated_at"`
	Counters  crawler.RunCounters `json:"counters"`
}

// DefaultLiveTTL is how long a run may go without events before LiveSink forgets it.
const DefaultLiveTTL = 2 * time.Hour

// LiveSink keeps running counters for runs that have started and not yet finished,
// for the admin dashboard. Finished runs are read from the run store instead.
// A run whose done event was dropped is evicted once it has been quiet for the TTL.
type LiveSink struct {
	mu    sync.Mutex
	runs  map[uuid.UUID]*LiveRun
	ttl   time.Duration
	clock crawler.Clock
}

// LiveOption configures a LiveSink.
type LiveOption func(*LiveSink)

// WithLiveTTL overrides DefaultLiveTTL.
func WithLiveTTL(ttl time.Duration) LiveOption {
	return func(s *LiveSink) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// WithLiveClock sets the clock used for eviction.
func WithLiveClock(c crawler.Clock) LiveOption {
	return func(s *LiveSink) {
		if c != nil {
			s.clock = c
		}
	}
}

// NewLiveSink returns an empty tally.
func NewLiveSink(opts ...LiveOption) *LiveSink {
	s := &LiveSink{
		runs:  make(map[uuid.UUID]*LiveRun),
		ttl:   DefaultLiveTTL,
		clock: system.New(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Consume folds item outcomes into per-run counters.
func (s *LiveSink) Consume(_ context.Context, batch []progress.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	defer s.evictLocked()
	for _, evt := range batch {
		switch evt.Stage {
		case progress.StageRunStart:
			if _, ok := s.runs[evt.RunID]; !ok {
				s.runs[evt.RunID] = &LiveRun{
					RunID:     evt.RunID.String(),
					Spider:    evt.Spider,
					StartedAt: evt.TS,
					UpdatedAt: evt.TS,
				}
			}
		case progress.StageRunDone, progress.StageRunError:
			delete(s.runs, evt.RunID)
		case progress.StageItem:
			run, ok := s.runs[evt.RunID]
			if !ok {
				// Item batches can arrive before a dropped start event; track them anyway.
				run = &LiveRun{RunID: evt.RunID.String(), Spider: evt.Spider, StartedAt: evt.TS, UpdatedAt: evt.TS}
				s.runs[evt.RunID] = run
			}
			evt.Outcome.Apply(&run.Counters)
			if evt.TS.After(run.UpdatedAt) {
				run.UpdatedAt = evt.TS
			}
		}
	}
	return nil
}

// Snapshot returns the runs in flight ordered by start time.
func (s *LiveSink) Snapshot() []LiveRun {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.evictLocked()
	out := make([]LiveRun, 0, len(s.runs))
	for _, run := range s.runs {
		out = append(out, *run)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].RunID < out[j].RunID
		}
		return out[i].StartedAt.Before(out[j].StartedAt)
	})
	return out
}

func (s *LiveSink) evictLocked() {
	cutoff := s.clock.Now().Add(-s.ttl)
	for id, run := range s.runs {
		if run.UpdatedAt.Before(cutoff) {
			delete(s.runs, id)
		}
	}
}

// Close implements progress.Sink.
func (s *LiveSink) Close(context.Context) error {
	return nil
}
