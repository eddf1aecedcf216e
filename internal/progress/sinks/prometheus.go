package sinks

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/JakeFAU/kidssmart/internal/metrics"
	"github.com/JakeFAU/kidssmart/internal/progress"
)

// PrometheusSink forwards item and run outcomes to the shared metrics and
// tracks how many runs are in flight.
type PrometheusSink struct {
	runsStarted prometheus.Counter
	runsRunning prometheus.Gauge

	tracker *runTracker
}

// NewPrometheusSink registers the sink's own collectors on reg.
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PrometheusSink{
		runsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "kidssmart_runs_started_total",
			Help: "Spider runs that have started.",
		}),
		runsRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "kidssmart_runs_in_flight",
			Help: "Spider runs currently executing.",
		}),
		tracker: newRunTracker(),
	}
	for _, c := range []prometheus.Collector{s.runsStarted, s.runsRunning} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("register progress collector: %w", err)
		}
	}
	return s, nil
}

// Consume updates collectors from the batch.
func (s *PrometheusSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		switch evt.Stage {
		case progress.StageRunStart:
			s.runsStarted.Inc()
			if s.tracker.start(evt.RunID) {
				s.runsRunning.Inc()
			}
		case progress.StageRunDone, progress.StageRunError:
			metrics.ObserveRun(evt.Spider, evt.Status, evt.Dur)
			if s.tracker.complete(evt.RunID) {
				s.runsRunning.Dec()
			}
		case progress.StageItem:
			metrics.ObserveItem(evt.Spider, string(evt.Outcome))
		}
	}
	return nil
}

// Close implements progress.Sink.
func (s *PrometheusSink) Close(context.Context) error {
	return nil
}

type runTracker struct {
	mu      sync.Mutex
	running map[uuid.UUID]struct{}
}

func newRunTracker() *runTracker {
	return &runTracker{running: make(map[uuid.UUID]struct{})}
}

func (t *runTracker) start(id uuid.UUID) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.running[id]; ok {
		return false
	}
	t.running[id] = struct{}{}
	return true
}

func (t *runTracker) complete(id uuid.UUID) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.running[id]; !ok {
		return false
	}
	delete(t.running, id)
	return true
}
