// Package scheduler submits spider runs on cron schedules and prunes old run
// history.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/JakeFAU/kidssmart/internal/crawler"
)

// Submitter queues a run; *dispatcher.Dispatcher satisfies it.
type Submitter interface {
	Submit(ctx context.Context, spider string, trigger crawler.Trigger) (crawler.RunRequest, error)
}

// Pruner deletes finished runs started before a cutoff.
type Pruner interface {
	PruneRuns(ctx context.Context, olderThan time.Time) (int64, error)
}

// Config lists the schedules. Expressions use the standard five fields or
// descriptors such as "@daily".
type Config struct {
	// Spiders maps spider name to cron expression.
	Spiders map[string]string
	// PruneSpec schedules run-history pruning; empty disables it.
	PruneSpec string
	// Retention is how long finished runs are kept.
	Retention time.Duration
}

// Entry describes one scheduled job.
type Entry struct {
	Name string
	Spec string
	Next time.Time
}

const pruneEntry = "prune-runs"

// Scheduler wraps a cron instance.
type Scheduler struct {
	cron      *cron.Cron
	submitter Submitter
	pruner    Pruner
	retention time.Duration
	logger    *zap.Logger

	mu      sync.RWMutex
	ctx     context.Context
	entries map[string]scheduled
}

type scheduled struct {
	id   cron.EntryID
	spec string
}

var parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// New validates every expression and spider name and registers the jobs.
// known may be nil to skip the spider name check.
func New(cfg Config, submitter Submitter, pruner Pruner, known func(string) bool, logger *zap.Logger) (*Scheduler, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Scheduler{
		cron:      cron.New(cron.WithParser(parser), cron.WithLocation(time.UTC)),
		submitter: submitter,
		pruner:    pruner,
		retention: cfg.Retention,
		logger:    logger,
		ctx:       context.Background(),
		entries:   make(map[string]scheduled),
	}
	names := make([]string, 0, len(cfg.Spiders))
	for name := range cfg.Spiders {
		names = append(names, name)
	}
	sort.Strings(names)

	var errs []error
	for _, name := range names {
		spec := cfg.Spiders[name]
		if spec == "" {
			continue
		}
		if known != nil && !known(name) {
			errs = append(errs, fmt.Errorf("schedule %q: unknown spider", name))
			continue
		}
		spiderName := name
		if err := s.add(name, spec, func() { s.trigger(spiderName) }); err != nil {
			errs = append(errs, err)
		}
	}
	if cfg.PruneSpec != "" {
		switch {
		case pruner == nil:
			errs = append(errs, errors.New("prune schedule set without a run store"))
		case cfg.Retention <= 0:
			errs = append(errs, errors.New("prune schedule needs a positive retention"))
		default:
			if err := s.add(pruneEntry, cfg.PruneSpec, s.prune); err != nil {
				errs = append(errs, err)
			}
		}
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Scheduler) add(name, spec string, fn func()) error {
	if _, err := parser.Parse(spec); err != nil {
		return fmt.Errorf("schedule %q: parse %q: %w", name, spec, err)
	}
	id, err := s.cron.AddFunc(spec, fn)
	if err != nil {
		return fmt.Errorf("schedule %q: %w", name, err)
	}
	s.entries[name] = scheduled{id: id, spec: spec}
	return nil
}

// Start begins firing jobs; ctx is handed to every submission.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	s.ctx = ctx
	s.mu.Unlock()
	s.cron.Start()
	for _, e := range s.Entries() {
		s.logger.Info("job scheduled", zap.String("name", e.Name), zap.String("spec", e.Spec), zap.Time("next", e.Next))
	}
}

// Stop prevents new firings and waits for running jobs or ctx.
func (s *Scheduler) Stop(ctx context.Context) error {
	select {
	case <-s.cron.Stop().Done():
		return nil
	case <-ctx.Done():
		return fmt.Errorf("stop scheduler: %w", ctx.Err())
	}
}

// Entries lists the scheduled jobs by name. Next is zero until Start.
func (s *Scheduler) Entries() []Entry {
	out := make([]Entry, 0, len(s.entries))
	for name, e := range s.entries {
		out = append(out, Entry{Name: name, Spec: e.spec, Next: s.cron.Entry(e.id).Next})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (s *Scheduler) baseContext() context.Context {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ctx
}

func (s *Scheduler) trigger(spider string) {
	req, err := s.submitter.Submit(s.baseContext(), spider, crawler.TriggerSchedule)
	if err != nil {
		s.logger.Error("scheduled run not queued", zap.String("spider", spider), zap.Error(err))
		return
	}
	s.logger.Info("scheduled run queued", zap.String("spider", spider), zap.String("run_id", req.RunID))
}

func (s *Scheduler) prune() {
	cutoff := time.Now().UTC().Add(-s.retention)
	n, err := s.pruner.PruneRuns(s.baseContext(), cutoff)
	if err != nil {
		s.logger.Error("prune runs failed", zap.Error(err))
		return
	}
	s.logger.Info("pruned runs", zap.Int64("deleted", n), zap.Time("cutoff", cutoff))
}
