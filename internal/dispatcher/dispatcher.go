// Package dispatcher fans queued spider runs out to a pool of workers.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/JakeFAU/kidssmart/internal/crawler"
)

// ErrUnknownSpider rejects submissions for spiders that are not registered.
var ErrUnknownSpider = errors.New("unknown spider")

// Runner is a long-lived consumer of the queue; *worker.Worker satisfies it.
type Runner interface {
	Run(ctx context.Context)
}

// Dispatcher owns the queue and the workers draining it.
type Dispatcher struct {
	queue   crawler.Queue
	workers []Runner
	ids     crawler.IDGenerator
	clock   crawler.Clock
	known   func(name string) bool
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithClock overrides the submission clock.
func WithClock(c crawler.Clock) Option {
	return func(d *Dispatcher) { d.clock = c }
}

// WithKnownSpiders makes Submit reject names for which known returns false.
func WithKnownSpiders(known func(name string) bool) Option {
	return func(d *Dispatcher) { d.known = known }
}

// New creates a Dispatcher.
func New(queue crawler.Queue, workers []Runner, ids crawler.IDGenerator, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		queue:   queue,
		workers: workers,
		ids:     ids,
		clock:   utcClock{},
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Run starts all workers and blocks until the context finishes and they return.
func (d *Dispatcher) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for _, w := range d.workers {
		wg.Add(1)
		go func(r Runner) {
			defer wg.Done()
			r.Run(ctx)
		}(w)
	}
	<-ctx.Done()
	wg.Wait()
}

// Enqueue proxies to the underlying queue.
func (d *Dispatcher) Enqueue(ctx context.Context, req crawler.RunRequest) error {
	if err := d.queue.Enqueue(ctx, req); err != nil {
		return fmt.Errorf("queue enqueue: %w", err)
	}
	return nil
}

// Submit assigns a run ID to a new request for spider and queues it.
func (d *Dispatcher) Submit(ctx context.Context, spider string, trigger crawler.Trigger) (crawler.RunRequest, error) {
	if d.known != nil && !d.known(spider) {
		return crawler.RunRequest{}, fmt.Errorf("%w: %q", ErrUnknownSpider, spider)
	}
	if d.ids == nil {
		return crawler.RunRequest{}, errors.New("id generator is not configured")
	}
	id, err := d.ids.NewID()
	if err != nil {
		return crawler.RunRequest{}, fmt.Errorf("new run id: %w", err)
	}
	req := crawler.RunRequest{
		RunID:     id,
		Spider:    spider,
		Trigger:   trigger,
		Attempt:   1,
		Submitted: d.clock.Now().Unix(),
	}
	if err := d.Enqueue(ctx, req); err != nil {
		return crawler.RunRequest{}, err
	}
	return req, nil
}

type utcClock struct{}

func (utcClock) Now() time.Time { return time.Now().UTC() }
