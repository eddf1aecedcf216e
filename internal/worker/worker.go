// Package worker executes spider runs: it drives a spider, feeds every item
// through the pipeline and records the run.
package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/JakeFAU/kidssmart/internal/activity"
	"github.com/JakeFAU/kidssmart/internal/crawler"
	"github.com/JakeFAU/kidssmart/internal/metrics"
	"github.com/JakeFAU/kidssmart/internal/pipeline"
	"github.com/JakeFAU/kidssmart/internal/progress"
	"github.com/JakeFAU/kidssmart/internal/spider"
	"github.com/JakeFAU/kidssmart/internal/store"
	"github.com/JakeFAU/kidssmart/internal/telemetry"
)

// ErrUnknownSpider fails runs that name a spider the registry does not hold.
var ErrUnknownSpider = errors.New("unknown spider")

const finishTimeout = 10 * time.Second

// Config controls Worker behavior.
type Config struct {
	// RunTimeout bounds a single spider run; zero means no limit.
	RunTimeout time.Duration
}

// Invalidator drops cached facets after a run changes the data.
type Invalidator interface {
	Invalidate(ctx context.Context) error
}

// Deps holds the collaborators of a Worker. Queue is only needed by Run.
type Deps struct {
	Queue    crawler.Queue
	Spiders  *spider.Registry
	Pipeline *pipeline.Pipeline
	Runs     store.RunStore
	Cache    Invalidator
	Emitter  progress.Emitter
	Env      spider.Env
	Clock    crawler.Clock
	Tracer   trace.Tracer
}

// Worker consumes run requests and executes them.
type Worker struct {
	deps   Deps
	cfg    Config
	logger *zap.Logger
}

// New constructs a Worker.
func New(deps Deps, cfg Config, logger *zap.Logger) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}
	if deps.Pipeline == nil {
		deps.Pipeline = pipeline.New(nil)
	}
	if deps.Emitter == nil {
		deps.Emitter = progress.Nop{}
	}
	if deps.Clock == nil {
		deps.Clock = utcClock{}
	}
	if deps.Tracer == nil {
		deps.Tracer = telemetry.Tracer("worker")
	}
	return &Worker{deps: deps, cfg: cfg, logger: logger}
}

// Run blocks, consuming run requests until ctx finishes or the queue closes.
func (w *Worker) Run(ctx context.Context) {
	if w.deps.Queue == nil {
		w.logger.Error("worker started without a queue")
		return
	}
	for {
		req, err := w.deps.Queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, crawler.ErrQueueClosed) {
				return
			}
			w.logger.Error("queue dequeue failed", zap.Error(err))
			continue
		}
		w.logger.Debug("dequeued run", zap.String("run_id", req.RunID), zap.String("spider", req.Spider))
		if _, err := w.Execute(ctx, req); err != nil {
			w.logger.Error("run failed to record",
				zap.String("run_id", req.RunID),
				zap.String("spider", req.Spider),
				zap.Error(err))
		}
	}
}

// Execute performs one run and returns its final record. The returned error only
// reports bookkeeping failures; spider errors end up in the run's status and ErrorText.
func (w *Worker) Execute(ctx context.Context, req crawler.RunRequest) (crawler.Run, error) {
	if req.RunID == "" {
		return crawler.Run{}, errors.New("run id is required")
	}
	metrics.IncActiveWorkers()
	defer metrics.DecActiveWorkers()

	ctx, span := w.deps.Tracer.Start(ctx, "spider.run", trace.WithAttributes(
		attribute.String("spider", req.Spider),
		attribute.String("run_id", req.RunID),
		attribute.String("trigger", string(req.Trigger)),
	))
	defer span.End()

	logger := w.logger.With(zap.String("run_id", req.RunID), zap.String("spider", req.Spider))
	run := crawler.Run{
		ID:        req.RunID,
		Spider:    req.Spider,
		Status:    crawler.RunStatusRunning,
		Trigger:   req.Trigger,
		StartedAt: w.deps.Clock.Now(),
	}
	if w.deps.Runs != nil {
		if err := w.deps.Runs.StartRun(ctx, run); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "start run")
			return run, fmt.Errorf("start run: %w", err)
		}
	}
	w.event(run, progress.StageRunStart, 0, "")
	logger.Info("run started", zap.String("trigger", string(req.Trigger)))

	counters, runErr := w.runSpider(ctx, req, logger)

	finished := w.deps.Clock.Now()
	run.FinishedAt = &finished
	run.Counters = counters
	run.Status, run.ErrorText = deriveFinalStatus(ctx, counters, runErr)
	span.SetAttributes(
		attribute.String("status", string(run.Status)),
		attribute.Int("items_saved", counters.ItemsSaved),
	)
	if runErr != nil {
		span.RecordError(runErr)
	}
	if run.Status != crawler.RunStatusSucceeded {
		span.SetStatus(codes.Error, run.ErrorText)
	}

	// The run may have been canceled; the final record is written regardless.
	finishCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), finishTimeout)
	defer cancel()
	var recordErr error
	if w.deps.Runs != nil {
		if err := w.deps.Runs.FinishRun(finishCtx, run); err != nil {
			recordErr = fmt.Errorf("finish run: %w", err)
		}
	}
	if w.deps.Cache != nil {
		if err := w.deps.Cache.Invalidate(finishCtx); err != nil {
			logger.Warn("facet cache invalidation failed", zap.Error(err))
		}
	}

	stage := progress.StageRunDone
	if run.Status != crawler.RunStatusSucceeded {
		stage = progress.StageRunError
	}
	w.event(run, stage, finished.Sub(run.StartedAt), run.ErrorText)
	logger.Info("run finished",
		zap.String("status", string(run.Status)),
		zap.Int("scraped", counters.ItemsScraped),
		zap.Int("saved", counters.ItemsSaved),
		zap.Int("duplicate", counters.ItemsDuplicate),
		zap.Int("dropped", counters.ItemsDropped),
		zap.Int("failed", counters.ItemsFailed),
		zap.String("error", run.ErrorText))
	return run, recordErr
}

func (w *Worker) runSpider(ctx context.Context, req crawler.RunRequest, logger *zap.Logger) (crawler.RunCounters, error) {
	var counters crawler.RunCounters
	if w.deps.Spiders == nil {
		return counters, fmt.Errorf("%w: %q", ErrUnknownSpider, req.Spider)
	}
	s, ok := w.deps.Spiders.Get(req.Spider)
	if !ok {
		return counters, fmt.Errorf("%w: %q", ErrUnknownSpider, req.Spider)
	}

	runCtx := ctx
	if w.cfg.RunTimeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, w.cfg.RunTimeout)
		defer cancel()
	}

	env := w.deps.Env
	env.Logger = logger.Named(req.Spider)
	if env.Clock == nil {
		env.Clock = w.deps.Clock
	}

	var mu sync.Mutex
	emit := func(ctx context.Context, a activity.Activity) error {
		item := &pipeline.Item{RunID: req.RunID, Spider: req.Spider, Activity: a}
		outcomes := w.deps.Pipeline.Process(ctx, item)
		mu.Lock()
		for _, o := range outcomes {
			o.Apply(&counters)
		}
		mu.Unlock()
		return nil
	}
	err := s.Run(runCtx, env, emit)

	mu.Lock()
	defer mu.Unlock()
	return counters, err
}

// deriveFinalStatus maps the spider outcome to a run status. Partial progress
// counts as success; the error text is kept either way.
func deriveFinalStatus(ctx context.Context, counters crawler.RunCounters, runErr error) (crawler.RunStatus, string) {
	errText := ""
	if runErr != nil {
		errText = runErr.Error()
	}
	switch {
	case ctx.Err() != nil:
		if errText == "" {
			errText = ctx.Err().Error()
		}
		return crawler.RunStatusCanceled, errText
	case runErr != nil && counters.ItemsSaved+counters.ItemsDuplicate == 0:
		return crawler.RunStatusFailed, errText
	default:
		return crawler.RunStatusSucceeded, errText
	}
}

func (w *Worker) event(run crawler.Run, stage progress.Stage, dur time.Duration, note string) {
	evt := progress.Event{
		RunID:  progress.ParseRunID(run.ID),
		TS:     w.deps.Clock.Now(),
		Stage:  stage,
		Spider: run.Spider,
		Dur:    dur,
		Note:   note,
	}
	if stage != progress.StageRunStart {
		evt.Status = string(run.Status)
	}
	w.deps.Emitter.Emit(evt)
}

type utcClock struct{}

func (utcClock) Now() time.Time { return time.Now().UTC() }
