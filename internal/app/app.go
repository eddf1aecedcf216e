// Package app initializes and holds the long-lived services shared by the
// crawl, serve and export commands.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"cloud.google.com/go/storage"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/JakeFAU/kidssmart/internal/cache"
	"github.com/JakeFAU/kidssmart/internal/clock/system"
	"github.com/JakeFAU/kidssmart/internal/config"
	"github.com/JakeFAU/kidssmart/internal/crawler"
	collyfetcher "github.com/JakeFAU/kidssmart/internal/fetcher/colly"
	headlessfetcher "github.com/JakeFAU/kidssmart/internal/fetcher/headless"
	"github.com/JakeFAU/kidssmart/internal/fetcher/snapshot"
	"github.com/JakeFAU/kidssmart/internal/hash/sha256"
	"github.com/JakeFAU/kidssmart/internal/headless/detector"
	"github.com/JakeFAU/kidssmart/internal/metrics"
	"github.com/JakeFAU/kidssmart/internal/pipeline"
	"github.com/JakeFAU/kidssmart/internal/policy/ratelimit"
	"github.com/JakeFAU/kidssmart/internal/progress"
	progresssinks "github.com/JakeFAU/kidssmart/internal/progress/sinks"
	memorypublisher "github.com/JakeFAU/kidssmart/internal/publisher/memory"
	gcppublisher "github.com/JakeFAU/kidssmart/internal/publisher/pubsub"
	"github.com/JakeFAU/kidssmart/internal/spider"
	gcsstorage "github.com/JakeFAU/kidssmart/internal/storage/gcs"
	localstorage "github.com/JakeFAU/kidssmart/internal/storage/local"
	memorystorage "github.com/JakeFAU/kidssmart/internal/storage/memory"
	pgstore "github.com/JakeFAU/kidssmart/internal/storage/postgres"
	"github.com/JakeFAU/kidssmart/internal/store"
	"github.com/JakeFAU/kidssmart/internal/telemetry"
	"github.com/JakeFAU/kidssmart/internal/worker"
)

// App holds the shared services. It is built once per process and closed on exit.
type App struct {
	Config config.Config
	Logger *zap.Logger
	Clock  crawler.Clock

	// Activities wraps the activity store with the facet cache.
	Activities *cache.FacetStore
	Users      store.UserStore
	Favourites store.FavouriteStore
	Runs       store.RunStore
	// Ready is nil for the in-memory backend.
	Ready store.Pinger

	Publisher crawler.Publisher
	// Blobs is nil unless crawler.snapshots is set.
	Blobs   crawler.BlobStore
	Spiders *spider.Registry
	Env     spider.Env
	Tracer  trace.Tracer

	closers []closer
}

type closer struct {
	name string
	fn   func(context.Context) error
}

// New builds every service cfg describes. On failure the services built so far are closed.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics.Init()

	a := &App{
		Config:  cfg,
		Logger:  logger,
		Clock:   system.New(),
		Spiders: spider.Default(cfg.Spiders),
		Tracer:  telemetry.Tracer("kidssmart"),
	}
	ok := false
	defer func() {
		if !ok {
			_ = a.Close(context.Background())
		}
	}()

	steps := []struct {
		name string
		fn   func(context.Context) error
	}{
		{"tracing", a.setupTracing},
		{"stores", a.setupStores},
		{"cache", a.setupCache},
		{"publisher", a.setupPublisher},
		{"blob store", a.setupBlobs},
		{"fetchers", a.setupFetchers},
	}
	for _, step := range steps {
		if err := step.fn(ctx); err != nil {
			return nil, fmt.Errorf("setup %s: %w", step.name, err)
		}
	}
	ok = true
	return a, nil
}

func (a *App) onClose(name string, fn func(context.Context) error) {
	a.closers = append(a.closers, closer{name: name, fn: fn})
}

func (a *App) setupTracing(ctx context.Context) error {
	if !a.Config.Tracing.Enabled {
		return nil
	}
	exp, err := telemetry.NewExporter(a.Config.Tracing.Exporter, a.Config.TraceProject(), os.Stderr)
	if err != nil {
		return err
	}
	tp, err := telemetry.InitTracerProvider(ctx, a.Config.Tracing.ServiceName, a.Config.Tracing.SampleRatio, exp)
	if err != nil {
		return err
	}
	a.onClose("tracer", tp.Shutdown)
	a.Logger.Info("tracing enabled",
		zap.String("exporter", a.Config.Tracing.Exporter),
		zap.Float64("sample_ratio", a.Config.Tracing.SampleRatio))
	return nil
}

func (a *App) setupStores(ctx context.Context) error {
	var activities store.ActivityStore
	if a.Config.DB.DSN == "" {
		a.Logger.Warn("no database configured, using in-memory stores")
		activities = memorystorage.NewActivityStore()
		a.Users = memorystorage.NewUserStore()
		a.Favourites = memorystorage.NewFavouriteStore()
		a.Runs = memorystorage.NewRunStore()
	} else {
		pg, err := pgstore.New(ctx, pgstore.Config{
			DSN:             a.Config.DB.DSN,
			MaxConns:        a.Config.DB.MaxConns,
			MinConns:        a.Config.DB.MinConns,
			MaxConnLifetime: a.Config.DB.MaxConnLifetime,
		})
		if err != nil {
			return err
		}
		a.onClose("postgres", func(context.Context) error {
			pg.Close()
			return nil
		})
		activities, a.Users, a.Favourites, a.Runs, a.Ready = pg, pg, pg, pg, pg
		a.Logger.Info("postgres store initialized")
	}
	a.Activities = cache.NewFacetStore(activities, cache.Noop{}, a.Logger.Named("cache"))
	return nil
}

func (a *App) setupCache(ctx context.Context) error {
	if a.Config.Redis.Address == "" {
		return nil
	}
	client, err := cache.NewClient(ctx, cache.Config{
		Address:  a.Config.Redis.Address,
		Password: a.Config.Redis.Password,
		DB:       a.Config.Redis.DB,
		TTL:      a.Config.Redis.TTL,
	})
	if err != nil {
		return err
	}
	a.onClose("redis", func(context.Context) error { return client.Close() })
	inner := a.Activities.ActivityStore
	a.Activities = cache.NewFacetStore(inner, cache.NewRedis(client, a.Config.Redis.TTL), a.Logger.Named("cache"))
	a.Logger.Info("facet cache enabled", zap.String("address", a.Config.Redis.Address))
	return nil
}

func (a *App) setupPublisher(ctx context.Context) error {
	if a.Config.PubSub.ProjectID == "" {
		a.Publisher = memorypublisher.NewBounded(memorypublisher.DefaultLimit)
		return nil
	}
	p, err := gcppublisher.New(ctx, gcppublisher.Config{
		ProjectID: a.Config.PubSub.ProjectID,
		TopicID:   a.Config.PubSub.TopicName,
	})
	if err != nil {
		return err
	}
	a.onClose("pubsub", func(context.Context) error { return p.Close() })
	a.Publisher = p
	a.Logger.Info("pubsub publisher initialized",
		zap.String("project", a.Config.PubSub.ProjectID),
		zap.String("topic", a.Config.PubSub.TopicName))
	return nil
}

func (a *App) setupBlobs(ctx context.Context) error {
	if !a.Config.Crawler.Snapshots {
		return nil
	}
	switch a.Config.Storage.Backend {
	case config.StorageGCS:
		client, err := storage.NewClient(ctx)
		if err != nil {
			return fmt.Errorf("gcs client init: %w", err)
		}
		a.onClose("gcs", func(context.Context) error { return client.Close() })
		blobs, err := gcsstorage.New(client, gcsstorage.Config{Bucket: a.Config.Storage.Bucket})
		if err != nil {
			return err
		}
		a.Blobs = blobs
	case config.StorageLocal:
		blobs, err := localstorage.New(localstorage.Config{BaseDir: a.Config.Storage.LocalDir})
		if err != nil {
			return err
		}
		a.Blobs = blobs
	default:
		a.Blobs = memorystorage.NewBlobStore()
	}
	a.Logger.Info("page snapshots enabled", zap.String("backend", a.Config.Storage.Backend))
	return nil
}

// setupFetchers layers the HTTP fetcher as block -> promote -> retry -> rate
// limit -> snapshot -> colly, so every retry waits for the limiter.
func (a *App) setupFetchers(context.Context) error {
	var renderer crawler.Renderer = headlessfetcher.NewNoop()
	var chrome *headlessfetcher.Fetcher
	if a.Config.Headless.Enabled {
		var err error
		chrome, err = headlessfetcher.NewChromedp(headlessfetcher.Config{
			MaxParallel:       a.Config.Headless.MaxParallel,
			UserAgent:         a.Config.Crawler.UserAgent,
			NavigationTimeout: a.Config.Headless.NavTimeout(),
			Settle:            a.Config.Headless.Settle(),
			MaxPages:          a.Config.Headless.MaxPages,
		})
		if err != nil {
			return fmt.Errorf("headless renderer init: %w", err)
		}
		a.onClose("chromedp", func(context.Context) error {
			chrome.Close()
			return nil
		})
		renderer = chrome
	}

	var fetcher crawler.Fetcher = collyfetcher.New(collyfetcher.Config{
		UserAgent:     a.Config.Crawler.UserAgent,
		RespectRobots: !a.Config.Crawler.IgnoreRobots,
		Timeout:       a.Config.HTTP.FetchTimeout(),
		MaxBodyBytes:  a.Config.HTTP.MaxBodyBytes,
	})
	if a.Blobs != nil {
		fetcher = snapshot.New(fetcher, a.Blobs, sha256.New(), a.Config.Storage.Prefix, a.Logger.Named("snapshot"))
	}
	if a.Config.Crawler.RateLimitRPS > 0 {
		fetcher = ratelimit.NewFetcher(fetcher, ratelimit.New(ratelimit.Config{
			DefaultRPS:   a.Config.Crawler.RateLimitRPS,
			DefaultBurst: a.Config.Crawler.RateBurst,
		}))
	}
	initial, maxDelay := a.Config.HTTP.Backoff()
	fetcher = crawler.NewRetryingFetcher(fetcher,
		crawler.NewExponentialRetryPolicyWith(a.Config.HTTP.MaxRetries+1, initial, maxDelay))
	if chrome != nil && a.Config.Headless.Promote {
		fetcher = detector.NewPromoter(fetcher, chrome,
			detector.NewHeuristic(a.Config.Headless.PromoteThreshold), a.Logger.Named("promote"))
	}
	if len(a.Config.Crawler.BlockedHosts) > 0 {
		fetcher = crawler.NewBlockingFetcher(fetcher, crawler.NewHostMatcher(a.Config.Crawler.BlockedHosts))
	}

	a.Env = spider.Env{
		Fetcher:  fetcher,
		Renderer: renderer,
		Logger:   a.Logger.Named("spider"),
		Clock:    a.Clock,
	}
	return nil
}

// Pipeline builds the item pipeline. A non-nil dryRun replaces persistence and
// publishing with JSON lines written to it.
func (a *App) Pipeline(emitter progress.Emitter, dryRun io.Writer) *pipeline.Pipeline {
	stages := []pipeline.Stage{pipeline.Normalize(), pipeline.Validate()}
	if dryRun != nil {
		stages = append(stages, pipeline.NewPrint(dryRun))
	} else {
		stages = append(stages,
			pipeline.Persist{Store: a.Activities, Logger: a.Logger.Named("persist")},
			pipeline.Publish{
				Publisher: a.Publisher,
				Topic:     pipeline.CreatedTopic,
				Clock:     a.Clock,
				Logger:    a.Logger.Named("publish"),
			},
		)
	}
	return pipeline.New(stages,
		pipeline.WithEmitter(emitter),
		pipeline.WithClock(a.Clock),
		pipeline.WithLogger(a.Logger.Named("pipeline")))
}

// NewHub starts a progress hub fanning out to the log sink (when enabled), the
// Prometheus sink registered on reg, and live when it is non-nil.
func (a *App) NewHub(reg prometheus.Registerer, live *progresssinks.LiveSink) (*progress.Hub, error) {
	prom, err := progresssinks.NewPrometheusSink(reg)
	if err != nil {
		return nil, err
	}
	sinks := []progress.Sink{prom}
	if live != nil {
		sinks = append(sinks, live)
	}
	if a.Config.Progress.LogEnabled {
		sinks = append(sinks, progresssinks.NewLogSink(a.Logger.Named("progress")))
	}
	return progress.NewHub(progress.Config{
		BufferSize:     a.Config.Progress.BufferSize,
		MaxBatchEvents: a.Config.Progress.MaxBatchEvents,
		MaxBatchWait:   a.Config.Progress.MaxBatchWait,
		SinkTimeout:    a.Config.Progress.SinkTimeout,
		Logger:         a.Logger.Named("progress_hub"),
	}, sinks...), nil
}

// NewWorker builds a worker over the shared services. q may be nil when the
// caller only uses Execute.
func (a *App) NewWorker(q crawler.Queue, p *pipeline.Pipeline, emitter progress.Emitter, index int) *worker.Worker {
	return worker.New(worker.Deps{
		Queue:    q,
		Spiders:  a.Spiders,
		Pipeline: p,
		Runs:     a.Runs,
		Cache:    a.Activities,
		Emitter:  emitter,
		Env:      a.Env,
		Clock:    a.Clock,
		Tracer:   a.Tracer,
	}, worker.Config{RunTimeout: a.Config.Crawler.RunTimeout},
		a.Logger.Named("worker").With(zap.Int("index", index)))
}

// Close releases services in reverse order of construction.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		c := a.closers[i]
		if err := c.fn(ctx); err != nil {
			a.Logger.Warn("close failed", zap.String("service", c.name), zap.Error(err))
			errs = append(errs, fmt.Errorf("close %s: %w", c.name, err))
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
