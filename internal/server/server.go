// Package server runs the long-lived serve process: the web front end, the
// run dispatcher with its workers, and the cron scheduler.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/JakeFAU/kidssmart/internal/app"
	"github.com/JakeFAU/kidssmart/internal/auth"
	"github.com/JakeFAU/kidssmart/internal/dispatcher"
	"github.com/JakeFAU/kidssmart/internal/id/uuid"
	"github.com/JakeFAU/kidssmart/internal/metrics"
	"github.com/JakeFAU/kidssmart/internal/progress"
	progresssinks "github.com/JakeFAU/kidssmart/internal/progress/sinks"
	queuememory "github.com/JakeFAU/kidssmart/internal/queue/memory"
	"github.com/JakeFAU/kidssmart/internal/scheduler"
	"github.com/JakeFAU/kidssmart/internal/web"
)

const defaultShutdownTimeout = 10 * time.Second

// Server wires the serve-time components on top of an app.App.
type Server struct {
	app      *app.App
	logger   *zap.Logger
	live     *progresssinks.LiveSink
	hub      *progress.Hub
	queue    *queuememory.Queue
	dispatch *dispatcher.Dispatcher
	sched    *scheduler.Scheduler
	web      *web.Server
}

// Build creates the queue, workers, scheduler and web server. reg receives the
// progress collectors; nil means the default registerer.
func Build(a *app.App, reg prometheus.Registerer) (*Server, error) {
	cfg := a.Config
	logger := a.Logger

	sessions, err := auth.NewSessions(cfg.Session.Secret, cfg.Session.TTL)
	if err != nil {
		return nil, fmt.Errorf("session init failed: %w", err)
	}

	s := &Server{
		app:    a,
		logger: logger.Named("server"),
		live:   progresssinks.NewLiveSink(progresssinks.WithLiveClock(a.Clock)),
		queue:  queuememory.NewQueue(cfg.Crawler.QueueDepth),
	}
	s.hub, err = a.NewHub(reg, s.live)
	if err != nil {
		return nil, fmt.Errorf("progress hub init failed: %w", err)
	}
	ok := false
	defer func() {
		if !ok {
			_ = s.hub.Close(context.Background())
		}
	}()

	pipe := a.Pipeline(s.hub, nil)
	workers := make([]dispatcher.Runner, 0, cfg.Crawler.Concurrency)
	for i := 0; i < cfg.Crawler.Concurrency; i++ {
		workers = append(workers, a.NewWorker(s.queue, pipe, s.hub, i))
	}
	s.dispatch = dispatcher.New(s.queue, workers, uuid.New(),
		dispatcher.WithClock(a.Clock),
		dispatcher.WithKnownSpiders(a.Spiders.Has))

	s.sched, err = scheduler.New(scheduler.Config{
		Spiders:   cfg.Schedule.Spiders,
		PruneSpec: cfg.Schedule.PruneSpec,
		Retention: cfg.Schedule.Retention,
	}, s.dispatch, a.Runs, a.Spiders.Has, logger.Named("scheduler"))
	if err != nil {
		return nil, fmt.Errorf("scheduler init failed: %w", err)
	}

	s.web, err = web.NewServer(web.Deps{
		Activities: a.Activities,
		Users:      a.Users,
		Favourites: a.Favourites,
		Runs:       a.Runs,
		Sessions:   sessions,
		Spiders:    a.Spiders,
		Submitter:  s.dispatch,
		Live:       s.live,
		Schedules:  s.sched,
		Ready:      a.Ready,
		Clock:      a.Clock,
		Metrics:    metrics.Handler(),
	}, web.Config{
		CookieName:     cfg.Session.CookieName,
		SecureCookies:  cfg.Server.SecureCookies,
		RequestTimeout: cfg.Server.RequestTimeout,
	}, logger.Named("web"))
	if err != nil {
		return nil, fmt.Errorf("web server init failed: %w", err)
	}

	s.logger.Info("server built",
		zap.Int("workers", len(workers)),
		zap.Int("queue_depth", cfg.Crawler.QueueDepth),
		zap.Int("schedules", len(s.sched.Entries())))
	ok = true
	return s, nil
}

// Handler exposes the web handler.
func (s *Server) Handler() http.Handler {
	return s.web.Handler()
}

// Run listens on the configured port and blocks until ctx ends or SIGINT/SIGTERM arrives.
func (s *Server) Run(ctx context.Context) error {
	addr := fmt.Sprintf(":%d", s.app.Config.Server.Port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve runs every component on ln and shuts them down in order: HTTP first,
// then the scheduler, then the workers (in-flight runs are canceled and
// recorded), then the progress hub.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	workCtx, cancelWork := context.WithCancel(context.WithoutCancel(ctx))
	defer cancelWork()
	workersDone := make(chan struct{})
	go func() {
		defer close(workersDone)
		s.logger.Info("dispatcher started")
		s.dispatch.Run(workCtx)
	}()
	s.sched.Start(workCtx)

	srv := &http.Server{
		Handler:           s.web.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	serveErr := make(chan error, 1)
	go func() {
		s.logger.Info("http server started", zap.String("addr", ln.Addr().String()))
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
			stop()
		}
	}()

	<-ctx.Done()
	s.logger.Info("shutdown initiated")

	timeout := s.app.Config.Server.ShutdownTimeout
	if timeout <= 0 {
		timeout = defaultShutdownTimeout
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	var errs []error
	if err := srv.Shutdown(shutdownCtx); err != nil {
		errs = append(errs, fmt.Errorf("http shutdown: %w", err))
	}
	if err := s.sched.Stop(shutdownCtx); err != nil {
		errs = append(errs, err)
	}
	// Cancelling work first releases any submitter waiting on a full queue.
	cancelWork()
	s.queue.Close()
	select {
	case <-workersDone:
	case <-shutdownCtx.Done():
		errs = append(errs, fmt.Errorf("wait for workers: %w", shutdownCtx.Err()))
	}
	if err := s.hub.Close(shutdownCtx); err != nil {
		errs = append(errs, fmt.Errorf("progress hub close: %w", err))
	}
	select {
	case err := <-serveErr:
		errs = append(errs, fmt.Errorf("http server: %w", err))
	default:
	}
	s.logger.Info("shutdown complete")
	return errors.Join(errs...)
}
