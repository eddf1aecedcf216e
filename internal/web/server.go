// Package web serves the KidsSmart site: HTML pages for browsing, accounts and
// moderation, a small JSON API and the ops endpoints.
package web

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JakeFAU/kidssmart/internal/auth"
	"github.com/JakeFAU/kidssmart/internal/crawler"
	"github.com/JakeFAU/kidssmart/internal/metrics"
	"github.com/JakeFAU/kidssmart/internal/progress/sinks"
	"github.com/JakeFAU/kidssmart/internal/scheduler"
	"github.com/JakeFAU/kidssmart/internal/spider"
	"github.com/JakeFAU/kidssmart/internal/store"
)

const (
	defaultCookieName     = "kidssmart_session"
	defaultRequestTimeout = 30 * time.Second
	readyTimeout          = 2 * time.Second
)

// Submitter queues spider runs; *dispatcher.Dispatcher satisfies it.
type Submitter interface {
	Submit(ctx context.Context, spider string, trigger crawler.Trigger) (crawler.RunRequest, error)
}

// LiveRuns reports runs in progress.
type LiveRuns interface {
	Snapshot() []sinks.LiveRun
}

// Schedules lists cron entries.
type Schedules interface {
	Entries() []scheduler.Entry
}

// Config tunes the HTTP layer.
type Config struct {
	CookieName     string
	SecureCookies  bool
	RequestTimeout time.Duration
}

// Deps are the collaborators the handlers use. Submitter, Live, Schedules and
// Ready are optional.
type Deps struct {
	Activities store.ActivityStore
	Users      store.UserStore
	Favourites store.FavouriteStore
	Runs       store.RunStore
	Sessions   *auth.Sessions
	Spiders    *spider.Registry
	Submitter  Submitter
	Live       LiveRuns
	Schedules  Schedules
	Ready      store.Pinger
	Clock      crawler.Clock
	Metrics    http.Handler
}

// Server wires HTTP handlers to the stores.
type Server struct {
	router    chi.Router
	deps      Deps
	cfg       Config
	templates map[string]*template.Template
	logger    *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(deps Deps, cfg Config, logger *zap.Logger) (*Server, error) {
	if deps.Activities == nil || deps.Users == nil || deps.Favourites == nil || deps.Runs == nil {
		return nil, errors.New("web server needs activity, user, favourite and run stores")
	}
	if deps.Sessions == nil {
		return nil, errors.New("web server needs a session manager")
	}
	if deps.Spiders == nil {
		deps.Spiders = spider.NewRegistry()
	}
	if deps.Clock == nil {
		deps.Clock = utcClock{}
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.Handler()
	}
	if cfg.CookieName == "" {
		cfg.CookieName = defaultCookieName
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = defaultRequestTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	templates, err := loadTemplates()
	if err != nil {
		return nil, err
	}
	s := &Server{deps: deps, cfg: cfg, templates: templates, logger: logger}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoverMiddleware)
	r.Use(metrics.Middleware)

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", deps.Metrics)

	r.Group(func(r chi.Router) {
		r.Use(timeoutMiddleware(cfg.RequestTimeout))
		r.Use(s.sessionMiddleware)

		r.Get("/", s.home)
		r.Get("/activities", s.listActivities)
		r.Get("/activities/{id}", s.showActivity)
		r.Get("/register", s.registerForm)
		r.Post("/register", s.register)
		r.Get("/login", s.loginForm)
		r.Post("/login", s.login)
		r.Get("/logout", s.logout)
		r.Post("/logout", s.logout)

		r.Group(func(r chi.Router) {
			r.Use(s.requireLogin)
			r.Get("/dashboard", s.dashboard)
			r.Get("/favourites", s.favourites)
			r.Get("/profile", s.profile)
			r.Post("/profile", s.updateProfile)
			r.Post("/activities/{id}/favourite", s.toggleFavourite)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(s.requireAdmin)
			r.Get("/activities", s.adminActivities)
			r.Post("/activities/{id}/{action}", s.moderate)
			r.Get("/users", s.adminUsers)
			r.Post("/users/{id}/{action}", s.manageUser)
			r.Get("/scrapers", s.adminScrapers)
			r.Post("/scrapers/{spider}/run", s.runSpider)
			r.Get("/runs/live", s.liveRuns)
		})

		r.Route("/api/v1", func(r chi.Router) {
			r.Get("/activities", s.apiListActivities)
			r.Get("/activities/{id}", s.apiGetActivity)
			r.Get("/categories", s.apiCategories)
			r.Get("/suburbs", s.apiSuburbs)
		})
	})

	s.router = r
	return s, nil
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	if s.deps.Ready != nil {
		ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
		defer cancel()
		if err := s.deps.Ready.Ping(ctx); err != nil {
			s.logger.Warn("readiness check failed", zap.Error(err))
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": err.Error()})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

type requestIDKey struct{}

// RequestID returns the ID assigned to the request, if any.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get("X-Request-ID")
		if reqID == "" || len(reqID) > 64 {
			reqID = uuid.NewString()
		}
		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(ww, r)
		s.logger.Info("request completed",
			zap.String("request_id", RequestID(r.Context())),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.status),
			zap.Int64("duration_ms", time.Since(start).Milliseconds()),
		)
	})
}

func (s *Server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				s.logger.Error("panic recovered",
					zap.String("request_id", RequestID(r.Context())),
					zap.Any("panic", rec))
				http.Error(w, "internal server error", http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func timeoutMiddleware(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, d, "request timed out")
	}
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	if err != nil {
		return n, fmt.Errorf("write response: %w", err)
	}
	return n, nil
}

func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if h, ok := rw.ResponseWriter.(http.Hijacker); ok {
		conn, buf, err := h.Hijack()
		if err != nil {
			return nil, nil, fmt.Errorf("hijack connection: %w", err)
		}
		return conn, buf, nil
	}
	return nil, nil, errors.New("hijacker not supported")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

type utcClock struct{}

func (utcClock) Now() time.Time { return time.Now().UTC() }
