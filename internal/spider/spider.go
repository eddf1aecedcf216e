// Package spider holds the site-specific scrapers. Each spider fetches its
// pages through the shared Env and hands normalized-ready activities to Emit.
// Fetching is kept apart from the parse functions so the latter can be tested
// on inline fixtures.
package spider

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/JakeFAU/kidssmart/internal/activity"
	"github.com/JakeFAU/kidssmart/internal/crawler"
)

var (
	// ErrStop is wrapped by Emit errors that must abort the run.
	ErrStop = errors.New("stop spider")
	// ErrMissingAPIKey is returned by API spiders started without credentials.
	ErrMissingAPIKey = errors.New("missing api key")
)

// Emit receives every item a spider extracts.
type Emit func(ctx context.Context, a activity.Activity) error

// Env carries the shared dependencies a spider runs with.
type Env struct {
	Fetcher  crawler.Fetcher
	Renderer crawler.Renderer
	Logger   *zap.Logger
	Clock    crawler.Clock
}

func (e Env) logger() *zap.Logger {
	if e.Logger == nil {
		return zap.NewNop()
	}
	return e.Logger
}

func (e Env) now() time.Time {
	if e.Clock == nil {
		return time.Now().UTC()
	}
	return e.Clock.Now()
}

// Spider is one site-specific scraping routine.
type Spider interface {
	Name() string
	Description() string
	Run(ctx context.Context, env Env, emit Emit) error
}

// send forwards a to emit and only propagates errors that wrap ErrStop.
func send(ctx context.Context, emit Emit, a activity.Activity) error {
	if err := emit(ctx, a); err != nil && errors.Is(err, ErrStop) {
		return err
	}
	return nil
}

// fetch GETs rawURL and treats non-2xx responses as a *crawler.StatusError.
func fetch(ctx context.Context, env Env, spider, rawURL string, minDelay time.Duration) (crawler.FetchResponse, error) {
	if env.Fetcher == nil {
		return crawler.FetchResponse{}, fmt.Errorf("fetcher is not configured")
	}
	resp, err := env.Fetcher.Fetch(ctx, crawler.FetchRequest{URL: rawURL, Spider: spider, MinDelay: minDelay})
	if err != nil {
		return resp, fmt.Errorf("fetch %s: %w", rawURL, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return resp, &crawler.StatusError{URL: rawURL, Code: resp.StatusCode}
	}
	return resp, nil
}

// fetchDocument fetches rawURL and parses the body as HTML. The returned
// document's Url is the final response URL.
func fetchDocument(ctx context.Context, env Env, spider, rawURL string) (*goquery.Document, error) {
	resp, err := fetch(ctx, env, spider, rawURL, 0)
	if err != nil {
		return nil, err
	}
	finalURL := resp.URL
	if finalURL == "" {
		finalURL = rawURL
	}
	return parseHTML(resp.Body, finalURL)
}

func parseHTML(body []byte, pageURL string) (*goquery.Document, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse html %s: %w", pageURL, err)
	}
	if u, err := url.Parse(pageURL); err == nil {
		doc.Url = u
	}
	return doc, nil
}

func parseHTMLString(markup, pageURL string) (*goquery.Document, error) {
	return parseHTML([]byte(markup), pageURL)
}

// Registry indexes spiders by name.
type Registry struct {
	mu      sync.RWMutex
	spiders map[string]Spider
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{spiders: make(map[string]Spider)}
}

// Register adds s; names must be unique.
func (r *Registry) Register(s Spider) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.spiders[s.Name()]; exists {
		return fmt.Errorf("spider %q already registered", s.Name())
	}
	r.spiders[s.Name()] = s
	return nil
}

// Get looks a spider up by name.
func (r *Registry) Get(name string) (Spider, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.spiders[name]
	return s, ok
}

// Has reports whether name is registered.
func (r *Registry) Has(name string) bool {
	_, ok := r.Get(name)
	return ok
}

// Names returns registered names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.spiders))
	for name := range r.spiders {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// All returns the registered spiders ordered by name.
func (r *Registry) All() []Spider {
	names := r.Names()
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Spider, 0, len(names))
	for _, name := range names {
		out = append(out, r.spiders[name])
	}
	return out
}
