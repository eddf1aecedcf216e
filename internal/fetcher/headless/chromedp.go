// Package headless contains fetchers that execute JavaScript via browsers.
package headless

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"

	"github.com/JakeFAU/kidssmart/internal/crawler"
	"github.com/JakeFAU/kidssmart/internal/metrics"
)

// Config controls the behavior of the headless fetcher.
type Config struct {
	MaxParallel       int
	UserAgent         string
	NavigationTimeout time.Duration
	// Settle is the pause after navigation and after each pagination click.
	Settle time.Duration
	// MaxPages bounds pagination when a RenderRequest does not set it.
	MaxPages int
}

const (
	defaultSettle      = 500 * time.Millisecond
	defaultMaxPages    = 20
	defaultWaitTimeout = 10 * time.Second
)

// Fetcher implements crawler.Fetcher and crawler.Renderer using chromedp and headless Chrome.
type Fetcher struct {
	cfg         Config
	limiter     chan struct{}
	allocator   context.Context
	allocCancel context.CancelFunc
}

// NewChromedp creates a headless fetcher backed by chromedp.
func NewChromedp(cfg Config) (*Fetcher, error) {
	if cfg.MaxParallel < 0 {
		return nil, fmt.Errorf("max parallel must be >= 0")
	}
	if cfg.NavigationTimeout <= 0 {
		cfg.NavigationTimeout = 45 * time.Second
	}
	if cfg.Settle <= 0 {
		cfg.Settle = defaultSettle
	}
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = defaultMaxPages
	}
	var limiter chan struct{}
	if cfg.MaxParallel > 0 {
		limiter = make(chan struct{}, cfg.MaxParallel)
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", "new"),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.Flag("enable-automation", false),
	)
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)

	return &Fetcher{
		cfg:         cfg,
		limiter:     limiter,
		allocator:   allocCtx,
		allocCancel: allocCancel,
	}, nil
}

// Close cancels the allocator context.
func (f *Fetcher) Close() {
	f.allocCancel()
}

// Fetch navigates with a headless browser and returns the fully rendered DOM.
func (f *Fetcher) Fetch(ctx context.Context, request crawler.FetchRequest) (crawler.FetchResponse, error) {
	if err := f.acquire(ctx); err != nil {
		return crawler.FetchResponse{}, err
	}
	defer f.release()

	tabCtx, tabCancel, err := f.newTab(ctx)
	if err != nil {
		return crawler.FetchResponse{}, err
	}
	defer tabCancel()

	taskCtx, cancel := context.WithTimeout(tabCtx, f.navTimeout())
	defer cancel()

	meta := newResponseMeta()
	chromedp.ListenTarget(taskCtx, meta.captureEvent)

	start := time.Now()
	html, finalURL, err := f.runHeadless(taskCtx, request)
	if err != nil {
		metrics.ObserveFetch(request.Spider, "headless", 0, 0, time.Since(start))
		return crawler.FetchResponse{}, err
	}

	status, headers, responseURL := meta.snapshotWithFallbacks(request.URL, finalURL)
	if headers == nil {
		headers = http.Header{}
	}
	metrics.ObserveFetch(request.Spider, "headless", status, len(html), time.Since(start))

	return crawler.FetchResponse{
		URL:          responseURL,
		StatusCode:   status,
		Headers:      headers,
		Body:         []byte(html),
		Duration:     time.Since(start),
		UsedHeadless: true,
	}, nil
}

func (f *Fetcher) runHeadless(ctx context.Context, request crawler.FetchRequest) (string, string, error) {
	var (
		html     string
		finalURL string
	)
	actions := []chromedp.Action{
		f.networkSetupAction(request.Headers),
		chromedp.Navigate(request.URL),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Sleep(f.cfg.Settle),
		chromedp.Location(&finalURL),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	}
	if err := chromedp.Run(ctx, actions...); err != nil {
		return "", "", fmt.Errorf("chromedp run: %w", err)
	}
	return html, finalURL, nil
}

// Render loads request.URL, optionally waits for a selector and follows a "next page"
// control, returning the outer HTML of every page visited.
func (f *Fetcher) Render(ctx context.Context, request crawler.RenderRequest) (crawler.RenderResult, error) {
	if err := f.acquire(ctx); err != nil {
		return crawler.RenderResult{}, err
	}
	defer f.release()

	maxPages := request.MaxPages
	if maxPages <= 0 {
		maxPages = f.cfg.MaxPages
	}
	if request.NextSelector == "" {
		maxPages = 1
	}
	settle := request.Settle
	if settle <= 0 {
		settle = f.cfg.Settle
	}

	tabCtx, tabCancel, err := f.newTab(ctx)
	if err != nil {
		return crawler.RenderResult{}, err
	}
	defer tabCancel()

	taskCtx, cancel := context.WithTimeout(tabCtx, f.navTimeout()*time.Duration(maxPages))
	defer cancel()

	start := time.Now()
	result := crawler.RenderResult{URL: request.URL}
	if err := chromedp.Run(taskCtx,
		f.networkSetupAction(nil),
		chromedp.Navigate(request.URL),
		chromedp.WaitReady("body", chromedp.ByQuery),
	); err != nil {
		metrics.ObserveFetch(request.Spider, "headless", 0, 0, time.Since(start))
		return crawler.RenderResult{}, fmt.Errorf("chromedp navigate: %w", err)
	}
	if request.WaitSelector != "" {
		if err := waitOptional(taskCtx, request.WaitSelector, request.WaitTimeout); err != nil {
			return crawler.RenderResult{}, err
		}
	}

	bytes := 0
	for page := 1; ; page++ {
		var html string
		if err := chromedp.Run(taskCtx, chromedp.Sleep(settle), chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
			return crawler.RenderResult{}, fmt.Errorf("chromedp capture page %d: %w", page, err)
		}
		result.Pages = append(result.Pages, html)
		bytes += len(html)
		if page >= maxPages {
			break
		}
		var state string
		if err := chromedp.Run(taskCtx, chromedp.Evaluate(nextPageScript(request.NextSelector), &state)); err != nil {
			return crawler.RenderResult{}, fmt.Errorf("chromedp next page: %w", err)
		}
		if state != nextClicked {
			break
		}
	}
	metrics.ObserveFetch(request.Spider, "headless", http.StatusOK, bytes, time.Since(start))
	return result, nil
}

// newTab starts a tab and allocates the browser on a context without a deadline,
// since a timeout on the first Run would stop the whole browser.
func (f *Fetcher) newTab(ctx context.Context) (context.Context, context.CancelFunc, error) {
	tabCtx, tabCancel := chromedp.NewContext(f.allocator)
	stop := context.AfterFunc(ctx, tabCancel)
	cancel := func() {
		stop()
		tabCancel()
	}
	if err := chromedp.Run(tabCtx); err != nil {
		cancel()
		return nil, nil, fmt.Errorf("start browser tab: %w", err)
	}
	return tabCtx, cancel, nil
}

// waitOptional waits for selector to exist; running out of time is not an error.
func waitOptional(ctx context.Context, selector string, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = defaultWaitTimeout
	}
	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	err := chromedp.Run(waitCtx, chromedp.WaitReady(selector, chromedp.ByQuery))
	if err == nil || (errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil) {
		return nil
	}
	return fmt.Errorf("chromedp wait %q: %w", selector, err)
}

const (
	nextMissing  = "missing"
	nextDisabled = "disabled"
	nextClicked  = "clicked"
)

// nextPageScript clicks the first element matching selector unless it is absent or disabled.
func nextPageScript(selector string) string {
	return `(() => {
  const el = document.querySelector(` + strconv.Quote(selector) + `);
  if (!el) return "` + nextMissing + `";
  if (el.disabled || el.hasAttribute("disabled") || el.getAttribute("aria-disabled") === "true") return "` + nextDisabled + `";
  el.click();
  return "` + nextClicked + `";
})()`
}

func (f *Fetcher) networkSetupAction(headers http.Header) chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if err := network.Enable().Do(ctx); err != nil {
			return fmt.Errorf("enable network domain: %w", err)
		}
		if f.cfg.UserAgent != "" {
			if err := emulation.SetUserAgentOverride(f.cfg.UserAgent).Do(ctx); err != nil {
				return fmt.Errorf("set user-agent: %w", err)
			}
		}
		if len(headers) > 0 {
			if err := network.SetExtraHTTPHeaders(toNetworkHeaders(headers)).Do(ctx); err != nil {
				return fmt.Errorf("set extra headers: %w", err)
			}
		}
		return nil
	})
}

func (f *Fetcher) acquire(ctx context.Context) error {
	if f.limiter == nil {
		return nil
	}
	select {
	case f.limiter <- struct{}{}:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("headless slot wait canceled: %w", ctx.Err())
	}
}

func (f *Fetcher) release() {
	if f.limiter == nil {
		return
	}
	select {
	case <-f.limiter:
	default:
	}
}

type responseMeta struct {
	mu      sync.RWMutex
	status  int
	headers http.Header
	url     string
}

func newResponseMeta() *responseMeta {
	return &responseMeta{
		headers: http.Header{},
	}
}

func (m *responseMeta) capture(event *network.EventResponseReceived) {
	if event.Type != network.ResourceTypeDocument || event.Response == nil {
		return
	}
	headers := http.Header{}
	for key, value := range event.Response.Headers {
		switch v := value.(type) {
		case string:
			headers.Add(key, v)
		case []string:
			for _, entry := range v {
				headers.Add(key, entry)
			}
		case []interface{}:
			for _, entry := range v {
				headers.Add(key, fmt.Sprint(entry))
			}
		default:
			headers.Add(key, fmt.Sprint(v))
		}
	}
	m.mu.Lock()
	m.status = int(event.Response.Status)
	m.headers = headers
	m.url = event.Response.URL
	m.mu.Unlock()
}

func (m *responseMeta) snapshot() (int, http.Header, string) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status, cloneHeader(m.headers), m.url
}

func (m *responseMeta) captureEvent(ev any) {
	if resp, ok := ev.(*network.EventResponseReceived); ok {
		m.capture(resp)
	}
}

func (m *responseMeta) snapshotWithFallbacks(requestURL, finalURL string) (int, http.Header, string) {
	status, headers, url := m.snapshot()
	switch {
	case url != "":
	case finalURL != "":
		url = finalURL
	default:
		url = requestURL
	}

	if status == 0 {
		status = http.StatusOK
	}
	return status, headers, url
}

func (f *Fetcher) navTimeout() time.Duration {
	if f.cfg.NavigationTimeout > 0 {
		return f.cfg.NavigationTimeout
	}
	return 45 * time.Second
}

func cloneHeader(src http.Header) http.Header {
	if src == nil {
		return nil
	}
	dst := make(http.Header, len(src))
	for k, values := range src {
		for _, v := range values {
			dst.Add(k, v)
		}
	}
	return dst
}

func toNetworkHeaders(h http.Header) network.Headers {
	headers := network.Headers{}
	for key, values := range h {
		if len(values) == 0 {
			continue
		}
		if len(values) == 1 {
			headers[key] = values[0]
		} else {
			headers[key] = append([]string(nil), values...)
		}
	}
	return headers
}
