package spider

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/kidssmart/internal/activity"
	"github.com/JakeFAU/kidssmart/internal/crawler"
)

// fakeFetcher serves canned bodies; unknown URLs answer 404.
type fakeFetcher struct {
	mu       sync.Mutex
	pages    map[string]string
	prefixes map[string]string
	status   map[string]int
	requests []crawler.FetchRequest
}

func newFakeFetcher(pages map[string]string) *fakeFetcher {
	return &fakeFetcher{pages: pages, prefixes: map[string]string{}, status: map[string]int{}}
}

func (f *fakeFetcher) Fetch(_ context.Context, req crawler.FetchRequest) (crawler.FetchResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	if code, ok := f.status[req.URL]; ok {
		return crawler.FetchResponse{URL: req.URL, StatusCode: code}, nil
	}
	if body, ok := f.pages[req.URL]; ok {
		return crawler.FetchResponse{URL: req.URL, StatusCode: 200, Body: []byte(body)}, nil
	}
	for prefix, body := range f.prefixes {
		if strings.HasPrefix(req.URL, prefix) {
			return crawler.FetchResponse{URL: req.URL, StatusCode: 200, Body: []byte(body)}, nil
		}
	}
	return crawler.FetchResponse{URL: req.URL, StatusCode: 404}, nil
}

func (f *fakeFetcher) urls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.requests))
	for _, r := range f.requests {
		out = append(out, r.URL)
	}
	return out
}

// fakeRenderer returns canned page lists keyed by URL.
type fakeRenderer struct {
	mu       sync.Mutex
	pages    map[string][]string
	err      error
	requests []crawler.RenderRequest
}

func (r *fakeRenderer) Render(_ context.Context, req crawler.RenderRequest) (crawler.RenderResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.requests = append(r.requests, req)
	if r.err != nil {
		return crawler.RenderResult{}, r.err
	}
	pages, ok := r.pages[req.URL]
	if !ok {
		return crawler.RenderResult{}, fmt.Errorf("no fixture for %s", req.URL)
	}
	return crawler.RenderResult{URL: req.URL, Pages: pages}, nil
}

type collector struct {
	mu    sync.Mutex
	items []activity.Activity
}

func (c *collector) emit(_ context.Context, a activity.Activity) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = append(c.items, a)
	return nil
}

func titles(items []activity.Activity) []string {
	out := make([]string, 0, len(items))
	for _, it := range items {
		out = append(out, it.Title)
	}
	return out
}

type namedSpider string

func (n namedSpider) Name() string                        { return string(n) }
func (n namedSpider) Description() string                 { return "test" }
func (n namedSpider) Run(context.Context, Env, Emit) error { return nil }

func TestRegistryRejectsDuplicateNames(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	require.NoError(t, r.Register(namedSpider("b")))
	require.NoError(t, r.Register(namedSpider("a")))
	require.Error(t, r.Register(namedSpider("a")))

	require.Equal(t, []string{"a", "b"}, r.Names())
	s, ok := r.Get("b")
	require.True(t, ok)
	require.Equal(t, "b", s.Name())
	_, ok = r.Get("missing")
	require.False(t, ok)
	require.True(t, r.Has("a"))
	require.False(t, r.Has("missing"))
	require.Len(t, r.All(), 2)
}

func TestDefaultRegistersEverySpider(t *testing.T) {
	t.Parallel()

	r := Default(Config{})
	require.Equal(t, []string{
		"activities", "geoapify", "kidsbook", "kidspot_art", "serpapi", "soccer5s", "western_suburbs",
	}, r.Names())
	for _, s := range r.All() {
		require.NotEmpty(t, s.Description(), s.Name())
	}
}

func TestSendOnlyPropagatesStop(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	failing := func(context.Context, activity.Activity) error { return errors.New("store down") }
	require.NoError(t, send(ctx, failing, activity.Activity{}))

	stopping := func(context.Context, activity.Activity) error { return fmt.Errorf("quota: %w", ErrStop) }
	require.ErrorIs(t, send(ctx, stopping, activity.Activity{}), ErrStop)
}

func TestFetchTreatsNon2xxAsError(t *testing.T) {
	t.Parallel()

	f := newFakeFetcher(map[string]string{"https://ok.test/": "<p>hi</p>"})
	f.status["https://down.test/"] = 503
	env := Env{Fetcher: f}

	resp, err := fetch(context.Background(), env, "x", "https://ok.test/", 0)
	require.NoError(t, err)
	require.Equal(t, "<p>hi</p>", string(resp.Body))

	_, err = fetch(context.Background(), env, "x", "https://down.test/", 0)
	var statusErr *crawler.StatusError
	require.ErrorAs(t, err, &statusErr)
	require.Equal(t, 503, statusErr.Code)
	require.Equal(t, "https://down.test/", statusErr.URL)

	_, err = fetch(context.Background(), Env{}, "x", "https://ok.test/", 0)
	require.Error(t, err)
}

func TestFetchDocumentSetsURL(t *testing.T) {
	t.Parallel()

	f := newFakeFetcher(map[string]string{"https://ok.test/a": "<h1>Title</h1>"})
	doc, err := fetchDocument(context.Background(), Env{Fetcher: f}, "x", "https://ok.test/a")
	require.NoError(t, err)
	require.Equal(t, "https://ok.test/a", doc.Url.String())
	require.Equal(t, "Title", doc.Find("h1").Text())
}
