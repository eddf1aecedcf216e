package collyfetcher

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gocolly/colly/v2"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/kidssmart/internal/crawler"
)

func TestNewAppliesDefaults(t *testing.T) {
	t.Parallel()

	f := New(Config{UserAgent: "kidssmart-test"})
	require.Equal(t, defaultTimeout, f.cfg.Timeout)
	require.Equal(t, defaultMaxBodyBytes, f.base.MaxBodySize)
	require.Equal(t, "kidssmart-test", f.base.UserAgent)
	require.True(t, f.base.AllowURLRevisit)
	require.True(t, f.base.ParseHTTPErrorResponse)
}

func TestCollectorRobotsOverride(t *testing.T) {
	t.Parallel()

	f := New(Config{RespectRobots: true})
	ctx := context.Background()

	c := f.collector(ctx, crawler.FetchRequest{URL: "https://example.com"})
	require.False(t, c.IgnoreRobotsTxt)

	c = f.collector(ctx, crawler.FetchRequest{URL: "https://example.com", RespectRobotsProvided: true})
	require.True(t, c.IgnoreRobotsTxt, "request override should disable robots")
	require.Equal(t, ctx, c.Context)
}

func TestApplyHeadersDefaultsAcceptLanguage(t *testing.T) {
	t.Parallel()

	dst := http.Header{}
	applyHeaders(&dst, http.Header{"X-Spider": {"kidspot_art"}})
	require.Equal(t, "kidspot_art", dst.Get("X-Spider"))
	require.Equal(t, defaultAcceptLanguage, dst.Get("Accept-Language"))

	dst = http.Header{}
	applyHeaders(&dst, http.Header{"Accept-Language": {"fr"}})
	require.Equal(t, []string{"fr"}, dst.Values("Accept-Language"))

	applyHeaders(nil, http.Header{"X": {"y"}})
}

func TestFetchAgainstServer(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/missing":
			w.WriteHeader(http.StatusServiceUnavailable)
		case "/big":
			_, _ = w.Write([]byte(strings.Repeat("a", 4096)))
		default:
			hits.Add(1)
			w.Header().Set("Content-Type", "text/html")
			_, _ = w.Write([]byte("<html><body>" + r.Header.Get("X-Spider") + " " + r.Header.Get("Accept-Language") + "</body></html>"))
		}
	}))
	t.Cleanup(srv.Close)

	f := New(Config{UserAgent: "kidssmart-test", Timeout: 2 * time.Second, MaxBodyBytes: 1024})
	req := crawler.FetchRequest{URL: srv.URL + "/page", Spider: "soccer5s", Headers: http.Header{"X-Spider": {"soccer5s"}}}

	for i := 0; i < 2; i++ {
		resp, err := f.Fetch(context.Background(), req)
		require.NoError(t, err)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		require.Contains(t, string(resp.Body), "soccer5s en-AU")
		require.False(t, resp.UsedHeadless)
	}
	require.Equal(t, int32(2), hits.Load(), "same URL must be fetchable twice")

	resp, err := f.Fetch(context.Background(), crawler.FetchRequest{URL: srv.URL + "/missing"})
	require.NoError(t, err)
	require.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	resp, err = f.Fetch(context.Background(), crawler.FetchRequest{URL: srv.URL + "/big"})
	require.NoError(t, err)
	require.Len(t, resp.Body, 1024)
}

func TestFetchHonoursRobots(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/robots.txt" {
			_, _ = w.Write([]byte("User-agent: *\nDisallow: /private\n"))
			return
		}
		_, _ = w.Write([]byte("ok"))
	}))
	t.Cleanup(srv.Close)

	f := New(Config{RespectRobots: true, Timeout: 2 * time.Second})
	_, err := f.Fetch(context.Background(), crawler.FetchRequest{URL: srv.URL + "/private/page"})
	require.ErrorIs(t, err, colly.ErrRobotsTxtBlocked)

	resp, err := f.Fetch(context.Background(), crawler.FetchRequest{URL: srv.URL + "/public"})
	require.NoError(t, err)
	require.Equal(t, "ok", string(resp.Body))
}

func TestFetchCanceledContext(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(_ http.ResponseWriter, _ *http.Request) {
		<-release
	}))
	t.Cleanup(func() {
		close(release)
		srv.Close()
	})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := New(Config{Timeout: 5 * time.Second}).Fetch(ctx, crawler.FetchRequest{URL: srv.URL})
	require.ErrorIs(t, err, context.DeadlineExceeded)
}
