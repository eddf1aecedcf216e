package collyfetcher

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/kidssmart/internal/metrics"
)

// quickRetry keeps the schedule's attempt count without the sleeps.
type quickRetry struct{ robotsRetry }

func (quickRetry) Backoff(int) time.Duration { return 0 }

func TestRobotsProbeFallsBackToAllowAll(t *testing.T) {
	t.Parallel()
	metrics.Init()

	cases := map[string]roundTripResult{
		"timeout":      {err: context.DeadlineExceeded},
		"server error": {resp: textResponse(http.StatusBadGateway, "")},
	}
	for name, result := range cases {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			base := &stubRoundTripper{results: []roundTripResult{result}}
			transport := &robotsAwareTransport{base: base, retry: quickRetry{}}

			resp, err := transport.RoundTrip(httptest.NewRequest(http.MethodGet, "https://kidspot.test/robots.txt", nil))
			require.NoError(t, err)
			t.Cleanup(func() { _ = resp.Body.Close() })

			body, err := io.ReadAll(resp.Body)
			require.NoError(t, err)
			require.Equal(t, allowAll, string(body))
			require.Equal(t, len(robotsBackoff)+1, base.calls)
		})
	}
}

func TestRobotsProbeStopsAfterSuccess(t *testing.T) {
	t.Parallel()

	base := &stubRoundTripper{results: []roundTripResult{
		{err: context.DeadlineExceeded},
		{resp: textResponse(http.StatusOK, "User-agent: *\nDisallow: /admin")},
	}}
	transport := &robotsAwareTransport{base: base, retry: quickRetry{}}

	resp, err := transport.RoundTrip(httptest.NewRequest(http.MethodGet, "https://kidspot.test/robots.txt", nil))
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	require.Contains(t, string(body), "Disallow: /admin")
	require.Equal(t, 2, base.calls)
}

func TestRobotsProbeSurfacesHardFailures(t *testing.T) {
	t.Parallel()

	base := &stubRoundTripper{results: []roundTripResult{{err: errors.New("connection refused")}}}
	transport := &robotsAwareTransport{base: base, retry: quickRetry{}}

	_, err := transport.RoundTrip(httptest.NewRequest(http.MethodGet, "https://kidspot.test/robots.txt", nil))
	require.ErrorContains(t, err, "connection refused")
	require.Equal(t, 1, base.calls)
}

func TestRobotsTransportPassesThroughPages(t *testing.T) {
	t.Parallel()

	base := &stubRoundTripper{results: []roundTripResult{{err: errors.New("refused")}}}
	transport := &robotsAwareTransport{base: base}

	_, err := transport.RoundTrip(httptest.NewRequest(http.MethodGet, "https://kidspot.test/classes", nil))
	require.ErrorContains(t, err, "refused")
	require.Equal(t, 1, base.calls)
}

func TestRobotsRetrySchedule(t *testing.T) {
	t.Parallel()

	var p robotsRetry
	require.Equal(t, 250*time.Millisecond, p.Backoff(1))
	require.Equal(t, time.Second, p.Backoff(3))
	require.Zero(t, p.Backoff(4))
	require.True(t, p.ShouldRetry(context.DeadlineExceeded, 3))
	require.False(t, p.ShouldRetry(context.DeadlineExceeded, 4))
	require.False(t, p.ShouldRetry(nil, 1))
}

func textResponse(code int, body string) *http.Response {
	return &http.Response{
		StatusCode: code,
		Header:     http.Header{},
		Body:       io.NopCloser(strings.NewReader(body)),
	}
}

type roundTripResult struct {
	resp *http.Response
	err  error
}

type stubRoundTripper struct {
	results []roundTripResult
	calls   int
}

func (s *stubRoundTripper) RoundTrip(_ *http.Request) (*http.Response, error) {
	defer func() { s.calls++ }()
	idx := s.calls
	if idx >= len(s.results) {
		idx = len(s.results) - 1
	}
	res := s.results[idx]
	return res.resp, res.err
}
