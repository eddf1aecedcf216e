package collyfetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/JakeFAU/kidssmart/internal/crawler"
	"github.com/JakeFAU/kidssmart/internal/metrics"
)

// allowAll is served in place of a robots.txt the site could not deliver.
const allowAll = "User-agent: *\nAllow: /"

// robotsAwareTransport passes page requests straight through. robots.txt
// probes are retried while they fail transiently, and a host whose robots.txt
// stays unreachable is treated as allow-all rather than failing the spider.
type robotsAwareTransport struct {
	base  http.RoundTripper
	retry crawler.RetryPolicy
}

func (t *robotsAwareTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req == nil || req.URL == nil {
		return nil, errors.New("robots transport: nil request")
	}
	if !strings.EqualFold(req.URL.Path, "/robots.txt") {
		return t.base.RoundTrip(req)
	}
	return t.probe(req)
}

func (t *robotsAwareTransport) policy() crawler.RetryPolicy {
	if t.retry != nil {
		return t.retry
	}
	return robotsRetry{}
}

func (t *robotsAwareTransport) probe(req *http.Request) (*http.Response, error) {
	policy := t.policy()
	for attempt := 1; ; attempt++ {
		resp, err := t.base.RoundTrip(req.Clone(req.Context()))
		if err == nil && resp.StatusCode >= http.StatusInternalServerError {
			_ = resp.Body.Close()
			err = &crawler.StatusError{URL: req.URL.String(), Code: resp.StatusCode}
		}
		if err == nil {
			return resp, nil
		}
		if !transientProbeError(err) {
			return nil, fmt.Errorf("robots probe %s: %w", req.URL.Host, err)
		}
		if !policy.ShouldRetry(err, attempt) {
			metrics.ObserveRobotsFallback(req.URL.Hostname())
			return allowAllResponse(req), nil
		}
		if err := sleepContext(req.Context(), policy.Backoff(attempt)); err != nil {
			return nil, fmt.Errorf("robots probe backoff: %w", err)
		}
	}
}

// robotsRetry allows four probes spaced 250ms, 500ms and 1s apart.
type robotsRetry struct{}

var robotsBackoff = []time.Duration{250 * time.Millisecond, 500 * time.Millisecond, time.Second}

func (robotsRetry) ShouldRetry(err error, attempt int) bool {
	return err != nil && attempt <= len(robotsBackoff)
}

func (robotsRetry) Backoff(attempt int) time.Duration {
	if attempt < 1 || attempt > len(robotsBackoff) {
		return 0
	}
	return robotsBackoff[attempt-1]
}

// transientProbeError reports timeouts and server errors. A refused
// connection or DNS failure means the host is down, which the page fetch
// will surface on its own.
func transientProbeError(err error) bool {
	var statusErr *crawler.StatusError
	if errors.As(err, &statusErr) {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return strings.Contains(err.Error(), "tls: handshake timeout")
}

func sleepContext(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func allowAllResponse(req *http.Request) *http.Response {
	return &http.Response{
		StatusCode:    http.StatusOK,
		Status:        "200 OK",
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Body:          io.NopCloser(strings.NewReader(allowAll)),
		ContentLength: int64(len(allowAll)),
		Header:        http.Header{"Content-Type": {"text/plain"}},
		Request:       req,
	}
}
