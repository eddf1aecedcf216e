// Package collyfetcher fetches spider pages over plain HTTP with gocolly.
package collyfetcher

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/JakeFAU/kidssmart/internal/crawler"
	"github.com/JakeFAU/kidssmart/internal/metrics"
)

const (
	backend = "colly"

	defaultTimeout      = 15 * time.Second
	defaultMaxBodyBytes = 5 << 20

	// Listing sites localise dates and prices on this.
	defaultAcceptLanguage = "en-AU,en;q=0.8"
)

// Config controls collector behavior.
type Config struct {
	UserAgent     string
	RespectRobots bool
	Timeout       time.Duration
	MaxBodyBytes  int

	// Transport overrides the pooled default transport.
	Transport http.RoundTripper
}

// Fetcher performs one GET per call on a clone of a shared base collector.
type Fetcher struct {
	cfg  Config
	base *colly.Collector
}

// New builds a Fetcher.
func New(cfg Config) *Fetcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = defaultMaxBodyBytes
	}
	transport := cfg.Transport
	if transport == nil {
		transport = newHTTPTransport()
	}

	// Error statuses reach OnResponse so the retry layer can inspect the code.
	c := colly.NewCollector(
		colly.Async(false),
		colly.AllowURLRevisit(),
		colly.ParseHTTPErrorResponse(),
		colly.MaxBodySize(cfg.MaxBodyBytes),
	)
	if cfg.UserAgent != "" {
		c.UserAgent = cfg.UserAgent
	}
	// Clones share the backend, so the transport is installed once here.
	c.WithTransport(&robotsAwareTransport{base: transport})
	c.SetRequestTimeout(cfg.Timeout)

	return &Fetcher{cfg: cfg, base: c}
}

// Fetch GETs request.URL. Non-2xx statuses are returned as responses, not
// errors; transport failures and robots denials are errors.
func (f *Fetcher) Fetch(ctx context.Context, request crawler.FetchRequest) (crawler.FetchResponse, error) {
	start := time.Now()
	resp, err := f.visit(ctx, request, start)
	if err != nil {
		metrics.ObserveFetch(request.Spider, backend, 0, 0, time.Since(start))
		return crawler.FetchResponse{}, err
	}
	metrics.ObserveFetch(request.Spider, backend, resp.StatusCode, len(resp.Body), resp.Duration)
	return resp, nil
}

func (f *Fetcher) visit(ctx context.Context, request crawler.FetchRequest, start time.Time) (crawler.FetchResponse, error) {
	var (
		result   crawler.FetchResponse
		got      bool
		fetchErr error
	)
	c := f.collector(ctx, request)
	c.OnRequest(func(r *colly.Request) {
		applyHeaders(r.Headers, request.Headers)
	})
	c.OnResponse(func(r *colly.Response) {
		got = true
		result = crawler.FetchResponse{
			URL:        r.Request.URL.String(),
			StatusCode: r.StatusCode,
			Headers:    r.Headers.Clone(),
			Body:       append([]byte(nil), r.Body...),
			Duration:   time.Since(start),
		}
	})
	c.OnError(func(_ *colly.Response, err error) {
		fetchErr = err
	})

	if err := c.Visit(request.URL); err != nil {
		fetchErr = err
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return crawler.FetchResponse{}, fmt.Errorf("fetch %s canceled: %w", request.URL, ctxErr)
	}
	if fetchErr != nil {
		return crawler.FetchResponse{}, fmt.Errorf("fetch %s: %w", request.URL, fetchErr)
	}
	if !got {
		return crawler.FetchResponse{}, errors.New("fetch " + request.URL + ": no response")
	}
	return result, nil
}

// collector clones the base and binds the clone to ctx so cancellation
// aborts the in-flight request.
func (f *Fetcher) collector(ctx context.Context, request crawler.FetchRequest) *colly.Collector {
	c := f.base.Clone()
	c.Context = ctx
	respectRobots := f.cfg.RespectRobots
	if request.RespectRobotsProvided {
		respectRobots = request.RespectRobots
	}
	c.IgnoreRobotsTxt = !respectRobots
	return c
}

func applyHeaders(dst *http.Header, src http.Header) {
	if dst == nil {
		return
	}
	for key, values := range src {
		for _, v := range values {
			dst.Add(key, v)
		}
	}
	if dst.Get("Accept-Language") == "" {
		dst.Set("Accept-Language", defaultAcceptLanguage)
	}
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   4,
		IdleConnTimeout:       90 * time.Second,
	}
}
