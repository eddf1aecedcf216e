// Package detector spots pages that only render in a browser and re-fetches
// them through the headless fetcher.
package detector

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/cloudflare/ahocorasick"
	"go.uber.org/zap"

	"github.com/JakeFAU/kidssmart/internal/crawler"
)

// DefaultThreshold is the body size under which a script-heavy page counts as a shell.
const DefaultThreshold = 2048

// shellMarkers appear in client-rendered shells whose listings arrive later via JavaScript.
var shellMarkers = []string{
	`<div id="root"></div>`,
	`<div id="app"></div>`,
	`<div id="__next"></div>`,
	"you need to enable javascript",
	"please enable javascript",
	"javascript is required",
}

// Heuristic decides whether a plain HTTP response is a JavaScript shell.
type Heuristic struct {
	threshold int
	markers   *ahocorasick.Matcher
}

// NewHeuristic creates a detector. A non-positive threshold uses DefaultThreshold.
func NewHeuristic(threshold int) *Heuristic {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return &Heuristic{threshold: threshold, markers: ahocorasick.NewStringMatcher(shellMarkers)}
}

// ShouldPromote reports whether resp needs a browser to show its content.
func (h *Heuristic) ShouldPromote(resp crawler.FetchResponse) bool {
	if resp.StatusCode != 200 || resp.UsedHeadless {
		return false
	}
	body := bytes.TrimSpace(resp.Body)
	if len(body) == 0 {
		return true
	}
	lower := bytes.ToLower(body)
	if len(h.markers.MatchThreadSafe(bytes.Join(bytes.Fields(lower), []byte(" ")))) > 0 {
		return true
	}
	return len(body) < h.threshold && scriptDensityHigh(string(lower))
}

// scriptDensityHigh reports whether script elements cover at least a quarter of the page.
func scriptDensityHigh(lower string) bool {
	total := len(lower)
	const (
		openTag  = "<script"
		closeTag = "</script>"
	)
	coverage := 0
	pos := 0
	for {
		rel := strings.Index(lower[pos:], openTag)
		if rel == -1 {
			break
		}
		start := pos + rel
		tagEnd := strings.IndexByte(lower[start:], '>')
		if tagEnd == -1 {
			coverage += total - start
			break
		}
		contentStart := start + tagEnd + 1
		end := strings.Index(lower[contentStart:], closeTag)
		next := total
		if end != -1 {
			next = contentStart + end + len(closeTag)
		}
		coverage += next - start
		pos = next
	}
	return coverage > 0 && coverage*100/total >= 25
}

// Promoter fetches over plain HTTP first and repeats the fetch in the browser
// when the response looks like a JavaScript shell.
type Promoter struct {
	http     crawler.Fetcher
	headless crawler.Fetcher
	detect   *Heuristic
	logger   *zap.Logger
}

// NewPromoter wraps httpFetcher. A nil headless fetcher disables promotion.
func NewPromoter(httpFetcher, headless crawler.Fetcher, detect *Heuristic, logger *zap.Logger) *Promoter {
	if detect == nil {
		detect = NewHeuristic(0)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Promoter{http: httpFetcher, headless: headless, detect: detect, logger: logger}
}

// Fetch implements crawler.Fetcher. When the browser fetch fails the plain
// response is returned so the spider can still try to parse it.
func (p *Promoter) Fetch(ctx context.Context, req crawler.FetchRequest) (crawler.FetchResponse, error) {
	resp, err := p.http.Fetch(ctx, req)
	if err != nil || p.headless == nil || !p.detect.ShouldPromote(resp) {
		return resp, err
	}
	p.logger.Debug("promoting fetch to headless", zap.String("url", req.URL), zap.String("spider", req.Spider))
	rendered, herr := p.headless.Fetch(ctx, req)
	if herr != nil {
		if ctx.Err() != nil {
			return resp, fmt.Errorf("headless fetch %s: %w", req.URL, herr)
		}
		p.logger.Warn("headless promotion failed, keeping plain response",
			zap.String("url", req.URL), zap.Error(herr))
		return resp, nil
	}
	return rendered, nil
}
