package headless

import (
	"context"
	"fmt"

	"github.com/JakeFAU/kidssmart/internal/crawler"
)

// Noop implements Fetcher and Renderer when headless rendering is switched off.
type Noop struct{}

// NewNoop creates a new Noop renderer.
func NewNoop() *Noop {
	return &Noop{}
}

// Fetch always fails with crawler.ErrHeadlessDisabled.
func (Noop) Fetch(_ context.Context, request crawler.FetchRequest) (crawler.FetchResponse, error) {
	return crawler.FetchResponse{}, fmt.Errorf("fetch %s: %w", request.URL, crawler.ErrHeadlessDisabled)
}

// Render always fails with crawler.ErrHeadlessDisabled.
func (Noop) Render(_ context.Context, request crawler.RenderRequest) (crawler.RenderResult, error) {
	return crawler.RenderResult{}, fmt.Errorf("render %s: %w", request.URL, crawler.ErrHeadlessDisabled)
}
