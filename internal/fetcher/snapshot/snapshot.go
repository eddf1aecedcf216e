// Package snapshot stores every successful page body before spiders parse it.
package snapshot

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/kidssmart/internal/crawler"
)

// Fetcher wraps another Fetcher and writes 2xx bodies to a BlobStore at
// <prefix>/<spider>/<host>/<sha256>.html.
type Fetcher struct {
	next   crawler.Fetcher
	blobs  crawler.BlobStore
	hasher crawler.Hasher
	prefix string
	logger *zap.Logger
}

// New constructs a snapshotting fetcher.
func New(next crawler.Fetcher, blobs crawler.BlobStore, hasher crawler.Hasher, prefix string, logger *zap.Logger) *Fetcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Fetcher{
		next:   next,
		blobs:  blobs,
		hasher: hasher,
		prefix: strings.Trim(prefix, "/"),
		logger: logger,
	}
}

// Fetch delegates and then stores the body. Snapshot failures are logged, never returned.
func (f *Fetcher) Fetch(ctx context.Context, req crawler.FetchRequest) (crawler.FetchResponse, error) {
	resp, err := f.next.Fetch(ctx, req)
	if err != nil || resp.StatusCode < 200 || resp.StatusCode >= 300 || len(resp.Body) == 0 {
		return resp, err
	}
	uri, err := f.store(ctx, req.Spider, resp)
	if err != nil {
		f.logger.Warn("snapshot failed", zap.String("url", resp.URL), zap.Error(err))
		return resp, nil
	}
	resp.BlobURI = uri
	return resp, nil
}

func (f *Fetcher) store(ctx context.Context, spider string, resp crawler.FetchResponse) (string, error) {
	digest, err := f.hasher.Hash(resp.Body)
	if err != nil {
		return "", fmt.Errorf("hash body: %w", err)
	}
	p := ObjectPath(f.prefix, spider, resp.URL, digest)
	contentType := resp.Headers.Get("Content-Type")
	if contentType == "" {
		contentType = "text/html; charset=utf-8"
	}
	uri, err := f.blobs.PutObject(ctx, p, contentType, bytes.NewReader(resp.Body))
	if err != nil {
		return "", fmt.Errorf("put object: %w", err)
	}
	return uri, nil
}

// ObjectPath builds the snapshot object name.
func ObjectPath(prefix, spider, pageURL, digest string) string {
	host := crawler.Hostname(pageURL)
	if host == "" {
		host = "unknown"
	}
	if spider == "" {
		spider = "unknown"
	}
	return path.Join(prefix, spider, host, digest+".html")
}
