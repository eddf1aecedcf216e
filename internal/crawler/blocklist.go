package crawler

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// ErrBlockedHost is returned for URLs whose host is on the blocklist.
var ErrBlockedHost = errors.New("host is blocked")

// HostMatcher stores exact hosts and suffix wildcards ("*.example.com" or ".example.com").
type HostMatcher struct {
	exact    map[string]struct{}
	suffixes []string
}

// NewHostMatcher builds a matcher from patterns; it returns nil when no pattern survives trimming.
func NewHostMatcher(patterns []string) *HostMatcher {
	matcher := &HostMatcher{
		exact: make(map[string]struct{}),
	}
	for _, raw := range patterns {
		value := strings.TrimSpace(strings.ToLower(raw))
		if value == "" {
			continue
		}
		switch {
		case strings.HasPrefix(value, "*."):
			matcher.addSuffix(strings.TrimPrefix(value, "*."))
		case strings.HasPrefix(value, "."):
			matcher.addSuffix(strings.TrimPrefix(value, "."))
		default:
			matcher.exact[value] = struct{}{}
		}
	}
	if len(matcher.exact) == 0 && len(matcher.suffixes) == 0 {
		return nil
	}
	return matcher
}

func (m *HostMatcher) addSuffix(suffix string) {
	if suffix == "" {
		return
	}
	for _, existing := range m.suffixes {
		if existing == suffix {
			return
		}
	}
	m.suffixes = append(m.suffixes, suffix)
}

// Matches reports whether host equals an exact entry or falls under a suffix entry.
func (m *HostMatcher) Matches(host string) bool {
	if m == nil {
		return false
	}
	host = strings.TrimPrefix(strings.TrimSpace(strings.ToLower(host)), "www.")
	if host == "" {
		return false
	}
	if _, exact := m.exact[host]; exact {
		return true
	}
	for _, suffix := range m.suffixes {
		if host == suffix || strings.HasSuffix(host, "."+suffix) {
			return true
		}
	}
	return false
}

// BlockingFetcher refuses URLs on blocked hosts before they reach next.
type BlockingFetcher struct {
	next    Fetcher
	blocked *HostMatcher
}

// NewBlockingFetcher wraps next; a nil matcher blocks nothing.
func NewBlockingFetcher(next Fetcher, blocked *HostMatcher) *BlockingFetcher {
	return &BlockingFetcher{next: next, blocked: blocked}
}

// Fetch implements Fetcher.
func (f *BlockingFetcher) Fetch(ctx context.Context, request FetchRequest) (FetchResponse, error) {
	if u, err := url.Parse(request.URL); err == nil && f.blocked.Matches(u.Hostname()) {
		return FetchResponse{}, fmt.Errorf("fetch %s: %w", request.URL, ErrBlockedHost)
	}
	return f.next.Fetch(ctx, request)
}
