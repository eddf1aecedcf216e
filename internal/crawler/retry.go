package crawler

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

// RetryingFetcher wraps a Fetcher and retries failures the policy deems transient.
// Responses with 429 or 5xx codes are converted into StatusError so the policy can see them.
type RetryingFetcher struct {
	next   Fetcher
	policy RetryPolicy
	sleep  func(ctx context.Context, d time.Duration) error
}

// NewRetryingFetcher wraps next with policy. A nil policy disables retries.
func NewRetryingFetcher(next Fetcher, policy RetryPolicy) *RetryingFetcher {
	return &RetryingFetcher{next: next, policy: policy, sleep: sleepContext}
}

// Fetch executes the request, retrying while the policy allows it.
func (f *RetryingFetcher) Fetch(ctx context.Context, request FetchRequest) (FetchResponse, error) {
	attempt := 0
	for {
		resp, err := f.next.Fetch(ctx, request)
		if err == nil && (resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= http.StatusInternalServerError) {
			err = &StatusError{URL: request.URL, Code: resp.StatusCode}
		}
		if err == nil {
			return resp, nil
		}
		attempt++
		if f.policy == nil || !f.policy.ShouldRetry(err, attempt) {
			return FetchResponse{}, err
		}
		if sleepErr := f.sleep(ctx, f.policy.Backoff(attempt)); sleepErr != nil {
			return FetchResponse{}, fmt.Errorf("retry backoff: %w", sleepErr)
		}
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
