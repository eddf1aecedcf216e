package detector

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/kidssmart/internal/crawler"
)

func ok(body string) crawler.FetchResponse {
	return crawler.FetchResponse{StatusCode: 200, Body: []byte(body)}
}

func TestHeuristicShouldPromote(t *testing.T) {
	t.Parallel()

	h := NewHeuristic(1000)
	cases := map[string]struct {
		resp crawler.FetchResponse
		want bool
	}{
		"empty body":       {ok("  \n"), true},
		"empty root div":   {ok(`<html><body><div id="root"></div><script src="/app.js"></script></body></html>`), true},
		"noscript notice":  {ok("<noscript>You need to\n enable JavaScript to run this app.</noscript>"), true},
		"script heavy":     {ok(`<html><script>var a=1;</script><p>t</p></html>`), true},
		"rendered listing": {ok(`<html><body><h2>Junior Soccer</h2><p>Saturdays 9am at Footscray Park.</p></body></html>`), false},
		"not found":        {crawler.FetchResponse{StatusCode: 404, Body: []byte("not found")}, false},
		"already headless": {crawler.FetchResponse{StatusCode: 200, UsedHeadless: true}, false},
	}
	for name, tc := range cases {
		require.Equal(t, tc.want, h.ShouldPromote(tc.resp), name)
	}
}

type fakeFetcher struct {
	resp  crawler.FetchResponse
	err   error
	calls int
}

func (f *fakeFetcher) Fetch(context.Context, crawler.FetchRequest) (crawler.FetchResponse, error) {
	f.calls++
	return f.resp, f.err
}

func TestPromoterRefetchesShells(t *testing.T) {
	t.Parallel()

	plain := &fakeFetcher{resp: ok(`<div id="app"></div>`)}
	browser := &fakeFetcher{resp: crawler.FetchResponse{StatusCode: 200, Body: []byte("<h2>Art Club</h2>"), UsedHeadless: true}}
	p := NewPromoter(plain, browser, nil, nil)

	resp, err := p.Fetch(context.Background(), crawler.FetchRequest{URL: "https://example.com/"})
	require.NoError(t, err)
	require.True(t, resp.UsedHeadless)
	require.Equal(t, 1, browser.calls)
}

func TestPromoterKeepsRenderedPages(t *testing.T) {
	t.Parallel()

	plain := &fakeFetcher{resp: ok("<html><body><h2>Swim School</h2><p>Lessons for ages 3 to 12 in Williamstown.</p></body></html>")}
	browser := &fakeFetcher{}
	p := NewPromoter(plain, browser, NewHeuristic(10), nil)

	resp, err := p.Fetch(context.Background(), crawler.FetchRequest{URL: "https://example.com/"})
	require.NoError(t, err)
	require.False(t, resp.UsedHeadless)
	require.Zero(t, browser.calls)
}

func TestPromoterFallsBackWhenBrowserFails(t *testing.T) {
	t.Parallel()

	plain := &fakeFetcher{resp: ok("")}
	browser := &fakeFetcher{err: errors.New("chrome not found")}
	p := NewPromoter(plain, browser, nil, nil)

	resp, err := p.Fetch(context.Background(), crawler.FetchRequest{URL: "https://example.com/"})
	require.NoError(t, err)
	require.Equal(t, 200, resp.StatusCode)
	require.Equal(t, 1, browser.calls)
}

func TestPromoterWithoutBrowserPassesThrough(t *testing.T) {
	t.Parallel()

	plain := &fakeFetcher{err: errors.New("dial tcp: refused")}
	p := NewPromoter(plain, nil, nil, nil)

	_, err := p.Fetch(context.Background(), crawler.FetchRequest{URL: "https://example.com/"})
	require.ErrorContains(t, err, "refused")
}
