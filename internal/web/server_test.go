package web

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/kidssmart/internal/activity"
	"github.com/JakeFAU/kidssmart/internal/auth"
	"github.com/JakeFAU/kidssmart/internal/clock/system"
	"github.com/JakeFAU/kidssmart/internal/crawler"
	"github.com/JakeFAU/kidssmart/internal/progress/sinks"
	"github.com/JakeFAU/kidssmart/internal/spider"
	"github.com/JakeFAU/kidssmart/internal/storage/memory"
	"github.com/JakeFAU/kidssmart/internal/store"
)

var testNow = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

type stubSpider struct{ name string }

func (s stubSpider) Name() string        { return s.name }
func (s stubSpider) Description() string { return "stub " + s.name }
func (s stubSpider) Run(context.Context, spider.Env, spider.Emit) error {
	return nil
}

type recordingSubmitter struct {
	mu    sync.Mutex
	calls []string
}

func (r *recordingSubmitter) Submit(_ context.Context, name string, trigger crawler.Trigger) (crawler.RunRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, name+":"+string(trigger))
	return crawler.RunRequest{RunID: "run-1", Spider: name, Trigger: trigger}, nil
}

type staticLive []sinks.LiveRun

func (s staticLive) Snapshot() []sinks.LiveRun { return s }

type pinger struct{ err error }

func (p pinger) Ping(context.Context) error { return p.err }

type fixture struct {
	server     *Server
	activities *memory.ActivityStore
	users      *memory.UserStore
	favourites *memory.FavouriteStore
	runs       *memory.RunStore
	sessions   *auth.Sessions
	submitter  *recordingSubmitter
}

func newFixture(t *testing.T, mutate ...func(*Deps)) *fixture {
	t.Helper()
	sessions, err := auth.NewSessions("test-secret-0123456789", time.Hour)
	require.NoError(t, err)
	registry := spider.NewRegistry()
	require.NoError(t, registry.Register(stubSpider{name: "soccer5s"}))
	require.NoError(t, registry.Register(stubSpider{name: "kidspot_art"}))

	f := &fixture{
		activities: memory.NewActivityStore(),
		users:      memory.NewUserStore(),
		favourites: memory.NewFavouriteStore(),
		runs:       memory.NewRunStore(),
		sessions:   sessions,
		submitter:  &recordingSubmitter{},
	}
	deps := Deps{
		Activities: f.activities,
		Users:      f.users,
		Favourites: f.favourites,
		Runs:       f.runs,
		Sessions:   sessions,
		Spiders:    registry,
		Submitter:  f.submitter,
		Clock:      system.Fixed(testNow),
	}
	for _, m := range mutate {
		m(&deps)
	}
	f.server, err = NewServer(deps, Config{}, zap.NewNop())
	require.NoError(t, err)
	return f
}

func (f *fixture) seed(t *testing.T, items ...activity.Activity) []activity.Activity {
	t.Helper()
	out := make([]activity.Activity, 0, len(items))
	for _, a := range items {
		if a.SourceName == "" {
			a.SourceName = "test"
		}
		saved, _, err := f.activities.SaveActivity(context.Background(), a)
		require.NoError(t, err)
		out = append(out, saved)
	}
	return out
}

func (f *fixture) user(t *testing.T, username, password string, admin bool) store.User {
	t.Helper()
	hash, err := auth.HashPassword(password)
	require.NoError(t, err)
	u, err := f.users.CreateUser(context.Background(), store.User{Username: username, PasswordHash: hash, IsAdmin: admin, FirstName: "Sam"})
	require.NoError(t, err)
	return u
}

func (f *fixture) cookie(t *testing.T, u store.User) *http.Cookie {
	t.Helper()
	token, err := f.sessions.Issue(u.ID, u.Username, u.IsAdmin)
	require.NoError(t, err)
	return &http.Cookie{Name: defaultCookieName, Value: token}
}

func (f *fixture) do(req *http.Request, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)
	return rec
}

func (f *fixture) get(path string, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	return f.do(httptest.NewRequest(http.MethodGet, path, nil), cookies...)
}

func (f *fixture) post(path string, form url.Values, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return f.do(req, cookies...)
}

func approved(title, category, suburb string) activity.Activity {
	return activity.Activity{
		Title:     title,
		Category:  category,
		Suburb:    suburb,
		SourceURL: "https://example.com/" + url.PathEscape(strings.ToLower(title)),
		Approved:  true,
	}
}

func TestNewServerRequiresStores(t *testing.T) {
	t.Parallel()

	_, err := NewServer(Deps{}, Config{}, nil)
	require.Error(t, err)
}

func TestOpsEndpoints(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	rec := f.get("/healthz")
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
	require.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	require.Equal(t, http.StatusOK, f.get("/readyz").Code)
	require.Equal(t, http.StatusOK, f.get("/metrics").Code)

	down := newFixture(t, func(d *Deps) { d.Ready = pinger{err: errors.New("db down")} })
	rec = down.get("/readyz")
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	require.Contains(t, rec.Body.String(), "db down")
}

func TestRequestIDIsPropagated(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Request-ID", "abc-123")
	rec := f.do(req)
	require.Equal(t, "abc-123", rec.Header().Get("X-Request-ID"))
}

func TestHomeShowsFeaturedAndCategories(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.seed(t,
		approved("Clay Club", "Art", "Sunshine"),
		approved("Little Kickers", "Sport", "Point Cook"),
		activity.Activity{Title: "Hidden Pending", Category: "Secret", SourceURL: "https://example.com/hidden"},
	)

	rec := f.get("/")
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	require.Contains(t, body, "Clay Club")
	require.Contains(t, body, "Little Kickers")
	require.Contains(t, body, `href="/activities?category=Sport"`)
	require.NotContains(t, body, "Hidden Pending")
	require.NotContains(t, body, "Secret")
	require.Contains(t, body, "Log in")
}

func TestActivitiesSearchAndPagination(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	for i := 1; i <= 14; i++ {
		f.seed(t, approved(fmt.Sprintf("Art Class %02d", i), "Art", "Sunshine"))
	}
	f.seed(t, approved("Swim School", "Swimming", "Werribee"))

	rec := f.get("/activities?category=Art")
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	require.Contains(t, body, "14 activities")
	require.Contains(t, body, "Art Class 01")
	require.Contains(t, body, "Art Class 12")
	require.NotContains(t, body, "Art Class 13")
	require.NotContains(t, body, "Swim School")
	require.Contains(t, body, "Page 1 of 2")
	require.Contains(t, body, `href="/activities?category=Art&amp;page=2"`)

	rec = f.get("/activities?category=Art&page=2")
	require.Contains(t, rec.Body.String(), "Art Class 14")

	rec = f.get("/activities?q=swim")
	require.Contains(t, rec.Body.String(), "Swim School")
	require.Contains(t, rec.Body.String(), "1 activities")
}

func TestActivityDetailVisibility(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	items := f.seed(t,
		approved("Clay Club", "Art", "Sunshine"),
		activity.Activity{Title: "Pending Pottery", SourceURL: "https://example.com/pending"},
	)
	admin := f.user(t, "admin", "password1", true)

	rec := f.get(fmt.Sprintf("/activities/%d", items[0].ID))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "Clay Club")

	require.Equal(t, http.StatusNotFound, f.get(fmt.Sprintf("/activities/%d", items[1].ID)).Code)
	require.Equal(t, http.StatusNotFound, f.get("/activities/999").Code)
	require.Equal(t, http.StatusNotFound, f.get("/activities/abc").Code)

	rec = f.get(fmt.Sprintf("/activities/%d", items[1].ID), f.cookie(t, admin))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "Pending moderation")
}

func TestInvalidSessionCookieIsCleared(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	rec := f.get("/", &http.Cookie{Name: defaultCookieName, Value: "garbage"})
	require.Equal(t, http.StatusOK, rec.Code)
	cleared := rec.Result().Cookies()
	require.Len(t, cleared, 1)
	require.Equal(t, -1, cleared[0].MaxAge)
}
