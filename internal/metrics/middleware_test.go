package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestMiddlewareLabelsByRoutePattern(t *testing.T) {
	Init()
	r := chi.NewRouter()
	r.Use(Middleware)
	r.Get("/activities/{id}", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/favourites", func(w http.ResponseWriter, req *http.Request) {
		http.Redirect(w, req, "/login", http.StatusSeeOther)
	})
	r.Get("/metrics", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	detail := httpRequestsTotal.WithLabelValues(http.MethodGet, "/activities/{id}", "200")
	redirect := httpRequestsTotal.WithLabelValues(http.MethodGet, "/favourites", "303")
	missing := httpRequestsTotal.WithLabelValues(http.MethodGet, unmatchedRoute, "404")
	scrape := httpRequestsTotal.WithLabelValues(http.MethodGet, "/metrics", "200")
	beforeDetail := testutil.ToFloat64(detail)
	beforeRedirect := testutil.ToFloat64(redirect)
	beforeMissing := testutil.ToFloat64(missing)

	for _, path := range []string{"/activities/7", "/activities/8", "/favourites", "/nope", "/metrics"} {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	}

	require.InDelta(t, beforeDetail+2, testutil.ToFloat64(detail), 0)
	require.InDelta(t, beforeRedirect+1, testutil.ToFloat64(redirect), 0)
	require.InDelta(t, beforeMissing+1, testutil.ToFloat64(missing), 0)
	require.Zero(t, testutil.ToFloat64(scrape))
	require.Positive(t, testutil.CollectAndCount(httpRequestDurationSeconds))
}

func TestStatusRecorderKeepsFirstStatus(t *testing.T) {
	t.Parallel()

	rec := &statusRecorder{ResponseWriter: httptest.NewRecorder()}
	require.Equal(t, http.StatusOK, rec.code())
	rec.WriteHeader(http.StatusCreated)
	rec.WriteHeader(http.StatusInternalServerError)
	require.Equal(t, http.StatusCreated, rec.code())
}
