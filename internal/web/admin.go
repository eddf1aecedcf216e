package web

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/JakeFAU/kidssmart/internal/crawler"
	"github.com/JakeFAU/kidssmart/internal/dispatcher"
	"github.com/JakeFAU/kidssmart/internal/progress/sinks"
	"github.com/JakeFAU/kidssmart/internal/store"
)

const (
	recentRunsShown = 20
	failedWindow    = 24 * time.Hour
	adminPageSize   = 50
)

type adminListing struct {
	listing
	Status store.ApprovalFilter
}

func approvalFrom(raw string) store.ApprovalFilter {
	switch store.ApprovalFilter(raw) {
	case store.ApprovedOnly:
		return store.ApprovedOnly
	case store.AnyApproval:
		return store.AnyApproval
	default:
		return store.PendingOnly
	}
}

func (s *Server) adminActivities(w http.ResponseWriter, r *http.Request) {
	f := filterFrom(r, false)
	f.Approval = approvalFrom(r.URL.Query().Get("status"))
	f.PageSize = adminPageSize
	l, err := s.search(r, f, "/admin/activities")
	if err != nil {
		s.internalError(w, r, "search activities", err)
		return
	}
	s.render(w, r, http.StatusOK, "admin_activities", view{
		Title: "Moderate activities",
		Data:  adminListing{listing: l, Status: f.Approval},
	})
}

func (s *Server) moderate(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r)
	if !ok {
		s.renderError(w, r, http.StatusNotFound)
		return
	}
	ctx := r.Context()
	action := chi.URLParam(r, "action")
	var err error
	switch action {
	case "approve":
		err = s.deps.Activities.SetApproved(ctx, id, true)
	case "reject":
		err = s.deps.Activities.SetApproved(ctx, id, false)
	case "delete":
		err = s.deps.Activities.DeleteActivity(ctx, id)
	default:
		s.renderError(w, r, http.StatusBadRequest)
		return
	}
	if errors.Is(err, store.ErrNotFound) {
		s.renderError(w, r, http.StatusNotFound)
		return
	}
	if err != nil {
		s.internalError(w, r, action+" activity", err)
		return
	}
	s.logger.Info("activity moderated",
		zap.Int64("activity_id", id),
		zap.String("action", action),
		zap.String("admin", viewerFrom(ctx).Username))
	http.Redirect(w, r, localReferer(r, "/admin/activities"), http.StatusSeeOther)
}

type spiderRow struct {
	Name        string
	Description string
	Schedule    string
	Next        time.Time
}

func (s *Server) spiderRows() []spiderRow {
	schedules := map[string]spiderRow{}
	if s.deps.Schedules != nil {
		for _, e := range s.deps.Schedules.Entries() {
			schedules[e.Name] = spiderRow{Schedule: e.Spec, Next: e.Next}
		}
	}
	var rows []spiderRow
	for _, sp := range s.deps.Spiders.All() {
		row := schedules[sp.Name()]
		row.Name = sp.Name()
		row.Description = sp.Description()
		rows = append(rows, row)
	}
	return rows
}

func (s *Server) liveSnapshot() []sinks.LiveRun {
	if s.deps.Live == nil {
		return nil
	}
	return s.deps.Live.Snapshot()
}

func (s *Server) adminScrapers(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	stats, err := s.deps.Activities.SourceStats(ctx)
	if err != nil {
		s.internalError(w, r, "source stats", err)
		return
	}
	recent, err := s.deps.Runs.RecentRuns(ctx, recentRunsShown)
	if err != nil {
		s.internalError(w, r, "recent runs", err)
		return
	}
	failed, err := s.deps.Runs.FailedSince(ctx, s.deps.Clock.Now().Add(-failedWindow))
	if err != nil {
		s.internalError(w, r, "failed runs", err)
		return
	}
	s.render(w, r, http.StatusOK, "admin_scrapers", view{Title: "Scrapers", Data: map[string]any{
		"Spiders": s.spiderRows(),
		"Live":    s.liveSnapshot(),
		"Stats":   stats,
		"Recent":  recent,
		"Failed":  failed,
	}})
}

func (s *Server) runSpider(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "spider")
	if _, ok := s.deps.Spiders.Get(name); !ok {
		s.renderError(w, r, http.StatusNotFound)
		return
	}
	if s.deps.Submitter == nil {
		s.renderError(w, r, http.StatusServiceUnavailable)
		return
	}
	req, err := s.deps.Submitter.Submit(r.Context(), name, crawler.TriggerAdmin)
	if errors.Is(err, dispatcher.ErrUnknownSpider) {
		s.renderError(w, r, http.StatusNotFound)
		return
	}
	if err != nil {
		s.internalError(w, r, "submit run", err)
		return
	}
	s.logger.Info("run requested",
		zap.String("spider", name),
		zap.String("run_id", req.RunID),
		zap.String("admin", viewerFrom(r.Context()).Username))
	http.Redirect(w, r, "/admin/scrapers", http.StatusSeeOther)
}

func (s *Server) liveRuns(w http.ResponseWriter, _ *http.Request) {
	runs := s.liveSnapshot()
	if runs == nil {
		runs = []sinks.LiveRun{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": runs})
}
