package web

import (
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/JakeFAU/kidssmart/internal/activity"
	"github.com/JakeFAU/kidssmart/internal/store"
)

type activityPage struct {
	Items    []activity.Activity `json:"items"`
	Total    int                 `json:"total"`
	Page     int                 `json:"page"`
	PageSize int                 `json:"page_size"`
}

func (s *Server) apiListActivities(w http.ResponseWriter, r *http.Request) {
	f := filterFrom(r, true)
	l, err := s.search(r, f, "/api/v1/activities")
	if err != nil {
		s.apiError(w, r, "search activities", err)
		return
	}
	items := l.Items
	if items == nil {
		items = []activity.Activity{}
	}
	writeJSON(w, http.StatusOK, activityPage{Items: items, Total: l.Total, Page: l.Page, PageSize: f.Limit()})
}

func (s *Server) apiGetActivity(w http.ResponseWriter, r *http.Request) {
	a, err := s.visibleActivity(r)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "activity not found")
		return
	}
	if err != nil {
		s.apiError(w, r, "load activity", err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func (s *Server) apiCategories(w http.ResponseWriter, r *http.Request) {
	values, err := s.deps.Activities.Categories(r.Context())
	if err != nil {
		s.apiError(w, r, "load categories", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string][]string{"categories": orEmpty(values)})
}

func (s *Server) apiSuburbs(w http.ResponseWriter, r *http.Request) {
	values, err := s.deps.Activities.Suburbs(r.Context())
	if err != nil {
		s.apiError(w, r, "load suburbs", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string][]string{"suburbs": orEmpty(values)})
}

func (s *Server) apiError(w http.ResponseWriter, r *http.Request, what string, err error) {
	s.logger.Error(what+" failed",
		zap.String("request_id", RequestID(r.Context())),
		zap.String("path", r.URL.Path),
		zap.Error(err))
	writeError(w, http.StatusInternalServerError, "internal error")
}

func orEmpty(v []string) []string {
	if v == nil {
		return []string{}
	}
	return v
}
