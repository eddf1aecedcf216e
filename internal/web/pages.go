package web

import (
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/JakeFAU/kidssmart/internal/activity"
	"github.com/JakeFAU/kidssmart/internal/store"
)

const maxAPIPageSize = 100

type listing struct {
	pager
	Items      []activity.Activity
	Total      int
	Filter     store.ActivityFilter
	Categories []string
	Suburbs    []string
}

// pager carries the current page and the query that produced it.
type pager struct {
	Page   int
	Pages  int
	base   string
	params url.Values
}

func newPager(r *http.Request, base string, page, total, size int) pager {
	params := url.Values{}
	for k, v := range r.URL.Query() {
		if k != "page" {
			params[k] = v
		}
	}
	return pager{Page: max(page, 1), Pages: pageCount(total, size), base: base, params: params}
}

// PageURL links to page n with the current filters.
func (p pager) PageURL(n int) string {
	q := url.Values{}
	for k, v := range p.params {
		q[k] = v
	}
	q.Set("page", strconv.Itoa(n))
	return p.base + "?" + q.Encode()
}

func pageCount(total, size int) int {
	if total <= 0 || size <= 0 {
		return 1
	}
	return (total + size - 1) / size
}

// filterFrom reads q, category, suburb and page; page_size is honoured when allowSize is set.
func filterFrom(r *http.Request, allowSize bool) store.ActivityFilter {
	q := r.URL.Query()
	f := store.ActivityFilter{
		Query:    strings.TrimSpace(q.Get("q")),
		Category: strings.TrimSpace(q.Get("category")),
		Suburb:   strings.TrimSpace(q.Get("suburb")),
		Approval: store.ApprovedOnly,
		Page:     positiveInt(q.Get("page"), 1),
	}
	if allowSize {
		f.PageSize = min(positiveInt(q.Get("page_size"), store.DefaultPageSize), maxAPIPageSize)
	}
	return f
}

func positiveInt(raw string, def int) int {
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func idParam(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	return id, err == nil && id > 0
}

func (s *Server) home(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	featured, err := s.deps.Activities.Featured(ctx, store.DefaultFeatured)
	if err != nil {
		s.internalError(w, r, "load featured", err)
		return
	}
	categories, err := s.deps.Activities.Categories(ctx)
	if err != nil {
		s.internalError(w, r, "load categories", err)
		return
	}
	s.render(w, r, http.StatusOK, "home", view{Data: map[string]any{
		"Featured":   featured,
		"Categories": categories,
	}})
}

func (s *Server) search(r *http.Request, f store.ActivityFilter, base string) (listing, error) {
	ctx := r.Context()
	items, err := s.deps.Activities.SearchActivities(ctx, f)
	if err != nil {
		return listing{}, err
	}
	total, err := s.deps.Activities.CountActivities(ctx, f)
	if err != nil {
		return listing{}, err
	}
	return listing{
		pager:  newPager(r, base, f.Page, total, f.Limit()),
		Items:  items,
		Total:  total,
		Filter: f,
	}, nil
}

func (s *Server) listActivities(w http.ResponseWriter, r *http.Request) {
	l, err := s.search(r, filterFrom(r, false), "/activities")
	if err != nil {
		s.internalError(w, r, "search activities", err)
		return
	}
	if l.Categories, err = s.deps.Activities.Categories(r.Context()); err != nil {
		s.internalError(w, r, "load categories", err)
		return
	}
	if l.Suburbs, err = s.deps.Activities.Suburbs(r.Context()); err != nil {
		s.internalError(w, r, "load suburbs", err)
		return
	}
	s.render(w, r, http.StatusOK, "activities", view{Title: "Activities", Data: l})
}

// visibleActivity loads an activity, hiding unapproved ones from non-admins.
func (s *Server) visibleActivity(r *http.Request) (activity.Activity, error) {
	id, ok := idParam(r)
	if !ok {
		return activity.Activity{}, store.ErrNotFound
	}
	a, err := s.deps.Activities.GetActivity(r.Context(), id)
	if err != nil {
		return activity.Activity{}, err
	}
	if !a.Approved {
		if v := viewerFrom(r.Context()); v == nil || !v.Admin {
			return activity.Activity{}, store.ErrNotFound
		}
	}
	return a, nil
}

func (s *Server) showActivity(w http.ResponseWriter, r *http.Request) {
	a, err := s.visibleActivity(r)
	if errors.Is(err, store.ErrNotFound) {
		s.renderError(w, r, http.StatusNotFound)
		return
	}
	if err != nil {
		s.internalError(w, r, "load activity", err)
		return
	}
	favourite := false
	if v := viewerFrom(r.Context()); v != nil {
		if favourite, err = s.deps.Favourites.IsFavourite(r.Context(), v.UserID, a.ID); err != nil {
			s.internalError(w, r, "check favourite", err)
			return
		}
	}
	s.render(w, r, http.StatusOK, "activity", view{Title: a.Title, Data: map[string]any{
		"Activity":  a,
		"Favourite": favourite,
	}})
}

func (s *Server) toggleFavourite(w http.ResponseWriter, r *http.Request) {
	viewer := viewerFrom(r.Context())
	a, err := s.visibleActivity(r)
	if errors.Is(err, store.ErrNotFound) {
		s.renderError(w, r, http.StatusNotFound)
		return
	}
	if err != nil {
		s.internalError(w, r, "load activity", err)
		return
	}
	ctx := r.Context()
	saved, err := s.deps.Favourites.IsFavourite(ctx, viewer.UserID, a.ID)
	if err != nil {
		s.internalError(w, r, "check favourite", err)
		return
	}
	if saved {
		err = s.deps.Favourites.RemoveFavourite(ctx, viewer.UserID, a.ID)
	} else {
		err = s.deps.Favourites.AddFavourite(ctx, store.FavouriteFrom(viewer.UserID, a, s.deps.Clock.Now()))
	}
	if err != nil {
		s.internalError(w, r, "toggle favourite", err)
		return
	}
	http.Redirect(w, r, localReferer(r, "/activities/"+strconv.FormatInt(a.ID, 10)), http.StatusSeeOther)
}

func (s *Server) dashboard(w http.ResponseWriter, r *http.Request) {
	viewer := viewerFrom(r.Context())
	user, err := s.deps.Users.GetUser(r.Context(), viewer.UserID)
	if errors.Is(err, store.ErrNotFound) {
		// The account behind a still-valid token is gone.
		s.clearSession(w)
		http.Redirect(w, r, "/login", http.StatusSeeOther)
		return
	}
	if err != nil {
		s.internalError(w, r, "load user", err)
		return
	}
	favourites, err := s.deps.Favourites.ListFavourites(r.Context(), viewer.UserID)
	if err != nil {
		s.internalError(w, r, "list favourites", err)
		return
	}
	s.render(w, r, http.StatusOK, "dashboard", view{Title: "Dashboard", Data: map[string]any{
		"User":       user,
		"Favourites": favourites,
	}})
}

func (s *Server) favourites(w http.ResponseWriter, r *http.Request) {
	viewer := viewerFrom(r.Context())
	favourites, err := s.deps.Favourites.ListFavourites(r.Context(), viewer.UserID)
	if err != nil {
		s.internalError(w, r, "list favourites", err)
		return
	}
	s.render(w, r, http.StatusOK, "favourites", view{Title: "Favourites", Data: map[string]any{
		"Favourites": favourites,
	}})
}

func (s *Server) internalError(w http.ResponseWriter, r *http.Request, what string, err error) {
	s.logger.Error(what+" failed",
		zap.String("request_id", RequestID(r.Context())),
		zap.String("path", r.URL.Path),
		zap.Error(err))
	s.renderError(w, r, http.StatusInternalServerError)
}
