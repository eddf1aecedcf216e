package web

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/JakeFAU/kidssmart/internal/store"
)

const usersPageSize = 15

type userStats struct {
	Total      int
	Active     int
	Unverified int
}

type userListing struct {
	pager
	Items  []store.User
	Total  int
	Filter store.UserFilter
	Stats  userStats
	Self   int64
}

func userStatusFrom(raw string) store.UserStatus {
	switch s := store.UserStatus(raw); s {
	case store.ActiveUsers, store.InactiveUsers, store.UnverifiedUsers:
		return s
	default:
		return store.AnyUserStatus
	}
}

func (s *Server) userCounts(r *http.Request) (userStats, error) {
	ctx := r.Context()
	var (
		st  userStats
		err error
	)
	if st.Total, err = s.deps.Users.CountUsers(ctx, store.UserFilter{}); err != nil {
		return st, err
	}
	if st.Active, err = s.deps.Users.CountUsers(ctx, store.UserFilter{Status: store.ActiveUsers}); err != nil {
		return st, err
	}
	if st.Unverified, err = s.deps.Users.CountUsers(ctx, store.UserFilter{Status: store.UnverifiedUsers}); err != nil {
		return st, err
	}
	return st, nil
}

func (s *Server) adminUsers(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()
	f := store.UserFilter{
		Query:    strings.TrimSpace(q.Get("q")),
		Status:   userStatusFrom(q.Get("status")),
		Page:     positiveInt(q.Get("page"), 1),
		PageSize: usersPageSize,
	}
	items, err := s.deps.Users.SearchUsers(ctx, f)
	if err != nil {
		s.internalError(w, r, "search users", err)
		return
	}
	total, err := s.deps.Users.CountUsers(ctx, f)
	if err != nil {
		s.internalError(w, r, "count users", err)
		return
	}
	st, err := s.userCounts(r)
	if err != nil {
		s.internalError(w, r, "user stats", err)
		return
	}
	s.render(w, r, http.StatusOK, "admin_users", view{Title: "Users", Data: userListing{
		pager:  newPager(r, "/admin/users", f.Page, total, f.Limit()),
		Items:  items,
		Total:  total,
		Filter: f,
		Stats:  st,
		Self:   viewerFrom(ctx).UserID,
	}})
}

// manageUser applies one admin action. Admins cannot deactivate or delete themselves,
// and delete needs confirm=yes.
func (s *Server) manageUser(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r)
	if !ok {
		s.renderError(w, r, http.StatusNotFound)
		return
	}
	ctx := r.Context()
	admin := viewerFrom(ctx)
	action := chi.URLParam(r, "action")
	if admin.UserID == id && (action == "deactivate" || action == "delete") {
		s.renderError(w, r, http.StatusBadRequest)
		return
	}
	var err error
	switch action {
	case "activate":
		err = s.deps.Users.SetActive(ctx, id, true)
	case "deactivate":
		err = s.deps.Users.SetActive(ctx, id, false)
	case "verify":
		err = s.deps.Users.SetVerified(ctx, id, true)
	case "delete":
		if r.PostFormValue("confirm") != "yes" {
			s.renderError(w, r, http.StatusBadRequest)
			return
		}
		err = s.deps.Users.DeleteUser(ctx, id)
	default:
		s.renderError(w, r, http.StatusBadRequest)
		return
	}
	if errors.Is(err, store.ErrNotFound) {
		s.renderError(w, r, http.StatusNotFound)
		return
	}
	if err != nil {
		s.internalError(w, r, action+" user", err)
		return
	}
	s.logger.Info("user managed",
		zap.Int64("user_id", id),
		zap.String("action", action),
		zap.String("admin", admin.Username))
	http.Redirect(w, r, localReferer(r, "/admin/users"), http.StatusSeeOther)
}
