package web

import (
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/kidssmart/internal/auth"
	"github.com/JakeFAU/kidssmart/internal/store"
)

type profilePage struct {
	User   store.User
	Notice string
}

func (s *Server) currentUser(w http.ResponseWriter, r *http.Request) (store.User, bool) {
	viewer := viewerFrom(r.Context())
	u, err := s.deps.Users.GetUser(r.Context(), viewer.UserID)
	if errors.Is(err, store.ErrNotFound) {
		s.clearSession(w)
		redirectToLogin(w, r)
		return store.User{}, false
	}
	if err != nil {
		s.internalError(w, r, "load user", err)
		return store.User{}, false
	}
	return u, true
}

func (s *Server) profile(w http.ResponseWriter, r *http.Request) {
	u, ok := s.currentUser(w, r)
	if !ok {
		return
	}
	s.render(w, r, http.StatusOK, "profile", view{Title: "My profile", Data: profilePage{User: u}})
}

// updateProfile handles both forms on the profile page, told apart by the action field.
func (s *Server) updateProfile(w http.ResponseWriter, r *http.Request) {
	u, ok := s.currentUser(w, r)
	if !ok {
		return
	}
	if err := r.ParseForm(); err != nil {
		s.render(w, r, http.StatusBadRequest, "profile", view{Title: "My profile", Error: "Could not read the form.", Data: profilePage{User: u}})
		return
	}
	switch r.PostFormValue("action") {
	case "password":
		s.changePassword(w, r, u)
	case "profile", "":
		s.saveProfile(w, r, u)
	default:
		s.renderError(w, r, http.StatusBadRequest)
	}
}

func (s *Server) saveProfile(w http.ResponseWriter, r *http.Request, u store.User) {
	field := func(name string) string { return strings.TrimSpace(r.PostFormValue(name)) }
	u.FirstName = field("first_name")
	u.LastName = field("last_name")
	u.Suburb = field("suburb")
	u.Postcode = field("postcode")
	u.ChildAgeRange = field("child_age_range")

	var msg string
	switch {
	case u.FirstName == "":
		msg = "First name is required."
	case u.Postcode != "" && !postcodePattern.MatchString(u.Postcode):
		msg = "Postcode must be 4 digits."
	}
	if msg != "" {
		s.render(w, r, http.StatusBadRequest, "profile", view{Title: "My profile", Error: msg, Data: profilePage{User: u}})
		return
	}
	if err := s.deps.Users.UpdateProfile(r.Context(), u); err != nil {
		s.internalError(w, r, "update profile", err)
		return
	}
	s.logger.Info("profile updated", zap.Int64("user_id", u.ID))
	s.render(w, r, http.StatusOK, "profile", view{Title: "My profile", Data: profilePage{User: u, Notice: "Profile updated."}})
}

func (s *Server) changePassword(w http.ResponseWriter, r *http.Request, u store.User) {
	current := r.PostFormValue("current_password")
	next := r.PostFormValue("new_password")
	fail := func(status int, msg string) {
		s.render(w, r, status, "profile", view{Title: "My profile", Error: msg, Data: profilePage{User: u}})
	}
	if current == "" {
		fail(http.StatusBadRequest, "Current password is required.")
		return
	}
	if msg := validPassword(next, r.PostFormValue("confirm_password")); msg != "" {
		fail(http.StatusBadRequest, msg)
		return
	}
	if err := auth.CheckPassword(u.PasswordHash, current); err != nil {
		if !errors.Is(err, auth.ErrWrongPassword) {
			s.logger.Warn("stored password hash unreadable", zap.Int64("user_id", u.ID), zap.Error(err))
		}
		fail(http.StatusUnauthorized, "Current password is incorrect.")
		return
	}
	hash, err := auth.HashPassword(next)
	if err != nil {
		s.internalError(w, r, "hash password", err)
		return
	}
	if err := s.deps.Users.SetPasswordHash(r.Context(), u.ID, hash); err != nil {
		s.internalError(w, r, "set password", err)
		return
	}
	s.logger.Info("password changed", zap.Int64("user_id", u.ID))
	s.render(w, r, http.StatusOK, "profile", view{Title: "My profile", Data: profilePage{User: u, Notice: "Password updated."}})
}
