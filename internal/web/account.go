package web

import (
	"errors"
	"net/http"
	"net/mail"
	"regexp"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/JakeFAU/kidssmart/internal/auth"
	"github.com/JakeFAU/kidssmart/internal/store"
)

const (
	minUsername = 3
	maxUsername = 50
	minPassword = 6
)

var postcodePattern = regexp.MustCompile(`^\d{4}$`)

type registration struct {
	Username      string
	Email         string
	FirstName     string
	LastName      string
	Suburb        string
	Postcode      string
	ChildAgeRange string
	password      string
	confirm       string
}

func registrationFrom(r *http.Request) registration {
	field := func(name string) string { return strings.TrimSpace(r.PostFormValue(name)) }
	return registration{
		Username:      field("username"),
		Email:         strings.ToLower(field("email")),
		FirstName:     field("first_name"),
		LastName:      field("last_name"),
		Suburb:        field("suburb"),
		Postcode:      field("postcode"),
		ChildAgeRange: field("child_age_range"),
		password:      r.PostFormValue("password"),
		confirm:       r.PostFormValue("confirm"),
	}
}

// validate returns the first problem a user should fix.
func (f registration) validate() string {
	n := utf8.RuneCountInString(f.Username)
	switch {
	case f.Username == "":
		return "Username is required."
	case n < minUsername || n > maxUsername:
		return "Username must be between 3 and 50 characters."
	}
	if msg := validPassword(f.password, f.confirm); msg != "" {
		return msg
	}
	if f.Email != "" {
		if addr, err := mail.ParseAddress(f.Email); err != nil || addr.Address != f.Email {
			return "Enter a valid email address."
		}
	}
	if f.Postcode != "" && !postcodePattern.MatchString(f.Postcode) {
		return "Postcode must be 4 digits."
	}
	return ""
}

func validPassword(password, confirm string) string {
	switch {
	case len(password) < minPassword:
		return "Password must be at least 6 characters."
	case password != confirm:
		return "Passwords do not match."
	}
	return ""
}

func (s *Server) registerForm(w http.ResponseWriter, r *http.Request) {
	s.render(w, r, http.StatusOK, "register", view{Title: "Register", Data: registration{}})
}

func (s *Server) register(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		s.render(w, r, http.StatusBadRequest, "register", view{Title: "Register", Error: "Could not read the form.", Data: registration{}})
		return
	}
	form := registrationFrom(r)
	if msg := form.validate(); msg != "" {
		s.render(w, r, http.StatusBadRequest, "register", view{Title: "Register", Error: msg, Data: form})
		return
	}
	hash, err := auth.HashPassword(form.password)
	if err != nil {
		s.internalError(w, r, "hash password", err)
		return
	}
	_, err = s.deps.Users.CreateUser(r.Context(), store.User{
		Username:      form.Username,
		Email:         form.Email,
		PasswordHash:  hash,
		FirstName:     form.FirstName,
		LastName:      form.LastName,
		Suburb:        form.Suburb,
		Postcode:      form.Postcode,
		ChildAgeRange: form.ChildAgeRange,
		CreatedAt:     s.deps.Clock.Now(),
	})
	switch {
	case errors.Is(err, store.ErrUsernameTaken):
		s.render(w, r, http.StatusConflict, "register", view{Title: "Register", Error: "That username is taken.", Data: form})
		return
	case errors.Is(err, store.ErrEmailTaken):
		s.render(w, r, http.StatusConflict, "register", view{Title: "Register", Error: "That email is already registered.", Data: form})
		return
	case err != nil:
		s.internalError(w, r, "create user", err)
		return
	}
	s.logger.Info("user registered", zap.String("username", form.Username))
	http.Redirect(w, r, "/login", http.StatusSeeOther)
}

type loginForm struct {
	Username string
	Next     string
}

func (s *Server) loginForm(w http.ResponseWriter, r *http.Request) {
	if viewerFrom(r.Context()) != nil {
		http.Redirect(w, r, safeNext(r.URL.Query().Get("next"), "/dashboard"), http.StatusSeeOther)
		return
	}
	s.render(w, r, http.StatusOK, "login", view{Title: "Log in", Data: loginForm{Next: safeNext(r.URL.Query().Get("next"), "")}})
}

func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		s.render(w, r, http.StatusBadRequest, "login", view{Title: "Log in", Error: "Could not read the form.", Data: loginForm{}})
		return
	}
	form := loginForm{
		Username: strings.TrimSpace(r.PostFormValue("username")),
		Next:     safeNext(r.PostFormValue("next"), ""),
	}
	password := r.PostFormValue("password")
	reject := func() {
		s.render(w, r, http.StatusUnauthorized, "login", view{Title: "Log in", Error: "Invalid username or password.", Data: form})
	}
	if form.Username == "" || password == "" {
		reject()
		return
	}
	user, err := s.deps.Users.GetUserByUsername(r.Context(), form.Username)
	if errors.Is(err, store.ErrNotFound) {
		reject()
		return
	}
	if err != nil {
		s.internalError(w, r, "load user", err)
		return
	}
	if err := auth.CheckPassword(user.PasswordHash, password); err != nil {
		if !errors.Is(err, auth.ErrWrongPassword) {
			s.logger.Warn("stored password hash unreadable", zap.Int64("user_id", user.ID), zap.Error(err))
		}
		reject()
		return
	}
	if !user.Active {
		s.logger.Info("login refused for deactivated account", zap.Int64("user_id", user.ID))
		s.render(w, r, http.StatusForbidden, "login", view{Title: "Log in", Error: "This account has been deactivated.", Data: form})
		return
	}
	token, err := s.deps.Sessions.Issue(user.ID, user.Username, user.IsAdmin)
	if err != nil {
		s.internalError(w, r, "issue session", err)
		return
	}
	if err := s.deps.Users.TouchLastLogin(r.Context(), user.ID, s.deps.Clock.Now()); err != nil {
		s.logger.Warn("touch last login failed", zap.Int64("user_id", user.ID), zap.Error(err))
	}
	s.setSession(w, token)
	http.Redirect(w, r, safeNext(form.Next, "/dashboard"), http.StatusSeeOther)
}

func (s *Server) logout(w http.ResponseWriter, r *http.Request) {
	s.clearSession(w)
	http.Redirect(w, r, "/", http.StatusSeeOther)
}
