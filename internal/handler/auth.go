package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/whesley264-oss/Hub-IMG/internal/apperror"
	"github.com/whesley264-oss/Hub-IMG/internal/auth"
	"github.com/whesley264-oss/Hub-IMG/internal/service"
)

// AuthHandler serves registration, login and logout.
//
// HANDLER RESPONSIBILITIES:
//   - HandleRegisterForm / HandleRegister → show the form, create the account
//   - HandleLoginForm / HandleLogin       → show the form, open a session
//   - HandleLogout                        → close the session
//
// DEPENDENCY CHAIN:
//   - users    *service.AuthService   → registration and credential checks
//   - sessions *auth.SessionManager   → opens and revokes sessions
type AuthHandler struct {
	users         *service.AuthService
	sessions      *auth.SessionManager
	render        *Renderer
	secureCookies bool
	logger        *slog.Logger
}

// NewAuthHandler creates an AuthHandler. All dependencies are injected here;
// the handler has no knowledge of how they're constructed.
func NewAuthHandler(
	users *service.AuthService,
	sessions *auth.SessionManager,
	render *Renderer,
	secureCookies bool,
	logger *slog.Logger,
) *AuthHandler {
	return &AuthHandler{
		users:         users,
		sessions:      sessions,
		render:        render,
		secureCookies: secureCookies,
		logger:        logger,
	}
}

// credentialsForm is what the register and login templates read.
type credentialsForm struct {
	Username string
	Next     string
}

// HandleRegisterForm shows the registration form.
//
// HTTP: GET /register
func (h *AuthHandler) HandleRegisterForm(w http.ResponseWriter, r *http.Request) {
	h.render.Render(w, r, http.StatusOK, "register", "Register", credentialsForm{})
}

// HandleRegister creates an account and sends the browser to the login page.
//
// HTTP: POST /register
//
// A taken username or an invalid field re-shows the form with status 200
// and a flash; the typed username is kept, the password is not.
func (h *AuthHandler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	username := r.PostFormValue("username")
	password := r.PostFormValue("password")

	_, err := h.users.Register(r.Context(), username, password)
	if err != nil {
		var appErr *apperror.AppError
		switch {
		case errors.Is(err, apperror.ErrConflict):
			h.render.Render(w, r, http.StatusOK, "register", "Register",
				credentialsForm{Username: username},
				Flash{FlashDanger, "Username already taken."})
		case errors.Is(err, apperror.ErrValidation) && errors.As(err, &appErr):
			h.render.Render(w, r, http.StatusOK, "register", "Register",
				credentialsForm{Username: username},
				Flash{FlashDanger, capitalize(appErr.Message) + "."})
		default:
			h.render.renderError(w, r, err)
		}
		return
	}

	setFlash(w, h.secureCookies, Flash{FlashSuccess, "Registration successful! Please log in."})
	http.Redirect(w, r, "/login", http.StatusSeeOther)
}

// HandleLoginForm shows the login form, carrying ?next= through to the POST.
//
// HTTP: GET /login
func (h *AuthHandler) HandleLoginForm(w http.ResponseWriter, r *http.Request) {
	h.render.Render(w, r, http.StatusOK, "login", "Login", credentialsForm{
		Next: safeRedirect(r.URL.Query().Get("next"), ""),
	})
}

// HandleLogin checks the credentials, opens a session and redirects.
//
// HTTP: POST /login
//
// On success the browser goes to the form's "next" value when it is a
// local path, otherwise to /profile. Any credential failure re-shows the
// form with one generic message.
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	username := r.PostFormValue("username")
	password := r.PostFormValue("password")
	next := safeRedirect(r.PostFormValue("next"), "")

	user, err := h.users.Authenticate(r.Context(), username, password)
	if err != nil {
		if errors.Is(err, apperror.ErrUnauthorized) {
			h.logger.InfoContext(r.Context(), "login failed", slog.String("username", username))
			h.render.Render(w, r, http.StatusOK, "login", "Login",
				credentialsForm{Username: username, Next: next},
				Flash{FlashDanger, "Login failed. Check your username and password."})
			return
		}
		h.render.renderError(w, r, err)
		return
	}

	token, expires, err := h.sessions.Login(r.Context(), user.ID)
	if err != nil {
		h.render.renderError(w, r, err)
		return
	}
	auth.SetSessionCookie(w, token, expires, h.secureCookies)

	h.logger.InfoContext(r.Context(), "user logged in", slog.Int64("userID", user.ID))
	http.Redirect(w, r, safeRedirect(next, "/profile"), http.StatusSeeOther)
}

// HandleLogout revokes the session and returns to the landing page.
//
// HTTP: GET /logout (login required)
func (h *AuthHandler) HandleLogout(w http.ResponseWriter, r *http.Request, userID int64) {
	if c, err := r.Cookie(auth.SessionCookie); err == nil {
		if err := h.sessions.Logout(r.Context(), c.Value); err != nil {
			h.render.renderError(w, r, err)
			return
		}
	}
	auth.ClearSessionCookie(w, h.secureCookies)

	h.logger.InfoContext(r.Context(), "session ended", slog.Int64("userID", userID))
	setFlash(w, h.secureCookies, Flash{FlashInfo, "You have been logged out."})
	http.Redirect(w, r, "/", http.StatusFound)
}

func capitalize(s string) string {
	if s == "" || s[0] < 'a' || s[0] > 'z' {
		return s
	}
	return string(s[0]-'a'+'A') + s[1:]
}
