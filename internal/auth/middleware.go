package auth

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"
)

// SessionCookie is the name of the cookie carrying the session token.
const SessionCookie = "session"

// contextKey is an unexported type used for context keys in this package.
//
// WHY A CUSTOM TYPE FOR CONTEXT KEYS?
// context.WithValue uses any as the key type. If you use a plain string like
// context.WithValue(ctx, "userID", id), ANY package that knows the string "userID"
// can read or shadow your value. Using a package-private type prevents collisions:
// only THIS package can create a key of type contextKey, so only this package
// can read or write userID values in the context.
type contextKey string

const (
	userIDKey     contextKey = "userID"
	sessionErrKey contextKey = "sessionErr"
)

// LoadSession is a middleware that resolves the session cookie, if any,
// and stores the user id in the request context.
//
// It never blocks a request. Anonymous visitors pass straight through and
// pages that need a login decide for themselves what to do (see
// UserIDFromContext). A cookie that no longer resolves, for example after
// logout or expiry, is cleared so the browser stops sending it. When the
// session store itself fails, the request continues without a user and the
// error is kept in the context (see SessionErrorFromContext), so a page that
// needs a login can answer with a server error instead of a login prompt.
//
// MIDDLEWARE PATTERN IN GO:
// A middleware is a function that takes an http.Handler and returns a new
// http.Handler. The new handler "wraps" the original:
//
//	func Middleware(next http.Handler) http.Handler {
//	    return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
//	        // ... do stuff before the handler ...
//	        next.ServeHTTP(w, r)
//	        // ... do stuff after the handler ...
//	    })
//	}
//
// COOKIE-BASED TOKEN STORAGE:
// HttpOnly means JavaScript cannot read the cookie, which prevents
// XSS (Cross-Site Scripting) attacks from stealing the token.
func LoadSession(sessions *SessionManager, secure bool, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			cookie, err := r.Cookie(SessionCookie)
			if err != nil || cookie.Value == "" {
				next.ServeHTTP(w, r)
				return
			}

			userID, err := sessions.Resolve(r.Context(), cookie.Value)
			switch {
			case err == nil:
				r = r.WithContext(WithUserID(r.Context(), userID))
			case errors.Is(err, ErrNoSession):
				ClearSessionCookie(w, secure)
			default:
				logger.ErrorContext(r.Context(), "resolving session failed", slog.String("error", err.Error()))
				r = r.WithContext(WithSessionError(r.Context(), err))
			}

			next.ServeHTTP(w, r)
		})
	}
}

// WithUserID returns a copy of ctx carrying the authenticated user id.
func WithUserID(ctx context.Context, userID int64) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

// UserIDFromContext retrieves the authenticated user's ID from the request context.
//
// Returns (0, false) if the request is anonymous.
func UserIDFromContext(ctx context.Context) (int64, bool) {
	id, ok := ctx.Value(userIDKey).(int64)
	return id, ok && id > 0
}

// WithSessionError returns a copy of ctx recording that the session could
// not be resolved because of err.
func WithSessionError(ctx context.Context, err error) context.Context {
	return context.WithValue(ctx, sessionErrKey, err)
}

// SessionErrorFromContext returns the error that stopped LoadSession from
// resolving the session cookie, or nil when there was none.
func SessionErrorFromContext(ctx context.Context) error {
	err, _ := ctx.Value(sessionErrKey).(error)
	return err
}

// SetSessionCookie writes the session token cookie.
//
// SameSite=Lax keeps the cookie off cross-site POSTs, so another site cannot
// upload on a user's behalf. Top-level cross-site GETs still carry it.
func SetSessionCookie(w http.ResponseWriter, token string, expires time.Time, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    token,
		Path:     "/",
		Expires:  expires,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// ClearSessionCookie tells the browser to drop the session cookie.
func ClearSessionCookie(w http.ResponseWriter, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
}
