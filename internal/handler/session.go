package handler

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/whesley264-oss/Hub-IMG/internal/auth"
)

// AuthedFunc is a handler for pages that need a logged-in user.
// The caller's identity arrives as an argument, not hidden in the context.
type AuthedFunc func(w http.ResponseWriter, r *http.Request, userID int64)

// RequireLogin adapts an AuthedFunc into an http.HandlerFunc.
//
// Anonymous visitors are redirected to the login page with a flash, and
// for GET requests the page they wanted is passed along as ?next= so
// login can send them back. If the session store failed while the
// cookie was being checked, the visitor gets the 500 page instead.
func (rn *Renderer) RequireLogin(next AuthedFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := auth.UserIDFromContext(r.Context())
		if !ok {
			if err := auth.SessionErrorFromContext(r.Context()); err != nil {
				rn.renderError(w, r, err)
				return
			}

			setFlash(w, rn.secureCookies, Flash{FlashInfo, "Please log in to access this page."})

			target := "/login"
			if r.Method == http.MethodGet {
				target += "?next=" + url.QueryEscape(r.URL.RequestURI())
			}
			http.Redirect(w, r, target, http.StatusFound)
			return
		}
		next(w, r, userID)
	}
}

// safeRedirect returns next if it is a local path on this site, else fallback.
// "//evil.example" and "/\evil.example" are protocol-relative to browsers,
// so they don't count as local.
func safeRedirect(next, fallback string) string {
	if next == "" || !strings.HasPrefix(next, "/") ||
		strings.HasPrefix(next, "//") || strings.HasPrefix(next, `/\`) {
		return fallback
	}
	u, err := url.Parse(next)
	if err != nil || u.Scheme != "" || u.Host != "" {
		return fallback
	}
	return next
}
