package handler

// RESPONSE HELPERS:
// These functions standardise how we send errors and the odd JSON body.
//
// CONSISTENT ERROR PAGES:
// Every error a visitor sees goes through renderError, so the mapping from
// domain error to status code lives in exactly one place.

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/whesley264-oss/Hub-IMG/internal/apperror"
)

// writeJSON sends a JSON response with the given status code.
//
// HEADER ORDER MATTERS:
// You MUST set headers and status code BEFORE writing the body.
// Once you call w.Write() (which Encode does internally), the headers are sent.
// Any header changes after that are silently ignored.
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			// If encoding fails, the headers are already sent — we can only log it.
			slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
		}
	}
}

// errorStatus maps a domain error to an HTTP status code and a message
// that is safe to show.
//
// errors.Is() UNWRAPPING:
// errors.Is(err, target) walks the entire error chain (via Unwrap())
// to see if `target` appears anywhere. This works because:
//
//	service returns: fmt.Errorf("service/image: ...: %w", apperror.NotFound(...))
//	which wraps:     AppError{Err: ErrNotFound, Message: "..."}
//	errors.Is walks: outer error → AppError → ErrNotFound ✓ match!
func errorStatus(err error) (int, string) {
	var appErr *apperror.AppError
	if !errors.As(err, &appErr) {
		// NEVER expose internal error details to the client in production!
		// The raw error message might contain SQL, file paths, or other sensitive info.
		return http.StatusInternalServerError, "Something went wrong on our side."
	}

	switch {
	case errors.Is(err, apperror.ErrNotFound):
		return http.StatusNotFound, "The page or image you asked for does not exist."
	case errors.Is(err, apperror.ErrValidation):
		return http.StatusBadRequest, appErr.Message
	case errors.Is(err, apperror.ErrForbidden):
		return http.StatusForbidden, appErr.Message
	case errors.Is(err, apperror.ErrUnauthorized):
		return http.StatusUnauthorized, appErr.Message
	case errors.Is(err, apperror.ErrConflict):
		return http.StatusConflict, appErr.Message
	}
	return http.StatusInternalServerError, "Something went wrong on our side."
}

// renderError renders the error page for err. Server errors are logged
// with the full error; the visitor only sees a generic message.
func (rn *Renderer) renderError(w http.ResponseWriter, r *http.Request, err error) {
	status, msg := errorStatus(err)
	if status >= http.StatusInternalServerError {
		rn.logger.ErrorContext(r.Context(), "request failed",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)
	}
	rn.Render(w, r, status, "error", http.StatusText(status), errorPage{Status: status, Message: msg})
}

type errorPage struct {
	Status  int
	Message string
}
