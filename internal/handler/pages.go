package handler

import (
	"context"
	"net/http"

	"github.com/whesley264-oss/Hub-IMG/internal/apperror"
)

// Pinger reports whether a backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PageHandler serves the pages that belong to no particular feature.
type PageHandler struct {
	render *Renderer
	db     Pinger
}

// NewPageHandler creates a PageHandler.
func NewPageHandler(render *Renderer, db Pinger) *PageHandler {
	return &PageHandler{render: render, db: db}
}

// HandleIndex serves the landing page.
//
// HTTP: GET /
func (h *PageHandler) HandleIndex(w http.ResponseWriter, r *http.Request) {
	h.render.Render(w, r, http.StatusOK, "index", "Welcome", nil)
}

// HandleHealth reports whether the database answers.
//
// HTTP: GET /healthz
func (h *PageHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	if err := h.db.Ping(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// HandleNotFound renders the 404 page for unknown routes.
func (h *PageHandler) HandleNotFound(w http.ResponseWriter, r *http.Request) {
	h.render.renderError(w, r, apperror.NotFound("page", r.URL.Path))
}
