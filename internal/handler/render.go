// Package handler contains HTTP request handlers for the image host.
//
// WHAT IS A HANDLER?
// In Go, an HTTP handler is anything that implements the http.Handler interface:
//
//	type Handler interface {
//	    ServeHTTP(ResponseWriter, *Request)
//	}
//
// Or more commonly, we use http.HandlerFunc — a function with the right signature
// that automatically satisfies the Handler interface. Chi's router accepts these directly.
//
// HANDLER RESPONSIBILITIES:
// 1. Parse the incoming HTTP request (path params, form fields, files)
// 2. Call the service layer
// 3. Write the HTTP response (a rendered page or a redirect with a flash message)
//
// Handlers should NOT contain business logic — they are the "glue" between HTTP and your app.
package handler

import (
	"bytes"
	"fmt"
	"html/template"
	"io/fs"
	"log/slog"
	"net/http"
	"time"

	"github.com/whesley264-oss/Hub-IMG/internal/auth"
)

// pages lists every page template. Each is parsed together with base.html.
var pages = []string{"index", "register", "login", "profile", "image", "error"}

// templateFuncs are available in every template.
var templateFuncs = template.FuncMap{
	"humanBytes": humanBytes,
	"formatTime": func(t time.Time) string { return t.UTC().Format("2006-01-02 15:04 UTC") },
}

// Renderer holds parsed templates so we don't re-parse them on every request.
//
// WHY ONE TEMPLATE SET PER PAGE?
// Every page defines a block called "content". Parsing all pages into one
// set would make the last definition win, so each page gets its own set
// holding base.html plus that page.
type Renderer struct {
	pages         map[string]*template.Template
	secureCookies bool
	logger        *slog.Logger
}

// NewRenderer parses base.html plus each page under templates/ in fsys.
func NewRenderer(fsys fs.FS, secureCookies bool, logger *slog.Logger) (*Renderer, error) {
	r := &Renderer{
		pages:         make(map[string]*template.Template, len(pages)),
		secureCookies: secureCookies,
		logger:        logger,
	}

	for _, page := range pages {
		tmpl, err := template.New(page).Funcs(templateFuncs).ParseFS(fsys,
			"templates/base.html",
			"templates/"+page+".html",
		)
		if err != nil {
			return nil, fmt.Errorf("handler: parsing %s template: %w", page, err)
		}
		r.pages[page] = tmpl
	}
	return r, nil
}

// pageData is what every template receives. Page-specific values go in Data.
type pageData struct {
	Title    string
	LoggedIn bool
	Flashes  []Flash
	Data     any
}

// Render writes a full page.
//
// Flashes queued by an earlier request (usually the one that redirected
// here) are shown and consumed; extra flashes are shown after them.
//
// The page is rendered into a buffer first, so a template error becomes
// a clean 500 instead of half a page.
func (rn *Renderer) Render(w http.ResponseWriter, r *http.Request, status int, page, title string, data any, extra ...Flash) {
	tmpl, ok := rn.pages[page]
	if !ok {
		rn.logger.ErrorContext(r.Context(), "unknown page template", slog.String("page", page))
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	_, loggedIn := auth.UserIDFromContext(r.Context())
	flashes := append(popFlashes(w, r, rn.secureCookies), extra...)

	var buf bytes.Buffer
	err := tmpl.ExecuteTemplate(&buf, "base", pageData{
		Title:    title,
		LoggedIn: loggedIn,
		Flashes:  flashes,
		Data:     data,
	})
	if err != nil {
		rn.logger.ErrorContext(r.Context(), "template execution failed",
			slog.String("page", page),
			slog.String("error", err.Error()),
		)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	// Set content type header BEFORE writing the body
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if _, err := buf.WriteTo(w); err != nil {
		rn.logger.DebugContext(r.Context(), "writing page failed", slog.String("error", err.Error()))
	}
}

// humanBytes formats a byte count with a binary unit.
func humanBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
