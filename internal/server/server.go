// Package server sets up the HTTP server, router, and all route definitions.
//
// SERVER ARCHITECTURE:
// This package is the "wiring" layer — it connects handlers, middleware, and routes.
// Think of it as the control centre that decides:
// - Which URL patterns map to which handler functions
// - What middleware runs on which routes
// - How the server starts and stops gracefully
//
// The Server value is also the application context: it owns the database
// handle, the upload storage and the session janitor. Nothing is kept in
// package-level variables, so a test can build as many isolated servers
// as it likes.
//
// DEPENDENCY INJECTION FLOW:
//
//	config.Config → Server.New() creates:
//	  sqlite.DB ─┬→ AuthService ─┐
//	             ├→ SessionManager ─→ AuthHandler, LoadSession middleware
//	  LocalDisk ─┴→ ImageService ──→ ImageHandler
package server

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/whesley264-oss/Hub-IMG/internal/auth"
	"github.com/whesley264-oss/Hub-IMG/internal/config"
	"github.com/whesley264-oss/Hub-IMG/internal/handler"
	"github.com/whesley264-oss/Hub-IMG/internal/middleware"
	sqliteRepo "github.com/whesley264-oss/Hub-IMG/internal/repository/sqlite"
	"github.com/whesley264-oss/Hub-IMG/internal/service"
	"github.com/whesley264-oss/Hub-IMG/internal/storage"
	"github.com/whesley264-oss/Hub-IMG/web"
)

// shutdownTimeout is how long in-flight requests get to finish on shutdown.
const shutdownTimeout = 30 * time.Second

// Server represents the HTTP server and all its dependencies.
//
// RESOURCE MANAGEMENT:
// The Server owns a database connection (db) and a background janitor.
// Close releases both; Start calls it on the way out.
type Server struct {
	router    *chi.Mux
	config    config.Config
	logger    *slog.Logger
	db        *sqliteRepo.DB
	files     *storage.LocalDisk
	passwords *auth.PasswordService
	janitor   *auth.Janitor
	metrics   *middleware.Metrics
}

// Option tweaks a Server before it is wired.
type Option func(*Server)

// WithPasswordService replaces the default bcrypt settings. Tests use it
// to drop the cost to the minimum.
func WithPasswordService(p *auth.PasswordService) Option {
	return func(s *Server) { s.passwords = p }
}

// New creates a new Server with the given config.
//
// DEPENDENCY INJECTION & WIRING:
// This is where the entire dependency chain is assembled:
//  1. Open the database and the upload directory
//  2. Create the auth pieces (passwords, tokens, sessions)
//  3. Create the services with the repositories they need
//  4. Create the handlers with the services they need
//  5. Wire handlers to routes
//
// cfg.SessionSecret must already be set (see config.EnsureSecret).
func New(cfg config.Config, logger *slog.Logger, opts ...Option) (*Server, error) {
	tokens, err := auth.NewTokenService(cfg.SessionSecret)
	if err != nil {
		return nil, err
	}

	// === CREATE DATABASE ===
	db, err := sqliteRepo.New(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	files, err := storage.NewLocalDisk(cfg.UploadDir)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("opening upload storage: %w", err)
	}

	s := &Server{
		router:    chi.NewRouter(),
		config:    cfg,
		logger:    logger,
		db:        db,
		files:     files,
		passwords: auth.NewPasswordService(),
		metrics:   middleware.NewMetrics(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.janitor = auth.NewJanitor(db, cfg.SessionSweepInterval, logger)

	sessions := auth.NewSessionManager(tokens, db, cfg.SessionTTL, logger)

	if err := s.setupRoutes(sessions); err != nil {
		db.Close() // Clean up DB if route setup fails
		return nil, fmt.Errorf("setting up routes: %w", err)
	}

	return s, nil
}

// setupRoutes configures all middleware and route handlers.
//
// ROUTE STRUCTURE:
// GET       /                        → Landing page
// GET/POST  /register                → Registration form / create account
// GET/POST  /login                   → Login form / open session
// GET       /logout                  → Close session           (login required)
// GET       /profile                 → Own images + upload form (login required)
// POST      /upload                  → Store an image           (login required)
// GET       /uploads/{filename}      → Raw image bytes
// GET       /delete_image/{imageID}  → Delete own image         (login required)
// GET       /image/{filename}        → Image detail page
// GET       /static/*                → Embedded CSS
// GET       /healthz                 → Database health (JSON)
// GET       /metrics                 → Prometheus metrics
//
// MIDDLEWARE ORDER MATTERS:
// Middleware executes in the order it's added. Our order:
// 1. RequestID — assigns unique ID to each request (for tracing)
// 2. RealIP — extracts real client IP from proxy headers
// 3. Recoverer — catches panics and returns 500 instead of crashing
// 4. Logger — logs each request with timing info
// 5. Metrics — counts and times each request by route pattern
// 6. LoadSession — resolves the session cookie into a user id
func (s *Server) setupRoutes(sessions *auth.SessionManager) error {
	secure := s.config.SecureCookies

	// === Global Middleware ===
	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(chimiddleware.Recoverer)
	s.router.Use(middleware.Logger(s.logger))
	s.router.Use(s.metrics.Middleware)
	s.router.Use(auth.LoadSession(sessions, secure, s.logger))

	// === Static Files ===
	// Served from the embedded filesystem. StripPrefix removes "/static/" so
	// GET /static/style.css → static/style.css inside web.FS.
	static, err := fs.Sub(web.FS, "static")
	if err != nil {
		return fmt.Errorf("locating static assets: %w", err)
	}
	s.router.Handle("/static/*", http.StripPrefix("/static/", http.FileServer(http.FS(static))))

	// === Services ===
	// DEPENDENCY CHAIN:
	//   s.db implements UserRepository, ImageRepository and SessionRepository
	//   s.files implements storage.Storage
	// The handlers never touch the database or the disk directly.
	authService := service.NewAuthService(s.db, s.passwords, s.logger)
	imageService := service.NewImageService(s.db, s.files, s.logger)

	// === Handlers ===
	render, err := handler.NewRenderer(web.FS, secure, s.logger)
	if err != nil {
		return fmt.Errorf("creating renderer: %w", err)
	}
	pages := handler.NewPageHandler(render, s.db)
	authHandler := handler.NewAuthHandler(authService, sessions, render, secure, s.logger)
	imageHandler := handler.NewImageHandler(imageService, authService, render, s.config.MaxUploadMB, secure, s.logger)

	// === Routes ===
	s.router.Get("/", pages.HandleIndex)
	s.router.Get("/register", authHandler.HandleRegisterForm)
	s.router.Post("/register", authHandler.HandleRegister)
	s.router.Get("/login", authHandler.HandleLoginForm)
	s.router.Post("/login", authHandler.HandleLogin)
	s.router.Get("/logout", render.RequireLogin(authHandler.HandleLogout))

	s.router.Get("/profile", render.RequireLogin(imageHandler.HandleProfile))
	s.router.Post("/upload", render.RequireLogin(imageHandler.HandleUpload))
	s.router.Get("/delete_image/{imageID}", render.RequireLogin(imageHandler.HandleDelete))
	s.router.Get("/uploads/{filename}", imageHandler.HandleServeFile)
	s.router.Get("/image/{filename}", imageHandler.HandleImageDetail)

	s.router.Get("/healthz", pages.HandleHealth)
	s.router.Handle("/metrics", s.metrics.Handler())
	s.router.NotFound(pages.HandleNotFound)

	return nil
}

// Handler returns the fully wired router. Tests drive it with httptest.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Close stops the janitor and closes the database.
func (s *Server) Close() error {
	s.janitor.Stop()
	return s.db.Close()
}

// Start starts the HTTP server and handles graceful shutdown.
//
// GRACEFUL SHUTDOWN:
// 1. Stop accepting new HTTP connections
// 2. Wait for in-flight requests to finish (30s timeout)
// 3. Stop the session janitor and close the database (flushes WAL, releases file lock)
func (s *Server) Start() error {
	// Ensure the database is closed when the server stops.
	// This runs AFTER everything else in this function finishes.
	defer func() {
		if err := s.Close(); err != nil {
			s.logger.Error("closing resources failed", slog.String("error", err.Error()))
		}
	}()

	s.janitor.Start()

	// Uploads can be large, so reads and writes get more room than a
	// typical API server; headers must still arrive quickly.
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.config.Port),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       2 * time.Minute,
		WriteTimeout:      2 * time.Minute,
		IdleTimeout:       60 * time.Second,
	}

	// Channel to receive OS signals
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	// Channel to receive server errors
	serverErrors := make(chan error, 1)

	// Start the server in a goroutine (so it doesn't block)
	go func() {
		s.logger.Info("server starting",
			slog.Int("port", s.config.Port),
			slog.String("url", fmt.Sprintf("http://localhost:%d", s.config.Port)),
			slog.String("database", s.config.DBPath),
			slog.String("uploads", s.files.Dir()),
		)
		serverErrors <- srv.ListenAndServe()
	}()

	// Block until we receive a signal or server error
	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}

	case sig := <-quit:
		s.logger.Info("shutdown signal received", slog.String("signal", sig.String()))

		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		s.logger.Info("server stopped gracefully")
	}

	return nil
}
