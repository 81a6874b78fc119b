// Package main is the entry point for the Hub-IMG server.
//
// MAIN PACKAGE IN GO:
// Every Go program starts execution in the main() function of the "main" package.
// The main package should be kept minimal. Its job is to read configuration,
// create the logger and start the application.
//
// All actual logic lives in imported packages (internal/server, internal/handler, etc.).
// This separation makes the app testable and its components reusable.
//
// WHY cmd/server/?
// The cmd/ directory is a Go convention for executable entry points.
// A project might have multiple executables (e.g., cmd/server, cmd/migrate, cmd/cli).
// Each gets its own directory with its own main.go.
package main

import (
	"log/slog"
	"os"
	"path/filepath"

	"github.com/whesley264-oss/Hub-IMG/internal/config"
	"github.com/whesley264-oss/Hub-IMG/internal/server"
)

func main() {
	// === 1. READ CONFIGURATION ===
	// config.Load reads an optional config.yml from the working directory and
	// lets environment variables (PORT, DB_PATH, SESSION_SECRET, ...) override it.
	// Nothing is logged yet because the log level itself comes from config.
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// === 2. SET UP LOGGING ===
	// slog.NewTextHandler outputs human-readable logs. LOG_LEVEL picks the
	// minimum level: debug, info, warn or error.
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.SlogLevel(),
	}))

	// === 3. SESSION SECRET ===
	// SESSION_SECRET signs session cookies. Use:
	//   SESSION_SECRET=$(openssl rand -hex 32)
	// Without one, a random secret is generated and every restart logs everyone out.
	generated, err := cfg.EnsureSecret()
	if err != nil {
		logger.Error("failed to generate session secret", slog.String("error", err.Error()))
		os.Exit(1)
	}
	if generated {
		logger.Warn("SESSION_SECRET not set, using a random secret; sessions will not survive a restart")
	}

	// === 4. DATABASE DIRECTORY ===
	// os.MkdirAll creates all parent directories if needed (like `mkdir -p`).
	// The upload directory is created by the storage layer itself.
	if cfg.DBPath != ":memory:" {
		dbDir := filepath.Dir(cfg.DBPath)
		if err := os.MkdirAll(dbDir, 0755); err != nil {
			logger.Error("failed to create database directory",
				slog.String("dir", dbDir),
				slog.String("error", err.Error()),
			)
			os.Exit(1)
		}
	}

	// === 5. CREATE AND START THE SERVER ===
	srv, err := server.New(*cfg, logger)
	if err != nil {
		logger.Error("failed to create server", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Start() blocks until the server is shut down (via Ctrl+C or SIGTERM)
	if err := srv.Start(); err != nil {
		logger.Error("server error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
