// Package sqlite implements the repository interfaces using SQLite as the storage backend.
//
// WHY SQLITE?
// SQLite is an embedded database: it lives inside the Go binary and keeps
// everything in a single file. The app is single-node by design, so there is
// no database server to run. Tests use ":memory:" or a file under t.TempDir().
//
// WHY modernc.org/sqlite INSTEAD OF github.com/mattn/go-sqlite3?
// mattn/go-sqlite3 uses CGo, which needs a C compiler and makes
// cross-compilation painful. modernc.org/sqlite is a pure Go translation of
// the SQLite C code.
//
// DATABASE/SQL OVERVIEW:
//   - sql.DB      — a connection pool (NOT a single connection!)
//   - sql.Row     — a single result row
//   - sql.Rows    — multiple result rows (must be closed!)
//
// The pattern is always:
//  1. sql.Open(driverName, dataSourceName) → creates a pool
//  2. db.QueryContext / db.ExecContext     → runs queries
//  3. rows.Scan(&field1, &field2)          → reads results into Go variables
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	// DRIVER IMPORT:
	// The driver's init() registers itself with database/sql under the name
	// "sqlite". We import it by name (not blank) because isUniqueViolation
	// inspects its *Error type; the alias avoids clashing with this package.
	sqlitedriver "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// connParams are applied by the driver to EVERY pooled connection.
//
// PER-CONNECTION PRAGMAS:
// foreign_keys and busy_timeout are connection settings, not database
// settings. Running `PRAGMA foreign_keys=ON` once with conn.Exec only
// configures whichever pooled connection happened to run it. The _pragma
// DSN parameters make the driver run them each time it opens a connection.
//
//   - foreign_keys(1)     → enforce images.owner_id → users.id
//   - busy_timeout(5000)  → wait up to 5s for a writer lock instead of failing
//     with SQLITE_BUSY when concurrent requests write at once
//   - journal_mode(WAL)   → readers don't block the writer
//   - _time_format=sqlite → store times as "2006-01-02 15:04:05.999999999-07:00"
//     so expires_at can be compared in SQL
var connParams = []string{
	"_pragma=foreign_keys(1)",
	"_pragma=busy_timeout(5000)",
	"_pragma=journal_mode(WAL)",
	"_time_format=sqlite",
}

// DB wraps a sql.DB connection pool and provides repository methods.
// It implements repository.UserRepository, repository.ImageRepository and
// repository.SessionRepository.
type DB struct {
	conn *sql.DB
}

// New opens the SQLite database at dbPath and runs migrations.
//
// dbPath examples:
//   - "data/hubimg.db"  → file-based database (persistent)
//   - ":memory:"        → in-memory database (tests; lost on close)
func New(dbPath string) (*DB, error) {
	conn, err := sql.Open("sqlite", dbPath+"?"+strings.Join(connParams, "&"))
	if err != nil {
		return nil, fmt.Errorf("sqlite: opening database: %w", err)
	}

	// IN-MEMORY DATABASES AND THE POOL:
	// Every connection to ":memory:" gets its OWN empty database. With a pool
	// of several connections, a table created on one would be missing on the
	// next. A single connection keeps every query on the same database.
	if dbPath == ":memory:" {
		conn.SetMaxOpenConns(1)
	}

	// Ping verifies the connection actually works, so a bad path or
	// permissions problem surfaces here and not on the first request.
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: pinging database: %w", err)
	}

	db := &DB{conn: conn}

	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: running migrations: %w", err)
	}

	return db, nil
}

// Close closes the database connection pool.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Ping reports whether the database is reachable.
func (db *DB) Ping(ctx context.Context) error {
	return db.conn.PingContext(ctx)
}

// migrate creates the schema.
//
// CREATE TABLE IF NOT EXISTS is idempotent, so this runs on every start.
//
// OWNERSHIP AND DELETION POLICY:
//   - images.owner_id uses ON DELETE RESTRICT: a user who still owns images
//     cannot be removed. There is no delete-account path today; the
//     constraint makes the rule explicit for when one is added.
//   - sessions.user_id uses ON DELETE CASCADE: sessions die with the user.
//
// AUTOINCREMENT keeps ids from being reused after a delete, so a stale
// /delete_image/{id} link can never hit a newer image.
func (db *DB) migrate() error {
	_, err := db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS users (
			id            INTEGER PRIMARY KEY AUTOINCREMENT,
			username      TEXT NOT NULL UNIQUE,
			password_hash TEXT NOT NULL,
			created_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
	`)
	if err != nil {
		return fmt.Errorf("creating users table: %w", err)
	}

	_, err = db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS images (
			id            INTEGER PRIMARY KEY AUTOINCREMENT,
			filename      TEXT NOT NULL UNIQUE,
			owner_id      INTEGER NOT NULL REFERENCES users(id) ON DELETE RESTRICT,
			original_name TEXT NOT NULL DEFAULT '',
			content_type  TEXT NOT NULL DEFAULT '',
			size_bytes    INTEGER NOT NULL DEFAULT 0,
			created_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
		CREATE INDEX IF NOT EXISTS idx_images_owner_id ON images(owner_id);
	`)
	if err != nil {
		return fmt.Errorf("creating images table: %w", err)
	}

	_, err = db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS sessions (
			id         TEXT PRIMARY KEY,
			user_id    INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			created_at DATETIME NOT NULL,
			expires_at DATETIME NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_sessions_expires_at ON sessions(expires_at);
	`)
	if err != nil {
		return fmt.Errorf("creating sessions table: %w", err)
	}

	return nil
}

// isUniqueViolation reports whether err is SQLite rejecting a duplicate value
// for a UNIQUE or PRIMARY KEY column.
//
// The UNIQUE constraint is the single source of truth for "username taken"
// and "filename taken". Checking first and inserting second would race: two
// concurrent registrations could both pass the check.
func isUniqueViolation(err error) bool {
	var sqliteErr *sqlitedriver.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
			return true
		}
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
