package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/whesley264-oss/Hub-IMG/internal/apperror"
	"github.com/whesley264-oss/Hub-IMG/internal/model"
	"github.com/whesley264-oss/Hub-IMG/internal/repository"
)

// ErrNoSession means the request carries no usable session: the token is
// missing, forged, expired, or its session row was deleted by a logout.
var ErrNoSession = errors.New("auth: no active session")

// SessionManager ties a signed token to a revocable session row.
type SessionManager struct {
	tokens   *TokenService
	sessions repository.SessionRepository
	ttl      time.Duration
	logger   *slog.Logger

	// now is swapped in tests to move the clock.
	now func() time.Time
}

// NewSessionManager creates a SessionManager issuing sessions that live for ttl.
func NewSessionManager(tokens *TokenService, sessions repository.SessionRepository, ttl time.Duration, logger *slog.Logger) *SessionManager {
	return &SessionManager{
		tokens:   tokens,
		sessions: sessions,
		ttl:      ttl,
		logger:   logger,
		now:      time.Now,
	}
}

// Login opens a new session for userID and returns the cookie token and
// its expiry. Expired sessions of all users are pruned on the way.
func (m *SessionManager) Login(ctx context.Context, userID int64) (string, time.Time, error) {
	now := m.now().UTC()

	if n, err := m.sessions.DeleteExpiredSessions(ctx, now); err != nil {
		// Pruning is housekeeping. A failure must not block the login.
		m.logger.WarnContext(ctx, "pruning expired sessions failed", "error", err)
	} else if n > 0 {
		m.logger.DebugContext(ctx, "pruned expired sessions", "count", n)
	}

	s := &model.Session{
		ID:        uuid.NewString(),
		UserID:    userID,
		CreatedAt: now,
		ExpiresAt: now.Add(m.ttl),
	}
	if err := m.sessions.CreateSession(ctx, s); err != nil {
		return "", time.Time{}, fmt.Errorf("auth: creating session: %w", err)
	}

	token, err := m.tokens.Generate(userID, s.ID, s.ExpiresAt)
	if err != nil {
		return "", time.Time{}, err
	}
	return token, s.ExpiresAt, nil
}

// Resolve returns the user id behind a session token.
// Any reason the token is unusable is reported as ErrNoSession; other
// errors are storage failures.
func (m *SessionManager) Resolve(ctx context.Context, token string) (int64, error) {
	claims, err := m.tokens.Validate(token)
	if err != nil {
		return 0, ErrNoSession
	}

	s, err := m.sessions.GetSession(ctx, claims.SessionID)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return 0, ErrNoSession
		}
		return 0, fmt.Errorf("auth: loading session: %w", err)
	}

	if s.UserID != claims.UserID || s.Expired(m.now()) {
		return 0, ErrNoSession
	}
	return s.UserID, nil
}

// Logout deletes the session behind token. Tokens that no longer verify
// have nothing to revoke, so Logout is a no-op for them.
func (m *SessionManager) Logout(ctx context.Context, token string) error {
	claims, err := m.tokens.Validate(token)
	if err != nil {
		return nil
	}
	if err := m.sessions.DeleteSession(ctx, claims.SessionID); err != nil {
		return fmt.Errorf("auth: deleting session: %w", err)
	}
	return nil
}
