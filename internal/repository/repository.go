// Package repository declares the storage contracts the services depend on.
// The sqlite sub-package implements all of them on a single *sqlite.DB.
package repository

import (
	"context"
	"time"

	"github.com/whesley264-oss/Hub-IMG/internal/model"
)

// UserRepository is the persistence side of the Credential Store.
type UserRepository interface {
	// CreateUser inserts the user and fills in ID and CreatedAt.
	// A taken username yields apperror.ErrConflict.
	CreateUser(ctx context.Context, user *model.User) error
	GetUserByID(ctx context.Context, id int64) (*model.User, error)
	GetUserByUsername(ctx context.Context, username string) (*model.User, error)
}

// ImageRepository is the Image Store.
type ImageRepository interface {
	// CreateImage inserts the row and fills in ID and CreatedAt.
	// A taken filename yields apperror.ErrConflict.
	CreateImage(ctx context.Context, img *model.Image) error
	GetImageByID(ctx context.Context, id int64) (*model.Image, error)
	GetImageByFilename(ctx context.Context, filename string) (*model.Image, error)
	// ListImagesByOwner returns the owner's images in insertion order.
	ListImagesByOwner(ctx context.Context, ownerID int64) ([]model.Image, error)
	// DeleteImage removes the row; apperror.ErrNotFound if it was already gone.
	DeleteImage(ctx context.Context, id int64) error
}

// SessionRepository stores server-side login sessions.
type SessionRepository interface {
	CreateSession(ctx context.Context, s *model.Session) error
	GetSession(ctx context.Context, id string) (*model.Session, error)
	DeleteSession(ctx context.Context, id string) error
	DeleteExpiredSessions(ctx context.Context, now time.Time) (int64, error)
}
