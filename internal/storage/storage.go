// Package storage keeps uploaded image bytes, addressed by stored filename.
package storage

import (
	"context"
	"io"
	"strings"
	"time"

	"github.com/whesley264-oss/Hub-IMG/internal/apperror"
)

// Storage is the blob side of an image. Metadata lives in the repository.
type Storage interface {
	// Put writes r under name and returns the byte count. It never
	// overwrites: an existing name yields apperror.ErrConflict.
	Put(ctx context.Context, name string, r io.Reader) (int64, error)
	// Open returns the stored bytes; apperror.ErrNotFound if absent.
	Open(ctx context.Context, name string) (*Object, error)
	// Delete removes name. Removing an absent name succeeds.
	Delete(ctx context.Context, name string) error
}

// Object is an opened stored file. The caller must Close it.
type Object struct {
	io.ReadSeekCloser
	Size    int64
	ModTime time.Time
}

// ValidateName rejects anything that is not a single plain path element.
func ValidateName(name string) error {
	switch {
	case name == "", name == ".", name == "..":
		return apperror.ValidationFailed("filename", "filename is empty or reserved")
	case strings.ContainsAny(name, "/\\\x00"):
		return apperror.ValidationFailed("filename", "filename must not contain path separators")
	case strings.HasPrefix(name, tempPrefix):
		return apperror.ValidationFailed("filename", "filename uses a reserved prefix")
	}
	return nil
}
