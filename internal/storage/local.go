package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/rs/xid"

	"github.com/whesley264-oss/Hub-IMG/internal/apperror"
)

// tempPrefix marks partially written files. ValidateName refuses it so a
// stored name can never collide with an in-flight upload.
const tempPrefix = ".tmp-"

// LocalDisk stores files flat in one directory.
type LocalDisk struct {
	dir string
}

var _ Storage = (*LocalDisk)(nil)

// NewLocalDisk creates the directory if needed and returns a LocalDisk on it.
func NewLocalDisk(dir string) (*LocalDisk, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("storage: creating upload dir: %w", err)
	}
	return &LocalDisk{dir: dir}, nil
}

// Dir returns the directory files are stored in.
func (d *LocalDisk) Dir() string { return d.dir }

// Put streams r into a temp file and then links it into place, so readers
// see either nothing or the complete file.
func (d *LocalDisk) Put(ctx context.Context, name string, r io.Reader) (int64, error) {
	if err := ValidateName(name); err != nil {
		return 0, err
	}

	tmp, err := os.CreateTemp(d.dir, tempPrefix+xid.New().String()+"-*")
	if err != nil {
		return 0, fmt.Errorf("storage: creating temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	n, err := io.Copy(tmp, &ctxReader{ctx: ctx, r: r})
	if err != nil {
		tmp.Close()
		return 0, fmt.Errorf("storage: writing %s: %w", name, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return 0, fmt.Errorf("storage: syncing %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		return 0, fmt.Errorf("storage: closing %s: %w", name, err)
	}

	// Link, unlike Rename, fails instead of replacing an existing file.
	if err := os.Link(tmpPath, d.path(name)); err != nil {
		if errors.Is(err, fs.ErrExist) {
			return 0, apperror.Conflict("file", name)
		}
		return 0, fmt.Errorf("storage: publishing %s: %w", name, err)
	}
	return n, nil
}

// Open opens a stored file for reading.
func (d *LocalDisk) Open(_ context.Context, name string) (*Object, error) {
	if err := ValidateName(name); err != nil {
		return nil, apperror.NotFound("file", name)
	}

	f, err := os.Open(d.path(name))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, apperror.NotFound("file", name)
		}
		return nil, fmt.Errorf("storage: opening %s: %w", name, err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("storage: stat %s: %w", name, err)
	}
	if !info.Mode().IsRegular() {
		f.Close()
		return nil, apperror.NotFound("file", name)
	}

	return &Object{ReadSeekCloser: f, Size: info.Size(), ModTime: info.ModTime()}, nil
}

// Delete removes a stored file. A file that is already gone is fine.
func (d *LocalDisk) Delete(_ context.Context, name string) error {
	if err := ValidateName(name); err != nil {
		return err
	}
	if err := os.Remove(d.path(name)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("storage: removing %s: %w", name, err)
	}
	return nil
}

func (d *LocalDisk) path(name string) string {
	return filepath.Join(d.dir, name)
}

// ctxReader stops a copy once the request that feeds it is cancelled.
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
