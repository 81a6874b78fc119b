package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"time"

	"github.com/whesley264-oss/Hub-IMG/internal/apperror"
	"github.com/whesley264-oss/Hub-IMG/internal/model"
	"github.com/whesley264-oss/Hub-IMG/internal/repository"
)

// COMPILE-TIME INTERFACE CHECK:
// `var _ X = (*Y)(nil)` fails to compile if *Y stops implementing X.
var _ repository.ImageRepository = (*DB)(nil)

const imageColumns = `id, filename, owner_id, original_name, content_type, size_bytes, created_at`

// CreateImage inserts a new image row.
//
// The filename UNIQUE constraint is the defensive DuplicateFilename check.
// Generated names carry a 128-bit random prefix so this should never fire,
// but if it does the caller gets apperror.ErrConflict rather than a silently
// shared file. The owner_id foreign key rejects rows for unknown users.
func (db *DB) CreateImage(ctx context.Context, img *model.Image) error {
	img.CreatedAt = time.Now().UTC()

	res, err := db.conn.ExecContext(ctx,
		`INSERT INTO images (filename, owner_id, original_name, content_type, size_bytes, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		img.Filename,
		img.OwnerID,
		img.OriginalName,
		img.ContentType,
		img.Size,
		img.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperror.Conflict("image", img.Filename)
		}
		return fmt.Errorf("sqlite: inserting image: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("sqlite: reading new image id: %w", err)
	}
	img.ID = id

	return nil
}

// GetImageByID retrieves a single image by id.
//
// sql.ErrNoRows is translated to apperror.NotFound so the handler can
// answer 404 without knowing anything about SQL.
func (db *DB) GetImageByID(ctx context.Context, id int64) (*model.Image, error) {
	img, err := scanImage(db.conn.QueryRowContext(ctx,
		`SELECT `+imageColumns+` FROM images WHERE id = ?`, id,
	))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("image", strconv.FormatInt(id, 10))
		}
		return nil, fmt.Errorf("sqlite: getting image %d: %w", id, err)
	}
	return img, nil
}

// GetImageByFilename retrieves a single image by its stored filename.
func (db *DB) GetImageByFilename(ctx context.Context, filename string) (*model.Image, error) {
	img, err := scanImage(db.conn.QueryRowContext(ctx,
		`SELECT `+imageColumns+` FROM images WHERE filename = ?`, filename,
	))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("image", filename)
		}
		return nil, fmt.Errorf("sqlite: getting image %q: %w", filename, err)
	}
	return img, nil
}

// ListImagesByOwner returns every image owned by ownerID, oldest first.
//
// defer rows.Close() — ABSOLUTELY CRITICAL:
// sql.Rows holds a pooled connection until closed. Leaking it eventually
// exhausts the pool and every request hangs.
func (db *DB) ListImagesByOwner(ctx context.Context, ownerID int64) ([]model.Image, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT `+imageColumns+` FROM images WHERE owner_id = ? ORDER BY id`, ownerID,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing images for user %d: %w", ownerID, err)
	}
	defer rows.Close()

	images := make([]model.Image, 0)
	for rows.Next() {
		var img model.Image
		if err := rows.Scan(
			&img.ID, &img.Filename, &img.OwnerID, &img.OriginalName,
			&img.ContentType, &img.Size, &img.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("sqlite: scanning image row: %w", err)
		}
		images = append(images, img)
	}

	// rows.Err() catches failures that happened during iteration.
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating images: %w", err)
	}

	return images, nil
}

// DeleteImage removes an image row by id.
//
// RowsAffected == 0 means the row was already gone. When two requests delete
// the same image at once, SQLite serialises the DELETEs: the first removes
// the row, the second affects nothing and reports NotFound.
func (db *DB) DeleteImage(ctx context.Context, id int64) error {
	result, err := db.conn.ExecContext(ctx, `DELETE FROM images WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("sqlite: deleting image %d: %w", id, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return apperror.NotFound("image", strconv.FormatInt(id, 10))
	}

	return nil
}

func scanImage(row *sql.Row) (*model.Image, error) {
	var img model.Image
	if err := row.Scan(
		&img.ID, &img.Filename, &img.OwnerID, &img.OriginalName,
		&img.ContentType, &img.Size, &img.CreatedAt,
	); err != nil {
		return nil, err
	}
	return &img, nil
}
