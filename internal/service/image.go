package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/whesley264-oss/Hub-IMG/internal/apperror"
	"github.com/whesley264-oss/Hub-IMG/internal/model"
	"github.com/whesley264-oss/Hub-IMG/internal/repository"
	"github.com/whesley264-oss/Hub-IMG/internal/storage"
)

// sniffLen is how many leading bytes content detection looks at.
const sniffLen = 512

// ImageService is the upload and ownership gateway: it keeps the image
// rows and the stored files in step, and it is the only place that
// decides who may delete an image.
//
// CONSISTENCY RULES:
//   - Upload writes the file first and the row second. If the row insert
//     fails, the file is removed again, so a row never points at nothing.
//   - Delete removes the row first and the file second. A file that is
//     already gone counts as removed; other disk errors are logged, not
//     returned, because the image no longer exists as far as users can tell.
type ImageService struct {
	images repository.ImageRepository
	files  storage.Storage
	logger *slog.Logger
}

// NewImageService creates an ImageService.
func NewImageService(images repository.ImageRepository, files storage.Storage, logger *slog.Logger) *ImageService {
	return &ImageService{
		images: images,
		files:  files,
		logger: logger,
	}
}

// Upload stores body as a new image owned by ownerID.
//
// originalName is the client's file name. It is only used, sanitised, as
// the readable tail of the generated storage name. An empty name or a nil
// body is an empty upload (apperror.ErrValidation on field "image").
func (s *ImageService) Upload(ctx context.Context, ownerID int64, originalName string, body io.Reader) (*model.Image, error) {
	// === VALIDATION ===
	if body == nil || strings.TrimSpace(originalName) == "" {
		return nil, apperror.ValidationFailed("image", "no file selected")
	}
	if ownerID <= 0 {
		return nil, apperror.ValidationFailed("owner", "owner ID must be positive")
	}

	// Peek at the head to record a content type, then put it back in front.
	head := make([]byte, sniffLen)
	n, err := io.ReadFull(body, head)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		return nil, fmt.Errorf("service/image: reading upload: %w", err)
	}
	head = head[:n]
	contentType := http.DetectContentType(head)

	name := UniqueFilename(originalName)

	// === WRITE THE FILE ===
	size, err := s.files.Put(ctx, name, io.MultiReader(bytes.NewReader(head), body))
	if err != nil {
		if errors.Is(err, apperror.ErrConflict) {
			return nil, err
		}
		return nil, fmt.Errorf("service/image: storing %s: %w", name, err)
	}

	// === RECORD THE ROW ===
	img := &model.Image{
		Filename:     name,
		OwnerID:      ownerID,
		OriginalName: originalName,
		ContentType:  contentType,
		Size:         size,
	}
	if err := s.images.CreateImage(ctx, img); err != nil {
		// The request may have been cancelled; the cleanup must still run.
		if rmErr := s.files.Delete(context.WithoutCancel(ctx), name); rmErr != nil {
			s.logger.ErrorContext(ctx, "removing orphaned upload failed",
				slog.String("filename", name),
				slog.String("error", rmErr.Error()),
			)
		}
		if errors.Is(err, apperror.ErrConflict) {
			return nil, err
		}
		return nil, fmt.Errorf("service/image: recording %s: %w", name, err)
	}

	s.logger.InfoContext(ctx, "image uploaded",
		slog.Int64("imageID", img.ID),
		slog.Int64("ownerID", ownerID),
		slog.String("filename", name),
		slog.Int64("size", size),
	)
	return img, nil
}

// Delete removes an image on behalf of requesterID.
//
// Returns apperror.ErrNotFound if the image does not exist (including when
// a concurrent delete got there first) and apperror.ErrForbidden if the
// requester is not the owner. A forbidden request changes nothing.
func (s *ImageService) Delete(ctx context.Context, requesterID, imageID int64) error {
	img, err := s.images.GetImageByID(ctx, imageID)
	if err != nil {
		return err
	}

	if img.OwnerID != requesterID {
		s.logger.WarnContext(ctx, "delete rejected: not the owner",
			slog.Int64("imageID", imageID),
			slog.Int64("ownerID", img.OwnerID),
			slog.Int64("requesterID", requesterID),
		)
		return apperror.Forbidden("you do not have permission to delete this image")
	}

	if err := s.images.DeleteImage(ctx, imageID); err != nil {
		return err
	}

	if err := s.files.Delete(context.WithoutCancel(ctx), img.Filename); err != nil {
		s.logger.WarnContext(ctx, "image row deleted but file removal failed",
			slog.String("filename", img.Filename),
			slog.String("error", err.Error()),
		)
	}

	s.logger.InfoContext(ctx, "image deleted",
		slog.Int64("imageID", imageID),
		slog.Int64("ownerID", img.OwnerID),
		slog.String("filename", img.Filename),
	)
	return nil
}

// ListByOwner returns the owner's images in upload order.
func (s *ImageService) ListByOwner(ctx context.Context, ownerID int64) ([]model.Image, error) {
	images, err := s.images.ListImagesByOwner(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("service/image: listing images for user %d: %w", ownerID, err)
	}
	return images, nil
}

// GetByID returns one image's metadata.
func (s *ImageService) GetByID(ctx context.Context, id int64) (*model.Image, error) {
	return s.images.GetImageByID(ctx, id)
}

// GetByFilename returns one image's metadata by its storage name.
func (s *ImageService) GetByFilename(ctx context.Context, filename string) (*model.Image, error) {
	return s.images.GetImageByFilename(ctx, filename)
}

// Open resolves filename through the image rows and opens the stored file.
//
// Only names that have a row are ever opened, so a request path can't
// reach any other file in (or outside) the upload directory.
// The caller must close the returned object.
func (s *ImageService) Open(ctx context.Context, filename string) (*model.Image, *storage.Object, error) {
	img, err := s.images.GetImageByFilename(ctx, filename)
	if err != nil {
		return nil, nil, err
	}

	obj, err := s.files.Open(ctx, img.Filename)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			s.logger.WarnContext(ctx, "image row has no stored file", slog.String("filename", img.Filename))
		}
		return nil, nil, err
	}
	return img, obj, nil
}
