package sqlite

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/whesley264-oss/Hub-IMG/internal/apperror"
	"github.com/whesley264-oss/Hub-IMG/internal/model"
)

func createTestImage(t *testing.T, db *DB, ownerID int64, filename string) *model.Image {
	t.Helper()
	img := &model.Image{
		Filename:     filename,
		OwnerID:      ownerID,
		OriginalName: "photo.png",
		ContentType:  "image/png",
		Size:         3,
	}
	if err := db.CreateImage(context.Background(), img); err != nil {
		t.Fatalf("failed to create test image: %v", err)
	}
	return img
}

// =========================================================================
// CREATE TESTS
// =========================================================================

func TestCreateImage(t *testing.T) {
	db := newTestDB(t)
	owner := createTestUser(t, db, "alice")

	img := createTestImage(t, db, owner.ID, "abc-photo.png")

	if img.ID == 0 {
		t.Error("CreateImage() did not set img.ID")
	}
	if img.CreatedAt.IsZero() {
		t.Error("CreateImage() did not set img.CreatedAt")
	}
}

func TestCreateImage_DuplicateFilename(t *testing.T) {
	db := newTestDB(t)
	owner := createTestUser(t, db, "alice")
	createTestImage(t, db, owner.ID, "abc-photo.png")

	err := db.CreateImage(context.Background(), &model.Image{Filename: "abc-photo.png", OwnerID: owner.ID})
	if !errors.Is(err, apperror.ErrConflict) {
		t.Errorf("CreateImage() error = %v, want ErrConflict", err)
	}
}

func TestCreateImage_UnknownOwnerRejected(t *testing.T) {
	db := newTestDB(t)

	err := db.CreateImage(context.Background(), &model.Image{Filename: "orphan.png", OwnerID: 12345})
	if err == nil {
		t.Fatal("CreateImage() should fail when owner_id references no user")
	}
	if errors.Is(err, apperror.ErrConflict) {
		t.Errorf("foreign key failure reported as ErrConflict: %v", err)
	}
}

// =========================================================================
// GET TESTS
// =========================================================================

func TestGetImageByID(t *testing.T) {
	db := newTestDB(t)
	owner := createTestUser(t, db, "alice")
	created := createTestImage(t, db, owner.ID, "abc-photo.png")

	found, err := db.GetImageByID(context.Background(), created.ID)
	if err != nil {
		t.Fatalf("GetImageByID() error = %v", err)
	}
	if found.Filename != "abc-photo.png" {
		t.Errorf("Filename = %q, want %q", found.Filename, "abc-photo.png")
	}
	if found.OwnerID != owner.ID {
		t.Errorf("OwnerID = %d, want %d", found.OwnerID, owner.ID)
	}
	if found.ContentType != "image/png" || found.Size != 3 || found.OriginalName != "photo.png" {
		t.Errorf("metadata not persisted: %+v", found)
	}
}

func TestGetImageByFilename(t *testing.T) {
	db := newTestDB(t)
	owner := createTestUser(t, db, "alice")
	created := createTestImage(t, db, owner.ID, "abc-photo.png")

	found, err := db.GetImageByFilename(context.Background(), "abc-photo.png")
	if err != nil {
		t.Fatalf("GetImageByFilename() error = %v", err)
	}
	if found.ID != created.ID {
		t.Errorf("ID = %d, want %d", found.ID, created.ID)
	}
}

func TestGetImage_NotFound(t *testing.T) {
	db := newTestDB(t)

	if _, err := db.GetImageByID(context.Background(), 1); !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("GetImageByID() error = %v, want ErrNotFound", err)
	}
	if _, err := db.GetImageByFilename(context.Background(), "nope.png"); !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("GetImageByFilename() error = %v, want ErrNotFound", err)
	}
}

// =========================================================================
// LIST TESTS
// =========================================================================

func TestListImagesByOwner(t *testing.T) {
	db := newTestDB(t)
	alice := createTestUser(t, db, "alice")
	bob := createTestUser(t, db, "bob")

	for i := 0; i < 3; i++ {
		createTestImage(t, db, alice.ID, fmt.Sprintf("alice-%d.png", i))
	}
	createTestImage(t, db, bob.ID, "bob-0.png")

	images, err := db.ListImagesByOwner(context.Background(), alice.ID)
	if err != nil {
		t.Fatalf("ListImagesByOwner() error = %v", err)
	}
	if len(images) != 3 {
		t.Fatalf("len(images) = %d, want 3", len(images))
	}
	for i, img := range images {
		if img.OwnerID != alice.ID {
			t.Errorf("images[%d].OwnerID = %d, want %d", i, img.OwnerID, alice.ID)
		}
		if want := fmt.Sprintf("alice-%d.png", i); img.Filename != want {
			t.Errorf("images[%d].Filename = %q, want %q (insertion order)", i, img.Filename, want)
		}
	}
}

func TestListImagesByOwner_EmptyIsNotNil(t *testing.T) {
	db := newTestDB(t)
	alice := createTestUser(t, db, "alice")

	images, err := db.ListImagesByOwner(context.Background(), alice.ID)
	if err != nil {
		t.Fatalf("ListImagesByOwner() error = %v", err)
	}
	if images == nil || len(images) != 0 {
		t.Errorf("ListImagesByOwner() = %#v, want empty non-nil slice", images)
	}
}

// =========================================================================
// DELETE TESTS
// =========================================================================

func TestDeleteImage(t *testing.T) {
	db := newTestDB(t)
	owner := createTestUser(t, db, "alice")
	img := createTestImage(t, db, owner.ID, "abc-photo.png")

	if err := db.DeleteImage(context.Background(), img.ID); err != nil {
		t.Fatalf("DeleteImage() error = %v", err)
	}

	if _, err := db.GetImageByID(context.Background(), img.ID); !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("GetImageByID() after delete error = %v, want ErrNotFound", err)
	}
}

func TestDeleteImage_NotFound(t *testing.T) {
	db := newTestDB(t)

	if err := db.DeleteImage(context.Background(), 77); !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("DeleteImage() error = %v, want ErrNotFound", err)
	}
}

func TestDeleteImage_ConcurrentDeletesOneWins(t *testing.T) {
	db := newFileTestDB(t)
	owner := createTestUser(t, db, "alice")
	img := createTestImage(t, db, owner.ID, "abc-photo.png")

	const workers = 6
	errs := make([]error, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = db.DeleteImage(context.Background(), img.ID)
		}(i)
	}
	wg.Wait()

	var ok, notFound int
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, apperror.ErrNotFound):
			notFound++
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}
	if ok != 1 || notFound != workers-1 {
		t.Errorf("ok = %d, notFound = %d; want 1 and %d", ok, notFound, workers-1)
	}
}

func TestImageIDsNotReusedAfterDelete(t *testing.T) {
	db := newTestDB(t)
	owner := createTestUser(t, db, "alice")

	first := createTestImage(t, db, owner.ID, "first.png")
	if err := db.DeleteImage(context.Background(), first.ID); err != nil {
		t.Fatalf("DeleteImage() error = %v", err)
	}
	second := createTestImage(t, db, owner.ID, "second.png")

	if second.ID == first.ID {
		t.Errorf("image id %d was reused after delete", first.ID)
	}
}

// TestOwnerWithImagesCannotBeDeleted pins the ON DELETE RESTRICT policy.
func TestOwnerWithImagesCannotBeDeleted(t *testing.T) {
	db := newTestDB(t)
	owner := createTestUser(t, db, "alice")
	createTestImage(t, db, owner.ID, "abc-photo.png")

	_, err := db.conn.ExecContext(context.Background(), `DELETE FROM users WHERE id = ?`, owner.ID)
	if err == nil {
		t.Fatal("deleting a user who owns images should violate the foreign key")
	}
}
