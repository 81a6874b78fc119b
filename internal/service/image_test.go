package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/whesley264-oss/Hub-IMG/internal/apperror"
	"github.com/whesley264-oss/Hub-IMG/internal/model"
	"github.com/whesley264-oss/Hub-IMG/internal/storage"
)

// =========================================================================
// FAKES
// =========================================================================

type fakeImageRepo struct {
	mu        sync.Mutex
	images    map[int64]model.Image
	nextID    int64
	createErr error
}

func newFakeImageRepo() *fakeImageRepo {
	return &fakeImageRepo{images: make(map[int64]model.Image), nextID: 1}
}

func (f *fakeImageRepo) CreateImage(_ context.Context, img *model.Image) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return f.createErr
	}
	for _, existing := range f.images {
		if existing.Filename == img.Filename {
			return apperror.Conflict("image", img.Filename)
		}
	}
	img.ID = f.nextID
	f.nextID++
	img.CreatedAt = time.Now()
	f.images[img.ID] = *img
	return nil
}

func (f *fakeImageRepo) GetImageByID(_ context.Context, id int64) (*model.Image, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	img, ok := f.images[id]
	if !ok {
		return nil, apperror.NotFound("image", fmt.Sprint(id))
	}
	return &img, nil
}

func (f *fakeImageRepo) GetImageByFilename(_ context.Context, filename string) (*model.Image, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, img := range f.images {
		if img.Filename == filename {
			return &img, nil
		}
	}
	return nil, apperror.NotFound("image", filename)
}

func (f *fakeImageRepo) ListImagesByOwner(_ context.Context, ownerID int64) ([]model.Image, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]model.Image, 0)
	for id := int64(1); id < f.nextID; id++ {
		if img, ok := f.images[id]; ok && img.OwnerID == ownerID {
			out = append(out, img)
		}
	}
	return out, nil
}

func (f *fakeImageRepo) DeleteImage(_ context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.images[id]; !ok {
		return apperror.NotFound("image", fmt.Sprint(id))
	}
	delete(f.images, id)
	return nil
}

// fakeStorage keeps files in memory.
type fakeStorage struct {
	mu        sync.Mutex
	files     map[string][]byte
	putErr    error
	deleteErr error
}

func newFakeStorage() *fakeStorage {
	return &fakeStorage{files: make(map[string][]byte)}
}

func (f *fakeStorage) Put(_ context.Context, name string, r io.Reader) (int64, error) {
	if err := storage.ValidateName(name); err != nil {
		return 0, err
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return 0, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.putErr != nil {
		return 0, f.putErr
	}
	if _, ok := f.files[name]; ok {
		return 0, apperror.Conflict("file", name)
	}
	f.files[name] = data
	return int64(len(data)), nil
}

func (f *fakeStorage) Open(_ context.Context, name string) (*storage.Object, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.files[name]
	if !ok {
		return nil, apperror.NotFound("file", name)
	}
	return &storage.Object{
		ReadSeekCloser: nopSeekCloser{bytes.NewReader(data)},
		Size:           int64(len(data)),
		ModTime:        time.Now(),
	}, nil
}

func (f *fakeStorage) Delete(_ context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.deleteErr != nil {
		return f.deleteErr
	}
	delete(f.files, name)
	return nil
}

func (f *fakeStorage) has(name string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.files[name]
	return ok
}

func (f *fakeStorage) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.files)
}

type nopSeekCloser struct{ io.ReadSeeker }

func (nopSeekCloser) Close() error { return nil }

func newTestImageService() (*ImageService, *fakeImageRepo, *fakeStorage) {
	repo := newFakeImageRepo()
	files := newFakeStorage()
	return NewImageService(repo, files, testLogger()), repo, files
}

var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")

// =========================================================================
// UPLOAD
// =========================================================================

func TestUpload_Success(t *testing.T) {
	svc, repo, files := newTestImageService()
	ctx := context.Background()

	img, err := svc.Upload(ctx, 1, "photo.png", bytes.NewReader(pngHeader))
	require.NoError(t, err)

	assert.NotZero(t, img.ID)
	assert.Equal(t, int64(1), img.OwnerID)
	assert.Equal(t, "photo.png", img.OriginalName)
	assert.Equal(t, "image/png", img.ContentType)
	assert.Equal(t, int64(len(pngHeader)), img.Size)
	assert.True(t, strings.HasSuffix(img.Filename, "-photo.png"))

	assert.True(t, files.has(img.Filename), "file should be stored")
	stored, err := repo.GetImageByFilename(ctx, img.Filename)
	require.NoError(t, err)
	assert.Equal(t, img.ID, stored.ID)
}

func TestUpload_LargeBodyKeepsEveryByte(t *testing.T) {
	svc, _, files := newTestImageService()

	body := bytes.Repeat([]byte("0123456789"), 1000)
	img, err := svc.Upload(context.Background(), 1, "big.bin", bytes.NewReader(body))
	require.NoError(t, err)

	assert.Equal(t, int64(len(body)), img.Size)
	assert.Equal(t, body, files.files[img.Filename])
}

func TestUpload_ZeroByteFileIsAccepted(t *testing.T) {
	svc, _, _ := newTestImageService()

	img, err := svc.Upload(context.Background(), 1, "empty.png", bytes.NewReader(nil))
	require.NoError(t, err)
	assert.Equal(t, int64(0), img.Size)
}

func TestUpload_EmptyUpload(t *testing.T) {
	svc, _, files := newTestImageService()

	cases := []struct {
		name string
		file string
		body io.Reader
	}{
		{"no name", "", strings.NewReader("x")},
		{"blank name", "   ", strings.NewReader("x")},
		{"no body", "a.png", nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Upload(context.Background(), 1, tc.file, tc.body)

			var appErr *apperror.AppError
			require.True(t, errors.As(err, &appErr), "got %v", err)
			assert.ErrorIs(t, err, apperror.ErrValidation)
			assert.Equal(t, "image", appErr.Field)
		})
	}
	assert.Zero(t, files.count())
}

func TestUpload_PathTraversalNameIsSanitised(t *testing.T) {
	svc, _, _ := newTestImageService()

	img, err := svc.Upload(context.Background(), 1, "../../etc/passwd", strings.NewReader("x"))
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(img.Filename, "-etc_passwd"))
	assert.NotContains(t, img.Filename, "/")

	img, err = svc.Upload(context.Background(), 1, "../../", strings.NewReader("x"))
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(img.Filename, "-file"))
}

func TestUpload_IdenticalNamesGetDistinctFilenames(t *testing.T) {
	svc, _, files := newTestImageService()

	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		img, err := svc.Upload(context.Background(), 1, "same.png", strings.NewReader("x"))
		require.NoError(t, err)
		require.False(t, seen[img.Filename], "filename reused: %s", img.Filename)
		seen[img.Filename] = true
	}
	assert.Equal(t, 50, files.count())
}

func TestUpload_RowFailureRemovesFile(t *testing.T) {
	svc, repo, files := newTestImageService()
	repo.createErr = errors.New("disk I/O error")

	_, err := svc.Upload(context.Background(), 1, "photo.png", strings.NewReader("x"))
	require.Error(t, err)

	assert.Zero(t, files.count(), "file must be rolled back when the row insert fails")
}

func TestUpload_RowFailureAfterCancelStillRemovesFile(t *testing.T) {
	svc, repo, files := newTestImageService()
	repo.createErr = context.Canceled

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := svc.Upload(ctx, 1, "photo.png", strings.NewReader("x"))
	require.Error(t, err)
	assert.Zero(t, files.count())
}

func TestUpload_StorageFailureLeavesNoRow(t *testing.T) {
	svc, repo, files := newTestImageService()
	files.putErr = errors.New("no space left on device")

	_, err := svc.Upload(context.Background(), 1, "photo.png", strings.NewReader("x"))
	require.Error(t, err)

	list, _ := repo.ListImagesByOwner(context.Background(), 1)
	assert.Empty(t, list)
}

func TestUpload_ConcurrentUploadsSameUser(t *testing.T) {
	svc, repo, files := newTestImageService()

	const n = 10
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Upload(context.Background(), 1, "photo.png", strings.NewReader("x"))
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.NoError(t, err)
	}
	list, _ := repo.ListImagesByOwner(context.Background(), 1)
	assert.Len(t, list, n)
	assert.Equal(t, n, files.count())
}

// =========================================================================
// DELETE
// =========================================================================

func TestDelete_OwnerRemovesRowAndFile(t *testing.T) {
	svc, _, files := newTestImageService()
	ctx := context.Background()

	img, err := svc.Upload(ctx, 1, "photo.png", strings.NewReader("x"))
	require.NoError(t, err)

	require.NoError(t, svc.Delete(ctx, 1, img.ID))

	assert.False(t, files.has(img.Filename))
	_, err = svc.GetByID(ctx, img.ID)
	assert.ErrorIs(t, err, apperror.ErrNotFound)
	_, err = svc.GetByFilename(ctx, img.Filename)
	assert.ErrorIs(t, err, apperror.ErrNotFound)
}

func TestDelete_NotOwnerIsForbiddenAndChangesNothing(t *testing.T) {
	svc, _, files := newTestImageService()
	ctx := context.Background()

	img, _ := svc.Upload(ctx, 1, "photo.png", strings.NewReader("x"))

	err := svc.Delete(ctx, 2, img.ID)
	assert.ErrorIs(t, err, apperror.ErrForbidden)

	assert.True(t, files.has(img.Filename))
	got, err := svc.GetByID(ctx, img.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), got.OwnerID)
}

func TestDelete_UnknownImage(t *testing.T) {
	svc, _, _ := newTestImageService()

	err := svc.Delete(context.Background(), 1, 404)
	assert.ErrorIs(t, err, apperror.ErrNotFound)
}

func TestDelete_MissingFileStillDeletesRow(t *testing.T) {
	svc, _, files := newTestImageService()
	ctx := context.Background()

	img, _ := svc.Upload(ctx, 1, "photo.png", strings.NewReader("x"))
	_ = files.Delete(ctx, img.Filename)

	require.NoError(t, svc.Delete(ctx, 1, img.ID))
	_, err := svc.GetByID(ctx, img.ID)
	assert.ErrorIs(t, err, apperror.ErrNotFound)
}

func TestDelete_FileErrorIsNotSurfaced(t *testing.T) {
	svc, _, files := newTestImageService()
	ctx := context.Background()

	img, _ := svc.Upload(ctx, 1, "photo.png", strings.NewReader("x"))
	files.deleteErr = errors.New("permission denied")

	require.NoError(t, svc.Delete(ctx, 1, img.ID))
	_, err := svc.GetByID(ctx, img.ID)
	assert.ErrorIs(t, err, apperror.ErrNotFound)
}

func TestDelete_Concurrent(t *testing.T) {
	svc, _, files := newTestImageService()
	ctx := context.Background()

	img, _ := svc.Upload(ctx, 1, "photo.png", strings.NewReader("x"))

	const n = 8
	var (
		wg             sync.WaitGroup
		mu             sync.Mutex
		okCount, nfCnt int
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := svc.Delete(ctx, 1, img.ID)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				okCount++
			case errors.Is(err, apperror.ErrNotFound):
				nfCnt++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, okCount)
	assert.Equal(t, n-1, nfCnt)
	assert.Zero(t, files.count())
}

// =========================================================================
// LIST / OPEN
// =========================================================================

func TestListByOwner_OnlyOwnImagesInOrder(t *testing.T) {
	svc, _, _ := newTestImageService()
	ctx := context.Background()

	a1, _ := svc.Upload(ctx, 1, "a1.png", strings.NewReader("x"))
	_, _ = svc.Upload(ctx, 2, "b1.png", strings.NewReader("x"))
	a2, _ := svc.Upload(ctx, 1, "a2.png", strings.NewReader("x"))

	list, err := svc.ListByOwner(ctx, 1)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, a1.ID, list[0].ID)
	assert.Equal(t, a2.ID, list[1].ID)

	empty, err := svc.ListByOwner(ctx, 3)
	require.NoError(t, err)
	assert.NotNil(t, empty)
	assert.Empty(t, empty)
}

func TestOpen_ReturnsStoredBytes(t *testing.T) {
	svc, _, _ := newTestImageService()
	ctx := context.Background()

	img, _ := svc.Upload(ctx, 1, "photo.png", bytes.NewReader(pngHeader))

	got, obj, err := svc.Open(ctx, img.Filename)
	require.NoError(t, err)
	defer obj.Close()

	body, _ := io.ReadAll(obj)
	assert.Equal(t, pngHeader, body)
	assert.Equal(t, img.ID, got.ID)
}

func TestOpen_UnknownFilename(t *testing.T) {
	svc, _, files := newTestImageService()
	ctx := context.Background()

	// A file with no row behind it is never served.
	_, _ = files.Put(ctx, "stray.png", strings.NewReader("x"))

	_, _, err := svc.Open(ctx, "stray.png")
	assert.ErrorIs(t, err, apperror.ErrNotFound)

	_, _, err = svc.Open(ctx, "../../etc/passwd")
	assert.ErrorIs(t, err, apperror.ErrNotFound)
}

func TestOpen_RowWithoutFile(t *testing.T) {
	svc, _, files := newTestImageService()
	ctx := context.Background()

	img, _ := svc.Upload(ctx, 1, "photo.png", strings.NewReader("x"))
	_ = files.Delete(ctx, img.Filename)

	_, _, err := svc.Open(ctx, img.Filename)
	assert.ErrorIs(t, err, apperror.ErrNotFound)
}
