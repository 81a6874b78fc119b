package handler

import (
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/whesley264-oss/Hub-IMG/internal/apperror"
	"github.com/whesley264-oss/Hub-IMG/internal/auth"
	"github.com/whesley264-oss/Hub-IMG/internal/model"
	"github.com/whesley264-oss/Hub-IMG/internal/service"
)

// multipartMemory is how much of a multipart body is kept in memory before
// the rest spills to temp files.
const multipartMemory = 8 << 20

// ImageHandler serves the profile page, uploads, downloads, the image
// detail page and deletion.
type ImageHandler struct {
	images        *service.ImageService
	users         *service.AuthService
	render        *Renderer
	maxUploadMB   int64
	secureCookies bool
	logger        *slog.Logger
}

// NewImageHandler creates an ImageHandler. maxUploadMB caps the request
// body of an upload.
func NewImageHandler(
	images *service.ImageService,
	users *service.AuthService,
	render *Renderer,
	maxUploadMB int64,
	secureCookies bool,
	logger *slog.Logger,
) *ImageHandler {
	return &ImageHandler{
		images:        images,
		users:         users,
		render:        render,
		maxUploadMB:   maxUploadMB,
		secureCookies: secureCookies,
		logger:        logger,
	}
}

type profilePage struct {
	User        *model.User
	Images      []model.Image
	MaxUploadMB int64
}

type imagePage struct {
	Image   *model.Image
	IsOwner bool
}

// HandleProfile lists the caller's images and shows the upload form.
//
// HTTP: GET /profile (login required)
func (h *ImageHandler) HandleProfile(w http.ResponseWriter, r *http.Request, userID int64) {
	user, err := h.users.GetUserByID(r.Context(), userID)
	if err != nil {
		h.render.renderError(w, r, err)
		return
	}

	images, err := h.images.ListByOwner(r.Context(), userID)
	if err != nil {
		h.render.renderError(w, r, err)
		return
	}

	h.render.Render(w, r, http.StatusOK, "profile", "Profile", profilePage{
		User:        user,
		Images:      images,
		MaxUploadMB: h.maxUploadMB,
	})
}

// HandleUpload stores the file sent in the "image" form field.
//
// HTTP: POST /upload (login required, multipart/form-data)
//
// Every outcome, good or bad, ends in a redirect to /profile with a flash.
// Only unexpected failures (disk, database) render an error page.
func (h *ImageHandler) HandleUpload(w http.ResponseWriter, r *http.Request, userID int64) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadMB<<20)

	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			h.redirectToProfile(w, r, Flash{FlashDanger, fmt.Sprintf("File is too large (limit %d MB).", h.maxUploadMB)})
			return
		}
		h.redirectToProfile(w, r, Flash{FlashDanger, "No file part"})
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("image")
	if err != nil {
		// A browser that submits the form with no file chosen still sends
		// the field, just with an empty filename, which Go files as a value.
		if _, sent := r.MultipartForm.Value["image"]; sent {
			h.redirectToProfile(w, r, Flash{FlashDanger, "No selected file"})
			return
		}
		h.redirectToProfile(w, r, Flash{FlashDanger, "No file part"})
		return
	}
	defer file.Close()

	img, err := h.images.Upload(r.Context(), userID, header.Filename, file)
	if err != nil {
		if errors.Is(err, apperror.ErrValidation) {
			h.redirectToProfile(w, r, Flash{FlashDanger, "No selected file"})
			return
		}
		h.render.renderError(w, r, err)
		return
	}

	h.logger.DebugContext(r.Context(), "upload accepted",
		slog.String("filename", img.Filename),
		slog.String("contentType", img.ContentType),
	)
	h.redirectToProfile(w, r, Flash{FlashSuccess, "Image uploaded successfully!"})
}

// HandleServeFile streams the stored bytes of an image.
//
// HTTP: GET /uploads/{filename}
//
// The name is looked up in the image table first; only names with a row
// are ever opened, so this can't be used to read other files.
// Non-image content is sent as a download so a browser never renders
// uploaded HTML on this origin.
func (h *ImageHandler) HandleServeFile(w http.ResponseWriter, r *http.Request) {
	filename := chi.URLParam(r, "filename")

	img, obj, err := h.images.Open(r.Context(), filename)
	if err != nil {
		h.render.renderError(w, r, err)
		return
	}
	defer obj.Close()

	contentType := img.ContentType
	if !strings.HasPrefix(contentType, "image/") || contentType == "image/svg+xml" {
		contentType = "application/octet-stream"
		w.Header().Set("Content-Disposition", attachmentDisposition(img.Filename))
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("X-Content-Type-Options", "nosniff")

	// ServeContent handles Range, If-Modified-Since and HEAD for us.
	http.ServeContent(w, r, img.Filename, obj.ModTime, obj)
}

// HandleImageDetail shows one image's metadata page.
//
// HTTP: GET /image/{filename}
func (h *ImageHandler) HandleImageDetail(w http.ResponseWriter, r *http.Request) {
	img, err := h.images.GetByFilename(r.Context(), chi.URLParam(r, "filename"))
	if err != nil {
		h.render.renderError(w, r, err)
		return
	}

	userID, ok := auth.UserIDFromContext(r.Context())
	h.render.Render(w, r, http.StatusOK, "image", img.OriginalName, imagePage{
		Image:   img,
		IsOwner: ok && userID == img.OwnerID,
	})
}

// HandleDelete deletes an image if the caller owns it.
//
// HTTP: GET /delete_image/{imageID} (login required)
//
// Someone else's image is not an error page: the caller goes back to
// their profile with a warning and nothing changes. An unknown id is a 404.
func (h *ImageHandler) HandleDelete(w http.ResponseWriter, r *http.Request, userID int64) {
	imageID, err := strconv.ParseInt(chi.URLParam(r, "imageID"), 10, 64)
	if err != nil || imageID <= 0 {
		h.render.renderError(w, r, apperror.NotFound("image", chi.URLParam(r, "imageID")))
		return
	}

	err = h.images.Delete(r.Context(), userID, imageID)
	switch {
	case err == nil:
		h.redirectToProfile(w, r, Flash{FlashSuccess, "Image deleted successfully."})
	case errors.Is(err, apperror.ErrForbidden):
		h.redirectToProfile(w, r, Flash{FlashDanger, "You do not have permission to delete this image."})
	default:
		h.render.renderError(w, r, err)
	}
}

func (h *ImageHandler) redirectToProfile(w http.ResponseWriter, r *http.Request, f Flash) {
	setFlash(w, h.secureCookies, f)
	status := http.StatusFound
	if r.Method == http.MethodPost {
		status = http.StatusSeeOther
	}
	http.Redirect(w, r, "/profile", status)
}

// attachmentDisposition builds a Content-Disposition header value.
func attachmentDisposition(filename string) string {
	if v := mime.FormatMediaType("attachment", map[string]string{"filename": filename}); v != "" {
		return v
	}
	return "attachment"
}
