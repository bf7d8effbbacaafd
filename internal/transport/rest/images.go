package rest

import (
	"errors"
	"io"
	"mime"
	"net/http"
	"strings"

	serrors "github.com/abgdnv/storekeeper/internal/errors"
	"github.com/abgdnv/storekeeper/internal/media"
	"github.com/abgdnv/storekeeper/pkg/web"
	"github.com/go-chi/chi/v5"
)

// uploadField is the multipart form field carrying the image.
const uploadField = "image"

type stagingResponse struct {
	Handle string `json:"handle"`
}

type imageResponse struct {
	ImageRef string `json:"imageRef"`
	URL      string `json:"url"`
}

func toImageResponse(ref string) imageResponse {
	return imageResponse{ImageRef: ref, URL: "/api/v1/images/" + strings.TrimPrefix(ref, media.Scheme)}
}

// Stage allocates a staging location for a capture.
func (h *Handler) Stage(w http.ResponseWriter, r *http.Request) {
	mLogger := h.loggerWithReqID(r)
	handle, err := h.images.StageCapture(r.Context())
	if err != nil {
		h.respondError(w, r, mLogger, err, "Failed to allocate staging location")
		return
	}
	mLogger.DebugContext(r.Context(), "Staging location allocated", "handle", handle.ID)
	web.RespondJSON(w, mLogger, http.StatusCreated, stagingResponse{Handle: handle.ID})
}

// WriteStaged stores the request body as the captured image of a staging handle.
func (h *Handler) WriteStaged(w http.ResponseWriter, r *http.Request) {
	mLogger := h.loggerWithReqID(r)
	handle, ok := h.lookupStaging(w, r)
	if !ok {
		return
	}
	n, err := h.images.WriteStaged(r.Context(), handle, r.Body)
	if err != nil {
		h.respondError(w, r, mLogger, err, "Failed to write captured image")
		return
	}
	mLogger.DebugContext(r.Context(), "Captured image written", "handle", handle.ID, "bytes", n)
	w.WriteHeader(http.StatusNoContent)
}

// CommitStaged turns a staged capture into a durable image.
func (h *Handler) CommitStaged(w http.ResponseWriter, r *http.Request) {
	mLogger := h.loggerWithReqID(r)
	handle, ok := h.lookupStaging(w, r)
	if !ok {
		return
	}
	ref, err := h.images.CommitStaged(r.Context(), handle)
	if err != nil {
		h.respondError(w, r, mLogger, err, "Failed to commit captured image")
		return
	}
	mLogger.InfoContext(r.Context(), "Captured image committed", "imageRef", ref)
	web.RespondJSON(w, mLogger, http.StatusCreated, toImageResponse(ref))
}

// DiscardStaged drops a cancelled capture.
func (h *Handler) DiscardStaged(w http.ResponseWriter, r *http.Request) {
	handle, ok := h.lookupStaging(w, r)
	if !ok {
		return
	}
	h.images.Discard(handle)
	w.WriteHeader(http.StatusNoContent)
}

// Upload commits an image sent either as the "image" field of a multipart
// form or as the raw request body.
func (h *Handler) Upload(w http.ResponseWriter, r *http.Request) {
	mLogger := h.loggerWithReqID(r)

	body := io.Reader(r.Body)
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "multipart/form-data" {
		part, err := imagePart(r)
		if err != nil {
			mLogger.WarnContext(r.Context(), "Invalid multipart upload", "error", err)
			web.RespondError(w, mLogger, http.StatusBadRequest, "Expected an \"image\" form field")
			return
		}
		defer part.Close()
		body = part
	}

	ref, err := h.images.CommitReader(r.Context(), body)
	if err != nil {
		h.respondError(w, r, mLogger, err, "Failed to store image")
		return
	}
	mLogger.InfoContext(r.Context(), "Image uploaded", "imageRef", ref)
	web.RespondJSON(w, mLogger, http.StatusCreated, toImageResponse(ref))
}

// ServeImage serves a committed image by name.
func (h *Handler) ServeImage(w http.ResponseWriter, r *http.Request) {
	mLogger := h.loggerWithReqID(r)
	name := chi.URLParam(r, "name")
	f, err := h.images.Open(media.Scheme + name)
	if err != nil {
		h.respondError(w, r, mLogger, err, "Failed to open image")
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		h.respondError(w, r, mLogger, err, "Failed to open image")
		return
	}
	w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")
	http.ServeContent(w, r, name, info.ModTime(), f)
}

func (h *Handler) lookupStaging(w http.ResponseWriter, r *http.Request) (media.Handle, bool) {
	handle, err := h.images.LookupStaging(chi.URLParam(r, "handle"))
	if err != nil {
		h.respondError(w, r, h.loggerWithReqID(r), err, "Failed to look up staging location")
		return media.Handle{}, false
	}
	return handle, true
}

// imagePart returns the first multipart part named uploadField.
func imagePart(r *http.Request) (io.ReadCloser, error) {
	mr, err := r.MultipartReader()
	if err != nil {
		return nil, err
	}
	for {
		part, err := mr.NextPart()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil, serrors.NewValidationError(uploadField, "failed on rule: required")
			}
			return nil, err
		}
		if part.FormName() == uploadField {
			return part, nil
		}
		_ = part.Close()
	}
}
