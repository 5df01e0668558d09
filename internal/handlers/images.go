package handlers

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/crucial707/hci-inventory/internal/storage"
	"github.com/go-chi/chi/v5"
)

// ImageHandler serves stored product images at /uploads/{name}.
type ImageHandler struct {
	Images storage.ImageStore
}

func (h *ImageHandler) ServeImage(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	rc, info, err := h.Images.Open(r.Context(), name)
	if errors.Is(err, storage.ErrImageNotFound) || errors.Is(err, storage.ErrInvalidName) {
		JSONError(w, "image not found", http.StatusNotFound)
		return
	}
	if err != nil {
		internalError(w, r, "open image", err)
		return
	}
	defer rc.Close()

	// Names are never reused, so a stored image never changes.
	w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")
	w.Header().Set("Content-Type", info.ContentType)
	w.Header().Set("X-Content-Type-Options", "nosniff")

	if rs, ok := rc.(io.ReadSeeker); ok {
		http.ServeContent(w, r, info.Name, info.ModTime, rs)
		return
	}
	if info.Size > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(info.Size, 10))
	}
	w.WriteHeader(http.StatusOK)
	if r.Method != http.MethodHead {
		io.Copy(w, rc)
	}
}
