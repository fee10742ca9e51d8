package handlers

import (
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/isdelr/chirper-be/internal/api/respond"
	"github.com/isdelr/chirper-be/internal/apperror"
	"github.com/isdelr/chirper-be/internal/media"
	"github.com/rs/zerolog/log"
)

// MediaHandler serves uploaded images from the media backend.
type MediaHandler struct {
	library *media.Library
}

// NewMediaHandler creates a new MediaHandler.
func NewMediaHandler(library *media.Library) *MediaHandler {
	return &MediaHandler{library: library}
}

// Serve streams the image named by {name}.
func (h *MediaHandler) Serve(w http.ResponseWriter, r *http.Request) {
	rc, contentType, err := h.library.Open(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		if errors.Is(err, media.ErrNotFound) || errors.Is(err, media.ErrInvalidKey) {
			respond.Error(w, r, apperror.NewNotFound("Image not found"))
			return
		}
		respond.Error(w, r, apperror.NewInternal("Failed to open image", err))
		return
	}
	defer rc.Close()

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Cache-Control", "public, max-age=86400")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	if _, err := io.Copy(w, rc); err != nil {
		log.Warn().Err(err).Str("path", r.URL.Path).Msg("Failed to stream image")
	}
}
