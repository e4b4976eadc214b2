package api

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/multicare-dataset/website/internal/apperr"
	"github.com/multicare-dataset/website/internal/casehub"
)

// ImageHandler serves dataset image files.
type ImageHandler struct {
	svc *casehub.Service
}

// NewImageHandler creates a handler that resolves images through svc.
func NewImageHandler(svc *casehub.Service) *ImageHandler {
	return &ImageHandler{svc: svc}
}

// plainName validates that the filename has no path separators or traversal.
func plainName(name string) error {
	if name == "" {
		return fmt.Errorf("filename is required")
	}
	cleaned := filepath.Clean(name)
	if cleaned != filepath.Base(cleaned) || strings.Contains(cleaned, "..") || strings.ContainsAny(name, `/\`) {
		return fmt.Errorf("invalid filename: %s", name)
	}
	return nil
}

// ServeFile handles GET /api/images/{file}.
//
//	@Summary		Get a dataset image
//	@Tags			images
//	@Produce		image/jpeg
//	@Param			file	path	string	true	"Image file name"
//	@Success		200
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/images/{file} [get]
func (h *ImageHandler) ServeFile(w http.ResponseWriter, r *http.Request) {
	file := chi.URLParam(r, "file")
	if err := plainName(file); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}
	abs, err := h.svc.ImagePath(r.Context(), file)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, errorBody("not found"))
			return
		}
		slog.Error("resolve image failed", slog.String("file", file), slog.String("error", err.Error()))
		writeJSON(w, http.StatusBadRequest, errorBody("invalid image path"))
		return
	}
	if _, statErr := os.Stat(abs); os.IsNotExist(statErr) {
		writeJSON(w, http.StatusNotFound, errorBody("image file missing"))
		return
	}
	w.Header().Set("Cache-Control", "public, max-age=86400")
	http.ServeFile(w, r, abs)
}
