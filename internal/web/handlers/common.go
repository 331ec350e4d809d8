package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/facepass/facepass/internal/database"
	"github.com/facepass/facepass/internal/engine"
	"github.com/facepass/facepass/internal/fingerprint"
	"github.com/facepass/facepass/internal/gallery"
)

// maxImageBytes caps uploaded frames; webcam stills are well under this.
const maxImageBytes = 10 << 20

// imageField is the multipart form field carrying the frame.
const imageField = "face_image"

// Handler serves the engine API.
type Handler struct {
	engine *engine.Engine
	store  database.Store
}

// NewHandler creates the API handler set.
func NewHandler(eng *engine.Engine, store database.Store) *Handler {
	return &Handler{engine: eng, store: store}
}

// sanitizeForLog removes newlines and carriage returns to prevent log injection.
func sanitizeForLog(s string) string {
	return strings.NewReplacer("\n", "", "\r", "").Replace(s)
}

// respondJSON sends a JSON response.
func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// respondError sends an error response.
func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// readImage extracts the uploaded frame from a multipart form or, for
// clients that post pixels directly, the raw request body.
func readImage(r *http.Request) ([]byte, error) {
	contentType := r.Header.Get("Content-Type")
	if strings.HasPrefix(contentType, "multipart/form-data") {
		if err := r.ParseMultipartForm(maxImageBytes); err != nil {
			return nil, err
		}
		file, _, err := r.FormFile(imageField)
		if err != nil {
			return nil, err
		}
		defer file.Close()
		return io.ReadAll(io.LimitReader(file, maxImageBytes))
	}
	return io.ReadAll(io.LimitReader(r.Body, maxImageBytes))
}

// respondEngineError maps engine error taxonomy to HTTP statuses.
func respondEngineError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, fingerprint.ErrInvalidImage):
		respondError(w, http.StatusBadRequest, "invalid image")
	case errors.Is(err, gallery.ErrAlreadyEnrolled):
		respondError(w, http.StatusConflict, err.Error())
	case errors.Is(err, gallery.ErrEmailTaken):
		respondError(w, http.StatusConflict, err.Error())
	case errors.Is(err, gallery.ErrUnknownOwner):
		respondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, engine.ErrSpoof):
		respondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, engine.ErrDeadline):
		respondError(w, http.StatusGatewayTimeout, "processing deadline exceeded")
	default:
		respondError(w, http.StatusInternalServerError, "internal error")
	}
}

// HealthCheck handles the health check endpoint.
func HealthCheck(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
	})
}
