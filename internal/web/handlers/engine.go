package handlers

import (
	"log"
	"net/http"

	"github.com/facepass/facepass/internal/engine"
)

// Enroll registers a new identity from an uploaded frame.
// POST /api/v1/enroll, multipart fields: employee_id, name, face_image,
// plus optional email and department.
func (h *Handler) Enroll(w http.ResponseWriter, r *http.Request) {
	imageBytes, err := readImage(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "missing face_image upload")
		return
	}

	employeeID := r.FormValue("employee_id")
	name := r.FormValue("name")
	if employeeID == "" || name == "" {
		respondError(w, http.StatusBadRequest, "employee_id and name are required")
		return
	}

	req := engine.Enrollment{
		OwnerID:    employeeID,
		Name:       name,
		Email:      r.FormValue("email"),
		Department: r.FormValue("department"),
	}
	result, err := h.engine.Enroll(r.Context(), req, imageBytes)
	if err != nil {
		log.Printf("enroll %s failed: %v", sanitizeForLog(employeeID), err)
		respondEngineError(w, err)
		return
	}

	log.Printf("enrolled %s (%s)", sanitizeForLog(employeeID), sanitizeForLog(result.Name))
	respondJSON(w, http.StatusCreated, result)
}

// Identify runs the full pipeline on an uploaded frame and applies the
// attendance transition on an accepted match.
// POST /api/v1/identify, multipart field: face_image.
func (h *Handler) Identify(w http.ResponseWriter, r *http.Request) {
	imageBytes, err := readImage(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "missing face_image upload")
		return
	}

	result, err := h.engine.Identify(r.Context(), imageBytes)
	if err != nil {
		log.Printf("identify failed: %v", err)
		respondEngineError(w, err)
		return
	}

	// An accepted match inside the cooldown window carries the full result
	// but signals the client to back off.
	if result.TooSoon {
		respondJSON(w, http.StatusTooManyRequests, result)
		return
	}
	respondJSON(w, http.StatusOK, result)
}

// Analyze runs detection and liveness only, for UI preview.
// POST /api/v1/analyze, multipart field: face_image.
func (h *Handler) Analyze(w http.ResponseWriter, r *http.Request) {
	imageBytes, err := readImage(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "missing face_image upload")
		return
	}

	result, err := h.engine.Analyze(r.Context(), imageBytes)
	if err != nil {
		respondEngineError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, result)
}
