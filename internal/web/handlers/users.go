package handlers

import (
	"log"
	"net/http"
	"sort"

	"github.com/go-chi/chi/v5"
)

// ListUsers returns all enrolled identities.
// GET /api/v1/users.
func (h *Handler) ListUsers(w http.ResponseWriter, r *http.Request) {
	records := h.engine.Gallery().List()
	sort.Slice(records, func(i, j int) bool { return records[i].OwnerID < records[j].OwnerID })
	respondJSON(w, http.StatusOK, records)
}

// DeactivateUser removes an identity from the gallery and marks its
// enrollment inactive.
// DELETE /api/v1/users/{employeeID}.
func (h *Handler) DeactivateUser(w http.ResponseWriter, r *http.Request) {
	employeeID := chi.URLParam(r, "employeeID")

	if err := h.engine.Deactivate(r.Context(), employeeID); err != nil {
		respondEngineError(w, err)
		return
	}

	log.Printf("deactivated %s", sanitizeForLog(employeeID))
	respondJSON(w, http.StatusOK, map[string]string{"employee_id": employeeID, "status": "deactivated"})
}
