package handlers

import (
	"net/http"
	"strconv"
)

// RecentEvents returns the newest audit events (default 50, capped at 500).
// GET /api/v1/events?limit=50.
func (h *Handler) RecentEvents(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if s := r.URL.Query().Get("limit"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 && n <= 500 {
			limit = n
		}
	}

	events, err := h.store.RecentEvents(r.Context(), limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "internal error")
		return
	}
	respondJSON(w, http.StatusOK, events)
}
