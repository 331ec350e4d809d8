package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/facepass/facepass/internal/attendance"
)

// todayEntry is one identity's current-day state for the dashboard.
type todayEntry struct {
	OwnerID string            `json:"employee_id"`
	Name    string            `json:"name"`
	State   *attendance.State `json:"state,omitempty"`
}

// AttendanceToday returns the current-day state for every enrolled
// identity. Identities without a punch today appear with a nil state.
// GET /api/v1/attendance/today.
func (h *Handler) AttendanceToday(w http.ResponseWriter, r *http.Request) {
	var entries []todayEntry
	for _, rec := range h.engine.Gallery().List() {
		entry := todayEntry{OwnerID: rec.OwnerID, Name: rec.Name}
		state, ok, err := h.engine.Tracker().Today(r.Context(), rec.OwnerID)
		if err != nil {
			respondError(w, http.StatusInternalServerError, "internal error")
			return
		}
		if ok {
			entry.State = &state
		}
		entries = append(entries, entry)
	}
	respondJSON(w, http.StatusOK, entries)
}

// AttendanceHistory returns one identity's attendance rows over the last
// N days (default 30, capped at 365).
// GET /api/v1/attendance/history/{employeeID}?days=30.
func (h *Handler) AttendanceHistory(w http.ResponseWriter, r *http.Request) {
	employeeID := chi.URLParam(r, "employeeID")
	if _, ok := h.engine.Gallery().Get(employeeID); !ok {
		respondError(w, http.StatusNotFound, "unknown employee")
		return
	}

	days := 30
	if s := r.URL.Query().Get("days"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 && n <= 365 {
			days = n
		}
	}

	now := time.Now()
	from := attendance.DateKey(now.AddDate(0, 0, -days+1))
	to := attendance.DateKey(now)

	rows, err := h.store.History(r.Context(), employeeID, from, to)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "internal error")
		return
	}
	respondJSON(w, http.StatusOK, rows)
}
