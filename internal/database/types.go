package database

import (
	"time"
)

// EnrollmentRow is an enrolled identity as stored.
type EnrollmentRow struct {
	OwnerID    string
	Name       string
	Email      string
	Department string
	Descriptor []float32
	Active     bool
	EnrolledAt time.Time
}

// AttendanceRow is one identity's attendance state for one calendar day.
// Day is formatted YYYY-MM-DD.
type AttendanceRow struct {
	OwnerID     string     `json:"employee_id"`
	Day         string     `json:"day"`
	LastAction  string     `json:"last_action"`
	PunchInAt   *time.Time `json:"punch_in_at,omitempty"`
	PunchOutAt  *time.Time `json:"punch_out_at,omitempty"`
	LastEventAt time.Time  `json:"last_event_at"`
}

// Audit event types. Every engine decision that matters operationally is
// recorded as one of these.
const (
	EventRegistration = "registration"
	EventPunchIn      = "punch_in"
	EventPunchOut     = "punch_out"
	EventFailedSpoof  = "failed_spoof"
	EventUnrecognized = "unrecognized"
	EventDeactivation = "deactivation"
)

// AuditEvent is an append-only record of an engine decision.
type AuditEvent struct {
	ID        string    `json:"id"` // UUID
	Type      string    `json:"type"`
	OwnerID   string    `json:"employee_id,omitempty"` // empty for unrecognized attempts
	Score     float64   `json:"score"`
	FrameHash string    `json:"frame_hash,omitempty"` // perceptual hash of the frame, empty when no frame was involved
	CreatedAt time.Time `json:"created_at"`
}
