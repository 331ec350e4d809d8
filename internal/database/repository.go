package database

import (
	"context"
	"errors"
)

// ErrNotFound is returned when a lookup targets a row that does not exist.
var ErrNotFound = errors.New("not found")

// EnrollmentStore persists enrolled identities. The in-memory gallery is
// rebuilt from ActiveEnrollments at startup; afterwards the store only
// receives appends and deactivations.
type EnrollmentStore interface {
	// ActiveEnrollments returns all enrollments that have not been deactivated.
	ActiveEnrollments(ctx context.Context) ([]EnrollmentRow, error)
	// AppendEnrollment stores a new enrollment.
	AppendEnrollment(ctx context.Context, row EnrollmentRow) error
	// DeactivateEnrollment marks an enrollment inactive. Returns ErrNotFound
	// for unknown or already inactive owners.
	DeactivateEnrollment(ctx context.Context, ownerID string) error
}

// AttendanceStore persists per-day attendance state.
type AttendanceStore interface {
	// LoadState returns the state for one identity and day. ok is false when
	// no row exists yet.
	LoadState(ctx context.Context, ownerID, day string) (AttendanceRow, bool, error)
	// SaveState inserts or replaces the state for the row's identity and day.
	SaveState(ctx context.Context, row AttendanceRow) error
	// History returns an identity's attendance rows between two days
	// inclusive, oldest first.
	History(ctx context.Context, ownerID, fromDay, toDay string) ([]AttendanceRow, error)
}

// AuditStore records engine decisions append-only.
type AuditStore interface {
	// AppendEvent stores one audit event.
	AppendEvent(ctx context.Context, event AuditEvent) error
	// RecentEvents returns up to limit events, newest first.
	RecentEvents(ctx context.Context, limit int) ([]AuditEvent, error)
}

// Store is the full persistence surface the engine and server need.
type Store interface {
	EnrollmentStore
	AttendanceStore
	AuditStore

	Close() error
}
