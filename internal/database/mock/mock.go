// Package mock provides an in-memory database.Store for tests and for
// running the server without a database (--memory mode).
package mock

import (
	"context"
	"sort"
	"sync"

	"github.com/facepass/facepass/internal/database"
)

// Store is an in-memory implementation of database.Store. Error fields
// inject failures for the corresponding operations.
type Store struct {
	mu          sync.RWMutex
	enrollments map[string]database.EnrollmentRow
	attendance  map[string]database.AttendanceRow // keyed ownerID + "/" + day
	events      []database.AuditEvent

	// Error injection
	ActiveEnrollmentsError     error
	AppendEnrollmentError      error
	DeactivateEnrollmentError  error
	LoadStateError             error
	SaveStateError             error
	HistoryError               error
	AppendEventError           error
	RecentEventsError          error
}

// NewStore creates an empty in-memory store.
func NewStore() *Store {
	return &Store{
		enrollments: make(map[string]database.EnrollmentRow),
		attendance:  make(map[string]database.AttendanceRow),
	}
}

func (s *Store) ActiveEnrollments(ctx context.Context) ([]database.EnrollmentRow, error) {
	if s.ActiveEnrollmentsError != nil {
		return nil, s.ActiveEnrollmentsError
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var rows []database.EnrollmentRow
	for _, r := range s.enrollments {
		if r.Active {
			rows = append(rows, r)
		}
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].OwnerID < rows[j].OwnerID })
	return rows, nil
}

func (s *Store) AppendEnrollment(ctx context.Context, row database.EnrollmentRow) error {
	if s.AppendEnrollmentError != nil {
		return s.AppendEnrollmentError
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.enrollments[row.OwnerID] = row
	return nil
}

func (s *Store) DeactivateEnrollment(ctx context.Context, ownerID string) error {
	if s.DeactivateEnrollmentError != nil {
		return s.DeactivateEnrollmentError
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.enrollments[ownerID]
	if !ok || !r.Active {
		return database.ErrNotFound
	}
	r.Active = false
	s.enrollments[ownerID] = r
	return nil
}

func (s *Store) LoadState(ctx context.Context, ownerID, day string) (database.AttendanceRow, bool, error) {
	if s.LoadStateError != nil {
		return database.AttendanceRow{}, false, s.LoadStateError
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	row, ok := s.attendance[ownerID+"/"+day]
	return row, ok, nil
}

func (s *Store) SaveState(ctx context.Context, row database.AttendanceRow) error {
	if s.SaveStateError != nil {
		return s.SaveStateError
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attendance[row.OwnerID+"/"+row.Day] = row
	return nil
}

func (s *Store) History(ctx context.Context, ownerID, fromDay, toDay string) ([]database.AttendanceRow, error) {
	if s.HistoryError != nil {
		return nil, s.HistoryError
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var rows []database.AttendanceRow
	for _, r := range s.attendance {
		if r.OwnerID == ownerID && r.Day >= fromDay && r.Day <= toDay {
			rows = append(rows, r)
		}
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Day < rows[j].Day })
	return rows, nil
}

func (s *Store) AppendEvent(ctx context.Context, event database.AuditEvent) error {
	if s.AppendEventError != nil {
		return s.AppendEventError
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

func (s *Store) RecentEvents(ctx context.Context, limit int) ([]database.AuditEvent, error) {
	if s.RecentEventsError != nil {
		return nil, s.RecentEventsError
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := len(s.events)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]database.AuditEvent, 0, n)
	for i := len(s.events) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, s.events[i])
	}
	return out, nil
}

// EventCount returns the number of recorded audit events.
func (s *Store) EventCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.events)
}

func (s *Store) Close() error { return nil }
