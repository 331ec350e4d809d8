package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/facepass/facepass/internal/database"
	"github.com/pgvector/pgvector-go"
)

// Store implements database.Store on a PostgreSQL pool.
type Store struct {
	pool *Pool
}

// NewStore wraps a migrated pool.
func NewStore(pool *Pool) *Store {
	return &Store{pool: pool}
}

func (s *Store) Close() error {
	return s.pool.Close()
}

func (s *Store) ActiveEnrollments(ctx context.Context) ([]database.EnrollmentRow, error) {
	query := `
		SELECT owner_id, name, email, department, descriptor, active, enrolled_at
		FROM enrollments
		WHERE active
		ORDER BY owner_id
	`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query enrollments: %w", err)
	}
	defer rows.Close()

	var out []database.EnrollmentRow
	for rows.Next() {
		var r database.EnrollmentRow
		var vec pgvector.Vector
		if err := rows.Scan(&r.OwnerID, &r.Name, &r.Email, &r.Department, &vec, &r.Active, &r.EnrolledAt); err != nil {
			return nil, fmt.Errorf("scan enrollment: %w", err)
		}
		r.Descriptor = vec.Slice()
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate enrollments: %w", err)
	}
	return out, nil
}

func (s *Store) AppendEnrollment(ctx context.Context, row database.EnrollmentRow) error {
	query := `
		INSERT INTO enrollments (owner_id, name, email, department, descriptor, active, enrolled_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := s.pool.Exec(ctx, query,
		row.OwnerID, row.Name, row.Email, row.Department, pgvector.NewVector(row.Descriptor), row.Active, row.EnrolledAt)
	if err != nil {
		return fmt.Errorf("insert enrollment: %w", err)
	}
	return nil
}

func (s *Store) DeactivateEnrollment(ctx context.Context, ownerID string) error {
	result, err := s.pool.Exec(ctx,
		"UPDATE enrollments SET active = FALSE WHERE owner_id = $1 AND active", ownerID)
	if err != nil {
		return fmt.Errorf("deactivate enrollment: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("deactivate enrollment rows affected: %w", err)
	}
	if affected == 0 {
		return database.ErrNotFound
	}
	return nil
}

func (s *Store) LoadState(ctx context.Context, ownerID, day string) (database.AttendanceRow, bool, error) {
	query := `
		SELECT owner_id, to_char(day, 'YYYY-MM-DD'), last_action, punch_in_at, punch_out_at, last_event_at
		FROM attendance_state
		WHERE owner_id = $1 AND day = $2
	`

	var r database.AttendanceRow
	err := s.pool.QueryRow(ctx, query, ownerID, day).Scan(
		&r.OwnerID, &r.Day, &r.LastAction, &r.PunchInAt, &r.PunchOutAt, &r.LastEventAt)
	if errors.Is(err, sql.ErrNoRows) {
		return database.AttendanceRow{}, false, nil
	}
	if err != nil {
		return database.AttendanceRow{}, false, fmt.Errorf("load attendance state: %w", err)
	}
	return r, true, nil
}

func (s *Store) SaveState(ctx context.Context, row database.AttendanceRow) error {
	query := `
		INSERT INTO attendance_state (owner_id, day, last_action, punch_in_at, punch_out_at, last_event_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (owner_id, day) DO UPDATE SET
			last_action = EXCLUDED.last_action,
			punch_in_at = EXCLUDED.punch_in_at,
			punch_out_at = EXCLUDED.punch_out_at,
			last_event_at = EXCLUDED.last_event_at
	`

	_, err := s.pool.Exec(ctx, query,
		row.OwnerID, row.Day, row.LastAction, row.PunchInAt, row.PunchOutAt, row.LastEventAt)
	if err != nil {
		return fmt.Errorf("save attendance state: %w", err)
	}
	return nil
}

func (s *Store) History(ctx context.Context, ownerID, fromDay, toDay string) ([]database.AttendanceRow, error) {
	query := `
		SELECT owner_id, to_char(day, 'YYYY-MM-DD'), last_action, punch_in_at, punch_out_at, last_event_at
		FROM attendance_state
		WHERE owner_id = $1 AND day BETWEEN $2 AND $3
		ORDER BY day
	`

	rows, err := s.pool.Query(ctx, query, ownerID, fromDay, toDay)
	if err != nil {
		return nil, fmt.Errorf("query attendance history: %w", err)
	}
	defer rows.Close()

	var out []database.AttendanceRow
	for rows.Next() {
		var r database.AttendanceRow
		if err := rows.Scan(&r.OwnerID, &r.Day, &r.LastAction, &r.PunchInAt, &r.PunchOutAt, &r.LastEventAt); err != nil {
			return nil, fmt.Errorf("scan attendance row: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate attendance rows: %w", err)
	}
	return out, nil
}

func (s *Store) AppendEvent(ctx context.Context, event database.AuditEvent) error {
	query := `
		INSERT INTO audit_events (id, event_type, owner_id, score, frame_hash, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	_, err := s.pool.Exec(ctx, query,
		event.ID, event.Type, nullable(event.OwnerID), event.Score, event.FrameHash, event.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert audit event: %w", err)
	}
	return nil
}

func (s *Store) RecentEvents(ctx context.Context, limit int) ([]database.AuditEvent, error) {
	query := `
		SELECT id, event_type, COALESCE(owner_id, ''), score, frame_hash, created_at
		FROM audit_events
		ORDER BY created_at DESC
		LIMIT $1
	`

	rows, err := s.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("query audit events: %w", err)
	}
	defer rows.Close()

	var out []database.AuditEvent
	for rows.Next() {
		var e database.AuditEvent
		if err := rows.Scan(&e.ID, &e.Type, &e.OwnerID, &e.Score, &e.FrameHash, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit events: %w", err)
	}
	return out, nil
}

// nullable maps an empty string to SQL NULL.
func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
