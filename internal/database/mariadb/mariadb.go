// Package mariadb backs the engine's persistence with MariaDB/MySQL for
// deployments that already run one. Descriptors are stored as packed
// little-endian float32 bytes; similarity always runs in memory, the
// database is plain storage here.
package mariadb

import (
	"context"
	"database/sql"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"time"

	_ "github.com/go-sql-driver/mysql"

	"github.com/facepass/facepass/internal/database"
)

// Pool manages a MariaDB connection pool.
type Pool struct {
	db *sql.DB
}

// NewPool creates a new MariaDB connection pool. The DSN must include
// parseTime=true so DATETIME columns scan into time.Time.
func NewPool(dsn string) (*Pool, error) {
	if dsn == "" {
		return nil, errors.New("MariaDB DSN is required")
	}

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open MariaDB: %w", err)
	}

	db.SetMaxOpenConns(5)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(time.Hour)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping MariaDB: %w", err)
	}

	return &Pool{db: db}, nil
}

// Close closes the connection pool.
func (p *Pool) Close() error {
	if p.db != nil {
		if err := p.db.Close(); err != nil {
			return fmt.Errorf("closing database connection: %w", err)
		}
	}
	return nil
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS enrollments (
		owner_id    VARCHAR(64) PRIMARY KEY,
		name        VARCHAR(255) NOT NULL,
		email       VARCHAR(255) NOT NULL DEFAULT '',
		department  VARCHAR(255) NOT NULL DEFAULT '',
		descriptor  VARBINARY(1024) NOT NULL,
		active      BOOLEAN NOT NULL DEFAULT TRUE,
		enrolled_at DATETIME(6) NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS attendance_state (
		owner_id      VARCHAR(64) NOT NULL,
		day           CHAR(10) NOT NULL,
		last_action   VARCHAR(16) NOT NULL,
		punch_in_at   DATETIME(6) NULL,
		punch_out_at  DATETIME(6) NULL,
		last_event_at DATETIME(6) NOT NULL,
		PRIMARY KEY (owner_id, day)
	)`,
	`CREATE TABLE IF NOT EXISTS audit_events (
		id         CHAR(36) PRIMARY KEY,
		event_type VARCHAR(32) NOT NULL,
		owner_id   VARCHAR(64) NULL,
		score      DOUBLE NOT NULL DEFAULT 0,
		frame_hash VARCHAR(16) NOT NULL DEFAULT '',
		created_at DATETIME(6) NOT NULL,
		INDEX idx_audit_events_created_at (created_at)
	)`,
}

// Store implements database.Store on a MariaDB pool.
type Store struct {
	pool *Pool
}

// Open connects, creates missing tables, and returns the ready store.
func Open(dsn string) (*Store, error) {
	pool, err := NewPool(dsn)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	for _, stmt := range schema {
		if _, err := pool.db.ExecContext(ctx, stmt); err != nil {
			pool.Close()
			return nil, fmt.Errorf("create schema: %w", err)
		}
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() error {
	return s.pool.Close()
}

// packDescriptor encodes float32 values as little-endian bytes.
func packDescriptor(d []float32) []byte {
	out := make([]byte, 4*len(d))
	for i, v := range d {
		binary.LittleEndian.PutUint32(out[i*4:], math.Float32bits(v))
	}
	return out
}

// unpackDescriptor decodes little-endian bytes back to float32 values.
func unpackDescriptor(b []byte) ([]float32, error) {
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("descriptor blob length %d is not a multiple of 4", len(b))
	}
	out := make([]float32, len(b)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return out, nil
}

func (s *Store) ActiveEnrollments(ctx context.Context) ([]database.EnrollmentRow, error) {
	query := `
		SELECT owner_id, name, email, department, descriptor, active, enrolled_at
		FROM enrollments
		WHERE active
		ORDER BY owner_id
	`

	rows, err := s.pool.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query enrollments: %w", err)
	}
	defer rows.Close()

	var out []database.EnrollmentRow
	for rows.Next() {
		var r database.EnrollmentRow
		var blob []byte
		if err := rows.Scan(&r.OwnerID, &r.Name, &r.Email, &r.Department, &blob, &r.Active, &r.EnrolledAt); err != nil {
			return nil, fmt.Errorf("scan enrollment: %w", err)
		}
		if r.Descriptor, err = unpackDescriptor(blob); err != nil {
			return nil, fmt.Errorf("enrollment %s: %w", r.OwnerID, err)
		}
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
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.pool.db.ExecContext(ctx, query,
		row.OwnerID, row.Name, row.Email, row.Department, packDescriptor(row.Descriptor), row.Active, row.EnrolledAt)
	if err != nil {
		return fmt.Errorf("insert enrollment: %w", err)
	}
	return nil
}

func (s *Store) DeactivateEnrollment(ctx context.Context, ownerID string) error {
	result, err := s.pool.db.ExecContext(ctx,
		"UPDATE enrollments SET active = FALSE WHERE owner_id = ? AND active", ownerID)
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
		SELECT owner_id, day, last_action, punch_in_at, punch_out_at, last_event_at
		FROM attendance_state
		WHERE owner_id = ? AND day = ?
	`

	var r database.AttendanceRow
	err := s.pool.db.QueryRowContext(ctx, query, ownerID, day).Scan(
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
		VALUES (?, ?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE
			last_action = VALUES(last_action),
			punch_in_at = VALUES(punch_in_at),
			punch_out_at = VALUES(punch_out_at),
			last_event_at = VALUES(last_event_at)
	`

	_, err := s.pool.db.ExecContext(ctx, query,
		row.OwnerID, row.Day, row.LastAction, row.PunchInAt, row.PunchOutAt, row.LastEventAt)
	if err != nil {
		return fmt.Errorf("save attendance state: %w", err)
	}
	return nil
}

func (s *Store) History(ctx context.Context, ownerID, fromDay, toDay string) ([]database.AttendanceRow, error) {
	query := `
		SELECT owner_id, day, last_action, punch_in_at, punch_out_at, last_event_at
		FROM attendance_state
		WHERE owner_id = ? AND day BETWEEN ? AND ?
		ORDER BY day
	`

	rows, err := s.pool.db.QueryContext(ctx, query, ownerID, fromDay, toDay)
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
		VALUES (?, ?, ?, ?, ?, ?)
	`

	var owner sql.NullString
	if event.OwnerID != "" {
		owner = sql.NullString{String: event.OwnerID, Valid: true}
	}
	_, err := s.pool.db.ExecContext(ctx, query,
		event.ID, event.Type, owner, event.Score, event.FrameHash, event.CreatedAt)
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
		LIMIT ?
	`

	rows, err := s.pool.db.QueryContext(ctx, query, limit)
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
