package engine

import (
	"context"

	"github.com/facepass/facepass/internal/attendance"
	"github.com/facepass/facepass/internal/database"
	"github.com/facepass/facepass/internal/gallery"
)

// GalleryLoader adapts a database.EnrollmentStore to the gallery's loader
// interface.
type GalleryLoader struct {
	Store database.EnrollmentStore
}

func (l GalleryLoader) Enrollments(ctx context.Context) ([]gallery.Record, error) {
	rows, err := l.Store.ActiveEnrollments(ctx)
	if err != nil {
		return nil, err
	}

	records := make([]gallery.Record, 0, len(rows))
	for _, r := range rows {
		records = append(records, gallery.Record{
			OwnerID:    r.OwnerID,
			Name:       r.Name,
			Email:      r.Email,
			Department: r.Department,
			Descriptor: r.Descriptor,
			EnrolledAt: r.EnrolledAt,
		})
	}
	return records, nil
}

// AttendanceStore adapts a database.AttendanceStore to the tracker's
// narrower store interface, converting between rows and states.
type AttendanceStore struct {
	Store database.AttendanceStore
}

func (a AttendanceStore) LoadState(ctx context.Context, ownerID, date string) (attendance.State, bool, error) {
	row, ok, err := a.Store.LoadState(ctx, ownerID, date)
	if err != nil || !ok {
		return attendance.State{}, false, err
	}
	return stateFromRow(row), true, nil
}

func (a AttendanceStore) SaveState(ctx context.Context, state attendance.State) error {
	return a.Store.SaveState(ctx, rowFromState(state))
}

func stateFromRow(row database.AttendanceRow) attendance.State {
	return attendance.State{
		OwnerID:     row.OwnerID,
		Date:        row.Day,
		LastAction:  attendance.Action(row.LastAction),
		PunchInAt:   row.PunchInAt,
		PunchOutAt:  row.PunchOutAt,
		LastEventAt: row.LastEventAt,
	}
}

func rowFromState(state attendance.State) database.AttendanceRow {
	return database.AttendanceRow{
		OwnerID:     state.OwnerID,
		Day:         state.Date,
		LastAction:  string(state.LastAction),
		PunchInAt:   state.PunchInAt,
		PunchOutAt:  state.PunchOutAt,
		LastEventAt: state.LastEventAt,
	}
}
