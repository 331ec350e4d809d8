// Package attendance turns accepted identifications into punch-in and
// punch-out transitions. State is kept per identity per calendar day and a
// cooldown window guards against double punches from consecutive frames of
// the same person standing at the camera.
package attendance

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrTooSoon is returned when a punch lands inside the cooldown window of
// the previous event. State is never mutated on this path.
var ErrTooSoon = errors.New("too soon since last punch")

// Action is the last recorded transition for an identity on a given day.
type Action string

const (
	ActionNone     Action = "none"
	ActionPunchIn  Action = "punch_in"
	ActionPunchOut Action = "punch_out"
)

// State is the per-identity, per-day attendance record. A completed
// punch-out resets the identity to absent so the next accepted
// identification opens a new punch-in.
type State struct {
	OwnerID     string     `json:"employee_id"`
	Date        string     `json:"date"` // YYYY-MM-DD
	LastAction  Action     `json:"last_action"`
	PunchInAt   *time.Time `json:"punch_in_at,omitempty"`
	PunchOutAt  *time.Time `json:"punch_out_at,omitempty"`
	LastEventAt time.Time  `json:"last_event_at"`
}

// CheckedIn reports whether the identity currently holds an open punch-in.
func (s State) CheckedIn() bool {
	return s.LastAction == ActionPunchIn
}

// Store persists attendance state. Load returns a zero State with ok=false
// when no record exists for the key yet.
type Store interface {
	LoadState(ctx context.Context, ownerID, date string) (State, bool, error)
	SaveState(ctx context.Context, state State) error
}

// Tracker applies punch transitions. Identities are serialized against
// themselves with a keyed mutex so punches for different people never block
// each other.
type Tracker struct {
	store    Store
	cooldown time.Duration
	now      func() time.Time

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewTracker creates a tracker with the given cooldown between events.
func NewTracker(store Store, cooldown time.Duration) *Tracker {
	return &Tracker{
		store:    store,
		cooldown: cooldown,
		now:      time.Now,
		locks:    make(map[string]*sync.Mutex),
	}
}

// WithClock replaces the tracker's time source. Tests use it to step
// through cooldown windows without sleeping.
func (t *Tracker) WithClock(now func() time.Time) *Tracker {
	t.now = now
	return t
}

// ownerLock returns the mutex for one identity, creating it on first use.
// Lock entries are never reclaimed; the identity population is small and
// bounded by the gallery.
func (t *Tracker) ownerLock(ownerID string) *sync.Mutex {
	t.mu.Lock()
	defer t.mu.Unlock()

	l, ok := t.locks[ownerID]
	if !ok {
		l = &sync.Mutex{}
		t.locks[ownerID] = l
	}
	return l
}

// DateKey formats the calendar date a punch at ts belongs to.
func DateKey(ts time.Time) string {
	return ts.Format("2006-01-02")
}

// Punch applies one accepted identification for ownerID and returns the
// updated state. Absent goes to checked-in, checked-in goes back to absent
// with a recorded punch-out. Either direction inside the cooldown window
// returns ErrTooSoon and leaves stored state untouched.
func (t *Tracker) Punch(ctx context.Context, ownerID string) (State, error) {
	lock := t.ownerLock(ownerID)
	lock.Lock()
	defer lock.Unlock()

	now := t.now()
	date := DateKey(now)

	state, ok, err := t.store.LoadState(ctx, ownerID, date)
	if err != nil {
		return State{}, fmt.Errorf("load attendance state: %w", err)
	}
	if !ok {
		state = State{OwnerID: ownerID, Date: date, LastAction: ActionNone}
	}

	if state.LastAction != ActionNone && now.Sub(state.LastEventAt) < t.cooldown {
		return state, ErrTooSoon
	}

	if state.CheckedIn() {
		out := now
		state.PunchOutAt = &out
		state.LastAction = ActionPunchOut
	} else {
		in := now
		state.PunchInAt = &in
		state.LastAction = ActionPunchIn
	}
	state.LastEventAt = now

	if err := t.store.SaveState(ctx, state); err != nil {
		return State{}, fmt.Errorf("save attendance state: %w", err)
	}
	return state, nil
}

// Today returns the current-day state for an identity without mutating it.
func (t *Tracker) Today(ctx context.Context, ownerID string) (State, bool, error) {
	return t.store.LoadState(ctx, ownerID, DateKey(t.now()))
}
