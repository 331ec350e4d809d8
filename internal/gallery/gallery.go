// Package gallery holds the in-memory enrollment gallery the matcher scans.
// The gallery is the authoritative working set; the database is only its
// durable backing. All reads take a shared lock, enrollment serializes the
// duplicate check and the append under a dedicated mutex so two concurrent
// enrollments of the same face cannot both pass the guard.
package gallery

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/facepass/facepass/internal/fingerprint"
)

// ErrAlreadyEnrolled is returned when a new descriptor matches an existing
// record above the duplicate threshold, or when the owner ID is taken.
var ErrAlreadyEnrolled = errors.New("already enrolled")

// ErrUnknownOwner is returned when an owner ID is not in the gallery.
var ErrUnknownOwner = errors.New("unknown owner")

// ErrEmailTaken is returned when an enrollment reuses another identity's
// email address.
var ErrEmailTaken = errors.New("email already registered")

// tieEpsilon is the similarity band inside which two candidates are
// considered tied and the lowest owner ID wins. Keeps matching
// deterministic when a gallery holds near-identical descriptors.
const tieEpsilon = 1e-9

// Record is a single enrolled identity.
type Record struct {
	OwnerID    string                 `json:"employee_id"`
	Name       string                 `json:"name"`
	Email      string                 `json:"email,omitempty"`
	Department string                 `json:"department,omitempty"`
	Descriptor fingerprint.Descriptor `json:"-"`
	EnrolledAt time.Time              `json:"enrolled_at"`
}

// Loader supplies enrollment records at startup, typically a database store.
type Loader interface {
	Enrollments(ctx context.Context) ([]Record, error)
}

// Gallery is the in-memory record set.
type Gallery struct {
	mu      sync.RWMutex
	records map[string]Record

	// enrollMu serializes duplicate-guard check and append. The RWMutex
	// alone is not enough: two writers could both scan, both miss, and
	// both insert the same face.
	enrollMu sync.Mutex

	matchThreshold     float64
	duplicateThreshold float64
}

// New creates an empty gallery with the given decision thresholds.
func New(matchThreshold, duplicateThreshold float64) *Gallery {
	return &Gallery{
		records:            make(map[string]Record),
		matchThreshold:     matchThreshold,
		duplicateThreshold: duplicateThreshold,
	}
}

// Load replaces the gallery contents from a loader. Called once at startup
// before the gallery is shared.
func (g *Gallery) Load(ctx context.Context, loader Loader) error {
	records, err := loader.Enrollments(ctx)
	if err != nil {
		return fmt.Errorf("load enrollments: %w", err)
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	g.records = make(map[string]Record, len(records))
	for _, r := range records {
		g.records[r.OwnerID] = r
	}
	return nil
}

// Match scans the gallery for the record most similar to d. The second
// return value is the best similarity even when no record clears the match
// threshold; ok reports whether the best candidate is an accepted match.
// Candidates within a tiny epsilon of each other resolve to the lowest
// owner ID so repeated calls give the same answer.
func (g *Gallery) Match(d fingerprint.Descriptor) (Record, float64, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var best Record
	bestScore := -1.0
	for _, r := range g.records {
		score := fingerprint.Similarity(d, r.Descriptor)
		if score > bestScore+tieEpsilon ||
			(score > bestScore-tieEpsilon && best.OwnerID != "" && r.OwnerID < best.OwnerID) {
			best = r
			bestScore = score
		}
	}

	if bestScore < 0 {
		return Record{}, 0, false
	}
	return best, bestScore, bestScore >= g.matchThreshold
}

// Enroll adds a record after the duplicate guards. A descriptor matching
// an existing record at or above the duplicate threshold, or a taken owner
// ID, fails with ErrAlreadyEnrolled naming the existing owner; a reused
// email fails with ErrEmailTaken.
func (g *Gallery) Enroll(rec Record) error {
	g.enrollMu.Lock()
	defer g.enrollMu.Unlock()

	g.mu.RLock()
	_, taken := g.records[rec.OwnerID]
	g.mu.RUnlock()
	if taken {
		return fmt.Errorf("owner %s: %w", rec.OwnerID, ErrAlreadyEnrolled)
	}

	if rec.Email != "" {
		g.mu.RLock()
		for _, r := range g.records {
			if strings.EqualFold(r.Email, rec.Email) {
				g.mu.RUnlock()
				return fmt.Errorf("email %s used by %s: %w", rec.Email, r.OwnerID, ErrEmailTaken)
			}
		}
		g.mu.RUnlock()
	}

	if existing, score, _ := g.Match(rec.Descriptor); score >= g.duplicateThreshold {
		return fmt.Errorf("face matches owner %s (similarity %.3f): %w",
			existing.OwnerID, score, ErrAlreadyEnrolled)
	}

	g.mu.Lock()
	g.records[rec.OwnerID] = rec
	g.mu.Unlock()
	return nil
}

// Remove deletes a record, used when an identity is deactivated.
func (g *Gallery) Remove(ownerID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.records[ownerID]; !ok {
		return fmt.Errorf("owner %s: %w", ownerID, ErrUnknownOwner)
	}
	delete(g.records, ownerID)
	return nil
}

// Get returns the record for an owner ID.
func (g *Gallery) Get(ownerID string) (Record, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	r, ok := g.records[ownerID]
	return r, ok
}

// List returns a snapshot of all records in no particular order.
func (g *Gallery) List() []Record {
	g.mu.RLock()
	defer g.mu.RUnlock()

	out := make([]Record, 0, len(g.records))
	for _, r := range g.records {
		out = append(out, r)
	}
	return out
}

// Size returns the number of enrolled identities.
func (g *Gallery) Size() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.records)
}
