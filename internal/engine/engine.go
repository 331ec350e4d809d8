// Package engine orchestrates the face pipeline: normalize, locate, crop,
// extract, then match and score liveness on the same crop. It owns the
// decision policy and the attendance transition; everything below it is a
// pure function of pixels, everything above it is transport.
package engine

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"strings"
	"time"

	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"

	"github.com/google/uuid"

	"github.com/facepass/facepass/internal/attendance"
	"github.com/facepass/facepass/internal/config"
	"github.com/facepass/facepass/internal/database"
	"github.com/facepass/facepass/internal/detect"
	"github.com/facepass/facepass/internal/fingerprint"
	"github.com/facepass/facepass/internal/gallery"
	"github.com/facepass/facepass/internal/liveness"
)

// Persistence is the store surface the engine writes through: enrollment
// rows on registration and audit events for every operational decision.
type Persistence interface {
	database.EnrollmentStore
	database.AuditStore
}

// ErrDeadline is returned when a pipeline call exceeds its per-call
// deadline. No attendance state is mutated on this path.
var ErrDeadline = errors.New("pipeline deadline exceeded")

// ErrSpoof rejects an enrollment whose image fails the liveness check.
// During identification a spoof is an ordinary result, not an error.
var ErrSpoof = errors.New("liveness check failed")

// Decision is the outcome of an identification attempt.
type Decision string

const (
	DecisionAccepted Decision = "accepted"
	DecisionNoMatch  Decision = "no_match"
	DecisionSpoof    Decision = "spoof"
	DecisionNoFace   Decision = "no_face"
)

// IdentifyResult carries the identification decision and, when accepted,
// the attendance transition it produced.
type IdentifyResult struct {
	Decision   Decision        `json:"decision"`
	OwnerID    string          `json:"employee_id,omitempty"`
	Name       string          `json:"name,omitempty"`
	Similarity float64         `json:"similarity"`
	Liveness   liveness.Score  `json:"liveness"`
	Region     image.Rectangle `json:"region"`

	// TooSoon is set when the match was accepted but the punch fell inside
	// the cooldown window; Attendance then holds the unchanged state.
	TooSoon    bool              `json:"too_soon,omitempty"`
	Attendance *attendance.State `json:"attendance,omitempty"`
}

// AnalyzeResult is the detection-plus-liveness preview for UI feedback.
// No gallery lookup and no attendance mutation happens on this path.
type AnalyzeResult struct {
	FaceFound bool            `json:"face_found"`
	Region    image.Rectangle `json:"region"`
	Liveness  liveness.Score  `json:"liveness"`
	Live      bool            `json:"live"`
}

// Enrollment is the identity half of an enrollment request; the frame
// comes in separately. Email and Department are optional.
type Enrollment struct {
	OwnerID    string
	Name       string
	Email      string
	Department string
}

// EnrollResult reports a successful enrollment.
type EnrollResult struct {
	OwnerID    string         `json:"employee_id"`
	Name       string         `json:"name"`
	Email      string         `json:"email,omitempty"`
	Department string         `json:"department,omitempty"`
	Liveness   liveness.Score `json:"liveness"`
	EnrolledAt time.Time      `json:"enrolled_at"`
}

// Engine runs the pipeline against a shared gallery and attendance
// tracker. Safe for concurrent use.
type Engine struct {
	locator    detect.Locator
	gallery    *gallery.Gallery
	tracker    *attendance.Tracker
	store      Persistence
	thresholds config.ThresholdsConfig
	now        func() time.Time
}

// New assembles an engine. The gallery must already be loaded.
func New(locator detect.Locator, g *gallery.Gallery, tracker *attendance.Tracker, store Persistence, thresholds config.ThresholdsConfig) *Engine {
	return &Engine{
		locator:    locator,
		gallery:    g,
		tracker:    tracker,
		store:      store,
		thresholds: thresholds,
		now:        time.Now,
	}
}

// audit records a decision best-effort. The attendance and enrollment
// tables are the source of truth; a failed audit append never fails the
// call that produced it.
func (e *Engine) audit(ctx context.Context, eventType, ownerID string, score float64, frameHash string) {
	_ = e.store.AppendEvent(ctx, database.AuditEvent{
		ID:        uuid.NewString(),
		Type:      eventType,
		OwnerID:   ownerID,
		Score:     score,
		FrameHash: frameHash,
		CreatedAt: e.now(),
	})
}

// frameHash tags audit events with a perceptual hash of the frame that
// produced them. Identical hashes on distinct events expose replayed
// stills. Best-effort: an undecodable frame never reaches this point.
func frameHash(imageBytes []byte) string {
	h, err := fingerprint.FrameHash(imageBytes)
	if err != nil {
		return ""
	}
	return h
}

// Gallery exposes the engine's gallery for read-side callers.
func (e *Engine) Gallery() *gallery.Gallery {
	return e.gallery
}

// Tracker exposes the attendance tracker for read-side callers.
func (e *Engine) Tracker() *attendance.Tracker {
	return e.tracker
}

// deadlineCtx derives the per-call deadline context.
func (e *Engine) deadlineCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, e.thresholds.Deadline())
}

// checkDeadline maps context expiry to ErrDeadline between stages.
func checkDeadline(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrDeadline, err)
	}
	return nil
}

// stages holds the intermediate products of one pipeline run.
type stages struct {
	frame      image.Image
	region     detect.Region
	crop       image.Image
	descriptor fingerprint.Descriptor
	score      liveness.Score
}

// run executes decode through liveness. Returns detect.ErrNoFace when the
// frame holds no face, fingerprint.ErrInvalidImage for undecodable input.
func (e *Engine) run(ctx context.Context, imageBytes []byte) (*stages, error) {
	frame, _, err := image.Decode(bytes.NewReader(imageBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", fingerprint.ErrInvalidImage, err)
	}
	if err := checkDeadline(ctx); err != nil {
		return nil, err
	}

	normalized := fingerprint.Normalize(frame)
	if err := checkDeadline(ctx); err != nil {
		return nil, err
	}

	regions, err := e.locator.Locate(ctx, normalized)
	if err != nil {
		return nil, err
	}
	region, err := detect.Principal(regions)
	if err != nil {
		return nil, err
	}
	if err := checkDeadline(ctx); err != nil {
		return nil, err
	}

	crop := detect.Crop(normalized, region.Rect, e.thresholds.CropMargin)
	descriptor, err := fingerprint.Extract(crop)
	if err != nil {
		return nil, err
	}
	if err := checkDeadline(ctx); err != nil {
		return nil, err
	}

	return &stages{
		frame:      normalized,
		region:     region,
		crop:       crop,
		descriptor: descriptor,
		score:      liveness.Rate(crop, descriptor.Texture()),
	}, nil
}

// Identify runs the full pipeline and, on an accepted live match, applies
// the attendance transition. NoMatch, Spoof and NoFace come back as result
// variants; only invalid input, deadline expiry and store failures are
// errors.
func (e *Engine) Identify(ctx context.Context, imageBytes []byte) (IdentifyResult, error) {
	ctx, cancel := e.deadlineCtx(ctx)
	defer cancel()

	st, err := e.run(ctx, imageBytes)
	if errors.Is(err, detect.ErrNoFace) {
		return IdentifyResult{Decision: DecisionNoFace}, nil
	}
	if err != nil {
		return IdentifyResult{}, err
	}

	result := IdentifyResult{
		Liveness: st.score,
		Region:   st.region.Rect,
	}

	record, similarity, ok := e.gallery.Match(st.descriptor)
	result.Similarity = similarity
	if !ok {
		result.Decision = DecisionNoMatch
		e.audit(context.WithoutCancel(ctx), database.EventUnrecognized, "", similarity, frameHash(imageBytes))
		return result, nil
	}

	// A passing match never overrides a failed liveness check.
	if !st.score.Live(e.thresholds.Liveness) {
		result.Decision = DecisionSpoof
		result.OwnerID = record.OwnerID
		result.Name = record.Name
		e.audit(context.WithoutCancel(ctx), database.EventFailedSpoof, record.OwnerID, st.score.Liveness, frameHash(imageBytes))
		return result, nil
	}

	result.Decision = DecisionAccepted
	result.OwnerID = record.OwnerID
	result.Name = record.Name

	if err := checkDeadline(ctx); err != nil {
		return IdentifyResult{}, err
	}

	state, err := e.tracker.Punch(ctx, record.OwnerID)
	if errors.Is(err, attendance.ErrTooSoon) {
		result.TooSoon = true
		result.Attendance = &state
		return result, nil
	}
	if err != nil {
		return IdentifyResult{}, err
	}
	result.Attendance = &state

	eventType := database.EventPunchIn
	if state.LastAction == attendance.ActionPunchOut {
		eventType = database.EventPunchOut
	}
	e.audit(context.WithoutCancel(ctx), eventType, record.OwnerID, similarity, frameHash(imageBytes))
	return result, nil
}

// Enroll registers a new identity. The image must contain a live face that
// does not already match an enrolled identity above the duplicate
// threshold.
func (e *Engine) Enroll(ctx context.Context, req Enrollment, imageBytes []byte) (EnrollResult, error) {
	ctx, cancel := e.deadlineCtx(ctx)
	defer cancel()

	st, err := e.run(ctx, imageBytes)
	if err != nil {
		return EnrollResult{}, err
	}

	if !st.score.Live(e.thresholds.Liveness) {
		return EnrollResult{}, fmt.Errorf("%w: liveness %.3f below %.2f",
			ErrSpoof, st.score.Liveness, e.thresholds.Liveness)
	}

	record := gallery.Record{
		OwnerID:    req.OwnerID,
		Name:       gallery.NormalizeName(req.Name),
		Email:      strings.TrimSpace(req.Email),
		Department: strings.TrimSpace(req.Department),
		Descriptor: st.descriptor,
		EnrolledAt: e.now(),
	}
	if err := e.gallery.Enroll(record); err != nil {
		return EnrollResult{}, err
	}

	row := database.EnrollmentRow{
		OwnerID:    record.OwnerID,
		Name:       record.Name,
		Email:      record.Email,
		Department: record.Department,
		Descriptor: record.Descriptor,
		Active:     true,
		EnrolledAt: record.EnrolledAt,
	}
	if err := e.store.AppendEnrollment(context.WithoutCancel(ctx), row); err != nil {
		// Keep the gallery consistent with the store.
		_ = e.gallery.Remove(record.OwnerID)
		return EnrollResult{}, fmt.Errorf("persist enrollment: %w", err)
	}
	e.audit(context.WithoutCancel(ctx), database.EventRegistration, record.OwnerID, st.score.Liveness, frameHash(imageBytes))

	return EnrollResult{
		OwnerID:    record.OwnerID,
		Name:       record.Name,
		Email:      record.Email,
		Department: record.Department,
		Liveness:   st.score,
		EnrolledAt: record.EnrolledAt,
	}, nil
}

// Deactivate removes an identity from the gallery and marks its
// enrollment inactive in the store.
func (e *Engine) Deactivate(ctx context.Context, ownerID string) error {
	if err := e.gallery.Remove(ownerID); err != nil {
		return err
	}
	if err := e.store.DeactivateEnrollment(ctx, ownerID); err != nil {
		return fmt.Errorf("deactivate enrollment: %w", err)
	}
	e.audit(ctx, database.EventDeactivation, ownerID, 0, "")
	return nil
}

// Analyze runs detection and liveness only. A frame without a face is an
// ordinary result, not an error, so UIs can poll it cheaply.
func (e *Engine) Analyze(ctx context.Context, imageBytes []byte) (AnalyzeResult, error) {
	ctx, cancel := e.deadlineCtx(ctx)
	defer cancel()

	st, err := e.run(ctx, imageBytes)
	if errors.Is(err, detect.ErrNoFace) {
		return AnalyzeResult{FaceFound: false}, nil
	}
	if err != nil {
		return AnalyzeResult{}, err
	}

	return AnalyzeResult{
		FaceFound: true,
		Region:    st.region.Rect,
		Liveness:  st.score,
		Live:      st.score.Live(e.thresholds.Liveness),
	}, nil
}
