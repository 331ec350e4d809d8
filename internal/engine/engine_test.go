package engine

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"math/rand"
	"testing"
	"time"

	"github.com/facepass/facepass/internal/attendance"
	"github.com/facepass/facepass/internal/config"
	"github.com/facepass/facepass/internal/database"
	"github.com/facepass/facepass/internal/database/mock"
	"github.com/facepass/facepass/internal/detect"
	"github.com/facepass/facepass/internal/fingerprint"
	"github.com/facepass/facepass/internal/gallery"
)

// stubLocator reports the whole frame as one face region.
type stubLocator struct {
	err   error
	delay time.Duration
}

func (s stubLocator) Locate(ctx context.Context, img image.Image) ([]detect.Region, error) {
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if s.err != nil {
		return nil, s.err
	}
	return []detect.Region{{Rect: img.Bounds(), Score: 1}}, nil
}

// facePNG encodes a deterministic noisy frame; the noise gives it enough
// texture and sharpness to pass the liveness check.
func facePNG(t *testing.T, seed int64) []byte {
	t.Helper()

	rng := rand.New(rand.NewSource(seed))
	img := image.NewRGBA(image.Rect(0, 0, 160, 160))
	for y := 0; y < 160; y++ {
		for x := 0; x < 160; x++ {
			v := uint8(rng.Intn(256))
			img.Set(x, y, color.RGBA{R: v, G: v / 2, B: 255 - v, A: 255})
		}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode test image: %v", err)
	}
	return buf.Bytes()
}

// blockPNG encodes a coarse two-tone checkerboard. Its descriptor
// concentrates every segment into a few bins, far from the noisy frame's
// spread-out histograms, so it never matches an enrollment made from
// facePNG.
func blockPNG(t *testing.T) []byte {
	t.Helper()

	img := image.NewRGBA(image.Rect(0, 0, 160, 160))
	for y := 0; y < 160; y++ {
		for x := 0; x < 160; x++ {
			v := uint8(40)
			if (x/40+y/40)%2 == 0 {
				v = 210
			}
			img.Set(x, y, color.RGBA{R: v, G: v, B: v, A: 255})
		}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode test image: %v", err)
	}
	return buf.Bytes()
}

type testEnv struct {
	engine  *Engine
	store   *mock.Store
	tracker *attendance.Tracker
	now     *time.Time
}

func newTestEnv(t *testing.T, thresholds config.ThresholdsConfig) *testEnv {
	t.Helper()

	store := mock.NewStore()
	now := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

	tracker := attendance.NewTracker(AttendanceStore{Store: store}, thresholds.Cooldown()).
		WithClock(func() time.Time { return now })

	g := gallery.New(thresholds.Match, thresholds.Duplicate)
	eng := New(stubLocator{}, g, tracker, store, thresholds)
	eng.now = func() time.Time { return now }

	return &testEnv{engine: eng, store: store, tracker: tracker, now: &now}
}

func defaultThresholds() config.ThresholdsConfig {
	return config.ThresholdsConfig{
		Match:      0.50,
		Duplicate:  0.70,
		Liveness:   0.05,
		CropMargin: 0.20,
		CooldownS:  60,
		DeadlineMs: 5000,
	}
}

func TestEnrollThenPunchCycle(t *testing.T) {
	env := newTestEnv(t, defaultThresholds())
	ctx := context.Background()
	img := facePNG(t, 1)

	enrolled, err := env.engine.Enroll(ctx, Enrollment{OwnerID: "emp-001", Name: "Alice Nováková"}, img)
	if err != nil {
		t.Fatalf("Enroll() error = %v", err)
	}
	if enrolled.Name != "alice novakova" {
		t.Errorf("enrolled name = %q, want normalized form", enrolled.Name)
	}
	if env.engine.Gallery().Size() != 1 {
		t.Fatalf("gallery size = %d, want 1", env.engine.Gallery().Size())
	}

	// Same face punches in.
	result, err := env.engine.Identify(ctx, img)
	if err != nil {
		t.Fatalf("Identify() error = %v", err)
	}
	if result.Decision != DecisionAccepted {
		t.Fatalf("decision = %s, want accepted (similarity %.3f, liveness %.3f)",
			result.Decision, result.Similarity, result.Liveness.Liveness)
	}
	if result.OwnerID != "emp-001" {
		t.Errorf("owner = %s, want emp-001", result.OwnerID)
	}
	if result.Attendance == nil || result.Attendance.LastAction != attendance.ActionPunchIn {
		t.Fatalf("attendance after first identify = %+v, want punch-in", result.Attendance)
	}

	// Immediately again: cooldown holds, state unchanged.
	result, err = env.engine.Identify(ctx, img)
	if err != nil {
		t.Fatalf("Identify() inside cooldown error = %v", err)
	}
	if !result.TooSoon {
		t.Fatal("identify inside cooldown did not report TooSoon")
	}
	if result.Attendance.LastAction != attendance.ActionPunchIn {
		t.Errorf("state mutated inside cooldown: %+v", result.Attendance)
	}

	// After the cooldown the same face punches out.
	*env.now = env.now.Add(2 * time.Minute)
	result, err = env.engine.Identify(ctx, img)
	if err != nil {
		t.Fatalf("Identify() after cooldown error = %v", err)
	}
	if result.Decision != DecisionAccepted || result.TooSoon {
		t.Fatalf("post-cooldown result = %+v", result)
	}
	if result.Attendance.LastAction != attendance.ActionPunchOut {
		t.Errorf("action = %s, want punch-out", result.Attendance.LastAction)
	}
	if result.Attendance.CheckedIn() {
		t.Error("identity still checked in after punch-out")
	}
}

func TestIdentifyUnknownFace(t *testing.T) {
	env := newTestEnv(t, defaultThresholds())
	ctx := context.Background()

	if _, err := env.engine.Enroll(ctx, Enrollment{OwnerID: "emp-001", Name: "alice"}, facePNG(t, 1)); err != nil {
		t.Fatalf("Enroll() error = %v", err)
	}

	result, err := env.engine.Identify(ctx, blockPNG(t))
	if err != nil {
		t.Fatalf("Identify() error = %v", err)
	}
	if result.Decision != DecisionNoMatch {
		t.Fatalf("decision = %s (similarity %.3f), want no_match", result.Decision, result.Similarity)
	}
	if result.Attendance != nil {
		t.Error("no-match identification created attendance state")
	}
	if _, ok, _ := env.tracker.Today(ctx, "emp-001"); ok {
		t.Error("attendance state exists for untouched identity")
	}
}

func TestIdentifySpoofOverridesMatch(t *testing.T) {
	thresholds := defaultThresholds()
	env := newTestEnv(t, thresholds)
	ctx := context.Background()
	img := facePNG(t, 1)

	if _, err := env.engine.Enroll(ctx, Enrollment{OwnerID: "emp-001", Name: "alice"}, img); err != nil {
		t.Fatalf("Enroll() error = %v", err)
	}

	// Raise the liveness bar so the same frame now reads as a spoof while
	// its similarity still clears the match threshold.
	env.engine.thresholds.Liveness = 0.999

	result, err := env.engine.Identify(ctx, img)
	if err != nil {
		t.Fatalf("Identify() error = %v", err)
	}
	if result.Similarity < thresholds.Match {
		t.Fatalf("similarity %.3f below match threshold, test setup broken", result.Similarity)
	}
	if result.Decision != DecisionSpoof {
		t.Fatalf("decision = %s, want spoof despite passing similarity", result.Decision)
	}
	if result.OwnerID != "emp-001" {
		t.Errorf("spoof result owner = %s, want the matched identity", result.OwnerID)
	}
	if result.Attendance != nil {
		t.Error("spoof identification mutated attendance")
	}
}

func TestIdentifyNoFace(t *testing.T) {
	env := newTestEnv(t, defaultThresholds())
	env.engine.locator = stubLocator{err: detect.ErrNoFace}

	result, err := env.engine.Identify(context.Background(), facePNG(t, 1))
	if err != nil {
		t.Fatalf("Identify() error = %v", err)
	}
	if result.Decision != DecisionNoFace {
		t.Errorf("decision = %s, want no_face", result.Decision)
	}
}

func TestInvalidImage(t *testing.T) {
	env := newTestEnv(t, defaultThresholds())
	ctx := context.Background()

	for _, payload := range [][]byte{nil, {}, []byte("not an image"), facePNG(t, 1)[:40]} {
		if _, err := env.engine.Identify(ctx, payload); !errors.Is(err, fingerprint.ErrInvalidImage) {
			t.Errorf("Identify(%d bytes) error = %v, want ErrInvalidImage", len(payload), err)
		}
		if _, err := env.engine.Enroll(ctx, Enrollment{OwnerID: "emp-001", Name: "alice"}, payload); !errors.Is(err, fingerprint.ErrInvalidImage) {
			t.Errorf("Enroll(%d bytes) error = %v, want ErrInvalidImage", len(payload), err)
		}
	}
	if env.engine.Gallery().Size() != 0 {
		t.Error("invalid image mutated the gallery")
	}
}

func TestEnrollDuplicateFace(t *testing.T) {
	env := newTestEnv(t, defaultThresholds())
	ctx := context.Background()
	img := facePNG(t, 1)

	if _, err := env.engine.Enroll(ctx, Enrollment{OwnerID: "emp-001", Name: "alice"}, img); err != nil {
		t.Fatalf("Enroll() error = %v", err)
	}
	_, err := env.engine.Enroll(ctx, Enrollment{OwnerID: "emp-002", Name: "bob"}, img)
	if !errors.Is(err, gallery.ErrAlreadyEnrolled) {
		t.Fatalf("duplicate Enroll() error = %v, want ErrAlreadyEnrolled", err)
	}
	if env.engine.Gallery().Size() != 1 {
		t.Errorf("gallery size = %d after rejected duplicate, want 1", env.engine.Gallery().Size())
	}
}

func TestEnrollContactFields(t *testing.T) {
	env := newTestEnv(t, defaultThresholds())
	ctx := context.Background()

	enrolled, err := env.engine.Enroll(ctx, Enrollment{
		OwnerID:    "emp-001",
		Name:       "alice",
		Email:      " alice@example.com ",
		Department: "engineering",
	}, facePNG(t, 1))
	if err != nil {
		t.Fatalf("Enroll() error = %v", err)
	}
	if enrolled.Email != "alice@example.com" || enrolled.Department != "engineering" {
		t.Errorf("result contact fields = %q / %q", enrolled.Email, enrolled.Department)
	}

	rows, err := env.store.ActiveEnrollments(ctx)
	if err != nil {
		t.Fatalf("ActiveEnrollments() error = %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("persisted %d enrollments, want 1", len(rows))
	}
	if rows[0].Email != "alice@example.com" || rows[0].Department != "engineering" {
		t.Errorf("persisted contact fields = %q / %q", rows[0].Email, rows[0].Department)
	}

	// A different face reusing the address is rejected, regardless of case.
	_, err = env.engine.Enroll(ctx, Enrollment{
		OwnerID: "emp-002",
		Name:    "bob",
		Email:   "Alice@Example.com",
	}, facePNG(t, 2))
	if !errors.Is(err, gallery.ErrEmailTaken) {
		t.Fatalf("Enroll() with reused email error = %v, want ErrEmailTaken", err)
	}
	if env.engine.Gallery().Size() != 1 {
		t.Errorf("gallery size = %d after rejected email, want 1", env.engine.Gallery().Size())
	}
}

func TestEnrollPersistFailureRollsBack(t *testing.T) {
	env := newTestEnv(t, defaultThresholds())
	env.store.AppendEnrollmentError = errors.New("injected store failure")

	_, err := env.engine.Enroll(context.Background(), Enrollment{OwnerID: "emp-001", Name: "alice"}, facePNG(t, 1))
	if err == nil {
		t.Fatal("Enroll() with failing store returned nil error")
	}
	if env.engine.Gallery().Size() != 0 {
		t.Error("gallery kept a record the store rejected")
	}
}

func TestIdentifyDeadline(t *testing.T) {
	thresholds := defaultThresholds()
	thresholds.DeadlineMs = 20
	env := newTestEnv(t, thresholds)
	env.engine.locator = stubLocator{delay: 200 * time.Millisecond}

	_, err := env.engine.Identify(context.Background(), facePNG(t, 1))
	if !errors.Is(err, ErrDeadline) && !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Identify() past deadline error = %v", err)
	}
	if _, ok, _ := env.tracker.Today(context.Background(), "emp-001"); ok {
		t.Error("timed-out identification mutated attendance")
	}
}

func TestAnalyze(t *testing.T) {
	env := newTestEnv(t, defaultThresholds())
	ctx := context.Background()

	result, err := env.engine.Analyze(ctx, facePNG(t, 1))
	if err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}
	if !result.FaceFound || !result.Live {
		t.Errorf("Analyze() = %+v, want found live face", result)
	}
	if env.store.EventCount() != 0 {
		t.Error("analysis-only call wrote audit events")
	}

	env.engine.locator = stubLocator{err: detect.ErrNoFace}
	result, err = env.engine.Analyze(ctx, facePNG(t, 1))
	if err != nil {
		t.Fatalf("Analyze() with no face error = %v", err)
	}
	if result.FaceFound {
		t.Error("Analyze() reported a face the locator never found")
	}
}

func TestAuditTrail(t *testing.T) {
	env := newTestEnv(t, defaultThresholds())
	ctx := context.Background()
	img := facePNG(t, 1)

	if _, err := env.engine.Enroll(ctx, Enrollment{OwnerID: "emp-001", Name: "alice"}, img); err != nil {
		t.Fatalf("Enroll() error = %v", err)
	}
	if _, err := env.engine.Identify(ctx, img); err != nil {
		t.Fatalf("Identify() error = %v", err)
	}
	if _, err := env.engine.Identify(ctx, blockPNG(t)); err != nil {
		t.Fatalf("Identify() unknown error = %v", err)
	}

	events, err := env.store.RecentEvents(ctx, 10)
	if err != nil {
		t.Fatalf("RecentEvents() error = %v", err)
	}
	want := []string{database.EventUnrecognized, database.EventPunchIn, database.EventRegistration}
	if len(events) != len(want) {
		t.Fatalf("recorded %d events, want %d", len(events), len(want))
	}
	for i, e := range events {
		if e.Type != want[i] {
			t.Errorf("event[%d] = %s, want %s", i, e.Type, want[i])
		}
		if e.ID == "" {
			t.Errorf("event[%d] has no ID", i)
		}
		if len(e.FrameHash) != 16 {
			t.Errorf("event[%d] frame hash = %q, want 16 hex chars", i, e.FrameHash)
		}
	}

	// The registration and punch-in came from the same frame.
	if events[1].FrameHash != events[2].FrameHash {
		t.Errorf("same frame hashed differently: %s vs %s", events[1].FrameHash, events[2].FrameHash)
	}
	if events[0].FrameHash == events[1].FrameHash {
		t.Errorf("distinct frames produced the same hash %s", events[0].FrameHash)
	}
}

func TestDeactivate(t *testing.T) {
	env := newTestEnv(t, defaultThresholds())
	ctx := context.Background()
	img := facePNG(t, 1)

	if _, err := env.engine.Enroll(ctx, Enrollment{OwnerID: "emp-001", Name: "alice"}, img); err != nil {
		t.Fatalf("Enroll() error = %v", err)
	}
	if err := env.engine.Deactivate(ctx, "emp-001"); err != nil {
		t.Fatalf("Deactivate() error = %v", err)
	}
	if env.engine.Gallery().Size() != 0 {
		t.Error("gallery still holds deactivated identity")
	}
	result, err := env.engine.Identify(ctx, img)
	if err != nil {
		t.Fatalf("Identify() after deactivation error = %v", err)
	}
	if result.Decision != DecisionNoMatch {
		t.Errorf("decision = %s after deactivation, want no_match", result.Decision)
	}
	if err := env.engine.Deactivate(ctx, "emp-001"); !errors.Is(err, gallery.ErrUnknownOwner) {
		t.Errorf("second Deactivate() error = %v, want ErrUnknownOwner", err)
	}
}
