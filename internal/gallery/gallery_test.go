package gallery

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/facepass/facepass/internal/fingerprint"
)

// peakedDescriptor builds a valid descriptor with each segment's mass
// concentrated on one bin, so similarity between two descriptors is easy to
// reason about: identical peaks give 1.0, disjoint peaks give 0.0.
func peakedDescriptor(texture, intensity, gradient, hue int) fingerprint.Descriptor {
	d := make(fingerprint.Descriptor, fingerprint.DescriptorLen)
	d[texture%fingerprint.TextureBins] = 1
	d[fingerprint.TextureBins+intensity%fingerprint.IntensityBins] = 1
	d[fingerprint.TextureBins+fingerprint.IntensityBins+gradient%fingerprint.GradientBins] = 1
	d[fingerprint.TextureBins+fingerprint.IntensityBins+fingerprint.GradientBins+hue%fingerprint.HueBins] = 1
	return d
}

func newTestGallery(t *testing.T) *Gallery {
	t.Helper()
	return New(0.5, 0.7)
}

func TestEnrollAndMatch(t *testing.T) {
	g := newTestGallery(t)

	rec := Record{
		OwnerID:    "emp-001",
		Name:       "alice novak",
		Descriptor: peakedDescriptor(1, 2, 3, 4),
		EnrolledAt: time.Now(),
	}
	if err := g.Enroll(rec); err != nil {
		t.Fatalf("Enroll() error = %v", err)
	}

	got, score, ok := g.Match(rec.Descriptor)
	if !ok {
		t.Fatal("Match() did not accept an identical descriptor")
	}
	if got.OwnerID != "emp-001" {
		t.Errorf("Match() owner = %s, want emp-001", got.OwnerID)
	}
	if score < 0.999 {
		t.Errorf("Match() score = %v, want ~1.0", score)
	}
}

func TestMatchBelowThreshold(t *testing.T) {
	g := newTestGallery(t)

	if err := g.Enroll(Record{OwnerID: "emp-001", Descriptor: peakedDescriptor(1, 2, 3, 4)}); err != nil {
		t.Fatalf("Enroll() error = %v", err)
	}

	_, score, ok := g.Match(peakedDescriptor(10, 20, 13, 14))
	if ok {
		t.Errorf("Match() accepted a disjoint descriptor at score %v", score)
	}
	if score != 0 {
		t.Errorf("Match() score = %v, want 0 for disjoint peaks", score)
	}
}

func TestMatchEmptyGallery(t *testing.T) {
	g := newTestGallery(t)
	if _, _, ok := g.Match(peakedDescriptor(1, 2, 3, 4)); ok {
		t.Error("Match() accepted against an empty gallery")
	}
}

func TestMatchTieBreakLowestOwner(t *testing.T) {
	g := newTestGallery(t)
	d := peakedDescriptor(1, 2, 3, 4)

	// Same descriptor under two owners; the duplicate guard would normally
	// block this, so seed directly through a loader.
	err := g.Load(context.Background(), loaderFunc(func(context.Context) ([]Record, error) {
		return []Record{
			{OwnerID: "emp-200", Descriptor: d},
			{OwnerID: "emp-100", Descriptor: d},
		}, nil
	}))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	for i := 0; i < 20; i++ {
		got, _, ok := g.Match(d)
		if !ok {
			t.Fatal("Match() did not accept")
		}
		if got.OwnerID != "emp-100" {
			t.Fatalf("Match() owner = %s, want emp-100 (lowest wins ties)", got.OwnerID)
		}
	}
}

func TestEnrollDuplicateFace(t *testing.T) {
	g := newTestGallery(t)
	d := peakedDescriptor(1, 2, 3, 4)

	if err := g.Enroll(Record{OwnerID: "emp-001", Descriptor: d}); err != nil {
		t.Fatalf("Enroll() error = %v", err)
	}

	err := g.Enroll(Record{OwnerID: "emp-002", Descriptor: d})
	if !errors.Is(err, ErrAlreadyEnrolled) {
		t.Fatalf("Enroll() with duplicate face error = %v, want ErrAlreadyEnrolled", err)
	}
	if g.Size() != 1 {
		t.Errorf("gallery size = %d after rejected enrollment, want 1", g.Size())
	}
}

func TestEnrollTakenOwnerID(t *testing.T) {
	g := newTestGallery(t)

	if err := g.Enroll(Record{OwnerID: "emp-001", Descriptor: peakedDescriptor(1, 2, 3, 4)}); err != nil {
		t.Fatalf("Enroll() error = %v", err)
	}
	err := g.Enroll(Record{OwnerID: "emp-001", Descriptor: peakedDescriptor(9, 9, 9, 9)})
	if !errors.Is(err, ErrAlreadyEnrolled) {
		t.Fatalf("Enroll() with taken owner error = %v, want ErrAlreadyEnrolled", err)
	}
}

func TestEnrollDuplicateEmail(t *testing.T) {
	g := newTestGallery(t)

	if err := g.Enroll(Record{OwnerID: "emp-001", Email: "alice@example.com", Descriptor: peakedDescriptor(1, 2, 3, 4)}); err != nil {
		t.Fatalf("Enroll() error = %v", err)
	}

	// The address comparison ignores case.
	err := g.Enroll(Record{OwnerID: "emp-002", Email: "Alice@Example.COM", Descriptor: peakedDescriptor(9, 9, 9, 9)})
	if !errors.Is(err, ErrEmailTaken) {
		t.Fatalf("Enroll() with reused email error = %v, want ErrEmailTaken", err)
	}
	if g.Size() != 1 {
		t.Errorf("gallery size = %d after rejected email, want 1", g.Size())
	}

	if err := g.Enroll(Record{OwnerID: "emp-003", Email: "bob@example.com", Descriptor: peakedDescriptor(9, 9, 9, 9)}); err != nil {
		t.Fatalf("Enroll() with fresh email error = %v", err)
	}

	// Records without an address never collide with each other.
	if err := g.Enroll(Record{OwnerID: "emp-004", Descriptor: peakedDescriptor(5, 6, 7, 8)}); err != nil {
		t.Fatalf("Enroll() without email error = %v", err)
	}
	if err := g.Enroll(Record{OwnerID: "emp-005", Descriptor: peakedDescriptor(2, 4, 6, 8)}); err != nil {
		t.Fatalf("Enroll() without email error = %v", err)
	}
}

func TestRemove(t *testing.T) {
	g := newTestGallery(t)

	if err := g.Enroll(Record{OwnerID: "emp-001", Descriptor: peakedDescriptor(1, 2, 3, 4)}); err != nil {
		t.Fatalf("Enroll() error = %v", err)
	}
	if err := g.Remove("emp-001"); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}
	if err := g.Remove("emp-001"); !errors.Is(err, ErrUnknownOwner) {
		t.Errorf("Remove() of missing owner error = %v, want ErrUnknownOwner", err)
	}
	if _, _, ok := g.Match(peakedDescriptor(1, 2, 3, 4)); ok {
		t.Error("Match() accepted a removed identity")
	}
}

func TestConcurrentEnrollSingleWinner(t *testing.T) {
	g := newTestGallery(t)
	d := peakedDescriptor(1, 2, 3, 4)

	const workers = 16
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		go func(n int) {
			errs <- g.Enroll(Record{
				OwnerID:    string(rune('a' + n)),
				Descriptor: d,
			})
		}(i)
	}

	var accepted int
	for i := 0; i < workers; i++ {
		if err := <-errs; err == nil {
			accepted++
		} else if !errors.Is(err, ErrAlreadyEnrolled) {
			t.Fatalf("Enroll() error = %v", err)
		}
	}
	if accepted != 1 {
		t.Errorf("%d concurrent enrollments of the same face accepted, want 1", accepted)
	}
}

func TestNormalizeName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Jiří Novák", "jiri novak"},
		{"  Anna-Marie  Dvořák ", "anna marie dvorak"},
		{"BOB", "bob"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := NormalizeName(tt.in); got != tt.want {
			t.Errorf("NormalizeName(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

type loaderFunc func(ctx context.Context) ([]Record, error)

func (f loaderFunc) Enrollments(ctx context.Context) ([]Record, error) { return f(ctx) }
