// Package detect finds face regions in a frame. The detection backend is an
// implementation detail behind the Locator interface: a classical pigo
// cascade and an ONNX-based learned detector are provided and selected at
// configuration time. Callers never depend on which variant is active.
package detect

import (
	"context"
	"errors"
	"image"
	"sort"
)

// ErrNoFace is returned when a frame contains no detectable face.
var ErrNoFace = errors.New("no face detected")

// Region is an axis-aligned face bounding box with the detector's
// confidence. Detectors without a native confidence score report the region
// area instead so ordering stays meaningful.
type Region struct {
	Rect  image.Rectangle
	Score float64
}

// Area returns the pixel area of the region.
func (r Region) Area() int {
	return r.Rect.Dx() * r.Rect.Dy()
}

// Locator locates face regions in a frame, ordered by detector confidence.
type Locator interface {
	Locate(ctx context.Context, img image.Image) ([]Region, error)
}

// Principal selects the single region this engine operates on. Multi-face
// frames are not supported, so the largest-area region wins; equal areas
// fall back to the leftmost region to keep selection deterministic. This is
// policy, not a detector guarantee.
func Principal(regions []Region) (Region, error) {
	if len(regions) == 0 {
		return Region{}, ErrNoFace
	}

	best := regions[0]
	for _, r := range regions[1:] {
		if r.Area() > best.Area() ||
			(r.Area() == best.Area() && r.Rect.Min.X < best.Rect.Min.X) {
			best = r
		}
	}
	return best, nil
}

// Crop extracts the region from the frame with the given relative margin on
// every side, clamped to the frame bounds. Returns a new buffer.
func Crop(img image.Image, rect image.Rectangle, margin float64) image.Image {
	bounds := img.Bounds()

	mx := int(float64(rect.Dx()) * margin)
	my := int(float64(rect.Dy()) * margin)
	expanded := image.Rect(rect.Min.X-mx, rect.Min.Y-my, rect.Max.X+mx, rect.Max.Y+my)
	expanded = expanded.Intersect(bounds)

	out := image.NewRGBA(image.Rect(0, 0, expanded.Dx(), expanded.Dy()))
	for y := 0; y < expanded.Dy(); y++ {
		for x := 0; x < expanded.Dx(); x++ {
			out.Set(x, y, img.At(expanded.Min.X+x, expanded.Min.Y+y))
		}
	}
	return out
}

// sortByScore orders regions by descending detector confidence.
func sortByScore(regions []Region) {
	sort.Slice(regions, func(i, j int) bool {
		return regions[i].Score > regions[j].Score
	})
}
