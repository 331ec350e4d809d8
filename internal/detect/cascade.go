package detect

import (
	"context"
	"fmt"
	"image"
	"os"

	pigo "github.com/esimov/pigo/core"
)

// Cascade parameters. Faces smaller than minFaceSize pixels are ignored;
// the shift and scale factors control the sliding-window density.
const (
	cascadeMinFaceSize  = 60
	cascadeShiftFactor  = 0.1
	cascadeScaleFactor  = 1.1
	cascadeQualityFloor = 5.0
	cascadeClusterIoU   = 0.2
)

// CascadeLocator detects faces with a pigo binary cascade. It is pure Go
// and needs no external runtime, only the cascade file on disk.
type CascadeLocator struct {
	classifier *pigo.Pigo
}

// NewCascadeLocator loads the binary cascade from the given path.
func NewCascadeLocator(cascadePath string) (*CascadeLocator, error) {
	data, err := os.ReadFile(cascadePath)
	if err != nil {
		return nil, fmt.Errorf("reading cascade file: %w", err)
	}

	classifier, err := pigo.NewPigo().Unpack(data)
	if err != nil {
		return nil, fmt.Errorf("unpacking cascade: %w", err)
	}

	return &CascadeLocator{classifier: classifier}, nil
}

// Locate runs the cascade over the frame and returns detected face regions
// ordered by detection quality.
func (l *CascadeLocator) Locate(ctx context.Context, img image.Image) ([]Region, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	bounds := img.Bounds()
	cols := bounds.Dx()
	rows := bounds.Dy()
	if cols == 0 || rows == 0 {
		return nil, nil
	}

	maxSize := rows
	if cols < rows {
		maxSize = cols
	}

	params := pigo.CascadeParams{
		MinSize:     cascadeMinFaceSize,
		MaxSize:     maxSize,
		ShiftFactor: cascadeShiftFactor,
		ScaleFactor: cascadeScaleFactor,
		ImageParams: pigo.ImageParams{
			Pixels: grayPixels(img),
			Rows:   rows,
			Cols:   cols,
			Dim:    cols,
		},
	}

	dets := l.classifier.RunCascade(params, 0.0)
	dets = l.classifier.ClusterDetections(dets, cascadeClusterIoU)

	regions := make([]Region, 0, len(dets))
	for _, d := range dets {
		if d.Q < cascadeQualityFloor {
			continue
		}
		half := d.Scale / 2
		rect := image.Rect(d.Col-half, d.Row-half, d.Col+half, d.Row+half).
			Intersect(bounds.Sub(bounds.Min))
		if rect.Empty() {
			continue
		}
		regions = append(regions, Region{Rect: rect, Score: float64(d.Q)})
	}

	sortByScore(regions)
	return regions, nil
}

// grayPixels converts a frame to the flat row-major grayscale plane pigo
// expects.
func grayPixels(img image.Image) []uint8 {
	bounds := img.Bounds()
	width := bounds.Dx()
	height := bounds.Dy()

	pixels := make([]uint8, width*height)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			r, g, b, _ := img.At(bounds.Min.X+x, bounds.Min.Y+y).RGBA()
			v := 0.299*float64(r>>8) + 0.587*float64(g>>8) + 0.114*float64(b>>8)
			pixels[y*width+x] = uint8(v + 0.5)
		}
	}
	return pixels
}
