package detect

import (
	"context"
	"fmt"
	"image"
	"math"
	"sync"

	"github.com/disintegration/imaging"
	ort "github.com/yalue/onnxruntime_go"
)

const (
	onnxInputSize     = 640
	onnxPredictions   = 8400
	onnxConfThreshold = 0.5
	onnxClusterIoU    = 0.45
)

var (
	ortInitOnce sync.Once
	ortInitErr  error
)

// initRuntime loads the ONNX runtime shared library once per process.
func initRuntime(libraryPath string) error {
	ortInitOnce.Do(func() {
		if libraryPath != "" {
			ort.SetSharedLibraryPath(libraryPath)
		}
		ortInitErr = ort.InitializeEnvironment()
	})
	return ortInitErr
}

// ONNXLocator runs a single-class face detection model exported to ONNX.
// The session holds pre-allocated input and output tensors, so Locate
// serializes inference with a mutex.
type ONNXLocator struct {
	mu      sync.Mutex
	session *ort.AdvancedSession
	input   *ort.Tensor[float32]
	output  *ort.Tensor[float32]
}

// NewONNXLocator initializes the runtime and creates an inference session
// for the model at modelPath. libraryPath points at the onnxruntime shared
// library; empty means the platform default lookup.
func NewONNXLocator(modelPath, libraryPath string) (*ONNXLocator, error) {
	if err := initRuntime(libraryPath); err != nil {
		return nil, fmt.Errorf("initialize onnx runtime: %w", err)
	}

	inputShape := ort.NewShape(1, 3, onnxInputSize, onnxInputSize)
	input, err := ort.NewEmptyTensor[float32](inputShape)
	if err != nil {
		return nil, fmt.Errorf("create input tensor: %w", err)
	}

	outputShape := ort.NewShape(1, 5, onnxPredictions)
	output, err := ort.NewEmptyTensor[float32](outputShape)
	if err != nil {
		input.Destroy()
		return nil, fmt.Errorf("create output tensor: %w", err)
	}

	options, err := ort.NewSessionOptions()
	if err != nil {
		input.Destroy()
		output.Destroy()
		return nil, fmt.Errorf("create session options: %w", err)
	}
	defer options.Destroy()

	session, err := ort.NewAdvancedSession(
		modelPath,
		[]string{"images"},
		[]string{"output0"},
		[]ort.ArbitraryTensor{input},
		[]ort.ArbitraryTensor{output},
		options,
	)
	if err != nil {
		input.Destroy()
		output.Destroy()
		return nil, fmt.Errorf("create session: %w", err)
	}

	return &ONNXLocator{
		session: session,
		input:   input,
		output:  output,
	}, nil
}

// Close releases the session and its tensors.
func (l *ONNXLocator) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.session != nil {
		l.session.Destroy()
		l.session = nil
	}
	if l.input != nil {
		l.input.Destroy()
		l.input = nil
	}
	if l.output != nil {
		l.output.Destroy()
		l.output = nil
	}
}

func (l *ONNXLocator) Locate(ctx context.Context, img image.Image) ([]Region, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.session == nil {
		return nil, fmt.Errorf("locator closed")
	}

	resized := imaging.Resize(img, onnxInputSize, onnxInputSize, imaging.Linear)
	fillInput(resized, l.input.GetData())

	if err := l.session.Run(); err != nil {
		return nil, fmt.Errorf("model inference: %w", err)
	}

	bounds := img.Bounds()
	regions := decodePredictions(l.output.GetData(), bounds.Dx(), bounds.Dy())
	regions = clusterRegions(regions, onnxClusterIoU)
	for i := range regions {
		regions[i].Rect = regions[i].Rect.Intersect(bounds)
	}
	sortByScore(regions)
	return regions, nil
}

// fillInput writes the frame into the input tensor in CHW planar layout
// with channels scaled to [0,1].
func fillInput(pic *image.NRGBA, buffer []float32) {
	channelSize := onnxInputSize * onnxInputSize
	for y := 0; y < onnxInputSize; y++ {
		offset := y * onnxInputSize
		row := pic.Pix[y*pic.Stride:]
		for x := 0; x < onnxInputSize; x++ {
			i := offset + x
			p := row[x*4:]
			buffer[i] = float32(p[0]) / 255.0
			buffer[channelSize+i] = float32(p[1]) / 255.0
			buffer[channelSize*2+i] = float32(p[2]) / 255.0
		}
	}
}

// decodePredictions converts the raw 5x8400 output (cx, cy, w, h,
// confidence; one channel per row) into regions in original frame
// coordinates, keeping only confident boxes.
func decodePredictions(predictions []float32, originalWidth, originalHeight int) []Region {
	if len(predictions) != 5*onnxPredictions {
		return nil
	}

	scaleX := float64(originalWidth) / onnxInputSize
	scaleY := float64(originalHeight) / onnxInputSize

	var regions []Region
	for i := 0; i < onnxPredictions; i++ {
		confidence := predictions[4*onnxPredictions+i]
		if confidence < onnxConfThreshold {
			continue
		}

		cx := float64(predictions[i]) * scaleX
		cy := float64(predictions[onnxPredictions+i]) * scaleY
		w := float64(predictions[2*onnxPredictions+i]) * scaleX
		h := float64(predictions[3*onnxPredictions+i]) * scaleY

		regions = append(regions, Region{
			Rect: image.Rect(
				int(math.Round(cx-w/2)),
				int(math.Round(cy-h/2)),
				int(math.Round(cx+w/2)),
				int(math.Round(cy+h/2)),
			),
			Score: float64(confidence),
		})
	}
	return regions
}

// clusterRegions collapses overlapping boxes, keeping the most confident
// box out of each overlapping group.
func clusterRegions(regions []Region, iouThreshold float64) []Region {
	if len(regions) <= 1 {
		return regions
	}
	sortByScore(regions)

	kept := make([]Region, 0, len(regions))
	for _, candidate := range regions {
		overlaps := false
		for _, k := range kept {
			if boxIoU(candidate.Rect, k.Rect) > iouThreshold {
				overlaps = true
				break
			}
		}
		if !overlaps {
			kept = append(kept, candidate)
		}
	}
	return kept
}

func boxIoU(a, b image.Rectangle) float64 {
	inter := a.Intersect(b)
	interArea := inter.Dx() * inter.Dy()
	if interArea <= 0 {
		return 0
	}
	union := a.Dx()*a.Dy() + b.Dx()*b.Dy() - interArea
	if union <= 0 {
		return 0
	}
	return float64(interArea) / float64(union)
}
