package detect

import (
	"errors"
	"image"
	"image/color"
	"testing"
)

func TestPrincipal(t *testing.T) {
	tests := []struct {
		name    string
		regions []Region
		want    image.Rectangle
		wantErr error
	}{
		{
			name:    "no regions",
			regions: nil,
			wantErr: ErrNoFace,
		},
		{
			name: "single region",
			regions: []Region{
				{Rect: image.Rect(10, 10, 50, 50)},
			},
			want: image.Rect(10, 10, 50, 50),
		},
		{
			name: "largest area wins",
			regions: []Region{
				{Rect: image.Rect(0, 0, 20, 20), Score: 0.9},
				{Rect: image.Rect(30, 30, 90, 90), Score: 0.5},
			},
			want: image.Rect(30, 30, 90, 90),
		},
		{
			name: "equal area leftmost wins",
			regions: []Region{
				{Rect: image.Rect(50, 0, 90, 40)},
				{Rect: image.Rect(10, 0, 50, 40)},
			},
			want: image.Rect(10, 0, 50, 40),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Principal(tt.regions)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Principal() error = %v, want %v", err, tt.wantErr)
			}
			if err != nil {
				return
			}
			if got.Rect != tt.want {
				t.Errorf("Principal() = %v, want %v", got.Rect, tt.want)
			}
		})
	}
}

func TestCrop(t *testing.T) {
	frame := image.NewRGBA(image.Rect(0, 0, 100, 100))
	for y := 0; y < 100; y++ {
		for x := 0; x < 100; x++ {
			frame.Set(x, y, color.Gray{Y: uint8(x)})
		}
	}

	tests := []struct {
		name   string
		rect   image.Rectangle
		margin float64
		wantW  int
		wantH  int
	}{
		{
			name:   "no margin",
			rect:   image.Rect(20, 20, 60, 60),
			margin: 0,
			wantW:  40,
			wantH:  40,
		},
		{
			name:   "margin expands",
			rect:   image.Rect(20, 20, 60, 60),
			margin: 0.2,
			wantW:  56,
			wantH:  56,
		},
		{
			name:   "clamped at frame edge",
			rect:   image.Rect(0, 0, 40, 40),
			margin: 0.2,
			wantW:  48,
			wantH:  48,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			crop := Crop(frame, tt.rect, tt.margin)
			b := crop.Bounds()
			if b.Dx() != tt.wantW || b.Dy() != tt.wantH {
				t.Errorf("Crop() size = %dx%d, want %dx%d", b.Dx(), b.Dy(), tt.wantW, tt.wantH)
			}
			if b.Min != image.Pt(0, 0) {
				t.Errorf("Crop() origin = %v, want (0,0)", b.Min)
			}
		})
	}
}

func TestCropPreservesPixels(t *testing.T) {
	frame := image.NewRGBA(image.Rect(0, 0, 50, 50))
	frame.Set(25, 25, color.RGBA{R: 200, G: 10, B: 30, A: 255})

	crop := Crop(frame, image.Rect(20, 20, 30, 30), 0)
	r, g, b, _ := crop.At(5, 5).RGBA()
	if r>>8 != 200 || g>>8 != 10 || b>>8 != 30 {
		t.Errorf("pixel at crop center = (%d,%d,%d), want (200,10,30)", r>>8, g>>8, b>>8)
	}
}

func TestClusterRegions(t *testing.T) {
	regions := []Region{
		{Rect: image.Rect(0, 0, 100, 100), Score: 0.6},
		{Rect: image.Rect(5, 5, 105, 105), Score: 0.9},
		{Rect: image.Rect(300, 300, 400, 400), Score: 0.7},
	}

	got := clusterRegions(regions, 0.45)
	if len(got) != 2 {
		t.Fatalf("clusterRegions() kept %d regions, want 2", len(got))
	}
	if got[0].Score != 0.9 {
		t.Errorf("first kept region score = %v, want 0.9 (most confident survives)", got[0].Score)
	}
}

func TestBoxIoU(t *testing.T) {
	tests := []struct {
		name string
		a, b image.Rectangle
		want float64
	}{
		{"identical", image.Rect(0, 0, 10, 10), image.Rect(0, 0, 10, 10), 1},
		{"disjoint", image.Rect(0, 0, 10, 10), image.Rect(20, 20, 30, 30), 0},
		{"half overlap", image.Rect(0, 0, 10, 10), image.Rect(0, 5, 10, 15), 1.0 / 3.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := boxIoU(tt.a, tt.b)
			if diff := got - tt.want; diff > 1e-9 || diff < -1e-9 {
				t.Errorf("boxIoU() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDecodePredictions(t *testing.T) {
	predictions := make([]float32, 5*onnxPredictions)
	// One confident box centered at (320,320) with size 128x128 in model
	// coordinates; the frame is the same size as the model input so no
	// scaling applies.
	predictions[0] = 320
	predictions[onnxPredictions] = 320
	predictions[2*onnxPredictions] = 128
	predictions[3*onnxPredictions] = 128
	predictions[4*onnxPredictions] = 0.95

	got := decodePredictions(predictions, onnxInputSize, onnxInputSize)
	if len(got) != 1 {
		t.Fatalf("decodePredictions() returned %d regions, want 1", len(got))
	}
	want := image.Rect(256, 256, 384, 384)
	if got[0].Rect != want {
		t.Errorf("decoded rect = %v, want %v", got[0].Rect, want)
	}

	if out := decodePredictions(predictions[:10], 100, 100); out != nil {
		t.Errorf("truncated predictions should decode to nil, got %v", out)
	}
}
