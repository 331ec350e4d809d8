// Package fingerprint turns a face crop into a fixed-length numeric
// descriptor built from four L1-normalized histograms: local binary
// pattern texture, grayscale intensity, gradient orientation and hue.
package fingerprint

// Segment sizes of a face descriptor, in concatenation order.
const (
	TextureBins   = 64
	IntensityBins = 32
	GradientBins  = 18
	HueBins       = 18

	// DescriptorLen is the total length of a descriptor.
	DescriptorLen = TextureBins + IntensityBins + GradientBins + HueBins

	// CanonicalSize is the side of the square a crop is resized to
	// before feature extraction.
	CanonicalSize = 128
)

// Descriptor is a 132-value face signature. Each of its four segments is an
// independent probability distribution, so descriptors extracted from crops
// of different original sizes stay comparable.
type Descriptor []float32

// Valid reports whether the descriptor has the expected length.
func (d Descriptor) Valid() bool {
	return len(d) == DescriptorLen
}

// Texture returns the 64-bin LBP texture segment.
func (d Descriptor) Texture() []float32 {
	return d[0:TextureBins]
}

// Intensity returns the 32-bin grayscale histogram segment.
func (d Descriptor) Intensity() []float32 {
	return d[TextureBins : TextureBins+IntensityBins]
}

// Gradient returns the 18-bin gradient orientation segment.
func (d Descriptor) Gradient() []float32 {
	return d[TextureBins+IntensityBins : TextureBins+IntensityBins+GradientBins]
}

// Hue returns the 18-bin hue histogram segment.
func (d Descriptor) Hue() []float32 {
	return d[TextureBins+IntensityBins+GradientBins : DescriptorLen]
}

// segments returns the four segments in concatenation order.
func (d Descriptor) segments() [][]float32 {
	return [][]float32{d.Texture(), d.Intensity(), d.Gradient(), d.Hue()}
}

// Similarity computes the histogram intersection similarity between two
// descriptors. Each segment contributes the sum of elementwise minimums
// (in [0,1] for L1-normalized segments); the four segment scores are
// averaged into an overall similarity in [0,1] where 1.0 means identical.
func Similarity(a, b Descriptor) float64 {
	if !a.Valid() || !b.Valid() {
		return 0
	}

	var total float64
	segsA := a.segments()
	segsB := b.segments()
	for s := range segsA {
		var sum float64
		for i := range segsA[s] {
			va := float64(segsA[s][i])
			vb := float64(segsB[s][i])
			if va < vb {
				sum += va
			} else {
				sum += vb
			}
		}
		total += sum
	}

	return total / float64(len(segsA))
}
