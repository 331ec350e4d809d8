// Package liveness estimates whether a face crop shows a live person or a
// presented spoof (printed photo, screen replay). It fuses three independent
// signals computed from the crop: texture entropy, specular reflection and
// second-derivative sharpness.
package liveness

import (
	"image"
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/facepass/facepass/internal/fingerprint"
)

// Signal fusion weights. Texture carries the most evidence because printed
// and screen-displayed faces lose high-frequency skin detail first.
const (
	textureWeight    = 0.4
	reflectionWeight = 0.3
	sharpnessWeight  = 0.3

	// reflectionCutoff is the intensity above which a pixel counts as glare.
	reflectionCutoff = 240

	// sharpnessScale is the empirical Laplacian variance of a sharp live
	// capture; variance is normalized against it.
	sharpnessScale = 500
)

// Score holds the fused liveness score and the individual signals that
// produced it. All values are in [0,1]; higher means more likely live.
type Score struct {
	Liveness   float64 `json:"liveness"`
	Texture    float64 `json:"texture"`
	Reflection float64 `json:"reflection"`
	Sharpness  float64 `json:"sharpness"`
}

// Live reports whether the fused score passes the given threshold.
func (s Score) Live(threshold float64) bool {
	return s.Liveness >= threshold
}

// Rate scores a face crop, reusing the texture segment already computed
// during feature extraction so the LBP pass is not repeated.
func Rate(crop image.Image, texture []float32) Score {
	gray := fingerprint.GrayPlane(crop)

	s := Score{
		Texture:    textureEntropy(texture),
		Reflection: reflectionSignal(gray),
		Sharpness:  sharpnessSignal(gray),
	}
	s.Liveness = textureWeight*s.Texture + reflectionWeight*s.Reflection + sharpnessWeight*s.Sharpness
	return s
}

// textureEntropy computes the Shannon entropy of the texture histogram,
// normalized by the maximum entropy of its bin count. Flat, repetitive
// texture (low entropy) is characteristic of printed or displayed faces.
func textureEntropy(texture []float32) float64 {
	if len(texture) == 0 {
		return 0
	}
	var entropy float64
	for _, p := range texture {
		if p > 0 {
			entropy -= float64(p) * math.Log2(float64(p))
		}
	}
	return math.Min(entropy/math.Log2(float64(len(texture))), 1.0)
}

// reflectionSignal measures specular glare: the fraction of pixels brighter
// than the cutoff, inverted so heavy glare lowers the signal. Screens reflect
// sharply where live skin reflects diffusely.
func reflectionSignal(gray [][]float64) float64 {
	total := 0
	bright := 0
	for y := range gray {
		for x := range gray[y] {
			total++
			if gray[y][x] > reflectionCutoff {
				bright++
			}
		}
	}
	if total == 0 {
		return 1.0
	}
	ratio := float64(bright) / float64(total)
	return 1.0 - math.Min(ratio*10, 1.0)
}

// sharpnessSignal computes the variance of a Laplacian filter response over
// the crop, normalized against an empirical scale. Overly smooth crops
// (recaptured images lose detail) score low.
func sharpnessSignal(gray [][]float64) float64 {
	height := len(gray)
	if height < 3 {
		return 0
	}
	width := len(gray[0])
	if width < 3 {
		return 0
	}

	responses := make([]float64, 0, (height-2)*(width-2))
	for y := 1; y < height-1; y++ {
		for x := 1; x < width-1; x++ {
			lap := gray[y-1][x] + gray[y+1][x] + gray[y][x-1] + gray[y][x+1] - 4*gray[y][x]
			responses = append(responses, lap)
		}
	}
	if len(responses) < 2 {
		return 0
	}

	variance := stat.Variance(responses, nil)
	return math.Min(variance/sharpnessScale, 1.0)
}
