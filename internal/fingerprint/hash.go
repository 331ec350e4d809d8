package fingerprint

import (
	"bytes"
	"fmt"
	"image"
	"math"
	"sort"

	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
)

// FrameHash computes a 64-bit DCT perceptual hash of an encoded frame and
// returns it as a 16-character hex string. The hash survives re-encoding
// and mild compression, so identical values across audit events point at a
// replayed still rather than a live camera.
func FrameHash(imageData []byte) (string, error) {
	img, _, err := image.Decode(bytes.NewReader(imageData))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidImage, err)
	}
	return fmt.Sprintf("%016x", perceptualHash(img)), nil
}

// perceptualHash implements the DCT pHash: 32x32 grayscale, 2D DCT, then
// one bit per low-frequency coefficient above the median.
func perceptualHash(img image.Image) uint64 {
	gray := GrayPlane(resize(img, 32, 32))
	coeffs := dct2d(gray)

	// Top-left 8x8 block holds the low frequencies; the DC component at
	// (0,0) only encodes overall brightness, so skip it.
	lowFreq := make([]float64, 0, 64)
	for u := 0; u < 8; u++ {
		for v := 0; v < 8; v++ {
			if u == 0 && v == 0 {
				continue
			}
			lowFreq = append(lowFreq, coeffs[u][v])
		}
	}
	lowFreq = append(lowFreq, coeffs[8][0])

	median := medianOf(lowFreq)

	var hash uint64
	for i, c := range lowFreq {
		if c > median {
			hash |= 1 << (63 - i)
		}
	}
	return hash
}

// dct2d computes the type-II discrete cosine transform of a square plane.
func dct2d(plane [][]float64) [][]float64 {
	size := len(plane)
	out := make([][]float64, size)
	for i := range out {
		out[i] = make([]float64, size)
	}

	cosTable := make([][]float64, size)
	for i := range cosTable {
		cosTable[i] = make([]float64, size)
		for j := 0; j < size; j++ {
			cosTable[i][j] = math.Cos(math.Pi * float64(i) * (2*float64(j) + 1) / (2 * float64(size)))
		}
	}

	for u := 0; u < size; u++ {
		for v := 0; v < size; v++ {
			var sum float64
			for y := 0; y < size; y++ {
				for x := 0; x < size; x++ {
					sum += plane[y][x] * cosTable[u][y] * cosTable[v][x]
				}
			}
			out[u][v] = sum
		}
	}
	return out
}

func medianOf(values []float64) float64 {
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)
	n := len(sorted)
	if n%2 == 0 {
		return (sorted[n/2-1] + sorted[n/2]) / 2
	}
	return sorted[n/2]
}
