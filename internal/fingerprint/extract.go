package fingerprint

import (
	"errors"
	"image"
	"math"

	"golang.org/x/image/draw"
	"gonum.org/v1/gonum/floats"
)

// ErrInvalidImage is returned when a crop cannot be used for feature
// extraction (nil or zero area).
var ErrInvalidImage = errors.New("invalid image")

// Extract produces a face descriptor from a face crop. The crop is resized
// to a canonical square, then four histograms are computed and concatenated:
// LBP texture codes, grayscale intensity, gradient orientation weighted by
// gradient magnitude, and hue. The extraction is deterministic and side
// effect free.
func Extract(crop image.Image) (Descriptor, error) {
	if crop == nil {
		return nil, ErrInvalidImage
	}
	bounds := crop.Bounds()
	if bounds.Dx() <= 0 || bounds.Dy() <= 0 {
		return nil, ErrInvalidImage
	}

	resized := resize(crop, CanonicalSize, CanonicalSize)
	gray := GrayPlane(resized)
	hue := huePlane(resized)

	descriptor := make(Descriptor, 0, DescriptorLen)
	descriptor = append(descriptor, textureHistogram(gray)...)
	descriptor = append(descriptor, intensityHistogram(gray)...)
	descriptor = append(descriptor, gradientHistogram(gray)...)
	descriptor = append(descriptor, hueHistogram(hue)...)
	return descriptor, nil
}

// resize scales an image to the given dimensions with bilinear filtering.
func resize(img image.Image, width, height int) *image.RGBA {
	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.BiLinear.Scale(dst, dst.Bounds(), img, img.Bounds(), draw.Over, nil)
	return dst
}

// GrayPlane converts an image to a 2D array of grayscale values (0-255),
// indexed [y][x].
func GrayPlane(img image.Image) [][]float64 {
	bounds := img.Bounds()
	width := bounds.Dx()
	height := bounds.Dy()

	gray := make([][]float64, height)
	for y := 0; y < height; y++ {
		gray[y] = make([]float64, width)
		for x := 0; x < width; x++ {
			r, g, b, _ := img.At(bounds.Min.X+x, bounds.Min.Y+y).RGBA()
			// ITU-R BT.601 luma formula.
			gray[y][x] = 0.299*float64(r>>8) + 0.587*float64(g>>8) + 0.114*float64(b>>8)
		}
	}
	return gray
}

// huePlane computes the hue angle (0-360 degrees) of every pixel.
func huePlane(img *image.RGBA) [][]float64 {
	bounds := img.Bounds()
	width := bounds.Dx()
	height := bounds.Dy()

	hue := make([][]float64, height)
	for y := 0; y < height; y++ {
		hue[y] = make([]float64, width)
		for x := 0; x < width; x++ {
			c := img.RGBAAt(x, y)
			hue[y][x] = rgbToHue(c.R, c.G, c.B)
		}
	}
	return hue
}

// rgbToHue returns the HSV hue angle in degrees for an RGB triple. Achromatic
// pixels map to hue 0.
func rgbToHue(r, g, b uint8) float64 {
	rf := float64(r)
	gf := float64(g)
	bf := float64(b)

	maxC := math.Max(rf, math.Max(gf, bf))
	minC := math.Min(rf, math.Min(gf, bf))
	delta := maxC - minC
	if delta == 0 {
		return 0
	}

	var h float64
	switch maxC {
	case rf:
		h = math.Mod((gf-bf)/delta, 6)
	case gf:
		h = (bf-rf)/delta + 2
	default:
		h = (rf-gf)/delta + 4
	}
	h *= 60
	if h < 0 {
		h += 360
	}
	return h
}

// textureHistogram computes the 64-bin histogram of local binary pattern
// codes. For each interior pixel the 8 immediate neighbors are compared to
// the center intensity, assembling an 8-bit code; the 256 possible codes are
// grouped four-per-bin.
func textureHistogram(gray [][]float64) []float32 {
	hist := make([]float64, TextureBins)
	height := len(gray)
	if height < 3 {
		return l1Normalize(hist)
	}
	width := len(gray[0])

	for y := 1; y < height-1; y++ {
		for x := 1; x < width-1; x++ {
			center := gray[y][x]
			var code int
			if gray[y-1][x-1] >= center {
				code |= 1 << 7
			}
			if gray[y-1][x] >= center {
				code |= 1 << 6
			}
			if gray[y-1][x+1] >= center {
				code |= 1 << 5
			}
			if gray[y][x+1] >= center {
				code |= 1 << 4
			}
			if gray[y+1][x+1] >= center {
				code |= 1 << 3
			}
			if gray[y+1][x] >= center {
				code |= 1 << 2
			}
			if gray[y+1][x-1] >= center {
				code |= 1 << 1
			}
			if gray[y][x-1] >= center {
				code |= 1
			}
			hist[code*TextureBins/256]++
		}
	}
	return l1Normalize(hist)
}

// intensityHistogram computes the 32-bin histogram of grayscale values.
func intensityHistogram(gray [][]float64) []float32 {
	hist := make([]float64, IntensityBins)
	for y := range gray {
		for x := range gray[y] {
			bin := int(gray[y][x]) * IntensityBins / 256
			if bin >= IntensityBins {
				bin = IntensityBins - 1
			}
			hist[bin]++
		}
	}
	return l1Normalize(hist)
}

// gradientHistogram computes an 18-bin histogram of unsigned gradient
// orientations (0-180 degrees, 10 degrees per bin), each sample weighted by
// its gradient magnitude. Gradients come from 3x3 Sobel kernels.
func gradientHistogram(gray [][]float64) []float32 {
	hist := make([]float64, GradientBins)
	height := len(gray)
	if height < 3 {
		return l1Normalize(hist)
	}
	width := len(gray[0])

	for y := 1; y < height-1; y++ {
		for x := 1; x < width-1; x++ {
			gx := gray[y-1][x+1] + 2*gray[y][x+1] + gray[y+1][x+1] -
				gray[y-1][x-1] - 2*gray[y][x-1] - gray[y+1][x-1]
			gy := gray[y+1][x-1] + 2*gray[y+1][x] + gray[y+1][x+1] -
				gray[y-1][x-1] - 2*gray[y-1][x] - gray[y-1][x+1]

			magnitude := math.Hypot(gx, gy)
			if magnitude == 0 {
				continue
			}
			angle := math.Atan2(gy, gx) * 180 / math.Pi
			if angle < 0 {
				angle += 180
			}
			bin := int(angle / 10)
			if bin >= GradientBins {
				bin = GradientBins - 1
			}
			hist[bin] += magnitude
		}
	}
	return l1Normalize(hist)
}

// hueHistogram computes an 18-bin histogram over hue angles (20 degrees per
// bin).
func hueHistogram(hue [][]float64) []float32 {
	hist := make([]float64, HueBins)
	for y := range hue {
		for x := range hue[y] {
			bin := int(hue[y][x] / 20)
			if bin >= HueBins {
				bin = HueBins - 1
			}
			hist[bin]++
		}
	}
	return l1Normalize(hist)
}

// l1Normalize scales a histogram so its values sum to 1. A histogram with no
// mass becomes the uniform distribution, which keeps every descriptor
// segment a valid probability distribution.
func l1Normalize(hist []float64) []float32 {
	sum := floats.Sum(hist)
	out := make([]float32, len(hist))
	if sum <= 0 {
		uniform := 1.0 / float64(len(hist))
		for i := range out {
			out[i] = float32(uniform)
		}
		return out
	}
	floats.Scale(1/sum, hist)
	for i, v := range hist {
		out[i] = float32(v)
	}
	return out
}
