package fingerprint

import (
	"image"
	"image/color"
)

// CLAHE parameters for lighting normalization.
const (
	claheGridSize  = 8
	claheClipLimit = 2.0
)

// Normalize reduces lighting variance in a frame using contrast-limited
// adaptive histogram equalization on the luminance channel. The chrominance
// channels pass through unchanged and the returned frame has the same
// dimensions as the input. The function is deterministic and never mutates
// its argument.
func Normalize(img image.Image) image.Image {
	bounds := img.Bounds()
	width := bounds.Dx()
	height := bounds.Dy()
	if width == 0 || height == 0 {
		return img
	}

	luma := lumaPlane(img)
	equalized := equalizeAdaptive(luma, width, height)

	if _, ok := img.(*image.Gray); ok {
		out := image.NewGray(image.Rect(0, 0, width, height))
		copy(out.Pix, equalized)
		return out
	}

	out := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			r, g, b, a := img.At(bounds.Min.X+x, bounds.Min.Y+y).RGBA()
			_, cb, cr := color.RGBToYCbCr(uint8(r>>8), uint8(g>>8), uint8(b>>8))
			yv := equalized[y*width+x]
			nr, ng, nb := color.YCbCrToRGB(yv, cb, cr)
			out.SetRGBA(x, y, color.RGBA{R: nr, G: ng, B: nb, A: uint8(a >> 8)})
		}
	}
	return out
}

// lumaPlane extracts the BT.601 luminance of every pixel as a flat row-major
// byte slice.
func lumaPlane(img image.Image) []uint8 {
	bounds := img.Bounds()
	width := bounds.Dx()
	height := bounds.Dy()

	luma := make([]uint8, width*height)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			r, g, b, _ := img.At(bounds.Min.X+x, bounds.Min.Y+y).RGBA()
			v := 0.299*float64(r>>8) + 0.587*float64(g>>8) + 0.114*float64(b>>8)
			luma[y*width+x] = uint8(v + 0.5)
		}
	}
	return luma
}

// equalizeAdaptive runs CLAHE over a luminance plane: the plane is tiled
// into an 8x8 grid, each tile gets a clip-limited equalization mapping, and
// per-pixel output bilinearly interpolates the mappings of the four
// surrounding tiles to avoid block seams.
func equalizeAdaptive(luma []uint8, width, height int) []uint8 {
	tileW := (width + claheGridSize - 1) / claheGridSize
	tileH := (height + claheGridSize - 1) / claheGridSize

	// One 256-entry mapping per tile.
	luts := make([][256]uint8, claheGridSize*claheGridSize)
	for ty := 0; ty < claheGridSize; ty++ {
		for tx := 0; tx < claheGridSize; tx++ {
			x0 := tx * tileW
			y0 := ty * tileH
			x1 := min(x0+tileW, width)
			y1 := min(y0+tileH, height)
			luts[ty*claheGridSize+tx] = tileMapping(luma, width, x0, y0, x1, y1)
		}
	}

	// Frames narrower than the grid leave trailing tiles with no pixels;
	// interpolation must clamp to the last tile that saw any.
	tilesX := (width + tileW - 1) / tileW
	tilesY := (height + tileH - 1) / tileH

	out := make([]uint8, len(luma))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			out[y*width+x] = interpolateTiles(luts, x, y, tileW, tileH, tilesX, tilesY, uint8(luma[y*width+x]))
		}
	}
	return out
}

// tileMapping builds the clip-limited equalization lookup table for one tile.
// Histogram counts above the clip limit are capped and the excess is
// redistributed evenly across all bins before the cumulative mapping is
// computed.
func tileMapping(luma []uint8, stride, x0, y0, x1, y1 int) [256]uint8 {
	var hist [256]int
	// Tiles past the image edge are degenerate: x0 can exceed width on
	// narrow frames, making the area negative, not just zero.
	area := (x1 - x0) * (y1 - y0)
	if area <= 0 {
		var identity [256]uint8
		for i := range identity {
			identity[i] = uint8(i)
		}
		return identity
	}

	for y := y0; y < y1; y++ {
		for x := x0; x < x1; x++ {
			hist[luma[y*stride+x]]++
		}
	}

	clip := int(claheClipLimit * float64(area) / 256.0)
	if clip < 1 {
		clip = 1
	}

	excess := 0
	for i := range hist {
		if hist[i] > clip {
			excess += hist[i] - clip
			hist[i] = clip
		}
	}
	redistribute := excess / 256
	remainder := excess % 256
	for i := range hist {
		hist[i] += redistribute
		if i < remainder {
			hist[i]++
		}
	}

	var lut [256]uint8
	cum := 0
	for i := range hist {
		cum += hist[i]
		lut[i] = uint8((cum*255 + area/2) / area)
	}
	return lut
}

// interpolateTiles maps one pixel value through the LUTs of the four tiles
// surrounding it, weighted bilinearly by the pixel's distance to the tile
// centers.
func interpolateTiles(luts [][256]uint8, x, y, tileW, tileH, tilesX, tilesY int, v uint8) uint8 {
	// Position relative to tile centers.
	fx := (float64(x) - float64(tileW)/2) / float64(tileW)
	fy := (float64(y) - float64(tileH)/2) / float64(tileH)

	tx0 := int(fx)
	ty0 := int(fy)
	if fx < 0 {
		tx0 = -1
	}
	if fy < 0 {
		ty0 = -1
	}
	wx := fx - float64(tx0)
	wy := fy - float64(ty0)

	clampTile := func(t, tiles int) int {
		if t < 0 {
			return 0
		}
		if t >= tiles {
			return tiles - 1
		}
		return t
	}

	x0 := clampTile(tx0, tilesX)
	x1 := clampTile(tx0+1, tilesX)
	y0 := clampTile(ty0, tilesY)
	y1 := clampTile(ty0+1, tilesY)

	v00 := float64(luts[y0*claheGridSize+x0][v])
	v10 := float64(luts[y0*claheGridSize+x1][v])
	v01 := float64(luts[y1*claheGridSize+x0][v])
	v11 := float64(luts[y1*claheGridSize+x1][v])

	top := v00*(1-wx) + v10*wx
	bottom := v01*(1-wx) + v11*wx
	return uint8(top*(1-wy) + bottom*wy + 0.5)
}
