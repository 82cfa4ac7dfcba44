package convert

import (
	"fmt"
	"image"
)

// The Inky Impression panel has a fixed 7-color palette. The panel's real
// pigments are muted; blending the ideal palette toward the measured one
// by the configured saturation makes quantization match what the pigments
// actually show.
var (
	desaturatedPalette = [7][3]float64{
		{0, 0, 0},       // black
		{255, 255, 255}, // white
		{0, 255, 0},     // green
		{0, 0, 255},     // blue
		{255, 0, 0},     // red
		{255, 255, 0},   // yellow
		{255, 140, 0},   // orange
	}
	saturatedPalette = [7][3]float64{
		{57, 48, 57},
		{255, 255, 255},
		{58, 91, 70},
		{61, 59, 94},
		{156, 72, 75},
		{208, 190, 71},
		{177, 106, 73},
	}
)

// blendPalette interpolates between the ideal and measured palettes.
// saturation is clamped to [0, 1].
func blendPalette(saturation float64) [7][3]float64 {
	if saturation < 0 {
		saturation = 0
	}
	if saturation > 1 {
		saturation = 1
	}
	var out [7][3]float64
	for i := range out {
		for c := 0; c < 3; c++ {
			out[i][c] = saturatedPalette[i][c]*saturation + desaturatedPalette[i][c]*(1-saturation)
		}
	}
	return out
}

// nearestIndex picks the palette entry closest to the pixel by squared RGB
// distance.
func nearestIndex(palette [7][3]float64, r, g, b float64) byte {
	best := 0
	bestDist := -1.0
	for i, p := range palette {
		dr := r - p[0]
		dg := g - p[1]
		db := b - p[2]
		dist := dr*dr + dg*dg + db*db
		if bestDist < 0 || dist < bestDist {
			best = i
			bestDist = dist
		}
	}
	return byte(best)
}

// Rotate returns the image rotated clockwise by the given multiple of 90
// degrees. Other angles are rejected.
func Rotate(img *image.NRGBA, degrees int) (*image.NRGBA, error) {
	degrees = ((degrees % 360) + 360) % 360
	if degrees == 0 {
		return img, nil
	}
	if degrees%90 != 0 {
		return nil, fmt.Errorf("convert: rotation %d not a multiple of 90", degrees)
	}

	b := img.Bounds()
	w, h := b.Dx(), b.Dy()

	var out *image.NRGBA
	switch degrees {
	case 90, 270:
		out = image.NewNRGBA(image.Rect(0, 0, h, w))
	case 180:
		out = image.NewNRGBA(image.Rect(0, 0, w, h))
	}

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			c := img.NRGBAAt(b.Min.X+x, b.Min.Y+y)
			switch degrees {
			case 90:
				out.SetNRGBA(h-1-y, x, c)
			case 180:
				out.SetNRGBA(w-1-x, h-1-y, c)
			case 270:
				out.SetNRGBA(y, w-1-x, c)
			}
		}
	}
	return out, nil
}

// PackNRGBA quantizes an image to the blended 7-color palette and packs
// two 4-bit palette indexes per byte, MSB nibble first, y-major. This is
// the buffer layout the UC8159 data transfer expects.
//
// The image must match the panel geometry exactly; transparent pixels
// count as white.
func PackNRGBA(img *image.NRGBA, width, height int, saturation float64) ([]byte, error) {
	b := img.Bounds()
	if b.Dx() != width || b.Dy() != height {
		return nil, fmt.Errorf("convert: expected %dx%d image, got %dx%d", width, height, b.Dx(), b.Dy())
	}
	if width%2 != 0 {
		return nil, fmt.Errorf("convert: width %d must be even for 4bpp packing", width)
	}

	palette := blendPalette(saturation)
	buf := make([]byte, width*height/2)

	for y := 0; y < height; y++ {
		rowOff := y * img.Stride
		for x := 0; x < width; x++ {
			i := rowOff + x*4
			r := float64(img.Pix[i+0])
			g := float64(img.Pix[i+1])
			bb := float64(img.Pix[i+2])
			a := img.Pix[i+3]

			var idx byte = 1 // white
			if a >= 128 {
				idx = nearestIndex(palette, r, g, bb)
			}

			pos := (y*width + x) / 2
			if x%2 == 0 {
				buf[pos] = idx << 4
			} else {
				buf[pos] |= idx
			}
		}
	}
	return buf, nil
}

// BorderIndex maps a configured border color name to its palette index;
// unknown names fall back to white.
func BorderIndex(name string) byte {
	switch name {
	case "black":
		return 0
	case "white":
		return 1
	case "green":
		return 2
	case "blue":
		return 3
	case "red":
		return 4
	case "yellow":
		return 5
	case "orange":
		return 6
	default:
		return 1
	}
}
