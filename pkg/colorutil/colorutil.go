// Package colorutil provides shared colour-space helpers for reef imagery.
package colorutil

import (
	"image/color"
	"math"
)

// Chart colours.
var (
	Healthy = color.RGBA{R: 46, G: 139, B: 87, A: 255}
	Dead    = color.RGBA{R: 92, G: 64, B: 51, A: 255}
	Ink     = color.RGBA{R: 20, G: 20, B: 20, A: 255}
	Paper   = color.RGBA{R: 255, G: 255, B: 255, A: 255}
)

// RGBToHSV converts RGB (0-255) to HSV (OpenCV convention: H 0-180, S 0-255, V 0-255).
func RGBToHSV(r, g, b float64) (h, s, v float64) {
	r /= 255.0
	g /= 255.0
	b /= 255.0

	maxC := math.Max(r, math.Max(g, b))
	minC := math.Min(r, math.Min(g, b))
	diff := maxC - minC

	v = maxC * 255.0

	if maxC == 0 {
		s = 0
	} else {
		s = (diff / maxC) * 255.0
	}

	if diff == 0 {
		h = 0
	} else if maxC == r {
		h = 60 * math.Mod((g-b)/diff, 6)
	} else if maxC == g {
		h = 60 * ((b-r)/diff + 2)
	} else {
		h = 60 * ((r-g)/diff + 4)
	}

	if h < 0 {
		h += 360
	}

	h = h / 2 // OpenCV's 0-180 range

	return h, s, v
}

// Luminance returns the ITU-R 601-2 luma of an RGB triple (0-255).
func Luminance(r, g, b float64) float64 {
	return r*0.299 + g*0.587 + b*0.114
}

// Blend returns a linear mix of two colours, t=0 yields a, t=1 yields b.
func Blend(a, b color.RGBA, t float64) color.RGBA {
	t = math.Max(0, math.Min(1, t))
	mix := func(x, y uint8) uint8 {
		return uint8(math.Round(float64(x)*(1-t) + float64(y)*t))
	}
	return color.RGBA{R: mix(a.R, b.R), G: mix(a.G, b.G), B: mix(a.B, b.B), A: 255}
}
