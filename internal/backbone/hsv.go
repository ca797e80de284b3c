package backbone

import (
	"fmt"
	"image"
	"math"

	"reefscan/pkg/colorutil"
)

// DefaultHSVBins is the histogram resolution per channel.
const DefaultHSVBins = 8

// Pixel thresholds for the bleached and dark fractions (HSV, OpenCV ranges).
const (
	whiteMinV = 200
	whiteMaxS = 40
	darkMaxV  = 50
)

// HSVExtractor summarises an image by its colour distribution: per-channel
// HSV mean and standard deviation, normalised per-channel histograms, and
// the fractions of bleached-white and dark pixels.
type HSVExtractor struct {
	bins int
}

// NewHSV creates a colour-statistics trunk. bins <= 0 uses DefaultHSVBins.
func NewHSV(bins int) *HSVExtractor {
	if bins <= 0 {
		bins = DefaultHSVBins
	}
	return &HSVExtractor{bins: bins}
}

func (e *HSVExtractor) Name() string { return Spec{Kind: KindHSV, Bins: e.bins}.Name() }

// Identity is the name: bins are the only setting.
func (e *HSVExtractor) Identity() string { return e.Name() }

// Dim is 6 moments, 3 histograms and 2 pixel fractions.
func (e *HSVExtractor) Dim() int { return 6 + 3*e.bins + 2 }

func (e *HSVExtractor) Close() error { return nil }

// Extract computes the embedding. All components are in [0,1].
func (e *HSVExtractor) Extract(img *image.RGBA) ([]float64, error) {
	b := img.Bounds()
	total := b.Dx() * b.Dy()
	if total == 0 {
		return nil, fmt.Errorf("empty image")
	}

	var sum, sumSq [3]float64
	hist := make([][]float64, 3)
	for c := range hist {
		hist[c] = make([]float64, e.bins)
	}
	var white, dark float64

	// H spans 0-180, S and V 0-255.
	scale := [3]float64{180, 255, 255}

	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			p := img.RGBAAt(x, y)
			h, s, v := colorutil.RGBToHSV(float64(p.R), float64(p.G), float64(p.B))
			hsv := [3]float64{h, s, v}
			for c := 0; c < 3; c++ {
				n := hsv[c] / scale[c]
				sum[c] += n
				sumSq[c] += n * n
				bucket := int(n * float64(e.bins))
				if bucket >= e.bins {
					bucket = e.bins - 1
				}
				hist[c][bucket]++
			}
			if v >= whiteMinV && s <= whiteMaxS {
				white++
			}
			if v <= darkMaxV {
				dark++
			}
		}
	}

	n := float64(total)
	out := make([]float64, 0, e.Dim())
	for c := 0; c < 3; c++ {
		out = append(out, sum[c]/n)
	}
	for c := 0; c < 3; c++ {
		mean := sum[c] / n
		variance := sumSq[c]/n - mean*mean
		out = append(out, math.Sqrt(math.Max(variance, 0)))
	}
	for c := 0; c < 3; c++ {
		for _, count := range hist[c] {
			out = append(out, count/n)
		}
	}
	out = append(out, white/n, dark/n)
	return out, nil
}
