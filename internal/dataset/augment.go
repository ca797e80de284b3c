package dataset

import (
	"fmt"
	"math/rand"

	"gocv.io/x/gocv"
)

// Augmenter derives a new image file from an existing one.
type Augmenter interface {
	Augment(src, dst string, rng *rand.Rand) error
}

// AugmentParams controls the random transforms.
type AugmentParams struct {
	FlipProb   float64    // probability of a horizontal flip
	Brightness [2]float64 // uniform factor range, 1.0 = unchanged
	Contrast   [2]float64 // uniform factor range, 1.0 = unchanged
}

// DefaultAugmentParams returns the standard flip/brightness/contrast ranges.
func DefaultAugmentParams() AugmentParams {
	return AugmentParams{
		FlipProb:   0.5,
		Brightness: [2]float64{0.7, 1.3},
		Contrast:   [2]float64{0.7, 1.3},
	}
}

// Draw picks the transform for one augmented image. The three draws are
// always taken in the same order so a seed reproduces a run.
func (p AugmentParams) Draw(rng *rand.Rand) (flip bool, brightness, contrast float64) {
	flip = rng.Float64() < p.FlipProb
	brightness = uniform(rng, p.Brightness)
	contrast = uniform(rng, p.Contrast)
	return flip, brightness, contrast
}

func uniform(rng *rand.Rand, r [2]float64) float64 {
	return r[0] + rng.Float64()*(r[1]-r[0])
}

// CVAugmenter applies the transforms with OpenCV.
type CVAugmenter struct {
	Params AugmentParams
}

// NewCVAugmenter creates an OpenCV-backed augmenter.
func NewCVAugmenter(params AugmentParams) *CVAugmenter {
	return &CVAugmenter{Params: params}
}

// Augment reads src, applies a random flip, brightness and contrast change
// and writes the result to dst. The output format follows dst's extension.
func (a *CVAugmenter) Augment(src, dst string, rng *rand.Rand) error {
	img := gocv.IMRead(src, gocv.IMReadColor)
	if img.Empty() {
		return fmt.Errorf("failed to decode image %s", src)
	}
	defer img.Close()

	flip, brightness, contrast := a.Params.Draw(rng)

	if flip {
		flipped := gocv.NewMat()
		gocv.Flip(img, &flipped, 1)
		img.Close()
		img = flipped
	}

	bright := EnhanceBrightness(img, brightness)
	defer bright.Close()

	out := EnhanceContrast(bright, contrast)
	defer out.Close()

	if !gocv.IMWrite(dst, out) {
		return fmt.Errorf("failed to write augmented image %s", dst)
	}
	return nil
}

// EnhanceBrightness scales every channel by factor, i.e. blends the image
// with black. The caller owns the returned Mat.
func EnhanceBrightness(img gocv.Mat, factor float64) gocv.Mat {
	out := gocv.NewMat()
	gocv.AddWeighted(img, factor, img, 0, 0, &out)
	return out
}

// EnhanceContrast blends the image with a uniform grey at its mean
// luminance. factor 0 yields flat grey, 1 the original. The caller owns the
// returned Mat.
func EnhanceContrast(img gocv.Mat, factor float64) gocv.Mat {
	gray := gocv.NewMat()
	defer gray.Close()
	gocv.CvtColor(img, &gray, gocv.ColorBGRToGray)
	mean := float64(int(gray.Mean().Val1 + 0.5))

	out := gocv.NewMat()
	gocv.AddWeighted(img, factor, img, 0, mean*(1-factor), &out)
	return out
}
