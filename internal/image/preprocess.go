package image

import (
	"fmt"
	"image"

	"gocv.io/x/gocv"
	"golang.org/x/image/draw"
)

// Preprocess converts img to opaque RGB and resizes it to size x size with
// a bicubic filter. The result is what every backbone receives.
func Preprocess(img image.Image, size int) *image.RGBA {
	scaled := image.NewNRGBA(image.Rect(0, 0, size, size))
	draw.CatmullRom.Scale(scaled, scaled.Rect, img, img.Bounds(), draw.Src, nil)

	// Alpha is discarded, not composited: straight RGB is kept as is.
	dst := image.NewRGBA(scaled.Rect)
	copy(dst.Pix, scaled.Pix)
	for i := 3; i < len(dst.Pix); i += 4 {
		dst.Pix[i] = 255
	}
	return dst
}

// ToTensor flattens an RGB image into HWC float32 values scaled to [0,1].
func ToTensor(img *image.RGBA) []float32 {
	b := img.Bounds()
	out := make([]float32, 0, b.Dx()*b.Dy()*3)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			c := img.RGBAAt(x, y)
			out = append(out, float32(c.R)/255, float32(c.G)/255, float32(c.B)/255)
		}
	}
	return out
}

// ToMat converts an RGBA image to a BGR OpenCV matrix. The caller owns the
// returned Mat and must Close it.
func ToMat(img *image.RGBA) (gocv.Mat, error) {
	bounds := img.Bounds()
	if img.Stride != 4*bounds.Dx() {
		// Sub-images share a wider backing buffer.
		cp := image.NewRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
		draw.Draw(cp, cp.Rect, img, bounds.Min, draw.Src)
		img = cp
		bounds = img.Bounds()
	}

	mat, err := gocv.NewMatFromBytes(bounds.Dy(), bounds.Dx(), gocv.MatTypeCV8UC4, img.Pix)
	if err != nil {
		return gocv.NewMat(), fmt.Errorf("failed to wrap image: %w", err)
	}
	defer mat.Close()

	bgr := gocv.NewMat()
	gocv.CvtColor(mat, &bgr, gocv.ColorRGBAToBGR)
	return bgr, nil
}
