package image

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func solid(w, h int, c color.RGBA) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, c)
		}
	}
	return img
}

func TestFormats(t *testing.T) {
	assert.True(t, IsDatasetImage("a/b/reef.JPG"))
	assert.True(t, IsDatasetImage("reef.png"))
	assert.False(t, IsDatasetImage("reef.tiff"))
	assert.True(t, IsSupportedFormat("reef.tiff"))
	assert.False(t, IsSupportedFormat("notes.txt"))
}

func TestLoadAndDecode(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, solid(4, 3, color.RGBA{R: 10, G: 20, B: 30, A: 255})))

	img, err := DecodeBytes(buf.Bytes())
	require.NoError(t, err)
	assert.Equal(t, 4, img.Bounds().Dx())

	path := filepath.Join(t.TempDir(), "x.png")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))
	img, err = Load(path)
	require.NoError(t, err)
	assert.Equal(t, 3, img.Bounds().Dy())

	_, err = Load(filepath.Join(t.TempDir(), "missing.png"))
	assert.Error(t, err)

	_, err = DecodeBytes([]byte("not an image"))
	assert.Error(t, err)
}

func TestPreprocess(t *testing.T) {
	src := solid(50, 30, color.RGBA{R: 200, G: 100, B: 50, A: 255})
	out := Preprocess(src, 16)

	assert.Equal(t, image.Rect(0, 0, 16, 16), out.Bounds())
	c := out.RGBAAt(8, 8)
	assert.InDelta(t, 200, int(c.R), 1)
	assert.InDelta(t, 100, int(c.G), 1)
	assert.InDelta(t, 50, int(c.B), 1)
	assert.Equal(t, uint8(255), c.A)
}

func TestPreprocessDropsAlphaWithoutDarkening(t *testing.T) {
	src := image.NewNRGBA(image.Rect(0, 0, 20, 20))
	for i := 0; i < len(src.Pix); i += 4 {
		src.Pix[i], src.Pix[i+1], src.Pix[i+2], src.Pix[i+3] = 200, 100, 50, 128
	}
	out := Preprocess(src, 8)

	c := out.RGBAAt(4, 4)
	assert.InDelta(t, 200, int(c.R), 2)
	assert.InDelta(t, 100, int(c.G), 2)
	assert.InDelta(t, 50, int(c.B), 2)
	assert.Equal(t, uint8(255), c.A)
}

func TestToTensor(t *testing.T) {
	img := solid(2, 2, color.RGBA{R: 255, G: 0, B: 51, A: 255})
	tensor := ToTensor(img)

	require.Len(t, tensor, 2*2*3)
	assert.InDelta(t, 1.0, tensor[0], 1e-6)
	assert.InDelta(t, 0.0, tensor[1], 1e-6)
	assert.InDelta(t, 0.2, tensor[2], 1e-6)
	for _, v := range tensor {
		assert.GreaterOrEqual(t, v, float32(0))
		assert.LessOrEqual(t, v, float32(1))
	}
}
