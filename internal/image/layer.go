// Package image provides image loading and the preprocessing shared by
// training, evaluation and inference.
package image

import (
	"bytes"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"os"
	"path/filepath"
	"strings"

	_ "golang.org/x/image/tiff"
)

// Load decodes the image stored at path.
func Load(path string) (image.Image, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open image: %w", err)
	}
	defer file.Close()

	img, err := Decode(file)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return img, nil
}

// Decode decodes any registered format from r.
func Decode(r io.Reader) (image.Image, error) {
	img, _, err := image.Decode(r)
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	return img, nil
}

// DecodeBytes decodes an in-memory image, as received by the HTTP service.
func DecodeBytes(data []byte) (image.Image, error) {
	return Decode(bytes.NewReader(data))
}

// SupportedFormats returns the extensions Load can decode.
func SupportedFormats() []string {
	return []string{".png", ".jpg", ".jpeg", ".tiff", ".tif"}
}

// DatasetFormats returns the extensions counted as dataset samples.
func DatasetFormats() []string {
	return []string{".jpg", ".jpeg", ".png"}
}

// IsSupportedFormat checks if the given path has a decodable extension.
func IsSupportedFormat(path string) bool {
	return hasExt(path, SupportedFormats())
}

// IsDatasetImage checks if the given path is a dataset sample.
func IsDatasetImage(path string) bool {
	return hasExt(path, DatasetFormats())
}

func hasExt(path string, formats []string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, format := range formats {
		if ext == format {
			return true
		}
	}
	return false
}
