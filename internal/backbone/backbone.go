// Package backbone provides the frozen feature trunks that turn a
// preprocessed reef photograph into an embedding vector.
//
// Two trunks exist. The DNN trunk runs a pretrained network (for example a
// MobileNetV2 exported to ONNX without its classification top) through the
// OpenCV DNN module. The HSV trunk computes colour statistics in pure Go and
// needs no external weights.
package backbone

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"io"
	"os"
	"path/filepath"
)

// Trunk kinds.
const (
	KindDNN = "dnn"
	KindHSV = "hsv"
)

// ErrUnknownKind is returned for an unrecognised trunk kind.
var ErrUnknownKind = errors.New("unknown backbone kind")

// Extractor maps a preprocessed image to a fixed-length embedding.
type Extractor interface {
	// Name identifies the trunk and its settings. Embeddings from
	// extractors with different names are not interchangeable.
	Name() string
	// Identity fingerprints everything that affects the embedding. It keys
	// the feature cache.
	Identity() string
	Dim() int
	Extract(img *image.RGBA) ([]float64, error)
	Close() error
}

// Spec describes a trunk. It is stored inside model artifacts so that
// evaluation and inference rebuild the same trunk used in training.
type Spec struct {
	Kind        string     `json:"kind"`
	InputSize   int        `json:"input_size"`
	ModelPath   string     `json:"model_path,omitempty"`
	ConfigPath  string     `json:"config_path,omitempty"`
	OutputLayer string     `json:"output_layer,omitempty"`
	Scale       float64    `json:"scale,omitempty"`
	Mean        [3]float64 `json:"mean"`
	SwapRB      bool       `json:"swap_rb,omitempty"`
	Bins        int        `json:"bins,omitempty"`
}

// Name returns the identity of the trunk described by s.
func (s Spec) Name() string {
	switch s.Kind {
	case KindHSV:
		return fmt.Sprintf("hsv-b%d", s.Bins)
	case KindDNN:
		return fmt.Sprintf("dnn-%s-%s-%d", filepath.Base(s.ModelPath), s.OutputLayer, s.InputSize)
	default:
		return s.Kind
	}
}

// Fingerprint hashes every field of s together with the contents of the
// model and config files. Files are named by base name only so that a
// relocated trunk keeps its fingerprint.
func (s Spec) Fingerprint() (string, error) {
	h := sha256.New()
	keyed := s
	if keyed.ModelPath != "" {
		keyed.ModelPath = filepath.Base(keyed.ModelPath)
	}
	if keyed.ConfigPath != "" {
		keyed.ConfigPath = filepath.Base(keyed.ConfigPath)
	}
	if err := json.NewEncoder(h).Encode(keyed); err != nil {
		return "", err
	}
	for _, path := range []string{s.ModelPath, s.ConfigPath} {
		if path == "" {
			continue
		}
		if err := hashFile(h, path); err != nil {
			return "", err
		}
	}
	return s.Name() + "-" + hex.EncodeToString(h.Sum(nil))[:16], nil
}

func hashFile(w io.Writer, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to fingerprint %s: %w", path, err)
	}
	defer f.Close()
	if _, err := io.Copy(w, f); err != nil {
		return fmt.Errorf("failed to fingerprint %s: %w", path, err)
	}
	return nil
}

// New builds the extractor described by spec.
func New(spec Spec) (Extractor, error) {
	switch spec.Kind {
	case KindHSV:
		return NewHSV(spec.Bins), nil
	case KindDNN:
		return NewDNN(spec)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, spec.Kind)
	}
}
