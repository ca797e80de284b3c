package model

import (
	"bytes"
	"encoding/gob"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"time"

	"github.com/golang/snappy"

	"reefscan/internal/backbone"
	"reefscan/internal/nn"
)

// Artifact formats.
type Format int

const (
	FormatFull Format = iota
	FormatLite
)

func (f Format) String() string {
	if f == FormatLite {
		return "lite"
	}
	return "full"
}

// liteMagic starts every lite artifact.
var liteMagic = []byte("RSLITE1\n")

// SaveFull writes a as indented JSON.
func SaveFull(path string, a *Artifact) error {
	data, err := json.MarshalIndent(a, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal model: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write model: %w", err)
	}
	return nil
}

// SaveLite writes the quantised inference form of a and returns its size in
// bytes. Dropout layers and training history are dropped.
func SaveLite(path string, a *Artifact) (int, error) {
	data, err := EncodeLite(a)
	if err != nil {
		return 0, err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return 0, fmt.Errorf("failed to write lite model: %w", err)
	}
	return len(data), nil
}

// Load reads either format, detected from the file contents.
func Load(path string) (*Artifact, Format, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to read model: %w", err)
	}
	a, format, err := Decode(data)
	if err != nil {
		return nil, 0, fmt.Errorf("%s: %w", path, err)
	}
	return a, format, nil
}

// Decode parses an artifact held in memory.
func Decode(data []byte) (*Artifact, Format, error) {
	var (
		a      *Artifact
		format Format
		err    error
	)
	switch {
	case bytes.HasPrefix(data, liteMagic):
		format = FormatLite
		a, err = DecodeLite(data)
	case len(bytes.TrimSpace(data)) > 0 && bytes.TrimSpace(data)[0] == '{':
		format = FormatFull
		a = &Artifact{}
		if jerr := json.Unmarshal(data, a); jerr != nil {
			err = fmt.Errorf("failed to parse model: %w", jerr)
		}
	default:
		return nil, 0, ErrUnknownFormat
	}
	if err != nil {
		return nil, 0, err
	}
	if err := a.Validate(); err != nil {
		return nil, 0, err
	}
	return a, format, nil
}

type liteArtifact struct {
	Version   int
	ID        string
	Phase     string
	CreatedAt time.Time
	Classes   []string
	Backbone  backbone.Spec
	Layers    []liteLayer
}

type liteLayer struct {
	Type       string
	Name       string
	Block      string
	Activation string
	In, Out    int
	Scale      float64
	Q          []int8
	Bias       []float32
	Mean, Std  []float32
}

// EncodeLite produces the lite byte form of a.
func EncodeLite(a *Artifact) ([]byte, error) {
	lite := liteArtifact{
		Version:   a.FormatVersion,
		ID:        a.ID,
		Phase:     a.Phase,
		CreatedAt: a.CreatedAt,
		Classes:   a.Classes,
		Backbone:  a.Backbone,
	}
	for _, l := range a.Layers {
		switch l.Type {
		case nn.TypeDropout:
			continue
		case nn.TypeDense:
			scale, q := Quantize(l.Weights)
			lite.Layers = append(lite.Layers, liteLayer{
				Type: l.Type, Name: l.Name, Block: l.Block, Activation: l.Activation,
				In: l.In, Out: l.Out, Scale: scale, Q: q, Bias: toFloat32(l.Bias),
			})
		case nn.TypeNormalize:
			lite.Layers = append(lite.Layers, liteLayer{
				Type: l.Type, Name: l.Name, Block: l.Block,
				In: l.In, Out: l.Out, Mean: toFloat32(l.Mean), Std: toFloat32(l.Std),
			})
		default:
			return nil, fmt.Errorf("layer %s: cannot export type %q", l.Name, l.Type)
		}
	}

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(lite); err != nil {
		return nil, fmt.Errorf("failed to encode lite model: %w", err)
	}
	out := append([]byte(nil), liteMagic...)
	return append(out, snappy.Encode(nil, buf.Bytes())...), nil
}

// DecodeLite parses the lite byte form. Weights come back dequantised.
func DecodeLite(data []byte) (*Artifact, error) {
	if !bytes.HasPrefix(data, liteMagic) {
		return nil, ErrUnknownFormat
	}
	raw, err := snappy.Decode(nil, data[len(liteMagic):])
	if err != nil {
		return nil, fmt.Errorf("failed to decompress lite model: %w", err)
	}

	var lite liteArtifact
	if err := gob.NewDecoder(bytes.NewReader(raw)).Decode(&lite); err != nil {
		return nil, fmt.Errorf("failed to decode lite model: %w", err)
	}

	a := &Artifact{
		FormatVersion: lite.Version,
		ID:            lite.ID,
		Phase:         lite.Phase,
		CreatedAt:     lite.CreatedAt,
		Classes:       lite.Classes,
		Backbone:      lite.Backbone,
	}
	for _, l := range lite.Layers {
		spec := nn.LayerSpec{Type: l.Type, Name: l.Name, Block: l.Block, Activation: l.Activation, In: l.In, Out: l.Out}
		switch l.Type {
		case nn.TypeDense:
			spec.Weights = Dequantize(l.Scale, l.Q)
			spec.Bias = toFloat64(l.Bias)
		case nn.TypeNormalize:
			spec.Mean = toFloat64(l.Mean)
			spec.Std = toFloat64(l.Std)
		}
		a.Layers = append(a.Layers, spec)
	}
	return a, nil
}

// Quantize maps w to int8 with one symmetric scale: w ~ scale*q.
func Quantize(w []float64) (float64, []int8) {
	var maxAbs float64
	for _, v := range w {
		maxAbs = math.Max(maxAbs, math.Abs(v))
	}
	q := make([]int8, len(w))
	if maxAbs == 0 {
		return 0, q
	}
	scale := maxAbs / 127
	for i, v := range w {
		r := math.Round(v / scale)
		q[i] = int8(math.Max(-127, math.Min(127, r)))
	}
	return scale, q
}

// Dequantize inverts Quantize.
func Dequantize(scale float64, q []int8) []float64 {
	out := make([]float64, len(q))
	for i, v := range q {
		out[i] = float64(v) * scale
	}
	return out
}

func toFloat32(v []float64) []float32 {
	out := make([]float32, len(v))
	for i, f := range v {
		out[i] = float32(f)
	}
	return out
}

func toFloat64(v []float32) []float64 {
	out := make([]float64, len(v))
	for i, f := range v {
		out[i] = float64(f)
	}
	return out
}
