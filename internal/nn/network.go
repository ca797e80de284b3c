package nn

import (
	"fmt"
	"math/rand"

	"gonum.org/v1/gonum/mat"
)

// Layer types in a LayerSpec.
const (
	TypeDense     = "dense"
	TypeNormalize = "normalize"
	TypeDropout   = "dropout"
)

// LayerSpec is the serialisable form of a layer. Weights are row-major
// In x Out.
type LayerSpec struct {
	Type       string    `json:"type"`
	Name       string    `json:"name"`
	Block      string    `json:"block"`
	Activation string    `json:"activation,omitempty"`
	Frozen     bool      `json:"frozen,omitempty"`
	In         int       `json:"in,omitempty"`
	Out        int       `json:"out,omitempty"`
	Weights    []float64 `json:"weights,omitempty"`
	Bias       []float64 `json:"bias,omitempty"`
	Mean       []float64 `json:"mean,omitempty"`
	Std        []float64 `json:"std,omitempty"`
	Rate       float64   `json:"rate,omitempty"`
}

// Network is a stack of layers applied in order.
type Network struct {
	Layers []Layer
}

// NewNetwork checks that consecutive widths agree.
func NewNetwork(layers ...Layer) (*Network, error) {
	width := -1
	for _, l := range layers {
		spec := l.Spec()
		if spec.Type == TypeDropout {
			continue
		}
		if width >= 0 {
			if err := checkWidth(width, spec.In, spec.Name); err != nil {
				return nil, err
			}
		}
		width = spec.Out
	}
	return &Network{Layers: layers}, nil
}

// FromSpecs rebuilds a network. rng drives dropout during further training
// and may be nil for inference-only use.
func FromSpecs(specs []LayerSpec, rng *rand.Rand) (*Network, error) {
	if rng == nil {
		rng = rand.New(rand.NewSource(1))
	}
	layers := make([]Layer, 0, len(specs))
	for _, s := range specs {
		switch s.Type {
		case TypeDense:
			if s.In < 1 || s.Out < 1 {
				return nil, fmt.Errorf("layer %s: dense dimensions must be positive, got %dx%d", s.Name, s.In, s.Out)
			}
			if len(s.Weights) != s.In*s.Out || len(s.Bias) != s.Out {
				return nil, fmt.Errorf("layer %s: weight shape does not match %dx%d", s.Name, s.In, s.Out)
			}
			d := NewDenseFrom(s.Name, s.Block,
				mat.NewDense(s.In, s.Out, append([]float64(nil), s.Weights...)),
				append([]float64(nil), s.Bias...), s.Activation)
			d.Frozen = s.Frozen
			layers = append(layers, d)
		case TypeNormalize:
			if len(s.Mean) != len(s.Std) || len(s.Mean) == 0 {
				return nil, fmt.Errorf("layer %s: bad normalisation statistics", s.Name)
			}
			layers = append(layers, &Normalize{
				Name: s.Name,
				Mean: append([]float64(nil), s.Mean...),
				Std:  append([]float64(nil), s.Std...),
			})
		case TypeDropout:
			layers = append(layers, NewDropout(s.Name, s.Rate, rng))
		default:
			return nil, fmt.Errorf("layer %s: unknown type %q", s.Name, s.Type)
		}
	}
	return NewNetwork(layers...)
}

// Specs serialises every layer.
func (n *Network) Specs() []LayerSpec {
	out := make([]LayerSpec, len(n.Layers))
	for i, l := range n.Layers {
		out[i] = l.Spec()
	}
	return out
}

// InputDim returns the width the first weighted layer expects.
func (n *Network) InputDim() int {
	for _, l := range n.Layers {
		if s := l.Spec(); s.Type != TypeDropout {
			return s.In
		}
	}
	return 0
}

// OutputDim returns the width of the last weighted layer.
func (n *Network) OutputDim() int {
	for i := len(n.Layers) - 1; i >= 0; i-- {
		if s := n.Layers[i].Spec(); s.Type != TypeDropout {
			return s.Out
		}
	}
	return 0
}

// Forward runs x through every layer.
func (n *Network) Forward(x *mat.Dense, train bool) *mat.Dense {
	for _, l := range n.Layers {
		x = l.Forward(x, train)
	}
	return x
}

// Backward propagates grad from the output back through every layer.
func (n *Network) Backward(grad *mat.Dense) {
	for i := len(n.Layers) - 1; i >= 0; i-- {
		grad = n.Layers[i].Backward(grad)
	}
}

// Predict returns the output for x in inference mode.
func (n *Network) Predict(x *mat.Dense) *mat.Dense {
	return n.Forward(x, false)
}

// PredictOne is Predict for a single feature vector.
func (n *Network) PredictOne(features []float64) []float64 {
	x := mat.NewDense(1, len(features), append([]float64(nil), features...))
	out := n.Predict(x)
	return append([]float64(nil), out.RawRowView(0)...)
}

// Dense returns the dense layers in order.
func (n *Network) Dense() []*Dense {
	var out []*Dense
	for _, l := range n.Layers {
		if d, ok := l.(*Dense); ok {
			out = append(out, d)
		}
	}
	return out
}

// TrainableParams returns the parameters of every layer that is not frozen.
func (n *Network) TrainableParams() []*Param {
	var out []*Param
	for _, d := range n.Dense() {
		if !d.Frozen {
			out = append(out, d.Params()...)
		}
	}
	return out
}

// FreezeBackbone freezes every backbone-block layer and unfreezes the head.
func (n *Network) FreezeBackbone() {
	for _, d := range n.Dense() {
		d.Frozen = d.Block == BlockBackbone
	}
}

// UnfreezeLast freezes the backbone block except its last k dense layers.
// Head layers stay trainable. It returns the number of backbone layers
// unfrozen.
func (n *Network) UnfreezeLast(k int) int {
	var backbone []*Dense
	for _, d := range n.Dense() {
		if d.Block == BlockBackbone {
			d.Frozen = true
			backbone = append(backbone, d)
		} else {
			d.Frozen = false
		}
	}
	k = max(0, min(k, len(backbone)))
	for _, d := range backbone[len(backbone)-k:] {
		d.Frozen = false
	}
	return k
}

// snapshot copies every dense parameter.
func (n *Network) snapshot() []*mat.Dense {
	var out []*mat.Dense
	for _, d := range n.Dense() {
		for _, p := range d.Params() {
			out = append(out, mat.DenseCopyOf(p.W))
		}
	}
	return out
}

func (n *Network) restore(snap []*mat.Dense) {
	i := 0
	for _, d := range n.Dense() {
		for _, p := range d.Params() {
			p.W.Copy(snap[i])
			i++
		}
	}
}
