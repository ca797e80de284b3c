// Package nn is a small feed-forward network on gonum matrices: dense,
// standardisation and dropout layers, softmax cross-entropy, Adam and a
// training loop with early stopping.
//
// Rows are samples. Only what the classifier head needs is implemented.
package nn

import (
	"fmt"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/mat"
)

// Activations.
const (
	Linear  = "linear"
	ReLU    = "relu"
	Softmax = "softmax"
)

// Layer blocks. Backbone layers sit between the frozen trunk and the head
// and are only trained during fine-tuning.
const (
	BlockBackbone = "backbone"
	BlockHead     = "head"
)

// Param is a trainable matrix and its last gradient.
type Param struct {
	Name string
	W    *mat.Dense
	Grad *mat.Dense
}

// Layer is one stage of a Network.
type Layer interface {
	// Forward maps a batch. train enables dropout.
	Forward(x *mat.Dense, train bool) *mat.Dense
	// Backward takes dLoss/dOutput of the last Forward and returns
	// dLoss/dInput, storing parameter gradients.
	Backward(grad *mat.Dense) *mat.Dense
	Params() []*Param
	Spec() LayerSpec
}

// Dense is a fully connected layer: act(x*W + b).
//
// With the softmax activation Backward expects the gradient with respect to
// the logits, which is what CrossEntropy returns.
type Dense struct {
	Name       string
	Block      string
	Activation string
	Frozen     bool

	w, b *Param
	in   *mat.Dense
	out  *mat.Dense
}

// NewDense creates a Glorot-uniform initialised layer.
func NewDense(name, block string, in, out int, activation string, rng *rand.Rand) *Dense {
	limit := math.Sqrt(6 / float64(in+out))
	data := make([]float64, in*out)
	for i := range data {
		data[i] = (rng.Float64()*2 - 1) * limit
	}
	return NewDenseFrom(name, block, mat.NewDense(in, out, data), make([]float64, out), activation)
}

// NewDenseFrom creates a layer with the given weights (in x out) and bias.
func NewDenseFrom(name, block string, w *mat.Dense, bias []float64, activation string) *Dense {
	_, out := w.Dims()
	return &Dense{
		Name:       name,
		Block:      block,
		Activation: activation,
		w:          &Param{Name: name + "/w", W: w},
		b:          &Param{Name: name + "/b", W: mat.NewDense(1, out, bias)},
	}
}

// Dims returns the input and output widths.
func (d *Dense) Dims() (in, out int) { return d.w.W.Dims() }

// Weights returns the weight matrix. It is shared, not copied.
func (d *Dense) Weights() *mat.Dense { return d.w.W }

// Bias returns the bias row. It is shared, not copied.
func (d *Dense) Bias() []float64 { return d.b.W.RawRowView(0) }

func (d *Dense) Forward(x *mat.Dense, train bool) *mat.Dense {
	rows, _ := x.Dims()
	_, cols := d.w.W.Dims()

	z := mat.NewDense(rows, cols, nil)
	z.Mul(x, d.w.W)
	bias := d.Bias()
	for i := 0; i < rows; i++ {
		row := z.RawRowView(i)
		for j := range row {
			row[j] += bias[j]
		}
		switch d.Activation {
		case ReLU:
			for j, v := range row {
				if v < 0 {
					row[j] = 0
				}
			}
		case Softmax:
			softmaxInPlace(row)
		}
	}

	d.in = x
	d.out = z
	return z
}

func (d *Dense) Backward(grad *mat.Dense) *mat.Dense {
	rows, cols := grad.Dims()

	g := mat.DenseCopyOf(grad)
	if d.Activation == ReLU {
		for i := 0; i < rows; i++ {
			gr, or := g.RawRowView(i), d.out.RawRowView(i)
			for j := range gr {
				if or[j] <= 0 {
					gr[j] = 0
				}
			}
		}
	}

	in, _ := d.w.W.Dims()
	dw := mat.NewDense(in, cols, nil)
	dw.Mul(d.in.T(), g)
	d.w.Grad = dw

	db := make([]float64, cols)
	for i := 0; i < rows; i++ {
		for j, v := range g.RawRowView(i) {
			db[j] += v
		}
	}
	d.b.Grad = mat.NewDense(1, cols, db)

	dx := mat.NewDense(rows, in, nil)
	dx.Mul(g, d.w.W.T())
	return dx
}

func (d *Dense) Params() []*Param { return []*Param{d.w, d.b} }

func (d *Dense) Spec() LayerSpec {
	in, out := d.Dims()
	return LayerSpec{
		Type:       TypeDense,
		Name:       d.Name,
		Block:      d.Block,
		Activation: d.Activation,
		Frozen:     d.Frozen,
		In:         in,
		Out:        out,
		Weights:    append([]float64(nil), d.w.W.RawMatrix().Data...),
		Bias:       append([]float64(nil), d.Bias()...),
	}
}

func softmaxInPlace(row []float64) {
	maxV := math.Inf(-1)
	for _, v := range row {
		if v > maxV {
			maxV = v
		}
	}
	var sum float64
	for j, v := range row {
		row[j] = math.Exp(v - maxV)
		sum += row[j]
	}
	for j := range row {
		row[j] /= sum
	}
}

// Normalize standardises features with fixed statistics: (x-mean)/std.
type Normalize struct {
	Name string
	Mean []float64
	Std  []float64
}

// NewNormalize computes column statistics of x. Constant columns get std 1.
func NewNormalize(name string, x *mat.Dense) *Normalize {
	rows, cols := x.Dims()
	mean := make([]float64, cols)
	std := make([]float64, cols)
	for j := 0; j < cols; j++ {
		var sum, sumSq float64
		for i := 0; i < rows; i++ {
			v := x.At(i, j)
			sum += v
			sumSq += v * v
		}
		n := float64(rows)
		mean[j] = sum / n
		variance := sumSq/n - mean[j]*mean[j]
		std[j] = math.Sqrt(math.Max(variance, 0))
		if std[j] < 1e-8 {
			std[j] = 1
		}
	}
	return &Normalize{Name: name, Mean: mean, Std: std}
}

func (n *Normalize) Forward(x *mat.Dense, train bool) *mat.Dense {
	rows, cols := x.Dims()
	out := mat.NewDense(rows, cols, nil)
	for i := 0; i < rows; i++ {
		src, dst := x.RawRowView(i), out.RawRowView(i)
		for j := range dst {
			dst[j] = (src[j] - n.Mean[j]) / n.Std[j]
		}
	}
	return out
}

func (n *Normalize) Backward(grad *mat.Dense) *mat.Dense {
	rows, cols := grad.Dims()
	out := mat.NewDense(rows, cols, nil)
	for i := 0; i < rows; i++ {
		src, dst := grad.RawRowView(i), out.RawRowView(i)
		for j := range dst {
			dst[j] = src[j] / n.Std[j]
		}
	}
	return out
}

func (n *Normalize) Params() []*Param { return nil }

func (n *Normalize) Spec() LayerSpec {
	return LayerSpec{
		Type:  TypeNormalize,
		Name:  n.Name,
		Block: BlockBackbone,
		In:    len(n.Mean),
		Out:   len(n.Mean),
		Mean:  append([]float64(nil), n.Mean...),
		Std:   append([]float64(nil), n.Std...),
	}
}

// Dropout zeroes a fraction of activations during training and rescales the
// rest (inverted dropout). It is the identity at inference.
type Dropout struct {
	Name string
	Rate float64

	rng  *rand.Rand
	mask *mat.Dense
}

// NewDropout creates a dropout layer.
func NewDropout(name string, rate float64, rng *rand.Rand) *Dropout {
	return &Dropout{Name: name, Rate: rate, rng: rng}
}

func (d *Dropout) Forward(x *mat.Dense, train bool) *mat.Dense {
	if !train || d.Rate <= 0 {
		d.mask = nil
		return x
	}

	rows, cols := x.Dims()
	keep := 1 - d.Rate
	d.mask = mat.NewDense(rows, cols, nil)
	out := mat.NewDense(rows, cols, nil)
	for i := 0; i < rows; i++ {
		m, src, dst := d.mask.RawRowView(i), x.RawRowView(i), out.RawRowView(i)
		for j := range dst {
			if d.rng.Float64() < keep {
				m[j] = 1 / keep
			}
			dst[j] = src[j] * m[j]
		}
	}
	return out
}

func (d *Dropout) Backward(grad *mat.Dense) *mat.Dense {
	if d.mask == nil {
		return grad
	}
	var out mat.Dense
	out.MulElem(grad, d.mask)
	return &out
}

func (d *Dropout) Params() []*Param { return nil }

func (d *Dropout) Spec() LayerSpec {
	return LayerSpec{Type: TypeDropout, Name: d.Name, Block: BlockHead, Rate: d.Rate}
}

// checkWidth reports a shape mismatch between consecutive layers.
func checkWidth(prev, next int, name string) error {
	if prev != next {
		return fmt.Errorf("layer %s expects %d inputs, previous layer produces %d", name, next, prev)
	}
	return nil
}
