package nn

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// CrossEntropy returns the mean categorical cross-entropy of probs against
// labels and its gradient with respect to the softmax logits. weights, if
// non-nil, scales each sample's term by the weight of its class.
func CrossEntropy(probs *mat.Dense, labels []int, weights []float64) (float64, *mat.Dense) {
	rows, cols := probs.Dims()
	grad := mat.NewDense(rows, cols, nil)
	n := float64(rows)

	var loss float64
	for i := 0; i < rows; i++ {
		w := 1.0
		if weights != nil {
			w = weights[labels[i]]
		}
		p := probs.RawRowView(i)
		g := grad.RawRowView(i)
		loss -= w * math.Log(math.Max(p[labels[i]], 1e-12))
		for j := range g {
			g[j] = p[j] * w / n
		}
		g[labels[i]] -= w / n
	}
	return loss / n, grad
}

// Accuracy is the share of rows whose argmax equals the label.
func Accuracy(probs *mat.Dense, labels []int) float64 {
	rows, _ := probs.Dims()
	if rows == 0 {
		return 0
	}
	correct := 0
	for i := 0; i < rows; i++ {
		if Argmax(probs.RawRowView(i)) == labels[i] {
			correct++
		}
	}
	return float64(correct) / float64(rows)
}

// Argmax returns the index of the largest value, the first on ties.
func Argmax(v []float64) int {
	best := 0
	for i := 1; i < len(v); i++ {
		if v[i] > v[best] {
			best = i
		}
	}
	return best
}

// ClassWeights returns max(count)/count per class. Empty classes get 1.
func ClassWeights(counts []int) []float64 {
	maxCount := 0
	for _, c := range counts {
		if c > maxCount {
			maxCount = c
		}
	}
	out := make([]float64, len(counts))
	for i, c := range counts {
		if c == 0 {
			out[i] = 1
			continue
		}
		out[i] = float64(maxCount) / float64(c)
	}
	return out
}

// Adam is the Adam optimiser.
type Adam struct {
	LR    float64
	Beta1 float64
	Beta2 float64
	Eps   float64

	t     int
	state map[*Param]*moments
}

type moments struct {
	m, v []float64
}

// NewAdam creates an optimiser with the usual defaults.
func NewAdam(lr float64) *Adam {
	return &Adam{
		LR:    lr,
		Beta1: 0.9,
		Beta2: 0.999,
		Eps:   1e-7,
		state: make(map[*Param]*moments),
	}
}

// Step applies one update to params using their stored gradients.
func (a *Adam) Step(params []*Param) {
	a.t++
	c1 := 1 - math.Pow(a.Beta1, float64(a.t))
	c2 := 1 - math.Pow(a.Beta2, float64(a.t))

	for _, p := range params {
		if p.Grad == nil {
			continue
		}
		w := p.W.RawMatrix().Data
		g := p.Grad.RawMatrix().Data

		st, ok := a.state[p]
		if !ok {
			st = &moments{m: make([]float64, len(w)), v: make([]float64, len(w))}
			a.state[p] = st
		}
		for i := range w {
			st.m[i] = a.Beta1*st.m[i] + (1-a.Beta1)*g[i]
			st.v[i] = a.Beta2*st.v[i] + (1-a.Beta2)*g[i]*g[i]
			mHat := st.m[i] / c1
			vHat := st.v[i] / c2
			w[i] -= a.LR * mHat / (math.Sqrt(vHat) + a.Eps)
		}
	}
}
