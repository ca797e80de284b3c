package nn

import (
	"fmt"
	"math/rand"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// PCAWeights returns a D x k projection whose columns are the first k
// principal directions of x. When x has fewer usable directions than k the
// remaining columns are small random vectors.
func PCAWeights(x *mat.Dense, k int, rng *rand.Rand) (*mat.Dense, error) {
	rows, cols := x.Dims()
	w := mat.NewDense(cols, k, nil)

	var pc stat.PC
	usable := 0
	if rows >= 2 && pc.PrincipalComponents(x, nil) {
		var vecs mat.Dense
		pc.VectorsTo(&vecs)
		_, available := vecs.Dims()
		usable = min(k, available, rows-1)
		for j := 0; j < usable; j++ {
			for i := 0; i < cols; i++ {
				w.Set(i, j, vecs.At(i, j))
			}
		}
	} else if rows >= 2 {
		return nil, fmt.Errorf("principal component analysis failed on %dx%d features", rows, cols)
	}

	for j := usable; j < k; j++ {
		for i := 0; i < cols; i++ {
			w.Set(i, j, rng.NormFloat64()*0.01)
		}
	}
	return w, nil
}
