package nn

import (
	"errors"
	"fmt"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/mat"
)

// ErrNoTrainableParams is returned when every layer is frozen.
var ErrNoTrainableParams = errors.New("network has no trainable parameters")

// FitOptions controls a training run.
type FitOptions struct {
	Epochs       int
	BatchSize    int
	LearningRate float64
	// Patience stops training after this many epochs without a lower
	// monitored loss. 0 disables early stopping.
	Patience int
	// ClassWeights scales each sample's training loss by its class weight.
	ClassWeights []float64
	Rng          *rand.Rand
	// OnEpoch is called after every epoch.
	OnEpoch func(EpochStats)
}

// EpochStats are the metrics of one epoch. Validation fields are zero when
// no validation set was given.
type EpochStats struct {
	Epoch       int     `json:"epoch"`
	Loss        float64 `json:"loss"`
	Accuracy    float64 `json:"accuracy"`
	ValLoss     float64 `json:"val_loss"`
	ValAccuracy float64 `json:"val_accuracy"`
}

// History records a training run.
type History struct {
	Epochs    []EpochStats `json:"epochs"`
	BestEpoch int          `json:"best_epoch"`
	Stopped   bool         `json:"stopped_early"`
}

// Fit trains the unfrozen layers on x/y with mini-batch Adam. It monitors
// the validation loss (the training loss when vx is nil) and ends with the
// best weights seen restored.
func (n *Network) Fit(x *mat.Dense, y []int, vx *mat.Dense, vy []int, opts FitOptions) (History, error) {
	var hist History

	rows, cols := x.Dims()
	if rows == 0 {
		return hist, fmt.Errorf("no training samples")
	}
	if rows != len(y) {
		return hist, fmt.Errorf("%d samples but %d labels", rows, len(y))
	}
	if vx != nil {
		if vr, _ := vx.Dims(); vr != len(vy) {
			return hist, fmt.Errorf("%d validation samples but %d labels", vr, len(vy))
		}
	}
	params := n.TrainableParams()
	if len(params) == 0 {
		return hist, ErrNoTrainableParams
	}

	batch := opts.BatchSize
	if batch <= 0 || batch > rows {
		batch = rows
	}
	rng := opts.Rng
	if rng == nil {
		rng = rand.New(rand.NewSource(1))
	}

	optim := NewAdam(opts.LearningRate)
	order := make([]int, rows)
	for i := range order {
		order[i] = i
	}

	best := math.Inf(1)
	bestSnap := n.snapshot()
	wait := 0

	for epoch := 1; epoch <= opts.Epochs; epoch++ {
		rng.Shuffle(rows, func(i, j int) { order[i], order[j] = order[j], order[i] })

		var lossSum float64
		for start := 0; start < rows; start += batch {
			end := min(start+batch, rows)
			bx := mat.NewDense(end-start, cols, nil)
			by := make([]int, end-start)
			for k, idx := range order[start:end] {
				copy(bx.RawRowView(k), x.RawRowView(idx))
				by[k] = y[idx]
			}

			probs := n.Forward(bx, true)
			loss, grad := CrossEntropy(probs, by, opts.ClassWeights)
			n.Backward(grad)
			optim.Step(params)
			lossSum += loss * float64(end-start)
		}

		stats := EpochStats{Epoch: epoch, Loss: lossSum / float64(rows)}
		stats.Accuracy = Accuracy(n.Predict(x), y)
		monitored := stats.Loss
		if vx != nil && len(vy) > 0 {
			vp := n.Predict(vx)
			stats.ValLoss, _ = CrossEntropy(vp, vy, nil)
			stats.ValAccuracy = Accuracy(vp, vy)
			monitored = stats.ValLoss
		}
		hist.Epochs = append(hist.Epochs, stats)
		if opts.OnEpoch != nil {
			opts.OnEpoch(stats)
		}

		if monitored < best {
			best = monitored
			bestSnap = n.snapshot()
			hist.BestEpoch = epoch
			wait = 0
			continue
		}
		wait++
		if opts.Patience > 0 && wait >= opts.Patience {
			hist.Stopped = true
			break
		}
	}

	n.restore(bestSnap)
	return hist, nil
}
