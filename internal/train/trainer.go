// Package train runs the two-phase transfer-learning pipeline: embed the
// dataset with a frozen trunk, train the head, optionally fine-tune the last
// backbone-block layers, and export full and lite artifacts after each
// phase.
package train

import (
	"errors"
	"fmt"
	"math/rand"
	"os"
	"time"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"

	"reefscan/internal/backbone"
	"reefscan/internal/dataset"
	"reefscan/internal/logging"
	"reefscan/internal/model"
	"reefscan/internal/nn"
)

// FineTuneOptions controls the second phase.
type FineTuneOptions struct {
	Enabled      bool
	Epochs       int
	LearningRate float64
	UnfreezeLast int
}

// Options configures a training run.
type Options struct {
	TrainDir string
	ValDir   string // optional
	// Classes fixes the class order; empty means sorted folder names.
	Classes []string
	// ResumeFrom names a full artifact to fine-tune instead of training a
	// new head. Its classes and trunk are reused.
	ResumeFrom string

	HiddenUnits   []int
	Dropout       float64
	ProjectionDim int
	BatchSize     int
	Epochs        int
	LearningRate  float64
	Patience      int
	ClassWeights  bool
	Seed          int64
	FineTune      FineTuneOptions

	ModelOut  string
	LiteOut   string
	CurvesOut string // optional PNG of the training curves
}

// PhaseResult describes the artifacts written after one phase.
type PhaseResult struct {
	Phase     string
	History   nn.History
	ModelPath string
	LitePath  string
	LiteSize  int
	CurvesOut string
}

// Result summarises a run.
type Result struct {
	Classes      []string
	TrainCount   int
	ValCount     int
	ClassWeights []float64
	Phases       []PhaseResult
}

// Trainer trains classifiers on embeddings produced by a Featurizer.
type Trainer struct {
	opts Options
	spec backbone.Spec
	feat *backbone.Featurizer
	rng  *rand.Rand
	log  *zap.SugaredLogger

	// OnEpoch, if set, receives per-epoch metrics of every phase.
	OnEpoch func(phase string, s nn.EpochStats)
}

// New creates a trainer. spec must describe the trunk wrapped by feat.
func New(opts Options, spec backbone.Spec, feat *backbone.Featurizer, log *zap.SugaredLogger) *Trainer {
	seed := opts.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Trainer{
		opts: opts,
		spec: spec,
		feat: feat,
		rng:  rand.New(rand.NewSource(seed)),
		log:  logging.OrNop(log),
	}
}

// Run executes the configured phases. Artifacts of a phase are only
// written once that phase has finished.
func (t *Trainer) Run() (*Result, error) {
	if t.opts.ModelOut == "" || t.opts.LiteOut == "" {
		return nil, errors.New("model and lite output paths are required")
	}

	var (
		classes []string
		net     *nn.Network
		history []nn.History
		err     error
	)
	if t.opts.ResumeFrom != "" {
		prev, _, err := model.Load(t.opts.ResumeFrom)
		if err != nil {
			return nil, err
		}
		if prev.Backbone != t.spec {
			return nil, fmt.Errorf("%w: %s was trained with trunk %s, not %s",
				model.ErrIncompatible, t.opts.ResumeFrom, prev.Backbone.Name(), t.spec.Name())
		}
		classes = prev.Classes
		history = prev.History
		if net, err = prev.Network(t.rng); err != nil {
			return nil, err
		}
	} else {
		classes, err = dataset.ResolveClasses(t.opts.TrainDir, t.opts.Classes)
		if err != nil {
			return nil, err
		}
	}

	x, y, err := t.embed(t.opts.TrainDir, classes)
	if err != nil {
		return nil, fmt.Errorf("training set: %w", err)
	}
	var vx *mat.Dense
	var vy []int
	if t.opts.ValDir != "" {
		if vx, vy, err = t.embed(t.opts.ValDir, classes); err != nil {
			return nil, fmt.Errorf("validation set: %w", err)
		}
	}

	res := &Result{Classes: classes, TrainCount: len(y), ValCount: len(vy)}
	counts := make([]int, len(classes))
	for _, l := range y {
		counts[l]++
	}
	if t.opts.ClassWeights {
		res.ClassWeights = nn.ClassWeights(counts)
	}
	t.log.Infow("embedded dataset", "classes", classes, "train", len(y), "val", len(vy), "counts", counts)

	if net == nil {
		if net, err = t.build(x, len(classes)); err != nil {
			return nil, err
		}
		net.FreezeBackbone()
		hist, err := net.Fit(x, y, vx, vy, t.fitOptions(model.PhaseInitial, t.opts.Epochs, t.opts.LearningRate, res.ClassWeights))
		if err != nil {
			return nil, fmt.Errorf("initial phase: %w", err)
		}
		history = append(history, hist)
		phase, err := t.export(classes, net, model.PhaseInitial, history, "")
		if err != nil {
			return nil, err
		}
		res.Phases = append(res.Phases, phase)
	}

	if t.opts.FineTune.Enabled || t.opts.ResumeFrom != "" {
		unfrozen := net.UnfreezeLast(t.opts.FineTune.UnfreezeLast)
		t.log.Infow("fine-tuning", "unfrozen_backbone_layers", unfrozen, "learning_rate", t.opts.FineTune.LearningRate)
		hist, err := net.Fit(x, y, vx, vy, t.fitOptions(model.PhaseFineTuned, t.opts.FineTune.Epochs, t.opts.FineTune.LearningRate, res.ClassWeights))
		if err != nil {
			return nil, fmt.Errorf("fine-tuning phase: %w", err)
		}
		history = append(history, hist)
		phase, err := t.export(classes, net, model.PhaseFineTuned, history, model.FineTunedSuffix)
		if err != nil {
			return nil, err
		}
		res.Phases = append(res.Phases, phase)
	}
	return res, nil
}

func (t *Trainer) fitOptions(phase string, epochs int, lr float64, weights []float64) nn.FitOptions {
	return nn.FitOptions{
		Epochs:       epochs,
		BatchSize:    t.opts.BatchSize,
		LearningRate: lr,
		Patience:     t.opts.Patience,
		ClassWeights: weights,
		Rng:          t.rng,
		OnEpoch: func(s nn.EpochStats) {
			t.log.Debugw("epoch", "phase", phase, "epoch", s.Epoch, "loss", s.Loss, "val_loss", s.ValLoss)
			if t.OnEpoch != nil {
				t.OnEpoch(phase, s)
			}
		},
	}
}

// embed runs the trunk over every image of dir in enumeration order.
func (t *Trainer) embed(dir string, classes []string) (*mat.Dense, []int, error) {
	samples, err := dataset.Enumerate(dir, classes)
	if err != nil {
		return nil, nil, err
	}
	if len(samples) == 0 {
		return nil, nil, fmt.Errorf("no images under %s", dir)
	}

	paths := make([]string, len(samples))
	labels := make([]int, len(samples))
	for i, s := range samples {
		paths[i] = s.Path
		labels[i] = s.Label
	}

	embs, err := t.feat.Files(paths, nil)
	if err != nil {
		return nil, nil, err
	}
	x := mat.NewDense(len(embs), len(embs[0]), nil)
	for i, e := range embs {
		x.SetRow(i, e)
	}
	return x, labels, nil
}

// build assembles standardisation, the PCA-initialised projection and the
// head.
func (t *Trainer) build(x *mat.Dense, numClasses int) (*nn.Network, error) {
	_, dim := x.Dims()
	proj := t.opts.ProjectionDim
	if proj <= 0 {
		proj = dim
	}

	norm := nn.NewNormalize("standardize", x)
	w, err := nn.PCAWeights(norm.Forward(x, false), proj, t.rng)
	if err != nil {
		return nil, err
	}

	layers := []nn.Layer{
		norm,
		nn.NewDenseFrom("projection", nn.BlockBackbone, w, make([]float64, proj), nn.Linear),
	}
	width := proj
	for i, units := range t.opts.HiddenUnits {
		layers = append(layers,
			nn.NewDense(fmt.Sprintf("dense_%d", i+1), nn.BlockHead, width, units, nn.ReLU, t.rng),
			nn.NewDropout(fmt.Sprintf("dropout_%d", i+1), t.opts.Dropout, t.rng))
		width = units
	}
	layers = append(layers, nn.NewDense("predictions", nn.BlockHead, width, numClasses, nn.Softmax, t.rng))
	return nn.NewNetwork(layers...)
}

func (t *Trainer) export(classes []string, net *nn.Network, phase string, history []nn.History, suffix string) (PhaseResult, error) {
	res := PhaseResult{
		Phase:     phase,
		History:   history[len(history)-1],
		ModelPath: model.PhasePath(t.opts.ModelOut, suffix),
		LitePath:  model.PhasePath(t.opts.LiteOut, suffix),
	}

	// A plotting failure must leave no artifacts behind.
	if t.opts.CurvesOut != "" {
		res.CurvesOut = model.PhasePath(t.opts.CurvesOut, suffix)
		if err := SaveCurves(res.CurvesOut, res.History, phase); err != nil {
			return res, err
		}
	}
	cleanup := func(paths ...string) {
		for _, p := range append(paths, res.CurvesOut) {
			if p != "" {
				os.Remove(p)
			}
		}
	}

	a := model.New(classes, t.spec, net, phase, history)
	if err := model.SaveFull(res.ModelPath, a); err != nil {
		cleanup()
		return res, err
	}
	size, err := model.SaveLite(res.LitePath, a)
	if err != nil {
		cleanup(res.ModelPath)
		return res, err
	}
	res.LiteSize = size

	t.log.Infow("exported model", "phase", phase, "model", res.ModelPath, "lite", res.LitePath)
	return res, nil
}
