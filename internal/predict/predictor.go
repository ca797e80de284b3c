// Package predict runs a trained artifact on images.
package predict

import (
	"fmt"
	"image"
	"math"
	"path/filepath"
	"sync"

	"go.uber.org/zap"

	"reefscan/internal/backbone"
	"reefscan/internal/logging"
	"reefscan/internal/model"
	"reefscan/internal/nn"
)

// Prediction is the classification of one image.
type Prediction struct {
	Path       string    `json:"path,omitempty"`
	Label      string    `json:"label"`
	Index      int       `json:"index"`
	Confidence float64   `json:"confidence"` // max probability x 100
	Scores     []float64 `json:"scores"`
}

// Predictor holds a loaded artifact, its trunk and its network. It is safe
// for concurrent use.
type Predictor struct {
	artifact *model.Artifact
	format   model.Format
	feat     *backbone.Featurizer
	net      *nn.Network
	log      *zap.SugaredLogger

	mu sync.Mutex // the network caches activations during Forward
}

// Options adjusts how the trunk is rebuilt.
type Options struct {
	// ModelDir overrides the directory of a DNN trunk's weight files, for
	// artifacts moved to another machine.
	ModelDir string
	// Cache is an optional feature cache.
	Cache *backbone.Cache
}

// Load opens an artifact of either format and prepares it for inference.
func Load(path string, opts Options, log *zap.SugaredLogger) (*Predictor, error) {
	a, format, err := model.Load(path)
	if err != nil {
		return nil, err
	}
	return New(a, format, opts, log)
}

// New prepares an already loaded artifact.
func New(a *model.Artifact, format model.Format, opts Options, log *zap.SugaredLogger) (*Predictor, error) {
	net, err := a.Network(nil)
	if err != nil {
		return nil, err
	}

	spec := a.Backbone
	if opts.ModelDir != "" && spec.Kind == backbone.KindDNN {
		spec = relocate(spec, opts.ModelDir)
	}
	ext, err := backbone.New(spec)
	if err != nil {
		return nil, fmt.Errorf("failed to build backbone: %w", err)
	}
	if ext.Dim() != net.InputDim() {
		ext.Close()
		return nil, fmt.Errorf("%w: backbone yields %d features, network expects %d",
			model.ErrIncompatible, ext.Dim(), net.InputDim())
	}

	log = logging.OrNop(log)
	log.Infow("loaded model", "id", a.ID, "format", format.String(), "phase", a.Phase,
		"classes", a.Classes, "backbone", ext.Name())

	return &Predictor{
		artifact: a,
		format:   format,
		feat:     backbone.NewFeaturizer(ext, spec.InputSize, opts.Cache, log),
		net:      net,
		log:      log,
	}, nil
}

// relocate points a DNN trunk's files at dir, keeping their base names.
func relocate(spec backbone.Spec, dir string) backbone.Spec {
	spec.ModelPath = filepath.Join(dir, filepath.Base(spec.ModelPath))
	if spec.ConfigPath != "" {
		spec.ConfigPath = filepath.Join(dir, filepath.Base(spec.ConfigPath))
	}
	return spec
}

// Classes returns the artifact's ordered class list.
func (p *Predictor) Classes() []string { return p.artifact.Classes }

// ModelID identifies the loaded artifact.
func (p *Predictor) ModelID() string { return p.artifact.ID }

// Artifact returns the loaded artifact.
func (p *Predictor) Artifact() *model.Artifact { return p.artifact }

// ScoreFile returns the class probabilities for the image at path.
func (p *Predictor) ScoreFile(path string) ([]float64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	emb, err := p.feat.File(path)
	if err != nil {
		return nil, err
	}
	return p.net.PredictOne(emb), nil
}

// PredictFile classifies the image at path.
func (p *Predictor) PredictFile(path string) (Prediction, error) {
	scores, err := p.ScoreFile(path)
	if err != nil {
		return Prediction{}, err
	}
	pred := p.fromScores(scores)
	pred.Path = path
	return pred, nil
}

// PredictBytes classifies an encoded image.
func (p *Predictor) PredictBytes(data []byte) (Prediction, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	emb, err := p.feat.Bytes(data)
	if err != nil {
		return Prediction{}, err
	}
	return p.fromScores(p.net.PredictOne(emb)), nil
}

// PredictImage classifies a decoded image.
func (p *Predictor) PredictImage(img image.Image) (Prediction, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	emb, err := p.feat.Image(img)
	if err != nil {
		return Prediction{}, err
	}
	return p.fromScores(p.net.PredictOne(emb)), nil
}

// PredictFiles classifies every path in order. The first unreadable image
// aborts the batch.
func (p *Predictor) PredictFiles(paths []string) ([]Prediction, error) {
	out := make([]Prediction, 0, len(paths))
	for _, path := range paths {
		pred, err := p.PredictFile(path)
		if err != nil {
			return nil, err
		}
		out = append(out, pred)
	}
	return out, nil
}

// Close releases the trunk.
func (p *Predictor) Close() error {
	return p.feat.Extractor().Close()
}

func (p *Predictor) fromScores(scores []float64) Prediction {
	idx := nn.Argmax(scores)
	return Prediction{
		Label:      p.artifact.Classes[idx],
		Index:      idx,
		Confidence: scores[idx] * 100,
		Scores:     scores,
	}
}

// RoundScores rounds every score to the given number of decimals.
func RoundScores(scores []float64, decimals int) []float64 {
	pow := math.Pow(10, float64(decimals))
	out := make([]float64, len(scores))
	for i, s := range scores {
		out[i] = math.Round(s*pow) / pow
	}
	return out
}
