package train

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"reefscan/internal/backbone"
	"reefscan/internal/model"
	"reefscan/internal/nn"
)

var palette = map[string]color.RGBA{
	"Bleached_Severe": {R: 245, G: 245, B: 240, A: 255},
	"Dead":            {R: 90, G: 70, B: 50, A: 255},
	"Healthy":         {R: 40, G: 140, B: 90, A: 255},
}

// writeSplit writes n noisy solid-colour images per class under dir.
func writeSplit(t *testing.T, dir string, n int, rng *rand.Rand) {
	t.Helper()
	for class, c := range palette {
		classDir := filepath.Join(dir, class)
		require.NoError(t, os.MkdirAll(classDir, 0o755))
		for i := 0; i < n; i++ {
			img := image.NewRGBA(image.Rect(0, 0, 16, 16))
			for p := 0; p < len(img.Pix); p += 4 {
				jitter := func(v uint8) uint8 {
					return uint8(max(0, min(255, int(v)+rng.Intn(21)-10)))
				}
				img.Pix[p], img.Pix[p+1], img.Pix[p+2], img.Pix[p+3] = jitter(c.R), jitter(c.G), jitter(c.B), 255
			}
			f, err := os.Create(filepath.Join(classDir, fmt.Sprintf("img_%02d.png", i)))
			require.NoError(t, err)
			require.NoError(t, png.Encode(f, img))
			require.NoError(t, f.Close())
		}
	}
}

func testOptions(root string) Options {
	return Options{
		TrainDir:      filepath.Join(root, "train"),
		ValDir:        filepath.Join(root, "val"),
		HiddenUnits:   []int{16},
		Dropout:       0.1,
		ProjectionDim: 8,
		BatchSize:     8,
		Epochs:        40,
		LearningRate:  0.01,
		Patience:      10,
		ClassWeights:  true,
		Seed:          3,
		FineTune:      FineTuneOptions{Enabled: true, Epochs: 3, LearningRate: 1e-4, UnfreezeLast: 1},
		ModelOut:      filepath.Join(root, "coral_model.json"),
		LiteOut:       filepath.Join(root, "coral_model.lite"),
		CurvesOut:     filepath.Join(root, "curves.png"),
	}
}

func TestTrainerTwoPhases(t *testing.T) {
	root := t.TempDir()
	rng := rand.New(rand.NewSource(1))
	writeSplit(t, filepath.Join(root, "train"), 10, rng)
	writeSplit(t, filepath.Join(root, "val"), 3, rng)

	spec := backbone.Spec{Kind: backbone.KindHSV, Bins: 4, InputSize: 16}
	feat := backbone.NewFeaturizer(backbone.NewHSV(4), 16, nil, nil)
	tr := New(testOptions(root), spec, feat, nil)

	epochs := map[string]int{}
	tr.OnEpoch = func(phase string, s nn.EpochStats) { epochs[phase]++ }

	res, err := tr.Run()
	require.NoError(t, err)
	assert.Equal(t, []string{"Bleached_Severe", "Dead", "Healthy"}, res.Classes)
	assert.Equal(t, 30, res.TrainCount)
	assert.Equal(t, 9, res.ValCount)
	assert.Equal(t, []float64{1, 1, 1}, res.ClassWeights)
	require.Len(t, res.Phases, 2)
	assert.Positive(t, epochs[model.PhaseInitial])
	assert.Positive(t, epochs[model.PhaseFineTuned])

	assert.Equal(t, filepath.Join(root, "coral_model_finetuned.json"), res.Phases[1].ModelPath)
	for _, p := range []string{
		filepath.Join(root, "coral_model.json"),
		filepath.Join(root, "coral_model.lite"),
		filepath.Join(root, "coral_model_finetuned.json"),
		filepath.Join(root, "coral_model_finetuned.lite"),
		filepath.Join(root, "curves.png"),
		filepath.Join(root, "curves_finetuned.png"),
	} {
		assert.FileExists(t, p)
	}

	a, format, err := model.Load(res.Phases[1].LitePath)
	require.NoError(t, err)
	assert.Equal(t, model.FormatLite, format)
	assert.Equal(t, res.Classes, a.Classes)
	assert.Equal(t, spec, a.Backbone)
	assert.Equal(t, model.PhaseFineTuned, a.Phase)

	net, err := a.Network(nil)
	require.NoError(t, err)
	emb, err := feat.File(filepath.Join(root, "val", "Dead", "img_00.png"))
	require.NoError(t, err)
	assert.Equal(t, a.ClassIndex("Dead"), nn.Argmax(net.PredictOne(emb)))

	full, _, err := model.Load(res.Phases[1].ModelPath)
	require.NoError(t, err)
	assert.Len(t, full.History, 2)
}

func TestTrainerResumeFineTunes(t *testing.T) {
	root := t.TempDir()
	rng := rand.New(rand.NewSource(2))
	writeSplit(t, filepath.Join(root, "train"), 6, rng)

	spec := backbone.Spec{Kind: backbone.KindHSV, Bins: 4, InputSize: 16}
	feat := backbone.NewFeaturizer(backbone.NewHSV(4), 16, nil, nil)

	opts := testOptions(root)
	opts.ValDir = ""
	opts.CurvesOut = ""
	opts.FineTune.Enabled = false
	opts.Epochs = 5
	_, err := New(opts, spec, feat, nil).Run()
	require.NoError(t, err)

	resume := opts
	resume.ResumeFrom = opts.ModelOut
	res, err := New(resume, spec, feat, nil).Run()
	require.NoError(t, err)
	require.Len(t, res.Phases, 1)
	assert.Equal(t, model.PhaseFineTuned, res.Phases[0].Phase)

	other := backbone.Spec{Kind: backbone.KindHSV, Bins: 8, InputSize: 16}
	_, err = New(resume, other, backbone.NewFeaturizer(backbone.NewHSV(8), 16, nil, nil), nil).Run()
	assert.ErrorIs(t, err, model.ErrIncompatible)
}

func TestTrainerErrors(t *testing.T) {
	root := t.TempDir()
	feat := backbone.NewFeaturizer(backbone.NewHSV(4), 16, nil, nil)
	spec := backbone.Spec{Kind: backbone.KindHSV, Bins: 4, InputSize: 16}

	opts := testOptions(root)
	opts.ModelOut = ""
	_, err := New(opts, spec, feat, nil).Run()
	assert.Error(t, err)

	_, err = New(testOptions(root), spec, feat, nil).Run()
	assert.Error(t, err, "missing train dir")
}

func TestTrainerCurvesFailureWritesNoArtifacts(t *testing.T) {
	root := t.TempDir()
	rng := rand.New(rand.NewSource(4))
	writeSplit(t, filepath.Join(root, "train"), 6, rng)

	spec := backbone.Spec{Kind: backbone.KindHSV, Bins: 4, InputSize: 16}
	feat := backbone.NewFeaturizer(backbone.NewHSV(4), 16, nil, nil)

	opts := testOptions(root)
	opts.ValDir = ""
	opts.Epochs = 2
	opts.FineTune.Enabled = false
	opts.CurvesOut = filepath.Join(root, "missing", "curves.png")

	_, err := New(opts, spec, feat, nil).Run()
	require.Error(t, err)
	assert.NoFileExists(t, opts.ModelOut)
	assert.NoFileExists(t, opts.LiteOut)
}

func TestSaveCurves(t *testing.T) {
	path := filepath.Join(t.TempDir(), "curves.png")
	hist := nn.History{
		Epochs: []nn.EpochStats{
			{Epoch: 1, Loss: 1.0, Accuracy: 0.4, ValLoss: 1.1, ValAccuracy: 0.3},
			{Epoch: 2, Loss: 0.6, Accuracy: 0.7, ValLoss: 0.8, ValAccuracy: 0.6},
		},
		BestEpoch: 2,
	}
	require.NoError(t, SaveCurves(path, hist, model.PhaseInitial))
	assert.FileExists(t, path)

	assert.Error(t, SaveCurves(path, nn.History{}, model.PhaseInitial))
}
