package model

import (
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"reefscan/internal/backbone"
	"reefscan/internal/nn"
)

var classes = []string{"Bleached_Mild", "Dead", "Healthy"}

func testArtifact(t *testing.T) (*Artifact, *mat.Dense) {
	t.Helper()
	rng := rand.New(rand.NewSource(4))
	x := mat.NewDense(12, 5, nil)
	for i := 0; i < 12; i++ {
		for j := 0; j < 5; j++ {
			x.Set(i, j, rng.Float64()+float64(i%3))
		}
	}
	net, err := nn.NewNetwork(
		nn.NewNormalize("norm", x),
		nn.NewDense("proj", nn.BlockBackbone, 5, 4, nn.Linear, rng),
		nn.NewDense("hidden", nn.BlockHead, 4, 6, nn.ReLU, rng),
		nn.NewDropout("drop", 0.3, rng),
		nn.NewDense("out", nn.BlockHead, 6, 3, nn.Softmax, rng),
	)
	require.NoError(t, err)

	spec := backbone.Spec{Kind: backbone.KindHSV, Bins: 8, InputSize: 224}
	hist := []nn.History{{Epochs: []nn.EpochStats{{Epoch: 1, Loss: 1.1}}, BestEpoch: 1}}
	return New(classes, spec, net, PhaseInitial, hist), x
}

func TestFullRoundTrip(t *testing.T) {
	a, x := testArtifact(t)
	path := filepath.Join(t.TempDir(), "coral_model.json")
	require.NoError(t, SaveFull(path, a))

	loaded, format, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, FormatFull, format)
	assert.Equal(t, classes, loaded.Classes)
	assert.Equal(t, a.ID, loaded.ID)
	assert.Equal(t, a.Backbone, loaded.Backbone)
	require.Len(t, loaded.History, 1)

	want, err := a.Network(nil)
	require.NoError(t, err)
	got, err := loaded.Network(nil)
	require.NoError(t, err)
	assert.True(t, mat.EqualApprox(want.Predict(x), got.Predict(x), 1e-12))
}

func TestLiteRoundTripWithinTolerance(t *testing.T) {
	a, x := testArtifact(t)
	path := filepath.Join(t.TempDir(), "coral_model.lite")
	size, err := SaveLite(path, a)
	require.NoError(t, err)

	full := filepath.Join(t.TempDir(), "coral_model.json")
	require.NoError(t, SaveFull(full, a))
	fi, err := os.Stat(full)
	require.NoError(t, err)
	assert.Less(t, int64(size), fi.Size())

	loaded, format, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, FormatLite, format)
	assert.Equal(t, classes, loaded.Classes)
	assert.Equal(t, a.Phase, loaded.Phase)
	assert.Empty(t, loaded.History)
	for _, l := range loaded.Layers {
		assert.NotEqual(t, nn.TypeDropout, l.Type)
	}

	want, err := a.Network(nil)
	require.NoError(t, err)
	got, err := loaded.Network(nil)
	require.NoError(t, err)

	assert.True(t, mat.EqualApprox(want.Predict(x), got.Predict(x), 0.05))
}

func TestLoadRejectsGarbage(t *testing.T) {
	dir := t.TempDir()

	bin := filepath.Join(dir, "model.bin")
	require.NoError(t, os.WriteFile(bin, []byte{0x00, 0x01, 0x02}, 0o644))
	_, _, err := Load(bin)
	assert.ErrorIs(t, err, ErrUnknownFormat)

	corrupt := filepath.Join(dir, "model.lite")
	require.NoError(t, os.WriteFile(corrupt, append([]byte("RSLITE1\n"), 0xff, 0xfe), 0o644))
	_, _, err = Load(corrupt)
	assert.Error(t, err)

	empty := filepath.Join(dir, "empty.json")
	require.NoError(t, os.WriteFile(empty, []byte(`{"format_version":1,"classes":[]}`), 0o644))
	_, _, err = Load(empty)
	assert.ErrorIs(t, err, ErrIncompatible)

	_, _, err = Load(filepath.Join(dir, "missing.json"))
	assert.Error(t, err)

	a, _ := testArtifact(t)
	a.Layers = []nn.LayerSpec{{Type: nn.TypeDense, Name: "out", In: 0, Out: 0}}
	hollow := filepath.Join(dir, "hollow.json")
	require.NoError(t, SaveFull(hollow, a))
	loaded, _, err := Load(hollow)
	require.NoError(t, err)
	_, err = loaded.Network(nil)
	assert.ErrorIs(t, err, ErrIncompatible)
}

func TestNetworkChecksClassCount(t *testing.T) {
	a, _ := testArtifact(t)
	a.Classes = a.Classes[:2]
	_, err := a.Network(nil)
	assert.ErrorIs(t, err, ErrIncompatible)
}

func TestQuantize(t *testing.T) {
	w := []float64{-1.27, 0, 0.5, 1.27}
	scale, q := Quantize(w)
	assert.InDelta(t, 0.01, scale, 1e-12)
	assert.Equal(t, []int8{-127, 0, 50, 127}, q)

	back := Dequantize(scale, q)
	for i := range w {
		assert.InDelta(t, w[i], back[i], scale/2+1e-12)
	}

	scale, q = Quantize([]float64{0, 0})
	assert.Equal(t, 0.0, scale)
	assert.Equal(t, []float64{0, 0}, Dequantize(scale, q))

	// Error bound holds for arbitrary values.
	rng := rand.New(rand.NewSource(8))
	vals := make([]float64, 100)
	for i := range vals {
		vals[i] = rng.NormFloat64()
	}
	scale, q = Quantize(vals)
	for i, v := range Dequantize(scale, q) {
		assert.LessOrEqual(t, math.Abs(v-vals[i]), scale/2+1e-12)
	}
}

func TestPhasePath(t *testing.T) {
	assert.Equal(t, "coral_model_finetuned.json", PhasePath("coral_model.json", FineTunedSuffix))
	assert.Equal(t, filepath.Join("out", "m_finetuned.lite"), PhasePath(filepath.Join("out", "m.lite"), FineTunedSuffix))
	assert.Equal(t, "model_finetuned", PhasePath("model", FineTunedSuffix))
}

func TestClassIndex(t *testing.T) {
	a, _ := testArtifact(t)
	assert.Equal(t, 1, a.ClassIndex("Dead"))
	assert.Equal(t, -1, a.ClassIndex("Bleached_Severe"))
}
