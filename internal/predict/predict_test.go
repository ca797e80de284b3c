package predict

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"image/png"
	"math/rand"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"reefscan/internal/backbone"
	"reefscan/internal/model"
	"reefscan/internal/nn"
)

var testClasses = []string{"Bleached_Mild", "Bleached_Moderate", "Bleached_Severe", "Dead", "Healthy"}

// liteModel writes a lite artifact over an untrained HSV network.
func liteModel(t *testing.T) string {
	t.Helper()
	rng := rand.New(rand.NewSource(21))
	ext := backbone.NewHSV(8)
	x := mat.NewDense(10, ext.Dim(), nil)
	for i := 0; i < 10; i++ {
		for j := 0; j < ext.Dim(); j++ {
			x.Set(i, j, rng.Float64())
		}
	}
	net, err := nn.NewNetwork(
		nn.NewNormalize("standardize", x),
		nn.NewDense("projection", nn.BlockBackbone, ext.Dim(), 6, nn.Linear, rng),
		nn.NewDense("dense_1", nn.BlockHead, 6, 8, nn.ReLU, rng),
		nn.NewDropout("dropout_1", 0.3, rng),
		nn.NewDense("predictions", nn.BlockHead, 8, len(testClasses), nn.Softmax, rng),
	)
	require.NoError(t, err)

	spec := backbone.Spec{Kind: backbone.KindHSV, Bins: 8, InputSize: 32}
	path := filepath.Join(t.TempDir(), "coral_model.lite")
	_, err = model.SaveLite(path, model.New(testClasses, spec, net, model.PhaseFineTuned, nil))
	require.NoError(t, err)
	return path
}

func solidPNG(t *testing.T, dir string, c color.RGBA) string {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 64, 48))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i], img.Pix[i+1], img.Pix[i+2], img.Pix[i+3] = c.R, c.G, c.B, c.A
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	path := filepath.Join(dir, "solid.png")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))
	return path
}

func TestSolidColourInferenceIsDeterministic(t *testing.T) {
	modelPath := liteModel(t)
	img := solidPNG(t, t.TempDir(), color.RGBA{R: 230, G: 230, B: 225, A: 255})

	var first Prediction
	for run := 0; run < 3; run++ {
		p, err := Load(modelPath, Options{}, nil)
		require.NoError(t, err)

		pred, err := p.PredictFile(img)
		require.NoError(t, err)
		require.NoError(t, p.Close())

		assert.Len(t, pred.Scores, len(testClasses))
		assert.Equal(t, testClasses[pred.Index], pred.Label)
		assert.InDelta(t, 100*pred.Scores[pred.Index], pred.Confidence, 1e-9)
		if run == 0 {
			first = pred
			continue
		}
		assert.Equal(t, first.Label, pred.Label)
		assert.Equal(t, first.Confidence, pred.Confidence)
		assert.Equal(t, first.Scores, pred.Scores)
	}

	var sum float64
	for _, s := range first.Scores {
		sum += s
	}
	assert.InDelta(t, 1.0, sum, 1e-9)
}

func TestPredictEntryPointsAgree(t *testing.T) {
	p, err := Load(liteModel(t), Options{}, nil)
	require.NoError(t, err)
	defer p.Close()

	path := solidPNG(t, t.TempDir(), color.RGBA{R: 40, G: 140, B: 90, A: 255})
	data, err := os.ReadFile(path)
	require.NoError(t, err)

	fromFile, err := p.PredictFile(path)
	require.NoError(t, err)
	fromBytes, err := p.PredictBytes(data)
	require.NoError(t, err)
	img, err := png.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	fromImage, err := p.PredictImage(img)
	require.NoError(t, err)

	assert.Equal(t, path, fromFile.Path)
	assert.Equal(t, fromFile.Scores, fromBytes.Scores)
	assert.Equal(t, fromFile.Scores, fromImage.Scores)

	batch, err := p.PredictFiles([]string{path, path})
	require.NoError(t, err)
	assert.Len(t, batch, 2)

	_, err = p.PredictFiles([]string{path, filepath.Join(t.TempDir(), "missing.jpg")})
	assert.Error(t, err)
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.lite"), Options{}, nil)
	assert.Error(t, err)

	a, _, err := model.Load(liteModel(t))
	require.NoError(t, err)
	a.Backbone.Bins = 4
	_, err = New(a, model.FormatLite, Options{}, nil)
	assert.ErrorIs(t, err, model.ErrIncompatible)
}

func TestRoundScores(t *testing.T) {
	assert.Equal(t, []float64{0.1235, 0.8765}, RoundScores([]float64{0.123456, 0.876544}, 4))
}

func TestRelocate(t *testing.T) {
	spec := backbone.Spec{Kind: backbone.KindDNN, ModelPath: "/train/box/mobilenet.onnx"}
	got := relocate(spec, "/srv/models")
	assert.Equal(t, filepath.Join("/srv/models", "mobilenet.onnx"), got.ModelPath)
	assert.Empty(t, got.ConfigPath)
	assert.Equal(t, spec.Name(), got.Name())
}

// stubClassifier counts calls to the underlying model.
type stubClassifier struct {
	calls int
	pred  Prediction
	err   error
}

func (s *stubClassifier) ModelID() string   { return "m1" }
func (s *stubClassifier) Classes() []string { return []string{"Dead", "Healthy"} }
func (s *stubClassifier) PredictBytes(data []byte) (Prediction, error) {
	s.calls++
	return s.pred, s.err
}

func keyFor(data []byte) string {
	sum := sha256.Sum256(data)
	return "reefscan:pred:m1:" + hex.EncodeToString(sum[:])
}

func TestCachingClassifierDefaults(t *testing.T) {
	c := NewCachingClassifier(nil, 0, &stubClassifier{}, "")
	assert.Equal(t, 24*time.Hour, c.ttl)
	assert.Equal(t, "reefscan", c.namespace)
	assert.Equal(t, []string{"Dead", "Healthy"}, c.Classes())
}

func TestCachingClassifierBypassWithoutRedis(t *testing.T) {
	stub := &stubClassifier{pred: Prediction{Label: "Dead"}}
	c := NewCachingClassifier(nil, time.Minute, stub, "")
	for i := 0; i < 2; i++ {
		got, err := c.Classify(context.Background(), []byte("img"))
		require.NoError(t, err)
		assert.Equal(t, "Dead", got.Label)
	}
	assert.Equal(t, 2, stub.calls)
}

func TestCachingClassifierHit(t *testing.T) {
	db, mock := redismock.NewClientMock()
	data := []byte("img")
	cached := Prediction{Label: "Healthy", Index: 1, Confidence: 91, Scores: []float64{0.09, 0.91}}
	b, _ := json.Marshal(cached)
	mock.ExpectGet(keyFor(data)).SetVal(string(b))

	stub := &stubClassifier{}
	got, err := NewCachingClassifier(db, time.Hour, stub, "").Classify(context.Background(), data)
	require.NoError(t, err)
	assert.Equal(t, cached, got)
	assert.Equal(t, 0, stub.calls)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCachingClassifierMissStores(t *testing.T) {
	db, mock := redismock.NewClientMock()
	data := []byte("img")
	pred := Prediction{Label: "Dead", Scores: []float64{1, 0}}
	b, _ := json.Marshal(pred)
	mock.ExpectGet(keyFor(data)).RedisNil()
	mock.ExpectSet(keyFor(data), b, time.Hour).SetVal("OK")

	stub := &stubClassifier{pred: pred}
	got, err := NewCachingClassifier(db, time.Hour, stub, "").Classify(context.Background(), data)
	require.NoError(t, err)
	assert.Equal(t, pred, got)
	assert.Equal(t, 1, stub.calls)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCachingClassifierCorruptEntry(t *testing.T) {
	db, mock := redismock.NewClientMock()
	data := []byte("img")
	pred := Prediction{Label: "Dead"}
	b, _ := json.Marshal(pred)
	mock.ExpectGet(keyFor(data)).SetVal("{not json")
	mock.ExpectDel(keyFor(data)).SetVal(1)
	mock.ExpectSet(keyFor(data), b, time.Hour).SetVal("OK")

	got, err := NewCachingClassifier(db, time.Hour, &stubClassifier{pred: pred}, "").Classify(context.Background(), data)
	require.NoError(t, err)
	assert.Equal(t, "Dead", got.Label)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCachingClassifierModelError(t *testing.T) {
	db, mock := redismock.NewClientMock()
	data := []byte("img")
	mock.ExpectGet(keyFor(data)).RedisNil()

	boom := errors.New("decode failed")
	_, err := NewCachingClassifier(db, time.Hour, &stubClassifier{err: boom}, "").Classify(context.Background(), data)
	assert.ErrorIs(t, err, boom)
	assert.NoError(t, mock.ExpectationsWereMet())
}
