package backbone

import (
	"fmt"
	"image"
	"sync"

	"gocv.io/x/gocv"

	reefimage "reefscan/internal/image"
)

// DNNExtractor runs a pretrained network through OpenCV's DNN module. The
// network is not safe for concurrent use, so Extract is serialised.
type DNNExtractor struct {
	spec Spec
	id   string
	net  gocv.Net
	dim  int
	mu   sync.Mutex
}

// NewDNN loads the network named by spec and probes it once with a blank
// image to learn the embedding size.
func NewDNN(spec Spec) (*DNNExtractor, error) {
	if spec.ModelPath == "" {
		return nil, fmt.Errorf("dnn backbone requires a model path")
	}
	if spec.InputSize <= 0 {
		return nil, fmt.Errorf("dnn backbone requires a positive input size")
	}
	if spec.Scale == 0 {
		spec.Scale = 1.0 / 255.0
	}
	id, err := spec.Fingerprint()
	if err != nil {
		return nil, err
	}

	net := gocv.ReadNet(spec.ModelPath, spec.ConfigPath)
	if net.Empty() {
		return nil, fmt.Errorf("failed to load network %s", spec.ModelPath)
	}
	net.SetPreferableBackend(gocv.NetBackendDefault)
	net.SetPreferableTarget(gocv.NetTargetCPU)

	e := &DNNExtractor{spec: spec, id: id, net: net}

	probe := image.NewRGBA(image.Rect(0, 0, spec.InputSize, spec.InputSize))
	emb, err := e.Extract(probe)
	if err != nil {
		net.Close()
		return nil, fmt.Errorf("failed to probe network: %w", err)
	}
	e.dim = len(emb)
	return e, nil
}

func (e *DNNExtractor) Name() string { return e.spec.Name() }

func (e *DNNExtractor) Identity() string { return e.id }

func (e *DNNExtractor) Dim() int { return e.dim }

// Extract forwards img and global-average-pools a spatial output.
func (e *DNNExtractor) Extract(img *image.RGBA) ([]float64, error) {
	mat, err := reefimage.ToMat(img)
	if err != nil {
		return nil, err
	}
	defer mat.Close()

	size := image.Pt(e.spec.InputSize, e.spec.InputSize)
	mean := gocv.NewScalar(e.spec.Mean[0], e.spec.Mean[1], e.spec.Mean[2], 0)
	blob := gocv.BlobFromImage(mat, e.spec.Scale, size, mean, e.spec.SwapRB, false)
	defer blob.Close()

	e.mu.Lock()
	defer e.mu.Unlock()

	e.net.SetInput(blob, "")
	out := e.net.Forward(e.spec.OutputLayer)
	defer out.Close()
	if out.Empty() {
		return nil, fmt.Errorf("network produced no output")
	}

	data, err := out.DataPtrFloat32()
	if err != nil {
		return nil, fmt.Errorf("failed to read network output: %w", err)
	}
	return pool(data, out.Size()), nil
}

// pool reduces an NCHW output to one value per channel. Flat outputs are
// copied through.
func pool(data []float32, dims []int) []float64 {
	if len(dims) == 4 {
		channels, spatial := dims[1], dims[2]*dims[3]
		out := make([]float64, channels)
		for c := 0; c < channels; c++ {
			var sum float64
			for _, v := range data[c*spatial : (c+1)*spatial] {
				sum += float64(v)
			}
			out[c] = sum / float64(spatial)
		}
		return out
	}

	out := make([]float64, len(data))
	for i, v := range data {
		out[i] = float64(v)
	}
	return out
}

func (e *DNNExtractor) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.net.Close()
}
