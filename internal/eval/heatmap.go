package eval

import (
	"fmt"
	"image/color"
	"math"
	"strconv"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/palette"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"

	"reefscan/pkg/colorutil"
)

// matrixGrid adapts a confusion matrix to plotter.GridXYZ. Column c is the
// predicted class; row r counts up from the bottom, so true class 0 is the
// top row.
type matrixGrid struct {
	cm [][]int
}

func (g matrixGrid) Dims() (c, r int) { return len(g.cm), len(g.cm) }

func (g matrixGrid) Z(c, r int) float64 { return float64(g.cm[len(g.cm)-1-r][c]) }

func (g matrixGrid) X(c int) float64 { return float64(c) }

func (g matrixGrid) Y(r int) float64 { return float64(r) }

// HeatmapPlot builds the annotated confusion-matrix heatmap.
func HeatmapPlot(classes []string, cm [][]int) (*plot.Plot, error) {
	n := len(classes)
	if n == 0 || len(cm) != n {
		return nil, fmt.Errorf("confusion matrix does not match %d classes", n)
	}

	p := plot.New()
	p.Title.Text = "Confusion Matrix"
	p.X.Label.Text = "Predicted"
	p.Y.Label.Text = "True"

	pal := palette.Reverse(palette.Heat(12, 1))
	hm := plotter.NewHeatMap(matrixGrid{cm: cm}, pal)
	if hm.Max == hm.Min {
		hm.Max = hm.Min + 1
	}
	p.Add(hm)
	colors := pal.Colors()

	var cells plotter.XYLabels
	for r := 0; r < n; r++ {
		for c := 0; c < n; c++ {
			cells.XYs = append(cells.XYs, plotter.XY{X: float64(c), Y: float64(n - 1 - r)})
			cells.Labels = append(cells.Labels, strconv.Itoa(cm[r][c]))
		}
	}
	labels, err := plotter.NewLabels(cells)
	if err != nil {
		return nil, fmt.Errorf("failed to label cells: %w", err)
	}
	for i := range labels.TextStyle {
		labels.TextStyle[i].XAlign = draw.XCenter
		labels.TextStyle[i].YAlign = draw.YCenter
		labels.TextStyle[i].Color = labelColor(colors, (float64(cm[i/n][i%n])-hm.Min)/(hm.Max-hm.Min))
	}
	p.Add(labels)

	reversed := make([]string, n)
	for i, c := range classes {
		reversed[n-1-i] = c
	}
	p.NominalX(classes...)
	p.NominalY(reversed...)
	p.X.Tick.Label.Rotation = 0.5
	p.X.Tick.Label.XAlign = draw.XRight
	return p, nil
}

// labelColor picks ink or paper for a count drawn on the palette colour at
// fraction f of the value range.
func labelColor(colors []color.Color, f float64) color.Color {
	i := int(math.Round(f * float64(len(colors)-1)))
	if i < 0 {
		i = 0
	}
	if i >= len(colors) {
		i = len(colors) - 1
	}
	r, g, b, _ := colors[i].RGBA()
	if colorutil.Luminance(float64(r>>8), float64(g>>8), float64(b>>8)) < 128 {
		return colorutil.Paper
	}
	return colorutil.Ink
}

// SaveHeatmap writes the heatmap as an image; the format follows the
// extension of path.
func SaveHeatmap(path string, classes []string, cm [][]int) error {
	p, err := HeatmapPlot(classes, cm)
	if err != nil {
		return err
	}
	size := vg.Length(2+len(classes)) * vg.Inch
	if err := p.Save(size, size, path); err != nil {
		return fmt.Errorf("failed to save heatmap: %w", err)
	}
	return nil
}
