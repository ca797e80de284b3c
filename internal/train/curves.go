package train

import (
	"fmt"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"

	"reefscan/internal/nn"
)

// SaveCurves renders loss and accuracy per epoch to a PNG.
func SaveCurves(path string, hist nn.History, phase string) error {
	if len(hist.Epochs) == 0 {
		return fmt.Errorf("no epochs to plot")
	}

	series := map[string]plotter.XYs{}
	names := []string{"loss", "val_loss", "accuracy", "val_accuracy"}
	for _, n := range names {
		series[n] = make(plotter.XYs, len(hist.Epochs))
	}
	for i, e := range hist.Epochs {
		x := float64(e.Epoch)
		series["loss"][i] = plotter.XY{X: x, Y: e.Loss}
		series["val_loss"][i] = plotter.XY{X: x, Y: e.ValLoss}
		series["accuracy"][i] = plotter.XY{X: x, Y: e.Accuracy}
		series["val_accuracy"][i] = plotter.XY{X: x, Y: e.ValAccuracy}
	}

	p := plot.New()
	p.Title.Text = fmt.Sprintf("Training curves (%s)", phase)
	p.X.Label.Text = "Epoch"
	p.Y.Label.Text = "Value"
	p.Legend.Top = true

	var lines []interface{}
	for _, n := range names {
		lines = append(lines, n, series[n])
	}
	if err := plotutil.AddLinePoints(p, lines...); err != nil {
		return fmt.Errorf("failed to build curves: %w", err)
	}

	if hist.BestEpoch > 0 {
		best, err := plotter.NewLine(plotter.XYs{
			{X: float64(hist.BestEpoch), Y: 0},
			{X: float64(hist.BestEpoch), Y: p.Y.Max},
		})
		if err != nil {
			return err
		}
		best.Dashes = []vg.Length{vg.Points(4), vg.Points(2)}
		p.Add(best)
		p.Legend.Add("best", best)
	}

	if err := p.Save(8*vg.Inch, 5*vg.Inch, path); err != nil {
		return fmt.Errorf("failed to save curves: %w", err)
	}
	return nil
}
