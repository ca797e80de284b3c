// Package confusion provides a desktop window for inspecting evaluation
// results: the confusion-matrix heatmap, the raw counts and the report.
package confusion

import (
	"fmt"
	"image"
	"strconv"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/app"
	"fyne.io/fyne/v2/canvas"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/widget"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
	"gonum.org/v1/plot/vg/vgimg"

	"reefscan/internal/eval"
)

// RenderHeatmap draws the heatmap into an in-memory image.
func RenderHeatmap(classes []string, cm [][]int, size vg.Length) (image.Image, error) {
	p, err := eval.HeatmapPlot(classes, cm)
	if err != nil {
		return nil, err
	}
	c := vgimg.New(size, size)
	p.Draw(draw.New(c))
	return c.Image(), nil
}

// NewView builds the tabbed content of the viewer window.
func NewView(res *eval.Result) (fyne.CanvasObject, error) {
	img, err := RenderHeatmap(res.Classes, res.Confusion, vg.Length(2+len(res.Classes))*vg.Inch)
	if err != nil {
		return nil, err
	}

	heat := canvas.NewImageFromImage(img)
	heat.FillMode = canvas.ImageFillContain
	heat.SetMinSize(fyne.NewSize(480, 480))

	report := widget.NewLabel(res.Report.String())
	report.TextStyle = fyne.TextStyle{Monospace: true}

	return container.NewAppTabs(
		container.NewTabItem("Heatmap", heat),
		container.NewTabItem("Counts", newCountsTable(res.Classes, res.Confusion)),
		container.NewTabItem("Report", container.NewScroll(report)),
	), nil
}

// newCountsTable shows the matrix with a header row and column: row 0 holds
// predicted class names and column 0 true names.
func newCountsTable(classes []string, cm [][]int) *widget.Table {
	n := len(classes)
	table := widget.NewTable(
		func() (int, int) { return n + 1, n + 1 },
		func() fyne.CanvasObject { return widget.NewLabel("Bleached_Moderate") },
		func(id widget.TableCellID, obj fyne.CanvasObject) {
			obj.(*widget.Label).SetText(countsCell(classes, cm, id.Row, id.Col))
		},
	)
	for col := 1; col <= n; col++ {
		table.SetColumnWidth(col, 90)
	}
	return table
}

func countsCell(classes []string, cm [][]int, row, col int) string {
	switch {
	case row == 0 && col == 0:
		return "true \\ pred"
	case row == 0:
		return classes[col-1]
	case col == 0:
		return classes[row-1]
	default:
		return strconv.Itoa(cm[row-1][col-1])
	}
}

// Show opens the viewer and blocks until the window is closed.
func Show(title string, res *eval.Result) error {
	view, err := NewView(res)
	if err != nil {
		return fmt.Errorf("failed to build viewer: %w", err)
	}

	a := app.New()
	a.Settings().SetTheme(&reefTheme{})
	win := a.NewWindow(title)
	win.SetContent(view)
	win.Resize(fyne.NewSize(760, 760))
	win.ShowAndRun()
	return nil
}
