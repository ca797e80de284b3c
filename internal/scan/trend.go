package scan

import (
	"fmt"
	"image/color"
	"io"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"

	"reefscan/pkg/colorutil"
)

// TrendPlot charts the final stress index of a site's scans over time.
func TrendPlot(site string, scans []Scan) (*plot.Plot, error) {
	if len(scans) == 0 {
		return nil, fmt.Errorf("no scans to plot for %q", site)
	}

	pts := make(plotter.XYs, len(scans))
	for i, sc := range scans {
		pts[i].X = float64(sc.CreatedAt.Unix())
		pts[i].Y = sc.FinalStressIndex
	}

	p := plot.New()
	p.Title.Text = "Coral stress trend: " + site
	p.X.Label.Text = "Scan time"
	p.Y.Label.Text = "Final stress index"
	p.X.Tick.Marker = plot.TimeTicks{Format: "2006-01-02\n15:04"}
	p.Y.Min, p.Y.Max = 0, 1
	p.Add(plotter.NewGrid())

	line, points, err := plotter.NewLinePoints(pts)
	if err != nil {
		return nil, err
	}
	line.Color = color.RGBA{R: 0, G: 119, B: 182, A: 255}
	points.GlyphStyleFunc = func(i int) draw.GlyphStyle {
		return draw.GlyphStyle{
			Shape:  draw.CircleGlyph{},
			Radius: vg.Points(4),
			Color:  colorutil.Blend(colorutil.Healthy, colorutil.Dead, pts[i].Y),
		}
	}
	p.Add(line, points)

	// One scan gives a zero-width axis.
	if p.X.Min == p.X.Max {
		p.X.Min -= 3600
		p.X.Max += 3600
	}
	return p, nil
}

// WriteTrend renders the trend chart of a site as PNG.
func WriteTrend(w io.Writer, site string, scans []Scan) error {
	p, err := TrendPlot(site, scans)
	if err != nil {
		return err
	}
	wt, err := p.WriterTo(8*vg.Inch, 4*vg.Inch, "png")
	if err != nil {
		return fmt.Errorf("failed to render trend: %w", err)
	}
	_, err = wt.WriteTo(w)
	return err
}
