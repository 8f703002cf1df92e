package eval

import (
	"fmt"
	"image/color"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

// WritePlot renders the sweep as a PNG: mean rotation error of both
// modes plus the refractive position error over the noise ladder.
func WritePlot(path string, sweep *Sweep) error {
	if len(sweep.Rows) == 0 {
		return fmt.Errorf("sweep has no rows to plot")
	}

	p := plot.New()
	p.Title.Text = "Relative pose error vs pixel noise"
	p.X.Label.Text = "Noise sigma (px)"
	p.Y.Label.Text = "Error"

	calibRot := make(plotter.XYs, len(sweep.Rows))
	refracRot := make(plotter.XYs, len(sweep.Rows))
	refracPos := make(plotter.XYs, len(sweep.Rows))
	for i, row := range sweep.Rows {
		calibRot[i] = plotter.XY{X: row.NoiseLevel, Y: row.Calibrated.RotErrMean}
		refracRot[i] = plotter.XY{X: row.NoiseLevel, Y: row.Refractive.RotErrMean}
		refracPos[i] = plotter.XY{X: row.NoiseLevel, Y: row.Refractive.PoseErrMean}
	}

	lines := []struct {
		name string
		pts  plotter.XYs
		col  color.RGBA
	}{
		{"calibrated rotation (deg)", calibRot, color.RGBA{R: 220, G: 60, B: 60, A: 255}},
		{"refractive rotation (deg)", refracRot, color.RGBA{R: 60, G: 120, B: 220, A: 255}},
		{"refractive position (m)", refracPos, color.RGBA{R: 60, G: 170, B: 90, A: 255}},
	}
	for _, l := range lines {
		line, err := plotter.NewLine(l.pts)
		if err != nil {
			return fmt.Errorf("line %q: %w", l.name, err)
		}
		line.Color = l.col
		line.Width = vg.Points(1)
		p.Add(line)
		p.Legend.Add(l.name, line)
	}
	p.Legend.Top = true

	if err := p.Save(10*vg.Inch, 6*vg.Inch, path); err != nil {
		return fmt.Errorf("save plot: %w", err)
	}
	return nil
}
