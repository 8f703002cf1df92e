package eval

import (
	"fmt"
	"os"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
)

// WriteChart renders the sweep as a self-contained HTML line chart for
// quick browser inspection: rotation error of both modes and the
// refractive position error over the noise ladder.
func WriteChart(path string, sweep *Sweep) error {
	if len(sweep.Rows) == 0 {
		return fmt.Errorf("sweep has no rows to chart")
	}

	x := make([]string, len(sweep.Rows))
	calibRot := make([]opts.LineData, len(sweep.Rows))
	refracRot := make([]opts.LineData, len(sweep.Rows))
	refracPos := make([]opts.LineData, len(sweep.Rows))
	for i, row := range sweep.Rows {
		x[i] = fmt.Sprintf("%.2f", row.NoiseLevel)
		calibRot[i] = opts.LineData{Value: row.Calibrated.RotErrMean}
		refracRot[i] = opts.LineData{Value: row.Refractive.RotErrMean}
		refracPos[i] = opts.LineData{Value: row.Refractive.PoseErrMean}
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{
			Title:    "Relative pose error vs pixel noise",
			Subtitle: fmt.Sprintf("run=%s trials=%d points=%d", sweep.RunID, sweep.Config.NumTrials, sweep.Config.NumPoints),
		}),
		charts.WithXAxisOpts(opts.XAxis{Name: "noise sigma (px)", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Name: "error", NameLocation: "middle", NameGap: 30}),
	)
	line.SetXAxis(x).
		AddSeries("calibrated rotation (deg)", calibRot).
		AddSeries("refractive rotation (deg)", refracRot).
		AddSeries("refractive position (m)", refracPos)

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create chart file: %w", err)
	}
	defer f.Close()

	if err := line.Render(f); err != nil {
		return fmt.Errorf("render chart: %w", err)
	}
	return f.Close()
}
