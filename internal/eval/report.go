package eval

import (
	"bufio"
	"fmt"
	"io"
	"os"
)

// WriteReport emits the sweep as a whitespace-separated table with a
// commented header line: one row per noise level, calibrated columns
// first, refractive columns second.
func WriteReport(w io.Writer, sweep *Sweep) error {
	bw := bufio.NewWriter(w)

	_, err := fmt.Fprintln(bw, "# noise"+
		" calib_rot_mean calib_rot_std calib_ang_mean calib_ang_std calib_inlier_ratio calib_time_s"+
		" refrac_rot_mean refrac_rot_std refrac_pos_mean refrac_pos_std refrac_scale_mean refrac_scale_std refrac_inlier_ratio refrac_time_s")
	if err != nil {
		return err
	}

	for _, row := range sweep.Rows {
		c, r := row.Calibrated, row.Refractive
		_, err := fmt.Fprintf(bw,
			"%.2f %.6f %.6f %.6f %.6f %.4f %.3f %.6f %.6f %.6f %.6f %.6f %.6f %.4f %.3f\n",
			row.NoiseLevel,
			c.RotErrMean, c.RotErrStd, c.PoseErrMean, c.PoseErrStd, c.InlierRatio, c.TimeSec,
			r.RotErrMean, r.RotErrStd, r.PoseErrMean, r.PoseErrStd, r.ScaleErrMean, r.ScaleErrStd, r.InlierRatio, r.TimeSec,
		)
		if err != nil {
			return err
		}
	}
	return bw.Flush()
}

// WriteReportFile writes the report table to a file path.
func WriteReportFile(path string, sweep *Sweep) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create report file: %w", err)
	}
	defer f.Close()

	if err := WriteReport(f, sweep); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	return f.Close()
}
