package eval

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// Store persists finished sweeps to sqlite: one row per run with its
// config JSON, one row per noise level with the aggregated metrics.
type Store struct {
	db *sql.DB
}

// OpenStore opens (and if needed bootstraps) a results database at path.
func OpenStore(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open results db: %w", err)
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS eval_runs (
			run_id      TEXT PRIMARY KEY,
			config_json TEXT NOT NULL,
			created_at  INTEGER NOT NULL
		);
		CREATE TABLE IF NOT EXISTS eval_rows (
			run_id              TEXT NOT NULL,
			noise_level         DOUBLE NOT NULL,
			calib_rot_mean      DOUBLE,
			calib_rot_std       DOUBLE,
			calib_ang_mean      DOUBLE,
			calib_ang_std       DOUBLE,
			calib_inlier_ratio  DOUBLE,
			calib_time_s        DOUBLE,
			refrac_rot_mean     DOUBLE,
			refrac_rot_std      DOUBLE,
			refrac_pos_mean     DOUBLE,
			refrac_pos_std      DOUBLE,
			refrac_scale_mean   DOUBLE,
			refrac_scale_std    DOUBLE,
			refrac_inlier_ratio DOUBLE,
			refrac_time_s       DOUBLE,
			FOREIGN KEY(run_id) REFERENCES eval_runs(run_id)
		);
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error { return s.db.Close() }

// SaveSweep inserts the run and all of its rows in one transaction.
func (s *Store) SaveSweep(sweep *Sweep) error {
	cfgJSON, err := json.Marshal(sweep.Config)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(`INSERT INTO eval_runs (run_id, config_json, created_at) VALUES (?, ?, ?)`,
		sweep.RunID, string(cfgJSON), sweep.CreatedAt.UnixNano())
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}

	for _, row := range sweep.Rows {
		c, r := row.Calibrated, row.Refractive
		_, err = tx.Exec(`
			INSERT INTO eval_rows (
				run_id, noise_level,
				calib_rot_mean, calib_rot_std, calib_ang_mean, calib_ang_std,
				calib_inlier_ratio, calib_time_s,
				refrac_rot_mean, refrac_rot_std, refrac_pos_mean, refrac_pos_std,
				refrac_scale_mean, refrac_scale_std, refrac_inlier_ratio, refrac_time_s
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			sweep.RunID, row.NoiseLevel,
			c.RotErrMean, c.RotErrStd, c.PoseErrMean, c.PoseErrStd,
			c.InlierRatio, c.TimeSec,
			r.RotErrMean, r.RotErrStd, r.PoseErrMean, r.PoseErrStd,
			r.ScaleErrMean, r.ScaleErrStd, r.InlierRatio, r.TimeSec,
		)
		if err != nil {
			return fmt.Errorf("insert row (noise %g): %w", row.NoiseLevel, err)
		}
	}
	return tx.Commit()
}

// RunSummary is one persisted sweep as listed by ListRuns.
type RunSummary struct {
	RunID     string
	CreatedAt time.Time
	NumRows   int
}

// ListRuns returns all persisted sweeps, newest first.
func (s *Store) ListRuns() ([]RunSummary, error) {
	rows, err := s.db.Query(`
		SELECT r.run_id, r.created_at, COUNT(e.run_id)
		FROM eval_runs r
		LEFT JOIN eval_rows e ON e.run_id = r.run_id
		GROUP BY r.run_id
		ORDER BY r.created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var out []RunSummary
	for rows.Next() {
		var rs RunSummary
		var createdNanos int64
		if err := rows.Scan(&rs.RunID, &createdNanos, &rs.NumRows); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		rs.CreatedAt = time.Unix(0, createdNanos).UTC()
		out = append(out, rs)
	}
	return out, rows.Err()
}

// LoadSweep reads a persisted sweep back, rows ordered by noise level.
func (s *Store) LoadSweep(runID string) (*Sweep, error) {
	var cfgJSON string
	var createdNanos int64
	err := s.db.QueryRow(`SELECT config_json, created_at FROM eval_runs WHERE run_id = ?`, runID).
		Scan(&cfgJSON, &createdNanos)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("run %s not found", runID)
		}
		return nil, fmt.Errorf("query run: %w", err)
	}

	sweep := &Sweep{
		RunID:     runID,
		CreatedAt: time.Unix(0, createdNanos).UTC(),
	}
	if err := json.Unmarshal([]byte(cfgJSON), &sweep.Config); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	rows, err := s.db.Query(`
		SELECT noise_level,
		       calib_rot_mean, calib_rot_std, calib_ang_mean, calib_ang_std,
		       calib_inlier_ratio, calib_time_s,
		       refrac_rot_mean, refrac_rot_std, refrac_pos_mean, refrac_pos_std,
		       refrac_scale_mean, refrac_scale_std, refrac_inlier_ratio, refrac_time_s
		FROM eval_rows
		WHERE run_id = ?
		ORDER BY noise_level ASC`, runID)
	if err != nil {
		return nil, fmt.Errorf("query rows: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var row Row
		c, r := &row.Calibrated, &row.Refractive
		err := rows.Scan(&row.NoiseLevel,
			&c.RotErrMean, &c.RotErrStd, &c.PoseErrMean, &c.PoseErrStd,
			&c.InlierRatio, &c.TimeSec,
			&r.RotErrMean, &r.RotErrStd, &r.PoseErrMean, &r.PoseErrStd,
			&r.ScaleErrMean, &r.ScaleErrStd, &r.InlierRatio, &r.TimeSec,
		)
		if err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		sweep.Rows = append(sweep.Rows, row)
	}
	return sweep, rows.Err()
}
