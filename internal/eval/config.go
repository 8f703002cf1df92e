package eval

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/MDSKiel/colmap-underwater/internal/camera"
)

// CameraConfig describes the shared camera of both views.
type CameraConfig struct {
	Model        string    `json:"model"`
	Params       []float64 `json:"params"`
	Width        int       `json:"width"`
	Height       int       `json:"height"`
	RefracModel  string    `json:"refrac_model,omitempty"`
	RefracParams []float64 `json:"refrac_params,omitempty"`
}

// Build constructs and validates the camera. The value receiver keeps
// chained calls like DefaultConfig().Camera.Build() legal.
func (c CameraConfig) Build() (camera.Camera, error) {
	cam := camera.New()
	cam.Width = c.Width
	cam.Height = c.Height
	if err := cam.SetModelFromName(c.Model); err != nil {
		return camera.Camera{}, err
	}
	if err := cam.SetParams(c.Params); err != nil {
		return camera.Camera{}, err
	}
	if c.RefracModel != "" {
		if err := cam.SetRefracModelFromName(c.RefracModel); err != nil {
			return camera.Camera{}, err
		}
		if err := cam.SetRefracParams(c.RefracParams); err != nil {
			return camera.Camera{}, err
		}
	}
	return cam, nil
}

// Config is the declarative experiment description consumed by the
// Runner. Fields omitted from a JSON file keep the defaults, so partial
// configs are safe.
type Config struct {
	Camera CameraConfig `json:"camera"`

	// NoiseLevels are the inlier pixel noise sigmas swept, one report row
	// each.
	NoiseLevels []float64 `json:"noise_levels"`
	NumPoints   int       `json:"num_points"`
	NumTrials   int       `json:"num_trials"`
	InlierRatio float64   `json:"inlier_ratio"`

	// OutlierStdDev is the pixel sigma applied to non-inlier points so
	// they behave as mismatches.
	OutlierStdDev float64 `json:"outlier_stddev"`

	// Depth range sampled along the view-1 ray, meters.
	DepthMin float64 `json:"depth_min"`
	DepthMax float64 `json:"depth_max"`

	// Ground-truth pose sampling ranges: per-axis rotation in degrees,
	// forward translation and lateral translation bounds in meters.
	MaxRotationDeg   float64 `json:"max_rotation_deg"`
	MaxTranslationX  float64 `json:"max_translation_x"`
	MaxTranslationYZ float64 `json:"max_translation_yz"`

	// MaxErrorPx is the RANSAC inlier threshold for both estimators.
	MaxErrorPx float64 `json:"max_error_px"`

	Seed int64 `json:"seed"`
}

// DefaultConfig returns the canonical sweep: the flat-port scenario with
// the standard noise ladder.
func DefaultConfig() Config {
	return Config{
		Camera: CameraConfig{
			Model:       "PINHOLE",
			Params:      []float64{340.514, 340.514, 556.5, 417.5},
			Width:       1113,
			Height:      835,
			RefracModel: "FLATPORT",
			RefracParams: []float64{
				0.02998052, -0.01998701, 0.99935064, 0.05, 0.02, 1.0, 1.52, 1.334,
			},
		},
		NoiseLevels:      []float64{0, 0.2, 0.5, 0.8, 1.2, 1.5, 1.8, 2.0},
		NumPoints:        2000,
		NumTrials:        10,
		InlierRatio:      1.0,
		OutlierStdDev:    200.0,
		DepthMin:         0.5,
		DepthMax:         10.0,
		MaxRotationDeg:   15.0,
		MaxTranslationX:  1.0,
		MaxTranslationYZ: 0.2,
		MaxErrorPx:       4.0,
		Seed:             1,
	}
}

// LoadConfig reads a JSON experiment file over the defaults. The file is
// validated to have a .json extension and to stay under the max size.
func LoadConfig(path string) (Config, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return Config{}, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	info, err := os.Stat(cleanPath)
	if err != nil {
		return Config{}, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024
	if info.Size() > maxFileSize {
		return Config{}, fmt.Errorf("config file too large: %d bytes (max %d)", info.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := json.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config JSON: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks the sweep parameters and the camera block.
func (c *Config) Validate() error {
	if _, err := c.Camera.Build(); err != nil {
		return fmt.Errorf("camera: %w", err)
	}
	if len(c.NoiseLevels) == 0 {
		return fmt.Errorf("noise_levels must not be empty")
	}
	for _, n := range c.NoiseLevels {
		if n < 0 {
			return fmt.Errorf("noise level must be non-negative, got %g", n)
		}
	}
	if c.NumPoints < 8 {
		return fmt.Errorf("num_points must be at least 8, got %d", c.NumPoints)
	}
	if c.NumTrials <= 0 {
		return fmt.Errorf("num_trials must be positive, got %d", c.NumTrials)
	}
	if c.InlierRatio <= 0 || c.InlierRatio > 1 {
		return fmt.Errorf("inlier_ratio must be in (0, 1], got %g", c.InlierRatio)
	}
	if c.OutlierStdDev < 0 {
		return fmt.Errorf("outlier_stddev must be non-negative, got %g", c.OutlierStdDev)
	}
	if c.DepthMin <= 0 || c.DepthMax < c.DepthMin {
		return fmt.Errorf("invalid depth range [%g, %g]", c.DepthMin, c.DepthMax)
	}
	if c.MaxErrorPx <= 0 {
		return fmt.Errorf("max_error_px must be positive, got %g", c.MaxErrorPx)
	}
	return nil
}
