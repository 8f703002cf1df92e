// Package camera models image formation through an intrinsic projection
// model and an optional refractive interface (flat or dome port). Cameras
// are configured once, validated at assignment time, and treated as
// read-only during estimation. Per-pixel virtual pinhole cameras let
// single-center two-view solvers operate on refractive imagery.
package camera

import (
	"fmt"
	"math"

	"github.com/MDSKiel/colmap-underwater/internal/geom"
)

// ModelID identifies an intrinsic projection model. The set of models is
// closed; dispatch is by tag rather than by interface so that parameter
// shapes stay checkable at assignment time.
type ModelID int

// Intrinsic model variants.
const (
	ModelSimplePinhole ModelID = iota // f, cx, cy
	ModelPinhole                      // fx, fy, cx, cy
	ModelSimpleRadial                 // f, cx, cy, k
)

// ModelInvalid marks a camera without a selected intrinsic model.
const ModelInvalid ModelID = -1

// undistortMaxIter bounds the fixed-point iteration inverting radial
// distortion.
const undistortMaxIter = 100

type modelSpec struct {
	name            string
	numParams       int
	focalIdxs       []int
	principalIdxs   []int
	extraParamsIdxs []int
}

var modelSpecs = map[ModelID]modelSpec{
	ModelSimplePinhole: {
		name:          "SIMPLE_PINHOLE",
		numParams:     3,
		focalIdxs:     []int{0},
		principalIdxs: []int{1, 2},
	},
	ModelPinhole: {
		name:          "PINHOLE",
		numParams:     4,
		focalIdxs:     []int{0, 1},
		principalIdxs: []int{2, 3},
	},
	ModelSimpleRadial: {
		name:            "SIMPLE_RADIAL",
		numParams:       4,
		focalIdxs:       []int{0},
		principalIdxs:   []int{1, 2},
		extraParamsIdxs: []int{3},
	},
}

// ModelIDFromName resolves an intrinsic model name. Unknown names are a
// configuration error.
func ModelIDFromName(name string) (ModelID, error) {
	for id, spec := range modelSpecs {
		if spec.name == name {
			return id, nil
		}
	}
	return ModelInvalid, fmt.Errorf("unknown camera model name %q", name)
}

// ModelName returns the canonical name of an intrinsic model, or "" for an
// unselected model.
func ModelName(id ModelID) string {
	return modelSpecs[id].name
}

// ModelNumParams returns the canonical parameter count of an intrinsic
// model.
func ModelNumParams(id ModelID) int {
	return modelSpecs[id].numParams
}

// verifyModelParams checks vector length and basic value ranges for an
// intrinsic model.
func verifyModelParams(id ModelID, params []float64) bool {
	spec, ok := modelSpecs[id]
	if !ok || len(params) != spec.numParams {
		return false
	}
	for _, idx := range spec.focalIdxs {
		if params[idx] <= 0 || math.IsNaN(params[idx]) {
			return false
		}
	}
	return true
}

// initializeModelParams returns the default parameter vector for a model:
// the given focal length and a centered principal point, zero extra
// parameters.
func initializeModelParams(id ModelID, focalLength float64, width, height int) []float64 {
	cx := float64(width) / 2
	cy := float64(height) / 2
	switch id {
	case ModelSimplePinhole:
		return []float64{focalLength, cx, cy}
	case ModelPinhole:
		return []float64{focalLength, focalLength, cx, cy}
	case ModelSimpleRadial:
		return []float64{focalLength, cx, cy, 0}
	}
	return nil
}

// modelImgFromCam projects a normalized camera-plane point to a pixel.
func modelImgFromCam(id ModelID, params []float64, p geom.Point2) geom.Point2 {
	switch id {
	case ModelSimplePinhole:
		f, cx, cy := params[0], params[1], params[2]
		return geom.Point2{X: f*p.X + cx, Y: f*p.Y + cy}
	case ModelPinhole:
		fx, fy, cx, cy := params[0], params[1], params[2], params[3]
		return geom.Point2{X: fx*p.X + cx, Y: fy*p.Y + cy}
	case ModelSimpleRadial:
		f, cx, cy, k := params[0], params[1], params[2], params[3]
		r2 := p.X*p.X + p.Y*p.Y
		d := 1 + k*r2
		return geom.Point2{X: f*p.X*d + cx, Y: f*p.Y*d + cy}
	}
	return geom.NaNPoint2()
}

// modelCamFromImg unprojects a pixel to the normalized camera plane.
func modelCamFromImg(id ModelID, params []float64, p geom.Point2) geom.Point2 {
	switch id {
	case ModelSimplePinhole:
		f, cx, cy := params[0], params[1], params[2]
		return geom.Point2{X: (p.X - cx) / f, Y: (p.Y - cy) / f}
	case ModelPinhole:
		fx, fy, cx, cy := params[0], params[1], params[2], params[3]
		return geom.Point2{X: (p.X - cx) / fx, Y: (p.Y - cy) / fy}
	case ModelSimpleRadial:
		f, cx, cy, k := params[0], params[1], params[2], params[3]
		return undistortRadial((p.X-cx)/f, (p.Y-cy)/f, k)
	}
	return geom.NaNPoint2()
}

// undistortRadial inverts the single-coefficient radial distortion by
// fixed-point iteration on the distorted coordinates.
func undistortRadial(xd, yd, k float64) geom.Point2 {
	x, y := xd, yd
	for iter := 0; iter < undistortMaxIter; iter++ {
		r2 := x*x + y*y
		d := 1 + k*r2
		if d == 0 {
			break
		}
		xn, yn := xd/d, yd/d
		e := (xn-x)*(xn-x) + (yn-y)*(yn-y)
		x, y = xn, yn
		if e < 1e-24 {
			break
		}
	}
	return geom.Point2{X: x, Y: y}
}
