package eval

import (
	"math"

	"github.com/MDSKiel/colmap-underwater/internal/geom"
	"gonum.org/v1/gonum/spatial/r3"
)

// PoseErrors compares an estimated relative pose against ground truth.
// TranslationAngleDeg is filled by the calibrated comparison, where scale
// is unobservable; PositionError and ScaleError by the refractive one,
// where the baseline carries metric scale.
type PoseErrors struct {
	RotationDeg         float64
	TranslationAngleDeg float64
	PositionError       float64
	ScaleError          float64
}

// RotationErrorDeg is the angle of the relative rotation between the two
// poses, in degrees.
func RotationErrorDeg(want, got geom.Rigid3d) float64 {
	diff := geom.ComposeRotations(want.R, geom.InvertRotation(got.R))
	return geom.RadToDeg(geom.RotationAngle(diff))
}

// TranslationAngleDeg is the angle between the normalized translation
// vectors, folded over the essential-matrix sign ambiguity. A zero-length
// estimate is maximally wrong.
func TranslationAngleDeg(want, got geom.Rigid3d) float64 {
	nw, ng := r3.Norm(want.T), r3.Norm(got.T)
	if nw == 0 && ng == 0 {
		return 0
	}
	if nw == 0 || ng == 0 {
		return 90
	}
	cos := math.Abs(r3.Dot(want.T, got.T) / (nw * ng))
	return geom.RadToDeg(math.Acos(min(1, cos)))
}

// CalibratedPoseError measures rotation and translation direction errors,
// the only quantities a single-center two-view estimate constrains.
func CalibratedPoseError(want, got geom.Rigid3d) PoseErrors {
	return PoseErrors{
		RotationDeg:         RotationErrorDeg(want, got),
		TranslationAngleDeg: TranslationAngleDeg(want, got),
	}
}

// RefractivePoseError measures rotation error plus the metric position
// error between the recovered camera centers and the absolute baseline
// length difference.
func RefractivePoseError(want, got geom.Rigid3d) PoseErrors {
	dc := r3.Sub(want.ProjectionCenter(), got.ProjectionCenter())
	return PoseErrors{
		RotationDeg:   RotationErrorDeg(want, got),
		PositionError: r3.Norm(dc),
		ScaleError:    math.Abs(r3.Norm(want.T) - r3.Norm(got.T)),
	}
}
