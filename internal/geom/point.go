package geom

import "math"

// Point2 is a 2D point, used both for pixel coordinates and for normalized
// camera-plane coordinates.
type Point2 struct {
	X, Y float64
}

// IsFinite reports whether both coordinates are finite.
func (p Point2) IsFinite() bool {
	return !math.IsNaN(p.X) && !math.IsInf(p.X, 0) &&
		!math.IsNaN(p.Y) && !math.IsInf(p.Y, 0)
}

// NaNPoint2 returns a point with NaN coordinates, the "no solution" value
// for projections without a physical ray solution.
func NaNPoint2() Point2 {
	return Point2{X: math.NaN(), Y: math.NaN()}
}
