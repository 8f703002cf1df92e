// Package geom provides the small set of 3D primitives shared by the camera
// and two-view estimation code: rays, rigid transforms, rotation helpers and
// a tolerant line-line intersection.
package geom

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// Ray is a 3D ray with an origin and a direction. The direction is not
// required to be unit length; callers that need unit directions normalise
// explicitly.
type Ray struct {
	Ori r3.Vec
	Dir r3.Vec
}

// At returns the point at parameter d along the ray, Ori + d*Dir.
func (r Ray) At(d float64) r3.Vec {
	return r3.Add(r.Ori, r3.Scale(d, r.Dir))
}

// IsFinite reports whether both origin and direction are finite.
func (r Ray) IsFinite() bool {
	return VecIsFinite(r.Ori) && VecIsFinite(r.Dir)
}

// NaNRay returns a ray whose components are all NaN. It is the "no physical
// solution" value propagated by refractive projection (e.g. total internal
// reflection); callers filter it rather than treating it as an error.
func NaNRay() Ray {
	return Ray{Ori: NaNVec(), Dir: NaNVec()}
}

// NaNVec returns a vector whose components are all NaN.
func NaNVec() r3.Vec {
	nan := math.NaN()
	return r3.Vec{X: nan, Y: nan, Z: nan}
}

// VecIsFinite reports whether all components of v are finite.
func VecIsFinite(v r3.Vec) bool {
	return !math.IsNaN(v.X) && !math.IsInf(v.X, 0) &&
		!math.IsNaN(v.Y) && !math.IsInf(v.Y, 0) &&
		!math.IsNaN(v.Z) && !math.IsInf(v.Z, 0)
}
