package geom

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// ParallelLineTolerance bounds how close to parallel two lines may be before
// IntersectLines gives up. The value compares the squared cross term of the
// two directions against the product of their squared norms.
const ParallelLineTolerance = 1e-12

// IntersectLines returns the point closest to both of the two lines
// (p1 + s*d1) and (p2 + t*d2). Exactly intersecting lines yield the
// intersection point; skew lines yield the midpoint of the closest-approach
// segment. Near-parallel lines (see ParallelLineTolerance) yield a NaN
// vector, which propagates through downstream projections as a
// "no solution" value.
func IntersectLines(p1, d1, p2, d2 r3.Vec) r3.Vec {
	a := r3.Dot(d1, d1)
	b := r3.Dot(d1, d2)
	c := r3.Dot(d2, d2)
	denom := a*c - b*b
	if a == 0 || c == 0 || denom <= ParallelLineTolerance*a*c {
		return NaNVec()
	}

	w := r3.Sub(p1, p2)
	d := r3.Dot(d1, w)
	e := r3.Dot(d2, w)

	s := (b*e - c*d) / denom
	t := (a*e - b*d) / denom

	q1 := r3.Add(p1, r3.Scale(s, d1))
	q2 := r3.Add(p2, r3.Scale(t, d2))
	return r3.Scale(0.5, r3.Add(q1, q2))
}

// DegToRad converts degrees to radians.
func DegToRad(deg float64) float64 { return deg * math.Pi / 180 }

// RadToDeg converts radians to degrees.
func RadToDeg(rad float64) float64 { return rad * 180 / math.Pi }
