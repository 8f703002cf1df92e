package geom

import (
	"math"

	"gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/spatial/r3"
)

// Rigid3d is a rigid (SE3) transform: a rotation followed by a translation.
// Applying it maps a point from the source frame into the destination frame,
// p_dst = R * p_src + T.
type Rigid3d struct {
	R r3.Rotation
	T r3.Vec
}

// IdentityRigid returns the identity transform.
func IdentityRigid() Rigid3d {
	return Rigid3d{R: r3.Rotation(quat.Number{Real: 1})}
}

// NewRigid returns a transform with the given rotation and translation.
func NewRigid(r r3.Rotation, t r3.Vec) Rigid3d {
	return Rigid3d{R: r, T: t}
}

// Apply maps a point from the source frame into the destination frame.
func (g Rigid3d) Apply(p r3.Vec) r3.Vec {
	return r3.Add(g.R.Rotate(p), g.T)
}

// ApplyRay maps a ray from the source frame into the destination frame.
func (g Rigid3d) ApplyRay(r Ray) Ray {
	return Ray{Ori: g.Apply(r.Ori), Dir: g.R.Rotate(r.Dir)}
}

// Compose returns the transform equivalent to applying h first, then g.
func (g Rigid3d) Compose(h Rigid3d) Rigid3d {
	return Rigid3d{
		R: ComposeRotations(g.R, h.R),
		T: r3.Add(g.R.Rotate(h.T), g.T),
	}
}

// Inverse returns the inverse transform.
func (g Rigid3d) Inverse() Rigid3d {
	rInv := InvertRotation(g.R)
	return Rigid3d{R: rInv, T: r3.Scale(-1, rInv.Rotate(g.T))}
}

// ProjectionCenter returns the position of the source-frame origin expressed
// in the source frame of the inverse mapping, i.e. -R^T * T. For a
// cam-from-world transform this is the camera center in world coordinates.
func (g Rigid3d) ProjectionCenter() r3.Vec {
	return r3.Scale(-1, InvertRotation(g.R).Rotate(g.T))
}

// ComposeRotations returns the rotation equivalent to applying b first,
// then a.
func ComposeRotations(a, b r3.Rotation) r3.Rotation {
	return r3.Rotation(quat.Mul(quat.Number(a), quat.Number(b)))
}

// InvertRotation returns the inverse of a unit rotation.
func InvertRotation(r r3.Rotation) r3.Rotation {
	return r3.Rotation(quat.Conj(quat.Number(r)))
}

// NormalizeRotation rescales r to a unit quaternion. Rotations produced by
// repeated composition drift slightly from unit norm.
func NormalizeRotation(r r3.Rotation) r3.Rotation {
	q := quat.Number(r)
	n := quat.Abs(q)
	if n == 0 {
		return r3.Rotation(quat.Number{Real: 1})
	}
	return r3.Rotation(quat.Scale(1/n, q))
}

// RotationAngle returns the angle of the rotation in radians, in [0, pi].
func RotationAngle(r r3.Rotation) float64 {
	q := quat.Number(NormalizeRotation(r))
	v := math.Sqrt(q.Imag*q.Imag + q.Jmag*q.Jmag + q.Kmag*q.Kmag)
	return 2 * math.Atan2(v, math.Abs(q.Real))
}

// RotationBetween returns the minimal rotation that maps unit(a) onto
// unit(b). For antiparallel inputs an arbitrary orthogonal rotation axis is
// chosen.
func RotationBetween(a, b r3.Vec) r3.Rotation {
	a = r3.Unit(a)
	b = r3.Unit(b)
	d := r3.Dot(a, b)
	if d < -1+1e-12 {
		return r3.NewRotation(math.Pi, anyOrthogonal(a))
	}
	c := r3.Cross(a, b)
	q := quat.Number{Real: 1 + d, Imag: c.X, Jmag: c.Y, Kmag: c.Z}
	return NormalizeRotation(r3.Rotation(q))
}

// EulerRotation builds a rotation from extrinsic X, Y, Z Euler angles in
// radians, applied in that order (R = Rz * Ry * Rx).
func EulerRotation(rx, ry, rz float64) r3.Rotation {
	qx := r3.NewRotation(rx, r3.Vec{X: 1})
	qy := r3.NewRotation(ry, r3.Vec{Y: 1})
	qz := r3.NewRotation(rz, r3.Vec{Z: 1})
	return ComposeRotations(qz, ComposeRotations(qy, qx))
}

// anyOrthogonal returns a unit vector orthogonal to v.
func anyOrthogonal(v r3.Vec) r3.Vec {
	if math.Abs(v.X) <= math.Abs(v.Y) && math.Abs(v.X) <= math.Abs(v.Z) {
		return r3.Unit(r3.Cross(v, r3.Vec{X: 1}))
	}
	if math.Abs(v.Y) <= math.Abs(v.Z) {
		return r3.Unit(r3.Cross(v, r3.Vec{Y: 1}))
	}
	return r3.Unit(r3.Cross(v, r3.Vec{Z: 1}))
}
