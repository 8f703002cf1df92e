package geom

import (
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/spatial/r3"
)

// MatrixFromRotation returns the 3x3 matrix form of a unit rotation.
func MatrixFromRotation(r r3.Rotation) *mat.Dense {
	x := r.Rotate(r3.Vec{X: 1})
	y := r.Rotate(r3.Vec{Y: 1})
	z := r.Rotate(r3.Vec{Z: 1})
	return mat.NewDense(3, 3, []float64{
		x.X, y.X, z.X,
		x.Y, y.Y, z.Y,
		x.Z, y.Z, z.Z,
	})
}

// RotationFromMatrix converts a 3x3 rotation matrix to quaternion form
// using Shepperd's method, picking the numerically largest component.
func RotationFromMatrix(m mat.Matrix) r3.Rotation {
	r00, r01, r02 := m.At(0, 0), m.At(0, 1), m.At(0, 2)
	r10, r11, r12 := m.At(1, 0), m.At(1, 1), m.At(1, 2)
	r20, r21, r22 := m.At(2, 0), m.At(2, 1), m.At(2, 2)

	trace := r00 + r11 + r22
	var q quat.Number
	switch {
	case trace > 0:
		s := 0.5 / math.Sqrt(trace+1)
		q = quat.Number{
			Real: 0.25 / s,
			Imag: (r21 - r12) * s,
			Jmag: (r02 - r20) * s,
			Kmag: (r10 - r01) * s,
		}
	case r00 > r11 && r00 > r22:
		s := 2 * math.Sqrt(1 + r00 - r11 - r22)
		q = quat.Number{
			Real: (r21 - r12) / s,
			Imag: 0.25 * s,
			Jmag: (r01 + r10) / s,
			Kmag: (r02 + r20) / s,
		}
	case r11 > r22:
		s := 2 * math.Sqrt(1 + r11 - r00 - r22)
		q = quat.Number{
			Real: (r02 - r20) / s,
			Imag: (r01 + r10) / s,
			Jmag: 0.25 * s,
			Kmag: (r12 + r21) / s,
		}
	default:
		s := 2 * math.Sqrt(1 + r22 - r00 - r11)
		q = quat.Number{
			Real: (r10 - r01) / s,
			Imag: (r02 + r20) / s,
			Jmag: (r12 + r21) / s,
			Kmag: 0.25 * s,
		}
	}
	return NormalizeRotation(r3.Rotation(q))
}
