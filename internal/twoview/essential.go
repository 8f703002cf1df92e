package twoview

import (
	"math"

	"github.com/MDSKiel/colmap-underwater/internal/geom"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"
)

func logProb(p float64) float64 {
	if p <= 0 {
		return math.Inf(-1)
	}
	return math.Log(p)
}

// hartleyNormalize centers the points on their centroid and scales the
// mean distance to sqrt(2). It returns the transformed points and the
// 3x3 similarity applied.
func hartleyNormalize(points []geom.Point2) ([]geom.Point2, *mat.Dense) {
	var cx, cy float64
	for _, p := range points {
		cx += p.X
		cy += p.Y
	}
	n := float64(len(points))
	cx /= n
	cy /= n

	var meanDist float64
	for _, p := range points {
		meanDist += math.Hypot(p.X-cx, p.Y-cy)
	}
	meanDist /= n
	scale := 1.0
	if meanDist > 0 {
		scale = math.Sqrt2 / meanDist
	}

	out := make([]geom.Point2, len(points))
	for i, p := range points {
		out[i] = geom.Point2{X: scale * (p.X - cx), Y: scale * (p.Y - cy)}
	}
	t := mat.NewDense(3, 3, []float64{
		scale, 0, -scale * cx,
		0, scale, -scale * cy,
		0, 0, 1,
	})
	return out, t
}

// essentialFromMatches solves the essential matrix from >= 8 normalized
// correspondences with the direct linear transform, then projects onto the
// essential manifold (singular values 1, 1, 0).
func essentialFromMatches(x1, x2 []geom.Point2) (*mat.Dense, bool) {
	if len(x1) < 8 || len(x1) != len(x2) {
		return nil, false
	}

	n1, t1 := hartleyNormalize(x1)
	n2, t2 := hartleyNormalize(x2)

	a := mat.NewDense(len(x1), 9, nil)
	for i := range n1 {
		p1, p2 := n1[i], n2[i]
		a.SetRow(i, []float64{
			p2.X * p1.X, p2.X * p1.Y, p2.X,
			p2.Y * p1.X, p2.Y * p1.Y, p2.Y,
			p1.X, p1.Y, 1,
		})
	}

	// Full V: for the minimal 8x9 system the null vector is the ninth
	// right singular vector, which a thin factorization omits.
	var svd mat.SVD
	if !svd.Factorize(a, mat.SVDFullV) {
		return nil, false
	}
	var v mat.Dense
	svd.VTo(&v)
	_, cols := v.Dims()
	e := mat.NewDense(3, 3, nil)
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			e.Set(i, j, v.At(3*i+j, cols-1))
		}
	}

	// Denormalize: x2'^T E' x1' = 0 with x' = T x implies E = T2^T E' T1.
	var tmp, denorm mat.Dense
	tmp.Mul(e, t1)
	denorm.Mul(t2.T(), &tmp)

	return projectToEssential(&denorm)
}

// projectToEssential replaces the singular values of e with (1, 1, 0).
func projectToEssential(e *mat.Dense) (*mat.Dense, bool) {
	var svd mat.SVD
	if !svd.Factorize(e, mat.SVDFull) {
		return nil, false
	}
	var u, v mat.Dense
	svd.UTo(&u)
	svd.VTo(&v)

	d := mat.NewDense(3, 3, []float64{1, 0, 0, 0, 1, 0, 0, 0, 0})
	var tmp, out mat.Dense
	tmp.Mul(d, v.T())
	out.Mul(&u, &tmp)
	return &out, true
}

// sampsonErrorSq returns the squared Sampson distance of a normalized
// correspondence under an essential (or fundamental) matrix.
func sampsonErrorSq(e *mat.Dense, x1, x2 geom.Point2) float64 {
	ex0 := e.At(0, 0)*x1.X + e.At(0, 1)*x1.Y + e.At(0, 2)
	ex1 := e.At(1, 0)*x1.X + e.At(1, 1)*x1.Y + e.At(1, 2)
	ex2 := e.At(2, 0)*x1.X + e.At(2, 1)*x1.Y + e.At(2, 2)

	etx0 := e.At(0, 0)*x2.X + e.At(1, 0)*x2.Y + e.At(2, 0)
	etx1 := e.At(0, 1)*x2.X + e.At(1, 1)*x2.Y + e.At(2, 1)

	c := x2.X*ex0 + x2.Y*ex1 + ex2
	den := ex0*ex0 + ex1*ex1 + etx0*etx0 + etx1*etx1
	if den == 0 {
		return math.Inf(1)
	}
	return c * c / den
}

// essentialFromPose composes E = [t]x R for a cam2-from-cam1 transform.
func essentialFromPose(g geom.Rigid3d) *mat.Dense {
	r := geom.MatrixFromRotation(g.R)
	t := g.T
	tx := mat.NewDense(3, 3, []float64{
		0, -t.Z, t.Y,
		t.Z, 0, -t.X,
		-t.Y, t.X, 0,
	})
	var e mat.Dense
	e.Mul(tx, r)
	return &e
}

// decomposeEssential recovers the cam2-from-cam1 pose from an essential
// matrix, resolving the four-fold ambiguity by counting correspondences
// that triangulate in front of both cameras. The translation is unit
// length.
func decomposeEssential(e *mat.Dense, x1, x2 []geom.Point2) (geom.Rigid3d, bool) {
	var svd mat.SVD
	if !svd.Factorize(e, mat.SVDFull) {
		return geom.IdentityRigid(), false
	}
	var u, v mat.Dense
	svd.UTo(&u)
	svd.VTo(&v)
	if mat.Det(&u) < 0 {
		u.Scale(-1, &u)
	}
	if mat.Det(&v) < 0 {
		v.Scale(-1, &v)
	}

	w := mat.NewDense(3, 3, []float64{0, -1, 0, 1, 0, 0, 0, 0, 1})

	var r1, r2, tmp mat.Dense
	tmp.Mul(w, v.T())
	r1.Mul(&u, &tmp)
	tmp.Mul(w.T(), v.T())
	r2.Mul(&u, &tmp)

	t := r3.Vec{X: u.At(0, 2), Y: u.At(1, 2), Z: u.At(2, 2)}

	candidates := []geom.Rigid3d{
		geom.NewRigid(geom.RotationFromMatrix(&r1), t),
		geom.NewRigid(geom.RotationFromMatrix(&r1), r3.Scale(-1, t)),
		geom.NewRigid(geom.RotationFromMatrix(&r2), t),
		geom.NewRigid(geom.RotationFromMatrix(&r2), r3.Scale(-1, t)),
	}

	best := geom.IdentityRigid()
	bestSupport := -1
	for _, cand := range candidates {
		support := 0
		for i := range x1 {
			if cheiralityHolds(cand, x1[i], x2[i]) {
				support++
			}
		}
		if support > bestSupport {
			bestSupport = support
			best = cand
		}
	}
	return best, bestSupport > 0
}

// cheiralityHolds reports whether the correspondence triangulates to a
// point with positive depth in both views.
func cheiralityHolds(cam2FromCam1 geom.Rigid3d, x1, x2 geom.Point2) bool {
	d1 := r3.Vec{X: x1.X, Y: x1.Y, Z: 1}
	d2 := r3.Vec{X: x2.X, Y: x2.Y, Z: 1}

	// Express the second ray in the first camera frame.
	cam1FromCam2 := cam2FromCam1.Inverse()
	p := geom.IntersectLines(r3.Vec{}, d1, cam1FromCam2.T, cam1FromCam2.R.Rotate(d2))
	if !geom.VecIsFinite(p) {
		return false
	}
	if p.Z <= 0 {
		return false
	}
	return cam2FromCam1.Apply(p).Z > 0
}
