package twoview

import (
	"math"

	"github.com/MDSKiel/colmap-underwater/internal/camera"
	"github.com/MDSKiel/colmap-underwater/internal/geom"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"
)

// rayObs is one refractive correspondence: the observation rays in the two
// real camera frames, the virtual-from-real transforms that produced them,
// and the virtual-normalized coordinates used for residual scoring.
type rayObs struct {
	c1, d1     r3.Vec // view-1 ray: virtual center and unit direction, real frame
	c2, d2     r3.Vec
	vfr1, vfr2 geom.Rigid3d
	x1, x2     geom.Point2 // virtual-camera normalized observations
	valid      bool
}

// EstimateRefractive recovers the relative pose between two refractive
// views. Each observation carries its own single-center virtual camera and
// virtual-from-real transform; together they define an observation ray
// that does not pass through the real projection center, making this a
// generalized (non-central) relative pose problem. Hypotheses come from a
// central essential-matrix approximation of the ray directions; the
// translation scale, observable under refraction, is recovered by a linear
// generalized-epipolar solve and polished jointly with the rotation by
// Gauss-Newton on the exact ray model.
func EstimateRefractive(
	points1 []geom.Point2, vcams1 []camera.Camera, vfrs1 []geom.Rigid3d,
	points2 []geom.Point2, vcams2 []camera.Camera, vfrs2 []geom.Rigid3d,
	matches []FeatureMatch, opts Options,
) Geometry {
	if len(matches) < essentialSampleSize {
		return Geometry{Cam2FromCam1: geom.IdentityRigid()}
	}

	obs := make([]rayObs, len(matches))
	for i, m := range matches {
		obs[i] = makeRayObs(
			points1[m.Idx1], &vcams1[m.Idx1], vfrs1[m.Idx1],
			points2[m.Idx2], &vcams2[m.Idx2], vfrs2[m.Idx2],
		)
	}

	// All virtual cameras share the real camera's mean focal length, so a
	// single pixel threshold conversion serves every observation.
	threshold := vcams1[matches[0].Idx1].CamFromImgThreshold(opts.MaxError)
	thresholdSq := threshold * threshold

	rng := opts.rng()
	best := geom.IdentityRigid()
	bestInliers := 0
	found := false

	maxIter := opts.MaxIterations
	for iter := 0; iter < maxIter; iter++ {
		sample := sampleDistinct(rng, essentialSampleSize, len(obs))
		pose, ok := hypothesizePose(obs, sample)
		if !ok {
			continue
		}
		inliers := countGeneralizedInliers(obs, pose, thresholdSq)
		if inliers > bestInliers {
			bestInliers = inliers
			best = pose
			found = true
			maxIter = min(maxIter, iter+1+adaptiveIterations(
				opts.Confidence, float64(inliers)/float64(len(obs)),
				essentialSampleSize, opts.MaxIterations))
		}
	}

	if !found || bestInliers < opts.MinNumInliers {
		return Geometry{Cam2FromCam1: geom.IdentityRigid()}
	}

	// Local optimization: re-solve the scaled translation on the full
	// inlier set, refine the 6-dof pose on the exact ray model, and
	// reclassify. One repeat settles the inlier set.
	pose := best
	for iter := 0; iter < 2; iter++ {
		inlierIdx := generalizedInlierIndices(obs, pose, thresholdSq)
		if len(inlierIdx) < essentialSampleSize {
			break
		}
		if t, ok := solveTranslation(obs, inlierIdx, pose.R); ok {
			pose.T = t
		}
		pose = refinePose(obs, inlierIdx, pose)
	}

	inlierIdx := generalizedInlierIndices(obs, pose, thresholdSq)
	inlierMatches := make([]FeatureMatch, len(inlierIdx))
	for i, idx := range inlierIdx {
		inlierMatches[i] = matches[idx]
	}
	return Geometry{Cam2FromCam1: pose, InlierMatches: inlierMatches}
}

// makeRayObs converts one virtual-camera observation pair into real-frame
// rays. The virtual camera center is the virtual frame origin mapped back
// into the real frame.
func makeRayObs(
	p1 geom.Point2, vcam1 *camera.Camera, vfr1 geom.Rigid3d,
	p2 geom.Point2, vcam2 *camera.Camera, vfr2 geom.Rigid3d,
) rayObs {
	x1 := vcam1.CamFromImg(p1)
	x2 := vcam2.CamFromImg(p2)

	realFromVirtual1 := vfr1.Inverse()
	realFromVirtual2 := vfr2.Inverse()

	d1 := realFromVirtual1.R.Rotate(r3.Unit(r3.Vec{X: x1.X, Y: x1.Y, Z: 1}))
	d2 := realFromVirtual2.R.Rotate(r3.Unit(r3.Vec{X: x2.X, Y: x2.Y, Z: 1}))

	o := rayObs{
		c1: realFromVirtual1.T, d1: d1,
		c2: realFromVirtual2.T, d2: d2,
		vfr1: vfr1, vfr2: vfr2,
		x1: x1, x2: x2,
	}
	o.valid = p1.IsFinite() && p2.IsFinite() &&
		geom.VecIsFinite(o.c1) && geom.VecIsFinite(o.c2) &&
		d1.Z > 0 && d2.Z > 0
	return o
}

// hypothesizePose builds a pose hypothesis from a minimal sample: central
// essential matrix on the ray directions for the rotation and translation
// direction, then a linear generalized-epipolar solve for the scale.
func hypothesizePose(obs []rayObs, sample []int) (geom.Rigid3d, bool) {
	s1 := make([]geom.Point2, 0, len(sample))
	s2 := make([]geom.Point2, 0, len(sample))
	for _, idx := range sample {
		o := obs[idx]
		if !o.valid {
			return geom.Rigid3d{}, false
		}
		s1 = append(s1, geom.Point2{X: o.d1.X / o.d1.Z, Y: o.d1.Y / o.d1.Z})
		s2 = append(s2, geom.Point2{X: o.d2.X / o.d2.Z, Y: o.d2.Y / o.d2.Z})
	}

	e, ok := essentialFromMatches(s1, s2)
	if !ok {
		return geom.Rigid3d{}, false
	}
	pose, ok := decomposeEssential(e, s1, s2)
	if !ok {
		return geom.Rigid3d{}, false
	}
	t, ok := solveTranslation(obs, sample, pose.R)
	if !ok {
		return geom.Rigid3d{}, false
	}
	pose.T = t
	return pose, true
}

// solveTranslation recovers the metrically scaled translation for a known
// rotation from the generalized epipolar constraint
// d2 . ((R c1 + t - c2) x (R d1)) = 0, which is linear in t.
func solveTranslation(obs []rayObs, idxs []int, rotation r3.Rotation) (r3.Vec, bool) {
	if len(idxs) < 3 {
		return r3.Vec{}, false
	}
	a := mat.NewDense(len(idxs), 3, nil)
	b := mat.NewVecDense(len(idxs), nil)
	for i, idx := range idxs {
		o := obs[idx]
		rd1 := rotation.Rotate(o.d1)
		row := r3.Cross(rd1, o.d2)
		a.SetRow(i, []float64{row.X, row.Y, row.Z})
		base := r3.Sub(rotation.Rotate(o.c1), o.c2)
		b.SetVec(i, -r3.Dot(o.d2, r3.Cross(base, rd1)))
	}
	var t mat.VecDense
	if err := t.SolveVec(a, b); err != nil {
		return r3.Vec{}, false
	}
	sol := r3.Vec{X: t.AtVec(0), Y: t.AtVec(1), Z: t.AtVec(2)}
	if !geom.VecIsFinite(sol) {
		return r3.Vec{}, false
	}
	return sol, true
}

func countGeneralizedInliers(obs []rayObs, pose geom.Rigid3d, thresholdSq float64) int {
	n := 0
	for i := range obs {
		if generalizedInlier(obs[i], pose, thresholdSq) {
			n++
		}
	}
	return n
}

func generalizedInlierIndices(obs []rayObs, pose geom.Rigid3d, thresholdSq float64) []int {
	var idxs []int
	for i := range obs {
		if generalizedInlier(obs[i], pose, thresholdSq) {
			idxs = append(idxs, i)
		}
	}
	return idxs
}

// generalizedInlier tests one observation with the Sampson error of the
// essential matrix relating its two virtual cameras:
// [t']x R' for v2_from_v1 = vfr2 * pose * vfr1^-1.
func generalizedInlier(o rayObs, pose geom.Rigid3d, thresholdSq float64) bool {
	if !o.valid {
		return false
	}
	v2FromV1 := o.vfr2.Compose(pose).Compose(o.vfr1.Inverse())
	return sampsonErrorSq(essentialFromPose(v2FromV1), o.x1, o.x2) < thresholdSq
}

// refinePose polishes the pose with Gauss-Newton on the exact
// generalized-epipolar residuals of the inlier rays. Rotation updates are
// left-multiplied axis-angle increments; the translation keeps its
// absolute scale.
func refinePose(obs []rayObs, idxs []int, pose geom.Rigid3d) geom.Rigid3d {
	const (
		maxIterations = 20
		diffStep      = 1e-7
		damping       = 1e-12
	)

	residuals := func(p geom.Rigid3d) []float64 {
		rs := make([]float64, len(idxs))
		for i, idx := range idxs {
			rs[i] = generalizedEpipolarResidual(obs[idx], p)
		}
		return rs
	}
	cost := func(rs []float64) float64 {
		c := 0.0
		for _, r := range rs {
			c += r * r
		}
		return c
	}

	current := pose
	currentRes := residuals(current)
	currentCost := cost(currentRes)

	for iter := 0; iter < maxIterations; iter++ {
		jac := mat.NewDense(len(idxs), 6, nil)
		for p := 0; p < 6; p++ {
			rs := residuals(perturbPose(current, p, diffStep))
			for i := range idxs {
				jac.Set(i, p, (rs[i]-currentRes[i])/diffStep)
			}
		}

		var jtj mat.Dense
		jtj.Mul(jac.T(), jac)
		for i := 0; i < 6; i++ {
			jtj.Set(i, i, jtj.At(i, i)+damping)
		}
		var jtr mat.VecDense
		jtr.MulVec(jac.T(), mat.NewVecDense(len(idxs), currentRes))

		var delta mat.VecDense
		if err := delta.SolveVec(&jtj, &jtr); err != nil {
			break
		}

		next := current
		for p := 0; p < 6; p++ {
			next = perturbPose(next, p, -delta.AtVec(p))
		}
		nextRes := residuals(next)
		nextCost := cost(nextRes)
		if !(nextCost < currentCost) {
			break
		}
		improvement := (currentCost - nextCost) / math.Max(currentCost, 1e-300)
		current, currentRes, currentCost = next, nextRes, nextCost
		if improvement < 1e-12 {
			break
		}
	}
	return current
}

// generalizedEpipolarResidual is the sine of the angle between the view-2
// ray direction and the epipolar plane spanned by the baseline and the
// rotated view-1 ray direction. It vanishes exactly when the two rays meet
// and, unlike the central Sampson form, is sensitive to the translation
// scale.
func generalizedEpipolarResidual(o rayObs, pose geom.Rigid3d) float64 {
	rd1 := pose.R.Rotate(o.d1)
	baseline := r3.Sub(pose.Apply(o.c1), o.c2)
	n := r3.Cross(baseline, rd1)
	norm := r3.Norm(n)
	if norm < 1e-15 {
		return 0
	}
	return r3.Dot(o.d2, n) / norm
}

// perturbPose applies an increment to one of the six pose parameters:
// 0-2 are axis-angle rotation components (left-multiplied), 3-5 are
// translation components.
func perturbPose(pose geom.Rigid3d, param int, delta float64) geom.Rigid3d {
	switch param {
	case 0, 1, 2:
		axis := r3.Vec{}
		switch param {
		case 0:
			axis.X = 1
		case 1:
			axis.Y = 1
		case 2:
			axis.Z = 1
		}
		dq := r3.NewRotation(delta, axis)
		return geom.Rigid3d{
			R: geom.NormalizeRotation(geom.ComposeRotations(dq, pose.R)),
			T: dq.Rotate(pose.T),
		}
	case 3:
		pose.T.X += delta
	case 4:
		pose.T.Y += delta
	case 5:
		pose.T.Z += delta
	}
	return pose
}
