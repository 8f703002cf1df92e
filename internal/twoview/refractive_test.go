package twoview

import (
	"math/rand"
	"testing"

	"github.com/MDSKiel/colmap-underwater/internal/geom"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"
)

func TestEstimateRefractiveRecoversMetricPose(t *testing.T) {
	t.Parallel()

	cam := testFlatPortCamera(t)
	rng := rand.New(rand.NewSource(21))
	scene := makeRefractiveScene(rng, &cam, 200, 0)

	vcams1, vfrs1 := cam.ComputeVirtuals(scene.points1)
	vcams2, vfrs2 := cam.ComputeVirtuals(scene.points2)

	opts := DefaultOptions()
	opts.Rng = rand.New(rand.NewSource(1))
	got := EstimateRefractive(
		scene.points1, vcams1, vfrs1,
		scene.points2, vcams2, vfrs2,
		scene.matches, opts,
	)

	require.GreaterOrEqual(t, len(got.InlierMatches), 190)
	assert.Less(t, rotationErrorDeg(scene.pose.R, got.Cam2FromCam1.R), 0.5)
	assert.Less(t, directionErrorDeg(scene.pose.T, got.Cam2FromCam1.T), 2.0)

	// The refractive geometry observes the translation magnitude, not just
	// its direction.
	wantNorm := r3.Norm(scene.pose.T)
	gotNorm := r3.Norm(got.Cam2FromCam1.T)
	assert.InDelta(t, wantNorm, gotNorm, 0.15*wantNorm)
}

func TestEstimateRefractiveWithOutliers(t *testing.T) {
	t.Parallel()

	cam := testFlatPortCamera(t)
	rng := rand.New(rand.NewSource(33))
	scene := makeRefractiveScene(rng, &cam, 250, 0.2)

	vcams1, vfrs1 := cam.ComputeVirtuals(scene.points1)
	vcams2, vfrs2 := cam.ComputeVirtuals(scene.points2)

	opts := DefaultOptions()
	opts.Rng = rand.New(rand.NewSource(2))
	got := EstimateRefractive(
		scene.points1, vcams1, vfrs1,
		scene.points2, vcams2, vfrs2,
		scene.matches, opts,
	)

	numGood := len(scene.matches) - scene.numOutliers
	require.GreaterOrEqual(t, len(got.InlierMatches), numGood*85/100)
	assert.LessOrEqual(t, len(got.InlierMatches), numGood+scene.numOutliers/5)
	assert.Less(t, rotationErrorDeg(scene.pose.R, got.Cam2FromCam1.R), 1.0)
	assert.Less(t, directionErrorDeg(scene.pose.T, got.Cam2FromCam1.T), 3.0)
}

func TestEstimateRefractiveTooFewMatches(t *testing.T) {
	t.Parallel()

	cam := testFlatPortCamera(t)
	rng := rand.New(rand.NewSource(8))
	scene := makeRefractiveScene(rng, &cam, 5, 0)

	vcams1, vfrs1 := cam.ComputeVirtuals(scene.points1)
	vcams2, vfrs2 := cam.ComputeVirtuals(scene.points2)

	got := EstimateRefractive(
		scene.points1, vcams1, vfrs1,
		scene.points2, vcams2, vfrs2,
		scene.matches, DefaultOptions(),
	)
	assert.Empty(t, got.InlierMatches)
	assert.InDelta(t, 0, geom.RotationAngle(got.Cam2FromCam1.R), 0)
}

func TestSolveTranslationExact(t *testing.T) {
	t.Parallel()

	cam := testFlatPortCamera(t)
	rng := rand.New(rand.NewSource(17))
	scene := makeRefractiveScene(rng, &cam, 30, 0)

	vcams1, vfrs1 := cam.ComputeVirtuals(scene.points1)
	vcams2, vfrs2 := cam.ComputeVirtuals(scene.points2)

	obs := make([]rayObs, len(scene.matches))
	idxs := make([]int, len(scene.matches))
	for i, m := range scene.matches {
		obs[i] = makeRayObs(
			scene.points1[m.Idx1], &vcams1[m.Idx1], vfrs1[m.Idx1],
			scene.points2[m.Idx2], &vcams2[m.Idx2], vfrs2[m.Idx2],
		)
		idxs[i] = i
	}

	// With the true rotation the linear system pins down the scaled
	// translation.
	got, ok := solveTranslation(obs, idxs, scene.pose.R)
	require.True(t, ok)
	assert.InDelta(t, scene.pose.T.X, got.X, 1e-3)
	assert.InDelta(t, scene.pose.T.Y, got.Y, 1e-3)
	assert.InDelta(t, scene.pose.T.Z, got.Z, 1e-3)
}

func TestGeneralizedEpipolarResidualVanishesAtTruth(t *testing.T) {
	t.Parallel()

	cam := testFlatPortCamera(t)
	rng := rand.New(rand.NewSource(29))
	scene := makeRefractiveScene(rng, &cam, 20, 0)

	vcams1, vfrs1 := cam.ComputeVirtuals(scene.points1)
	vcams2, vfrs2 := cam.ComputeVirtuals(scene.points2)

	for _, m := range scene.matches {
		o := makeRayObs(
			scene.points1[m.Idx1], &vcams1[m.Idx1], vfrs1[m.Idx1],
			scene.points2[m.Idx2], &vcams2[m.Idx2], vfrs2[m.Idx2],
		)
		require.True(t, o.valid)
		assert.InDelta(t, 0, generalizedEpipolarResidual(o, scene.pose), 1e-6)
	}
}
