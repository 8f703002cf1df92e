package twoview

import (
	"math"
	"math/rand"
	"testing"

	"github.com/MDSKiel/colmap-underwater/internal/camera"
	"github.com/MDSKiel/colmap-underwater/internal/geom"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"
)

// testPinholeCamera is the in-air camera used by the calibrated scenes.
func testPinholeCamera(t *testing.T) camera.Camera {
	t.Helper()
	cam := camera.New()
	cam.Width = 1113
	cam.Height = 835
	require.NoError(t, cam.SetModelFromName("PINHOLE"))
	require.NoError(t, cam.SetParams([]float64{340.514, 340.514, 556.5, 417.5}))
	return cam
}

// testFlatPortCamera adds a slightly tilted flat housing interface.
func testFlatPortCamera(t *testing.T) camera.Camera {
	t.Helper()
	cam := testPinholeCamera(t)
	require.NoError(t, cam.SetRefracModelFromName("FLATPORT"))
	n := r3.Unit(r3.Vec{X: 0.03, Y: -0.02, Z: 1})
	require.NoError(t, cam.SetRefracParams([]float64{n.X, n.Y, n.Z, 0.05, 0.02, 1.0, 1.52, 1.334}))
	return cam
}

// synthScene is a two-view correspondence set with known ground truth.
type synthScene struct {
	points1, points2 []geom.Point2
	matches          []FeatureMatch
	numOutliers      int
	pose             geom.Rigid3d
}

func randomPixel(rng *rand.Rand, cam *camera.Camera) geom.Point2 {
	return geom.Point2{
		X: rng.Float64() * float64(cam.Width),
		Y: rng.Float64() * float64(cam.Height),
	}
}

func inBounds(cam *camera.Camera, p geom.Point2) bool {
	return p.IsFinite() &&
		p.X >= 0 && p.X < float64(cam.Width) &&
		p.Y >= 0 && p.Y < float64(cam.Height)
}

// makeCentralScene projects random in-air points through a known pose.
// Outliers replace the second observation with an unrelated pixel.
func makeCentralScene(rng *rand.Rand, cam *camera.Camera, n int, outlierRatio float64) synthScene {
	pose := geom.NewRigid(
		geom.EulerRotation(0.06, -0.09, 0.04),
		r3.Unit(r3.Vec{X: 0.8, Y: -0.1, Z: 0.15}),
	)
	s := synthScene{pose: pose}

	for len(s.matches) < n {
		p1 := randomPixel(rng, cam)
		x := cam.CamFromImg(p1)
		depth := 4 + 6*rng.Float64()
		point := r3.Scale(depth, r3.Vec{X: x.X, Y: x.Y, Z: 1})

		inCam2 := pose.Apply(point)
		if inCam2.Z <= 0 {
			continue
		}
		p2 := cam.ImgFromCam(geom.Point2{X: inCam2.X / inCam2.Z, Y: inCam2.Y / inCam2.Z})
		if !inBounds(cam, p2) {
			continue
		}
		if rng.Float64() < outlierRatio {
			p2 = randomPixel(rng, cam)
			s.numOutliers++
		}
		s.matches = append(s.matches, FeatureMatch{Idx1: len(s.points1), Idx2: len(s.points2)})
		s.points1 = append(s.points1, p1)
		s.points2 = append(s.points2, p2)
	}
	return s
}

// makeRefractiveScene projects underwater points through the refractive
// model in both views. The translation carries metric scale.
func makeRefractiveScene(rng *rand.Rand, cam *camera.Camera, n int, outlierRatio float64) synthScene {
	pose := geom.NewRigid(
		geom.EulerRotation(0.05, -0.08, 0.03),
		r3.Vec{X: 0.6, Y: -0.1, Z: 0.12},
	)
	s := synthScene{pose: pose}

	for len(s.matches) < n {
		p1 := randomPixel(rng, cam)
		depth := 2 + 6*rng.Float64()
		point := cam.CamFromImgRefracPoint(p1, depth)
		if !geom.VecIsFinite(point) {
			continue
		}
		p2 := cam.ImgFromCamRefrac(pose.Apply(point))
		if !inBounds(cam, p2) {
			continue
		}
		if rng.Float64() < outlierRatio {
			p2 = randomPixel(rng, cam)
			s.numOutliers++
		}
		s.matches = append(s.matches, FeatureMatch{Idx1: len(s.points1), Idx2: len(s.points2)})
		s.points1 = append(s.points1, p1)
		s.points2 = append(s.points2, p2)
	}
	return s
}

func rotationErrorDeg(want, got r3.Rotation) float64 {
	diff := geom.ComposeRotations(want, geom.InvertRotation(got))
	return geom.RadToDeg(geom.RotationAngle(diff))
}

// directionErrorDeg folds the sign ambiguity of an estimated translation
// direction.
func directionErrorDeg(want, got r3.Vec) float64 {
	nw, ng := r3.Norm(want), r3.Norm(got)
	if nw == 0 || ng == 0 {
		return 180
	}
	cos := r3.Dot(want, got) / (nw * ng)
	cos = math.Abs(max(-1, min(1, cos)))
	return geom.RadToDeg(math.Acos(cos))
}
