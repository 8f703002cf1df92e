// Package eval is a Monte-Carlo harness for two-view relative pose
// estimation under refraction. It generates synthetic noisy
// correspondences for a known pose, runs the calibrated and the
// refractive estimator on them, and aggregates accuracy statistics
// across noise levels into a tabular report, PNG/HTML charts, and an
// optional sqlite results store.
package eval

import (
	"fmt"
	"math/rand"

	"github.com/MDSKiel/colmap-underwater/internal/camera"
	"github.com/MDSKiel/colmap-underwater/internal/geom"
	"github.com/MDSKiel/colmap-underwater/internal/twoview"
	"gonum.org/v1/gonum/spatial/r3"
)

// maxAttemptsPerPoint bounds rejection sampling: tight image bounds or
// depth ranges can make valid refractive correspondences rare, and a
// misconfigured experiment must fail instead of spinning.
const maxAttemptsPerPoint = 1000

// PointsData is one synthetic two-view trial. Parallel slices hold, per
// correspondence, the plain (intrinsics-only) and refraction-corrected
// pixel observations in both views plus the per-observation virtual
// cameras derived from the noised refractive pixels. Matches are 1:1.
type PointsData struct {
	Points1       []geom.Point2 // plain projections, view 1
	Points2       []geom.Point2
	Points1Refrac []geom.Point2 // refractive projections, view 1
	Points2Refrac []geom.Point2

	VirtualCameras1   []camera.Camera
	VirtualFromReals1 []geom.Rigid3d
	VirtualCameras2   []camera.Camera
	VirtualFromReals2 []geom.Rigid3d

	Matches      []twoview.FeatureMatch
	Cam2FromCam1 geom.Rigid3d // ground truth
	NumInliers   int
}

// DatasetOptions parameterize one trial's synthetic correspondences.
type DatasetOptions struct {
	NumPoints     int
	InlierRatio   float64 // first floor(N*ratio) accepted points stay clean
	NoiseStdDev   float64 // pixel sigma on inliers, 0 = noise free
	OutlierStdDev float64 // pixel sigma on the remaining points
	DepthMin      float64 // metric depth range along the view-1 ray
	DepthMax      float64
}

// GeneratePoints samples correspondences for the given pose: a random
// pixel in view 1 is cast through the refractive model, a random depth
// picks the 3D point, and the point is projected into view 2 through the
// ground-truth transform. Samples whose view-2 refractive projection is
// non-finite or out of bounds are rejected and redrawn. Virtual cameras
// are computed from the noised refractive pixels, exactly as an estimator
// would see them.
func GeneratePoints(cam *camera.Camera, cam2FromCam1 geom.Rigid3d, opts DatasetOptions, rng *rand.Rand) (*PointsData, error) {
	if opts.NumPoints <= 0 {
		return nil, fmt.Errorf("num points must be positive, got %d", opts.NumPoints)
	}
	if opts.DepthMax < opts.DepthMin || opts.DepthMin <= 0 {
		return nil, fmt.Errorf("invalid depth range [%g, %g]", opts.DepthMin, opts.DepthMax)
	}

	d := &PointsData{
		Cam2FromCam1: cam2FromCam1,
		NumInliers:   int(float64(opts.NumPoints) * opts.InlierRatio),
	}

	attempts := 0
	maxAttempts := maxAttemptsPerPoint * opts.NumPoints
	for len(d.Matches) < opts.NumPoints {
		if attempts++; attempts > maxAttempts {
			return nil, fmt.Errorf("dataset generation did not converge after %d attempts: %d/%d points accepted",
				maxAttempts, len(d.Matches), opts.NumPoints)
		}

		p1Refrac := geom.Point2{
			X: rng.Float64() * float64(cam.Width),
			Y: rng.Float64() * float64(cam.Height),
		}
		depth := opts.DepthMin + rng.Float64()*(opts.DepthMax-opts.DepthMin)
		point := cam.CamFromImgRefracPoint(p1Refrac, depth)
		if !geom.VecIsFinite(point) {
			continue
		}

		inCam2 := cam2FromCam1.Apply(point)
		p2Refrac := cam.ImgFromCamRefrac(inCam2)
		if !insideImage(cam, p2Refrac) {
			continue
		}

		p1 := projectPlain(cam, point)
		p2 := projectPlain(cam, inCam2)

		sigma := opts.NoiseStdDev
		if len(d.Matches) >= d.NumInliers {
			sigma = opts.OutlierStdDev
		}
		if sigma > 0 {
			p1 = perturb(p1, sigma, rng)
			p2 = perturb(p2, sigma, rng)
			p1Refrac = perturb(p1Refrac, sigma, rng)
			p2Refrac = perturb(p2Refrac, sigma, rng)
		}

		idx := len(d.Matches)
		d.Matches = append(d.Matches, twoview.FeatureMatch{Idx1: idx, Idx2: idx})
		d.Points1 = append(d.Points1, p1)
		d.Points2 = append(d.Points2, p2)
		d.Points1Refrac = append(d.Points1Refrac, p1Refrac)
		d.Points2Refrac = append(d.Points2Refrac, p2Refrac)
	}

	d.VirtualCameras1, d.VirtualFromReals1 = cam.ComputeVirtuals(d.Points1Refrac)
	d.VirtualCameras2, d.VirtualFromReals2 = cam.ComputeVirtuals(d.Points2Refrac)
	return d, nil
}

// projectPlain projects a camera-frame point through the intrinsics only,
// ignoring the refractive interface. Points at or behind the camera plane
// yield a NaN pixel.
func projectPlain(cam *camera.Camera, point r3.Vec) geom.Point2 {
	if point.Z <= 0 {
		return geom.NaNPoint2()
	}
	return cam.ImgFromCam(geom.Point2{X: point.X / point.Z, Y: point.Y / point.Z})
}

func insideImage(cam *camera.Camera, p geom.Point2) bool {
	return p.IsFinite() &&
		p.X >= 0 && p.X < float64(cam.Width) &&
		p.Y >= 0 && p.Y < float64(cam.Height)
}

func perturb(p geom.Point2, sigma float64, rng *rand.Rand) geom.Point2 {
	return geom.Point2{
		X: p.X + rng.NormFloat64()*sigma,
		Y: p.Y + rng.NormFloat64()*sigma,
	}
}
