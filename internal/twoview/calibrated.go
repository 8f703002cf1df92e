package twoview

import (
	"github.com/MDSKiel/colmap-underwater/internal/camera"
	"github.com/MDSKiel/colmap-underwater/internal/geom"
	"gonum.org/v1/gonum/mat"
)

const essentialSampleSize = 8

// EstimateCalibrated recovers the relative pose between two calibrated
// single-center views with an essential-matrix RANSAC over the Sampson
// error. Refraction is ignored; the points are plain pixel observations.
// The returned translation is unit length.
func EstimateCalibrated(
	cam1 *camera.Camera, points1 []geom.Point2,
	cam2 *camera.Camera, points2 []geom.Point2,
	matches []FeatureMatch, opts Options,
) Geometry {
	if len(matches) < essentialSampleSize {
		return Geometry{Cam2FromCam1: geom.IdentityRigid()}
	}

	// Work on the normalized camera plane; the pixel threshold moves
	// there through the focal length.
	x1 := make([]geom.Point2, len(matches))
	x2 := make([]geom.Point2, len(matches))
	for i, m := range matches {
		x1[i] = cam1.CamFromImg(points1[m.Idx1])
		x2[i] = cam2.CamFromImg(points2[m.Idx2])
	}
	threshold := 0.5 * (cam1.CamFromImgThreshold(opts.MaxError) + cam2.CamFromImgThreshold(opts.MaxError))
	thresholdSq := threshold * threshold

	rng := opts.rng()
	var bestE *mat.Dense
	bestInliers := 0

	maxIter := opts.MaxIterations
	for iter := 0; iter < maxIter; iter++ {
		sample := sampleDistinct(rng, essentialSampleSize, len(matches))
		s1 := make([]geom.Point2, essentialSampleSize)
		s2 := make([]geom.Point2, essentialSampleSize)
		for j, idx := range sample {
			s1[j] = x1[idx]
			s2[j] = x2[idx]
		}

		e, ok := essentialFromMatches(s1, s2)
		if !ok {
			continue
		}
		inliers := countInliers(e, x1, x2, thresholdSq)
		if inliers > bestInliers {
			bestInliers = inliers
			bestE = e
			maxIter = min(maxIter, iter+1+adaptiveIterations(
				opts.Confidence, float64(inliers)/float64(len(matches)),
				essentialSampleSize, opts.MaxIterations))
		}
	}

	if bestE == nil || bestInliers < opts.MinNumInliers {
		return Geometry{Cam2FromCam1: geom.IdentityRigid()}
	}

	// Refit on the full inlier set, then reclassify once against the
	// polished model.
	inlierIdx := inlierIndices(bestE, x1, x2, thresholdSq)
	refit, ok := essentialFromMatches(gather(x1, inlierIdx), gather(x2, inlierIdx))
	if ok && countInliers(refit, x1, x2, thresholdSq) >= bestInliers {
		bestE = refit
		inlierIdx = inlierIndices(bestE, x1, x2, thresholdSq)
	}

	pose, ok := decomposeEssential(bestE, gather(x1, inlierIdx), gather(x2, inlierIdx))
	if !ok {
		return Geometry{Cam2FromCam1: geom.IdentityRigid()}
	}

	inlierMatches := make([]FeatureMatch, len(inlierIdx))
	for i, idx := range inlierIdx {
		inlierMatches[i] = matches[idx]
	}
	return Geometry{Cam2FromCam1: pose, InlierMatches: inlierMatches}
}

func countInliers(e *mat.Dense, x1, x2 []geom.Point2, thresholdSq float64) int {
	n := 0
	for i := range x1 {
		if sampsonErrorSq(e, x1[i], x2[i]) < thresholdSq {
			n++
		}
	}
	return n
}

func inlierIndices(e *mat.Dense, x1, x2 []geom.Point2, thresholdSq float64) []int {
	var idxs []int
	for i := range x1 {
		if sampsonErrorSq(e, x1[i], x2[i]) < thresholdSq {
			idxs = append(idxs, i)
		}
	}
	return idxs
}

func gather(points []geom.Point2, idxs []int) []geom.Point2 {
	out := make([]geom.Point2, len(idxs))
	for i, idx := range idxs {
		out[i] = points[idx]
	}
	return out
}
