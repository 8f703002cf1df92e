// Package twoview estimates the relative pose between two views from noisy
// correspondences. It offers a calibrated path for single-center cameras
// and a generalized path for refractive cameras, where each observation
// carries its own virtual pinhole camera and a rigid transform into the
// real camera frame.
//
// Estimation failures (too few inliers, degenerate configurations) are
// reported as a low or zero inlier count alongside a best-effort pose,
// never as an error: the evaluation harness treats them as ordinary data
// points.
package twoview

import (
	"math/rand"

	"github.com/MDSKiel/colmap-underwater/internal/geom"
)

// FeatureMatch pairs a point index in view 1 with a point index in view 2.
type FeatureMatch struct {
	Idx1 int
	Idx2 int
}

// Geometry is the result of a relative pose estimation: the transform
// mapping view-1 camera coordinates into view-2 camera coordinates, and
// the correspondences consistent with it. For the calibrated path the
// translation is unit length (scale is unobservable); the refractive path
// reports a metrically scaled translation.
type Geometry struct {
	Cam2FromCam1  geom.Rigid3d
	InlierMatches []FeatureMatch
}

// Options control the robust estimation loop.
type Options struct {
	// MaxError is the RANSAC inlier threshold in pixels (Sampson error).
	MaxError float64
	// Confidence is the target probability of sampling an outlier-free
	// minimal set; it drives the adaptive iteration count.
	Confidence float64
	// MaxIterations caps the RANSAC loop.
	MaxIterations int
	// MinNumInliers is the smallest inlier support considered a valid
	// estimate; below it the zero-count best-effort result is returned.
	MinNumInliers int
	// Rng drives hypothesis sampling. Callers pass an explicitly seeded
	// generator for reproducibility; nil falls back to a fresh one.
	Rng *rand.Rand
}

// DefaultOptions mirror the harness defaults: 4 px threshold, adaptive
// termination at 0.9999 confidence.
func DefaultOptions() Options {
	return Options{
		MaxError:      4.0,
		Confidence:    0.9999,
		MaxIterations: 1000,
		MinNumInliers: 15,
	}
}

func (o Options) rng() *rand.Rand {
	if o.Rng != nil {
		return o.Rng
	}
	return rand.New(rand.NewSource(rand.Int63()))
}

// sampleDistinct draws k distinct indices from [0, n).
func sampleDistinct(rng *rand.Rand, k, n int) []int {
	picked := make(map[int]bool, k)
	idxs := make([]int, 0, k)
	for len(idxs) < k {
		i := rng.Intn(n)
		if picked[i] {
			continue
		}
		picked[i] = true
		idxs = append(idxs, i)
	}
	return idxs
}

// adaptiveIterations returns the number of RANSAC iterations needed to hit
// the requested confidence given the current inlier ratio, capped by
// maxIter.
func adaptiveIterations(confidence, inlierRatio float64, sampleSize, maxIter int) int {
	if inlierRatio <= 0 {
		return maxIter
	}
	if inlierRatio >= 1 {
		return 1
	}
	w := 1.0
	for iter := 0; iter < sampleSize; iter++ {
		w *= inlierRatio
	}
	if w == 1 {
		return 1
	}
	num := logProb(1 - confidence)
	den := logProb(1 - w)
	if den >= 0 {
		return maxIter
	}
	it := int(num/den) + 1
	if it > maxIter || it < 0 {
		return maxIter
	}
	return it
}
