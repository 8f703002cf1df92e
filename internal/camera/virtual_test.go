package camera

import (
	"testing"

	"github.com/MDSKiel/colmap-underwater/internal/geom"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"
)

func TestVirtualFromRealRotationAlignsAxis(t *testing.T) {
	t.Parallel()

	normals := []r3.Vec{
		{Z: 1},
		{X: 0.3, Y: -0.2, Z: 0.93},
		{X: -0.25, Y: 0.25, Z: 1.1},
		{X: 0.05, Y: 0.3, Z: 0.7},
	}
	for _, n := range normals {
		n := r3.Unit(n)
		cam, err := InitializeWithName("SIMPLE_PINHOLE", 340.514, 1113, 835)
		require.NoError(t, err)
		require.NoError(t, cam.SetRefracModelFromName("FLATPORT"))
		require.NoError(t, cam.SetRefracParams([]float64{
			n.X, n.Y, n.Z, 0.05, 0.02, 1.0, 1.52, 1.334,
		}))

		q := cam.VirtualFromRealRotation()
		mapped := q.Rotate(cam.RefractionAxis())
		assert.InDelta(t, 1, r3.Dot(mapped, r3.Vec{Z: 1}), 1e-12,
			"axis %+v should map onto +Z", n)
	}
}

func TestVirtualCameraReproducesObservation(t *testing.T) {
	t.Parallel()

	cam := flatPortCamera(t)
	for _, px := range []geom.Point2{{X: 100, Y: 120}, {X: 556.5, Y: 417.5}, {X: 1050, Y: 790}} {
		virtual, virtualFromReal := cam.ComputeVirtual(px)

		// The virtual camera is a minimal pinhole copying the image size.
		assert.Equal(t, ModelSimplePinhole, virtual.ModelID)
		assert.Equal(t, cam.Width, virtual.Width)
		assert.Equal(t, cam.Height, virtual.Height)
		assert.InDelta(t, cam.MeanFocalLength(), virtual.MeanFocalLength(), 1e-12)

		// The virtual camera center maps to the virtual frame origin.
		ray := cam.CamFromImgRefrac(px)
		center := cam.VirtualCameraCenter(ray)
		assert.InDelta(t, 0, r3.Norm(virtualFromReal.Apply(center)), 1e-9)

		// Unprojecting the pixel in the virtual camera and mapping the ray
		// back into the real frame recovers the refracted ray's line.
		n := virtual.CamFromImg(px)
		virtRay := geom.Ray{Dir: r3.Unit(r3.Vec{X: n.X, Y: n.Y, Z: 1})}
		realRay := virtualFromReal.Inverse().ApplyRay(virtRay)
		assert.InDelta(t, 1, r3.Dot(realRay.Dir, r3.Unit(ray.Dir)), 1e-9)

		// Ray origins agree up to movement along the shared direction.
		offset := r3.Sub(ray.Ori, realRay.Ori)
		perp := r3.Sub(offset, r3.Scale(r3.Dot(offset, realRay.Dir), realRay.Dir))
		assert.InDelta(t, 0, r3.Norm(perp), 1e-9)
	}
}

func TestComputeVirtualIsDeterministic(t *testing.T) {
	t.Parallel()

	cam := flatPortCamera(t)
	px := geom.Point2{X: 321.25, Y: 654.5}

	vc1, vfr1 := cam.ComputeVirtual(px)
	vc2, vfr2 := cam.ComputeVirtual(px)

	assert.Equal(t, vc1.Params, vc2.Params)
	assert.Equal(t, vfr1, vfr2)
}

func TestComputeVirtualsParallelSlices(t *testing.T) {
	t.Parallel()

	cam := flatPortCamera(t)
	points := []geom.Point2{{X: 10, Y: 10}, {X: 500, Y: 400}, {X: 1100, Y: 820}}

	cams, transforms := cam.ComputeVirtuals(points)
	require.Len(t, cams, len(points))
	require.Len(t, transforms, len(points))

	// Order-preserving: each entry matches an independent per-point call.
	for i, p := range points {
		wantCam, wantTransform := cam.ComputeVirtual(p)
		assert.Equal(t, wantCam.Params, cams[i].Params)
		assert.Equal(t, wantTransform, transforms[i])
	}
}

func TestVirtualCameraCenterOnAxis(t *testing.T) {
	t.Parallel()

	cam := flatPortCamera(t)
	axis := cam.RefractionAxis()

	ray := cam.CamFromImgRefrac(geom.Point2{X: 200, Y: 300})
	center := cam.VirtualCameraCenter(ray)
	require.True(t, geom.VecIsFinite(center))

	// The center lies on the refraction axis through the origin.
	perp := r3.Sub(center, r3.Scale(r3.Dot(center, axis), axis))
	assert.InDelta(t, 0, r3.Norm(perp), 1e-9)
}
