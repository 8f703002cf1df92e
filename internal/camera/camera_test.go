package camera

import (
	"math"
	"testing"

	"github.com/MDSKiel/colmap-underwater/internal/geom"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"
)

// flatPortCamera returns the pinhole + flat port configuration used
// throughout the tests: glass port slightly tilted off +Z, air/glass/water
// media.
func flatPortCamera(t *testing.T) Camera {
	t.Helper()
	cam, err := InitializeWithName("SIMPLE_PINHOLE", 340.514, 1113, 835)
	require.NoError(t, err)
	require.NoError(t, cam.SetParams([]float64{340.514, 556.5, 417.5}))
	require.NoError(t, cam.SetRefracModelFromName("FLATPORT"))
	normal := r3.Unit(r3.Vec{X: 0.03, Y: -0.02, Z: 1})
	require.NoError(t, cam.SetRefracParams([]float64{
		normal.X, normal.Y, normal.Z, 0.05, 0.02, 1.0, 1.52, 1.334,
	}))
	return cam
}

func domePortCamera(t *testing.T) Camera {
	t.Helper()
	cam, err := InitializeWithName("PINHOLE", 1300.9, 2048, 1536)
	require.NoError(t, err)
	require.NoError(t, cam.SetRefracModelFromName("DOMEPORT"))
	require.NoError(t, cam.SetRefracParams([]float64{
		0.002, -0.001, 0.016, 0.05, 0.007, 1.0, 1.52, 1.334,
	}))
	return cam
}

func TestModelSelection(t *testing.T) {
	t.Parallel()

	t.Run("unknown model name is a configuration error", func(t *testing.T) {
		t.Parallel()
		c := New()
		assert.Error(t, c.SetModelFromName("NO_SUCH_MODEL"))
		assert.Error(t, c.SetRefracModelFromName("CURVEDPORT"))
	})

	t.Run("selection resizes and zero-fills parameters", func(t *testing.T) {
		t.Parallel()
		c := New()
		require.NoError(t, c.SetModelFromName("PINHOLE"))
		assert.Equal(t, []float64{0, 0, 0, 0}, c.Params)

		require.NoError(t, c.SetModelFromName("SIMPLE_RADIAL"))
		assert.Len(t, c.Params, 4)

		require.NoError(t, c.SetRefracModelFromName("FLATPORT"))
		assert.Len(t, c.RefracParams, 8)
		assert.True(t, c.IsRefractive())
	})
}

func TestSetParamsValidation(t *testing.T) {
	t.Parallel()

	c := New()
	require.NoError(t, c.SetModelFromName("SIMPLE_PINHOLE"))
	require.NoError(t, c.SetParams([]float64{500, 320, 240}))

	t.Run("wrong length leaves state unchanged", func(t *testing.T) {
		assert.Error(t, c.SetParams([]float64{500, 320}))
		assert.Equal(t, []float64{500, 320, 240}, c.Params)
	})

	t.Run("non-positive focal length is rejected", func(t *testing.T) {
		assert.Error(t, c.SetParams([]float64{-1, 320, 240}))
		assert.Equal(t, []float64{500, 320, 240}, c.Params)
	})

	t.Run("refraction params validated against variant", func(t *testing.T) {
		require.NoError(t, c.SetRefracModelFromName("FLATPORT"))
		// Normal is far from unit length.
		assert.Error(t, c.SetRefracParams([]float64{1, 1, 1, 0.05, 0.02, 1, 1.52, 1.334}))
		assert.False(t, c.VerifyRefracParams())
		require.NoError(t, c.SetRefracParams([]float64{0, 0, 1, 0.05, 0.02, 1, 1.52, 1.334}))
		assert.True(t, c.VerifyRefracParams())
	})
}

func TestParamsCSVRoundTrip(t *testing.T) {
	t.Parallel()

	c := New()
	require.NoError(t, c.SetModelFromName("PINHOLE"))
	require.NoError(t, c.SetParamsFromString("1300.9, 1301.1, 1024, 768"))
	assert.Equal(t, []float64{1300.9, 1301.1, 1024, 768}, c.Params)

	c2 := New()
	require.NoError(t, c2.SetModelFromName("PINHOLE"))
	require.NoError(t, c2.SetParamsFromString(c.ParamsToString()))
	assert.Equal(t, c.Params, c2.Params)

	assert.Error(t, c.SetParamsFromString("1300.9, abc, 1024, 768"))
}

func TestProjectionRoundTripPlain(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name   string
		model  string
		params []float64
	}{
		{"simple pinhole", "SIMPLE_PINHOLE", []float64{340.514, 556.5, 417.5}},
		{"pinhole", "PINHOLE", []float64{1300.9, 1299.2, 1024, 768}},
		{"simple radial", "SIMPLE_RADIAL", []float64{650, 512, 384, 0.08}},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			c := New()
			require.NoError(t, c.SetModelFromName(tc.model))
			require.NoError(t, c.SetParams(tc.params))

			for _, px := range []geom.Point2{
				{X: 100, Y: 100}, {X: 556.5, Y: 417.5}, {X: 900.25, Y: 30.75},
			} {
				back := c.ImgFromCam(c.CamFromImg(px))
				assert.InDelta(t, px.X, back.X, 1e-8)
				assert.InDelta(t, px.Y, back.Y, 1e-8)
			}
		})
	}
}

func TestRefractionDisabledMatchesPlainPath(t *testing.T) {
	t.Parallel()

	c, err := InitializeWithName("SIMPLE_PINHOLE", 340.514, 1113, 835)
	require.NoError(t, err)

	for _, px := range []geom.Point2{{X: 10, Y: 20}, {X: 556.5, Y: 417.5}, {X: 1100, Y: 800}} {
		ray := c.CamFromImgRefrac(px)
		require.True(t, ray.IsFinite())
		assert.InDelta(t, 0, r3.Norm(ray.Ori), 1e-12)

		n := c.CamFromImg(px)
		dir := r3.Unit(r3.Vec{X: n.X, Y: n.Y, Z: 1})
		assert.InDelta(t, 1, r3.Dot(ray.Dir, dir), 1e-9)

		point := ray.At(3.7)
		refrac := c.ImgFromCamRefrac(point)
		plain := c.ImgFromCam(geom.Point2{X: point.X / point.Z, Y: point.Y / point.Z})
		assert.InDelta(t, plain.X, refrac.X, 1e-9)
		assert.InDelta(t, plain.Y, refrac.Y, 1e-9)
	}
}

func TestFlatPortRoundTrip(t *testing.T) {
	t.Parallel()

	cam := flatPortCamera(t)
	pixels := []geom.Point2{
		{X: 50.5, Y: 60.5},
		{X: 556.5, Y: 417.5},
		{X: 1000.25, Y: 700.75},
		{X: 12, Y: 820},
	}
	for _, px := range pixels {
		for _, depth := range []float64{0.5, 2.0, 9.5} {
			ray := cam.CamFromImgRefrac(px)
			require.True(t, ray.IsFinite(), "pixel %+v should have a refracted ray", px)

			back := cam.ImgFromCamRefrac(ray.At(depth))
			require.True(t, back.IsFinite())
			assert.InDelta(t, px.X, back.X, 1e-6)
			assert.InDelta(t, px.Y, back.Y, 1e-6)
		}
	}
}

func TestDomePortRoundTrip(t *testing.T) {
	t.Parallel()

	cam := domePortCamera(t)
	for _, px := range []geom.Point2{{X: 400, Y: 300}, {X: 1024, Y: 768}, {X: 1800, Y: 1400}} {
		ray := cam.CamFromImgRefrac(px)
		require.True(t, ray.IsFinite())

		back := cam.ImgFromCamRefrac(ray.At(1.5))
		require.True(t, back.IsFinite())
		assert.InDelta(t, px.X, back.X, 1e-6)
		assert.InDelta(t, px.Y, back.Y, 1e-6)
	}
}

func TestCenteredDomePortKeepsCentralRays(t *testing.T) {
	t.Parallel()

	cam, err := InitializeWithName("PINHOLE", 1300.9, 2048, 1536)
	require.NoError(t, err)
	require.NoError(t, cam.SetRefracModelFromName("DOMEPORT"))
	require.NoError(t, cam.SetRefracParams([]float64{
		0, 0, 0, 0.05, 0.007, 1.0, 1.52, 1.334,
	}))

	// With the projection center at the dome center every ray hits the
	// glass at normal incidence and passes unbent.
	for _, px := range []geom.Point2{{X: 100, Y: 1400}, {X: 1024, Y: 768}, {X: 2000, Y: 80}} {
		n := cam.CamFromImg(px)
		dir := r3.Unit(r3.Vec{X: n.X, Y: n.Y, Z: 1})
		ray := cam.CamFromImgRefrac(px)
		require.True(t, ray.IsFinite())
		assert.InDelta(t, 1, r3.Dot(ray.Dir, dir), 1e-12)
		// Origin lies on the same line.
		assert.InDelta(t, r3.Norm(ray.Ori), r3.Dot(ray.Ori, dir), 1e-12)
	}
}

func TestImgFromCamRefracNoSolution(t *testing.T) {
	t.Parallel()

	cam := flatPortCamera(t)

	// A point behind the camera has no refracted projection.
	p := cam.ImgFromCamRefrac(r3.Vec{X: 0.1, Y: 0.1, Z: -2})
	assert.False(t, p.IsFinite())

	// A point almost parallel to the port plane lies beyond the critical
	// angle for the water-glass transition.
	p = cam.ImgFromCamRefrac(r3.Vec{X: 500, Y: 0, Z: 0.08})
	assert.False(t, p.IsFinite())
}

func TestMeanFocalLengthAndCalibrationMatrix(t *testing.T) {
	t.Parallel()

	c := New()
	require.NoError(t, c.SetModelFromName("PINHOLE"))
	require.NoError(t, c.SetParams([]float64{1000, 1100, 512, 384}))
	assert.InDelta(t, 1050, c.MeanFocalLength(), 1e-12)

	k := c.CalibrationMatrix()
	assert.Equal(t, 1000.0, k.At(0, 0))
	assert.Equal(t, 1100.0, k.At(1, 1))
	assert.Equal(t, 512.0, k.At(0, 2))
	assert.Equal(t, 384.0, k.At(1, 2))
	assert.Equal(t, 1.0, k.At(2, 2))
}

func TestRescale(t *testing.T) {
	t.Parallel()

	t.Run("uniform scale adjusts intrinsics", func(t *testing.T) {
		t.Parallel()
		c, err := InitializeWithName("SIMPLE_PINHOLE", 600, 800, 600)
		require.NoError(t, err)
		require.NoError(t, c.Rescale(0.5))
		assert.Equal(t, 400, c.Width)
		assert.Equal(t, 300, c.Height)
		assert.InDelta(t, 300, c.MeanFocalLength(), 1e-12)
		assert.InDelta(t, 200, c.PrincipalPointX(), 1e-12)
		assert.InDelta(t, 150, c.PrincipalPointY(), 1e-12)
	})

	t.Run("refraction parameters stay metric", func(t *testing.T) {
		t.Parallel()
		cam := flatPortCamera(t)
		before := append([]float64(nil), cam.RefracParams...)
		require.NoError(t, cam.Rescale(2))
		assert.Equal(t, before, cam.RefracParams)
	})

	t.Run("invalid factor rejected", func(t *testing.T) {
		t.Parallel()
		cam := flatPortCamera(t)
		assert.Error(t, cam.Rescale(0))
		assert.Error(t, cam.RescaleTo(-10, 20))
	})
}

func TestHasBogusParams(t *testing.T) {
	t.Parallel()

	c, err := InitializeWithName("SIMPLE_RADIAL", 600, 800, 600)
	require.NoError(t, err)
	assert.False(t, c.HasBogusParams(0.1, 10, 1))

	require.NoError(t, c.SetParams([]float64{600, 400, 300, 5}))
	assert.True(t, c.HasBogusParams(0.1, 10, 1))
	assert.False(t, c.IsUndistorted())

	require.NoError(t, c.SetParams([]float64{30000, 400, 300, 0}))
	assert.True(t, c.HasBogusParams(0.1, 10, 1))
}

func TestFlatPortRefractionBendsTowardNormal(t *testing.T) {
	t.Parallel()

	cam := flatPortCamera(t)
	n := cam.RefractionAxis()

	// Entering a denser medium bends rays toward the interface normal:
	// the refracted direction makes a smaller angle with the axis.
	px := geom.Point2{X: 80, Y: 790}
	in := cam.CamFromImg(px)
	d0 := r3.Unit(r3.Vec{X: in.X, Y: in.Y, Z: 1})
	ray := cam.CamFromImgRefrac(px)
	require.True(t, ray.IsFinite())

	cosBefore := r3.Dot(d0, n)
	cosAfter := r3.Dot(r3.Unit(ray.Dir), n)
	assert.Greater(t, cosAfter, cosBefore)

	// Snell across the whole port: n_air*sin(i) == n_water*sin(o).
	sinBefore := math.Sqrt(1 - cosBefore*cosBefore)
	sinAfter := math.Sqrt(1 - cosAfter*cosAfter)
	assert.InDelta(t, 1.0*sinBefore, 1.334*sinAfter, 1e-9)
}
