package camera

import (
	"github.com/MDSKiel/colmap-underwater/internal/geom"
	"gonum.org/v1/gonum/spatial/r3"
)

// Virtual cameras make refractive observations digestible for
// single-center two-view solvers. A refracted ray does not pass through
// the projection center, so every observed pixel gets its own ephemeral
// pinhole camera, centered where its ray appears to originate, together
// with a rigid transform into a canonical orientation shared by all
// virtual cameras of the same physical camera.

// VirtualFromRealRotation returns the rotation aligning the camera's
// refraction axis with the canonical +Z axis. It depends only on the
// camera configuration, not on any observed pixel.
func (c *Camera) VirtualFromRealRotation() r3.Rotation {
	return geom.RotationBetween(c.RefractionAxis(), r3.Vec{Z: 1})
}

// VirtualCameraCenter returns the center of the virtual camera for a
// refracted ray: the point where the line along the refraction axis
// through the origin meets the backward extension of the ray. The two
// lines intersect exactly for an axially symmetric interface; numerical
// noise and decentered configurations are absorbed by the tolerant
// closest-approach intersection.
func (c *Camera) VirtualCameraCenter(rayRefrac geom.Ray) r3.Vec {
	return geom.IntersectLines(
		r3.Vec{}, c.RefractionAxis(),
		rayRefrac.Ori, r3.Scale(-1, rayRefrac.Dir),
	)
}

// VirtualCamera builds the minimal pinhole camera reproducing one
// observation: focal length equal to the real camera's mean focal length
// and a principal point solved so the given pixel projects exactly to the
// given normalized camera-plane direction.
func (c *Camera) VirtualCamera(imagePoint, camPoint geom.Point2) Camera {
	f := c.MeanFocalLength()
	virtual := New()
	virtual.ModelID = ModelSimplePinhole
	virtual.Width = c.Width
	virtual.Height = c.Height
	virtual.Params = []float64{
		f,
		imagePoint.X - f*camPoint.X,
		imagePoint.Y - f*camPoint.Y,
	}
	return virtual
}

// ComputeVirtual synthesizes the virtual camera and the virtual-from-real
// transform for one observed pixel. It is a pure function of the camera
// configuration and the pixel; results are recomputed per call and never
// cached.
func (c *Camera) ComputeVirtual(point2D geom.Point2) (Camera, geom.Rigid3d) {
	rotation := c.VirtualFromRealRotation()

	rayRefrac := c.CamFromImgRefrac(point2D)
	center := c.VirtualCameraCenter(rayRefrac)
	virtualFromReal := geom.NewRigid(rotation, rotation.Rotate(r3.Scale(-1, center)))

	dir := rotation.Rotate(rayRefrac.Dir)
	camPoint := geom.Point2{X: dir.X / dir.Z, Y: dir.Y / dir.Z}
	return c.VirtualCamera(point2D, camPoint), virtualFromReal
}

// ComputeVirtuals applies ComputeVirtual to each pixel in order, returning
// parallel slices with one virtual camera and transform per input point.
func (c *Camera) ComputeVirtuals(points2D []geom.Point2) ([]Camera, []geom.Rigid3d) {
	virtualCameras := make([]Camera, 0, len(points2D))
	virtualFromReals := make([]geom.Rigid3d, 0, len(points2D))
	for _, p := range points2D {
		virtualCamera, virtualFromReal := c.ComputeVirtual(p)
		virtualCameras = append(virtualCameras, virtualCamera)
		virtualFromReals = append(virtualFromReals, virtualFromReal)
	}
	return virtualCameras, virtualFromReals
}
