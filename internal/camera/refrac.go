package camera

import (
	"fmt"
	"math"

	"github.com/MDSKiel/colmap-underwater/internal/geom"
	"gonum.org/v1/gonum/spatial/r3"
)

// RefracModelID identifies a refractive interface model. Like ModelID, the
// variant set is closed and dispatched by tag.
type RefracModelID int

// Refractive interface variants.
const (
	// RefracFlatPort models a planar port:
	// nx, ny, nz (unit interface normal), distance, thickness,
	// n_air, n_glass, n_water.
	RefracFlatPort RefracModelID = iota
	// RefracDomePort models a spherical port:
	// cx, cy, cz (decentering from camera to dome center), radius,
	// thickness, n_air, n_glass, n_water.
	RefracDomePort
)

// RefracModelInvalid marks a camera without a refractive interface.
const RefracModelInvalid RefracModelID = -1

type refracModelSpec struct {
	name      string
	numParams int
}

var refracModelSpecs = map[RefracModelID]refracModelSpec{
	RefracFlatPort: {name: "FLATPORT", numParams: 8},
	RefracDomePort: {name: "DOMEPORT", numParams: 8},
}

// RefracModelIDFromName resolves a refraction model name. Unknown names are
// a configuration error.
func RefracModelIDFromName(name string) (RefracModelID, error) {
	for id, spec := range refracModelSpecs {
		if spec.name == name {
			return id, nil
		}
	}
	return RefracModelInvalid, fmt.Errorf("unknown refraction model name %q", name)
}

// RefracModelName returns the canonical name of a refraction model, or ""
// for an unselected model.
func RefracModelName(id RefracModelID) string {
	return refracModelSpecs[id].name
}

// RefracModelNumParams returns the canonical parameter count of a
// refraction model.
func RefracModelNumParams(id RefracModelID) int {
	return refracModelSpecs[id].numParams
}

// verifyRefracParams checks vector length and physical plausibility of
// refraction parameters.
func verifyRefracParams(id RefracModelID, params []float64) bool {
	spec, ok := refracModelSpecs[id]
	if !ok || len(params) != spec.numParams {
		return false
	}
	for _, v := range params {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	switch id {
	case RefracFlatPort:
		n := r3.Vec{X: params[0], Y: params[1], Z: params[2]}
		if math.Abs(r3.Norm(n)-1) > 1e-6 {
			return false
		}
		if params[3] <= 0 || params[4] < 0 {
			return false
		}
	case RefracDomePort:
		c := r3.Vec{X: params[0], Y: params[1], Z: params[2]}
		radius, thickness := params[3], params[4]
		if radius <= 0 || thickness < 0 {
			return false
		}
		// The projection center must sit inside the dome.
		if r3.Norm(c) >= radius {
			return false
		}
	}
	// Media refractive indices.
	return params[5] > 0 && params[6] > 0 && params[7] > 0
}

// refractionAxis returns the interface normal of the refraction model in
// the camera frame. For a centered dome port refraction is radially
// symmetric and the axis degenerates to +Z.
func refractionAxis(id RefracModelID, params []float64) r3.Vec {
	switch id {
	case RefracFlatPort:
		return r3.Unit(r3.Vec{X: params[0], Y: params[1], Z: params[2]})
	case RefracDomePort:
		c := r3.Vec{X: params[0], Y: params[1], Z: params[2]}
		if r3.Norm(c) < 1e-12 {
			return r3.Vec{Z: 1}
		}
		return r3.Unit(c)
	}
	return geom.NaNVec()
}

// snellRefract bends unit direction d crossing an interface with unit
// normal n oriented along the propagation direction (r3.Dot(d, n) > 0),
// going from refractive index n1 into n2. ok is false on total internal
// reflection.
func snellRefract(d, n r3.Vec, n1, n2 float64) (r3.Vec, bool) {
	r := n1 / n2
	cosI := r3.Dot(d, n)
	sin2T := r * r * (1 - cosI*cosI)
	if sin2T > 1 {
		return r3.Vec{}, false
	}
	cosT := math.Sqrt(1 - sin2T)
	return r3.Add(r3.Scale(r, d), r3.Scale(cosT-r*cosI, n)), true
}

// refractRay traces a unit camera-frame direction from the projection
// center through the refractive interface and returns the real-world ray
// leaving the port. A NaN ray signals that no physical solution exists
// (grazing incidence or total internal reflection).
func refractRay(id RefracModelID, params []float64, dir r3.Vec) geom.Ray {
	switch id {
	case RefracFlatPort:
		return flatPortTrace(params, dir)
	case RefracDomePort:
		return domePortTrace(params, dir)
	}
	return geom.NaNRay()
}

func flatPortTrace(params []float64, dir r3.Vec) geom.Ray {
	n := r3.Unit(r3.Vec{X: params[0], Y: params[1], Z: params[2]})
	dist, thickness := params[3], params[4]
	nAir, nGlass, nWater := params[5], params[6], params[7]

	d0 := r3.Unit(dir)
	cosPlane := r3.Dot(d0, n)
	if cosPlane <= 1e-12 {
		return geom.NaNRay()
	}

	// Inner glass surface.
	p1 := r3.Scale(dist/cosPlane, d0)
	d1, ok := snellRefract(d0, n, nAir, nGlass)
	if !ok {
		return geom.NaNRay()
	}

	// Outer glass surface.
	cosPlane = r3.Dot(d1, n)
	if cosPlane <= 1e-12 {
		return geom.NaNRay()
	}
	p2 := r3.Add(p1, r3.Scale((dist+thickness-r3.Dot(p1, n))/cosPlane, d1))
	d2, ok := snellRefract(d1, n, nGlass, nWater)
	if !ok {
		return geom.NaNRay()
	}

	return geom.Ray{Ori: p2, Dir: d2}
}

func domePortTrace(params []float64, dir r3.Vec) geom.Ray {
	center := r3.Vec{X: params[0], Y: params[1], Z: params[2]}
	radius, thickness := params[3], params[4]
	nAir, nGlass, nWater := params[5], params[6], params[7]

	d0 := r3.Unit(dir)

	// Inner dome surface.
	p1, ok := sphereExit(r3.Vec{}, d0, center, radius)
	if !ok {
		return geom.NaNRay()
	}
	d1, ok := snellRefract(d0, r3.Unit(r3.Sub(p1, center)), nAir, nGlass)
	if !ok {
		return geom.NaNRay()
	}

	// Outer dome surface.
	p2, ok := sphereExit(p1, d1, center, radius+thickness)
	if !ok {
		return geom.NaNRay()
	}
	d2, ok := snellRefract(d1, r3.Unit(r3.Sub(p2, center)), nGlass, nWater)
	if !ok {
		return geom.NaNRay()
	}

	return geom.Ray{Ori: p2, Dir: d2}
}

// sphereExit returns the exit intersection of the ray (ori, unit dir) with
// the sphere of the given center and radius, for rays starting inside the
// sphere.
func sphereExit(ori, dir, center r3.Vec, radius float64) (r3.Vec, bool) {
	oc := r3.Sub(ori, center)
	b := r3.Dot(dir, oc)
	disc := b*b - (r3.Dot(oc, oc) - radius*radius)
	if disc < 0 {
		return r3.Vec{}, false
	}
	t := -b + math.Sqrt(disc)
	if t <= 0 {
		return r3.Vec{}, false
	}
	return r3.Add(ori, r3.Scale(t, dir)), true
}
