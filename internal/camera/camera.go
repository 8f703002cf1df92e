package camera

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/MDSKiel/colmap-underwater/internal/geom"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"
)

// forwardProjectMaxIter bounds the Gauss-Newton iteration inverting the
// refractive forward projection.
const forwardProjectMaxIter = 100

// Camera holds an intrinsic model selection with its parameter vector and
// an optional refractive interface model with its own parameters. The
// parameter vectors always have the canonical length of the selected
// variant; selecting a variant resets them to zero. Cameras are mutated
// only through setters at configuration time and are read-only during
// estimation.
type Camera struct {
	ID uint32

	ModelID ModelID
	Params  []float64

	Width  int
	Height int

	// PriorFocalLength marks the focal length as a trusted calibration
	// prior rather than an initialization guess.
	PriorFocalLength bool

	RefracModelID RefracModelID
	RefracParams  []float64
}

// New returns an unconfigured camera with no selected models.
func New() Camera {
	return Camera{ModelID: ModelInvalid, RefracModelID: RefracModelInvalid}
}

// InitializeWithName returns a camera with the named intrinsic model, the
// given focal length and a centered principal point.
func InitializeWithName(modelName string, focalLength float64, width, height int) (Camera, error) {
	c := New()
	if err := c.SetModelFromName(modelName); err != nil {
		return Camera{}, err
	}
	c.Width = width
	c.Height = height
	c.Params = initializeModelParams(c.ModelID, focalLength, width, height)
	return c, nil
}

// ModelName returns the name of the selected intrinsic model.
func (c *Camera) ModelName() string { return ModelName(c.ModelID) }

// RefracModelName returns the name of the selected refraction model.
func (c *Camera) RefracModelName() string { return RefracModelName(c.RefracModelID) }

// SetModelFromName selects the intrinsic model by name. The parameter
// vector is resized to the variant's canonical length and zero-filled.
func (c *Camera) SetModelFromName(name string) error {
	id, err := ModelIDFromName(name)
	if err != nil {
		return err
	}
	c.ModelID = id
	c.Params = make([]float64, ModelNumParams(id))
	return nil
}

// SetRefracModelFromName selects the refraction model by name. The
// refraction parameter vector is resized to the variant's canonical length
// and zero-filled.
func (c *Camera) SetRefracModelFromName(name string) error {
	id, err := RefracModelIDFromName(name)
	if err != nil {
		return err
	}
	c.RefracModelID = id
	c.RefracParams = make([]float64, RefracModelNumParams(id))
	return nil
}

// IsRefractive reports whether a refraction model is selected.
func (c *Camera) IsRefractive() bool {
	return c.RefracModelID != RefracModelInvalid
}

// SetParams assigns the intrinsic parameter vector. The assignment is
// all-or-nothing: on validation failure the camera is left unchanged.
func (c *Camera) SetParams(params []float64) error {
	if !verifyModelParams(c.ModelID, params) {
		return fmt.Errorf("invalid parameters for camera model %s: %v", c.ModelName(), params)
	}
	c.Params = append([]float64(nil), params...)
	return nil
}

// SetRefracParams assigns the refraction parameter vector. The assignment
// is all-or-nothing: on validation failure the camera is left unchanged.
func (c *Camera) SetRefracParams(params []float64) error {
	if !verifyRefracParams(c.RefracModelID, params) {
		return fmt.Errorf("invalid parameters for refraction model %s: %v", c.RefracModelName(), params)
	}
	c.RefracParams = append([]float64(nil), params...)
	return nil
}

// SetParamsFromString parses a comma-separated parameter list and assigns
// it through SetParams.
func (c *Camera) SetParamsFromString(s string) error {
	params, err := parseCSV(s)
	if err != nil {
		return err
	}
	return c.SetParams(params)
}

// SetRefracParamsFromString parses a comma-separated parameter list and
// assigns it through SetRefracParams.
func (c *Camera) SetRefracParamsFromString(s string) error {
	params, err := parseCSV(s)
	if err != nil {
		return err
	}
	return c.SetRefracParams(params)
}

// ParamsToString formats the intrinsic parameters as a comma-separated
// list.
func (c *Camera) ParamsToString() string { return formatCSV(c.Params) }

// RefracParamsToString formats the refraction parameters as a
// comma-separated list.
func (c *Camera) RefracParamsToString() string { return formatCSV(c.RefracParams) }

// VerifyParams reports whether the intrinsic parameter vector satisfies
// the selected variant's validator.
func (c *Camera) VerifyParams() bool { return verifyModelParams(c.ModelID, c.Params) }

// VerifyRefracParams reports whether the refraction parameter vector
// satisfies the selected variant's validator.
func (c *Camera) VerifyRefracParams() bool {
	return verifyRefracParams(c.RefracModelID, c.RefracParams)
}

// HasBogusParams reports whether the focal length, principal point or
// extra parameters are outside plausible ranges for the image size.
func (c *Camera) HasBogusParams(minFocalRatio, maxFocalRatio, maxExtraParam float64) bool {
	spec := modelSpecs[c.ModelID]
	maxDim := float64(max(c.Width, c.Height))
	for _, idx := range spec.focalIdxs {
		ratio := c.Params[idx] / maxDim
		if ratio < minFocalRatio || ratio > maxFocalRatio {
			return true
		}
	}
	ppx, ppy := c.PrincipalPointX(), c.PrincipalPointY()
	if ppx < 0 || ppx > float64(c.Width) || ppy < 0 || ppy > float64(c.Height) {
		return true
	}
	for _, idx := range spec.extraParamsIdxs {
		if math.Abs(c.Params[idx]) > maxExtraParam {
			return true
		}
	}
	return false
}

// IsUndistorted reports whether all extra (distortion) parameters are
// effectively zero.
func (c *Camera) IsUndistorted() bool {
	for _, idx := range modelSpecs[c.ModelID].extraParamsIdxs {
		if math.Abs(c.Params[idx]) > 1e-8 {
			return false
		}
	}
	return true
}

// FocalLengthIdxs returns the parameter indexes holding focal lengths.
func (c *Camera) FocalLengthIdxs() []int { return modelSpecs[c.ModelID].focalIdxs }

// MeanFocalLength returns the mean of the focal length parameters.
func (c *Camera) MeanFocalLength() float64 {
	idxs := c.FocalLengthIdxs()
	sum := 0.0
	for _, idx := range idxs {
		sum += c.Params[idx]
	}
	return sum / float64(len(idxs))
}

// PrincipalPointX returns the x coordinate of the principal point.
func (c *Camera) PrincipalPointX() float64 {
	return c.Params[modelSpecs[c.ModelID].principalIdxs[0]]
}

// PrincipalPointY returns the y coordinate of the principal point.
func (c *Camera) PrincipalPointY() float64 {
	return c.Params[modelSpecs[c.ModelID].principalIdxs[1]]
}

func (c *Camera) setPrincipalPoint(x, y float64) {
	idxs := modelSpecs[c.ModelID].principalIdxs
	c.Params[idxs[0]] = x
	c.Params[idxs[1]] = y
}

// CalibrationMatrix returns the 3x3 intrinsic calibration matrix K.
func (c *Camera) CalibrationMatrix() *mat.Dense {
	k := mat.NewDense(3, 3, nil)
	idxs := c.FocalLengthIdxs()
	if len(idxs) == 1 {
		k.Set(0, 0, c.Params[idxs[0]])
		k.Set(1, 1, c.Params[idxs[0]])
	} else {
		k.Set(0, 0, c.Params[idxs[0]])
		k.Set(1, 1, c.Params[idxs[1]])
	}
	k.Set(0, 2, c.PrincipalPointX())
	k.Set(1, 2, c.PrincipalPointY())
	k.Set(2, 2, 1)
	return k
}

// CamFromImg unprojects a pixel to the normalized camera plane through the
// intrinsic model only; refraction is ignored.
func (c *Camera) CamFromImg(p geom.Point2) geom.Point2 {
	return modelCamFromImg(c.ModelID, c.Params, p)
}

// CamFromImgThreshold converts a pixel-space threshold to the normalized
// camera plane.
func (c *Camera) CamFromImgThreshold(threshold float64) float64 {
	return threshold / c.MeanFocalLength()
}

// ImgFromCam projects a normalized camera-plane point to a pixel through
// the intrinsic model only.
func (c *Camera) ImgFromCam(p geom.Point2) geom.Point2 {
	return modelImgFromCam(c.ModelID, c.Params, p)
}

// CamFromImgRefrac unprojects a pixel through the intrinsic model and
// bends the resulting ray through the refractive interface. The returned
// ray's origin lies on the outer interface surface and generally does not
// coincide with the projection center. Without a refraction model the ray
// degenerates to the plain unprojected direction from the origin.
func (c *Camera) CamFromImgRefrac(p geom.Point2) geom.Ray {
	n := c.CamFromImg(p)
	dir := r3.Unit(r3.Vec{X: n.X, Y: n.Y, Z: 1})
	if !c.IsRefractive() {
		return geom.Ray{Dir: dir}
	}
	return refractRay(c.RefracModelID, c.RefracParams, dir)
}

// CamFromImgRefracPoint returns the 3D point at the given depth along the
// refracted ray of a pixel. Depth is measured along the ray direction from
// the ray origin on the interface.
func (c *Camera) CamFromImgRefracPoint(p geom.Point2, depth float64) r3.Vec {
	return c.CamFromImgRefrac(p).At(depth)
}

// RefractionAxis returns the interface normal of the selected refraction
// model in the camera frame.
func (c *Camera) RefractionAxis() r3.Vec {
	if !c.IsRefractive() {
		return r3.Vec{Z: 1}
	}
	return refractionAxis(c.RefracModelID, c.RefracParams)
}

// ImgFromCamRefrac forward-projects a camera-frame 3D point through the
// refractive interface and the intrinsic model. A NaN point signals that
// no physical ray reaches the 3D point (e.g. beyond the critical angle);
// this is ordinary data for the caller to filter, not an error.
func (c *Camera) ImgFromCamRefrac(point r3.Vec) geom.Point2 {
	if !c.IsRefractive() {
		if point.Z <= 0 {
			return geom.NaNPoint2()
		}
		return c.ImgFromCam(geom.Point2{X: point.X / point.Z, Y: point.Y / point.Z})
	}

	// No closed form exists for the refracted forward projection: solve
	// for the pixel whose refracted ray passes through the point, seeded
	// with the in-air projection.
	if point.Z <= 0 {
		return geom.NaNPoint2()
	}
	px := c.ImgFromCam(geom.Point2{X: point.X / point.Z, Y: point.Y / point.Z})
	if !px.IsFinite() {
		return geom.NaNPoint2()
	}

	residual := func(p geom.Point2) (r3.Vec, bool) {
		ray := c.CamFromImgRefrac(p)
		if !ray.IsFinite() {
			return r3.Vec{}, false
		}
		v := r3.Sub(point, ray.Ori)
		du := r3.Unit(ray.Dir)
		return r3.Sub(v, r3.Scale(r3.Dot(v, du), du)), true
	}

	const step = 1e-3 // pixels, for numeric derivatives
	for iter := 0; iter < forwardProjectMaxIter; iter++ {
		r0, ok := residual(px)
		if !ok {
			return geom.NaNPoint2()
		}
		rx, okx := residual(geom.Point2{X: px.X + step, Y: px.Y})
		ry, oky := residual(geom.Point2{X: px.X, Y: px.Y + step})
		if !okx || !oky {
			return geom.NaNPoint2()
		}
		jx := r3.Scale(1/step, r3.Sub(rx, r0))
		jy := r3.Scale(1/step, r3.Sub(ry, r0))

		// Solve the 2x2 normal equations J^T J d = -J^T r.
		a11 := r3.Dot(jx, jx)
		a12 := r3.Dot(jx, jy)
		a22 := r3.Dot(jy, jy)
		b1 := -r3.Dot(jx, r0)
		b2 := -r3.Dot(jy, r0)
		det := a11*a22 - a12*a12
		if det == 0 || math.IsNaN(det) {
			return geom.NaNPoint2()
		}
		dx := (b1*a22 - b2*a12) / det
		dy := (b2*a11 - b1*a12) / det
		px.X += dx
		px.Y += dy
		if dx*dx+dy*dy < 1e-20 {
			break
		}
	}

	r0, ok := residual(px)
	if !ok || !px.IsFinite() {
		return geom.NaNPoint2()
	}
	// Reject stalls far from the ray.
	if r3.Norm(r0) > 1e-6*(1+r3.Norm(point)) {
		return geom.NaNPoint2()
	}
	return px
}

// Rescale adjusts the camera to a uniformly resized image. The principal
// point and focal lengths scale with the image; refraction parameters are
// metric interface quantities and are deliberately left untouched, since
// resampling an image does not move the physical port.
func (c *Camera) Rescale(scale float64) error {
	if scale <= 0 {
		return fmt.Errorf("rescale factor must be positive, got %v", scale)
	}
	newWidth := int(math.Round(scale * float64(c.Width)))
	newHeight := int(math.Round(scale * float64(c.Height)))
	return c.RescaleTo(newWidth, newHeight)
}

// RescaleTo adjusts the camera to the given image size. See Rescale for
// the treatment of refraction parameters.
func (c *Camera) RescaleTo(width, height int) error {
	if width <= 0 || height <= 0 {
		return fmt.Errorf("rescale target must be positive, got %dx%d", width, height)
	}
	scaleX := float64(width) / float64(c.Width)
	scaleY := float64(height) / float64(c.Height)
	c.Width = width
	c.Height = height
	c.setPrincipalPoint(scaleX*c.PrincipalPointX(), scaleY*c.PrincipalPointY())

	idxs := c.FocalLengthIdxs()
	if len(idxs) == 1 {
		c.Params[idxs[0]] *= (scaleX + scaleY) / 2
	} else {
		c.Params[idxs[0]] *= scaleX
		c.Params[idxs[1]] *= scaleY
	}
	return nil
}

func parseCSV(s string) ([]float64, error) {
	fields := strings.Split(s, ",")
	params := make([]float64, 0, len(fields))
	for _, f := range fields {
		v, err := strconv.ParseFloat(strings.TrimSpace(f), 64)
		if err != nil {
			return nil, fmt.Errorf("parse parameter list %q: %w", s, err)
		}
		params = append(params, v)
	}
	return params, nil
}

func formatCSV(params []float64) string {
	fields := make([]string, len(params))
	for i, v := range params {
		fields[i] = strconv.FormatFloat(v, 'g', -1, 64)
	}
	return strings.Join(fields, ", ")
}
