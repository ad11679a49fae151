// Package scene holds the canonical scene frame used by the visualiser and
// the conversions into it.
//
// The canonical frame is x = front, y = up, z = right, every axis normalised
// to [-1, 1]. Renderers report positions in several conventions; the helpers
// here are the only place those conventions are translated.
package scene

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// Vec3 is a position in the canonical scene frame.
type Vec3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

func (v Vec3) r3() r3.Vec { return r3.Vec{X: v.X, Y: v.Y, Z: v.Z} }

func fromR3(v r3.Vec) Vec3 { return Vec3{X: v.X, Y: v.Y, Z: v.Z} }

// Clamp limits value to [lo, hi]. NaN collapses to lo so a bad sample can
// never leak into state.
func Clamp(value, lo, hi float64) float64 {
	if math.IsNaN(value) {
		return lo
	}
	return math.Min(hi, math.Max(lo, value))
}

// ClampUnit clamps every axis of v to [-1, 1].
func (v Vec3) ClampUnit() Vec3 {
	return Vec3{
		X: Clamp(v.X, -1, 1),
		Y: Clamp(v.Y, -1, 1),
		Z: Clamp(v.Z, -1, 1),
	}
}

func radians(deg float64) float64 { return deg * math.Pi / 180 }

func degrees(rad float64) float64 { return rad * 180 / math.Pi }

// SphericalToCartesian converts an (azimuth, elevation, distance) triple
// given in degrees into the scene frame, with azimuth measured from front
// towards right:
//
//	x = d·cos(el)·cos(az), y = d·sin(el), z = d·cos(el)·sin(az)
//
// The result is not clamped.
func SphericalToCartesian(azimuthDeg, elevationDeg, distance float64) Vec3 {
	az := radians(azimuthDeg)
	el := radians(elevationDeg)
	dir := r3.Vec{
		X: math.Cos(el) * math.Cos(az),
		Y: math.Sin(el),
		Z: math.Cos(el) * math.Sin(az),
	}
	return fromR3(r3.Scale(distance, dir))
}

// RendererSphericalToCartesian converts the renderer's native speaker
// convention (azimuth 0° = front, +90° = left, elevation positive = up) into
// the scene frame and clamps the result. Left is -z in the scene frame, hence
// the sign flip on z compared to SphericalToCartesian.
func RendererSphericalToCartesian(azimuthDeg, elevationDeg, distance float64) Vec3 {
	v := SphericalToCartesian(azimuthDeg, elevationDeg, distance)
	v.Z = -v.Z
	return v.ClampUnit()
}

// CartesianToSpherical is the inverse of SphericalToCartesian. Azimuth is in
// (-180, 180], elevation in [-90, 90]; the origin maps to (0, 0, 0).
func CartesianToSpherical(v Vec3) (azimuthDeg, elevationDeg, distance float64) {
	distance = r3.Norm(v.r3())
	if distance == 0 {
		return 0, 0, 0
	}
	azimuthDeg = degrees(math.Atan2(v.Z, v.X))
	elevationDeg = degrees(math.Asin(Clamp(v.Y/distance, -1, 1)))
	return azimuthDeg, elevationDeg, distance
}

// RemapVendorXYZ maps the vendor object convention (x = right, y = front,
// z = up) onto the scene frame (front, up, right).
func RemapVendorXYZ(v Vec3) Vec3 {
	return Vec3{X: v.Y, Y: v.Z, Z: v.X}
}

// WrapAzimuth folds an azimuth in degrees into (-180, 180].
func WrapAzimuth(deg float64) float64 {
	w := math.Mod(deg, 360)
	switch {
	case w > 180:
		w -= 360
	case w <= -180:
		w += 360
	}
	return w
}
