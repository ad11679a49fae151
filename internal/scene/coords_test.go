package scene

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClamp(t *testing.T) {
	tests := []struct {
		name   string
		value  float64
		lo, hi float64
		want   float64
	}{
		{"inside", 0.5, -1, 1, 0.5},
		{"below", -3, -1, 1, -1},
		{"above", 2.5, 0, 2, 2},
		{"dbfs floor", -120, -100, 0, -100},
		{"nan", math.NaN(), -100, 0, -100},
		{"positive infinity", math.Inf(1), -1, 1, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Clamp(tt.value, tt.lo, tt.hi))
		})
	}
}

func TestClampIsIdempotent(t *testing.T) {
	once := Clamp(-120, -100, 0)
	twice := Clamp(once, -100, 0)
	assert.Equal(t, once, twice)
	assert.Equal(t, -100.0, twice)
}

func TestSphericalToCartesian(t *testing.T) {
	tests := []struct {
		name             string
		az, el, distance float64
		want             Vec3
	}{
		{"front", 0, 0, 1, Vec3{X: 1}},
		{"right", 90, 0, 1, Vec3{Z: 1}},
		{"up", 0, 90, 1, Vec3{Y: 1}},
		{"half distance back", 180, 0, 0.5, Vec3{X: -0.5}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SphericalToCartesian(tt.az, tt.el, tt.distance)
			assert.InDelta(t, tt.want.X, got.X, 1e-9)
			assert.InDelta(t, tt.want.Y, got.Y, 1e-9)
			assert.InDelta(t, tt.want.Z, got.Z, 1e-9)
		})
	}
}

func TestRendererSphericalToCartesian(t *testing.T) {
	left := RendererSphericalToCartesian(90, 0, 1)
	assert.InDelta(t, 0, left.X, 1e-9)
	assert.InDelta(t, -1, left.Z, 1e-9)

	front := RendererSphericalToCartesian(0, 0, 1)
	assert.InDelta(t, 1, front.X, 1e-9)

	// Distances above 1 are clamped per axis.
	far := RendererSphericalToCartesian(0, 0, 3)
	assert.Equal(t, 1.0, far.X)
}

func TestCartesianToSphericalRoundTrip(t *testing.T) {
	for _, tc := range [][3]float64{{30, 10, 0.8}, {-120, -20, 1}, {0, 45, 0.5}} {
		v := SphericalToCartesian(tc[0], tc[1], tc[2])
		az, el, d := CartesianToSpherical(v)
		assert.InDelta(t, tc[0], az, 1e-9)
		assert.InDelta(t, tc[1], el, 1e-9)
		assert.InDelta(t, tc[2], d, 1e-9)
	}

	az, el, d := CartesianToSpherical(Vec3{})
	assert.Zero(t, az)
	assert.Zero(t, el)
	assert.Zero(t, d)
}

func TestRemapVendorXYZ(t *testing.T) {
	got := RemapVendorXYZ(Vec3{X: 0.2, Y: 0.8, Z: 0.1})
	assert.Equal(t, Vec3{X: 0.8, Y: 0.1, Z: 0.2}, got)
}

func TestWrapAzimuth(t *testing.T) {
	assert.Equal(t, 0.0, WrapAzimuth(360))
	assert.Equal(t, 180.0, WrapAzimuth(180))
	assert.Equal(t, 180.0, WrapAzimuth(-180))
	assert.Equal(t, -90.0, WrapAzimuth(270))
	assert.Equal(t, 45.0, WrapAzimuth(45))
}

func TestSortLayouts(t *testing.T) {
	layouts := []Layout{
		{Key: "b", Name: "Stereo"},
		{Key: "a", Name: "7.1.4"},
		{Key: "live", Name: "Stereo"},
	}
	SortLayouts(layouts)

	keys := []string{layouts[0].Key, layouts[1].Key, layouts[2].Key}
	assert.Equal(t, []string{"a", "b", "live"}, keys)
}
