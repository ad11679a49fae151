package classify

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mgth/SpatialVisualizer/internal/scene"
)

func TestClassify_PositionUpdates(t *testing.T) {
	tests := []struct {
		name    string
		address string
		args    []any
		want    Event
	}{
		{
			name:    "legacy id in first argument",
			address: "/source/position",
			args:    []any{"kick", -0.2, 0.4, 0.1},
			want:    Update{ID: "kick", Position: scene.Vec3{X: -0.2, Y: 0.4, Z: 0.1}},
		},
		{
			name:    "id embedded in address",
			address: "/source/kick/position",
			args:    []any{float32(0.1), float32(0.2), float32(0.3)},
			want:    Update{ID: "kick", Position: scene.Vec3{X: 0.1, Y: 0.2, Z: 0.3}},
		},
		{
			name:    "vendor object xyz is remapped",
			address: "/truehdd/object/10/xyz",
			args:    []any{float32(0.2), float32(0.8), float32(0.1)},
			want:    Update{ID: "10", Position: scene.Vec3{X: 0.8, Y: 0.1, Z: 0.2}},
		},
		{
			name:    "values are clamped",
			address: "/track/7",
			args:    []any{3, -4, 0.5},
			want:    Update{ID: "7", Position: scene.Vec3{X: 1, Y: -1, Z: 0.5}},
		},
		{
			name:    "display name after id",
			address: "/object/3/pos",
			args:    []any{"Vocals", 0.1, 0.2, 0.3},
			want:    Update{ID: "3", Position: scene.Vec3{X: 0.1, Y: 0.2, Z: 0.3}, Name: "Vocals"},
		},
		{
			name:    "numeric strings are coerced",
			address: "/obj/a/xyz",
			args:    []any{"0.5", "0", "-0.5"},
			want:    Update{ID: "a", Position: scene.Vec3{X: 0.5, Y: 0, Z: -0.5}},
		},
		{
			name:    "tagged arguments are unwrapped",
			address: "/source/kick/xyz",
			args:    []any{TaggedArg{Type: "f", Value: 0.1}, &TaggedArg{Type: "f", Value: 0.2}, map[string]any{"type": "f", "value": 0.3}},
			want:    Update{ID: "kick", Position: scene.Vec3{X: 0.1, Y: 0.2, Z: 0.3}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.address, tt.args))
		})
	}
}

func TestClassify_RoundTripCartesian(t *testing.T) {
	for _, tc := range []struct {
		id      string
		x, y, z float64
	}{
		{"kick", -0.2, 0.4, 0.1},
		{"snare", 1, -1, 0},
		{"42", 0.33, 0.66, -0.99},
	} {
		ev := Classify("/source/position", []any{tc.id, tc.x, tc.y, tc.z})
		require.IsType(t, Update{}, ev)
		up := ev.(Update)
		assert.Equal(t, tc.id, up.ID)
		assert.Equal(t, scene.Vec3{X: tc.x, Y: tc.y, Z: tc.z}, up.Position)
	}
}

func TestClassify_SphericalHint(t *testing.T) {
	ev := Classify("/source/kick/aed", []any{90, 0, 1})
	require.IsType(t, Update{}, ev)
	pos := ev.(Update).Position
	assert.Less(t, math.Abs(pos.X), 1e-6)
	assert.Less(t, math.Abs(pos.Z-1), 1e-6)

	ev = Classify("/source/pad/polar", []any{0, 90, 0.5})
	require.IsType(t, Update{}, ev)
	assert.InDelta(t, 0.5, ev.(Update).Position.Y, 1e-9)
}

func TestClassify_Remove(t *testing.T) {
	assert.Equal(t, Remove{ID: "kick"}, Classify("/source/remove", []any{"kick"}))
	assert.Equal(t, Remove{ID: "kick"}, Classify("/source/kick/off", nil))
	assert.Equal(t, Remove{ID: "12"}, Classify("/object/delete", []any{int32(12)}))
	assert.Nil(t, Classify("/remove", nil))
}

func TestClassify_Meters(t *testing.T) {
	assert.Equal(t,
		ObjectMeter{ID: "10", PeakDbfs: -4.2, RmsDbfs: -18.7},
		Classify("/truehdd/meter/object/10", []any{-4.2, -18.7}))

	assert.Equal(t,
		SpeakerMeter{ID: "3", PeakDbfs: 0, RmsDbfs: -100},
		Classify("/truehdd/meter/speaker/3", []any{TaggedArg{Type: "f", Value: 1.2}, TaggedArg{Type: "f", Value: -120}}))

	assert.Equal(t,
		ObjectMeter{ID: "1", PeakDbfs: -100, RmsDbfs: -100},
		Classify("/truehdd/meter/object/1", []any{"loud"}))
}

func TestClassify_ObjectGains(t *testing.T) {
	ev := Classify("/truehdd/meter/object/1/gains", []any{0.972, 0, 0.135, -1, 1.7})
	assert.Equal(t, ObjectGains{ID: "1", Gains: []float64{0.972, 0, 0.135, 0, 1}}, ev)

	ev = Classify("/truehdd/meter/object/2/gains", []any{float32(0.972), "x"})
	assert.Equal(t, ObjectGains{ID: "2", Gains: []float64{0.972, 0}}, ev)
}

// The meter family claims the address before remove/update get a chance.
func TestClassify_MeterPriority(t *testing.T) {
	assert.Nil(t, Classify("/meter/object", []any{1, 2, 3, 4}))
	assert.Nil(t, Classify("/source/meter/bus/1", []any{"kick", 1, 2, 3}))
	assert.Equal(t,
		ObjectMeter{ID: "off", PeakDbfs: -3, RmsDbfs: -6},
		Classify("/meter/object/off", []any{-3, -6}))
}

func TestClassify_RendererState(t *testing.T) {
	tests := []struct {
		address string
		args    []any
		want    Event
	}{
		{"/truehdd/state/object/4/gain", []any{float32(2.5)}, ChannelGain{Kind: "object", Index: 4, Gain: 2}},
		{"/truehdd/state/speaker/0/gain", []any{0.5}, ChannelGain{Kind: "speaker", Index: 0, Gain: 0.5}},
		{"/truehdd/state/object/4/mute", []any{int32(1)}, ChannelMute{Kind: "object", Index: 4, Muted: true}},
		{"/truehdd/state/speaker/2/mute", []any{false}, ChannelMute{Kind: "speaker", Index: 2, Muted: false}},
		{"/truehdd/state/room_ratio", []any{1.5, 2, 1}, RoomRatio{Width: 1.5, Length: 2, Height: 1}},
		{"/truehdd/state/room_ratio", []any{1, 0, 1}, nil},
		{"/truehdd/state/spread/min", []any{0.1}, SpreadMin{Value: 0.1}},
		{"/truehdd/state/spread/max", []any{0.9}, SpreadMax{Value: 0.9}},
		{"/truehdd/state/dialog_norm", []any{int32(1)}, DialogNormEnabled{Enabled: true}},
		{"/truehdd/state/dialog_norm/level", []any{-131}, DialogNormLevel{Level: -100}},
		{"/truehdd/state/dialog_norm/gain", []any{-4}, DialogNormGain{Gain: -4}},
		{"/truehdd/state/master_gain", []any{1.25}, MasterGain{Gain: 1.25}},
		{"/truehdd/state/gain", []any{-1}, MasterGain{Gain: 0}},
		{"/truehdd/state/latency", []any{12.5}, Latency{RawMs: 12.5}},
		{"/truehdd/state/latency", []any{-1}, nil},
		{"/truehdd/state/resample_ratio", []any{1.0001}, ResampleRatio{Ratio: 1.0001}},
		{"/truehdd/state/resample_ratio", []any{0}, nil},
		{"/truehdd/state/object/x/gain", []any{1}, nil},
		{"/truehdd/state/unknown", []any{1, 2, 3}, nil},
		{"/truehdd/state", nil, nil},
	}

	for _, tt := range tests {
		t.Run(tt.address, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.address, tt.args))
		})
	}
}

func TestClassify_RendererConfig(t *testing.T) {
	assert.Equal(t, SpeakerCount{Count: 2}, Classify("/truehdd/config/speakers", []any{int32(2)}))
	assert.Nil(t, Classify("/truehdd/config/speakers", []any{-1}))

	ev := Classify("/truehdd/config/speaker/0", []any{"L", float32(90), float32(0), float32(1), int32(1)})
	require.IsType(t, SpeakerConfig{}, ev)
	sc := ev.(SpeakerConfig)
	assert.Equal(t, 0, sc.Index)
	assert.Equal(t, "L", sc.Name)
	assert.True(t, sc.Spatialize)
	assert.InDelta(t, 0, sc.Position.X, 1e-6)
	assert.InDelta(t, -1, sc.Position.Z, 1e-6)

	ev = Classify("/truehdd/config/speaker/3", []any{"LFE", 0, -30})
	require.IsType(t, SpeakerConfig{}, ev)
	sc = ev.(SpeakerConfig)
	assert.Equal(t, 1.0, sc.Distance)
	assert.True(t, sc.Spatialize)

	ev = Classify("/truehdd/config/speaker/4", []any{"", 0, 0, 1, 0})
	require.IsType(t, SpeakerConfig{}, ev)
	assert.Equal(t, "4", ev.(SpeakerConfig).Name)
	assert.False(t, ev.(SpeakerConfig).Spatialize)

	assert.Nil(t, Classify("/truehdd/config/speaker/x", []any{"L", 0, 0}))
	assert.Nil(t, Classify("/truehdd/config/speaker/1", []any{"L"}))
}

func TestClassify_Families(t *testing.T) {
	_, fam := ClassifyFamily("/truehdd/config/bogus", nil)
	assert.Equal(t, FamilyConfig, fam)
	_, fam = ClassifyFamily("/truehdd/meter/object/1", nil)
	assert.Equal(t, FamilyMeter, fam)
	_, fam = ClassifyFamily("/anything", nil)
	assert.Equal(t, FamilyUpdate, fam)
	_, fam = ClassifyFamily("", nil)
	assert.Empty(t, fam)
}

func TestClassify_MalformedInput(t *testing.T) {
	inputs := []struct {
		address string
		args    []any
	}{
		{"", nil},
		{"/", nil},
		{"///", []any{1, 2, 3}},
		{"/source", nil},
		{"/source/kick", []any{1, 2}},
		{"/unknown/path", []any{"a", "b"}},
		{"/meter", []any{1}},
		{"/truehdd/config", nil},
		{"/source/kick/xyz", []any{math.NaN(), math.Inf(1), 1}},
		{"/source/kick/xyz", []any{nil, []byte{1}, struct{}{}}},
		{"/source/kick/xyz", []any{(*TaggedArg)(nil), 1, 2}},
	}

	for _, in := range inputs {
		assert.NotPanics(t, func() {
			assert.Nil(t, Classify(in.address, in.args), in.address)
		})
	}
}

func TestToFloat(t *testing.T) {
	for _, v := range []any{int(2), int8(2), int16(2), int32(2), int64(2), uint(2), uint8(2), uint16(2), uint32(2), uint64(2), float32(2), 2.0, "2", " 2 ", json.Number("2")} {
		f, ok := toFloat(v)
		assert.True(t, ok, "%T", v)
		assert.Equal(t, 2.0, f, "%T", v)
	}

	f, ok := toFloat(true)
	assert.True(t, ok)
	assert.Equal(t, 1.0, f)

	for _, v := range []any{"", "abc", nil, math.NaN(), math.Inf(-1), []int{1}} {
		_, ok := toFloat(v)
		assert.False(t, ok, "%v", v)
	}
}
