package control

import (
	"errors"
	"testing"

	"github.com/hypebeast/go-osc/osc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mgth/SpatialVisualizer/internal/session"
)

type sent struct {
	Address string
	Args    []interface{}
}

func flatten(msgs []*osc.Message) []sent {
	out := make([]sent, len(msgs))
	for i, m := range msgs {
		out[i] = sent{Address: m.Address, Args: m.Arguments}
	}
	return out
}

func TestParse_ValidCommands(t *testing.T) {
	tests := []struct {
		name string
		json string
		want []sent
	}{
		{
			name: "object gain clamped",
			json: `{"type":"control:object:gain","id":4,"gain":3.5}`,
			want: []sent{{"/truehdd/control/object/4/gain", []interface{}{float32(2)}}},
		},
		{
			name: "speaker gain with string id",
			json: `{"type":"control:speaker:gain","id":"2","gain":0.5}`,
			want: []sent{{"/truehdd/control/speaker/2/gain", []interface{}{float32(0.5)}}},
		},
		{
			name: "object mute",
			json: `{"type":"control:object:mute","id":1,"muted":true}`,
			want: []sent{{"/truehdd/control/object/1/mute", []interface{}{int32(1)}}},
		},
		{
			name: "speaker mute numeric flag",
			json: `{"type":"control:speaker:mute","id":0,"muted":0}`,
			want: []sent{{"/truehdd/control/speaker/0/mute", []interface{}{int32(0)}}},
		},
		{
			name: "master gain floor",
			json: `{"type":"control:master:gain","gain":-1}`,
			want: []sent{{"/truehdd/control/gain", []interface{}{float32(0)}}},
		},
		{
			name: "dialog norm",
			json: `{"type":"control:dialog_norm","enable":true}`,
			want: []sent{{"/truehdd/control/dialog_norm", []interface{}{int32(1)}}},
		},
		{
			name: "spread max raised to min",
			json: `{"type":"control:spread","min":0.6,"max":0.2}`,
			want: []sent{
				{"/truehdd/control/spread/min", []interface{}{float32(0.6)}},
				{"/truehdd/control/spread/max", []interface{}{float32(0.6)}},
			},
		},
		{
			name: "spread max only",
			json: `{"type":"control:spread","max":0.4}`,
			want: []sent{{"/truehdd/control/spread/max", []interface{}{float32(0.4)}}},
		},
		{
			name: "azimuth wrapped",
			json: `{"type":"control:speaker:az","id":3,"value":270}`,
			want: []sent{{"/truehdd/control/speaker/3/azimuth", []interface{}{float32(-90)}}},
		},
		{
			name: "elevation clamped",
			json: `{"type":"control:speaker:el","id":3,"value":120}`,
			want: []sent{{"/truehdd/control/speaker/3/elevation", []interface{}{float32(90)}}},
		},
		{
			name: "distance floor",
			json: `{"type":"control:speaker:distance","id":3,"value":-2}`,
			want: []sent{{"/truehdd/control/speaker/3/distance", []interface{}{float32(0)}}},
		},
		{
			name: "apply speakers",
			json: `{"type":"control:speakers:apply"}`,
			want: []sent{{"/truehdd/control/speakers/apply", nil}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			act, err := Parse([]byte(tt.json), session.Spread{})
			require.NoError(t, err)
			got := flatten(act.Messages)
			for i := range got {
				if len(got[i].Args) == 0 {
					got[i].Args = nil
				}
			}
			assert.Equal(t, tt.want, got)
			assert.Empty(t, act.LayoutKey)
		})
	}
}

func TestParse_SpreadSingleBoundClampedToCurrent(t *testing.T) {
	lo, hi := 0.3, 0.7
	current := session.Spread{Min: &lo, Max: &hi}

	tests := []struct {
		name    string
		json    string
		current session.Spread
		want    sent
	}{
		{"max below current min", `{"type":"control:spread","max":0.2}`, current,
			sent{"/truehdd/control/spread/max", []interface{}{float32(0.3)}}},
		{"max above current min", `{"type":"control:spread","max":0.5}`, current,
			sent{"/truehdd/control/spread/max", []interface{}{float32(0.5)}}},
		{"min above current max", `{"type":"control:spread","min":0.9}`, current,
			sent{"/truehdd/control/spread/min", []interface{}{float32(0.7)}}},
		{"min below current max", `{"type":"control:spread","min":0.1}`, current,
			sent{"/truehdd/control/spread/min", []interface{}{float32(0.1)}}},
		{"no current range", `{"type":"control:spread","min":0.9}`, session.Spread{},
			sent{"/truehdd/control/spread/min", []interface{}{float32(0.9)}}},
		{"both bounds ignore current", `{"type":"control:spread","min":0.8,"max":0.9}`, current,
			sent{"/truehdd/control/spread/min", []interface{}{float32(0.8)}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			act, err := Parse([]byte(tt.json), tt.current)
			require.NoError(t, err)
			require.NotEmpty(t, act.Messages)
			assert.Equal(t, tt.want, flatten(act.Messages)[0])
		})
	}
}

func TestParse_LayoutSelectIsLocal(t *testing.T) {
	act, err := Parse([]byte(`{"type":"layout:select","key":"7.1.4"}`), session.Spread{})
	require.NoError(t, err)
	assert.Equal(t, "7.1.4", act.LayoutKey)
	assert.Empty(t, act.Messages)
}

func TestParse_Invalid(t *testing.T) {
	inputs := []string{
		``,
		`not json`,
		`[]`,
		`{}`,
		`{"type":"control:unknown"}`,
		`{"type":"control:object:gain","gain":1}`,
		`{"type":"control:object:gain","id":-1,"gain":1}`,
		`{"type":"control:object:gain","id":1.5,"gain":1}`,
		`{"type":"control:object:gain","id":"abc","gain":1}`,
		`{"type":"control:object:gain","id":1}`,
		`{"type":"control:object:gain","id":1,"gain":"loud"}`,
		`{"type":"control:object:mute","id":1}`,
		`{"type":"control:object:mute","id":1,"muted":"yes"}`,
		`{"type":"control:spread"}`,
		`{"type":"control:speaker:az","id":1}`,
		`{"type":"layout:select"}`,
		`{"type":"layout:select","key":"  "}`,
	}

	for _, in := range inputs {
		_, err := Parse([]byte(in), session.Spread{})
		assert.ErrorIs(t, err, ErrInvalidCommand, in)
	}
}

func TestParseID(t *testing.T) {
	for raw, want := range map[string]int{`0`: 0, `12`: 12, `"7"`: 7, `" 8 "`: 8, `3.0`: 3} {
		got, err := parseID([]byte(raw))
		require.NoError(t, err, raw)
		assert.Equal(t, want, got, raw)
	}
}

type recordingSender struct {
	msgs []*osc.Message
	err  error
}

func (r *recordingSender) Send(msg *osc.Message) error {
	r.msgs = append(r.msgs, msg)
	return r.err
}

func TestRouter_Route(t *testing.T) {
	sender := &recordingSender{}
	r := NewRouter(sender, nil, nil)

	key, err := r.Route([]byte(`{"type":"control:master:gain","gain":1.5}`), session.Spread{})
	require.NoError(t, err)
	assert.Empty(t, key)
	require.Len(t, sender.msgs, 1)
	assert.Equal(t, "/truehdd/control/gain", sender.msgs[0].Address)

	key, err = r.Route([]byte(`{"type":"layout:select","key":"stereo"}`), session.Spread{})
	require.NoError(t, err)
	assert.Equal(t, "stereo", key)
	assert.Len(t, sender.msgs, 1)

	_, err = r.Route([]byte(`{"type":"bogus"}`), session.Spread{})
	assert.ErrorIs(t, err, ErrInvalidCommand)
	assert.Len(t, sender.msgs, 1)
}

func TestRouter_SendFailuresAreSwallowed(t *testing.T) {
	sender := &recordingSender{err: errors.New("queue full")}
	r := NewRouter(sender, nil, nil)

	_, err := r.Route([]byte(`{"type":"control:spread","min":0.1,"max":0.9}`), session.Spread{})
	require.NoError(t, err)
	assert.Len(t, sender.msgs, 2)
}
