// Package classify turns raw OSC messages into typed scene events.
//
// Addresses are matched against an ordered table of families. The first
// family whose predicate matches owns the address, even when its parser then
// rejects the arguments. Unrecognised shapes yield a nil Event; Classify
// never panics and never returns an error.
package classify

import (
	"github.com/mgth/SpatialVisualizer/internal/protocol"
	"github.com/mgth/SpatialVisualizer/internal/scene"
)

// Segments that introduce a source id in the address.
var anchorSegments = []string{"source", "sources", "object", "obj", "track", "channel"}

// Segments that can follow an anchor without being an id.
var reservedSegments = map[string]bool{
	"position": true, "pos": true, "xyz": true,
	"aed": true, "spherical": true, "polar": true, "angles": true,
	"remove": true, "delete": true, "off": true,
}

var sphericalHints = []string{"aed", "spherical", "polar", "angles"}

type family struct {
	name    string
	matches func(parts []string) bool
	parse   func(parts []string, args []any) Event
}

var families = []family{
	{
		name: FamilyConfig,
		matches: func(parts []string) bool {
			return protocol.Contains(parts, protocol.Namespace) && protocol.Contains(parts, "config")
		},
		parse: parseConfig,
	},
	{
		name: FamilyState,
		matches: func(parts []string) bool {
			return protocol.Contains(parts, protocol.Namespace) && protocol.Contains(parts, "state")
		},
		parse: parseState,
	},
	{
		name:    FamilyMeter,
		matches: func(parts []string) bool { return protocol.Contains(parts, "meter") },
		parse:   parseMeter,
	},
	{
		name:    FamilyRemove,
		matches: func(parts []string) bool { return protocol.ContainsAny(parts, "remove", "delete", "off") },
		parse:   parseRemove,
	},
	{
		name:    FamilyUpdate,
		matches: func([]string) bool { return true },
		parse:   parseUpdate,
	},
}

// Classify maps an OSC address and its arguments to an Event, or nil.
func Classify(address string, args []any) Event {
	ev, _ := ClassifyFamily(address, args)
	return ev
}

// ClassifyFamily is Classify that also reports which family claimed the
// address, so rejected messages can still be attributed. The family is empty
// when the address has no segments.
func ClassifyFamily(address string, args []any) (Event, string) {
	parts := protocol.Segments(address)
	if len(parts) == 0 {
		return nil, ""
	}
	args = unwrapAll(args)
	for _, f := range families {
		if f.matches(parts) {
			return f.parse(parts, args), f.name
		}
	}
	return nil, ""
}

func parseConfig(parts []string, args []any) Event {
	i := protocol.Index(parts, "config")
	if i+1 >= len(parts) {
		return nil
	}
	switch parts[i+1] {
	case "speakers":
		if i+2 != len(parts) {
			return nil
		}
		n, ok := toIndex(argAt(args, 0))
		if !ok {
			return nil
		}
		return SpeakerCount{Count: n}
	case "speaker":
		if i+3 != len(parts) {
			return nil
		}
		index, ok := toIndex(parts[i+2])
		if !ok {
			return nil
		}
		return parseSpeakerConfig(index, args)
	}
	return nil
}

// parseSpeakerConfig reads <name> <az> <el> [dist] [spatialize].
func parseSpeakerConfig(index int, args []any) Event {
	if len(args) < 3 {
		return nil
	}
	az, ok := toFloat(args[1])
	if !ok {
		return nil
	}
	el, ok := toFloat(args[2])
	if !ok {
		return nil
	}
	dist := 1.0
	if len(args) > 3 {
		d, ok := toFloat(args[3])
		if !ok {
			return nil
		}
		dist = d
	}
	spatialize := true
	if len(args) > 4 {
		if b, ok := toBool(args[4]); ok {
			spatialize = b
		}
	}
	name := stringify(args[0])
	if name == "" {
		name = stringify(index)
	}
	return SpeakerConfig{
		Index:      index,
		Name:       name,
		Azimuth:    az,
		Elevation:  el,
		Distance:   dist,
		Spatialize: spatialize,
		Position:   scene.RendererSphericalToCartesian(az, el, dist),
	}
}

func parseState(parts []string, args []any) Event {
	i := protocol.Index(parts, "state")
	rest := parts[i+1:]
	if len(rest) == 0 {
		return nil
	}
	first := argAt(args, 0)

	switch rest[0] {
	case protocol.KindObject, protocol.KindSpeaker:
		if len(rest) != 3 {
			return nil
		}
		index, ok := toIndex(rest[1])
		if !ok {
			return nil
		}
		switch rest[2] {
		case "gain":
			g, ok := toFloat(first)
			if !ok {
				return nil
			}
			return ChannelGain{Kind: rest[0], Index: index, Gain: scene.Clamp(g, 0, 2)}
		case "mute":
			m, ok := toBool(first)
			if !ok {
				return nil
			}
			return ChannelMute{Kind: rest[0], Index: index, Muted: m}
		}

	case "room_ratio":
		if len(rest) != 1 {
			return nil
		}
		vals := numerics(args)
		if len(vals) < 3 || vals[0] <= 0 || vals[1] <= 0 || vals[2] <= 0 {
			return nil
		}
		return RoomRatio{Width: vals[0], Length: vals[1], Height: vals[2]}

	case "spread":
		if len(rest) != 2 {
			return nil
		}
		v, ok := toFloat(first)
		if !ok {
			return nil
		}
		switch rest[1] {
		case "min":
			return SpreadMin{Value: v}
		case "max":
			return SpreadMax{Value: v}
		}

	case "dialog_norm":
		if len(rest) == 1 {
			on, ok := toBool(first)
			if !ok {
				return nil
			}
			return DialogNormEnabled{Enabled: on}
		}
		if len(rest) != 2 {
			return nil
		}
		v, ok := toFloat(first)
		if !ok {
			return nil
		}
		switch rest[1] {
		case "level":
			return DialogNormLevel{Level: scene.Clamp(v, -100, 0)}
		case "gain":
			return DialogNormGain{Gain: v}
		}

	case "master_gain", "gain":
		if len(rest) != 1 {
			return nil
		}
		g, ok := toFloat(first)
		if !ok {
			return nil
		}
		return MasterGain{Gain: scene.Clamp(g, 0, 2)}

	case "latency":
		if len(rest) != 1 {
			return nil
		}
		ms, ok := toFloat(first)
		if !ok || ms < 0 {
			return nil
		}
		return Latency{RawMs: ms}

	case "resample_ratio":
		if len(rest) != 1 {
			return nil
		}
		r, ok := toFloat(first)
		if !ok || r <= 0 {
			return nil
		}
		return ResampleRatio{Ratio: r}
	}
	return nil
}

func dbfs(v any) float64 {
	f, ok := toFloat(v)
	if !ok {
		return -100
	}
	return scene.Clamp(f, -100, 0)
}

func parseMeter(parts []string, args []any) Event {
	i := protocol.Index(parts, "meter")
	if len(parts) <= i+2 {
		return nil
	}
	kind, id := parts[i+1], parts[i+2]

	if kind == protocol.KindObject && len(parts) > i+3 && parts[i+3] == "gains" {
		gains := make([]float64, len(args))
		for j, a := range args {
			if g, ok := toFloat(a); ok {
				gains[j] = scene.Clamp(g, 0, 1)
			}
		}
		return ObjectGains{ID: id, Gains: gains}
	}

	peak, rms := dbfs(argAt(args, 0)), dbfs(argAt(args, 1))
	switch kind {
	case protocol.KindObject:
		return ObjectMeter{ID: id, PeakDbfs: peak, RmsDbfs: rms}
	case protocol.KindSpeaker:
		return SpeakerMeter{ID: id, PeakDbfs: peak, RmsDbfs: rms}
	}
	return nil
}

// anchorID returns the segment following the first anchor that is not itself
// a reserved word.
func anchorID(parts []string) string {
	for i := 0; i < len(parts)-1; i++ {
		if !isAnchor(parts[i]) {
			continue
		}
		if next := parts[i+1]; !reservedSegments[next] {
			return next
		}
	}
	return ""
}

func isAnchor(segment string) bool {
	for _, a := range anchorSegments {
		if a == segment {
			return true
		}
	}
	return false
}

func parseRemove(parts []string, args []any) Event {
	id := ""
	if len(args) > 0 {
		id = stringify(args[0])
	}
	if id == "" {
		id = anchorID(parts)
	}
	if id == "" {
		return nil
	}
	return Remove{ID: id}
}

func parseUpdate(parts []string, args []any) Event {
	id := anchorID(parts)
	rest := args
	if id == "" && len(args) >= 4 {
		id = stringify(args[0])
		rest = args[1:]
	}
	if id == "" {
		return nil
	}
	vals := numerics(rest)
	if len(vals) < 3 {
		return nil
	}

	var pos scene.Vec3
	if protocol.ContainsAny(parts, sphericalHints...) {
		pos = scene.SphericalToCartesian(vals[0], vals[1], vals[2])
	} else {
		pos = scene.Vec3{X: vals[0], Y: vals[1], Z: vals[2]}
		if protocol.Contains(parts, protocol.Namespace) && protocol.Contains(parts, "object") && protocol.Contains(parts, "xyz") {
			pos = scene.RemapVendorXYZ(pos)
		}
	}

	return Update{ID: id, Position: pos.ClampUnit(), Name: displayName(rest)}
}

func displayName(args []any) string {
	for _, a := range args {
		s, ok := a.(string)
		if !ok || s == "" {
			continue
		}
		if _, numeric := toFloat(s); !numeric {
			return s
		}
	}
	return ""
}
