// Package protocol names the OSC addresses exchanged with the renderer.
//
// Inbound addresses are matched segment by segment (see package classify);
// outbound addresses are always built here so the vendor namespace appears
// in exactly one place.
package protocol

import (
	"strconv"
	"strings"
)

// Namespace is the vendor segment every renderer-specific address carries.
const Namespace = "truehdd"

// Channel kinds used in state and control addresses.
const (
	KindObject  = "object"
	KindSpeaker = "speaker"
)

// Segments splits an OSC address into lower-cased, non-empty segments.
func Segments(address string) []string {
	raw := strings.Split(address, "/")
	parts := make([]string, 0, len(raw))
	for _, p := range raw {
		if p == "" {
			continue
		}
		parts = append(parts, strings.ToLower(p))
	}
	return parts
}

// Contains reports whether segment is one of parts.
func Contains(parts []string, segment string) bool {
	return Index(parts, segment) >= 0
}

// ContainsAny reports whether any of segments is one of parts.
func ContainsAny(parts []string, segments ...string) bool {
	for _, s := range segments {
		if Contains(parts, s) {
			return true
		}
	}
	return false
}

// Index returns the position of the first occurrence of segment, or -1.
func Index(parts []string, segment string) int {
	for i, p := range parts {
		if p == segment {
			return i
		}
	}
	return -1
}

// HeartbeatResponse is the renderer's answer to a heartbeat.
type HeartbeatResponse int

const (
	// NotHeartbeat marks an ordinary address.
	NotHeartbeat HeartbeatResponse = iota
	// HeartbeatAck confirms the renderer still knows this client.
	HeartbeatAck
	// HeartbeatUnknown means the renderer lost track of this client.
	HeartbeatUnknown
)

// ClassifyHeartbeat recognises .../heartbeat/ack and .../heartbeat/unknown.
func ClassifyHeartbeat(address string) HeartbeatResponse {
	parts := Segments(address)
	n := len(parts)
	if n < 2 || parts[n-2] != "heartbeat" {
		return NotHeartbeat
	}
	switch parts[n-1] {
	case "ack":
		return HeartbeatAck
	case "unknown":
		return HeartbeatUnknown
	}
	return NotHeartbeat
}

func join(segments ...string) string {
	return "/" + Namespace + "/" + strings.Join(segments, "/")
}

// RegisterAddress asks the renderer to start sending to this client.
func RegisterAddress() string { return join("register") }

// HeartbeatAddress keeps the registration alive.
func HeartbeatAddress() string { return join("heartbeat") }

// ChannelGainAddress sets the gain of one object or speaker channel.
func ChannelGainAddress(kind string, index int) string {
	return join("control", kind, strconv.Itoa(index), "gain")
}

// ChannelMuteAddress mutes or unmutes one object or speaker channel.
func ChannelMuteAddress(kind string, index int) string {
	return join("control", kind, strconv.Itoa(index), "mute")
}

// MasterGainAddress sets the master output gain.
func MasterGainAddress() string { return join("control", "gain") }

// DialogNormAddress toggles dialog normalisation.
func DialogNormAddress() string { return join("control", "dialog_norm") }

// SpreadAddress sets one spread bound; bound is "min" or "max".
func SpreadAddress(bound string) string { return join("control", "spread", bound) }

// SpeakerParamAddress edits one spherical parameter of a speaker; param is
// "azimuth", "elevation" or "distance".
func SpeakerParamAddress(index int, param string) string {
	return join("control", KindSpeaker, strconv.Itoa(index), param)
}

// ApplySpeakersAddress commits pending speaker edits on the renderer.
func ApplySpeakersAddress() string { return join("control", "speakers", "apply") }
