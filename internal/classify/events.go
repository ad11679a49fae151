package classify

import "github.com/mgth/SpatialVisualizer/internal/scene"

// Family names reported by Event.Family, also used as metric labels.
const (
	FamilyConfig = "config"
	FamilyState  = "state"
	FamilyMeter  = "meter"
	FamilyRemove = "remove"
	FamilyUpdate = "update"
)

// Event is one classified OSC message. The set of implementations is closed;
// consumers switch on the concrete type.
type Event interface {
	Family() string
}

// Update moves (and creates, if needed) a source.
type Update struct {
	ID       string
	Position scene.Vec3
	// Name is the optional display name; empty when the message carried none.
	Name string
}

// Remove deletes a source and everything attached to it.
type Remove struct {
	ID string
}

// ObjectMeter is a level reading for one source.
type ObjectMeter struct {
	ID       string
	PeakDbfs float64
	RmsDbfs  float64
}

// SpeakerMeter is a level reading for one output channel.
type SpeakerMeter struct {
	ID       string
	PeakDbfs float64
	RmsDbfs  float64
}

// ObjectGains is the full object-to-speaker gain vector of one source.
type ObjectGains struct {
	ID    string
	Gains []float64
}

// ChannelGain reports the gain of one object or speaker channel.
type ChannelGain struct {
	Kind  string // protocol.KindObject or protocol.KindSpeaker
	Index int
	Gain  float64
}

// ChannelMute reports the mute flag of one object or speaker channel.
type ChannelMute struct {
	Kind  string
	Index int
	Muted bool
}

// RoomRatio reports the room proportions.
type RoomRatio struct {
	Width, Length, Height float64
}

type SpreadMin struct{ Value float64 }

type SpreadMax struct{ Value float64 }

type DialogNormEnabled struct{ Enabled bool }

// DialogNormLevel is the dialog normalisation target in dBFS.
type DialogNormLevel struct{ Level float64 }

type DialogNormGain struct{ Gain float64 }

type MasterGain struct{ Gain float64 }

// Latency is a raw, unsmoothed latency sample in milliseconds.
type Latency struct{ RawMs float64 }

type ResampleRatio struct{ Ratio float64 }

// SpeakerCount opens a speaker configuration batch.
type SpeakerCount struct{ Count int }

// SpeakerConfig describes one speaker of the renderer's output layout.
type SpeakerConfig struct {
	Index      int
	Name       string
	Azimuth    float64
	Elevation  float64
	Distance   float64
	Spatialize bool
	Position   scene.Vec3
}

func (Update) Family() string            { return FamilyUpdate }
func (Remove) Family() string            { return FamilyRemove }
func (ObjectMeter) Family() string       { return FamilyMeter }
func (SpeakerMeter) Family() string      { return FamilyMeter }
func (ObjectGains) Family() string       { return FamilyMeter }
func (ChannelGain) Family() string       { return FamilyState }
func (ChannelMute) Family() string       { return FamilyState }
func (RoomRatio) Family() string         { return FamilyState }
func (SpreadMin) Family() string         { return FamilyState }
func (SpreadMax) Family() string         { return FamilyState }
func (DialogNormEnabled) Family() string { return FamilyState }
func (DialogNormLevel) Family() string   { return FamilyState }
func (DialogNormGain) Family() string    { return FamilyState }
func (MasterGain) Family() string        { return FamilyState }
func (Latency) Family() string           { return FamilyState }
func (ResampleRatio) Family() string     { return FamilyState }
func (SpeakerCount) Family() string      { return FamilyConfig }
func (SpeakerConfig) Family() string     { return FamilyConfig }
