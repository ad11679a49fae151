package session

import "github.com/mgth/SpatialVisualizer/internal/scene"

// Message types sent to observers.
const (
	TypeStateInit       = "state:init"
	TypeSourceUpdate    = "source:update"
	TypeSourceRemove    = "source:remove"
	TypeSourceMeter     = "source:meter"
	TypeSourceGains     = "source:gains"
	TypeSpeakerMeter    = "speaker:meter"
	TypeObjectGain      = "object:gain"
	TypeSpeakerGain     = "speaker:gain"
	TypeObjectMute      = "object:mute"
	TypeSpeakerMute     = "speaker:mute"
	TypeRoomRatio       = "room_ratio"
	TypeSpreadMin       = "spread:min"
	TypeSpreadMax       = "spread:max"
	TypeDialogNorm      = "dialog_norm"
	TypeDialogNormLevel = "dialog_norm:level"
	TypeDialogNormGain  = "dialog_norm:gain"
	TypeMasterGain      = "master:gain"
	TypeLatency         = "latency"
	TypeResampleRatio   = "resample_ratio"
	TypeLayoutsUpdate   = "layouts:update"
	TypeLayoutSelected  = "layout:selected"
)

// Message is a JSON document pushed to observers.
type Message interface {
	MessageType() string
}

// Header carries the discriminator shared by every message.
type Header struct {
	Type string `json:"type"`
}

func (h Header) MessageType() string { return h.Type }

// StateInit is the full snapshot sent once to each new observer.
type StateInit struct {
	Header
	Snapshot
}

type SourceUpdate struct {
	Header
	ID       string `json:"id"`
	Position Source `json:"position"`
}

type SourceRemove struct {
	Header
	ID string `json:"id"`
}

// MeterUpdate is used for both source:meter and speaker:meter.
type MeterUpdate struct {
	Header
	ID string `json:"id"`
	MeterReading
}

type SourceGains struct {
	Header
	ID    string    `json:"id"`
	Gains []float64 `json:"gains"`
}

// ChannelGainUpdate is used for object:gain and speaker:gain.
type ChannelGainUpdate struct {
	Header
	ID   int     `json:"id"`
	Gain float64 `json:"gain"`
}

// ChannelMuteUpdate is used for object:mute and speaker:mute.
type ChannelMuteUpdate struct {
	Header
	ID    int  `json:"id"`
	Muted bool `json:"muted"`
}

type RoomRatioUpdate struct {
	Header
	RoomRatio
}

// ScalarUpdate carries a single numeric value.
type ScalarUpdate struct {
	Header
	Value float64 `json:"value"`
}

// ToggleUpdate carries a single boolean value.
type ToggleUpdate struct {
	Header
	Value bool `json:"value"`
}

type LayoutsUpdate struct {
	Header
	Layouts []scene.Layout `json:"layouts"`
}

type LayoutSelected struct {
	Header
	Key string `json:"key"`
}

func header(t string) Header { return Header{Type: t} }
