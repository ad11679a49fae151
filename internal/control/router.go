// Package control validates commands sent by observers and turns them into
// OSC control messages for the renderer.
package control

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/hypebeast/go-osc/osc"
	"go.uber.org/zap"

	"github.com/mgth/SpatialVisualizer/internal/metrics"
	"github.com/mgth/SpatialVisualizer/internal/protocol"
	"github.com/mgth/SpatialVisualizer/internal/scene"
	"github.com/mgth/SpatialVisualizer/internal/session"
)

// ErrInvalidCommand wraps every validation failure.
var ErrInvalidCommand = errors.New("invalid command")

// Command types accepted from observers.
const (
	TypeObjectGain      = "control:object:gain"
	TypeSpeakerGain     = "control:speaker:gain"
	TypeObjectMute      = "control:object:mute"
	TypeSpeakerMute     = "control:speaker:mute"
	TypeMasterGain      = "control:master:gain"
	TypeDialogNorm      = "control:dialog_norm"
	TypeSpread          = "control:spread"
	TypeSpeakerAzimuth  = "control:speaker:az"
	TypeSpeakerElev     = "control:speaker:el"
	TypeSpeakerDistance = "control:speaker:distance"
	TypeSpeakersApply   = "control:speakers:apply"
	TypeLayoutSelect    = "layout:select"
)

// command is the union of every command's fields.
type command struct {
	Type   string          `json:"type"`
	ID     json.RawMessage `json:"id"`
	Gain   *float64        `json:"gain"`
	Value  *float64        `json:"value"`
	Min    *float64        `json:"min"`
	Max    *float64        `json:"max"`
	Muted  json.RawMessage `json:"muted"`
	Enable json.RawMessage `json:"enable"`
	Key    *string         `json:"key"`
}

// Action is a validated command.
type Action struct {
	Type string
	// Messages go to the renderer, in order.
	Messages []*osc.Message
	// LayoutKey is set for layout:select, which is handled locally.
	LayoutKey string
}

// Parse validates one JSON command. current holds the spread bounds the
// renderer last reported; a single-bound spread command is clamped against
// them so min never exceeds max.
func Parse(data []byte, current session.Spread) (Action, error) {
	var cmd command
	dec := json.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(&cmd); err != nil {
		return Action{}, fmt.Errorf("%w: %v", ErrInvalidCommand, err)
	}
	act := Action{Type: cmd.Type}

	switch cmd.Type {
	case TypeObjectGain, TypeSpeakerGain:
		id, err := parseID(cmd.ID)
		if err != nil {
			return act, err
		}
		g, err := finite("gain", cmd.Gain)
		if err != nil {
			return act, err
		}
		act.Messages = single(protocol.ChannelGainAddress(kindOf(cmd.Type), id), float32(scene.Clamp(g, 0, 2)))

	case TypeObjectMute, TypeSpeakerMute:
		id, err := parseID(cmd.ID)
		if err != nil {
			return act, err
		}
		muted, err := parseFlag("muted", cmd.Muted)
		if err != nil {
			return act, err
		}
		act.Messages = single(protocol.ChannelMuteAddress(kindOf(cmd.Type), id), flag(muted))

	case TypeMasterGain:
		g, err := finite("gain", cmd.Gain)
		if err != nil {
			return act, err
		}
		act.Messages = single(protocol.MasterGainAddress(), float32(scene.Clamp(g, 0, 2)))

	case TypeDialogNorm:
		on, err := parseFlag("enable", cmd.Enable)
		if err != nil {
			return act, err
		}
		act.Messages = single(protocol.DialogNormAddress(), flag(on))

	case TypeSpread:
		if cmd.Min == nil && cmd.Max == nil {
			return act, fmt.Errorf("%w: spread needs min or max", ErrInvalidCommand)
		}
		var lo, hi float64
		if cmd.Min != nil {
			v, err := finite("min", cmd.Min)
			if err != nil {
				return act, err
			}
			lo = v
			// A lone min may not pass the renderer's current max.
			if cmd.Max == nil && current.Max != nil && lo > *current.Max {
				lo = *current.Max
			}
			act.Messages = append(act.Messages, osc.NewMessage(protocol.SpreadAddress("min"), float32(lo)))
		}
		if cmd.Max != nil {
			v, err := finite("max", cmd.Max)
			if err != nil {
				return act, err
			}
			hi = v
			switch {
			case cmd.Min != nil && hi < lo:
				hi = lo
			case cmd.Min == nil && current.Min != nil && hi < *current.Min:
				hi = *current.Min
			}
			act.Messages = append(act.Messages, osc.NewMessage(protocol.SpreadAddress("max"), float32(hi)))
		}

	case TypeSpeakerAzimuth, TypeSpeakerElev, TypeSpeakerDistance:
		id, err := parseID(cmd.ID)
		if err != nil {
			return act, err
		}
		v, err := finite("value", cmd.Value)
		if err != nil {
			return act, err
		}
		var param string
		switch cmd.Type {
		case TypeSpeakerAzimuth:
			param, v = "azimuth", scene.WrapAzimuth(v)
		case TypeSpeakerElev:
			param, v = "elevation", scene.Clamp(v, -90, 90)
		default:
			param, v = "distance", math.Max(0, v)
		}
		act.Messages = single(protocol.SpeakerParamAddress(id, param), float32(v))

	case TypeSpeakersApply:
		act.Messages = []*osc.Message{osc.NewMessage(protocol.ApplySpeakersAddress())}

	case TypeLayoutSelect:
		if cmd.Key == nil || strings.TrimSpace(*cmd.Key) == "" {
			return act, fmt.Errorf("%w: layout:select needs a key", ErrInvalidCommand)
		}
		act.LayoutKey = *cmd.Key

	case "":
		return act, fmt.Errorf("%w: missing type", ErrInvalidCommand)
	default:
		return act, fmt.Errorf("%w: unknown type %q", ErrInvalidCommand, cmd.Type)
	}
	return act, nil
}

func kindOf(cmdType string) string {
	if strings.HasPrefix(cmdType, "control:speaker:") {
		return protocol.KindSpeaker
	}
	return protocol.KindObject
}

func single(address string, arg any) []*osc.Message {
	return []*osc.Message{osc.NewMessage(address, arg)}
}

func flag(on bool) int32 {
	if on {
		return 1
	}
	return 0
}

func finite(name string, v *float64) (float64, error) {
	if v == nil {
		return 0, fmt.Errorf("%w: missing %s", ErrInvalidCommand, name)
	}
	if math.IsNaN(*v) || math.IsInf(*v, 0) {
		return 0, fmt.Errorf("%w: %s is not finite", ErrInvalidCommand, name)
	}
	return *v, nil
}

// parseID accepts a non-negative integer as a JSON number or digit string.
func parseID(raw json.RawMessage) (int, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return 0, fmt.Errorf("%w: missing id", ErrInvalidCommand)
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		raw = json.RawMessage(strings.TrimSpace(s))
	}
	n, err := strconv.ParseUint(string(raw), 10, 31)
	if err != nil {
		var f float64
		if json.Unmarshal(raw, &f) != nil || f < 0 || f != math.Trunc(f) || f > math.MaxInt32 {
			return 0, fmt.Errorf("%w: id %s is not a non-negative integer", ErrInvalidCommand, raw)
		}
		return int(f), nil
	}
	return int(n), nil
}

// parseFlag accepts a JSON bool or a number (non-zero is true).
func parseFlag(name string, raw json.RawMessage) (bool, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return false, fmt.Errorf("%w: missing %s", ErrInvalidCommand, name)
	}
	var b bool
	if err := json.Unmarshal(raw, &b); err == nil {
		return b, nil
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return f != 0, nil
	}
	return false, fmt.Errorf("%w: %s must be a boolean", ErrInvalidCommand, name)
}

// MessageSender delivers OSC messages to the renderer without blocking.
type MessageSender interface {
	Send(msg *osc.Message) error
}

// Router sends validated commands to the renderer.
type Router struct {
	sender  MessageSender
	logger  *zap.Logger
	metrics *metrics.Metrics
}

// NewRouter creates a Router.
func NewRouter(sender MessageSender, logger *zap.Logger, m *metrics.Metrics) *Router {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Router{sender: sender, logger: logger, metrics: m}
}

// Route validates data and sends any resulting OSC messages. The returned
// key is non-empty for a layout selection, which the caller applies locally.
// Invalid commands are logged at debug and reported as ErrInvalidCommand.
func (r *Router) Route(data []byte, spread session.Spread) (string, error) {
	act, err := Parse(data, spread)
	label := act.Type
	if errors.Is(err, ErrInvalidCommand) && !knownType(label) {
		label = "unknown"
	}
	if err != nil {
		r.metrics.RecordCommand(label, "invalid")
		r.logger.Debug("dropping observer command", zap.Error(err))
		return "", err
	}
	r.metrics.RecordCommand(label, "ok")

	for _, msg := range act.Messages {
		if err := r.sender.Send(msg); err != nil {
			r.logger.Debug("control message not sent", zap.String("address", msg.Address), zap.Error(err))
		}
	}
	return act.LayoutKey, nil
}

func knownType(t string) bool {
	switch t {
	case TypeObjectGain, TypeSpeakerGain, TypeObjectMute, TypeSpeakerMute,
		TypeMasterGain, TypeDialogNorm, TypeSpread,
		TypeSpeakerAzimuth, TypeSpeakerElev, TypeSpeakerDistance,
		TypeSpeakersApply, TypeLayoutSelect:
		return true
	}
	return false
}
