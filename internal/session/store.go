// Package session holds the canonical scene state published to observers.
//
// A Store has exactly one writer. It is not safe for concurrent use; the
// bridge engine owns it and serialises every mutation through its goroutine.
package session

import (
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/mgth/SpatialVisualizer/internal/classify"
	"github.com/mgth/SpatialVisualizer/internal/protocol"
	"github.com/mgth/SpatialVisualizer/internal/scene"
)

// LatencySmoothing is the weight of a new latency sample in the moving
// average.
const LatencySmoothing = 0.08

// LiveLayoutName is the display name of the layout reported by the renderer.
const LiveLayoutName = "Renderer (live)"

// Source is the published record of one audio object.
type Source struct {
	X         float64 `json:"x"`
	Y         float64 `json:"y"`
	Z         float64 `json:"z"`
	Name      string  `json:"name,omitempty"`
	UpdatedAt int64   `json:"updatedAt"`
}

type MeterReading struct {
	PeakDbfs float64 `json:"peakDbfs"`
	RmsDbfs  float64 `json:"rmsDbfs"`
}

type RoomRatio struct {
	Width  float64 `json:"width"`
	Length float64 `json:"length"`
	Height float64 `json:"height"`
}

// DefaultRoomRatio is published until the renderer reports its own.
var DefaultRoomRatio = RoomRatio{Width: 1, Length: 2, Height: 1}

// Spread bounds are nil until first reported.
type Spread struct {
	Min *float64 `json:"min"`
	Max *float64 `json:"max"`
}

type DialogNorm struct {
	Enabled *bool    `json:"enabled"`
	Level   *float64 `json:"level"`
	Gain    *float64 `json:"gain"`
}

// Snapshot is a deep copy of everything a new observer needs.
type Snapshot struct {
	Sources        map[string]Source       `json:"sources"`
	SourceMeters   map[string]MeterReading `json:"sourceMeters"`
	SpeakerMeters  map[string]MeterReading `json:"speakerMeters"`
	SourceGains    map[string][]float64    `json:"sourceGains"`
	ObjectGain     map[int]float64         `json:"objectGain"`
	ObjectMute     map[int]bool            `json:"objectMute"`
	SpeakerGain    map[int]float64         `json:"speakerGain"`
	SpeakerMute    map[int]bool            `json:"speakerMute"`
	RoomRatio      RoomRatio               `json:"roomRatio"`
	Spread         Spread                  `json:"spread"`
	DialogNorm     DialogNorm              `json:"dialogNorm"`
	MasterGain     *float64                `json:"masterGain"`
	Latency        *float64                `json:"latency"`
	ResampleRatio  *float64                `json:"resampleRatio"`
	Layouts        []scene.Layout          `json:"layouts"`
	SelectedLayout string                  `json:"selectedLayout"`
}

type speakerBatch struct {
	declared int // -1 when no count was announced
	speakers map[int]classify.SpeakerConfig
	dirty    bool
}

// Store is the single-writer session state.
type Store struct {
	state Snapshot

	fileLayouts []scene.Layout
	liveLayout  *scene.Layout

	latencyEMA    float64
	latencySeeded bool

	inBatch bool
	batch   *speakerBatch

	logger *zap.Logger
}

// NewStore returns an empty store.
func NewStore(logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		state: Snapshot{
			Sources:       make(map[string]Source),
			SourceMeters:  make(map[string]MeterReading),
			SpeakerMeters: make(map[string]MeterReading),
			SourceGains:   make(map[string][]float64),
			ObjectGain:    make(map[int]float64),
			ObjectMute:    make(map[int]bool),
			SpeakerGain:   make(map[int]float64),
			SpeakerMute:   make(map[int]bool),
			RoomRatio:     DefaultRoomRatio,
		},
		logger: logger,
	}
}

func float(v float64) *float64 { return &v }

// Apply mutates the state for one event and returns the deltas to publish.
func (s *Store) Apply(ev classify.Event, now time.Time) []Message {
	switch e := ev.(type) {
	case classify.Update:
		src := Source{X: e.Position.X, Y: e.Position.Y, Z: e.Position.Z, UpdatedAt: now.UnixMilli()}
		if e.Name != "" {
			src.Name = e.Name
		} else if prev, ok := s.state.Sources[e.ID]; ok {
			src.Name = prev.Name
		}
		s.state.Sources[e.ID] = src
		return one(SourceUpdate{Header: header(TypeSourceUpdate), ID: e.ID, Position: src})

	case classify.Remove:
		delete(s.state.Sources, e.ID)
		delete(s.state.SourceMeters, e.ID)
		delete(s.state.SourceGains, e.ID)
		return one(SourceRemove{Header: header(TypeSourceRemove), ID: e.ID})

	case classify.ObjectMeter:
		m := MeterReading{PeakDbfs: e.PeakDbfs, RmsDbfs: e.RmsDbfs}
		s.state.SourceMeters[e.ID] = m
		return one(MeterUpdate{Header: header(TypeSourceMeter), ID: e.ID, MeterReading: m})

	case classify.SpeakerMeter:
		m := MeterReading{PeakDbfs: e.PeakDbfs, RmsDbfs: e.RmsDbfs}
		s.state.SpeakerMeters[e.ID] = m
		return one(MeterUpdate{Header: header(TypeSpeakerMeter), ID: e.ID, MeterReading: m})

	case classify.ObjectGains:
		gains := append([]float64(nil), e.Gains...)
		s.state.SourceGains[e.ID] = gains
		return one(SourceGains{Header: header(TypeSourceGains), ID: e.ID, Gains: gains})

	case classify.ChannelGain:
		if e.Kind == protocol.KindSpeaker {
			s.state.SpeakerGain[e.Index] = e.Gain
			return one(ChannelGainUpdate{Header: header(TypeSpeakerGain), ID: e.Index, Gain: e.Gain})
		}
		s.state.ObjectGain[e.Index] = e.Gain
		return one(ChannelGainUpdate{Header: header(TypeObjectGain), ID: e.Index, Gain: e.Gain})

	case classify.ChannelMute:
		if e.Kind == protocol.KindSpeaker {
			s.state.SpeakerMute[e.Index] = e.Muted
			return one(ChannelMuteUpdate{Header: header(TypeSpeakerMute), ID: e.Index, Muted: e.Muted})
		}
		s.state.ObjectMute[e.Index] = e.Muted
		return one(ChannelMuteUpdate{Header: header(TypeObjectMute), ID: e.Index, Muted: e.Muted})

	case classify.RoomRatio:
		s.state.RoomRatio = RoomRatio{Width: e.Width, Length: e.Length, Height: e.Height}
		return one(RoomRatioUpdate{Header: header(TypeRoomRatio), RoomRatio: s.state.RoomRatio})

	case classify.SpreadMin:
		s.state.Spread.Min = float(e.Value)
		return scalar(TypeSpreadMin, e.Value)

	case classify.SpreadMax:
		s.state.Spread.Max = float(e.Value)
		return scalar(TypeSpreadMax, e.Value)

	case classify.DialogNormEnabled:
		on := e.Enabled
		s.state.DialogNorm.Enabled = &on
		return one(ToggleUpdate{Header: header(TypeDialogNorm), Value: on})

	case classify.DialogNormLevel:
		s.state.DialogNorm.Level = float(e.Level)
		return scalar(TypeDialogNormLevel, e.Level)

	case classify.DialogNormGain:
		s.state.DialogNorm.Gain = float(e.Gain)
		return scalar(TypeDialogNormGain, e.Gain)

	case classify.MasterGain:
		s.state.MasterGain = float(e.Gain)
		return scalar(TypeMasterGain, e.Gain)

	case classify.Latency:
		if !s.latencySeeded {
			s.latencyEMA = e.RawMs
			s.latencySeeded = true
		} else {
			s.latencyEMA += LatencySmoothing * (e.RawMs - s.latencyEMA)
		}
		s.state.Latency = float(s.latencyEMA)
		return scalar(TypeLatency, s.latencyEMA)

	case classify.ResampleRatio:
		s.state.ResampleRatio = float(e.Ratio)
		return scalar(TypeResampleRatio, e.Ratio)

	case classify.SpeakerCount:
		s.batch = &speakerBatch{declared: e.Count, speakers: make(map[int]classify.SpeakerConfig)}
		if e.Count == 0 {
			// Zero speakers is already complete.
			b := s.batch
			s.batch = nil
			return s.flushBatch(b)
		}
		return nil

	case classify.SpeakerConfig:
		if s.batch == nil {
			s.batch = &speakerBatch{declared: -1, speakers: make(map[int]classify.SpeakerConfig)}
		}
		s.batch.speakers[e.Index] = e
		s.batch.dirty = true
		if s.batch.declared >= 0 && len(s.batch.speakers) == s.batch.declared {
			return s.flushBatch(s.batch)
		}
		if !s.inBatch {
			// Speaker configuration outside a datagram bracket: publish as it
			// arrives.
			return s.flushBatch(s.batch)
		}
		return nil
	}
	return nil
}

func one(m Message) []Message { return []Message{m} }

func scalar(t string, v float64) []Message {
	return one(ScalarUpdate{Header: header(t), Value: v})
}

// BeginBatch marks the start of one datagram.
func (s *Store) BeginBatch() {
	s.inBatch = true
}

// EndBatch marks the end of one datagram. Speakers configured in it but not
// yet published are published now, even when fewer (or more) arrived than
// the renderer announced.
func (s *Store) EndBatch() []Message {
	s.inBatch = false
	b := s.batch
	if b == nil || len(b.speakers) == 0 {
		// A bare count stays open for the speakers that follow it.
		return nil
	}
	s.batch = nil
	if !b.dirty {
		return nil
	}
	if b.declared >= 0 && len(b.speakers) != b.declared {
		s.logger.Warn("speaker configuration count mismatch",
			zap.Int("declared", b.declared),
			zap.Int("received", len(b.speakers)))
	}
	return s.flushBatch(b)
}

func (s *Store) flushBatch(b *speakerBatch) []Message {
	indices := make([]int, 0, len(b.speakers))
	for i := range b.speakers {
		indices = append(indices, i)
	}
	sort.Ints(indices)

	live := scene.Layout{Key: scene.LiveLayoutKey, Name: LiveLayoutName, Speakers: make([]scene.Speaker, 0, len(indices))}
	for _, i := range indices {
		sc := b.speakers[i]
		live.Speakers = append(live.Speakers, scene.Speaker{
			ID:         sc.Name,
			X:          sc.Position.X,
			Y:          sc.Position.Y,
			Z:          sc.Position.Z,
			Spatialize: sc.Spatialize,
			Azimuth:    sc.Azimuth,
			Elevation:  sc.Elevation,
			Distance:   sc.Distance,
		})
	}
	b.dirty = false
	s.liveLayout = &live
	s.state.SelectedLayout = scene.LiveLayoutKey

	s.logger.Info("renderer speaker layout updated", zap.Int("speakers", len(live.Speakers)))
	return []Message{
		LayoutsUpdate{Header: header(TypeLayoutsUpdate), Layouts: s.Layouts()},
		LayoutSelected{Header: header(TypeLayoutSelected), Key: scene.LiveLayoutKey},
	}
}

// Layouts returns file layouts plus the live layout, sorted by name.
func (s *Store) Layouts() []scene.Layout {
	out := make([]scene.Layout, 0, len(s.fileLayouts)+1)
	for _, l := range s.fileLayouts {
		out = append(out, l.Clone())
	}
	if s.liveLayout != nil {
		out = append(out, s.liveLayout.Clone())
	}
	scene.SortLayouts(out)
	return out
}

// SelectedLayout returns the key of the selected layout, or "".
func (s *Store) SelectedLayout() string { return s.state.SelectedLayout }

// Spread returns a copy of the renderer's reported spread range.
func (s *Store) Spread() Spread {
	return Spread{Min: clonePtr(s.state.Spread.Min), Max: clonePtr(s.state.Spread.Max)}
}

func (s *Store) hasLayout(key string) bool {
	if key == "" {
		return false
	}
	if s.liveLayout != nil && s.liveLayout.Key == key {
		return true
	}
	for _, l := range s.fileLayouts {
		if l.Key == key {
			return true
		}
	}
	return false
}

// SetFileLayouts replaces the layouts loaded from disk. The live layout is
// kept. The selection survives if its key still exists, otherwise the first
// layout is selected.
func (s *Store) SetFileLayouts(layouts []scene.Layout) []Message {
	s.fileLayouts = make([]scene.Layout, 0, len(layouts))
	for _, l := range layouts {
		if l.Key == scene.LiveLayoutKey {
			s.logger.Warn("ignoring file layout with reserved key", zap.String("key", l.Key))
			continue
		}
		s.fileLayouts = append(s.fileLayouts, l.Clone())
	}

	all := s.Layouts()
	msgs := []Message{LayoutsUpdate{Header: header(TypeLayoutsUpdate), Layouts: all}}

	if s.hasLayout(s.state.SelectedLayout) {
		return msgs
	}
	next := ""
	if len(all) > 0 {
		next = all[0].Key
	}
	if next != s.state.SelectedLayout {
		s.state.SelectedLayout = next
		msgs = append(msgs, LayoutSelected{Header: header(TypeLayoutSelected), Key: next})
	}
	return msgs
}

// SelectLayout selects a known layout. Unknown keys are ignored.
func (s *Store) SelectLayout(key string) []Message {
	if !s.hasLayout(key) {
		return nil
	}
	s.state.SelectedLayout = key
	return one(LayoutSelected{Header: header(TypeLayoutSelected), Key: key})
}

// ResetLatency restarts the latency average. The published value is kept
// until the next sample arrives.
func (s *Store) ResetLatency() {
	s.latencyEMA = 0
	s.latencySeeded = false
}

// Snapshot returns a deep copy of the current state.
func (s *Store) Snapshot() Snapshot {
	st := s.state
	out := Snapshot{
		Sources:        make(map[string]Source, len(st.Sources)),
		SourceMeters:   make(map[string]MeterReading, len(st.SourceMeters)),
		SpeakerMeters:  make(map[string]MeterReading, len(st.SpeakerMeters)),
		SourceGains:    make(map[string][]float64, len(st.SourceGains)),
		ObjectGain:     make(map[int]float64, len(st.ObjectGain)),
		ObjectMute:     make(map[int]bool, len(st.ObjectMute)),
		SpeakerGain:    make(map[int]float64, len(st.SpeakerGain)),
		SpeakerMute:    make(map[int]bool, len(st.SpeakerMute)),
		RoomRatio:      st.RoomRatio,
		Spread:         Spread{Min: clonePtr(st.Spread.Min), Max: clonePtr(st.Spread.Max)},
		DialogNorm:     DialogNorm{Enabled: clonePtr(st.DialogNorm.Enabled), Level: clonePtr(st.DialogNorm.Level), Gain: clonePtr(st.DialogNorm.Gain)},
		MasterGain:     clonePtr(st.MasterGain),
		Latency:        clonePtr(st.Latency),
		ResampleRatio:  clonePtr(st.ResampleRatio),
		Layouts:        s.Layouts(),
		SelectedLayout: st.SelectedLayout,
	}
	for k, v := range st.Sources {
		out.Sources[k] = v
	}
	for k, v := range st.SourceMeters {
		out.SourceMeters[k] = v
	}
	for k, v := range st.SpeakerMeters {
		out.SpeakerMeters[k] = v
	}
	for k, v := range st.SourceGains {
		out.SourceGains[k] = append([]float64(nil), v...)
	}
	for k, v := range st.ObjectGain {
		out.ObjectGain[k] = v
	}
	for k, v := range st.ObjectMute {
		out.ObjectMute[k] = v
	}
	for k, v := range st.SpeakerGain {
		out.SpeakerGain[k] = v
	}
	for k, v := range st.SpeakerMute {
		out.SpeakerMute[k] = v
	}
	return out
}

// Init wraps a snapshot as the state:init message.
func (s *Store) Init() StateInit {
	return StateInit{Header: header(TypeStateInit), Snapshot: s.Snapshot()}
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
