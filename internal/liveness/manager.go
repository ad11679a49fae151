// Package liveness keeps the renderer sending to us.
//
// The renderer only streams to clients that registered with it and keep
// answering its heartbeat handshake. Manager registers on start, sends a
// heartbeat every Interval and re-registers when no acknowledgement has been
// seen for longer than Timeout or when the renderer reports it no longer
// knows us.
package liveness

import (
	"context"
	"sync"
	"time"

	"github.com/hypebeast/go-osc/osc"
	"go.uber.org/zap"

	"github.com/mgth/SpatialVisualizer/internal/metrics"
	"github.com/mgth/SpatialVisualizer/internal/protocol"
	"github.com/mgth/SpatialVisualizer/internal/timeutil"
)

// Default timings.
const (
	DefaultInterval = 5 * time.Second
	DefaultTimeout  = 10 * time.Second
)

// Registration reasons, also used as metric labels.
const (
	ReasonStartup = "startup"
	ReasonTimeout = "heartbeat timeout"
	ReasonUnknown = "renderer unknown client"
)

// State of the registration handshake.
type State int

const (
	Unregistered State = iota
	Registered
	AwaitingAck
)

func (s State) String() string {
	switch s {
	case Registered:
		return "registered"
	case AwaitingAck:
		return "awaiting_ack"
	}
	return "unregistered"
}

// MessageSender delivers OSC messages to the renderer without blocking.
type MessageSender interface {
	Send(msg *osc.Message) error
}

// Config tunes a Manager. Zero durations take the defaults.
type Config struct {
	Interval time.Duration
	Timeout  time.Duration

	Clock   timeutil.Clock
	Logger  *zap.Logger
	Metrics *metrics.Metrics

	// OnRegister runs after every registration, outside the manager's lock.
	OnRegister func(reason string)
}

// Status is a point-in-time view of the handshake.
type Status struct {
	State         string    `json:"state"`
	Port          int       `json:"port"`
	LastAck       time.Time `json:"lastAck"`
	Registrations int       `json:"registrations"`
	Heartbeats    int       `json:"heartbeats"`
	Acks          int       `json:"acks"`
}

// Manager drives the registration and heartbeat state machine.
type Manager struct {
	sender     MessageSender
	interval   time.Duration
	timeout    time.Duration
	clock      timeutil.Clock
	logger     *zap.Logger
	metrics    *metrics.Metrics
	onRegister func(string)

	mu            sync.Mutex
	state         State
	port          int
	lastAck       time.Time
	registrations int
	heartbeats    int
	acks          int
}

// NewManager creates an unregistered Manager.
func NewManager(sender MessageSender, cfg Config) *Manager {
	m := &Manager{
		sender:     sender,
		interval:   cfg.Interval,
		timeout:    cfg.Timeout,
		clock:      cfg.Clock,
		logger:     cfg.Logger,
		metrics:    cfg.Metrics,
		onRegister: cfg.OnRegister,
	}
	if m.interval <= 0 {
		m.interval = DefaultInterval
	}
	if m.timeout <= 0 {
		m.timeout = DefaultTimeout
	}
	if m.clock == nil {
		m.clock = timeutil.RealClock{}
	}
	if m.logger == nil {
		m.logger = zap.NewNop()
	}
	return m
}

// Start registers with the renderer, announcing the port we listen on.
func (m *Manager) Start(port int) {
	m.mu.Lock()
	m.port = port
	m.registerLocked(ReasonStartup)
	m.mu.Unlock()
	m.notify(ReasonStartup)
}

// Run sends heartbeats until ctx is cancelled.
func (m *Manager) Run(ctx context.Context) {
	ticker := m.clock.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C():
			m.Tick()
		}
	}
}

// Tick sends one heartbeat and re-registers if the renderer has been silent
// for longer than the timeout.
func (m *Manager) Tick() {
	m.mu.Lock()
	if m.state == Unregistered {
		m.mu.Unlock()
		return
	}

	m.send(protocol.HeartbeatAddress())
	m.heartbeats++
	m.metrics.RecordHeartbeat()
	m.state = AwaitingAck

	silent := m.clock.Since(m.lastAck)
	expired := silent > m.timeout
	if expired {
		m.logger.Warn("re-registering with renderer",
			zap.String("reason", ReasonTimeout),
			zap.Duration("since_last_ack", silent))
		m.registerLocked(ReasonTimeout)
	}
	m.mu.Unlock()

	if expired {
		m.notify(ReasonTimeout)
	}
}

// HandleAck records a heartbeat acknowledgement.
func (m *Manager) HandleAck() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.lastAck = m.clock.Now()
	m.acks++
	m.metrics.RecordAck()
	if m.state == AwaitingAck {
		m.state = Registered
	}
}

// HandleUnknown re-registers immediately; the renderer has forgotten us,
// typically because it restarted.
func (m *Manager) HandleUnknown() {
	m.mu.Lock()
	if m.state == Unregistered {
		m.mu.Unlock()
		return
	}
	m.logger.Warn("re-registering with renderer", zap.String("reason", ReasonUnknown))
	m.registerLocked(ReasonUnknown)
	m.mu.Unlock()
	m.notify(ReasonUnknown)
}

// Status returns a copy of the current handshake state.
func (m *Manager) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Status{
		State:         m.state.String(),
		Port:          m.port,
		LastAck:       m.lastAck,
		Registrations: m.registrations,
		Heartbeats:    m.heartbeats,
		Acks:          m.acks,
	}
}

// State returns the current handshake state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *Manager) registerLocked(reason string) {
	m.send(protocol.RegisterAddress())
	m.state = Registered
	m.lastAck = m.clock.Now()
	m.registrations++
	m.metrics.RecordRegistration(reason)
	m.logger.Info("registered with renderer", zap.String("reason", reason), zap.Int("port", m.port))
}

func (m *Manager) send(address string) {
	msg := osc.NewMessage(address, int32(m.port))
	if err := m.sender.Send(msg); err != nil {
		m.logger.Debug("liveness send failed", zap.String("address", address), zap.Error(err))
	}
}

func (m *Manager) notify(reason string) {
	if m.onRegister != nil {
		m.onRegister(reason)
	}
}
