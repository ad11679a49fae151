// Package metrics exposes bridge counters to Prometheus.
//
// Every instance owns its own registry so tests and tools can build as many
// as they like. All Record methods are safe on a nil *Metrics.
package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "spatialviz"

// Metrics contains all Prometheus metrics for the bridge
type Metrics struct {
	Registry *prometheus.Registry

	// OSC ingress
	PacketsReceived  prometheus.Counter
	PacketsDropped   prometheus.Counter
	MessagesReceived prometheus.Counter
	MalformedPackets prometheus.Counter
	Events           *prometheus.CounterVec
	Unclassified     *prometheus.CounterVec

	// Observers
	Observers        prometheus.Gauge
	Broadcasts       prometheus.Counter
	SlowObserverDrop prometheus.Counter

	// Renderer liveness
	Registrations  *prometheus.CounterVec
	HeartbeatsSent prometheus.Counter
	AcksReceived   prometheus.Counter

	// Outbound control
	Commands   *prometheus.CounterVec
	SendErrors prometheus.Counter
	SendDrops  prometheus.Counter

	// HTTP API
	HTTPRequests *prometheus.CounterVec
}

// New creates and registers all metrics on a fresh registry, together with
// the Go runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	return &Metrics{
		Registry: reg,

		PacketsReceived: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "osc_packets_received_total",
			Help:      "Total number of UDP datagrams received",
		}),
		PacketsDropped: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "osc_packets_dropped_total",
			Help:      "Datagrams dropped because the engine queue was full",
		}),
		MessagesReceived: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "osc_messages_received_total",
			Help:      "OSC messages after bundle flattening",
		}),
		MalformedPackets: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "osc_malformed_packets_total",
			Help:      "Datagrams that failed to decode as OSC",
		}),
		Events: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_total",
			Help:      "Classified events by family",
		}, []string{"family"}),
		Unclassified: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "unclassified_messages_total",
			Help:      "Messages that produced no event, by the family that claimed them",
		}, []string{"family"}),

		Observers: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "observers",
			Help:      "Currently connected WebSocket observers",
		}),
		Broadcasts: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "broadcasts_total",
			Help:      "Messages fanned out to observers",
		}),
		SlowObserverDrop: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "slow_observer_drops_total",
			Help:      "Observers disconnected because their buffer was full",
		}),

		Registrations: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "renderer_registrations_total",
			Help:      "Registrations sent to the renderer, by reason",
		}, []string{"reason"}),
		HeartbeatsSent: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "renderer_heartbeats_sent_total",
			Help:      "Heartbeats sent to the renderer",
		}),
		AcksReceived: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "renderer_acks_received_total",
			Help:      "Heartbeat acknowledgements received",
		}),

		Commands: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "control_commands_total",
			Help:      "Observer commands by type and result",
		}, []string{"type", "result"}),
		SendErrors: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "osc_send_errors_total",
			Help:      "Outbound OSC messages that failed to send",
		}),
		SendDrops: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "osc_send_drops_total",
			Help:      "Outbound OSC messages dropped because the send queue was full",
		}),

		HTTPRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by endpoint and status code",
		}, []string{"endpoint", "status_code"}),
	}
}

// Handler serves this instance's registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{Registry: m.Registry})
}

// RecordPacket counts one received datagram and the messages it carried.
func (m *Metrics) RecordPacket(messages int) {
	if m == nil {
		return
	}
	m.PacketsReceived.Inc()
	m.MessagesReceived.Add(float64(messages))
}

func (m *Metrics) RecordPacketDropped() {
	if m == nil {
		return
	}
	m.PacketsDropped.Inc()
}

func (m *Metrics) RecordMalformed() {
	if m == nil {
		return
	}
	m.MalformedPackets.Inc()
}

// RecordEvent counts a classified message. ok is false when the family
// claimed the address but rejected its arguments.
func (m *Metrics) RecordEvent(family string, ok bool) {
	if m == nil {
		return
	}
	if family == "" {
		family = "none"
	}
	if ok {
		m.Events.WithLabelValues(family).Inc()
		return
	}
	m.Unclassified.WithLabelValues(family).Inc()
}

func (m *Metrics) SetObservers(n int) {
	if m == nil {
		return
	}
	m.Observers.Set(float64(n))
}

func (m *Metrics) RecordBroadcast() {
	if m == nil {
		return
	}
	m.Broadcasts.Inc()
}

func (m *Metrics) RecordSlowObserver() {
	if m == nil {
		return
	}
	m.SlowObserverDrop.Inc()
}

func (m *Metrics) RecordRegistration(reason string) {
	if m == nil {
		return
	}
	m.Registrations.WithLabelValues(reason).Inc()
}

func (m *Metrics) RecordHeartbeat() {
	if m == nil {
		return
	}
	m.HeartbeatsSent.Inc()
}

func (m *Metrics) RecordAck() {
	if m == nil {
		return
	}
	m.AcksReceived.Inc()
}

// RecordCommand counts an observer command; result is "ok" or "invalid".
func (m *Metrics) RecordCommand(cmdType, result string) {
	if m == nil {
		return
	}
	m.Commands.WithLabelValues(cmdType, result).Inc()
}

func (m *Metrics) RecordSendError() {
	if m == nil {
		return
	}
	m.SendErrors.Inc()
}

func (m *Metrics) RecordSendDrop() {
	if m == nil {
		return
	}
	m.SendDrops.Inc()
}

func (m *Metrics) RecordHTTPRequest(endpoint string, status int) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(endpoint, httpStatus(status)).Inc()
}

func httpStatus(code int) string {
	if code == 0 {
		code = http.StatusOK
	}
	return strconv.Itoa(code)
}
