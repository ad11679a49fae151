package oscnet

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/hypebeast/go-osc/osc"
	"go.uber.org/zap"

	"github.com/mgth/SpatialVisualizer/internal/metrics"
)

// ErrSendQueueFull is returned by Send when the outbound queue is full and
// the message was dropped.
var ErrSendQueueFull = errors.New("oscnet: send queue full")

const defaultSendQueue = 256

// SenderConfig configures a Sender.
type SenderConfig struct {
	Target      *net.UDPAddr
	QueueSize   int
	LogInterval time.Duration
	Logger      *zap.Logger
	Metrics     *metrics.Metrics
}

// Sender delivers OSC messages to the renderer fire-and-forget. Send never
// blocks; a background goroutine writes queued datagrams and reports write
// failures at most once per LogInterval.
type Sender struct {
	socket      UDPSocket
	target      *net.UDPAddr
	queue       chan []byte
	logInterval time.Duration
	logger      *zap.Logger
	metrics     *metrics.Metrics
}

// ResolveTarget resolves host and port into a UDP address.
func ResolveTarget(host string, port int) (*net.UDPAddr, error) {
	address := net.JoinHostPort(host, strconv.Itoa(port))
	addr, err := net.ResolveUDPAddr("udp", address)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve renderer address %q: %w", address, err)
	}
	return addr, nil
}

// NewSender creates a sender writing through socket.
func NewSender(socket UDPSocket, cfg SenderConfig) *Sender {
	size := cfg.QueueSize
	if size <= 0 {
		size = defaultSendQueue
	}
	s := &Sender{
		socket:      socket,
		target:      cfg.Target,
		queue:       make(chan []byte, size),
		logInterval: cfg.LogInterval,
		logger:      cfg.Logger,
		metrics:     cfg.Metrics,
	}
	if s.logInterval <= 0 {
		s.logInterval = 10 * time.Second
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	return s
}


// Send encodes msg and queues it for delivery.
func (s *Sender) Send(msg *osc.Message) error {
	data, err := msg.MarshalBinary()
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", msg.Address, err)
	}
	select {
	case s.queue <- data:
		return nil
	default:
		s.metrics.RecordSendDrop()
		return ErrSendQueueFull
	}
}

// Run writes queued datagrams until ctx is cancelled.
func (s *Sender) Run(ctx context.Context) {
	s.logger.Info("sending to renderer", zap.Stringer("target", s.target))

	failed := 0
	var lastErr error
	ticker := time.NewTicker(s.logInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case data := <-s.queue:
			if _, err := s.socket.WriteToUDP(data, s.target); err != nil {
				failed++
				lastErr = err
				s.metrics.RecordSendError()
			}
		case <-ticker.C:
			if failed > 0 {
				s.logger.Error("failed to send OSC messages to renderer",
					zap.Int("count", failed), zap.Error(lastErr))
				failed = 0
				lastErr = nil
			}
		}
	}
}
