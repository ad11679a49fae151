// Package oscnet moves OSC packets between the renderer and the bridge over
// a single UDP socket.
package oscnet

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/hypebeast/go-osc/osc"
	"go.uber.org/zap"

	"github.com/mgth/SpatialVisualizer/internal/metrics"
)

// maxDatagram is the largest UDP payload we accept.
const maxDatagram = 65507

const readTimeout = 100 * time.Millisecond

// PacketHandler receives the messages of one datagram, bundles already
// flattened in order.
type PacketHandler interface {
	HandlePacket(msgs []*osc.Message)
}

// ListenerConfig configures a Listener.
type ListenerConfig struct {
	Address string // host:port; port 0 picks an ephemeral port
	RcvBuf  int
	Handler PacketHandler
	Factory UDPSocketFactory
	Logger  *zap.Logger
	Metrics *metrics.Metrics
}

// Listener decodes OSC datagrams and hands them to a PacketHandler.
type Listener struct {
	address string
	rcvBuf  int
	handler PacketHandler
	factory UDPSocketFactory
	logger  *zap.Logger
	metrics *metrics.Metrics

	socket UDPSocket
}

// NewListener creates a listener; call Listen to bind it.
func NewListener(cfg ListenerConfig) *Listener {
	l := &Listener{
		address: cfg.Address,
		rcvBuf:  cfg.RcvBuf,
		handler: cfg.Handler,
		factory: cfg.Factory,
		logger:  cfg.Logger,
		metrics: cfg.Metrics,
	}
	if l.factory == nil {
		l.factory = RealUDPSocketFactory{}
	}
	if l.logger == nil {
		l.logger = zap.NewNop()
	}
	return l
}

// Listen binds the socket. Failing to bind is the one fatal transport error.
func (l *Listener) Listen() error {
	addr, err := net.ResolveUDPAddr("udp", l.address)
	if err != nil {
		return fmt.Errorf("failed to resolve UDP address %q: %w", l.address, err)
	}
	socket, err := l.factory.ListenUDP("udp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on UDP address %q: %w", l.address, err)
	}
	if l.rcvBuf > 0 {
		if err := socket.SetReadBuffer(l.rcvBuf); err != nil {
			l.logger.Warn("failed to set UDP receive buffer", zap.Int("bytes", l.rcvBuf), zap.Error(err))
		}
	}
	l.socket = socket
	l.logger.Info("OSC listener bound", zap.Stringer("address", socket.LocalAddr()))
	return nil
}

// Socket returns the bound socket, shared with the Sender.
func (l *Listener) Socket() UDPSocket { return l.socket }

// LocalPort returns the bound port, or 0 before Listen.
func (l *Listener) LocalPort() int {
	if l.socket == nil {
		return 0
	}
	if udp, ok := l.socket.LocalAddr().(*net.UDPAddr); ok {
		return udp.Port
	}
	return 0
}

// Serve reads datagrams until ctx is cancelled, then closes the socket.
func (l *Listener) Serve(ctx context.Context) error {
	if l.socket == nil {
		return errors.New("oscnet: Serve called before Listen")
	}
	defer l.socket.Close()

	buffer := make([]byte, maxDatagram)
	for {
		if err := ctx.Err(); err != nil {
			l.logger.Info("OSC listener stopping")
			return err
		}

		// Short deadline so cancellation is noticed promptly.
		_ = l.socket.SetReadDeadline(time.Now().Add(readTimeout))
		n, from, err := l.socket.ReadFromUDP(buffer)
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if errors.Is(err, net.ErrClosed) {
				return err
			}
			l.logger.Error("UDP read error", zap.Error(err))
			continue
		}
		l.handleDatagram(buffer[:n], from)
	}
}

func (l *Listener) handleDatagram(data []byte, from *net.UDPAddr) {
	msgs, err := Decode(data)
	if err != nil {
		l.metrics.RecordMalformed()
		l.logger.Debug("dropping malformed OSC datagram",
			zap.Stringer("from", from), zap.Int("bytes", len(data)), zap.Error(err))
		return
	}
	l.metrics.RecordPacket(len(msgs))
	if len(msgs) == 0 {
		return
	}
	l.handler.HandlePacket(msgs)
}
