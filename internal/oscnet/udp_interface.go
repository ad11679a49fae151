package oscnet

import (
	"net"
	"sync"
	"time"
)

// UDPSocket is the part of *net.UDPConn the bridge uses. One socket both
// receives from and sends to the renderer, so the renderer sees the same
// source port it was told to register.
type UDPSocket interface {
	ReadFromUDP(b []byte) (n int, addr *net.UDPAddr, err error)
	WriteToUDP(b []byte, addr *net.UDPAddr) (int, error)
	SetReadBuffer(bytes int) error
	SetReadDeadline(t time.Time) error
	Close() error
	LocalAddr() net.Addr
}

// UDPSocketFactory creates sockets; tests inject a mock.
type UDPSocketFactory interface {
	ListenUDP(network string, laddr *net.UDPAddr) (UDPSocket, error)
}

// RealUDPSocketFactory implements UDPSocketFactory using net.ListenUDP.
// *net.UDPConn satisfies UDPSocket directly.
type RealUDPSocketFactory struct{}

func (RealUDPSocketFactory) ListenUDP(network string, laddr *net.UDPAddr) (UDPSocket, error) {
	conn, err := net.ListenUDP(network, laddr)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// MockUDPSocket implements UDPSocket for testing. It is safe for concurrent
// use by a listener and a sender.
type MockUDPSocket struct {
	mu sync.Mutex

	packets      []MockUDPPacket
	written      []MockUDPPacket
	closed       bool
	readBuffer   int
	localAddress *net.UDPAddr

	// WriteError, if set, is returned by every WriteToUDP call.
	WriteError error
}

// MockUDPPacket is one datagram and its peer address.
type MockUDPPacket struct {
	Data []byte
	Addr *net.UDPAddr
}

// NewMockUDPSocket creates a mock bound to 127.0.0.1:port that will deliver
// packets in order.
func NewMockUDPSocket(port int, packets ...MockUDPPacket) *MockUDPSocket {
	return &MockUDPSocket{
		packets:      packets,
		localAddress: &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: port},
	}
}

// Deliver queues another inbound datagram.
func (m *MockUDPSocket) Deliver(data []byte, from *net.UDPAddr) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.packets = append(m.packets, MockUDPPacket{Data: data, Addr: from})
}

// ReadFromUDP returns the next queued packet, or a timeout once the queue is
// empty.
func (m *MockUDPSocket) ReadFromUDP(b []byte) (int, *net.UDPAddr, error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return 0, nil, net.ErrClosed
	}
	if len(m.packets) == 0 {
		m.mu.Unlock()
		time.Sleep(time.Millisecond)
		return 0, nil, &net.OpError{Op: "read", Net: "udp", Err: timeoutError{}}
	}
	pkt := m.packets[0]
	m.packets = m.packets[1:]
	m.mu.Unlock()
	return copy(b, pkt.Data), pkt.Addr, nil
}

// WriteToUDP records the datagram.
func (m *MockUDPSocket) WriteToUDP(b []byte, addr *net.UDPAddr) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return 0, net.ErrClosed
	}
	if m.WriteError != nil {
		return 0, m.WriteError
	}
	m.written = append(m.written, MockUDPPacket{Data: append([]byte(nil), b...), Addr: addr})
	return len(b), nil
}

// Written returns a copy of every datagram sent so far.
func (m *MockUDPSocket) Written() []MockUDPPacket {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]MockUDPPacket(nil), m.written...)
}

func (m *MockUDPSocket) SetReadBuffer(bytes int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.readBuffer = bytes
	return nil
}

func (m *MockUDPSocket) SetReadDeadline(time.Time) error { return nil }

func (m *MockUDPSocket) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// Closed reports whether Close was called.
func (m *MockUDPSocket) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

func (m *MockUDPSocket) LocalAddr() net.Addr { return m.localAddress }

// MockUDPSocketFactory hands out a prepared socket.
type MockUDPSocketFactory struct {
	Socket *MockUDPSocket
	Error  error
}

func (f *MockUDPSocketFactory) ListenUDP(string, *net.UDPAddr) (UDPSocket, error) {
	if f.Error != nil {
		return nil, f.Error
	}
	return f.Socket, nil
}

type timeoutError struct{}

func (timeoutError) Error() string   { return "i/o timeout" }
func (timeoutError) Timeout() bool   { return true }
func (timeoutError) Temporary() bool { return true }
