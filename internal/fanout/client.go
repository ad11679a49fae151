package fanout

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// DefaultSendBuffer is the number of messages queued per observer before it
// counts as slow.
const DefaultSendBuffer = 256

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = pongWait * 9 / 10
	maxMessageSize = 64 << 10
)

// Client is an Observer backed by a WebSocket connection.
type Client struct {
	id     string
	conn   *websocket.Conn
	send   chan []byte
	done   chan struct{}
	once   sync.Once
	logger *zap.Logger
}

// NewClient wraps conn. Start WritePump and ReadPump to run it.
func NewClient(conn *websocket.Conn, bufferSize int, logger *zap.Logger) *Client {
	if bufferSize <= 0 {
		bufferSize = DefaultSendBuffer
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	id := uuid.NewString()
	return &Client{
		id:     id,
		conn:   conn,
		send:   make(chan []byte, bufferSize),
		done:   make(chan struct{}),
		logger: logger.With(zap.String("observer", id)),
	}
}

func (c *Client) ID() string { return c.id }

// Send queues data without blocking.
func (c *Client) Send(data []byte) error {
	select {
	case <-c.done:
		return ErrObserverClosed
	default:
	}
	select {
	case c.send <- data:
		return nil
	default:
		return ErrObserverSlow
	}
}

// Close asks WritePump to send a close frame and release the connection.
// It is safe to call more than once.
func (c *Client) Close() {
	c.once.Do(func() { close(c.done) })
}

// Done is closed when the client shuts down.
func (c *Client) Done() <-chan struct{} { return c.done }

// WritePump writes queued messages and keepalive pings until the client is
// closed or a write fails. It owns the connection and closes it on return,
// which also unblocks ReadPump.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
		_ = c.conn.Close()
	}()

	for {
		select {
		case <-c.done:
			_ = c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeWait))
			return
		case data := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				c.logger.Debug("websocket write failed", zap.Error(err))
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// ReadPump passes every text frame to handle until the connection fails or
// ctx is cancelled. It closes the client before returning.
func (c *Client) ReadPump(ctx context.Context, handle func(ctx context.Context, data []byte)) {
	defer c.Close()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	stop := context.AfterFunc(ctx, c.Close)
	defer stop()

	for {
		kind, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Debug("websocket read failed", zap.Error(err))
			}
			return
		}
		if kind != websocket.TextMessage {
			continue
		}
		handle(ctx, data)
	}
}
