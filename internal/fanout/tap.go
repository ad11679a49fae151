package fanout

import (
	"sync"

	"github.com/google/uuid"
)

// Tap is an in-process Observer that delivers messages on a channel. The
// debug tail endpoint and tests use it.
type Tap struct {
	id   string
	ch   chan []byte
	done chan struct{}
	once sync.Once
}

// NewTap returns a tap buffering up to size messages.
func NewTap(size int) *Tap {
	if size <= 0 {
		size = DefaultSendBuffer
	}
	return &Tap{
		id:   "tap-" + uuid.NewString(),
		ch:   make(chan []byte, size),
		done: make(chan struct{}),
	}
}

func (t *Tap) ID() string { return t.id }

func (t *Tap) Send(data []byte) error {
	select {
	case <-t.done:
		return ErrObserverClosed
	default:
	}
	select {
	case t.ch <- data:
		return nil
	default:
		return ErrObserverSlow
	}
}

func (t *Tap) Close() { t.once.Do(func() { close(t.done) }) }

// C delivers queued messages. It is never closed; watch Done.
func (t *Tap) C() <-chan []byte { return t.ch }

func (t *Tap) Done() <-chan struct{} { return t.done }
