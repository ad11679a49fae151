// Package fanout pushes scene updates to every connected observer.
//
// Delivery is best effort. An observer that cannot keep up is disconnected
// rather than allowed to slow the broadcaster; it resynchronises by
// reconnecting and receiving a fresh snapshot.
package fanout

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/mgth/SpatialVisualizer/internal/metrics"
)

var (
	// ErrObserverClosed means the observer is shutting down; it is skipped.
	ErrObserverClosed = errors.New("fanout: observer closed")
	// ErrObserverSlow means the observer's buffer is full; it is dropped.
	ErrObserverSlow = errors.New("fanout: observer too slow")
)

// Observer receives encoded messages without blocking.
type Observer interface {
	ID() string
	Send(data []byte) error
	Close()
}

// Hub tracks observers and broadcasts to them.
type Hub struct {
	mu        sync.Mutex
	observers map[string]Observer

	logger  *zap.Logger
	metrics *metrics.Metrics
}

// NewHub returns an empty hub.
func NewHub(logger *zap.Logger, m *metrics.Metrics) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		observers: make(map[string]Observer),
		logger:    logger,
		metrics:   m,
	}
}

// Add registers an observer. Anything it should see first (the snapshot)
// must already be queued on it.
func (h *Hub) Add(o Observer) {
	h.mu.Lock()
	h.observers[o.ID()] = o
	n := len(h.observers)
	h.mu.Unlock()

	h.metrics.SetObservers(n)
	h.logger.Info("observer connected", zap.String("id", o.ID()), zap.Int("observers", n))
}

// Remove unregisters an observer. Unknown ids are ignored.
func (h *Hub) Remove(id string) {
	h.mu.Lock()
	_, ok := h.observers[id]
	delete(h.observers, id)
	n := len(h.observers)
	h.mu.Unlock()

	if ok {
		h.metrics.SetObservers(n)
		h.logger.Info("observer disconnected", zap.String("id", id), zap.Int("observers", n))
	}
}

// Len returns the number of observers.
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.observers)
}

// Broadcast encodes msg once and offers it to every observer.
func (h *Hub) Broadcast(msg any) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to encode broadcast: %w", err)
	}
	h.BroadcastRaw(data)
	return nil
}

// BroadcastRaw offers already-encoded data to every observer.
func (h *Hub) BroadcastRaw(data []byte) {
	h.mu.Lock()
	var slow []Observer
	for id, o := range h.observers {
		err := o.Send(data)
		switch {
		case err == nil, errors.Is(err, ErrObserverClosed):
		case errors.Is(err, ErrObserverSlow):
			slow = append(slow, o)
			delete(h.observers, id)
		default:
			h.logger.Debug("observer send failed", zap.String("id", id), zap.Error(err))
		}
	}
	n := len(h.observers)
	h.mu.Unlock()

	h.metrics.RecordBroadcast()
	if len(slow) == 0 {
		return
	}
	h.metrics.SetObservers(n)
	for _, o := range slow {
		h.metrics.RecordSlowObserver()
		h.logger.Warn("dropping slow observer", zap.String("id", o.ID()))
		o.Close()
	}
}

// CloseAll disconnects every observer.
func (h *Hub) CloseAll() {
	h.mu.Lock()
	observers := h.observers
	h.observers = make(map[string]Observer)
	h.mu.Unlock()

	for _, o := range observers {
		o.Close()
	}
	h.metrics.SetObservers(0)
}
