// Package bridge wires the renderer, the session store and the observers
// together.
//
// The Engine goroutine is the only writer of the session store. Every input
// (UDP datagrams, observer commands, observer attach, layout reloads, debug
// injection) is turned into a closure on one buffered queue and run in
// order.
package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/hypebeast/go-osc/osc"
	"go.uber.org/zap"

	"github.com/mgth/SpatialVisualizer/internal/classify"
	"github.com/mgth/SpatialVisualizer/internal/fanout"
	"github.com/mgth/SpatialVisualizer/internal/metrics"
	"github.com/mgth/SpatialVisualizer/internal/scene"
	"github.com/mgth/SpatialVisualizer/internal/session"
	"github.com/mgth/SpatialVisualizer/internal/timeutil"
)

// DefaultQueueSize is the number of pending operations the engine buffers.
const DefaultQueueSize = 1024

// ErrStopped is returned by calls made after Run has returned.
var ErrStopped = errors.New("bridge: engine stopped")

// CommandRouter validates observer commands and forwards them to the
// renderer. A non-empty key is a local layout selection. spread is the
// renderer's last reported spread range.
type CommandRouter interface {
	Route(data []byte, spread session.Spread) (layoutKey string, err error)
}

// Liveness receives the renderer's heartbeat responses.
type Liveness interface {
	HandleAck()
	HandleUnknown()
}

// Config holds the engine's collaborators. Store and Hub are required.
type Config struct {
	Store    *session.Store
	Hub      *fanout.Hub
	Router   CommandRouter
	Liveness Liveness

	QueueSize int
	Clock     timeutil.Clock
	Logger    *zap.Logger
	Metrics   *metrics.Metrics
}

// Engine serialises all session mutations.
type Engine struct {
	store    *session.Store
	hub      *fanout.Hub
	router   CommandRouter
	liveness Liveness
	clock    timeutil.Clock
	logger   *zap.Logger
	metrics  *metrics.Metrics

	ops     chan func()
	stopped chan struct{}

	resetLatency atomic.Bool
}

// New creates an engine. Call Run to start processing.
func New(cfg Config) *Engine {
	size := cfg.QueueSize
	if size <= 0 {
		size = DefaultQueueSize
	}
	e := &Engine{
		store:    cfg.Store,
		hub:      cfg.Hub,
		router:   cfg.Router,
		liveness: cfg.Liveness,
		clock:    cfg.Clock,
		logger:   cfg.Logger,
		metrics:  cfg.Metrics,
		ops:      make(chan func(), size),
		stopped:  make(chan struct{}),
	}
	if e.clock == nil {
		e.clock = timeutil.RealClock{}
	}
	if e.logger == nil {
		e.logger = zap.NewNop()
	}
	return e
}

// Run processes queued operations until ctx is cancelled.
func (e *Engine) Run(ctx context.Context) {
	defer close(e.stopped)
	for {
		select {
		case <-ctx.Done():
			return
		case op := <-e.ops:
			e.applyPendingReset()
			op()
		}
	}
}

// RequestLatencyReset restarts the latency average before the next sample is
// applied. It never blocks, so it is safe to call from liveness callbacks that
// run on the engine goroutine.
func (e *Engine) RequestLatencyReset() {
	e.resetLatency.Store(true)
}

func (e *Engine) applyPendingReset() {
	if e.resetLatency.Swap(false) {
		e.store.ResetLatency()
		e.logger.Debug("latency average reset")
	}
}

// HandlePacket queues one datagram's messages. When the queue is full the
// datagram is dropped and counted.
func (e *Engine) HandlePacket(msgs []*osc.Message) {
	select {
	case e.ops <- func() { e.processDatagram(msgs) }:
	default:
		e.metrics.RecordPacketDropped()
		e.logger.Debug("engine queue full, dropping datagram", zap.Int("messages", len(msgs)))
	}
}

// call runs op on the engine goroutine and waits for it to finish.
func (e *Engine) call(ctx context.Context, op func()) error {
	done := make(chan struct{})
	wrapped := func() {
		defer close(done)
		op()
	}
	select {
	case e.ops <- wrapped:
	case <-ctx.Done():
		return ctx.Err()
	case <-e.stopped:
		return ErrStopped
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-e.stopped:
		return ErrStopped
	}
}

// HandleCommand routes one observer command. Invalid commands are reported
// as control.ErrInvalidCommand; the caller keeps the connection open.
func (e *Engine) HandleCommand(ctx context.Context, data []byte) error {
	if e.router == nil {
		return errors.New("bridge: no command router configured")
	}
	var routeErr error
	err := e.call(ctx, func() {
		key, err := e.router.Route(data, e.store.Spread())
		if err != nil {
			routeErr = err
			return
		}
		if key != "" {
			e.publish(e.store.SelectLayout(key))
		}
	})
	if err != nil {
		return err
	}
	return routeErr
}

// Attach sends the current snapshot to o and then subscribes it to updates.
// Both happen on the engine goroutine, so o never misses or duplicates a
// delta.
func (e *Engine) Attach(ctx context.Context, o fanout.Observer) error {
	var attachErr error
	err := e.call(ctx, func() {
		data, err := json.Marshal(e.store.Init())
		if err != nil {
			attachErr = fmt.Errorf("failed to encode snapshot: %w", err)
			return
		}
		if err := o.Send(data); err != nil {
			attachErr = fmt.Errorf("failed to send snapshot: %w", err)
			return
		}
		e.hub.Add(o)
	})
	if err != nil {
		return err
	}
	return attachErr
}

// Detach unsubscribes an observer.
func (e *Engine) Detach(id string) {
	e.hub.Remove(id)
}

// ReplaceFileLayouts installs a new set of layouts loaded from disk.
func (e *Engine) ReplaceFileLayouts(ctx context.Context, layouts []scene.Layout) error {
	return e.call(ctx, func() {
		e.publish(e.store.SetFileLayouts(layouts))
	})
}

// Snapshot returns a copy of the session state.
func (e *Engine) Snapshot(ctx context.Context) (session.Snapshot, error) {
	var snap session.Snapshot
	err := e.call(ctx, func() { snap = e.store.Snapshot() })
	return snap, err
}

// Inject runs one message through the same pipeline as a received datagram
// and returns the event it produced, if any.
func (e *Engine) Inject(ctx context.Context, address string, args []any) (classify.Event, error) {
	var ev classify.Event
	err := e.call(ctx, func() {
		now := e.clock.Now()
		e.store.BeginBatch()
		ev = e.processMessage(address, args, now)
		e.publish(e.store.EndBatch())
	})
	return ev, err
}
