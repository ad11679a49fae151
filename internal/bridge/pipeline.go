package bridge

import (
	"time"

	"github.com/hypebeast/go-osc/osc"
	"go.uber.org/zap"

	"github.com/mgth/SpatialVisualizer/internal/classify"
	"github.com/mgth/SpatialVisualizer/internal/protocol"
	"github.com/mgth/SpatialVisualizer/internal/session"
)

// processDatagram applies every message of one datagram. Speaker
// configuration split across the datagram is published once at the end.
func (e *Engine) processDatagram(msgs []*osc.Message) {
	now := e.clock.Now()
	e.store.BeginBatch()
	for _, msg := range msgs {
		if msg == nil {
			continue
		}
		e.processMessage(msg.Address, msg.Arguments, now)
	}
	e.publish(e.store.EndBatch())
}

func (e *Engine) processMessage(address string, args []any, now time.Time) classify.Event {
	switch protocol.ClassifyHeartbeat(address) {
	case protocol.HeartbeatAck:
		if e.liveness != nil {
			e.liveness.HandleAck()
		}
		return nil
	case protocol.HeartbeatUnknown:
		if e.liveness != nil {
			e.liveness.HandleUnknown()
		}
		// Registration may have requested a reset from this goroutine.
		e.applyPendingReset()
		return nil
	}

	ev, family := classify.ClassifyFamily(address, args)
	e.metrics.RecordEvent(family, ev != nil)
	if ev == nil {
		if ce := e.logger.Check(zap.DebugLevel, "unclassified osc message"); ce != nil {
			ce.Write(zap.String("address", address), zap.String("family", family), zap.Int("args", len(args)))
		}
		return nil
	}
	e.publish(e.store.Apply(ev, now))
	return ev
}

func (e *Engine) publish(msgs []session.Message) {
	for _, m := range msgs {
		if err := e.hub.Broadcast(m); err != nil {
			e.logger.Error("failed to broadcast", zap.String("type", m.MessageType()), zap.Error(err))
		}
	}
}
