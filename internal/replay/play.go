package replay

import (
	"context"
	"fmt"
	"net"
	"time"

	"go.uber.org/zap"

	"github.com/mgth/SpatialVisualizer/internal/oscnet"
)

const progressEvery = 1000

// PlayConfig configures Play.
type PlayConfig struct {
	Socket oscnet.UDPSocket
	Target *net.UDPAddr
	// Speed scales capture timing: 1 is real time, 2 twice as fast. Zero or
	// less sends as fast as possible.
	Speed  float64
	Logger *zap.Logger
}

// Play sends every datagram to the target, spacing them as they were
// captured.
func Play(ctx context.Context, src *Source, cfg PlayConfig) (Stats, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	var first time.Time
	start := time.Now()

	return each(ctx, src, func(d Datagram, st *Stats) error {
		if first.IsZero() {
			first = d.Time
		}
		if cfg.Speed > 0 {
			due := start.Add(time.Duration(float64(d.Time.Sub(first)) / cfg.Speed))
			if err := sleepUntil(ctx, due); err != nil {
				return err
			}
		}
		if _, err := cfg.Socket.WriteToUDP(d.Payload, cfg.Target); err != nil {
			return fmt.Errorf("failed to send datagram %d: %w", st.Datagrams, err)
		}
		if st.Datagrams%progressEvery == 0 {
			elapsed := time.Since(start)
			logger.Info("replay progress",
				zap.Int("datagrams", st.Datagrams),
				zap.Duration("elapsed", elapsed),
				zap.Duration("captured", st.Span))
		}
		return nil
	})
}

func sleepUntil(ctx context.Context, due time.Time) error {
	wait := time.Until(due)
	if wait <= 0 {
		return nil
	}
	t := time.NewTimer(wait)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
