// Command spatialviz bridges a truehdd renderer's OSC stream to browser
// visualisers over WebSocket.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/hypebeast/go-osc/osc"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/mgth/SpatialVisualizer/internal/bridge"
	"github.com/mgth/SpatialVisualizer/internal/config"
	"github.com/mgth/SpatialVisualizer/internal/control"
	"github.com/mgth/SpatialVisualizer/internal/fanout"
	"github.com/mgth/SpatialVisualizer/internal/layouts"
	"github.com/mgth/SpatialVisualizer/internal/liveness"
	"github.com/mgth/SpatialVisualizer/internal/metrics"
	"github.com/mgth/SpatialVisualizer/internal/monitoring"
	"github.com/mgth/SpatialVisualizer/internal/oscnet"
	"github.com/mgth/SpatialVisualizer/internal/scene"
	"github.com/mgth/SpatialVisualizer/internal/server"
	"github.com/mgth/SpatialVisualizer/internal/session"
	"github.com/mgth/SpatialVisualizer/internal/version"
)

func main() {
	if err := run(context.Background(), os.Args[1:], os.LookupEnv, os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, "spatialviz:", err)
		os.Exit(1)
	}
}

// packetHandler adapts a function to oscnet.PacketHandler.
type packetHandler func(msgs []*osc.Message)

func (f packetHandler) HandlePacket(msgs []*osc.Message) { f(msgs) }

func run(parent context.Context, args []string, lookup config.LookupFunc, stdout io.Writer) error {
	fs := pflag.NewFlagSet("spatialviz", pflag.ContinueOnError)
	flags := config.NewFlags(fs)
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	if flags.Version {
		fmt.Fprintln(stdout, "spatialviz", version.String())
		return nil
	}

	cfg, err := config.Resolve(flags, lookup)
	if err != nil {
		return err
	}
	logger, err := monitoring.NewLogger(cfg.Logging.Options())
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()
	logger.Info("starting spatialviz", zap.String("version", version.String()))

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New()

	// The listener is bound before the engine exists because the engine's
	// sender writes through the same socket.
	var engine *bridge.Engine
	listener := oscnet.NewListener(oscnet.ListenerConfig{
		Address: cfg.OSCAddr(),
		RcvBuf:  cfg.OSC.RcvBuf,
		Handler: packetHandler(func(msgs []*osc.Message) { engine.HandlePacket(msgs) }),
		Logger:  logger.Named("osc"),
		Metrics: m,
	})
	if err := listener.Listen(); err != nil {
		return err
	}
	socket := listener.Socket()

	target, err := oscnet.ResolveTarget(cfg.Renderer.Host, cfg.Renderer.Port)
	if err != nil {
		socket.Close()
		return err
	}
	sender := oscnet.NewSender(socket, oscnet.SenderConfig{
		Target:    target,
		QueueSize: cfg.OSC.SendQueue,
		Logger:    logger.Named("osc"),
		Metrics:   m,
	})

	live := liveness.NewManager(sender, liveness.Config{
		Interval: cfg.Liveness.Interval,
		Timeout:  cfg.Liveness.Timeout,
		Logger:   logger.Named("liveness"),
		Metrics:  m,
		OnRegister: func(string) {
			engine.RequestLatencyReset()
		},
	})

	hub := fanout.NewHub(logger.Named("fanout"), m)
	engine = bridge.New(bridge.Config{
		Store:     session.NewStore(logger.Named("session")),
		Hub:       hub,
		Router:    control.NewRouter(sender, logger.Named("control"), m),
		Liveness:  live,
		QueueSize: cfg.OSC.EngineQueue,
		Logger:    logger.Named("bridge"),
		Metrics:   m,
	})

	srv := server.New(server.Config{
		Engine:     engine,
		Liveness:   live,
		StaticDir:  cfg.Server.StaticDir,
		SendBuffer: cfg.Fanout.SendBuffer,
		Logger:     logger.Named("http"),
		Metrics:    m,
	})
	ln, err := server.Listen(cfg.HTTPAddr())
	if err != nil {
		socket.Close()
		return err
	}

	var wg sync.WaitGroup
	fatal := make(chan error, 2)

	wg.Add(1)
	go func() {
		defer wg.Done()
		engine.Run(ctx)
		logger.Debug("engine stopped")
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		sender.Run(ctx)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := listener.Serve(ctx); err != nil && ctx.Err() == nil {
			fatal <- err
			stop()
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		live.Start(listener.LocalPort())
		live.Run(ctx)
	}()

	provider := layouts.NewDirProvider(cfg.Layouts.Dir, logger.Named("layouts"))
	initial, err := provider.Load()
	switch {
	case errors.Is(err, layouts.ErrNoLayouts):
		logger.Warn("no speaker layouts found", zap.String("dir", cfg.Layouts.Dir))
	case err != nil:
		logger.Warn("failed to load speaker layouts", zap.String("dir", cfg.Layouts.Dir), zap.Error(err))
	default:
		logger.Info("loaded speaker layouts", zap.Int("count", len(initial)))
		if err := engine.ReplaceFileLayouts(ctx, initial); err != nil {
			logger.Warn("failed to install speaker layouts", zap.Error(err))
		}
	}

	if cfg.Layouts.Watch {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := provider.Watch(ctx, layouts.DefaultDebounce, func(ls []scene.Layout) {
				if err := engine.ReplaceFileLayouts(ctx, ls); err != nil && ctx.Err() == nil {
					logger.Warn("failed to install reloaded layouts", zap.Error(err))
				}
			})
			if err != nil {
				logger.Warn("layout watcher stopped", zap.Error(err))
			}
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := srv.Serve(ctx, ln); err != nil {
			fatal <- err
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")
	hub.CloseAll()
	wg.Wait()

	select {
	case err := <-fatal:
		return err
	default:
		logger.Info("graceful shutdown complete")
		return nil
	}
}
