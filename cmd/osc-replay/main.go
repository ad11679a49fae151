// Command osc-replay reads OSC traffic from a pcap capture and either prints
// the classified events or sends the datagrams to a running bridge.
//
//	osc-replay --dump capture.pcap
//	osc-replay --target 127.0.0.1:9000 --speed 2 capture.pcapng
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/mgth/SpatialVisualizer/internal/monitoring"
	"github.com/mgth/SpatialVisualizer/internal/oscnet"
	"github.com/mgth/SpatialVisualizer/internal/replay"
	"github.com/mgth/SpatialVisualizer/internal/version"
)

type options struct {
	port         int
	target       string
	speed        float64
	dump         bool
	unclassified bool
	logLevel     string
	version      bool
}

func parseArgs(args []string) (options, []string, error) {
	var o options
	fs := pflag.NewFlagSet("osc-replay", pflag.ContinueOnError)
	fs.IntVar(&o.port, "port", 9000, "UDP port to extract (0 keeps every UDP datagram)")
	fs.StringVar(&o.target, "target", "127.0.0.1:9000", "host:port to send datagrams to")
	fs.Float64Var(&o.speed, "speed", 1, "replay speed multiplier (0 sends as fast as possible)")
	fs.BoolVar(&o.dump, "dump", false, "print classified events as JSON lines instead of sending")
	fs.BoolVar(&o.unclassified, "unclassified", false, "with --dump, include messages no family recognised")
	fs.StringVar(&o.logLevel, "log-level", "info", "log level: debug, info, warn, error")
	fs.BoolVar(&o.version, "version", false, "print version and exit")
	if err := fs.Parse(args); err != nil {
		return o, nil, err
	}
	return o, fs.Args(), nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := run(ctx, os.Args[1:], os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintln(os.Stderr, "osc-replay:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdout io.Writer) error {
	o, files, err := parseArgs(args)
	if err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	if o.version {
		fmt.Fprintln(stdout, "osc-replay", version.String())
		return nil
	}
	if len(files) != 1 {
		return errors.New("expected exactly one capture file")
	}

	level := o.logLevel
	if o.dump && level == "info" {
		// Keep stdout clean for the JSON lines.
		level = "warn"
	}
	logger, err := monitoring.NewLogger(monitoring.Options{Level: level, Format: monitoring.FormatConsole})
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	src, err := replay.Open(files[0], o.port)
	if err != nil {
		return err
	}
	defer src.Close()

	if o.dump {
		st, err := replay.Dump(ctx, src, stdout, replay.DumpOptions{Unclassified: o.unclassified})
		logSummary(logger, st)
		return err
	}

	host, portStr, err := net.SplitHostPort(o.target)
	if err != nil {
		return fmt.Errorf("invalid --target %q: %w", o.target, err)
	}
	port, err := net.LookupPort("udp", portStr)
	if err != nil {
		return fmt.Errorf("invalid --target port %q: %w", portStr, err)
	}
	target, err := oscnet.ResolveTarget(host, port)
	if err != nil {
		return err
	}
	socket, err := oscnet.RealUDPSocketFactory{}.ListenUDP("udp", nil)
	if err != nil {
		return fmt.Errorf("failed to open UDP socket: %w", err)
	}
	defer socket.Close()

	logger.Info("replaying capture",
		zap.String("file", files[0]),
		zap.Stringer("target", target),
		zap.Float64("speed", o.speed))
	st, err := replay.Play(ctx, src, replay.PlayConfig{
		Socket: socket,
		Target: target,
		Speed:  o.speed,
		Logger: logger,
	})
	logSummary(logger, st)
	return err
}

func logSummary(logger *zap.Logger, st replay.Stats) {
	logger.Info("replay complete",
		zap.Int("datagrams", st.Datagrams),
		zap.Int("messages", st.Messages),
		zap.Int("malformed", st.Malformed),
		zap.Int("skipped", st.Skipped),
		zap.Duration("captured", st.Span))
}
