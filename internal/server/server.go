// Package server exposes the bridge over HTTP: the observer WebSocket, a
// small JSON API, Prometheus metrics, debug routes and the front-end files.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/mgth/SpatialVisualizer/internal/classify"
	"github.com/mgth/SpatialVisualizer/internal/fanout"
	"github.com/mgth/SpatialVisualizer/internal/liveness"
	"github.com/mgth/SpatialVisualizer/internal/metrics"
	"github.com/mgth/SpatialVisualizer/internal/session"
)

const shutdownTimeout = 2 * time.Second

// Engine is the part of the bridge the HTTP surface drives.
type Engine interface {
	Attach(ctx context.Context, o fanout.Observer) error
	Detach(id string)
	HandleCommand(ctx context.Context, data []byte) error
	Snapshot(ctx context.Context) (session.Snapshot, error)
	Inject(ctx context.Context, address string, args []any) (classify.Event, error)
}

// LivenessReporter reports the renderer handshake state.
type LivenessReporter interface {
	Status() liveness.Status
}

// Config configures a Server. Engine is required.
type Config struct {
	Engine    Engine
	Liveness  LivenessReporter
	StaticDir string
	// SendBuffer is the per-observer queue length.
	SendBuffer int
	Logger     *zap.Logger
	Metrics    *metrics.Metrics
}

// Server serves the bridge's HTTP routes.
type Server struct {
	engine     Engine
	liveness   LivenessReporter
	staticDir  string
	sendBuffer int
	logger     *zap.Logger
	metrics    *metrics.Metrics

	upgrader websocket.Upgrader
	started  time.Time
}

// New creates a Server.
func New(cfg Config) *Server {
	s := &Server{
		engine:     cfg.Engine,
		liveness:   cfg.Liveness,
		staticDir:  cfg.StaticDir,
		sendBuffer: cfg.SendBuffer,
		logger:     cfg.Logger,
		metrics:    cfg.Metrics,
		started:    time.Now(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// Observers are unauthenticated and may be served from anywhere.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	return s
}

// ServeMux returns a mux with every route mounted.
func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("/health", s.withMetrics("/health", s.handleHealth))
	mux.HandleFunc("/api/state", s.withMetrics("/api/state", s.handleState))
	mux.HandleFunc("/api/layouts", s.withMetrics("/api/layouts", s.handleLayouts))
	if s.metrics != nil {
		mux.Handle("/metrics", s.metrics.Handler())
	}
	s.attachDebugRoutes(mux)

	if s.staticDir != "" {
		mux.Handle("/", http.FileServer(http.Dir(s.staticDir)))
	}
	return mux
}

// Listen binds addr. Binding is separate from serving so startup failures
// surface before any goroutine starts.
func Listen(addr string) (net.Listener, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	return ln, nil
}

// Serve serves on ln until ctx is cancelled, then shuts down gracefully.
// Request contexts derive from ctx, so WebSocket sessions end with it.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.ServeMux(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
		ErrorLog:          zap.NewStdLog(s.logger.Named("http")),
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()
	s.logger.Info("http server listening", zap.String("addr", ln.Addr().String()))

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http server failed: %w", err)
	case <-ctx.Done():
	}

	s.logger.Info("shutting down http server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		s.logger.Warn("http server shutdown error", zap.Error(err))
		// Force close the server if graceful shutdown fails
		if err := srv.Close(); err != nil {
			s.logger.Warn("http server force close error", zap.Error(err))
		}
	}
	return nil
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// withMetrics counts requests per endpoint and status, and logs them at
// debug.
func (s *Server) withMetrics(endpoint string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next(rec, r)
		s.metrics.RecordHTTPRequest(endpoint, rec.status)
		if ce := s.logger.Check(zap.DebugLevel, "http request"); ce != nil {
			ce.Write(
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", rec.status),
				zap.Duration("duration", time.Since(start)))
		}
	}
}
