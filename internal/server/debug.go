package server

import (
	"fmt"
	"net/http"
	"strings"

	"go.uber.org/zap"
	"tailscale.com/tsweb"

	"github.com/mgth/SpatialVisualizer/internal/fanout"
	"github.com/mgth/SpatialVisualizer/internal/httputil"
	"github.com/mgth/SpatialVisualizer/internal/version"
)

// injectRequest is one OSC message to run through the pipeline.
type injectRequest struct {
	Address string `json:"address"`
	Args    []any  `json:"args"`
}

type injectResponse struct {
	Family string `json:"family,omitempty"`
	Type   string `json:"type,omitempty"`
	Event  any    `json:"event"`
}

// attachDebugRoutes mounts the /debug/ pages. tsweb limits them to loopback
// and tailnet peers.
func (s *Server) attachDebugRoutes(mux *http.ServeMux) {
	debug := tsweb.Debugger(mux)
	debug.KV("Version", version.String())

	debug.Handle("session", "current session state as JSON", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		snap, err := s.engine.Snapshot(r.Context())
		if err != nil {
			s.reply(httputil.ServiceUnavailable(w, "state unavailable"))
			return
		}
		s.reply(httputil.WriteJSONOK(w, snap))
	}))

	debug.Handle("liveness", "renderer registration and heartbeat status", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.liveness == nil {
			s.reply(httputil.ServiceUnavailable(w, "liveness not running"))
			return
		}
		s.reply(httputil.WriteJSONOK(w, s.liveness.Status()))
	}))

	// POST {"address": "/source/1/xyz", "args": [0.1, 0.2, 0.3]}
	debug.HandleSilent("inject", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			s.reply(httputil.MethodNotAllowed(w, http.MethodPost))
			return
		}
		var req injectRequest
		if err := httputil.DecodeJSON(w, r, &req); err != nil {
			s.reply(httputil.BadRequest(w, err.Error()))
			return
		}
		if !strings.HasPrefix(req.Address, "/") {
			s.reply(httputil.BadRequest(w, "address must start with /"))
			return
		}
		ev, err := s.engine.Inject(r.Context(), req.Address, req.Args)
		if err != nil {
			s.reply(httputil.ServiceUnavailable(w, "engine unavailable"))
			return
		}
		s.logger.Info("injected osc message", zap.String("address", req.Address), zap.Bool("classified", ev != nil))
		resp := injectResponse{Event: ev}
		if ev != nil {
			resp.Family = ev.Family()
			resp.Type = fmt.Sprintf("%T", ev)
		}
		s.reply(httputil.WriteJSONOK(w, resp))
	}))

	// Server-sent events mirroring what observers receive.
	debug.HandleSilent("tail", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			s.reply(httputil.MethodNotAllowed(w, http.MethodGet))
			return
		}
		flusher, ok := w.(http.Flusher)
		if !ok {
			http.Error(w, "streaming unsupported", http.StatusInternalServerError)
			return
		}

		tap := fanout.NewTap(s.sendBuffer)
		if err := s.engine.Attach(r.Context(), tap); err != nil {
			s.reply(httputil.ServiceUnavailable(w, "engine unavailable"))
			return
		}
		defer func() {
			s.engine.Detach(tap.ID())
			tap.Close()
		}()

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.Header().Set("X-Accel-Buffering", "no") // Disable buffering for nginx

		_, _ = w.Write([]byte(": ping\n\n"))
		flusher.Flush()

		for {
			select {
			case payload := <-tap.C():
				if _, err := fmt.Fprintf(w, "data: %s\n\n", payload); err != nil {
					return
				}
				flusher.Flush()
			case <-tap.Done():
				// Dropped by the hub for falling behind.
				return
			case <-r.Context().Done():
				return
			}
		}
	}))
}
