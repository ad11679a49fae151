package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/mgth/SpatialVisualizer/internal/control"
	"github.com/mgth/SpatialVisualizer/internal/fanout"
	"github.com/mgth/SpatialVisualizer/internal/httputil"
	"github.com/mgth/SpatialVisualizer/internal/liveness"
	"github.com/mgth/SpatialVisualizer/internal/scene"
	"github.com/mgth/SpatialVisualizer/internal/version"
)

// handleWebSocket runs one observer session: snapshot first, then deltas,
// while commands read from the socket are handed to the engine.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already replied.
		s.logger.Debug("websocket upgrade failed", zap.Error(err))
		return
	}
	client := fanout.NewClient(conn, s.sendBuffer, s.logger)
	go client.WritePump()

	ctx := r.Context()
	if err := s.engine.Attach(ctx, client); err != nil {
		s.logger.Warn("failed to attach observer", zap.Error(err))
		client.Close()
		return
	}
	defer s.engine.Detach(client.ID())

	client.ReadPump(ctx, func(ctx context.Context, data []byte) {
		err := s.engine.HandleCommand(ctx, data)
		if err != nil && !errors.Is(err, control.ErrInvalidCommand) {
			s.logger.Debug("observer command not handled", zap.String("observer", client.ID()), zap.Error(err))
		}
	})
}

type healthResponse struct {
	Status    string           `json:"status"`
	Version   string           `json:"version"`
	GitSHA    string           `json:"gitSha"`
	BuildTime string           `json:"buildTime"`
	Uptime    string           `json:"uptime"`
	Renderer  *liveness.Status `json:"renderer,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.reply(httputil.MethodNotAllowed(w, http.MethodGet))
		return
	}
	resp := healthResponse{
		Status:    "ok",
		Version:   version.Version,
		GitSHA:    version.GitSHA,
		BuildTime: version.BuildTime,
		Uptime:    time.Since(s.started).Round(time.Second).String(),
	}
	if s.liveness != nil {
		st := s.liveness.Status()
		resp.Renderer = &st
	}
	s.reply(httputil.WriteJSONOK(w, resp))
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.reply(httputil.MethodNotAllowed(w, http.MethodGet))
		return
	}
	snap, err := s.engine.Snapshot(r.Context())
	if err != nil {
		s.reply(httputil.ServiceUnavailable(w, "state unavailable"))
		return
	}
	s.reply(httputil.WriteJSONOK(w, snap))
}

type layoutsResponse struct {
	Layouts  []scene.Layout `json:"layouts"`
	Selected string         `json:"selected"`
}

func (s *Server) handleLayouts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.reply(httputil.MethodNotAllowed(w, http.MethodGet))
		return
	}
	snap, err := s.engine.Snapshot(r.Context())
	if err != nil {
		s.reply(httputil.ServiceUnavailable(w, "state unavailable"))
		return
	}
	layouts := snap.Layouts
	if layouts == nil {
		layouts = []scene.Layout{}
	}
	s.reply(httputil.WriteJSONOK(w, layoutsResponse{Layouts: layouts, Selected: snap.SelectedLayout}))
}

// reply logs a response that could not be encoded.
func (s *Server) reply(err error) {
	if err != nil {
		s.logger.Warn("failed to write response", zap.Error(err))
	}
}
