package server

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"hostfeed/internal/metrics"
	"hostfeed/internal/models"
)

const statsWriteTimeout = 5 * time.Second

var statsUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		u, err := url.Parse(origin)
		if err != nil {
			return false
		}
		host := strings.ToLower(strings.TrimSpace(r.Host))
		originHost := strings.ToLower(strings.TrimSpace(u.Host))
		return host == originHost
	},
}

func (s *Server) handleStatsWS(w http.ResponseWriter, r *http.Request) {
	conn, err := statsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debug("websocket upgrade failed", "error", err)
		return
	}
	s.serveStatsConnection(r.Context(), conn)
}

// serveStatsConnection pushes a snapshot immediately and then every push
// interval until the client goes away.
func (s *Server) serveStatsConnection(ctx context.Context, conn *websocket.Conn) {
	defer conn.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if err := s.pushStats(ctx, conn); err != nil {
		return
	}

	ticker := time.NewTicker(s.pushInterval)
	defer ticker.Stop()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				cancel()
				return
			}
		}
	}()

	for {
		select {
		case <-ticker.C:
			if err := s.pushStats(ctx, conn); err != nil {
				return
			}
		case <-done:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (s *Server) pushStats(ctx context.Context, conn *websocket.Conn) error {
	metrics.ObserveStatsRequest("ws", false)
	return writeStatsPayload(conn, s.stats.Snapshot(ctx))
}

func writeStatsPayload(conn *websocket.Conn, payload models.Stats) error {
	_ = conn.SetWriteDeadline(time.Now().Add(statsWriteTimeout))
	return conn.WriteJSON(payload)
}
