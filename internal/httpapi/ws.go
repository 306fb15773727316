package httpapi

import (
	"net/http"
	"time"

	"go.uber.org/zap"
	"golang.org/x/net/websocket"
)

// handleAnalyticsWS streams analytics frames. The peer gets a snapshot on
// connect and after that one update per flush.
func (s *Server) handleAnalyticsWS(w http.ResponseWriter, r *http.Request) {
	websocket.Handler(s.streamAnalytics).ServeHTTP(w, r)
}

func (s *Server) streamAnalytics(conn *websocket.Conn) {
	defer conn.Close()
	ctx := conn.Request().Context()

	// subscribe before the snapshot so no flush falls in between
	frames, cancel := s.Analytics.Subscribe()
	defer cancel()

	snap, err := s.Analytics.Snapshot(ctx, time.Now())
	if err != nil {
		s.Logger.Warn("ws_snapshot_error", zap.Error(err))
		return
	}
	if err := websocket.JSON.Send(conn, snap); err != nil {
		return
	}

	// drain the read side so client closes are noticed
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			var discard string
			if err := websocket.Message.Receive(conn, &discard); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-closed:
			return
		case f, ok := <-frames:
			if !ok {
				return
			}
			if err := websocket.JSON.Send(conn, f); err != nil {
				return
			}
		}
	}
}
