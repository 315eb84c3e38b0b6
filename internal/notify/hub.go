// Package notify pushes data changed events to the user's open websockets.
package notify

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/olahol/melody"

	"flowmoney/internal/core"
)

const userKey = "user_id"

// Hub fans changes out to every websocket session of the affected user.
type Hub struct {
	m *melody.Melody
}

func NewHub() *Hub {
	m := melody.New()
	m.Config.MaxMessageSize = 4096
	m.Config.PingPeriod = 30 * time.Second
	m.Config.PongWait = 60 * time.Second

	m.HandleConnect(func(s *melody.Session) {
		userID, _ := s.Get(userKey)
		slog.Debug("Websocket connected", "user_id", userID)
	})
	m.HandleDisconnect(func(s *melody.Session) {
		userID, _ := s.Get(userKey)
		slog.Debug("Websocket disconnected", "user_id", userID)
	})
	m.HandleError(func(s *melody.Session, err error) {
		userID, _ := s.Get(userKey)
		slog.Warn("Websocket error", "user_id", userID, "error", err)
	})
	return &Hub{m: m}
}

// Serve upgrades the request and binds the session to userID. It blocks
// until the session closes.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, userID string) error {
	return h.m.HandleRequestWithKeys(w, r, map[string]any{userKey: userID})
}

// DataChanged sends the change as JSON to the user's sessions.
func (h *Hub) DataChanged(ctx context.Context, change core.DataChange) {
	msg, err := json.Marshal(change)
	if err != nil {
		slog.ErrorContext(ctx, "Failed to encode data changed event", "error", err)
		return
	}
	err = h.m.BroadcastFilter(msg, func(s *melody.Session) bool {
		id, ok := s.Get(userKey)
		return ok && id == change.UserID
	})
	if err != nil && err != melody.ErrClosed {
		slog.WarnContext(ctx, "Failed to broadcast data changed event",
			"user_id", change.UserID, "kind", change.Kind, "error", err)
	}
}

// Sessions returns the number of open sessions.
func (h *Hub) Sessions() int {
	return h.m.Len()
}

func (h *Hub) Close() error {
	if h.m.IsClosed() {
		return nil
	}
	return h.m.Close()
}
