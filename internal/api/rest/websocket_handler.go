package rest

import (
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/terrawatch/excavation-monitor-backend/internal/infrastructure/events"
)

// WebSocketHandler upgrades alert subscribers onto the hub.
type WebSocketHandler struct {
	hub      *events.AlertHub
	upgrader websocket.Upgrader
}

func NewWebSocketHandler(hub *events.AlertHub) *WebSocketHandler {
	return &WebSocketHandler{
		hub: hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// Browser clients connect from the monitoring dashboard's
			// origin; cross-origin reads of alert frames are harmless.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// ServeAlerts upgrades the connection and hands it to the hub, which
// owns its lifecycle from then on.
func (h *WebSocketHandler) ServeAlerts(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.WarnContext(r.Context(), "websocket upgrade failed",
			"error", err,
			"remote_addr", r.RemoteAddr)
		return
	}

	id := uuid.NewString()
	h.hub.AddConnection(id, conn)
	slog.InfoContext(r.Context(), "alert subscriber connected",
		"connection_id", id,
		"remote_addr", r.RemoteAddr)
}
