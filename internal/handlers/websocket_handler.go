package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/labelscan/portal/internal/observability"
	"github.com/labelscan/portal/internal/services"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// WebSocketHandler streams submission snapshots of the caller's workspace
type WebSocketHandler struct {
	hub *services.WebSocketHub
}

// NewWebSocketHandler creates a new WebSocketHandler
func NewWebSocketHandler(hub *services.WebSocketHub) *WebSocketHandler {
	return &WebSocketHandler{hub: hub}
}

// HandleConnection upgrades to a WebSocket subscribed to the workspace. The
// current snapshot is sent first so a reconnecting page catches up.
func (h *WebSocketHandler) HandleConnection(w http.ResponseWriter, r *http.Request) {
	ws, ok := workspaceOf(w, r)
	if !ok {
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		observability.WithContext(r.Context()).Warnf("WebSocket upgrade failed: %v", err)
		return
	}

	client := h.hub.NewClient(uuid.New().String(), conn)
	h.hub.Register(client)
	h.hub.Subscribe(client, ws.ID)

	if data, err := json.Marshal(services.WSMessage{
		Type:    services.WSTypeSubmission,
		Payload: ws.Flow().Snapshot(),
	}); err == nil {
		client.Send <- data
	}

	go client.WritePump()
	client.ReadPump(h.handleMessage)
}

// handleMessage answers pings; snapshots only flow server to client
func (h *WebSocketHandler) handleMessage(client *services.WSClient, messageType int, data []byte) {
	if messageType != websocket.TextMessage {
		return
	}

	var msg services.WSMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		observability.Debugf("Invalid WebSocket message: %v", err)
		return
	}

	switch msg.Type {
	case services.WSTypePing:
		data, err := json.Marshal(services.WSMessage{Type: services.WSTypePong})
		if err != nil {
			return
		}
		if err := client.Reply(data); err != nil {
			observability.Debugf("WebSocket pong failed: %v", err)
		}
	default:
		observability.Debugf("Unknown WebSocket message type: %s", msg.Type)
	}
}
