package services

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labelscan/portal/internal/models"
	"github.com/labelscan/portal/internal/observability"
)

// WSMessage represents a WebSocket message
type WSMessage struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

// WSClient represents a connected WebSocket client
type WSClient struct {
	ID         string
	Topics     map[string]bool
	Conn       *websocket.Conn
	Send       chan []byte
	hub        *WebSocketHub
	mu         sync.Mutex
	closedOnce sync.Once
}

// WebSocketHub fans submission updates out to the browsers watching a
// workspace. Each workspace id is a topic.
type WebSocketHub struct {
	clients    map[*WSClient]bool
	topics     map[string]map[*WSClient]bool // topic -> clients
	register   chan *WSClient
	unregister chan *WSClient
	broadcast  chan *broadcastMsg
	done       chan struct{}
	mu         sync.RWMutex
}

type broadcastMsg struct {
	topic   string
	message []byte
}

// NewWebSocketHub creates a new WebSocket hub
func NewWebSocketHub() *WebSocketHub {
	return &WebSocketHub{
		clients:    make(map[*WSClient]bool),
		topics:     make(map[string]map[*WSClient]bool),
		register:   make(chan *WSClient),
		unregister: make(chan *WSClient),
		broadcast:  make(chan *broadcastMsg, 256),
		done:       make(chan struct{}),
	}
}

// Run starts the hub's main loop and returns when ctx is done
func (h *WebSocketHub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
			observability.Debugf("WebSocket client connected: %s", client.ID)

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				for topic := range client.Topics {
					if topicClients, ok := h.topics[topic]; ok {
						delete(topicClients, client)
						if len(topicClients) == 0 {
							delete(h.topics, topic)
						}
					}
				}
				close(client.Send)
			}
			h.mu.Unlock()
			observability.Debugf("WebSocket client disconnected: %s", client.ID)

		case msg := <-h.broadcast:
			h.mu.RLock()
			for client := range h.topics[msg.topic] {
				select {
				case client.Send <- msg.message:
				default:
					// Client buffer full, drop the connection
					go h.Unregister(client)
				}
			}
			h.mu.RUnlock()
		}
	}
}

// Register adds a client to the hub
func (h *WebSocketHub) Register(client *WSClient) {
	select {
	case h.register <- client:
	case <-h.done:
	}
}

// Unregister removes a client from the hub
func (h *WebSocketHub) Unregister(client *WSClient) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// Subscribe adds a client to a topic
func (h *WebSocketHub) Subscribe(client *WSClient, topic string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	client.Topics[topic] = true
	if h.topics[topic] == nil {
		h.topics[topic] = make(map[*WSClient]bool)
	}
	h.topics[topic][client] = true
}

// Unsubscribe removes a client from a topic
func (h *WebSocketHub) Unsubscribe(client *WSClient, topic string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	delete(client.Topics, topic)
	if topicClients, ok := h.topics[topic]; ok {
		delete(topicClients, client)
		if len(topicClients) == 0 {
			delete(h.topics, topic)
		}
	}
}

// BroadcastToTopic sends a message to all clients subscribed to a topic.
// Topics nobody watches are skipped without encoding the message.
func (h *WebSocketHub) BroadcastToTopic(topic string, msg WSMessage) {
	if h.GetTopicSubscriberCount(topic) == 0 {
		return
	}
	data, err := json.Marshal(msg)
	if err != nil {
		observability.Errorf("Error marshaling WebSocket message: %v", err)
		return
	}

	select {
	case h.broadcast <- &broadcastMsg{topic: topic, message: data}:
	case <-h.done:
	}
}

// PublishSubmission pushes a submission snapshot to a workspace's watchers
func (h *WebSocketHub) PublishSubmission(workspaceID string, snap models.SubmissionSnapshot) {
	h.BroadcastToTopic(workspaceID, WSMessage{Type: WSTypeSubmission, Payload: snap})
}

// GetClientCount returns the number of connected clients
func (h *WebSocketHub) GetClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// GetTopicSubscriberCount returns the number of subscribers for a topic
func (h *WebSocketHub) GetTopicSubscriberCount(topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if clients, ok := h.topics[topic]; ok {
		return len(clients)
	}
	return 0
}

// NewClient creates a new WebSocket client connected to this hub
func (h *WebSocketHub) NewClient(id string, conn *websocket.Conn) *WSClient {
	return &WSClient{
		ID:     id,
		Topics: make(map[string]bool),
		Conn:   conn,
		Send:   make(chan []byte, 256),
		hub:    h,
	}
}

// WSClient methods

// Close closes the client connection
func (c *WSClient) Close() {
	c.closedOnce.Do(func() {
		c.hub.Unregister(c)
		c.Conn.Close()
	})
}

// WritePump pumps messages from the hub to the websocket connection
func (c *WSClient) WritePump() {
	ticker := time.NewTicker(30 * time.Second)
	defer func() {
		ticker.Stop()
		c.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			if !ok {
				c.write(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.write(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			if err := c.write(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// Reply writes data straight to the connection. It is safe to call from the
// ReadPump callback after the hub has dropped the client.
func (c *WSClient) Reply(data []byte) error {
	return c.write(websocket.TextMessage, data)
}

// write serializes writers; the connection allows only one at a time
func (c *WSClient) write(messageType int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return c.Conn.WriteMessage(messageType, data)
}

// ReadPump pumps messages from the websocket connection to the hub
func (c *WSClient) ReadPump(onMessage func(client *WSClient, messageType int, data []byte)) {
	defer c.Close()

	c.Conn.SetReadLimit(512 * 1024) // 512KB max message size
	c.Conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		messageType, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				observability.Warnf("WebSocket error: %v", err)
			}
			break
		}

		if onMessage != nil {
			onMessage(c, messageType, message)
		}
	}
}

// Message types
const (
	WSTypeSubmission = "submission"
	WSTypeError      = "error"
	WSTypePing       = "ping"
	WSTypePong       = "pong"
)
