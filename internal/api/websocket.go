package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/sirupsen/logrus"
)

// WebSocketMessage represents a message sent over WebSocket
type WebSocketMessage struct {
	Type      string    `json:"type"`
	Data      any       `json:"data"`
	Timestamp time.Time `json:"timestamp"`
}

// WebSocketClient represents a connected WebSocket client
type WebSocketClient struct {
	hub  *WebSocketHub
	conn *websocket.Conn
	send chan WebSocketMessage

	done      chan struct{}
	closeOnce sync.Once
}

// WebSocketHub maintains the set of active clients and broadcasts messages
type WebSocketHub struct {
	clients    map[*WebSocketClient]bool
	broadcast  chan WebSocketMessage
	register   chan *WebSocketClient
	unregister chan *WebSocketClient
	logger     *logrus.Entry

	mu             sync.RWMutex
	running        bool
	apiKey         string
	allowedOrigins []string

	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewWebSocketHub creates a new WebSocket hub
func NewWebSocketHub(logger *logrus.Entry) *WebSocketHub {
	if logger == nil {
		logger = logrus.WithField("module", "api")
	}
	return &WebSocketHub{
		clients:    make(map[*WebSocketClient]bool),
		broadcast:  make(chan WebSocketMessage, 256),
		register:   make(chan *WebSocketClient),
		unregister: make(chan *WebSocketClient),
		logger:     logger,
		stopCh:     make(chan struct{}),
	}
}

// SetSecurityConfig sets the key clients must present and the origins
// allowed to upgrade
func (h *WebSocketHub) SetSecurityConfig(apiKey string, allowedOrigins []string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.apiKey = apiKey
	h.allowedOrigins = append([]string(nil), allowedOrigins...)
}

// Run starts the hub's main loop
func (h *WebSocketHub) Run() {
	h.mu.Lock()
	h.running = true
	h.mu.Unlock()

	for {
		select {
		case <-h.stopCh:
			h.mu.Lock()
			h.running = false
			for client := range h.clients {
				client.close()
				delete(h.clients, client)
			}
			h.mu.Unlock()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				client.close()
			}
			h.mu.Unlock()

		case message := <-h.broadcast:
			h.mu.RLock()
			for client := range h.clients {
				select {
				case client.send <- message:
				default:
					// Slow client, drop it
					go h.drop(client)
				}
			}
			h.mu.RUnlock()
		}
	}
}

// Stop stops the hub
func (h *WebSocketHub) Stop() {
	h.stopOnce.Do(func() { close(h.stopCh) })
}

// IsRunning reports whether Run is active
func (h *WebSocketHub) IsRunning() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.running
}

// Broadcast sends a message to all connected clients. Messages are dropped
// when the hub is not running or its queue is full.
func (h *WebSocketHub) Broadcast(msg WebSocketMessage) {
	if !h.IsRunning() {
		return
	}

	select {
	case h.broadcast <- msg:
	default:
		h.logger.WithField("type", msg.Type).Warn("Broadcast queue full, message dropped")
	}
}

// ClientCount returns the number of connected clients
func (h *WebSocketHub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// ServeWs handles WebSocket requests from clients
func (h *WebSocketHub) ServeWs(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	apiKey := h.apiKey
	origins := originPatterns(h.allowedOrigins)
	h.mu.RUnlock()

	if apiKey != "" && !keyMatches(providedAPIKey(r), apiKey) {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: origins,
	})
	if err != nil {
		h.logger.WithError(err).Warn("WebSocket accept failed")
		return
	}

	client := &WebSocketClient{
		hub:  h,
		conn: conn,
		send: make(chan WebSocketMessage, 64),
		done: make(chan struct{}),
	}

	select {
	case h.register <- client:
	case <-h.stopCh:
		client.close()
		return
	}

	go client.writePump()

	// Read pump blocks until connection closes
	client.readPump(r.Context())
}

func (h *WebSocketHub) drop(client *WebSocketClient) {
	select {
	case h.unregister <- client:
	case <-h.stopCh:
	}
}

// originPatterns converts configured origins to the host patterns the
// websocket library matches against
func originPatterns(origins []string) []string {
	patterns := make([]string, 0, len(origins))
	for _, origin := range origins {
		if u, err := url.Parse(origin); err == nil && u.Host != "" {
			patterns = append(patterns, u.Host)
			continue
		}
		if i := strings.Index(origin, "://"); i >= 0 {
			origin = origin[i+3:]
		}
		patterns = append(patterns, origin)
	}
	return patterns
}

// readPump reads messages from the WebSocket connection
func (c *WebSocketClient) readPump(ctx context.Context) {
	defer c.hub.drop(c)

	for {
		var msg map[string]any
		if err := wsjson.Read(ctx, c.conn, &msg); err != nil {
			status := websocket.CloseStatus(err)
			if status != websocket.StatusNormalClosure && status != websocket.StatusGoingAway {
				c.hub.logger.WithError(err).Debug("WebSocket read ended")
			}
			return
		}

		if msgType, ok := msg["type"].(string); ok {
			c.handleMessage(msgType)
		}
	}
}

// writePump sends messages to the WebSocket connection
func (c *WebSocketClient) writePump() {
	ticker := time.NewTicker(30 * time.Second)
	defer func() {
		ticker.Stop()
		c.close()
	}()

	for {
		select {
		case <-c.done:
			return

		case message := <-c.send:
			ctx, cancel := newWriteContext()
			err := wsjson.Write(ctx, c.conn, message)
			cancel()

			if err != nil {
				c.hub.logger.WithError(err).Debug("WebSocket write failed")
				return
			}

		case <-ticker.C:
			ctx, cancel := newWriteContext()
			err := c.conn.Ping(ctx)
			cancel()

			if err != nil {
				return
			}
		}
	}
}

// handleMessage processes incoming client messages
func (c *WebSocketClient) handleMessage(msgType string) {
	switch msgType {
	case "ping":
		select {
		case c.send <- WebSocketMessage{Type: "pong", Timestamp: time.Now()}:
		case <-c.done:
		}
	}
}

// close closes the client connection
func (c *WebSocketClient) close() {
	c.closeOnce.Do(func() {
		close(c.done)
		c.conn.Close(websocket.StatusNormalClosure, "closing")
	})
}

// newWriteContext creates a context with timeout for writes
func newWriteContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 10*time.Second)
}

// MarshalJSON implements json.Marshaler for WebSocketMessage
func (m WebSocketMessage) MarshalJSON() ([]byte, error) {
	type Alias WebSocketMessage
	return json.Marshal(&struct {
		Alias
		Timestamp string `json:"timestamp"`
	}{
		Alias:     Alias(m),
		Timestamp: m.Timestamp.UTC().Format(time.RFC3339Nano),
	})
}
