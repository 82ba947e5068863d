package websocket

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second
	sendBuffer = 64
)

type sessionMessage struct {
	sessionID string
	payload   []byte
}

// Hub tracks clients watching interview sessions and fans session events out to them.
type Hub struct {
	sessions   map[string]map[*Client]bool
	register   chan *Client
	unregister chan *Client
	broadcast  chan sessionMessage
	mu         sync.RWMutex
}

type Client struct {
	ID        string
	Hub       *Hub
	Conn      *websocket.Conn
	Send      chan []byte
	SessionID string
}

func NewHub() *Hub {
	return &Hub{
		sessions:   make(map[string]map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan sessionMessage, 256),
	}
}

func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			clients, ok := h.sessions[client.SessionID]
			if !ok {
				clients = make(map[*Client]bool)
				h.sessions[client.SessionID] = clients
			}
			clients[client] = true
			h.mu.Unlock()
			slog.Info("Client subscribed", "client_id", client.ID, "session_id", client.SessionID)

		case client := <-h.unregister:
			h.mu.Lock()
			h.remove(client)
			h.mu.Unlock()
			slog.Info("Client unsubscribed", "client_id", client.ID, "session_id", client.SessionID)

		case msg := <-h.broadcast:
			h.mu.Lock()
			for client := range h.sessions[msg.sessionID] {
				select {
				case client.Send <- msg.payload:
				default:
					slog.Warn("Dropping slow client", "client_id", client.ID, "session_id", client.SessionID)
					h.remove(client)
				}
			}
			h.mu.Unlock()
		}
	}
}

// remove must be called with h.mu held.
func (h *Hub) remove(client *Client) {
	clients, ok := h.sessions[client.SessionID]
	if !ok {
		return
	}
	if _, ok := clients[client]; !ok {
		return
	}
	delete(clients, client)
	close(client.Send)
	if len(clients) == 0 {
		delete(h.sessions, client.SessionID)
	}
}

// Subscribe registers a connection as a watcher of one session.
func (h *Hub) Subscribe(conn *websocket.Conn, sessionID string) *Client {
	client := &Client{
		ID:        uuid.NewString(),
		Hub:       h,
		Conn:      conn,
		Send:      make(chan []byte, sendBuffer),
		SessionID: sessionID,
	}
	h.register <- client
	return client
}

// BroadcastToSession queues a payload for every client watching the session.
// Events for sessions nobody watches are discarded by the run loop.
func (h *Hub) BroadcastToSession(sessionID string, payload []byte) {
	select {
	case h.broadcast <- sessionMessage{sessionID: sessionID, payload: payload}:
	default:
		slog.Warn("Broadcast queue full, dropping event", "session_id", sessionID)
	}
}

// Subscribers returns how many clients watch a session.
func (h *Hub) Subscribers(sessionID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions[sessionID])
}

// ReadPump keeps the connection alive and discards client frames; the stream is server-to-client only.
func (c *Client) ReadPump() {
	defer func() {
		c.Hub.unregister <- c
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(4096)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.Conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				slog.Error("WebSocket error", "error", err, "session_id", c.SessionID)
			}
			return
		}
	}
}

func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
