package services

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/chachabrian/parkit-backend/internal/identity"
	"github.com/chachabrian/parkit-backend/internal/parking"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// WebSocket message types
const (
	MessageSlotStatus       = "slot_status"
	MessageBookingCreated   = "booking_created"
	MessageBookingCompleted = "booking_completed"
	MessagePaymentCompleted = "payment_completed"
	MessageSessionExpired   = "session_expired"
	MessagePong             = "pong"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for development
	},
}

// Client represents a WebSocket client
type Client struct {
	Session *identity.Session
	Conn    *websocket.Conn
	Send    chan []byte
	Hub     *Hub
}

// UserID returns the user currently bound to the connection, or "".
func (c *Client) UserID() string {
	if c.Session == nil {
		return ""
	}
	if id := c.Session.Current(); id != nil {
		return id.UserID
	}
	return ""
}

// Hub maintains the set of active clients and broadcasts messages
type Hub struct {
	clients    map[*Client]bool
	register   chan *Client
	unregister chan *Client
	broadcast  chan []byte
	quit       chan struct{}
	mutex      sync.RWMutex

	lastStatus []byte
}

// NewHub creates a new WebSocket hub
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan []byte, 16),
		quit:       make(chan struct{}),
	}
}

// Run starts the hub
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mutex.Lock()
			h.clients[client] = true
			last := h.lastStatus
			h.mutex.Unlock()
			log.Printf("[ws] client %q connected", client.UserID())
			if last != nil {
				h.trySend(client, last)
			}

		case client := <-h.unregister:
			h.remove(client)
			log.Printf("[ws] client %q disconnected", client.UserID())

		case message := <-h.broadcast:
			h.BroadcastToAll(message)

		case <-h.quit:
			h.mutex.Lock()
			for client := range h.clients {
				delete(h.clients, client)
				close(client.Send)
			}
			h.mutex.Unlock()
			return
		}
	}
}

// Stop disconnects every client and ends Run
func (h *Hub) Stop() {
	close(h.quit)
}

func (h *Hub) remove(client *Client) {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	if _, ok := h.clients[client]; ok {
		delete(h.clients, client)
		close(client.Send)
	}
}

func (h *Hub) trySend(client *Client, message []byte) bool {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	if !h.clients[client] {
		return false
	}
	select {
	case client.Send <- message:
		return true
	default:
		return false
	}
}

// BroadcastToUser sends a message to every connection of a specific user
func (h *Hub) BroadcastToUser(userID string, message []byte) {
	if userID == "" {
		return
	}
	var slow []*Client
	h.mutex.RLock()
	for client := range h.clients {
		if client.UserID() != userID {
			continue
		}
		select {
		case client.Send <- message:
		default:
			slow = append(slow, client)
		}
	}
	h.mutex.RUnlock()

	for _, client := range slow {
		h.remove(client)
	}
}

// BroadcastToAll sends a message to all connected clients
func (h *Hub) BroadcastToAll(message []byte) {
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	for client := range h.clients {
		select {
		case client.Send <- message:
		default:
			// Client's send channel is full, skip
			log.Printf("[ws] could not send to client %q (channel full)", client.UserID())
		}
	}
}

// GetConnectedClients returns the number of connected clients
func (h *Hub) GetConnectedClients() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.clients)
}

// WebSocketMessage is the envelope of every frame
type WebSocketMessage struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

func encodeMessage(kind string, data interface{}) ([]byte, error) {
	return json.Marshal(WebSocketMessage{Type: kind, Data: data})
}

// BroadcastStatus pushes a status snapshot to every client. New clients
// receive the latest snapshot when they connect.
func (h *Hub) BroadcastStatus(rec parking.StatusRecord) {
	data, err := encodeMessage(MessageSlotStatus, rec)
	if err != nil {
		log.Printf("[ws] error marshaling slot status: %v", err)
		return
	}
	h.mutex.Lock()
	h.lastStatus = data
	h.mutex.Unlock()

	select {
	case h.broadcast <- data:
	case <-h.quit:
	}
}

// Publish delivers a core event: the status snapshot to everyone and the
// booking or payment to its owner.
func (h *Hub) Publish(_ context.Context, event parking.Event) error {
	if event.Status != nil {
		h.BroadcastStatus(*event.Status)
	}

	var (
		kind string
		data interface{}
	)
	switch event.Type {
	case parking.EventBookingCreated:
		kind, data = MessageBookingCreated, event.Booking
	case parking.EventBookingCompleted:
		kind, data = MessageBookingCompleted, event.Booking
	case parking.EventPaymentCompleted:
		kind, data = MessagePaymentCompleted, event.Payment
	default:
		return nil
	}

	message, err := encodeMessage(kind, data)
	if err != nil {
		return err
	}
	h.BroadcastToUser(event.UserID, message)
	return nil
}

// HandleWebSocket upgrades the request and serves the connection until it
// closes
func HandleWebSocket(hub *Hub, w http.ResponseWriter, r *http.Request, session *identity.Session) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[ws] upgrade error: %v", err)
		return
	}

	client := &Client{
		Session: session,
		Conn:    conn,
		Send:    make(chan []byte, 256),
		Hub:     hub,
	}

	unsubscribe := session.OnChange(func(id *identity.Identity) {
		if id != nil {
			return
		}
		data, err := encodeMessage(MessageSessionExpired, nil)
		if err == nil {
			hub.trySend(client, data)
		}
	})

	select {
	case hub.register <- client:
	case <-hub.quit:
		unsubscribe()
		conn.Close()
		return
	}

	// Start goroutines for reading and writing
	go client.writePump()
	go client.readPump(unsubscribe)
}

// clientMessage is a frame sent by the browser
type clientMessage struct {
	Type  string `json:"type"`
	Token string `json:"token,omitempty"`
}

// readPump pumps messages from the websocket connection to the hub
func (c *Client) readPump(unsubscribe func()) {
	defer func() {
		unsubscribe()
		select {
		case c.Hub.unregister <- c:
		case <-c.Hub.quit:
		}
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(4096)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		return c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("[ws] read error: %v", err)
			}
			break
		}

		var msg clientMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			log.Printf("[ws] error unmarshaling message: %v", err)
			continue
		}

		switch msg.Type {
		case "refresh_token":
			ctx, cancel := context.WithTimeout(context.Background(), writeWait)
			if _, err := c.Session.Refresh(ctx, msg.Token); err != nil {
				log.Printf("[ws] token refresh rejected: %v", err)
			}
			cancel()
		case "ping":
			if data, err := encodeMessage(MessagePong, nil); err == nil {
				c.Hub.trySend(c, data)
			}
		}
	}
}

// writePump pumps messages from the hub to the websocket connection
func (c *Client) writePump() {
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
				log.Printf("[ws] write error: %v", err)
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
