package game

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/gofiber/contrib/websocket"
)

const (
	clientQueueSize = 64
	writeDeadline   = 5 * time.Second
)

// Client is one connected session. Messages go through a bounded send
// queue drained by a dedicated write goroutine; the tick loop never waits
// on a socket.
type Client struct {
	conn   *websocket.Conn
	userID string
	send   chan []byte
	once   sync.Once
	done   chan struct{}
}

func (c *Client) UserID() string { return c.userID }

// enqueue hands a frame to the client's writer without blocking. A full
// queue means the client cannot keep up with the tick rate; it gets cut
// rather than stalling the broadcast.
func (c *Client) enqueue(frame []byte) bool {
	select {
	case c.send <- frame:
		return true
	default:
		return false
	}
}

func (c *Client) close() {
	c.once.Do(func() {
		close(c.done)
		if c.conn != nil {
			c.conn.Close()
		}
	})
}

func (c *Client) writePump() {
	for {
		select {
		case frame := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				log.Printf("[WS] Write error for user %s: %v", c.userID, err)
				c.close()
				return
			}
		case <-c.done:
			return
		}
	}
}

// Hub is the session registry: it fans broadcast frames out to every
// connection and routes per-player frames by user ID. A user may hold
// several sessions (multiple tabs); all of them get the player's frames.
type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]struct{}
	byUser  map[string]map[*Client]struct{}

	unregister chan *Client
	stop       chan struct{}
}

func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]struct{}),
		byUser:     make(map[string]map[*Client]struct{}),
		unregister: make(chan *Client),
		stop:       make(chan struct{}),
	}
}

func (h *Hub) Run() {
	for {
		select {
		case client := <-h.unregister:
			h.drop(client)

		case <-h.stop:
			h.mu.Lock()
			for client := range h.clients {
				client.close()
			}
			h.clients = make(map[*Client]struct{})
			h.byUser = make(map[string]map[*Client]struct{})
			h.mu.Unlock()
			return
		}
	}
}

func (h *Hub) Stop() {
	close(h.stop)
}

func (h *Hub) drop(client *Client) {
	h.mu.Lock()
	if _, ok := h.clients[client]; ok {
		delete(h.clients, client)
		if peers := h.byUser[client.userID]; peers != nil {
			delete(peers, client)
			if len(peers) == 0 {
				delete(h.byUser, client.userID)
			}
		}
		client.close()
		log.Printf("[WS] Client disconnected: %s (total: %d)", client.userID, len(h.clients))
	}
	h.mu.Unlock()
}

// Broadcast marshals once and enqueues to every session. Sessions whose
// queue is full are disconnected; nobody else waits for them.
func (h *Hub) Broadcast(msg Envelope) {
	frame, err := json.Marshal(msg)
	if err != nil {
		log.Printf("[WS] Marshal error: %v", err)
		return
	}

	h.mu.RLock()
	var slow []*Client
	for client := range h.clients {
		if !client.enqueue(frame) {
			slow = append(slow, client)
		}
	}
	h.mu.RUnlock()

	for _, client := range slow {
		log.Printf("[WS] Dropping slow client: %s", client.userID)
		h.drop(client)
	}
}

// SendToUser delivers a frame to every session the user holds.
func (h *Hub) SendToUser(userID string, msg Envelope) {
	frame, err := json.Marshal(msg)
	if err != nil {
		log.Printf("[WS] Marshal error: %v", err)
		return
	}

	h.mu.RLock()
	var slow []*Client
	for client := range h.byUser[userID] {
		if !client.enqueue(frame) {
			slow = append(slow, client)
		}
	}
	h.mu.RUnlock()

	for _, client := range slow {
		h.drop(client)
	}
}

func (h *Hub) GetClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// addClient indexes the session under the lock so frames sent right after
// registration, the greeting included, cannot miss it.
func (h *Hub) addClient(client *Client) {
	h.mu.Lock()
	h.clients[client] = struct{}{}
	if h.byUser[client.userID] == nil {
		h.byUser[client.userID] = make(map[*Client]struct{})
	}
	h.byUser[client.userID][client] = struct{}{}
	total := len(h.clients)
	h.mu.Unlock()
	log.Printf("[WS] Client connected: %s (total: %d)", client.userID, total)
}

// RegisterClient wires a fresh websocket connection into the hub and
// greets it. The returned client is used by the read loop for teardown.
func (h *Hub) RegisterClient(conn *websocket.Conn, userID string) *Client {
	client := &Client{
		conn:   conn,
		userID: userID,
		send:   make(chan []byte, clientQueueSize),
		done:   make(chan struct{}),
	}
	h.addClient(client)
	go client.writePump()
	h.SendToUser(userID, Envelope{Type: "connected", Data: ConnectedMessage{PlayerID: userID}})
	return client
}

func (h *Hub) UnregisterClient(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.stop:
	}
}
