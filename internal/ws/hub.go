package ws

import (
	"encoding/json"
	"math/rand"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/oklog/ulid/v2"

	"github.com/planning-poker/backend/internal/model"
)

// MessageType represents the type of WebSocket message.
type MessageType string

const (
	// Client -> Server message types
	MessageTypeJoin       MessageType = "join"
	MessageTypeChangeRole MessageType = "changeRole"
	MessageTypeSubmitVote MessageType = "submitVote"
	MessageTypeResetVotes MessageType = "resetVotes"
	MessageTypePing       MessageType = "ping"

	// Server -> Client message types
	MessageTypeParticipantID MessageType = "participantId"
	MessageTypeRoomUpdate    MessageType = "roomUpdate"
	MessageTypePong          MessageType = "pong"
	MessageTypeError         MessageType = "error"
)

// Message represents a WebSocket message in either direction. Value is a
// pointer so a vote of 0 is distinguishable from an absent field.
type Message struct {
	Type          MessageType     `json:"type"`
	RoomID        string          `json:"roomId,omitempty"`
	ParticipantID string          `json:"participantId,omitempty"`
	Name          string          `json:"name,omitempty"`
	Role          string          `json:"role,omitempty"`
	Value         *int            `json:"value,omitempty"`
	Room          *model.Snapshot `json:"room,omitempty"`
	Error         string          `json:"error,omitempty"`
}

var (
	ulidEntropy   = ulid.Monotonic(rand.New(rand.NewSource(time.Now().UnixNano())), 0)
	ulidEntropyMu sync.Mutex
)

// newConnID generates a connection ID used for log correlation.
func newConnID() string {
	ulidEntropyMu.Lock()
	defer ulidEntropyMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), ulidEntropy).String()
}

// Client represents a WebSocket client connection.
type Client struct {
	id     string
	conn   *websocket.Conn
	send   chan []byte
	mu     sync.Mutex
	closed bool
}

// NewClient creates a new WebSocket client.
func NewClient(conn *websocket.Conn) *Client {
	return &Client{
		id:   newConnID(),
		conn: conn,
		send: make(chan []byte, 256),
	}
}

// ID returns the connection ID.
func (c *Client) ID() string {
	return c.id
}

// Conn returns the underlying WebSocket connection.
func (c *Client) Conn() *websocket.Conn {
	return c.conn
}

// SendChan returns the send channel for the client.
func (c *Client) SendChan() <-chan []byte {
	return c.send
}

// Send queues a message to be sent to the client. It never blocks: a client
// whose buffer is full is closed and dropped.
func (c *Client) Send(data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}

	select {
	case c.send <- data:
	default:
		c.closeLocked()
	}
}

// SendMessage marshals and queues a Message to the client.
func (c *Client) SendMessage(msg *Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	c.Send(data)
	return nil
}

// Close closes the client connection.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closeLocked()
}

func (c *Client) closeLocked() {
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

// IsClosed returns true if the client is closed.
func (c *Client) IsClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Hub fans messages out to every client currently joined to one room.
type Hub struct {
	roomID  string
	clients map[*Client]bool
	mu      sync.RWMutex
}

// NewHub creates a new Hub for the given room.
func NewHub(roomID string) *Hub {
	return &Hub{
		roomID:  roomID,
		clients: make(map[*Client]bool),
	}
}

// RoomID returns the room ID for this hub.
func (h *Hub) RoomID() string {
	return h.roomID
}

// Register adds a client to the hub.
func (h *Hub) Register(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[client] = true
}

// Unregister removes a client from the hub. The client is left open; a
// connection moving to another room keeps its socket.
func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.clients, client)
}

// Broadcast sends raw data to all connected clients.
func (h *Hub) Broadcast(data []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for client := range h.clients {
		client.Send(data)
	}
}

// BroadcastMessage sends a Message to all connected clients.
func (h *Hub) BroadcastMessage(msg *Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	h.Broadcast(data)
	return nil
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close closes all client connections and the hub.
func (h *Hub) Close() {
	h.mu.Lock()
	clients := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	h.clients = make(map[*Client]bool)
	h.mu.Unlock()

	for _, client := range clients {
		client.Close()
	}
}

// HubManager manages hubs for all live rooms.
type HubManager struct {
	hubs map[string]*Hub
	mu   sync.RWMutex
}

// NewHubManager creates a new HubManager.
func NewHubManager() *HubManager {
	return &HubManager{
		hubs: make(map[string]*Hub),
	}
}

// GetOrCreate returns an existing hub or creates a new one for the room.
func (m *HubManager) GetOrCreate(roomID string) *Hub {
	m.mu.Lock()
	defer m.mu.Unlock()

	if hub, ok := m.hubs[roomID]; ok {
		return hub
	}

	hub := NewHub(roomID)
	m.hubs[roomID] = hub
	return hub
}

// Get returns the hub for the room, or nil if not found.
func (m *HubManager) Get(roomID string) *Hub {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.hubs[roomID]
}

// Remove removes the hub for the room and closes any remaining clients.
func (m *HubManager) Remove(roomID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if hub, ok := m.hubs[roomID]; ok {
		hub.Close()
		delete(m.hubs, roomID)
	}
}

// RemoveIfEmpty drops the hub only when it has no clients left. It reports
// whether the hub was removed. Used when a room is garbage-collected while a
// late joiner may already be registered and about to recreate the room.
func (m *HubManager) RemoveIfEmpty(roomID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	hub, ok := m.hubs[roomID]
	if !ok {
		return false
	}
	if hub.ClientCount() > 0 {
		return false
	}
	delete(m.hubs, roomID)
	return true
}

// Close closes all hubs.
func (m *HubManager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, hub := range m.hubs {
		hub.Close()
	}
	m.hubs = make(map[string]*Hub)
}
