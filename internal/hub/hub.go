// Package hub provides in-process fan-out of live stage messages to
// connected viewer streams.
package hub

import (
	"encoding/json"
	"log"
	"sync"

	"github.com/google/uuid"
)

const clientBufferSize = 64

// Message is one named stream message before framing.
type Message struct {
	Event string
	Data  interface{}
}

// Frame is a message as delivered to a client channel. KeepAlive frames
// carry no payload; the transport renders them as its own liveness signal.
type Frame struct {
	Event     string
	Data      json.RawMessage
	KeepAlive bool
}

// Client is one connected viewer. The transport owns draining Frames; the
// hub owns closing it.
type Client struct {
	ID     string
	Frames chan Frame
}

// Hub is the in-process registry of connected viewers. It is constructed
// once at startup and passed by reference; delivery is best-effort — a slow
// or dead client is dropped, never allowed to block the rest.
type Hub struct {
	mu      sync.Mutex
	clients map[string]*Client
}

// New creates an empty Hub.
func New() *Hub {
	return &Hub{clients: make(map[string]*Client)}
}

// AddClient registers a new viewer and returns its client handle.
func (h *Hub) AddClient() *Client {
	client := &Client{
		ID:     uuid.New().String(),
		Frames: make(chan Frame, clientBufferSize),
	}
	h.mu.Lock()
	h.clients[client.ID] = client
	h.mu.Unlock()
	return client
}

// RemoveClient deregisters a viewer and closes its channel. Safe to call for
// an already-removed client.
func (h *Hub) RemoveClient(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.drop(id)
}

// Send delivers one message to a single client.
func (h *Hub) Send(id string, msg Message) {
	frame, err := frameOf(msg)
	if err != nil {
		log.Printf("ERROR: failed to marshal %s message: %v", msg.Event, err)
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if client, ok := h.clients[id]; ok {
		h.enqueue(client, frame)
	}
}

// SendKeepAlive delivers a liveness frame to a single client.
func (h *Hub) SendKeepAlive(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if client, ok := h.clients[id]; ok {
		h.enqueue(client, Frame{KeepAlive: true})
	}
}

// Broadcast delivers one message to every connected client. A client whose
// buffer is full is dropped; remaining clients still receive the message.
func (h *Hub) Broadcast(msg Message) {
	frame, err := frameOf(msg)
	if err != nil {
		log.Printf("ERROR: failed to marshal %s message: %v", msg.Event, err)
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, client := range h.clients {
		h.enqueue(client, frame)
	}
}

// ClientCount returns the number of connected viewers.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// enqueue must be called with h.mu held.
func (h *Hub) enqueue(client *Client, frame Frame) {
	select {
	case client.Frames <- frame:
	default:
		log.Printf("WARN: dropping client %s: send buffer full", client.ID)
		h.drop(client.ID)
	}
}

// drop must be called with h.mu held.
func (h *Hub) drop(id string) {
	if client, ok := h.clients[id]; ok {
		delete(h.clients, id)
		close(client.Frames)
	}
}

func frameOf(msg Message) (Frame, error) {
	data, err := json.Marshal(msg.Data)
	if err != nil {
		return Frame{}, err
	}
	return Frame{Event: msg.Event, Data: data}, nil
}
