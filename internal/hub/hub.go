// Package hub fans events out to connected WebSocket clients. It implements
// types.Emitter so the rest of the backend never touches a connection
// directly.
package hub

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/gorilla/websocket"
)

// SafeConn wraps a websocket.Conn with a mutex for thread-safe writes.
// gorilla/websocket allows only one concurrent writer per connection.
type SafeConn struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func NewSafeConn(conn *websocket.Conn) *SafeConn {
	return &SafeConn{conn: conn}
}

// WriteMessage sends a message (thread-safe).
func (sc *SafeConn) WriteMessage(messageType int, data []byte) error {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	return sc.conn.WriteMessage(messageType, data)
}

// ReadMessage reads the next message. Reads need no lock: a single goroutine
// owns the read side of each connection.
func (sc *SafeConn) ReadMessage() (int, []byte, error) {
	return sc.conn.ReadMessage()
}

func (sc *SafeConn) Close() error {
	return sc.conn.Close()
}

// Hub tracks connected clients and broadcasts events to all of them.
type Hub struct {
	mu      sync.RWMutex
	clients map[*SafeConn]bool
}

func New() *Hub {
	return &Hub{clients: make(map[*SafeConn]bool)}
}

// Register adds a client to the broadcast set.
func (h *Hub) Register(conn *SafeConn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[conn] = true
	fmt.Printf("[DEBUG] Hub: client registered (%d connected)\n", len(h.clients))
}

// Unregister removes a client. The caller closes the connection.
func (h *Hub) Unregister(conn *SafeConn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.clients, conn)
	fmt.Printf("[DEBUG] Hub: client unregistered (%d connected)\n", len(h.clients))
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Emit broadcasts one event to every connected client as a JSON text frame
// with the event tag under "type" alongside the payload fields. A payload key
// named "type" would collide with the tag, so emitters must not use it.
func (h *Hub) Emit(event string, payload map[string]any) {
	envelope := make(map[string]any, len(payload)+1)
	for k, v := range payload {
		envelope[k] = v
	}
	envelope["type"] = event

	data, err := json.Marshal(envelope)
	if err != nil {
		fmt.Printf("[WARN] Hub: marshal error for %s: %v\n", event, err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for conn := range h.clients {
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			// The read loop notices the dead connection and unregisters it.
			fmt.Printf("[DEBUG] Hub: broadcast write error: %v\n", err)
		}
	}
}
