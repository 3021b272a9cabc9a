package sim

import (
	"context"
	"sync"
	"time"

	"nhooyr.io/websocket"

	"pbterm/log"
)

const writeTimeout = 2 * time.Second

// Hub fans frames out to every connected terminal. A client whose send fails
// is dropped; the rest keep receiving.
type Hub struct {
	mu      sync.Mutex
	clients map[*websocket.Conn]struct{}
}

func NewHub() *Hub {
	return &Hub{clients: make(map[*websocket.Conn]struct{})}
}

func (h *Hub) Register(c *websocket.Conn) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()
	log.Infof("sim: terminal connected (%d total)", n)
}

func (h *Hub) Unregister(c *websocket.Conn) {
	h.mu.Lock()
	_, ok := h.clients[c]
	delete(h.clients, c)
	n := len(h.clients)
	h.mu.Unlock()
	if ok {
		log.Infof("sim: terminal disconnected (%d total)", n)
	}
}

func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Broadcast sends payloads in order to every client. The hub lock is held
// for the whole fan-out so concurrent broadcasts never interleave.
func (h *Hub) Broadcast(ctx context.Context, payloads ...[]byte) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for c := range h.clients {
		for _, p := range payloads {
			if err := h.send(ctx, c, p); err != nil {
				log.Warnf("sim: send failed, dropping terminal: %v", err)
				delete(h.clients, c)
				c.CloseNow()
				break
			}
		}
	}
}

// SendTo delivers payloads to a single client under the same ordering lock.
func (h *Hub) SendTo(ctx context.Context, c *websocket.Conn, payloads ...[]byte) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[c]; !ok {
		return
	}
	for _, p := range payloads {
		if err := h.send(ctx, c, p); err != nil {
			delete(h.clients, c)
			c.CloseNow()
			return
		}
	}
}

// CloseAll disconnects every client.
func (h *Hub) CloseAll() {
	h.mu.Lock()
	conns := make([]*websocket.Conn, 0, len(h.clients))
	for c := range h.clients {
		conns = append(conns, c)
		delete(h.clients, c)
	}
	h.mu.Unlock()

	for _, c := range conns {
		c.Close(websocket.StatusGoingAway, "device shutting down")
	}
}

func (h *Hub) send(ctx context.Context, c *websocket.Conn, p []byte) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return c.Write(ctx, websocket.MessageText, p)
}
