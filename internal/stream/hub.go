// Package stream pushes decoded readings to websocket subscribers.
package stream

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

const writeWait = 5 * time.Second

var upgrader = websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}

// Hub fans readings out to every connected websocket client. A client whose
// write fails is dropped.
type Hub struct {
	mu      sync.Mutex
	clients map[*websocket.Conn]bool
	log     *logrus.Logger

	// send serialises Broadcast calls; a connection allows one writer.
	send      sync.Mutex
	writeWait time.Duration
}

func NewHub(log *logrus.Logger) *Hub {
	return &Hub{clients: map[*websocket.Conn]bool{}, log: log, writeWait: writeWait}
}

// ServeHTTP upgrades the request and registers the client. Anything the
// client sends is discarded; the read loop only notices disconnects.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Debugf("websocket upgrade failed: %v", err)
		return
	}
	h.mu.Lock()
	h.clients[conn] = true
	h.mu.Unlock()
	h.log.Debugf("stream client connected: %s", conn.RemoteAddr())

	go func() {
		defer h.remove(conn)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

func (h *Hub) remove(conn *websocket.Conn) {
	h.mu.Lock()
	_, ok := h.clients[conn]
	delete(h.clients, conn)
	h.mu.Unlock()

	if ok {
		if err := conn.Close(); err != nil {
			h.log.Debugf("closing websocket: %v", err)
		}
		h.log.Debugf("stream client disconnected: %s", conn.RemoteAddr())
	}
}

// Broadcast sends v as a JSON text message to every client.
func (h *Hub) Broadcast(v any) error {
	msg, err := json.Marshal(v)
	if err != nil {
		return err
	}

	h.send.Lock()
	defer h.send.Unlock()

	// one deadline for the whole round so stalled clients cannot add up
	until := time.Now().Add(h.writeWait)
	for _, c := range h.snapshot() {
		c.SetWriteDeadline(until)
		if err := c.WriteMessage(websocket.TextMessage, msg); err != nil {
			h.log.Debugf("dropping stream client %s: %v", c.RemoteAddr(), err)
			h.remove(c)
		}
	}
	return nil
}

func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *Hub) snapshot() []*websocket.Conn {
	h.mu.Lock()
	defer h.mu.Unlock()
	conns := make([]*websocket.Conn, 0, len(h.clients))
	for c := range h.clients {
		conns = append(conns, c)
	}
	return conns
}

// Close disconnects every client.
func (h *Hub) Close() {
	for _, c := range h.snapshot() {
		c.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
			time.Now().Add(time.Second))
		h.remove(c)
	}
}
