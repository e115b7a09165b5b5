package events

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"labourpanel/internal/domain/labour"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
	sendBuffer = 8
)

// Message is the frame pushed to browsers.
type Message struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// Gauge tracks open connections.
type Gauge interface {
	LiveClientConnected()
	LiveClientDisconnected()
}

type client struct {
	conn *websocket.Conn
	send chan []byte
	once sync.Once
}

func (c *client) close() {
	c.once.Do(func() { close(c.send) })
}

// Hub pushes labour snapshots to every socket subscribed to the same key.
type Hub struct {
	upgrader websocket.Upgrader
	gauge    Gauge
	logger   *slog.Logger

	mu     sync.Mutex
	topics map[string]map[*client]struct{}
	closed bool
	wg     sync.WaitGroup
}

// NewHub builds a hub. checkOrigin may be nil to accept same-host origins
// only (gorilla's default).
func NewHub(checkOrigin func(r *http.Request) bool, gauge Gauge, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     checkOrigin,
		},
		gauge:  gauge,
		logger: logger.With("component", "events"),
		topics: make(map[string]map[*client]struct{}),
	}
}

// Publish implements labour.Publisher. Slow clients are dropped rather than
// blocking the caller.
func (h *Hub) Publish(key string, snap labour.Snapshot) {
	payload, err := json.Marshal(Message{Type: "labour.snapshot", Data: snap})
	if err != nil {
		h.logger.Warn("encode snapshot failed", "err", err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.topics[key] {
		select {
		case c.send <- payload:
		default:
			h.logger.Warn("live client too slow, dropping")
			h.removeLocked(key, c)
		}
	}
}

// Count reports open sockets on key.
func (h *Hub) Count(key string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.topics[key])
}

// Serve upgrades the request and keeps the socket subscribed to key until
// either side goes away.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, key string) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Debug("websocket upgrade failed", "err", err)
		return
	}
	c := &client{conn: conn, send: make(chan []byte, sendBuffer)}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		_ = conn.Close()
		return
	}
	if h.topics[key] == nil {
		h.topics[key] = make(map[*client]struct{})
	}
	h.topics[key][c] = struct{}{}
	h.wg.Add(2)
	h.mu.Unlock()

	if h.gauge != nil {
		h.gauge.LiveClientConnected()
	}

	go h.writePump(c)
	go h.readPump(key, c)
}

func (h *Hub) readPump(key string, c *client) {
	defer h.wg.Done()
	defer func() {
		h.mu.Lock()
		h.removeLocked(key, c)
		h.mu.Unlock()
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(512)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writePump(c *client) {
	defer h.wg.Done()
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case payload, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// removeLocked must be called with mu held.
func (h *Hub) removeLocked(key string, c *client) {
	clients, ok := h.topics[key]
	if !ok {
		return
	}
	if _, ok := clients[c]; !ok {
		return
	}
	delete(clients, c)
	if len(clients) == 0 {
		delete(h.topics, key)
	}
	c.close()
	if h.gauge != nil {
		h.gauge.LiveClientDisconnected()
	}
}

// Drop disconnects every socket on key, e.g. when its session ends.
func (h *Hub) Drop(key string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.topics[key] {
		h.removeLocked(key, c)
	}
}

// Close disconnects everyone and waits for the socket goroutines to exit.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	for key, clients := range h.topics {
		for c := range clients {
			h.removeLocked(key, c)
		}
	}
	h.mu.Unlock()
	h.wg.Wait()
}
