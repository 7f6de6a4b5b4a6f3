package server

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const writeWait = 5 * time.Second

// Hub fans encoded events out to websocket clients. Clients only listen;
// anything they send is discarded.
type Hub struct {
	logger   *slog.Logger
	upgrader websocket.Upgrader

	mu      sync.RWMutex
	clients map[string]*hubClient
}

type hubClient struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

// NewHub returns a hub whose upgrades are gated by checkOrigin. A nil
// checkOrigin accepts only same-host browser origins.
func NewHub(logger *slog.Logger, checkOrigin func(r *http.Request) bool) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     checkOrigin,
		},
		clients: make(map[string]*hubClient),
	}
}

func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "origin", r.Header.Get("Origin"), "err", err)
		return
	}

	id := uuid.NewString()
	client := &hubClient{conn: conn}
	h.mu.Lock()
	h.clients[id] = client
	h.mu.Unlock()

	h.logger.Info("event client connected", "client_id", id)

	defer func() {
		h.mu.Lock()
		delete(h.clients, id)
		h.mu.Unlock()
		conn.Close()
		h.logger.Info("event client disconnected", "client_id", id)
	}()

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Debug("websocket read error", "err", err)
			}
			return
		}
	}
}

// Broadcast writes payload as one text frame to every client.
func (h *Hub) Broadcast(payload []byte) {
	h.mu.RLock()
	clients := make([]*hubClient, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	for _, c := range clients {
		if err := c.send(payload); err != nil {
			h.logger.Debug("websocket write failed", "err", err)
		}
	}
}

func (c *hubClient) send(payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(websocket.TextMessage, payload)
}

// CloseAll disconnects every client.
func (h *Hub) CloseAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, c := range h.clients {
		c.conn.Close()
		delete(h.clients, id)
	}
}
