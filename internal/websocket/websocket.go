package websocket

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	ws "github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"possale/internal/models"
)

const (
	writeWait  = 5 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second
)

// client wraps a WebSocket connection with a mutex for thread-safe writes.
type client struct {
	conn     *ws.Conn
	mu       sync.Mutex
	username string
}

// Hub maintains connected WebSocket clients and broadcasts stream messages.
type Hub struct {
	mu      sync.RWMutex
	clients map[*client]struct{}
	log     *logrus.Logger
}

// NewHub creates a new Hub.
func NewHub(log *logrus.Logger) *Hub {
	return &Hub{clients: make(map[*client]struct{}), log: log}
}

func (h *Hub) register(c *client) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c] = struct{}{}
	return len(h.clients)
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	_, ok := h.clients[c]
	delete(h.clients, c)
	h.mu.Unlock()
	if ok && c.conn != nil {
		_ = c.conn.Close()
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Broadcast sends one stream message to all connected clients. A client
// whose write fails is dropped; it will reconcile through a full fetch when
// it reconnects.
func (h *Hub) Broadcast(msgType string, data interface{}) {
	payload, err := json.Marshal(data)
	if err != nil {
		h.log.WithError(err).Error("ws: marshal payload")
		return
	}
	frame, err := json.Marshal(models.StreamMessage{Type: msgType, Data: payload})
	if err != nil {
		h.log.WithError(err).Error("ws: marshal frame")
		return
	}
	h.mu.RLock()
	clients := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	for _, c := range clients {
		if err := c.write(frame); err != nil {
			h.log.WithFields(logrus.Fields{"user": c.username, "error": err}).Warn("ws: dropping client")
			h.unregister(c)
		}
	}
}

func (c *client) write(frame []byte) (err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("ws: write panic: %v", r)
		}
	}()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(ws.TextMessage, frame)
}

// PublishNotification pushes a new notification.
func (h *Hub) PublishNotification(n models.Notification) {
	h.Broadcast(models.StreamNotification, n)
}

// PublishUpdate pushes a read/delete transition.
func (h *Hub) PublishUpdate(u models.NotificationUpdate) {
	h.Broadcast(models.StreamNotificationUpdate, u)
}

// Upgrader is the default WebSocket upgrader.
var Upgrader = ws.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Serve upgrades the connection for username and keeps it alive with pings
// until the client goes away. Callers authenticate before calling.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, username string) {
	conn, err := Upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.WithError(err).Warn("ws: upgrade error")
		return
	}

	c := &client{conn: conn, username: username}
	n := h.register(c)
	h.log.WithFields(logrus.Fields{"user": username, "clients": n}).Info("ws: client connected")

	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	done := make(chan struct{})
	defer close(done)
	go func() {
		ticker := time.NewTicker(pingPeriod)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				c.mu.Lock()
				err := conn.WriteControl(ws.PingMessage, nil, time.Now().Add(writeWait))
				c.mu.Unlock()
				if err != nil {
					return
				}
			}
		}
	}()

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
	h.unregister(c)
	h.log.WithField("user", username).Info("ws: client disconnected")
}

// CloseAll disconnects every client. Used on shutdown.
func (h *Hub) CloseAll() {
	h.mu.RLock()
	clients := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()
	for _, c := range clients {
		c.mu.Lock()
		_ = c.conn.WriteControl(ws.CloseMessage, ws.FormatCloseMessage(ws.CloseGoingAway, "server shutdown"), time.Now().Add(writeWait))
		c.mu.Unlock()
		h.unregister(c)
	}
}
