package connectors

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	logger "github.com/sirupsen/logrus"
)

const (
	hubWriteWait  = 10 * time.Second
	hubPongWait   = 60 * time.Second
	hubPingPeriod = (hubPongWait * 9) / 10
	hubSendBuffer = 16
)

type hubClient struct {
	id   string
	conn *websocket.Conn
	send chan []byte
}

// AlertHub keeps the open /ws/alerts connections and broadcasts alerts to them.
// A client whose buffer is full is dropped instead of blocking the broadcast.
type AlertHub struct {
	upgrader websocket.Upgrader

	mu      sync.RWMutex
	clients map[string]*hubClient
}

func NewAlertHub() *AlertHub {
	return &AlertHub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		clients: map[string]*hubClient{},
	}
}

// ServeHTTP upgrades the request and registers the connection.
func (h *AlertHub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.WithError(err).Warn("Alert hub upgrade failed")
		return
	}

	c := &hubClient{id: uuid.NewString(), conn: conn, send: make(chan []byte, hubSendBuffer)}
	h.mu.Lock()
	h.clients[c.id] = c
	h.mu.Unlock()

	logger.WithField("client", c.id).Info("Alert subscriber connected")

	go h.writeLoop(c)
	go h.readLoop(c)
}

func (h *AlertHub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *AlertHub) BroadcastPriorityAlert(_ context.Context, alert PriorityAlert) error {
	msg, err := json.Marshal(alert)
	if err != nil {
		return err
	}

	h.mu.RLock()
	var slow []*hubClient
	for _, c := range h.clients {
		select {
		case c.send <- msg:
		default:
			slow = append(slow, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range slow {
		logger.WithField("client", c.id).Warn("Alert subscriber too slow, disconnecting")
		h.remove(c)
	}
	return nil
}

// Close disconnects every subscriber.
func (h *AlertHub) Close() {
	h.mu.RLock()
	all := make([]*hubClient, 0, len(h.clients))
	for _, c := range h.clients {
		all = append(all, c)
	}
	h.mu.RUnlock()

	for _, c := range all {
		h.remove(c)
	}
}

func (h *AlertHub) remove(c *hubClient) {
	h.mu.Lock()
	if _, ok := h.clients[c.id]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.clients, c.id)
	close(c.send)
	h.mu.Unlock()
}

// readLoop only handles pongs and detects closed connections; subscribers never send data.
func (h *AlertHub) readLoop(c *hubClient) {
	defer func() {
		h.remove(c)
		_ = c.conn.Close()
	}()

	_ = c.conn.SetReadDeadline(time.Now().Add(hubPongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(hubPongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *AlertHub) writeLoop(c *hubClient) {
	ticker := time.NewTicker(hubPingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(hubWriteWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(hubWriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
