// Package ws streams detected opportunities and consolidated market views
// to websocket clients.
package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/irfndi/celebrum-arbwatch/internal/models"
	"github.com/sirupsen/logrus"
)

const (
	// ChannelOpportunities carries every emitted arbitrage opportunity.
	ChannelOpportunities = "opportunities"
	// ChannelMarketView carries every recomputed consolidated view.
	ChannelMarketView = "market_view"

	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
	sendBufferSize = 256
)

// Envelope is the JSON frame sent to clients.
type Envelope struct {
	Type      string      `json:"type"`
	Payload   interface{} `json:"payload"`
	Timestamp time.Time   `json:"timestamp"`
}

type subscribeMsg struct {
	Action   string   `json:"action"`
	Channels []string `json:"channels"`
}

type broadcastMsg struct {
	channel string
	data    []byte
}

type client struct {
	id   string
	hub  *Hub
	conn *websocket.Conn
	send chan []byte

	mu   sync.RWMutex
	subs map[string]bool
}

// Hub fans events out to connected clients. It implements the monitor
// listener interfaces so it can be attached directly to both monitors.
type Hub struct {
	clients    map[string]*client
	broadcast  chan broadcastMsg
	register   chan *client
	unregister chan *client
	done       chan struct{}
	upgrader   websocket.Upgrader
	logger     *logrus.Logger

	mu sync.RWMutex
}

// NewHub creates a hub. An empty allowedOrigins admits every origin.
func NewHub(allowedOrigins []string, logger *logrus.Logger) *Hub {
	origins := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		origins[o] = true
	}

	return &Hub{
		clients:    make(map[string]*client),
		broadcast:  make(chan broadcastMsg, sendBufferSize),
		register:   make(chan *client),
		unregister: make(chan *client),
		done:       make(chan struct{}),
		logger:     logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				if len(origins) == 0 || origins["*"] {
					return true
				}
				return origins[r.Header.Get("Origin")]
			},
		},
	}
}

// Run processes registrations and broadcasts until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for id, c := range h.clients {
				close(c.send)
				delete(h.clients, id)
			}
			h.mu.Unlock()
			return

		case c := <-h.register:
			h.mu.Lock()
			h.clients[c.id] = c
			total := len(h.clients)
			h.mu.Unlock()
			h.logger.WithFields(logrus.Fields{"client_id": c.id, "total_clients": total}).Info("Websocket client connected")

		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[c.id]; ok {
				delete(h.clients, c.id)
				close(c.send)
			}
			total := len(h.clients)
			h.mu.Unlock()
			h.logger.WithFields(logrus.Fields{"client_id": c.id, "total_clients": total}).Info("Websocket client disconnected")

		case msg := <-h.broadcast:
			h.mu.RLock()
			for _, c := range h.clients {
				if !c.isSubscribed(msg.channel) {
					continue
				}
				select {
				case c.send <- msg.data:
				default:
					h.logger.WithField("client_id", c.id).Warn("Dropping message for slow websocket client")
				}
			}
			h.mu.RUnlock()
		}
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// OnOpportunity publishes an opportunity to subscribed clients.
func (h *Hub) OnOpportunity(_ context.Context, opportunity models.ArbitrageOpportunity) {
	h.publish(ChannelOpportunities, opportunity)
}

// OnMarketView publishes a consolidated view to subscribed clients.
func (h *Hub) OnMarketView(_ context.Context, view *models.ConsolidatedMarketView) {
	if view == nil {
		return
	}
	h.publish(ChannelMarketView, view)
}

// publish never blocks the monitor loop; a full queue drops the event.
func (h *Hub) publish(channel string, payload interface{}) {
	data, err := json.Marshal(Envelope{Type: channel, Payload: payload, Timestamp: time.Now().UTC()})
	if err != nil {
		h.logger.WithError(err).WithField("channel", channel).Error("Failed to encode websocket event")
		return
	}

	select {
	case h.broadcast <- broadcastMsg{channel: channel, data: data}:
	default:
		h.logger.WithField("channel", channel).Warn("Websocket broadcast queue full, dropping event")
	}
}

// HandleWS upgrades the request and registers the client.
// GET /ws
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.WithError(err).Warn("Websocket upgrade failed")
		return
	}

	c := &client{
		id:   uuid.NewString(),
		hub:  h,
		conn: conn,
		send: make(chan []byte, sendBufferSize),
		subs: map[string]bool{
			ChannelOpportunities: true,
			ChannelMarketView:    true,
		},
	}

	select {
	case h.register <- c:
	case <-h.done:
		_ = conn.Close()
		return
	}
	c.sendWelcome()

	go c.writePump()
	go c.readPump()
}

func (c *client) sendWelcome() {
	data, err := json.Marshal(Envelope{
		Type: "connected",
		Payload: map[string]interface{}{
			"client_id": c.id,
			"channels":  []string{ChannelOpportunities, ChannelMarketView},
		},
		Timestamp: time.Now().UTC(),
	})
	if err != nil {
		return
	}
	select {
	case c.send <- data:
	default:
	}
}

func (c *client) isSubscribed(channel string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.subs[channel]
}

func (c *client) handleSubscription(msg subscribeMsg) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch msg.Action {
	case "subscribe":
		for _, ch := range msg.Channels {
			c.subs[ch] = true
		}
	case "unsubscribe":
		for _, ch := range msg.Channels {
			delete(c.subs, ch)
		}
	}
}

func (c *client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.WithError(err).WithField("client_id", c.id).Warn("Unexpected websocket close")
			}
			return
		}

		var sub subscribeMsg
		if err := json.Unmarshal(message, &sub); err == nil && sub.Action != "" {
			c.handleSubscription(sub)
		}
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
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
