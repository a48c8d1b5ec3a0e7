// Package feed streams market snapshots to websocket clients.
package feed

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"perps-trading-core/marketdata"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 54 * time.Second // must be less than pongWait
	maxMessageSize = 4 * 1024
	sendBuffer     = 16
)

// Message is the envelope written to every client.
type Message struct {
	Type      string      `json:"type"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp int64       `json:"timestamp"`
	Sequence  uint64      `json:"sequence,omitempty"`
}

type client struct {
	id   string
	conn *websocket.Conn
	hub  *Hub
	send chan []byte
}

// Hub fans snapshot updates out to connected clients. All client bookkeeping
// happens on the Run goroutine; new clients receive the latest update on connect.
type Hub struct {
	logger   *zap.Logger
	upgrader websocket.Upgrader

	clients    map[*client]struct{}
	register   chan *client
	unregister chan *client
	broadcast  chan []byte
	done       chan struct{}

	latestMu sync.RWMutex
	latest   []byte

	sequence    atomic.Uint64
	messagesOut atomic.Uint64
	clientCount atomic.Int32
}

func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		logger: logger.With(zap.String("component", "feed")),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		clients: make(map[*client]struct{}),
		// Unbuffered: a registration completes only while Run is receiving.
		register:   make(chan *client),
		unregister: make(chan *client, 64),
		broadcast:  make(chan []byte, 16),
		done:       make(chan struct{}),
	}
}

// Run owns the client set until ctx is cancelled, then closes every client.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			for c := range h.clients {
				h.drop(c)
			}
			return

		case c := <-h.register:
			h.clients[c] = struct{}{}
			h.clientCount.Add(1)
			if latest := h.latestMessage(); latest != nil {
				c.send <- latest
			}
			h.logger.Debug("client connected", zap.String("id", c.id), zap.Int32("total", h.clientCount.Load()))

		case c := <-h.unregister:
			if _, ok := h.clients[c]; ok {
				h.drop(c)
			}
			h.logger.Debug("client disconnected", zap.String("id", c.id), zap.Int32("total", h.clientCount.Load()))

		case msg := <-h.broadcast:
			for c := range h.clients {
				select {
				case c.send <- msg:
					h.messagesOut.Add(1)
				default:
					h.logger.Warn("dropping slow client", zap.String("id", c.id))
					h.drop(c)
				}
			}
		}
	}
}

// Publish broadcasts a snapshot set and remembers it for clients that join later.
func (h *Hub) Publish(snaps []marketdata.MarketSnapshot) {
	data, err := json.Marshal(Message{
		Type:      "snapshots",
		Data:      snaps,
		Timestamp: time.Now().Unix(),
		Sequence:  h.sequence.Add(1),
	})
	if err != nil {
		h.logger.Error("failed to marshal snapshots", zap.Error(err))
		return
	}

	h.latestMu.Lock()
	h.latest = data
	h.latestMu.Unlock()

	select {
	case h.broadcast <- data:
	default:
		h.logger.Warn("feed broadcast queue full, update dropped")
	}
}

func (h *Hub) Clients() int { return int(h.clientCount.Load()) }

func (h *Hub) MessagesOut() uint64 { return h.messagesOut.Load() }

// ServeHTTP upgrades the request and attaches the connection to the hub.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	select {
	case <-h.done:
		http.Error(w, "feed is shutting down", http.StatusServiceUnavailable)
		return
	default:
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	c := &client{
		id:   uuid.NewString(),
		conn: conn,
		hub:  h,
		send: make(chan []byte, sendBuffer),
	}
	select {
	case h.register <- c:
	case <-h.done:
		conn.Close()
		return
	}

	go c.writePump()
	go c.readPump()
}

func (h *Hub) latestMessage() []byte {
	h.latestMu.RLock()
	defer h.latestMu.RUnlock()
	return h.latest
}

func (h *Hub) drop(c *client) {
	delete(h.clients, c)
	close(c.send)
	h.clientCount.Add(-1)
}

// readPump only services control frames; clients do not send commands.
func (c *client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.logger.Debug("websocket read error", zap.String("id", c.id), zap.Error(err))
			}
			return
		}
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
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
