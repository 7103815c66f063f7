// Package ws exposes the event bus to browser dashboards over a websocket.
//
// Server frames mirror bus events: {"event": ..., "data": ..., "timestamp": ...}.
// Clients may send {"type": "subscribe:metrics", "serviceId": ...} to join a
// single service's metrics room. Slow clients are disconnected, never
// blocked on.
package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/mcpmon/mcpmon/internal/eventbus"
	"github.com/mcpmon/mcpmon/internal/logger"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4 << 10
	sendBuffer     = 32
)

// clientMessage is the only inbound frame the server understands.
type clientMessage struct {
	Type      string `json:"type"`
	ServiceID string `json:"serviceId"`
}

type client struct {
	conn *websocket.Conn
	send chan []byte
	done chan struct{}

	mu    sync.Mutex
	rooms map[string]*eventbus.Subscription // service id -> room subscription

	closeOnce sync.Once
}

// Hub owns the websocket clients and forwards bus events to them.
type Hub struct {
	bus      *eventbus.Bus
	logger   logger.Logger
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*client]struct{}

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewHub creates a hub bound to bus.
func NewHub(bus *eventbus.Bus, log logger.Logger) *Hub {
	return &Hub{
		bus:    bus,
		logger: log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// The dashboard is served from anywhere during development.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		clients: make(map[*client]struct{}),
		stopCh:  make(chan struct{}),
	}
}

// Run subscribes to the global topics and fans their events out to every
// connected client until ctx is done or Stop is called.
func (h *Hub) Run(ctx context.Context) {
	lifecycle := h.bus.SubscribeBuffered(eventbus.TopicLifecycle, 256)
	metrics := h.bus.SubscribeBuffered(eventbus.TopicMetrics, 64)
	defer lifecycle.Close()
	defer metrics.Close()

	for {
		select {
		case evt := <-lifecycle.C():
			h.broadcast(evt)
		case evt := <-metrics.C():
			h.broadcast(evt)
		case <-h.stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}

// Stop terminates Run and closes every client connection.
func (h *Hub) Stop() {
	close(h.stopCh)

	h.mu.Lock()
	clients := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	for _, c := range clients {
		h.removeClient(c)
	}
	h.wg.Wait()
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()

	return len(h.clients)
}

// ServeHTTP upgrades the request and hands the connection to the hub.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", logger.Error(err))
		return
	}

	c := &client{
		conn:  conn,
		send:  make(chan []byte, sendBuffer),
		done:  make(chan struct{}),
		rooms: make(map[string]*eventbus.Subscription),
	}

	h.mu.Lock()
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()

	h.logger.Info("websocket client connected",
		logger.String("remote_addr", r.RemoteAddr),
		logger.Int("clients", n))

	h.wg.Add(2)
	go h.writePump(c)
	go h.readPump(c)
}

// broadcast marshals evt once and queues it on every client. Clients whose
// send buffer is full are dropped; they can reconnect and resync.
func (h *Hub) broadcast(evt eventbus.Event) {
	data, err := json.Marshal(evt)
	if err != nil {
		h.logger.Warn("failed to marshal event", logger.Error(err))
		return
	}

	h.mu.Lock()
	var stale []*client
	for c := range h.clients {
		select {
		case c.send <- data:
		default:
			stale = append(stale, c)
		}
	}
	h.mu.Unlock()

	for _, c := range stale {
		h.logger.Warn("dropping slow websocket client")
		h.removeClient(c)
	}
}

// joinRoom subscribes the client to one service's metrics topic. Joining
// the same room twice is idempotent.
func (h *Hub) joinRoom(c *client, serviceID string) {
	c.mu.Lock()
	if _, ok := c.rooms[serviceID]; ok {
		c.mu.Unlock()
		return
	}
	sub := h.bus.Subscribe(eventbus.ServiceTopic(serviceID))
	c.rooms[serviceID] = sub
	c.mu.Unlock()

	h.logger.Debug("websocket client joined room",
		logger.String("service_id", serviceID))

	// Forward room events onto the client's send queue. The goroutine ends
	// when the subscription channel is closed by removeClient.
	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		for evt := range sub.C() {
			data, err := json.Marshal(evt)
			if err != nil {
				continue
			}
			select {
			case c.send <- data:
			case <-c.done:
				return
			default:
				// Slow client; skip the frame rather than block the room.
			}
		}
	}()
}

func (h *Hub) removeClient(c *client) {
	c.closeOnce.Do(func() {
		h.mu.Lock()
		delete(h.clients, c)
		n := len(h.clients)
		h.mu.Unlock()

		c.mu.Lock()
		for id, sub := range c.rooms {
			sub.Close()
			delete(c.rooms, id)
		}
		c.mu.Unlock()

		// send is never closed; done unblocks the pumps instead, so a
		// racing room forwarder can never hit a closed channel.
		close(c.done)
		_ = c.conn.Close()

		h.logger.Info("websocket client disconnected", logger.Int("clients", n))
	})
}

// readPump consumes inbound frames (room subscriptions) until the
// connection dies.
func (h *Hub) readPump(c *client) {
	defer h.wg.Done()
	defer h.removeClient(c)

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}

		var msg clientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			// Not a control frame we understand; ignore.
			continue
		}
		if msg.Type == "subscribe:metrics" && msg.ServiceID != "" {
			h.joinRoom(c, msg.ServiceID)
		}
	}
}

// writePump drains the send queue and keeps the connection alive with pings.
func (h *Hub) writePump(c *client) {
	defer h.wg.Done()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	defer h.removeClient(c)

	for {
		select {
		case data := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		}
	}
}
