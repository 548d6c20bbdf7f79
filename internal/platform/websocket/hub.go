// Package websocket carries live page sessions over WebSockets. Each
// connection belongs to one topic, the browser session it was opened from,
// so that a logout reaches every open page of that session and no other.
package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
	gorillawebsocket "github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

// Event types pushed to clients.
const (
	EventView         = "view"
	EventReplaceURL   = "replace-url"
	EventSessionEnded = "session-ended"
)

// Keepalive defaults. A peer that answers no ping within pongWait is
// dropped.
const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
)

// Event is a message sent to a client.
type Event struct {
	Type      string          `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// NewEvent marshals data into an Event of the given type.
func NewEvent(typ string, data any) (Event, error) {
	ev := Event{Type: typ, Timestamp: time.Now().UTC()}
	if data == nil {
		return ev, nil
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return Event{}, err
	}
	ev.Data = raw
	return ev, nil
}

// ClientMessage is an inbound message from a client.
type ClientMessage struct {
	Action string `json:"action"`
	Key    string `json:"key"`
}

// Conn abstracts a WebSocket connection for testability.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	SetReadLimit(limit int64)
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	SetPongHandler(h func(appData string) error)
	Close() error
}

// Client is a single WebSocket connection.
type Client struct {
	ID    string
	Topic string
	Send  chan []byte
	hub   *Hub
	conn  Conn

	pongWait   time.Duration
	pingPeriod time.Duration
}

// NewClient creates a client for topic. It is not registered.
func NewClient(hub *Hub, topic string, conn Conn) *Client {
	return &Client{
		ID:    uuid.New().String(),
		Topic: topic,
		Send:  make(chan []byte, 64),
		hub:   hub,
		conn:  conn,

		pongWait:   pongWait,
		pingPeriod: pingPeriod,
	}
}

// Push queues ev for delivery. It reports false when the client is gone or
// its buffer is full; events are never queued after Unregister.
func (c *Client) Push(ev Event) bool {
	data, err := json.Marshal(ev)
	if err != nil {
		return false
	}
	c.hub.mu.RLock()
	defer c.hub.mu.RUnlock()
	if _, ok := c.hub.all[c]; !ok {
		return false
	}
	select {
	case c.Send <- data:
		return true
	default:
		return false
	}
}

// Hub tracks connected clients by topic. All operations are safe for
// concurrent use.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]map[*Client]struct{} // topic -> set of clients
	all     map[*Client]struct{}
	logger  zerolog.Logger
}

// NewHub creates a new Hub ready to manage WebSocket clients.
func NewHub(logger zerolog.Logger) *Hub {
	return &Hub{
		clients: make(map[string]map[*Client]struct{}),
		all:     make(map[*Client]struct{}),
		logger:  logger,
	}
}

// Register adds a client to the hub under its topic.
func (h *Hub) Register(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.all[client] = struct{}{}
	if h.clients[client.Topic] == nil {
		h.clients[client.Topic] = make(map[*Client]struct{})
	}
	h.clients[client.Topic][client] = struct{}{}
}

// Unregister removes a client from the hub and closes its Send channel.
func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.all[client]; !ok {
		return
	}
	if subscribers, ok := h.clients[client.Topic]; ok {
		delete(subscribers, client)
		if len(subscribers) == 0 {
			delete(h.clients, client.Topic)
		}
	}
	delete(h.all, client)
	close(client.Send)
}

// Broadcast sends an event to all clients of the given topic.
func (h *Hub) Broadcast(topic string, event Event) {
	data, err := json.Marshal(event)
	if err != nil {
		h.logger.Error().Err(err).Msg("websocket: failed to marshal event")
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for client := range h.clients[topic] {
		select {
		case client.Send <- data:
		default:
			// Client buffer full; skip to avoid blocking.
		}
	}
}

// EndSession tells every open page of topic that its session is over.
func (h *Hub) EndSession(_ context.Context, topic string) {
	ev, _ := NewEvent(EventSessionEnded, nil)
	h.Broadcast(topic, ev)
}

// ClientCount returns the total number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.all)
}

// TopicCount returns the number of clients of a specific topic.
func (h *Hub) TopicCount(topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[topic])
}

// Upgrader upgrades HTTP requests to WebSocket connections. Only same-origin
// browsers are accepted.
type Upgrader struct {
	upgrader   gorillawebsocket.Upgrader
	pongWait   time.Duration
	pingPeriod time.Duration
}

func NewUpgrader() *Upgrader {
	return &Upgrader{upgrader: gorillawebsocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     sameOrigin,
	}, pongWait: pongWait, pingPeriod: pingPeriod}
}

func sameOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	return u.Host == r.Host
}

// Serve upgrades the request, registers a client under topic and starts its
// write pump. It then reads messages on the calling goroutine, passing each
// one to onMessage, until the peer goes away. start is called once the
// client is registered and before the first read.
func (u *Upgrader) Serve(c echo.Context, hub *Hub, topic string, start func(*Client), onMessage func(ClientMessage)) error {
	ws, err := u.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}
	client := NewClient(hub, topic, ws)
	client.pongWait, client.pingPeriod = u.pongWait, u.pingPeriod
	hub.Register(client)

	done := make(chan struct{})
	go func() {
		defer close(done)
		writePump(client)
	}()

	if start != nil {
		start(client)
	}
	readPump(client, onMessage)
	<-done
	return nil
}

// readPump reads messages from the connection until it fails, then
// unregisters the client. Oversized frames and a missing pong end the read.
func readPump(client *Client, onMessage func(ClientMessage)) {
	defer func() {
		client.hub.Unregister(client)
		client.conn.Close()
	}()

	client.conn.SetReadLimit(maxMessageSize)
	_ = client.conn.SetReadDeadline(time.Now().Add(client.pongWait))
	client.conn.SetPongHandler(func(string) error {
		return client.conn.SetReadDeadline(time.Now().Add(client.pongWait))
	})

	for {
		_, message, err := client.conn.ReadMessage()
		if err != nil {
			return
		}

		var msg ClientMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			continue // Ignore malformed messages.
		}
		if onMessage != nil {
			onMessage(msg)
		}
	}
}

// writePump writes messages from the Send channel to the connection and
// pings the peer every pingPeriod. It sends a close frame once the client is
// unregistered.
func writePump(client *Client) {
	ticker := time.NewTicker(client.pingPeriod)
	defer func() {
		ticker.Stop()
		client.conn.Close()
	}()

	for {
		select {
		case message, ok := <-client.Send:
			_ = client.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = client.conn.WriteMessage(gorillawebsocket.CloseMessage, []byte{})
				return
			}
			if err := client.conn.WriteMessage(gorillawebsocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			_ = client.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := client.conn.WriteMessage(gorillawebsocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
