package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	gorillawebsocket "github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

// ---------------------------------------------------------------------------
// Hub tests
// ---------------------------------------------------------------------------

func TestHub_RegisterUnregister(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	client := NewClient(hub, "user-1", nil)

	hub.Register(client)
	if hub.ClientCount() != 1 || hub.TopicCount("user-1") != 1 {
		t.Fatalf("expected 1 client on user-1, got %d/%d", hub.ClientCount(), hub.TopicCount("user-1"))
	}

	hub.Unregister(client)
	hub.Unregister(client) // second call is a no-op
	if hub.ClientCount() != 0 || hub.TopicCount("user-1") != 0 {
		t.Fatalf("expected no clients, got %d/%d", hub.ClientCount(), hub.TopicCount("user-1"))
	}
	if _, open := <-client.Send; open {
		t.Error("expected Send closed after unregister")
	}
}

func TestHub_BroadcastToTopic(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	mine := NewClient(hub, "user-1", nil)
	other := NewClient(hub, "user-2", nil)
	hub.Register(mine)
	hub.Register(other)

	hub.EndSession(context.Background(), "user-1")

	select {
	case msg := <-mine.Send:
		var ev Event
		if err := json.Unmarshal(msg, &ev); err != nil {
			t.Fatalf("failed to unmarshal event: %v", err)
		}
		if ev.Type != EventSessionEnded {
			t.Errorf("expected %s, got %s", EventSessionEnded, ev.Type)
		}
	case <-time.After(time.Second):
		t.Fatal("client did not receive event")
	}

	select {
	case <-other.Send:
		t.Fatal("other topic should not receive event")
	default:
	}
}

func TestClient_PushAfterUnregister(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	client := NewClient(hub, "user-1", nil)
	hub.Register(client)

	ev, err := NewEvent(EventReplaceURL, map[string]string{"query": "reportId=R"})
	if err != nil {
		t.Fatal(err)
	}
	if !client.Push(ev) {
		t.Fatal("expected push to succeed while registered")
	}
	hub.Unregister(client)
	if client.Push(ev) {
		t.Error("push after unregister must be refused")
	}
}

func TestClient_PushDropsWhenFull(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	client := NewClient(hub, "user-1", nil)
	hub.Register(client)
	defer hub.Unregister(client)

	ev, _ := NewEvent(EventView, nil)
	for i := 0; i < cap(client.Send); i++ {
		if !client.Push(ev) {
			t.Fatalf("push %d refused before buffer was full", i)
		}
	}
	if client.Push(ev) {
		t.Error("expected push to be dropped on a full buffer")
	}
}

// ---------------------------------------------------------------------------
// Pump tests
// ---------------------------------------------------------------------------

type fakeConn struct {
	mu        sync.Mutex
	inbound   chan []byte
	written   [][]byte
	types     []int
	closed    bool
	failWrite bool

	readLimit     int64
	readDeadline  time.Time
	writeDeadline time.Time
	pong          func(string) error
}

func newFakeConn(msgs ...string) *fakeConn {
	c := &fakeConn{inbound: make(chan []byte, len(msgs))}
	for _, m := range msgs {
		c.inbound <- []byte(m)
	}
	close(c.inbound)
	return c
}

func (c *fakeConn) ReadMessage() (int, []byte, error) {
	msg, ok := <-c.inbound
	if !ok {
		return 0, nil, errors.New("closed")
	}
	return gorillawebsocket.TextMessage, msg, nil
}

func (c *fakeConn) WriteMessage(messageType int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failWrite {
		return errors.New("broken pipe")
	}
	c.written = append(c.written, data)
	c.types = append(c.types, messageType)
	return nil
}

func (c *fakeConn) SetReadLimit(limit int64) {
	c.mu.Lock()
	c.readLimit = limit
	c.mu.Unlock()
}

func (c *fakeConn) SetReadDeadline(t time.Time) error {
	c.mu.Lock()
	c.readDeadline = t
	c.mu.Unlock()
	return nil
}

func (c *fakeConn) SetWriteDeadline(t time.Time) error {
	c.mu.Lock()
	c.writeDeadline = t
	c.mu.Unlock()
	return nil
}

func (c *fakeConn) SetPongHandler(h func(string) error) {
	c.mu.Lock()
	c.pong = h
	c.mu.Unlock()
}

func (c *fakeConn) countType(messageType int) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, typ := range c.types {
		if typ == messageType {
			n++
		}
	}
	return n
}

func (c *fakeConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	return nil
}

func TestReadPump_DispatchesAndUnregisters(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	conn := newFakeConn(
		`{"action":"toggle-system","key":"nervoso"}`,
		`not json`,
		`{"action":"toggle-organ","key":"cerebro"}`,
	)
	client := NewClient(hub, "user-1", conn)
	hub.Register(client)

	var got []ClientMessage
	readPump(client, func(m ClientMessage) { got = append(got, m) })

	if len(got) != 2 || got[0].Key != "nervoso" || got[1].Action != "toggle-organ" {
		t.Errorf("unexpected messages %+v", got)
	}
	if hub.ClientCount() != 0 {
		t.Error("expected client unregistered after read failure")
	}
	if !conn.closed {
		t.Error("expected connection closed")
	}
}

func TestWritePump_DrainsSend(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	conn := newFakeConn()
	client := NewClient(hub, "user-1", conn)
	hub.Register(client)

	ev, _ := NewEvent(EventView, map[string]int{"n": 1})
	client.Push(ev)
	hub.Unregister(client)
	writePump(client)

	if len(conn.written) != 2 {
		t.Fatalf("expected the event and a close frame, got %d writes", len(conn.written))
	}
	if conn.types[0] != gorillawebsocket.TextMessage || !strings.Contains(string(conn.written[0]), `"type":"view"`) {
		t.Errorf("unexpected payload %s", conn.written[0])
	}
	if conn.types[1] != gorillawebsocket.CloseMessage {
		t.Errorf("expected a close frame last, got type %d", conn.types[1])
	}
	if conn.writeDeadline.IsZero() {
		t.Error("expected a write deadline before writing")
	}
}

func TestReadPump_LimitsAndDeadline(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	conn := newFakeConn()
	client := NewClient(hub, "user-1", conn)
	client.pongWait = time.Minute
	hub.Register(client)

	start := time.Now()
	readPump(client, func(ClientMessage) {})

	if conn.readLimit != maxMessageSize {
		t.Errorf("expected read limit %d, got %d", maxMessageSize, conn.readLimit)
	}
	if conn.readDeadline.Before(start.Add(time.Minute)) {
		t.Errorf("expected a read deadline pongWait ahead, got %v", conn.readDeadline.Sub(start))
	}
	if conn.pong == nil {
		t.Fatal("expected a pong handler")
	}

	first := conn.readDeadline
	time.Sleep(10 * time.Millisecond)
	if err := conn.pong(""); err != nil {
		t.Fatalf("pong handler: %v", err)
	}
	if !conn.readDeadline.After(first) {
		t.Error("expected a pong to extend the read deadline")
	}
}

func TestWritePump_PingsIdlePeer(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	conn := newFakeConn()
	client := NewClient(hub, "user-1", conn)
	client.pingPeriod = 10 * time.Millisecond
	hub.Register(client)

	done := make(chan struct{})
	go func() {
		writePump(client)
		close(done)
	}()

	deadline := time.Now().Add(time.Second)
	for conn.countType(gorillawebsocket.PingMessage) < 2 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if n := conn.countType(gorillawebsocket.PingMessage); n < 2 {
		t.Fatalf("expected repeated pings on an idle connection, got %d", n)
	}

	hub.Unregister(client)
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("writePump did not stop after unregister")
	}
	if conn.countType(gorillawebsocket.CloseMessage) != 1 {
		t.Error("expected a close frame after unregister")
	}
}

func TestWritePump_StopsWhenPingFails(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	conn := newFakeConn()
	conn.failWrite = true
	client := NewClient(hub, "user-1", conn)
	client.pingPeriod = 10 * time.Millisecond
	hub.Register(client)
	defer hub.Unregister(client)

	done := make(chan struct{})
	go func() {
		writePump(client)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("writePump kept running after a failed ping")
	}
	if !conn.isClosed() {
		t.Error("expected connection closed after a failed ping")
	}
}

// ---------------------------------------------------------------------------
// Upgrader tests
// ---------------------------------------------------------------------------

func TestSameOrigin(t *testing.T) {
	tests := []struct {
		origin string
		want   bool
	}{
		{"", true},
		{"http://portal.example", true},
		{"https://evil.example", false},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodGet, "http://portal.example/findings/live", nil)
		if tt.origin != "" {
			req.Header.Set("Origin", tt.origin)
		}
		if got := sameOrigin(req); got != tt.want {
			t.Errorf("origin %q: expected %v, got %v", tt.origin, tt.want, got)
		}
	}
}

func TestUpgrader_Serve(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	up := NewUpgrader()
	received := make(chan ClientMessage, 1)

	e := echo.New()
	e.GET("/live", func(c echo.Context) error {
		return up.Serve(c, hub, "user-1", func(cl *Client) {
			ev, _ := NewEvent(EventView, map[string]string{"hello": "world"})
			cl.Push(ev)
		}, func(m ClientMessage) {
			received <- m
		})
	})
	srv := httptest.NewServer(e)
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/live"
	conn, _, err := gorillawebsocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}

	_, msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var ev Event
	if err := json.Unmarshal(msg, &ev); err != nil || ev.Type != EventView {
		t.Fatalf("unexpected first event %s (%v)", msg, err)
	}

	if err := conn.WriteJSON(ClientMessage{Action: "toggle-system", Key: "urinario"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	select {
	case m := <-received:
		if m.Key != "urinario" {
			t.Errorf("unexpected message %+v", m)
		}
	case <-time.After(time.Second):
		t.Fatal("server did not receive message")
	}

	conn.Close()
	waitForNoClients(t, hub, "expected client unregistered after disconnect")
}

func waitForNoClients(t *testing.T, hub *Hub, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for hub.ClientCount() != 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if hub.ClientCount() != 0 {
		t.Error(msg)
	}
}

func liveServer(t *testing.T, hub *Hub, up *Upgrader) string {
	t.Helper()
	e := echo.New()
	e.GET("/live", func(c echo.Context) error {
		return up.Serve(c, hub, "user-1", func(*Client) {}, func(ClientMessage) {})
	})
	srv := httptest.NewServer(e)
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/live"
}

func TestUpgrader_DropsSilentPeer(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	up := NewUpgrader()
	up.pongWait = 100 * time.Millisecond
	up.pingPeriod = 50 * time.Millisecond

	// The dialer never reads, so pings go unanswered.
	conn, _, err := gorillawebsocket.DefaultDialer.Dial(liveServer(t, hub, up), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(time.Second)
	for hub.ClientCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	waitForNoClients(t, hub, "expected a peer that never answers pings to be dropped")
}

func TestUpgrader_RejectsOversizedMessage(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	conn, _, err := gorillawebsocket.DefaultDialer.Dial(liveServer(t, hub, NewUpgrader()), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(time.Second)
	for hub.ClientCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	big := `{"action":"toggle-system","key":"` + strings.Repeat("x", maxMessageSize) + `"}`
	if err := conn.WriteMessage(gorillawebsocket.TextMessage, []byte(big)); err != nil {
		t.Fatalf("write: %v", err)
	}
	waitForNoClients(t, hub, "expected an oversized message to end the connection")
}
