package websocket

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/quillstone/realtime-bridge/internal/domain"
	"github.com/quillstone/realtime-bridge/internal/realtime"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// stubAuth resolves one known token.
type stubAuth struct {
	token string
	acc   domain.Accountability
}

func (a *stubAuth) Authenticate(_ context.Context, token string) (domain.Accountability, error) {
	if token == a.token {
		return a.acc, nil
	}
	return domain.Accountability{}, domain.ErrExpired
}

// echoHandler echoes every inbound frame back on the connection and records
// lifecycle events.
type echoHandler struct {
	mu           sync.Mutex
	conns        []realtime.Connection
	disconnected chan string
}

func newEchoHandler() *echoHandler {
	return &echoHandler{disconnected: make(chan string, 8)}
}

func (h *echoHandler) HandleMessage(_ context.Context, conn realtime.Connection, data []byte) {
	h.mu.Lock()
	h.conns = append(h.conns, conn)
	h.mu.Unlock()
	conn.Send(data)
}

func (h *echoHandler) HandleDisconnect(conn realtime.Connection) {
	h.disconnected <- conn.ID()
}

func (h *echoHandler) lastConn(t *testing.T) realtime.Connection {
	t.Helper()
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.conns) == 0 {
		t.Fatal("no message handled yet")
	}
	return h.conns[len(h.conns)-1]
}

func setupServer(t *testing.T) (*Server, *echoHandler, *httptest.Server) {
	t.Helper()
	handler := newEchoHandler()
	auth := &stubAuth{
		token: "valid-token",
		acc:   domain.Accountability{User: "u1", Role: "editor"},
	}
	srv := NewServer(auth, handler, testLogger())

	ts := httptest.NewServer(http.HandlerFunc(srv.HandleUpgrade))
	t.Cleanup(ts.Close)
	return srv, handler, ts
}

func dialWS(t *testing.T, ts *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + query
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("failed to connect WebSocket: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestServer_EchoRoundTrip(t *testing.T) {
	srv, _, ts := setupServer(t)
	conn := dialWS(t, ts, "")

	// Give the server time to register the client
	time.Sleep(50 * time.Millisecond)
	if count := srv.ClientCount(); count != 1 {
		t.Errorf("expected 1 client, got %d", count)
	}

	if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"subscribe"}`)); err != nil {
		t.Fatalf("failed to write: %v", err)
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("failed to read echo: %v", err)
	}
	if string(data) != `{"type":"subscribe"}` {
		t.Errorf("echo mismatch: got %s", data)
	}
}

func TestServer_NoTokenConnectsAsPublic(t *testing.T) {
	_, handler, ts := setupServer(t)
	conn := dialWS(t, ts, "")

	if err := conn.WriteMessage(websocket.TextMessage, []byte(`ping`)); err != nil {
		t.Fatalf("failed to write: %v", err)
	}
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := conn.ReadMessage(); err != nil {
		t.Fatalf("failed to read echo: %v", err)
	}

	acc := handler.lastConn(t).Accountability()
	if acc.Role != domain.PublicRole {
		t.Errorf("role: got %q, want %q", acc.Role, domain.PublicRole)
	}
	if !acc.Anonymous() {
		t.Error("tokenless connection should be anonymous")
	}
}

func TestServer_TokenResolvesAccountability(t *testing.T) {
	_, handler, ts := setupServer(t)
	conn := dialWS(t, ts, "?access_token=valid-token")

	if err := conn.WriteMessage(websocket.TextMessage, []byte(`ping`)); err != nil {
		t.Fatalf("failed to write: %v", err)
	}
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := conn.ReadMessage(); err != nil {
		t.Fatalf("failed to read echo: %v", err)
	}

	acc := handler.lastConn(t).Accountability()
	if acc.User != "u1" || acc.Role != "editor" {
		t.Errorf("accountability: got %+v, want user u1 role editor", acc)
	}
}

func TestServer_BearerHeaderResolvesAccountability(t *testing.T) {
	_, handler, ts := setupServer(t)

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http")
	header := http.Header{"Authorization": []string{"Bearer valid-token"}}
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, header)
	if err != nil {
		t.Fatalf("failed to connect WebSocket: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	if err := conn.WriteMessage(websocket.TextMessage, []byte(`ping`)); err != nil {
		t.Fatalf("failed to write: %v", err)
	}
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := conn.ReadMessage(); err != nil {
		t.Fatalf("failed to read echo: %v", err)
	}

	acc := handler.lastConn(t).Accountability()
	if acc.User != "u1" || acc.Role != "editor" {
		t.Errorf("accountability: got %+v, want user u1 role editor", acc)
	}
}

func TestServer_InvalidTokenRejectedBeforeUpgrade(t *testing.T) {
	_, _, ts := setupServer(t)

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "?access_token=wrong"
	_, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if !errors.Is(err, websocket.ErrBadHandshake) {
		t.Fatalf("expected bad handshake, got %v", err)
	}
	if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("expected 401 response, got %+v", resp)
	}
}

func TestServer_DisconnectTearsDownClient(t *testing.T) {
	srv, handler, ts := setupServer(t)
	conn := dialWS(t, ts, "")

	time.Sleep(50 * time.Millisecond)
	conn.Close()

	select {
	case <-handler.disconnected:
	case <-time.After(2 * time.Second):
		t.Fatal("handler was not notified of the disconnect")
	}

	time.Sleep(50 * time.Millisecond)
	if count := srv.ClientCount(); count != 0 {
		t.Errorf("expected 0 clients after disconnect, got %d", count)
	}
}

func TestServer_CloseAllDisconnectsClients(t *testing.T) {
	srv, handler, ts := setupServer(t)
	dialWS(t, ts, "")
	dialWS(t, ts, "")

	time.Sleep(50 * time.Millisecond)
	if count := srv.ClientCount(); count != 2 {
		t.Fatalf("expected 2 clients, got %d", count)
	}

	srv.CloseAll()

	for i := 0; i < 2; i++ {
		select {
		case <-handler.disconnected:
		case <-time.After(2 * time.Second):
			t.Fatal("client was not torn down by CloseAll")
		}
	}
	if count := srv.ClientCount(); count != 0 {
		t.Errorf("expected 0 clients after CloseAll, got %d", count)
	}
}

func TestServer_BinaryFramesIgnored(t *testing.T) {
	_, _, ts := setupServer(t)
	conn := dialWS(t, ts, "")

	if err := conn.WriteMessage(websocket.BinaryMessage, []byte{0x01, 0x02}); err != nil {
		t.Fatalf("failed to write binary: %v", err)
	}
	if err := conn.WriteMessage(websocket.TextMessage, []byte(`text`)); err != nil {
		t.Fatalf("failed to write text: %v", err)
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("failed to read: %v", err)
	}
	if string(data) != "text" {
		t.Errorf("first echo: got %q, want %q (binary frame should be skipped)", data, "text")
	}
}

func TestClient_SendAfterCloseFails(t *testing.T) {
	c := newClient(nil, domain.Public())
	c.markClosed()

	if err := c.Send([]byte("x")); !errors.Is(err, ErrClientGone) {
		t.Errorf("Send after close: got %v, want ErrClientGone", err)
	}
}

func TestClient_SendFailsWhenBufferFull(t *testing.T) {
	c := newClient(nil, domain.Public())
	for i := 0; i < sendBufferSize; i++ {
		if err := c.Send([]byte("x")); err != nil {
			t.Fatalf("fill send %d failed: %v", i, err)
		}
	}

	if err := c.Send([]byte("overflow")); !errors.Is(err, ErrSendBufferFull) {
		t.Errorf("overflow Send: got %v, want ErrSendBufferFull", err)
	}
}

func TestClient_AccountabilitySwap(t *testing.T) {
	c := newClient(nil, domain.Public())

	c.SetAccountability(domain.Accountability{User: "u2", Role: "viewer"})
	if got := c.Accountability().User; got != "u2" {
		t.Errorf("user: got %q, want %q", got, "u2")
	}
}

func TestServer_ClientIDsAreUnique(t *testing.T) {
	a := newClient(nil, domain.Public())
	b := newClient(nil, domain.Public())
	if a.ID() == b.ID() {
		t.Error("two clients share an ID")
	}
	if a.ID() == "" {
		t.Error("client ID is empty")
	}
}
