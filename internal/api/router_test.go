package api

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/quillstone/realtime-bridge/internal/bus"
	"github.com/quillstone/realtime-bridge/internal/domain"
	"github.com/quillstone/realtime-bridge/internal/realtime"
	ws "github.com/quillstone/realtime-bridge/internal/websocket"
)

type fakePinger struct {
	err error
}

func (p *fakePinger) Ping(context.Context) error { return p.err }

type nopAuth struct{}

func (nopAuth) Authenticate(context.Context, string) (domain.Accountability, error) {
	return domain.Public(), nil
}

type nopMessages struct{}

func (nopMessages) HandleMessage(context.Context, realtime.Connection, []byte) {}

func (nopMessages) HandleDisconnect(realtime.Connection) {}

type routerFixture struct {
	registry *realtime.Registry
	source   *realtime.Source
	bus      *bus.Memory
	pinger   *fakePinger
	router   http.Handler
}

func newRouterFixture(t *testing.T) *routerFixture {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	f := &routerFixture{
		registry: realtime.NewRegistry(),
		bus:      bus.NewMemory(logger),
		pinger:   &fakePinger{},
	}
	t.Cleanup(func() { f.bus.Close() })

	f.source = realtime.NewSource(f.bus, "realtime.changes", 16, logger)
	f.source.RegisterCollection("articles")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		f.source.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	wsServer := ws.NewServer(nopAuth{}, nopMessages{}, logger)
	f.router = NewRouter(f.registry, f.source, wsServer, f.pinger, logger)
	return f
}

func (f *routerFixture) request(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func TestRouter_Health(t *testing.T) {
	f := newRouterFixture(t)

	rec := f.request(t, http.MethodGet, "/api/v1/health", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d, want %d", rec.Code, http.StatusOK)
	}

	var resp HealthResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Status != "healthy" || resp.Database != "ok" {
		t.Errorf("response: got %+v", resp)
	}
}

func TestRouter_HealthDegradedWhenDatabaseDown(t *testing.T) {
	f := newRouterFixture(t)
	f.pinger.err = context.DeadlineExceeded

	rec := f.request(t, http.MethodGet, "/api/v1/health", "")
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status: got %d, want %d", rec.Code, http.StatusServiceUnavailable)
	}

	var resp HealthResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Status != "degraded" || resp.Database != "unreachable" {
		t.Errorf("response: got %+v", resp)
	}
}

func TestRouter_MutationAcceptedAndPublished(t *testing.T) {
	f := newRouterFixture(t)

	events := make(chan domain.ChangeEvent, 1)
	err := f.bus.Subscribe(context.Background(), "realtime.changes", func(payload []byte) {
		var ev domain.ChangeEvent
		if err := json.Unmarshal(payload, &ev); err != nil {
			t.Errorf("bad bus payload: %v", err)
			return
		}
		events <- ev
	})
	if err != nil {
		t.Fatalf("failed to subscribe: %v", err)
	}

	rec := f.request(t, http.MethodPost, "/api/v1/mutations",
		`{"collection":"articles","action":"update","keys":[7,8],"payload":{"status":"published"}}`)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status: got %d, want %d (body %s)", rec.Code, http.StatusAccepted, rec.Body.String())
	}

	select {
	case ev := <-events:
		if ev.Action != domain.ActionUpdate || ev.Collection != "articles" {
			t.Errorf("event: got %+v", ev)
		}
		if len(ev.Keys) != 2 || ev.Keys[0] != "7" || ev.Keys[1] != "8" {
			t.Errorf("keys: got %v, want [7 8]", ev.Keys)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("mutation was not published to the bus")
	}
}

func TestRouter_MutationValidation(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		wantCode int
	}{
		{"invalid json", `{`, http.StatusBadRequest},
		{"missing collection", `{"action":"create","key":"1"}`, http.StatusBadRequest},
		{"bad action", `{"collection":"articles","action":"upsert","key":"1"}`, http.StatusBadRequest},
		{"missing keys", `{"collection":"articles","action":"create"}`, http.StatusBadRequest},
		{"untracked collection", `{"collection":"secrets","action":"create","key":"1"}`, http.StatusNotFound},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			f := newRouterFixture(t)
			rec := f.request(t, http.MethodPost, "/api/v1/mutations", tc.body)
			if rec.Code != tc.wantCode {
				t.Errorf("status: got %d, want %d (body %s)", rec.Code, tc.wantCode, rec.Body.String())
			}
		})
	}
}

func TestRouter_SubscriptionStats(t *testing.T) {
	f := newRouterFixture(t)
	conn := &statConn{id: "c1"}
	f.registry.Add(&realtime.Subscription{UID: "a", Connection: conn, Collection: "articles"})
	f.registry.Add(&realtime.Subscription{UID: "b", Connection: conn, Collection: "articles"})
	f.registry.Add(&realtime.Subscription{UID: "c", Connection: conn, Collection: "authors"})

	rec := f.request(t, http.MethodGet, "/api/v1/subscriptions", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d, want %d", rec.Code, http.StatusOK)
	}

	var stats subscriptionStats
	if err := json.Unmarshal(rec.Body.Bytes(), &stats); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if stats.TotalSubscriptions != 3 {
		t.Errorf("total: got %d, want 3", stats.TotalSubscriptions)
	}
	if stats.Collections["articles"] != 2 || stats.Collections["authors"] != 1 {
		t.Errorf("collections: got %v", stats.Collections)
	}
	if stats.ConnectedClients != 0 {
		t.Errorf("connected clients: got %d, want 0", stats.ConnectedClients)
	}
}

func TestRouter_Heartbeat(t *testing.T) {
	f := newRouterFixture(t)
	rec := f.request(t, http.MethodGet, "/ping", "")
	if rec.Code != http.StatusOK {
		t.Errorf("status: got %d, want %d", rec.Code, http.StatusOK)
	}
}

// stubData implements every collaborator interface the realtime layer
// consumes, the way the postgres store does in production wiring.
type stubData struct{}

func (stubData) ReadOne(_ context.Context, _, key string, _ domain.Query, _ domain.Accountability, _ *domain.Schema) (map[string]any, error) {
	return map[string]any{"id": key}, nil
}

func (stubData) ReadMany(context.Context, string, domain.Query, domain.Accountability, *domain.Schema) ([]map[string]any, error) {
	return []map[string]any{{"id": "1", "title": "hello"}}, nil
}

func (stubData) Meta(context.Context, string, domain.Query, domain.Accountability, *domain.Schema) (map[string]any, error) {
	return nil, nil
}

func (stubData) Refresh(_ context.Context, acc domain.Accountability) (domain.Accountability, error) {
	return acc, nil
}

func (stubData) Snapshot(context.Context) (*domain.Schema, error) {
	return &domain.Schema{Collections: map[string]domain.Collection{
		"articles": {Name: "articles", Primary: "id"},
	}}, nil
}

// TestRouter_MutationReachesWebSocketSubscriber drives the whole service
// surface: subscribe over a real websocket, ingest a mutation over HTTP and
// expect the push frame.
func TestRouter_MutationReachesWebSocketSubscriber(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	registry := realtime.NewRegistry()
	memBus := bus.NewMemory(logger)
	t.Cleanup(func() { memBus.Close() })

	data := stubData{}
	handler := realtime.NewHandler(registry, data, data, data, logger)
	dispatcher := realtime.NewDispatcher(registry, data, data, data, data, logger)
	listener := realtime.NewListener(memBus, "realtime.changes", dispatcher, logger)
	source := realtime.NewSource(memBus, "realtime.changes", 16, logger)
	source.RegisterCollection("articles")

	if err := listener.Start(context.Background()); err != nil {
		t.Fatalf("failed to start listener: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		source.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	wsServer := ws.NewServer(nopAuth{}, handler, logger)
	router := NewRouter(registry, source, wsServer, &fakePinger{}, logger)
	ts := httptest.NewServer(router)
	t.Cleanup(ts.Close)

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("failed to connect WebSocket: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	if err := conn.WriteJSON(map[string]any{"type": "subscribe", "collection": "articles", "uid": "e2e"}); err != nil {
		t.Fatalf("failed to subscribe: %v", err)
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var init realtime.SubscriptionMessage
	if err := conn.ReadJSON(&init); err != nil {
		t.Fatalf("failed to read init frame: %v", err)
	}
	if init.Event != domain.ActionInit {
		t.Fatalf("first frame event: got %q, want %q", init.Event, domain.ActionInit)
	}

	resp, err := http.Post(ts.URL+"/api/v1/mutations", "application/json",
		strings.NewReader(`{"collection":"articles","action":"create","key":"2"}`))
	if err != nil {
		t.Fatalf("failed to post mutation: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("mutation status: got %d, want %d", resp.StatusCode, http.StatusAccepted)
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var push realtime.SubscriptionMessage
	if err := conn.ReadJSON(&push); err != nil {
		t.Fatalf("failed to read push frame: %v", err)
	}
	if push.Event != domain.ActionCreate {
		t.Errorf("push event: got %q, want %q", push.Event, domain.ActionCreate)
	}
	if push.UID != "e2e" {
		t.Errorf("push uid: got %q, want %q", push.UID, "e2e")
	}
}

// statConn satisfies the registry's connection contract for stats tests.
type statConn struct {
	id string
}

func (c *statConn) ID() string { return c.id }

func (c *statConn) Send([]byte) error { return nil }

func (c *statConn) Accountability() domain.Accountability { return domain.Public() }

func (c *statConn) SetAccountability(domain.Accountability) {}
