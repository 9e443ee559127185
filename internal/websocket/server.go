// Package websocket carries the client protocol over WebSocket connections.
// The server upgrades HTTP requests, resolves each connection's permission
// context from its access token and runs one read and one write pump per
// connection.
package websocket

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/quillstone/realtime-bridge/internal/domain"
	"github.com/quillstone/realtime-bridge/internal/realtime"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 30 * time.Second
	maxMessageSize = 8192
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for development
	},
}

// Authenticator resolves an access token presented at upgrade time into a
// permission context.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (domain.Accountability, error)
}

// MessageHandler consumes inbound frames and connection lifecycle events.
type MessageHandler interface {
	HandleMessage(ctx context.Context, conn realtime.Connection, data []byte)
	HandleDisconnect(conn realtime.Connection)
}

// Server owns every live websocket client.
type Server struct {
	auth    Authenticator
	handler MessageHandler
	logger  *slog.Logger

	mu      sync.RWMutex
	clients map[string]*Client
}

func NewServer(auth Authenticator, handler MessageHandler, logger *slog.Logger) *Server {
	return &Server{
		auth:    auth,
		handler: handler,
		logger:  logger,
		clients: make(map[string]*Client),
	}
}

// HandleUpgrade authenticates and upgrades an HTTP request, then starts the
// connection's pumps. A missing token connects as the public role; an invalid
// one is rejected before the upgrade.
func (s *Server) HandleUpgrade(w http.ResponseWriter, r *http.Request) {
	acc := domain.Public()
	if token := requestToken(r); token != "" {
		resolved, err := s.auth.Authenticate(r.Context(), token)
		if err != nil {
			s.logger.Warn("websocket authentication failed", "error", err)
			http.Error(w, "invalid access token", http.StatusUnauthorized)
			return
		}
		acc = resolved
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("websocket upgrade failed", "error", err)
		return
	}

	c := newClient(conn, acc)

	s.mu.Lock()
	s.clients[c.id] = c
	total := len(s.clients)
	s.mu.Unlock()

	s.logger.Debug("websocket client connected",
		"connection_id", c.id,
		"role", acc.Role,
		"total_clients", total)

	go s.writePump(c)
	go s.readPump(c)
}

// readPump reads inbound frames until the connection dies, then tears the
// client down and clears its subscriptions.
func (s *Server) readPump(c *Client) {
	defer func() {
		s.removeClient(c)
		c.conn.Close()
		s.handler.HandleDisconnect(c)
		s.logger.Debug("websocket client disconnected", "connection_id", c.id)
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		msgType, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Debug("websocket read failed", "connection_id", c.id, "error", err)
			}
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}
		// The request context died with the upgrade handler; protocol
		// messages run against the process lifetime instead.
		s.handler.HandleMessage(context.Background(), c, data)
	}
}

// writePump drains the client's send queue and keeps the connection alive
// with pings.
func (s *Server) writePump(c *Client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case frame := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}

		case <-c.closed:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// requestToken pulls the access token from the query string or, for clients
// that can set headers, from a bearer Authorization header.
func requestToken(r *http.Request) string {
	if token := r.URL.Query().Get("access_token"); token != "" {
		return token
	}
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimPrefix(h, "Bearer ")
	}
	return ""
}

func (s *Server) removeClient(c *Client) {
	s.mu.Lock()
	delete(s.clients, c.id)
	s.mu.Unlock()
	c.markClosed()
}

// CloseAll shuts every client down. Used on graceful shutdown.
func (s *Server) CloseAll() {
	s.mu.Lock()
	clients := make([]*Client, 0, len(s.clients))
	for _, c := range s.clients {
		clients = append(clients, c)
	}
	s.clients = make(map[string]*Client)
	s.mu.Unlock()

	for _, c := range clients {
		c.markClosed()
	}
	if len(clients) > 0 {
		s.logger.Info("closed websocket clients", "count", len(clients))
	}
}

// ClientCount returns the number of connected clients.
func (s *Server) ClientCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients)
}
