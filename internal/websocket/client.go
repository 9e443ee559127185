package websocket

import (
	"errors"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/quillstone/realtime-bridge/internal/domain"
)

const sendBufferSize = 256

var (
	// ErrClientGone is returned by Send after the client closed.
	ErrClientGone = errors.New("websocket: client closed")

	// ErrSendBufferFull is returned by Send when the client cannot keep up
	// with pushes.
	ErrSendBufferFull = errors.New("websocket: send buffer full")
)

// Client is one upgraded connection. It satisfies the realtime Connection
// contract: the dispatcher pushes frames through Send while the server's
// read pump feeds inbound protocol messages to the message handler.
type Client struct {
	id   string
	conn *websocket.Conn
	send chan []byte

	mu  sync.RWMutex
	acc domain.Accountability

	closeOnce sync.Once
	closed    chan struct{}
}

func newClient(conn *websocket.Conn, acc domain.Accountability) *Client {
	return &Client{
		id:     uuid.New().String(),
		conn:   conn,
		send:   make(chan []byte, sendBufferSize),
		acc:    acc,
		closed: make(chan struct{}),
	}
}

// ID returns the connection identity used in registry lookups.
func (c *Client) ID() string {
	return c.id
}

// Send queues frame for delivery on the write pump. It never blocks: a
// closed client or a full queue fails immediately and the caller decides
// whether that matters.
func (c *Client) Send(frame []byte) error {
	select {
	case <-c.closed:
		return ErrClientGone
	case c.send <- frame:
		return nil
	default:
		return ErrSendBufferFull
	}
}

// Accountability returns the permission context of the connection.
func (c *Client) Accountability() domain.Accountability {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.acc
}

// SetAccountability replaces the permission context after a refresh.
func (c *Client) SetAccountability(acc domain.Accountability) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.acc = acc
}

// markClosed signals both pumps that the client is done. Idempotent.
func (c *Client) markClosed() {
	c.closeOnce.Do(func() {
		close(c.closed)
	})
}
