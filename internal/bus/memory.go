package bus

import (
	"context"
	"log/slog"
	"sync"
)

const memoryBufferSize = 256

// Memory is an in-process Bus for single-node deployments and tests. Each
// subscriber gets a buffered queue drained by its own goroutine, so a slow
// handler never blocks publishers or other subscribers.
type Memory struct {
	mu     sync.RWMutex
	subs   map[string][]*memorySub
	closed bool
	logger *slog.Logger
}

type memorySub struct {
	queue   chan []byte
	handler Handler
	done    chan struct{}
}

// NewMemory creates an in-process bus.
func NewMemory(logger *slog.Logger) *Memory {
	if logger == nil {
		logger = slog.Default()
	}
	return &Memory{
		subs:   make(map[string][]*memorySub),
		logger: logger,
	}
}

// Publish sends payload to every subscriber of topic. Payloads for
// subscribers with a full queue are dropped rather than blocking the caller.
func (m *Memory) Publish(_ context.Context, topic string, payload []byte) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil
	}

	for _, sub := range m.subs[topic] {
		select {
		case sub.queue <- payload:
		default:
			m.logger.Warn("memory bus subscriber queue full, dropping message", "topic", topic)
		}
	}
	return nil
}

// Subscribe registers handler for topic and starts its delivery goroutine.
func (m *Memory) Subscribe(_ context.Context, topic string, handler Handler) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil
	}

	sub := &memorySub{
		queue:   make(chan []byte, memoryBufferSize),
		handler: handler,
		done:    make(chan struct{}),
	}
	m.subs[topic] = append(m.subs[topic], sub)

	go sub.run()
	return nil
}

// Close stops all delivery goroutines. Queued but undelivered messages are
// discarded.
func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil
	}
	m.closed = true

	for _, subs := range m.subs {
		for _, sub := range subs {
			close(sub.done)
		}
	}
	m.subs = make(map[string][]*memorySub)
	return nil
}

func (s *memorySub) run() {
	for {
		select {
		case payload := <-s.queue:
			s.handler(payload)
		case <-s.done:
			return
		}
	}
}

var _ Bus = (*Memory)(nil)
