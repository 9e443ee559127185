// Package bus provides the cross-process publish/subscribe transport used to
// fan mutation events out to every process instance. Delivery is
// at-least-once with no ordering guarantee across publishers; payloads are
// opaque bytes (the realtime layer owns the encoding).
package bus

import "context"

// Handler receives one published payload. Handlers must not block for long:
// slow handlers delay delivery of subsequent messages on the same
// subscription.
type Handler func(payload []byte)

// Bus is the cross-process message transport.
type Bus interface {
	// Publish sends payload to every subscriber of topic.
	Publish(ctx context.Context, topic string, payload []byte) error

	// Subscribe registers handler for topic. The handler is invoked from a
	// bus-owned goroutine until the bus is closed.
	Subscribe(ctx context.Context, topic string, handler Handler) error

	// Close tears down all subscriptions. Publishes after Close are dropped.
	Close() error
}
