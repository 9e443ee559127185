// Package realtime implements the subscription registry and event fan-out
// engine: it tracks which live connections subscribed to which collections,
// receives normalized change events from the cross-process bus and pushes
// freshly read, permission-checked payloads to the matching connections.
package realtime

import "github.com/quillstone/realtime-bridge/internal/domain"

// Connection is the transport-layer handle a subscription points back to.
// The registry never owns a connection; its lifetime belongs to the
// transport. ID is the identity used for registry lookups.
type Connection interface {
	ID() string
	Send(frame []byte) error
	Accountability() domain.Accountability
	SetAccountability(domain.Accountability)
}

// Subscription is one connection's registered interest in a collection,
// optionally scoped to a single item or filtered to one action.
type Subscription struct {
	// UID is the client-supplied correlation token, unique per connection.
	// Empty is allowed but prevents independent unsubscribe.
	UID string

	// Connection is the owning connection.
	Connection Connection

	// Collection is the tracked collection name.
	Collection string

	// Item holds the single-item key; non-empty switches the subscription
	// into single-item mode, otherwise reads run in collection mode.
	Item string

	// Query shapes the reads performed for this subscription.
	Query domain.Query

	// Event, when set, restricts dispatch to change events with this action.
	Event domain.Action
}

// SingleItem reports whether the subscription is in single-item mode.
func (s *Subscription) SingleItem() bool {
	return s.Item != ""
}
