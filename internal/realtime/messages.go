package realtime

import (
	"encoding/json"

	"github.com/quillstone/realtime-bridge/internal/domain"
)

// Message types exchanged over a realtime connection.
const (
	MessageTypeSubscribe    = "subscribe"
	MessageTypeUnsubscribe  = "unsubscribe"
	MessageTypeSubscription = "subscription"
	MessageTypeError        = "error"
)

// subscribeMessage is the inbound frame that opens a subscription. Item and
// UID accept JSON strings or numbers.
type subscribeMessage struct {
	Type       string        `json:"type"`
	Collection string        `json:"collection"`
	Item       any           `json:"item,omitempty"`
	Query      *domain.Query `json:"query,omitempty"`
	UID        any           `json:"uid,omitempty"`
	Event      string        `json:"event,omitempty"`
}

// unsubscribeMessage is the inbound frame that tears a subscription down.
// Without a UID it removes every subscription held by the connection.
type unsubscribeMessage struct {
	Type string `json:"type"`
	UID  any    `json:"uid,omitempty"`
}

// envelope carries only the type discriminator of an inbound frame.
type envelope struct {
	Type string `json:"type"`
}

// SubscriptionMessage is the outbound frame pushed to a subscriber, both for
// the initial snapshot and for every matching change event.
type SubscriptionMessage struct {
	Type    string         `json:"type"`
	Event   domain.Action  `json:"event"`
	Payload any            `json:"payload"`
	Meta    map[string]any `json:"meta,omitempty"`
	UID     string         `json:"uid,omitempty"`
}

// ErrorMessage is the outbound frame reporting a protocol-level failure.
type ErrorMessage struct {
	Type  string      `json:"type"`
	Error ErrorDetail `json:"error"`
	UID   string      `json:"uid,omitempty"`
}

// ErrorDetail carries the machine-readable code and human-readable message
// of an error frame.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func subscriptionFrame(sub *Subscription, action domain.Action, payload any, meta map[string]any) ([]byte, error) {
	return json.Marshal(SubscriptionMessage{
		Type:    MessageTypeSubscription,
		Event:   action,
		Payload: payload,
		Meta:    meta,
		UID:     sub.UID,
	})
}
