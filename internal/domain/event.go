package domain

// Action identifies the kind of mutation that produced a change event.
type Action string

const (
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"

	// ActionInit tags the initial payload pushed when a subscription is
	// registered. It never appears on the bus.
	ActionInit Action = "init"
)

// ValidAction reports whether a is one of the bus-carried mutation actions.
func ValidAction(a Action) bool {
	return a == ActionCreate || a == ActionUpdate || a == ActionDelete
}

// ChangeEvent is the normalized description of one mutation. It is built by
// the event source adapter, JSON-encoded onto the bus, decoded by the bus
// listener and discarded after dispatch.
type ChangeEvent struct {
	Action     Action         `json:"action"`
	Collection string         `json:"collection"`
	Key        string         `json:"key,omitempty"`
	Keys       []string       `json:"keys,omitempty"`
	Payload    map[string]any `json:"payload,omitempty"`
}
