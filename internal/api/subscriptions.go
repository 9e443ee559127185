package api

import (
	"net/http"

	"github.com/quillstone/realtime-bridge/internal/realtime"
	ws "github.com/quillstone/realtime-bridge/internal/websocket"
)

// SubscriptionHandler exposes a read-only view of the live registry for
// operators.
type SubscriptionHandler struct {
	registry *realtime.Registry
	server   *ws.Server
}

func NewSubscriptionHandler(registry *realtime.Registry, server *ws.Server) *SubscriptionHandler {
	return &SubscriptionHandler{registry: registry, server: server}
}

type subscriptionStats struct {
	ConnectedClients   int            `json:"connected_clients"`
	TotalSubscriptions int            `json:"total_subscriptions"`
	Collections        map[string]int `json:"collections"`
}

func (h *SubscriptionHandler) Stats(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, subscriptionStats{
		ConnectedClients:   h.server.ClientCount(),
		TotalSubscriptions: h.registry.Len(),
		Collections:        h.registry.Collections(),
	})
}
