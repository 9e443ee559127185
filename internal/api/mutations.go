package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/quillstone/realtime-bridge/internal/domain"
	"github.com/quillstone/realtime-bridge/internal/realtime"
)

// MutationHandler ingests mutation notifications from the content backend
// and feeds them to the event source adapter.
type MutationHandler struct {
	source *realtime.Source
	logger *slog.Logger
}

func NewMutationHandler(source *realtime.Source, logger *slog.Logger) *MutationHandler {
	return &MutationHandler{source: source, logger: logger}
}

type mutationRequest struct {
	Collection string         `json:"collection"`
	Action     string         `json:"action"`
	Key        any            `json:"key,omitempty"`
	Keys       []any          `json:"keys,omitempty"`
	Payload    map[string]any `json:"payload,omitempty"`
}

type mutationResponse struct {
	Status     string `json:"status"`
	Collection string `json:"collection"`
	Action     string `json:"action"`
}

// Notify accepts one mutation notification. The response only acknowledges
// intake: publishing to the bus is fire-and-forget and never blocks the
// caller.
func (h *MutationHandler) Notify(w http.ResponseWriter, r *http.Request) {
	var req mutationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.Collection == "" {
		respondError(w, http.StatusBadRequest, "collection is required")
		return
	}
	action := domain.Action(req.Action)
	if !domain.ValidAction(action) {
		respondError(w, http.StatusBadRequest, "action must be create, update or delete")
		return
	}

	key, _ := domain.KeyString(req.Key)
	keys := domain.KeyStrings(req.Keys)
	if key == "" && len(keys) == 0 {
		respondError(w, http.StatusBadRequest, "key or keys is required")
		return
	}

	if !h.source.Tracked(req.Collection) {
		respondError(w, http.StatusNotFound, "collection is not tracked")
		return
	}

	h.source.Notify(realtime.RawMutation{
		Collection: req.Collection,
		Action:     action,
		Key:        key,
		Keys:       keys,
		Payload:    req.Payload,
	})

	respondJSON(w, http.StatusAccepted, mutationResponse{
		Status:     "accepted",
		Collection: req.Collection,
		Action:     req.Action,
	})
}
