package realtime

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/quillstone/realtime-bridge/internal/domain"
)

// Handler drives the subscribe/unsubscribe protocol for one side of the
// bridge: it validates inbound frames, registers subscriptions and pushes
// the initial snapshot. One handler serves all connections; per-connection
// state lives in the registry keyed by connection ID.
type Handler struct {
	registry     *Registry
	reader       DataReader
	metaProvider MetaProvider
	schema       SchemaProvider
	logger       *slog.Logger
}

func NewHandler(registry *Registry, reader DataReader, metaProvider MetaProvider, schema SchemaProvider, logger *slog.Logger) *Handler {
	return &Handler{
		registry:     registry,
		reader:       reader,
		metaProvider: metaProvider,
		schema:       schema,
		logger:       logger,
	}
}

// HandleMessage processes one inbound text frame from a connection. Protocol
// failures are reported back to the client as error frames, never as
// connection teardown.
func (h *Handler) HandleMessage(ctx context.Context, conn Connection, data []byte) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		sendError(h.logger, conn, "", errMalformed("message is not valid JSON"))
		return
	}

	switch env.Type {
	case MessageTypeSubscribe:
		h.handleSubscribe(ctx, conn, data)
	case MessageTypeUnsubscribe:
		h.handleUnsubscribe(conn, data)
	default:
		sendError(h.logger, conn, "", errMalformed("unsupported message type"))
	}
}

// HandleDisconnect clears all registry state owned by the connection. The
// transport calls it exactly once per closed connection.
func (h *Handler) HandleDisconnect(conn Connection) {
	removed := h.registry.RemoveConnection(conn.ID())
	if removed > 0 {
		h.logger.Debug("cleared subscriptions for closed connection",
			"connection_id", conn.ID(),
			"removed", removed)
	}
}

func (h *Handler) handleSubscribe(ctx context.Context, conn Connection, data []byte) {
	var msg subscribeMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		sendError(h.logger, conn, "", errMalformed("invalid subscribe message"))
		return
	}

	uid, _ := domain.KeyString(msg.UID)
	if msg.Collection == "" {
		sendError(h.logger, conn, uid, errMalformed("collection is required"))
		return
	}

	var eventFilter domain.Action
	if msg.Event != "" {
		eventFilter = domain.Action(msg.Event)
		if !domain.ValidAction(eventFilter) {
			sendError(h.logger, conn, uid, errMalformed("unknown event filter"))
			return
		}
	}

	acc := conn.Accountability()
	schema, err := h.schema.Snapshot(ctx)
	if err != nil {
		h.logger.Error("schema snapshot failed during subscribe",
			"connection_id", conn.ID(),
			"collection", msg.Collection,
			"error", err)
		sendError(h.logger, conn, uid, errInternal())
		return
	}
	if !acc.Admin && !schema.HasCollection(msg.Collection) {
		sendError(h.logger, conn, uid, errInvalidResource(msg.Collection))
		return
	}

	item, _ := domain.KeyString(msg.Item)
	var query domain.Query
	if msg.Query != nil {
		query = *msg.Query
	}
	query = query.Normalize()

	sub := &Subscription{
		UID:        uid,
		Connection: conn,
		Collection: msg.Collection,
		Item:       item,
		Query:      query,
		Event:      eventFilter,
	}

	// Re-subscribing under an already used UID replaces the earlier
	// subscription instead of stacking a second one.
	if uid != "" {
		h.registry.Remove(conn.ID(), uid)
	}

	// The initial read runs before registration so a failed subscribe
	// leaves no registry state behind.
	payload, meta, err := buildPayload(ctx, h.reader, h.metaProvider, sub, acc, schema)
	if err != nil {
		sendError(h.logger, conn, uid, err)
		return
	}

	h.registry.Add(sub)

	frame, err := subscriptionFrame(sub, domain.ActionInit, payload, meta)
	if err != nil {
		h.logger.Error("failed to encode init frame",
			"connection_id", conn.ID(),
			"collection", sub.Collection,
			"error", err)
		return
	}
	if err := conn.Send(frame); err != nil {
		h.logger.Debug("failed to push init frame",
			"connection_id", conn.ID(),
			"collection", sub.Collection,
			"error", err)
		return
	}

	h.logger.Debug("subscription registered",
		"connection_id", conn.ID(),
		"collection", sub.Collection,
		"uid", uid,
		"single_item", sub.SingleItem())
}

func (h *Handler) handleUnsubscribe(conn Connection, data []byte) {
	var msg unsubscribeMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		sendError(h.logger, conn, "", errMalformed("invalid unsubscribe message"))
		return
	}

	uid, ok := domain.KeyString(msg.UID)
	if !ok {
		removed := h.registry.RemoveConnection(conn.ID())
		h.logger.Debug("unsubscribed all",
			"connection_id", conn.ID(),
			"removed", removed)
		return
	}

	// Unknown uid is a no-op; the client may race an unsubscribe against a
	// connection-level cleanup.
	if h.registry.Remove(conn.ID(), uid) {
		h.logger.Debug("unsubscribed",
			"connection_id", conn.ID(),
			"uid", uid)
	}
}
