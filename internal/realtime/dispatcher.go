package realtime

import (
	"context"
	"log/slog"
	"sync"

	"github.com/quillstone/realtime-bridge/internal/domain"
)

// Dispatcher fans a change event out to every subscription registered for
// the event's collection. Each subscription is served on its own goroutine
// with its own permission refresh, schema fetch and data read, so one slow
// or failing subscriber never delays the others.
type Dispatcher struct {
	registry     *Registry
	reader       DataReader
	metaProvider MetaProvider
	refresher    AccountabilityRefresher
	schema       SchemaProvider
	logger       *slog.Logger
}

func NewDispatcher(registry *Registry, reader DataReader, metaProvider MetaProvider, refresher AccountabilityRefresher, schema SchemaProvider, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		registry:     registry,
		reader:       reader,
		metaProvider: metaProvider,
		refresher:    refresher,
		schema:       schema,
		logger:       logger,
	}
}

// Dispatch pushes the event to all matching subscribers and returns when
// every per-subscription attempt finished. Subscriptions carrying an event
// filter only see matching actions.
func (d *Dispatcher) Dispatch(ctx context.Context, event domain.ChangeEvent) {
	subs := d.registry.SubscribersOf(event.Collection)
	if len(subs) == 0 {
		return
	}

	var wg sync.WaitGroup
	for _, sub := range subs {
		if sub.Event != "" && sub.Event != event.Action {
			continue
		}
		wg.Add(1)
		go func(sub *Subscription) {
			defer wg.Done()
			d.dispatchOne(ctx, sub, event)
		}(sub)
	}
	wg.Wait()
}

// dispatchOne serves a single subscription: refresh the connection's
// permission context, fetch a fresh schema, re-read the data under the
// subscription's query and push the result. Failures stay local to this
// subscription.
func (d *Dispatcher) dispatchOne(ctx context.Context, sub *Subscription, event domain.ChangeEvent) {
	acc, err := d.refresher.Refresh(ctx, sub.Connection.Accountability())
	if err != nil {
		d.logger.Warn("accountability refresh failed",
			"connection_id", sub.Connection.ID(),
			"collection", sub.Collection,
			"error", err)
		sendError(d.logger, sub.Connection, sub.UID, err)
		return
	}
	sub.Connection.SetAccountability(acc)

	schema, err := d.schema.Snapshot(ctx)
	if err != nil {
		// Without a schema no read is meaningful; skip this push rather
		// than surface an infrastructure failure to the client.
		d.logger.Error("schema snapshot failed during dispatch",
			"collection", sub.Collection,
			"error", err)
		return
	}

	payload, meta, err := buildPayload(ctx, d.reader, d.metaProvider, sub, acc, schema)
	if err != nil {
		sendError(d.logger, sub.Connection, sub.UID, err)
		return
	}

	frame, err := subscriptionFrame(sub, event.Action, payload, meta)
	if err != nil {
		d.logger.Error("failed to encode subscription frame",
			"connection_id", sub.Connection.ID(),
			"collection", sub.Collection,
			"error", err)
		return
	}
	if err := sub.Connection.Send(frame); err != nil {
		// The connection may have closed while this dispatch was in
		// flight; its own cleanup removes the subscription.
		d.logger.Debug("failed to push subscription frame",
			"connection_id", sub.Connection.ID(),
			"collection", sub.Collection,
			"error", err)
	}
}
