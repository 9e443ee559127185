package realtime

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/quillstone/realtime-bridge/internal/bus"
	"github.com/quillstone/realtime-bridge/internal/domain"
)

// Listener consumes change events from the cross-process bus and hands each
// one to the dispatcher. Malformed messages are dropped so one bad payload
// never interrupts delivery of the ones behind it.
type Listener struct {
	bus        bus.Bus
	topic      string
	dispatcher *Dispatcher
	logger     *slog.Logger
}

func NewListener(b bus.Bus, topic string, dispatcher *Dispatcher, logger *slog.Logger) *Listener {
	return &Listener{
		bus:        b,
		topic:      topic,
		dispatcher: dispatcher,
		logger:     logger,
	}
}

// Start subscribes to the change-event topic. Dispatch runs on its own
// goroutine per event, so independent events fan out concurrently.
func (l *Listener) Start(ctx context.Context) error {
	if err := l.bus.Subscribe(ctx, l.topic, func(payload []byte) {
		l.handle(ctx, payload)
	}); err != nil {
		return err
	}
	l.logger.Info("bus listener started", "topic", l.topic)
	return nil
}

func (l *Listener) handle(ctx context.Context, payload []byte) {
	var ev domain.ChangeEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		l.logger.Debug("dropping malformed bus message", "error", err)
		return
	}
	if ev.Collection == "" || !domain.ValidAction(ev.Action) {
		l.logger.Debug("dropping invalid change event",
			"collection", ev.Collection,
			"action", string(ev.Action))
		return
	}
	go l.dispatcher.Dispatch(ctx, ev)
}
