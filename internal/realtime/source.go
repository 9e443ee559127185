package realtime

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/quillstone/realtime-bridge/internal/bus"
	"github.com/quillstone/realtime-bridge/internal/domain"
)

// RawMutation is the unnormalized notification the mutation pipeline hands
// to the source adapter: which collection changed, how, and whatever keys
// and field values the pipeline had available.
type RawMutation struct {
	Collection string
	Action     domain.Action
	Key        string
	Keys       []string
	Payload    map[string]any
}

// NormalizeFunc shapes a raw mutation into the change event published on
// the bus.
type NormalizeFunc func(RawMutation) domain.ChangeEvent

type hookKey struct {
	collection string
	action     domain.Action
}

// Source is the event source adapter. Mutation hooks call Notify, which
// normalizes the mutation through the registered hook and enqueues the
// resulting change event for publishing. Publishing is fire-and-forget:
// Notify never blocks and never reports bus failures to the mutation path;
// a full queue drops the event with a warning.
type Source struct {
	bus    bus.Bus
	topic  string
	logger *slog.Logger

	mu    sync.RWMutex
	hooks map[hookKey]NormalizeFunc

	queue chan domain.ChangeEvent
}

func NewSource(b bus.Bus, topic string, queueSize int, logger *slog.Logger) *Source {
	if queueSize <= 0 {
		queueSize = 256
	}
	return &Source{
		bus:    b,
		topic:  topic,
		logger: logger,
		hooks:  make(map[hookKey]NormalizeFunc),
		queue:  make(chan domain.ChangeEvent, queueSize),
	}
}

// Register installs the normalizer for one (collection, action) pair.
// Mutations without a registered normalizer are ignored by Notify.
func (s *Source) Register(collection string, action domain.Action, fn NormalizeFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hooks[hookKey{collection: collection, action: action}] = fn
}

// RegisterCollection installs the default create/update/delete normalizers
// for a collection.
func (s *Source) RegisterCollection(collection string) {
	s.Register(collection, domain.ActionCreate, normalizeCreate)
	s.Register(collection, domain.ActionUpdate, normalizeUpdate)
	s.Register(collection, domain.ActionDelete, normalizeDelete)
}

// Tracked reports whether any normalizer is registered for the collection.
func (s *Source) Tracked(collection string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for key := range s.hooks {
		if key.collection == collection {
			return true
		}
	}
	return false
}

// Notify accepts a mutation notification from the pipeline. It returns
// immediately; the publisher goroutine pushes the normalized event to the
// bus in the background.
func (s *Source) Notify(m RawMutation) {
	s.mu.RLock()
	fn, ok := s.hooks[hookKey{collection: m.Collection, action: m.Action}]
	s.mu.RUnlock()
	if !ok {
		s.logger.Debug("dropping mutation for untracked collection",
			"collection", m.Collection,
			"action", string(m.Action))
		return
	}

	select {
	case s.queue <- fn(m):
	default:
		s.logger.Warn("change event queue full, dropping event",
			"collection", m.Collection,
			"action", string(m.Action))
	}
}

// Run publishes queued change events until ctx is cancelled. Publish
// failures are logged and the loop moves on.
func (s *Source) Run(ctx context.Context) {
	s.logger.Info("event source started", "topic", s.topic)
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("event source stopped")
			return
		case ev := <-s.queue:
			s.publish(ctx, ev)
		}
	}
}

func (s *Source) publish(ctx context.Context, ev domain.ChangeEvent) {
	payload, err := json.Marshal(ev)
	if err != nil {
		s.logger.Error("failed to encode change event",
			"collection", ev.Collection,
			"action", string(ev.Action),
			"error", err)
		return
	}
	if err := s.bus.Publish(ctx, s.topic, payload); err != nil {
		s.logger.Error("failed to publish change event",
			"collection", ev.Collection,
			"action", string(ev.Action),
			"error", err)
	}
}

func normalizeCreate(m RawMutation) domain.ChangeEvent {
	key := m.Key
	if key == "" && len(m.Keys) > 0 {
		key = m.Keys[0]
	}
	return domain.ChangeEvent{
		Action:     domain.ActionCreate,
		Collection: m.Collection,
		Key:        key,
		Payload:    m.Payload,
	}
}

func normalizeUpdate(m RawMutation) domain.ChangeEvent {
	return domain.ChangeEvent{
		Action:     domain.ActionUpdate,
		Collection: m.Collection,
		Keys:       mutationKeys(m),
		Payload:    m.Payload,
	}
}

func normalizeDelete(m RawMutation) domain.ChangeEvent {
	return domain.ChangeEvent{
		Action:     domain.ActionDelete,
		Collection: m.Collection,
		Keys:       mutationKeys(m),
		Payload:    m.Payload,
	}
}

func mutationKeys(m RawMutation) []string {
	if len(m.Keys) > 0 {
		return m.Keys
	}
	if m.Key != "" {
		return []string{m.Key}
	}
	return nil
}
