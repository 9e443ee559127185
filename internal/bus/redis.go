package bus

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/redis/go-redis/v9"
)

// Redis is a Bus backed by Redis pub/sub. Every process instance subscribes
// to the same channel, so a mutation handled by one instance reaches the
// subscriptions held by all of them.
type Redis struct {
	client *redis.Client
	logger *slog.Logger

	mu      sync.Mutex
	pubsubs []*redis.PubSub
	wg      sync.WaitGroup
	closed  bool
}

// NewRedis connects to the Redis instance at redisURL and verifies the
// connection with a ping.
func NewRedis(ctx context.Context, redisURL string, logger *slog.Logger) (*Redis, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parsing redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("pinging redis: %w", err)
	}

	if logger == nil {
		logger = slog.Default()
	}
	return &Redis{client: client, logger: logger}, nil
}

// Publish sends payload on the given channel.
func (r *Redis) Publish(ctx context.Context, topic string, payload []byte) error {
	if err := r.client.Publish(ctx, topic, payload).Err(); err != nil {
		return fmt.Errorf("publishing to %s: %w", topic, err)
	}
	return nil
}

// Subscribe opens a Redis subscription on topic and delivers each message to
// handler from a dedicated goroutine.
func (r *Redis) Subscribe(ctx context.Context, topic string, handler Handler) error {
	ps := r.client.Subscribe(ctx, topic)

	// Force the subscription to be established before returning so callers
	// can publish immediately after.
	if _, err := ps.Receive(ctx); err != nil {
		ps.Close()
		return fmt.Errorf("subscribing to %s: %w", topic, err)
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		ps.Close()
		return fmt.Errorf("bus is closed")
	}
	r.pubsubs = append(r.pubsubs, ps)
	r.wg.Add(1)
	r.mu.Unlock()

	go func() {
		defer r.wg.Done()
		for msg := range ps.Channel() {
			handler([]byte(msg.Payload))
		}
	}()

	return nil
}

// Close closes all subscriptions, waits for their delivery goroutines and
// releases the client.
func (r *Redis) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	pubsubs := r.pubsubs
	r.pubsubs = nil
	r.mu.Unlock()

	for _, ps := range pubsubs {
		if err := ps.Close(); err != nil {
			r.logger.Warn("closing redis subscription", "error", err)
		}
	}
	r.wg.Wait()

	return r.client.Close()
}

var _ Bus = (*Redis)(nil)
