package pubsub

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"

	"github.com/jdships/yodoo-rebuild/pkg/log"
	"github.com/jdships/yodoo-rebuild/pkg/metrics"
)

const redisBus = "redis"

// RedisPubSub carries events over Redis pub/sub. Redis does not persist
// messages, so events published while no subscriber is connected are lost
// and the usage cache TTL bounds the staleness.
type RedisPubSub struct {
	client *redis.Client
	mu     sync.Mutex
	subs   map[string]*redis.PubSub
}

// NewRedisPubSub creates a PubSub on top of an existing Redis client.
// The client is owned by the caller and is not closed by Close.
func NewRedisPubSub(client *redis.Client) *RedisPubSub {
	return &RedisPubSub{client: client, subs: make(map[string]*redis.PubSub)}
}

func (r *RedisPubSub) Publish(ctx context.Context, channel string, event *Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	if err := r.client.Publish(ctx, channel, data).Err(); err != nil {
		metrics.RecordEvent(redisBus, "publish", "error")
		return fmt.Errorf("failed to publish to %s: %w", channel, err)
	}
	metrics.RecordEvent(redisBus, "publish", "ok")
	return nil
}

func (r *RedisPubSub) Subscribe(ctx context.Context, channel string) (<-chan *Event, error) {
	return r.listen(ctx, channel, r.client.Subscribe(ctx, channel))
}

func (r *RedisPubSub) SubscribePattern(ctx context.Context, pattern string) (<-chan *Event, error) {
	return r.listen(ctx, pattern, r.client.PSubscribe(ctx, pattern))
}

// listen waits for Redis to confirm the subscription so that no event
// published after the call returns is missed.
func (r *RedisPubSub) listen(ctx context.Context, key string, ps *redis.PubSub) (<-chan *Event, error) {
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("failed to subscribe to %s: %w", key, err)
	}

	r.mu.Lock()
	if old, ok := r.subs[key]; ok {
		_ = old.Close()
	}
	r.subs[key] = ps
	r.mu.Unlock()

	events := make(chan *Event, 100)
	go r.forward(ctx, ps, events)
	return events, nil
}

// forward decodes messages until the subscription closes or ctx ends.
func (r *RedisPubSub) forward(ctx context.Context, ps *redis.PubSub, events chan<- *Event) {
	defer close(events)
	l := log.Ctx(ctx)

	ch := ps.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			var ev Event
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				metrics.RecordEvent(redisBus, "consume", "dropped")
				l.Warn().Err(err).Str("channel", msg.Channel).Msg("dropping malformed event")
				continue
			}
			select {
			case events <- &ev:
				metrics.RecordEvent(redisBus, "consume", "ok")
			case <-ctx.Done():
				return
			}
		}
	}
}

func (r *RedisPubSub) Unsubscribe(ctx context.Context, channel string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	ps, ok := r.subs[channel]
	if !ok {
		return nil
	}
	delete(r.subs, channel)
	return ps.Close()
}

// Close ends every subscription.
func (r *RedisPubSub) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var firstErr error
	for key, ps := range r.subs {
		if err := ps.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(r.subs, key)
	}
	return firstErr
}
