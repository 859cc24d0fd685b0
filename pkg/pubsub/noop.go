package pubsub

import (
	"context"
	"path"
	"sync"
)

// Noop is an in-process PubSub used when no broker is configured. Events
// reach local subscribers of the exact channel and of matching patterns,
// which keeps cache invalidation working in a single instance.
type Noop struct {
	mu       sync.Mutex
	channels map[string][]chan *Event
	patterns map[string][]chan *Event
}

// NewNoop creates an in-process PubSub.
func NewNoop() *Noop {
	return &Noop{
		channels: make(map[string][]chan *Event),
		patterns: make(map[string][]chan *Event),
	}
}

// Publish never blocks; a full subscriber misses the event.
func (n *Noop) Publish(ctx context.Context, channel string, event *Event) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	deliver := func(chans []chan *Event) {
		for _, ch := range chans {
			select {
			case ch <- event:
			default:
			}
		}
	}
	deliver(n.channels[channel])
	for pattern, chans := range n.patterns {
		if ok, _ := path.Match(pattern, channel); ok {
			deliver(chans)
		}
	}
	return nil
}

func (n *Noop) Subscribe(ctx context.Context, channel string) (<-chan *Event, error) {
	return n.add(n.channels, channel), nil
}

func (n *Noop) SubscribePattern(ctx context.Context, pattern string) (<-chan *Event, error) {
	if _, err := path.Match(pattern, ""); err != nil {
		return nil, err
	}
	return n.add(n.patterns, pattern), nil
}

func (n *Noop) add(m map[string][]chan *Event, key string) chan *Event {
	n.mu.Lock()
	defer n.mu.Unlock()
	ch := make(chan *Event, 100)
	m[key] = append(m[key], ch)
	return ch
}

func (n *Noop) Unsubscribe(ctx context.Context, channel string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, m := range []map[string][]chan *Event{n.channels, n.patterns} {
		for _, ch := range m[channel] {
			close(ch)
		}
		delete(m, channel)
	}
	return nil
}

func (n *Noop) Close() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, m := range []map[string][]chan *Event{n.channels, n.patterns} {
		for key, chans := range m {
			for _, ch := range chans {
				close(ch)
			}
			delete(m, key)
		}
	}
	return nil
}
