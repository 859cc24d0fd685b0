package cache

import (
	"context"

	"github.com/jdships/yodoo-rebuild/pkg/log"
	"github.com/jdships/yodoo-rebuild/pkg/pubsub"
)

// Invalidator drops cached summaries when another instance publishes a
// usage or billing event for a user.
type Invalidator struct {
	cache      UsageCache
	subscriber pubsub.Subscriber
}

// NewInvalidator creates an invalidator.
func NewInvalidator(cache UsageCache, subscriber pubsub.Subscriber) *Invalidator {
	return &Invalidator{cache: cache, subscriber: subscriber}
}

// Run subscribes to the usage and billing streams and blocks until ctx is done.
func (i *Invalidator) Run(ctx context.Context) error {
	usage, err := i.subscriber.SubscribePattern(ctx, pubsub.PatternUsageEvents)
	if err != nil {
		return err
	}
	billing, err := i.subscriber.SubscribePattern(ctx, pubsub.PatternBillingEvents)
	if err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-usage:
			if !ok {
				usage = nil
				continue
			}
			i.handle(ctx, ev)
		case ev, ok := <-billing:
			if !ok {
				billing = nil
				continue
			}
			i.handle(ctx, ev)
		}
		if usage == nil && billing == nil {
			return nil
		}
	}
}

func (i *Invalidator) handle(ctx context.Context, ev *pubsub.Event) {
	if ev == nil || ev.UserID == "" {
		return
	}
	if ev.Type == pubsub.EventCheckoutCreated {
		return
	}
	if err := i.cache.Delete(ctx, ev.UserID); err != nil {
		l := log.Ctx(ctx)
		l.Warn().Err(err).Str(log.FieldUserID, ev.UserID).Str(log.FieldEventType, ev.Type).Msg("usage cache invalidation failed")
	}
}
