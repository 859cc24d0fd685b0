package service

import (
	"context"

	"github.com/jdships/yodoo-rebuild/pkg/log"
	"github.com/jdships/yodoo-rebuild/pkg/pubsub"
)

// publishEvent is best effort: a failed publish is logged, never returned.
func publishEvent(ctx context.Context, publisher pubsub.Publisher, channel, eventType, userID string, payload interface{}) {
	if publisher == nil {
		return
	}
	ev, err := pubsub.NewEvent(eventType, userID, payload)
	if err == nil {
		err = publisher.Publish(ctx, channel, ev)
	}
	if err != nil {
		l := log.Ctx(ctx)
		l.Warn().Err(err).Str(log.FieldEventType, eventType).Msg("failed to publish event")
	}
}
