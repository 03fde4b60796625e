package application

import (
	"context"

	"go.uber.org/zap"

	"homeguard-backend/internal/domain"
)

// publish sends events after a committed write. The write already happened
// and the cache has been invalidated, so a failure is only logged.
func publish(ctx context.Context, publisher EventPublisher, logger *zap.Logger, events ...domain.DomainEvent) {
	if publisher == nil || len(events) == 0 {
		return
	}
	if err := publisher.Publish(ctx, events...); err != nil {
		logger.Warn("Failed to publish domain events",
			zap.Int("count", len(events)),
			zap.String("event_type", events[0].EventType()),
			zap.Error(err),
		)
	}
}
