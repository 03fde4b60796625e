package application

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"homeguard-backend/internal/domain"
	"homeguard-backend/internal/infrastructure/cache"
)

// InvalidationHandler drops cache entries in response to domain events
// published by other instances or services, e.g. the detection pipeline.
type InvalidationHandler struct {
	cache  *cache.Service
	logger *zap.Logger
}

func NewInvalidationHandler(svc *cache.Service, logger *zap.Logger) *InvalidationHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &InvalidationHandler{cache: svc, logger: logger.Named("invalidation")}
}

// Handle invalidates the entries affected by event and returns how many keys
// were removed.
func (h *InvalidationHandler) Handle(ctx context.Context, event domain.DomainEvent) (int, error) {
	var removed int
	switch e := event.(type) {
	case *domain.EventCreated:
		removed = h.cache.InvalidateEvents(ctx)
	case *domain.CameraUpdated:
		removed = h.cache.InvalidateCameras(ctx) + h.cache.InvalidateSystemStatus(ctx)
	case *domain.AlertChanged:
		removed = h.cache.InvalidateAlerts(ctx) + h.cache.InvalidateSystemStatus(ctx)
	case *domain.DetectionAdded:
		removed = h.cache.InvalidateDetections(ctx)
	case *domain.SummaryGenerated:
		removed = h.cache.InvalidateSummaries(ctx)
	default:
		return 0, fmt.Errorf("no invalidation rule for %T", e)
	}

	h.logger.Debug("Invalidated cache for domain event",
		zap.String("event_type", event.EventType()),
		zap.String("household_id", event.Household()),
		zap.Int("removed", removed),
	)
	return removed, nil
}

// HandleRaw decodes an event bus payload and handles it.
func (h *InvalidationHandler) HandleRaw(ctx context.Context, detailType string, detail []byte) (int, error) {
	event, err := domain.DecodeEvent(detailType, detail)
	if err != nil {
		return 0, err
	}
	return h.Handle(ctx, event)
}
