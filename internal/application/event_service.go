package application

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"homeguard-backend/internal/domain"
	"homeguard-backend/internal/infrastructure/cache"
	apperrors "homeguard-backend/pkg/errors"
)

const (
	DefaultRecentLimit = 20
	MaxRecentLimit     = 100
	// StatsWindow is the period covered by event statistics.
	StatsWindow = 24 * time.Hour
)

type EventService struct {
	events    EventRepository
	alerts    AlertRepository
	cache     *cache.Service
	swr       *cache.SWR
	publisher EventPublisher
	now       Clock
	logger    *zap.Logger
}

func NewEventService(
	events EventRepository,
	alerts AlertRepository,
	svc *cache.Service,
	swr *cache.SWR,
	publisher EventPublisher,
	now Clock,
	logger *zap.Logger,
) *EventService {
	if now == nil {
		now = time.Now
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EventService{
		events:    events,
		alerts:    alerts,
		cache:     svc,
		swr:       swr,
		publisher: publisher,
		now:       now,
		logger:    logger.Named("events"),
	}
}

// Create stores a new event and, for high and critical severities, the alert
// it raises. It returns the stored event and the alert, if any.
func (s *EventService) Create(ctx context.Context, e domain.Event) (*domain.Event, *domain.Alert, error) {
	e.ID = uuid.NewString()
	if e.OccurredAt.IsZero() {
		e.OccurredAt = s.now()
	}
	e.OccurredAt = e.OccurredAt.UTC()
	if err := e.Validate(); err != nil {
		return nil, nil, err
	}
	if err := s.events.SaveEvent(ctx, &e); err != nil {
		return nil, nil, apperrors.Wrap(err, "save event")
	}

	var alert *domain.Alert
	if e.NeedsAlert() {
		alert = domain.NewAlertForEvent(uuid.NewString(), &e)
		if err := s.alerts.SaveAlert(ctx, alert); err != nil {
			return nil, nil, apperrors.Wrap(err, "save alert")
		}
	}

	s.cache.InvalidateEvents(ctx)
	outgoing := []domain.DomainEvent{domain.NewEventCreated(&e)}
	if alert != nil {
		s.cache.InvalidateAlerts(ctx)
		s.cache.InvalidateSystemStatus(ctx)
		outgoing = append(outgoing, domain.NewAlertChanged(alert, e.OccurredAt))
	}
	publish(ctx, s.publisher, s.logger, outgoing...)

	s.logger.Info("Event created",
		zap.String("household_id", e.HouseholdID),
		zap.String("event_id", e.ID),
		zap.String("type", string(e.Type)),
		zap.Bool("alert", alert != nil),
	)
	return &e, alert, nil
}

// Recent returns the newest events. limit is clamped to [1, MaxRecentLimit]
// with zero meaning DefaultRecentLimit.
func (s *EventService) Recent(ctx context.Context, householdID string, limit int) ([]domain.Event, error) {
	switch {
	case limit <= 0:
		limit = DefaultRecentLimit
	case limit > MaxRecentLimit:
		limit = MaxRecentLimit
	}
	events, err := cache.GetOrCompute(ctx, s.cache, cache.RecentEventsKey(householdID, limit), s.cache.ShortTTL(),
		func(ctx context.Context) (*[]domain.Event, error) {
			list, err := s.events.RecentEvents(ctx, householdID, limit)
			if err != nil {
				return nil, err
			}
			if list == nil {
				list = []domain.Event{}
			}
			return &list, nil
		})
	if err != nil {
		return nil, apperrors.Wrap(err, "recent events")
	}
	return *events, nil
}

// Stats returns event statistics for the last StatsWindow. A stale value is
// served while a background refresh recomputes it.
func (s *EventService) Stats(ctx context.Context, householdID string) (*domain.EventStats, error) {
	stats, err := cache.GetOrSetSWR(ctx, s.swr, cache.EventStatsKey(householdID),
		func(ctx context.Context) (*domain.EventStats, error) {
			now := s.now().UTC()
			since := now.Add(-StatsWindow)
			events, err := s.events.EventsSince(ctx, householdID, since)
			if err != nil {
				return nil, err
			}
			return domain.ComputeEventStats(householdID, events, since, now), nil
		}, s.cache.DefaultTTL(), 0)
	if err != nil {
		return nil, apperrors.Wrap(err, "event stats")
	}
	return stats, nil
}
