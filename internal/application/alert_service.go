package application

import (
	"context"
	"time"

	"go.uber.org/zap"

	"homeguard-backend/internal/domain"
	"homeguard-backend/internal/infrastructure/cache"
	apperrors "homeguard-backend/pkg/errors"
)

type AlertService struct {
	repo      AlertRepository
	cache     *cache.Service
	publisher EventPublisher
	now       Clock
	logger    *zap.Logger
}

func NewAlertService(repo AlertRepository, svc *cache.Service, publisher EventPublisher, now Clock, logger *zap.Logger) *AlertService {
	if now == nil {
		now = time.Now
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AlertService{
		repo:      repo,
		cache:     svc,
		publisher: publisher,
		now:       now,
		logger:    logger.Named("alerts"),
	}
}

func (s *AlertService) Active(ctx context.Context, householdID string) ([]domain.Alert, error) {
	alerts, err := cache.GetOrCompute(ctx, s.cache, cache.ActiveAlertsKey(householdID), s.cache.ShortTTL(),
		func(ctx context.Context) (*[]domain.Alert, error) {
			list, err := s.repo.ActiveAlerts(ctx, householdID)
			if err != nil {
				return nil, err
			}
			if list == nil {
				list = []domain.Alert{}
			}
			return &list, nil
		})
	if err != nil {
		return nil, apperrors.Wrap(err, "active alerts")
	}
	return *alerts, nil
}

// Acknowledge marks an active alert as handled by user.
func (s *AlertService) Acknowledge(ctx context.Context, householdID, alertID, user string) (*domain.Alert, error) {
	alert, err := s.repo.GetAlert(ctx, householdID, alertID)
	if err != nil {
		return nil, apperrors.Wrap(err, "load alert")
	}
	if alert == nil {
		return nil, apperrors.NewNotFound("alert %s not found", alertID)
	}

	now := s.now().UTC()
	if err := alert.Acknowledge(user, now); err != nil {
		return nil, err
	}
	if err := s.repo.SaveAlert(ctx, alert); err != nil {
		return nil, apperrors.Wrap(err, "save alert")
	}

	s.cache.InvalidateAlerts(ctx)
	s.cache.InvalidateSystemStatus(ctx)
	publish(ctx, s.publisher, s.logger, domain.NewAlertChanged(alert, now))
	return alert, nil
}
