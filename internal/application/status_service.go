package application

import (
	"context"
	"time"

	"homeguard-backend/internal/domain"
	"homeguard-backend/internal/infrastructure/cache"
	apperrors "homeguard-backend/pkg/errors"
)

// StatusService builds the fleet-wide status shown on the dashboard. It is
// the most expensive read in the API, so it is served stale-while-revalidate.
type StatusService struct {
	households HouseholdRepository
	cache      *cache.Service
	swr        *cache.SWR
	now        Clock
}

func NewStatusService(households HouseholdRepository, svc *cache.Service, swr *cache.SWR, now Clock) *StatusService {
	if now == nil {
		now = time.Now
	}
	return &StatusService{households: households, cache: svc, swr: swr, now: now}
}

func (s *StatusService) Status(ctx context.Context) (*domain.SystemStatus, error) {
	status, err := cache.GetOrSetSWR(ctx, s.swr, cache.SystemStatusKey, s.compute, s.cache.ShortTTL(), 0)
	if err != nil {
		return nil, apperrors.Wrap(err, "system status")
	}
	return status, nil
}

func (s *StatusService) compute(ctx context.Context) (*domain.SystemStatus, error) {
	counts, err := s.households.SystemCounts(ctx)
	if err != nil {
		return nil, err
	}
	cacheHealthy := s.cache.Healthy(ctx)
	return &domain.SystemStatus{
		SystemCounts: *counts,
		CacheHealthy: cacheHealthy,
		Healthy:      cacheHealthy,
		GeneratedAt:  s.now().UTC(),
	}, nil
}
