package application

import (
	"context"

	"homeguard-backend/internal/infrastructure/cache"
)

// Warmer names.
const (
	WarmSystemStatus = "system_status"
	WarmCameras      = "cameras"
	WarmEventStats   = "event_stats"
)

// RegisterWarmers registers the startup warmers: the system status, every
// household's camera list and every household's event statistics.
func RegisterWarmers(w *cache.Warmer, households HouseholdRepository, status *StatusService, cameras *CameraService, events *EventService) {
	w.Register(WarmSystemStatus, func(ctx context.Context) (int, error) {
		if _, err := status.Status(ctx); err != nil {
			return 0, err
		}
		return 1, nil
	})
	w.Register(WarmCameras, forEachHousehold(households, func(ctx context.Context, householdID string) error {
		_, err := cameras.List(ctx, householdID)
		return err
	}))
	w.Register(WarmEventStats, forEachHousehold(households, func(ctx context.Context, householdID string) error {
		_, err := events.Stats(ctx, householdID)
		return err
	}))
}

// forEachHousehold runs fn for each household and counts the successes. It
// stops at the first error.
func forEachHousehold(households HouseholdRepository, fn func(ctx context.Context, householdID string) error) cache.WarmFunc {
	return func(ctx context.Context) (int, error) {
		list, err := households.ListHouseholds(ctx)
		if err != nil {
			return 0, err
		}
		warmed := 0
		for _, h := range list {
			if err := ctx.Err(); err != nil {
				return warmed, err
			}
			if err := fn(ctx, h.ID); err != nil {
				return warmed, err
			}
			warmed++
		}
		return warmed, nil
	}
}
