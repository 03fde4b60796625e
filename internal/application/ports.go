// Package application implements the use cases behind the HTTP API. Reads go
// through the cache; writes persist first, then invalidate the affected
// cache entries, then publish a domain event.
package application

import (
	"context"
	"time"

	"homeguard-backend/internal/domain"
)

// CameraRepository persists cameras. Lookups that find nothing return nil
// and no error.
type CameraRepository interface {
	GetCamera(ctx context.Context, householdID, cameraID string) (*domain.Camera, error)
	ListCameras(ctx context.Context, householdID string) ([]domain.Camera, error)
	SaveCamera(ctx context.Context, c *domain.Camera, expectedUpdatedAt time.Time) error
}

type EventRepository interface {
	SaveEvent(ctx context.Context, e *domain.Event) error
	RecentEvents(ctx context.Context, householdID string, limit int) ([]domain.Event, error)
	EventsSince(ctx context.Context, householdID string, since time.Time) ([]domain.Event, error)
}

type AlertRepository interface {
	GetAlert(ctx context.Context, householdID, alertID string) (*domain.Alert, error)
	SaveAlert(ctx context.Context, a *domain.Alert) error
	ActiveAlerts(ctx context.Context, householdID string) ([]domain.Alert, error)
}

type HouseholdRepository interface {
	GetHousehold(ctx context.Context, householdID string) (*domain.Household, error)
	ListHouseholds(ctx context.Context) ([]domain.Household, error)
	SystemCounts(ctx context.Context) (*domain.SystemCounts, error)
}

// EventPublisher sends domain events to other services.
type EventPublisher interface {
	Publish(ctx context.Context, events ...domain.DomainEvent) error
}

// Clock returns the current time.
type Clock func() time.Time
