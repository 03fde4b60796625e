package application

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/mock"
	"go.uber.org/zap"

	"homeguard-backend/internal/domain"
	"homeguard-backend/internal/infrastructure/cache"
)

var testNow = time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC)

func fixedClock() time.Time { return testNow }

type testCache struct {
	svc *cache.Service
	swr *cache.SWR
	mr  *miniredis.Miniredis
}

func newTestCache(t *testing.T) testCache {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	backend := cache.NewRedisBackendFromClient(client, cache.RedisOptions{}, zap.NewNop())
	t.Cleanup(func() { _ = backend.Close() })

	svc := cache.NewService(backend, cache.Options{KeyPrefix: "test"}, nil, zap.NewNop())
	swr := cache.NewSWR(svc, cache.SWROptions{})
	t.Cleanup(swr.Wait)
	return testCache{svc: svc, swr: swr, mr: mr}
}

func (c testCache) has(logical string) bool {
	return c.mr.Exists("test:cache:" + logical)
}

type mockCameraRepo struct{ mock.Mock }

func (m *mockCameraRepo) GetCamera(ctx context.Context, householdID, cameraID string) (*domain.Camera, error) {
	args := m.Called(ctx, householdID, cameraID)
	c, _ := args.Get(0).(*domain.Camera)
	return c, args.Error(1)
}

func (m *mockCameraRepo) ListCameras(ctx context.Context, householdID string) ([]domain.Camera, error) {
	args := m.Called(ctx, householdID)
	c, _ := args.Get(0).([]domain.Camera)
	return c, args.Error(1)
}

func (m *mockCameraRepo) SaveCamera(ctx context.Context, c *domain.Camera, expectedUpdatedAt time.Time) error {
	return m.Called(ctx, c, expectedUpdatedAt).Error(0)
}

type mockEventRepo struct{ mock.Mock }

func (m *mockEventRepo) SaveEvent(ctx context.Context, e *domain.Event) error {
	return m.Called(ctx, e).Error(0)
}

func (m *mockEventRepo) RecentEvents(ctx context.Context, householdID string, limit int) ([]domain.Event, error) {
	args := m.Called(ctx, householdID, limit)
	e, _ := args.Get(0).([]domain.Event)
	return e, args.Error(1)
}

func (m *mockEventRepo) EventsSince(ctx context.Context, householdID string, since time.Time) ([]domain.Event, error) {
	args := m.Called(ctx, householdID, since)
	e, _ := args.Get(0).([]domain.Event)
	return e, args.Error(1)
}

type mockAlertRepo struct{ mock.Mock }

func (m *mockAlertRepo) GetAlert(ctx context.Context, householdID, alertID string) (*domain.Alert, error) {
	args := m.Called(ctx, householdID, alertID)
	a, _ := args.Get(0).(*domain.Alert)
	return a, args.Error(1)
}

func (m *mockAlertRepo) SaveAlert(ctx context.Context, a *domain.Alert) error {
	return m.Called(ctx, a).Error(0)
}

func (m *mockAlertRepo) ActiveAlerts(ctx context.Context, householdID string) ([]domain.Alert, error) {
	args := m.Called(ctx, householdID)
	a, _ := args.Get(0).([]domain.Alert)
	return a, args.Error(1)
}

type mockHouseholdRepo struct{ mock.Mock }

func (m *mockHouseholdRepo) GetHousehold(ctx context.Context, householdID string) (*domain.Household, error) {
	args := m.Called(ctx, householdID)
	h, _ := args.Get(0).(*domain.Household)
	return h, args.Error(1)
}

func (m *mockHouseholdRepo) ListHouseholds(ctx context.Context) ([]domain.Household, error) {
	args := m.Called(ctx)
	h, _ := args.Get(0).([]domain.Household)
	return h, args.Error(1)
}

func (m *mockHouseholdRepo) SystemCounts(ctx context.Context) (*domain.SystemCounts, error) {
	args := m.Called(ctx)
	c, _ := args.Get(0).(*domain.SystemCounts)
	return c, args.Error(1)
}

type mockPublisher struct{ mock.Mock }

func (m *mockPublisher) Publish(ctx context.Context, events ...domain.DomainEvent) error {
	return m.Called(ctx, events).Error(0)
}

// published returns the event types of every Publish call, in order.
func (m *mockPublisher) published() []string {
	var types []string
	for _, call := range m.Calls {
		for _, e := range call.Arguments.Get(1).([]domain.DomainEvent) {
			types = append(types, e.EventType())
		}
	}
	return types
}

func storedCamera() *domain.Camera {
	return &domain.Camera{
		HouseholdID: "h1",
		ID:          "c1",
		Name:        "Driveway",
		Location:    "front",
		Status:      domain.CameraOnline,
		LastSeenAt:  testNow.Add(-time.Minute),
		UpdatedAt:   testNow.Add(-time.Hour),
	}
}
