package application

import (
	"context"
	"time"

	"go.uber.org/zap"

	"homeguard-backend/internal/domain"
	"homeguard-backend/internal/infrastructure/cache"
	apperrors "homeguard-backend/pkg/errors"
)

// CameraService serves camera metadata. Single cameras are read through the
// cache; lists use cache-aside with the short TTL because camera status
// changes often.
type CameraService struct {
	repo      CameraRepository
	cache     *cache.Service
	byID      *cache.ReadThrough[domain.Camera]
	publisher EventPublisher
	now       Clock
	logger    *zap.Logger
}

func NewCameraService(
	repo CameraRepository,
	svc *cache.Service,
	readThrough cache.ReadThroughOptions,
	publisher EventPublisher,
	now Clock,
	logger *zap.Logger,
) *CameraService {
	if now == nil {
		now = time.Now
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &CameraService{
		repo:      repo,
		cache:     svc,
		publisher: publisher,
		now:       now,
		logger:    logger.Named("cameras"),
	}
	// Read-through ids are "{household}:{camera}", which yields CameraKey.
	s.byID = cache.NewReadThrough(svc, "cameras", s.loadCamera, readThrough)
	return s
}

func cameraRef(householdID, id string) string { return householdID + ":" + id }

func (s *CameraService) loadCamera(ctx context.Context, id string) (*domain.Camera, error) {
	householdID, cameraID, ok := splitPair(id)
	if !ok {
		return nil, nil
	}
	return s.repo.GetCamera(ctx, householdID, cameraID)
}

// Get returns one camera or a not-found error.
func (s *CameraService) Get(ctx context.Context, householdID, id string) (*domain.Camera, error) {
	result, err := s.byID.Get(ctx, cameraRef(householdID, id))
	if err != nil {
		return nil, apperrors.Wrap(err, "get camera")
	}
	if result.Value == nil {
		return nil, apperrors.NewNotFound("camera %s not found", id)
	}
	return result.Value, nil
}

func (s *CameraService) List(ctx context.Context, householdID string) ([]domain.Camera, error) {
	cameras, err := cache.GetOrCompute(ctx, s.cache, cache.CameraListKey(householdID), s.cache.ShortTTL(),
		func(ctx context.Context) (*[]domain.Camera, error) {
			list, err := s.repo.ListCameras(ctx, householdID)
			if err != nil {
				return nil, err
			}
			if list == nil {
				list = []domain.Camera{}
			}
			return &list, nil
		})
	if err != nil {
		return nil, apperrors.Wrap(err, "list cameras")
	}
	return *cameras, nil
}

// Update applies a partial update. The camera is read from the repository,
// never from the cache, so the conditional write compares against the
// stored version.
func (s *CameraService) Update(ctx context.Context, householdID, id string, u domain.CameraUpdate) (*domain.Camera, error) {
	cam, err := s.repo.GetCamera(ctx, householdID, id)
	if err != nil {
		return nil, apperrors.Wrap(err, "load camera")
	}
	if cam == nil {
		return nil, apperrors.NewNotFound("camera %s not found", id)
	}

	previous := cam.UpdatedAt
	if err := cam.Apply(u, s.now().UTC()); err != nil {
		return nil, err
	}
	if err := s.repo.SaveCamera(ctx, cam, previous); err != nil {
		return nil, apperrors.Wrap(err, "save camera")
	}

	s.cache.InvalidateCameras(ctx)
	if u.Status != nil {
		s.cache.InvalidateSystemStatus(ctx)
	}
	publish(ctx, s.publisher, s.logger, domain.NewCameraUpdated(cam))

	s.logger.Info("Camera updated",
		zap.String("household_id", householdID),
		zap.String("camera_id", id),
	)
	return cam, nil
}
