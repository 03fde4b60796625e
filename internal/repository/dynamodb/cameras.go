package dynamodb

import (
	"context"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"

	"homeguard-backend/internal/domain"
	apperrors "homeguard-backend/pkg/errors"
)

type cameraItem struct {
	itemKeys
	domain.Camera
}

func cameraSK(cameraID string) string { return "CAMERA#" + cameraID }

func (s *Store) GetCamera(ctx context.Context, householdID, cameraID string) (*domain.Camera, error) {
	var item cameraItem
	found, err := s.get(ctx, "get_camera", householdPK(householdID), cameraSK(cameraID), &item)
	if err != nil || !found {
		return nil, err
	}
	return &item.Camera, nil
}

func (s *Store) ListCameras(ctx context.Context, householdID string) ([]domain.Camera, error) {
	input, err := buildQuery(
		expression.Key("PK").Equal(expression.Value(householdPK(householdID))).
			And(expression.Key("SK").BeginsWith("CAMERA#")),
		nil,
	)
	if err != nil {
		return nil, apperrors.NewInternal("list_cameras", err)
	}
	items, err := s.queryPages(ctx, "list_cameras", input, 0)
	if err != nil {
		return nil, err
	}
	cameras := make([]domain.Camera, 0, len(items))
	for _, raw := range items {
		var item cameraItem
		if err := unmarshal(raw, &item); err != nil {
			return nil, apperrors.NewInternal("list_cameras: decode item", err)
		}
		cameras = append(cameras, item.Camera)
	}
	return cameras, nil
}

// SaveCamera writes c. When expectedUpdatedAt is set the write only succeeds
// if the stored camera still carries that timestamp; otherwise it returns a
// conflict error.
func (s *Store) SaveCamera(ctx context.Context, c *domain.Camera, expectedUpdatedAt time.Time) error {
	var cond *expression.ConditionBuilder
	if !expectedUpdatedAt.IsZero() {
		b := expression.Name("updated_at").Equal(expression.Value(expectedUpdatedAt))
		cond = &b
	}
	return s.put(ctx, "save_camera", cameraItem{
		itemKeys: itemKeys{PK: householdPK(c.HouseholdID), SK: cameraSK(c.ID), EntityType: entityCamera},
		Camera:   *c,
	}, cond)
}
