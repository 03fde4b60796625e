package dynamodb

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"

	"homeguard-backend/internal/domain"
	apperrors "homeguard-backend/pkg/errors"
)

const householdSK = "PROFILE"

type householdItem struct {
	itemKeys
	domain.Household
}

func (s *Store) GetHousehold(ctx context.Context, householdID string) (*domain.Household, error) {
	var item householdItem
	found, err := s.get(ctx, "get_household", householdPK(householdID), householdSK, &item)
	if err != nil || !found {
		return nil, err
	}
	return &item.Household, nil
}

func (s *Store) SaveHousehold(ctx context.Context, h *domain.Household) error {
	return s.put(ctx, "save_household", householdItem{
		itemKeys:  itemKeys{PK: householdPK(h.ID), SK: householdSK, EntityType: entityHousehold},
		Household: *h,
	}, nil)
}

// ListHouseholds returns every household through the entity type index.
func (s *Store) ListHouseholds(ctx context.Context) ([]domain.Household, error) {
	input, err := buildQuery(expression.Key("EntityType").Equal(expression.Value(entityHousehold)), nil)
	if err != nil {
		return nil, apperrors.NewInternal("list_households", err)
	}
	input.IndexName = aws.String(EntityTypeIndex)

	items, err := s.queryPages(ctx, "list_households", input, 0)
	if err != nil {
		return nil, err
	}
	households := make([]domain.Household, 0, len(items))
	for _, raw := range items {
		var item householdItem
		if err := unmarshal(raw, &item); err != nil {
			return nil, apperrors.NewInternal("list_households: decode item", err)
		}
		households = append(households, item.Household)
	}
	return households, nil
}

// SystemCounts counts households, cameras by status and active alerts.
func (s *Store) SystemCounts(ctx context.Context) (*domain.SystemCounts, error) {
	countType := func(entityType string, filter *expression.ConditionBuilder) (int, error) {
		input, err := buildQuery(expression.Key("EntityType").Equal(expression.Value(entityType)), filter)
		if err != nil {
			return 0, apperrors.NewInternal("count_"+entityType, err)
		}
		input.IndexName = aws.String(EntityTypeIndex)
		return s.count(ctx, "count_"+entityType, input)
	}
	statusIs := func(status string) *expression.ConditionBuilder {
		c := expression.Name("status").Equal(expression.Value(status))
		return &c
	}

	var counts domain.SystemCounts
	var err error
	if counts.Households, err = countType(entityHousehold, nil); err != nil {
		return nil, err
	}
	if counts.CamerasOnline, err = countType(entityCamera, statusIs(string(domain.CameraOnline))); err != nil {
		return nil, err
	}
	if counts.CamerasOffline, err = countType(entityCamera, statusIs(string(domain.CameraOffline))); err != nil {
		return nil, err
	}
	if counts.ActiveAlerts, err = countType(entityAlert, statusIs(string(domain.AlertActive))); err != nil {
		return nil, err
	}
	return &counts, nil
}
