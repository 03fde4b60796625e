package dynamodb

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"

	"homeguard-backend/internal/domain"
	apperrors "homeguard-backend/pkg/errors"
)

type alertItem struct {
	itemKeys
	domain.Alert
}

func alertSK(alertID string) string { return "ALERT#" + alertID }

func (s *Store) GetAlert(ctx context.Context, householdID, alertID string) (*domain.Alert, error) {
	var item alertItem
	found, err := s.get(ctx, "get_alert", householdPK(householdID), alertSK(alertID), &item)
	if err != nil || !found {
		return nil, err
	}
	return &item.Alert, nil
}

// SaveAlert writes a. Acknowledging an alert only succeeds while the stored
// alert is still active.
func (s *Store) SaveAlert(ctx context.Context, a *domain.Alert) error {
	var cond *expression.ConditionBuilder
	if a.Status == domain.AlertAcknowledged {
		b := expression.Name("status").Equal(expression.Value(string(domain.AlertActive)))
		cond = &b
	}
	return s.put(ctx, "save_alert", alertItem{
		itemKeys: itemKeys{PK: householdPK(a.HouseholdID), SK: alertSK(a.ID), EntityType: entityAlert},
		Alert:    *a,
	}, cond)
}

func (s *Store) ActiveAlerts(ctx context.Context, householdID string) ([]domain.Alert, error) {
	filter := expression.Name("status").Equal(expression.Value(string(domain.AlertActive)))
	input, err := buildQuery(
		expression.Key("PK").Equal(expression.Value(householdPK(householdID))).
			And(expression.Key("SK").BeginsWith("ALERT#")),
		&filter,
	)
	if err != nil {
		return nil, apperrors.NewInternal("active_alerts", err)
	}
	items, err := s.queryPages(ctx, "active_alerts", input, 0)
	if err != nil {
		return nil, err
	}
	alerts := make([]domain.Alert, 0, len(items))
	for _, raw := range items {
		var item alertItem
		if err := unmarshal(raw, &item); err != nil {
			return nil, apperrors.NewInternal("active_alerts: decode item", err)
		}
		alerts = append(alerts, item.Alert)
	}
	return alerts, nil
}
