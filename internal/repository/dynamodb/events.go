package dynamodb

import (
	"context"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"

	"homeguard-backend/internal/domain"
	apperrors "homeguard-backend/pkg/errors"
)

// sortableTime keeps a fixed width so event sort keys order by time.
const sortableTime = "2006-01-02T15:04:05.000000000Z"

type eventItem struct {
	itemKeys
	domain.Event
}

func eventSK(occurredAt time.Time, eventID string) string {
	return "EVENT#" + occurredAt.UTC().Format(sortableTime) + "#" + eventID
}

func (s *Store) SaveEvent(ctx context.Context, e *domain.Event) error {
	cond := expression.Name("PK").AttributeNotExists()
	return s.put(ctx, "save_event", eventItem{
		itemKeys: itemKeys{PK: householdPK(e.HouseholdID), SK: eventSK(e.OccurredAt, e.ID), EntityType: entityEvent},
		Event:    *e,
	}, &cond)
}

// RecentEvents returns up to limit events, newest first.
func (s *Store) RecentEvents(ctx context.Context, householdID string, limit int) ([]domain.Event, error) {
	input, err := buildQuery(
		expression.Key("PK").Equal(expression.Value(householdPK(householdID))).
			And(expression.Key("SK").BeginsWith("EVENT#")),
		nil,
	)
	if err != nil {
		return nil, apperrors.NewInternal("recent_events", err)
	}
	input.ScanIndexForward = aws.Bool(false)
	if limit > 0 {
		input.Limit = aws.Int32(int32(limit))
	}
	return s.queryEvents(ctx, "recent_events", input, limit)
}

// EventsSince returns events that occurred at or after since, oldest first.
func (s *Store) EventsSince(ctx context.Context, householdID string, since time.Time) ([]domain.Event, error) {
	input, err := buildQuery(
		expression.Key("PK").Equal(expression.Value(householdPK(householdID))).
			And(expression.Key("SK").Between(
				expression.Value("EVENT#"+since.UTC().Format(sortableTime)),
				expression.Value("EVENT#~"),
			)),
		nil,
	)
	if err != nil {
		return nil, apperrors.NewInternal("events_since", err)
	}
	return s.queryEvents(ctx, "events_since", input, 0)
}

func (s *Store) queryEvents(ctx context.Context, op string, input *dynamodb.QueryInput, limit int) ([]domain.Event, error) {
	items, err := s.queryPages(ctx, op, input, limit)
	if err != nil {
		return nil, err
	}
	events := make([]domain.Event, 0, len(items))
	for _, raw := range items {
		var item eventItem
		if err := unmarshal(raw, &item); err != nil {
			return nil, apperrors.NewInternal(op+": decode item", err)
		}
		events = append(events, item.Event)
	}
	return events, nil
}
