// Package dynamodb stores households, cameras, events and alerts in a single
// DynamoDB table. Lookups that find nothing return a nil entity and a nil
// error so that callers, and the cache in front of them, can tell absence
// apart from failure.
package dynamodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/smithy-go"
	"go.uber.org/zap"

	apperrors "homeguard-backend/pkg/errors"
)

// EntityTypeIndex is the GSI keyed on EntityType, used for fleet-wide
// listing and counting.
const EntityTypeIndex = "EntityTypeIndex"

const (
	entityHousehold = "household"
	entityCamera    = "camera"
	entityEvent     = "event"
	entityAlert     = "alert"
)

// API is the subset of the DynamoDB client used by Store.
type API interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
}

// Metrics records repository calls.
type Metrics interface {
	RecordDBOperation(operation string, duration time.Duration, err error)
}

type nopMetrics struct{}

func (nopMetrics) RecordDBOperation(string, time.Duration, error) {}

// Store implements the household, camera, event and alert repositories.
type Store struct {
	client  API
	table   string
	metrics Metrics
	logger  *zap.Logger
}

// NewStore creates a Store over table. metrics may be nil.
func NewStore(client API, table string, metrics Metrics, logger *zap.Logger) *Store {
	if metrics == nil {
		metrics = nopMetrics{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		client:  client,
		table:   table,
		metrics: metrics,
		logger:  logger.Named("dynamodb"),
	}
}

// itemKeys are the key attributes stored on every item.
type itemKeys struct {
	PK         string `json:"PK"`
	SK         string `json:"SK"`
	EntityType string `json:"EntityType"`
}

func householdPK(householdID string) string { return "HOUSEHOLD#" + householdID }

func primaryKey(pk, sk string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK": &types.AttributeValueMemberS{Value: pk},
		"SK": &types.AttributeValueMemberS{Value: sk},
	}
}

func useJSONTags(o *attributevalue.EncoderOptions) { o.TagKey = "json" }
func decodeJSONTags(o *attributevalue.DecoderOptions) { o.TagKey = "json" }

func marshal(v any) (map[string]types.AttributeValue, error) {
	return attributevalue.MarshalMapWithOptions(v, useJSONTags)
}

func unmarshal(item map[string]types.AttributeValue, out any) error {
	return attributevalue.UnmarshalMapWithOptions(item, out, decodeJSONTags)
}

// observe records the outcome of one call.
func (s *Store) observe(op string, start time.Time, err error) {
	s.metrics.RecordDBOperation(op, time.Since(start), err)
	if err != nil {
		s.logger.Warn("DynamoDB operation failed", zap.String("operation", op), zap.Error(err))
	}
}

// get loads one item into out and reports whether it existed.
func (s *Store) get(ctx context.Context, op, pk, sk string, out any) (found bool, err error) {
	start := time.Now()
	defer func() { s.observe(op, start, err) }()

	result, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.table),
		Key:       primaryKey(pk, sk),
	})
	if err != nil {
		return false, apperrors.NewInternal(op, err)
	}
	if len(result.Item) == 0 {
		return false, nil
	}
	if err := unmarshal(result.Item, out); err != nil {
		return false, apperrors.NewInternal(op+": decode item", err)
	}
	return true, nil
}

// put writes v. cond, when set, must hold for the write to happen.
func (s *Store) put(ctx context.Context, op string, v any, cond *expression.ConditionBuilder) (err error) {
	start := time.Now()
	defer func() { s.observe(op, start, err) }()

	item, err := marshal(v)
	if err != nil {
		return apperrors.NewInternal(op+": encode item", err)
	}
	input := &dynamodb.PutItemInput{
		TableName: aws.String(s.table),
		Item:      item,
	}
	if cond != nil {
		expr, err := expression.NewBuilder().WithCondition(*cond).Build()
		if err != nil {
			return apperrors.NewInternal(op+": build expression", err)
		}
		input.ConditionExpression = expr.Condition()
		input.ExpressionAttributeNames = expr.Names()
		input.ExpressionAttributeValues = expr.Values()
	}

	if _, err := s.client.PutItem(ctx, input); err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return apperrors.NewConflict("%s: item changed concurrently", op)
		}
		return apperrors.NewInternal(op, err)
	}
	return nil
}

// queryPages runs a query, following pagination until limit items were
// collected (limit <= 0 means all).
func (s *Store) queryPages(ctx context.Context, op string, input *dynamodb.QueryInput, limit int) (items []map[string]types.AttributeValue, err error) {
	start := time.Now()
	defer func() { s.observe(op, start, err) }()

	input.TableName = aws.String(s.table)
	for {
		out, err := s.client.Query(ctx, input)
		if err != nil {
			return nil, apperrors.NewInternal(op, describe(err))
		}
		items = append(items, out.Items...)
		if limit > 0 && len(items) >= limit {
			return items[:limit], nil
		}
		if len(out.LastEvaluatedKey) == 0 {
			return items, nil
		}
		input.ExclusiveStartKey = out.LastEvaluatedKey
	}
}

// count runs a COUNT query over all pages.
func (s *Store) count(ctx context.Context, op string, input *dynamodb.QueryInput) (total int, err error) {
	start := time.Now()
	defer func() { s.observe(op, start, err) }()

	input.TableName = aws.String(s.table)
	input.Select = types.SelectCount
	for {
		out, err := s.client.Query(ctx, input)
		if err != nil {
			return 0, apperrors.NewInternal(op, describe(err))
		}
		total += int(out.Count)
		if len(out.LastEvaluatedKey) == 0 {
			return total, nil
		}
		input.ExclusiveStartKey = out.LastEvaluatedKey
	}
}

func buildQuery(key expression.KeyConditionBuilder, filter *expression.ConditionBuilder) (*dynamodb.QueryInput, error) {
	b := expression.NewBuilder().WithKeyCondition(key)
	if filter != nil {
		b = b.WithFilter(*filter)
	}
	expr, err := b.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build expression: %w", err)
	}
	return &dynamodb.QueryInput{
		KeyConditionExpression:    expr.KeyCondition(),
		FilterExpression:          expr.Filter(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	}, nil
}

// describe adds the AWS error code to err's message when there is one.
func describe(err error) error {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return fmt.Errorf("%s: %w", apiErr.ErrorCode(), err)
	}
	return err
}
