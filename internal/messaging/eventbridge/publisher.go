// Package eventbridge publishes domain events to an EventBridge bus, where
// the invalidator function and other consumers pick them up.
package eventbridge

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge/types"
	"go.uber.org/zap"

	"homeguard-backend/internal/domain"
)

// maxBatchSize is the PutEvents entry limit.
const maxBatchSize = 10

// API is the subset of the EventBridge client used by Publisher.
type API interface {
	PutEvents(ctx context.Context, params *eventbridge.PutEventsInput, optFns ...func(*eventbridge.Options)) (*eventbridge.PutEventsOutput, error)
}

// Metrics records publish outcomes per detail type.
type Metrics interface {
	RecordEventPublished(detailType string, err error)
}

type Options struct {
	EventBusName string
	Source       string
	// BatchSize is capped at 10.
	BatchSize int
}

type Publisher struct {
	client  API
	opts    Options
	metrics Metrics
	logger  *zap.Logger
}

// NewPublisher creates a Publisher. metrics may be nil.
func NewPublisher(client API, opts Options, metrics Metrics, logger *zap.Logger) *Publisher {
	if opts.BatchSize <= 0 || opts.BatchSize > maxBatchSize {
		opts.BatchSize = maxBatchSize
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Publisher{
		client:  client,
		opts:    opts,
		metrics: metrics,
		logger:  logger.Named("eventbridge"),
	}
}

// Publish sends events in batches. It stops at the first batch that fails
// and returns its error.
func (p *Publisher) Publish(ctx context.Context, events ...domain.DomainEvent) error {
	for start := 0; start < len(events); start += p.opts.BatchSize {
		end := start + p.opts.BatchSize
		if end > len(events) {
			end = len(events)
		}
		if err := p.publishBatch(ctx, events[start:end]); err != nil {
			return err
		}
	}
	return nil
}

func (p *Publisher) publishBatch(ctx context.Context, events []domain.DomainEvent) error {
	entries := make([]types.PutEventsRequestEntry, 0, len(events))
	sent := make([]domain.DomainEvent, 0, len(events))
	for _, event := range events {
		detail, err := json.Marshal(event)
		if err != nil {
			p.logger.Error("Failed to marshal event",
				zap.String("event_type", event.EventType()),
				zap.Error(err),
			)
			p.record(event.EventType(), err)
			continue
		}
		entries = append(entries, types.PutEventsRequestEntry{
			EventBusName: aws.String(p.opts.EventBusName),
			Source:       aws.String(p.opts.Source),
			DetailType:   aws.String(event.EventType()),
			Detail:       aws.String(string(detail)),
			Time:         aws.Time(event.Timestamp()),
			Resources:    []string{fmt.Sprintf("homeguard:household/%s", event.Household())},
		})
		sent = append(sent, event)
	}
	if len(entries) == 0 {
		return nil
	}

	out, err := p.client.PutEvents(ctx, &eventbridge.PutEventsInput{Entries: entries})
	if err != nil {
		for _, event := range sent {
			p.record(event.EventType(), err)
		}
		return fmt.Errorf("failed to publish events to EventBridge: %w", err)
	}

	for i, event := range sent {
		var entryErr error
		if i < len(out.Entries) && out.Entries[i].ErrorCode != nil {
			entryErr = fmt.Errorf("%s: %s", aws.ToString(out.Entries[i].ErrorCode), aws.ToString(out.Entries[i].ErrorMessage))
			p.logger.Error("Failed to publish event",
				zap.String("event_type", event.EventType()),
				zap.String("aggregate_id", event.AggregateID()),
				zap.Error(entryErr),
			)
		}
		p.record(event.EventType(), entryErr)
	}
	if out.FailedEntryCount > 0 {
		return fmt.Errorf("%d events failed to publish", out.FailedEntryCount)
	}

	p.logger.Debug("Events published to EventBridge",
		zap.Int("count", len(entries)),
		zap.String("event_bus", p.opts.EventBusName),
	)
	return nil
}

func (p *Publisher) record(detailType string, err error) {
	if p.metrics != nil {
		p.metrics.RecordEventPublished(detailType, err)
	}
}

// NopPublisher drops events. It is used when publishing is disabled.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, ...domain.DomainEvent) error { return nil }
