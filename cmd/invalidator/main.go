// Command invalidator consumes domain events from EventBridge and drops the
// cache entries they make stale. It lets writers in other services keep the
// API cache consistent.
package main

import (
	"context"
	"log"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"go.uber.org/zap"

	"homeguard-backend/internal/config"
	"homeguard-backend/internal/di"
)

var container *di.InvalidatorContainer

func init() {
	cfg, err := config.LoadFromEnv()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	container, _, err = di.InitializeInvalidator(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize invalidator: %v", err)
	}
}

// HandleRequest returns an error only for events it cannot decode, so that
// EventBridge retries and eventually dead-letters them.
func HandleRequest(ctx context.Context, event events.CloudWatchEvent) error {
	removed, err := container.Handler.HandleRaw(ctx, event.DetailType, event.Detail)
	if err != nil {
		container.Logger.Error("Failed to handle event",
			zap.String("event_id", event.ID),
			zap.String("detail_type", event.DetailType),
			zap.Error(err),
		)
		return err
	}
	container.Logger.Info("Cache invalidated",
		zap.String("event_id", event.ID),
		zap.String("detail_type", event.DetailType),
		zap.Int("removed", removed),
	)
	return nil
}

func main() {
	lambda.Start(HandleRequest)
}
