//go:build wireinject
// +build wireinject

package di

import (
	"context"

	"github.com/google/wire"

	"homeguard-backend/internal/config"
)

var CoreSet = wire.NewSet(
	ProvideLogging,
	ProvideLogger,
	ProvideCollector,
	ProvideCacheBackend,
	ProvideCacheService,
)

var SuperSet = wire.NewSet(
	CoreSet,
	ProvideAWSConfig,
	ProvideDynamoDBClient,
	ProvideEventBridgeClient,
	ProvideStore,
	ProvideEventPublisher,
	ProvideSWR,
	ProvideCameraService,
	ProvideEventService,
	ProvideAlertService,
	ProvideStatusService,
	ProvideInvalidationHandler,
	ProvideWarmer,
	ProvideHTTPHandler,
	wire.Struct(new(Container), "*"),
)

// InitializeContainer creates a fully wired container.
func InitializeContainer(ctx context.Context, cfg *config.Config) (*Container, func(), error) {
	wire.Build(SuperSet)
	return nil, nil, nil
}

// InitializeInvalidator wires only what the invalidation consumer needs.
func InitializeInvalidator(cfg *config.Config) (*InvalidatorContainer, func(), error) {
	wire.Build(
		CoreSet,
		ProvideInvalidationHandler,
		wire.Struct(new(InvalidatorContainer), "*"),
	)
	return nil, nil, nil
}
