// Package di wires the application together with google/wire. wire.go holds
// the injector definitions; wire_gen.go is the generated code.
package di

import (
	"net/http"

	"go.uber.org/zap"

	"homeguard-backend/internal/application"
	"homeguard-backend/internal/config"
	"homeguard-backend/internal/infrastructure/cache"
	"homeguard-backend/internal/infrastructure/observability"
)

// Container holds the dependencies of the API process.
type Container struct {
	Config       *config.Config
	Logging      *Logging
	Logger       *zap.Logger
	Collector    *observability.Collector
	Cache        *cache.Service
	SWR          *cache.SWR
	Warmer       *cache.Warmer
	Cameras      *application.CameraService
	Events       *application.EventService
	Alerts       *application.AlertService
	Status       *application.StatusService
	Invalidation *application.InvalidationHandler
	HTTPHandler  http.Handler
}

// InvalidatorContainer holds the dependencies of the invalidation consumer.
type InvalidatorContainer struct {
	Logger  *zap.Logger
	Handler *application.InvalidationHandler
}
