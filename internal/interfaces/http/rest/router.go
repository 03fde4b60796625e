// Package rest exposes the application services over HTTP.
package rest

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"homeguard-backend/internal/domain"
	"homeguard-backend/internal/infrastructure/observability"
)

type CameraService interface {
	Get(ctx context.Context, householdID, id string) (*domain.Camera, error)
	List(ctx context.Context, householdID string) ([]domain.Camera, error)
	Update(ctx context.Context, householdID, id string, u domain.CameraUpdate) (*domain.Camera, error)
}

type EventService interface {
	Create(ctx context.Context, e domain.Event) (*domain.Event, *domain.Alert, error)
	Recent(ctx context.Context, householdID string, limit int) ([]domain.Event, error)
	Stats(ctx context.Context, householdID string) (*domain.EventStats, error)
}

type AlertService interface {
	Active(ctx context.Context, householdID string) ([]domain.Alert, error)
	Acknowledge(ctx context.Context, householdID, alertID, user string) (*domain.Alert, error)
}

type StatusService interface {
	Status(ctx context.Context) (*domain.SystemStatus, error)
}

// HealthChecker reports whether a dependency is reachable.
type HealthChecker interface {
	Healthy(ctx context.Context) bool
}

// Services groups the use cases served by the router.
type Services struct {
	Cameras CameraService
	Events  EventService
	Alerts  AlertService
	Status  StatusService
	Cache   HealthChecker
}

type Options struct {
	ServiceName    string
	AllowedOrigins []string
	CORSMaxAge     int
	// Collector is optional; without it /metrics is not served.
	Collector   *observability.Collector
	MetricsPath string
	Tracing     bool
}

type Router struct {
	services Services
	opts     Options
	logger   *zap.Logger
}

func NewRouter(services Services, opts Options, logger *zap.Logger) *Router {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.MetricsPath == "" {
		opts.MetricsPath = "/metrics"
	}
	return &Router{services: services, opts: opts, logger: logger.Named("http")}
}

// Setup configures all routes and middleware.
func (rt *Router) Setup() http.Handler {
	router := chi.NewRouter()

	router.Use(chimiddleware.RequestID)
	router.Use(chimiddleware.RealIP)
	router.Use(chimiddleware.Recoverer)
	router.Use(RequestLogger(rt.logger))
	if rt.opts.Tracing {
		router.Use(observability.TracingMiddleware(rt.opts.ServiceName))
	}
	if rt.opts.Collector != nil {
		router.Use(observability.MetricsMiddleware(rt.opts.Collector))
	}
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins: rt.opts.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "PATCH", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders: []string{"X-Request-ID"},
		MaxAge:         rt.opts.CORSMaxAge,
	}))

	router.Get("/health", rt.healthCheck)
	if rt.opts.Collector != nil {
		router.Method(http.MethodGet, rt.opts.MetricsPath, rt.opts.Collector.Handler())
	}

	h := &handlers{services: rt.services, logger: rt.logger}
	router.Route("/api", func(r chi.Router) {
		r.Get("/system/status", h.systemStatus)

		r.Route("/households/{householdID}", func(r chi.Router) {
			r.Route("/cameras", func(r chi.Router) {
				r.Get("/", h.listCameras)
				r.Get("/{cameraID}", h.getCamera)
				r.Patch("/{cameraID}", h.updateCamera)
			})
			r.Route("/events", func(r chi.Router) {
				r.Get("/", h.recentEvents)
				r.Post("/", h.createEvent)
				r.Get("/stats", h.eventStats)
			})
			r.Route("/alerts", func(r chi.Router) {
				r.Get("/", h.activeAlerts)
				r.Post("/{alertID}/acknowledge", h.acknowledgeAlert)
			})
		})
	})

	return router
}

// healthCheck reports the cache as degraded rather than failing: the API
// keeps serving from the database when Redis is down.
func (rt *Router) healthCheck(w http.ResponseWriter, r *http.Request) {
	cacheStatus := "up"
	if rt.services.Cache != nil && !rt.services.Cache.Healthy(r.Context()) {
		cacheStatus = "down"
	}
	status := "healthy"
	if cacheStatus == "down" {
		status = "degraded"
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": status, "cache": cacheStatus})
}
