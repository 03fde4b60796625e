package di

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge"
	"go.uber.org/zap"

	"homeguard-backend/internal/application"
	"homeguard-backend/internal/config"
	"homeguard-backend/internal/infrastructure/cache"
	"homeguard-backend/internal/infrastructure/logging"
	"homeguard-backend/internal/infrastructure/observability"
	"homeguard-backend/internal/interfaces/http/rest"
	eventbus "homeguard-backend/internal/messaging/eventbridge"
	dynamorepo "homeguard-backend/internal/repository/dynamodb"
)

// Logging pairs the root logger with the level that config reloads adjust.
type Logging struct {
	Logger *zap.Logger
	Level  zap.AtomicLevel
}

func ProvideLogging(cfg *config.Config) (*Logging, func(), error) {
	logger, level, err := logging.New(logging.Options{
		Level:       cfg.Logging.Level,
		Format:      cfg.Logging.Format,
		Development: cfg.IsDevelopment(),
	})
	if err != nil {
		return nil, nil, err
	}
	logger = logger.With(zap.String("environment", string(cfg.Environment)))
	return &Logging{Logger: logger, Level: level}, func() { _ = logger.Sync() }, nil
}

func ProvideLogger(l *Logging) *zap.Logger {
	return l.Logger
}

// ProvideCollector always builds a collector; Metrics.Enabled only controls
// whether it is exposed over HTTP.
func ProvideCollector(cfg *config.Config) *observability.Collector {
	return observability.NewCollector(cfg.Metrics.Namespace)
}

func ProvideAWSConfig(ctx context.Context, cfg *config.Config) (aws.Config, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Database.Region))
	if err != nil {
		return aws.Config{}, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return awsCfg, nil
}

func ProvideDynamoDBClient(awsCfg aws.Config, cfg *config.Config) *dynamodb.Client {
	return dynamodb.NewFromConfig(awsCfg, func(o *dynamodb.Options) {
		if cfg.Database.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Database.Endpoint)
		}
	})
}

func ProvideEventBridgeClient(awsCfg aws.Config) *eventbridge.Client {
	return eventbridge.NewFromConfig(awsCfg)
}

func ProvideStore(client *dynamodb.Client, cfg *config.Config, collector *observability.Collector, logger *zap.Logger) *dynamorepo.Store {
	return dynamorepo.NewStore(client, cfg.Database.TableName, collector, logger)
}

func ProvideEventPublisher(client *eventbridge.Client, cfg *config.Config, collector *observability.Collector, logger *zap.Logger) application.EventPublisher {
	if !cfg.Events.Enabled {
		return eventbus.NopPublisher{}
	}
	return eventbus.NewPublisher(client, eventbus.Options{
		EventBusName: cfg.Events.EventBusName,
		Source:       cfg.Events.Source,
		BatchSize:    cfg.Events.BatchSize,
	}, collector, logger)
}

// ProvideCacheBackend builds the configured backend. The cleanup closes it.
func ProvideCacheBackend(cfg *config.Config, logger *zap.Logger) (cache.Backend, func(), error) {
	c := cfg.Cache
	switch c.Provider {
	case "memory":
		backend := cache.NewMemoryBackend(c.MaxItems, c.MaxMemory, logger.Named("cache.memory"))
		backend.StartCleanup(time.Minute)
		return backend, func() { _ = backend.Close() }, nil
	case "redis":
		backend := cache.NewRedisBackend(RedisOptions(cfg), logger.Named("cache.redis"))
		return backend, func() { _ = backend.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("unknown cache provider %q", c.Provider)
	}
}

// RedisOptions maps the cache configuration onto the Redis adapter options.
func RedisOptions(cfg *config.Config) cache.RedisOptions {
	r, b := cfg.Cache.Redis, cfg.Cache.Breaker
	return cache.RedisOptions{
		Addr:         r.Addr,
		Password:     r.Password,
		DB:           r.DB,
		PoolSize:     r.PoolSize,
		DialTimeout:  r.DialTimeout,
		ReadTimeout:  r.ReadTimeout,
		WriteTimeout: r.WriteTimeout,
		Breaker: cache.BreakerOptions{
			Enabled:             b.Enabled,
			MaxRequests:         b.MaxRequests,
			Interval:            b.Interval,
			Timeout:             b.Timeout,
			ConsecutiveFailures: b.ConsecutiveFailures,
		},
	}
}

func ProvideCacheService(backend cache.Backend, cfg *config.Config, collector *observability.Collector, logger *zap.Logger) *cache.Service {
	return cache.NewService(backend, cache.Options{
		KeyPrefix:  cfg.Cache.KeyPrefix,
		DefaultTTL: cfg.Cache.DefaultTTL,
		ShortTTL:   cfg.Cache.ShortTTL,
		LongTTL:    cfg.Cache.LongTTL,
	}, collector, logger)
}

func ProvideSWR(svc *cache.Service, cfg *config.Config) *cache.SWR {
	return cache.NewSWR(svc, cache.SWROptions{
		StaleTTL:           cfg.Cache.StaleTTL,
		RefreshLockTimeout: cfg.Cache.RefreshLockTimeout,
	})
}

func ReadThroughOptions(cfg *config.Config) cache.ReadThroughOptions {
	return cache.ReadThroughOptions{
		TTL:                cfg.Cache.DefaultTTL,
		StampedeProtection: cfg.Cache.StampedeProtection,
		LockTimeout:        cfg.Cache.LoadLockTimeout,
		PollInterval:       cfg.Cache.LoadPollInterval,
		MaxWait:            cfg.Cache.LoadMaxWait,
	}
}

func ProvideCameraService(store *dynamorepo.Store, svc *cache.Service, cfg *config.Config, publisher application.EventPublisher, logger *zap.Logger) *application.CameraService {
	return application.NewCameraService(store, svc, ReadThroughOptions(cfg), publisher, nil, logger)
}

func ProvideEventService(store *dynamorepo.Store, svc *cache.Service, swr *cache.SWR, publisher application.EventPublisher, logger *zap.Logger) *application.EventService {
	return application.NewEventService(store, store, svc, swr, publisher, nil, logger)
}

func ProvideAlertService(store *dynamorepo.Store, svc *cache.Service, publisher application.EventPublisher, logger *zap.Logger) *application.AlertService {
	return application.NewAlertService(store, svc, publisher, nil, logger)
}

func ProvideStatusService(store *dynamorepo.Store, svc *cache.Service, swr *cache.SWR) *application.StatusService {
	return application.NewStatusService(store, svc, swr, nil)
}

func ProvideInvalidationHandler(svc *cache.Service, logger *zap.Logger) *application.InvalidationHandler {
	return application.NewInvalidationHandler(svc, logger)
}

// ProvideWarmer builds the warmer with the startup warmers registered.
func ProvideWarmer(
	svc *cache.Service,
	cfg *config.Config,
	collector *observability.Collector,
	store *dynamorepo.Store,
	status *application.StatusService,
	cameras *application.CameraService,
	events *application.EventService,
) *cache.Warmer {
	w := cfg.Cache.Warming
	warmer := cache.NewWarmer(svc, cache.WarmerOptions{
		Enabled:        w.Enabled,
		Strategy:       w.Strategy,
		Timeout:        w.Timeout,
		MaxConcurrency: w.MaxConcurrency,
	}, collector)
	application.RegisterWarmers(warmer, store, status, cameras, events)
	return warmer
}

func ProvideHTTPHandler(
	cfg *config.Config,
	svc *cache.Service,
	cameras *application.CameraService,
	events *application.EventService,
	alerts *application.AlertService,
	status *application.StatusService,
	collector *observability.Collector,
	logger *zap.Logger,
) http.Handler {
	opts := rest.Options{
		ServiceName:    cfg.Tracing.ServiceName,
		AllowedOrigins: cfg.CORS.AllowedOrigins,
		CORSMaxAge:     cfg.CORS.MaxAge,
		MetricsPath:    cfg.Metrics.Path,
		Tracing:        cfg.Tracing.Enabled,
	}
	if cfg.Metrics.Enabled {
		opts.Collector = collector
	}
	return rest.NewRouter(rest.Services{
		Cameras: cameras,
		Events:  events,
		Alerts:  alerts,
		Status:  status,
		Cache:   svc,
	}, opts, logger).Setup()
}
