package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const tracerName = "homeguard-backend/cache"

// Options holds the settings a Service is constructed with. They are read
// once; a config reload builds a new Service.
type Options struct {
	KeyPrefix  string
	DefaultTTL time.Duration
	ShortTTL   time.Duration
	LongTTL    time.Duration
}

// DefaultOptions returns the TTLs used when configuration leaves them empty.
func DefaultOptions() Options {
	return Options{
		KeyPrefix:  "homeguard",
		DefaultTTL: 5 * time.Minute,
		ShortTTL:   30 * time.Second,
		LongTTL:    time.Hour,
	}
}

// Factory computes a value on a cache miss. A nil result means "nothing to
// cache" and is returned to the caller without being stored.
type Factory[T any] func(ctx context.Context) (*T, error)

// Service is the cache-aside layer. Backend failures are logged and turned
// into misses or false results; they never reach the caller as errors.
type Service struct {
	backend Backend
	keys    Keyspace
	opts    Options
	metrics *safeRecorder
	logger  *zap.Logger
	tracer  trace.Tracer
}

// NewService builds a Service over backend.
func NewService(backend Backend, opts Options, recorder Recorder, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	defaults := DefaultOptions()
	if opts.DefaultTTL <= 0 {
		opts.DefaultTTL = defaults.DefaultTTL
	}
	if opts.ShortTTL <= 0 {
		opts.ShortTTL = defaults.ShortTTL
	}
	if opts.LongTTL <= 0 {
		opts.LongTTL = defaults.LongTTL
	}
	logger = logger.Named("cache")
	return &Service{
		backend: backend,
		keys:    NewKeyspace(opts.KeyPrefix),
		opts:    opts,
		metrics: newSafeRecorder(recorder, logger),
		logger:  logger,
		tracer:  otel.Tracer(tracerName),
	}
}

func (s *Service) DefaultTTL() time.Duration { return s.opts.DefaultTTL }
func (s *Service) ShortTTL() time.Duration   { return s.opts.ShortTTL }
func (s *Service) LongTTL() time.Duration    { return s.opts.LongTTL }

// Keyspace returns the namespace used for backend keys.
func (s *Service) Keyspace() Keyspace { return s.keys }

// Get decodes the cached value for key into dest and reports whether it was
// found. Backend errors and undecodable payloads count as misses.
func (s *Service) Get(ctx context.Context, key string, dest any) bool {
	cacheType := CacheType(key)
	data, found, err := s.backend.Get(ctx, s.keys.Key(key))
	if err != nil {
		s.logFailure("get", key, err)
		s.metrics.miss(cacheType)
		return false
	}
	if !found {
		s.metrics.miss(cacheType)
		return false
	}
	if err := json.Unmarshal(data, dest); err != nil {
		s.logger.Warn("Discarding undecodable cache entry",
			zap.String("key", key),
			zap.Error(err),
		)
		s.metrics.miss(cacheType)
		return false
	}
	s.metrics.hit(cacheType)
	return true
}

// Set stores value under key. A ttl of zero uses the default TTL.
func (s *Service) Set(ctx context.Context, key string, value any, ttl time.Duration) bool {
	data, err := json.Marshal(value)
	if err != nil {
		s.logger.Error("Failed to encode cache value",
			zap.String("key", key),
			zap.Error(err),
		)
		return false
	}
	if err := s.backend.Set(ctx, s.keys.Key(key), data, s.ttl(ttl)); err != nil {
		s.logFailure("set", key, err)
		return false
	}
	return true
}

// GetOrCompute returns the cached value for key or computes, stores and
// returns it. Concurrent misses may all run factory; use ReadThrough when
// that matters. Factory errors are returned unchanged.
func GetOrCompute[T any](ctx context.Context, s *Service, key string, ttl time.Duration, factory Factory[T]) (*T, error) {
	ctx, span := s.tracer.Start(ctx, "cache.get_or_compute",
		trace.WithAttributes(attribute.String("cache.key", key)),
	)
	defer span.End()

	var cached T
	if s.Get(ctx, key, &cached) {
		span.SetAttributes(attribute.Bool("cache.hit", true))
		return &cached, nil
	}
	span.SetAttributes(attribute.Bool("cache.hit", false))

	value, err := factory(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "factory failed")
		return nil, err
	}
	if value == nil {
		return nil, nil
	}
	s.Set(ctx, key, value, ttl)
	return value, nil
}

// Exists reports whether key is cached. Backend errors report false.
func (s *Service) Exists(ctx context.Context, key string) bool {
	ok, err := s.backend.Exists(ctx, s.keys.Key(key))
	if err != nil {
		s.logFailure("exists", key, err)
		return false
	}
	return ok
}

// Touch gives an existing entry a new TTL without rewriting it.
func (s *Service) Touch(ctx context.Context, key string, ttl time.Duration) bool {
	ok, err := s.backend.Expire(ctx, s.keys.Key(key), s.ttl(ttl))
	if err != nil {
		s.logFailure("expire", key, err)
		return false
	}
	return ok
}

// Invalidate deletes key. It returns false when the key was absent or the
// backend could not be reached.
func (s *Service) Invalidate(ctx context.Context, key string) bool {
	n, err := s.backend.Delete(ctx, s.keys.Key(key))
	if err != nil {
		s.logFailure("delete", key, err)
		return false
	}
	if n > 0 {
		s.metrics.invalidation(CacheType(key), ReasonManual)
	}
	return n > 0
}

// InvalidatePattern deletes every key matching the glob pattern (in logical
// key space) with a single delete call and tags the invalidation with
// reason. Freshness markers go with their values. Loading and refreshing
// locks are left to their owners, so an in-flight load or refresh stays the
// only one for its key.
func (s *Service) InvalidatePattern(ctx context.Context, pattern, reason string) int {
	full := s.keys.Key(pattern)
	var matched []string
	err := s.backend.Scan(ctx, full, func(keys []string) error {
		for _, key := range keys {
			if !isLockKey(key) {
				matched = append(matched, key)
			}
		}
		return nil
	})
	if err != nil {
		s.logFailure("scan", pattern, err)
		return 0
	}
	if len(matched) == 0 {
		return 0
	}

	n, err := s.backend.Delete(ctx, matched...)
	if err != nil {
		s.logFailure("delete", pattern, err)
		return 0
	}
	s.metrics.invalidation(CacheType(pattern), reason)
	s.logger.Debug("Invalidated cache pattern",
		zap.String("pattern", pattern),
		zap.String("reason", reason),
		zap.Int64("deleted", n),
	)
	return int(n)
}

// Healthy pings the backend.
func (s *Service) Healthy(ctx context.Context) bool {
	if err := s.backend.Ping(ctx); err != nil {
		s.logFailure("ping", "", err)
		return false
	}
	return true
}

func (s *Service) ttl(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return s.opts.DefaultTTL
	}
	return ttl
}

// getRaw is Get without decoding or metrics, for layers that must tell
// backend failures apart from misses.
func (s *Service) getRaw(ctx context.Context, fullKey string) ([]byte, bool, error) {
	return s.backend.Get(ctx, fullKey)
}

func (s *Service) encode(key string, value any) ([]byte, error) {
	data, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("encode cache value %q: %w", key, err)
	}
	return data, nil
}

func (s *Service) logFailure(op, key string, err error) {
	s.logger.Warn("Cache operation failed",
		zap.String("op", op),
		zap.String("key", key),
		zap.Bool("unavailable", IsUnavailable(err)),
		zap.Error(err),
	)
}
