package cache

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// RedisOptions configures the Redis connection and the circuit breaker in
// front of it.
type RedisOptions struct {
	Addr         string
	Password     string
	DB           int
	PoolSize     int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	ScanCount    int64

	Breaker BreakerOptions
}

// BreakerOptions mirrors the gobreaker settings used for the backend.
type BreakerOptions struct {
	Enabled             bool
	MaxRequests         uint32
	Interval            time.Duration
	Timeout             time.Duration
	ConsecutiveFailures uint32
}

// RedisBackend implements Backend on top of go-redis. Calls go through a
// circuit breaker so that an unreachable Redis fails fast instead of making
// every request wait for a dial timeout.
type RedisBackend struct {
	client    redis.UniversalClient
	breaker   *gobreaker.CircuitBreaker
	scanCount int64
	logger    *zap.Logger
}

// NewRedisBackend dials Redis lazily; the first command opens the pool.
func NewRedisBackend(opts RedisOptions, logger *zap.Logger) *RedisBackend {
	client := redis.NewClient(&redis.Options{
		Addr:         opts.Addr,
		Password:     opts.Password,
		DB:           opts.DB,
		PoolSize:     opts.PoolSize,
		DialTimeout:  opts.DialTimeout,
		ReadTimeout:  opts.ReadTimeout,
		WriteTimeout: opts.WriteTimeout,
	})
	return NewRedisBackendFromClient(client, opts, logger)
}

// NewRedisBackendFromClient wraps an existing client.
func NewRedisBackendFromClient(client redis.UniversalClient, opts RedisOptions, logger *zap.Logger) *RedisBackend {
	if logger == nil {
		logger = zap.NewNop()
	}
	scanCount := opts.ScanCount
	if scanCount <= 0 {
		scanCount = 100
	}

	b := &RedisBackend{
		client:    client,
		scanCount: scanCount,
		logger:    logger,
	}
	if opts.Breaker.Enabled {
		b.breaker = newBreaker(opts.Breaker, logger)
	}
	return b
}

func newBreaker(opts BreakerOptions, logger *zap.Logger) *gobreaker.CircuitBreaker {
	threshold := opts.ConsecutiveFailures
	if threshold == 0 {
		threshold = 5
	}
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "cache-backend",
		MaxRequests: opts.MaxRequests,
		Interval:    opts.Interval,
		Timeout:     opts.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn("Cache backend circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
		// A missing key or a caller that gave up says nothing about Redis health.
		IsSuccessful: func(err error) bool {
			return err == nil ||
				errors.Is(err, redis.Nil) ||
				errors.Is(err, context.Canceled)
		},
	})
}

// Client exposes the underlying client for health probes and tests.
func (b *RedisBackend) Client() redis.UniversalClient {
	return b.client
}

// do runs fn through the breaker and wraps any failure as a BackendError.
func (b *RedisBackend) do(op, key string, fn func() error) error {
	var err error
	if b.breaker == nil {
		err = fn()
	} else {
		_, err = b.breaker.Execute(func() (interface{}, error) {
			return nil, fn()
		})
	}
	if err == nil || errors.Is(err, redis.Nil) {
		return err
	}
	return &BackendError{Op: op, Key: key, Err: err}
}

func (b *RedisBackend) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var val []byte
	err := b.do("get", key, func() error {
		var err error
		val, err = b.client.Get(ctx, key).Bytes()
		return err
	})
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return val, true, nil
}

func (b *RedisBackend) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := validateTTL("set", key, ttl); err != nil {
		return err
	}
	return b.do("set", key, func() error {
		return b.client.Set(ctx, key, value, ttl).Err()
	})
}

func (b *RedisBackend) SetMulti(ctx context.Context, items ...Item) error {
	if len(items) == 0 {
		return nil
	}
	for _, it := range items {
		if err := validateTTL("set_multi", it.Key, it.TTL); err != nil {
			return err
		}
	}
	return b.do("set_multi", items[0].Key, func() error {
		_, err := b.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			for _, it := range items {
				pipe.Set(ctx, it.Key, it.Value, it.TTL)
			}
			return nil
		})
		return err
	})
}

func (b *RedisBackend) SetIfAbsent(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	if err := validateTTL("set_if_absent", key, ttl); err != nil {
		return false, err
	}
	var acquired bool
	err := b.do("set_if_absent", key, func() error {
		var err error
		acquired, err = b.client.SetNX(ctx, key, value, ttl).Result()
		return err
	})
	return acquired, err
}

func (b *RedisBackend) Delete(ctx context.Context, keys ...string) (int64, error) {
	if len(keys) == 0 {
		return 0, nil
	}
	var n int64
	err := b.do("delete", keys[0], func() error {
		var err error
		n, err = b.client.Del(ctx, keys...).Result()
		return err
	})
	return n, err
}

func (b *RedisBackend) Exists(ctx context.Context, key string) (bool, error) {
	var n int64
	err := b.do("exists", key, func() error {
		var err error
		n, err = b.client.Exists(ctx, key).Result()
		return err
	})
	return n > 0, err
}

func (b *RedisBackend) Expire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	if err := validateTTL("expire", key, ttl); err != nil {
		return false, err
	}
	var ok bool
	err := b.do("expire", key, func() error {
		var err error
		ok, err = b.client.Expire(ctx, key, ttl).Result()
		return err
	})
	return ok, err
}

// Scan pages through SCAN cursors so memory use is bounded by ScanCount.
func (b *RedisBackend) Scan(ctx context.Context, pattern string, fn func(keys []string) error) error {
	var cursor uint64
	for {
		var keys []string
		err := b.do("scan", pattern, func() error {
			var err error
			keys, cursor, err = b.client.Scan(ctx, cursor, pattern, b.scanCount).Result()
			return err
		})
		if err != nil {
			return err
		}
		if len(keys) > 0 {
			if err := fn(keys); err != nil {
				return err
			}
		}
		if cursor == 0 {
			return nil
		}
	}
}

func (b *RedisBackend) Ping(ctx context.Context) error {
	return b.do("ping", "", func() error {
		return b.client.Ping(ctx).Err()
	})
}

func (b *RedisBackend) Close() error {
	return b.client.Close()
}
