package cache

import (
	"context"
	"encoding/json"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Loader fetches the value behind id. A nil result means the value does not
// exist; it is returned to the caller and never cached.
type Loader[T any] func(ctx context.Context, id string) (*T, error)

// ReadThroughOptions configures a ReadThrough cache.
type ReadThroughOptions struct {
	TTL time.Duration
	// StampedeProtection makes concurrent misses for one key share a single
	// load through the {key}:loading lock.
	StampedeProtection bool
	// LockTimeout is the lifetime of the loading lock, which bounds how long
	// a crashed loader can block others.
	LockTimeout time.Duration
	// PollInterval and MaxWait bound how long a requester that lost the lock
	// race waits for the winner before loading on its own.
	PollInterval time.Duration
	MaxWait      time.Duration
}

// Result is a value returned by ReadThrough.Get.
type Result[T any] struct {
	Value     *T
	FromCache bool
}

// ReadThrough owns the loader for one logical data type, so callers never
// handle a miss themselves. Keys are {name}:{id}.
type ReadThrough[T any] struct {
	svc    *Service
	name   string
	loader Loader[T]
	opts   ReadThroughOptions
	logger *zap.Logger
}

// NewReadThrough creates a read-through cache named after its data type,
// e.g. "cameras".
func NewReadThrough[T any](svc *Service, name string, loader Loader[T], opts ReadThroughOptions) *ReadThrough[T] {
	if opts.TTL <= 0 {
		opts.TTL = svc.opts.DefaultTTL
	}
	if opts.LockTimeout <= 0 {
		opts.LockTimeout = 10 * time.Second
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 50 * time.Millisecond
	}
	if opts.MaxWait <= 0 {
		opts.MaxWait = 5 * time.Second
	}
	return &ReadThrough[T]{
		svc:    svc,
		name:   name,
		loader: loader,
		opts:   opts,
		logger: svc.logger.Named("read_through").With(zap.String("cache", name)),
	}
}

// Key returns the logical cache key for id.
func (r *ReadThrough[T]) Key(id string) string {
	return r.name + ":" + id
}

// Get returns the value for id, loading it on a miss. Backend failures fall
// back to calling the loader directly; loader errors are returned as is.
func (r *ReadThrough[T]) Get(ctx context.Context, id string) (Result[T], error) {
	ctx, span := r.svc.tracer.Start(ctx, "cache.read_through",
		trace.WithAttributes(
			attribute.String("cache.name", r.name),
			attribute.String("cache.id", id),
		),
	)
	defer span.End()

	full := r.svc.keys.Key(r.Key(id))

	value, found, err := r.lookup(ctx, full)
	if err != nil {
		r.svc.logFailure("get", r.Key(id), err)
		return r.load(ctx, id, "")
	}
	if found {
		span.SetAttributes(attribute.Bool("cache.hit", true))
		r.svc.metrics.hit(r.name)
		r.svc.metrics.load(r.name, true)
		return Result[T]{Value: value, FromCache: true}, nil
	}
	span.SetAttributes(attribute.Bool("cache.hit", false))
	r.svc.metrics.miss(r.name)

	if !r.opts.StampedeProtection {
		return r.load(ctx, id, full)
	}

	lockKey := loadingKey(full)
	acquired, err := r.svc.backend.SetIfAbsent(ctx, lockKey, []byte("1"), r.opts.LockTimeout)
	if err != nil {
		r.svc.logFailure("set_if_absent", r.Key(id)+suffixLoading, err)
		return r.load(ctx, id, "")
	}
	if acquired {
		return r.loadLocked(ctx, id, full, lockKey)
	}
	return r.waitForLoad(ctx, id, full, lockKey)
}

// Invalidate deletes the cached entry for id.
func (r *ReadThrough[T]) Invalidate(ctx context.Context, id string) bool {
	return r.svc.Invalidate(ctx, r.Key(id))
}

// Refresh forces a fresh load through the same protected path as Get.
func (r *ReadThrough[T]) Refresh(ctx context.Context, id string) (Result[T], error) {
	r.Invalidate(ctx, id)
	return r.Get(ctx, id)
}

func (r *ReadThrough[T]) loadLocked(ctx context.Context, id, full, lockKey string) (Result[T], error) {
	defer func() {
		// Released even if the caller has gone away.
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.opts.LockTimeout)
		defer cancel()
		if _, err := r.svc.backend.Delete(releaseCtx, lockKey); err != nil {
			r.svc.logFailure("delete", r.Key(id)+suffixLoading, err)
		}
	}()

	// Another requester may have finished between the first read and the lock.
	value, found, err := r.lookup(ctx, full)
	if err != nil {
		r.svc.logFailure("get", r.Key(id), err)
		return r.load(ctx, id, "")
	}
	if found {
		r.svc.metrics.load(r.name, true)
		return Result[T]{Value: value, FromCache: true}, nil
	}
	return r.load(ctx, id, full)
}

// waitForLoad polls until the lock holder has cached a value or MaxWait
// elapses. When the lock disappears the cache is read once more, since the
// holder writes the value before releasing; only a confirmed miss competes
// for the lock again. The timeout loads directly, which can duplicate a load
// but never stalls the caller indefinitely.
func (r *ReadThrough[T]) waitForLoad(ctx context.Context, id, full, lockKey string) (Result[T], error) {
	ticker := time.NewTicker(r.opts.PollInterval)
	defer ticker.Stop()
	deadline := time.NewTimer(r.opts.MaxWait)
	defer deadline.Stop()

	for {
		select {
		case <-ctx.Done():
			return Result[T]{}, ctx.Err()

		case <-deadline.C:
			r.logger.Debug("Timed out waiting for concurrent load",
				zap.String("id", id),
				zap.Duration("max_wait", r.opts.MaxWait),
			)
			r.svc.metrics.lockWaitTimeout(r.name)
			return r.load(ctx, id, full)

		case <-ticker.C:
			value, found, err := r.lookup(ctx, full)
			if err != nil {
				r.svc.logFailure("get", r.Key(id), err)
				return r.load(ctx, id, "")
			}
			if found {
				r.svc.metrics.load(r.name, true)
				return Result[T]{Value: value, FromCache: true}, nil
			}
			held, err := r.svc.backend.Exists(ctx, lockKey)
			if err != nil {
				r.svc.logFailure("exists", r.Key(id)+suffixLoading, err)
				return r.load(ctx, id, "")
			}
			if held {
				continue
			}

			value, found, err = r.lookup(ctx, full)
			if err != nil {
				r.svc.logFailure("get", r.Key(id), err)
				return r.load(ctx, id, "")
			}
			if found {
				r.svc.metrics.load(r.name, true)
				return Result[T]{Value: value, FromCache: true}, nil
			}

			// The holder finished without caching anything.
			acquired, err := r.svc.backend.SetIfAbsent(ctx, lockKey, []byte("1"), r.opts.LockTimeout)
			if err != nil {
				r.svc.logFailure("set_if_absent", r.Key(id)+suffixLoading, err)
				return r.load(ctx, id, "")
			}
			if acquired {
				return r.loadLocked(ctx, id, full, lockKey)
			}
		}
	}
}

// load calls the loader and, when full is not empty, caches a non-nil
// result under it.
func (r *ReadThrough[T]) load(ctx context.Context, id, full string) (Result[T], error) {
	value, err := r.loader(ctx, id)
	if err != nil {
		return Result[T]{}, err
	}
	r.svc.metrics.load(r.name, false)
	if value == nil || full == "" {
		return Result[T]{Value: value}, nil
	}

	data, err := r.svc.encode(r.Key(id), value)
	if err != nil {
		r.logger.Error("Failed to encode loaded value", zap.String("id", id), zap.Error(err))
		return Result[T]{Value: value}, nil
	}
	if err := r.svc.backend.Set(ctx, full, data, r.opts.TTL); err != nil {
		r.svc.logFailure("set", r.Key(id), err)
	}
	return Result[T]{Value: value}, nil
}

func (r *ReadThrough[T]) lookup(ctx context.Context, full string) (*T, bool, error) {
	data, found, err := r.svc.getRaw(ctx, full)
	if err != nil || !found {
		return nil, false, err
	}
	var value T
	if err := json.Unmarshal(data, &value); err != nil {
		r.logger.Warn("Discarding undecodable cache entry",
			zap.String("key", full),
			zap.Error(err),
		)
		return nil, false, nil
	}
	return &value, true, nil
}
