package cache

import (
	"context"
	"encoding/json"
	"math"
	"strconv"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// SWROptions configures stale-while-revalidate reads.
type SWROptions struct {
	// StaleTTL is how long a value may be served after it stops being fresh.
	StaleTTL time.Duration
	// RefreshLockTimeout bounds a background refresh and the lock guarding it.
	RefreshLockTimeout time.Duration
}

// SWROption customises an SWR.
type SWROption func(*SWR)

// WithSWRClock replaces time.Now for freshness checks.
func WithSWRClock(now func() time.Time) SWROption {
	return func(w *SWR) {
		w.now = now
	}
}

// SWR serves cached values immediately and refreshes stale ones in the
// background. Each value has a companion {key}:fresh_until marker holding
// the unix time until which it counts as fresh:
//
//	missing  no value               compute synchronously and store
//	fresh    now < fresh_until      serve
//	stale    marker elapsed/absent  serve, refresh in background
//
// At most one refresh per key runs at a time, guarded by {key}:refreshing.
type SWR struct {
	svc    *Service
	opts   SWROptions
	now    func() time.Time
	wg     sync.WaitGroup
	logger *zap.Logger
}

// NewSWR layers stale-while-revalidate on svc.
func NewSWR(svc *Service, opts SWROptions, optFns ...SWROption) *SWR {
	if opts.StaleTTL <= 0 {
		opts.StaleTTL = 5 * time.Minute
	}
	if opts.RefreshLockTimeout <= 0 {
		opts.RefreshLockTimeout = 30 * time.Second
	}
	w := &SWR{
		svc:    svc,
		opts:   opts,
		now:    time.Now,
		logger: svc.logger.Named("swr"),
	}
	for _, fn := range optFns {
		fn(w)
	}
	return w
}

// Wait blocks until all scheduled background refreshes have finished.
func (w *SWR) Wait() {
	w.wg.Wait()
}

// WaitContext is Wait bounded by ctx.
func (w *SWR) WaitContext(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// GetOrSetSWR returns the value for key following the stale-while-revalidate
// state machine. ttl is the fresh window and staleTTL the extra window in
// which a stale value is still served; zero values use the defaults. If the
// backend cannot be read, factory is called directly and its result is
// returned without caching.
func GetOrSetSWR[T any](ctx context.Context, w *SWR, key string, factory Factory[T], ttl, staleTTL time.Duration) (*T, error) {
	ctx, span := w.svc.tracer.Start(ctx, "cache.swr",
		trace.WithAttributes(attribute.String("cache.key", key)),
	)
	defer span.End()

	if ttl <= 0 {
		ttl = w.svc.opts.DefaultTTL
	}
	if staleTTL <= 0 {
		staleTTL = w.opts.StaleTTL
	}
	full := w.svc.keys.Key(key)
	cacheType := CacheType(key)

	data, found, err := w.svc.getRaw(ctx, full)
	if err != nil {
		w.svc.logFailure("get", key, err)
		span.SetAttributes(attribute.String("cache.state", "unavailable"))
		return factory(ctx)
	}

	var cached T
	if found {
		if err := json.Unmarshal(data, &cached); err != nil {
			w.logger.Warn("Discarding undecodable cache entry",
				zap.String("key", key),
				zap.Error(err),
			)
			found = false
		}
	}

	if !found {
		w.svc.metrics.miss(cacheType)
		span.SetAttributes(attribute.String("cache.state", "missing"))
		value, err := factory(ctx)
		if err != nil || value == nil {
			return value, err
		}
		if err := w.store(ctx, key, full, value, ttl, staleTTL); err != nil {
			w.svc.logFailure("set_multi", key, err)
		}
		return value, nil
	}

	fresh, err := w.isFresh(ctx, full)
	if err != nil {
		// The value was readable a moment ago; serve it and leave refreshing
		// to a later read.
		w.svc.logFailure("get", key+suffixFreshUntil, err)
		w.svc.metrics.hit(cacheType)
		return &cached, nil
	}
	if fresh {
		w.svc.metrics.hit(cacheType)
		span.SetAttributes(attribute.String("cache.state", "fresh"))
		return &cached, nil
	}

	w.svc.metrics.staleHit(cacheType)
	span.SetAttributes(attribute.String("cache.state", "stale"))
	w.scheduleRefresh(ctx, key, full, func(ctx context.Context) (any, error) {
		v, err := factory(ctx)
		if v == nil {
			return nil, err
		}
		return v, err
	}, ttl, staleTTL)
	return &cached, nil
}

// isFresh compares the freshness marker with now. A value without a marker
// is treated as stale: the marker may have been lost to TTL skew or the
// entry predates SWR, and refreshing is the safe answer in both cases.
func (w *SWR) isFresh(ctx context.Context, full string) (bool, error) {
	raw, found, err := w.svc.getRaw(ctx, freshUntilKey(full))
	if err != nil {
		return false, err
	}
	if !found {
		return false, nil
	}
	freshUntil, ok := parseMarker(raw)
	if !ok {
		return false, nil
	}
	return w.now().Before(freshUntil), nil
}

// scheduleRefresh starts a detached refresh. The request that triggered it
// does not wait; the refresh outlives the request context.
func (w *SWR) scheduleRefresh(parent context.Context, key, full string, refresh func(context.Context) (any, error), ttl, staleTTL time.Duration) {
	detached := context.WithoutCancel(parent)
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.refresh(detached, key, full, refresh, ttl, staleTTL)
	}()
}

func (w *SWR) refresh(base context.Context, key, full string, refresh func(context.Context) (any, error), ttl, staleTTL time.Duration) {
	cacheType := CacheType(key)
	lockKey := refreshingKey(full)
	timeout := w.opts.RefreshLockTimeout

	ctx, cancel := context.WithTimeout(base, timeout)
	defer cancel()

	acquired, err := w.svc.backend.SetIfAbsent(ctx, lockKey, []byte("1"), timeout)
	if err != nil {
		w.svc.logFailure("set_if_absent", key+suffixRefreshing, err)
		return
	}
	if !acquired {
		w.logger.Debug("Refresh already in progress", zap.String("key", key))
		return
	}

	success := false
	defer func() {
		if p := recover(); p != nil {
			w.logger.Error("Background refresh panicked",
				zap.String("key", key),
				zap.Any("panic", p),
			)
		}
		releaseCtx, releaseCancel := context.WithTimeout(base, timeout)
		defer releaseCancel()
		if _, err := w.svc.backend.Delete(releaseCtx, lockKey); err != nil {
			w.svc.logFailure("delete", key+suffixRefreshing, err)
		}
		w.svc.metrics.backgroundRefresh(cacheType, success)
	}()

	value, err := refresh(ctx)
	if err != nil {
		w.logger.Warn("Background refresh failed",
			zap.String("key", key),
			zap.Error(err),
		)
		return
	}
	if value != nil {
		if err := w.store(ctx, key, full, value, ttl, staleTTL); err != nil {
			w.svc.logFailure("set_multi", key, err)
			return
		}
	}
	success = true
	w.logger.Debug("Background refresh completed", zap.String("key", key))
}

// store writes the value and its freshness marker in one atomic step. Both
// live for ttl+staleTTL so the marker never expires before its value.
func (w *SWR) store(ctx context.Context, key, full string, value any, ttl, staleTTL time.Duration) error {
	data, err := w.svc.encode(key, value)
	if err != nil {
		return err
	}
	total := ttl + staleTTL
	marker := formatMarker(w.now().Add(ttl))
	return w.svc.backend.SetMulti(ctx,
		Item{Key: full, Value: data, TTL: total},
		Item{Key: freshUntilKey(full), Value: marker, TTL: total},
	)
}

func formatMarker(t time.Time) []byte {
	return []byte(strconv.FormatFloat(float64(t.UnixNano())/float64(time.Second), 'f', 3, 64))
}

func parseMarker(raw []byte) (time.Time, bool) {
	secs, err := strconv.ParseFloat(string(raw), 64)
	if err != nil || math.IsNaN(secs) || math.IsInf(secs, 0) {
		return time.Time{}, false
	}
	whole, frac := math.Modf(secs)
	return time.Unix(int64(whole), int64(frac*float64(time.Second))), true
}
