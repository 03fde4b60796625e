package cache

import (
	"go.uber.org/zap"
)

// Recorder receives cache events for dashboards. Implementations are
// fire-and-forget sinks; they must not influence cache behaviour.
type Recorder interface {
	CacheHit(cacheType string)
	CacheMiss(cacheType string)
	CacheInvalidation(cacheType, reason string)
	CacheStaleHit(cacheType string)
	CacheBackgroundRefresh(cacheType string, success bool)
}

// LoadRecorder is optionally implemented by recorders that also track
// read-through loads and lock-wait fallbacks.
type LoadRecorder interface {
	CacheLoad(cacheType string, fromCache bool)
	CacheLockWaitTimeout(cacheType string)
}

// NopRecorder discards every event.
type NopRecorder struct{}

func (NopRecorder) CacheHit(string)                     {}
func (NopRecorder) CacheMiss(string)                    {}
func (NopRecorder) CacheInvalidation(string, string)    {}
func (NopRecorder) CacheStaleHit(string)                {}
func (NopRecorder) CacheBackgroundRefresh(string, bool) {}

// safeRecorder shields cache control flow from a misbehaving recorder.
type safeRecorder struct {
	inner  Recorder
	logger *zap.Logger
}

func newSafeRecorder(inner Recorder, logger *zap.Logger) *safeRecorder {
	if inner == nil {
		inner = NopRecorder{}
	}
	return &safeRecorder{inner: inner, logger: logger}
}

func (r *safeRecorder) guard(event string) {
	if p := recover(); p != nil {
		r.logger.Warn("Cache metrics recorder panicked",
			zap.String("event", event),
			zap.Any("panic", p),
		)
	}
}

func (r *safeRecorder) hit(cacheType string) {
	defer r.guard("hit")
	r.inner.CacheHit(cacheType)
}

func (r *safeRecorder) miss(cacheType string) {
	defer r.guard("miss")
	r.inner.CacheMiss(cacheType)
}

func (r *safeRecorder) invalidation(cacheType, reason string) {
	defer r.guard("invalidation")
	r.inner.CacheInvalidation(cacheType, reason)
}

func (r *safeRecorder) staleHit(cacheType string) {
	defer r.guard("stale_hit")
	r.inner.CacheStaleHit(cacheType)
}

func (r *safeRecorder) backgroundRefresh(cacheType string, success bool) {
	defer r.guard("background_refresh")
	r.inner.CacheBackgroundRefresh(cacheType, success)
}

func (r *safeRecorder) load(cacheType string, fromCache bool) {
	defer r.guard("load")
	if lr, ok := r.inner.(LoadRecorder); ok {
		lr.CacheLoad(cacheType, fromCache)
	}
}

func (r *safeRecorder) lockWaitTimeout(cacheType string) {
	defer r.guard("lock_wait_timeout")
	if lr, ok := r.inner.(LoadRecorder); ok {
		lr.CacheLockWaitTimeout(cacheType)
	}
}
