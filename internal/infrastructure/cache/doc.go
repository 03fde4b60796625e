// Package cache is the caching layer in front of the metadata store.
//
// Everything is built on a small Backend interface (Redis in production, an
// in-process LRU for single-instance development). On top of it sit four
// layers that share one Service:
//
//   - Service: cache-aside get/set/get-or-compute and pattern invalidation
//   - SWR: stale-while-revalidate reads with a freshness marker per key
//   - ReadThrough: per-type loaders with stampede protection
//   - Warmer: startup pre-population of named caches
//
// All keys are namespaced as {prefix}:cache:{logical}. Lock and marker keys
// append :loading, :refreshing or :fresh_until to the full key, so pattern
// invalidation removes them together with the value.
//
// The cache is an optimisation only. Backend failures are logged and the
// caller's factory or loader runs directly; errors from factories and
// loaders are returned unchanged.
package cache
