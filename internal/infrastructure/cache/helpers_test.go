package cache

import (
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type testCamera struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Online bool   `json:"online"`
}

func newTestRedis(t *testing.T) (*RedisBackend, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	backend := NewRedisBackendFromClient(client, RedisOptions{}, zap.NewNop())
	t.Cleanup(func() { _ = backend.Close() })
	return backend, mr
}

func newTestService(t *testing.T, recorder Recorder) (*Service, *miniredis.Miniredis) {
	t.Helper()
	backend, mr := newTestRedis(t)
	svc := NewService(backend, Options{KeyPrefix: "test"}, recorder, zap.NewNop())
	return svc, mr
}

// spyRecorder counts recorder calls per cache type.
type spyRecorder struct {
	mu            sync.Mutex
	hits          map[string]int
	misses        map[string]int
	staleHits     map[string]int
	invalidations map[string]int
	refreshes     []bool
	loads         map[bool]int
	waitTimeouts  int
}

func newSpyRecorder() *spyRecorder {
	return &spyRecorder{
		hits:          make(map[string]int),
		misses:        make(map[string]int),
		staleHits:     make(map[string]int),
		invalidations: make(map[string]int),
		loads:         make(map[bool]int),
	}
}

func (r *spyRecorder) CacheHit(cacheType string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hits[cacheType]++
}

func (r *spyRecorder) CacheMiss(cacheType string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.misses[cacheType]++
}

func (r *spyRecorder) CacheInvalidation(cacheType, reason string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.invalidations[cacheType+"/"+reason]++
}

func (r *spyRecorder) CacheStaleHit(cacheType string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.staleHits[cacheType]++
}

func (r *spyRecorder) CacheBackgroundRefresh(_ string, success bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.refreshes = append(r.refreshes, success)
}

func (r *spyRecorder) CacheLoad(_ string, fromCache bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.loads[fromCache]++
}

func (r *spyRecorder) CacheLockWaitTimeout(string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.waitTimeouts++
}

func (r *spyRecorder) refreshCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.refreshes)
}

type panicRecorder struct{}

func (panicRecorder) CacheHit(string)                     { panic("hit") }
func (panicRecorder) CacheMiss(string)                    { panic("miss") }
func (panicRecorder) CacheInvalidation(string, string)    { panic("invalidation") }
func (panicRecorder) CacheStaleHit(string)                { panic("stale") }
func (panicRecorder) CacheBackgroundRefresh(string, bool) { panic("refresh") }

// fakeClock is a settable time source.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}
