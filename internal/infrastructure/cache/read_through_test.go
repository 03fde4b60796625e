package cache

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func cameraLoader(calls *atomic.Int32, delay time.Duration) Loader[testCamera] {
	return func(ctx context.Context, id string) (*testCamera, error) {
		n := calls.Add(1)
		if delay > 0 {
			time.Sleep(delay)
		}
		return &testCamera{ID: id, Name: "Driveway", Online: n%2 == 1}, nil
	}
}

func TestReadThrough_MissThenHit(t *testing.T) {
	// Arrange
	ctx := context.Background()
	spy := newSpyRecorder()
	svc, mr := newTestService(t, spy)
	var calls atomic.Int32
	rt := NewReadThrough(svc, "cameras", cameraLoader(&calls, 0), ReadThroughOptions{TTL: time.Minute, StampedeProtection: true})

	// Act
	first, err := rt.Get(ctx, "c1")
	require.NoError(t, err)
	second, err := rt.Get(ctx, "c1")
	require.NoError(t, err)

	// Assert
	assert.False(t, first.FromCache)
	assert.True(t, second.FromCache)
	assert.Equal(t, first.Value, second.Value)
	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, time.Minute, mr.TTL("test:cache:cameras:c1"))
	assert.False(t, mr.Exists("test:cache:cameras:c1:loading"))
	assert.Equal(t, 1, spy.loads[false])
	assert.Equal(t, 1, spy.loads[true])
}

func TestReadThrough_ConcurrentMisses_LoadOnce(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t, nil)
	var calls atomic.Int32
	rt := NewReadThrough(svc, "cameras", cameraLoader(&calls, 400*time.Millisecond), ReadThroughOptions{
		StampedeProtection: true,
		PollInterval:       5 * time.Millisecond,
		MaxWait:            10 * time.Second,
	})

	const n = 10
	results := make([]Result[testCamera], n)
	errs := make([]error, n)
	start := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			results[i], errs[i] = rt.Get(ctx, "c1")
		}(i)
	}
	close(start)
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
	for i := 0; i < n; i++ {
		require.NoError(t, errs[i])
		require.NotNil(t, results[i].Value)
		assert.Equal(t, *results[0].Value, *results[i].Value)
	}
}

// lockHookBackend runs hooks around the first Exists call on a loading lock,
// which is where a waiter checks whether the holder is still working.
type lockHookBackend struct {
	Backend
	before, after func()
	once          sync.Once
}

func (b *lockHookBackend) Exists(ctx context.Context, key string) (bool, error) {
	if !strings.HasSuffix(key, suffixLoading) {
		return b.Backend.Exists(ctx, key)
	}
	first := false
	b.once.Do(func() { first = true })
	if first && b.before != nil {
		b.before()
	}
	held, err := b.Backend.Exists(ctx, key)
	if first && b.after != nil {
		b.after()
	}
	return held, err
}

func newHookedReadThrough(t *testing.T, hooks *lockHookBackend, spy *spyRecorder, calls *atomic.Int32) (*ReadThrough[testCamera], *miniredis.Miniredis) {
	t.Helper()
	backend, mr := newTestRedis(t)
	hooks.Backend = backend
	svc := NewService(hooks, Options{KeyPrefix: "test"}, spy, zap.NewNop())
	rt := NewReadThrough(svc, "cameras", cameraLoader(calls, 0), ReadThroughOptions{
		StampedeProtection: true,
		PollInterval:       10 * time.Millisecond,
		MaxWait:            5 * time.Second,
	})
	require.NoError(t, mr.Set("test:cache:cameras:c1:loading", "1"))
	return rt, mr
}

func TestReadThrough_HolderFinishesBeforeLockCheck_ServesCachedValue(t *testing.T) {
	spy := newSpyRecorder()
	var calls atomic.Int32
	hooks := &lockHookBackend{}
	rt, mr := newHookedReadThrough(t, hooks, spy, &calls)
	// The holder stores its value and releases the lock after the waiter's
	// poll missed but before it looks at the lock.
	hooks.before = func() {
		require.NoError(t, mr.Set("test:cache:cameras:c1", `{"id":"c1","name":"Driveway","online":true}`))
		mr.Del("test:cache:cameras:c1:loading")
	}

	result, err := rt.Get(context.Background(), "c1")

	require.NoError(t, err)
	assert.Zero(t, calls.Load())
	assert.True(t, result.FromCache)
	assert.Equal(t, testCamera{ID: "c1", Name: "Driveway", Online: true}, *result.Value)
	assert.Equal(t, 1, spy.loads[true])
	assert.Zero(t, spy.loads[false])
	assert.Zero(t, spy.waitTimeouts)
}

func TestReadThrough_LockRetakenAfterEmptyRelease_KeepsWaiting(t *testing.T) {
	spy := newSpyRecorder()
	var calls atomic.Int32
	hooks := &lockHookBackend{}
	rt, mr := newHookedReadThrough(t, hooks, spy, &calls)
	// The first holder found nothing; another requester takes the lock
	// before this one can and caches a value shortly after.
	hooks.before = func() { mr.Del("test:cache:cameras:c1:loading") }
	hooks.after = func() {
		require.NoError(t, mr.Set("test:cache:cameras:c1:loading", "1"))
		time.AfterFunc(30*time.Millisecond, func() {
			_ = mr.Set("test:cache:cameras:c1", `{"id":"c1","name":"Porch","online":true}`)
			mr.Del("test:cache:cameras:c1:loading")
		})
	}

	result, err := rt.Get(context.Background(), "c1")

	require.NoError(t, err)
	assert.Zero(t, calls.Load())
	assert.True(t, result.FromCache)
	assert.Equal(t, "Porch", result.Value.Name)
	assert.Zero(t, spy.waitTimeouts)
}

func TestReadThrough_WaitTimeout_FallsBackToDirectLoad(t *testing.T) {
	ctx := context.Background()
	spy := newSpyRecorder()
	svc, mr := newTestService(t, spy)
	// A crashed worker left its lock behind.
	require.NoError(t, mr.Set("test:cache:cameras:c1:loading", "1"))
	mr.SetTTL("test:cache:cameras:c1:loading", time.Minute)

	var calls atomic.Int32
	rt := NewReadThrough(svc, "cameras", cameraLoader(&calls, 0), ReadThroughOptions{
		StampedeProtection: true,
		PollInterval:       10 * time.Millisecond,
		MaxWait:            60 * time.Millisecond,
	})

	start := time.Now()
	result, err := rt.Get(ctx, "c1")

	require.NoError(t, err)
	assert.Less(t, time.Since(start), time.Second)
	assert.False(t, result.FromCache)
	assert.Equal(t, "c1", result.Value.ID)
	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, 1, spy.waitTimeouts)
	assert.True(t, mr.Exists("test:cache:cameras:c1"))
}

func TestReadThrough_LockReleasedWithoutValue_LoadsDirectly(t *testing.T) {
	ctx := context.Background()
	spy := newSpyRecorder()
	svc, mr := newTestService(t, spy)
	require.NoError(t, mr.Set("test:cache:cameras:c1:loading", "1"))
	time.AfterFunc(30*time.Millisecond, func() { mr.Del("test:cache:cameras:c1:loading") })

	var calls atomic.Int32
	rt := NewReadThrough(svc, "cameras", cameraLoader(&calls, 0), ReadThroughOptions{
		StampedeProtection: true,
		PollInterval:       10 * time.Millisecond,
		MaxWait:            5 * time.Second,
	})

	result, err := rt.Get(ctx, "c1")

	require.NoError(t, err)
	assert.Equal(t, "c1", result.Value.ID)
	assert.Equal(t, int32(1), calls.Load())
	assert.Zero(t, spy.waitTimeouts)
}

func TestReadThrough_LoaderError_PropagatesAndReleasesLock(t *testing.T) {
	ctx := context.Background()
	svc, mr := newTestService(t, nil)
	boom := errors.New("table throttled")
	rt := NewReadThrough(svc, "cameras", func(context.Context, string) (*testCamera, error) {
		return nil, boom
	}, ReadThroughOptions{StampedeProtection: true})

	_, err := rt.Get(ctx, "c1")

	assert.ErrorIs(t, err, boom)
	assert.Empty(t, mr.Keys())
}

func TestReadThrough_NilNotCached(t *testing.T) {
	ctx := context.Background()
	svc, mr := newTestService(t, nil)
	var calls atomic.Int32
	rt := NewReadThrough(svc, "cameras", func(context.Context, string) (*testCamera, error) {
		calls.Add(1)
		return nil, nil
	}, ReadThroughOptions{StampedeProtection: true})

	for i := 0; i < 2; i++ {
		result, err := rt.Get(ctx, "gone")
		require.NoError(t, err)
		assert.Nil(t, result.Value)
	}
	assert.Equal(t, int32(2), calls.Load())
	assert.Empty(t, mr.Keys())
}

func TestReadThrough_BackendUnavailable_LoadsUncached(t *testing.T) {
	ctx := context.Background()
	svc, mr := newTestService(t, nil)
	mr.SetError("ERR connection refused")
	var calls atomic.Int32
	rt := NewReadThrough(svc, "cameras", cameraLoader(&calls, 0), ReadThroughOptions{StampedeProtection: true})

	result, err := rt.Get(ctx, "c1")

	require.NoError(t, err)
	assert.False(t, result.FromCache)
	assert.Equal(t, "c1", result.Value.ID)

	mr.SetError("")
	assert.Empty(t, mr.Keys())
}

func TestReadThrough_InvalidateAndRefresh(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t, nil)
	var calls atomic.Int32
	rt := NewReadThrough(svc, "cameras", cameraLoader(&calls, 0), ReadThroughOptions{StampedeProtection: true})

	first, err := rt.Get(ctx, "c1")
	require.NoError(t, err)
	assert.True(t, first.Value.Online)

	refreshed, err := rt.Refresh(ctx, "c1")
	require.NoError(t, err)
	assert.False(t, refreshed.FromCache)
	assert.False(t, refreshed.Value.Online)
	assert.Equal(t, int32(2), calls.Load())

	assert.True(t, rt.Invalidate(ctx, "c1"))
	assert.False(t, rt.Invalidate(ctx, "c1"))
}

func TestReadThrough_WithoutStampedeProtection(t *testing.T) {
	ctx := context.Background()
	svc, mr := newTestService(t, nil)
	var calls atomic.Int32
	rt := NewReadThrough(svc, "cameras", cameraLoader(&calls, 0), ReadThroughOptions{})
	require.NoError(t, mr.Set("test:cache:cameras:c1:loading", "1"))

	result, err := rt.Get(ctx, "c1")

	require.NoError(t, err)
	assert.False(t, result.FromCache)
	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, "cameras:c1", rt.Key("c1"))
}
