package cache

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type statusSnapshot struct {
	Version int    `json:"version"`
	State   string `json:"state"`
}

func newTestSWR(t *testing.T, spy *spyRecorder) (*SWR, *fakeClock, *Service) {
	t.Helper()
	svc, _ := newTestService(t, spy)
	clock := newFakeClock()
	swr := NewSWR(svc, SWROptions{StaleTTL: time.Minute}, WithSWRClock(clock.Now))
	t.Cleanup(swr.Wait)
	return swr, clock, svc
}

func versionedFactory(calls *atomic.Int32) Factory[statusSnapshot] {
	return func(context.Context) (*statusSnapshot, error) {
		n := calls.Add(1)
		return &statusSnapshot{Version: int(n), State: "armed"}, nil
	}
}

func TestSWR_Missing_ComputesAndStoresMarker(t *testing.T) {
	// Arrange
	ctx := context.Background()
	svc, mr := newTestService(t, nil)
	clock := newFakeClock()
	swr := NewSWR(svc, SWROptions{StaleTTL: time.Minute}, WithSWRClock(clock.Now))
	var calls atomic.Int32

	// Act
	value, err := GetOrSetSWR(ctx, swr, SystemStatusKey, versionedFactory(&calls), 30*time.Second, 0)

	// Assert
	require.NoError(t, err)
	assert.Equal(t, 1, value.Version)
	assert.Equal(t, int32(1), calls.Load())

	valueKey := "test:cache:system:status"
	markerKey := valueKey + ":fresh_until"
	assert.Equal(t, 90*time.Second, mr.TTL(valueKey))
	assert.Equal(t, 90*time.Second, mr.TTL(markerKey))

	raw, err := mr.Get(markerKey)
	require.NoError(t, err)
	freshUntil, ok := parseMarker([]byte(raw))
	require.True(t, ok)
	assert.WithinDuration(t, clock.Now().Add(30*time.Second), freshUntil, time.Millisecond)
}

func TestSWR_Fresh_ServesWithoutFactory(t *testing.T) {
	ctx := context.Background()
	spy := newSpyRecorder()
	swr, clock, _ := newTestSWR(t, spy)
	var calls atomic.Int32

	_, err := GetOrSetSWR(ctx, swr, SystemStatusKey, versionedFactory(&calls), 30*time.Second, 0)
	require.NoError(t, err)

	clock.Advance(10 * time.Second)
	value, err := GetOrSetSWR(ctx, swr, SystemStatusKey, versionedFactory(&calls), 30*time.Second, 0)

	require.NoError(t, err)
	assert.Equal(t, 1, value.Version)
	swr.Wait()
	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, 1, spy.hits["system"])
	assert.Zero(t, spy.refreshCount())
}

func TestSWR_Stale_ServesOldValueAndRefreshesOnce(t *testing.T) {
	// Arrange
	ctx := context.Background()
	spy := newSpyRecorder()
	swr, clock, _ := newTestSWR(t, spy)

	var calls atomic.Int32
	started := make(chan struct{}, 1)
	release := make(chan struct{})
	slow := func(ctx context.Context) (*statusSnapshot, error) {
		n := calls.Add(1)
		if n > 1 {
			started <- struct{}{}
			<-release
		}
		return &statusSnapshot{Version: int(n), State: "armed"}, nil
	}

	_, err := GetOrSetSWR(ctx, swr, SystemStatusKey, slow, 30*time.Second, 0)
	require.NoError(t, err)
	clock.Advance(31 * time.Second)

	// Act
	first, err := GetOrSetSWR(ctx, swr, SystemStatusKey, slow, 30*time.Second, 0)
	require.NoError(t, err)
	<-started
	second, err := GetOrSetSWR(ctx, swr, SystemStatusKey, slow, 30*time.Second, 0)
	require.NoError(t, err)
	close(release)
	swr.Wait()

	// Assert
	assert.Equal(t, 1, first.Version, "stale value served without waiting")
	assert.Equal(t, 1, second.Version)
	assert.Equal(t, int32(2), calls.Load(), "exactly one background refresh")
	assert.Equal(t, 2, spy.staleHits["system"])
	assert.Equal(t, []bool{true}, spy.refreshes)

	refreshed, err := GetOrSetSWR(ctx, swr, SystemStatusKey, slow, 30*time.Second, 0)
	require.NoError(t, err)
	assert.Equal(t, 2, refreshed.Version)
}

func TestSWR_MissingMarker_TreatedAsStale(t *testing.T) {
	ctx := context.Background()
	spy := newSpyRecorder()
	swr, _, svc := newTestSWR(t, spy)
	require.True(t, svc.Set(ctx, SystemStatusKey, statusSnapshot{Version: 0, State: "legacy"}, time.Minute))
	var calls atomic.Int32

	value, err := GetOrSetSWR(ctx, swr, SystemStatusKey, versionedFactory(&calls), 30*time.Second, 0)
	require.NoError(t, err)
	swr.Wait()

	assert.Equal(t, "legacy", value.State)
	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, 1, spy.staleHits["system"])
	assert.True(t, svc.Exists(ctx, SystemStatusKey+suffixFreshUntil))
}

func TestSWR_RefreshFailure_KeepsOldValueAndReleasesLock(t *testing.T) {
	ctx := context.Background()
	spy := newSpyRecorder()
	swr, clock, svc := newTestSWR(t, spy)
	var calls atomic.Int32

	_, err := GetOrSetSWR(ctx, swr, SystemStatusKey, versionedFactory(&calls), 30*time.Second, 0)
	require.NoError(t, err)
	clock.Advance(time.Minute)

	failing := func(context.Context) (*statusSnapshot, error) {
		return nil, errors.New("hub offline")
	}
	value, err := GetOrSetSWR(ctx, swr, SystemStatusKey, failing, 30*time.Second, 0)
	require.NoError(t, err)
	swr.Wait()

	assert.Equal(t, 1, value.Version)
	assert.Equal(t, []bool{false}, spy.refreshes)
	assert.False(t, svc.Exists(ctx, SystemStatusKey+suffixRefreshing))
}

func TestSWR_RefreshPanic_ReleasesLock(t *testing.T) {
	ctx := context.Background()
	swr, clock, svc := newTestSWR(t, nil)
	var calls atomic.Int32

	_, err := GetOrSetSWR(ctx, swr, SystemStatusKey, versionedFactory(&calls), 30*time.Second, 0)
	require.NoError(t, err)
	clock.Advance(time.Minute)

	panicking := func(context.Context) (*statusSnapshot, error) { panic("bad sensor payload") }
	_, err = GetOrSetSWR(ctx, swr, SystemStatusKey, panicking, 30*time.Second, 0)
	require.NoError(t, err)
	swr.Wait()

	assert.False(t, svc.Exists(ctx, SystemStatusKey+suffixRefreshing))
}

func TestSWR_RefreshLockHeldElsewhere_SkipsRefresh(t *testing.T) {
	ctx := context.Background()
	swr, clock, svc := newTestSWR(t, nil)
	var calls atomic.Int32

	_, err := GetOrSetSWR(ctx, swr, SystemStatusKey, versionedFactory(&calls), 30*time.Second, 0)
	require.NoError(t, err)
	require.True(t, svc.Set(ctx, SystemStatusKey+suffixRefreshing, 1, time.Minute))
	clock.Advance(time.Minute)

	_, err = GetOrSetSWR(ctx, swr, SystemStatusKey, versionedFactory(&calls), 30*time.Second, 0)
	require.NoError(t, err)
	swr.Wait()

	assert.Equal(t, int32(1), calls.Load())
}

func TestSWR_BackendUnavailable_CallsFactoryDirectly(t *testing.T) {
	ctx := context.Background()
	svc, mr := newTestService(t, nil)
	swr := NewSWR(svc, SWROptions{})
	mr.SetError("ERR connection refused")
	var calls atomic.Int32

	for i := 1; i <= 2; i++ {
		value, err := GetOrSetSWR(ctx, swr, SystemStatusKey, versionedFactory(&calls), 0, 0)
		require.NoError(t, err)
		assert.Equal(t, i, value.Version)
	}

	mr.SetError("")
	assert.Empty(t, mr.Keys())
}

func TestSWR_NilResultNotCached(t *testing.T) {
	ctx := context.Background()
	swr, _, svc := newTestSWR(t, nil)

	value, err := GetOrSetSWR(ctx, swr, "summaries:h1:2026-01-15", func(context.Context) (*statusSnapshot, error) {
		return nil, nil
	}, 0, 0)

	require.NoError(t, err)
	assert.Nil(t, value)
	assert.False(t, svc.Exists(ctx, "summaries:h1:2026-01-15"))
}

func TestMarker_FormatParse(t *testing.T) {
	tests := []struct {
		raw  string
		ok   bool
		want time.Time
	}{
		{raw: "1768478400.250", ok: true, want: time.Unix(1768478400, 250_000_000)},
		{raw: "1768478400", ok: true, want: time.Unix(1768478400, 0)},
		{raw: "soon", ok: false},
		{raw: "NaN", ok: false},
		{raw: "", ok: false},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%q", tt.raw), func(t *testing.T) {
			got, ok := parseMarker([]byte(tt.raw))
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.WithinDuration(t, tt.want, got, time.Millisecond)
			}
		})
	}

	now := time.Date(2026, 1, 15, 12, 0, 0, 123_000_000, time.UTC)
	got, ok := parseMarker(formatMarker(now))
	require.True(t, ok)
	assert.WithinDuration(t, now, got, time.Millisecond)
}
