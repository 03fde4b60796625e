package cache

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestService_SetGet_RoundTrip(t *testing.T) {
	// Arrange
	ctx := context.Background()
	spy := newSpyRecorder()
	svc, mr := newTestService(t, spy)
	camera := testCamera{ID: "c1", Name: "Porch", Online: true}

	// Act
	ok := svc.Set(ctx, CameraKey("h1", "c1"), camera, 0)
	var got testCamera
	found := svc.Get(ctx, CameraKey("h1", "c1"), &got)

	// Assert
	require.True(t, ok)
	require.True(t, found)
	assert.Equal(t, camera, got)
	assert.True(t, mr.Exists("test:cache:cameras:h1:c1"))
	assert.Equal(t, 5*time.Minute, mr.TTL("test:cache:cameras:h1:c1"))
	assert.Equal(t, 1, spy.hits["cameras"])
}

func TestService_Get_Miss(t *testing.T) {
	spy := newSpyRecorder()
	svc, _ := newTestService(t, spy)

	var got testCamera
	assert.False(t, svc.Get(context.Background(), "cameras:h1:missing", &got))
	assert.Equal(t, 1, spy.misses["cameras"])
}

func TestService_TTLExpiry(t *testing.T) {
	ctx := context.Background()
	svc, mr := newTestService(t, nil)

	require.True(t, svc.Set(ctx, "k", map[string]int{"a": 1}, time.Second))

	var got map[string]int
	require.True(t, svc.Get(ctx, "k", &got))
	assert.Equal(t, map[string]int{"a": 1}, got)

	mr.FastForward(1500 * time.Millisecond)

	got = nil
	assert.False(t, svc.Get(ctx, "k", &got))
	assert.Nil(t, got)
}

func TestService_Touch_ExtendsLife(t *testing.T) {
	ctx := context.Background()
	svc, mr := newTestService(t, nil)

	require.True(t, svc.Set(ctx, "alerts:active:h1", []string{"a1"}, 10*time.Second))
	mr.FastForward(8 * time.Second)

	assert.True(t, svc.Touch(ctx, "alerts:active:h1", 10*time.Second))
	mr.FastForward(8 * time.Second)

	assert.True(t, svc.Exists(ctx, "alerts:active:h1"))
	assert.False(t, svc.Touch(ctx, "alerts:active:missing", time.Minute))
}

func TestService_GetOrCompute(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t, nil)

	var calls atomic.Int32
	factory := func(context.Context) (*testCamera, error) {
		calls.Add(1)
		return &testCamera{ID: "c1", Name: "Garage"}, nil
	}

	first, err := GetOrCompute(ctx, svc, CameraKey("h1", "c1"), 0, factory)
	require.NoError(t, err)
	second, err := GetOrCompute(ctx, svc, CameraKey("h1", "c1"), 0, factory)
	require.NoError(t, err)

	assert.Equal(t, "Garage", first.Name)
	assert.Equal(t, first, second)
	assert.Equal(t, int32(1), calls.Load())
}

func TestService_GetOrCompute_NilNotCached(t *testing.T) {
	ctx := context.Background()
	svc, mr := newTestService(t, nil)

	var calls atomic.Int32
	factory := func(context.Context) (*testCamera, error) {
		calls.Add(1)
		return nil, nil
	}

	value, err := GetOrCompute(ctx, svc, "cameras:h1:ghost", 0, factory)
	require.NoError(t, err)
	assert.Nil(t, value)
	assert.False(t, mr.Exists("test:cache:cameras:h1:ghost"))

	var got testCamera
	assert.False(t, svc.Get(ctx, "cameras:h1:ghost", &got))

	_, err = GetOrCompute(ctx, svc, "cameras:h1:ghost", 0, factory)
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
}

func TestService_GetOrCompute_FactoryErrorPropagates(t *testing.T) {
	svc, mr := newTestService(t, nil)
	boom := errors.New("database down")

	value, err := GetOrCompute(context.Background(), svc, "events:recent:h1:10", 0,
		func(context.Context) (*[]string, error) { return nil, boom })

	assert.ErrorIs(t, err, boom)
	assert.Nil(t, value)
	assert.Empty(t, mr.Keys())
}

func TestService_Invalidate(t *testing.T) {
	ctx := context.Background()
	spy := newSpyRecorder()
	svc, _ := newTestService(t, spy)

	// Absent key is not an error.
	assert.False(t, svc.Invalidate(ctx, "cameras:h1:c1"))

	require.True(t, svc.Set(ctx, "cameras:h1:c1", testCamera{ID: "c1"}, 0))
	assert.True(t, svc.Invalidate(ctx, "cameras:h1:c1"))
	assert.False(t, svc.Exists(ctx, "cameras:h1:c1"))
	assert.Equal(t, 1, spy.invalidations["cameras/"+ReasonManual])
}

func TestService_InvalidatePattern_Precision(t *testing.T) {
	ctx := context.Background()
	spy := newSpyRecorder()
	svc, mr := newTestService(t, spy)

	for _, key := range []string{"stats:events:h1", "stats:events:h2", "stats:events:h3", "stats:cameras:h1"} {
		require.True(t, svc.Set(ctx, key, 1, 0))
	}

	deleted := svc.InvalidatePattern(ctx, "stats:events:*", ReasonEventCreated)

	assert.Equal(t, 3, deleted)
	var v int
	assert.True(t, svc.Get(ctx, "stats:cameras:h1", &v))
	assert.Equal(t, []string{"test:cache:stats:cameras:h1"}, mr.Keys())
	assert.Equal(t, 1, spy.invalidations["stats/"+ReasonEventCreated])
}

func TestService_InvalidatePattern_RemovesCompanionKeys(t *testing.T) {
	ctx := context.Background()
	svc, mr := newTestService(t, nil)

	require.True(t, svc.Set(ctx, "cameras:h1:c1", testCamera{ID: "c1"}, 0))
	require.NoError(t, mr.Set("test:cache:cameras:h1:c1:fresh_until", "1"))
	require.NoError(t, mr.Set("test:cache:cameras:h1:c1:loading", "1"))
	require.True(t, svc.Set(ctx, "cameras:h2:c9", testCamera{ID: "c9"}, 0))

	deleted := svc.InvalidatePattern(ctx, "cameras:h1:*", ReasonCameraUpdated)

	assert.Equal(t, 2, deleted)
	assert.Equal(t, []string{"test:cache:cameras:h1:c1:loading", "test:cache:cameras:h2:c9"}, mr.Keys())
}

func TestService_InvalidatePattern_KeepsHeldLocks(t *testing.T) {
	ctx := context.Background()
	svc, mr := newTestService(t, nil)

	require.NoError(t, mr.Set("test:cache:stats:events:h1:refreshing", "1"))
	require.NoError(t, mr.Set("test:cache:cameras:h1:c1:loading", "1"))

	assert.Zero(t, svc.InvalidatePattern(ctx, "stats:*", ReasonEventCreated))
	assert.Zero(t, svc.InvalidatePattern(ctx, "cameras:*", ReasonCameraUpdated))

	// The locks still exclude a second load or refresh.
	acquired, err := svc.backend.SetIfAbsent(ctx, "test:cache:cameras:h1:c1:loading", []byte("1"), time.Second)
	require.NoError(t, err)
	assert.False(t, acquired)
	assert.True(t, mr.Exists("test:cache:stats:events:h1:refreshing"))
}

func TestService_InvalidatePattern_NoMatches(t *testing.T) {
	spy := newSpyRecorder()
	svc, _ := newTestService(t, spy)

	assert.Equal(t, 0, svc.InvalidatePattern(context.Background(), "cameras:*", ReasonCameraUpdated))
	assert.Empty(t, spy.invalidations)
}

func TestService_DomainInvalidation(t *testing.T) {
	tests := []struct {
		name       string
		invalidate func(*Service, context.Context) int
		keys       []string
		survivor   string
		want       int
	}{
		{
			name:       "events drop lists and stats",
			invalidate: (*Service).InvalidateEvents,
			keys:       []string{RecentEventsKey("h1", 10), RecentEventsKey("h1", 50), EventStatsKey("h1")},
			survivor:   CameraListKey("h1"),
			want:       3,
		},
		{
			name:       "cameras",
			invalidate: (*Service).InvalidateCameras,
			keys:       []string{CameraKey("h1", "c1"), CameraListKey("h1")},
			survivor:   ActiveAlertsKey("h1"),
			want:       2,
		},
		{
			name:       "alerts",
			invalidate: (*Service).InvalidateAlerts,
			keys:       []string{ActiveAlertsKey("h1")},
			survivor:   EventStatsKey("h1"),
			want:       1,
		},
		{
			name:       "detections",
			invalidate: (*Service).InvalidateDetections,
			keys:       []string{DetectionsKey("h1", "e1")},
			survivor:   RecentEventsKey("h1", 10),
			want:       1,
		},
		{
			name:       "summaries",
			invalidate: (*Service).InvalidateSummaries,
			keys:       []string{SummaryKey("h1", "2026-01-15")},
			survivor:   SystemStatusKey,
			want:       1,
		},
		{
			name:       "system status",
			invalidate: (*Service).InvalidateSystemStatus,
			keys:       []string{SystemStatusKey},
			survivor:   SummaryKey("h1", "2026-01-15"),
			want:       1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			svc, _ := newTestService(t, nil)
			for _, key := range append(tt.keys, tt.survivor) {
				require.True(t, svc.Set(ctx, key, "v", 0))
			}

			assert.Equal(t, tt.want, tt.invalidate(svc, ctx))
			assert.True(t, svc.Exists(ctx, tt.survivor))
			for _, key := range tt.keys {
				assert.False(t, svc.Exists(ctx, key), key)
			}
		})
	}
}

func TestService_BackendUnavailable_Degrades(t *testing.T) {
	ctx := context.Background()
	svc, mr := newTestService(t, nil)
	mr.SetError("ERR connection refused")

	var got testCamera
	assert.False(t, svc.Get(ctx, "cameras:h1:c1", &got))
	assert.False(t, svc.Set(ctx, "cameras:h1:c1", testCamera{ID: "c1"}, 0))
	assert.False(t, svc.Exists(ctx, "cameras:h1:c1"))
	assert.False(t, svc.Invalidate(ctx, "cameras:h1:c1"))
	assert.Equal(t, 0, svc.InvalidatePattern(ctx, "cameras:*", ReasonCameraUpdated))
	assert.False(t, svc.Healthy(ctx))

	value, err := GetOrCompute(ctx, svc, "cameras:h1:c1", 0, func(context.Context) (*testCamera, error) {
		return &testCamera{ID: "c1", Name: "Porch"}, nil
	})
	require.NoError(t, err)
	assert.Equal(t, "Porch", value.Name)

	mr.SetError("")
	assert.True(t, svc.Healthy(ctx))
}

func TestService_RecorderPanicIsContained(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t, panicRecorder{})

	require.True(t, svc.Set(ctx, "cameras:h1:c1", testCamera{ID: "c1"}, 0))

	var got testCamera
	assert.NotPanics(t, func() {
		assert.True(t, svc.Get(ctx, "cameras:h1:c1", &got))
		assert.False(t, svc.Get(ctx, "cameras:h1:c2", &got))
		assert.True(t, svc.Invalidate(ctx, "cameras:h1:c1"))
	})
}

func TestService_UndecodableEntryIsMiss(t *testing.T) {
	svc, mr := newTestService(t, nil)
	require.NoError(t, mr.Set("test:cache:cameras:h1:c1", "{not json"))

	var got testCamera
	assert.False(t, svc.Get(context.Background(), "cameras:h1:c1", &got))
}

func TestNewService_Defaults(t *testing.T) {
	svc := NewService(NewMemoryBackend(0, 0, nil), Options{}, nil, nil)

	assert.Equal(t, 5*time.Minute, svc.DefaultTTL())
	assert.Equal(t, 30*time.Second, svc.ShortTTL())
	assert.Equal(t, time.Hour, svc.LongTTL())
	assert.Equal(t, "cache:x", svc.Keyspace().Key("x"))
}

func TestService_MemoryBackend(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	backend := NewMemoryBackend(100, 0, zap.NewNop(), WithClock(clock.Now))
	svc := NewService(backend, Options{KeyPrefix: "homeguard"}, nil, zap.NewNop())

	require.True(t, svc.Set(ctx, "events:recent:h1:10", []string{"e1"}, time.Second))
	require.True(t, svc.Set(ctx, "stats:events:h1", 3, time.Minute))

	clock.Advance(2 * time.Second)

	var events []string
	assert.False(t, svc.Get(ctx, "events:recent:h1:10", &events))
	assert.Equal(t, 1, svc.InvalidateEvents(ctx))
}
