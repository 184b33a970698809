package cache

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/kengibson1111/go-test-content-cache/internal"
)

type snapshot struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

func newTestConfig(addr string) *RedisConfig {
	config := DefaultRedisConfig()
	config.Endpoint = addr
	config.MaxRetries = -1
	config.ConnectTimeout = time.Second
	config.RequestTimeout = time.Second
	return config
}

// newTestCache returns a connected cache backed by miniredis.
func newTestCache(t *testing.T) (*miniredis.Miniredis, *RedisCache) {
	t.Helper()
	mr := miniredis.RunT(t)

	c, err := NewRedisCache(newTestConfig(mr.Addr()), zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, c.Connect(context.Background()))
	t.Cleanup(func() { _ = c.Close() })
	return mr, c
}

func newMockCache(t *testing.T) (*MockRedisClient, *RedisCache) {
	t.Helper()
	client := NewMockRedisClient()
	config := DefaultRedisConfig()
	c := NewRedisCacheWithDependencies(client, internal.NewKeyGenerator(config.Namespace), config, zap.NewNop())
	return client, c
}

func appStats(c *RedisCache) AppStats {
	app, _ := c.StatsCollector().Snapshot(0)
	return app
}

func TestNewRedisCache_InvalidConfig(t *testing.T) {
	config := DefaultRedisConfig()
	config.Namespace = "no-separator"

	c, err := NewRedisCache(config, nil)
	assert.Nil(t, c)
	require.Error(t, err)
	assert.True(t, IsValidationError(err))
}

func TestRedisCache_RoundTrip(t *testing.T) {
	mr, c := newTestCache(t)
	ctx := context.Background()

	want := snapshot{ID: "abc", Title: "T"}
	require.NoError(t, c.Set(ctx, "abc", want, 600*time.Second))

	assert.True(t, mr.Exists("entity:abc"))
	assert.Equal(t, 600*time.Second, mr.TTL("entity:abc"))

	raw, err := mr.Get("entity:abc")
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"abc","title":"T"}`, raw)

	var got snapshot
	require.True(t, c.Get(ctx, "abc", &got))
	assert.Equal(t, want, got)

	app := appStats(c)
	assert.Equal(t, uint64(1), app.Hits)
	assert.Equal(t, uint64(1), app.Sets)
	assert.Zero(t, app.Errors)
}

func TestRedisCache_Miss(t *testing.T) {
	_, c := newTestCache(t)

	var got snapshot
	assert.False(t, c.Get(context.Background(), "missing", &got))
	assert.Equal(t, snapshot{}, got)

	app := appStats(c)
	assert.Equal(t, uint64(1), app.Misses)
	assert.Zero(t, app.Errors)
}

func TestRedisCache_Expiry(t *testing.T) {
	mr, c := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "abc", snapshot{ID: "abc"}, time.Second))
	mr.FastForward(1500 * time.Millisecond)

	var got snapshot
	assert.False(t, c.Get(ctx, "abc", &got))
}

func TestRedisCache_ConcreteScenario(t *testing.T) {
	mr, c := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "abc", snapshot{ID: "abc", Title: "T"}, 2*time.Second))

	var got snapshot
	require.True(t, c.Get(ctx, "abc", &got))
	assert.Equal(t, snapshot{ID: "abc", Title: "T"}, got)
	assert.Equal(t, uint64(1), appStats(c).Hits)

	mr.FastForward(3 * time.Second)

	assert.False(t, c.Get(ctx, "abc", &got))
	assert.Equal(t, uint64(1), appStats(c).Misses)

	stats := c.Stats(ctx)
	assert.Equal(t, 50.0, stats.App.HitRate)
	assert.Equal(t, uint64(2), stats.App.TotalRequests)
	require.Len(t, stats.Latency, 2)
	assert.Equal(t, LatencyHit, stats.Latency[0].Kind)
	assert.Equal(t, LatencyMiss, stats.Latency[1].Kind)
}

func TestRedisCache_FailOpenOnConnectionLoss(t *testing.T) {
	mr, c := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "abc", snapshot{ID: "abc"}, time.Minute))
	mr.Close()

	var got snapshot
	assert.False(t, c.Get(ctx, "abc", &got))
	assert.Equal(t, uint64(1), appStats(c).Errors, "one error per failed get")

	assert.False(t, c.Get(ctx, "abc", &got))
	assert.Equal(t, uint64(2), appStats(c).Errors)

	assert.NoError(t, c.Set(ctx, "abc", snapshot{ID: "abc"}, time.Minute), "store failures are not returned")
	assert.Equal(t, uint64(3), appStats(c).Errors)

	c.Invalidate(ctx, "abc")

	app := appStats(c)
	assert.Zero(t, app.Hits)
	assert.Zero(t, app.Misses)
	assert.Equal(t, "degraded", c.Stats(ctx).Connection)
}

func TestRedisCache_UnavailableAfterFailedConnect(t *testing.T) {
	mr := miniredis.RunT(t)
	config := newTestConfig(mr.Addr())
	config.RetryConfig = &RedisRetryConfig{MaxRetries: 1, Step: time.Millisecond, MaxDelay: time.Millisecond}
	mr.Close()

	core, logs := observer.New(zap.WarnLevel)
	c, err := NewRedisCache(config, zap.New(core))
	require.NoError(t, err)
	defer c.Close()

	ctx := context.Background()
	require.Error(t, c.Connect(ctx))

	var got snapshot
	assert.False(t, c.Get(ctx, "abc", &got))
	assert.Equal(t, uint64(1), appStats(c).Errors)
	assert.ErrorIs(t, c.Health(ctx), internal.ErrUnavailable)

	stats := c.Stats(ctx)
	assert.Equal(t, "unavailable", stats.Connection)
	assert.False(t, stats.Server.Available)
	assert.False(t, stats.Keys.Complete)

	assert.Positive(t, logs.FilterMessage("cache get failed, treating as miss").Len())
}

func TestRedisCache_InvalidateIsIdempotent(t *testing.T) {
	mr, c := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "abc", snapshot{ID: "abc"}, time.Minute))
	require.NoError(t, c.Set(ctx, "def", snapshot{ID: "def"}, time.Minute))

	c.Invalidate(ctx, "abc")
	c.Invalidate(ctx, "abc")
	c.Invalidate(ctx, "never-cached")

	var got snapshot
	assert.False(t, c.Get(ctx, "abc", &got))
	assert.False(t, c.Get(ctx, "never-cached", &got))
	assert.True(t, mr.Exists("entity:def"))
	assert.Zero(t, appStats(c).Errors)
}

func TestRedisCache_InvalidateAll(t *testing.T) {
	mr, c := newTestCache(t)
	ctx := context.Background()

	for i := 0; i < 250; i++ {
		require.NoError(t, mr.Set(fmt.Sprintf("entity:%d", i), "{}"))
	}
	require.NoError(t, mr.Set("session:1", "{}"))

	result := c.InvalidateAll(ctx)
	require.NoError(t, result.Err)
	assert.True(t, result.Completed)
	assert.Equal(t, SweepDone, result.State)
	assert.Equal(t, int64(250), result.KeysDeleted)

	for _, key := range mr.Keys() {
		assert.False(t, strings.HasPrefix(key, "entity:"), "key %s survived the sweep", key)
	}
	assert.True(t, mr.Exists("session:1"), "keys outside the namespace are untouched")
}

func TestRedisCache_SetValidation(t *testing.T) {
	_, c := newMockCache(t)
	ctx := context.Background()

	err := c.Set(ctx, "abc", snapshot{ID: "abc"}, 0)
	assert.True(t, IsValidationError(err), "zero ttl: %v", err)

	err = c.Set(ctx, "abc", snapshot{ID: "abc"}, -time.Second)
	assert.True(t, IsValidationError(err), "negative ttl: %v", err)

	err = c.Set(ctx, "abc", nil, time.Minute)
	assert.True(t, IsValidationError(err), "nil snapshot: %v", err)

	var nilSnapshot *snapshot
	err = c.SetAsync("abc", nilSnapshot, time.Minute)
	assert.True(t, IsValidationError(err), "typed nil snapshot: %v", err)

	err = c.Set(ctx, "", snapshot{}, time.Minute)
	var cacheErr *CacheError
	require.True(t, errors.As(err, &cacheErr))
	assert.Equal(t, CacheErrorTypeKeyInvalid, cacheErr.Type)

	err = c.Set(ctx, "abc", map[string]interface{}{"bad": make(chan int)}, time.Minute)
	require.True(t, errors.As(err, &cacheErr))
	assert.Equal(t, CacheErrorTypeSerialization, cacheErr.Type)
}

func TestRedisCache_SetStoreFailureIsSwallowed(t *testing.T) {
	client, c := newMockCache(t)
	client.On("Set", mock.Anything, "entity:abc", mock.Anything, time.Minute).
		Return(internal.NewOperationError("entity:abc", "set failed", errors.New("OOM command not allowed"))).Once()

	assert.NoError(t, c.Set(context.Background(), "abc", snapshot{ID: "abc"}, time.Minute))
	app := appStats(c)
	assert.Equal(t, uint64(1), app.Errors)
	assert.Zero(t, app.Sets)
	client.AssertExpectations(t)
}

func TestRedisCache_GetMalformedPayload(t *testing.T) {
	client, c := newMockCache(t)
	client.On("Get", mock.Anything, "entity:abc").Return([]byte("{not json"), nil).Once()

	var got snapshot
	assert.False(t, c.Get(context.Background(), "abc", &got))

	app := appStats(c)
	assert.Equal(t, uint64(1), app.Errors)
	assert.Zero(t, app.Hits)
	assert.Zero(t, app.Misses)
	client.AssertExpectations(t)
}

func TestRedisCache_GetInvalidIDCountsError(t *testing.T) {
	client, c := newMockCache(t)

	var got snapshot
	assert.False(t, c.Get(context.Background(), "", &got))
	assert.False(t, c.Get(context.Background(), "has space", &got))
	assert.Equal(t, uint64(2), appStats(c).Errors)
	client.AssertNotCalled(t, "Get", mock.Anything, mock.Anything)
}

func TestRedisCache_GetUsesRedisNilAsMiss(t *testing.T) {
	client, c := newMockCache(t)
	client.On("Get", mock.Anything, "entity:abc").Return(nil, redis.Nil).Once()

	var got snapshot
	assert.False(t, c.Get(context.Background(), "abc", &got))
	assert.Equal(t, uint64(1), appStats(c).Misses)
	assert.Zero(t, appStats(c).Errors)
}

func TestRedisCache_SetAsync(t *testing.T) {
	mr, c := newTestCache(t)

	require.NoError(t, c.SetAsync("abc", snapshot{ID: "abc", Title: "T"}, time.Minute))

	require.Eventually(t, func() bool {
		return appStats(c).Sets == 1
	}, 2*time.Second, 5*time.Millisecond)

	raw, err := mr.Get("entity:abc")
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"abc","title":"T"}`, raw)
	assert.Equal(t, time.Minute, mr.TTL("entity:abc"))
}

func TestRedisCache_CloseDrainsPendingWrites(t *testing.T) {
	mr := miniredis.RunT(t)
	c, err := NewRedisCache(newTestConfig(mr.Addr()), nil)
	require.NoError(t, err)

	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, c.SetAsync(id, snapshot{ID: id}, time.Minute))
	}
	require.NoError(t, c.Close())

	for _, id := range []string{"a", "b", "c"} {
		assert.True(t, mr.Exists("entity:"+id), "entity:%s written before close returned", id)
	}
	assert.Equal(t, uint64(3), appStats(c).Sets)
}

func TestRedisCache_Stats(t *testing.T) {
	client, c := newMockCache(t)
	ctx := context.Background()

	client.On("Info", mock.Anything, "stats").Return("# Stats\r\nkeyspace_hits:310\r\nkeyspace_misses:45\r\ntotal_commands_processed:1042\r\n", nil)
	client.On("Info", mock.Anything, "memory").Return("# Memory\r\nused_memory:1048576\r\nused_memory_human:1.00M\r\nused_memory_peak_human:2.00M\r\n", nil)
	client.On("Info", mock.Anything, "clients").Return("# Clients\r\nconnected_clients:7\r\n", nil)
	client.On("Scan", mock.Anything, internal.InitialCursor, "entity:*", int64(100)).
		Return([]string{"entity:1", "entity:2"}, internal.Cursor{Position: 17}, nil).Once()
	client.On("Scan", mock.Anything, internal.Cursor{Position: 17}, "entity:*", int64(100)).
		Return([]string{"entity:3"}, internal.InitialCursor, nil).Once()
	client.On("State").Return(internal.StateConnected)

	c.StatsCollector().RecordHit(time.Millisecond)
	c.StatsCollector().RecordMiss(3 * time.Millisecond)

	stats := c.Stats(ctx)
	assert.Equal(t, 50.0, stats.App.HitRate)
	assert.Equal(t, int64(3), stats.Keys.EntityKeys)
	assert.True(t, stats.Keys.Complete)
	assert.Equal(t, "entity:", stats.Keys.Namespace)
	assert.True(t, stats.Server.Available)
	assert.Equal(t, int64(310), stats.Server.KeyspaceHits)
	assert.Equal(t, "1.00M", stats.Server.UsedMemory)
	assert.Equal(t, int64(7), stats.Server.ConnectedClients)
	assert.Equal(t, "connected", stats.Connection)
	assert.Nil(t, stats.ConnectionInfo, "mock client does not describe its connection")
	assert.Len(t, stats.Latency, 2)

	client.AssertNotCalled(t, "Del", mock.Anything, mock.Anything)
	client.AssertExpectations(t)
}

func TestRedisCache_StatsInfoFailure(t *testing.T) {
	client, c := newMockCache(t)

	client.On("Info", mock.Anything, "stats").Return("", errors.New("ERR unknown command"))
	client.On("Scan", mock.Anything, internal.InitialCursor, "entity:*", int64(100)).
		Return([]string{}, internal.InitialCursor, nil)
	client.On("State").Return(internal.StateConnected)

	stats := c.Stats(context.Background())
	assert.Equal(t, ServerMetrics{}, stats.Server)
	assert.True(t, stats.Keys.Complete)
	assert.Zero(t, stats.Keys.EntityKeys)
}

func TestRedisCache_ResetStats(t *testing.T) {
	_, c := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "abc", snapshot{ID: "abc"}, time.Minute))
	var got snapshot
	c.Get(ctx, "abc", &got)
	c.Get(ctx, "missing", &got)

	c.ResetStats()

	app, latency := c.StatsCollector().Snapshot(50)
	assert.Zero(t, app.Hits)
	assert.Zero(t, app.Misses)
	assert.Zero(t, app.Sets)
	assert.Zero(t, app.HitRate)
	assert.Empty(t, latency)
}

func TestRedisCache_Health(t *testing.T) {
	mr, c := newTestCache(t)
	assert.NoError(t, c.Health(context.Background()))

	mr.Close()
	assert.Error(t, c.Health(context.Background()))
}

func TestRedisCache_CloseClosesClient(t *testing.T) {
	client, c := newMockCache(t)
	client.On("Close").Return(nil).Once()

	assert.NoError(t, c.Close())
	client.AssertExpectations(t)
}

func TestRedisCache_StatsConnectionInfo(t *testing.T) {
	mr := miniredis.RunT(t)
	config := newTestConfig("redis://default:s3cret@" + mr.Addr())
	mr.RequireAuth("s3cret")

	c, err := NewRedisCache(config, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, c.Connect(context.Background()))
	t.Cleanup(func() { _ = c.Close() })

	stats := c.Stats(context.Background())
	require.NotNil(t, stats.ConnectionInfo)
	assert.Equal(t, "standalone", stats.ConnectionInfo["mode"])
	assert.Equal(t, "connected", stats.ConnectionInfo["state"])

	endpoint, ok := stats.ConnectionInfo["endpoint"].(string)
	require.True(t, ok)
	assert.NotContains(t, endpoint, "s3cret")
	assert.Contains(t, endpoint, mr.Addr())
	assert.Contains(t, stats.ConnectionInfo, "pool_total_conns")
}

func TestRedisCache_GetWithCancelledContext(t *testing.T) {
	client, c := newMockCache(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var got snapshot
	assert.False(t, c.Get(ctx, "abc", &got))
	assert.Equal(t, uint64(1), appStats(c).Errors)
	assert.Zero(t, appStats(c).Misses)
	client.AssertNotCalled(t, "Get", mock.Anything, mock.Anything)
}

func TestNewRedisCacheWithDependencies_FillsUnsetSettings(t *testing.T) {
	client := NewMockRedisClient()
	config := &RedisConfig{Mode: internal.TopologyStandalone, Endpoint: "localhost:6379"}

	written := make(chan bool, 1)
	client.On("Set", mock.Anything, "entity:abc", mock.Anything, time.Minute).
		Run(func(args mock.Arguments) {
			ctx := args.Get(0).(context.Context)
			deadline, ok := ctx.Deadline()
			written <- ok && time.Until(deadline) > time.Second && ctx.Err() == nil
		}).Return(nil).Once()

	c := NewRedisCacheWithDependencies(client, nil, config, zap.NewNop())
	assert.Equal(t, DefaultRedisConfig().RequestTimeout, c.Config().RequestTimeout)
	assert.Equal(t, "entity:", c.Config().Namespace)
	assert.Equal(t, int64(100), c.Config().ScanBatchSize)
	assert.Zero(t, config.RequestTimeout, "caller's config is not modified")

	require.NoError(t, c.SetAsync("abc", snapshot{ID: "abc"}, time.Minute))
	require.NoError(t, c.populator.Close(context.Background()))

	assert.True(t, <-written, "background write gets the default request timeout")
	assert.Equal(t, uint64(1), appStats(c).Sets)
	assert.Zero(t, appStats(c).Errors)
}
