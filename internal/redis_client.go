package internal

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// ConnectionState is the lifecycle state of the connection manager.
type ConnectionState int32

const (
	// StateConnecting is the initial state before the first successful ping
	StateConnecting ConnectionState = iota
	// StateConnected means the last operation reached the store
	StateConnected
	// StateDegraded means the last operation failed on connectivity; the client keeps trying
	StateDegraded
	// StateUnavailable is terminal: startup retries were exhausted
	StateUnavailable
)

func (s ConnectionState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateDegraded:
		return "degraded"
	case StateUnavailable:
		return "unavailable"
	default:
		return "unknown"
	}
}

// RedisClientInterface defines the interface for Redis client operations
type RedisClientInterface interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) (int64, error)
	Scan(ctx context.Context, cursor Cursor, match string, count int64) ([]string, Cursor, error)
	Info(ctx context.Context, section string) (string, error)
	Health(ctx context.Context) error
	State() ConnectionState
	Config() *Config
	Close() error
}

// RedisClient owns the single shared store handle and hides the topology
// behind Store. It never panics or exits on an outage.
type RedisClient struct {
	store  Store
	config *Config
	logger *zap.Logger
	state  atomic.Int32
	sleep  func(ctx context.Context, d time.Duration) error
}

var _ RedisClientInterface = (*RedisClient)(nil)

// NewRedisClient creates a new Redis client with the provided configuration.
// No connection is attempted until Connect or the first operation.
func NewRedisClient(config *Config, logger *zap.Logger) (*RedisClient, error) {
	if config == nil {
		config = DefaultConfig()
	}

	if err := validateConfig(config); err != nil {
		return nil, NewValidationError("invalid configuration", err)
	}

	store, err := newStore(config)
	if err != nil {
		return nil, NewValidationError("failed to create store client", err)
	}

	return NewRedisClientWithStore(store, config, logger), nil
}

// NewRedisClientWithStore wires an existing store, used by tests and custom topologies.
func NewRedisClientWithStore(store Store, config *Config, logger *zap.Logger) *RedisClient {
	if config == nil {
		config = DefaultConfig()
	}
	if config.RetryConfig == nil {
		config.RetryConfig = DefaultRetryConfig()
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	rc := &RedisClient{
		store:  store,
		config: config,
		logger: logger.With(zap.String("component", "redis"), zap.String("mode", string(config.Mode))),
		sleep:  sleepContext,
	}
	rc.state.Store(int32(StateConnecting))
	return rc
}

// Connect pings the store until it answers, backing off linearly between
// attempts. Once RetryConfig.MaxRetries retries have failed the client
// becomes permanently unavailable. A ctx that ends first leaves the client
// connecting, so a later Connect or operation can still reach the store.
func (rc *RedisClient) Connect(ctx context.Context) error {
	if rc.State() == StateUnavailable {
		return ErrUnavailable
	}

	maxRetries := rc.config.RetryConfig.MaxRetries
	var lastErr error

	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			delay := rc.calculateBackoffDelay(attempt)
			rc.logger.Warn("redis connection attempt failed, retrying",
				zap.Int("retry", attempt),
				zap.Int("max_retries", maxRetries),
				zap.Duration("delay", delay),
				zap.Error(lastErr))

			if err := rc.sleep(ctx, delay); err != nil {
				return rc.connectInterrupted(attempt, err)
			}
		}

		pingCtx, cancel := context.WithTimeout(ctx, rc.config.ConnectTimeout)
		err := rc.store.Ping(pingCtx)
		cancel()

		if err == nil {
			rc.transition(StateConnected)
			return nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return rc.connectInterrupted(attempt+1, ctxErr)
		}
		lastErr = err
	}

	rc.transition(StateUnavailable)
	return NewConnectionError(fmt.Sprintf("failed to connect after %d retries", maxRetries), lastErr)
}

// connectInterrupted reports a Connect abandoned by its caller after attempts pings.
func (rc *RedisClient) connectInterrupted(attempts int, err error) error {
	rc.logger.Warn("redis connect interrupted, state left unchanged",
		zap.Int("attempts", attempts),
		zap.String("state", rc.State().String()),
		zap.Error(err))

	msg := fmt.Sprintf("connect interrupted after %d attempts", attempts)
	if errors.Is(err, context.DeadlineExceeded) {
		return NewTimeoutError("", msg, err)
	}
	return NewConnectionError(msg, err)
}

// calculateBackoffDelay returns the delay before the given retry (1-based).
func (rc *RedisClient) calculateBackoffDelay(retry int) time.Duration {
	config := rc.config.RetryConfig
	if config == nil {
		config = DefaultRetryConfig()
	}

	delay := time.Duration(retry) * config.Step
	if delay > config.MaxDelay {
		delay = config.MaxDelay
	}
	return delay
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// State returns the current connection state.
func (rc *RedisClient) State() ConnectionState {
	return ConnectionState(rc.state.Load())
}

// transition moves to next and logs the change once.
func (rc *RedisClient) transition(next ConnectionState) {
	for {
		prev := ConnectionState(rc.state.Load())
		if prev == next || prev == StateUnavailable {
			return
		}
		if !rc.state.CompareAndSwap(int32(prev), int32(next)) {
			continue
		}

		fields := []zap.Field{zap.Stringer("from", prev), zap.Stringer("to", next)}
		switch next {
		case StateConnected:
			rc.logger.Info("redis connected", fields...)
		case StateDegraded:
			rc.logger.Warn("redis connection degraded", fields...)
		case StateUnavailable:
			rc.logger.Error("redis unavailable, giving up", fields...)
		default:
			rc.logger.Info("redis state changed", fields...)
		}
		return
	}
}

// observe tracks connectivity from operation outcomes.
func (rc *RedisClient) observe(err error) {
	if err == nil || errors.Is(err, redis.Nil) {
		rc.transition(StateConnected)
		return
	}
	if IsConnectionError(err) || IsTimeoutError(err) {
		rc.transition(StateDegraded)
	}
}

// execute runs fn under the per-call timeout. Unavailable clients short-circuit.
func (rc *RedisClient) execute(ctx context.Context, operation, key string, fn func(ctx context.Context) error) error {
	if rc.State() == StateUnavailable {
		return ErrUnavailable
	}

	qctx, cancel := context.WithTimeout(ctx, rc.config.RequestTimeout)
	defer cancel()

	err := fn(qctx)
	if err != nil && !errors.Is(err, redis.Nil) {
		err = ClassifyError(err, key, operation)
	}
	rc.observe(err)
	return err
}

// Get returns the raw value. A missing key yields redis.Nil unchanged.
func (rc *RedisClient) Get(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := rc.execute(ctx, "get", key, func(ctx context.Context) error {
		v, err := rc.store.Get(ctx, key)
		value = v
		return err
	})
	if err != nil {
		return nil, err
	}
	return value, nil
}

// Set stores value under key with the given TTL.
func (rc *RedisClient) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return rc.execute(ctx, "set", key, func(ctx context.Context) error {
		return rc.store.Set(ctx, key, value, ttl)
	})
}

// Del deletes keys and returns how many existed.
func (rc *RedisClient) Del(ctx context.Context, keys ...string) (int64, error) {
	var deleted int64
	key := ""
	if len(keys) == 1 {
		key = keys[0]
	}
	err := rc.execute(ctx, "del", key, func(ctx context.Context) error {
		n, err := rc.store.Del(ctx, keys...)
		deleted = n
		return err
	})
	return deleted, err
}

// Scan fetches one batch of keys matching match starting at cursor.
func (rc *RedisClient) Scan(ctx context.Context, cursor Cursor, match string, count int64) ([]string, Cursor, error) {
	var keys []string
	next := cursor
	err := rc.execute(ctx, "scan", "", func(ctx context.Context) error {
		k, n, err := rc.store.Scan(ctx, cursor, match, count)
		keys, next = k, n
		return err
	})
	if err != nil {
		return nil, cursor, err
	}
	return keys, next, nil
}

// Info returns the raw INFO text for section.
func (rc *RedisClient) Info(ctx context.Context, section string) (string, error) {
	var text string
	err := rc.execute(ctx, "info", "", func(ctx context.Context) error {
		t, err := rc.store.Info(ctx, section)
		text = t
		return err
	})
	return text, err
}

// Health performs a PING under the request timeout
func (rc *RedisClient) Health(ctx context.Context) error {
	return rc.execute(ctx, "ping", "", func(ctx context.Context) error {
		return rc.store.Ping(ctx)
	})
}

// Config returns the Redis client configuration
func (rc *RedisClient) Config() *Config {
	return rc.config
}

// Topology returns the configured deployment shape.
func (rc *RedisClient) Topology() Topology {
	return rc.config.Mode
}

// PoolStats returns connection pool counters, nil if the store keeps none.
func (rc *RedisClient) PoolStats() *redis.PoolStats {
	return rc.store.PoolStats()
}

// Close closes the underlying store connection
func (rc *RedisClient) Close() error {
	return rc.store.Close()
}

// GetConnectionInfo returns information about the current Redis connection
func (rc *RedisClient) GetConnectionInfo() map[string]interface{} {
	info := make(map[string]interface{})

	info["mode"] = string(rc.Topology())
	info["state"] = rc.State().String()
	if rc.config.Mode == TopologyCluster {
		info["nodes"] = rc.config.ClusterNodes
	} else {
		info["endpoint"] = redactEndpoint(rc.config.Endpoint)
		info["db"] = rc.config.DB
	}
	info["pool_size"] = rc.config.PoolSize

	if poolStats := rc.PoolStats(); poolStats != nil {
		info["pool_hits"] = poolStats.Hits
		info["pool_misses"] = poolStats.Misses
		info["pool_timeouts"] = poolStats.Timeouts
		info["pool_total_conns"] = poolStats.TotalConns
		info["pool_idle_conns"] = poolStats.IdleConns
		info["pool_stale_conns"] = poolStats.StaleConns
	}

	return info
}

// redactEndpoint hides credentials embedded in a redis:// URL.
func redactEndpoint(endpoint string) string {
	if !strings.Contains(endpoint, "://") {
		return endpoint
	}
	u, err := url.Parse(endpoint)
	if err != nil {
		return "<invalid endpoint>"
	}
	return u.Redacted()
}
