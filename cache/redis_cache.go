package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/kengibson1111/go-test-content-cache/internal"
)

// MetricsNamespace prefixes every exported Prometheus metric.
const MetricsNamespace = "testcache"

// populatorDrainTimeout bounds how long Close waits for queued writes.
const populatorDrainTimeout = 5 * time.Second

// RedisCache implements the Cache interface using Redis as the backend
type RedisCache struct {
	client    internal.RedisClientInterface
	keyGen    internal.KeyGenerator
	validator *internal.InputValidator
	config    *internal.Config
	logger    *zap.Logger
	stats     *StatsCollector
	metrics   *Metrics
	sweeper   *Sweeper
	populator *Populator
}

var _ Cache = (*RedisCache)(nil)

// NewRedisCache creates a new Redis-backed cache. The connection is not
// established until Connect or the first operation.
func NewRedisCache(config *internal.Config, logger *zap.Logger) (*RedisCache, error) {
	if config == nil {
		config = internal.DefaultConfig()
	}

	client, err := internal.NewRedisClient(config, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create Redis client: %w", err)
	}

	return NewRedisCacheWithDependencies(client, internal.NewKeyGenerator(config.Namespace), config, logger), nil
}

// NewRedisCacheWithDependencies creates a new Redis cache with injected dependencies for testing
// Unset timeouts and sizes in config fall back to their defaults.
func NewRedisCacheWithDependencies(client internal.RedisClientInterface, keyGen internal.KeyGenerator, config *internal.Config, logger *zap.Logger) *RedisCache {
	config = internal.WithDefaults(config)
	if keyGen == nil {
		keyGen = internal.NewKeyGenerator(config.Namespace)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("namespace", keyGen.Namespace()))
	if err := internal.ValidateConfig(config); err != nil {
		logger.Warn("cache configuration is invalid", zap.Error(err))
	}

	metrics := NewMetrics(MetricsNamespace)
	stats := NewStatsCollector(config.LatencyHistoryCapacity, metrics)

	return &RedisCache{
		client:    client,
		keyGen:    keyGen,
		validator: internal.NewInputValidator(),
		config:    config,
		logger:    logger,
		stats:     stats,
		metrics:   metrics,
		sweeper:   NewSweeper(client, keyGen, logger, metrics),
		populator: NewPopulator(client, stats, logger, config.PopulateWorkers, config.PopulateQueueSize, config.RequestTimeout),
	}
}

// Connect establishes the connection with bounded retries. A failure leaves
// the cache usable: every read degrades to a miss.
func (rc *RedisCache) Connect(ctx context.Context) error {
	connector, ok := rc.client.(interface{ Connect(context.Context) error })
	if !ok {
		return nil
	}
	return connector.Connect(ctx)
}

// Get retrieves the snapshot for id into dest. It reports a miss for absent
// keys and for every failure, so callers always fall back to the origin.
func (rc *RedisCache) Get(ctx context.Context, id string, dest any) bool {
	// A caller that already gave up never reaches the store.
	if err := rc.validator.ValidateContext(ctx); err != nil {
		rc.stats.RecordError()
		rc.logger.Debug("cache get skipped", zap.String("id", id), zap.Error(err))
		return false
	}

	key, err := rc.key(id)
	if err != nil {
		rc.stats.RecordError()
		rc.logger.Warn("cache get skipped, invalid key", zap.String("id", id), zap.Error(err))
		return false
	}

	start := time.Now()
	data, err := rc.client.Get(ctx, key)
	elapsed := time.Since(start)

	if err != nil {
		if errors.Is(err, redis.Nil) {
			rc.stats.RecordMiss(elapsed)
			rc.logger.Debug("cache miss", zap.String("key", key), zap.Duration("latency", elapsed))
			return false
		}
		rc.stats.RecordError()
		rc.logger.Warn("cache get failed, treating as miss", zap.String("key", key), zap.Error(err))
		return false
	}

	if err := json.Unmarshal(data, dest); err != nil {
		rc.stats.RecordError()
		rc.logger.Warn("cached snapshot is malformed, treating as miss",
			zap.String("key", key),
			zap.Error(internal.NewSerializationError(key, "failed to unmarshal snapshot", err)))
		return false
	}

	rc.stats.RecordHit(elapsed)
	rc.logger.Debug("cache hit", zap.String("key", key), zap.Duration("latency", elapsed))
	return true
}

// key builds and validates the cache key for id.
func (rc *RedisCache) key(id string) (string, error) {
	key := rc.keyGen.EntityKey(id)
	if err := rc.validator.ValidateID(id); err != nil {
		return key, internal.NewKeyInvalidError(key, err.Error())
	}
	if err := rc.keyGen.ValidateKey(key); err != nil {
		return key, internal.NewKeyInvalidError(key, fmt.Sprintf("invalid key generated: %v", err))
	}
	return key, nil
}

// prepare validates a write and serializes the snapshot.
func (rc *RedisCache) prepare(id string, snapshot any, ttl time.Duration) (string, []byte, error) {
	if err := rc.validator.ValidateTTL(ttl); err != nil {
		return "", nil, err
	}

	if err := rc.validator.ValidateSnapshot(snapshot); err != nil {
		return "", nil, err
	}

	key, err := rc.key(id)
	if err != nil {
		return "", nil, err
	}

	data, err := json.Marshal(snapshot)
	if err != nil {
		return "", nil, internal.NewSerializationError(key, "failed to marshal snapshot", err)
	}

	return key, data, nil
}

// Set stores a snapshot and waits for the store. Store failures are
// counted and logged; only invalid arguments return an error.
func (rc *RedisCache) Set(ctx context.Context, id string, snapshot any, ttl time.Duration) error {
	key, data, err := rc.prepare(id, snapshot, ttl)
	if err != nil {
		return err
	}

	if err := rc.client.Set(ctx, key, data, ttl); err != nil {
		rc.stats.RecordError()
		rc.logger.Warn("cache set failed", zap.String("key", key), zap.Error(err))
		return nil
	}

	rc.stats.RecordSet()
	rc.logger.Debug("cached", zap.String("key", key), zap.Duration("ttl", ttl))
	return nil
}

// SetAsync serializes the snapshot now and leaves the write to the
// populator. The returned error only reports invalid arguments.
func (rc *RedisCache) SetAsync(id string, snapshot any, ttl time.Duration) error {
	key, data, err := rc.prepare(id, snapshot, ttl)
	if err != nil {
		return err
	}

	// Queue failures are already counted and logged by the populator.
	_ = rc.populator.Submit(key, data, ttl)
	return nil
}

// Invalidate removes the snapshot for id. A failure leaves the entry to
// expire with its TTL.
func (rc *RedisCache) Invalidate(ctx context.Context, id string) {
	key, err := rc.key(id)
	if err != nil {
		rc.logger.Warn("invalidate skipped, invalid key", zap.String("id", id), zap.Error(err))
		return
	}

	if _, err := rc.client.Del(ctx, key); err != nil {
		rc.logger.Warn("cache invalidate failed, entry expires with its TTL", zap.String("key", key), zap.Error(err))
		return
	}

	rc.logger.Info("invalidated", zap.String("key", key))
}

// InvalidateAll sweeps the whole namespace.
func (rc *RedisCache) InvalidateAll(ctx context.Context) *SweepResult {
	return rc.sweeper.Run(ctx, DefaultSweepOptions(rc.config))
}

// Stats returns local counters merged with server INFO and the current key count.
func (rc *RedisCache) Stats(ctx context.Context) *StatsSnapshot {
	app, latency := rc.stats.Snapshot(rc.config.RecentLatencySamples)

	count := rc.sweeper.Count(ctx, rc.config.ScanBatchSize)

	return &StatsSnapshot{
		App:     app,
		Server:  rc.serverMetrics(ctx),
		Latency: latency,
		Keys: KeyStats{
			Namespace:  rc.keyGen.Namespace(),
			EntityKeys: count.KeysScanned,
			Complete:   count.Completed,
		},
		Connection:     rc.client.State().String(),
		ConnectionInfo: rc.connectionInfo(),
	}
}

// connectionInfo is nil for clients that do not describe their connection.
func (rc *RedisCache) connectionInfo() map[string]any {
	describer, ok := rc.client.(interface{ GetConnectionInfo() map[string]interface{} })
	if !ok {
		return nil
	}
	return describer.GetConnectionInfo()
}

// serverMetrics queries INFO; a failure yields zeroed metrics.
func (rc *RedisCache) serverMetrics(ctx context.Context) ServerMetrics {
	var b strings.Builder
	for _, section := range infoSections {
		text, err := rc.client.Info(ctx, section)
		if err != nil {
			rc.logger.Warn("server info unavailable", zap.String("section", section), zap.Error(err))
			return ServerMetrics{}
		}
		b.WriteString(text)
		b.WriteString("\r\n")
	}
	return ParseServerMetrics(b.String())
}

// ResetStats zeroes counters and latency history and restarts the uptime clock.
func (rc *RedisCache) ResetStats() {
	rc.stats.Reset()
	rc.logger.Info("cache counters reset")
}

// StatsCollector exposes the shared collector.
func (rc *RedisCache) StatsCollector() *StatsCollector {
	return rc.stats
}

// Metrics exposes the Prometheus metrics of this cache.
func (rc *RedisCache) Metrics() *Metrics {
	return rc.metrics
}

// Sweeper exposes the namespace sweeper.
func (rc *RedisCache) Sweeper() *Sweeper {
	return rc.sweeper
}

// Config returns the cache configuration.
func (rc *RedisCache) Config() *internal.Config {
	return rc.config
}

// Health performs a health check on the cache
func (rc *RedisCache) Health(ctx context.Context) error {
	return rc.client.Health(ctx)
}

// Close drains pending background writes, then closes the connection.
func (rc *RedisCache) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), populatorDrainTimeout)
	defer cancel()

	if err := rc.populator.Close(ctx); err != nil {
		rc.logger.Warn("pending cache writes abandoned on close", zap.Error(err))
	}
	return rc.client.Close()
}
