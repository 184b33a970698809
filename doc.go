// Package cache provides a Redis-backed cache-aside layer for exam test
// content. The public API lives in the cache subpackage; this file only
// documents the module as a whole.
//
// # Overview
//
// Tests are read far more often than they change. The cache keeps one JSON
// snapshot per test under "<namespace><testId>" with a fixed TTL. Every read
// checks the cache first and falls back to the origin store on a miss; the
// snapshot is then written in the background so the caller never waits for
// it. The cache never fails a request: any store error is counted and
// treated as a miss.
//
// The module is organised as:
//   - cache: the Cache interface, RedisCache, stats, sweeper, metrics
//   - internal: connection manager, store topologies, keys, config, errors
//   - testcontent: the read-through service and its HTTP handler
//   - cmd/testcache: the CLI (serve, stats, flush, ping)
//
// # Basic Usage
//
//	config, err := cache.LoadConfig("testcache.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	c, err := cache.NewRedisCache(config, logger)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer c.Close()
//
//	// Connect retries with linear backoff; on failure the cache stays
//	// usable and reports every read as a miss.
//	if err := c.Connect(ctx); err != nil {
//	    logger.Error("cache unavailable", zap.Error(err))
//	}
//
//	var test testcontent.TestResponse
//	if !c.Get(ctx, testID, &test) {
//	    // load from the origin, then
//	    _ = c.SetAsync(testID, loaded, config.EntryTTL)
//	}
//
// # Topologies
//
// Standalone mode takes a redis:// URL or host:port in Endpoint. Cluster mode
// takes a list of host:port seeds in ClusterNodes; SCAN then walks every
// master in address order behind a single Cursor, and bulk deletes are
// pipelined per key so they never cross hash slots.
//
// # Connection States
//
// The connection manager starts in Connecting. A successful ping moves it to
// Connected; connectivity failures during operation move it to Degraded
// until the next success. If all startup retries fail it becomes
// Unavailable, which is terminal: every later operation returns
// ErrUnavailable without touching the network.
//
// # Invalidation
//
// Invalidate deletes one key. InvalidateAll runs a cursor-based sweep over
// the namespace, one SCAN batch and one DEL at a time. The sweep is not
// atomic; keys written while it runs may survive. A failed step aborts the
// sweep and the result reports how far it got.
//
// # Statistics
//
// Hits, misses, sets and errors are counted per process together with a
// bounded history of get latencies. Stats merges these with INFO figures from
// the server and the current key count of the namespace. The same outcomes
// are exported as Prometheus metrics.
//
// # Configuration
//
// LoadConfig applies defaults, then an optional YAML file, then environment
// variables (REDIS_MODE, REDIS_URL, REDIS_CLUSTER_NODES, REDIS_PASSWORD,
// CACHE_NAMESPACE, CACHE_TEST_TTL, CACHE_CONNECT_TIMEOUT_MS,
// CACHE_REQUEST_TIMEOUT_MS, CACHE_SCAN_BATCH_SIZE, CACHE_LATENCY_HISTORY).
//
// # Testing
//
// Unit tests run against miniredis and testify mocks and need no server:
//
//	go test ./...
//
// Integration tests in test/integration use a real server named by
// REDIS_URL and are skipped when it is not reachable.
package cache
