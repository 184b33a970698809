package cache

import (
	"context"
	"time"

	"github.com/kengibson1111/go-test-content-cache/internal"
)

// Re-exported configuration and error types.
type (
	RedisConfig      = internal.Config
	RedisRetryConfig = internal.RetryConfig
	CacheError       = internal.CacheError
	CacheErrorType   = internal.ErrorType
	Cursor           = internal.Cursor
	ConnectionState  = internal.ConnectionState
)

const (
	CacheErrorTypeConnection    = internal.ErrorTypeConnection
	CacheErrorTypeKeyInvalid    = internal.ErrorTypeKeyInvalid
	CacheErrorTypeSerialization = internal.ErrorTypeSerialization
	CacheErrorTypeTimeout       = internal.ErrorTypeTimeout
	CacheErrorTypeOperation     = internal.ErrorTypeOperation
	CacheErrorTypeValidation    = internal.ErrorTypeValidation
)

// DefaultRedisConfig returns the default connection and cache configuration.
func DefaultRedisConfig() *RedisConfig {
	return internal.DefaultConfig()
}

// DefaultRedisRetryConfig returns the default startup retry policy.
func DefaultRedisRetryConfig() *RedisRetryConfig {
	return internal.DefaultRetryConfig()
}

// LoadConfig reads a YAML file (optional) and environment overrides.
func LoadConfig(path string) (*RedisConfig, error) {
	return internal.LoadConfig(path)
}

// IsValidationError reports whether err is a caller-side validation failure.
func IsValidationError(err error) bool {
	return internal.IsValidationError(err)
}

// Cache is the cache-aside contract for entity snapshots. Reads and writes
// fail open: store failures show up in the stats, never as errors.
type Cache interface {
	// Get unmarshals the cached snapshot for id into dest and reports whether it was found.
	Get(ctx context.Context, id string, dest any) bool
	// Set writes a snapshot and waits for the store. Only caller bugs return an error.
	Set(ctx context.Context, id string, snapshot any, ttl time.Duration) error
	// SetAsync hands the write to the background populator and returns immediately.
	SetAsync(id string, snapshot any, ttl time.Duration) error
	// Invalidate removes one snapshot.
	Invalidate(ctx context.Context, id string)
	// InvalidateAll sweeps every key in the namespace.
	InvalidateAll(ctx context.Context) *SweepResult

	// Stats merges local counters with server metrics.
	Stats(ctx context.Context) *StatsSnapshot
	// ResetStats zeroes counters and history.
	ResetStats()

	Health(ctx context.Context) error
	Close() error
}

// SweepOptions configures a sweep
type SweepOptions struct {
	BatchSize int64 `json:"batch_size"` // COUNT hint per SCAN call
	MaxKeys   int64 `json:"max_keys"`   // Stop after this many matched keys (0 = no limit)
	DryRun    bool  `json:"dry_run"`    // If true, only scan but don't delete
}

// SweepResult contains information about a sweep
type SweepResult struct {
	KeysScanned int64         `json:"keys_scanned"`
	KeysDeleted int64         `json:"keys_deleted"`
	Batches     int           `json:"batches"`
	Completed   bool          `json:"completed"`
	State       SweepState    `json:"state"`
	Duration    time.Duration `json:"duration"`
	Err         error         `json:"-"`
	Error       string        `json:"error,omitempty"`
}

// StatsSnapshot is the combined metrics view served to operators.
type StatsSnapshot struct {
	App            AppStats        `json:"app"`
	Server         ServerMetrics   `json:"server"`
	Keys           KeyStats        `json:"keys"`
	Latency        []LatencySample `json:"latency"`
	Connection     string          `json:"connection"`
	ConnectionInfo map[string]any  `json:"connection_info,omitempty"` // topology, redacted endpoint, pool usage
}

// KeyStats reports how many keys currently live in the namespace.
type KeyStats struct {
	Namespace  string `json:"namespace"`
	EntityKeys int64  `json:"entity_keys"`
	Complete   bool   `json:"complete"`
}
