package internal

import (
	"fmt"
	"net"
	"time"
)

// Topology selects which store client the connection manager drives.
type Topology string

const (
	TopologyStandalone Topology = "standalone"
	TopologyCluster    Topology = "cluster"
)

// Config holds Redis connection and cache configuration parameters
type Config struct {
	// Topology settings
	Mode         Topology `json:"mode"`          // standalone or cluster
	Endpoint     string   `json:"endpoint"`      // redis:// URL or host:port (standalone)
	ClusterNodes []string `json:"cluster_nodes"` // host:port seeds (cluster)
	Password     string   `json:"-"`             // Redis password (optional)
	DB           int      `json:"db"`            // Redis database number (standalone)

	// Network settings
	MaxRetries     int           `json:"max_retries"`     // Per-command retries inside the client
	ConnectTimeout time.Duration `json:"connect_timeout"` // Timeout for establishing connection
	RequestTimeout time.Duration `json:"request_timeout"` // Timeout for every logical operation
	PoolSize       int           `json:"pool_size"`       // Maximum number of socket connections

	// Cache settings
	Namespace              string        `json:"namespace"`                // Key prefix for cached snapshots
	EntryTTL               time.Duration `json:"entry_ttl"`                // TTL applied on every set
	ScanBatchSize          int64         `json:"scan_batch_size"`          // COUNT hint per sweep iteration
	LatencyHistoryCapacity int           `json:"latency_history_capacity"` // Retained latency samples
	RecentLatencySamples   int           `json:"recent_latency_samples"`   // Samples reported per snapshot
	PopulateWorkers        int           `json:"populate_workers"`         // Background writers
	PopulateQueueSize      int           `json:"populate_queue_size"`      // Pending background writes

	// Resilience settings
	RetryConfig *RetryConfig `json:"retry_config"` // Startup connection retry policy
}

// RetryConfig defines the bounded linear backoff used while connecting
type RetryConfig struct {
	MaxRetries int           `json:"max_retries"` // Retries after the first failed attempt
	Step       time.Duration `json:"step"`        // Delay added per retry
	MaxDelay   time.Duration `json:"max_delay"`   // Cap on a single delay
}

// DefaultRetryConfig returns a RetryConfig with sensible default values
func DefaultRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxRetries: 5,
		Step:       200 * time.Millisecond,
		MaxDelay:   2 * time.Second,
	}
}

// DefaultConfig returns a Config with sensible default values
func DefaultConfig() *Config {
	return &Config{
		Mode:                   TopologyStandalone,
		Endpoint:               "redis://localhost:6379",
		MaxRetries:             3,
		ConnectTimeout:         10 * time.Second,
		RequestTimeout:         3 * time.Second,
		PoolSize:               10,
		Namespace:              DefaultNamespace,
		EntryTTL:               600 * time.Second,
		ScanBatchSize:          100,
		LatencyHistoryCapacity: 200,
		RecentLatencySamples:   50,
		PopulateWorkers:        2,
		PopulateQueueSize:      256,
		RetryConfig:            DefaultRetryConfig(),
	}
}

// WithDefaults returns a copy of config whose unset or non-positive
// timeouts, sizes and namespace are taken from DefaultConfig. Connection
// details are left as given.
func WithDefaults(config *Config) *Config {
	defaults := DefaultConfig()
	if config == nil {
		return defaults
	}

	c := *config
	if c.Mode == "" {
		c.Mode = defaults.Mode
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = defaults.ConnectTimeout
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = defaults.RequestTimeout
	}
	if c.PoolSize <= 0 {
		c.PoolSize = defaults.PoolSize
	}
	if c.Namespace == "" {
		c.Namespace = defaults.Namespace
	}
	if c.EntryTTL <= 0 {
		c.EntryTTL = defaults.EntryTTL
	}
	if c.ScanBatchSize <= 0 {
		c.ScanBatchSize = defaults.ScanBatchSize
	}
	if c.LatencyHistoryCapacity <= 0 {
		c.LatencyHistoryCapacity = defaults.LatencyHistoryCapacity
	}
	if c.PopulateWorkers <= 0 {
		c.PopulateWorkers = defaults.PopulateWorkers
	}
	if c.PopulateQueueSize <= 0 {
		c.PopulateQueueSize = defaults.PopulateQueueSize
	}
	if c.RetryConfig == nil {
		c.RetryConfig = defaults.RetryConfig
	}
	return &c
}

// validateConfig validates the configuration parameters
func validateConfig(config *Config) error {
	switch config.Mode {
	case TopologyStandalone:
		if config.Endpoint == "" {
			return fmt.Errorf("endpoint cannot be empty in standalone mode")
		}
	case TopologyCluster:
		if len(config.ClusterNodes) == 0 {
			return fmt.Errorf("cluster mode requires a non-empty node list")
		}
		for _, node := range config.ClusterNodes {
			if _, _, err := net.SplitHostPort(node); err != nil {
				return fmt.Errorf("invalid cluster node '%s': %w", node, err)
			}
		}
	default:
		return fmt.Errorf("mode must be 'standalone' or 'cluster', got '%s'", config.Mode)
	}

	if config.DB < 0 || config.DB > 15 {
		return fmt.Errorf("redis database must be between 0 and 15, got %d", config.DB)
	}

	if config.MaxRetries < -1 {
		return fmt.Errorf("max retries cannot be below -1, got %d", config.MaxRetries)
	}

	if config.ConnectTimeout <= 0 {
		return fmt.Errorf("connect timeout must be positive, got %v", config.ConnectTimeout)
	}

	if config.RequestTimeout <= 0 {
		return fmt.Errorf("request timeout must be positive, got %v", config.RequestTimeout)
	}

	if config.PoolSize <= 0 {
		return fmt.Errorf("pool size must be positive, got %d", config.PoolSize)
	}

	if err := ValidateNamespace(config.Namespace); err != nil {
		return err
	}

	if config.EntryTTL < time.Second {
		return fmt.Errorf("entry TTL must be at least 1s, got %v", config.EntryTTL)
	}

	if config.ScanBatchSize <= 0 {
		return fmt.Errorf("scan batch size must be positive, got %d", config.ScanBatchSize)
	}

	if config.LatencyHistoryCapacity <= 0 {
		return fmt.Errorf("latency history capacity must be positive, got %d", config.LatencyHistoryCapacity)
	}

	if config.RecentLatencySamples < 0 {
		return fmt.Errorf("recent latency samples cannot be negative, got %d", config.RecentLatencySamples)
	}

	if config.PopulateWorkers <= 0 {
		return fmt.Errorf("populate workers must be positive, got %d", config.PopulateWorkers)
	}

	if config.PopulateQueueSize <= 0 {
		return fmt.Errorf("populate queue size must be positive, got %d", config.PopulateQueueSize)
	}

	if config.RetryConfig != nil {
		if err := validateRetryConfig(config.RetryConfig); err != nil {
			return fmt.Errorf("invalid retry configuration: %w", err)
		}
	}

	return nil
}

// validateRetryConfig validates the retry configuration parameters
func validateRetryConfig(config *RetryConfig) error {
	if config.MaxRetries < 0 {
		return fmt.Errorf("max retries cannot be negative, got %d", config.MaxRetries)
	}

	if config.Step < 0 {
		return fmt.Errorf("step cannot be negative, got %v", config.Step)
	}

	if config.MaxDelay < 0 {
		return fmt.Errorf("max delay cannot be negative, got %v", config.MaxDelay)
	}

	if config.Step > config.MaxDelay {
		return fmt.Errorf("step (%v) cannot be greater than max delay (%v)", config.Step, config.MaxDelay)
	}

	return nil
}

// ValidateConfig exposes validateConfig to other packages.
func ValidateConfig(config *Config) error {
	return validateConfig(config)
}
