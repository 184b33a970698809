package internal

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// FileConfig is the on-disk and environment representation of Config.
// Durations are expressed in the units operators configure them in.
type FileConfig struct {
	Mode                   string   `yaml:"mode" validate:"oneof=standalone cluster"`
	Endpoint               string   `yaml:"endpoint" validate:"required_if=Mode standalone"`
	NodeList               []string `yaml:"-" validate:"required_if=Mode cluster,dive,hostname_port"`
	RawNodeList            string   `yaml:"nodeList"`
	Password               string   `yaml:"password"`
	DB                     int      `yaml:"db" validate:"gte=0,lte=15"`
	Namespace              string   `yaml:"namespace" validate:"required"`
	EntryTTLSeconds        int      `yaml:"entryTtlSeconds" validate:"gt=0"`
	ConnectTimeoutMs       int      `yaml:"connectTimeoutMs" validate:"gt=0"`
	RequestTimeoutMs       int      `yaml:"requestTimeoutMs" validate:"gt=0"`
	ScanBatchSize          int      `yaml:"scanBatchSize" validate:"gt=0,lte=10000"`
	LatencyHistoryCapacity int      `yaml:"latencyHistoryCapacity" validate:"gt=0"`
	MaxRetries             int      `yaml:"maxRetries" validate:"gte=-1"`
	PoolSize               int      `yaml:"poolSize" validate:"gt=0"`
	PopulateWorkers        int      `yaml:"populateWorkers" validate:"gt=0"`
	PopulateQueueSize      int      `yaml:"populateQueueSize" validate:"gt=0"`
}

var configValidator = validator.New()

func fileConfigFrom(config *Config) *FileConfig {
	return &FileConfig{
		Mode:                   string(config.Mode),
		Endpoint:               config.Endpoint,
		RawNodeList:            strings.Join(config.ClusterNodes, ","),
		Password:               config.Password,
		DB:                     config.DB,
		Namespace:              config.Namespace,
		EntryTTLSeconds:        int(config.EntryTTL / time.Second),
		ConnectTimeoutMs:       int(config.ConnectTimeout / time.Millisecond),
		RequestTimeoutMs:       int(config.RequestTimeout / time.Millisecond),
		ScanBatchSize:          int(config.ScanBatchSize),
		LatencyHistoryCapacity: config.LatencyHistoryCapacity,
		MaxRetries:             config.MaxRetries,
		PoolSize:               config.PoolSize,
		PopulateWorkers:        config.PopulateWorkers,
		PopulateQueueSize:      config.PopulateQueueSize,
	}
}

// LoadConfig builds a Config from defaults, an optional YAML file and
// environment overrides, in that order. An empty path skips the file.
func LoadConfig(path string) (*Config, error) {
	fc := fileConfigFrom(DefaultConfig())

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, fc); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	if err := applyEnv(fc); err != nil {
		return nil, err
	}

	return fc.ToConfig()
}

// ToConfig validates the file representation and converts it.
func (fc *FileConfig) ToConfig() (*Config, error) {
	fc.NodeList = splitNodeList(fc.RawNodeList)

	if err := configValidator.Struct(fc); err != nil {
		return nil, NewValidationError("invalid configuration", err)
	}

	config := DefaultConfig()
	config.Mode = Topology(fc.Mode)
	config.Endpoint = fc.Endpoint
	config.ClusterNodes = fc.NodeList
	config.Password = fc.Password
	config.DB = fc.DB
	config.Namespace = fc.Namespace
	config.EntryTTL = time.Duration(fc.EntryTTLSeconds) * time.Second
	config.ConnectTimeout = time.Duration(fc.ConnectTimeoutMs) * time.Millisecond
	config.RequestTimeout = time.Duration(fc.RequestTimeoutMs) * time.Millisecond
	config.ScanBatchSize = int64(fc.ScanBatchSize)
	config.LatencyHistoryCapacity = fc.LatencyHistoryCapacity
	config.MaxRetries = fc.MaxRetries
	config.PoolSize = fc.PoolSize
	config.PopulateWorkers = fc.PopulateWorkers
	config.PopulateQueueSize = fc.PopulateQueueSize

	if err := validateConfig(config); err != nil {
		return nil, NewValidationError("invalid configuration", err)
	}
	return config, nil
}

func splitNodeList(raw string) []string {
	var nodes []string
	for _, node := range strings.Split(raw, ",") {
		if node = strings.TrimSpace(node); node != "" {
			nodes = append(nodes, node)
		}
	}
	return nodes
}

// applyEnv overlays the variables the test service has always honoured.
func applyEnv(fc *FileConfig) error {
	setString := func(name string, dst *string) {
		if v, ok := os.LookupEnv(name); ok {
			*dst = v
		}
	}
	setInt := func(name string, dst *int) error {
		v, ok := os.LookupEnv(name)
		if !ok {
			return nil
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return NewValidationError(fmt.Sprintf("%s must be an integer, got '%s'", name, v), err)
		}
		*dst = n
		return nil
	}

	setString("REDIS_MODE", &fc.Mode)
	setString("REDIS_URL", &fc.Endpoint)
	setString("REDIS_CLUSTER_NODES", &fc.RawNodeList)
	setString("REDIS_PASSWORD", &fc.Password)
	setString("CACHE_NAMESPACE", &fc.Namespace)

	for name, dst := range map[string]*int{
		"CACHE_TEST_TTL":           &fc.EntryTTLSeconds,
		"CACHE_CONNECT_TIMEOUT_MS": &fc.ConnectTimeoutMs,
		"CACHE_REQUEST_TIMEOUT_MS": &fc.RequestTimeoutMs,
		"CACHE_SCAN_BATCH_SIZE":    &fc.ScanBatchSize,
		"CACHE_LATENCY_HISTORY":    &fc.LatencyHistoryCapacity,
	} {
		if err := setInt(name, dst); err != nil {
			return err
		}
	}
	return nil
}
