package internal

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cursor is the continuation token of a SCAN pass.
// Standalone stores only use Position; cluster stores also walk Shard,
// one per master in address order.
type Cursor struct {
	Shard    int    `json:"shard"`
	Position uint64 `json:"position"`
}

// InitialCursor starts a pass and, when returned by Scan, marks it complete.
var InitialCursor = Cursor{}

// IsInitial reports whether c is the start/terminal sentinel.
func (c Cursor) IsInitial() bool {
	return c == InitialCursor
}

func (c Cursor) String() string {
	return fmt.Sprintf("%d/%d", c.Shard, c.Position)
}

// Store is the capability set shared by both topologies.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) (int64, error)
	Scan(ctx context.Context, cursor Cursor, match string, count int64) ([]string, Cursor, error)
	Info(ctx context.Context, section string) (string, error)
	Ping(ctx context.Context) error
	PoolStats() *redis.PoolStats
	Close() error
}

// newStore builds the topology-specific store. It never dials.
func newStore(config *Config) (Store, error) {
	switch config.Mode {
	case TopologyCluster:
		client := redis.NewClusterClient(&redis.ClusterOptions{
			Addrs:        config.ClusterNodes,
			Password:     config.Password,
			MaxRetries:   config.MaxRetries,
			DialTimeout:  config.ConnectTimeout,
			ReadTimeout:  config.RequestTimeout,
			WriteTimeout: config.RequestTimeout,
			PoolSize:     config.PoolSize,
		})
		return newClusterStore(client), nil
	case TopologyStandalone:
		opts, err := standaloneOptions(config)
		if err != nil {
			return nil, err
		}
		return &standaloneStore{client: redis.NewClient(opts)}, nil
	default:
		return nil, fmt.Errorf("unknown topology '%s'", config.Mode)
	}
}

// standaloneOptions accepts either a redis:// URL or a bare host:port.
func standaloneOptions(config *Config) (*redis.Options, error) {
	var opts *redis.Options
	if strings.Contains(config.Endpoint, "://") {
		parsed, err := redis.ParseURL(config.Endpoint)
		if err != nil {
			return nil, fmt.Errorf("invalid endpoint URL: %w", err)
		}
		opts = parsed
	} else {
		opts = &redis.Options{Addr: config.Endpoint}
	}

	if config.Password != "" {
		opts.Password = config.Password
	}
	if config.DB != 0 {
		opts.DB = config.DB
	}
	opts.MaxRetries = config.MaxRetries
	opts.DialTimeout = config.ConnectTimeout
	opts.ReadTimeout = config.RequestTimeout
	opts.WriteTimeout = config.RequestTimeout
	opts.PoolSize = config.PoolSize

	return opts, nil
}

type standaloneStore struct {
	client *redis.Client
}

func (s *standaloneStore) Get(ctx context.Context, key string) ([]byte, error) {
	return s.client.Get(ctx, key).Bytes()
}

func (s *standaloneStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return s.client.Set(ctx, key, value, ttl).Err()
}

func (s *standaloneStore) Del(ctx context.Context, keys ...string) (int64, error) {
	if len(keys) == 0 {
		return 0, nil
	}
	return s.client.Del(ctx, keys...).Result()
}

func (s *standaloneStore) Scan(ctx context.Context, cursor Cursor, match string, count int64) ([]string, Cursor, error) {
	keys, next, err := s.client.Scan(ctx, cursor.Position, match, count).Result()
	if err != nil {
		return nil, cursor, err
	}
	return keys, Cursor{Position: next}, nil
}

func (s *standaloneStore) Info(ctx context.Context, section string) (string, error) {
	return s.client.Info(ctx, section).Result()
}

func (s *standaloneStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *standaloneStore) PoolStats() *redis.PoolStats {
	return s.client.PoolStats()
}

func (s *standaloneStore) Close() error {
	return s.client.Close()
}

// shardNode is the per-master surface a cluster pass needs.
type shardNode interface {
	Scan(ctx context.Context, cursor uint64, match string, count int64) *redis.ScanCmd
	Info(ctx context.Context, section ...string) *redis.StringCmd
}

type shard struct {
	addr string
	node shardNode
}

type clusterStore struct {
	client  *redis.ClusterClient
	masters func(ctx context.Context) ([]shard, error)
}

func newClusterStore(client *redis.ClusterClient) *clusterStore {
	cs := &clusterStore{client: client}
	cs.masters = cs.clusterMasters
	return cs
}

// clusterMasters lists the current masters sorted by address so that shard
// indices stay stable across the calls of one pass.
func (s *clusterStore) clusterMasters(ctx context.Context) ([]shard, error) {
	var mu sync.Mutex
	var shards []shard
	err := s.client.ForEachMaster(ctx, func(ctx context.Context, node *redis.Client) error {
		mu.Lock()
		defer mu.Unlock()
		shards = append(shards, shard{addr: node.Options().Addr, node: node})
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(shards, func(i, j int) bool { return shards[i].addr < shards[j].addr })
	return shards, nil
}

func (s *clusterStore) Get(ctx context.Context, key string) ([]byte, error) {
	return s.client.Get(ctx, key).Bytes()
}

func (s *clusterStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return s.client.Set(ctx, key, value, ttl).Err()
}

// Del issues one DEL per key in a pipeline; a multi-key DEL would fail with
// CROSSSLOT once keys hash to different slots.
func (s *clusterStore) Del(ctx context.Context, keys ...string) (int64, error) {
	if len(keys) == 0 {
		return 0, nil
	}
	cmds, err := s.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, key := range keys {
			pipe.Del(ctx, key)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	var deleted int64
	for _, cmd := range cmds {
		if intCmd, ok := cmd.(*redis.IntCmd); ok {
			deleted += intCmd.Val()
		}
	}
	return deleted, nil
}

func (s *clusterStore) Scan(ctx context.Context, cursor Cursor, match string, count int64) ([]string, Cursor, error) {
	shards, err := s.masters(ctx)
	if err != nil {
		return nil, cursor, err
	}
	if len(shards) == 0 {
		return nil, cursor, fmt.Errorf("cluster reported no masters")
	}
	if cursor.Shard >= len(shards) {
		// Topology shrank mid-pass; nothing left to walk.
		return nil, InitialCursor, nil
	}

	keys, next, err := shards[cursor.Shard].node.Scan(ctx, cursor.Position, match, count).Result()
	if err != nil {
		return nil, cursor, err
	}

	switch {
	case next != 0:
		return keys, Cursor{Shard: cursor.Shard, Position: next}, nil
	case cursor.Shard+1 < len(shards):
		return keys, Cursor{Shard: cursor.Shard + 1}, nil
	default:
		return keys, InitialCursor, nil
	}
}

// Info concatenates the section from every master, each block headed by the node address.
func (s *clusterStore) Info(ctx context.Context, section string) (string, error) {
	shards, err := s.masters(ctx)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	for _, sh := range shards {
		text, err := sh.node.Info(ctx, section).Result()
		if err != nil {
			return "", fmt.Errorf("info from %s: %w", sh.addr, err)
		}
		fmt.Fprintf(&b, "# Node %s\r\n%s\r\n", sh.addr, text)
	}
	return b.String(), nil
}

func (s *clusterStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *clusterStore) PoolStats() *redis.PoolStats {
	return s.client.PoolStats()
}

func (s *clusterStore) Close() error {
	return s.client.Close()
}
