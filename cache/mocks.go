package cache

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/kengibson1111/go-test-content-cache/internal"
)

// MockRedisClient is a mock implementation of the RedisClientInterface for testing
type MockRedisClient struct {
	mock.Mock
}

var _ internal.RedisClientInterface = (*MockRedisClient)(nil)

// NewMockRedisClient creates a new mock Redis client
func NewMockRedisClient() *MockRedisClient {
	return &MockRedisClient{}
}

// Get mocks the Get method
func (m *MockRedisClient) Get(ctx context.Context, key string) ([]byte, error) {
	args := m.Called(ctx, key)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]byte), args.Error(1)
}

// Set mocks the Set method
func (m *MockRedisClient) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	args := m.Called(ctx, key, value, ttl)
	return args.Error(0)
}

// Del mocks the Del method
func (m *MockRedisClient) Del(ctx context.Context, keys ...string) (int64, error) {
	args := m.Called(ctx, keys)
	return args.Get(0).(int64), args.Error(1)
}

// Scan mocks the Scan method
func (m *MockRedisClient) Scan(ctx context.Context, cursor internal.Cursor, match string, count int64) ([]string, internal.Cursor, error) {
	args := m.Called(ctx, cursor, match, count)
	var keys []string
	if args.Get(0) != nil {
		keys = args.Get(0).([]string)
	}
	return keys, args.Get(1).(internal.Cursor), args.Error(2)
}

// Info mocks the Info method
func (m *MockRedisClient) Info(ctx context.Context, section string) (string, error) {
	args := m.Called(ctx, section)
	return args.String(0), args.Error(1)
}

// Health mocks the Health method
func (m *MockRedisClient) Health(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// State mocks the State method
func (m *MockRedisClient) State() internal.ConnectionState {
	args := m.Called()
	return args.Get(0).(internal.ConnectionState)
}

// Config mocks the Config method
func (m *MockRedisClient) Config() *RedisConfig {
	args := m.Called()
	return args.Get(0).(*RedisConfig)
}

// Close mocks the Close method
func (m *MockRedisClient) Close() error {
	args := m.Called()
	return args.Error(0)
}

// MockKeyGenerator is a mock implementation of the KeyGenerator interface for testing
type MockKeyGenerator struct {
	mock.Mock
}

// NewMockKeyGenerator creates a new mock key generator
func NewMockKeyGenerator() *MockKeyGenerator {
	return &MockKeyGenerator{}
}

// EntityKey mocks the EntityKey method
func (m *MockKeyGenerator) EntityKey(id string) string {
	args := m.Called(id)
	return args.String(0)
}

// Pattern mocks the Pattern method
func (m *MockKeyGenerator) Pattern() string {
	args := m.Called()
	return args.String(0)
}

// Namespace mocks the Namespace method
func (m *MockKeyGenerator) Namespace() string {
	args := m.Called()
	return args.String(0)
}

// ValidateKey mocks the ValidateKey method
func (m *MockKeyGenerator) ValidateKey(key string) error {
	args := m.Called(key)
	return args.Error(0)
}
