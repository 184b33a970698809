// Package testcontent serves test content through the cache-aside layer:
// cache first, origin store on a miss, background population afterwards.
package testcontent

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/kengibson1111/go-test-content-cache/cache"
)

// ErrTestNotFound is returned when the origin has no active test for an id.
var ErrTestNotFound = errors.New("test not found")

// Option is the client-visible form of an answer option. It never carries
// whether the option is correct.
type Option struct {
	ID   string `json:"id" yaml:"id"`
	Text string `json:"text" yaml:"text"`
}

// Question is one question of a test.
type Question struct {
	ID           string   `json:"id" yaml:"id"`
	QuestionText string   `json:"questionText" yaml:"questionText"`
	MediaURL     *string  `json:"mediaUrl" yaml:"mediaUrl,omitempty"`
	MediaType    *string  `json:"mediaType" yaml:"mediaType,omitempty"`
	Options      []Option `json:"options" yaml:"options"`
}

// TestResponse is the snapshot cached per test.
type TestResponse struct {
	ID        string     `json:"id" yaml:"id"`
	Title     string     `json:"title" yaml:"title"`
	Questions []Question `json:"questions" yaml:"questions"`
}

// Origin is the authoritative store of test content.
type Origin interface {
	// FindActiveTest returns ErrTestNotFound when no active test has this id.
	FindActiveTest(ctx context.Context, id string) (*TestResponse, error)
}

// Service resolves tests through the cache.
type Service struct {
	cache  cache.Cache
	origin Origin
	ttl    time.Duration
	logger *zap.Logger
}

// NewService creates a service writing snapshots with the given ttl.
func NewService(c cache.Cache, origin Origin, ttl time.Duration, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		cache:  c,
		origin: origin,
		ttl:    ttl,
		logger: logger.With(zap.String("component", "testcontent")),
	}
}

// GetTestByID returns the test from cache, or from the origin on a miss.
// Only origin errors are returned.
func (s *Service) GetTestByID(ctx context.Context, id string) (*TestResponse, error) {
	var cached TestResponse
	if s.cache.Get(ctx, id, &cached) {
		return &cached, nil
	}

	s.logger.Debug("cache miss, querying origin", zap.String("test_id", id))

	test, err := s.origin.FindActiveTest(ctx, id)
	if err != nil {
		return nil, err
	}

	if err := s.cache.SetAsync(id, test, s.ttl); err != nil {
		s.logger.Error("snapshot not cached", zap.String("test_id", id), zap.Error(err))
	}

	return test, nil
}

// Invalidate drops the cached snapshot of one test, e.g. after its questions change.
func (s *Service) Invalidate(ctx context.Context, id string) {
	s.cache.Invalidate(ctx, id)
}
