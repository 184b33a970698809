package testcontent

import (
	"context"
	"fmt"
	"os"
	"sync"

	"gopkg.in/yaml.v3"
)

// MemoryOrigin is an Origin backed by a map, used by the demo server and tests.
type MemoryOrigin struct {
	mu    sync.RWMutex
	tests map[string]TestResponse
	calls int
}

var _ Origin = (*MemoryOrigin)(nil)

// NewMemoryOrigin creates an origin holding tests.
func NewMemoryOrigin(tests ...TestResponse) *MemoryOrigin {
	o := &MemoryOrigin{tests: make(map[string]TestResponse, len(tests))}
	for _, t := range tests {
		o.tests[t.ID] = t
	}
	return o
}

type seedFile struct {
	Tests []TestResponse `yaml:"tests"`
}

// LoadSeedFile reads tests from a YAML file with a top-level "tests" list.
func LoadSeedFile(path string) (*MemoryOrigin, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read seed file: %w", err)
	}

	var seed seedFile
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return nil, fmt.Errorf("failed to parse seed file %s: %w", path, err)
	}

	for i, t := range seed.Tests {
		if t.ID == "" {
			return nil, fmt.Errorf("seed test %d has no id", i)
		}
	}
	return NewMemoryOrigin(seed.Tests...), nil
}

// FindActiveTest returns a copy of the stored test.
func (o *MemoryOrigin) FindActiveTest(_ context.Context, id string) (*TestResponse, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.calls++
	t, ok := o.tests[id]
	if !ok {
		return nil, ErrTestNotFound
	}
	return &t, nil
}

// Put adds or replaces a test.
func (o *MemoryOrigin) Put(t TestResponse) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.tests[t.ID] = t
}

// Calls returns how many lookups reached the origin.
func (o *MemoryOrigin) Calls() int {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.calls
}
