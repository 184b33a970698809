package internal

import (
	"fmt"
	"strings"
)

// DefaultNamespace is the key prefix for cached entity snapshots.
const DefaultNamespace = "entity:"

// MaxKeyLength bounds generated keys.
const MaxKeyLength = 250

// KeyGenerator defines the interface for generating and validating cache keys
type KeyGenerator interface {
	EntityKey(id string) string
	Pattern() string
	Namespace() string
	ValidateKey(key string) error
}

// DefaultKeyGenerator implements the KeyGenerator interface
type DefaultKeyGenerator struct {
	namespace string
}

// NewKeyGenerator creates a key generator for the given namespace.
// An empty namespace selects DefaultNamespace.
func NewKeyGenerator(namespace string) KeyGenerator {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	return &DefaultKeyGenerator{namespace: namespace}
}

// EntityKey generates the cache key for one entity.
// Format: <namespace><id>
func (kg *DefaultKeyGenerator) EntityKey(id string) string {
	return kg.namespace + id
}

// Pattern returns the SCAN MATCH pattern covering every key in the namespace.
func (kg *DefaultKeyGenerator) Pattern() string {
	return kg.namespace + "*"
}

// Namespace returns the key prefix.
func (kg *DefaultKeyGenerator) Namespace() string {
	return kg.namespace
}

// ValidateKey validates that a cache key belongs to the namespace and is safe to send
func (kg *DefaultKeyGenerator) ValidateKey(key string) error {
	if key == "" {
		return fmt.Errorf("key cannot be empty")
	}

	if !strings.HasPrefix(key, kg.namespace) {
		return fmt.Errorf("key does not start with namespace '%s': %s", kg.namespace, key)
	}

	if len(key) == len(kg.namespace) {
		return fmt.Errorf("entity ID cannot be empty in key: %s", key)
	}

	// Control characters and DEL
	for i, r := range key {
		if r < 32 || r == 127 {
			return fmt.Errorf("key contains control character at position %d", i)
		}
	}

	if len(key) > MaxKeyLength {
		return fmt.Errorf("key exceeds maximum length of %d characters", MaxKeyLength)
	}

	return nil
}

// ValidateNamespace checks that a namespace can be used as a literal SCAN prefix.
func ValidateNamespace(namespace string) error {
	if namespace == "" {
		return fmt.Errorf("namespace cannot be empty")
	}
	if !strings.HasSuffix(namespace, ":") {
		return fmt.Errorf("namespace must end with ':', got '%s'", namespace)
	}
	if strings.ContainsAny(namespace, "*?[]\\") {
		return fmt.Errorf("namespace contains glob metacharacters: '%s'", namespace)
	}
	return nil
}
