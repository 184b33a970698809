package internal

import (
	"context"
	"fmt"
	"reflect"
	"strings"
	"time"
	"unicode"
)

// MaxTTL is the longest TTL a snapshot may be written with.
const MaxTTL = 365 * 24 * time.Hour

// InputValidator checks caller-supplied arguments before they reach the store.
type InputValidator struct {
	maxIDLength int
}

// NewInputValidator creates a new input validator with default settings
func NewInputValidator() *InputValidator {
	return &InputValidator{
		maxIDLength: MaxKeyLength,
	}
}

// ValidateID checks an entity id before it is turned into a key.
func (v *InputValidator) ValidateID(id string) error {
	if strings.TrimSpace(id) == "" {
		return NewValidationError("id cannot be empty", nil)
	}

	if len(id) > v.maxIDLength {
		return NewValidationError(fmt.Sprintf("id exceeds maximum length of %d characters", v.maxIDLength), nil)
	}

	for i, r := range id {
		if unicode.IsControl(r) || unicode.IsSpace(r) {
			return NewValidationError(fmt.Sprintf("id contains whitespace or control character at position %d", i), nil)
		}
	}

	return nil
}

// ValidateTTL validates time-to-live duration. Zero and negative TTLs are
// rejected; an entry without expiry could outlive its source forever.
func (v *InputValidator) ValidateTTL(ttl time.Duration) error {
	if ttl <= 0 {
		return NewValidationError(fmt.Sprintf("ttl must be positive, got %v", ttl), nil)
	}

	if ttl > MaxTTL {
		return NewValidationError(fmt.Sprintf("ttl exceeds maximum allowed duration of %v", MaxTTL), nil)
	}

	return nil
}

// ValidateSnapshot rejects nil values, including typed nil pointers.
func (v *InputValidator) ValidateSnapshot(snapshot interface{}) error {
	if snapshot == nil {
		return NewValidationError("snapshot cannot be nil", nil)
	}

	rv := reflect.ValueOf(snapshot)
	switch rv.Kind() {
	case reflect.Ptr, reflect.Map, reflect.Slice, reflect.Interface:
		if rv.IsNil() {
			return NewValidationError("snapshot cannot be nil", nil)
		}
	}

	return nil
}

// ValidateContext validates context for timeout and cancellation
func (v *InputValidator) ValidateContext(ctx context.Context) error {
	if ctx == nil {
		return NewValidationError("context cannot be nil", nil)
	}

	select {
	case <-ctx.Done():
		return NewValidationError("context is already cancelled", ctx.Err())
	default:
		return nil
	}
}

// ValidateSweepPattern makes sure a bulk delete stays inside namespace.
func (v *InputValidator) ValidateSweepPattern(pattern, namespace string) error {
	if pattern == "" {
		return NewValidationError("sweep pattern cannot be empty", nil)
	}

	if namespace == "" || !strings.HasPrefix(pattern, namespace) {
		return NewValidationError(fmt.Sprintf("sweep pattern '%s' is outside namespace '%s'", pattern, namespace), nil)
	}

	if strings.ContainsAny(namespace, "*?[]\\") {
		return NewValidationError(fmt.Sprintf("namespace '%s' contains glob metacharacters", namespace), nil)
	}

	return nil
}
