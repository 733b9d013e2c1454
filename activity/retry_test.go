package activity

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRetryPolicyBackoff(t *testing.T) {
	policy := RetryPolicy{
		InitialBackoff: time.Second,
		MaxBackoff:     5 * time.Second,
		MaxAttempts:    4,
		Multiplier:     2.0,
	}

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{1, time.Second},
		{2, 2 * time.Second},
		{3, 4 * time.Second},
		{4, 5 * time.Second}, // capped
		{5, 5 * time.Second},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, policy.Backoff(tt.attempt), "attempt %d", tt.attempt)
	}
}

func TestRetryPolicyWithDefaults(t *testing.T) {
	filled := RetryPolicy{}.withDefaults()
	assert.Equal(t, DefaultRetryPolicy(), filled)

	// Explicit values survive.
	custom := RetryPolicy{
		InitialBackoff: 100 * time.Millisecond,
		MaxBackoff:     time.Second,
		MaxAttempts:    3,
		Multiplier:     1.5,
	}
	assert.Equal(t, custom, custom.withDefaults())

	// A sub-one multiplier would shrink backoff; it falls back to the default.
	shrinking := RetryPolicy{Multiplier: 0.5}.withDefaults()
	assert.Equal(t, 2.0, shrinking.Multiplier)
}

func TestDefaultRetryPolicy(t *testing.T) {
	policy := DefaultRetryPolicy()

	assert.Equal(t, time.Second, policy.InitialBackoff)
	assert.Equal(t, 5*time.Second, policy.MaxBackoff)
	assert.Equal(t, 2, policy.MaxAttempts)
	assert.Equal(t, 2.0, policy.Multiplier)
}
