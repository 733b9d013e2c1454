package activity

import "time"

const (
	defaultInitialBackoff = time.Second
	defaultMaxBackoff     = 5 * time.Second
	defaultMaxAttempts    = 2
	defaultMultiplier     = 2.0
)

// RetryPolicy controls how the executor retries a failing activity.
type RetryPolicy struct {
	// InitialBackoff is the wait before the first retry.
	InitialBackoff time.Duration `yaml:"initial_backoff"`
	// MaxBackoff caps the wait between retries.
	MaxBackoff time.Duration `yaml:"max_backoff"`
	// MaxAttempts is the total number of attempts, including the first.
	MaxAttempts int `yaml:"max_attempts"`
	// Multiplier scales the backoff after each attempt.
	Multiplier float64 `yaml:"multiplier"`
}

// DefaultRetryPolicy matches the policy the order steps use: two attempts,
// exponential backoff starting at one second, capped at five.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		InitialBackoff: defaultInitialBackoff,
		MaxBackoff:     defaultMaxBackoff,
		MaxAttempts:    defaultMaxAttempts,
		Multiplier:     defaultMultiplier,
	}
}

// withDefaults fills zero fields so a partially specified policy behaves
// sensibly.
func (p RetryPolicy) withDefaults() RetryPolicy {
	if p.InitialBackoff <= 0 {
		p.InitialBackoff = defaultInitialBackoff
	}
	if p.MaxBackoff <= 0 {
		p.MaxBackoff = defaultMaxBackoff
	}
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = defaultMaxAttempts
	}
	if p.Multiplier < 1 {
		p.Multiplier = defaultMultiplier
	}
	return p
}

// Backoff returns the wait before the retry following the given attempt
// (attempts are numbered from 1).
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	backoff := p.InitialBackoff
	for i := 1; i < attempt; i++ {
		backoff = time.Duration(float64(backoff) * p.Multiplier)
		if backoff >= p.MaxBackoff {
			return p.MaxBackoff
		}
	}
	if backoff > p.MaxBackoff {
		return p.MaxBackoff
	}
	return backoff
}
