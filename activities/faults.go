package activities

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"time"
)

// ErrInjectedFailure is the error a fault-injected call returns.
var ErrInjectedFailure = errors.New("injected collaborator failure")

// FaultPolicy tunes the unreliability simulated by the demo collaborators.
// The zero value injects nothing, which is what tests want.
type FaultPolicy struct {
	// FailureRatio is the fraction of calls that fail outright.
	FailureRatio float64 `yaml:"failure_ratio"`
	// StallRatio is the fraction of calls that hang well past any activity
	// timeout instead of returning.
	StallRatio float64 `yaml:"stall_ratio"`
	// StallFor is how long a stalling call sleeps.
	StallFor time.Duration `yaml:"stall_for"`
}

// DemoFaultPolicy mirrors the canonical demo tuning: a third of calls fail,
// a third stall for five minutes and must be abandoned by the activity
// timeout.
func DemoFaultPolicy() FaultPolicy {
	return FaultPolicy{
		FailureRatio: 0.33,
		StallRatio:   0.34,
		StallFor:     300 * time.Second,
	}
}

// faultInjector applies a FaultPolicy with its own random source so runs
// can be seeded deterministically.
type faultInjector struct {
	policy FaultPolicy

	mu  sync.Mutex
	rng *rand.Rand
}

func newFaultInjector(policy FaultPolicy, seed int64) *faultInjector {
	return &faultInjector{
		policy: policy,
		rng:    rand.New(rand.NewSource(seed)),
	}
}

// disrupt either returns an injected failure, stalls past the caller's
// timeout, or does nothing. A stalling call still honors ctx so the process
// is not leaked forever, but the caller's timeout fires first.
func (f *faultInjector) disrupt(ctx context.Context) error {
	f.mu.Lock()
	roll := f.rng.Float64()
	f.mu.Unlock()

	if roll < f.policy.FailureRatio {
		return ErrInjectedFailure
	}
	if roll < f.policy.FailureRatio+f.policy.StallRatio {
		timer := time.NewTimer(f.policy.StallFor)
		defer timer.Stop()

		select {
		case <-timer.C:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}
