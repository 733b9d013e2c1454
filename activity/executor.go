package activity

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Observer is notified after every attempt, successful or not.
// Used to feed attempt/failure metrics without coupling the executor to a
// metrics registry.
type Observer func(name string, attempt int, err error)

// Executor invokes activities with timeout and retry handling.
// It is stateless between calls and safe for concurrent use.
type Executor struct {
	invoker  Invoker
	logger   *slog.Logger
	observer Observer
	sleep    func(ctx context.Context, d time.Duration) error
}

// Option configures an Executor.
type Option func(*Executor)

// WithLogger sets a custom logger for the executor.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Executor) {
		e.logger = logger.With("component", "activity_executor")
	}
}

// WithObserver registers an attempt observer.
func WithObserver(obs Observer) Option {
	return func(e *Executor) {
		e.observer = obs
	}
}

// NewExecutor creates an Executor that resolves work through the given invoker.
func NewExecutor(invoker Invoker, opts ...Option) *Executor {
	e := &Executor{
		invoker: invoker,
		logger:  slog.Default().With("component", "activity_executor"),
		sleep:   sleepCtx,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Invoke runs the named activity, retrying per policy. Each attempt gets its
// own timeout; between attempts the executor waits the policy's backoff.
// The caller observes either a single successful result or a terminal
// *ActivityError; retries are invisible except for elapsed time.
func (e *Executor) Invoke(ctx context.Context, name string, payload []byte, timeout time.Duration, policy RetryPolicy) ([]byte, error) {
	policy = policy.withDefaults()

	var lastErr error
	for attempt := 1; attempt <= policy.MaxAttempts; attempt++ {
		result, err := e.attempt(ctx, name, payload, timeout)
		if e.observer != nil {
			e.observer(name, attempt, err)
		}
		if err == nil {
			return result, nil
		}
		lastErr = err

		e.logger.Warn("activity attempt failed",
			"activity", name,
			"attempt", attempt,
			"max_attempts", policy.MaxAttempts,
			"error", err,
		)

		// Stop early when the caller is gone: retrying cannot succeed
		// once the parent context is cancelled or past its deadline.
		if ctx.Err() != nil {
			return nil, &ActivityError{Name: name, Attempts: attempt, LastErr: lastErr}
		}

		if attempt < policy.MaxAttempts {
			if err := e.sleep(ctx, policy.Backoff(attempt)); err != nil {
				return nil, &ActivityError{Name: name, Attempts: attempt, LastErr: lastErr}
			}
		}
	}

	return nil, &ActivityError{Name: name, Attempts: policy.MaxAttempts, LastErr: lastErr}
}

// attempt runs a single invocation under its own timeout.
func (e *Executor) attempt(ctx context.Context, name string, payload []byte, timeout time.Duration) ([]byte, error) {
	attemptCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		attemptCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	type outcome struct {
		result []byte
		err    error
	}
	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{err: fmt.Errorf("activity panic: %v", r)}
			}
		}()
		result, err := e.invoker.Call(attemptCtx, name, payload)
		done <- outcome{result: result, err: err}
	}()

	// A collaborator that ignores ctx and stalls must not wedge the
	// orchestration; the attempt is abandoned at the timeout and the
	// goroutine drains into the buffered channel.
	select {
	case out := <-done:
		return out.result, out.err
	case <-attemptCtx.Done():
		return nil, attemptCtx.Err()
	}
}

// sleepCtx waits for d or until ctx is done.
func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
