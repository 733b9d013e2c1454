package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/SebampitakoDuncan/order-lifecycle-system/activity"
	"github.com/SebampitakoDuncan/order-lifecycle-system/execution"
	"github.com/SebampitakoDuncan/order-lifecycle-system/signal"
	"github.com/SebampitakoDuncan/order-lifecycle-system/worker"
)

// ErrChildExhausted is the terminal error when the shipping sub-execution
// fails on every permitted attempt. The orchestrator maps it to a failed
// order with failed_step "shipping".
var ErrChildExhausted = errors.New("shipping attempts exhausted")

// maxChildAttempts bounds whole-child restarts: one retry of the entire
// shipping sequence, two runs total.
const maxChildAttempts = 2

// ShippingSupervisor runs the shipping sub-execution: package preparation
// followed by carrier dispatch, each with its own timeout and retries,
// scheduled on the shipping work queue. A failed run is restarted fresh
// under a new attempt id; every failed run is escalated into the parent's
// mailbox independent of the direct return path.
type ShippingSupervisor struct {
	executor *activity.Executor
	mailbox  *signal.Mailbox
	queue    *worker.Queue
	logger   *slog.Logger

	activityTimeout time.Duration
	retry           activity.RetryPolicy
	clock           func() time.Time
}

// SupervisorOption configures a ShippingSupervisor.
type SupervisorOption func(*ShippingSupervisor)

// WithSupervisorLogger sets a custom logger.
func WithSupervisorLogger(logger *slog.Logger) SupervisorOption {
	return func(s *ShippingSupervisor) {
		s.logger = logger.With("component", "shipping_supervisor")
	}
}

// WithSupervisorTimeout overrides the per-attempt activity timeout.
func WithSupervisorTimeout(d time.Duration) SupervisorOption {
	return func(s *ShippingSupervisor) {
		if d > 0 {
			s.activityTimeout = d
		}
	}
}

// WithSupervisorRetryPolicy overrides the retry policy for both shipping
// activities.
func WithSupervisorRetryPolicy(p activity.RetryPolicy) SupervisorOption {
	return func(s *ShippingSupervisor) {
		s.retry = p
	}
}

// WithSupervisorClock overrides the time source. Test seam.
func WithSupervisorClock(clock func() time.Time) SupervisorOption {
	return func(s *ShippingSupervisor) {
		s.clock = clock
	}
}

// NewShippingSupervisor creates a supervisor that runs shipping attempts on
// queue and escalates failures into mailbox.
func NewShippingSupervisor(executor *activity.Executor, mailbox *signal.Mailbox, queue *worker.Queue, opts ...SupervisorOption) *ShippingSupervisor {
	s := &ShippingSupervisor{
		executor:        executor,
		mailbox:         mailbox,
		queue:           queue,
		logger:          slog.Default().With("component", "shipping_supervisor"),
		activityTimeout: defaultActivityTimeout,
		retry:           activity.DefaultRetryPolicy(),
		clock:           time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

var _ Shipper = (*ShippingSupervisor)(nil)

// Ship runs the shipping sub-execution for an order within budget. The
// caller blocks until the child reports success or the attempt budget is
// exhausted, in which case the error wraps ErrChildExhausted. Attempts do
// not extend past the budget-derived deadline.
func (s *ShippingSupervisor) Ship(ctx context.Context, orderID string, address execution.Address, budget time.Duration) error {
	deadline := s.clock().Add(budget)
	logger := s.logger.With("order_id", orderID)

	var lastErr error
	for attempt := 0; attempt < maxChildAttempts; attempt++ {
		attemptID := fmt.Sprintf("shipping-%s-%d", orderID, attempt)

		if !s.clock().Before(deadline) {
			lastErr = fmt.Errorf("shipping budget exhausted before attempt %d", attempt)
			break
		}

		logger.Info("shipping attempt started", "attempt_id", attemptID)
		err := s.runAttempt(ctx, attemptID, orderID, address, deadline)
		if err == nil {
			logger.Info("shipping attempt succeeded", "attempt_id", attemptID)
			return nil
		}
		lastErr = err
		logger.Warn("shipping attempt failed", "attempt_id", attemptID, "error", err)

		s.escalate(orderID, err, attempt+1)

		if ctx.Err() != nil {
			break
		}
	}

	return fmt.Errorf("%w for order %s: %v", ErrChildExhausted, orderID, lastErr)
}

// runAttempt schedules one whole-child run on the shipping queue and waits
// for its result. The attempt shares the budget-derived deadline with its
// siblings; a restarted child is fresh, not resumed.
func (s *ShippingSupervisor) runAttempt(ctx context.Context, attemptID, orderID string, address execution.Address, deadline time.Time) error {
	done := make(chan error, 1)

	err := s.queue.Submit(attemptID, func(jobCtx context.Context) {
		done <- s.execute(jobCtx, attemptID, orderID, address, deadline)
	})
	if err != nil {
		return fmt.Errorf("failed to schedule shipping attempt %s: %w", attemptID, err)
	}

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// execute runs the two shipping activities in sequence on a queue worker.
func (s *ShippingSupervisor) execute(ctx context.Context, attemptID, orderID string, address execution.Address, deadline time.Time) error {
	payload, err := json.Marshal(struct {
		OrderID   string            `json:"order_id"`
		AttemptID string            `json:"attempt_id"`
		Address   execution.Address `json:"address,omitempty"`
	}{orderID, attemptID, address})
	if err != nil {
		return fmt.Errorf("failed to marshal shipping payload: %w", err)
	}

	// Retries inside Invoke must not outlive the shared budget deadline.
	attemptCtx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()

	for _, name := range []string{ActivityPreparePackage, ActivityDispatchCarrier} {
		remaining := deadline.Sub(s.clock())
		if remaining <= 0 {
			return fmt.Errorf("shipping budget exhausted before %s", name)
		}
		timeout := s.activityTimeout
		if remaining < timeout {
			timeout = remaining
		}

		if _, err := s.executor.Invoke(attemptCtx, name, payload, timeout, s.retry); err != nil {
			return err
		}
	}
	return nil
}

// escalate posts a ChildFailed signal into the parent's mailbox. Best
// effort: the direct error return already carries the failure, so a post
// that cannot be delivered is logged and dropped. The envelope id is
// derived from the order, so repeated attempts collapse to one observed
// signal at the parent.
func (s *ShippingSupervisor) escalate(orderID string, cause error, retryCount int) {
	err := s.mailbox.Post(orderID, signal.Envelope{
		ID: "child-failed-" + orderID,
		Signal: signal.ChildFailed{
			OrderID:    orderID,
			Reason:     cause.Error(),
			RetryCount: retryCount,
		},
	})
	if err != nil {
		s.logger.Warn("failed to escalate child failure",
			"order_id", orderID, "error", err)
	}
}
