package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/SebampitakoDuncan/order-lifecycle-system/activity"
	"github.com/SebampitakoDuncan/order-lifecycle-system/execution"
	"github.com/SebampitakoDuncan/order-lifecycle-system/logging"
	"github.com/SebampitakoDuncan/order-lifecycle-system/signal"
)

// Activity names resolved through the invoker registry.
const (
	ActivityReceiveOrder    = "receive_order"
	ActivityValidateOrder   = "validate_order"
	ActivityManualReview    = "manual_review"
	ActivityChargePayment   = "charge_payment"
	ActivityPreparePackage  = "prepare_package"
	ActivityDispatchCarrier = "dispatch_carrier"
)

// Event types appended to the execution's event log.
const (
	EventOrderReceived  = "order_received"
	EventOrderValidated = "order_validated"
	EventPaymentCharged = "payment_charged"
	EventOrderShipped   = "order_shipped"
	EventOrderCancelled = "order_cancelled"
	EventDispatchFailed = "dispatch_failed"
)

const (
	defaultActivityTimeout  = 3 * time.Second
	defaultChildBudgetFloor = 2 * time.Second
)

// ErrDeadlineExceeded is the terminal error for an execution whose deadline
// passed before a step could begin.
var ErrDeadlineExceeded = errors.New("deadline exceeded")

// Shipper runs the shipping sub-execution for an order within a time budget.
// Implemented by ShippingSupervisor.
type Shipper interface {
	Ship(ctx context.Context, orderID string, address execution.Address, budget time.Duration) error
}

// StepObserver is notified with the wall-clock duration of each completed
// step attempt block. Used to feed the step duration histogram.
type StepObserver func(step string, d time.Duration)

// Orchestrator is the top-level order state machine. It is stateless across
// runs and safe to share between executions; all per-order state lives in
// the execution.Context.
type Orchestrator struct {
	executor *activity.Executor
	mailbox  *signal.Mailbox
	shipper  Shipper
	logger   *slog.Logger

	activityTimeout  time.Duration
	retry            activity.RetryPolicy
	childBudgetFloor time.Duration
	observeStep      StepObserver
	loggerHook       logging.LoggerHook
	clock            func() time.Time
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) {
		o.logger = logger.With("component", "orchestrator")
	}
}

// WithActivityTimeout overrides the per-attempt activity timeout.
func WithActivityTimeout(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d > 0 {
			o.activityTimeout = d
		}
	}
}

// WithRetryPolicy overrides the retry policy applied to every order step.
func WithRetryPolicy(p activity.RetryPolicy) Option {
	return func(o *Orchestrator) {
		o.retry = p
	}
}

// WithChildBudgetFloor overrides the minimum time budget handed to the
// shipping sub-execution.
func WithChildBudgetFloor(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d > 0 {
			o.childBudgetFloor = d
		}
	}
}

// WithStepObserver registers a step duration observer.
func WithStepObserver(obs StepObserver) Option {
	return func(o *Orchestrator) {
		o.observeStep = obs
	}
}

// WithLoggerHook installs a hook that wraps the base logger into an
// execution-specific logger at the start of each run.
func WithLoggerHook(hook logging.LoggerHook) Option {
	return func(o *Orchestrator) {
		o.loggerHook = hook
	}
}

// WithClock overrides the time source. Test seam.
func WithClock(clock func() time.Time) Option {
	return func(o *Orchestrator) {
		o.clock = clock
	}
}

// NewOrchestrator creates an orchestrator that runs activities through
// executor, observes signals via mailbox, and delegates shipping to shipper.
func NewOrchestrator(executor *activity.Executor, mailbox *signal.Mailbox, shipper Shipper, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		executor:         executor,
		mailbox:          mailbox,
		shipper:          shipper,
		logger:           slog.Default().With("component", "orchestrator"),
		activityTimeout:  defaultActivityTimeout,
		retry:            activity.DefaultRetryPolicy(),
		childBudgetFloor: defaultChildBudgetFloor,
		clock:            time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// orderStep describes one activity-backed transition of the state machine.
type orderStep struct {
	to       execution.Step
	name     string // completed_steps entry, also the failed_step value
	activity string
	event    string // event log type, empty for none
	payload  func(s execution.Snapshot) any
}

// orderSteps is the fixed four-step prefix of the lifecycle; shipping is
// handled separately because it delegates to the child supervisor.
var orderSteps = []orderStep{
	{
		to:       execution.StepReceived,
		name:     "received",
		activity: ActivityReceiveOrder,
		event:    EventOrderReceived,
		payload: func(s execution.Snapshot) any {
			return struct {
				OrderID string            `json:"order_id"`
				Address execution.Address `json:"address,omitempty"`
			}{s.OrderID, s.Address}
		},
	},
	{
		to:       execution.StepValidated,
		name:     "validated",
		activity: ActivityValidateOrder,
		event:    EventOrderValidated,
		payload: func(s execution.Snapshot) any {
			return struct {
				OrderID string `json:"order_id"`
			}{s.OrderID}
		},
	},
	{
		to:       execution.StepReviewed,
		name:     "reviewed",
		activity: ActivityManualReview,
		payload: func(s execution.Snapshot) any {
			return struct {
				OrderID string `json:"order_id"`
			}{s.OrderID}
		},
	},
	{
		to:       execution.StepPaid,
		name:     "payment_charged",
		activity: ActivityChargePayment,
		event:    EventPaymentCharged,
		payload: func(s execution.Snapshot) any {
			return struct {
				OrderID   string `json:"order_id"`
				PaymentID string `json:"payment_id"`
			}{s.OrderID, s.PaymentID}
		},
	},
}

// Run drives the execution from its current step to a terminal step and
// returns the terminal result. A resumed execution skips steps already
// durably recorded; the terminal snapshot is always persisted before Run
// returns.
func (o *Orchestrator) Run(ctx context.Context, exec *execution.Context) Result {
	base := o.logger
	if o.loggerHook != nil {
		base = o.loggerHook.LoggerForExecution(base, exec.OrderID())
	}
	logger := base.With("order_id", exec.OrderID())
	logger.Info("execution started", "step", exec.Step().String())

	if exec.Step().IsTerminal() {
		return ResultFrom(exec.Snapshot())
	}

	for _, step := range orderSteps {
		if exec.Step() >= step.to {
			// Already durably recorded; replay never re-runs it.
			continue
		}

		if cancelled := o.checkpoint(logger, exec); cancelled {
			logger.Info("execution cancelled", "after_step", exec.Step().String())
			return ResultFrom(exec.Snapshot())
		}

		if err := o.runStep(ctx, logger, exec, step); err != nil {
			logger.Warn("execution failed", "failed_step", step.name, "error", err)
			return ResultFrom(exec.Snapshot())
		}
		logger.Info("step completed", "step", step.name)
	}

	if cancelled := o.checkpoint(logger, exec); cancelled {
		logger.Info("execution cancelled", "after_step", exec.Step().String())
		return ResultFrom(exec.Snapshot())
	}

	if err := o.runShipping(ctx, logger, exec); err != nil {
		logger.Warn("execution failed", "failed_step", "shipping", "error", err)
		return ResultFrom(exec.Snapshot())
	}

	logger.Info("execution completed")
	return ResultFrom(exec.Snapshot())
}

// runStep invokes one activity-backed step and advances the execution on
// success. Any returned error has already been recorded terminally.
func (o *Orchestrator) runStep(ctx context.Context, logger *slog.Logger, exec *execution.Context, step orderStep) error {
	snapshot := exec.Snapshot()

	remaining := snapshot.Remaining(o.clock())
	if remaining <= 0 {
		o.fail(logger, exec, step.name, ErrDeadlineExceeded)
		return ErrDeadlineExceeded
	}

	// An activity timeout never straddles the deadline.
	timeout := o.activityTimeout
	if remaining < timeout {
		timeout = remaining
	}

	payload, err := json.Marshal(step.payload(snapshot))
	if err != nil {
		o.fail(logger, exec, "unexpected", err)
		return err
	}

	// The whole invocation, backoff and later attempts included, runs
	// under the absolute deadline. The executor stops retrying once the
	// context expires.
	stepCtx, cancel := context.WithDeadline(ctx, snapshot.Deadline)
	defer cancel()

	started := o.clock()
	_, err = o.executor.Invoke(stepCtx, step.activity, payload, timeout, o.retry)
	if o.observeStep != nil {
		o.observeStep(step.name, o.clock().Sub(started))
	}
	if err != nil {
		if stepCtx.Err() != nil && ctx.Err() == nil {
			o.fail(logger, exec, step.name, ErrDeadlineExceeded)
			return ErrDeadlineExceeded
		}
		var actErr *activity.ActivityError
		if errors.As(err, &actErr) {
			o.fail(logger, exec, step.name, err)
		} else {
			o.fail(logger, exec, "unexpected", err)
		}
		return err
	}

	if err := exec.AdvanceTo(step.to, step.name); err != nil {
		o.fail(logger, exec, "unexpected", err)
		return err
	}
	if step.event != "" {
		o.recordEvent(logger, exec, step.event, exec.Snapshot())
	}
	return nil
}

// runShipping delegates to the child supervisor with the bounded budget and
// records the terminal outcome. The shipping address is read here, not at
// signal receipt, so an update that arrived at any earlier checkpoint is the
// one the carrier sees.
func (o *Orchestrator) runShipping(ctx context.Context, logger *slog.Logger, exec *execution.Context) error {
	remaining := exec.Snapshot().Remaining(o.clock())
	if remaining <= 0 {
		o.fail(logger, exec, "shipping", ErrDeadlineExceeded)
		return ErrDeadlineExceeded
	}

	budget := remaining
	if budget < o.childBudgetFloor {
		budget = o.childBudgetFloor
	}

	if exec.Step() < execution.StepShipping {
		if err := exec.AdvanceTo(execution.StepShipping, ""); err != nil {
			o.fail(logger, exec, "unexpected", err)
			return err
		}
	}

	address := exec.Address()
	if err := o.shipper.Ship(ctx, exec.OrderID(), address, budget); err != nil {
		if err := exec.Fail("shipping", err); err != nil {
			logger.Error("failed to persist terminal snapshot", "error", err)
		}
		o.applyLateSignals(logger, exec)
		return err
	}

	if err := exec.AdvanceTo(execution.StepShipped, "shipped"); err != nil {
		o.fail(logger, exec, "unexpected", err)
		return err
	}
	o.recordEvent(logger, exec, EventOrderShipped, exec.Snapshot())
	o.applyLateSignals(logger, exec)
	return nil
}

// checkpoint drains pending signals and applies them in arrival order.
// It returns true when a cancel ended the execution; a pending cancel takes
// precedence over continuing even when the next step could otherwise run.
func (o *Orchestrator) checkpoint(logger *slog.Logger, exec *execution.Context) bool {
	envelopes, err := o.mailbox.Drain(exec.OrderID())
	if err != nil {
		return false
	}

	for _, env := range envelopes {
		o.applySignal(logger, exec, env)
	}

	if exec.Step() == execution.StepCancelled {
		o.recordEvent(logger, exec, EventOrderCancelled, exec.Snapshot())
		return true
	}
	return false
}

// applyLateSignals drains once more after the execution turned terminal so
// escalations that raced the direct return path are still recorded. Cancel
// and address updates are no-ops on a terminal execution.
func (o *Orchestrator) applyLateSignals(logger *slog.Logger, exec *execution.Context) {
	envelopes, err := o.mailbox.Drain(exec.OrderID())
	if err != nil {
		return
	}
	for _, env := range envelopes {
		o.applySignal(logger, exec, env)
	}
}

func (o *Orchestrator) applySignal(logger *slog.Logger, exec *execution.Context, env signal.Envelope) {
	switch sig := env.Signal.(type) {
	case signal.Cancel:
		logger.Info("cancel signal observed", "reason", sig.Reason)
		if err := exec.Cancel(sig.Reason); err != nil {
			logger.Error("failed to persist cancellation", "error", err)
		}
	case signal.UpdateAddress:
		logger.Info("address update observed", "actor", sig.Actor)
		if err := exec.SetAddress(sig.Address); err != nil {
			logger.Error("failed to persist address update", "error", err)
		}
	case signal.ChildFailed:
		logger.Warn("child failure escalated",
			"reason", sig.Reason, "retry_count", sig.RetryCount)
		o.recordEvent(logger, exec, EventDispatchFailed, sig)
	default:
		logger.Warn("unhandled signal kind", "kind", env.Signal.Kind())
	}
}

// fail writes the terminal failure snapshot. Persistence errors here are
// logged, not returned: the execution is already failing.
func (o *Orchestrator) fail(logger *slog.Logger, exec *execution.Context, failedStep string, cause error) {
	if err := exec.Fail(failedStep, cause); err != nil {
		logger.Error("failed to persist terminal snapshot",
			"failed_step", failedStep, "error", err)
	}
}

func (o *Orchestrator) recordEvent(logger *slog.Logger, exec *execution.Context, eventType string, payload any) {
	if err := exec.RecordEvent(eventType, payload); err != nil {
		logger.Warn("failed to record event", "event", eventType, "error", err)
	}
}
