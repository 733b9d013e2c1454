package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/SebampitakoDuncan/order-lifecycle-system/activity"
	"github.com/SebampitakoDuncan/order-lifecycle-system/execution"
	"github.com/SebampitakoDuncan/order-lifecycle-system/logging"
	"github.com/SebampitakoDuncan/order-lifecycle-system/metrics"
	"github.com/SebampitakoDuncan/order-lifecycle-system/orchestrator"
	"github.com/SebampitakoDuncan/order-lifecycle-system/signal"
	"github.com/SebampitakoDuncan/order-lifecycle-system/worker"
)

var (
	// ErrAlreadyStarted is returned when starting an order id that already
	// has an execution, running or terminal.
	ErrAlreadyStarted = errors.New("execution already started")

	// ErrClosed is returned when operating on a closed engine.
	ErrClosed = errors.New("engine closed")

	// ErrNotRunning is returned when awaiting an execution the engine is
	// not driving and whose snapshot is not terminal.
	ErrNotRunning = errors.New("execution not running")
)

const (
	defaultDeadline     = 15 * time.Second
	defaultOrderWorkers = 10
	defaultShipWorkers  = 10
	orderQueueName      = "order"
	shippingQueueName   = "shipping"
)

// Handle tracks one in-flight execution and carries its terminal result.
type Handle struct {
	orderID string
	done    chan struct{}

	mu     sync.Mutex
	result orchestrator.Result
}

// OrderID returns the order the handle tracks.
func (h *Handle) OrderID() string { return h.orderID }

// Done returns a channel closed when the execution reaches a terminal step.
func (h *Handle) Done() <-chan struct{} { return h.done }

// Result returns the terminal result. Valid only after Done is closed.
func (h *Handle) Result() orchestrator.Result {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.result
}

func (h *Handle) finish(result orchestrator.Result) {
	h.mu.Lock()
	h.result = result
	h.mu.Unlock()
	close(h.done)
}

// Engine wires the orchestration core together and drives executions on its
// work queues.
type Engine struct {
	store    execution.StateStore
	mailbox  *signal.Mailbox
	executor *activity.Executor
	orch     *orchestrator.Orchestrator

	orderQueue    *worker.Queue
	shippingQueue *worker.Queue

	logger    *slog.Logger
	metrics   *engineMetrics
	collector *logging.LogCollector
	clock     func() time.Time

	deadline time.Duration

	mu      sync.Mutex
	handles map[string]*Handle
	closed  bool
}

// Option configures an Engine.
type Option func(*options)

type options struct {
	logger           *slog.Logger
	registry         metrics.Registry
	deadline         time.Duration
	activityTimeout  time.Duration
	retry            activity.RetryPolicy
	childBudgetFloor time.Duration
	orderWorkers     int
	shippingWorkers  int
	collector        *logging.LogCollector
	clock            func() time.Time
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithMetrics sets the metrics registry the engine reports to.
func WithMetrics(registry metrics.Registry) Option {
	return func(o *options) { o.registry = registry }
}

// WithDeadline overrides the end-to-end execution budget.
func WithDeadline(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.deadline = d
		}
	}
}

// WithActivityTimeout overrides the per-attempt activity timeout.
func WithActivityTimeout(d time.Duration) Option {
	return func(o *options) { o.activityTimeout = d }
}

// WithRetryPolicy overrides the step retry policy.
func WithRetryPolicy(p activity.RetryPolicy) Option {
	return func(o *options) { o.retry = p }
}

// WithChildBudgetFloor overrides the minimum shipping budget.
func WithChildBudgetFloor(d time.Duration) Option {
	return func(o *options) { o.childBudgetFloor = d }
}

// WithWorkers sets the worker counts of the order and shipping queues.
func WithWorkers(order, shipping int) Option {
	return func(o *options) {
		o.orderWorkers = order
		o.shippingWorkers = shipping
	}
}

// WithLogCollector keeps per-execution logs in collector, retrievable
// through Logs. Collected logs are purged with their execution.
func WithLogCollector(collector *logging.LogCollector) Option {
	return func(o *options) { o.collector = collector }
}

// WithClock overrides the time source. Test seam.
func WithClock(clock func() time.Time) Option {
	return func(o *options) { o.clock = clock }
}

// New creates an engine that persists through store and resolves activities
// through invoker. The work queues start immediately; Close shuts them down.
func New(store execution.StateStore, invoker activity.Invoker, opts ...Option) (*Engine, error) {
	o := &options{
		logger:          slog.Default(),
		deadline:        defaultDeadline,
		retry:           activity.DefaultRetryPolicy(),
		orderWorkers:    defaultOrderWorkers,
		shippingWorkers: defaultShipWorkers,
		clock:           time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}

	if o.registry == nil {
		registry, err := metrics.NewScrapeRegistry()
		if err != nil {
			return nil, fmt.Errorf("failed to create metrics registry: %w", err)
		}
		o.registry = registry
	}

	engineMetrics, err := newEngineMetrics(o.registry)
	if err != nil {
		return nil, fmt.Errorf("failed to create engine metrics: %w", err)
	}

	logger := o.logger
	mailbox := signal.NewMailbox()

	executor := activity.NewExecutor(invoker,
		activity.WithLogger(logger),
		activity.WithObserver(engineMetrics.observeAttempt))

	orderQueue := worker.NewQueue(orderQueueName, o.orderWorkers, logger)
	shippingQueue := worker.NewQueue(shippingQueueName, o.shippingWorkers, logger)

	supervisorOpts := []orchestrator.SupervisorOption{
		orchestrator.WithSupervisorLogger(logger),
		orchestrator.WithSupervisorRetryPolicy(o.retry),
		orchestrator.WithSupervisorClock(o.clock),
	}
	if o.activityTimeout > 0 {
		supervisorOpts = append(supervisorOpts, orchestrator.WithSupervisorTimeout(o.activityTimeout))
	}
	supervisor := orchestrator.NewShippingSupervisor(executor, mailbox, shippingQueue, supervisorOpts...)

	orchOpts := []orchestrator.Option{
		orchestrator.WithLogger(logger),
		orchestrator.WithRetryPolicy(o.retry),
		orchestrator.WithStepObserver(engineMetrics.observeStep),
		orchestrator.WithClock(o.clock),
	}
	if o.activityTimeout > 0 {
		orchOpts = append(orchOpts, orchestrator.WithActivityTimeout(o.activityTimeout))
	}
	if o.childBudgetFloor > 0 {
		orchOpts = append(orchOpts, orchestrator.WithChildBudgetFloor(o.childBudgetFloor))
	}
	if o.collector != nil {
		orchOpts = append(orchOpts,
			orchestrator.WithLoggerHook(logging.NewCapturingLoggerHook(o.collector)))
	}
	orch := orchestrator.NewOrchestrator(executor, mailbox, supervisor, orchOpts...)

	e := &Engine{
		store:         store,
		mailbox:       mailbox,
		executor:      executor,
		orch:          orch,
		orderQueue:    orderQueue,
		shippingQueue: shippingQueue,
		logger:        logger.With("component", "engine"),
		metrics:       engineMetrics,
		collector:     o.collector,
		clock:         o.clock,
		deadline:      o.deadline,
		handles:       make(map[string]*Handle),
	}

	orderQueue.Start(context.Background())
	shippingQueue.Start(context.Background())
	return e, nil
}

// Start begins a new execution for an order. The returned handle resolves
// when the execution reaches a terminal step. Starting an order id that is
// already known, running or terminal, fails with ErrAlreadyStarted.
func (e *Engine) Start(orderID string, address execution.Address) (*Handle, error) {
	if orderID == "" {
		return nil, errors.New("order id cannot be empty")
	}

	// Claim the handle before touching the store so concurrent starts of
	// the same order serialize on a single winner.
	handle, err := e.reserve(orderID)
	if err != nil {
		return nil, err
	}

	if _, err := e.store.Load(orderID); err == nil {
		e.release(orderID, handle)
		return nil, fmt.Errorf("%w: %s", ErrAlreadyStarted, orderID)
	} else if !errors.Is(err, execution.ErrNotFound) {
		e.release(orderID, handle)
		return nil, fmt.Errorf("failed to check for existing execution: %w", err)
	}

	exec, err := execution.New(e.store, orderID, address, e.clock(), e.deadline)
	if err != nil {
		e.release(orderID, handle)
		return nil, err
	}
	e.mailbox.Register(orderID)

	if err := e.dispatch(orderID, exec, handle); err != nil {
		return nil, err
	}

	e.metrics.started.Inc()
	e.logger.Info("execution accepted", "order_id", orderID)
	return handle, nil
}

// reserve atomically claims the order id with a fresh handle. Duplicate
// starts fail here, before either caller writes to the store.
func (e *Engine) reserve(orderID string) (*Handle, error) {
	handle := &Handle{orderID: orderID, done: make(chan struct{})}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil, ErrClosed
	}
	if _, exists := e.handles[orderID]; exists {
		return nil, fmt.Errorf("%w: %s", ErrAlreadyStarted, orderID)
	}
	e.handles[orderID] = handle
	return handle, nil
}

// release drops a claim, but only the claim it was handed.
func (e *Engine) release(orderID string, handle *Handle) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.handles[orderID] == handle {
		delete(e.handles, orderID)
	}
}

// dispatch submits a claimed execution to the order queue.
func (e *Engine) dispatch(orderID string, exec *execution.Context, handle *Handle) error {
	err := e.orderQueue.Submit(orderID, func(ctx context.Context) {
		e.drive(ctx, exec, handle)
	})
	if err != nil {
		e.release(orderID, handle)
		return fmt.Errorf("failed to enqueue execution %s: %w", orderID, err)
	}
	return nil
}

// drive runs one execution to a terminal step, containing panics so a
// misbehaving collaborator cannot take down the worker.
func (e *Engine) drive(ctx context.Context, exec *execution.Context, handle *Handle) {
	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("panic: %v", r)
			e.logger.Error("execution panicked", "order_id", exec.OrderID(), "error", err)
			if failErr := exec.Fail("unexpected", err); failErr != nil {
				e.logger.Error("failed to persist panic failure",
					"order_id", exec.OrderID(), "error", failErr)
			}
			e.settle(handle, orchestrator.ResultFrom(exec.Snapshot()))
		}
	}()

	result := e.orch.Run(ctx, exec)
	e.settle(handle, result)
}

// settle records the terminal result, retires the mailbox and resolves the
// handle.
func (e *Engine) settle(handle *Handle, result orchestrator.Result) {
	e.mailbox.Retire(handle.orderID)
	e.metrics.completed.With(statusLabels(result.Status)).Inc()
	handle.finish(result)
	e.logger.Info("execution settled",
		"order_id", handle.orderID, "status", string(result.Status))
}

// Signal posts a signal to a running execution. Fire and forget: delivery to
// a terminal execution is a silent no-op, an unknown id fails with
// signal.ErrUnknownExecution and a malformed payload with
// signal.ErrInvalidSignal.
func (e *Engine) Signal(orderID string, sig signal.Signal) error {
	return e.mailbox.Post(orderID, signal.Envelope{Signal: sig})
}

// Status returns the current snapshot of an execution.
func (e *Engine) Status(orderID string) (execution.Snapshot, error) {
	return e.store.Load(orderID)
}

// Events returns the event log of an execution.
func (e *Engine) Events(orderID string) ([]execution.Event, error) {
	if _, err := e.store.Load(orderID); err != nil {
		return nil, err
	}
	return e.store.Events(orderID)
}

// Logs returns the captured log entries of an execution. It returns
// execution.ErrNotFound for an unknown order id and nil entries when no
// collector is configured.
func (e *Engine) Logs(orderID string) ([]logging.LogEntry, error) {
	if _, err := e.store.Load(orderID); err != nil {
		return nil, err
	}
	if e.collector == nil {
		return nil, nil
	}
	return e.collector.GetLogs(orderID), nil
}

// AwaitResult blocks until the execution reaches a terminal step or ctx is
// done. An execution already terminal resolves immediately from its
// snapshot.
func (e *Engine) AwaitResult(ctx context.Context, orderID string) (orchestrator.Result, error) {
	e.mu.Lock()
	handle, ok := e.handles[orderID]
	e.mu.Unlock()

	if !ok {
		snapshot, err := e.store.Load(orderID)
		if err != nil {
			return orchestrator.Result{}, err
		}
		if snapshot.Step.IsTerminal() {
			return orchestrator.ResultFrom(snapshot), nil
		}
		return orchestrator.Result{}, fmt.Errorf("%w: %s", ErrNotRunning, orderID)
	}

	select {
	case <-handle.Done():
		return handle.Result(), nil
	case <-ctx.Done():
		return orchestrator.Result{}, ctx.Err()
	}
}

// History returns the terminal executions, most recent first.
func (e *Engine) History() ([]execution.Snapshot, error) {
	snapshots, err := e.store.List()
	if err != nil {
		return nil, err
	}

	terminal := make([]execution.Snapshot, 0, len(snapshots))
	for _, s := range snapshots {
		if s.Step.IsTerminal() {
			terminal = append(terminal, s)
		}
	}
	sort.Slice(terminal, func(i, j int) bool {
		return terminal[i].UpdatedAt.After(terminal[j].UpdatedAt)
	})
	return terminal, nil
}

// Recover resumes every non-terminal execution found in the store. Called
// once at process start, before the API begins accepting new orders.
// It returns the number of executions resumed.
func (e *Engine) Recover(ctx context.Context) (int, error) {
	snapshots, err := e.store.List()
	if err != nil {
		return 0, fmt.Errorf("failed to list executions: %w", err)
	}

	resumed := 0
	for _, s := range snapshots {
		if s.Step.IsTerminal() {
			e.mailbox.Register(s.OrderID)
			e.mailbox.Retire(s.OrderID)
			continue
		}
		if ctx.Err() != nil {
			return resumed, ctx.Err()
		}

		handle, err := e.reserve(s.OrderID)
		if err != nil {
			e.logger.Error("failed to claim resumed execution",
				"order_id", s.OrderID, "error", err)
			continue
		}
		exec, err := execution.Resume(e.store, s.OrderID)
		if err != nil {
			e.release(s.OrderID, handle)
			e.logger.Error("failed to resume execution", "order_id", s.OrderID, "error", err)
			continue
		}
		e.mailbox.Register(s.OrderID)

		if err := e.dispatch(s.OrderID, exec, handle); err != nil {
			e.logger.Error("failed to dispatch resumed execution",
				"order_id", s.OrderID, "error", err)
			continue
		}
		e.metrics.recovered.Inc()
		e.logger.Info("execution resumed", "order_id", s.OrderID, "step", s.Step.String())
		resumed++
	}
	return resumed, nil
}

// SweepRetention deletes terminal executions, their events and mailboxes
// last updated before the retention period. It returns the number of
// executions purged.
func (e *Engine) SweepRetention(retention time.Duration) (int, error) {
	cutoff := e.clock().Add(-retention)

	snapshots, err := e.store.List()
	if err != nil {
		return 0, fmt.Errorf("failed to list executions: %w", err)
	}

	purged := 0
	for _, s := range snapshots {
		if !s.Step.IsTerminal() || !s.UpdatedAt.Before(cutoff) {
			continue
		}
		if err := e.store.Delete(s.OrderID); err != nil {
			e.logger.Warn("failed to purge execution", "order_id", s.OrderID, "error", err)
			continue
		}
		e.mailbox.Remove(s.OrderID)
		if e.collector != nil {
			e.collector.Remove(s.OrderID)
		}
		e.mu.Lock()
		delete(e.handles, s.OrderID)
		e.mu.Unlock()
		purged++
	}

	e.mailbox.Sweep(cutoff)
	if purged > 0 {
		e.logger.Info("retention sweep complete", "purged", purged)
	}
	e.metrics.purged.Add(float64(purged))
	return purged, nil
}

// Close stops accepting orders and waits for in-flight executions to finish.
func (e *Engine) Close() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	e.mu.Unlock()

	e.orderQueue.Shutdown()
	e.shippingQueue.Shutdown()
	e.logger.Info("engine closed")
}
