// Package execution holds the durable per-order state for the order
// lifecycle engine.
//
// A Context wraps one order's Snapshot and enforces the replay boundary:
// every state-changing action is persisted through the StateStore before the
// caller proceeds, so after a crash the orchestrator resumes from the last
// durably recorded step instead of re-running completed work.
package execution

import (
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrStepRegression is returned when an advance would move the step
	// backwards or re-enter a completed step.
	ErrStepRegression = errors.New("step may not regress")

	// ErrTerminal is returned when a transition is attempted on an
	// execution that has already reached a terminal step.
	ErrTerminal = errors.New("execution already terminal")
)

// Context is the in-memory handle on one order execution's durable state.
// A single orchestrator goroutine owns all mutations; reads (Snapshot) may
// come from any goroutine, e.g. status queries.
type Context struct {
	store StateStore

	mu       sync.Mutex
	snapshot Snapshot
}

// New creates a fresh execution context for an order and persists its
// initial snapshot. The deadline is fixed at now + budget and never extended.
func New(store StateStore, orderID string, address Address, now time.Time, budget time.Duration) (*Context, error) {
	c := &Context{
		store: store,
		snapshot: Snapshot{
			OrderID:        orderID,
			Step:           StepNew,
			CompletedSteps: []string{},
			PaymentID:      PaymentIDFor(orderID),
			Address:        address,
			StartedAt:      now,
			Deadline:       now.Add(budget),
			UpdatedAt:      now,
		},
	}

	if err := store.Save(c.snapshot); err != nil {
		return nil, fmt.Errorf("failed to persist initial snapshot: %w", err)
	}
	return c, nil
}

// Resume loads an existing execution's snapshot from the store.
func Resume(store StateStore, orderID string) (*Context, error) {
	snapshot, err := store.Load(orderID)
	if err != nil {
		return nil, err
	}
	return &Context{store: store, snapshot: snapshot}, nil
}

// Snapshot returns a copy of the current durable state.
func (c *Context) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshot.Clone()
}

// OrderID returns the execution's order id.
func (c *Context) OrderID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshot.OrderID
}

// Step returns the current step.
func (c *Context) Step() Step {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshot.Step
}

// Deadline returns the absolute execution deadline.
func (c *Context) Deadline() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshot.Deadline
}

// Completed reports whether a named step already appears in the history.
// The orchestrator consults this before issuing any activity call so a
// replayed execution never re-runs finished work.
func (c *Context) Completed(name string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Contains(c.snapshot.CompletedSteps, name)
}

// AdvanceTo moves the execution forward to step, appending completedName to
// the history when non-empty, and persists the snapshot before returning.
// Advancing to an earlier or equal step fails with ErrStepRegression; this
// rejects stale retried activities completing after a later step began.
func (c *Context) AdvanceTo(step Step, completedName string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.snapshot.Step.IsTerminal() {
		return ErrTerminal
	}
	if step <= c.snapshot.Step {
		return fmt.Errorf("%w: %s -> %s", ErrStepRegression, c.snapshot.Step, step)
	}

	c.snapshot.Step = step
	if completedName != "" {
		c.snapshot.CompletedSteps = append(c.snapshot.CompletedSteps, completedName)
	}
	return c.persist()
}

// SetAddress replaces the shipping address without altering the step.
// Address updates on a terminal execution are ignored.
func (c *Context) SetAddress(address Address) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.snapshot.Step.IsTerminal() {
		return nil
	}
	c.snapshot.Address = address
	c.snapshot.AddressUpdated = true
	return c.persist()
}

// Address returns the current shipping address. The orchestrator reads this
// immediately before dispatching the shipping step, not at signal receipt.
func (c *Context) Address() Address {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshot.Clone().Address
}

// Cancel transitions the execution to the cancelled terminal step.
// Cancellation is monotonic: the first reason wins and a second cancel on an
// already-terminal execution is a no-op.
func (c *Context) Cancel(reason string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.snapshot.Step.IsTerminal() {
		return nil
	}
	c.snapshot.Cancelled = true
	c.snapshot.CancellationReason = reason
	c.snapshot.Step = StepCancelled
	return c.persist()
}

// Fail transitions the execution to the failed terminal step, recording the
// step that failed and the terminal error.
func (c *Context) Fail(failedStep string, cause error) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.snapshot.Step.IsTerminal() {
		return nil
	}
	c.snapshot.Step = StepFailed
	c.snapshot.FailedStep = failedStep
	if cause != nil {
		c.snapshot.Error = cause.Error()
	}
	return c.persist()
}

// RecordEvent appends a record to the execution's event log. The payload is
// marshaled to JSON; a nil payload produces an event with no body.
func (c *Context) RecordEvent(eventType string, payload any) error {
	var body json.RawMessage
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to marshal event payload: %w", err)
		}
		body = data
	}

	return c.store.AppendEvent(Event{
		ID:        uuid.NewString(),
		OrderID:   c.OrderID(),
		Type:      eventType,
		Payload:   body,
		Timestamp: time.Now().UTC(),
	})
}

// persist writes the snapshot to the store. Callers hold c.mu.
func (c *Context) persist() error {
	c.snapshot.UpdatedAt = time.Now().UTC()
	if err := c.store.Save(c.snapshot); err != nil {
		return fmt.Errorf("failed to persist snapshot for order %s: %w", c.snapshot.OrderID, err)
	}
	return nil
}
