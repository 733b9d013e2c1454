// Package signal defines the asynchronous commands that can be delivered to a
// running order execution, and the mailbox that queues them until the
// orchestrator's next checkpoint.
package signal

import (
	"errors"
	"fmt"
	"time"

	"github.com/SebampitakoDuncan/order-lifecycle-system/execution"
)

// ErrInvalidSignal is returned when a signal fails validation at the mailbox
// boundary. Invalid signals are never delivered.
var ErrInvalidSignal = errors.New("invalid signal")

// Kind identifies a signal variant.
type Kind string

const (
	// KindCancel requests cancellation of an order execution.
	KindCancel Kind = "cancel"
	// KindUpdateAddress replaces an order's shipping address.
	KindUpdateAddress Kind = "update_address"
	// KindChildFailed escalates a shipping sub-execution failure to the parent.
	KindChildFailed Kind = "child_failed"
)

// Signal is one asynchronous command targeting a running execution.
// The set of variants is closed: Cancel, UpdateAddress and ChildFailed.
type Signal interface {
	// Kind returns the signal variant.
	Kind() Kind
	// Validate reports whether the signal payload is well formed.
	Validate() error
}

// Cancel requests that an order be cancelled before it ships.
type Cancel struct {
	// Reason describes why the order is being cancelled.
	Reason string `json:"reason"`
	// Actor identifies who requested the cancellation.
	Actor string `json:"actor,omitempty"`
}

// Kind implements Signal.
func (Cancel) Kind() Kind { return KindCancel }

// Validate implements Signal.
func (s Cancel) Validate() error {
	if s.Reason == "" {
		return fmt.Errorf("%w: cancel requires a reason", ErrInvalidSignal)
	}
	return nil
}

// UpdateAddress replaces the shipping address of a running order.
type UpdateAddress struct {
	// Address is the replacement shipping address.
	Address execution.Address `json:"address"`
	// Actor identifies who requested the update.
	Actor string `json:"actor,omitempty"`
}

// Kind implements Signal.
func (UpdateAddress) Kind() Kind { return KindUpdateAddress }

// Validate implements Signal.
func (s UpdateAddress) Validate() error {
	if len(s.Address) == 0 {
		return fmt.Errorf("%w: update_address requires an address", ErrInvalidSignal)
	}
	return nil
}

// ChildFailed is posted into the parent's mailbox when a shipping
// sub-execution fails, independent of the direct return path.
type ChildFailed struct {
	// OrderID is the order whose shipping attempt failed.
	OrderID string `json:"order_id"`
	// Reason describes the failure.
	Reason string `json:"reason"`
	// RetryCount is the child attempt number that failed.
	RetryCount int `json:"retry_count"`
}

// Kind implements Signal.
func (ChildFailed) Kind() Kind { return KindChildFailed }

// Validate implements Signal.
func (s ChildFailed) Validate() error {
	if s.OrderID == "" {
		return fmt.Errorf("%w: child_failed requires an order id", ErrInvalidSignal)
	}
	return nil
}

// Envelope wraps a signal for delivery. The ID makes at-least-once delivery
// safe: a re-posted envelope with the same ID is dropped by the mailbox.
type Envelope struct {
	// ID uniquely identifies this delivery. Assigned by the mailbox when empty.
	ID string `json:"id"`
	// Signal is the command being delivered.
	Signal Signal `json:"signal"`
	// PostedAt is when the mailbox accepted the envelope.
	PostedAt time.Time `json:"posted_at"`
}
