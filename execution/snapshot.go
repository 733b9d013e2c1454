package execution

import (
	"encoding/json"
	"time"
)

// Address is the shipping destination for an order. It is supplied at start
// and replaceable only via an update-address signal.
type Address map[string]string

// Snapshot is the durable state of one order execution. It is written to the
// StateStore after every state-changing action and is the unit replayed after
// a crash.
type Snapshot struct {
	// OrderID is the unique external key for the execution.
	OrderID string `json:"order_id"`
	// Step is the current lifecycle position.
	Step Step `json:"step"`
	// CompletedSteps mirrors the step history in completion order.
	CompletedSteps []string `json:"completed_steps"`
	// PaymentID is the idempotency token for the charge step,
	// derived deterministically from OrderID.
	PaymentID string `json:"payment_id"`
	// Address is the current shipping address.
	Address Address `json:"address,omitempty"`
	// AddressUpdated records whether a signal replaced the initial address.
	AddressUpdated bool `json:"address_updated,omitempty"`
	// Cancelled is set once a cancel signal has been observed. Monotonic.
	Cancelled bool `json:"cancelled,omitempty"`
	// CancellationReason records why the execution was cancelled.
	CancellationReason string `json:"cancellation_reason,omitempty"`
	// FailedStep names the step whose failure terminated the execution.
	FailedStep string `json:"failed_step,omitempty"`
	// Error is the terminal error message, if any.
	Error string `json:"error,omitempty"`
	// StartedAt is when the execution began.
	StartedAt time.Time `json:"started_at"`
	// Deadline is the absolute completion deadline. Never extended.
	Deadline time.Time `json:"deadline"`
	// UpdatedAt is when this snapshot was last persisted.
	UpdatedAt time.Time `json:"updated_at"`
}

// PaymentIDFor derives the stable payment idempotency token for an order.
// The same order always yields the same token, so a retried charge step
// after a crash presents the collaborator with the already-settled charge.
func PaymentIDFor(orderID string) string {
	return "payment-" + orderID
}

// Remaining returns the time left before the deadline, which may be negative.
func (s Snapshot) Remaining(now time.Time) time.Duration {
	return s.Deadline.Sub(now)
}

// Clone returns a deep copy of the snapshot.
func (s Snapshot) Clone() Snapshot {
	out := s
	out.CompletedSteps = append([]string(nil), s.CompletedSteps...)
	if s.Address != nil {
		out.Address = make(Address, len(s.Address))
		for k, v := range s.Address {
			out.Address[k] = v
		}
	}
	return out
}

// Event is one append-only record in an execution's event log.
type Event struct {
	// ID uniquely identifies the event.
	ID string `json:"id"`
	// OrderID is the execution the event belongs to.
	OrderID string `json:"order_id"`
	// Type is the event kind, e.g. "order_received" or "dispatch_failed".
	Type string `json:"type"`
	// Payload is the event body as JSON.
	Payload json.RawMessage `json:"payload,omitempty"`
	// Timestamp is when the event was recorded.
	Timestamp time.Time `json:"ts"`
}
