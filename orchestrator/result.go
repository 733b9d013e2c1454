package orchestrator

import "github.com/SebampitakoDuncan/order-lifecycle-system/execution"

// Status is the terminal outcome of an order execution.
type Status string

const (
	// StatusCompleted means all five steps finished and the order shipped.
	StatusCompleted Status = "completed"
	// StatusFailed means a step exhausted its retries, the deadline passed,
	// or an unexpected error ended the execution.
	StatusFailed Status = "failed"
	// StatusCancelled means a cancel signal ended the execution.
	StatusCancelled Status = "cancelled"
	// StatusRunning means the execution has not reached a terminal step.
	StatusRunning Status = "running"
)

// Result is the terminal outcome reported to callers awaiting an execution.
type Result struct {
	// OrderID identifies the execution.
	OrderID string `json:"order_id"`
	// Status is the terminal outcome.
	Status Status `json:"status"`
	// CompletedSteps lists the steps that finished, in order.
	CompletedSteps []string `json:"completed_steps"`
	// FailedStep names the step that ended a failed execution.
	FailedStep string `json:"failed_step,omitempty"`
	// Error is the terminal error message of a failed execution.
	Error string `json:"error,omitempty"`
	// CancellationReason records why a cancelled execution ended.
	CancellationReason string `json:"cancellation_reason,omitempty"`
	// AddressUpdated reports whether a signal replaced the initial address.
	AddressUpdated bool `json:"address_updated"`
}

// ResultFrom builds the caller-facing result from a snapshot.
func ResultFrom(s execution.Snapshot) Result {
	r := Result{
		OrderID:            s.OrderID,
		CompletedSteps:     s.CompletedSteps,
		FailedStep:         s.FailedStep,
		Error:              s.Error,
		CancellationReason: s.CancellationReason,
		AddressUpdated:     s.AddressUpdated,
	}
	if r.CompletedSteps == nil {
		r.CompletedSteps = []string{}
	}

	switch s.Step {
	case execution.StepShipped:
		r.Status = StatusCompleted
	case execution.StepFailed:
		r.Status = StatusFailed
	case execution.StepCancelled:
		r.Status = StatusCancelled
	default:
		r.Status = StatusRunning
	}
	return r
}
