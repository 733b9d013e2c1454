package execution

import "fmt"

// Step represents the lifecycle position of an order execution.
// Steps advance monotonically; Failed and Cancelled are absorbing.
type Step int

const (
	// StepNew indicates the execution has been created but no activity has run.
	StepNew Step = iota
	// StepReceived indicates the order was received and recorded.
	StepReceived
	// StepValidated indicates the order passed validation.
	StepValidated
	// StepReviewed indicates manual review approved the order.
	StepReviewed
	// StepPaid indicates payment was charged.
	StepPaid
	// StepShipping indicates the shipping sub-execution is in progress.
	StepShipping
	// StepShipped is the successful terminal step.
	StepShipped
	// StepFailed is the terminal step for activity or deadline failures.
	StepFailed
	// StepCancelled is the terminal step reached via a cancel signal.
	StepCancelled
)

// String returns the wire representation of the step.
func (s Step) String() string {
	switch s {
	case StepNew:
		return "new"
	case StepReceived:
		return "received"
	case StepValidated:
		return "validated"
	case StepReviewed:
		return "reviewed"
	case StepPaid:
		return "payment_charged"
	case StepShipping:
		return "shipping"
	case StepShipped:
		return "shipped"
	case StepFailed:
		return "failed"
	case StepCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// IsTerminal returns true if no further transitions are permitted from s.
func (s Step) IsTerminal() bool {
	return s == StepShipped || s == StepFailed || s == StepCancelled
}

// MarshalJSON implements json.Marshaler.
func (s Step) MarshalJSON() ([]byte, error) {
	return []byte(`"` + s.String() + `"`), nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (s *Step) UnmarshalJSON(data []byte) error {
	if len(data) < 2 || data[0] != '"' || data[len(data)-1] != '"' {
		return fmt.Errorf("invalid step %q", string(data))
	}
	parsed, err := ParseStep(string(data[1 : len(data)-1]))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// ParseStep converts a wire representation back into a Step.
func ParseStep(s string) (Step, error) {
	for step := StepNew; step <= StepCancelled; step++ {
		if step.String() == s {
			return step, nil
		}
	}
	return StepNew, fmt.Errorf("unknown step %q", s)
}
