package activity

import "fmt"

// ActivityError is the terminal failure of an activity after its retry
// budget is exhausted. Transient failures are absorbed by the executor's
// retry loop and never seen by callers; only exhaustion surfaces, carrying
// the last underlying error.
type ActivityError struct {
	// Name is the activity that failed.
	Name string
	// Attempts is how many times the activity was tried.
	Attempts int
	// LastErr is the error from the final attempt.
	LastErr error
}

// Error implements the error interface.
func (e *ActivityError) Error() string {
	return fmt.Sprintf("activity %q failed after %d attempt(s): %v", e.Name, e.Attempts, e.LastErr)
}

// Unwrap exposes the final attempt's error for errors.Is/As.
func (e *ActivityError) Unwrap() error {
	return e.LastErr
}
