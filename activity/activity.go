// Package activity provides the activity executor: it runs one named unit of
// business work with a per-call timeout and a retry policy, and reports either
// a single successful result or a terminal ActivityError.
//
// The executor keeps no cross-call state and performs no deduplication.
// Activities that are not naturally idempotent (payment charges) must be
// passed a stable idempotency token by the caller; deduplication is the
// collaborator's responsibility, keyed by that token.
package activity

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
)

// ErrUnknownActivity is returned when no registered function matches the
// requested activity name.
var ErrUnknownActivity = errors.New("unknown activity")

// Func is the signature of a registered activity implementation.
// Payloads are opaque bytes: the executor never inspects them.
type Func func(ctx context.Context, payload []byte) ([]byte, error)

// Invoker executes a named unit of business work. It is the narrow contract
// between the orchestration core and the collaborators that do real I/O.
type Invoker interface {
	// Call runs the named activity synchronously. It blocks until the
	// activity returns or ctx is done.
	Call(ctx context.Context, name string, payload []byte) ([]byte, error)
}

// Registry maps activity names to implementations. The mapping is closed at
// construction time: names are registered once during wiring and resolved by
// the executor at run time.
type Registry struct {
	mu    sync.RWMutex
	funcs map[string]Func
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{funcs: make(map[string]Func)}
}

// Register adds an activity implementation under a name.
// Registering a duplicate name is an error.
func (r *Registry) Register(name string, fn Func) error {
	if name == "" {
		return errors.New("activity name cannot be empty")
	}
	if fn == nil {
		return fmt.Errorf("activity %q: nil function", name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.funcs[name]; exists {
		return fmt.Errorf("activity %q already registered", name)
	}
	r.funcs[name] = fn
	return nil
}

// Names returns the registered activity names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.funcs))
	for name := range r.funcs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Call implements Invoker by resolving the name and running the function.
func (r *Registry) Call(ctx context.Context, name string, payload []byte) ([]byte, error) {
	r.mu.RLock()
	fn, ok := r.funcs[name]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownActivity, name)
	}
	return fn(ctx, payload)
}

var _ Invoker = (*Registry)(nil)
