package signal

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrUnknownExecution is returned when a signal targets an execution id the
// mailbox has never seen.
var ErrUnknownExecution = errors.New("unknown execution")

// Mailbox queues signals per execution until the owning orchestrator drains
// them at its next checkpoint.
//
// Posting never blocks and may happen from any goroutine. Draining is done
// only by the single logical owner of the execution, which consumes all
// pending signals atomically; each envelope is delivered exactly once even
// though posting is at-least-once (duplicates are dropped by envelope id).
type Mailbox struct {
	mu     sync.Mutex
	boxes  map[string]*inbox
	sample func() time.Time // test seam, defaults to time.Now
}

type inbox struct {
	pending  []Envelope
	seen     map[string]struct{}
	retired  bool
	retireAt time.Time
}

// NewMailbox creates an empty mailbox.
func NewMailbox() *Mailbox {
	return &Mailbox{
		boxes:  make(map[string]*inbox),
		sample: time.Now,
	}
}

// Register creates an inbox for an execution id. Must be called before any
// signal can be posted to that execution. Registering the same id twice is
// a no-op.
func (m *Mailbox) Register(executionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.boxes[executionID]; !ok {
		m.boxes[executionID] = &inbox{seen: make(map[string]struct{})}
	}
}

// Post delivers an envelope to an execution's inbox. It validates the signal,
// assigns an envelope id when missing, and drops duplicates by id.
// Posting to a retired (terminal) execution is accepted and discarded, per
// the no-op rule for terminal executions; posting to an unknown id fails
// with ErrUnknownExecution.
func (m *Mailbox) Post(executionID string, env Envelope) error {
	if env.Signal == nil {
		return ErrInvalidSignal
	}
	if err := env.Signal.Validate(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	box, ok := m.boxes[executionID]
	if !ok {
		return ErrUnknownExecution
	}
	if box.retired {
		return nil
	}

	if env.ID == "" {
		env.ID = uuid.NewString()
	}
	if _, dup := box.seen[env.ID]; dup {
		return nil
	}
	box.seen[env.ID] = struct{}{}

	env.PostedAt = m.sample()
	box.pending = append(box.pending, env)
	return nil
}

// Drain atomically consumes and returns all pending envelopes for an
// execution, in the order they were accepted.
func (m *Mailbox) Drain(executionID string) ([]Envelope, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	box, ok := m.boxes[executionID]
	if !ok {
		return nil, ErrUnknownExecution
	}

	pending := box.pending
	box.pending = nil
	return pending, nil
}

// Retire marks an execution terminal. Its inbox stops accepting signals but
// is retained so late posts resolve as no-ops instead of UnknownExecution,
// until Sweep removes it after the retention period.
func (m *Mailbox) Retire(executionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if box, ok := m.boxes[executionID]; ok {
		box.retired = true
		box.retireAt = m.sample()
		box.pending = nil
	}
}

// Remove deletes an execution's inbox entirely.
func (m *Mailbox) Remove(executionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.boxes, executionID)
}

// Sweep removes inboxes retired before the cutoff and returns how many were
// removed. Called periodically by the retention job.
func (m *Mailbox) Sweep(cutoff time.Time) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for id, box := range m.boxes {
		if box.retired && box.retireAt.Before(cutoff) {
			delete(m.boxes, id)
			removed++
		}
	}
	return removed
}
