package execution

import "errors"

// ErrNotFound is returned when no snapshot exists for an execution id.
var ErrNotFound = errors.New("execution not found")

// StateStore persists execution snapshots and their event logs.
//
// Save must not partially write: after Save returns nil the full snapshot is
// durable. Each write is scoped to a single execution id; the engine's
// single-writer-per-execution routing guarantees no two writers race on the
// same id, so stores only need last-writer-wins semantics per snapshot.
type StateStore interface {
	// Save persists a snapshot, replacing any previous snapshot for the
	// same order id.
	Save(snapshot Snapshot) error

	// Load returns the snapshot for an order id, or ErrNotFound.
	Load(orderID string) (Snapshot, error)

	// List returns all stored snapshots in no particular order.
	List() ([]Snapshot, error)

	// Delete removes the snapshot and events for an order id.
	// Deleting an unknown id is not an error.
	Delete(orderID string) error

	// AppendEvent appends one record to an execution's event log.
	AppendEvent(event Event) error

	// Events returns an execution's event log in append order.
	Events(orderID string) ([]Event, error)
}
