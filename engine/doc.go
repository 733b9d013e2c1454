// Package engine is the externally callable surface of the order lifecycle
// system. It owns the collaborator wiring — state store, signal mailbox,
// activity executor, orchestrator, shipping supervisor, work queues — and
// exposes the operations the API and CLI layers consume: start an order,
// post a signal, query status, await the terminal result, list history.
//
// The engine also carries the operational concerns around executions:
// crash recovery (resuming non-terminal snapshots on start), panic
// containment around each run, retention sweeps of terminal state, and the
// metric set describing executions, activities and steps.
package engine
