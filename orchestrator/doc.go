// Package orchestrator drives the order lifecycle state machine.
//
// The Orchestrator runs the five-step order sequence — receive, validate,
// review, charge, ship — through the activity executor, persisting the
// execution context after every transition. Between steps it drains the
// signal mailbox: a pending cancel ends the run, an address update replaces
// the shipping destination without altering the step.
//
// The shipping step is delegated to a ShippingSupervisor, which runs the
// shipping sub-execution on its own work queue with a bounded time budget
// and a bounded number of whole-child restarts, escalating failures back
// into the parent's mailbox.
//
// # Execution Model
//
// A single goroutine owns each execution for the duration of Run. Suspension
// points are the activity invocations; while blocked there the execution
// holds no lock, only its persisted snapshot. Cancellation is cooperative:
// an activity already dispatched runs to completion before the cancel is
// observed at the next checkpoint.
//
// # Deadlines
//
// The execution's absolute deadline is fixed at start and never extended.
// Every activity timeout is clamped to the remaining time, and a step that
// cannot even begin before the deadline fails the execution immediately with
// reason "deadline exceeded".
package orchestrator
