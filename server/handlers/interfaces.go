// Package handlers provides HTTP handlers for the order lifecycle server.
//
// Each handler is in its own file and implements http.Handler.
// Handlers use interfaces to access engine dependencies, avoiding
// circular imports.
package handlers

import (
	"context"

	"github.com/SebampitakoDuncan/order-lifecycle-system/engine"
	"github.com/SebampitakoDuncan/order-lifecycle-system/execution"
	"github.com/SebampitakoDuncan/order-lifecycle-system/logging"
	"github.com/SebampitakoDuncan/order-lifecycle-system/orchestrator"
	"github.com/SebampitakoDuncan/order-lifecycle-system/signal"
)

// OrderStarter starts new order executions.
type OrderStarter interface {
	Start(orderID string, address execution.Address) (*engine.Handle, error)
}

// Signaler delivers signals to running executions.
type Signaler interface {
	Signal(orderID string, sig signal.Signal) error
}

// StatusProvider provides access to execution snapshots.
type StatusProvider interface {
	Status(orderID string) (execution.Snapshot, error)
}

// ResultAwaiter blocks until an execution reaches a terminal step.
type ResultAwaiter interface {
	AwaitResult(ctx context.Context, orderID string) (orchestrator.Result, error)
}

// EventsProvider provides access to execution event logs.
type EventsProvider interface {
	Events(orderID string) ([]execution.Event, error)
}

// HistoryProvider provides access to terminal executions.
type HistoryProvider interface {
	History() ([]execution.Snapshot, error)
}

// LogsProvider provides access to captured per-execution logs.
type LogsProvider interface {
	Logs(orderID string) ([]logging.LogEntry, error)
}
