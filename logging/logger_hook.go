package logging

import (
	"log/slog"
)

// LoggerHook creates execution-specific loggers by wrapping a base logger.
// This interface allows the engine to remain generic while supporting
// log capturing through custom implementations.
type LoggerHook interface {
	// LoggerForExecution wraps the base logger to create an execution-specific logger.
	// The base logger comes from the engine's WithLogger() option.
	LoggerForExecution(baseLogger *slog.Logger, executionID string) *slog.Logger
}

// CapturingLoggerHook creates loggers that capture logs via CapturingHandler.
type CapturingLoggerHook struct {
	collector *LogCollector
}

// NewCapturingLoggerHook creates a provider that captures all per-execution logs.
func NewCapturingLoggerHook(collector *LogCollector) LoggerHook {
	return &CapturingLoggerHook{
		collector: collector,
	}
}

// LoggerForExecution creates an execution-specific logger with capturing enabled.
// Each call wraps the base logger with a CapturingHandler that tags logs with the execution ID.
func (p *CapturingLoggerHook) LoggerForExecution(baseLogger *slog.Logger, executionID string) *slog.Logger {
	capturingHandler := NewCapturingHandler(
		baseLogger.Handler(),
		p.collector,
		executionID,
	)
	return slog.New(capturingHandler)
}
