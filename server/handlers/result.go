package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/SebampitakoDuncan/order-lifecycle-system/engine"
	"github.com/SebampitakoDuncan/order-lifecycle-system/execution"
	"github.com/SebampitakoDuncan/order-lifecycle-system/orchestrator"
)

const (
	defaultAwaitTimeout = 30 * time.Second
	maxAwaitTimeout     = 5 * time.Minute
)

// ResultHandler blocks until an execution reaches a terminal step and returns
// its result. The wait is bounded by the timeout query parameter.
type ResultHandler struct {
	awaiter ResultAwaiter
}

// NewResultHandler creates a new ResultHandler.
func NewResultHandler(awaiter ResultAwaiter) *ResultHandler {
	return &ResultHandler{
		awaiter: awaiter,
	}
}

// ServeHTTP implements http.Handler.
func (h *ResultHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	orderID := r.PathValue("id")

	timeout := defaultAwaitTimeout
	if raw := r.URL.Query().Get("timeout"); raw != "" {
		parsed, err := time.ParseDuration(raw)
		if err != nil || parsed <= 0 {
			writeJSON(w, http.StatusBadRequest, ErrorResponse{
				Error: fmt.Sprintf("invalid timeout %q", raw),
			})
			return
		}
		if parsed > maxAwaitTimeout {
			parsed = maxAwaitTimeout
		}
		timeout = parsed
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeout)
	defer cancel()

	result, err := h.awaiter.AwaitResult(ctx, orderID)
	if err != nil {
		switch {
		case errors.Is(err, execution.ErrNotFound):
			writeJSON(w, http.StatusNotFound, ErrorResponse{Error: err.Error()})
		case errors.Is(err, engine.ErrNotRunning):
			writeJSON(w, http.StatusConflict, ErrorResponse{Error: err.Error()})
		case errors.Is(err, context.DeadlineExceeded):
			// Still running when the wait expired.
			writeJSON(w, http.StatusAccepted, orchestrator.Result{
				OrderID: orderID,
				Status:  orchestrator.StatusRunning,
			})
		default:
			writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
		}
		return
	}

	writeJSON(w, http.StatusOK, result)
}
