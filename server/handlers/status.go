package handlers

import (
	"errors"
	"net/http"

	"github.com/SebampitakoDuncan/order-lifecycle-system/execution"
)

// StatusHandler handles requests for the current snapshot of an execution.
type StatusHandler struct {
	provider StatusProvider
}

// NewStatusHandler creates a new StatusHandler.
func NewStatusHandler(provider StatusProvider) *StatusHandler {
	return &StatusHandler{
		provider: provider,
	}
}

// ServeHTTP implements http.Handler.
func (h *StatusHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	orderID := r.PathValue("id")

	snapshot, err := h.provider.Status(orderID)
	if err != nil {
		if errors.Is(err, execution.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, ErrorResponse{Error: err.Error()})
			return
		}
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, snapshot)
}
