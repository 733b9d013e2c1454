package handlers

import (
	"net/http"

	"github.com/SebampitakoDuncan/order-lifecycle-system/execution"
)

// HistoryHandler handles requests for terminal executions.
type HistoryHandler struct {
	provider HistoryProvider
}

// NewHistoryHandler creates a new HistoryHandler.
func NewHistoryHandler(provider HistoryProvider) *HistoryHandler {
	return &HistoryHandler{
		provider: provider,
	}
}

// ServeHTTP implements http.Handler.
func (h *HistoryHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	history, err := h.provider.History()
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
		return
	}
	if history == nil {
		history = []execution.Snapshot{}
	}

	writeJSON(w, http.StatusOK, history)
}
