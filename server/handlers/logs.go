package handlers

import (
	"errors"
	"net/http"

	"github.com/SebampitakoDuncan/order-lifecycle-system/execution"
	"github.com/SebampitakoDuncan/order-lifecycle-system/logging"
)

// LogsHandler handles requests for the captured logs of an execution.
type LogsHandler struct {
	provider LogsProvider
}

// NewLogsHandler creates a new LogsHandler.
func NewLogsHandler(provider LogsProvider) *LogsHandler {
	return &LogsHandler{
		provider: provider,
	}
}

// ServeHTTP implements http.Handler.
func (h *LogsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	orderID := r.PathValue("id")

	logs, err := h.provider.Logs(orderID)
	if err != nil {
		if errors.Is(err, execution.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, ErrorResponse{Error: err.Error()})
			return
		}
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
		return
	}
	if logs == nil {
		logs = []logging.LogEntry{}
	}

	writeJSON(w, http.StatusOK, logs)
}
