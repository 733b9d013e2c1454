package handlers

import (
	"errors"
	"net/http"

	"github.com/SebampitakoDuncan/order-lifecycle-system/execution"
)

// EventsHandler handles requests for an execution's event log.
type EventsHandler struct {
	provider EventsProvider
}

// NewEventsHandler creates a new EventsHandler.
func NewEventsHandler(provider EventsProvider) *EventsHandler {
	return &EventsHandler{
		provider: provider,
	}
}

// ServeHTTP implements http.Handler.
func (h *EventsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	orderID := r.PathValue("id")

	events, err := h.provider.Events(orderID)
	if err != nil {
		if errors.Is(err, execution.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, ErrorResponse{Error: err.Error()})
			return
		}
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
		return
	}
	if events == nil {
		events = []execution.Event{}
	}

	writeJSON(w, http.StatusOK, events)
}
