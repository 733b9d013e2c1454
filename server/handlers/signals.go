package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/SebampitakoDuncan/order-lifecycle-system/execution"
	"github.com/SebampitakoDuncan/order-lifecycle-system/signal"
)

// SignalRequest defines the request body for POST /orders/{id}/signals.
// Type selects the variant; the remaining fields are variant-specific.
type SignalRequest struct {
	Type    string            `json:"type"`
	Reason  string            `json:"reason,omitempty"`
	Actor   string            `json:"actor,omitempty"`
	Address execution.Address `json:"address,omitempty"`
}

// SignalsHandler handles signal delivery to a running execution.
type SignalsHandler struct {
	signaler Signaler
}

// NewSignalsHandler creates a new SignalsHandler.
func NewSignalsHandler(signaler Signaler) *SignalsHandler {
	return &SignalsHandler{
		signaler: signaler,
	}
}

// ServeHTTP implements http.Handler.
func (h *SignalsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	orderID := r.PathValue("id")

	var req SignalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{
			Error: fmt.Sprintf("invalid JSON: %v", err),
		})
		return
	}

	sig, err := req.toSignal(orderID)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}

	if err := h.signaler.Signal(orderID, sig); err != nil {
		if errors.Is(err, signal.ErrUnknownExecution) {
			writeJSON(w, http.StatusNotFound, ErrorResponse{Error: err.Error()})
			return
		}
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}

	w.WriteHeader(http.StatusAccepted)
}

func (r SignalRequest) toSignal(orderID string) (signal.Signal, error) {
	switch signal.Kind(r.Type) {
	case signal.KindCancel:
		return signal.Cancel{Reason: r.Reason, Actor: r.Actor}, nil
	case signal.KindUpdateAddress:
		return signal.UpdateAddress{Address: r.Address, Actor: r.Actor}, nil
	case signal.KindChildFailed:
		return signal.ChildFailed{OrderID: orderID, Reason: r.Reason}, nil
	default:
		return nil, fmt.Errorf("unknown signal type %q", r.Type)
	}
}
