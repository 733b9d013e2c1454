package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/SebampitakoDuncan/order-lifecycle-system/engine"
	"github.com/SebampitakoDuncan/order-lifecycle-system/execution"
)

// StartOrderRequest defines the request body for POST /orders.
type StartOrderRequest struct {
	OrderID string            `json:"order_id"`
	Address execution.Address `json:"address,omitempty"`
}

// StartOrderResponse is returned when an order is accepted.
type StartOrderResponse struct {
	OrderID string `json:"order_id"`
	Status  string `json:"status"`
}

// OrdersHandler handles requests to start a new order execution.
type OrdersHandler struct {
	starter OrderStarter
}

// NewOrdersHandler creates a new OrdersHandler.
func NewOrdersHandler(starter OrderStarter) *OrdersHandler {
	return &OrdersHandler{
		starter: starter,
	}
}

// ServeHTTP implements http.Handler.
func (h *OrdersHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req StartOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{
			Error: fmt.Sprintf("invalid JSON: %v", err),
		})
		return
	}

	if req.OrderID == "" {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{
			Error: "order_id cannot be empty",
		})
		return
	}

	if _, err := h.starter.Start(req.OrderID, req.Address); err != nil {
		if errors.Is(err, engine.ErrAlreadyStarted) {
			writeJSON(w, http.StatusConflict, ErrorResponse{Error: err.Error()})
			return
		}
		if errors.Is(err, engine.ErrClosed) {
			writeJSON(w, http.StatusServiceUnavailable, ErrorResponse{Error: err.Error()})
			return
		}
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}

	writeJSON(w, http.StatusAccepted, StartOrderResponse{
		OrderID: req.OrderID,
		Status:  "running",
	})
}
