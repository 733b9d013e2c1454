package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SebampitakoDuncan/order-lifecycle-system/engine"
	"github.com/SebampitakoDuncan/order-lifecycle-system/execution"
	"github.com/SebampitakoDuncan/order-lifecycle-system/logging"
	"github.com/SebampitakoDuncan/order-lifecycle-system/orchestrator"
	"github.com/SebampitakoDuncan/order-lifecycle-system/signal"
)

// fakeEngine implements every handler interface with canned responses.
type fakeEngine struct {
	startErr    error
	startedID   string
	startedAddr execution.Address

	signalErr  error
	lastSignal signal.Signal

	snapshot  execution.Snapshot
	statusErr error

	result   orchestrator.Result
	awaitErr error

	events    []execution.Event
	eventsErr error

	history    []execution.Snapshot
	historyErr error

	logs    []logging.LogEntry
	logsErr error
}

func (f *fakeEngine) Start(orderID string, address execution.Address) (*engine.Handle, error) {
	f.startedID = orderID
	f.startedAddr = address
	return nil, f.startErr
}

func (f *fakeEngine) Signal(_ string, sig signal.Signal) error {
	f.lastSignal = sig
	return f.signalErr
}

func (f *fakeEngine) Status(string) (execution.Snapshot, error) {
	return f.snapshot, f.statusErr
}

func (f *fakeEngine) AwaitResult(ctx context.Context, _ string) (orchestrator.Result, error) {
	if f.awaitErr == context.DeadlineExceeded {
		<-ctx.Done()
		return orchestrator.Result{}, ctx.Err()
	}
	return f.result, f.awaitErr
}

func (f *fakeEngine) Events(string) ([]execution.Event, error) {
	return f.events, f.eventsErr
}

func (f *fakeEngine) History() ([]execution.Snapshot, error) {
	return f.history, f.historyErr
}

func (f *fakeEngine) Logs(string) ([]logging.LogEntry, error) {
	return f.logs, f.logsErr
}

func jsonRequest(method, target, body string) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func TestOrdersHandler(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		startErr   error
		wantStatus int
	}{
		{
			name:       "accepted",
			body:       `{"order_id":"order-1","address":{"city":"Kampala"}}`,
			wantStatus: http.StatusAccepted,
		},
		{
			name:       "missing order id",
			body:       `{"address":{"city":"Kampala"}}`,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "malformed json",
			body:       `{not json`,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "duplicate order",
			body:       `{"order_id":"order-1"}`,
			startErr:   engine.ErrAlreadyStarted,
			wantStatus: http.StatusConflict,
		},
		{
			name:       "engine closed",
			body:       `{"order_id":"order-1"}`,
			startErr:   engine.ErrClosed,
			wantStatus: http.StatusServiceUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			eng := &fakeEngine{startErr: tt.startErr}
			handler := NewOrdersHandler(eng)

			w := httptest.NewRecorder()
			handler.ServeHTTP(w, jsonRequest(http.MethodPost, "/orders", tt.body))

			assert.Equal(t, tt.wantStatus, w.Code)
		})
	}
}

func TestOrdersHandlerPassesAddress(t *testing.T) {
	eng := &fakeEngine{}
	handler := NewOrdersHandler(eng)

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, jsonRequest(http.MethodPost, "/orders",
		`{"order_id":"order-1","address":{"city":"Entebbe"}}`))

	require.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, "order-1", eng.startedID)
	assert.Equal(t, execution.Address{"city": "Entebbe"}, eng.startedAddr)

	var resp StartOrderResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "order-1", resp.OrderID)
	assert.Equal(t, "running", resp.Status)
}

func TestSignalsHandler(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		signalErr  error
		wantStatus int
		wantKind   signal.Kind
	}{
		{
			name:       "cancel",
			body:       `{"type":"cancel","reason":"changed mind","actor":"customer"}`,
			wantStatus: http.StatusAccepted,
			wantKind:   signal.KindCancel,
		},
		{
			name:       "update address",
			body:       `{"type":"update_address","address":{"city":"Entebbe"}}`,
			wantStatus: http.StatusAccepted,
			wantKind:   signal.KindUpdateAddress,
		},
		{
			name:       "child failed",
			body:       `{"type":"child_failed","reason":"carrier down"}`,
			wantStatus: http.StatusAccepted,
			wantKind:   signal.KindChildFailed,
		},
		{
			name:       "unknown type",
			body:       `{"type":"teleport"}`,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "malformed json",
			body:       `{not json`,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "unknown execution",
			body:       `{"type":"cancel","reason":"r"}`,
			signalErr:  signal.ErrUnknownExecution,
			wantStatus: http.StatusNotFound,
		},
		{
			name:       "invalid signal",
			body:       `{"type":"cancel"}`,
			signalErr:  signal.ErrInvalidSignal,
			wantStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			eng := &fakeEngine{signalErr: tt.signalErr}
			handler := NewSignalsHandler(eng)

			req := jsonRequest(http.MethodPost, "/orders/order-1/signals", tt.body)
			req.SetPathValue("id", "order-1")

			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)

			assert.Equal(t, tt.wantStatus, w.Code)
			if tt.wantKind != "" && tt.signalErr == nil {
				require.NotNil(t, eng.lastSignal)
				assert.Equal(t, tt.wantKind, eng.lastSignal.Kind())
			}
		})
	}
}

func TestSignalsHandlerFillsChildOrderID(t *testing.T) {
	eng := &fakeEngine{}
	handler := NewSignalsHandler(eng)

	req := jsonRequest(http.MethodPost, "/orders/order-7/signals",
		`{"type":"child_failed","reason":"carrier down"}`)
	req.SetPathValue("id", "order-7")

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	require.Equal(t, http.StatusAccepted, w.Code)
	child, ok := eng.lastSignal.(signal.ChildFailed)
	require.True(t, ok)
	assert.Equal(t, "order-7", child.OrderID)
}

func TestStatusHandler(t *testing.T) {
	eng := &fakeEngine{snapshot: execution.Snapshot{
		OrderID: "order-1",
		Step:    execution.StepValidated,
	}}
	handler := NewStatusHandler(eng)

	req := httptest.NewRequest(http.MethodGet, "/orders/order-1", nil)
	req.SetPathValue("id", "order-1")

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var snapshot execution.Snapshot
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &snapshot))
	assert.Equal(t, "order-1", snapshot.OrderID)
	assert.Equal(t, execution.StepValidated, snapshot.Step)
}

func TestStatusHandlerNotFound(t *testing.T) {
	eng := &fakeEngine{statusErr: execution.ErrNotFound}
	handler := NewStatusHandler(eng)

	req := httptest.NewRequest(http.MethodGet, "/orders/nope", nil)
	req.SetPathValue("id", "nope")

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestResultHandler(t *testing.T) {
	eng := &fakeEngine{result: orchestrator.Result{
		OrderID:        "order-1",
		Status:         orchestrator.StatusCompleted,
		CompletedSteps: []string{"received", "validated", "reviewed", "payment_charged", "shipped"},
	}}
	handler := NewResultHandler(eng)

	req := httptest.NewRequest(http.MethodGet, "/orders/order-1/result", nil)
	req.SetPathValue("id", "order-1")

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var result orchestrator.Result
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	assert.Equal(t, orchestrator.StatusCompleted, result.Status)
	assert.Len(t, result.CompletedSteps, 5)
}

func TestResultHandlerTimeout(t *testing.T) {
	eng := &fakeEngine{awaitErr: context.DeadlineExceeded}
	handler := NewResultHandler(eng)

	req := httptest.NewRequest(http.MethodGet, "/orders/order-1/result?timeout=10ms", nil)
	req.SetPathValue("id", "order-1")

	start := time.Now()
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.Less(t, time.Since(start), 5*time.Second)

	var result orchestrator.Result
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	assert.Equal(t, orchestrator.StatusRunning, result.Status)
}

func TestResultHandlerBadTimeout(t *testing.T) {
	handler := NewResultHandler(&fakeEngine{})

	for _, raw := range []string{"banana", "-5s", "0"} {
		req := httptest.NewRequest(http.MethodGet, "/orders/order-1/result?timeout="+raw, nil)
		req.SetPathValue("id", "order-1")

		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code, "timeout %q", raw)
	}
}

func TestResultHandlerNotRunning(t *testing.T) {
	eng := &fakeEngine{awaitErr: engine.ErrNotRunning}
	handler := NewResultHandler(eng)

	req := httptest.NewRequest(http.MethodGet, "/orders/order-1/result", nil)
	req.SetPathValue("id", "order-1")

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestEventsHandler(t *testing.T) {
	eng := &fakeEngine{events: []execution.Event{
		{ID: "e1", OrderID: "order-1", Type: "order_received"},
	}}
	handler := NewEventsHandler(eng)

	req := httptest.NewRequest(http.MethodGet, "/orders/order-1/events", nil)
	req.SetPathValue("id", "order-1")

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var events []execution.Event
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &events))
	require.Len(t, events, 1)
	assert.Equal(t, "order_received", events[0].Type)
}

func TestEventsHandlerEmptyIsArray(t *testing.T) {
	handler := NewEventsHandler(&fakeEngine{})

	req := httptest.NewRequest(http.MethodGet, "/orders/order-1/events", nil)
	req.SetPathValue("id", "order-1")

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, "[]", w.Body.String())
}

func TestHistoryHandler(t *testing.T) {
	eng := &fakeEngine{history: []execution.Snapshot{
		{OrderID: "order-2", Step: execution.StepShipped},
		{OrderID: "order-1", Step: execution.StepFailed},
	}}
	handler := NewHistoryHandler(eng)

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/history", nil))

	require.Equal(t, http.StatusOK, w.Code)

	var history []execution.Snapshot
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &history))
	require.Len(t, history, 2)
	assert.Equal(t, "order-2", history[0].OrderID)
}

func TestLogsHandler(t *testing.T) {
	eng := &fakeEngine{logs: []logging.LogEntry{
		{Level: "info", Message: "execution started"},
	}}
	handler := NewLogsHandler(eng)

	req := httptest.NewRequest(http.MethodGet, "/orders/order-1/logs", nil)
	req.SetPathValue("id", "order-1")

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var logs []logging.LogEntry
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &logs))
	require.Len(t, logs, 1)
	assert.Equal(t, "execution started", logs[0].Message)
}

func TestLogsHandlerNotFound(t *testing.T) {
	eng := &fakeEngine{logsErr: execution.ErrNotFound}
	handler := NewLogsHandler(eng)

	req := httptest.NewRequest(http.MethodGet, "/orders/nope/logs", nil)
	req.SetPathValue("id", "nope")

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}
