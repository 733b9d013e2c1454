package execution

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestContext(t *testing.T, store StateStore, orderID string) *Context {
	t.Helper()

	c, err := New(store, orderID, Address{"city": "Kampala"}, time.Now(), 15*time.Second)
	require.NoError(t, err)
	return c
}

func TestNewPersistsInitialSnapshot(t *testing.T) {
	store := NewMemoryStore()
	c := newTestContext(t, store, "order-1")

	snapshot, err := store.Load("order-1")
	require.NoError(t, err)
	assert.Equal(t, StepNew, snapshot.Step)
	assert.Equal(t, []string{}, snapshot.CompletedSteps)
	assert.Equal(t, "payment-order-1", snapshot.PaymentID)
	assert.Equal(t, snapshot.StartedAt.Add(15*time.Second), snapshot.Deadline)

	assert.Equal(t, "order-1", c.OrderID())
	assert.Equal(t, StepNew, c.Step())
}

func TestAdvanceToPersistsEachTransition(t *testing.T) {
	store := NewMemoryStore()
	c := newTestContext(t, store, "order-2")

	require.NoError(t, c.AdvanceTo(StepReceived, "received"))
	require.NoError(t, c.AdvanceTo(StepValidated, "validated"))

	snapshot, err := store.Load("order-2")
	require.NoError(t, err)
	assert.Equal(t, StepValidated, snapshot.Step)
	assert.Equal(t, []string{"received", "validated"}, snapshot.CompletedSteps)

	assert.True(t, c.Completed("received"))
	assert.False(t, c.Completed("shipped"))
}

func TestAdvanceToRejectsRegression(t *testing.T) {
	c := newTestContext(t, NewMemoryStore(), "order-3")

	require.NoError(t, c.AdvanceTo(StepValidated, "validated"))

	err := c.AdvanceTo(StepReceived, "received")
	assert.ErrorIs(t, err, ErrStepRegression)

	// Re-entering the current step is a regression too.
	err = c.AdvanceTo(StepValidated, "validated")
	assert.ErrorIs(t, err, ErrStepRegression)
}

func TestAdvanceToRejectsTerminal(t *testing.T) {
	c := newTestContext(t, NewMemoryStore(), "order-4")

	require.NoError(t, c.Cancel("customer request"))

	err := c.AdvanceTo(StepReceived, "received")
	assert.ErrorIs(t, err, ErrTerminal)
}

func TestAdvanceToEmptyNameSkipsHistory(t *testing.T) {
	c := newTestContext(t, NewMemoryStore(), "order-5")

	require.NoError(t, c.AdvanceTo(StepShipping, ""))
	assert.Equal(t, []string{}, c.Snapshot().CompletedSteps)
}

func TestCancelIsMonotonic(t *testing.T) {
	store := NewMemoryStore()
	c := newTestContext(t, store, "order-6")

	require.NoError(t, c.Cancel("first"))
	require.NoError(t, c.Cancel("second"))

	snapshot, err := store.Load("order-6")
	require.NoError(t, err)
	assert.Equal(t, StepCancelled, snapshot.Step)
	assert.True(t, snapshot.Cancelled)
	assert.Equal(t, "first", snapshot.CancellationReason)
}

func TestFailRecordsStepAndError(t *testing.T) {
	store := NewMemoryStore()
	c := newTestContext(t, store, "order-7")

	require.NoError(t, c.Fail("validated", errors.New("boom")))

	snapshot, err := store.Load("order-7")
	require.NoError(t, err)
	assert.Equal(t, StepFailed, snapshot.Step)
	assert.Equal(t, "validated", snapshot.FailedStep)
	assert.Equal(t, "boom", snapshot.Error)

	// Terminal: a later cancel or fail changes nothing.
	require.NoError(t, c.Cancel("too late"))
	require.NoError(t, c.Fail("shipping", errors.New("other")))
	snapshot, err = store.Load("order-7")
	require.NoError(t, err)
	assert.Equal(t, "validated", snapshot.FailedStep)
	assert.False(t, snapshot.Cancelled)
}

func TestSetAddress(t *testing.T) {
	c := newTestContext(t, NewMemoryStore(), "order-8")

	require.NoError(t, c.SetAddress(Address{"city": "Entebbe"}))
	assert.Equal(t, Address{"city": "Entebbe"}, c.Address())
	assert.True(t, c.Snapshot().AddressUpdated)

	// Ignored on a terminal execution.
	require.NoError(t, c.Cancel("done"))
	require.NoError(t, c.SetAddress(Address{"city": "Jinja"}))
	assert.Equal(t, Address{"city": "Entebbe"}, c.Address())
}

func TestResumeLoadsPersistedState(t *testing.T) {
	store := NewMemoryStore()
	c := newTestContext(t, store, "order-9")
	require.NoError(t, c.AdvanceTo(StepReceived, "received"))

	resumed, err := Resume(store, "order-9")
	require.NoError(t, err)
	assert.Equal(t, StepReceived, resumed.Step())
	assert.True(t, resumed.Completed("received"))

	_, err = Resume(store, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRecordEvent(t *testing.T) {
	store := NewMemoryStore()
	c := newTestContext(t, store, "order-10")

	require.NoError(t, c.RecordEvent("order_received", map[string]string{"k": "v"}))
	require.NoError(t, c.RecordEvent("order_cancelled", nil))

	events, err := store.Events("order-10")
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "order_received", events[0].Type)
	assert.NotEmpty(t, events[0].ID)
	assert.JSONEq(t, `{"k":"v"}`, string(events[0].Payload))
	assert.Empty(t, events[1].Payload)
}

func TestSnapshotIsACopy(t *testing.T) {
	c := newTestContext(t, NewMemoryStore(), "order-11")
	require.NoError(t, c.AdvanceTo(StepReceived, "received"))

	snapshot := c.Snapshot()
	snapshot.CompletedSteps[0] = "mutated"
	snapshot.Address["city"] = "mutated"

	assert.Equal(t, []string{"received"}, c.Snapshot().CompletedSteps)
	assert.Equal(t, "Kampala", c.Address()["city"])
}

func TestSnapshotRemaining(t *testing.T) {
	now := time.Now()
	s := Snapshot{Deadline: now.Add(5 * time.Second)}

	assert.Equal(t, 5*time.Second, s.Remaining(now))
	assert.Negative(t, s.Remaining(now.Add(10*time.Second)))
}
