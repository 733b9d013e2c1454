package signal

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SebampitakoDuncan/order-lifecycle-system/execution"
)

func TestMailboxPostAndDrain(t *testing.T) {
	m := NewMailbox()
	m.Register("order-1")

	require.NoError(t, m.Post("order-1", Envelope{Signal: Cancel{Reason: "changed mind"}}))
	require.NoError(t, m.Post("order-1", Envelope{
		Signal: UpdateAddress{Address: execution.Address{"city": "Entebbe"}},
	}))

	envelopes, err := m.Drain("order-1")
	require.NoError(t, err)
	require.Len(t, envelopes, 2)
	assert.Equal(t, KindCancel, envelopes[0].Signal.Kind())
	assert.Equal(t, KindUpdateAddress, envelopes[1].Signal.Kind())
	assert.NotEmpty(t, envelopes[0].ID)
	assert.False(t, envelopes[0].PostedAt.IsZero())

	// Drained: a second drain is empty.
	envelopes, err = m.Drain("order-1")
	require.NoError(t, err)
	assert.Empty(t, envelopes)
}

func TestMailboxUnknownExecution(t *testing.T) {
	m := NewMailbox()

	err := m.Post("nope", Envelope{Signal: Cancel{Reason: "r"}})
	assert.ErrorIs(t, err, ErrUnknownExecution)

	_, err = m.Drain("nope")
	assert.ErrorIs(t, err, ErrUnknownExecution)
}

func TestMailboxRejectsInvalidSignals(t *testing.T) {
	m := NewMailbox()
	m.Register("order-2")

	tests := []struct {
		name string
		sig  Signal
	}{
		{"nil signal", nil},
		{"cancel without reason", Cancel{}},
		{"address update without address", UpdateAddress{}},
		{"child failure without order id", ChildFailed{Reason: "r"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := m.Post("order-2", Envelope{Signal: tt.sig})
			assert.ErrorIs(t, err, ErrInvalidSignal)
		})
	}

	envelopes, err := m.Drain("order-2")
	require.NoError(t, err)
	assert.Empty(t, envelopes, "invalid signals must never be delivered")
}

func TestMailboxDropsDuplicateEnvelopes(t *testing.T) {
	m := NewMailbox()
	m.Register("order-3")

	env := Envelope{ID: "dup-1", Signal: ChildFailed{OrderID: "order-3", Reason: "boom"}}
	require.NoError(t, m.Post("order-3", env))
	require.NoError(t, m.Post("order-3", env))

	envelopes, err := m.Drain("order-3")
	require.NoError(t, err)
	assert.Len(t, envelopes, 1)

	// Dedupe spans drains: the id stays seen after consumption.
	require.NoError(t, m.Post("order-3", env))
	envelopes, err = m.Drain("order-3")
	require.NoError(t, err)
	assert.Empty(t, envelopes)
}

func TestMailboxRegisterTwiceKeepsPending(t *testing.T) {
	m := NewMailbox()
	m.Register("order-4")
	require.NoError(t, m.Post("order-4", Envelope{Signal: Cancel{Reason: "r"}}))

	m.Register("order-4")

	envelopes, err := m.Drain("order-4")
	require.NoError(t, err)
	assert.Len(t, envelopes, 1)
}

func TestMailboxRetire(t *testing.T) {
	m := NewMailbox()
	m.Register("order-5")
	require.NoError(t, m.Post("order-5", Envelope{Signal: Cancel{Reason: "r"}}))

	m.Retire("order-5")

	// Pending signals are discarded and late posts resolve silently.
	envelopes, err := m.Drain("order-5")
	require.NoError(t, err)
	assert.Empty(t, envelopes)
	assert.NoError(t, m.Post("order-5", Envelope{Signal: Cancel{Reason: "late"}}))

	// Validation runs before the retired check.
	assert.ErrorIs(t, m.Post("order-5", Envelope{Signal: Cancel{}}), ErrInvalidSignal)
}

func TestMailboxRemove(t *testing.T) {
	m := NewMailbox()
	m.Register("order-6")
	m.Remove("order-6")

	err := m.Post("order-6", Envelope{Signal: Cancel{Reason: "r"}})
	assert.ErrorIs(t, err, ErrUnknownExecution)
}

func TestMailboxSweep(t *testing.T) {
	m := NewMailbox()
	now := time.Now()
	m.sample = func() time.Time { return now }

	m.Register("old")
	m.Register("fresh")
	m.Register("running")

	m.Retire("old")
	now = now.Add(time.Hour)
	m.Retire("fresh")

	removed := m.Sweep(now.Add(-time.Minute))
	assert.Equal(t, 1, removed)

	// The swept inbox is gone, the fresh retiree and the live one remain.
	assert.ErrorIs(t, m.Post("old", Envelope{Signal: Cancel{Reason: "r"}}), ErrUnknownExecution)
	assert.NoError(t, m.Post("fresh", Envelope{Signal: Cancel{Reason: "r"}}))
	assert.NoError(t, m.Post("running", Envelope{Signal: Cancel{Reason: "r"}}))
}

func TestSignalKinds(t *testing.T) {
	assert.Equal(t, Kind("cancel"), Cancel{}.Kind())
	assert.Equal(t, Kind("update_address"), UpdateAddress{}.Kind())
	assert.Equal(t, Kind("child_failed"), ChildFailed{}.Kind())
}
