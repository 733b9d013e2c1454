package cron

import (
	"context"
	"log/slog"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockRunnable is a test implementation of Runnable.
type mockRunnable struct {
	runCount atomic.Int32
	runErr   error
}

func (m *mockRunnable) Run() error {
	m.runCount.Add(1)
	return m.runErr
}

func TestNewCronTrigger(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	tests := []struct {
		name    string
		spec    string
		wantErr bool
	}{
		{
			name:    "valid spec - daily at 2am",
			spec:    "0 2 * * *",
			wantErr: false,
		},
		{
			name:    "valid spec - every hour",
			spec:    "0 * * * *",
			wantErr: false,
		},
		{
			name:    "valid spec - every minute",
			spec:    "* * * * *",
			wantErr: false,
		},
		{
			name:    "valid spec - interval descriptor",
			spec:    "@every 5m",
			wantErr: false,
		},
		{
			name:    "valid spec - hourly descriptor",
			spec:    "@hourly",
			wantErr: false,
		},
		{
			name:    "invalid spec - empty",
			spec:    "",
			wantErr: true,
		},
		{
			name:    "invalid spec - wrong format",
			spec:    "not a cron spec",
			wantErr: true,
		},
		{
			name:    "invalid spec - too few fields",
			spec:    "0 2 *",
			wantErr: true,
		},
		{
			name:    "invalid spec - invalid value",
			spec:    "60 2 * * *",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			trigger, err := NewCronTrigger(tt.spec, &mockRunnable{}, logger)

			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrInvalidCronSpec)
				assert.Nil(t, trigger)
			} else {
				require.NoError(t, err)
				assert.NotNil(t, trigger)
				assert.Equal(t, tt.spec, trigger.spec)
			}
		})
	}
}

func TestCronTrigger_NextRun(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	trigger, err := NewCronTrigger("0 2 * * *", &mockRunnable{}, logger)
	require.NoError(t, err)

	nextRun := trigger.NextRun()
	assert.True(t, nextRun.After(time.Now()), "next run should be in the future")
	assert.Equal(t, 2, nextRun.Hour(), "next run should be at 2am")
	assert.Equal(t, 0, nextRun.Minute(), "next run should be at minute 0")
}

func TestCronTrigger_Start_CancellationStopsLoop(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	runnable := &mockRunnable{}

	// Use a spec that would run every minute
	trigger, err := NewCronTrigger("* * * * *", runnable, logger)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())

	trigger.Start(ctx)

	// Give goroutine time to start
	time.Sleep(10 * time.Millisecond)

	// Cancel should cause the goroutine to exit
	cancel()

	// Give goroutine time to exit
	time.Sleep(10 * time.Millisecond)

	// Run count should be 0 since we cancelled before the first scheduled run
	assert.Equal(t, int32(0), runnable.runCount.Load())
}

func TestCronTrigger_ExecutesRunnable(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	runnable := &mockRunnable{}

	trigger, err := NewCronTrigger("@every 20ms", runnable, logger)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	trigger.Start(ctx)

	require.Eventually(t, func() bool {
		return runnable.runCount.Load() >= 1
	}, 2*time.Second, 5*time.Millisecond)
}
