package schedule

import (
	"context"
	"log/slog"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/citydash/envready/step"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestNewTrigger(t *testing.T) {
	logger := testLogger()
	run := func(ctx context.Context) (*step.Report, error) {
		return step.NewReport(), nil
	}

	tests := []struct {
		name    string
		spec    string
		wantErr bool
	}{
		{
			name:    "valid spec - daily at 7am",
			spec:    "0 7 * * *",
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
			spec:    "0 7 *",
			wantErr: true,
		},
		{
			name:    "invalid spec - invalid value",
			spec:    "60 7 * * *",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			trigger, err := NewTrigger(tt.spec, run, logger)

			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrInvalidSpec)
				assert.Nil(t, trigger)
			} else {
				require.NoError(t, err)
				assert.NotNil(t, trigger)
				assert.Equal(t, tt.spec, trigger.spec)
			}
		})
	}
}

func TestTrigger_NextRun(t *testing.T) {
	trigger, err := NewTrigger("* * * * *", func(ctx context.Context) (*step.Report, error) {
		return step.NewReport(), nil
	}, testLogger())
	require.NoError(t, err)

	next := trigger.NextRun()
	assert.True(t, next.After(time.Now()))
	assert.True(t, next.Before(time.Now().Add(61*time.Second)))
}

func TestTrigger_StartExecutesOnSchedule(t *testing.T) {
	if testing.Short() {
		t.Skip("waits up to a minute for the cron boundary")
	}

	var runs atomic.Int32
	trigger, err := NewTrigger("* * * * *", func(ctx context.Context) (*step.Report, error) {
		runs.Add(1)
		return step.NewReport(), nil
	}, testLogger())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	trigger.Start(ctx)

	// The first tick is at the next minute boundary, up to a minute away.
	deadline := time.After(65 * time.Second)
	for runs.Load() == 0 {
		select {
		case <-deadline:
			t.Fatal("scheduled run never fired")
		case <-time.After(100 * time.Millisecond):
		}
	}
	assert.GreaterOrEqual(t, runs.Load(), int32(1))
}

func TestTrigger_CancelStopsLoop(t *testing.T) {
	var runs atomic.Int32
	trigger, err := NewTrigger("0 7 * * *", func(ctx context.Context) (*step.Report, error) {
		runs.Add(1)
		return step.NewReport(), nil
	}, testLogger())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	trigger.Start(ctx)
	cancel()

	time.Sleep(50 * time.Millisecond)
	assert.Zero(t, runs.Load())
}
