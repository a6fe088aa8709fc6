// Package schedule re-runs the bootstrap on a cron schedule.
//
// Because every step is idempotent, a scheduled re-run is cheap when the
// environment is already ready: satisfied steps skip, and only drift
// (deleted checkouts, removed tools, missing configs) causes work.
package schedule

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/citydash/envready/step"
)

// ErrInvalidSpec is returned when the cron specification cannot be parsed.
var ErrInvalidSpec = errors.New("invalid cron spec")

// RunFunc executes one bootstrap run. The error covers setup defects
// only; step failures live inside the report.
type RunFunc func(ctx context.Context) (*step.Report, error)

// Trigger executes a RunFunc according to a cron schedule.
type Trigger struct {
	spec     string
	schedule cron.Schedule
	run      RunFunc
	logger   *slog.Logger
}

// NewTrigger creates a Trigger for a standard 5-field cron spec
// (minute, hour, day, month, weekday).
// Returns ErrInvalidSpec if the specification cannot be parsed.
func NewTrigger(spec string, run RunFunc, logger *slog.Logger) (*Trigger, error) {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	schedule, err := parser.Parse(spec)
	if err != nil {
		return nil, errors.Join(ErrInvalidSpec, err)
	}

	return &Trigger{
		spec:     spec,
		schedule: schedule,
		run:      run,
		logger:   logger,
	}, nil
}

// Start launches a goroutine that triggers runs on schedule.
// Returns immediately. The goroutine exits when ctx is cancelled.
func (t *Trigger) Start(ctx context.Context) {
	go t.loop(ctx)
}

// NextRun returns the next scheduled run time from now.
func (t *Trigger) NextRun() time.Time {
	return t.schedule.Next(time.Now())
}

func (t *Trigger) loop(ctx context.Context) {
	for {
		nextRun := t.schedule.Next(time.Now())
		waitDuration := time.Until(nextRun)

		t.logger.Debug("waiting for next scheduled run",
			"next_run", nextRun,
			"wait_duration", waitDuration,
		)

		select {
		case <-ctx.Done():
			t.logger.Info("schedule trigger shutting down")
			return
		case <-time.After(waitDuration):
			t.executeRun(ctx)
		}
	}
}

func (t *Trigger) executeRun(ctx context.Context) {
	t.logger.Info("starting scheduled bootstrap run")

	report, err := t.run(ctx)
	if err != nil {
		t.logger.Error("scheduled run could not start", "error", err)
		return
	}
	if len(report.Warnings) > 0 {
		t.logger.Warn("scheduled run ready with warnings", "warnings", len(report.Warnings))
	} else {
		t.logger.Info("scheduled run ready")
	}
}
