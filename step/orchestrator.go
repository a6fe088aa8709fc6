package step

import (
	"context"
	"log/slog"
	"time"
)

// Orchestrator executes a fixed, ordered plan of steps.
//
// Execution is strictly sequential: later steps (config rendering) read
// state produced by earlier ones (resolved tool paths), so there is no
// concurrency here on purpose. Individual failures are collected into the
// Report; the run always terminates in the Ready outcome.
type Orchestrator struct {
	steps  []Step
	logger *slog.Logger
	clock  func() time.Time
}

// OrchestratorOption configures an Orchestrator.
type OrchestratorOption func(*Orchestrator)

// WithLogger sets the orchestrator's logger.
func WithLogger(logger *slog.Logger) OrchestratorOption {
	return func(o *Orchestrator) {
		o.logger = logger.With("component", "orchestrator")
	}
}

// withClock overrides the time source, for tests.
func withClock(clock func() time.Time) OrchestratorOption {
	return func(o *Orchestrator) {
		o.clock = clock
	}
}

// NewOrchestrator creates an orchestrator for the given plan.
// The plan order is the execution order.
func NewOrchestrator(steps []Step, opts ...OrchestratorOption) *Orchestrator {
	o := &Orchestrator{
		steps:  steps,
		logger: slog.Default().With("component", "orchestrator"),
		clock:  time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Execute runs every step in order and returns the report.
//
// A failed non-fatal step is recorded and the run continues. A failed
// fatal step stops execution; the remaining steps are recorded Skipped.
// Execute itself never fails: the report's Outcome is always Ready.
func (o *Orchestrator) Execute(ctx context.Context) *Report {
	report := NewReport()
	o.logger.Info("starting bootstrap", "step_count", len(o.steps))

	aborted := false
	for _, s := range o.steps {
		stepLogger := o.logger.With("step", s.Name())

		if aborted {
			stepLogger.Warn("step not run: earlier fatal step failed")
			report.Add(s.Name(), Skip("not run: an earlier fatal step failed"))
			continue
		}

		stepLogger.Info("step starting")
		start := o.clock()
		result := s.action(ctx)
		result.Duration = o.clock().Sub(start)
		report.Add(s.Name(), result)

		switch result.Status {
		case Failed:
			stepLogger.Error("step failed",
				"message", result.Message,
				"remedy", result.Remedy,
				"duration", result.Duration,
			)
			if s.IsFatal() {
				aborted = true
			}
		case Warned:
			stepLogger.Warn("step degraded",
				"message", result.Message,
				"remedy", result.Remedy,
				"duration", result.Duration,
			)
		default:
			stepLogger.Info("step done",
				"status", result.Status.String(),
				"message", result.Message,
				"duration", result.Duration,
			)
		}
	}

	o.logger.Info("bootstrap finished",
		"outcome", report.Outcome,
		"warnings", len(report.Warnings),
	)
	return report
}
