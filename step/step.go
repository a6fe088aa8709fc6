// Package step defines the unit of work for the bootstrap and the
// sequential orchestrator that executes a fixed plan of steps.
//
// Steps are immutable once constructed. A step returns a tagged Result
// instead of an error: failure is data, collected into the run report,
// and by contract the orchestrator always reaches the Ready outcome.
package step

import (
	"context"
	"fmt"
	"time"
)

// Action performs a step's work and reports its outcome.
// Actions must honour context cancellation and must not panic; anything
// recoverable belongs in the returned Result.
type Action func(ctx context.Context) Result

// Step is a single named unit of the bootstrap plan.
type Step struct {
	name   string
	action Action
	fatal  bool
}

// New constructs a Step. An empty name or nil action is a configuration
// defect and is rejected at construction time, not at run time.
func New(name string, action Action, opts ...Option) (Step, error) {
	if name == "" {
		return Step{}, fmt.Errorf("step name must not be empty")
	}
	if action == nil {
		return Step{}, fmt.Errorf("step %q has a nil action", name)
	}
	s := Step{name: name, action: action}
	for _, opt := range opts {
		opt(&s)
	}
	return s, nil
}

// MustNew is New for statically declared plans, where a malformed step is
// a programming error.
func MustNew(name string, action Action, opts ...Option) Step {
	s, err := New(name, action, opts...)
	if err != nil {
		panic(err)
	}
	return s
}

// Option configures a Step at construction time.
type Option func(*Step)

// Fatal marks the step as run-aborting: when it fails, later steps are
// recorded as Skipped instead of executing. The run still ends Ready.
func Fatal() Option {
	return func(s *Step) {
		s.fatal = true
	}
}

// Name returns the step's identifier.
func (s Step) Name() string {
	return s.name
}

// IsFatal reports whether a failure of this step aborts the rest of the plan.
func (s Step) IsFatal() bool {
	return s.fatal
}

// Result is the outcome of one step execution. Results are created fresh
// each run and never retried automatically; re-running the whole bootstrap
// is the retry mechanism.
type Result struct {
	// Status is the tagged outcome.
	Status Status

	// Message describes what happened in operator terms.
	Message string

	// Remedy is the exact command to re-run just this step's work.
	// Empty for successful and skipped steps.
	Remedy string

	// Duration is how long the step took; filled in by the orchestrator.
	Duration time.Duration
}

// Ok builds a Succeeded result.
func Ok(format string, args ...interface{}) Result {
	return Result{Status: Succeeded, Message: fmt.Sprintf(format, args...)}
}

// Skip builds a Skipped result.
func Skip(format string, args ...interface{}) Result {
	return Result{Status: Skipped, Message: fmt.Sprintf(format, args...)}
}

// Warn builds a Warned result with a remediation command.
func Warn(remedy, format string, args ...interface{}) Result {
	return Result{Status: Warned, Message: fmt.Sprintf(format, args...), Remedy: remedy}
}

// Fail builds a Failed result with a remediation command.
func Fail(remedy, format string, args ...interface{}) Result {
	return Result{Status: Failed, Message: fmt.Sprintf(format, args...), Remedy: remedy}
}
