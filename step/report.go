package step

import (
	"fmt"
	"io"
	"strings"
)

// Ready is the only terminal outcome of a bootstrap run. Failures are
// communicated through step statuses and the warnings list, never through
// a failed outcome or a nonzero exit.
const Ready = "ready"

// Outcome names the terminal state of a run.
type Outcome = string

// StepOutcome pairs a step name with its result for the report.
type StepOutcome struct {
	Step string
	Result
}

// Report is the value returned by one orchestrator run. It is created
// fresh per invocation and carries no state across runs; the filesystem
// side effects are what make re-runs idempotent.
type Report struct {
	Results  []StepOutcome
	Warnings []string
	Outcome  Outcome
}

// NewReport creates an empty report. The outcome is Ready from the start
// and never changes.
func NewReport() *Report {
	return &Report{Outcome: Ready}
}

// Add records a step result, deriving a warning for degraded statuses.
func (r *Report) Add(stepName string, result Result) {
	r.Results = append(r.Results, StepOutcome{Step: stepName, Result: result})
	if result.Status.IsFailure() {
		warning := fmt.Sprintf("%s: %s", stepName, result.Message)
		if result.Remedy != "" {
			warning += fmt.Sprintf(" (retry with: %s)", result.Remedy)
		}
		r.Warnings = append(r.Warnings, warning)
	}
}

// Statuses returns the status per step, in execution order.
func (r *Report) Statuses() map[string]Status {
	out := make(map[string]Status, len(r.Results))
	for _, res := range r.Results {
		out[res.Step] = res.Status
	}
	return out
}

// Render writes the human-readable run summary.
func (r *Report) Render(w io.Writer) {
	fmt.Fprintln(w, "bootstrap summary")
	for _, res := range r.Results {
		fmt.Fprintf(w, "  %-10s %-24s %s\n", res.Status, res.Step, res.Message)
	}
	if len(r.Warnings) > 0 {
		fmt.Fprintf(w, "\n%d warning(s):\n", len(r.Warnings))
		for _, warning := range r.Warnings {
			fmt.Fprintf(w, "  - %s\n", warning)
		}
		fmt.Fprintln(w, "\nre-running envready is always safe; satisfied steps are skipped.")
	}
	fmt.Fprintf(w, "\nenvironment %s\n", strings.ToUpper(r.Outcome))
}
