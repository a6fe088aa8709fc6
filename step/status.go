package step

// Status represents the terminal outcome of a step execution.
type Status int

const (
	// Skipped indicates the step's desired state was already satisfied,
	// or an earlier fatal failure prevented the step from running.
	Skipped Status = iota

	// Succeeded indicates the step ran and completed its mutation.
	Succeeded

	// Warned indicates the step completed in a degraded way that is worth
	// surfacing but did not prevent a usable result.
	Warned

	// Failed indicates the step ran and did not achieve its desired state.
	// Failed steps are recoverable at the orchestrator level unless the
	// step is marked fatal.
	Failed
)

// String returns a human-readable representation of the Status.
func (s Status) String() string {
	switch s {
	case Skipped:
		return "skipped"
	case Succeeded:
		return "succeeded"
	case Warned:
		return "warned"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// IsFailure reports whether the status should be surfaced as a warning
// in the run report.
func (s Status) IsFailure() bool {
	return s == Warned || s == Failed
}
