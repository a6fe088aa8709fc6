// Package metrics reports bootstrap run outcomes as Prometheus-compatible
// metrics.
//
// Two modes are supported:
//   - Push mode (one-shot runs): run metrics are remote-written to a
//     VictoriaMetrics/Prometheus endpoint after the report is final.
//   - Scrape mode (daemon runs): the last run's metrics are held in a
//     registry and exposed via HTTP for scraping.
package metrics

import (
	"time"

	"github.com/citydash/envready/step"
)

// Status values as exported metric samples.
const (
	statusSkipped   = 0
	statusSucceeded = 1
	statusWarned    = 2
	statusFailed    = 3
)

// Metric is a single sample to remote-write.
type Metric struct {
	Name      string
	Value     float64
	Labels    map[string]string
	Timestamp time.Time
}

// FromReport flattens a run report into metrics: one status and one
// duration sample per step, plus run-level warning count and readiness.
func FromReport(report *step.Report) []Metric {
	now := time.Now()
	out := make([]Metric, 0, 2*len(report.Results)+2)

	for _, outcome := range report.Results {
		labels := map[string]string{"step": outcome.Step}
		out = append(out,
			Metric{
				Name:      "step_status",
				Value:     statusValue(outcome.Status),
				Labels:    labels,
				Timestamp: now,
			},
			Metric{
				Name:      "step_duration_seconds",
				Value:     outcome.Duration.Seconds(),
				Labels:    labels,
				Timestamp: now,
			})
	}

	out = append(out,
		Metric{Name: "warnings", Value: float64(len(report.Warnings)), Timestamp: now},
		Metric{Name: "ready", Value: 1, Timestamp: now})
	return out
}

func statusValue(s step.Status) float64 {
	switch s {
	case step.Succeeded:
		return statusSucceeded
	case step.Warned:
		return statusWarned
	case step.Failed:
		return statusFailed
	default:
		return statusSkipped
	}
}
