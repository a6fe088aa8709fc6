package metrics

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/citydash/envready/step"
)

// Exporter holds the latest run's metrics for scraping. Used by the
// daemon, where runs recur on a schedule and a remote-write push per run
// is not the only consumer.
type Exporter struct {
	prom *prometheus.Registry

	stepStatus   *prometheus.GaugeVec
	stepDuration *prometheus.GaugeVec
	warnings     prometheus.Gauge
	lastRun      prometheus.Gauge
	runsTotal    prometheus.Counter
}

// NewExporter creates an Exporter with go/process collectors registered.
func NewExporter(prefix string) (*Exporter, error) {
	reg := prometheus.NewRegistry()
	if err := reg.Register(collectors.NewGoCollector()); err != nil {
		return nil, fmt.Errorf("registering go collector: %w", err)
	}
	if err := reg.Register(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{})); err != nil {
		return nil, fmt.Errorf("registering process collector: %w", err)
	}

	e := &Exporter{
		prom: reg,
		stepStatus: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: prefix + "_step_status",
			Help: "Outcome of a bootstrap step: 0 skipped, 1 succeeded, 2 warned, 3 failed.",
		}, []string{"step"}),
		stepDuration: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: prefix + "_step_duration_seconds",
			Help: "Wall-clock duration of a bootstrap step in the last run.",
		}, []string{"step"}),
		warnings: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: prefix + "_warnings",
			Help: "Number of warnings in the last run.",
		}),
		lastRun: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: prefix + "_last_run_timestamp_seconds",
			Help: "Unix time of the last completed run.",
		}),
		runsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: prefix + "_runs_total",
			Help: "Number of bootstrap runs since the daemon started.",
		}),
	}

	for _, c := range []prometheus.Collector{
		e.stepStatus, e.stepDuration, e.warnings, e.lastRun, e.runsTotal,
	} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("registering run metrics: %w", err)
		}
	}
	return e, nil
}

// Observe records a completed run.
func (e *Exporter) Observe(report *step.Report) {
	for _, outcome := range report.Results {
		labels := prometheus.Labels{"step": outcome.Step}
		e.stepStatus.With(labels).Set(statusValue(outcome.Status))
		e.stepDuration.With(labels).Set(outcome.Duration.Seconds())
	}
	e.warnings.Set(float64(len(report.Warnings)))
	e.lastRun.Set(float64(time.Now().Unix()))
	e.runsTotal.Inc()
}

// Handler returns the /metrics endpoint handler.
func (e *Exporter) Handler() http.Handler {
	return promhttp.HandlerFor(e.prom, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}
