package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/citydash/envready/bootstrap"
	"github.com/citydash/envready/buildinfo"
	"github.com/citydash/envready/config"
	"github.com/citydash/envready/logging"
	"github.com/citydash/envready/metrics"
	"github.com/citydash/envready/schedule"
	"github.com/citydash/envready/step"
)

type Args struct {
	ConfigPath    string
	ShowVersion   bool
	Validate      bool
	Daemon        bool
	Schedule      string
	MetricsListen string
}

func main() {
	// A nonzero exit means envready itself could not start (bad flags,
	// unreadable config). A completed run always exits zero; problems
	// with the environment are reported as warnings.
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	args := parseArgs()

	if args.ShowVersion {
		showVersion()
		return nil
	}

	cfg, err := loadConfig(args.ConfigPath)
	if err != nil {
		return err
	}
	if args.Schedule != "" {
		cfg.Schedule = args.Schedule
	}

	if args.Validate {
		if args.ConfigPath == "" {
			fmt.Println("Built-in configuration is valid")
		} else {
			fmt.Printf("Configuration validation successful: %s\n", args.ConfigPath)
		}
		return nil
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	props := buildinfo.Get()
	logger.Info("envready started",
		"version", props.Version,
		"build_time", props.BuildTime,
		"git_commit", props.GitCommit,
		"workspace", cfg.Workspace,
	)

	if args.Daemon {
		return runDaemon(cfg, logger, args.MetricsListen)
	}

	collector := logging.NewCollector()
	report, err := runOnce(context.Background(), cfg, logger, collector)
	if err != nil {
		return err
	}
	report.Render(os.Stdout)
	renderFailureLogs(os.Stdout, report, collector)
	return nil
}

// runOnce executes one full bootstrap and pushes run metrics if a
// remote write endpoint is configured.
func runOnce(ctx context.Context, cfg config.Config, logger *logging.Logger, collector *logging.Collector) (*step.Report, error) {
	plan, err := bootstrap.NewPlan(cfg, logger.Logger, bootstrap.WithCollector(collector))
	if err != nil {
		return nil, err
	}

	orch := step.NewOrchestrator(plan.Steps, step.WithLogger(logger.Logger))
	report := orch.Execute(ctx)

	pushMetrics(ctx, cfg, logger, report)
	return report, nil
}

func pushMetrics(ctx context.Context, cfg config.Config, logger *logging.Logger, report *step.Report) {
	if cfg.Monitoring.VictoriaMetricsURL == "" {
		return
	}

	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}
	client := metrics.NewClient(metrics.PushConfig{
		URL:      cfg.Monitoring.VictoriaMetricsURL,
		Prefix:   cfg.Monitoring.MetricsPrefix,
		Job:      cfg.Monitoring.JobName,
		Instance: hostname,
	})
	// Metrics are best effort; an unreachable endpoint never degrades
	// the run outcome.
	if err := client.Push(ctx, metrics.FromReport(report)); err != nil {
		logger.Warn("failed to push run metrics", "error", err)
	}
}

// runDaemon runs the bootstrap immediately, then on the configured cron
// schedule, exposing the last run's metrics for scraping.
func runDaemon(cfg config.Config, logger *logging.Logger, metricsListen string) error {
	if cfg.Schedule == "" {
		return fmt.Errorf("daemon mode requires a schedule (config schedule: or --schedule)")
	}

	exporter, err := metrics.NewExporter(cfg.Monitoring.MetricsPrefix)
	if err != nil {
		return fmt.Errorf("failed to set up metrics exporter: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	collector := logging.NewCollector()
	runAndObserve := func(ctx context.Context) (*step.Report, error) {
		collector.Clear()
		report, err := runOnce(ctx, cfg, logger, collector)
		if err != nil {
			return nil, err
		}
		exporter.Observe(report)
		return report, nil
	}

	trigger, err := schedule.NewTrigger(cfg.Schedule, runAndObserve, logger.Logger)
	if err != nil {
		return err
	}

	if metricsListen != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", exporter.Handler())
		server := &http.Server{Addr: metricsListen, Handler: mux}
		go func() {
			logger.Info("metrics endpoint listening", "addr", metricsListen)
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("metrics endpoint failed", "error", err)
			}
		}()
		defer server.Close()
	}

	// Initial run at startup so a fresh machine converges without
	// waiting for the first cron tick.
	report, err := runAndObserve(ctx)
	if err != nil {
		return err
	}
	report.Render(os.Stdout)

	trigger.Start(ctx)
	logger.Info("schedule active", "schedule", cfg.Schedule, "next_run", trigger.NextRun())

	<-ctx.Done()
	logger.Info("envready shutting down")
	return nil
}

// renderFailureLogs prints the captured log lines for each degraded
// step, so the operator sees what went wrong without raising verbosity.
func renderFailureLogs(w io.Writer, report *step.Report, collector *logging.Collector) {
	for _, outcome := range report.Results {
		if !outcome.Status.IsFailure() {
			continue
		}
		entries := collector.Logs(outcome.Step)
		if len(entries) == 0 {
			continue
		}
		fmt.Fprintf(w, "\nlog for %s:\n", outcome.Step)
		for _, entry := range entries {
			fmt.Fprintf(w, "  %s %s %s\n",
				entry.Time.Format(time.RFC3339), entry.Level, entry.Message)
		}
	}
}

func loadConfig(path string) (config.Config, error) {
	if path == "" {
		return config.DefaultConfig(), nil
	}
	cfg, err := config.LoadConfig(path)
	if err != nil {
		return config.Config{}, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

func showVersion() {
	props := buildinfo.Get()
	fmt.Printf("envready\n")
	fmt.Printf("Version: %s\n", props.Version)
	fmt.Printf("Built: %s\n", props.BuildTime)
	fmt.Printf("Commit: %s\n", props.GitCommit)
}

func parseArgs() Args {
	configPath := flag.String("config", "", "Path to config file (omit for the built-in citydash workspace)")
	configPathShort := flag.String("c", "", "Path to config file (shorthand)")
	showVersion := flag.Bool("version", false, "Show version information")
	versionShort := flag.Bool("v", false, "Show version information (shorthand)")
	validate := flag.Bool("validate", false, "Validate configuration and exit")
	daemon := flag.Bool("daemon", false, "Keep running, re-bootstrapping on a cron schedule")
	scheduleSpec := flag.String("schedule", "", "Cron schedule for daemon mode (overrides config)")
	metricsListen := flag.String("metrics-listen", ":9437", "Daemon /metrics listen address (empty to disable)")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [options]\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "\nWorkspace Environment Bootstrap Tool\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  %s\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s --config envready.yaml\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s --config envready.yaml --validate\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s --daemon --schedule \"0 7 * * *\"\n", os.Args[0])
	}

	flag.Parse()

	path := *configPath
	if path == "" && *configPathShort != "" {
		path = *configPathShort
	}

	return Args{
		ConfigPath:    path,
		ShowVersion:   *showVersion || *versionShort,
		Validate:      *validate,
		Daemon:        *daemon,
		Schedule:      *scheduleSpec,
		MetricsListen: *metricsListen,
	}
}
