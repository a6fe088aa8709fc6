// Package installer ensures required tools are present, trying ordered
// installation strategies until one succeeds.
//
// A tool the prober reports Present is never reinstalled. Each strategy
// attempt is bounded by its own timeout; a timeout counts the same as a
// nonzero exit and moves on to the next strategy. When every strategy
// fails the result is Failed with the exact retry command, which the
// orchestrator treats as a warning, not an abort.
package installer

import (
	"context"
	"log/slog"
	"time"

	"github.com/citydash/envready/probe"
	"github.com/citydash/envready/runner"
	"github.com/citydash/envready/step"
)

// DefaultStrategyTimeout bounds strategies that do not set their own.
const DefaultStrategyTimeout = 5 * time.Minute

// Strategy is one way to install a tool, tried in declared order.
type Strategy struct {
	// Name identifies the strategy in logs ("apt", "vendor-script", "npm").
	Name string `yaml:"name"`
	// Command is the install invocation.
	Command runner.Command `yaml:"-"`
}

// ToolSpec declares a tool the environment requires.
type ToolSpec struct {
	// Name is the step-facing identifier ("node", "uv").
	Name string
	// Probe describes how to detect the tool.
	Probe probe.Spec
	// Strategies are tried in order until one succeeds.
	Strategies []Strategy
}

// Installer ensures tools from ToolSpecs.
type Installer struct {
	prober *probe.Prober
	runner runner.Runner
	logger *slog.Logger
}

// New creates an Installer.
func New(p *probe.Prober, r runner.Runner, logger *slog.Logger) *Installer {
	return &Installer{prober: p, runner: r, logger: logger}
}

// Ensure makes the tool available, returning a tagged step result.
func (i *Installer) Ensure(ctx context.Context, spec ToolSpec) step.Result {
	status := i.prober.Detect(ctx, spec.Probe)
	if status.Present && !status.TooOld {
		if status.Version != "" {
			return step.Skip("%s %s already present at %s", spec.Name, status.Version, status.Path)
		}
		return step.Skip("%s already present at %s (version unknown)", spec.Name, status.Path)
	}

	reason := "absent"
	if status.TooOld {
		reason = "present but below minimum version " + spec.Probe.MinVersion
	}
	i.logger.Info("installing tool", "tool", spec.Name, "reason", reason)

	if len(spec.Strategies) == 0 {
		return step.Fail(
			"", "%s is %s and no installation strategy is configured", spec.Name, reason)
	}

	for _, strategy := range spec.Strategies {
		cmd := strategy.Command
		if cmd.Timeout == 0 {
			cmd.Timeout = DefaultStrategyTimeout
		}

		i.logger.Info("trying install strategy", "tool", spec.Name, "strategy", strategy.Name)
		_, err := i.runner.Run(ctx, cmd)
		if err == nil {
			installed := i.prober.Detect(ctx, spec.Probe)
			if installed.Present && !installed.TooOld {
				version := installed.Version
				if version == "" {
					version = "unknown version"
				}
				return step.Ok("installed %s (%s) via %s", spec.Name, version, strategy.Name)
			}
			// Zero exit but the tool is still undetectable. Treat it the
			// same as a failed strategy.
			i.logger.Warn("install strategy exited cleanly but tool not detected",
				"tool", spec.Name, "strategy", strategy.Name)
			continue
		}

		if runner.IsTimeout(err) {
			i.logger.Warn("install strategy timed out",
				"tool", spec.Name, "strategy", strategy.Name, "timeout", cmd.Timeout)
		} else {
			i.logger.Warn("install strategy failed",
				"tool", spec.Name, "strategy", strategy.Name, "error", err)
		}
	}

	remedy := spec.Strategies[0].Command.String()
	return step.Fail(remedy,
		"could not install %s: all %d strategies failed", spec.Name, len(spec.Strategies))
}
