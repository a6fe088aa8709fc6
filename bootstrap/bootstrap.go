// Package bootstrap assembles the envready plan: the ordered steps that
// take a workspace from a bare checkout to a ready development
// environment.
//
// The order is fixed by data flow, not preference: tool installs run
// first, repo fetch/build second, config rendering last, because the
// rendered configs embed tool paths resolved by the earlier steps.
package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"

	"github.com/citydash/envready/config"
	"github.com/citydash/envready/installer"
	"github.com/citydash/envready/logging"
	"github.com/citydash/envready/probe"
	"github.com/citydash/envready/render"
	"github.com/citydash/envready/repofetch"
	"github.com/citydash/envready/runner"
	"github.com/citydash/envready/secrets"
	"github.com/citydash/envready/step"
)

// PlanOption configures plan creation.
type PlanOption func(*planOptions)

type planOptions struct {
	runner    runner.Runner
	secrets   *secrets.Source
	collector *logging.Collector
}

// WithRunner overrides the command runner (tests, remote hosts).
func WithRunner(r runner.Runner) PlanOption {
	return func(opts *planOptions) {
		opts.runner = r
	}
}

// WithSecretSource overrides the secret source.
func WithSecretSource(src *secrets.Source) PlanOption {
	return func(opts *planOptions) {
		opts.secrets = src
	}
}

// WithCollector captures per-step log records for the final report.
func WithCollector(collector *logging.Collector) PlanOption {
	return func(opts *planOptions) {
		opts.collector = collector
	}
}

// Plan is an ordered, ready-to-execute bootstrap.
type Plan struct {
	Steps []step.Step

	// resolved maps tool name to detected executable path, written by
	// install steps and read by render steps.
	resolved   map[string]string
	resolvedMu sync.RWMutex
}

// NewPlan builds the plan for the given configuration.
// Configuration defects (which New rejects) are startup errors here,
// never runtime step failures.
func NewPlan(cfg config.Config, logger *slog.Logger, opts ...PlanOption) (*Plan, error) {
	options := &planOptions{}
	for _, opt := range opts {
		opt(options)
	}

	if options.runner == nil {
		if cfg.Runner.SSH != nil {
			remote, err := runner.NewSSH(*cfg.Runner.SSH, logger)
			if err != nil {
				return nil, fmt.Errorf("failed to set up remote runner: %w", err)
			}
			options.runner = remote
		} else {
			options.runner = runner.NewLocal(logger)
		}
	}

	if options.secrets == nil {
		src, err := secrets.Load(resolvePath(cfg.Workspace, cfg.SecretFile))
		if err != nil {
			return nil, fmt.Errorf("failed to load secret file: %w", err)
		}
		options.secrets = src
	}

	plan := &Plan{resolved: make(map[string]string)}

	stepLogger := func(name string) *slog.Logger {
		if options.collector != nil {
			return logging.StepLogger(logger, options.collector, name)
		}
		return logger.With("step", name)
	}

	for _, toolCfg := range cfg.Tools {
		name := "install-" + toolCfg.Name
		log := stepLogger(name)
		prober := probe.New(options.runner, log)
		inst := installer.New(prober, options.runner, log)
		spec := toolSpec(toolCfg)
		tool := toolCfg

		s, err := step.New(name, func(ctx context.Context) step.Result {
			result := inst.Ensure(ctx, spec)
			if status := prober.Detect(ctx, spec.Probe); status.Present {
				plan.setResolved(tool.Name, status.Path)
			}
			return result
		})
		if err != nil {
			return nil, err
		}
		plan.Steps = append(plan.Steps, s)
	}

	for _, repoCfg := range cfg.Repos {
		name := "fetch-" + repoCfg.Name
		log := stepLogger(name)
		fetcher := repofetch.New(options.runner, log)
		spec := repoSpec(cfg.Workspace, repoCfg)

		s, err := step.New(name, func(ctx context.Context) step.Result {
			return fetcher.Ensure(ctx, spec)
		})
		if err != nil {
			return nil, err
		}
		plan.Steps = append(plan.Steps, s)
	}

	for _, tmplCfg := range cfg.Templates {
		name := "render-" + templateName(tmplCfg)
		log := stepLogger(name)
		renderer := render.New(options.secrets, log)
		tmpl := tmplCfg

		s, err := step.New(name, func(ctx context.Context) step.Result {
			spec, degraded := plan.templateSpec(cfg.Workspace, tmpl)
			result := renderer.Render(spec)
			if len(degraded) > 0 && result.Status == step.Succeeded {
				// A placeholder tool path yields a usable but degraded config.
				return step.Warn(
					"envready",
					"%s; placeholder path used for: %s", result.Message, joinNames(degraded))
			}
			return result
		})
		if err != nil {
			return nil, err
		}
		plan.Steps = append(plan.Steps, s)
	}

	return plan, nil
}

// setResolved records a tool's detected path (thread-safe).
func (p *Plan) setResolved(tool, path string) {
	p.resolvedMu.Lock()
	defer p.resolvedMu.Unlock()
	p.resolved[tool] = path
}

// ResolvedPath returns the detected path for a tool, if any.
func (p *Plan) ResolvedPath(tool string) (string, bool) {
	p.resolvedMu.RLock()
	defer p.resolvedMu.RUnlock()
	path, ok := p.resolved[tool]
	return path, ok
}

// templateSpec converts config into a render spec, substituting resolved
// tool paths. It returns the tools whose paths fell back to placeholders.
func (p *Plan) templateSpec(workspace string, cfg config.TemplateConfig) (render.TemplateSpec, []string) {
	var degraded []string
	tokens := make(map[string]render.TokenSpec, len(cfg.Tokens))
	for token, tc := range cfg.Tokens {
		switch {
		case tc.ToolPath != "":
			if path, ok := p.ResolvedPath(tc.ToolPath); ok {
				tokens[token] = render.TokenSpec{Value: path}
			} else {
				tokens[token] = render.TokenSpec{Value: tc.Placeholder}
				degraded = append(degraded, tc.ToolPath)
			}
		case tc.Secret != "":
			tokens[token] = render.TokenSpec{Secret: tc.Secret, Placeholder: tc.Placeholder}
		default:
			tokens[token] = render.TokenSpec{Value: tc.Value}
		}
	}

	return render.TemplateSpec{
		Name:   templateName(cfg),
		Source: resolvePath(workspace, cfg.Source),
		Dest:   resolvePath(workspace, cfg.Dest),
		Policy: render.Policy(cfg.Policy),
		Tokens: tokens,
	}, degraded
}

// toolSpec converts tool config into an installer spec.
func toolSpec(cfg config.ToolConfig) installer.ToolSpec {
	strategies := make([]installer.Strategy, 0, len(cfg.Strategies))
	for _, s := range cfg.Strategies {
		strategies = append(strategies, installer.Strategy{
			Name: s.Name,
			Command: runner.Command{
				Name:    s.Command[0],
				Args:    s.Command[1:],
				Timeout: s.Timeout,
			},
		})
	}
	return installer.ToolSpec{
		Name: cfg.Name,
		Probe: probe.Spec{
			Executable:  cfg.Executable,
			VersionArgs: cfg.VersionArgs,
			MinVersion:  cfg.MinVersion,
		},
		Strategies: strategies,
	}
}

// repoSpec converts repo config into a fetcher spec.
func repoSpec(workspace string, cfg config.RepoConfig) repofetch.RepoSpec {
	spec := repofetch.RepoSpec{
		Name:         cfg.Name,
		Remote:       cfg.Remote,
		Path:         resolvePath(workspace, cfg.Path),
		Artifact:     cfg.Artifact,
		CloneTimeout: cfg.CloneTimeout,
	}
	if len(cfg.Install) > 0 {
		spec.Install = runner.Command{
			Name:    cfg.Install[0],
			Args:    cfg.Install[1:],
			Timeout: cfg.InstallTimeout,
		}
	}
	if len(cfg.Build) > 0 {
		spec.Build = runner.Command{
			Name:    cfg.Build[0],
			Args:    cfg.Build[1:],
			Timeout: cfg.BuildTimeout,
		}
	}
	return spec
}

func templateName(cfg config.TemplateConfig) string {
	if cfg.Name != "" {
		return cfg.Name
	}
	return filepath.Base(cfg.Dest)
}

func resolvePath(workspace, path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(workspace, path)
}

func joinNames(names []string) string {
	out := ""
	for i, name := range names {
		if i > 0 {
			out += ", "
		}
		out += name
	}
	return out
}
