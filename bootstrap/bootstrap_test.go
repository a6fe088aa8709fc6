package bootstrap

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/citydash/envready/config"
	"github.com/citydash/envready/runner"
	"github.com/citydash/envready/secrets"
	"github.com/citydash/envready/step"
)

// fakeRunner simulates commands against the real filesystem: a command
// matching a key in creates materializes the named file before
// returning.
type fakeRunner struct {
	paths   map[string]string
	output  map[string]string
	creates map[string][]string
	calls   []string
}

func (f *fakeRunner) Run(ctx context.Context, cmd runner.Command) (runner.Result, error) {
	key := cmd.String()
	f.calls = append(f.calls, key)
	for prefix, files := range f.creates {
		if strings.HasPrefix(key, prefix) {
			for _, file := range files {
				path := file
				if !filepath.IsAbs(path) {
					path = filepath.Join(cmd.Dir, path)
				}
				if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
					return runner.Result{}, err
				}
				if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
					return runner.Result{}, err
				}
			}
		}
	}
	return runner.Result{Stdout: f.output[key]}, nil
}

func (f *fakeRunner) LookPath(name string) (string, error) {
	if path, ok := f.paths[name]; ok {
		return path, nil
	}
	return "", os.ErrNotExist
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func testConfig(workspace string) config.Config {
	cfg := config.Config{
		Workspace: workspace,
		Tools: []config.ToolConfig{
			{
				Name:       "node",
				Executable: "node",
				Strategies: []config.StrategyConfig{
					{Name: "apt", Command: []string{"apt-get", "install", "-y", "nodejs"}},
				},
			},
		},
		Repos: []config.RepoConfig{
			{
				Name:     "socrata-mcp",
				Remote:   "https://github.com/example/socrata-mcp.git",
				Path:     "servers/socrata-mcp",
				Install:  []string{"npm", "install"},
				Build:    []string{"npm", "run", "build"},
				Artifact: "build/index.js",
			},
		},
		Templates: []config.TemplateConfig{
			{
				Name:   "mcp-config",
				Source: "templates/mcp.json.tmpl",
				Dest:   ".mcp.json",
				Tokens: map[string]config.TokenConfig{
					"__NODE_PATH__": {ToolPath: "node", Placeholder: "/usr/bin/node"},
					"__APP_TOKEN__": {Secret: "SOCRATA_APP_TOKEN", Placeholder: "__APP_TOKEN__"},
				},
			},
		},
	}
	cfg.SetDefaults()
	return cfg
}

func writeTemplate(t *testing.T, workspace string) {
	t.Helper()
	dir := filepath.Join(workspace, "templates")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	body := `{"command": "__NODE_PATH__", "token": "__APP_TOKEN__"}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "mcp.json.tmpl"), []byte(body), 0o644))
}

func TestNewPlanStepOrder(t *testing.T) {
	workspace := t.TempDir()
	plan, err := NewPlan(testConfig(workspace), testLogger(),
		WithRunner(&fakeRunner{}),
		WithSecretSource(secrets.Static(nil)))
	require.NoError(t, err)

	var names []string
	for _, s := range plan.Steps {
		names = append(names, s.Name())
	}
	assert.Equal(t, []string{"install-node", "fetch-socrata-mcp", "render-mcp-config"}, names)
}

func TestPlanFullRun(t *testing.T) {
	workspace := t.TempDir()
	writeTemplate(t, workspace)
	checkout := filepath.Join(workspace, "servers", "socrata-mcp")

	fake := &fakeRunner{
		paths:  map[string]string{"node": "/opt/bin/node"},
		output: map[string]string{"node --version": "v20.11.1"},
		creates: map[string][]string{
			"git clone":     {filepath.Join(checkout, ".git", "HEAD")},
			"npm run build": {filepath.Join(checkout, "build", "index.js")},
		},
	}

	plan, err := NewPlan(testConfig(workspace), testLogger(),
		WithRunner(fake),
		WithSecretSource(secrets.Static(map[string]string{"SOCRATA_APP_TOKEN": "tok-123"})))
	require.NoError(t, err)

	report := step.NewOrchestrator(plan.Steps).Execute(context.Background())
	require.Equal(t, step.Ready, report.Outcome)
	for _, outcome := range report.Results {
		assert.NotEqual(t, step.Failed, outcome.Status, "step %s", outcome.Step)
		assert.NotEqual(t, step.Warned, outcome.Status, "step %s", outcome.Step)
	}

	path, ok := plan.ResolvedPath("node")
	require.True(t, ok)
	assert.Equal(t, "/opt/bin/node", path)

	rendered, err := os.ReadFile(filepath.Join(workspace, ".mcp.json"))
	require.NoError(t, err)
	assert.Equal(t, `{"command": "/opt/bin/node", "token": "tok-123"}`, string(rendered))
}

func TestPlanSecondRunSkips(t *testing.T) {
	workspace := t.TempDir()
	writeTemplate(t, workspace)
	checkout := filepath.Join(workspace, "servers", "socrata-mcp")

	fake := &fakeRunner{
		paths:  map[string]string{"node": "/opt/bin/node"},
		output: map[string]string{"node --version": "v20.11.1"},
		creates: map[string][]string{
			"git clone":     {filepath.Join(checkout, ".git", "HEAD")},
			"npm run build": {filepath.Join(checkout, "build", "index.js")},
		},
	}

	cfg := testConfig(workspace)
	source := secrets.Static(map[string]string{"SOCRATA_APP_TOKEN": "tok-123"})

	plan, err := NewPlan(cfg, testLogger(), WithRunner(fake), WithSecretSource(source))
	require.NoError(t, err)
	step.NewOrchestrator(plan.Steps).Execute(context.Background())
	firstCalls := len(fake.calls)

	plan, err = NewPlan(cfg, testLogger(), WithRunner(fake), WithSecretSource(source))
	require.NoError(t, err)
	report := step.NewOrchestrator(plan.Steps).Execute(context.Background())

	statuses := report.Statuses()
	assert.Equal(t, step.Skipped, statuses["fetch-socrata-mcp"])
	assert.Equal(t, step.Skipped, statuses["render-mcp-config"])
	assert.Equal(t, step.Ready, report.Outcome)

	// The second run may probe, but must run no clone/install/build.
	for _, call := range fake.calls[firstCalls:] {
		assert.NotContains(t, call, "git clone")
		assert.NotContains(t, call, "npm")
	}
}

func TestPlanDegradedRenderWarns(t *testing.T) {
	workspace := t.TempDir()
	writeTemplate(t, workspace)
	checkout := filepath.Join(workspace, "servers", "socrata-mcp")

	// node is absent and its install strategy is a no-op, so the
	// rendered config must fall back to the placeholder path.
	fake := &fakeRunner{
		creates: map[string][]string{
			"git clone":     {filepath.Join(checkout, ".git", "HEAD")},
			"npm run build": {filepath.Join(checkout, "build", "index.js")},
		},
	}

	plan, err := NewPlan(testConfig(workspace), testLogger(),
		WithRunner(fake),
		WithSecretSource(secrets.Static(map[string]string{"SOCRATA_APP_TOKEN": "tok-123"})))
	require.NoError(t, err)

	report := step.NewOrchestrator(plan.Steps).Execute(context.Background())
	require.Equal(t, step.Ready, report.Outcome)

	statuses := report.Statuses()
	assert.Equal(t, step.Failed, statuses["install-node"])
	assert.Equal(t, step.Warned, statuses["render-mcp-config"])

	rendered, err := os.ReadFile(filepath.Join(workspace, ".mcp.json"))
	require.NoError(t, err)
	assert.Contains(t, string(rendered), `"command": "/usr/bin/node"`)
	assert.Contains(t, string(rendered), `"token": "tok-123"`)
}

func TestPlanRelativePathResolution(t *testing.T) {
	workspace := t.TempDir()
	cfg := testConfig(workspace)
	spec := repoSpec(cfg.Workspace, cfg.Repos[0])
	assert.Equal(t, filepath.Join(workspace, "servers", "socrata-mcp"), spec.Path)

	abs := cfg.Repos[0]
	abs.Path = "/srv/checkout"
	assert.Equal(t, "/srv/checkout", repoSpec(cfg.Workspace, abs).Path)
}
