// Package repofetch ensures an external source checkout exists and has
// been built.
//
// Idempotency contract: an existing version-control marker means the
// clone is satisfied and the checkout is left alone (no pull); an
// existing build artifact means the whole install+build phase is
// skipped. A failed clone short-circuits the build for that repo only.
package repofetch

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/citydash/envready/runner"
	"github.com/citydash/envready/step"
)

const (
	// DefaultCloneTimeout bounds the shallow clone.
	DefaultCloneTimeout = 3 * time.Minute
	// DefaultBuildTimeout bounds each of the install and build commands.
	DefaultBuildTimeout = 10 * time.Minute

	gitMarker = ".git"
)

// RepoSpec declares one external server project to fetch and build.
type RepoSpec struct {
	// Name is the step-facing identifier ("socrata-mcp").
	Name string
	// Remote is the clone URL.
	Remote string
	// Path is the local checkout directory.
	Path string
	// Install is the dependency-install command, run in Path.
	// Zero value means no install phase.
	Install runner.Command
	// Build is the build command, run in Path.
	Build runner.Command
	// Artifact is the expected build output, relative to Path. Its
	// presence is the "already built" marker.
	Artifact string
	// CloneTimeout bounds the clone. Zero means DefaultCloneTimeout.
	CloneTimeout time.Duration
}

// Fetcher ensures RepoSpecs through a command runner.
type Fetcher struct {
	runner runner.Runner
	logger *slog.Logger
}

// New creates a Fetcher.
func New(r runner.Runner, logger *slog.Logger) *Fetcher {
	return &Fetcher{runner: r, logger: logger}
}

// Ensure fetches and builds the repo, returning a tagged step result.
func (f *Fetcher) Ensure(ctx context.Context, spec RepoSpec) step.Result {
	cloned, cloneResult := f.ensureClone(ctx, spec)
	if !cloned {
		// Cannot build what wasn't fetched.
		return cloneResult
	}

	artifact := filepath.Join(spec.Path, spec.Artifact)
	if spec.Artifact != "" {
		if _, err := os.Stat(artifact); err == nil {
			f.logger.Info("build artifact present, skipping build",
				"repo", spec.Name, "artifact", artifact)
			return step.Skip("%s already built (%s exists)", spec.Name, artifact)
		}
	}

	if spec.Install.Name != "" {
		installCmd := inDir(spec.Install, spec.Path)
		f.logger.Info("installing dependencies", "repo", spec.Name, "command", installCmd.String())
		if _, err := f.runner.Run(ctx, installCmd); err != nil {
			// Distinct from a build failure so the operator re-runs the
			// right command.
			return step.Fail(
				remedyIn(spec.Path, installCmd),
				"dependency install for %s failed: %v", spec.Name, err)
		}
	}

	buildCmd := inDir(spec.Build, spec.Path)
	f.logger.Info("building", "repo", spec.Name, "command", buildCmd.String())
	if _, err := f.runner.Run(ctx, buildCmd); err != nil {
		return step.Fail(
			remedyIn(spec.Path, buildCmd),
			"build for %s failed: %v", spec.Name, err)
	}

	if spec.Artifact != "" {
		if _, err := os.Stat(artifact); err != nil {
			return step.Warn(
				remedyIn(spec.Path, buildCmd),
				"build for %s completed but expected artifact %s is missing", spec.Name, artifact)
		}
	}

	return step.Ok("%s cloned and built (%s)", spec.Name, artifact)
}

// ensureClone makes the checkout exist. The bool reports whether a
// checkout is available for the build phase.
func (f *Fetcher) ensureClone(ctx context.Context, spec RepoSpec) (bool, step.Result) {
	marker := filepath.Join(spec.Path, gitMarker)
	if _, err := os.Stat(marker); err == nil {
		// Already fetched; deliberately no pull.
		f.logger.Info("checkout present, leaving as-is", "repo", spec.Name, "path", spec.Path)
		return true, step.Result{}
	}

	timeout := spec.CloneTimeout
	if timeout == 0 {
		timeout = DefaultCloneTimeout
	}
	cloneCmd := runner.Command{
		Name:    "git",
		Args:    []string{"clone", "--depth", "1", spec.Remote, spec.Path},
		Timeout: timeout,
	}

	f.logger.Info("cloning", "repo", spec.Name, "remote", spec.Remote, "path", spec.Path)
	if _, err := f.runner.Run(ctx, cloneCmd); err != nil {
		return false, step.Fail(
			cloneCmd.String(),
			"clone of %s failed: %v", spec.Name, err)
	}
	return true, step.Result{}
}

// inDir pins a command's working directory to the checkout.
func inDir(cmd runner.Command, dir string) runner.Command {
	if cmd.Dir == "" {
		cmd.Dir = dir
	}
	if cmd.Timeout == 0 {
		cmd.Timeout = DefaultBuildTimeout
	}
	return cmd
}

// remedyIn renders the retry command an operator can paste.
func remedyIn(dir string, cmd runner.Command) string {
	return fmt.Sprintf("cd %s && %s", dir, cmd.String())
}
