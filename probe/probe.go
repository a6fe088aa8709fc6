// Package probe detects whether required tools are present on a host.
//
// Detection is strictly read-only: it resolves the executable on the
// search path and, when found, asks it for a version string. A tool whose
// version command fails is still reported Present (with unknown version);
// only a missing executable means Absent.
package probe

import (
	"context"
	"log/slog"
	"regexp"
	"strings"
	"time"

	goversion "github.com/hashicorp/go-version"

	"github.com/citydash/envready/runner"
)

const versionTimeout = 15 * time.Second

// versionPattern matches the first dotted version number in command output.
var versionPattern = regexp.MustCompile(`v?(\d+\.\d+(?:\.\d+)?)`)

// Spec describes how to detect one tool.
type Spec struct {
	// Executable is the binary name resolved on the search path.
	Executable string `yaml:"executable"`
	// VersionArgs are passed to the executable to obtain a version string.
	// Defaults to ["--version"].
	VersionArgs []string `yaml:"version_args"`
	// MinVersion, when set, is the lowest acceptable version.
	MinVersion string `yaml:"min_version"`
}

// Status is the outcome of a detection.
type Status struct {
	// Present is true when the executable resolved on the search path.
	Present bool
	// Path is the resolved executable path.
	Path string
	// Version is the detected version, or empty when it could not be read.
	Version string
	// TooOld is true when a MinVersion was configured and the detected
	// version falls below it. Unknown versions are never marked TooOld.
	TooOld bool
}

// Prober runs detections through a command runner.
type Prober struct {
	runner runner.Runner
	logger *slog.Logger
}

// New creates a Prober.
func New(r runner.Runner, logger *slog.Logger) *Prober {
	return &Prober{runner: r, logger: logger}
}

// Detect probes for the tool described by spec. It never mutates state.
func (p *Prober) Detect(ctx context.Context, spec Spec) Status {
	path, err := p.runner.LookPath(spec.Executable)
	if err != nil {
		p.logger.Debug("tool absent", "tool", spec.Executable)
		return Status{Present: false}
	}

	status := Status{Present: true, Path: path}

	args := spec.VersionArgs
	if len(args) == 0 {
		args = []string{"--version"}
	}

	result, err := p.runner.Run(ctx, runner.Command{
		Name:    spec.Executable,
		Args:    args,
		Timeout: versionTimeout,
	})
	if err != nil {
		// Present with unknown version: a broken version query is not absence.
		p.logger.Debug("version query failed", "tool", spec.Executable, "error", err)
		return status
	}

	status.Version = parseVersion(result.Stdout + " " + result.Stderr)
	if status.Version != "" && spec.MinVersion != "" {
		status.TooOld = olderThan(status.Version, spec.MinVersion)
	}

	p.logger.Debug("tool present",
		"tool", spec.Executable,
		"path", path,
		"version", status.Version,
		"too_old", status.TooOld,
	)
	return status
}

// parseVersion extracts the first dotted version token from output.
func parseVersion(output string) string {
	m := versionPattern.FindStringSubmatch(strings.TrimSpace(output))
	if m == nil {
		return ""
	}
	return m[1]
}

// olderThan reports whether detected is strictly below minimum.
// Unparseable versions are treated as acceptable.
func olderThan(detected, minimum string) bool {
	have, err := goversion.NewVersion(detected)
	if err != nil {
		return false
	}
	want, err := goversion.NewVersion(minimum)
	if err != nil {
		return false
	}
	return have.LessThan(want)
}
