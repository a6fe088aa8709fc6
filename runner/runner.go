// Package runner executes external commands with bounded timeouts.
//
// The bootstrap never shells out without a deadline: every invocation
// (clone, install, build) is wrapped in a context timeout, and a timeout
// is reported the same way as a nonzero exit so callers can move on to
// their next strategy.
package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"time"
)

// ErrTimeout is returned when a command exceeds its allotted timeout.
var ErrTimeout = errors.New("command timed out")

// DefaultTimeout bounds commands whose spec does not set one.
const DefaultTimeout = 2 * time.Minute

// Command describes a single external process invocation.
type Command struct {
	// Name is the executable to run.
	Name string
	// Args are the arguments passed to the executable.
	Args []string
	// Dir is the working directory. Empty means the current directory.
	Dir string
	// Env holds extra KEY=VALUE entries appended to the process environment.
	Env []string
	// Timeout bounds the invocation. Zero means DefaultTimeout.
	Timeout time.Duration
}

// String renders the command for logs and remediation messages.
func (c Command) String() string {
	if len(c.Args) == 0 {
		return c.Name
	}
	return c.Name + " " + strings.Join(c.Args, " ")
}

// Result holds the captured output of a completed command.
type Result struct {
	Stdout string
	Stderr string
}

// Runner executes commands and resolves executables.
//
// Implementations must honour the Command timeout and return an error
// wrapping ErrTimeout when it is exceeded.
type Runner interface {
	// Run executes the command to completion or timeout.
	Run(ctx context.Context, cmd Command) (Result, error)

	// LookPath resolves an executable name to a path.
	// A missing executable is reported via the error, not a panic.
	LookPath(name string) (string, error)
}

// Local runs commands on the local host via os/exec.
type Local struct {
	logger *slog.Logger
}

// NewLocal creates a Local runner. A nil logger disables command logging.
func NewLocal(logger *slog.Logger) *Local {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Local{logger: logger}
}

// Run executes the command locally, capturing stdout and stderr.
func (l *Local) Run(ctx context.Context, cmd Command) (Result, error) {
	timeout := cmd.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	l.logger.Debug("running command", "command", cmd.String(), "dir", cmd.Dir, "timeout", timeout)

	execCmd := exec.CommandContext(runCtx, cmd.Name, cmd.Args...)
	execCmd.Dir = cmd.Dir
	if len(cmd.Env) > 0 {
		execCmd.Env = append(os.Environ(), cmd.Env...)
	}

	var stdout, stderr bytes.Buffer
	execCmd.Stdout = &stdout
	execCmd.Stderr = &stderr

	err := execCmd.Run()
	result := Result{Stdout: stdout.String(), Stderr: stderr.String()}

	if runCtx.Err() == context.DeadlineExceeded {
		l.logger.Warn("command timed out", "command", cmd.String(), "timeout", timeout)
		return result, fmt.Errorf("%w after %s: %s", ErrTimeout, timeout, cmd.String())
	}
	if err != nil {
		l.logger.Debug("command failed", "command", cmd.String(), "error", err)
		return result, fmt.Errorf("command %q failed: %w", cmd.String(), err)
	}

	return result, nil
}

// LookPath resolves the executable on the local search path.
func (l *Local) LookPath(name string) (string, error) {
	return exec.LookPath(name)
}

// IsTimeout reports whether the error came from an exceeded command timeout.
func IsTimeout(err error) bool {
	return errors.Is(err, ErrTimeout)
}
