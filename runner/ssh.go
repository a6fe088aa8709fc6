package runner

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"
	"strings"
	"time"

	"golang.org/x/crypto/ssh"
)

const defaultSSHPort = ":22"

// SSH runs commands on a remote dev host over a persistent SSH connection.
// It lets envready prepare a remote workspace (a cloud dev box) instead of
// the local one; the step semantics are identical.
type SSH struct {
	client *ssh.Client
	logger *slog.Logger
}

// SSHConfig holds the connection settings for a remote runner.
type SSHConfig struct {
	// Host is the remote address. Port defaults to 22 when omitted.
	Host string `yaml:"host"`
	// User is the SSH login user.
	User string `yaml:"user"`
	// PrivateKeyPath points at a PEM-encoded private key file.
	PrivateKeyPath string `yaml:"private_key_path"`
}

// NewSSH dials the remote host and returns a connected runner.
func NewSSH(cfg SSHConfig, logger *slog.Logger) (*SSH, error) {
	if cfg.Host == "" || cfg.User == "" || cfg.PrivateKeyPath == "" {
		return nil, fmt.Errorf("ssh runner requires host, user and private_key_path")
	}

	host := cfg.Host
	if _, _, err := net.SplitHostPort(host); err != nil {
		host = host + defaultSSHPort
	}

	keyPEM, err := os.ReadFile(cfg.PrivateKeyPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read private key file %s: %w", cfg.PrivateKeyPath, err)
	}

	signer, err := ssh.ParsePrivateKey(keyPEM)
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}

	clientConfig := &ssh.ClientConfig{
		User: cfg.User,
		Auth: []ssh.AuthMethod{
			ssh.PublicKeys(signer),
		},
		HostKeyCallback: ssh.InsecureIgnoreHostKey(), // NOTE: for production, use a proper callback
	}

	client, err := ssh.Dial("tcp", host, clientConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to dial SSH: %w", err)
	}

	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, nil))
	}
	return &SSH{client: client, logger: logger}, nil
}

// Run executes the command on the remote host using a new session on the
// existing connection. The timeout is enforced by closing the session.
func (s *SSH) Run(ctx context.Context, cmd Command) (Result, error) {
	timeout := cmd.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	session, err := s.client.NewSession()
	if err != nil {
		return Result{}, fmt.Errorf("failed to create SSH session: %w", err)
	}
	defer session.Close()

	var stdout, stderr strings.Builder
	session.Stdout = &stdout
	session.Stderr = &stderr

	remote := remoteCommand(cmd)
	s.logger.Debug("running remote command", "command", remote, "timeout", timeout)

	done := make(chan error, 1)
	go func() {
		done <- session.Run(remote)
	}()

	select {
	case <-runCtx.Done():
		// Closing the session tears down the remote process.
		session.Close()
		<-done
		result := Result{Stdout: stdout.String(), Stderr: stderr.String()}
		return result, fmt.Errorf("%w after %s: %s", ErrTimeout, timeout, remote)
	case err := <-done:
		result := Result{Stdout: stdout.String(), Stderr: stderr.String()}
		if err != nil {
			return result, fmt.Errorf("remote command %q failed: %w", remote, err)
		}
		return result, nil
	}
}

// LookPath resolves an executable on the remote host via command -v.
func (s *SSH) LookPath(name string) (string, error) {
	result, err := s.Run(context.Background(), Command{
		Name:    "command",
		Args:    []string{"-v", shellQuote(name)},
		Timeout: 30 * time.Second,
	})
	if err != nil {
		return "", fmt.Errorf("executable %q not found on remote host: %w", name, err)
	}
	path := strings.TrimSpace(result.Stdout)
	if path == "" {
		return "", fmt.Errorf("executable %q not found on remote host", name)
	}
	return path, nil
}

// Close tears down the SSH connection.
func (s *SSH) Close() error {
	return s.client.Close()
}

// remoteCommand flattens a Command into a shell line for session.Run.
func remoteCommand(cmd Command) string {
	parts := make([]string, 0, len(cmd.Args)+1)
	parts = append(parts, shellQuote(cmd.Name))
	for _, arg := range cmd.Args {
		parts = append(parts, shellQuote(arg))
	}
	line := strings.Join(parts, " ")
	if cmd.Dir != "" {
		line = fmt.Sprintf("cd %s && %s", shellQuote(cmd.Dir), line)
	}
	for _, kv := range cmd.Env {
		line = kv + " " + line
	}
	return line
}

// shellQuote single-quotes an argument for the remote shell.
func shellQuote(s string) string {
	if s == "" {
		return "''"
	}
	if !strings.ContainsAny(s, " \t\n'\"\\$&|;<>()*?[]#~%") {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
