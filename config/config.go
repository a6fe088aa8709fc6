// Package config defines the envready configuration file format.
//
// The file declares the tools, repos and templates the bootstrap ensures.
// When no file is given, DefaultConfig describes the citydash workspace:
// the Node-based Socrata MCP server (cloned and built from source) and
// the NYC open-data MCP tool (installed as a package).
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/citydash/envready/logging"
	"github.com/citydash/envready/runner"
)

const (
	// Default timeouts
	defaultCloneTimeout    = 3 * time.Minute
	defaultInstallTimeout  = 5 * time.Minute
	defaultBuildTimeout    = 10 * time.Minute
	defaultStrategyTimeout = 5 * time.Minute

	// Default monitoring settings
	defaultMetricsPrefix = "envready"
	defaultJobName       = "envready"

	// Default logging settings
	defaultLogLevel  = "info"
	defaultLogFormat = "text"
	defaultLogOutput = "stderr"
)

// Config represents the complete application configuration.
type Config struct {
	// Workspace is the directory relative paths resolve against.
	Workspace string `yaml:"workspace"`
	// SecretFile is an optional dotenv file consulted before the
	// process environment when resolving template secrets.
	SecretFile string `yaml:"secret_file"`
	// Schedule is an optional cron expression for daemon mode.
	Schedule string `yaml:"schedule"`

	Runner     RunnerConfig     `yaml:"runner"`
	Tools      []ToolConfig     `yaml:"tools"`
	Repos      []RepoConfig     `yaml:"repos"`
	Templates  []TemplateConfig `yaml:"templates"`
	Monitoring MonitoringConfig `yaml:"monitoring"`
	Logging    logging.Config   `yaml:"logging"`
}

// RunnerConfig selects where bootstrap commands execute.
type RunnerConfig struct {
	// SSH, when set, runs every command on a remote dev host instead of
	// locally.
	SSH *runner.SSHConfig `yaml:"ssh"`
}

// StrategyConfig is one installation attempt for a tool.
type StrategyConfig struct {
	// Name identifies the strategy in logs and the report.
	Name string `yaml:"name"`
	// Command is the install invocation as an argv list.
	Command []string `yaml:"command"`
	// Timeout bounds the attempt. Zero means the package default.
	Timeout time.Duration `yaml:"timeout"`
}

// ToolConfig declares a required tool and how to obtain it.
type ToolConfig struct {
	Name        string           `yaml:"name"`
	Executable  string           `yaml:"executable"`
	VersionArgs []string         `yaml:"version_args"`
	MinVersion  string           `yaml:"min_version"`
	Strategies  []StrategyConfig `yaml:"strategies"`
}

// RepoConfig declares an external server project to clone and build.
type RepoConfig struct {
	Name           string        `yaml:"name"`
	Remote         string        `yaml:"remote"`
	Path           string        `yaml:"path"`
	Install        []string      `yaml:"install"`
	Build          []string      `yaml:"build"`
	Artifact       string        `yaml:"artifact"`
	CloneTimeout   time.Duration `yaml:"clone_timeout"`
	InstallTimeout time.Duration `yaml:"install_timeout"`
	BuildTimeout   time.Duration `yaml:"build_timeout"`
}

// TokenConfig declares where one placeholder token's value comes from.
// Exactly one of value, secret or tool_path should be set.
type TokenConfig struct {
	// Value is a literal replacement.
	Value string `yaml:"value"`
	// Secret names a key resolved from the secret file or environment.
	Secret string `yaml:"secret"`
	// Placeholder substitutes when the secret (or tool path) is missing.
	Placeholder string `yaml:"placeholder"`
	// ToolPath names a tool whose resolved path fills the token.
	ToolPath string `yaml:"tool_path"`
}

// TemplateConfig declares one config file rendered from a template.
type TemplateConfig struct {
	Name   string                 `yaml:"name"`
	Source string                 `yaml:"source"`
	Dest   string                 `yaml:"dest"`
	Policy string                 `yaml:"policy"`
	Tokens map[string]TokenConfig `yaml:"tokens"`
}

// MonitoringConfig holds metrics settings. Metrics are pushed only when
// a VictoriaMetrics URL is configured.
type MonitoringConfig struct {
	VictoriaMetricsURL string `yaml:"victoriametrics_url"`
	MetricsPrefix      string `yaml:"metrics_prefix"`
	JobName            string `yaml:"jobname"`
}

// Validate performs basic validation on the configuration.
func (c *Config) Validate() error {
	seenTools := map[string]bool{}
	for _, tool := range c.Tools {
		if tool.Name == "" {
			return fmt.Errorf("tool name is required")
		}
		if seenTools[tool.Name] {
			return fmt.Errorf("duplicate tool %q", tool.Name)
		}
		seenTools[tool.Name] = true
		if tool.Executable == "" {
			return fmt.Errorf("tool %q: executable is required", tool.Name)
		}
		for _, strategy := range tool.Strategies {
			if len(strategy.Command) == 0 {
				return fmt.Errorf("tool %q: strategy %q has no command", tool.Name, strategy.Name)
			}
			if strategy.Timeout < 0 {
				return fmt.Errorf("tool %q: strategy %q has a negative timeout", tool.Name, strategy.Name)
			}
		}
	}

	for _, repo := range c.Repos {
		if repo.Name == "" {
			return fmt.Errorf("repo name is required")
		}
		if repo.Remote == "" {
			return fmt.Errorf("repo %q: remote is required", repo.Name)
		}
		if repo.Path == "" {
			return fmt.Errorf("repo %q: path is required", repo.Name)
		}
		if len(repo.Build) == 0 {
			return fmt.Errorf("repo %q: build command is required", repo.Name)
		}
	}

	for _, tmpl := range c.Templates {
		if tmpl.Source == "" || tmpl.Dest == "" {
			return fmt.Errorf("template %q: source and dest are required", tmpl.Name)
		}
		switch tmpl.Policy {
		case "", "if-absent", "never", "always":
		default:
			return fmt.Errorf("template %q: unknown policy %q", tmpl.Name, tmpl.Policy)
		}
		for token, tc := range tmpl.Tokens {
			set := 0
			if tc.Value != "" {
				set++
			}
			if tc.Secret != "" {
				set++
			}
			if tc.ToolPath != "" {
				set++
			}
			if set > 1 {
				return fmt.Errorf("template %q: token %q sets more than one of value, secret, tool_path", tmpl.Name, token)
			}
		}
	}

	return nil
}

// SetDefaults sets reasonable default values for optional fields.
func (c *Config) SetDefaults() {
	if c.Workspace == "" {
		c.Workspace = "."
	}
	for i := range c.Repos {
		if c.Repos[i].CloneTimeout == 0 {
			c.Repos[i].CloneTimeout = defaultCloneTimeout
		}
		if c.Repos[i].InstallTimeout == 0 {
			c.Repos[i].InstallTimeout = defaultInstallTimeout
		}
		if c.Repos[i].BuildTimeout == 0 {
			c.Repos[i].BuildTimeout = defaultBuildTimeout
		}
	}
	for i := range c.Tools {
		for j := range c.Tools[i].Strategies {
			if c.Tools[i].Strategies[j].Timeout == 0 {
				c.Tools[i].Strategies[j].Timeout = defaultStrategyTimeout
			}
		}
	}
	if c.Monitoring.MetricsPrefix == "" {
		c.Monitoring.MetricsPrefix = defaultMetricsPrefix
	}
	if c.Monitoring.JobName == "" {
		c.Monitoring.JobName = defaultJobName
	}
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	if c.Logging.Output == "" {
		c.Logging.Output = defaultLogOutput
	}
}

// LoadConfig reads the YAML config file at the given path.
func LoadConfig(path string) (Config, error) {
	var cfg Config
	f, err := os.Open(path)
	if err != nil {
		return cfg, err
	}
	defer f.Close()
	dec := yaml.NewDecoder(f)
	if err := dec.Decode(&cfg); err != nil {
		return cfg, err
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// DefaultConfig returns the built-in citydash workspace bootstrap:
// node and uv tooling, the Socrata MCP server built from source, the
// open-data MCP tool installed via uv, and the two workspace configs.
func DefaultConfig() Config {
	cfg := Config{
		SecretFile: ".env.secrets",
		Tools: []ToolConfig{
			{
				Name:       "node",
				Executable: "node",
				MinVersion: "18.0.0",
				Strategies: []StrategyConfig{
					{Name: "apt", Command: []string{"sudo", "apt-get", "install", "-y", "nodejs", "npm"}},
					{Name: "brew", Command: []string{"brew", "install", "node"}},
				},
			},
			{
				Name:       "uv",
				Executable: "uv",
				Strategies: []StrategyConfig{
					{Name: "installer-script", Command: []string{"sh", "-c", "curl -LsSf https://astral.sh/uv/install.sh | sh"}},
					{Name: "pipx", Command: []string{"pipx", "install", "uv"}},
					{Name: "pip", Command: []string{"pip", "install", "--user", "uv"}},
				},
			},
			{
				Name:       "nyc-open-data-mcp",
				Executable: "mcp-server-nyc-open-data",
				Strategies: []StrategyConfig{
					{Name: "uv-tool", Command: []string{"uv", "tool", "install", "mcp-server-nyc-open-data"}},
					{Name: "pipx", Command: []string{"pipx", "install", "mcp-server-nyc-open-data"}},
				},
			},
		},
		Repos: []RepoConfig{
			{
				Name:     "socrata-mcp",
				Remote:   "https://github.com/citydash/socrata-mcp.git",
				Path:     "servers/socrata-mcp",
				Install:  []string{"npm", "install"},
				Build:    []string{"npm", "run", "build"},
				Artifact: "build/index.js",
			},
		},
		Templates: []TemplateConfig{
			{
				Name:   "mcp-config",
				Source: "templates/mcp.json.tmpl",
				Dest:   ".mcp.json",
				Policy: "if-absent",
				Tokens: map[string]TokenConfig{
					"__NODE_PATH__":           {ToolPath: "node", Placeholder: "/usr/bin/node"},
					"__SOCRATA_APP_TOKEN__":   {Secret: "SOCRATA_APP_TOKEN", Placeholder: "YOUR_SOCRATA_TOKEN_HERE"},
					"__NYC_OPEN_DATA_TOKEN__": {Secret: "NYC_OPEN_DATA_TOKEN", Placeholder: "YOUR_NYC_TOKEN_HERE"},
				},
			},
			{
				Name:   "workspace-env",
				Source: "templates/env.tmpl",
				Dest:   ".env",
				Policy: "if-absent",
				Tokens: map[string]TokenConfig{
					"__SOCRATA_APP_TOKEN__":   {Secret: "SOCRATA_APP_TOKEN", Placeholder: "YOUR_SOCRATA_TOKEN_HERE"},
					"__NYC_OPEN_DATA_TOKEN__": {Secret: "NYC_OPEN_DATA_TOKEN", Placeholder: "YOUR_NYC_TOKEN_HERE"},
				},
			},
		},
	}
	cfg.SetDefaults()
	return cfg
}
