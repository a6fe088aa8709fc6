package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{
			name: "valid config",
			cfg: Config{
				Tools: []ToolConfig{
					{Name: "node", Executable: "node", Strategies: []StrategyConfig{
						{Name: "apt", Command: []string{"apt-get", "install", "-y", "nodejs"}},
					}},
				},
				Repos: []RepoConfig{
					{Name: "socrata-mcp", Remote: "https://x/y.git", Path: "servers/socrata-mcp", Build: []string{"npm", "run", "build"}},
				},
				Templates: []TemplateConfig{
					{Name: "mcp", Source: "a.tmpl", Dest: ".mcp.json", Policy: "if-absent"},
				},
			},
			wantErr: false,
		},
		{
			name:    "tool without executable",
			cfg:     Config{Tools: []ToolConfig{{Name: "node"}}},
			wantErr: true,
		},
		{
			name:    "duplicate tool names",
			cfg:     Config{Tools: []ToolConfig{{Name: "node", Executable: "node"}, {Name: "node", Executable: "node"}}},
			wantErr: true,
		},
		{
			name:    "strategy without command",
			cfg:     Config{Tools: []ToolConfig{{Name: "uv", Executable: "uv", Strategies: []StrategyConfig{{Name: "pipx"}}}}},
			wantErr: true,
		},
		{
			name:    "repo without remote",
			cfg:     Config{Repos: []RepoConfig{{Name: "r", Path: "p", Build: []string{"make"}}}},
			wantErr: true,
		},
		{
			name:    "repo without build command",
			cfg:     Config{Repos: []RepoConfig{{Name: "r", Remote: "u", Path: "p"}}},
			wantErr: true,
		},
		{
			name:    "template without dest",
			cfg:     Config{Templates: []TemplateConfig{{Name: "t", Source: "s.tmpl"}}},
			wantErr: true,
		},
		{
			name:    "template with unknown policy",
			cfg:     Config{Templates: []TemplateConfig{{Name: "t", Source: "s", Dest: "d", Policy: "maybe"}}},
			wantErr: true,
		},
		{
			name: "token with conflicting sources",
			cfg: Config{Templates: []TemplateConfig{{
				Name: "t", Source: "s", Dest: "d",
				Tokens: map[string]TokenConfig{"__X__": {Value: "v", Secret: "S"}},
			}}},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestConfig_SetDefaults(t *testing.T) {
	cfg := Config{
		Tools: []ToolConfig{{Name: "node", Executable: "node", Strategies: []StrategyConfig{
			{Name: "apt", Command: []string{"apt-get", "install", "-y", "nodejs"}},
		}}},
		Repos: []RepoConfig{{Name: "r", Remote: "u", Path: "p", Build: []string{"make"}}},
	}
	cfg.SetDefaults()

	assert.Equal(t, ".", cfg.Workspace)
	assert.Equal(t, 3*time.Minute, cfg.Repos[0].CloneTimeout)
	assert.Equal(t, 10*time.Minute, cfg.Repos[0].BuildTimeout)
	assert.Equal(t, 5*time.Minute, cfg.Tools[0].Strategies[0].Timeout)
	assert.Equal(t, "envready", cfg.Monitoring.JobName)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "text", cfg.Logging.Format)
}

func TestLoadConfig(t *testing.T) {
	yaml := `
workspace: /workspaces/citydash
secret_file: .env.secrets
tools:
  - name: node
    executable: node
    min_version: "18.0.0"
    strategies:
      - name: apt
        command: [sudo, apt-get, install, -y, nodejs]
        timeout: 2m
repos:
  - name: socrata-mcp
    remote: https://github.com/citydash/socrata-mcp.git
    path: servers/socrata-mcp
    install: [npm, install]
    build: [npm, run, build]
    artifact: build/index.js
templates:
  - name: mcp-config
    source: templates/mcp.json.tmpl
    dest: .mcp.json
    policy: if-absent
    tokens:
      __SOCRATA_APP_TOKEN__:
        secret: SOCRATA_APP_TOKEN
        placeholder: YOUR_SOCRATA_TOKEN_HERE
      __NODE_PATH__:
        tool_path: node
        placeholder: /usr/bin/node
schedule: "0 */6 * * *"
`
	path := filepath.Join(t.TempDir(), "envready.yaml")
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "/workspaces/citydash", cfg.Workspace)
	assert.Equal(t, "0 */6 * * *", cfg.Schedule)
	require.Len(t, cfg.Tools, 1)
	assert.Equal(t, 2*time.Minute, cfg.Tools[0].Strategies[0].Timeout)
	require.Len(t, cfg.Repos, 1)
	assert.Equal(t, "build/index.js", cfg.Repos[0].Artifact)
	require.Len(t, cfg.Templates, 1)
	assert.Equal(t, "node", cfg.Templates[0].Tokens["__NODE_PATH__"].ToolPath)
}

func TestLoadConfig_Invalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "envready.yaml")
	require.NoError(t, os.WriteFile(path, []byte("tools:\n  - name: node\n"), 0644))

	_, err := LoadConfig(path)
	assert.Error(t, err, "tool without executable must fail validation")
}

func TestLoadConfig_MissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	require.NoError(t, cfg.Validate())
	assert.NotEmpty(t, cfg.Tools)
	assert.NotEmpty(t, cfg.Repos)
	assert.Len(t, cfg.Templates, 2)
	// Defaults were applied by the constructor.
	assert.Equal(t, 3*time.Minute, cfg.Repos[0].CloneTimeout)
}
