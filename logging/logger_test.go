package logging

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{
			name: "defaults are filled in",
			cfg:  Config{},
		},
		{
			name: "json to stdout",
			cfg:  Config{Level: "debug", Format: "json", Output: "stdout"},
		},
		{
			name: "text to stderr",
			cfg:  Config{Level: "warn", Format: "text", Output: "stderr"},
		},
		{
			name:    "bad level",
			cfg:     Config{Level: "verbose"},
			wantErr: true,
		},
		{
			name:    "bad format",
			cfg:     Config{Format: "xml"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, err := New(tt.cfg)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.NotNil(t, logger)
		})
	}
}

func TestNew_FileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "envready.log")

	logger, err := New(Config{Level: "info", Format: "json", Output: path})
	require.NoError(t, err)

	logger.Info("clone complete", "repo", "socrata-mcp")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "clone complete")
	assert.Contains(t, string(data), "socrata-mcp")
}

func TestParseLevel(t *testing.T) {
	for _, name := range []string{"debug", "info", "warn", "error"} {
		_, err := parseLevel(name)
		assert.NoError(t, err, name)
	}
	_, err := parseLevel("trace")
	assert.Error(t, err)
}
