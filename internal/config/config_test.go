package config

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/a3tai/mcp-pdf-composer/internal/pdf/acroform"
)

func validConfig(t *testing.T) *Config {
	t.Helper()
	cfg := DefaultConfig()
	cfg.PDFDirectory = t.TempDir()
	return cfg
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, ModeStdio, cfg.Mode)
	assert.Equal(t, "mcp-pdf-composer", cfg.ServerName)
	assert.NotEmpty(t, cfg.PDFDirectory)
	assert.Empty(t, cfg.OutputDirectory)
	assert.Equal(t, cfg.PDFDirectory, cfg.Output())
	assert.Equal(t, acroform.MergeRenamingExisting, cfg.Policy())
	assert.True(t, cfg.Compress)
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr string
	}{
		{"valid", func(*Config) {}, ""},
		{"stdio ignores port", func(c *Config) { c.Port = 0 }, ""},
		{"invalid mode", func(c *Config) { c.Mode = "invalid" }, "mode must be"},
		{"invalid port", func(c *Config) { c.Mode = ModeServer; c.Port = 70000 }, "port must be"},
		{"empty directory", func(c *Config) { c.PDFDirectory = "" }, "PDF directory cannot be empty"},
		{"zero max size", func(c *Config) { c.MaxFileSize = 0 }, "maximum file size must be positive"},
		{"invalid log level", func(c *Config) { c.LogLevel = "trace" }, "invalid log level"},
		{"invalid policy", func(c *Config) { c.DefaultPolicy = "shuffle" }, "invalid form policy"},
		{"flatten policy", func(c *Config) { c.DefaultPolicy = "flatten" }, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig(t)
			tt.modify(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestConfigValidateDirectoryCreation(t *testing.T) {
	cfg := validConfig(t)
	cfg.OutputDirectory = filepath.Join(t.TempDir(), "nested", "out")

	require.NoError(t, cfg.Validate())
	info, err := os.Stat(cfg.OutputDirectory)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestConfigLogger(t *testing.T) {
	cfg := validConfig(t)
	cfg.LogLevel = "warn"

	var buf bytes.Buffer
	logger := cfg.Logger(&buf)
	logger.Info("hidden")
	logger.Warn("shown", "pages", 3)

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown")
}

func TestConfigString(t *testing.T) {
	cfg := validConfig(t)
	cfg.DefaultPolicy = "flatten"
	s := cfg.String()

	for _, want := range []string{"Mode: stdio", "Port: 8080", "Policy: flatten", "Compress: true", "OutputDirectory: " + cfg.PDFDirectory} {
		assert.Contains(t, s, want)
	}
}

func TestConfigModes(t *testing.T) {
	cfg := &Config{Mode: ModeServer}
	assert.True(t, cfg.IsServerMode())
	assert.False(t, cfg.IsStdioMode())

	cfg.Mode = ModeStdio
	assert.True(t, cfg.IsStdioMode())
	assert.False(t, cfg.IsServerMode())
}
