package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := NewLoader().Load()
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:8000", cfg.Server.Addr())
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, 3, cfg.Batch.Concurrency)
	assert.True(t, cfg.Server.EnableMetrics)
}

func TestLoad_YAMLOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "subllm.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  http_port: 9000
  write_timeout: 2m
log:
  level: debug
  format: json
batch:
  concurrency: 8
providers:
  claude_code:
    path: /opt/bin/claude
    pool_size: 4
  gemini:
    yolo_mode: true
    env:
      GEMINI_API_KEY: from-yaml
`), 0o644))

	cfg, err := NewLoader().WithConfigPath(path).Load()
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Server.HTTPPort)
	assert.Equal(t, 2*time.Minute, cfg.Server.WriteTimeout)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, 8, cfg.Batch.Concurrency)
	assert.Equal(t, "/opt/bin/claude", cfg.Providers.ClaudeCode.Path)
	assert.Equal(t, 4, cfg.Providers.ClaudeCode.PoolSize)
	assert.True(t, cfg.Providers.Gemini.YoloMode)
	assert.Equal(t, "from-yaml", cfg.Providers.Gemini.Env["GEMINI_API_KEY"])

	// Untouched sections keep their defaults.
	assert.Equal(t, 30*time.Second, cfg.Server.ReadTimeout)
}

func TestLoad_EnvOverridesYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "subllm.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  http_port: 9000\n"), 0o644))

	t.Setenv("SUBLLM_SERVER_HTTP_PORT", "9100")
	t.Setenv("SUBLLM_LOG_LEVEL", "warn")
	t.Setenv("SUBLLM_PROVIDERS_CODEX_TIMEOUT", "90s")
	t.Setenv("SUBLLM_PROVIDERS_GEMINI_YOLO_MODE", "true")

	cfg, err := NewLoader().WithConfigPath(path).Load()
	require.NoError(t, err)

	assert.Equal(t, 9100, cfg.Server.HTTPPort)
	assert.Equal(t, "warn", cfg.Log.Level)
	assert.Equal(t, 90*time.Second, cfg.Providers.Codex.Timeout)
	assert.True(t, cfg.Providers.Gemini.YoloMode)
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := NewLoader().WithConfigPath("/nonexistent/subllm.yaml").Load()
	require.NoError(t, err)
	assert.Equal(t, 8000, cfg.Server.HTTPPort)
}

func TestLoad_ValidationRejectsBadValues(t *testing.T) {
	t.Setenv("SUBLLM_SERVER_HTTP_PORT", "0")
	_, err := NewLoader().Load()
	assert.ErrorContains(t, err, "invalid HTTP port")
}

func TestLoad_CustomValidator(t *testing.T) {
	_, err := NewLoader().WithValidator(func(c *Config) error {
		return assert.AnError
	}).Load()
	assert.ErrorContains(t, err, "config validation failed")
}

func TestValidate_LogFields(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Log.Level = "verbose"
	assert.ErrorContains(t, cfg.Validate(), "unknown log level")

	cfg = DefaultConfig()
	cfg.Log.Format = "xml"
	assert.ErrorContains(t, cfg.Validate(), "unknown log format")
}
