// File: internal/config/config_test.go
package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNewDefaultConfig(t *testing.T) {
	cfg := NewDefaultConfig()

	require.Equal(t, "info", cfg.Logger.Level)
	require.Equal(t, "console", cfg.Logger.Format)
	require.Equal(t, "pagepilot", cfg.Logger.ServiceName)

	require.True(t, cfg.Browser.Headless)
	require.Equal(t, int64(1280), cfg.Browser.WindowWidth)
	require.Equal(t, 90*time.Second, cfg.Browser.NavigationTimeout)

	require.Equal(t, "gemini-2.5-flash", cfg.Oracle.Model)
	require.Equal(t, 3, cfg.Oracle.MaxActions)
	require.Equal(t, int32(4096), cfg.Oracle.MaxTokens)

	require.Equal(t, 25, cfg.Supervisor.MaxIterations)
	require.Equal(t, time.Second, cfg.Supervisor.IterationDelay)
	require.Equal(t, 100, cfg.Supervisor.MaxTasks)

	require.Equal(t, 2000, cfg.Safety.MaxTypeLength)
	require.Empty(t, cfg.Safety.AllowedDomains)

	require.Equal(t, 5*time.Minute, cfg.Handoff.Timeout)
	require.Equal(t, 250*time.Millisecond, cfg.Screenshot.MinCaptureInterval)
	require.Equal(t, 24*time.Hour, cfg.Database.SessionTTL)

	// Defaults alone must form a valid configuration.
	require.NoError(t, cfg.Validate())
}

func TestValidateRejectsBadValues(t *testing.T) {
	testCases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero iterations", func(c *Config) { c.Supervisor.MaxIterations = 0 }},
		{"zero max tasks", func(c *Config) { c.Supervisor.MaxTasks = 0 }},
		{"zero max actions", func(c *Config) { c.Oracle.MaxActions = 0 }},
		{"zero type length", func(c *Config) { c.Safety.MaxTypeLength = 0 }},
		{"zero handoff timeout", func(c *Config) { c.Handoff.Timeout = 0 }},
		{"zero window width", func(c *Config) { c.Browser.WindowWidth = 0 }},
		{"zero session ttl", func(c *Config) { c.Database.SessionTTL = 0 }},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := NewDefaultConfig()
			tc.mutate(cfg)
			require.Error(t, cfg.Validate())
		})
	}
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "pagepilot.yaml")
	content := `
logger:
  level: debug
supervisor:
  max_iterations: 7
safety:
  allowed_domains:
    - example.com
oracle:
  api_key: from-file
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "debug", cfg.Logger.Level)
	require.Equal(t, 7, cfg.Supervisor.MaxIterations)
	require.Equal(t, []string{"example.com"}, cfg.Safety.AllowedDomains)
	require.Equal(t, "from-file", cfg.Oracle.APIKey)

	// Untouched sections keep their defaults.
	require.Equal(t, "gemini-2.5-flash", cfg.Oracle.Model)
}

func TestLoadMissingFileFallsBackToDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, 25, cfg.Supervisor.MaxIterations)
}

func TestLoadBadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "broken.yaml")
	require.NoError(t, os.WriteFile(path, []byte("logger: [unclosed"), 0o644))

	_, err := Load(path)
	require.Error(t, err)
}

func TestAPIKeyEnvFallback(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "from-env")

	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, "from-env", cfg.Oracle.APIKey)
}
