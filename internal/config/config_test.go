package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	cfg := New()

	t.Run("sets default API base URL", func(t *testing.T) {
		assert.Equal(t, DefaultAPIBaseURL, cfg.APIBaseURL)
	})

	t.Run("sets default request timeout", func(t *testing.T) {
		assert.Equal(t, 15*time.Second, cfg.RequestTimeout)
	})

	t.Run("autosave enabled every 30 seconds", func(t *testing.T) {
		assert.True(t, cfg.AutoSaveEnabled)
		assert.Equal(t, 30*time.Second, cfg.AutoSaveInterval)
	})

	t.Run("sets default debounce delay", func(t *testing.T) {
		assert.Equal(t, 300*time.Millisecond, cfg.DebounceDelay)
	})

	t.Run("strict disabled by default", func(t *testing.T) {
		assert.False(t, cfg.Strict)
	})

	t.Run("bridge disabled by default", func(t *testing.T) {
		assert.False(t, cfg.BridgeEnabled)
		assert.Equal(t, DefaultBridgePort, cfg.BridgePort)
	})

	t.Run("database lives in the data dir", func(t *testing.T) {
		assert.Equal(t, filepath.Join(cfg.DataDir, DefaultDatabaseName), cfg.DatabasePath)
	})

	t.Run("defaults are valid", func(t *testing.T) {
		assert.NoError(t, cfg.Validate())
	})
}

func TestLoad(t *testing.T) {
	t.Run("reads YAML file", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "config.yaml")
		content := `api_base_url: https://pharmacy.example.com/api
autosave_interval: 45s
debounce_delay: 150ms
strict: true
data_dir: ` + dir + `
theme: nord
cors_allowed_origins:
  - https://app.example.com
`
		require.NoError(t, os.WriteFile(path, []byte(content), 0644))

		cfg, err := Load(path)
		require.NoError(t, err)

		assert.Equal(t, "https://pharmacy.example.com/api", cfg.APIBaseURL)
		assert.Equal(t, 45*time.Second, cfg.AutoSaveInterval)
		assert.Equal(t, 150*time.Millisecond, cfg.DebounceDelay)
		assert.True(t, cfg.Strict)
		assert.True(t, cfg.AutoSaveEnabled, "unset keys keep defaults")
		assert.Equal(t, "nord", cfg.Theme)
		assert.Equal(t, []string{"https://app.example.com"}, cfg.CORSAllowedOrigins)
		assert.Equal(t, filepath.Join(dir, DefaultDatabaseName), cfg.DatabasePath)
	})

	t.Run("environment overrides file", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "config.yaml")
		require.NoError(t, os.WriteFile(path, []byte("autosave_enabled: true\n"), 0644))

		t.Setenv("RXFLOW_AUTOSAVE_ENABLED", "false")
		t.Setenv("RXFLOW_API_BASE_URL", "http://10.0.0.5:9000/api")
		t.Setenv("RXFLOW_DATA_DIR", dir)

		cfg, err := Load(path)
		require.NoError(t, err)

		assert.False(t, cfg.AutoSaveEnabled)
		assert.Equal(t, "http://10.0.0.5:9000/api", cfg.APIBaseURL)
		assert.Equal(t, dir, cfg.DataDir)
	})

	t.Run("missing explicit file is an error", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
		assert.Error(t, err)
	})

	t.Run("invalid values are rejected", func(t *testing.T) {
		tests := []struct {
			name    string
			content string
		}{
			{"bad URL", "api_base_url: not a url\n"},
			{"interval below one second", "autosave_interval: 10ms\n"},
			{"unknown theme", "theme: solarized\n"},
			{"bad log level", "log_level: loud\n"},
			{"port out of range", "bridge_port: 70000\n"},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				path := filepath.Join(t.TempDir(), "config.yaml")
				require.NoError(t, os.WriteFile(path, []byte(tt.content), 0644))

				_, err := Load(path)
				require.Error(t, err)
				assert.Contains(t, err.Error(), "invalid config")
			})
		}
	})
}

func TestConfig_EnsureDataDir(t *testing.T) {
	t.Run("creates nested directories", func(t *testing.T) {
		dataDir := filepath.Join(t.TempDir(), "a", "b", "c")
		cfg := &Config{DataDir: dataDir}

		require.NoError(t, cfg.EnsureDataDir())

		info, err := os.Stat(dataDir)
		require.NoError(t, err)
		assert.True(t, info.IsDir())
	})

	t.Run("succeeds if directory already exists", func(t *testing.T) {
		cfg := &Config{DataDir: t.TempDir()}
		assert.NoError(t, cfg.EnsureDataDir())
	})
}

func TestConfig_Paths(t *testing.T) {
	cfg := &Config{DataDir: "/data", BridgePort: 9999}

	assert.Equal(t, "/data/profiles", cfg.ProfileDir())
	assert.Equal(t, "127.0.0.1:9999", cfg.BridgeAddr())
}
