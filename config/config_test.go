package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"BACKEND_SERVICE_URL", "ANALYZER_SCRIPT", "BACKEND_TIMEOUT", "PORT", "GIN_MODE",
		"DATA_DIR", "RESULT_STORE", "RESULT_STORE_PATH", "LOG_LEVEL", "RATE_LIMIT_RPS", "RATE_LIMIT_BURST", "CORS_ORIGINS",
	} {
		t.Setenv(key, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:8000", cfg.Backend.URL)
	assert.Equal(t, "8082", cfg.Port)
	assert.Equal(t, StoreMemory, cfg.Store.Driver)
	assert.Equal(t, 60*time.Second, cfg.BackendTimeout())
	assert.Equal(t, 24*time.Hour, cfg.StoreTTL())
	assert.Equal(t, []string{"*"}, cfg.AllowedOrigins)
}

func TestLoadCORSOrigins(t *testing.T) {
	clearEnv(t)
	t.Setenv("CORS_ORIGINS", "http://localhost:3000, https://a11y.example.com,")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, []string{"http://localhost:3000", "https://a11y.example.com"}, cfg.AllowedOrigins)
}

func TestLoadYAMLThenEnv(t *testing.T) {
	clearEnv(t)

	path := filepath.Join(t.TempDir(), "config.yaml")
	yamlConfig := `
port: "9000"
backend:
  url: http://analyzer:8000
  timeout: 10s
store:
  driver: sqlite
  path: /tmp/results.db
rate_limit:
  requests_per_second: 4
  burst: 8
`
	require.NoError(t, os.WriteFile(path, []byte(yamlConfig), 0644))

	t.Setenv("BACKEND_SERVICE_URL", "http://override:8000")
	t.Setenv("RATE_LIMIT_BURST", "12")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "9000", cfg.Port)
	assert.Equal(t, "http://override:8000", cfg.Backend.URL)
	assert.Equal(t, 10*time.Second, cfg.BackendTimeout())
	assert.Equal(t, StoreSQLite, cfg.Store.Driver)
	assert.Equal(t, "/tmp/results.db", cfg.Store.Path)
	assert.Equal(t, 4.0, cfg.RateLimit.RequestsPerSecond)
	assert.Equal(t, 12.0, cfg.RateLimit.Burst)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"unknown store", map[string]string{"RESULT_STORE": "redis"}},
		{"bad timeout", map[string]string{"BACKEND_TIMEOUT": "soon"}},
		{"negative timeout", map[string]string{"BACKEND_TIMEOUT": "-1s"}},
		{"bad rate", map[string]string{"RATE_LIMIT_RPS": "fast"}},
		{"zero burst", map[string]string{"RATE_LIMIT_BURST": "0"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load("")
			assert.Error(t, err)
		})
	}
}

func TestLoadRejectsMalformedYAML(t *testing.T) {
	clearEnv(t)

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("backend: [unclosed"), 0644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestValidateAllowsScriptWithoutURL(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Backend.URL = ""
	cfg.Backend.Script = "./analyze.py"
	assert.NoError(t, cfg.Validate())

	cfg.Backend.Script = ""
	assert.Error(t, cfg.Validate())
}
