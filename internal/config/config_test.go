package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/flowrl/internal/queue"
	"github.com/roach88/flowrl/internal/remote"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func clearEnv(t *testing.T) {
	t.Helper()
	t.Setenv(EnvAPIKey, "")
	t.Setenv(EnvUserID, "")
	t.Setenv(EnvBaseURL, "")
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, remote.DefaultBaseURL, cfg.BaseURL)
	assert.Equal(t, DefaultDatabase, cfg.Database)
	assert.Equal(t, 60*time.Second, cfg.FlushInterval)
	assert.Equal(t, 10*time.Second, cfg.RequestTimeout)
	assert.Equal(t, queue.PolicyPerEvent, cfg.FlushPolicy)
	assert.Empty(t, cfg.APIKey)
}

func TestLoad_YAML(t *testing.T) {
	clearEnv(t)
	path := writeFile(t, "flowrl.yaml", `
name: demo
api_key: k1
user_id: alice
base_url: http://localhost:8080/
database: /tmp/demo.db
flush_interval: 5s
request_timeout: 2s
flush_policy: submit-one-clear-all
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "demo", cfg.Name)
	assert.Equal(t, "k1", cfg.APIKey)
	assert.Equal(t, "alice", cfg.UserID)
	assert.Equal(t, "http://localhost:8080/", cfg.BaseURL)
	assert.Equal(t, "/tmp/demo.db", cfg.Database)
	assert.Equal(t, 5*time.Second, cfg.FlushInterval)
	assert.Equal(t, 2*time.Second, cfg.RequestTimeout)
	assert.Equal(t, queue.PolicySubmitOneClearAll, cfg.FlushPolicy)
}

func TestLoad_YAMLUnknownField(t *testing.T) {
	clearEnv(t)
	path := writeFile(t, "flowrl.yml", "api_key: k1\ncompany: 1202\n")

	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoad_YAMLEmptyFile(t *testing.T) {
	clearEnv(t)
	path := writeFile(t, "flowrl.yaml", "")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, DefaultDatabase, cfg.Database)
}

func TestLoad_CUE(t *testing.T) {
	clearEnv(t)
	path := writeFile(t, "flowrl.cue", `
name:           "demo"
api_key:        "k1"
flush_interval: "30s"
flush_policy:   "per-event"
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "demo", cfg.Name)
	assert.Equal(t, "k1", cfg.APIKey)
	assert.Equal(t, 30*time.Second, cfg.FlushInterval)
	assert.Equal(t, remote.DefaultBaseURL, cfg.BaseURL)
}

func TestLoad_CUESchemaViolations(t *testing.T) {
	clearEnv(t)
	tests := []struct {
		name string
		src  string
	}{
		{"unknown field", `company: 1202`},
		{"bad policy", `flush_policy: "batch"`},
		{"bad scheme", `base_url: "ftp://example.com"`},
		{"wrong type", `api_key: 42`},
		{"empty database", `database: ""`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeFile(t, "flowrl.cue", tt.src)
			_, err := Load(path)
			assert.Error(t, err)
		})
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	path := writeFile(t, "flowrl.yaml", "api_key: from-file\nuser_id: file-user\n")
	t.Setenv(EnvAPIKey, "from-env")
	t.Setenv(EnvUserID, "")
	t.Setenv(EnvBaseURL, "http://127.0.0.1:9/")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.APIKey)
	assert.Equal(t, "file-user", cfg.UserID, "empty env leaves file value")
	assert.Equal(t, "http://127.0.0.1:9/", cfg.BaseURL)
}

func TestLoad_Errors(t *testing.T) {
	clearEnv(t)

	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = Load(writeFile(t, "flowrl.toml", "api_key = 'k1'"))
	assert.ErrorContains(t, err, "unsupported config format")

	_, err = Load(writeFile(t, "flowrl.yaml", "flush_interval: soon\n"))
	assert.ErrorContains(t, err, "flush_interval")
}

func TestValidate(t *testing.T) {
	cfg := &Config{
		BaseURL:       "relative/path",
		FlushInterval: 0,
		FlushPolicy:   queue.FlushPolicy(9),
	}

	err := cfg.Validate()
	require.Error(t, err)
	for _, want := range []string{"base_url", "database", "flush_interval", "request_timeout", "flush policy"} {
		assert.ErrorContains(t, err, want)
	}

	assert.NoError(t, Default().Validate())
}
