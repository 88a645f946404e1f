package app

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/florianilch/llmbridge/internal/secret"
)

func environ(vars ...string) func() []string {
	return func() []string { return vars }
}

func TestLoadConfig_Defaults(t *testing.T) {
	t.Parallel()

	cfg, err := LoadConfig("", nil, environ())
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:4000", cfg.Server.Addr)
	assert.Equal(t, int64(10<<20), cfg.Server.MaxRequestBytes)
	assert.Equal(t, 5*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, 60*time.Second, cfg.Upstream.Timeout)
	assert.Equal(t, StoreTypeMemory, cfg.Store.Type)
	assert.Equal(t, KeyStorageTypeFile, cfg.Secrets.Storage)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "none", cfg.Log.Exporter)
}

func TestLoadConfig_Precedence(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "llmbridge.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[server]
addr = "0.0.0.0:8080"
shutdown_timeout = "10s"

[store]
type = "postgres"
dsn = "postgres://file"

[log]
level = "warn"
format = "json"
`), 0o600))

	cfg, err := LoadConfig(path,
		map[string]any{"log.level": "debug"},
		environ(
			"LLMBRIDGE_STORE__DSN=postgres://env",
			"LLMBRIDGE_UPSTREAM__TIMEOUT=15s",
			"LLMBRIDGE_LOG__LEVEL=error",
			"LLMBRIDGE_ENCRYPTION_KEY=AGE-SECRET-KEY-1IGNORED",
			"UNRELATED=1",
		))
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:8080", cfg.Server.Addr)
	assert.Equal(t, 10*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, StoreTypePostgres, cfg.Store.Type)
	assert.Equal(t, "postgres://env", cfg.Store.DSN)
	assert.Equal(t, 15*time.Second, cfg.Upstream.Timeout)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoadConfig_Invalid(t *testing.T) {
	t.Parallel()

	tests := map[string][]string{
		"postgres without dsn": {"LLMBRIDGE_STORE__TYPE=postgres"},
		"unknown store":        {"LLMBRIDGE_STORE__TYPE=sqlite"},
		"unknown exporter":     {"LLMBRIDGE_LOG__EXPORTER=kafka"},
		"bad addr":             {"LLMBRIDGE_SERVER__ADDR=localhost"},
		"unknown key storage":  {"LLMBRIDGE_SECRETS__STORAGE=vault"},
	}
	for name, vars := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			_, err := LoadConfig("", nil, environ(vars...))
			require.Error(t, err)
			assert.Contains(t, err.Error(), "invalid config")
		})
	}
}

func TestLoadConfig_MissingFile(t *testing.T) {
	t.Parallel()

	_, err := LoadConfig(filepath.Join(t.TempDir(), "absent.toml"), nil, environ())
	require.Error(t, err)
}

func TestSecretsConfig_NewKeyStore(t *testing.T) {
	t.Parallel()

	ks, err := SecretsConfig{Storage: KeyStorageTypeEnv, EnvVar: "X_KEY"}.NewKeyStore()
	require.NoError(t, err)
	assert.Equal(t, secret.EnvStore{Name: "X_KEY"}, ks)

	ks, err = SecretsConfig{Storage: KeyStorageTypeFile, Path: "/tmp/k"}.NewKeyStore()
	require.NoError(t, err)
	assert.Equal(t, secret.FileStore{Path: "/tmp/k"}, ks)

	ks, err = SecretsConfig{Storage: KeyStorageTypeKeyring}.NewKeyStore()
	require.NoError(t, err)
	assert.IsType(t, secret.KeyringStore{}, ks)

	_, err = SecretsConfig{Storage: "vault"}.NewKeyStore()
	assert.Error(t, err)
}
