package app

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		goleak.IgnoreTopFunction("net/http.(*persistConn).readLoop"),
		goleak.IgnoreTopFunction("net/http.(*persistConn).writeLoop"),
		// started by an init in a transitive dependency of the genai client
		goleak.IgnoreTopFunction("go.opencensus.io/stats/view.(*worker).start"),
	)
}

func testConfig(t *testing.T) *Config {
	t.Helper()

	cfg, err := LoadConfig("", map[string]any{
		"server.addr":              "127.0.0.1:0",
		"server.max_request_bytes": int64(1 << 20),
		"secrets.storage":          string(KeyStorageTypeFile),
		"secrets.path":             filepath.Join(t.TempDir(), "key.txt"),
		"upstream.timeout":         "5s",
	}, environ())
	require.NoError(t, err)
	return cfg
}

func TestNew_AppliesSeedFile(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	cfg.Store.SeedFile = filepath.Join(t.TempDir(), "seed.yaml")
	require.NoError(t, os.WriteFile(cfg.Store.SeedFile, []byte(`
credentials:
  - name: qwen-prod
    provider: qwen
    secret: sk-qwen
    validated: true
    models:
      - model_name: qwen-max
        target_format: openai
        proxy_key: llmb_seeded0000000000000000000000000
        rate_limit: 30
`), 0o600))

	a, err := New(t.Context(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })

	creds, err := a.Bridge().ListCredentials(t.Context())
	require.NoError(t, err)
	require.Len(t, creds, 1)
	assert.Equal(t, "qwen-prod", creds[0].Name)
	assert.Equal(t, "*******", creds[0].MaskedSecret)

	models, err := a.Bridge().Models(t.Context(), "llmb_seeded0000000000000000000000000")
	require.NoError(t, err)
	assert.Equal(t, []string{"qwen-max"}, models)
}

func TestNew_InvalidSeedFile(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	cfg.Store.SeedFile = filepath.Join(t.TempDir(), "missing.yaml")

	_, err := New(t.Context(), cfg)
	require.Error(t, err)
}

func TestStart_ShutsDownOnCancel(t *testing.T) {
	t.Parallel()

	a, err := New(t.Context(), testConfig(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })

	ctx, cancel := context.WithCancel(t.Context())
	done := make(chan error, 1)
	go func() { done <- a.Start(ctx) }()

	require.Eventually(t, func() bool { return a.health.IsReady(t.Context()) }, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("app did not stop")
	}
	assert.False(t, a.health.IsReady(t.Context()))
}

type pinger struct{ err error }

func (p pinger) Ready(context.Context) error { return p.err }

func TestHealth(t *testing.T) {
	t.Parallel()

	h := NewHealth(pinger{})
	assert.False(t, h.IsReady(t.Context()))
	h.SetReady(true)
	assert.True(t, h.IsReady(t.Context()))

	down := NewHealth(pinger{err: errors.New("connection refused")})
	down.SetReady(true)
	assert.False(t, down.IsReady(t.Context()))

	unchecked := NewHealth(nil)
	unchecked.SetReady(true)
	assert.True(t, unchecked.IsReady(t.Context()))
}
