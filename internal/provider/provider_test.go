package provider

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/florianilch/llmbridge/internal/canonical"
	"github.com/florianilch/llmbridge/internal/observability"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		goleak.IgnoreTopFunction("net/http.(*persistConn).readLoop"),
		goleak.IgnoreTopFunction("net/http.(*persistConn).writeLoop"),
		goleak.IgnoreTopFunction("internal/poll.runtime_pollWait"),
	)
}

// probeAdapter answers probes from a fixed table with per-model delays so
// completion order differs from input order.
type probeAdapter struct {
	failing map[string]string
	delays  map[string]time.Duration
}

func (p *probeAdapter) Provider() string                { return "fake" }
func (p *probeAdapter) DefaultBaseURL() (string, error) { return "http://fake", nil }
func (p *probeAdapter) Headers() http.Header            { return http.Header{} }
func (p *probeAdapter) BuildRequest(canonical.Request) (Outbound, error) {
	return Outbound{}, nil
}
func (p *probeAdapter) ParseResponse([]byte, string) (*canonical.Response, error) {
	return &canonical.Response{}, nil
}
func (p *probeAdapter) ListModels(context.Context) ([]string, error) { return nil, nil }
func (p *probeAdapter) Call(context.Context, Outbound) ([]byte, error) {
	return nil, nil
}
func (p *probeAdapter) Close() error { return nil }

func (p *probeAdapter) ValidateCredential(_ context.Context, model string) Validation {
	time.Sleep(p.delays[model])
	if msg, ok := p.failing[model]; ok {
		return Validation{Valid: false, Message: msg}
	}
	return Validation{Valid: true}
}

func TestValidateModels_PartialFailure(t *testing.T) {
	t.Parallel()

	a := &probeAdapter{
		failing: map[string]string{"model-b": "HTTP 404: no such model"},
		delays: map[string]time.Duration{
			"model-c": 0,
			"model-a": 30 * time.Millisecond,
			"model-b": 10 * time.Millisecond,
		},
	}

	report := ValidateModels(t.Context(), a, []string{"model-c", "model-a", "model-b"})

	assert.True(t, report.Valid)
	assert.Equal(t, []string{"model-a", "model-c"}, report.AvailableModels)
	require.Len(t, report.FailedModels, 1)
	assert.Equal(t, FailedModel{Model: "model-b", Error: "HTTP 404: no such model"}, report.FailedModels[0])
}

func TestValidateModels_AllFail(t *testing.T) {
	t.Parallel()

	a := &probeAdapter{failing: map[string]string{"x": "bad", "y": "bad"}}

	report := ValidateModels(t.Context(), a, []string{"y", "x"})

	assert.False(t, report.Valid)
	assert.Empty(t, report.AvailableModels)
	assert.Equal(t, []FailedModel{{Model: "x", Error: "bad"}, {Model: "y", Error: "bad"}}, report.FailedModels)
}

func TestSplitSecret(t *testing.T) {
	t.Parallel()

	p, s := SplitSecret("key:deploy:ment")
	assert.Equal(t, "key", p)
	assert.Equal(t, "deploy:ment", s)

	p, s = SplitSecret("only")
	assert.Equal(t, "only", p)
	assert.Empty(t, s)
}

func TestNewBase(t *testing.T) {
	t.Parallel()

	_, err := NewBase("azure_openai", Credential{}, "", ApplyOptions(nil))
	var cfgErr *ConfigurationError
	require.ErrorAs(t, err, &cfgErr)

	b, err := NewBase("x", Credential{BaseURL: "https://example.com/v1/", CustomModels: []string{"m1"}}, "https://default", ApplyOptions(nil))
	require.NoError(t, err)
	defer b.Close()
	assert.Equal(t, "https://example.com/v1", b.BaseURL)
	assert.Equal(t, "https://example.com/v1/chat", b.URL("/chat", nil))
	assert.Equal(t, "https://example.com/v1/a?b=c&key=k", b.URL("a?b=c", url.Values{"key": {"k"}}))
	assert.Equal(t, []string{"m1"}, b.Models([]string{"catalog"}))
	assert.Equal(t, DefaultTimeout, b.Client.Timeout)
}

func TestBaseDo(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ok":
			assert.Equal(t, "yes", r.Header.Get("X-Test"))
			_, _ = w.Write([]byte(`{"ok":true}`))
		case "/fail":
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":"bad key"}`))
		}
	}))
	defer srv.Close()

	b, err := NewBase("fake", Credential{}, srv.URL, ApplyOptions(nil))
	require.NoError(t, err)
	defer b.Close()

	h := JSONHeaders()
	h.Set("X-Test", "yes")
	body, err := b.Do(t.Context(), http.MethodPost, b.URL("ok", nil), h, []byte(`{}`))
	require.NoError(t, err)
	assert.JSONEq(t, `{"ok":true}`, string(body))

	_, err = b.Do(t.Context(), http.MethodPost, b.URL("fail", nil), h, []byte(`{}`))
	var provErr *ProviderError
	require.ErrorAs(t, err, &provErr)
	assert.Equal(t, http.StatusUnauthorized, provErr.Status)
	assert.Contains(t, provErr.Body, "bad key")
}

func TestBaseDo_TransportErrorHidesURL(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	addr := srv.URL
	srv.Close()

	b, err := NewBase("gemini", Credential{}, addr, ApplyOptions(nil))
	require.NoError(t, err)
	defer b.Close()

	_, err = b.Do(t.Context(), http.MethodPost, b.URL("x", url.Values{"key": {"secret-key"}}), nil, []byte(`{}`))
	var tErr *TransportError
	require.ErrorAs(t, err, &tErr)
	assert.NotContains(t, err.Error(), "secret-key")
}

func TestBaseDo_Timeout(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	b, err := NewBase("slow", Credential{}, srv.URL, ApplyOptions([]Option{WithTimeout(50 * time.Millisecond)}))
	require.NoError(t, err)
	defer b.Close()

	_, err = b.Do(t.Context(), http.MethodPost, b.URL("x", nil), nil, []byte(`{}`))
	var tErr *TransportError
	require.ErrorAs(t, err, &tErr)
	assert.False(t, errors.Is(err, context.Canceled))
}

func TestCheckUsage(t *testing.T) {
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, nil)))
	t.Cleanup(func() { slog.SetDefault(prev) })

	mismatches := observability.UsageMismatchTotal.WithLabelValues("usage-test")
	before := testutil.ToFloat64(mismatches)

	u := CheckUsage("usage-test", 10, 5, 15)
	assert.Equal(t, canonical.Usage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15}, u)
	assert.Empty(t, buf.String())

	u = CheckUsage("usage-test", 10, 5, 0)
	assert.Equal(t, 15, u.TotalTokens, "missing total is not a disagreement")
	assert.Empty(t, buf.String())

	u = CheckUsage("usage-test", 10, 5, 99)
	assert.Equal(t, 15, u.TotalTokens, "summed total wins")
	assert.Contains(t, buf.String(), "vendor token total disagrees")
	assert.Contains(t, buf.String(), "reported_total=99")
	assert.Equal(t, before+1, testutil.ToFloat64(mismatches))
}
