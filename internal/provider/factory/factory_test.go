package factory

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/florianilch/llmbridge/internal/canonical"
	"github.com/florianilch/llmbridge/internal/provider"
	"github.com/florianilch/llmbridge/internal/provider/anthropic"
	"github.com/florianilch/llmbridge/internal/provider/claudecode"
)

func TestCreate_BuiltIns(t *testing.T) {
	t.Parallel()

	r := New()

	tests := []struct {
		cred provider.Credential
		want string
	}{
		{provider.Credential{Provider: "openai", Secret: "sk"}, "openai"},
		{provider.Credential{Provider: "anthropic", Secret: "sk-ant"}, "anthropic"},
		{provider.Credential{Provider: "claude_code", Secret: "cr_x"}, "claude_code"},
		{provider.Credential{Provider: "azure_openai", Secret: "k:d", BaseURL: "https://r.openai.azure.com"}, "azure_openai"},
		{provider.Credential{Provider: "ernie", Secret: "k:s"}, "ernie"},
		{provider.Credential{Provider: "gemini", Secret: "AIza"}, "gemini"},
		{provider.Credential{Provider: "qwen", Secret: "sk"}, "qwen"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			t.Parallel()

			a, err := r.Create(tt.cred)
			require.NoError(t, err)
			defer a.Close()
			assert.Equal(t, tt.want, a.Provider())
		})
	}
}

func TestCreate_RelayPrefixRedirectsAnthropic(t *testing.T) {
	t.Parallel()

	a, err := New().Create(provider.Credential{Provider: "anthropic", Secret: "cr_relaytoken"})
	require.NoError(t, err)
	defer a.Close()

	assert.IsType(t, &claudecode.Adapter{}, a)
	assert.Equal(t, claudecode.ID, a.Provider())
}

func TestCreate_PrefixOnlyAppliesToAnthropic(t *testing.T) {
	t.Parallel()

	a, err := New().Create(provider.Credential{Provider: "openai", Secret: "cr_looks_like_relay"})
	require.NoError(t, err)
	defer a.Close()
	assert.Equal(t, "openai", a.Provider())
}

func TestCreate_Unsupported(t *testing.T) {
	t.Parallel()

	_, err := New().Create(provider.Credential{Provider: "mistral", Secret: "k"})

	var unsupported *provider.UnsupportedProviderError
	require.ErrorAs(t, err, &unsupported)
	assert.Equal(t, "mistral", unsupported.Provider)
	assert.Equal(t, []string{"anthropic", "azure_openai", "claude_code", "ernie", "gemini", "openai", "qwen"}, unsupported.Supported)
	assert.Contains(t, err.Error(), "openai")
}

func TestCreate_PropagatesConfigurationError(t *testing.T) {
	t.Parallel()

	_, err := New().Create(provider.Credential{Provider: "azure_openai", Secret: "k"})
	var cfgErr *provider.ConfigurationError
	assert.ErrorAs(t, err, &cfgErr)
}

type stubAdapter struct{ cred provider.Credential }

func (s *stubAdapter) Provider() string                { return "stub" }
func (s *stubAdapter) DefaultBaseURL() (string, error) { return "", nil }
func (s *stubAdapter) Headers() http.Header            { return nil }
func (s *stubAdapter) BuildRequest(canonical.Request) (provider.Outbound, error) {
	return provider.Outbound{}, nil
}
func (s *stubAdapter) ParseResponse([]byte, string) (*canonical.Response, error) { return nil, nil }
func (s *stubAdapter) ListModels(context.Context) ([]string, error)            { return nil, nil }
func (s *stubAdapter) ValidateCredential(context.Context, string) provider.Validation {
	return provider.Validation{Valid: true}
}
func (s *stubAdapter) Call(context.Context, provider.Outbound) ([]byte, error) { return nil, nil }
func (s *stubAdapter) Close() error                                            { return nil }

func TestRegister_ExtendsRegistry(t *testing.T) {
	t.Parallel()

	r := New()
	r.Register("stub", func(cred provider.Credential, _ ...provider.Option) (provider.Adapter, error) {
		return &stubAdapter{cred: cred}, nil
	})

	assert.Contains(t, r.SupportedProviders(), "stub")

	a, err := r.Create(provider.Credential{Provider: "stub", Secret: "s"})
	require.NoError(t, err)
	assert.Equal(t, "s", a.(*stubAdapter).cred.Secret)
}

func TestResolveProvider(t *testing.T) {
	t.Parallel()

	assert.Equal(t, claudecode.ID, ResolveProvider(anthropic.ID, "cr_1"))
	assert.Equal(t, anthropic.ID, ResolveProvider(anthropic.ID, "sk-ant"))
}
