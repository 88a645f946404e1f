// Package azure implements the adapter for Azure OpenAI deployments, where the
// model is selected by a deployment segment in the URL rather than the body.
package azure

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/tidwall/sjson"

	"github.com/florianilch/llmbridge/internal/canonical"
	"github.com/florianilch/llmbridge/internal/provider"
	"github.com/florianilch/llmbridge/internal/provider/openai"
)

const (
	// ID is the provider id of this adapter.
	ID = "azure_openai"

	// APIVersion is appended to every call as the api-version query parameter.
	APIVersion = "2024-02-15-preview"

	probeModel = "gpt-35-turbo"
)

var catalog = []string{
	"gpt-35-turbo",
	"gpt-35-turbo-16k",
	"gpt-4",
	"gpt-4-32k",
	"gpt-4-turbo",
	"gpt-4o",
}

// Adapter talks to one Azure OpenAI resource. The secret is "key" or
// "key:deployment"; without a deployment the model name routes the call.
type Adapter struct {
	provider.Base
	apiKey     string
	deployment string
}

var _ provider.Adapter = (*Adapter)(nil)

// New creates an Azure adapter. A base URL is mandatory.
func New(cred provider.Credential, opts ...provider.Option) (*Adapter, error) {
	key, deployment := provider.SplitSecret(cred.Secret)
	if key == "" {
		return nil, &provider.ConfigurationError{Provider: ID, Reason: "API key is empty"}
	}
	if cred.BaseURL == "" {
		return nil, &provider.ConfigurationError{Provider: ID, Reason: "base URL is required (https://<resource>.openai.azure.com)"}
	}
	base, err := provider.NewBase(ID, cred, "", provider.ApplyOptions(opts))
	if err != nil {
		return nil, err
	}
	return &Adapter{Base: base, apiKey: key, deployment: deployment}, nil
}

// DefaultBaseURL always fails: every Azure resource has its own endpoint.
func (a *Adapter) DefaultBaseURL() (string, error) {
	return "", &provider.ConfigurationError{Provider: ID, Reason: "no default base URL; configure the resource endpoint"}
}

// Headers authenticate with the api-key header.
func (a *Adapter) Headers() http.Header {
	h := provider.JSONHeaders()
	h.Set("api-key", a.apiKey)
	return h
}

// BuildRequest renders an OpenAI body without the model field and routes
// it to the deployment.
func (a *Adapter) BuildRequest(req canonical.Request) (provider.Outbound, error) {
	body, err := openai.BuildChatBody(req)
	if err != nil {
		return provider.Outbound{}, err
	}
	body, err = sjson.DeleteBytes(body, "model")
	if err != nil {
		return provider.Outbound{}, fmt.Errorf("stripping model: %w", err)
	}

	deployment := a.deployment
	if deployment == "" {
		deployment = req.Model
	}
	if deployment == "" {
		return provider.Outbound{}, &provider.ConfigurationError{Provider: ID, Reason: "no deployment or model given"}
	}

	return provider.Outbound{
		Endpoint: "openai/deployments/" + url.PathEscape(deployment) + "/chat/completions",
		Body:     body,
	}, nil
}

// ParseResponse parses the OpenAI-shaped response.
func (a *Adapter) ParseResponse(body []byte, requestedModel string) (*canonical.Response, error) {
	return openai.ParseChatCompletion(body, requestedModel)
}

// ListModels returns the custom allow-list or the static catalog.
func (a *Adapter) ListModels(context.Context) ([]string, error) {
	return a.Models(catalog), nil
}

// ValidateCredential sends a minimal completion for model.
func (a *Adapter) ValidateCredential(ctx context.Context, model string) provider.Validation {
	if model == "" {
		model = probeModel
	}
	return provider.Probe(ctx, a, model)
}

// Call posts the body with the api-version query parameter.
func (a *Adapter) Call(ctx context.Context, out provider.Outbound) ([]byte, error) {
	u := a.URL(out.Endpoint, url.Values{"api-version": {APIVersion}})
	return a.Do(ctx, http.MethodPost, u, a.Headers(), out.Body)
}
