// Package claudecode implements the adapter for relay services that expose the
// Anthropic Messages API to the official Claude CLI. Requests are shaped the
// way the CLI sends them: CLI headers, a typed system array that always starts
// with the CLI preamble, and a client that adds no headers of its own.
package claudecode

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/tidwall/sjson"

	"github.com/florianilch/llmbridge/internal/canonical"
	"github.com/florianilch/llmbridge/internal/provider"
	anthropicadapter "github.com/florianilch/llmbridge/internal/provider/anthropic"
)

const (
	// ID is the provider id of this adapter.
	ID = "claude_code"

	// SecretPrefix marks relay credentials; the factory routes anthropic
	// credentials carrying it to this adapter.
	SecretPrefix = "cr_"

	// Preamble is the system segment the relay requires first in every request.
	Preamble = "你是一个编程助手,请根据用户的问题给出详细的回答."

	// UserAgent identifies requests as coming from the CLI.
	UserAgent = "claude-cli/1.0.102 (external, cli)"

	defaultBaseURL = "https://api.claude.ai"
	endpoint       = "v1/messages"
	probeModel     = "claude-3-5-sonnet-20241022"
)

var catalog = []string{
	"claude-3-5-sonnet-20241022",
	"claude-3-5-haiku-20241022",
	"claude-3-opus-20240229",
	"claude-sonnet-4-20250514",
	"claude-opus-4-20250514",
	"claude-3-7-sonnet-20250219",
}

// Adapter talks to a CLI relay with a cr_ prefixed token.
type Adapter struct {
	provider.Base
	token string
}

var _ provider.Adapter = (*Adapter)(nil)

// New creates a relay adapter. The secret must carry the cr_ prefix.
func New(cred provider.Credential, opts ...provider.Option) (*Adapter, error) {
	if !strings.HasPrefix(cred.Secret, SecretPrefix) {
		return nil, &provider.ConfigurationError{Provider: ID, Reason: "secret must start with " + SecretPrefix}
	}

	s := provider.ApplyOptions(opts)
	if s.Client == nil {
		s.Client = provider.NewBareHTTPClient(s.Timeout)
	}
	base, err := provider.NewBase(ID, cred, defaultBaseURL, s)
	if err != nil {
		return nil, err
	}
	return &Adapter{Base: base, token: cred.Secret}, nil
}

// DefaultBaseURL returns the relay default.
func (a *Adapter) DefaultBaseURL() (string, error) {
	return defaultBaseURL, nil
}

// Headers returns the full header set the CLI sends and nothing else.
func (a *Adapter) Headers() http.Header {
	h := http.Header{}
	h.Set("Authorization", "Bearer "+a.token)
	h.Set("Content-Type", "application/json")
	h.Set("anthropic-version", anthropicadapter.Version)
	h.Set("User-Agent", UserAgent)
	h.Set("Accept", "application/json")
	h.Set("x-stainless-retry-count", "0")
	h.Set("x-stainless-timeout", "60")
	h.Set("x-app", "cli")
	return h
}

// BuildRequest renders a Messages body whose system array starts with the
// preamble, followed by the caller's system text if any.
func (a *Adapter) BuildRequest(req canonical.Request) (provider.Outbound, error) {
	system, rest := canonical.ExtractSystemMessage(req.Messages)

	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(req.Model),
		MaxTokens:   int64(req.MaxTokens),
		Temperature: anthropic.Float(req.Temperature),
		System: []anthropic.TextBlockParam{{
			Text:         Preamble,
			CacheControl: anthropic.NewCacheControlEphemeralParam(),
		}},
		Messages: make([]anthropic.MessageParam, 0, len(rest)),
	}
	if system != "" {
		params.System = append(params.System, anthropic.TextBlockParam{Text: system})
	}
	for _, m := range rest {
		block := anthropic.NewTextBlock(m.Content)
		if m.Role == canonical.RoleAssistant {
			params.Messages = append(params.Messages, anthropic.NewAssistantMessage(block))
		} else {
			params.Messages = append(params.Messages, anthropic.NewUserMessage(block))
		}
	}

	body, err := json.Marshal(params)
	if err != nil {
		return provider.Outbound{}, fmt.Errorf("encoding message params: %w", err)
	}
	if req.Stream {
		body, err = sjson.SetBytes(body, "stream", true)
		if err != nil {
			return provider.Outbound{}, fmt.Errorf("setting stream flag: %w", err)
		}
	}
	return provider.Outbound{Endpoint: endpoint, Body: body}, nil
}

// ParseResponse parses a Messages API response.
func (a *Adapter) ParseResponse(body []byte, requestedModel string) (*canonical.Response, error) {
	return anthropicadapter.ParseMessage(body, requestedModel)
}

// ListModels returns the custom allow-list or the static catalog.
func (a *Adapter) ListModels(context.Context) ([]string, error) {
	return a.Models(catalog), nil
}

// ValidateCredential sends a minimal message for model.
func (a *Adapter) ValidateCredential(ctx context.Context, model string) provider.Validation {
	if model == "" {
		model = probeModel
	}
	return provider.Probe(ctx, a, model)
}

// Call posts the body to the relay.
func (a *Adapter) Call(ctx context.Context, out provider.Outbound) ([]byte, error) {
	return a.Do(ctx, http.MethodPost, a.URL(out.Endpoint, nil), a.Headers(), out.Body)
}
