// Package openai implements the adapter for OpenAI-compatible chat completion APIs.
package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/shared"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/florianilch/llmbridge/internal/canonical"
	"github.com/florianilch/llmbridge/internal/provider"
)

const (
	// ID is the provider id of this adapter.
	ID = "openai"

	defaultBaseURL = "https://api.openai.com/v1"
	chatEndpoint   = "chat/completions"
	modelsEndpoint = "models"
	probeModel     = "gpt-4o-mini"
)

// Adapter talks to an OpenAI-compatible endpoint with bearer authentication.
type Adapter struct {
	provider.Base
	apiKey string
}

var _ provider.Adapter = (*Adapter)(nil)

// New creates an OpenAI adapter for cred.
func New(cred provider.Credential, opts ...provider.Option) (*Adapter, error) {
	if cred.Secret == "" {
		return nil, &provider.ConfigurationError{Provider: ID, Reason: "API key is empty"}
	}
	base, err := provider.NewBase(ID, cred, defaultBaseURL, provider.ApplyOptions(opts))
	if err != nil {
		return nil, err
	}
	return &Adapter{Base: base, apiKey: cred.Secret}, nil
}

// DefaultBaseURL returns the public OpenAI endpoint.
func (a *Adapter) DefaultBaseURL() (string, error) {
	return defaultBaseURL, nil
}

// Headers returns bearer authentication headers.
func (a *Adapter) Headers() http.Header {
	h := provider.JSONHeaders()
	h.Set("Authorization", "Bearer "+a.apiKey)
	return h
}

// BuildRequest merges the system prompt into the first user turn.
func (a *Adapter) BuildRequest(req canonical.Request) (provider.Outbound, error) {
	body, err := BuildChatBody(req)
	if err != nil {
		return provider.Outbound{}, err
	}
	return provider.Outbound{Endpoint: chatEndpoint, Body: body}, nil
}

// ParseResponse parses a chat.completion object.
func (a *Adapter) ParseResponse(body []byte, requestedModel string) (*canonical.Response, error) {
	return ParseChatCompletion(body, requestedModel)
}

// ListModels returns the custom allow-list or queries the live models endpoint.
func (a *Adapter) ListModels(ctx context.Context) ([]string, error) {
	if len(a.CustomModels) > 0 {
		return a.Models(nil), nil
	}

	h := a.Headers()
	h.Del("Content-Type")
	body, err := a.Do(ctx, http.MethodGet, a.URL(modelsEndpoint, nil), h, nil)
	if err != nil {
		return nil, err
	}

	var models []string
	for _, id := range gjson.GetBytes(body, "data.#.id").Array() {
		models = append(models, id.String())
	}
	return models, nil
}

// ValidateCredential sends a minimal completion for model.
func (a *Adapter) ValidateCredential(ctx context.Context, model string) provider.Validation {
	if model == "" {
		model = probeModel
	}
	return provider.Probe(ctx, a, model)
}

// Call posts the body to the endpoint.
func (a *Adapter) Call(ctx context.Context, out provider.Outbound) ([]byte, error) {
	return a.Do(ctx, http.MethodPost, a.URL(out.Endpoint, nil), a.Headers(), out.Body)
}

// BuildChatBody renders req as an OpenAI chat completion body. Formats
// sharing the OpenAI wire shape reuse it.
func BuildChatBody(req canonical.Request) ([]byte, error) {
	system, rest := canonical.ExtractSystemMessage(req.Messages)
	msgs := canonical.MergeSystemIntoFirstUser(system, rest)

	params := openai.ChatCompletionNewParams{
		Model:       shared.ChatModel(req.Model),
		Messages:    make([]openai.ChatCompletionMessageParamUnion, 0, len(msgs)),
		MaxTokens:   openai.Int(int64(req.MaxTokens)),
		Temperature: openai.Float(req.Temperature),
	}
	for _, m := range msgs {
		switch m.Role {
		case canonical.RoleAssistant:
			params.Messages = append(params.Messages, openai.AssistantMessage(m.Content))
		default:
			params.Messages = append(params.Messages, openai.UserMessage(m.Content))
		}
	}

	body, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("encoding chat completion params: %w", err)
	}
	if req.Stream {
		body, err = sjson.SetBytes(body, "stream", true)
		if err != nil {
			return nil, fmt.Errorf("setting stream flag: %w", err)
		}
	}
	return body, nil
}

// ParseChatCompletion converts a chat.completion object to canonical form.
func ParseChatCompletion(body []byte, requestedModel string) (*canonical.Response, error) {
	var completion openai.ChatCompletion
	if err := json.Unmarshal(body, &completion); err != nil {
		return nil, fmt.Errorf("decoding chat completion: %w", err)
	}

	usage := provider.CheckUsage(ID,
		int(completion.Usage.PromptTokens),
		int(completion.Usage.CompletionTokens),
		int(completion.Usage.TotalTokens),
	)
	resp := &canonical.Response{
		ID:      completion.ID,
		Model:   completion.Model,
		Choices: make([]canonical.Choice, 0, len(completion.Choices)),
		Usage:   usage,
	}
	if resp.Model == "" {
		resp.Model = requestedModel
	}
	for _, c := range completion.Choices {
		resp.Choices = append(resp.Choices, canonical.Choice{
			Index:        int(c.Index),
			Role:         canonical.RoleAssistant,
			Content:      c.Message.Content,
			FinishReason: FinishReason(c.FinishReason),
		})
	}
	return resp, nil
}

// FinishReason maps OpenAI finish reasons onto canonical ones.
func FinishReason(reason string) canonical.FinishReason {
	switch reason {
	case "stop", "":
		return canonical.FinishStop
	case "length":
		return canonical.FinishLength
	default:
		return canonical.FinishOther
	}
}
