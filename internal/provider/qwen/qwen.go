// Package qwen implements the adapter for Alibaba DashScope text generation (Qwen models).
package qwen

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/tidwall/gjson"

	"github.com/florianilch/llmbridge/internal/canonical"
	"github.com/florianilch/llmbridge/internal/provider"
)

const (
	// ID is the provider id of this adapter.
	ID = "qwen"

	defaultBaseURL = "https://dashscope.aliyuncs.com/api/v1"
	endpoint       = "services/aigc/text-generation/generation"
	probeModel     = "qwen-turbo"
)

var catalog = []string{
	"qwen-turbo",
	"qwen-plus",
	"qwen-max",
	"qwen-max-longcontext",
	"qwen-vl-plus",
	"qwen-vl-max",
}

// Adapter talks to DashScope with bearer authentication.
type Adapter struct {
	provider.Base
	apiKey string
}

var _ provider.Adapter = (*Adapter)(nil)

// New creates a Qwen adapter.
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

// DefaultBaseURL returns the public DashScope endpoint.
func (a *Adapter) DefaultBaseURL() (string, error) {
	return defaultBaseURL, nil
}

// Headers return bearer authentication headers.
func (a *Adapter) Headers() http.Header {
	h := provider.JSONHeaders()
	h.Set("Authorization", "Bearer "+a.apiKey)
	return h
}

type generationRequest struct {
	Model      string     `json:"model"`
	Input      input      `json:"input"`
	Parameters parameters `json:"parameters"`
}

type input struct {
	Messages []canonical.Message `json:"messages"`
}

type parameters struct {
	Temperature  float64 `json:"temperature"`
	MaxTokens    int     `json:"max_tokens"`
	ResultFormat string  `json:"result_format"`
	// IncrementalOutput is DashScope's streaming switch.
	IncrementalOutput bool `json:"incremental_output,omitempty"`
}

// BuildRequest wraps the messages in the input envelope. The system prompt
// stays a message of its own, placed first.
func (a *Adapter) BuildRequest(req canonical.Request) (provider.Outbound, error) {
	system, rest := canonical.ExtractSystemMessage(req.Messages)

	msgs := make([]canonical.Message, 0, len(rest)+1)
	if system != "" {
		msgs = append(msgs, canonical.Message{Role: canonical.RoleSystem, Content: system})
	}
	msgs = append(msgs, rest...)

	body, err := json.Marshal(generationRequest{
		Model: req.Model,
		Input: input{Messages: msgs},
		Parameters: parameters{
			Temperature:       req.Temperature,
			MaxTokens:         req.MaxTokens,
			ResultFormat:      "message",
			IncrementalOutput: req.Stream,
		},
	})
	if err != nil {
		return provider.Outbound{}, fmt.Errorf("encoding generation request: %w", err)
	}
	return provider.Outbound{Endpoint: endpoint, Body: body}, nil
}

// ParseResponse reads output.choices and the usage block.
func (a *Adapter) ParseResponse(body []byte, requestedModel string) (*canonical.Response, error) {
	if !gjson.ValidBytes(body) {
		return nil, errors.New("response is not valid JSON")
	}
	parsed := gjson.ParseBytes(body)

	resp := &canonical.Response{
		ID:    parsed.Get("request_id").String(),
		Model: requestedModel,
		Usage: provider.CheckUsage(ID,
			int(parsed.Get("usage.input_tokens").Int()),
			int(parsed.Get("usage.output_tokens").Int()),
			int(parsed.Get("usage.total_tokens").Int()),
		),
	}

	parsed.Get("output.choices").ForEach(func(key, choice gjson.Result) bool {
		resp.Choices = append(resp.Choices, canonical.Choice{
			Index:        int(key.Int()),
			Role:         canonical.RoleAssistant,
			Content:      choice.Get("message.content").String(),
			FinishReason: FinishReason(choice.Get("finish_reason").String()),
		})
		return true
	})
	// result_format=text answers with output.text instead of choices
	if len(resp.Choices) == 0 {
		resp.Choices = []canonical.Choice{canonical.NewChoice(
			parsed.Get("output.text").String(),
			FinishReason(parsed.Get("output.finish_reason").String()),
		)}
	}

	return resp, nil
}

// FinishReason maps DashScope finish reasons; "null" marks an unfinished stream chunk.
func FinishReason(reason string) canonical.FinishReason {
	switch reason {
	case "stop", "null", "":
		return canonical.FinishStop
	case "length":
		return canonical.FinishLength
	default:
		return canonical.FinishOther
	}
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

// Call posts the body to the generation endpoint.
func (a *Adapter) Call(ctx context.Context, out provider.Outbound) ([]byte, error) {
	return a.Do(ctx, http.MethodPost, a.URL(out.Endpoint, nil), a.Headers(), out.Body)
}
