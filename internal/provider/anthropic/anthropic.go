// Package anthropic implements the adapter for the Anthropic Messages API.
package anthropic

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"

	"github.com/florianilch/llmbridge/internal/canonical"
	"github.com/florianilch/llmbridge/internal/provider"
)

const (
	// ID is the provider id of this adapter.
	ID = "anthropic"

	// Version is the anthropic-version header value.
	Version = "2023-06-01"

	defaultBaseURL = "https://api.anthropic.com/v1"
	probeModel     = "claude-3-5-sonnet-20241022"
)

var catalog = []string{
	"claude-3-5-sonnet-20241022",
	"claude-3-opus-20240229",
	"claude-3-sonnet-20240229",
	"claude-3-haiku-20240307",
}

// Adapter talks to the Anthropic Messages API with x-api-key authentication.
type Adapter struct {
	provider.Base
	apiKey   string
	endpoint string
}

var _ provider.Adapter = (*Adapter)(nil)

// New creates an Anthropic adapter. A base URL other than the default is
// treated as an API root, so the endpoint gains the v1 prefix the default
// URL already carries.
func New(cred provider.Credential, opts ...provider.Option) (*Adapter, error) {
	if cred.Secret == "" {
		return nil, &provider.ConfigurationError{Provider: ID, Reason: "API key is empty"}
	}
	base, err := provider.NewBase(ID, cred, defaultBaseURL, provider.ApplyOptions(opts))
	if err != nil {
		return nil, err
	}
	endpoint := "messages"
	if base.BaseURL != defaultBaseURL {
		endpoint = "v1/messages"
	}
	return &Adapter{Base: base, apiKey: cred.Secret, endpoint: endpoint}, nil
}

// DefaultBaseURL returns the public Anthropic endpoint.
func (a *Adapter) DefaultBaseURL() (string, error) {
	return defaultBaseURL, nil
}

// Headers authenticate with x-api-key and pin the API version.
func (a *Adapter) Headers() http.Header {
	h := provider.JSONHeaders()
	h.Set("x-api-key", a.apiKey)
	h.Set("anthropic-version", Version)
	return h
}

// messagesRequest is the Messages API body with the system prompt as a plain string.
type messagesRequest struct {
	Model       string        `json:"model"`
	Messages    []wireMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens"`
	Temperature float64       `json:"temperature"`
	System      string        `json:"system,omitempty"`
	Stream      bool          `json:"stream,omitempty"`
}

type wireMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// BuildRequest moves the system prompt to the top-level system field.
func (a *Adapter) BuildRequest(req canonical.Request) (provider.Outbound, error) {
	system, rest := canonical.ExtractSystemMessage(req.Messages)

	body := messagesRequest{
		Model:       req.Model,
		Messages:    make([]wireMessage, 0, len(rest)),
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
		System:      system,
		Stream:      req.Stream,
	}
	for _, m := range rest {
		body.Messages = append(body.Messages, wireMessage{Role: string(m.Role), Content: m.Content})
	}

	raw, err := json.Marshal(body)
	if err != nil {
		return provider.Outbound{}, fmt.Errorf("encoding messages request: %w", err)
	}
	return provider.Outbound{Endpoint: a.endpoint, Body: raw}, nil
}

// ParseResponse parses a Messages API response.
func (a *Adapter) ParseResponse(body []byte, requestedModel string) (*canonical.Response, error) {
	return ParseMessage(body, requestedModel)
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

// Call posts the body to the Messages endpoint.
func (a *Adapter) Call(ctx context.Context, out provider.Outbound) ([]byte, error) {
	return a.Do(ctx, http.MethodPost, a.URL(out.Endpoint, nil), a.Headers(), out.Body)
}

// ParseMessage converts a Messages API response to canonical form. All text
// blocks are concatenated into the single choice.
func ParseMessage(body []byte, requestedModel string) (*canonical.Response, error) {
	var msg anthropic.Message
	if err := json.Unmarshal(body, &msg); err != nil {
		return nil, fmt.Errorf("decoding message: %w", err)
	}

	var text strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}

	model := string(msg.Model)
	if model == "" {
		model = requestedModel
	}

	return &canonical.Response{
		ID:      msg.ID,
		Model:   model,
		Choices: []canonical.Choice{canonical.NewChoice(text.String(), FinishReason(msg.StopReason))},
		Usage:   canonical.NewUsage(int(msg.Usage.InputTokens), int(msg.Usage.OutputTokens)),
	}, nil
}

// FinishReason maps Anthropic stop reasons onto canonical ones.
func FinishReason(reason anthropic.StopReason) canonical.FinishReason {
	switch reason {
	case anthropic.StopReasonEndTurn, anthropic.StopReasonStopSequence, "":
		return canonical.FinishStop
	case anthropic.StopReasonMaxTokens:
		return canonical.FinishLength
	default:
		// tool_use, refusal and pause_turn have no canonical counterpart
		return canonical.FinishOther
	}
}
