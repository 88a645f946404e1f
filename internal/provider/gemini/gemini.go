// Package gemini implements the adapter for the Gemini generateContent REST API.
package gemini

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/google/uuid"
	"google.golang.org/genai"

	"github.com/florianilch/llmbridge/internal/canonical"
	"github.com/florianilch/llmbridge/internal/provider"
)

const (
	// ID is the provider id of this adapter.
	ID = "gemini"

	defaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"
	probeModel     = "gemini-pro"
)

var catalog = []string{
	"gemini-pro",
	"gemini-pro-vision",
	"gemini-1.5-pro",
	"gemini-1.5-flash",
	"gemini-1.5-flash-8b",
}

// Adapter authenticates with the API key as the key query parameter.
type Adapter struct {
	provider.Base
	apiKey string
}

var _ provider.Adapter = (*Adapter)(nil)

// New creates a Gemini adapter.
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

// DefaultBaseURL returns the public Gemini endpoint.
func (a *Adapter) DefaultBaseURL() (string, error) {
	return defaultBaseURL, nil
}

// Headers carry no credentials; the key travels in the query string.
func (a *Adapter) Headers() http.Header {
	return provider.JSONHeaders()
}

type generateRequest struct {
	Contents          []*genai.Content        `json:"contents"`
	GenerationConfig  *genai.GenerationConfig `json:"generationConfig,omitempty"`
	SystemInstruction *genai.Content          `json:"systemInstruction,omitempty"`
}

// BuildRequest moves the system prompt to systemInstruction and renames the
// assistant role to model.
func (a *Adapter) BuildRequest(req canonical.Request) (provider.Outbound, error) {
	system, rest := canonical.ExtractSystemMessage(req.Messages)

	body := generateRequest{
		Contents: make([]*genai.Content, 0, len(rest)),
		GenerationConfig: &genai.GenerationConfig{
			Temperature:     genai.Ptr(float32(req.Temperature)),
			MaxOutputTokens: int32(req.MaxTokens),
		},
	}
	if system != "" {
		body.SystemInstruction = &genai.Content{Parts: []*genai.Part{genai.NewPartFromText(system)}}
	}
	for _, m := range rest {
		var role genai.Role = genai.RoleUser
		if m.Role == canonical.RoleAssistant {
			role = genai.RoleModel
		}
		body.Contents = append(body.Contents, genai.NewContentFromText(m.Content, role))
	}

	raw, err := json.Marshal(body)
	if err != nil {
		return provider.Outbound{}, fmt.Errorf("encoding generate request: %w", err)
	}
	return provider.Outbound{
		Endpoint: "models/" + url.PathEscape(req.Model) + ":generateContent",
		Body:     raw,
	}, nil
}

// ParseResponse reads the first candidate and the usage metadata.
func (a *Adapter) ParseResponse(body []byte, requestedModel string) (*canonical.Response, error) {
	var resp genai.GenerateContentResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decoding generate response: %w", err)
	}

	var (
		text   strings.Builder
		reason = canonical.FinishStop
	)
	if len(resp.Candidates) > 0 && resp.Candidates[0] != nil {
		cand := resp.Candidates[0]
		if cand.Content != nil {
			for _, part := range cand.Content.Parts {
				if part != nil {
					text.WriteString(part.Text)
				}
			}
		}
		reason = FinishReason(cand.FinishReason)
	}

	var usage canonical.Usage
	if resp.UsageMetadata != nil {
		usage = provider.CheckUsage(ID,
			int(resp.UsageMetadata.PromptTokenCount),
			int(resp.UsageMetadata.CandidatesTokenCount),
			int(resp.UsageMetadata.TotalTokenCount),
		)
	}

	id := resp.ResponseID
	if id == "" {
		id = uuid.NewString()
	}

	return &canonical.Response{
		ID:      id,
		Model:   requestedModel,
		Choices: []canonical.Choice{canonical.NewChoice(text.String(), reason)},
		Usage:   usage,
	}, nil
}

// FinishReason maps Gemini finish reasons. Anything but MAX_TOKENS counts as stop.
func FinishReason(reason genai.FinishReason) canonical.FinishReason {
	switch reason {
	case genai.FinishReasonMaxTokens:
		return canonical.FinishLength
	default:
		return canonical.FinishStop
	}
}

// ListModels returns the custom allow-list or the static catalog.
func (a *Adapter) ListModels(context.Context) ([]string, error) {
	return a.Models(catalog), nil
}

// ValidateCredential sends a minimal prompt for model.
func (a *Adapter) ValidateCredential(ctx context.Context, model string) provider.Validation {
	if model == "" {
		model = probeModel
	}
	return provider.Probe(ctx, a, model)
}

// Call posts the body with the API key in the query string.
func (a *Adapter) Call(ctx context.Context, out provider.Outbound) ([]byte, error) {
	u := a.URL(out.Endpoint, url.Values{"key": {a.apiKey}})
	return a.Do(ctx, http.MethodPost, u, a.Headers(), out.Body)
}
