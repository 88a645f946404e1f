package clientapi

import (
	"time"

	"github.com/google/uuid"

	"github.com/florianilch/llmbridge/internal/canonical"
)

// ChatCompletionRequest is an OpenAI-style chat completion request.
// Fields beyond these are accepted and ignored.
type ChatCompletionRequest struct {
	Model       string                   `json:"model" validate:"required"`
	Messages    []canonical.LooseMessage `json:"messages" validate:"required,min=1"`
	MaxTokens   *int                     `json:"max_tokens,omitempty" validate:"omitempty,gt=0"`
	Temperature *float64                 `json:"temperature,omitempty" validate:"omitempty,gte=0,lte=2"`
	Stream      bool                     `json:"stream,omitempty"`
}

// Canonical validates r and converts it, applying defaults for omitted
// sampling parameters.
func (r *ChatCompletionRequest) Canonical() (canonical.Request, error) {
	if err := check(r); err != nil {
		return canonical.Request{}, err
	}
	return canonical.Request{
		Model:       r.Model,
		Messages:    canonical.NormalizeMessages(r.Messages),
		MaxTokens:   intOr(r.MaxTokens, DefaultMaxTokens),
		Temperature: floatOr(r.Temperature, DefaultTemperature),
		Stream:      r.Stream,
	}, nil
}

// ChatCompletion is an OpenAI-style chat completion response.
type ChatCompletion struct {
	ID      string                 `json:"id"`
	Object  string                 `json:"object"`
	Created int64                  `json:"created"`
	Model   string                 `json:"model"`
	Choices []ChatCompletionChoice `json:"choices"`
	Usage   CompletionUsage        `json:"usage"`
}

type ChatCompletionChoice struct {
	Index        int                   `json:"index"`
	Message      ChatCompletionMessage `json:"message"`
	FinishReason string                `json:"finish_reason"`
}

type ChatCompletionMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// CompletionUsage reports token counts. Total is always prompt plus completion.
type CompletionUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// NewChatCompletion renders resp in the OpenAI dialect.
func NewChatCompletion(resp *canonical.Response, created time.Time) *ChatCompletion {
	out := &ChatCompletion{
		ID:      resp.ID,
		Object:  "chat.completion",
		Created: created.Unix(),
		Model:   resp.Model,
		Choices: make([]ChatCompletionChoice, 0, len(resp.Choices)),
		Usage: CompletionUsage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.PromptTokens + resp.Usage.CompletionTokens,
		},
	}
	if out.ID == "" {
		out.ID = "chatcmpl-" + uuid.NewString()
	}
	for i, c := range resp.Choices {
		out.Choices = append(out.Choices, ChatCompletionChoice{
			Index:        i,
			Message:      ChatCompletionMessage{Role: string(canonical.RoleAssistant), Content: c.Content},
			FinishReason: openAIFinishReason(c.FinishReason),
		})
	}
	return out
}

// openAIFinishReason renders a canonical finish reason. Reasons with no
// OpenAI counterpart are reported as stop.
func openAIFinishReason(r canonical.FinishReason) string {
	if r == canonical.FinishLength {
		return "length"
	}
	return "stop"
}
