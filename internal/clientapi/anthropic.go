package clientapi

import (
	"encoding/json"

	"github.com/google/uuid"

	"github.com/florianilch/llmbridge/internal/canonical"
)

// MessagesRequest is an Anthropic-style messages request. System may be a
// string or an array of text blocks.
type MessagesRequest struct {
	Model       string                   `json:"model" validate:"required"`
	Messages    []canonical.LooseMessage `json:"messages" validate:"required,min=1"`
	System      json.RawMessage          `json:"system,omitempty"`
	MaxTokens   *int                     `json:"max_tokens,omitempty" validate:"omitempty,gt=0"`
	Temperature *float64                 `json:"temperature,omitempty" validate:"omitempty,gte=0,lte=1"`
	Stream      bool                     `json:"stream,omitempty"`
}

// Canonical validates r and converts it. The top-level system prompt becomes
// a leading system message.
func (r *MessagesRequest) Canonical() (canonical.Request, error) {
	if err := check(r); err != nil {
		return canonical.Request{}, err
	}

	loose := r.Messages
	if len(r.System) > 0 {
		loose = append([]canonical.LooseMessage{{Role: string(canonical.RoleSystem), Content: r.System}}, r.Messages...)
	}
	msgs := canonical.NormalizeMessages(loose)
	if len(r.System) > 0 && msgs[0].Content == "" {
		msgs = msgs[1:]
	}

	return canonical.Request{
		Model:       r.Model,
		Messages:    msgs,
		MaxTokens:   intOr(r.MaxTokens, DefaultMaxTokens),
		Temperature: floatOr(r.Temperature, DefaultTemperature),
		Stream:      r.Stream,
	}, nil
}

// Message is an Anthropic-style messages response.
type Message struct {
	ID           string         `json:"id"`
	Type         string         `json:"type"`
	Role         string         `json:"role"`
	Content      []ContentBlock `json:"content"`
	Model        string         `json:"model"`
	StopReason   string         `json:"stop_reason"`
	StopSequence *string        `json:"stop_sequence"`
	Usage        MessageUsage   `json:"usage"`
}

type ContentBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type MessageUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// NewMessage renders resp in the Anthropic dialect. Only the first choice is
// carried; the dialect has no notion of alternatives.
func NewMessage(resp *canonical.Response) *Message {
	out := &Message{
		ID:      resp.ID,
		Type:    "message",
		Role:    string(canonical.RoleAssistant),
		Content: []ContentBlock{},
		Model:   resp.Model,
		Usage: MessageUsage{
			InputTokens:  resp.Usage.PromptTokens,
			OutputTokens: resp.Usage.CompletionTokens,
		},
		StopReason: anthropicStopReason(resp.FinishReason()),
	}
	if out.ID == "" {
		out.ID = "msg_" + uuid.NewString()
	}
	if len(resp.Choices) > 0 {
		out.Content = append(out.Content, ContentBlock{Type: "text", Text: resp.Choices[0].Content})
	}
	return out
}

func anthropicStopReason(r canonical.FinishReason) string {
	if r == canonical.FinishLength {
		return "max_tokens"
	}
	return "end_turn"
}
