// Package canonical defines the provider-agnostic chat request and response
// shapes every provider adapter translates to and from.
package canonical

import (
	"bytes"
	"encoding/json"
	"strings"
)

// Role identifies the author of a message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleSystem, RoleUser, RoleAssistant:
		return true
	default:
		return false
	}
}

// FinishReason is the normalized reason a completion ended.
type FinishReason string

const (
	FinishStop   FinishReason = "stop"
	FinishLength FinishReason = "length"
	FinishOther  FinishReason = "other"
)

// Message is a single conversation turn.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Request is the canonical chat completion request. Message order is
// conversation order and is preserved through every transform.
type Request struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	MaxTokens   int       `json:"max_tokens"`
	Temperature float64   `json:"temperature"`
	Stream      bool      `json:"stream"`
}

// Response is the canonical chat completion response.
type Response struct {
	ID      string   `json:"id"`
	Model   string   `json:"model"`
	Choices []Choice `json:"choices"`
	Usage   Usage    `json:"usage"`
}

// Text returns the content of the first choice, or "" when there is none.
func (r *Response) Text() string {
	if r == nil || len(r.Choices) == 0 {
		return ""
	}
	return r.Choices[0].Content
}

// FinishReason returns the finish reason of the first choice, defaulting to stop.
func (r *Response) FinishReason() FinishReason {
	if r == nil || len(r.Choices) == 0 {
		return FinishStop
	}
	return r.Choices[0].FinishReason
}

// Choice is one generated alternative. Role is always assistant.
type Choice struct {
	Index        int          `json:"index"`
	Role         Role         `json:"role"`
	Content      string       `json:"content"`
	FinishReason FinishReason `json:"finish_reason"`
}

// NewChoice returns the single assistant choice most vendors produce.
func NewChoice(content string, reason FinishReason) Choice {
	return Choice{
		Index:        0,
		Role:         RoleAssistant,
		Content:      content,
		FinishReason: reason,
	}
}

// Usage reports token consumption.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// NewUsage builds a Usage whose total is always the sum of its parts.
// Negative vendor counts are clamped to zero.
func NewUsage(prompt, completion int) Usage {
	prompt = max(prompt, 0)
	completion = max(completion, 0)
	return Usage{
		PromptTokens:     prompt,
		CompletionTokens: completion,
		TotalTokens:      prompt + completion,
	}
}

// Consistent reports whether a vendor-reported total agrees with the summed usage.
// A zero reported total means the vendor did not supply one.
func (u Usage) Consistent(reportedTotal int) bool {
	return reportedTotal == 0 || reportedTotal == u.TotalTokens
}

// ExtractSystemMessage removes system messages from msgs and returns the content
// of the first one. Later system messages are discarded, not merged.
func ExtractSystemMessage(msgs []Message) (string, []Message) {
	var (
		system string
		found  bool
	)
	rest := make([]Message, 0, len(msgs))
	for _, m := range msgs {
		if m.Role == RoleSystem {
			if !found {
				system = m.Content
				found = true
			}
			continue
		}
		rest = append(rest, m)
	}
	return system, rest
}

// MergeSystemIntoFirstUser prepends system to the first user message for wire
// formats without a system role. If no user message exists, a user message
// carrying the system text is inserted at the front. msgs is not modified.
func MergeSystemIntoFirstUser(system string, msgs []Message) []Message {
	out := make([]Message, len(msgs))
	copy(out, msgs)
	if system == "" {
		return out
	}
	for i := range out {
		if out[i].Role == RoleUser {
			out[i].Content = system + "\n\n" + out[i].Content
			return out
		}
	}
	return append([]Message{{Role: RoleUser, Content: system}}, out...)
}

// LooseMessage is a message as received from a caller, before normalization.
// Content may be a string, an array of typed content blocks, or any other JSON value.
type LooseMessage struct {
	Role    string          `json:"role"`
	Content json.RawMessage `json:"content"`
}

// NormalizeMessages coerces loosely typed messages into Messages. Unknown or
// missing roles become user and content is stringified. Order is preserved.
func NormalizeMessages(in []LooseMessage) []Message {
	out := make([]Message, 0, len(in))
	for _, m := range in {
		role := Role(strings.ToLower(strings.TrimSpace(m.Role)))
		if !role.Valid() {
			role = RoleUser
		}
		out = append(out, Message{Role: role, Content: stringifyContent(m.Content)})
	}
	return out
}

// stringifyContent flattens JSON content into plain text. Arrays of content
// blocks contribute the text of their text blocks.
func stringifyContent(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return ""
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}

	var blocks []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	}
	if err := json.Unmarshal(raw, &blocks); err == nil {
		var parts []string
		for _, b := range blocks {
			if b.Type == "" || b.Type == "text" {
				parts = append(parts, b.Text)
			}
		}
		return strings.Join(parts, "\n")
	}

	return string(raw)
}
