package canonical

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractSystemMessage(t *testing.T) {
	t.Parallel()

	msgs := []Message{
		{Role: RoleUser, Content: "first"},
		{Role: RoleSystem, Content: "be terse"},
		{Role: RoleAssistant, Content: "ok"},
		{Role: RoleSystem, Content: "ignored"},
		{Role: RoleUser, Content: "second"},
	}

	system, rest := ExtractSystemMessage(msgs)

	assert.Equal(t, "be terse", system)
	assert.Equal(t, []Message{
		{Role: RoleUser, Content: "first"},
		{Role: RoleAssistant, Content: "ok"},
		{Role: RoleUser, Content: "second"},
	}, rest)
	assert.Len(t, msgs, 5, "input must not be modified")
}

func TestExtractSystemMessage_None(t *testing.T) {
	t.Parallel()

	system, rest := ExtractSystemMessage([]Message{{Role: RoleUser, Content: "hi"}})
	assert.Empty(t, system)
	assert.Len(t, rest, 1)
}

func TestMergeSystemIntoFirstUser(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		system string
		in     []Message
		want   []Message
	}{
		{
			name:   "prepends to first user turn",
			system: "sys",
			in: []Message{
				{Role: RoleAssistant, Content: "earlier"},
				{Role: RoleUser, Content: "hello"},
				{Role: RoleUser, Content: "again"},
			},
			want: []Message{
				{Role: RoleAssistant, Content: "earlier"},
				{Role: RoleUser, Content: "sys\n\nhello"},
				{Role: RoleUser, Content: "again"},
			},
		},
		{
			name:   "empty system is a no-op",
			system: "",
			in:     []Message{{Role: RoleUser, Content: "hello"}},
			want:   []Message{{Role: RoleUser, Content: "hello"}},
		},
		{
			name:   "inserts user turn when none exists",
			system: "sys",
			in:     []Message{{Role: RoleAssistant, Content: "hi"}},
			want: []Message{
				{Role: RoleUser, Content: "sys"},
				{Role: RoleAssistant, Content: "hi"},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			original := append([]Message(nil), tt.in...)
			got := MergeSystemIntoFirstUser(tt.system, tt.in)

			assert.Equal(t, tt.want, got)
			assert.Equal(t, original, tt.in)
			for _, m := range got {
				assert.NotEqual(t, RoleSystem, m.Role)
			}
		})
	}
}

func TestNormalizeMessages(t *testing.T) {
	t.Parallel()

	var in []LooseMessage
	require.NoError(t, json.Unmarshal([]byte(`[
		{"role":"system","content":"rules"},
		{"content":"no role"},
		{"role":"tool","content":"odd role"},
		{"role":"ASSISTANT","content":[{"type":"text","text":"a"},{"type":"image","text":"x"},{"type":"text","text":"b"}]},
		{"role":"user","content":42},
		{"role":"user","content":null}
	]`), &in))

	got := NormalizeMessages(in)

	assert.Equal(t, []Message{
		{Role: RoleSystem, Content: "rules"},
		{Role: RoleUser, Content: "no role"},
		{Role: RoleUser, Content: "odd role"},
		{Role: RoleAssistant, Content: "a\nb"},
		{Role: RoleUser, Content: "42"},
		{Role: RoleUser, Content: ""},
	}, got)
}

func TestNewUsage(t *testing.T) {
	t.Parallel()

	u := NewUsage(3, 2)
	assert.Equal(t, Usage{PromptTokens: 3, CompletionTokens: 2, TotalTokens: 5}, u)
	assert.True(t, u.Consistent(5))
	assert.True(t, u.Consistent(0))
	assert.False(t, u.Consistent(7))

	assert.Equal(t, Usage{}, NewUsage(-1, -4))
}

func TestResponseAccessors(t *testing.T) {
	t.Parallel()

	var empty *Response
	assert.Empty(t, empty.Text())
	assert.Equal(t, FinishStop, empty.FinishReason())

	r := &Response{Choices: []Choice{NewChoice("hi", FinishLength)}}
	assert.Equal(t, "hi", r.Text())
	assert.Equal(t, FinishLength, r.FinishReason())
	assert.Equal(t, RoleAssistant, r.Choices[0].Role)
}
