package anthropic

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/florianilch/llmbridge/internal/canonical"
	"github.com/florianilch/llmbridge/internal/provider"
)

func TestBuildRequest(t *testing.T) {
	t.Parallel()

	a, err := New(provider.Credential{Secret: "sk-ant"})
	require.NoError(t, err)
	defer a.Close()

	out, err := a.BuildRequest(canonical.Request{
		Model: "claude-3-haiku-20240307",
		Messages: []canonical.Message{
			{Role: canonical.RoleSystem, Content: "first"},
			{Role: canonical.RoleUser, Content: "Hi"},
			{Role: canonical.RoleSystem, Content: "second"},
		},
		MaxTokens:   64,
		Temperature: 1,
	})
	require.NoError(t, err)

	assert.Equal(t, "messages", out.Endpoint)
	body := gjson.ParseBytes(out.Body)
	assert.Equal(t, "first", body.Get("system").String())
	assert.Equal(t, int64(64), body.Get("max_tokens").Int())
	msgs := body.Get("messages").Array()
	require.Len(t, msgs, 1)
	assert.Equal(t, "user", msgs[0].Get("role").String())
	assert.Equal(t, "Hi", msgs[0].Get("content").String())
}

func TestBuildRequest_NoSystemOmitsField(t *testing.T) {
	t.Parallel()

	a, err := New(provider.Credential{Secret: "sk-ant"})
	require.NoError(t, err)
	defer a.Close()

	out, err := a.BuildRequest(canonical.Request{
		Model:    "m",
		Messages: []canonical.Message{{Role: canonical.RoleUser, Content: "Hi"}},
	})
	require.NoError(t, err)
	assert.False(t, gjson.GetBytes(out.Body, "system").Exists())
}

func TestHeaders(t *testing.T) {
	t.Parallel()

	a, err := New(provider.Credential{Secret: "sk-ant"})
	require.NoError(t, err)
	defer a.Close()

	h := a.Headers()
	assert.Equal(t, "sk-ant", h.Get("x-api-key"))
	assert.Equal(t, Version, h.Get("anthropic-version"))
	assert.Empty(t, h.Get("Authorization"))
}

func TestNew_Endpoint(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		baseURL string
		want    string
	}{
		{name: "empty", baseURL: "", want: "messages"},
		{name: "default", baseURL: "https://api.anthropic.com/v1", want: "messages"},
		{name: "default with trailing slash", baseURL: "https://api.anthropic.com/v1/", want: "messages"},
		{name: "custom root", baseURL: "https://relay.example.com", want: "v1/messages"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			a, err := New(provider.Credential{Secret: "sk-ant", BaseURL: tt.baseURL})
			require.NoError(t, err)
			defer a.Close()

			assert.Equal(t, tt.want, a.endpoint)
		})
	}
}

func TestComplete_CustomBaseURL(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		raw, _ := io.ReadAll(r.Body)
		echo := gjson.GetBytes(raw, "messages.0.content").String()

		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":          "msg_1",
			"type":        "message",
			"role":        "assistant",
			"model":       "claude-3-haiku-20240307",
			"stop_reason": "max_tokens",
			"content": []map[string]any{
				{"type": "text", "text": echo},
				{"type": "text", "text": "!"},
			},
			"usage": map[string]any{"input_tokens": 7, "output_tokens": 3},
		})
	}))
	defer srv.Close()

	a, err := New(provider.Credential{Secret: "sk-ant", BaseURL: srv.URL})
	require.NoError(t, err)
	defer a.Close()

	resp, err := provider.Complete(t.Context(), a, canonical.Request{
		Model:     "claude-3-haiku-20240307",
		Messages:  []canonical.Message{{Role: canonical.RoleUser, Content: "ping"}},
		MaxTokens: 10,
	})
	require.NoError(t, err)

	assert.Equal(t, "msg_1", resp.ID)
	assert.Equal(t, "ping!", resp.Text())
	assert.Equal(t, canonical.FinishLength, resp.FinishReason())
	assert.Equal(t, canonical.Usage{PromptTokens: 7, CompletionTokens: 3, TotalTokens: 10}, resp.Usage)
}

func TestComplete_ProviderError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"type":"error","error":{"type":"authentication_error","message":"invalid x-api-key"}}`))
	}))
	defer srv.Close()

	a, err := New(provider.Credential{Secret: "bad", BaseURL: srv.URL})
	require.NoError(t, err)
	defer a.Close()

	_, err = provider.Complete(t.Context(), a, canonical.Request{Model: "m", MaxTokens: 1})
	var provErr *provider.ProviderError
	require.ErrorAs(t, err, &provErr)
	assert.Equal(t, http.StatusUnauthorized, provErr.Status)
	assert.Equal(t, "invalid x-api-key", provErr.Message())

	v := a.ValidateCredential(t.Context(), "")
	assert.False(t, v.Valid)
	assert.Contains(t, v.Message, "401")
}

func TestFinishReason(t *testing.T) {
	t.Parallel()

	assert.Equal(t, canonical.FinishStop, FinishReason(anthropic.StopReasonEndTurn))
	assert.Equal(t, canonical.FinishStop, FinishReason(anthropic.StopReasonStopSequence))
	assert.Equal(t, canonical.FinishLength, FinishReason(anthropic.StopReasonMaxTokens))
	assert.Equal(t, canonical.FinishOther, FinishReason(anthropic.StopReasonToolUse))
}

func TestListModels(t *testing.T) {
	t.Parallel()

	a, err := New(provider.Credential{Secret: "k"})
	require.NoError(t, err)
	defer a.Close()

	models, err := a.ListModels(t.Context())
	require.NoError(t, err)
	assert.Equal(t, catalog, models)
}
