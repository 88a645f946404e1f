package proxy

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/florianilch/llmbridge/internal/bridge"
	"github.com/florianilch/llmbridge/internal/canonical"
	"github.com/florianilch/llmbridge/internal/provider"
)

func TestMain(m *testing.M) {
	slog.SetDefault(slog.New(slog.NewTextHandler(io.Discard, nil)))
	goleak.VerifyTestMain(m,
		goleak.IgnoreTopFunction("net/http.(*persistConn).readLoop"),
		goleak.IgnoreTopFunction("net/http.(*persistConn).writeLoop"),
		// started by an init in a transitive dependency of the genai client
		goleak.IgnoreTopFunction("go.opencensus.io/stats/view.(*worker).start"),
		goleak.IgnoreTopFunction("internal/poll.runtime_pollWait"),
	)
}

// fakeService answers every call with a fixed response or error and records
// what it was asked.
type fakeService struct {
	resp *canonical.Response
	err  error

	gotCall bridge.Call
	gotReq  canonical.Request
}

func (f *fakeService) Complete(_ context.Context, call bridge.Call, req canonical.Request) (*canonical.Response, error) {
	f.gotCall = call
	f.gotReq = req
	return f.resp, f.err
}

func (f *fakeService) Models(_ context.Context, key string) ([]string, error) {
	if key != "llmb_good" {
		return nil, bridge.ErrInvalidProxyKey
	}
	return []string{"qwen-max"}, nil
}

type readiness bool

func (r readiness) IsReady(context.Context) bool { return bool(r) }

func okResponse() *canonical.Response {
	return &canonical.Response{
		ID:      "r-1",
		Model:   "qwen-max",
		Choices: []canonical.Choice{canonical.NewChoice("Hello!", canonical.FinishStop)},
		Usage:   canonical.NewUsage(4, 2),
	}
}

func newTestProxy(t *testing.T, svc Service, opts ...Option) http.Handler {
	t.Helper()
	p, err := New(svc, readiness(true), opts...)
	require.NoError(t, err)
	return p.Handler()
}

func do(t *testing.T, h http.Handler, method, path, body string, header http.Header) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	for k, v := range header {
		req.Header[k] = v
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func bearer(key string) http.Header {
	return http.Header{"Authorization": {"Bearer " + key}}
}

func TestChatCompletions_Success(t *testing.T) {
	t.Parallel()

	svc := &fakeService{resp: okResponse()}
	h := newTestProxy(t, svc)

	rec := do(t, h, http.MethodPost, "/v1/chat/completions",
		`{"model":"anything","messages":[{"role":"system","content":"Be terse"},{"role":"user","content":"Hi"}]}`,
		bearer("llmb_good"))

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Equal(t, "chat.completion", out["object"])
	assert.Equal(t, "Hello!", out["choices"].([]any)[0].(map[string]any)["message"].(map[string]any)["content"])
	assert.InDelta(t, 6, out["usage"].(map[string]any)["total_tokens"], 0)

	assert.Equal(t, "llmb_good", svc.gotCall.ProxyKey)
	assert.Equal(t, "openai", string(svc.gotCall.Format))
	assert.Equal(t, "/v1/chat/completions", svc.gotCall.Path)
	assert.Equal(t, 1000, svc.gotReq.MaxTokens)
	require.Len(t, svc.gotReq.Messages, 2)
}

func TestMessages_Success(t *testing.T) {
	t.Parallel()

	svc := &fakeService{resp: okResponse()}
	h := newTestProxy(t, svc)

	rec := do(t, h, http.MethodPost, "/v1/messages",
		`{"model":"claude","max_tokens":64,"system":"Be terse","messages":[{"role":"user","content":"Hi"}]}`,
		http.Header{"X-Api-Key": {"llmb_good"}})

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.JSONEq(t, `{
		"id": "r-1",
		"type": "message",
		"role": "assistant",
		"content": [{"type": "text", "text": "Hello!"}],
		"model": "qwen-max",
		"stop_reason": "end_turn",
		"stop_sequence": null,
		"usage": {"input_tokens": 4, "output_tokens": 2}
	}`, rec.Body.String())

	assert.Equal(t, "anthropic", string(svc.gotCall.Format))
	assert.Equal(t, canonical.RoleSystem, svc.gotReq.Messages[0].Role)
	assert.Equal(t, 64, svc.gotReq.MaxTokens)
}

func TestMessages_AcceptsBearer(t *testing.T) {
	t.Parallel()

	svc := &fakeService{resp: okResponse()}
	rec := do(t, newTestProxy(t, svc), http.MethodPost, "/v1/messages",
		`{"model":"claude","messages":[{"role":"user","content":"Hi"}]}`, bearer("llmb_good"))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "llmb_good", svc.gotCall.ProxyKey)
}

func TestErrors_UseCallerDialect(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		path       string
		header     http.Header
		body       string
		err        error
		wantStatus int
		wantType   string
	}{
		{"openai missing key", "/v1/chat/completions", nil, `{}`, nil, 401, "authentication_error"},
		{"anthropic missing key", "/v1/messages", nil, `{}`, nil, 401, "authentication_error"},
		{"openai bad json", "/v1/chat/completions", bearer("k"), `{`, nil, 400, "invalid_request_error"},
		{"anthropic invalid", "/v1/messages", http.Header{"X-Api-Key": {"k"}}, `{"model":"m","messages":[]}`, nil, 400, "invalid_request_error"},
		{"openai unknown key", "/v1/chat/completions", bearer("k"), `{"model":"m","messages":[{"role":"user","content":"x"}]}`, bridge.ErrInvalidProxyKey, 401, "authentication_error"},
		{"anthropic rate limit", "/v1/messages", http.Header{"X-Api-Key": {"k"}}, `{"model":"m","messages":[{"role":"user","content":"x"}]}`, &bridge.RateLimitError{PerMinute: 1}, 429, "rate_limit_error"},
		{"openai vendor error", "/v1/chat/completions", bearer("k"), `{"model":"m","messages":[{"role":"user","content":"x"}]}`, &provider.ProviderError{Provider: "gemini", Status: 403, Body: `{"error":{"message":"API key not valid"}}`}, 400, "invalid_request_error"},
		{"anthropic internal", "/v1/messages", http.Header{"X-Api-Key": {"k"}}, `{"model":"m","messages":[{"role":"user","content":"x"}]}`, errors.New("db exploded"), 500, "api_error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			rec := do(t, newTestProxy(t, &fakeService{err: tt.err}), http.MethodPost, tt.path, tt.body, tt.header)
			require.Equal(t, tt.wantStatus, rec.Code, rec.Body.String())

			var env struct {
				Type  string `json:"type"`
				Error struct {
					Type    string `json:"type"`
					Message string `json:"message"`
				} `json:"error"`
			}
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
			assert.Equal(t, tt.wantType, env.Error.Type)
			assert.NotEmpty(t, env.Error.Message)
			assert.NotContains(t, env.Error.Message, "db exploded")
			if strings.HasPrefix(tt.path, "/v1/messages") {
				assert.Equal(t, "error", env.Type)
			}
		})
	}
}

func TestRequestSizeLimit(t *testing.T) {
	t.Parallel()

	h := newTestProxy(t, &fakeService{resp: okResponse()}, WithMaxRequestBytes(64))
	body := `{"model":"m","messages":[{"role":"user","content":"` + strings.Repeat("x", 200) + `"}]}`

	rec := do(t, h, http.MethodPost, "/v1/chat/completions", body, bearer("k"))
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestModels(t *testing.T) {
	t.Parallel()

	h := newTestProxy(t, &fakeService{})

	rec := do(t, h, http.MethodGet, "/v1/models", "", bearer("llmb_good"))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"object":"list","data":[{"id":"qwen-max","object":"model","created":1677610602,"owned_by":"llmbridge"}]}`, rec.Body.String())

	rec = do(t, h, http.MethodGet, "/v1/models", "", http.Header{"X-Api-Key": {"llmb_good"}})
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, h, http.MethodGet, "/v1/models", "", bearer("llmb_bad"))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = do(t, h, http.MethodGet, "/v1/models", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestHealth(t *testing.T) {
	t.Parallel()

	ready, err := New(&fakeService{}, readiness(true))
	require.NoError(t, err)
	notReady, err := New(&fakeService{}, readiness(false))
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, do(t, ready.Handler(), http.MethodGet, "/health/liveness", "", nil).Code)
	assert.Equal(t, http.StatusOK, do(t, ready.Handler(), http.MethodGet, "/health/readiness", "", nil).Code)
	assert.Equal(t, http.StatusOK, do(t, notReady.Handler(), http.MethodGet, "/health/liveness", "", nil).Code)
	assert.Equal(t, http.StatusServiceUnavailable, do(t, notReady.Handler(), http.MethodGet, "/health/readiness", "", nil).Code)
}

func TestMetricsEndpoint(t *testing.T) {
	t.Parallel()

	rec := do(t, newTestProxy(t, &fakeService{}), http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "llmbridge_ratelimit_rejected_total")
}

func TestRouting_MethodNotAllowed(t *testing.T) {
	t.Parallel()

	rec := do(t, newTestProxy(t, &fakeService{}), http.MethodGet, "/v1/chat/completions", "", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestRequestID_PropagatesClientValue(t *testing.T) {
	t.Parallel()

	h := newTestProxy(t, &fakeService{})
	rec := do(t, h, http.MethodGet, "/health/liveness", "", http.Header{"X-Request-Id": {"client-123"}})
	assert.Equal(t, "client-123", rec.Header().Get("X-Request-ID"))
}

type panicService struct{ fakeService }

func (panicService) Complete(context.Context, bridge.Call, canonical.Request) (*canonical.Response, error) {
	panic("boom")
}

func TestRecovery(t *testing.T) {
	t.Parallel()

	rec := do(t, newTestProxy(t, &panicService{}), http.MethodPost, "/v1/chat/completions",
		`{"model":"m","messages":[{"role":"user","content":"x"}]}`, bearer("k"))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestStartShutdown(t *testing.T) {
	t.Parallel()

	p, err := New(&fakeService{}, readiness(true))
	require.NoError(t, err)

	errCh, err := p.Start(t.Context(), "127.0.0.1:0")
	require.NoError(t, err)
	require.NoError(t, p.Shutdown(context.Background()))

	_, open := <-errCh
	assert.False(t, open)
}

func TestNew_RequiresDependencies(t *testing.T) {
	t.Parallel()

	_, err := New(nil, readiness(true))
	require.Error(t, err)
	_, err = New(&fakeService{}, nil)
	require.Error(t, err)
}
