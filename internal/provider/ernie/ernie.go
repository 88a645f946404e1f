// Package ernie implements the adapter for Baidu's ERNIE chat API. Calls are
// authorized by an access token obtained through a client-credentials
// exchange and passed as the access_token query parameter.
package ernie

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/tidwall/gjson"

	"github.com/florianilch/llmbridge/internal/canonical"
	"github.com/florianilch/llmbridge/internal/provider"
	"github.com/florianilch/llmbridge/internal/tokensource"
)

const (
	// ID is the provider id of this adapter.
	ID = "ernie"

	// TokenURL is Baidu's OAuth token endpoint.
	TokenURL = "https://aip.baidubce.com/oauth/2.0/token"

	defaultBaseURL  = "https://aip.baidubce.com/rpc/2.0/ai_custom/v1"
	defaultEndpoint = "wenxinworkshop/chat/completions"
	probeModel      = "ERNIE-Bot"
)

var catalog = []string{
	"ERNIE-Bot",
	"ERNIE-Bot-turbo",
	"ERNIE-Bot-4",
	"ERNIE-Speed",
	"ERNIE-Lite",
	"ERNIE-Tiny",
}

// endpoints routes catalog models to their service path. Unknown models use
// the default ERNIE-Bot path.
var endpoints = map[string]string{
	"ERNIE-Bot":       "wenxinworkshop/chat/completions",
	"ERNIE-Bot-turbo": "wenxinworkshop/chat/eb-instant",
	"ERNIE-Bot-4":     "wenxinworkshop/chat/completions_pro",
	"ERNIE-Speed":     "wenxinworkshop/chat/ernie_speed",
	"ERNIE-Lite":      "wenxinworkshop/chat/ernie-lite-8k",
	"ERNIE-Tiny":      "wenxinworkshop/chat/ernie-tiny-8k",
}

// Token errors signal a stale or revoked access token.
const (
	errCodeTokenInvalid = 110
	errCodeTokenExpired = 111
)

// Adapter talks to ERNIE with a "apiKey:secretKey" credential.
type Adapter struct {
	provider.Base
	tokens *tokensource.ClientCredentials
}

var _ provider.Adapter = (*Adapter)(nil)

// New creates an ERNIE adapter. The secret must be "apiKey:secretKey".
func New(cred provider.Credential, opts ...provider.Option) (*Adapter, error) {
	apiKey, secretKey := provider.SplitSecret(cred.Secret)
	if apiKey == "" || secretKey == "" {
		return nil, &provider.ConfigurationError{Provider: ID, Reason: `secret must be "apiKey:secretKey"`}
	}

	s := provider.ApplyOptions(opts)
	base, err := provider.NewBase(ID, cred, defaultBaseURL, s)
	if err != nil {
		return nil, err
	}

	tokenURL := s.TokenURL
	if tokenURL == "" {
		tokenURL = TokenURL
	}

	return &Adapter{
		Base:   base,
		tokens: tokensource.NewClientCredentials(base.Client, tokenURL, apiKey, secretKey),
	}, nil
}

// DefaultBaseURL returns the public ERNIE endpoint.
func (a *Adapter) DefaultBaseURL() (string, error) {
	return defaultBaseURL, nil
}

// Headers carry no credentials; the token travels in the query string.
func (a *Adapter) Headers() http.Header {
	return provider.JSONHeaders()
}

type chatRequest struct {
	Messages        []canonical.Message `json:"messages"`
	Temperature     float64             `json:"temperature"`
	MaxOutputTokens int                 `json:"max_output_tokens"`
	Stream          bool                `json:"stream,omitempty"`
}

// BuildRequest merges the system prompt into the first user turn.
func (a *Adapter) BuildRequest(req canonical.Request) (provider.Outbound, error) {
	system, rest := canonical.ExtractSystemMessage(req.Messages)

	body, err := json.Marshal(chatRequest{
		Messages:        canonical.MergeSystemIntoFirstUser(system, rest),
		Temperature:     req.Temperature,
		MaxOutputTokens: req.MaxTokens,
		Stream:          req.Stream,
	})
	if err != nil {
		return provider.Outbound{}, fmt.Errorf("encoding chat request: %w", err)
	}

	endpoint, ok := endpoints[req.Model]
	if !ok {
		endpoint = defaultEndpoint
	}
	return provider.Outbound{Endpoint: endpoint, Body: body}, nil
}

// ParseResponse reads the flat result envelope.
func (a *Adapter) ParseResponse(body []byte, requestedModel string) (*canonical.Response, error) {
	if !gjson.ValidBytes(body) {
		return nil, errors.New("response is not valid JSON")
	}
	parsed := gjson.ParseBytes(body)

	reason := canonical.FinishStop
	if parsed.Get("is_truncated").Bool() {
		reason = canonical.FinishLength
	}

	return &canonical.Response{
		ID:      parsed.Get("id").String(),
		Model:   requestedModel,
		Choices: []canonical.Choice{canonical.NewChoice(parsed.Get("result").String(), reason)},
		Usage: provider.CheckUsage(ID,
			int(parsed.Get("usage.prompt_tokens").Int()),
			int(parsed.Get("usage.completion_tokens").Int()),
			int(parsed.Get("usage.total_tokens").Int()),
		),
	}, nil
}

// ListModels returns the custom allow-list or the static catalog.
func (a *Adapter) ListModels(context.Context) ([]string, error) {
	return a.Models(catalog), nil
}

// ValidateCredential exchanges a token and sends a minimal message for model.
func (a *Adapter) ValidateCredential(ctx context.Context, model string) provider.Validation {
	if model == "" {
		model = probeModel
	}
	return provider.Probe(ctx, a, model)
}

// Call obtains an access token and posts the body. ERNIE reports failures
// in a 200 body; those become *provider.ProviderError, and token errors
// evict the cached token.
func (a *Adapter) Call(ctx context.Context, out provider.Outbound) ([]byte, error) {
	token, err := a.tokens.Token(ctx)
	if err != nil {
		var exErr *tokensource.ExchangeError
		if errors.As(err, &exErr) {
			return nil, &provider.ProviderError{Provider: ID, Status: exErr.Status, Body: exErr.Body}
		}
		return nil, &provider.TransportError{Provider: ID, Err: err}
	}

	u := a.URL(out.Endpoint, url.Values{"access_token": {token.AccessToken}})
	body, err := a.Do(ctx, http.MethodPost, u, a.Headers(), out.Body)
	if err != nil {
		return nil, err
	}

	if code := gjson.GetBytes(body, "error_code"); code.Exists() {
		status := http.StatusBadRequest
		if c := code.Int(); c == errCodeTokenInvalid || c == errCodeTokenExpired {
			a.tokens.Invalidate()
			status = http.StatusUnauthorized
		}
		return nil, &provider.ProviderError{Provider: ID, Status: status, Body: string(body)}
	}
	return body, nil
}
