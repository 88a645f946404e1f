package proxy

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/florianilch/llmbridge/internal/bridge"
	"github.com/florianilch/llmbridge/internal/canonical"
	"github.com/florianilch/llmbridge/internal/clientapi"
	"github.com/florianilch/llmbridge/internal/observability/middleware"
	"github.com/florianilch/llmbridge/internal/store"
)

// dialect binds one caller wire format to the shared completion flow.
type dialect struct {
	format      store.Format
	proxyKey    func(r *http.Request) string
	decode      func(r *http.Request) (canonical.Request, error)
	render      func(resp *canonical.Response) any
	renderError func(status int, message string) any
}

// completionsHandler serves one completion endpoint in its dialect.
type completionsHandler struct {
	svc     Service
	dialect dialect
}

var _ http.Handler = (*completionsHandler)(nil)

func (h *completionsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	d := h.dialect

	key := d.proxyKey(r)
	if key == "" {
		h.fail(ctx, w, http.StatusUnauthorized, "missing API key")
		return
	}

	req, err := d.decode(r)
	if err != nil {
		status, msg := decodeFailure(err)
		slog.WarnContext(ctx, "rejected request body", "error", err)
		h.fail(ctx, w, status, msg)
		return
	}

	if ctx.Err() != nil {
		return
	}
	resp, err := h.svc.Complete(ctx, bridge.Call{
		ProxyKey: key,
		Format:   d.format,
		Method:   r.Method,
		Path:     r.URL.Path,
	}, req)
	if err != nil {
		status := bridge.HTTPStatus(err)
		if status == http.StatusInternalServerError {
			slog.ErrorContext(ctx, "request failed", "error", err)
		}
		h.fail(ctx, w, status, bridge.PublicMessage(err))
		return
	}

	middleware.SetLogAttrs(ctx, slog.String("model", resp.Model))
	writeJSON(ctx, w, d.render(resp), http.StatusOK)
}

func (h *completionsHandler) fail(ctx context.Context, w http.ResponseWriter, status int, message string) {
	writeJSON(ctx, w, h.dialect.renderError(status, message), status)
}

func openAIDialect(now func() time.Time) dialect {
	return dialect{
		format:   store.FormatOpenAI,
		proxyKey: bearerToken,
		decode: func(r *http.Request) (canonical.Request, error) {
			var req clientapi.ChatCompletionRequest
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				return canonical.Request{}, err
			}
			return req.Canonical()
		},
		render: func(resp *canonical.Response) any {
			return clientapi.NewChatCompletion(resp, now())
		},
		renderError: func(status int, message string) any {
			return clientapi.NewOpenAIError(status, message)
		},
	}
}

func anthropicDialect() dialect {
	return dialect{
		format:   store.FormatAnthropic,
		proxyKey: apiKey,
		decode: func(r *http.Request) (canonical.Request, error) {
			var req clientapi.MessagesRequest
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				return canonical.Request{}, err
			}
			return req.Canonical()
		},
		render: func(resp *canonical.Response) any {
			return clientapi.NewMessage(resp)
		},
		renderError: func(status int, message string) any {
			return clientapi.NewAnthropicError(status, message)
		},
	}
}

// decodeFailure maps a body decoding or validation error to a status and a
// caller-safe message.
func decodeFailure(err error) (int, string) {
	var (
		maxBytesErr *http.MaxBytesError
		invalid     *clientapi.InvalidRequestError
	)
	switch {
	case errors.As(err, &maxBytesErr):
		return http.StatusRequestEntityTooLarge, http.StatusText(http.StatusRequestEntityTooLarge)
	case errors.As(err, &invalid):
		return http.StatusBadRequest, invalid.Error()
	default:
		return http.StatusBadRequest, "request body is not valid JSON"
	}
}

// bearerToken returns the token of an "Authorization: Bearer" header.
func bearerToken(r *http.Request) string {
	scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

// apiKey returns the x-api-key header, falling back to a bearer token.
func apiKey(r *http.Request) string {
	if k := strings.TrimSpace(r.Header.Get("X-Api-Key")); k != "" {
		return k
	}
	return bearerToken(r)
}

// modelsHandler lists the models a proxy key may use. Either auth header is accepted.
func modelsHandler(svc Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		key := apiKey(r)
		if key == "" {
			writeJSON(ctx, w, clientapi.NewOpenAIError(http.StatusUnauthorized, "missing API key"), http.StatusUnauthorized)
			return
		}

		models, err := svc.Models(ctx, key)
		if err != nil {
			status := bridge.HTTPStatus(err)
			writeJSON(ctx, w, clientapi.NewOpenAIError(status, bridge.PublicMessage(err)), status)
			return
		}
		writeJSON(ctx, w, clientapi.NewModelList(models), http.StatusOK)
	}
}
