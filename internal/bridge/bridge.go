// Package bridge orchestrates proxied completions: it resolves a proxy key to
// its model config and credential, builds the vendor adapter, runs the request
// and records the outcome.
//
// The package speaks canonical types only. Caller dialects are decoded and
// rendered by clientapi; bridge enforces that a proxy key is used on the
// endpoint matching its configured format.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/florianilch/llmbridge/internal/canonical"
	"github.com/florianilch/llmbridge/internal/observability"
	"github.com/florianilch/llmbridge/internal/provider"
	"github.com/florianilch/llmbridge/internal/secret"
	"github.com/florianilch/llmbridge/internal/store"
)

// Cipher seals and opens credential secrets.
type Cipher interface {
	Seal(plaintext string) (string, error)
	Open(ciphertext string) (string, error)
}

// Providers constructs adapters. *factory.Registry satisfies it.
type Providers interface {
	Create(cred provider.Credential, opts ...provider.Option) (provider.Adapter, error)
	SupportedProviders() []string
}

// Service is safe for concurrent use.
type Service struct {
	store     store.Store
	cipher    Cipher
	providers Providers

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// New returns a Service over the given store, cipher and adapter registry.
func New(s store.Store, cipher Cipher, providers Providers) *Service {
	return &Service{
		store:     s,
		cipher:    cipher,
		providers: providers,
		limiters:  make(map[string]*rate.Limiter),
	}
}

// Call describes where a proxied request entered the service.
type Call struct {
	ProxyKey string
	Format   store.Format
	Method   string
	Path     string
}

// Complete serves one proxied completion. The request model is replaced by
// the proxy key's configured model before the vendor is called. Keys are
// served on either endpoint; the caller renders the response in call.Format.
func (s *Service) Complete(ctx context.Context, call Call, req canonical.Request) (*canonical.Response, error) {
	start := time.Now()

	cfg, err := s.lookup(ctx, call.ProxyKey)
	if err != nil {
		observability.RequestsTotal.WithLabelValues(string(call.Format), strconv.Itoa(HTTPStatus(err))).Inc()
		return nil, err
	}

	resp, targetProvider, err := s.complete(ctx, cfg, call, req)

	status := HTTPStatus(err)
	observability.RequestsTotal.WithLabelValues(string(call.Format), strconv.Itoa(status)).Inc()

	entry := &store.RequestLog{
		ModelConfigID: cfg.ID,
		Method:        call.Method,
		Path:          call.Path,
		SourceFormat:  call.Format,
		TargetFormat:  targetProvider,
		Status:        status,
		LatencyMS:     time.Since(start).Milliseconds(),
	}
	if resp != nil {
		entry.PromptTokens = resp.Usage.PromptTokens
		entry.CompletionTokens = resp.Usage.CompletionTokens
	}
	if err != nil {
		entry.Error = err.Error()
		slog.WarnContext(ctx, "proxied request failed",
			"proxy_key", secret.Mask(call.ProxyKey),
			"provider", targetProvider,
			"status", status,
			"error", err,
		)
	}
	if logErr := s.store.RecordRequest(context.WithoutCancel(ctx), entry); logErr != nil {
		slog.ErrorContext(ctx, "failed to record request", "error", logErr)
	}

	return resp, err
}

func (s *Service) complete(ctx context.Context, cfg *store.ModelConfig, call Call, req canonical.Request) (*canonical.Response, string, error) {
	if req.Stream {
		return nil, "", ErrStreamingUnsupported
	}
	if !s.allow(cfg) {
		observability.RateLimitRejectedTotal.Inc()
		return nil, "", &RateLimitError{PerMinute: cfg.RateLimit}
	}

	cred, err := s.store.GetCredential(ctx, cfg.CredentialID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, "", ErrCredentialUnavailable
	}
	if err != nil {
		return nil, "", err
	}
	if !cred.Usable() {
		return nil, cred.Provider, ErrCredentialUnavailable
	}

	adapter, err := s.adapter(cred)
	if err != nil {
		return nil, cred.Provider, err
	}
	defer adapter.Close()

	req.Model = cfg.ModelName
	resp, err := provider.Complete(ctx, adapter, req)
	return resp, adapter.Provider(), err
}

func (s *Service) lookup(ctx context.Context, proxyKey string) (*store.ModelConfig, error) {
	if proxyKey == "" {
		return nil, ErrInvalidProxyKey
	}
	cfg, err := s.store.GetModelConfigByProxyKey(ctx, proxyKey)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrInvalidProxyKey
	}
	if err != nil {
		return nil, err
	}
	if !cfg.Enabled {
		return nil, ErrInvalidProxyKey
	}
	return cfg, nil
}

// allow consumes one token from the config's limiter. A budget of zero or
// less is unlimited.
func (s *Service) allow(cfg *store.ModelConfig) bool {
	if cfg.RateLimit <= 0 {
		return true
	}

	s.mu.Lock()
	l, ok := s.limiters[cfg.ID]
	if !ok || l.Burst() != cfg.RateLimit {
		l = rate.NewLimiter(rate.Limit(float64(cfg.RateLimit)/60), cfg.RateLimit)
		s.limiters[cfg.ID] = l
	}
	s.mu.Unlock()

	return l.Allow()
}

// adapter decrypts cred and constructs its adapter. The caller closes it.
func (s *Service) adapter(cred *store.Credential) (provider.Adapter, error) {
	plaintext, err := s.cipher.Open(cred.SecretEncrypted)
	if err != nil {
		return nil, fmt.Errorf("decrypting credential %s: %w", cred.ID, err)
	}
	return s.providers.Create(provider.Credential{
		Provider:     cred.Provider,
		Secret:       plaintext,
		BaseURL:      cred.BaseURL,
		CustomModels: cred.CustomModels,
	})
}

// Models lists the models a proxy key may use.
func (s *Service) Models(ctx context.Context, proxyKey string) ([]string, error) {
	cfg, err := s.lookup(ctx, proxyKey)
	if err != nil {
		return nil, err
	}
	return []string{cfg.ModelName}, nil
}

// Ready reports whether the backing store is reachable.
func (s *Service) Ready(ctx context.Context) error {
	return s.store.Ping(ctx)
}
