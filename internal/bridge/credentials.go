package bridge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/florianilch/llmbridge/internal/provider"
	"github.com/florianilch/llmbridge/internal/secret"
	"github.com/florianilch/llmbridge/internal/store"
)

// NewCredential is the operator input for registering a vendor credential.
type NewCredential struct {
	Name         string
	Provider     string
	Secret       string
	BaseURL      string
	CustomModels []string
}

// CredentialView is a credential as shown to operators, secret masked.
type CredentialView struct {
	ID              string    `json:"id"`
	Name            string    `json:"name"`
	Provider        string    `json:"provider"`
	MaskedSecret    string    `json:"masked_secret"`
	BaseURL         string    `json:"base_url,omitempty"`
	CustomModels    []string  `json:"custom_models,omitempty"`
	Active          bool      `json:"is_active"`
	Validated       bool      `json:"is_validated"`
	ValidationError string    `json:"validation_error,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}

// AddCredential seals and stores a credential. It starts active and
// unvalidated; ValidateCredential must succeed before it serves traffic.
func (s *Service) AddCredential(ctx context.Context, in NewCredential) (*store.Credential, error) {
	if strings.TrimSpace(in.Name) == "" || in.Secret == "" {
		return nil, errors.New("name and secret are required")
	}
	supported := s.providers.SupportedProviders()
	if !slices.Contains(supported, in.Provider) {
		return nil, &provider.UnsupportedProviderError{Provider: in.Provider, Supported: supported}
	}

	sealed, err := s.cipher.Seal(in.Secret)
	if err != nil {
		return nil, fmt.Errorf("sealing secret: %w", err)
	}

	c := &store.Credential{
		Name:            in.Name,
		Provider:        in.Provider,
		SecretEncrypted: sealed,
		BaseURL:         in.BaseURL,
		CustomModels:    in.CustomModels,
		Active:          true,
	}
	if err := s.store.CreateCredential(ctx, c); err != nil {
		if errors.Is(err, store.ErrConflict) {
			return nil, fmt.Errorf("credential name %q already exists: %w", in.Name, err)
		}
		return nil, err
	}
	return c, nil
}

// ListCredentials returns every credential with its secret masked.
func (s *Service) ListCredentials(ctx context.Context) ([]CredentialView, error) {
	creds, err := s.store.ListCredentials(ctx)
	if err != nil {
		return nil, err
	}

	views := make([]CredentialView, 0, len(creds))
	for _, c := range creds {
		masked := "***masked***"
		if plaintext, err := s.cipher.Open(c.SecretEncrypted); err == nil {
			masked = secret.Mask(plaintext)
		}
		views = append(views, CredentialView{
			ID:              c.ID,
			Name:            c.Name,
			Provider:        c.Provider,
			MaskedSecret:    masked,
			BaseURL:         c.BaseURL,
			CustomModels:    c.CustomModels,
			Active:          c.Active,
			Validated:       c.Validated,
			ValidationError: c.ValidationError,
			CreatedAt:       c.CreatedAt,
		})
	}
	return views, nil
}

// ValidationResult is a credential validation outcome. Message summarizes
// why an invalid credential failed.
type ValidationResult struct {
	provider.Report
	Message string `json:"error_message,omitempty"`
}

// ValidateCredential probes the credential and persists the outcome.
//
// A credential with custom models has every model probed concurrently and is
// valid when at least one answers. Otherwise the vendor's probe model is used
// and, on success, the vendor catalog is reported as available.
func (s *Service) ValidateCredential(ctx context.Context, id string) (*ValidationResult, error) {
	cred, err := s.store.GetCredential(ctx, id)
	if err != nil {
		return nil, err
	}

	result := s.validate(ctx, cred)

	if err := s.store.UpdateCredentialValidation(ctx, cred.ID, result.Valid, result.Message); err != nil {
		return nil, fmt.Errorf("persisting validation result: %w", err)
	}
	slog.InfoContext(ctx, "credential validated",
		"credential", cred.Name,
		"provider", cred.Provider,
		"valid", result.Valid,
		"available_models", len(result.AvailableModels),
		"failed_models", len(result.FailedModels),
	)
	return result, nil
}

func (s *Service) validate(ctx context.Context, cred *store.Credential) *ValidationResult {
	invalid := func(msg string) *ValidationResult {
		return &ValidationResult{
			Report:  provider.Report{AvailableModels: []string{}, FailedModels: []provider.FailedModel{}},
			Message: msg,
		}
	}

	adapter, err := s.adapter(cred)
	if err != nil {
		return invalid(err.Error())
	}
	defer adapter.Close()

	if len(cred.CustomModels) > 0 {
		result := &ValidationResult{Report: provider.ValidateModels(ctx, adapter, cred.CustomModels)}
		if !result.Valid {
			result.Message = failureSummary(result.FailedModels)
		}
		return result
	}

	v := adapter.ValidateCredential(ctx, "")
	if !v.Valid {
		return invalid(v.Message)
	}

	models, err := adapter.ListModels(ctx)
	if err != nil {
		slog.WarnContext(ctx, "credential valid but model listing failed", "provider", cred.Provider, "error", err)
		models = []string{}
	}
	models = slices.Clone(models)
	slices.Sort(models)
	return &ValidationResult{Report: provider.Report{
		Valid:           true,
		AvailableModels: models,
		FailedModels:    []provider.FailedModel{},
	}}
}

func failureSummary(failed []provider.FailedModel) string {
	parts := make([]string, 0, len(failed))
	for _, f := range failed {
		parts = append(parts, f.Model+": "+f.Error)
	}
	return "no model answered: " + strings.Join(parts, "; ")
}

// IssueRequest describes a proxy key to mint.
type IssueRequest struct {
	CredentialID string
	ModelName    string
	TargetFormat store.Format
	RateLimit    int
}

// IssueProxyKey mints a proxy key bound to one credential and model.
func (s *Service) IssueProxyKey(ctx context.Context, in IssueRequest) (*store.ModelConfig, error) {
	if !in.TargetFormat.Valid() {
		return nil, fmt.Errorf("unknown target format %q", in.TargetFormat)
	}
	if in.ModelName == "" {
		return nil, errors.New("model name is required")
	}
	if in.RateLimit < 0 {
		return nil, errors.New("rate limit must not be negative")
	}
	if _, err := s.store.GetCredential(ctx, in.CredentialID); err != nil {
		return nil, fmt.Errorf("credential %s: %w", in.CredentialID, err)
	}

	key, err := secret.NewProxyKey()
	if err != nil {
		return nil, fmt.Errorf("generating proxy key: %w", err)
	}
	m := &store.ModelConfig{
		CredentialID: in.CredentialID,
		ModelName:    in.ModelName,
		TargetFormat: in.TargetFormat,
		Enabled:      true,
		ProxyKey:     key,
		RateLimit:    in.RateLimit,
	}
	if err := s.store.CreateModelConfig(ctx, m); err != nil {
		return nil, err
	}
	return m, nil
}

// ProxyKeyView is a model config as shown to operators, key masked.
type ProxyKeyView struct {
	ID           string       `json:"id"`
	CredentialID string       `json:"credential_id"`
	ModelName    string       `json:"model_name"`
	TargetFormat store.Format `json:"target_format"`
	Enabled      bool         `json:"is_enabled"`
	MaskedKey    string       `json:"masked_key"`
	RateLimit    int          `json:"rate_limit"`
}

// ListProxyKeys returns every model config with its proxy key masked.
func (s *Service) ListProxyKeys(ctx context.Context) ([]ProxyKeyView, error) {
	configs, err := s.store.ListModelConfigs(ctx)
	if err != nil {
		return nil, err
	}
	views := make([]ProxyKeyView, 0, len(configs))
	for _, m := range configs {
		views = append(views, ProxyKeyView{
			ID:           m.ID,
			CredentialID: m.CredentialID,
			ModelName:    m.ModelName,
			TargetFormat: m.TargetFormat,
			Enabled:      m.Enabled,
			MaskedKey:    secret.Mask(m.ProxyKey),
			RateLimit:    m.RateLimit,
		})
	}
	return views, nil
}
