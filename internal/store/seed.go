package store

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"gopkg.in/yaml.v3"
)

// Sealer encrypts plaintext secrets before they are stored.
type Sealer interface {
	Seal(plaintext string) (string, error)
}

// Seed is the YAML document accepted by ApplySeed.
//
//	credentials:
//	  - name: team-openai
//	    provider: openai
//	    secret: sk-...
//	    validated: true
//	    models:
//	      - model_name: gpt-4o-mini
//	        target_format: openai
//	        proxy_key: llmb_...
//	        rate_limit: 60
type Seed struct {
	Credentials []SeedCredential `yaml:"credentials"`
}

type SeedCredential struct {
	Name         string      `yaml:"name"`
	Provider     string      `yaml:"provider"`
	Secret       string      `yaml:"secret"`
	BaseURL      string      `yaml:"base_url"`
	CustomModels []string    `yaml:"custom_models"`
	Active       *bool       `yaml:"active"`
	Validated    bool        `yaml:"validated"`
	Models       []SeedModel `yaml:"models"`
}

type SeedModel struct {
	ModelName    string `yaml:"model_name"`
	TargetFormat Format `yaml:"target_format"`
	ProxyKey     string `yaml:"proxy_key"`
	RateLimit    int    `yaml:"rate_limit"`
	Enabled      *bool  `yaml:"enabled"`
}

// ParseSeed decodes a seed document. Unknown fields are rejected.
func ParseSeed(r io.Reader) (*Seed, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var seed Seed
	if err := dec.Decode(&seed); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decoding seed: %w", err)
	}
	for i, c := range seed.Credentials {
		if c.Name == "" || c.Provider == "" || c.Secret == "" {
			return nil, fmt.Errorf("seed credential %d: name, provider and secret are required", i)
		}
		for j, m := range c.Models {
			if m.ModelName == "" || m.ProxyKey == "" {
				return nil, fmt.Errorf("seed credential %q model %d: model_name and proxy_key are required", c.Name, j)
			}
			if !m.TargetFormat.Valid() {
				return nil, fmt.Errorf("seed credential %q model %d: unknown target_format %q", c.Name, j, m.TargetFormat)
			}
		}
	}
	return &seed, nil
}

// ApplySeed inserts the seed's credentials and model configs. Records whose
// name or proxy key already exist are left untouched, so applying the same
// seed twice is a no-op.
func ApplySeed(ctx context.Context, s Store, sealer Sealer, seed *Seed) error {
	existing, err := s.ListCredentials(ctx)
	if err != nil {
		return err
	}
	byName := make(map[string]string, len(existing))
	for _, c := range existing {
		byName[c.Name] = c.ID
	}

	for _, sc := range seed.Credentials {
		id, ok := byName[sc.Name]
		if !ok {
			sealed, err := sealer.Seal(sc.Secret)
			if err != nil {
				return fmt.Errorf("sealing secret for %q: %w", sc.Name, err)
			}
			c := &Credential{
				Name:            sc.Name,
				Provider:        sc.Provider,
				SecretEncrypted: sealed,
				BaseURL:         sc.BaseURL,
				CustomModels:    sc.CustomModels,
				Active:          boolOr(sc.Active, true),
				Validated:       sc.Validated,
			}
			if err := s.CreateCredential(ctx, c); err != nil {
				return fmt.Errorf("creating credential %q: %w", sc.Name, err)
			}
			id = c.ID
			slog.InfoContext(ctx, "seeded credential", "name", sc.Name, "provider", sc.Provider)
		}

		for _, sm := range sc.Models {
			m := &ModelConfig{
				CredentialID: id,
				ModelName:    sm.ModelName,
				TargetFormat: sm.TargetFormat,
				Enabled:      boolOr(sm.Enabled, true),
				ProxyKey:     sm.ProxyKey,
				RateLimit:    sm.RateLimit,
			}
			err := s.CreateModelConfig(ctx, m)
			if errors.Is(err, ErrConflict) {
				continue
			}
			if err != nil {
				return fmt.Errorf("creating model config %q for %q: %w", sm.ModelName, sc.Name, err)
			}
		}
	}
	return nil
}

func boolOr(v *bool, def bool) bool {
	if v == nil {
		return def
	}
	return *v
}
