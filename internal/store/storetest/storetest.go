// Package storetest is a behavioral test suite shared by store.Store
// implementations.
package storetest

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/florianilch/llmbridge/internal/store"
)

// Run exercises s. Each subtest uses unique names and keys so a single
// database can be shared.
func Run(t *testing.T, s store.Store) {
	t.Helper()
	suffix := time.Now().Format("150405.000000000")

	t.Run("credential lifecycle", func(t *testing.T) {
		ctx := t.Context()

		c := &store.Credential{
			Name:            "primary-" + suffix,
			Provider:        "openai",
			SecretEncrypted: "sealed",
			CustomModels:    []string{"gpt-4o", "gpt-4o-mini"},
			Active:          true,
		}
		require.NoError(t, s.CreateCredential(ctx, c))
		require.NotEmpty(t, c.ID)
		require.False(t, c.CreatedAt.IsZero())

		got, err := s.GetCredential(ctx, c.ID)
		require.NoError(t, err)
		assert.Equal(t, c.Name, got.Name)
		assert.Equal(t, []string{"gpt-4o", "gpt-4o-mini"}, got.CustomModels)
		assert.False(t, got.Validated)
		assert.False(t, got.Usable())

		require.NoError(t, s.UpdateCredentialValidation(ctx, c.ID, true, ""))
		got, err = s.GetCredential(ctx, c.ID)
		require.NoError(t, err)
		assert.True(t, got.Usable())

		require.NoError(t, s.UpdateCredentialValidation(ctx, c.ID, false, "Invalid API key"))
		got, err = s.GetCredential(ctx, c.ID)
		require.NoError(t, err)
		assert.Equal(t, "Invalid API key", got.ValidationError)

		list, err := s.ListCredentials(ctx)
		require.NoError(t, err)
		assert.NotEmpty(t, list)
	})

	t.Run("credential errors", func(t *testing.T) {
		ctx := t.Context()

		_, err := s.GetCredential(ctx, "missing-"+suffix)
		require.ErrorIs(t, err, store.ErrNotFound)
		require.ErrorIs(t, s.UpdateCredentialValidation(ctx, "missing-"+suffix, true, ""), store.ErrNotFound)

		name := "dup-" + suffix
		require.NoError(t, s.CreateCredential(ctx, &store.Credential{Name: name, Provider: "qwen", SecretEncrypted: "x"}))
		err = s.CreateCredential(ctx, &store.Credential{Name: name, Provider: "qwen", SecretEncrypted: "y"})
		require.ErrorIs(t, err, store.ErrConflict)
	})

	t.Run("model config lookup", func(t *testing.T) {
		ctx := t.Context()

		c := &store.Credential{Name: "cfg-" + suffix, Provider: "anthropic", SecretEncrypted: "x", Active: true}
		require.NoError(t, s.CreateCredential(ctx, c))

		m := &store.ModelConfig{
			CredentialID: c.ID,
			ModelName:    "claude-3-haiku-20240307",
			TargetFormat: store.FormatAnthropic,
			Enabled:      true,
			ProxyKey:     "llmb_" + suffix,
			RateLimit:    60,
		}
		require.NoError(t, s.CreateModelConfig(ctx, m))
		require.NotEmpty(t, m.ID)

		got, err := s.GetModelConfigByProxyKey(ctx, m.ProxyKey)
		require.NoError(t, err)
		assert.Equal(t, m.ID, got.ID)
		assert.Equal(t, store.FormatAnthropic, got.TargetFormat)
		assert.Equal(t, 60, got.RateLimit)

		dup := *m
		dup.ID = ""
		require.ErrorIs(t, s.CreateModelConfig(ctx, &dup), store.ErrConflict)

		orphan := &store.ModelConfig{CredentialID: "missing-" + suffix, ProxyKey: "llmb_orphan_" + suffix, TargetFormat: store.FormatOpenAI}
		require.ErrorIs(t, s.CreateModelConfig(ctx, orphan), store.ErrNotFound)

		_, err = s.GetModelConfigByProxyKey(ctx, "llmb_unknown_"+suffix)
		require.ErrorIs(t, err, store.ErrNotFound)

		list, err := s.ListModelConfigs(ctx)
		require.NoError(t, err)
		assert.NotEmpty(t, list)
	})

	t.Run("record request", func(t *testing.T) {
		r := &store.RequestLog{
			Method:       "POST",
			Path:         "/v1/chat/completions",
			SourceFormat: store.FormatOpenAI,
			TargetFormat: "gemini",
			Status:       200,
			LatencyMS:    12,
		}
		require.NoError(t, s.RecordRequest(t.Context(), r))
		assert.NotEmpty(t, r.ID)
	})

	t.Run("ping", func(t *testing.T) {
		require.NoError(t, s.Ping(t.Context()))
	})
}
