package provider

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"

	"golang.org/x/sync/errgroup"

	"github.com/florianilch/llmbridge/internal/canonical"
	"github.com/florianilch/llmbridge/internal/observability"
)

const (
	// ProbeMaxTokens caps the completion length of validation probes.
	ProbeMaxTokens = 50

	probeContent     = "Hi"
	maxParallelProbe = 8
)

// Complete runs one canonical request through a: build, call, parse.
func Complete(ctx context.Context, a Adapter, req canonical.Request) (*canonical.Response, error) {
	out, err := a.BuildRequest(req)
	if err != nil {
		return nil, fmt.Errorf("building %s request: %w", a.Provider(), err)
	}

	body, err := a.Call(ctx, out)
	if err != nil {
		return nil, err
	}

	resp, err := a.ParseResponse(body, req.Model)
	if err != nil {
		return nil, fmt.Errorf("parsing %s response: %w", a.Provider(), err)
	}
	if resp.Model == "" {
		resp.Model = req.Model
	}

	observability.ProviderTokensTotal.WithLabelValues(a.Provider(), resp.Model, "input").Add(float64(resp.Usage.PromptTokens))
	observability.ProviderTokensTotal.WithLabelValues(a.Provider(), resp.Model, "output").Add(float64(resp.Usage.CompletionTokens))

	return resp, nil
}

// Probe sends a minimal completion for model and reports the outcome.
// It never returns an error; failures are captured in the Validation.
func Probe(ctx context.Context, a Adapter, model string) Validation {
	_, err := Complete(ctx, a, canonical.Request{
		Model:       model,
		Messages:    []canonical.Message{{Role: canonical.RoleUser, Content: probeContent}},
		MaxTokens:   ProbeMaxTokens,
		Temperature: 0.7,
	})

	v := Validation{Valid: err == nil}
	if err != nil {
		v.Message = probeMessage(err)
	}
	observability.CredentialValidationsTotal.WithLabelValues(a.Provider(), strconv.FormatBool(v.Valid)).Inc()
	return v
}

func probeMessage(err error) string {
	var provErr *ProviderError
	if errors.As(err, &provErr) {
		return fmt.Sprintf("HTTP %d: %s", provErr.Status, provErr.Body)
	}
	return err.Error()
}

// FailedModel names a model whose probe failed.
type FailedModel struct {
	Model string `json:"model"`
	Error string `json:"error"`
}

// Report aggregates the probes of several models.
type Report struct {
	Valid           bool          `json:"is_valid"`
	AvailableModels []string      `json:"available_models"`
	FailedModels    []FailedModel `json:"failed_models"`
}

// ValidateModels probes every model concurrently and waits for all of them.
// The credential is valid when at least one model answers. Results are
// ordered by model name, independent of completion order.
func ValidateModels(ctx context.Context, a Adapter, models []string) Report {
	results := make([]Validation, len(models))

	var g errgroup.Group
	g.SetLimit(maxParallelProbe)
	for i, model := range models {
		g.Go(func() error {
			results[i] = a.ValidateCredential(ctx, model)
			return nil
		})
	}
	_ = g.Wait()

	report := Report{
		AvailableModels: []string{},
		FailedModels:    []FailedModel{},
	}
	for i, model := range models {
		if results[i].Valid {
			report.AvailableModels = append(report.AvailableModels, model)
			continue
		}
		report.FailedModels = append(report.FailedModels, FailedModel{Model: model, Error: results[i].Message})
	}

	slices.Sort(report.AvailableModels)
	slices.SortFunc(report.FailedModels, func(a, b FailedModel) int {
		return cmp.Compare(a.Model, b.Model)
	})
	report.Valid = len(report.AvailableModels) > 0

	return report
}
