package provider

import (
	"log/slog"

	"github.com/florianilch/llmbridge/internal/canonical"
	"github.com/florianilch/llmbridge/internal/observability"
)

// CheckUsage builds canonical usage from the vendor's prompt and completion
// counts. The summed total is authoritative; a reported total that disagrees
// is logged and counted, never propagated.
func CheckUsage(provider string, prompt, completion, reportedTotal int) canonical.Usage {
	u := canonical.NewUsage(prompt, completion)
	if !u.Consistent(reportedTotal) {
		slog.Warn("vendor token total disagrees with summed usage",
			"provider", provider,
			"reported_total", reportedTotal,
			"summed_total", u.TotalTokens,
		)
		observability.UsageMismatchTotal.WithLabelValues(provider).Inc()
	}
	return u
}
