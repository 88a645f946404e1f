package observability

import "github.com/prometheus/client_golang/prometheus"

// LLMBuckets defines histogram buckets suited for LLM inference latencies,
// ranging from 100ms to 120s.
var LLMBuckets = []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120}

var (
	// RequestsTotal counts proxied caller requests by caller format and outcome.
	RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "llmbridge_requests_total",
			Help: "Proxied requests",
		},
		[]string{"format", "status"},
	)

	// ProviderRequestsTotal counts calls sent to upstream vendors.
	ProviderRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "llmbridge_provider_requests_total",
			Help: "Provider requests",
		},
		[]string{"provider", "outcome"},
	)

	// ProviderLatency records upstream vendor latency in seconds.
	ProviderLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "llmbridge_provider_latency_seconds",
			Help:    "Provider latency",
			Buckets: LLMBuckets,
		},
		[]string{"provider"},
	)

	// ProviderTokensTotal counts tokens by direction (input/output).
	ProviderTokensTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "llmbridge_provider_tokens_total",
			Help: "Token count",
		},
		[]string{"provider", "model", "direction"},
	)

	// RateLimitRejectedTotal counts requests rejected by the per-key limiter.
	RateLimitRejectedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "llmbridge_ratelimit_rejected_total",
			Help: "Rate limit rejections",
		},
	)

	// CredentialValidationsTotal counts model probes by outcome.
	CredentialValidationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "llmbridge_credential_validations_total",
			Help: "Credential model probes",
		},
		[]string{"provider", "valid"},
	)

	// UsageMismatchTotal counts responses whose reported token total differs
	// from prompt plus completion.
	UsageMismatchTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "llmbridge_usage_mismatch_total",
			Help: "Vendor usage totals that disagree with the summed counts",
		},
		[]string{"provider"},
	)
)

func init() {
	prometheus.MustRegister(
		RequestsTotal,
		ProviderRequestsTotal,
		ProviderLatency,
		ProviderTokensTotal,
		RateLimitRejectedTotal,
		CredentialValidationsTotal,
		UsageMismatchTotal,
	)
}
