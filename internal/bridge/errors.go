package bridge

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/florianilch/llmbridge/internal/provider"
)

var (
	// ErrInvalidProxyKey means the proxy key is unknown or its config is disabled.
	ErrInvalidProxyKey = errors.New("invalid or disabled API key")

	// ErrCredentialUnavailable means the backing credential is inactive,
	// unvalidated or missing.
	ErrCredentialUnavailable = errors.New("invalid or inactive credential")

	// ErrStreamingUnsupported rejects stream=true requests.
	ErrStreamingUnsupported = errors.New("streaming is not supported")
)

// RateLimitError is returned when a proxy key exhausted its per-minute budget.
type RateLimitError struct {
	PerMinute int
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limit exceeded: %d requests per minute", e.PerMinute)
}

// HTTPStatus maps an orchestration error to the status a caller sees.
// Vendor failures surface as 400; anything unclassified is 500.
func HTTPStatus(err error) int {
	var (
		rateErr        *RateLimitError
		provErr        *provider.ProviderError
		transportErr   *provider.TransportError
		cfgErr         *provider.ConfigurationError
		unsupportedErr *provider.UnsupportedProviderError
	)
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrInvalidProxyKey):
		return http.StatusUnauthorized
	case errors.As(err, &rateErr):
		return http.StatusTooManyRequests
	case errors.Is(err, ErrCredentialUnavailable),
		errors.Is(err, ErrStreamingUnsupported),
		errors.As(err, &provErr),
		errors.As(err, &transportErr),
		errors.As(err, &cfgErr),
		errors.As(err, &unsupportedErr):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// PublicMessage returns the text safe to show a caller for err. Unclassified
// errors are reduced to a generic message.
func PublicMessage(err error) string {
	if HTTPStatus(err) == http.StatusInternalServerError {
		return "internal server error"
	}
	var provErr *provider.ProviderError
	if errors.As(err, &provErr) {
		return fmt.Sprintf("request failed: %s returned %d: %s", provErr.Provider, provErr.Status, provErr.Message())
	}
	return err.Error()
}
