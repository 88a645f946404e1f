package provider

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/tidwall/gjson"
)

// maxErrorBody bounds how much of a vendor error body is echoed in messages.
const maxErrorBody = 512

// ConfigurationError reports a credential or endpoint setup the adapter cannot work with.
type ConfigurationError struct {
	Provider string
	Reason   string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("%s: invalid configuration: %s", e.Provider, e.Reason)
}

// UnsupportedProviderError reports an unknown provider id.
type UnsupportedProviderError struct {
	Provider  string
	Supported []string
}

func (e *UnsupportedProviderError) Error() string {
	return fmt.Sprintf("unsupported provider %q (supported: %s)", e.Provider, strings.Join(e.Supported, ", "))
}

// ProviderError reports a non-success answer from the vendor.
type ProviderError struct {
	Provider string
	Status   int
	Body     string
}

func (e *ProviderError) Error() string {
	body := e.Body
	if len(body) > maxErrorBody {
		body = body[:maxErrorBody] + "..."
	}
	return fmt.Sprintf("%s: upstream returned status %d: %s", e.Provider, e.Status, body)
}

// Message extracts the vendor's human-readable error message from the body,
// falling back to the HTTP status text.
func (e *ProviderError) Message() string {
	for _, path := range []string{"error.message", "message", "error_msg", "error"} {
		if r := gjson.Get(e.Body, path); r.Type == gjson.String && r.String() != "" {
			return r.String()
		}
	}
	return http.StatusText(e.Status)
}

// TransportError reports a connection-level failure or timeout.
// The wrapped error never carries the request URL.
type TransportError struct {
	Provider string
	Err      error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: transport failure: %v", e.Provider, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}
