// Package provider defines the contract every vendor adapter implements and the
// shared plumbing they are built on: the outbound HTTP client, the error
// taxonomy, and credential probing.
//
// Vendor adapters live in subpackages and are selected by the factory package.
// An adapter is constructed per credential, used for one logical request or
// validation run, and closed afterwards:
//
//	a, err := registry.Create(provider.Credential{Provider: "openai", Secret: key})
//	if err != nil { ... }
//	defer a.Close()
//	resp, err := provider.Complete(ctx, a, req)
package provider

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/florianilch/llmbridge/internal/canonical"
)

// DefaultTimeout is the ceiling applied to every outbound vendor call.
const DefaultTimeout = 60 * time.Second

// Credential is the plaintext material an adapter is constructed from.
// Adapters never mutate or persist it.
type Credential struct {
	// Provider is the provider id the credential was registered for.
	Provider string
	// Secret is the decrypted secret, possibly "primary:secondary" encoded.
	Secret string
	// BaseURL overrides the vendor's default endpoint when non-empty.
	BaseURL string
	// CustomModels, when non-empty, replaces model discovery.
	CustomModels []string
}

// SplitSecret splits "primary:secondary" secret material. Only the first
// separator counts, so secondary may itself contain colons.
func SplitSecret(secret string) (primary, secondary string) {
	primary, secondary, _ = strings.Cut(secret, ":")
	return primary, secondary
}

// Outbound is a vendor wire request ready to be sent.
type Outbound struct {
	// Endpoint is the path relative to the adapter's base URL.
	Endpoint string
	Body     json.RawMessage
}

// Validation is the outcome of a credential probe. It is a value, not an
// error: probes never fail past the adapter boundary.
type Validation struct {
	Valid   bool   `json:"valid"`
	Message string `json:"message,omitempty"`
}

// Adapter translates canonical requests to one vendor's wire format, performs
// the vendor call, and translates the response back.
type Adapter interface {
	// Provider returns the provider id this adapter serves.
	Provider() string

	// DefaultBaseURL returns the vendor's default endpoint, or a
	// *ConfigurationError when the vendor has none.
	DefaultBaseURL() (string, error)

	// Headers returns exactly the headers the vendor expects on a call.
	Headers() http.Header

	// BuildRequest translates a canonical request into the vendor wire body.
	BuildRequest(req canonical.Request) (Outbound, error)

	// ParseResponse translates a vendor response body into canonical form.
	// requestedModel fills the response model when the vendor omits it.
	ParseResponse(body []byte, requestedModel string) (*canonical.Response, error)

	// ListModels returns the credential's custom models when set, otherwise
	// the vendor catalog.
	ListModels(ctx context.Context) ([]string, error)

	// ValidateCredential probes the vendor with a minimal request for model,
	// or the vendor's probe model when model is empty.
	ValidateCredential(ctx context.Context, model string) Validation

	// Call sends a single attempt. Non-2xx answers yield *ProviderError and
	// connection failures or timeouts yield *TransportError.
	Call(ctx context.Context, out Outbound) ([]byte, error)

	// Close releases outbound connection resources.
	Close() error
}
