package provider

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/florianilch/llmbridge/internal/observability"
)

const (
	defaultDialTimeout     = 10 * time.Second
	defaultKeepAlive       = 30 * time.Second
	defaultIdleConnTimeout = 90 * time.Second
)

// Settings holds construction options shared by all adapters.
type Settings struct {
	Timeout time.Duration
	// Client replaces the adapter's own HTTP client when set.
	Client *http.Client
	// TokenURL overrides the token endpoint of vendors that exchange
	// credentials for short-lived tokens.
	TokenURL string
}

// Option configures Settings.
type Option func(*Settings)

// WithTimeout sets the per-call ceiling.
func WithTimeout(d time.Duration) Option {
	return func(s *Settings) { s.Timeout = d }
}

// WithHTTPClient makes the adapter use client for all calls.
func WithHTTPClient(client *http.Client) Option {
	return func(s *Settings) { s.Client = client }
}

// WithTokenURL overrides the token exchange endpoint.
func WithTokenURL(u string) Option {
	return func(s *Settings) { s.TokenURL = u }
}

// ApplyOptions resolves opts over the defaults.
func ApplyOptions(opts []Option) Settings {
	s := Settings{Timeout: DefaultTimeout}
	for _, opt := range opts {
		opt(&s)
	}
	if s.Timeout <= 0 {
		s.Timeout = DefaultTimeout
	}
	return s
}

// NewHTTPClient returns the pooled client used for vendor calls.
func NewHTTPClient(timeout time.Duration) *http.Client {
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           (&net.Dialer{Timeout: defaultDialTimeout, KeepAlive: defaultKeepAlive}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          50,
		IdleConnTimeout:       defaultIdleConnTimeout,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}

	return &http.Client{
		Timeout:   timeout,
		Transport: transport,
	}
}

// NewBareHTTPClient returns a client that adds no headers of its own.
// Compression is disabled so the transport does not inject Accept-Encoding.
func NewBareHTTPClient(timeout time.Duration) *http.Client {
	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		DialContext:         (&net.Dialer{Timeout: defaultDialTimeout, KeepAlive: defaultKeepAlive}).DialContext,
		DisableCompression:  true,
		IdleConnTimeout:     defaultIdleConnTimeout,
		TLSHandshakeTimeout: 10 * time.Second,
	}

	return &http.Client{
		Timeout:   timeout,
		Transport: transport,
	}
}

// Base carries what every adapter needs to talk to its vendor.
// Adapters embed it and build their operations on top.
type Base struct {
	Name         string
	BaseURL      string
	Client       *http.Client
	CustomModels []string
}

// NewBase resolves the effective base URL and HTTP client for an adapter.
// An empty defaultURL means the credential must supply one.
func NewBase(name string, cred Credential, defaultURL string, s Settings) (Base, error) {
	baseURL := strings.TrimRight(cred.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultURL
	}
	if baseURL == "" {
		return Base{}, &ConfigurationError{Provider: name, Reason: "base URL is required"}
	}
	if _, err := url.Parse(baseURL); err != nil {
		return Base{}, &ConfigurationError{Provider: name, Reason: "base URL is malformed"}
	}

	client := s.Client
	if client == nil {
		client = NewHTTPClient(s.Timeout)
	}

	return Base{
		Name:         name,
		BaseURL:      baseURL,
		Client:       client,
		CustomModels: slices.Clone(cred.CustomModels),
	}, nil
}

// Provider returns the adapter's provider id.
func (b *Base) Provider() string {
	return b.Name
}

// URL joins endpoint onto the base URL and appends query, if any.
func (b *Base) URL(endpoint string, query url.Values) string {
	u := b.BaseURL + "/" + strings.TrimLeft(endpoint, "/")
	if len(query) == 0 {
		return u
	}
	sep := "?"
	if strings.Contains(u, "?") {
		sep = "&"
	}
	return u + sep + query.Encode()
}

// Models returns the custom model allow-list when present, otherwise catalog.
func (b *Base) Models(catalog []string) []string {
	if len(b.CustomModels) > 0 {
		return slices.Clone(b.CustomModels)
	}
	return slices.Clone(catalog)
}

// Close releases idle connections held by the adapter's client.
func (b *Base) Close() error {
	b.Client.CloseIdleConnections()
	return nil
}

// Do performs a single HTTP exchange and returns the response body.
// Non-2xx answers become *ProviderError and transport failures *TransportError.
func (b *Base) Do(ctx context.Context, method, rawURL string, header http.Header, body []byte) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, rawURL, reader)
	if err != nil {
		return nil, &ConfigurationError{Provider: b.Name, Reason: "cannot build request"}
	}
	req.Header = header.Clone()
	if req.Header == nil {
		req.Header = http.Header{}
	}

	start := time.Now()
	resp, err := b.Client.Do(req)
	observability.ProviderLatency.WithLabelValues(b.Name).Observe(time.Since(start).Seconds())
	if err != nil {
		observability.ProviderRequestsTotal.WithLabelValues(b.Name, "transport_error").Inc()
		return nil, &TransportError{Provider: b.Name, Err: stripURL(err)}
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		observability.ProviderRequestsTotal.WithLabelValues(b.Name, "transport_error").Inc()
		return nil, &TransportError{Provider: b.Name, Err: stripURL(err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		observability.ProviderRequestsTotal.WithLabelValues(b.Name, "provider_error").Inc()
		return nil, &ProviderError{Provider: b.Name, Status: resp.StatusCode, Body: string(respBody)}
	}

	observability.ProviderRequestsTotal.WithLabelValues(b.Name, "ok").Inc()
	return respBody, nil
}

// stripURL drops the request URL from client errors; some vendors carry
// secrets in the query string.
func stripURL(err error) error {
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return urlErr.Err
	}
	return err
}

// JSONHeaders returns the baseline headers of a JSON API call.
func JSONHeaders() http.Header {
	h := http.Header{}
	h.Set("Content-Type", "application/json")
	return h
}
