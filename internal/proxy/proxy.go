// Package proxy serves the caller-facing HTTP API: OpenAI-style chat
// completions, Anthropic-style messages, model listing, health probes and
// Prometheus metrics.
package proxy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/florianilch/llmbridge/internal/bridge"
	"github.com/florianilch/llmbridge/internal/canonical"
	"github.com/florianilch/llmbridge/internal/observability/middleware"
)

// DefaultMaxRequestBytes bounds inbound request bodies.
const DefaultMaxRequestBytes = 10 << 20

// Service is the orchestration the proxy delegates to. *bridge.Service satisfies it.
type Service interface {
	Complete(ctx context.Context, call bridge.Call, req canonical.Request) (*canonical.Response, error)
	Models(ctx context.Context, proxyKey string) ([]string, error)
}

// ReadinessChecker reports whether the application can serve traffic.
type ReadinessChecker interface {
	IsReady(ctx context.Context) bool
}

// Proxy is the HTTP server.
type Proxy struct {
	server  *http.Server
	handler http.Handler
}

type options struct {
	maxRequestBytes int64
	logger          *slog.Logger
	now             func() time.Time
}

// Option configures a Proxy.
type Option func(*options)

// WithMaxRequestBytes overrides DefaultMaxRequestBytes.
func WithMaxRequestBytes(n int64) Option {
	return func(o *options) {
		if n > 0 {
			o.maxRequestBytes = n
		}
	}
}

// WithLogger sets the request logger. The default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// New builds the route table and middleware stack.
func New(svc Service, health ReadinessChecker, opts ...Option) (*Proxy, error) {
	if svc == nil {
		return nil, errors.New("service is required")
	}
	if health == nil {
		return nil, errors.New("readiness checker is required")
	}

	o := options{maxRequestBytes: DefaultMaxRequestBytes, now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}

	mux := http.NewServeMux()
	mux.Handle("POST /v1/chat/completions", &completionsHandler{svc: svc, dialect: openAIDialect(o.now)})
	mux.Handle("POST /v1/messages", &completionsHandler{svc: svc, dialect: anthropicDialect()})
	mux.Handle("GET /v1/models", modelsHandler(svc))
	mux.Handle("GET /health/liveness", livenessHandler())
	mux.Handle("GET /health/readiness", readinessHandler(health))
	mux.Handle("GET /metrics", promhttp.Handler())

	handler := applyMiddlewares(mux,
		middleware.Logging(o.logger),
		middleware.RequestID,
		middleware.TraceContext(nil),
		Recovery,
		RequestSizeLimit(o.maxRequestBytes),
	)

	return &Proxy{
		handler: handler,
		server: &http.Server{
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}, nil
}

// Handler returns the full middleware-wrapped handler.
func (p *Proxy) Handler() http.Handler {
	return p.handler
}

// Start listens on addr and serves in the background. Bind failures are
// returned directly; later serve failures arrive on the returned channel.
func (p *Proxy) Start(ctx context.Context, addr string) (<-chan error, error) {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listening on %s: %w", addr, err)
	}
	slog.InfoContext(ctx, "proxy listening", "addr", ln.Addr().String())

	errCh := make(chan error, 1)
	go func() {
		defer close(errCh)
		if err := p.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()
	return errCh, nil
}

// Shutdown stops accepting connections and waits for in-flight requests.
func (p *Proxy) Shutdown(ctx context.Context) error {
	return p.server.Shutdown(ctx)
}
