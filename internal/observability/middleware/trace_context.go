package middleware

import (
	"log/slog"
	"net/http"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// TraceContext extracts W3C trace context from incoming headers into the
// request context without starting spans, so log records of the request carry
// the caller's trace_id and span_id. A nil propagator uses the global one.
func TraceContext(propagator propagation.TextMapPropagator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p := propagator
			if p == nil {
				p = otel.GetTextMapPropagator()
			}
			ctx := p.Extract(r.Context(), propagation.HeaderCarrier(r.Header))

			if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
				SetLogAttrs(ctx,
					slog.String("trace_id", sc.TraceID().String()),
					slog.String("span_id", sc.SpanID().String()),
				)
			}

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
