package proxy

import (
	"log/slog"
	"net/http"
	"runtime/debug"

	"github.com/florianilch/llmbridge/internal/clientapi"
)

// Recovery answers handler panics with a 500 in the OpenAI error envelope.
// http.ErrAbortHandler is re-raised so the server can abort the connection.
func Recovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if rec == http.ErrAbortHandler {
				panic(rec)
			}
			slog.ErrorContext(r.Context(), "handler panic", "panic", rec, "stack", string(debug.Stack()))
			writeJSON(r.Context(), w,
				clientapi.NewOpenAIError(http.StatusInternalServerError, http.StatusText(http.StatusInternalServerError)),
				http.StatusInternalServerError)
		}()

		next.ServeHTTP(w, r)
	})
}

// RequestSizeLimit caps request bodies. Handlers that read past the limit
// receive *http.MaxBytesError.
func RequestSizeLimit(maxBytes int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
			next.ServeHTTP(w, r)
		})
	}
}

// applyMiddlewares wraps h so the first middleware runs outermost.
func applyMiddlewares(h http.Handler, middlewares ...func(http.Handler) http.Handler) http.Handler {
	for i := len(middlewares) - 1; i >= 0; i-- {
		h = middlewares[i](h)
	}
	return h
}
