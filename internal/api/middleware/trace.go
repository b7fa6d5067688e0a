package middleware

import (
	"context"
	"net/http"

	"github.com/google/uuid"
)

const (
	TraceHeader     = "X-Trace-ID"
	requestIDHeader = "X-Request-ID"
)

// TraceMiddleware assigns each request a trace id, taken from X-Trace-ID or
// X-Request-ID when the caller sends one.
func TraceMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		traceID := r.Header.Get(TraceHeader)
		if traceID == "" {
			traceID = r.Header.Get(requestIDHeader)
		}
		if _, err := uuid.Parse(traceID); err != nil {
			traceID = uuid.NewString()
		}
		r.Header.Set(TraceHeader, traceID)
		w.Header().Set(TraceHeader, traceID)
		next.ServeHTTP(w, r.WithContext(contextWithTraceID(r.Context(), traceID)))
	})
}

func contextWithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, traceContextKey, traceID)
}
