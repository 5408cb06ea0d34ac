package trace

import "net/http"

// Header names for HTTP propagation.
const (
	TraceIDHeader = "X-Trace-Id"
	SpanIDHeader  = "X-Span-Id"
)

// Middleware ensures every request carries a trace context. An incoming
// X-Trace-Id continues the caller's trace; otherwise a fresh one is created.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tc := Context{
			TraceID: r.Header.Get(TraceIDHeader),
			SpanID:  generateID(8),
		}
		if tc.TraceID == "" {
			tc.TraceID = generateID(16)
		} else {
			tc.ParentSpanID = r.Header.Get(SpanIDHeader)
		}

		w.Header().Set(TraceIDHeader, tc.TraceID)
		next.ServeHTTP(w, r.WithContext(WithContext(r.Context(), tc)))
	})
}
