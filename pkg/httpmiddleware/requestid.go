package httpmiddleware

import (
	"context"
	"net/http"

	"github.com/google/uuid"
)

const maxRequestIDLen = 128

type requestIDKey struct{}

// RequestIDFromContext returns the id assigned by RequestID, or "".
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// RequestID tags every request with an id, echoed in X-Request-ID. A
// caller-supplied X-Request-ID (or X-Correlation-ID from proxies that use
// that name) is kept when it is short printable ASCII; anything else is
// replaced so it cannot forge log lines.
func RequestID() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := incomingRequestID(r)
			if id == "" {
				id = uuid.NewString()
			}
			w.Header().Set("X-Request-ID", id)
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey{}, id)))
		})
	}
}

func incomingRequestID(r *http.Request) string {
	for _, h := range []string{"X-Request-ID", "X-Correlation-ID"} {
		if id := r.Header.Get(h); printableASCII(id, maxRequestIDLen) {
			return id
		}
	}
	return ""
}

func printableASCII(s string, maxLen int) bool {
	if s == "" || len(s) > maxLen {
		return false
	}
	for i := range len(s) {
		if c := s[i]; c < ' ' || c > '~' {
			return false
		}
	}
	return true
}
