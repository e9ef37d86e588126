package security

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net/http"
	"regexp"
)

// RequestIDHeader carries the correlation ID between the edge proxy, this
// service, and the response.
const RequestIDHeader = "X-Request-ID"

// requestIDPattern bounds what an upstream hop may hand us before the value
// is echoed into a response header and the flow logs. Anything outside it is
// discarded as a header-injection attempt.
var requestIDPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]{8,128}$`)

type requestIDContextKey struct{}

// RequestIDMiddleware stamps every sign-in request with a correlation ID. An
// acceptable ID minted by the edge proxy is kept so one sign-in can be traced
// across hops; otherwise a fresh one is minted here. The ID is echoed on the
// response and stored in the request context for the flow's log lines.
func RequestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if !isValidRequestID(id) {
			id = GenerateRequestID()
		}

		w.Header().Set(RequestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(WithRequestID(r.Context(), id)))
	})
}

// GenerateRequestID mints a request ID from 16 random bytes, hex-encoded.
//
// Panics if the system RNG fails.
func GenerateRequestID() string {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		panic(fmt.Sprintf("crypto/rand.Read failed: %v", err))
	}
	return hex.EncodeToString(b)
}

// WithRequestID stores a request ID on the context.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDContextKey{}, id)
}

// GetRequestID returns the request ID stored on the context, or "".
func GetRequestID(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDContextKey{}).(string); ok {
		return id
	}
	return ""
}

func isValidRequestID(id string) bool {
	return requestIDPattern.MatchString(id)
}
