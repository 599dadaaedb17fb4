package requestid

import (
	"context"
	"net/http"

	"github.com/google/uuid"
)

type contextKey string

const requestIDKey contextKey = "request_id"

// Generate creates a new unique request id.
func Generate() string {
	return uuid.New().String()
}

// ToContext stores a request id in the context.
func ToContext(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

// FromContext returns the request id, or "" when none is set.
func FromContext(ctx context.Context) string {
	if requestID, ok := ctx.Value(requestIDKey).(string); ok {
		return requestID
	}
	return ""
}

// FromRequest returns the request id carried by an HTTP request.
func FromRequest(r *http.Request) string {
	return FromContext(r.Context())
}
