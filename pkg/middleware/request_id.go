package middleware

import (
	"net/http"

	"github.com/Harvard-University-iCommons/canvas-site-wizard/pkg/requestid"
	"github.com/go-chi/chi/v5/middleware"
)

// RequestID takes the id from the x-request-id header (or chi's generated
// one, or a fresh uuid) and injects it into the request context so every
// layer logs the same id.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("x-request-id")
		if requestID == "" {
			requestID = middleware.GetReqID(r.Context())
		}
		if requestID == "" {
			requestID = requestid.Generate()
		}

		next.ServeHTTP(w, r.WithContext(requestid.ToContext(r.Context(), requestID)))
	})
}
