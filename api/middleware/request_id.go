package middleware

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/danielortiz-dev/vendique-backend/pkg/logger"
)

const (
	requestIDHeader = "X-Request-Id"
	maxRequestIDLen = 64
)

// RequestID tags each request with a correlation id. Caller-supplied ids are
// kept when they are short and header-safe so gateway traces line up; anything
// else is replaced with a fresh UUID. The id is echoed back in the response
// and attached to the request-scoped logger.
func RequestID(logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			reqID := acceptRequestID(r.Header.Get(requestIDHeader))
			w.Header().Set(requestIDHeader, reqID)

			ctx := r.Context()
			if logg != nil {
				ctx = logg.WithRequestID(ctx, reqID)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func acceptRequestID(raw string) string {
	if raw == "" || len(raw) > maxRequestIDLen {
		return uuid.NewString()
	}
	for _, c := range raw {
		switch {
		case c >= 'a' && c <= 'z':
		case c >= 'A' && c <= 'Z':
		case c >= '0' && c <= '9':
		case c == '-' || c == '_' || c == '.':
		default:
			return uuid.NewString()
		}
	}
	return raw
}
