// Package requesttime pins one timestamp per request, so every audit event
// raised while serving it carries the same time.
package requesttime

import (
	"net/http"
	"time"

	"casetrail/pkg/requestcontext"
)

// Middleware stamps the request with the current UTC time.
func Middleware(next http.Handler) http.Handler {
	return WithClock(time.Now)(next)
}

// WithClock stamps the request with now(), truncated to microseconds to match
// what Postgres stores.
func WithClock(now func() time.Time) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := requestcontext.WithTime(r.Context(), now().UTC().Truncate(time.Microsecond))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
