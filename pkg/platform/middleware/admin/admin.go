// Package admin guards operator-only routes with a shared token.
package admin

import (
	"crypto/subtle"
	"log/slog"
	"net/http"

	"casetrail/pkg/platform/httputil"
	request "casetrail/pkg/platform/middleware/request"
)

// HeaderToken carries the operator token.
const HeaderToken = "X-Admin-Token"

var errUnauthorized = &httputil.RequestError{
	Status:  http.StatusUnauthorized,
	Code:    "unauthorized",
	Message: "admin token required",
}

// RequireAdminToken answers 401 unless the request carries expectedToken. An
// empty expectedToken denies every request.
func RequireAdminToken(expectedToken string, logger *slog.Logger) func(http.Handler) http.Handler {
	want := []byte(expectedToken)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got := []byte(r.Header.Get(HeaderToken))
			if len(want) == 0 || subtle.ConstantTimeCompare(got, want) != 1 {
				ctx := r.Context()
				logger.WarnContext(ctx, "admin request rejected",
					"request_id", request.GetRequestID(ctx),
					"path", r.URL.Path,
					"token_present", len(got) > 0,
				)
				httputil.WriteError(w, errUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
