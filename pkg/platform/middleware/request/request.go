// Package request provides middleware that seeds request-scoped values used
// by audit events: the request id and the acting originator.
package request

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"casetrail/pkg/requestcontext"
)

const (
	HeaderRequestID  = "X-Request-ID"
	HeaderOriginator = "X-Originator-ID"

	maxRequestIDLength = 128
)

// RequestID reuses an inbound X-Request-ID when it looks sane, otherwise
// generates one, and echoes it on the response.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := strings.TrimSpace(r.Header.Get(HeaderRequestID))
		if requestID == "" || len(requestID) > maxRequestIDLength {
			requestID = uuid.NewString()
		}
		w.Header().Set(HeaderRequestID, requestID)
		ctx := requestcontext.WithRequestID(r.Context(), requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// Originator stores the X-Originator-ID header as the acting principal.
func Originator(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if originator := strings.TrimSpace(r.Header.Get(HeaderOriginator)); originator != "" {
			r = r.WithContext(requestcontext.WithOriginator(r.Context(), originator))
		}
		next.ServeHTTP(w, r)
	})
}

// GetRequestID retrieves the request id from the context.
func GetRequestID(ctx context.Context) string {
	return requestcontext.RequestID(ctx)
}
