package requesttime

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"casetrail/pkg/requestcontext"
)

func TestWithClock(t *testing.T) {
	fixed := time.Date(2026, 3, 14, 9, 26, 53, 589793238, time.FixedZone("CET", 3600))

	var seen []time.Time
	h := WithClock(func() time.Time { return fixed })(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		seen = append(seen, requestcontext.Now(r.Context()), requestcontext.Now(r.Context()))
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	want := time.Date(2026, 3, 14, 8, 26, 53, 589793000, time.UTC)
	assert.Equal(t, []time.Time{want, want}, seen)
}
