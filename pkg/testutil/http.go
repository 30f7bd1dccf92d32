// Package testutil provides helpers for handler and integration tests.
package testutil

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"casetrail/pkg/platform/httputil"
)

// NewJSONRequest builds a request whose body is the raw JSON text body. An
// empty body sends no payload.
func NewJSONRequest(t *testing.T, method, path, body string) *http.Request {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = bytes.NewBufferString(body)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	return req
}

// DoRequest serves req with handler and returns the recorder.
func DoRequest(handler http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

// DecodeResponse decodes the response body into T, failing the test on error.
func DecodeResponse[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), "failed to decode response: %s", rec.Body.String())
	return out
}

// AssertError checks the status and the error code of an ErrorResponse body
// and returns the decoded body.
func AssertError(t *testing.T, rec *httptest.ResponseRecorder, status int, code string) httputil.ErrorResponse {
	t.Helper()
	assert.Equal(t, status, rec.Code, "unexpected status code")
	body := DecodeResponse[httputil.ErrorResponse](t, rec)
	assert.Equal(t, code, body.Error, "unexpected error code")
	return body
}
