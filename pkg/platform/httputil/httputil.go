// Package httputil holds the JSON response helpers shared by HTTP handlers.
package httputil

import (
	"encoding/json"
	"errors"
	"net/http"

	"casetrail/pkg/platform/sentinel"
)

// ErrorResponse is the body written for every non-2xx response.
type ErrorResponse struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description,omitempty"`
}

// RequestError is a client error with a message safe to return as-is.
type RequestError struct {
	Status  int
	Code    string
	Message string
}

func (e *RequestError) Error() string { return e.Message }

// BadRequest builds a 400 error.
func BadRequest(message string) error {
	return &RequestError{Status: http.StatusBadRequest, Code: "bad_request", Message: message}
}

// WriteJSON writes v with the given status code.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError maps err to a status code and writes an ErrorResponse. Internal
// errors never leak their message.
func WriteError(w http.ResponseWriter, err error) {
	var reqErr *RequestError
	switch {
	case errors.As(err, &reqErr):
		WriteJSON(w, reqErr.Status, ErrorResponse{Error: reqErr.Code, ErrorDescription: reqErr.Message})
	case errors.Is(err, sentinel.ErrNotFound):
		WriteJSON(w, http.StatusNotFound, ErrorResponse{Error: "not_found", ErrorDescription: err.Error()})
	case errors.Is(err, sentinel.ErrUnavailable), errors.Is(err, sentinel.ErrBufferFull):
		WriteJSON(w, http.StatusServiceUnavailable, ErrorResponse{Error: "service_unavailable"})
	default:
		WriteJSON(w, http.StatusInternalServerError, ErrorResponse{Error: "internal_error"})
	}
}
