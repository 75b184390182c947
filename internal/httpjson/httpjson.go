// Package httpjson writes JSON bodies and the shared error shape.
package httpjson

import (
	"encoding/json"
	"net/http"
)

// Error codes shared by the auth endpoints and the proxy.
const (
	CodeUnauthenticated     = "unauthenticated"
	CodeInvalidRequest      = "invalid_request"
	CodeInvalidPath         = "invalid_path"
	CodeMethodNotAllowed    = "method_not_allowed"
	CodeInvalidCredentials  = "invalid_credentials"
	CodeMissingCredentials  = "missing_credentials"
	CodeUpstreamUnreachable = "upstream_unreachable"
	CodeUpstreamError       = "upstream_error"
	CodeStoreUnavailable    = "session_store_unavailable"
	CodeRateLimited         = "rate_limited"
	CodeInternal            = "internal_error"
)

// ErrorResponse is the body of every JSON error.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

func Write(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func Error(w http.ResponseWriter, status int, code, message string) {
	Write(w, status, ErrorResponse{Error: code, Message: message})
}
