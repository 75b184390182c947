package api

import (
	"time"

	"github.com/jmcleod/hubuum-bff/internal/httpjson"
)

// LoginRequest is the JSON body of POST /api/auth/login. Form posts carry
// the same fields plus an optional "next" return path.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// LoginResponse is returned on a successful JSON login.
type LoginResponse struct {
	Status   string `json:"status"`
	Username string `json:"username"`
}

// LogoutResponse is returned by a non-form POST /api/auth/logout.
type LogoutResponse struct {
	Status string `json:"status"`
}

// SessionResponse describes the caller's session. ExpiresAt is omitted in
// standalone mode, where the server keeps no expiry.
type SessionResponse struct {
	Authenticated bool       `json:"authenticated"`
	Username      string     `json:"username,omitempty"`
	Mode          string     `json:"mode"`
	CreatedAt     *time.Time `json:"created_at,omitempty"`
	LastSeen      *time.Time `json:"last_seen,omitempty"`
	ExpiresAt     *time.Time `json:"expires_at,omitempty"`
}

// ErrorResponse is the body of every JSON error the BFF itself produces.
type ErrorResponse = httpjson.ErrorResponse
