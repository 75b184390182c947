// Package session maps browser cookies to server-side (or cookie-carried)
// upstream credentials and guards pages that need a signed-in user.
package session

import (
	"context"
	"time"

	"github.com/jmcleod/hubuum-bff/storage"
)

// Mode is fixed for the lifetime of a process.
type Mode string

const (
	// ModeDistributed keeps the token in a store; the cookie holds an id.
	ModeDistributed Mode = "distributed"
	// ModeStandalone carries the token itself in a cookie.
	ModeStandalone Mode = "standalone"
)

// Identity is what a login hands back to the browser. It is either a
// Distributed or a Standalone value.
type Identity interface {
	mode() Mode
}

// Distributed identifies a stored session by its opaque id.
type Distributed struct {
	ID string
}

// Standalone carries the credential to the browser directly.
type Standalone struct {
	Token    string
	Username string
}

func (Distributed) mode() Mode { return ModeDistributed }
func (Standalone) mode() Mode  { return ModeStandalone }

// Session is a resolved, authenticated session.
type Session struct {
	// ID is the store key, or a local placeholder in standalone mode.
	ID string
	storage.Record
	// ExpiresAt is when the session lapses without further access. Zero in
	// standalone mode.
	ExpiresAt time.Time
}

type contextKey int

const sessionKey contextKey = iota

// ContextWithSession attaches s to ctx.
func ContextWithSession(ctx context.Context, s *Session) context.Context {
	return context.WithValue(ctx, sessionKey, s)
}

// FromContext returns the session set by RequireSession, or nil.
func FromContext(ctx context.Context) *Session {
	s, _ := ctx.Value(sessionKey).(*Session)
	return s
}
