// Package storage defines the session record and the store contract shared
// by the memory, redis and bbolt backends.
package storage

import (
	"context"
	"errors"
	"time"
)

// ErrUnavailable wraps every backend failure. Callers must treat it as an
// infrastructure error, never as "no session".
var ErrUnavailable = errors.New("session store unavailable")

// Record is the server-side state of one authenticated browser session.
type Record struct {
	Token     string    `json:"token"`
	Username  string    `json:"username,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	LastSeen  time.Time `json:"last_seen"`
}

// Store maps session ids to records with a sliding TTL.
type Store interface {
	// Create stores rec under id, expiring TTL from now.
	Create(ctx context.Context, id string, rec Record) error
	// Get returns the record if present and unexpired. A missing or expired
	// id yields ok == false with a nil error.
	Get(ctx context.Context, id string) (rec Record, ok bool, err error)
	// Touch re-stores rec under id, resetting the expiry to TTL from now.
	Touch(ctx context.Context, id string, rec Record) error
	// Destroy removes id. Destroying an unknown id is not an error.
	Destroy(ctx context.Context, id string) error
	// Close releases backend resources.
	Close() error
}
