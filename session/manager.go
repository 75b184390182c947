package session

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"time"

	"github.com/jmcleod/hubuum-bff/internal/logging"
	"github.com/jmcleod/hubuum-bff/storage"
)

// LoginPath is where RequireSession sends anonymous browsers.
const LoginPath = "/login"

// Options configures a Manager.
type Options struct {
	// Store selects distributed mode when non-nil.
	Store        storage.Store
	TTL          time.Duration
	CookiePrefix string
	// CookieSecret, when set, seals standalone cookies instead of merely
	// encoding them.
	CookieSecret []byte
	// Now replaces time.Now.
	Now func() time.Time
}

// Manager is the session boundary: it creates, resolves and destroys
// sessions and owns the cookies that carry them.
type Manager struct {
	codec codec
	names CookieNames
	ttl   time.Duration
	now   func() time.Time
}

// NewManager selects the cookie shape from opts.Store once.
func NewManager(opts Options) (*Manager, error) {
	if opts.TTL <= 0 {
		return nil, errors.New("session: TTL must be positive")
	}
	if opts.CookiePrefix == "" {
		return nil, errors.New("session: cookie prefix is required")
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	names := NamesFor(opts.CookiePrefix)

	m := &Manager{names: names, ttl: opts.TTL, now: now}
	if opts.Store != nil {
		m.codec = distributedCodec{store: opts.Store, names: names, ttl: opts.TTL}
		return m, nil
	}

	var values valueCodec = plainValues{}
	if len(opts.CookieSecret) > 0 {
		sealed, err := newSealedValues(opts.CookieSecret)
		if err != nil {
			return nil, err
		}
		values = sealed
	}
	m.codec = standaloneCodec{names: names, ttl: opts.TTL, values: values}
	return m, nil
}

func (m *Manager) Mode() Mode               { return m.codec.mode() }
func (m *Manager) TTL() time.Duration       { return m.ttl }
func (m *Manager) CookieNames() CookieNames { return m.names }

// Resolve returns the session the request's cookies point to. It returns
// (nil, nil) when there is none and an error wrapping storage.ErrUnavailable
// when the store cannot answer. In distributed mode a hit refreshes the TTL.
func (m *Manager) Resolve(r *http.Request) (*Session, error) {
	return m.codec.resolve(r, m.now().UTC())
}

// Create starts a session for a freshly issued upstream token.
func (m *Manager) Create(ctx context.Context, token, username string) (Identity, error) {
	if token == "" {
		return nil, errors.New("session: empty token")
	}
	now := m.now().UTC()
	return m.codec.create(ctx, storage.Record{
		Token:     token,
		Username:  username,
		CreatedAt: now,
		LastSeen:  now,
	})
}

// SetCookie writes the cookie(s) for id.
func (m *Manager) SetCookie(w http.ResponseWriter, r *http.Request, id Identity) error {
	return m.codec.write(w, r, id)
}

// ClearCookie expires every session cookie, whatever the mode.
func (m *Manager) ClearCookie(w http.ResponseWriter, r *http.Request) {
	expireCookie(w, r, m.names.Session)
	expireCookie(w, r, m.names.Token)
	expireCookie(w, r, m.names.Username)
}

// Destroy removes the server-side record. It is a no-op in standalone mode.
func (m *Manager) Destroy(ctx context.Context, s *Session) error {
	if s == nil {
		return nil
	}
	return m.codec.destroy(ctx, s)
}

// RequireSession guards browser pages: anonymous requests are redirected
// to the login page with a return path.
func (m *Manager) RequireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s, err := m.Resolve(r)
		if err != nil {
			logging.FromContext(r.Context()).Error("session store unavailable", "error", err)
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			w.Header().Set("Retry-After", "5")
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(unavailablePage))
			return
		}
		if s == nil {
			http.Redirect(w, r, LoginRedirect(r.URL.RequestURI()), http.StatusSeeOther)
			return
		}
		next.ServeHTTP(w, r.WithContext(ContextWithSession(r.Context(), s)))
	})
}

// LoginRedirect returns the login URL that brings the browser back to next.
func LoginRedirect(next string) string {
	if next == "" || next == "/" {
		return LoginPath
	}
	return LoginPath + "?next=" + url.QueryEscape(next)
}

const unavailablePage = `<!doctype html>
<html><head><meta charset="utf-8"><title>Hubuum unavailable</title></head>
<body><h1>Service temporarily unavailable</h1>
<p>Sessions cannot be checked right now. Please retry in a moment.</p></body></html>
`
