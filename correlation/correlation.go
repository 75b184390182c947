// Package correlation assigns and propagates the per-request-chain
// correlation identifier used to stitch log lines together.
package correlation

import (
	"context"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/jmcleod/hubuum-bff/internal/logging"
	"github.com/jmcleod/hubuum-bff/internal/uuid"
)

const (
	// HeaderName carries the id on requests and responses.
	HeaderName = "X-Correlation-Id"
	// CookieMaxAge bounds how long sub-requests keep reusing a navigation's id.
	CookieMaxAge = 30 * time.Minute
)

var validID = regexp.MustCompile(`^[A-Za-z0-9._:-]{8,128}$`)

// Valid reports whether id is an acceptable correlation id.
func Valid(id string) bool {
	return validID.MatchString(id)
}

// New returns a freshly generated correlation id.
func New() string {
	return uuid.New()
}

type contextKey int

const idKey contextKey = iota

func ContextWithID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, idKey, id)
}

// FromContext returns the correlation id, or "" outside the middleware.
func FromContext(ctx context.Context) string {
	id, _ := ctx.Value(idKey).(string)
	return id
}

// Middleware assigns a correlation id to every request. A valid
// X-Correlation-Id header always wins; top-level navigations otherwise start
// a new chain; other requests reuse the chain cookie when it is valid.
type Middleware struct {
	CookieName string
	// Secure decides the cookie's Secure attribute for a request.
	Secure func(*http.Request) bool
}

func (m Middleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, fresh := m.resolve(r)

		ctx := ContextWithID(r.Context(), id)
		logger := logging.FromContext(ctx).With("correlation_id", id)
		ctx = logging.ContextWithLogger(ctx, logger)
		r = r.WithContext(ctx)

		w.Header().Set(HeaderName, id)
		if fresh || isNavigation(r) {
			m.writeCookie(w, r, id)
		}

		next.ServeHTTP(w, r)
	})
}

// resolve picks the id for r and reports whether it was newly generated.
func (m Middleware) resolve(r *http.Request) (string, bool) {
	if h := strings.TrimSpace(r.Header.Get(HeaderName)); Valid(h) {
		return h, false
	}
	if !isNavigation(r) && m.CookieName != "" {
		if c, err := r.Cookie(m.CookieName); err == nil && Valid(c.Value) {
			return c.Value, false
		}
	}
	return New(), true
}

func (m Middleware) writeCookie(w http.ResponseWriter, r *http.Request, id string) {
	if m.CookieName == "" {
		return
	}
	secure := false
	if m.Secure != nil {
		secure = m.Secure(r)
	}
	http.SetCookie(w, &http.Cookie{
		Name:     m.CookieName,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(CookieMaxAge.Seconds()),
	})
}

// isNavigation reports whether r is a top-level browser page load.
func isNavigation(r *http.Request) bool {
	if mode := r.Header.Get("Sec-Fetch-Mode"); mode != "" {
		return strings.EqualFold(mode, "navigate")
	}
	if r.Method != http.MethodGet || strings.HasPrefix(r.URL.Path, "/api/") {
		return false
	}
	return strings.Contains(r.Header.Get("Accept"), "text/html")
}
