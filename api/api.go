// Package api assembles the BFF's HTTP surface: the auth endpoints, the
// upstream proxy mount, the console pages and the operational routes.
package api

import (
	_ "embed"
	"fmt"
	"log/slog"
	"net/http"
	"net/netip"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-openapi/runtime/middleware"

	"github.com/jmcleod/hubuum-bff/correlation"
	"github.com/jmcleod/hubuum-bff/internal/audit"
	"github.com/jmcleod/hubuum-bff/internal/logging"
	"github.com/jmcleod/hubuum-bff/metrics"
	"github.com/jmcleod/hubuum-bff/proxy"
	"github.com/jmcleod/hubuum-bff/session"
	"github.com/jmcleod/hubuum-bff/upstream"
	"github.com/jmcleod/hubuum-bff/web"
)

const limiterSweepInterval = 5 * time.Minute

// API holds the dependencies needed by the HTTP handlers.
type API struct {
	sessions       *session.Manager
	upstream       *upstream.Client
	proxy          http.Handler
	limiter        *loginLimiter
	audit          *audit.Logger
	logger         *slog.Logger
	metrics        metrics.Recorder
	metricsHandler http.Handler
	trustedProxies []netip.Prefix
	now            func() time.Time

	shell     http.Handler
	loginPage http.Handler
	assets    http.Handler
}

//go:embed openapi.yaml
var openapiSpec []byte

// Option configures the API instance.
type Option func(*API)

// WithLogger sets the base logger placed in every request context and used
// for audit events. If not set, slog.Default() is used.
func WithLogger(logger *slog.Logger) Option {
	return func(a *API) {
		a.logger = logger
	}
}

// WithMetrics records login, proxy and invalidation events on p and exposes
// its registry at /metrics.
func WithMetrics(p *metrics.Prometheus) Option {
	return func(a *API) {
		a.metrics = p
		a.metricsHandler = p.Handler()
	}
}

// WithTrustedProxies sets the CIDRs whose X-Forwarded-For / X-Real-IP
// headers are believed when rate limiting logins.
func WithTrustedProxies(prefixes []netip.Prefix) Option {
	return func(a *API) {
		a.trustedProxies = prefixes
	}
}

// WithClock overrides time.Now for the login limiter.
func WithClock(now func() time.Time) Option {
	return func(a *API) {
		a.now = now
	}
}

// New creates a new API instance. Close must be called to stop the login
// limiter's sweeper.
func New(sessions *session.Manager, client *upstream.Client, opts ...Option) (*API, error) {
	a := &API{
		sessions: sessions,
		upstream: client,
		metrics:  metrics.Nop{},
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.logger == nil {
		a.logger = slog.Default()
	}
	a.audit = audit.New(a.logger)
	a.limiter = newLoginLimiter(a.now)
	go a.limiter.run(limiterSweepInterval)

	a.proxy = proxy.New(sessions, client,
		proxy.WithMetrics(a.metrics),
		proxy.WithAudit(a.audit))

	var err error
	if a.shell, err = web.Shell(currentUser); err != nil {
		return nil, fmt.Errorf("api: %w", err)
	}
	if a.loginPage, err = web.LoginPage(); err != nil {
		return nil, fmt.Errorf("api: %w", err)
	}
	if a.assets, err = web.Assets(); err != nil {
		return nil, fmt.Errorf("api: %w", err)
	}
	return a, nil
}

// Close stops background work owned by the API.
func (a *API) Close() {
	a.limiter.stop()
}

// Router returns a chi.Router with every route mounted.
func (a *API) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(a.withLogger)
	r.Use(correlation.Middleware{
		CookieName: a.sessions.CookieNames().Correlation,
		Secure:     session.RequestIsSecure,
	}.Handler)
	r.Use(chimw.Recoverer)

	r.Group(func(r chi.Router) {
		r.Use(logging.AccessLog)

		r.Post("/api/auth/login", a.Login)
		r.Get("/api/auth/logout", a.Logout)
		r.Post("/api/auth/logout", a.Logout)
		r.Get("/api/auth/session", a.Session)

		r.Get("/healthz", a.Healthz)
		if a.metricsHandler != nil {
			r.Method(http.MethodGet, "/metrics", a.metricsHandler)
		}

		r.Get("/bff/openapi.yaml", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "text/yaml")
			_, _ = w.Write(openapiSpec)
		})
		r.Handle("/bff/docs*", middleware.SwaggerUI(middleware.SwaggerUIOpts{
			SpecURL: "/bff/openapi.yaml",
			Path:    "bff/docs",
			Title:   "hubuum-bff",
		}, nil))
		r.Handle("/bff/redoc*", middleware.Redoc(middleware.RedocOpts{
			SpecURL: "/bff/openapi.yaml",
			Path:    "bff/redoc",
			Title:   "hubuum-bff",
		}, nil))

		r.Group(func(r chi.Router) {
			r.Use(SecurityHeaders)
			r.Get("/login", a.LoginPage)
			r.Handle("/assets/*", http.StripPrefix("/assets/", a.assets))
			r.With(a.sessions.RequireSession).Get("/*", a.shell.ServeHTTP)
		})
	})

	// Everything else under /api/ belongs to the Hubuum API. The proxy
	// logs its own request and response lines.
	r.Handle(proxy.DefaultMountPrefix+"*", a.proxy)

	return r
}

// withLogger seeds the request context with the API's logger so the
// correlation middleware and handlers extend the configured one.
func (a *API) withLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		next.ServeHTTP(w, r.WithContext(logging.ContextWithLogger(r.Context(), a.logger)))
	})
}

// Healthz handles GET /healthz.
func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	_, _ = w.Write([]byte("ok\n"))
}

// LoginPage handles GET /login. A browser that already has a session is
// sent to the console instead.
func (a *API) LoginPage(w http.ResponseWriter, r *http.Request) {
	s, err := a.sessions.Resolve(r)
	if err != nil {
		logging.FromContext(r.Context()).Warn("resolving session for login page", "error", err)
	}
	if s != nil {
		http.Redirect(w, r, safeNext(r.URL.Query().Get("next")), http.StatusSeeOther)
		return
	}
	a.loginPage.ServeHTTP(w, r)
}

func currentUser(r *http.Request) string {
	if s := session.FromContext(r.Context()); s != nil {
		return s.Username
	}
	return ""
}
