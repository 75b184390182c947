// Package proxy forwards browser API calls to the Hubuum API with the
// session's bearer token injected.
package proxy

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/jmcleod/hubuum-bff/correlation"
	"github.com/jmcleod/hubuum-bff/internal/audit"
	"github.com/jmcleod/hubuum-bff/internal/httpjson"
	"github.com/jmcleod/hubuum-bff/internal/logging"
	"github.com/jmcleod/hubuum-bff/metrics"
	"github.com/jmcleod/hubuum-bff/session"
	"github.com/jmcleod/hubuum-bff/upstream"
)

// DefaultMountPrefix is the browser-facing path prefix stripped before the
// remainder is mapped under the upstream API prefix.
const DefaultMountPrefix = "/api/"

// allowedMethods is also the value of the Allow header on 405.
var allowedMethods = []string{
	http.MethodGet,
	http.MethodPost,
	http.MethodPatch,
	http.MethodPut,
	http.MethodDelete,
}

var allowHeader = strings.Join(allowedMethods, ", ")

// Proxy is the catch-all upstream forwarder.
type Proxy struct {
	sessions    *session.Manager
	upstream    *upstream.Client
	metrics     metrics.Recorder
	audit       *audit.Logger
	mountPrefix string
}

// Option configures a Proxy.
type Option func(*Proxy)

func WithMetrics(m metrics.Recorder) Option {
	return func(p *Proxy) { p.metrics = m }
}

func WithAudit(a *audit.Logger) Option {
	return func(p *Proxy) { p.audit = a }
}

// WithMountPrefix overrides DefaultMountPrefix.
func WithMountPrefix(prefix string) Option {
	return func(p *Proxy) {
		if !strings.HasSuffix(prefix, "/") {
			prefix += "/"
		}
		p.mountPrefix = prefix
	}
}

func New(sessions *session.Manager, client *upstream.Client, opts ...Option) *Proxy {
	p := &Proxy{
		sessions:    sessions,
		upstream:    client,
		metrics:     metrics.Nop{},
		mountPrefix: DefaultMountPrefix,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.audit == nil {
		p.audit = audit.New(nil)
	}
	return p
}

func methodAllowed(m string) bool {
	for _, a := range allowedMethods {
		if m == a {
			return true
		}
	}
	return false
}

func hasBody(m string) bool {
	switch m {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	}
	return false
}

func (p *Proxy) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	logger := logging.FromContext(r.Context()).With(
		"method", r.Method,
		"path", logging.RedactURL(r.URL),
	)
	logger.Info("proxy request")

	status, outcome := p.serve(w, r)

	logger.Info("proxy response",
		"status", status,
		"outcome", outcome,
		"duration_ms", time.Since(start).Milliseconds())
	p.metrics.ObserveProxy(r.Method, status, time.Since(start))
}

// serve handles one request and reports the status sent and a short outcome
// label for the exit log line.
func (p *Proxy) serve(w http.ResponseWriter, r *http.Request) (int, string) {
	if !methodAllowed(r.Method) {
		w.Header().Set("Allow", allowHeader)
		httpjson.Error(w, http.StatusMethodNotAllowed, httpjson.CodeMethodNotAllowed, "method "+r.Method+" is not supported")
		return http.StatusMethodNotAllowed, "method_not_allowed"
	}

	rel, ok := strings.CutPrefix(r.URL.Path, p.mountPrefix)
	if !ok {
		rel = ""
	}
	target, err := p.upstream.APIURL(rel, r.URL.RawQuery)
	if err != nil {
		httpjson.Error(w, http.StatusBadRequest, httpjson.CodeInvalidPath, err.Error())
		return http.StatusBadRequest, "invalid_path"
	}

	sess, err := p.sessions.Resolve(r)
	if err != nil {
		logging.FromContext(r.Context()).Error("session store unavailable", "error", err)
		p.audit.Failure(audit.StoreUnavailable, r, "resolve")
		httpjson.Error(w, http.StatusServiceUnavailable, httpjson.CodeStoreUnavailable, "session store unavailable")
		return http.StatusServiceUnavailable, "store_unavailable"
	}
	if sess == nil {
		httpjson.Error(w, http.StatusUnauthorized, httpjson.CodeUnauthenticated, "no active session")
		return http.StatusUnauthorized, "unauthenticated"
	}

	// The upstream call runs to completion even if the browser goes away.
	ctx := context.WithoutCancel(r.Context())
	var body io.Reader
	if hasBody(r.Method) && r.Body != nil {
		body = r.Body
	}
	out, err := http.NewRequestWithContext(ctx, r.Method, target.String(), body)
	if err != nil {
		httpjson.Error(w, http.StatusBadRequest, httpjson.CodeInvalidPath, err.Error())
		return http.StatusBadRequest, "invalid_path"
	}
	if body != nil {
		out.ContentLength = r.ContentLength
	}
	for _, h := range []string{"Content-Type", "Accept"} {
		if v := r.Header.Get(h); v != "" {
			out.Header.Set(h, v)
		}
	}
	out.Header.Set("Authorization", "Bearer "+sess.Token)
	if id := correlation.FromContext(r.Context()); id != "" {
		out.Header.Set(correlation.HeaderName, id)
	}

	resp, err := p.upstream.Do(out)
	if err != nil {
		logging.FromContext(r.Context()).Warn("upstream unreachable", "error", logging.Redact(err.Error()))
		httpjson.Error(w, http.StatusBadGateway, httpjson.CodeUpstreamUnreachable, "the Hubuum API could not be reached")
		return http.StatusBadGateway, "upstream_unreachable"
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		p.invalidate(ctx, w, r, sess)
	}

	if ct := resp.Header.Get("Content-Type"); ct != "" {
		w.Header().Set("Content-Type", ct)
	}
	if id := correlation.FromContext(r.Context()); id != "" {
		w.Header().Set(correlation.HeaderName, id)
	}
	w.WriteHeader(resp.StatusCode)
	if _, err := io.Copy(w, resp.Body); err != nil && !errors.Is(err, context.Canceled) {
		logging.FromContext(r.Context()).Warn("relaying upstream body failed", "error", err)
	}
	if resp.StatusCode == http.StatusUnauthorized {
		return resp.StatusCode, "session_invalidated"
	}
	return resp.StatusCode, "relayed"
}

// invalidate logs the browser out after the upstream rejected its token.
func (p *Proxy) invalidate(ctx context.Context, w http.ResponseWriter, r *http.Request, sess *session.Session) {
	if err := p.sessions.Destroy(ctx, sess); err != nil {
		logging.FromContext(r.Context()).Error("destroying invalidated session failed", "error", err)
	}
	p.sessions.ClearCookie(w, r)
	p.audit.Event(audit.SessionInvalidated, r, sess.Username)
	p.metrics.SessionInvalidated(metrics.ReasonUpstream401)
}
