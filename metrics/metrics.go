// Package metrics exposes prometheus collectors for proxied traffic, logins
// and session invalidations.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "hubuum_bff"

// Login outcomes.
const (
	LoginSuccess     = "success"
	LoginInvalid     = "invalid_credentials"
	LoginRateLimited = "rate_limited"
	LoginError       = "error"
)

// Invalidation reasons.
const (
	ReasonUpstream401 = "upstream_401"
	ReasonLogout      = "logout"
)

// Recorder receives the events the BFF counts.
type Recorder interface {
	ObserveProxy(method string, code int, elapsed time.Duration)
	Login(outcome string)
	SessionInvalidated(reason string)
}

// Nop discards everything.
type Nop struct{}

func (Nop) ObserveProxy(string, int, time.Duration) {}
func (Nop) Login(string)                            {}
func (Nop) SessionInvalidated(string)               {}

// Prometheus is a Recorder backed by its own registry.
type Prometheus struct {
	registry      *prometheus.Registry
	proxyRequests *prometheus.CounterVec
	proxyDuration *prometheus.HistogramVec
	logins        *prometheus.CounterVec
	invalidated   *prometheus.CounterVec
	spikes        *spikeDetector
}

var _ Recorder = (*Prometheus)(nil)

// Option configures a Prometheus recorder.
type Option func(*Prometheus)

// WithLoginFailureAlert calls fn when at least threshold failed logins
// happen within window.
func WithLoginFailureAlert(window time.Duration, threshold int, fn AlertFunc) Option {
	return func(p *Prometheus) {
		p.spikes = newSpikeDetector(window, threshold, fn)
	}
}

// NewPrometheus registers the BFF collectors, plus the Go runtime and
// process collectors, on a fresh registry.
func NewPrometheus(opts ...Option) *Prometheus {
	p := &Prometheus{
		registry: prometheus.NewRegistry(),
		proxyRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "proxy_requests_total",
			Help:      "Proxied upstream API requests by method and response code.",
		}, []string{"method", "code"}),
		proxyDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "proxy_request_duration_seconds",
			Help:      "Latency of proxied upstream API requests.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
		logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "logins_total",
			Help:      "Login attempts by outcome.",
		}, []string{"outcome"}),
		invalidated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_invalidated_total",
			Help:      "Sessions destroyed, by reason.",
		}, []string{"reason"}),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.registry.MustRegister(
		p.proxyRequests,
		p.proxyDuration,
		p.logins,
		p.invalidated,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return p
}

func (p *Prometheus) ObserveProxy(method string, code int, elapsed time.Duration) {
	p.proxyRequests.WithLabelValues(method, strconv.Itoa(code)).Inc()
	p.proxyDuration.WithLabelValues(method).Observe(elapsed.Seconds())
}

func (p *Prometheus) Login(outcome string) {
	p.logins.WithLabelValues(outcome).Inc()
	if outcome == LoginInvalid {
		p.spikes.record(time.Now())
	}
}

func (p *Prometheus) SessionInvalidated(reason string) {
	p.invalidated.WithLabelValues(reason).Inc()
}

// Registry exposes the underlying registry, mostly for tests.
func (p *Prometheus) Registry() *prometheus.Registry {
	return p.registry
}

// Handler serves the registry in the prometheus exposition format.
func (p *Prometheus) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{Registry: p.registry})
}
