// Package config loads hubuum-bff settings from an optional YAML file, an
// optional .env file and the environment.
package config

import (
	"errors"
	"fmt"
	"net/netip"
	"net/url"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/jmcleod/hubuum-bff/internal/logging"
)

// Config holds the full runtime configuration.
type Config struct {
	HTTP     HTTPConfig     `yaml:"http"`
	Upstream UpstreamConfig `yaml:"upstream"`
	Session  SessionConfig  `yaml:"session"`
	Security SecurityConfig `yaml:"security"`
	Log      LogConfig      `yaml:"log"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

type HTTPConfig struct {
	Addr    string `yaml:"addr"`
	TLSCert string `yaml:"tls_cert,omitempty"`
	TLSKey  string `yaml:"tls_key,omitempty"`
}

// UpstreamConfig describes the Hubuum API the BFF fronts.
type UpstreamConfig struct {
	BaseURL    string        `yaml:"base_url"`
	APIPrefix  string        `yaml:"api_prefix"`
	LoginPath  string        `yaml:"login_path"`
	LogoutPath string        `yaml:"logout_path"`
	Timeout    time.Duration `yaml:"timeout"`
}

// SessionConfig selects the session mode and cookie parameters. An empty
// StoreURL selects standalone (cookie-carried token) mode.
type SessionConfig struct {
	StoreURL      string        `yaml:"store_url"`
	TTL           time.Duration `yaml:"ttl"`
	CookiePrefix  string        `yaml:"cookie_prefix"`
	CookieSecret  string        `yaml:"cookie_secret,omitempty"`
	KeyPrefix     string        `yaml:"key_prefix"`
	SweepInterval time.Duration `yaml:"sweep_interval"`
}

type SecurityConfig struct {
	TrustedProxies []string `yaml:"trusted_proxies"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
}

const (
	DefaultAddr          = ":8080"
	DefaultAPIPrefix     = "/api/v1"
	DefaultLoginPath     = "/api/v0/auth/login"
	DefaultLogoutPath    = "/api/v0/auth/logout"
	DefaultSessionTTL    = 8 * time.Hour
	DefaultCookiePrefix  = "hubuum"
	DefaultKeyPrefix     = "hubuum:session:"
	DefaultSweepInterval = 5 * time.Minute

	minCookieSecretLen = 32
)

var cookiePrefixRe = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// Default returns a Config with every default applied and no upstream set.
func Default() Config {
	return applyDefaults(Config{Metrics: MetricsConfig{Enabled: true}})
}

// Load reads .env (if present), then the YAML file at path (if path is
// non-empty and exists), then environment overrides, then defaults. The
// result is not validated; call Validate.
func Load(path string) (Config, error) {
	_ = godotenv.Load()

	cfg := Config{Metrics: MetricsConfig{Enabled: true}}
	if path != "" {
		data, err := os.ReadFile(path)
		if err == nil {
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return Config{}, fmt.Errorf("parse config yaml: %w", err)
			}
		} else if !os.IsNotExist(err) {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
	}

	cfg, err := applyEnv(cfg)
	if err != nil {
		return Config{}, err
	}
	return applyDefaults(cfg), nil
}

func applyDefaults(cfg Config) Config {
	if cfg.HTTP.Addr == "" {
		cfg.HTTP.Addr = DefaultAddr
	}
	if cfg.Upstream.APIPrefix == "" {
		cfg.Upstream.APIPrefix = DefaultAPIPrefix
	}
	if cfg.Upstream.LoginPath == "" {
		cfg.Upstream.LoginPath = DefaultLoginPath
	}
	if cfg.Upstream.LogoutPath == "" {
		cfg.Upstream.LogoutPath = DefaultLogoutPath
	}
	if cfg.Session.TTL == 0 {
		cfg.Session.TTL = DefaultSessionTTL
	}
	if cfg.Session.CookiePrefix == "" {
		cfg.Session.CookiePrefix = DefaultCookiePrefix
	}
	if cfg.Session.KeyPrefix == "" {
		cfg.Session.KeyPrefix = DefaultKeyPrefix
	}
	if cfg.Session.SweepInterval == 0 {
		cfg.Session.SweepInterval = DefaultSweepInterval
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = logging.FormatJSON
	}
	return cfg
}

func applyEnv(cfg Config) (Config, error) {
	if val := os.Getenv("HUBUUM_BFF_ADDR"); val != "" {
		cfg.HTTP.Addr = val
	}
	if val := os.Getenv("HUBUUM_BFF_TLS_CERT"); val != "" {
		cfg.HTTP.TLSCert = val
	}
	if val := os.Getenv("HUBUUM_BFF_TLS_KEY"); val != "" {
		cfg.HTTP.TLSKey = val
	}
	if val := os.Getenv("HUBUUM_API_URL"); val != "" {
		cfg.Upstream.BaseURL = val
	}
	if val := os.Getenv("HUBUUM_API_PREFIX"); val != "" {
		cfg.Upstream.APIPrefix = val
	}
	if val := os.Getenv("HUBUUM_API_TIMEOUT"); val != "" {
		d, err := time.ParseDuration(val)
		if err != nil {
			return cfg, fmt.Errorf("HUBUUM_API_TIMEOUT: %w", err)
		}
		cfg.Upstream.Timeout = d
	}
	if val, ok := os.LookupEnv("HUBUUM_SESSION_STORE_URL"); ok {
		cfg.Session.StoreURL = val
	}
	if val := os.Getenv("HUBUUM_SESSION_TTL"); val != "" {
		d, err := parseTTL(val)
		if err != nil {
			return cfg, fmt.Errorf("HUBUUM_SESSION_TTL: %w", err)
		}
		cfg.Session.TTL = d
	}
	if val := os.Getenv("HUBUUM_COOKIE_PREFIX"); val != "" {
		cfg.Session.CookiePrefix = val
	}
	if val := os.Getenv("HUBUUM_COOKIE_SECRET"); val != "" {
		cfg.Session.CookieSecret = val
	}
	if val := os.Getenv("HUBUUM_TRUSTED_PROXIES"); val != "" {
		cfg.Security.TrustedProxies = splitList(val)
	}
	if val := os.Getenv("HUBUUM_LOG_LEVEL"); val != "" {
		cfg.Log.Level = val
	}
	if val := os.Getenv("HUBUUM_LOG_FORMAT"); val != "" {
		cfg.Log.Format = val
	}
	if val := os.Getenv("HUBUUM_METRICS_ENABLED"); val != "" {
		b, err := strconv.ParseBool(val)
		if err != nil {
			return cfg, fmt.Errorf("HUBUUM_METRICS_ENABLED: %w", err)
		}
		cfg.Metrics.Enabled = b
	}
	return cfg, nil
}

// parseTTL accepts either a Go duration ("8h") or a plain number of seconds.
func parseTTL(s string) (time.Duration, error) {
	if secs, err := strconv.Atoi(s); err == nil {
		return time.Duration(secs) * time.Second, nil
	}
	return time.ParseDuration(s)
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Validate reports every configuration problem at once.
func (c Config) Validate() error {
	var errs []error

	if c.Upstream.BaseURL == "" {
		errs = append(errs, errors.New("upstream.base_url is required"))
	} else if u, err := url.Parse(c.Upstream.BaseURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		errs = append(errs, fmt.Errorf("upstream.base_url %q must be an absolute http(s) URL", c.Upstream.BaseURL))
	}
	for name, p := range map[string]string{
		"upstream.api_prefix":  c.Upstream.APIPrefix,
		"upstream.login_path":  c.Upstream.LoginPath,
		"upstream.logout_path": c.Upstream.LogoutPath,
	} {
		if !strings.HasPrefix(p, "/") {
			errs = append(errs, fmt.Errorf("%s %q must start with /", name, p))
		}
	}
	if c.Upstream.Timeout < 0 {
		errs = append(errs, errors.New("upstream.timeout must not be negative"))
	}

	if c.Session.TTL <= 0 {
		errs = append(errs, errors.New("session.ttl must be positive"))
	}
	if !cookiePrefixRe.MatchString(c.Session.CookiePrefix) {
		errs = append(errs, fmt.Errorf("session.cookie_prefix %q may only contain letters, digits, _ and -", c.Session.CookiePrefix))
	}
	if c.Session.CookieSecret != "" && len(c.Session.CookieSecret) < minCookieSecretLen {
		errs = append(errs, fmt.Errorf("session.cookie_secret must be at least %d bytes", minCookieSecretLen))
	}
	if c.Session.StoreURL != "" {
		if err := validateStoreURL(c.Session.StoreURL); err != nil {
			errs = append(errs, err)
		}
	}

	for _, p := range c.Security.TrustedProxies {
		if _, err := ParseTrustedProxy(p); err != nil {
			errs = append(errs, fmt.Errorf("security.trusted_proxies: %w", err))
		}
	}

	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, fmt.Errorf("log.level: %w", err))
	}
	if f := strings.ToLower(c.Log.Format); f != logging.FormatJSON && f != logging.FormatText {
		errs = append(errs, fmt.Errorf("log.format %q must be json or text", c.Log.Format))
	}

	if (c.HTTP.TLSCert == "") != (c.HTTP.TLSKey == "") {
		errs = append(errs, errors.New("http.tls_cert and http.tls_key must be set together"))
	}

	return errors.Join(errs...)
}

// StoreSchemes lists the session store URL schemes OpenStore understands.
var StoreSchemes = []string{"memory", "redis", "rediss", "bolt", "bbolt"}

func validateStoreURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("session.store_url: %w", err)
	}
	for _, s := range StoreSchemes {
		if u.Scheme == s {
			if (s == "bolt" || s == "bbolt") && u.Path == "" {
				return fmt.Errorf("session.store_url %q: bolt store needs a file path", raw)
			}
			return nil
		}
	}
	return fmt.Errorf("session.store_url: unsupported scheme %q (want one of %s)", u.Scheme, strings.Join(StoreSchemes, ", "))
}

// ParseTrustedProxy accepts a CIDR or a bare IP address.
func ParseTrustedProxy(s string) (netip.Prefix, error) {
	if strings.Contains(s, "/") {
		return netip.ParsePrefix(s)
	}
	addr, err := netip.ParseAddr(s)
	if err != nil {
		return netip.Prefix{}, err
	}
	return netip.PrefixFrom(addr, addr.BitLen()), nil
}

// TrustedProxyPrefixes parses Security.TrustedProxies; call after Validate.
func (c Config) TrustedProxyPrefixes() []netip.Prefix {
	var out []netip.Prefix
	for _, p := range c.Security.TrustedProxies {
		if prefix, err := ParseTrustedProxy(p); err == nil {
			out = append(out, prefix)
		}
	}
	return out
}

// Distributed reports whether a session store is configured.
func (c Config) Distributed() bool {
	return c.Session.StoreURL != ""
}

// Redacted returns a copy safe to print: secrets and store credentials masked.
func (c Config) Redacted() Config {
	out := c
	if out.Session.CookieSecret != "" {
		out.Session.CookieSecret = "********"
	}
	if u, err := url.Parse(out.Session.StoreURL); err == nil && u.User != nil {
		if _, has := u.User.Password(); has {
			u.User = url.UserPassword(u.User.Username(), "********")
			out.Session.StoreURL = u.String()
		}
	}
	out.Security.TrustedProxies = append([]string(nil), c.Security.TrustedProxies...)
	return out
}

// YAML renders the config in the same shape Load reads.
func (c Config) YAML() ([]byte, error) {
	return yaml.Marshal(c)
}
