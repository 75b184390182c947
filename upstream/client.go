// Package upstream talks to the Hubuum REST API on behalf of the browser.
package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"

	"github.com/jmcleod/hubuum-bff/config"
	"github.com/jmcleod/hubuum-bff/correlation"
)

var (
	// ErrInvalidPath means the requested path does not map under the API
	// prefix.
	ErrInvalidPath = errors.New("path does not resolve under the upstream API prefix")
	// ErrInvalidCredentials means the upstream rejected a login.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrUnreachable wraps transport failures talking to the upstream.
	ErrUnreachable = errors.New("upstream unreachable")
	// ErrUnexpectedResponse covers any other upstream answer to login.
	ErrUnexpectedResponse = errors.New("unexpected upstream response")
)

// maxLoginResponse caps how much of a login response body is read.
const maxLoginResponse = 1 << 20

// Client builds upstream URLs and performs the auth calls the BFF makes
// itself. Proxied traffic goes through Do.
type Client struct {
	base       *url.URL
	apiPrefix  string
	loginPath  string
	logoutPath string
	http       *http.Client
}

// New returns a client for cfg. A nil httpClient gets a default client with
// cfg.Timeout applied.
func New(cfg config.UpstreamConfig, httpClient *http.Client) (*Client, error) {
	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("upstream base url: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" || base.Host == "" {
		return nil, fmt.Errorf("upstream base url %q must be an absolute http(s) URL", cfg.BaseURL)
	}
	base.Path = strings.TrimRight(base.Path, "/")
	base.RawPath = ""
	base.RawQuery = ""
	base.Fragment = ""

	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	prefix := "/" + strings.Trim(cfg.APIPrefix, "/")
	return &Client{
		base:       base,
		apiPrefix:  prefix,
		loginPath:  cfg.LoginPath,
		logoutPath: cfg.LogoutPath,
		http:       httpClient,
	}, nil
}

// BaseURL returns the configured upstream origin and base path.
func (c *Client) BaseURL() string {
	return c.base.String()
}

// APIURL maps a path relative to the API prefix (e.g. "classes/5") onto the
// upstream, carrying rawQuery through unchanged.
func (c *Client) APIURL(rel, rawQuery string) (*url.URL, error) {
	rel = strings.TrimLeft(rel, "/")
	if rel == "" || strings.ContainsAny(rel, "\\\x00") {
		return nil, ErrInvalidPath
	}
	for _, seg := range strings.Split(rel, "/") {
		if seg == ".." || seg == "." {
			return nil, ErrInvalidPath
		}
	}
	full := path.Join(c.apiPrefix, rel)
	if !strings.HasPrefix(full, c.apiPrefix+"/") {
		return nil, ErrInvalidPath
	}
	if strings.HasSuffix(rel, "/") {
		full += "/"
	}
	u := c.endpoint(full)
	u.RawQuery = rawQuery
	return u, nil
}

func (c *Client) endpoint(p string) *url.URL {
	u := *c.base
	u.Path = c.base.Path + p
	return &u
}

// Do sends req with the client's transport. Transport failures are wrapped
// in ErrUnreachable.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnreachable, err)
	}
	return resp, nil
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token string `json:"token"`
}

// Login exchanges credentials for an opaque bearer token.
func (c *Client) Login(ctx context.Context, username, password string) (string, error) {
	body, err := json.Marshal(loginRequest{Username: username, Password: password})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(c.loginPath).String(), bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	setCorrelation(ctx, req)

	resp, err := c.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxLoginResponse))
		return "", ErrInvalidCredentials
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxLoginResponse))
		return "", fmt.Errorf("%w: login returned status %d", ErrUnexpectedResponse, resp.StatusCode)
	}

	var out loginResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxLoginResponse)).Decode(&out); err != nil {
		return "", fmt.Errorf("%w: decoding login response: %w", ErrUnexpectedResponse, err)
	}
	if out.Token == "" {
		return "", fmt.Errorf("%w: login response carries no token", ErrUnexpectedResponse)
	}
	return out.Token, nil
}

// Logout revokes token upstream.
func (c *Client) Logout(ctx context.Context, token string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint(c.logoutPath).String(), nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	setCorrelation(ctx, req)

	resp, err := c.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxLoginResponse))
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%w: logout returned status %d", ErrUnexpectedResponse, resp.StatusCode)
	}
	return nil
}

func setCorrelation(ctx context.Context, req *http.Request) {
	if id := correlation.FromContext(ctx); id != "" {
		req.Header.Set(correlation.HeaderName, id)
	}
}
