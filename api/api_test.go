package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmcleod/hubuum-bff/api"
	"github.com/jmcleod/hubuum-bff/config"
	"github.com/jmcleod/hubuum-bff/correlation"
	"github.com/jmcleod/hubuum-bff/metrics"
	"github.com/jmcleod/hubuum-bff/session"
	"github.com/jmcleod/hubuum-bff/storage"
	"github.com/jmcleod/hubuum-bff/storage/memory"
	"github.com/jmcleod/hubuum-bff/upstream"
)

const (
	testUser     = "alice"
	testPassword = "hunter2"
	testToken    = "abc123"
	classesJSON  = `[{"id":1,"name":"hosts"},{"id":2,"name":"rooms"}]`
)

// hubuum is a stub Hubuum API: one account, a classes collection, and a
// token that can be revoked to simulate upstream expiry.
type hubuum struct {
	*httptest.Server
	logins      atomic.Int32
	logouts     atomic.Int32
	apiCalls    atomic.Int32
	revoked     atomic.Bool
	lastPath    atomic.Pointer[string]
	correlation atomic.Pointer[string]
}

func newHubuum(t *testing.T) *hubuum {
	t.Helper()
	h := &hubuum{}
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v0/auth/login", func(w http.ResponseWriter, r *http.Request) {
		h.logins.Add(1)
		var creds struct{ Username, Password string }
		if err := json.NewDecoder(r.Body).Decode(&creds); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if creds.Username != testUser || creds.Password != testPassword {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"token":"` + testToken + `"}`))
	})
	mux.HandleFunc("GET /api/v0/auth/logout", func(w http.ResponseWriter, r *http.Request) {
		h.logouts.Add(1)
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/api/v1/", func(w http.ResponseWriter, r *http.Request) {
		h.apiCalls.Add(1)
		p := r.URL.Path
		h.lastPath.Store(&p)
		c := r.Header.Get(correlation.HeaderName)
		h.correlation.Store(&c)
		if r.Header.Get("Authorization") != "Bearer "+testToken || h.revoked.Load() {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":"token expired"}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(classesJSON))
	})
	h.Server = httptest.NewServer(mux)
	t.Cleanup(h.Close)
	return h
}

type setup struct {
	server   *httptest.Server
	upstream *hubuum
	metrics  *metrics.Prometheus
}

func newSetup(t *testing.T, store storage.Store) *setup {
	t.Helper()
	up := newHubuum(t)
	return newSetupWithBase(t, store, up.URL, up)
}

func newSetupWithBase(t *testing.T, store storage.Store, baseURL string, up *hubuum) *setup {
	t.Helper()
	sessions, err := session.NewManager(session.Options{
		Store:        store,
		TTL:          time.Hour,
		CookiePrefix: "hubuum",
	})
	require.NoError(t, err)

	cfg := config.Default().Upstream
	cfg.BaseURL = baseURL
	client, err := upstream.New(cfg, nil)
	require.NoError(t, err)

	m := metrics.NewPrometheus()
	a, err := api.New(sessions, client, api.WithMetrics(m))
	require.NoError(t, err)
	t.Cleanup(a.Close)

	srv := httptest.NewServer(a.Router())
	t.Cleanup(srv.Close)
	return &setup{server: srv, upstream: up, metrics: m}
}

func newMemorySetup(t *testing.T) *setup {
	t.Helper()
	store := memory.New(time.Hour)
	t.Cleanup(func() { _ = store.Close() })
	return newSetup(t, store)
}

// newClient returns a client with a cookie jar that does not follow
// redirects, so 303s can be asserted.
func newClient(t *testing.T) *http.Client {
	t.Helper()
	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	return &http.Client{
		Jar: jar,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

func doJSON(t *testing.T, client *http.Client, method, url string, body any) *http.Response {
	t.Helper()
	var reqBody bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&reqBody).Encode(body))
	}
	req, err := http.NewRequestWithContext(t.Context(), method, url, &reqBody)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := client.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func postForm(t *testing.T, client *http.Client, url string, form url.Values) *http.Response {
	t.Helper()
	req, err := http.NewRequestWithContext(t.Context(), http.MethodPost, url, strings.NewReader(form.Encode()))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	resp, err := client.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func login(t *testing.T, client *http.Client, baseURL string) {
	t.Helper()
	resp := doJSON(t, client, http.MethodPost, baseURL+"/api/auth/login", api.LoginRequest{
		Username: testUser,
		Password: testPassword,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func findCookie(cookies []*http.Cookie, name string) *http.Cookie {
	for _, c := range cookies {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func TestLoginThenSessionResolves(t *testing.T) {
	s := newMemorySetup(t)
	client := newClient(t)

	resp := doJSON(t, client, http.MethodPost, s.server.URL+"/api/auth/login", api.LoginRequest{
		Username: "  " + testUser + " ",
		Password: testPassword,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decode[api.LoginResponse](t, resp)
	assert.Equal(t, "ok", body.Status)
	assert.Equal(t, testUser, body.Username)

	cookie := findCookie(resp.Cookies(), "hubuum_session")
	require.NotNil(t, cookie)
	assert.True(t, cookie.HttpOnly)
	assert.False(t, cookie.Secure)
	assert.Equal(t, http.SameSiteLaxMode, cookie.SameSite)

	resp = doJSON(t, client, http.MethodGet, s.server.URL+"/api/auth/session", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	sess := decode[api.SessionResponse](t, resp)
	assert.True(t, sess.Authenticated)
	assert.Equal(t, testUser, sess.Username)
	assert.Equal(t, "distributed", sess.Mode)
	assert.NotNil(t, sess.CreatedAt)
	assert.NotNil(t, sess.ExpiresAt)

	// The stored token is what the proxy sends upstream.
	resp = doJSON(t, client, http.MethodGet, s.server.URL+"/api/classes", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestProxyRelaysAuthenticatedRequest(t *testing.T) {
	s := newMemorySetup(t)
	client := newClient(t)
	login(t, client, s.server.URL)

	resp := doJSON(t, client, http.MethodGet, s.server.URL+"/api/classes", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, classesJSON, string(raw))
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	id := resp.Header.Get(correlation.HeaderName)
	assert.True(t, correlation.Valid(id))
	assert.Equal(t, "/api/v1/classes", *s.upstream.lastPath.Load())
	assert.Equal(t, id, *s.upstream.correlation.Load())
}

func TestUpstream401EndsSession(t *testing.T) {
	s := newMemorySetup(t)
	client := newClient(t)
	login(t, client, s.server.URL)

	u, err := url.Parse(s.server.URL)
	require.NoError(t, err)
	original := client.Jar.Cookies(u)
	require.NotNil(t, findCookie(original, "hubuum_session"))

	s.upstream.revoked.Store(true)
	resp := doJSON(t, client, http.MethodDelete, s.server.URL+"/api/classes/5", nil)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "/api/v1/classes/5", *s.upstream.lastPath.Load())
	cleared := findCookie(resp.Cookies(), "hubuum_session")
	require.NotNil(t, cleared)
	assert.Less(t, cleared.MaxAge, 0)

	// Replaying the original cookie finds nothing.
	req, err := http.NewRequestWithContext(t.Context(), http.MethodGet, s.server.URL+"/api/auth/session", nil)
	require.NoError(t, err)
	for _, c := range original {
		req.AddCookie(c)
	}
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "unauthenticated", decode[api.ErrorResponse](t, resp).Error)
}

func TestProxyWithoutSession(t *testing.T) {
	s := newMemorySetup(t)
	client := newClient(t)

	resp := doJSON(t, client, http.MethodGet, s.server.URL+"/api/classes", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "unauthenticated", decode[api.ErrorResponse](t, resp).Error)

	resp = doJSON(t, client, http.MethodOptions, s.server.URL+"/api/classes", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
	assert.Zero(t, s.upstream.apiCalls.Load())
}

func TestLoginJSONErrors(t *testing.T) {
	s := newMemorySetup(t)
	client := newClient(t)

	tests := []struct {
		name   string
		body   string
		ctype  string
		status int
		code   string
	}{
		{"malformed", `{"username":`, "application/json", http.StatusBadRequest, "invalid_request"},
		{"unknown field", `{"username":"a","password":"b","x":1}`, "application/json", http.StatusBadRequest, "invalid_request"},
		{"unsupported type", `username=a`, "text/plain", http.StatusBadRequest, "invalid_request"},
		{"missing password", `{"username":"alice"}`, "application/json", http.StatusBadRequest, "missing_credentials"},
		{"blank username", `{"username":"   ","password":"x"}`, "application/json", http.StatusBadRequest, "missing_credentials"},
		{"wrong password", `{"username":"alice","password":"nope"}`, "application/json", http.StatusUnauthorized, "invalid_credentials"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := http.NewRequestWithContext(t.Context(), http.MethodPost, s.server.URL+"/api/auth/login", strings.NewReader(tt.body))
			require.NoError(t, err)
			req.Header.Set("Content-Type", tt.ctype)
			resp, err := client.Do(req)
			require.NoError(t, err)
			defer resp.Body.Close()
			assert.Equal(t, tt.status, resp.StatusCode)
			assert.Equal(t, tt.code, decode[api.ErrorResponse](t, resp).Error)
			assert.Nil(t, findCookie(resp.Cookies(), "hubuum_session"))
		})
	}
}

func TestLoginUpstreamUnreachable(t *testing.T) {
	dead := httptest.NewServer(http.NotFoundHandler())
	deadURL := dead.URL
	dead.Close()

	store := memory.New(time.Hour)
	t.Cleanup(func() { _ = store.Close() })
	s := newSetupWithBase(t, store, deadURL, nil)
	client := newClient(t)

	resp := doJSON(t, client, http.MethodPost, s.server.URL+"/api/auth/login", api.LoginRequest{
		Username: testUser,
		Password: testPassword,
	})
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
	assert.Equal(t, "upstream_unreachable", decode[api.ErrorResponse](t, resp).Error)
}

func TestLoginRateLimited(t *testing.T) {
	s := newMemorySetup(t)
	client := newClient(t)

	for i := 0; i < 5; i++ {
		resp := doJSON(t, client, http.MethodPost, s.server.URL+"/api/auth/login", api.LoginRequest{
			Username: testUser,
			Password: "wrong",
		})
		require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	}

	// Even the right password is refused while the account is locked.
	resp := doJSON(t, client, http.MethodPost, s.server.URL+"/api/auth/login", api.LoginRequest{
		Username: testUser,
		Password: testPassword,
	})
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("Retry-After"))
	assert.Equal(t, "rate_limited", decode[api.ErrorResponse](t, resp).Error)
	assert.EqualValues(t, 5, s.upstream.logins.Load())
}

func TestFormLogin(t *testing.T) {
	s := newMemorySetup(t)

	t.Run("success redirects to next", func(t *testing.T) {
		client := newClient(t)
		resp := postForm(t, client, s.server.URL+"/api/auth/login", url.Values{
			"username": {testUser},
			"password": {testPassword},
			"next":     {"/classes/5?tab=objects"},
		})
		assert.Equal(t, http.StatusSeeOther, resp.StatusCode)
		assert.Equal(t, "/classes/5?tab=objects", resp.Header.Get("Location"))
		assert.NotNil(t, findCookie(resp.Cookies(), "hubuum_session"))
	})

	t.Run("failure redirects to login page", func(t *testing.T) {
		client := newClient(t)
		resp := postForm(t, client, s.server.URL+"/api/auth/login", url.Values{
			"username": {"bob"},
			"password": {"nope"},
			"next":     {"/classes"},
		})
		assert.Equal(t, http.StatusSeeOther, resp.StatusCode)
		assert.Equal(t, "/login?error=invalid_credentials&next=%2Fclasses", resp.Header.Get("Location"))
	})

	t.Run("missing credentials", func(t *testing.T) {
		client := newClient(t)
		resp := postForm(t, client, s.server.URL+"/api/auth/login", url.Values{"username": {testUser}})
		assert.Equal(t, http.StatusSeeOther, resp.StatusCode)
		assert.Equal(t, "/login?error=missing_credentials", resp.Header.Get("Location"))
	})

	t.Run("offsite next is ignored", func(t *testing.T) {
		for _, next := range []string{"//evil.example/", "https://evil.example/", `/\evil.example`, "/api/classes", "relative"} {
			client := newClient(t)
			resp := postForm(t, client, s.server.URL+"/api/auth/login", url.Values{
				"username": {testUser},
				"password": {testPassword},
				"next":     {next},
			})
			assert.Equal(t, http.StatusSeeOther, resp.StatusCode, next)
			assert.Equal(t, "/", resp.Header.Get("Location"), next)
		}
	})
}

func TestLogout(t *testing.T) {
	s := newMemorySetup(t)

	t.Run("json", func(t *testing.T) {
		client := newClient(t)
		login(t, client, s.server.URL)

		resp := doJSON(t, client, http.MethodPost, s.server.URL+"/api/auth/logout", nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "logged_out", decode[api.LogoutResponse](t, resp).Status)
		assert.EqualValues(t, 1, s.upstream.logouts.Load())

		resp = doJSON(t, client, http.MethodGet, s.server.URL+"/api/auth/session", nil)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("get redirects", func(t *testing.T) {
		client := newClient(t)
		login(t, client, s.server.URL)

		resp := doJSON(t, client, http.MethodGet, s.server.URL+"/api/auth/logout", nil)
		assert.Equal(t, http.StatusSeeOther, resp.StatusCode)
		assert.Equal(t, "/login", resp.Header.Get("Location"))
	})

	t.Run("form post redirects", func(t *testing.T) {
		client := newClient(t)
		login(t, client, s.server.URL)

		resp := postForm(t, client, s.server.URL+"/api/auth/logout", url.Values{})
		assert.Equal(t, http.StatusSeeOther, resp.StatusCode)
		assert.Equal(t, "/login", resp.Header.Get("Location"))
	})

	t.Run("anonymous", func(t *testing.T) {
		client := newClient(t)
		before := s.upstream.logouts.Load()
		resp := doJSON(t, client, http.MethodPost, s.server.URL+"/api/auth/logout", nil)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, before, s.upstream.logouts.Load())
	})
}

func TestPages(t *testing.T) {
	s := newMemorySetup(t)
	client := newClient(t)

	resp := doJSON(t, client, http.MethodGet, s.server.URL+"/", nil)
	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, "/login", resp.Header.Get("Location"))

	resp = doJSON(t, client, http.MethodGet, s.server.URL+"/classes?x=1", nil)
	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, "/login?next=%2Fclasses%3Fx%3D1", resp.Header.Get("Location"))

	resp = doJSON(t, client, http.MethodGet, s.server.URL+"/login", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/html")
	assert.Equal(t, "DENY", resp.Header.Get("X-Frame-Options"))
	assert.Empty(t, resp.Header.Get("Strict-Transport-Security"))

	resp = doJSON(t, client, http.MethodGet, s.server.URL+"/assets/app.css", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	login(t, client, s.server.URL)

	resp = doJSON(t, client, http.MethodGet, s.server.URL+"/namespaces", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `<meta name="hubuum-user" content="alice">`)
	assert.NotEmpty(t, resp.Header.Get("Content-Security-Policy"))

	resp = doJSON(t, client, http.MethodGet, s.server.URL+"/login", nil)
	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, "/", resp.Header.Get("Location"))
}

func TestHSTSBehindTLSProxy(t *testing.T) {
	s := newMemorySetup(t)
	req, err := http.NewRequestWithContext(t.Context(), http.MethodGet, s.server.URL+"/login", nil)
	require.NoError(t, err)
	req.Header.Set("X-Forwarded-Proto", "https")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.NotEmpty(t, resp.Header.Get("Strict-Transport-Security"))
}

func TestStandaloneMode(t *testing.T) {
	s := newSetup(t, nil)
	client := newClient(t)

	resp := doJSON(t, client, http.MethodPost, s.server.URL+"/api/auth/login", api.LoginRequest{
		Username: testUser,
		Password: testPassword,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotNil(t, findCookie(resp.Cookies(), "hubuum_token"))
	assert.Nil(t, findCookie(resp.Cookies(), "hubuum_session"))

	resp = doJSON(t, client, http.MethodGet, s.server.URL+"/api/auth/session", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	sess := decode[api.SessionResponse](t, resp)
	assert.Equal(t, "standalone", sess.Mode)
	assert.Equal(t, testUser, sess.Username)
	assert.Nil(t, sess.ExpiresAt)

	resp = doJSON(t, client, http.MethodGet, s.server.URL+"/api/classes", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = doJSON(t, client, http.MethodPost, s.server.URL+"/api/auth/logout", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp = doJSON(t, client, http.MethodGet, s.server.URL+"/api/classes", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

// downStore fails every operation the way an unreachable redis does.
type downStore struct{}

var errDown = errors.Join(storage.ErrUnavailable, errors.New("connection refused"))

func (downStore) Create(context.Context, string, storage.Record) error { return errDown }
func (downStore) Get(context.Context, string) (storage.Record, bool, error) {
	return storage.Record{}, false, errDown
}
func (downStore) Touch(context.Context, string, storage.Record) error { return errDown }
func (downStore) Destroy(context.Context, string) error               { return errDown }
func (downStore) Close() error                                        { return nil }

func TestStoreUnavailable(t *testing.T) {
	s := newSetup(t, downStore{})
	client := newClient(t)
	u, err := url.Parse(s.server.URL)
	require.NoError(t, err)
	client.Jar.SetCookies(u, []*http.Cookie{{Name: "hubuum_session", Value: "some-id"}})

	resp := doJSON(t, client, http.MethodGet, s.server.URL+"/api/auth/session", nil)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Equal(t, "session_store_unavailable", decode[api.ErrorResponse](t, resp).Error)

	resp = doJSON(t, client, http.MethodGet, s.server.URL+"/api/classes", nil)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	resp = doJSON(t, client, http.MethodGet, s.server.URL+"/namespaces", nil)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	resp = doJSON(t, client, http.MethodPost, s.server.URL+"/api/auth/login", api.LoginRequest{
		Username: testUser,
		Password: testPassword,
	})
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	resp = postForm(t, client, s.server.URL+"/api/auth/login", url.Values{
		"username": {testUser},
		"password": {testPassword},
	})
	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, "/login?error=session_unavailable", resp.Header.Get("Location"))
	assert.Zero(t, s.upstream.apiCalls.Load())
}

func TestCorrelationHeader(t *testing.T) {
	s := newMemorySetup(t)
	client := newClient(t)
	login(t, client, s.server.URL)

	req, err := http.NewRequestWithContext(t.Context(), http.MethodGet, s.server.URL+"/api/classes", nil)
	require.NoError(t, err)
	req.Header.Set(correlation.HeaderName, "trace-0001")
	resp, err := client.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "trace-0001", resp.Header.Get(correlation.HeaderName))
	assert.Equal(t, "trace-0001", *s.upstream.correlation.Load())

	req, err = http.NewRequestWithContext(t.Context(), http.MethodGet, s.server.URL+"/healthz", nil)
	require.NoError(t, err)
	req.Header.Set(correlation.HeaderName, "bad id")
	resp2, err := client.Do(req)
	require.NoError(t, err)
	defer resp2.Body.Close()
	got := resp2.Header.Get(correlation.HeaderName)
	assert.NotEqual(t, "bad id", got)
	assert.True(t, correlation.Valid(got))
}

func TestHealthzAndMetrics(t *testing.T) {
	s := newMemorySetup(t)
	client := newClient(t)

	resp := doJSON(t, client, http.MethodGet, s.server.URL+"/healthz", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "ok\n", string(raw))

	login(t, client, s.server.URL)
	resp = doJSON(t, client, http.MethodGet, s.server.URL+"/metrics", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	raw, err = io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `hubuum_bff_logins_total{outcome="success"} 1`)
}

func TestOpenAPIDocumentServed(t *testing.T) {
	s := newMemorySetup(t)
	client := newClient(t)

	resp := doJSON(t, client, http.MethodGet, s.server.URL+"/bff/openapi.yaml", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "/api/auth/login:")

	resp = doJSON(t, client, http.MethodGet, s.server.URL+"/bff/docs", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
