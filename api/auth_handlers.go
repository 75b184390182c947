package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/jmcleod/hubuum-bff/internal/audit"
	"github.com/jmcleod/hubuum-bff/internal/httpjson"
	"github.com/jmcleod/hubuum-bff/internal/logging"
	"github.com/jmcleod/hubuum-bff/internal/util"
	"github.com/jmcleod/hubuum-bff/metrics"
	"github.com/jmcleod/hubuum-bff/session"
	"github.com/jmcleod/hubuum-bff/storage"
	"github.com/jmcleod/hubuum-bff/upstream"
)

const (
	// maxAuthBodySize bounds login bodies, JSON or form.
	maxAuthBodySize = 64 << 10
	// sessionUnavailableCode is the form-redirect spelling of
	// httpjson.CodeStoreUnavailable understood by the login page.
	sessionUnavailableCode = "session_unavailable"
)

var errUnsupportedContentType = errors.New("unsupported content type")

// loginInput is a login attempt decoded from either body encoding.
type loginInput struct {
	LoginRequest
	Next string
	Form bool
}

// Login handles POST /api/auth/login.
//
// JSON callers get a JSON status; form posts from the login page are
// answered with 303 redirects so the browser lands on a real page either way.
func (a *API) Login(w http.ResponseWriter, r *http.Request) {
	in, err := decodeLogin(w, r)
	if err != nil {
		a.loginFailed(w, r, in, http.StatusBadRequest, httpjson.CodeInvalidRequest, "request body could not be decoded")
		return
	}

	username := util.NormalizeUsername(in.Username)
	if username == "" || in.Password == "" {
		a.loginFailed(w, r, in, http.StatusBadRequest, httpjson.CodeMissingCredentials, "username and password are required")
		return
	}

	clientIP := extractClientIPWithProxies(r, a.trustedProxies)
	if scope, retryAfter := a.limiter.check(clientIP, username); scope != "" {
		a.audit.Failure(audit.LoginRateLimited, r, scope+" rate limited",
			slog.String("username", username),
			slog.String("client_ip", clientIP))
		a.metrics.Login(metrics.LoginRateLimited)
		if in.Form {
			a.redirectLoginError(w, r, in, httpjson.CodeRateLimited)
			return
		}
		writeRateLimited(w, retryAfter)
		return
	}

	token, err := a.upstream.Login(r.Context(), username, in.Password)
	if err != nil {
		a.handleUpstreamLoginError(w, r, in, username, clientIP, err)
		return
	}

	id, err := a.sessions.Create(r.Context(), token, username)
	if err != nil {
		a.metrics.Login(metrics.LoginError)
		if errors.Is(err, storage.ErrUnavailable) {
			a.audit.Failure(audit.StoreUnavailable, r, "creating session", slog.String("error", err.Error()))
			a.loginFailed(w, r, in, http.StatusServiceUnavailable, httpjson.CodeStoreUnavailable, "session store unavailable")
			return
		}
		if in.Form {
			logging.FromContext(r.Context()).Error("creating session", "error", err)
			a.redirectLoginError(w, r, in, sessionUnavailableCode)
			return
		}
		writeInternalError(w, r, "creating session", err)
		return
	}
	if err := a.sessions.SetCookie(w, r, id); err != nil {
		a.metrics.Login(metrics.LoginError)
		writeInternalError(w, r, "writing session cookie", err)
		return
	}

	a.limiter.recordSuccess(clientIP, username)
	a.audit.Event(audit.LoginSuccess, r, username, slog.String("mode", string(a.sessions.Mode())))
	a.metrics.Login(metrics.LoginSuccess)

	if in.Form {
		http.Redirect(w, r, safeNext(in.Next), http.StatusSeeOther)
		return
	}
	writeJSON(w, http.StatusOK, LoginResponse{Status: "ok", Username: username})
}

func (a *API) handleUpstreamLoginError(w http.ResponseWriter, r *http.Request, in loginInput, username, clientIP string, err error) {
	switch {
	case errors.Is(err, upstream.ErrInvalidCredentials):
		a.limiter.recordFailure(clientIP, username)
		a.audit.Failure(audit.LoginFailure, r, "invalid credentials",
			slog.String("username", username),
			slog.String("client_ip", clientIP))
		a.metrics.Login(metrics.LoginInvalid)
		a.loginFailed(w, r, in, http.StatusUnauthorized, httpjson.CodeInvalidCredentials, "invalid username or password")
	case errors.Is(err, upstream.ErrUnreachable):
		logging.FromContext(r.Context()).Error("upstream login unreachable", "error", err)
		a.metrics.Login(metrics.LoginError)
		a.loginFailed(w, r, in, http.StatusBadGateway, httpjson.CodeUpstreamUnreachable, "the Hubuum API could not be reached")
	default:
		logging.FromContext(r.Context()).Error("upstream login failed", "error", err)
		a.metrics.Login(metrics.LoginError)
		if in.Form {
			a.redirectLoginError(w, r, in, httpjson.CodeUpstreamUnreachable)
			return
		}
		writeError(w, http.StatusBadGateway, httpjson.CodeUpstreamError, "unexpected response from the Hubuum API")
	}
}

// loginFailed answers a failed login in the caller's dialect.
func (a *API) loginFailed(w http.ResponseWriter, r *http.Request, in loginInput, status int, code, msg string) {
	if in.Form {
		if code == httpjson.CodeStoreUnavailable {
			code = sessionUnavailableCode
		}
		a.redirectLoginError(w, r, in, code)
		return
	}
	writeError(w, status, code, msg)
}

func (a *API) redirectLoginError(w http.ResponseWriter, r *http.Request, in loginInput, code string) {
	q := url.Values{"error": {code}}
	if next := safeNext(in.Next); next != "/" {
		q.Set("next", next)
	}
	http.Redirect(w, r, session.LoginPath+"?"+q.Encode(), http.StatusSeeOther)
}

// decodeLogin reads a JSON or form login body. Form reports which encoding
// was used even when decoding fails, so errors can be answered in kind.
func decodeLogin(w http.ResponseWriter, r *http.Request) (loginInput, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxAuthBodySize)

	mediaType := "application/json"
	if ct := r.Header.Get("Content-Type"); ct != "" {
		mt, _, err := mime.ParseMediaType(ct)
		if err != nil {
			return loginInput{}, err
		}
		mediaType = mt
	}

	switch mediaType {
	case "application/json":
		var in loginInput
		dec := json.NewDecoder(r.Body)
		dec.DisallowUnknownFields()
		if err := dec.Decode(&in.LoginRequest); err != nil {
			return in, err
		}
		return in, nil
	case "application/x-www-form-urlencoded", "multipart/form-data":
		in := loginInput{Form: true}
		var err error
		if mediaType == "multipart/form-data" {
			err = r.ParseMultipartForm(maxAuthBodySize)
		} else {
			err = r.ParseForm()
		}
		if err != nil {
			return in, err
		}
		in.Username = r.PostFormValue("username")
		in.Password = r.PostFormValue("password")
		in.Next = r.PostFormValue("next")
		return in, nil
	default:
		return loginInput{}, errUnsupportedContentType
	}
}

// safeNext returns next when it is a local absolute path, "/" otherwise.
// Scheme-relative ("//host") and backslash tricks are refused.
func safeNext(next string) string {
	if next == "" || !strings.HasPrefix(next, "/") ||
		strings.HasPrefix(next, "//") || strings.ContainsAny(next, "\\\r\n") {
		return "/"
	}
	u, err := url.Parse(next)
	if err != nil || u.IsAbs() || u.Host != "" {
		return "/"
	}
	if strings.HasPrefix(u.Path, "/api/") || u.Path == session.LoginPath {
		return "/"
	}
	return next
}

// Logout handles GET and POST /api/auth/logout.
//
// The upstream token is revoked on a best-effort basis: the local session
// ends regardless of what the Hubuum API answers.
func (a *API) Logout(w http.ResponseWriter, r *http.Request) {
	logger := logging.FromContext(r.Context())

	s, err := a.sessions.Resolve(r)
	if err != nil {
		logger.Warn("resolving session for logout", "error", err)
	}
	if s != nil {
		if err := a.upstream.Logout(r.Context(), s.Token); err != nil {
			logger.Warn("upstream logout failed", "error", err)
		}
		if err := a.sessions.Destroy(r.Context(), s); err != nil {
			logger.Warn("destroying session", "error", err)
		}
		a.audit.Event(audit.Logout, r, s.Username)
		a.metrics.SessionInvalidated(metrics.ReasonLogout)
	}
	a.sessions.ClearCookie(w, r)

	if r.Method == http.MethodGet || isFormPost(r) {
		http.Redirect(w, r, session.LoginPath, http.StatusSeeOther)
		return
	}
	writeJSON(w, http.StatusOK, LogoutResponse{Status: "logged_out"})
}

func isFormPost(r *http.Request) bool {
	mt, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil {
		return false
	}
	return mt == "application/x-www-form-urlencoded" || mt == "multipart/form-data"
}

// Session handles GET /api/auth/session.
func (a *API) Session(w http.ResponseWriter, r *http.Request) {
	s, err := a.sessions.Resolve(r)
	if err != nil {
		a.audit.Failure(audit.StoreUnavailable, r, "resolving session", slog.String("error", err.Error()))
		writeError(w, http.StatusServiceUnavailable, httpjson.CodeStoreUnavailable, "session store unavailable")
		return
	}
	if s == nil {
		writeError(w, http.StatusUnauthorized, httpjson.CodeUnauthenticated, "no active session")
		return
	}
	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, http.StatusOK, SessionResponse{
		Authenticated: true,
		Username:      s.Username,
		Mode:          string(a.sessions.Mode()),
		CreatedAt:     optionalTime(s.CreatedAt),
		LastSeen:      optionalTime(s.LastSeen),
		ExpiresAt:     optionalTime(s.ExpiresAt),
	})
}

func optionalTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
