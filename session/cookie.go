package session

import (
	"net/http"
	"strings"
	"time"
)

// Cookie name suffixes appended to the configured prefix.
const (
	sessionSuffix     = "_session"
	tokenSuffix       = "_token"
	usernameSuffix    = "_username"
	correlationSuffix = "_correlation"
)

// CookieNames holds the full cookie names for one prefix.
type CookieNames struct {
	Session     string
	Token       string
	Username    string
	Correlation string
}

// NamesFor returns the cookie names for prefix.
func NamesFor(prefix string) CookieNames {
	return CookieNames{
		Session:     prefix + sessionSuffix,
		Token:       prefix + tokenSuffix,
		Username:    prefix + usernameSuffix,
		Correlation: prefix + correlationSuffix,
	}
}

// RequestIsSecure reports whether the browser reached us over https, either
// directly or through a proxy that set X-Forwarded-Proto. Only the first
// value of a comma-separated X-Forwarded-Proto counts.
func RequestIsSecure(r *http.Request) bool {
	if r.TLS != nil {
		return true
	}
	proto, _, _ := strings.Cut(r.Header.Get("X-Forwarded-Proto"), ",")
	return strings.EqualFold(strings.TrimSpace(proto), "https")
}

func writeCookie(w http.ResponseWriter, r *http.Request, name, value string, ttl time.Duration) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		HttpOnly: true,
		Secure:   RequestIsSecure(r),
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(ttl / time.Second),
	})
}

func expireCookie(w http.ResponseWriter, r *http.Request, name string) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		Secure:   RequestIsSecure(r),
		SameSite: http.SameSiteLaxMode,
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
	})
}

func cookieValue(r *http.Request, name string) string {
	c, err := r.Cookie(name)
	if err != nil {
		return ""
	}
	return c.Value
}
