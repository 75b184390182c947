package logging

import (
	"net/url"
	"regexp"
	"strings"
)

const redacted = "[REDACTED]"

var (
	// /logout/token/<token> revokes a token by value; the value must never be logged.
	logoutTokenRe = regexp.MustCompile(`(?i)(/logout/token/)[^/?#]+`)
	bearerRe      = regexp.MustCompile(`(?i)(bearer\s+)[A-Za-z0-9._~+/=-]+`)
	secretParamRe = regexp.MustCompile(`(?i)((?:^|[?&;\s"'{,])(?:access_token|token|password|passwd|secret|api_key)["']?\s*[=:]\s*["']?)[^&;\s"',}]+`)
)

var sensitiveParams = map[string]bool{
	"access_token": true,
	"token":        true,
	"password":     true,
	"passwd":       true,
	"secret":       true,
	"api_key":      true,
}

// Redact masks credentials embedded in s: bearer tokens, secret-looking
// key=value pairs and the token segment of logout-by-token paths.
func Redact(s string) string {
	if s == "" {
		return s
	}
	s = logoutTokenRe.ReplaceAllString(s, "${1}"+redacted)
	s = bearerRe.ReplaceAllString(s, "${1}"+redacted)
	s = secretParamRe.ReplaceAllString(s, "${1}"+redacted)
	return s
}

// RedactURL renders u's path and query for logging with sensitive query
// parameters and path segments masked.
func RedactURL(u *url.URL) string {
	if u == nil {
		return ""
	}
	p := logoutTokenRe.ReplaceAllString(u.EscapedPath(), "${1}"+redacted)
	if u.RawQuery == "" {
		return p
	}
	q, err := url.ParseQuery(u.RawQuery)
	if err != nil {
		return p + "?" + Redact(u.RawQuery)
	}
	for k := range q {
		if sensitiveParams[strings.ToLower(k)] {
			q[k] = []string{redacted}
		}
	}
	return p + "?" + q.Encode()
}
