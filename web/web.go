// Package web serves the embedded console shell, login page and static
// assets.
package web

import (
	"bytes"
	"embed"
	"fmt"
	"html"
	"html/template"
	"io/fs"
	"net/http"
	"strings"
)

//go:embed dist/*
var content embed.FS

// UserFunc returns the display name of the signed-in user for a request.
// When nil or empty, no user meta tag is injected.
type UserFunc func(r *http.Request) string

// LoginErrors maps the error codes the login endpoint redirects with to the
// text shown on the login page.
var LoginErrors = map[string]string{
	"missing_credentials":  "Enter both a username and a password.",
	"invalid_credentials":  "Wrong username or password.",
	"upstream_unreachable": "The Hubuum API could not be reached. Try again shortly.",
	"session_unavailable":  "Sessions are temporarily unavailable. Try again shortly.",
	"rate_limited":         "Too many failed attempts. Wait a while before trying again.",
	"invalid_request":      "The sign-in form could not be read.",
}

// Shell returns a handler that serves the console shell for every path.
//
// When userFunc is provided, the shell has a
// <meta name="hubuum-user" content="..."> tag injected before </head> so the
// client can show who is signed in without an extra request.
func Shell(userFunc UserFunc) (http.Handler, error) {
	indexBytes, err := fs.ReadFile(content, "dist/index.html")
	if err != nil {
		return nil, fmt.Errorf("reading embedded index.html: %w", err)
	}
	indexTemplate := string(indexBytes)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Header().Set("Cache-Control", "no-store")
		if userFunc != nil {
			if user := userFunc(r); user != "" {
				tag := `<meta name="hubuum-user" content="` + html.EscapeString(user) + `">`
				_, _ = w.Write([]byte(strings.Replace(indexTemplate, "</head>", tag+"\n  </head>", 1)))
				return
			}
		}
		_, _ = w.Write(indexBytes)
	}), nil
}

type loginData struct {
	Error string
	Next  string
}

// LoginPage returns a handler rendering the sign-in form. The ?error= code
// and ?next= path from the query are carried into the page.
func LoginPage() (http.Handler, error) {
	tmpl, err := template.ParseFS(content, "dist/login.html")
	if err != nil {
		return nil, fmt.Errorf("parsing embedded login.html: %w", err)
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		data := loginData{Next: q.Get("next")}
		if code := q.Get("error"); code != "" {
			msg, ok := LoginErrors[code]
			if !ok {
				msg = "Sign-in failed."
			}
			data.Error = msg
		}
		var buf bytes.Buffer
		if err := tmpl.Execute(&buf, data); err != nil {
			http.Error(w, "rendering login page failed", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Header().Set("Cache-Control", "no-store")
		_, _ = w.Write(buf.Bytes())
	}), nil
}

// Assets serves dist/assets. Mount it under /assets/ with the prefix
// stripped.
func Assets() (http.Handler, error) {
	fsys, err := fs.Sub(content, "dist/assets")
	if err != nil {
		return nil, fmt.Errorf("loading embedded web assets: %w", err)
	}
	return http.FileServer(http.FS(fsys)), nil
}
