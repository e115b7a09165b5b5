package middleware

import (
	"net/http"
	"strings"
)

// cspDirectives lets the dashboard render blob/data image previews and open
// its live websocket while everything else stays same-origin.
var cspDirectives = []string{
	"default-src 'self'",
	"base-uri 'self'",
	"form-action 'self'",
	"frame-ancestors 'none'",
	"object-src 'none'",
	"img-src 'self' data: blob:",
	"style-src 'self' 'unsafe-inline'",
	"script-src 'self' 'unsafe-inline'",
	"connect-src 'self' ws: wss:",
}

// SecureHeaders stamps the browser hardening headers on every response.
// Responses carry per-session state, so none of them may be cached.
func SecureHeaders(isProd bool) func(http.Handler) http.Handler {
	fixed := map[string]string{
		"Content-Security-Policy":    strings.Join(cspDirectives, "; "),
		"X-Content-Type-Options":     "nosniff",
		"X-Frame-Options":            "DENY",
		"Referrer-Policy":            "no-referrer",
		"Permissions-Policy":         "geolocation=(), microphone=(), camera=(self), payment=()",
		"Cross-Origin-Opener-Policy": "same-origin",
		"Cache-Control":              "no-store",
	}
	if isProd {
		fixed["Strict-Transport-Security"] = "max-age=63072000; includeSubDomains"
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			for name, value := range fixed {
				h.Set(name, value)
			}
			next.ServeHTTP(w, r)
		})
	}
}
