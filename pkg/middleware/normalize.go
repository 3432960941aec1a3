package middleware

import (
	"net/http"
	"strings"
)

// Normalize standardizes request fields coming through proxies (Vercel/Cloudflare)
// - Trims whitespace around URL.Path to avoid paths like "/auth/callback%20%20"
// - Restores scheme/host from forwarding headers so e-mail links use the public origin
func Normalize() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if p := r.URL.Path; strings.TrimSpace(p) != p {
				r.URL.Path = strings.TrimSpace(p)
			}

			if xfproto := r.Header.Get("X-Forwarded-Proto"); xfproto != "" {
				r.URL.Scheme = xfproto
			}
			if xfhost := r.Header.Get("X-Forwarded-Host"); xfhost != "" {
				r.Host = xfhost
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequestOrigin returns the origin of the submitting page: the Origin header when
// present, otherwise scheme and host of the request.
func RequestOrigin(r *http.Request) string {
	if o := r.Header.Get("Origin"); o != "" && o != "null" {
		return strings.TrimRight(o, "/")
	}
	if r.Host == "" {
		return ""
	}
	scheme := r.URL.Scheme
	if scheme == "" {
		scheme = "http"
		if r.TLS != nil {
			scheme = "https"
		}
	}
	return scheme + "://" + r.Host
}
